package evidence

import (
	"strings"

	"github.com/flemzord/surveil/internal/tool"
)

// Data file names under the data directory.
const (
	TraderHistoryFile = "trader_history.csv"
	RelationshipsFile = "relationships.csv"
	MarketNewsFile    = "market_news.csv"
	MarketDataFile    = "market_data.csv"
)

// defaultNewsWindow is the number of days either side of the trade date
// searched for news and price data.
const defaultNewsWindow = 5

// TraderHistory reviews a trader's past activity to establish a baseline.
// Columns: trade_date, trader_id, account_id, symbol, side, quantity, price.
func TraderHistory(cfg Config) *Tool {
	cfg = cfg.withDefaults()
	lookback := cfg.LookbackDays
	return newTool(cfg, "trader_history", TraderHistoryFile,
		"Retrieve and interpret a trader's historical trades to establish their normal behaviour before the flagged trade.",
		"deviation from the trader's baseline: size, frequency, symbols traded and timing",
		[]Param{
			{Name: "trader_id", Kind: KindString, Description: "Trader identifier from the alert", Required: true},
			{Name: "trade_date", Kind: KindDate, Description: "Date of the flagged trade (YYYY-MM-DD)", Required: true},
			{Name: "symbol", Kind: KindString, Description: "Restrict to one instrument"},
			{Name: "lookback_days", Kind: KindDays, Description: "History window in days"},
		},
		func(t Table, args Args) Table {
			end := args.Date("trade_date")
			start := end.AddDate(0, 0, -args.Days("lookback_days", lookback))
			preds := []func(Row) bool{Equal("trader_id", args["trader_id"]), Within("trade_date", start, end)}
			if sym := args["symbol"]; sym != "" {
				preds = append(preds, Equal("symbol", sym))
			}
			return t.Filter(All(preds...))
		})
}

// RelationshipGraph explores links between traders and accounts.
// Columns: entity_a, entity_b, relationship, since.
func RelationshipGraph(cfg Config) *Tool {
	return newTool(cfg, "relationship_graph", RelationshipsFile,
		"Retrieve and interpret the known relationships (ownership, family, employment, shared addresses) around a trader or account.",
		"connections that could provide access to inside information or common beneficial ownership across accounts",
		[]Param{
			{Name: "entity_id", Kind: KindString, Description: "Trader or account identifier", Required: true},
			{Name: "depth", Kind: KindDays, Description: "Number of hops to follow (1 or 2)"},
		},
		func(t Table, args Args) Table {
			return neighbourhood(t, args["entity_id"], min(args.Days("depth", 1), 2))
		})
}

// MarketNews retrieves news around the trade date.
// Columns: date, symbol, headline, source.
func MarketNews(cfg Config) *Tool {
	return newTool(cfg, "market_news", MarketNewsFile,
		"Retrieve and interpret news and corporate announcements for an instrument around the trade date.",
		"whether material information was public at the time of the trade or only became public afterwards",
		windowParams(),
		windowSelector("date"))
}

// MarketData retrieves daily prices and volumes around the trade date.
// Columns: date, symbol, open, high, low, close, volume.
func MarketData(cfg Config) *Tool {
	return newTool(cfg, "market_data", MarketDataFile,
		"Retrieve and interpret daily price and volume data for an instrument around the trade date.",
		"abnormal price moves or volume spikes and whether the flagged trade changed beneficial ownership",
		windowParams(),
		windowSelector("date"))
}

func windowParams() []Param {
	return []Param{
		{Name: "symbol", Kind: KindString, Description: "Instrument symbol from the alert", Required: true},
		{Name: "trade_date", Kind: KindDate, Description: "Date of the flagged trade (YYYY-MM-DD)", Required: true},
		{Name: "window_days", Kind: KindDays, Description: "Days before and after the trade date"},
	}
}

func windowSelector(dateColumn string) selector {
	return func(t Table, args Args) Table {
		center := args.Date("trade_date")
		w := args.Days("window_days", defaultNewsWindow)
		from, to := center.AddDate(0, 0, -w), center.AddDate(0, 0, w)
		return t.Filter(All(Equal("symbol", args["symbol"]), Within(dateColumn, from, to)))
	}
}

// neighbourhood returns the relationship rows reachable from id in at most
// depth hops.
func neighbourhood(t Table, id string, depth int) Table {
	frontier := map[string]bool{strings.ToLower(id): true}
	seen := map[string]bool{}
	picked := map[int]bool{}
	for range depth {
		next := map[string]bool{}
		for i, r := range t.Rows {
			a, b := strings.ToLower(r["entity_a"]), strings.ToLower(r["entity_b"])
			if !frontier[a] && !frontier[b] {
				continue
			}
			picked[i] = true
			for _, e := range []string{a, b} {
				if !frontier[e] && !seen[e] {
					next[e] = true
				}
			}
		}
		for e := range frontier {
			seen[e] = true
		}
		frontier = next
	}
	out := Table{Header: t.Header}
	for i, r := range t.Rows {
		if picked[i] {
			out.Rows = append(out.Rows, r)
		}
	}
	return out
}

// AllTools returns the four evidence tools bound to cfg.
func AllTools(cfg Config) []tool.Tool {
	return []tool.Tool{TraderHistory(cfg), RelationshipGraph(cfg), MarketNews(cfg), MarketData(cfg)}
}

// Files lists every data file the tools read.
func Files() []string {
	return []string{TraderHistoryFile, RelationshipsFile, MarketNewsFile, MarketDataFile}
}
