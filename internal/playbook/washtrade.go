package playbook

import (
	"github.com/flemzord/surveil/internal/alert"
	"github.com/flemzord/surveil/internal/evidence"
)

const washSystem = `You are a senior market abuse investigator specialising in manipulative trading. ` +
	`You review alerts raised by an automated surveillance platform and decide whether each one ` +
	`reflects wash trading: transactions that create a misleading appearance of activity without a ` +
	`change in beneficial ownership. Use the tools to gather evidence before concluding, and never ` +
	`invent facts the evidence does not show.`

const washFraming = `Category: wash trading. Suspicious patterns include buy and sell orders in the same ` +
	`instrument at near-identical prices and times, counterparty accounts sharing an owner, address or ` +
	`controller with the trader, round-trip or circular flows, and volume spikes without a matching price ` +
	`move. Benign explanations include unrelated counterparties, hedging, market making obligations and ` +
	`index rebalancing.`

const washGuidance = `Weigh whether the two sides of the trade share beneficial ownership or control, ` +
	`whether the trades offset each other with no economic purpose, and whether the activity inflated ` +
	`reported volume or moved the price.`

// WashTrade is the category B playbook. Ownership links, trading history
// and market volume decide these cases; news is not consulted.
func WashTrade(deps Deps) *Playbook {
	return build(alert.WashTrade, deps, washSystem, washFraming, washGuidance,
		evidence.TraderHistory, evidence.RelationshipGraph, evidence.MarketData)
}
