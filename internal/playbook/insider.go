package playbook

import (
	"github.com/flemzord/surveil/internal/alert"
	"github.com/flemzord/surveil/internal/evidence"
)

const insiderSystem = `You are a senior market abuse investigator specialising in insider dealing. ` +
	`You review alerts raised by an automated surveillance platform and decide whether each one ` +
	`reflects trading on material non-public information. Use the tools to gather evidence before ` +
	`concluding, and never invent facts the evidence does not show.`

const insiderFraming = `Category: insider trading. Suspicious patterns include positions far larger than the ` +
	`trader's baseline, first-time trades in the instrument, trades placed shortly before price-sensitive ` +
	`announcements, profits realised soon after the news, and personal or professional links to issuers or ` +
	`deal teams. Benign explanations include pre-scheduled or systematic orders, sector-wide moves and ` +
	`publicly available information.`

const insiderGuidance = `Weigh how unusual the trade was against the trader's history, how close it was to ` +
	`the related announcement, whether the trader had a plausible route to the information, and whether ` +
	`public information already explained the move.`

// InsiderTrading is the category A playbook. It reads every evidence
// source; news timing is central to the case.
func InsiderTrading(deps Deps) *Playbook {
	return build(alert.InsiderTrading, deps, insiderSystem, insiderFraming, insiderGuidance,
		evidence.TraderHistory, evidence.RelationshipGraph, evidence.MarketNews, evidence.MarketData)
}
