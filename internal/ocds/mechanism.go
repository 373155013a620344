package ocds

import (
	"regexp"
	"strings"

	"github.com/tenderscope/intel-cli/internal/model"
)

// Mechanism classification rules, evaluated in order with the first match
// winning. procurementMethodDetails is the most reliable signal; title
// patterns are the fallback. The DPS acronym match is case-sensitive and
// word-anchored so that e.g. "ADPS" in a title does not classify as a
// dynamic purchasing system.
var (
	reDPSAcronym   = regexp.MustCompile(`\bDPS\b`)
	reDPSPhrase    = regexp.MustCompile(`(?i)\bdynamic\s+purchasing\s+system\b`)
	reFrameworkAgr = regexp.MustCompile(`(?i)\bframework\s+agreement\b`)
	reFramework    = regexp.MustCompile(`(?i)\bframework\b`)
)

type mechanismRule struct {
	match  func(details, title string) bool
	result model.Mechanism
}

var mechanismRules = []mechanismRule{
	{
		match: func(details, _ string) bool {
			return strings.Contains(details, "call-off from a dynamic purchasing system")
		},
		result: model.MechanismCallOffDPS,
	},
	{
		match: func(details, _ string) bool {
			return strings.Contains(details, "call-off from a framework agreement")
		},
		result: model.MechanismCallOffFramework,
	},
	{
		match: func(_, title string) bool {
			return reDPSPhrase.MatchString(title) || reDPSAcronym.MatchString(title)
		},
		result: model.MechanismDPS,
	},
	{
		match: func(_, title string) bool {
			return reFrameworkAgr.MatchString(title)
		},
		result: model.MechanismFramework,
	},
	{
		match: func(_, title string) bool {
			return reFramework.MatchString(title)
		},
		result: model.MechanismFramework,
	},
}

// ClassifyMechanism determines the procurement vehicle for a notice from its
// procurementMethodDetails and title.
func ClassifyMechanism(methodDetails, title string) model.Mechanism {
	details := strings.ToLower(methodDetails)
	for _, rule := range mechanismRules {
		if rule.match(details, title) {
			return rule.result
		}
	}
	return model.MechanismStandard
}
