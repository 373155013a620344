package signals

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/tenderscope/intel-cli/internal/model"
)

// rawSignal is one entry as the model emits it.
type rawSignal struct {
	Type       string   `json:"type"`
	Title      string   `json:"title"`
	Insight    string   `json:"insight"`
	Confidence float64  `json:"confidence"`
	Quote      string   `json:"quote"`
	Companies  []string `json:"companies"`
	Amounts    []string `json:"amounts"`
	Dates      []string `json:"dates"`
	People     []string `json:"people"`
}

// typeAliases folds model-invented labels onto the closed taxonomy.
var typeAliases = map[string]model.SignalType{
	"PROCUREMENT":     model.SignalProcurement,
	"TENDER":          model.SignalProcurement,
	"CONTRACT":        model.SignalProcurement,
	"CONTRACT_AWARD":  model.SignalProcurement,
	"STAFFING":        model.SignalStaffing,
	"HIRING":          model.SignalStaffing,
	"RECRUITMENT":     model.SignalStaffing,
	"RESTRUCTURE":     model.SignalStaffing,
	"STRATEGY":        model.SignalStrategy,
	"STRATEGIC_PLAN":  model.SignalStrategy,
	"TRANSFORMATION":  model.SignalStrategy,
	"FINANCIAL":       model.SignalFinancial,
	"FINANCE":         model.SignalFinancial,
	"BUDGET":          model.SignalFinancial,
	"BUDGET_APPROVAL": model.SignalFinancial,
	"INVESTMENT":      model.SignalFinancial,
	"PROJECTS":        model.SignalProjects,
	"PROJECT":         model.SignalProjects,
	"CAPITAL_PROJECT": model.SignalProjects,
	"INFRASTRUCTURE":  model.SignalProjects,
	"REGULATORY":      model.SignalRegulatory,
	"REGULATION":      model.SignalRegulatory,
	"COMPLIANCE":      model.SignalRegulatory,
}

// normalizeType maps a raw label to the taxonomy; ok is false for labels
// that fold onto nothing.
func normalizeType(raw string) (model.SignalType, bool) {
	key := strings.ToUpper(strings.TrimSpace(raw))
	key = strings.ReplaceAll(key, " ", "_")
	key = strings.ReplaceAll(key, "-", "_")
	t, ok := typeAliases[key]
	return t, ok
}

// ParseCompletion pulls the signal entries out of a model completion. The
// completion may wrap the JSON array in code fences or surrounding prose;
// only the first well-formed top-level array is read.
func ParseCompletion(completion string) ([]rawSignal, error) {
	arr, err := firstJSONArray(completion)
	if err != nil {
		return nil, err
	}
	var out []rawSignal
	if err := json.Unmarshal([]byte(arr), &out); err != nil {
		return nil, eris.Wrap(err, "signals: unmarshal completion array")
	}
	return out, nil
}

// firstJSONArray returns the first balanced top-level JSON array in s,
// tracking string literals so brackets inside quoted text do not count.
func firstJSONArray(s string) (string, error) {
	start := strings.IndexByte(s, '[')
	if start < 0 {
		return "", eris.New("signals: no JSON array in completion")
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return s[start : i+1], nil
			}
		}
	}
	return "", eris.New("signals: unterminated JSON array in completion")
}
