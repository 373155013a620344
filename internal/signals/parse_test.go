package signals

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tenderscope/intel-cli/internal/model"
)

func TestParseCompletion_PlainArray(t *testing.T) {
	raw, err := ParseCompletion(`[{"type": "PROCUREMENT", "title": "New framework", "insight": "A framework is planned.", "confidence": 0.8}]`)
	require.NoError(t, err)
	require.Len(t, raw, 1)
	assert.Equal(t, "New framework", raw[0].Title)
	assert.Equal(t, 0.8, raw[0].Confidence)
}

func TestParseCompletion_CodeFencesAndProse(t *testing.T) {
	completion := "Here are the signals I found:\n```json\n" +
		`[{"type": "FINANCIAL", "title": "Budget approved", "insight": "The 2026 budget was approved.", "confidence": 0.9}]` +
		"\n```\nLet me know if you need more detail."
	raw, err := ParseCompletion(completion)
	require.NoError(t, err)
	require.Len(t, raw, 1)
	assert.Equal(t, "Budget approved", raw[0].Title)
}

func TestParseCompletion_BracketsInsideStrings(t *testing.T) {
	raw, err := ParseCompletion(`[{"type": "PROJECTS", "title": "Phase [2] works", "insight": "Phase [2] of the works was signed off.", "confidence": 0.7}]`)
	require.NoError(t, err)
	require.Len(t, raw, 1)
	assert.Equal(t, "Phase [2] works", raw[0].Title)
}

func TestParseCompletion_NoArray(t *testing.T) {
	_, err := ParseCompletion("I could not find any signals in this text.")
	require.Error(t, err)
}

func TestParseCompletion_EmptyArray(t *testing.T) {
	raw, err := ParseCompletion("[]")
	require.NoError(t, err)
	assert.Empty(t, raw)
}

func TestNormalizeType(t *testing.T) {
	tests := []struct {
		in   string
		want model.SignalType
		ok   bool
	}{
		{"PROCUREMENT", model.SignalProcurement, true},
		{"procurement", model.SignalProcurement, true},
		{"Budget Approval", model.SignalFinancial, true},
		{"budget-approval", model.SignalFinancial, true},
		{"HIRING", model.SignalStaffing, true},
		{"CAPITAL_PROJECT", model.SignalProjects, true},
		{"COMPLIANCE", model.SignalRegulatory, true},
		{"GOSSIP", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := normalizeType(tt.in)
		assert.Equal(t, tt.ok, ok, "input %q", tt.in)
		if tt.ok {
			assert.Equal(t, tt.want, got, "input %q", tt.in)
		}
	}
}
