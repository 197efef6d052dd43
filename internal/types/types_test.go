package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSeverity(t *testing.T) {
	for in, want := range map[string]Severity{
		"LOW": SevLow, "info": SevLow, "Medium": SevMed, "warn": SevMed,
		"HIGH": SevHigh, "error": SevHigh, " critical ": SevCritical,
	} {
		got, err := ParseSeverity(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseSeverity("fatal")
	assert.Error(t, err)
}

func TestSeverityRank(t *testing.T) {
	assert.Less(t, SevLow.Rank(), SevMed.Rank())
	assert.Less(t, SevHigh.Rank(), SevCritical.Rank())
	assert.Zero(t, Severity("bogus").Rank())
}

func TestFingerprint_IgnoresPosition(t *testing.T) {
	a := Finding{RuleID: "r", Path: "p", Line: 1, Column: 2, Message: "m", Snippet: " x "}
	b := a
	b.Line, b.Column, b.Snippet = 40, 9, "x"
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	b.Path = "q"
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
	assert.True(t, Finding{}.FileLevel())
}
