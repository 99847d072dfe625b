package groupcode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
		ok   bool
	}{
		{"dash separated", "Re: SH-123456 customs cleared", "123456", true},
		{"hash marker", "Shipment #1234567 delayed at port", "1234567", true},
		{"colon marker", "shipment: 12345678 arrival notice", "12345678", true},
		{"lowercase marker", "update for sh 654321", "654321", true},
		{"no marker", "invoice 123456 attached", "", false},
		{"digits too short", "SH-12345 partial", "", false},
		{"digits too long", "SH-123456789", "", false},
		{"empty", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Extract(tt.text)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "123456", Normalize("sh-123456"))
	assert.Equal(t, "123456", Normalize("SH 123 456"))
	assert.Equal(t, "1234567", Normalize("order_1234567_copy"))
	assert.Equal(t, "no digits here", Normalize("no digits here"))
	assert.Equal(t, "ABC123", Normalize("abc-123"))
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{"sh-123456", "SH 123 456", "123456", "no digits", "abc-123", "ORDER#9876543"}
	for _, in := range inputs {
		once := Normalize(in)
		require.Equal(t, once, Normalize(once), "Normalize must be idempotent for %q", in)
	}
}

func TestFuzzyMatchExactShortCircuit(t *testing.T) {
	got, ok := FuzzyMatch("123456", []string{"999999", "123456"}, DefaultThreshold)
	require.True(t, ok)
	assert.Equal(t, "123456", got)
}

func TestFuzzyMatchThresholdBoundary(t *testing.T) {
	// distance 1 over length 6: similarity 0.833, at or above 0.8 -> match
	got, ok := FuzzyMatch("123456", []string{"123450"}, DefaultThreshold)
	require.True(t, ok)
	assert.Equal(t, "123450", got)

	// distance 3 over length 6: similarity 0.5 -> no match
	_, ok = FuzzyMatch("123456", []string{"123000"}, DefaultThreshold)
	assert.False(t, ok)

	// exactly at the threshold must match: distance 1 over length 5 = 0.8
	got, ok = FuzzyMatch("12345", []string{"12340"}, DefaultThreshold)
	require.True(t, ok)
	assert.Equal(t, "12340", got)
}

func TestFuzzyMatchStableTieBreak(t *testing.T) {
	// both candidates score identically; first in knownCodes order wins
	got, ok := FuzzyMatch("123456", []string{"123457", "123458"}, DefaultThreshold)
	require.True(t, ok)
	assert.Equal(t, "123457", got)
}

func TestFuzzyMatchEmptyInputs(t *testing.T) {
	_, ok := FuzzyMatch("", []string{"123456"}, DefaultThreshold)
	assert.False(t, ok)

	_, ok = FuzzyMatch("123456", nil, DefaultThreshold)
	assert.False(t, ok)
}

func TestLevenshteinDistance(t *testing.T) {
	assert.Equal(t, 0, LevenshteinDistance("123456", "123456"))
	assert.Equal(t, 1, LevenshteinDistance("123456", "123450"))
	assert.Equal(t, 3, LevenshteinDistance("123456", "123000"))
	assert.Equal(t, 6, LevenshteinDistance("", "123456"))
}

func TestSimilarity(t *testing.T) {
	assert.InDelta(t, 0.833, Similarity("123456", "123450"), 0.001)
	assert.InDelta(t, 0.5, Similarity("123456", "123000"), 0.001)
	assert.Equal(t, 1.0, Similarity("", ""))
}

func TestHasCodeShape(t *testing.T) {
	assert.True(t, HasCodeShape("123456"))
	assert.True(t, HasCodeShape("12345678"))
	assert.False(t, HasCodeShape("12345"))
	assert.False(t, HasCodeShape(Unknown))
	assert.False(t, HasCodeShape(""))
}
