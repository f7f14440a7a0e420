package recurring

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeDescription(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "lowercases and strips domain suffix",
			input: "NETFLIX.COM",
			want:  "netflix",
		},
		{
			name:  "strips digits and separators",
			input: "PayPal *Spotify 4029357733",
			want:  "paypal *spotify",
		},
		{
			name:  "collapses whitespace",
			input: "  Rent   Payment  ",
			want:  "rent payment",
		},
		{
			name:  "empty input",
			input: "   ",
			want:  "unknown",
		},
		{
			name:  "digits only",
			input: "20240101-4711",
			want:  "unknown",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeDescription(tt.input))
		})
	}
}

func TestNormalizeDescription_TruncatesLongKeys(t *testing.T) {
	long := "a very long booking description that banks love to produce endlessly"
	got := NormalizeDescription(long)
	assert.LessOrEqual(t, len(got), maxKeyLength)
}

func TestMerchantsMatch(t *testing.T) {
	tests := []struct {
		name string
		a    string
		b    string
		want bool
	}{
		{"exact", "Amazon", "amazon", true},
		{"containment", "Amazon Marketplace", "Amazon", true},
		{"high overlap", "Amazon Prime Video", "Amazon Prime Music", false},
		{"two of three words", "Rewe City Berlin", "Rewe City Hamburg", false},
		{"three of four words", "Edeka Markt Nord GmbH", "Edeka Markt Sued GmbH", true},
		{"unrelated", "Netflix", "Spotify", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, merchantsMatch(tt.a, tt.b))
		})
	}
}

func TestDescriptionsMatch_LooserThreshold(t *testing.T) {
	// 2 of 3 words overlap: 0.67 passes the 50% description threshold
	// but not the 70% merchant threshold.
	a := NormalizeDescription("Miete Wohnung Januar")
	b := NormalizeDescription("Miete Wohnung Februar")
	assert.True(t, descriptionsMatch(a, b))
	assert.False(t, merchantsMatch("Miete Wohnung Januar", "Miete Wohnung Februar"))
}

func TestWordOverlap(t *testing.T) {
	assert.InDelta(t, 0.5, wordOverlap("a b", "a c"), 0.001)
	assert.InDelta(t, 1.0, wordOverlap("a b", "b a"), 0.001)
	assert.Zero(t, wordOverlap("", "a"))
}
