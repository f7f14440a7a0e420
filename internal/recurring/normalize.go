// Package recurring detects recurring payment obligations in transaction
// streams. Detection runs in two stages: a three-pass grouping strategy
// partitions an account's transactions into candidate groups, then a
// pattern detector tests each group against candidate frequencies and
// scores the result.
package recurring

import (
	"strings"
)

// maxKeyLength bounds normalized descriptions used as group keys.
const maxKeyLength = 50

// domainSuffixes are stripped from descriptions before comparison, so
// "NETFLIX.COM" and "Netflix" normalize to the same key.
var domainSuffixes = []string{
	".com", ".co.uk", ".de", ".at", ".ch", ".fr", ".es", ".it", ".nl",
}

// strippedRunes are removed from descriptions: digits and the separator
// characters banks pepper into booking texts.
func isStrippedRune(r rune) bool {
	if r >= '0' && r <= '9' {
		return true
	}
	switch r {
	case '-', '.', '_', ':', '/':
		return true
	}
	return false
}

// NormalizeDescription canonicalizes a free-text booking description for
// fuzzy comparison: lower-case, domain suffixes and digit/separator noise
// removed, whitespace collapsed, truncated to 50 characters.
func NormalizeDescription(desc string) string {
	if strings.TrimSpace(desc) == "" {
		return "unknown"
	}

	desc = strings.ToLower(strings.TrimSpace(desc))

	for _, suffix := range domainSuffixes {
		desc = strings.ReplaceAll(desc, suffix, "")
	}

	var b strings.Builder
	b.Grow(len(desc))
	for _, r := range desc {
		if !isStrippedRune(r) {
			b.WriteRune(r)
		}
	}

	desc = strings.Join(strings.Fields(b.String()), " ")
	if desc == "" {
		return "unknown"
	}

	if len(desc) > maxKeyLength {
		desc = desc[:maxKeyLength]
	}
	return desc
}

// normalizeIdentity canonicalizes bank-supplied identity fields (partner
// name, IBAN, payment method, card brand) for exact-key grouping.
func normalizeIdentity(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// wordOverlap returns |A∩B| / max(|A|, |B|) over whitespace-tokenized words.
func wordOverlap(a, b string) float64 {
	wordsA := strings.Fields(a)
	wordsB := strings.Fields(b)
	if len(wordsA) == 0 || len(wordsB) == 0 {
		return 0
	}

	setA := make(map[string]struct{}, len(wordsA))
	for _, w := range wordsA {
		setA[w] = struct{}{}
	}
	setB := make(map[string]struct{}, len(wordsB))
	for _, w := range wordsB {
		setB[w] = struct{}{}
	}

	common := 0
	for w := range setA {
		if _, ok := setB[w]; ok {
			common++
		}
	}

	larger := len(setA)
	if len(setB) > larger {
		larger = len(setB)
	}
	return float64(common) / float64(larger)
}

// textsMatch reports whether two normalized strings plausibly name the
// same counterparty: equal, one contains the other, or their word
// overlap meets the threshold.
func textsMatch(a, b string, overlapThreshold float64) bool {
	if a == b {
		return true
	}
	if a == "" || b == "" {
		return false
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return true
	}
	return wordOverlap(a, b) >= overlapThreshold
}

// merchantsMatch compares merchant names with the stricter 70% overlap
// used by pass 2.
func merchantsMatch(a, b string) bool {
	return textsMatch(normalizeIdentity(a), normalizeIdentity(b), 0.70)
}

// descriptionsMatch compares normalized descriptions with the looser 50%
// overlap used by the pass-3 fallback.
func descriptionsMatch(a, b string) bool {
	return textsMatch(a, b, 0.50)
}
