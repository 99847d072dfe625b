package groupcode

import (
	"regexp"
	"strings"
)

const (
	// DefaultThreshold is the minimum normalized similarity for a fuzzy match
	DefaultThreshold = 0.8
	// MinDigits is the shortest digit run accepted as a shipment code core
	MinDigits = 6
	// MaxDigits is the longest digit run accepted as a shipment code core
	MaxDigits = 8

	// Unknown marks a message whose subject carried no extractable code
	Unknown = "unknown"
)

var (
	// markerPattern matches a shipment marker followed by the 6-8 digit code,
	// e.g. "SH-123456", "Shipment #1234567", "shipment: 12345678"
	markerPattern = regexp.MustCompile(`(?i)\b(?:shipment|shpmt|sh)[\s#:._-]*([0-9]{6,8})\b`)

	// digitRunPattern finds the code core inside an already-stripped token
	digitRunPattern = regexp.MustCompile(`[0-9]{6,8}`)

	// separatorPattern strips the characters senders sprinkle into codes
	separatorPattern = regexp.MustCompile(`[\s._-]+`)

	anyDigit = regexp.MustCompile(`[0-9]`)
)

// Extract scans free text for a shipment marker followed by a 6-8 digit run
// and returns the digit run only. The second return is false when the text
// carries no code.
func Extract(text string) (string, bool) {
	if text == "" {
		return "", false
	}
	m := markerPattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// Normalize converts a raw code variant to its canonical form: uppercase,
// separators collapsed away, first 6-8 digit run extracted if the code is
// embedded in a longer token. Input without any digits is returned unchanged.
// Normalize is idempotent: Normalize(Normalize(c)) == Normalize(c).
func Normalize(code string) string {
	if !anyDigit.MatchString(code) {
		return code
	}
	stripped := separatorPattern.ReplaceAllString(strings.ToUpper(strings.TrimSpace(code)), "")
	if run := digitRunPattern.FindString(stripped); run != "" {
		return run
	}
	return stripped
}

// FuzzyMatch resolves a code against the set of already-known codes. An exact
// match short-circuits. Otherwise every known code is scored with normalized
// Levenshtein similarity and the best score at or above threshold wins; the
// first candidate to reach the best score takes precedence, so callers get
// deterministic results for a stable knownCodes order. The second return is
// false when nothing clears the threshold - absence of a match is never an
// error.
func FuzzyMatch(code string, knownCodes []string, threshold float64) (string, bool) {
	if code == "" {
		return "", false
	}
	for _, known := range knownCodes {
		if known == code {
			return known, true
		}
	}

	best := ""
	bestScore := 0.0
	for _, known := range knownCodes {
		score := Similarity(code, known)
		if score >= threshold && score > bestScore {
			best = known
			bestScore = score
		}
	}
	if best == "" {
		return "", false
	}
	return best, true
}

// Similarity returns 1 - distance/max(len) over the two codes, in [0, 1].
func Similarity(s1, s2 string) float64 {
	if s1 == s2 {
		return 1.0
	}
	longest := len([]rune(s1))
	if n := len([]rune(s2)); n > longest {
		longest = n
	}
	if longest == 0 {
		return 1.0
	}
	return 1.0 - float64(LevenshteinDistance(s1, s2))/float64(longest)
}

// LevenshteinDistance calculates the edit distance between two strings:
// the number of single-character insertions, deletions or substitutions
// required to change one into the other.
func LevenshteinDistance(s1, s2 string) int {
	if len(s1) == 0 {
		return len(s2)
	}
	if len(s2) == 0 {
		return len(s1)
	}

	r1 := []rune(s1)
	r2 := []rune(s2)
	m := len(r1)
	n := len(r2)

	d := make([][]int, m+1)
	for i := range d {
		d[i] = make([]int, n+1)
	}

	for i := 0; i <= m; i++ {
		d[i][0] = i
	}
	for j := 0; j <= n; j++ {
		d[0][j] = j
	}

	for i := 1; i <= m; i++ {
		for j := 1; j <= n; j++ {
			cost := 0
			if r1[i-1] != r2[j-1] {
				cost = 1
			}
			d[i][j] = min3(
				d[i-1][j]+1,      // deletion
				d[i][j-1]+1,      // insertion
				d[i-1][j-1]+cost, // substitution
			)
		}
	}

	return d[m][n]
}

// HasCodeShape reports whether a normalized code looks like a canonical
// shipment code (at least MinDigits digits).
func HasCodeShape(code string) bool {
	if code == "" || code == Unknown {
		return false
	}
	run := digitRunPattern.FindString(code)
	return len(run) >= MinDigits
}

func min3(a, b, c int) int {
	if a < b {
		if a < c {
			return a
		}
		return c
	}
	if b < c {
		return b
	}
	return c
}
