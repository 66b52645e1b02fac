package geocoding

import (
	"regexp"
	"strings"
)

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	unitRe       = regexp.MustCompile(`(?i)[,\s]+(?:(?:apt|apartment|unit|ste|suite)\b\.?|#)\s*#?\s*[\w-]+`)
	zipPlus4Re   = regexp.MustCompile(`\b(\d{5})-\d{4}\b`)
	punctRe      = regexp.MustCompile(`[.,;]+`)
)

// Variants returns the queries to try for address, most specific first,
// without duplicates. The first variant is the trimmed original.
func Variants(address string) []string {
	base := collapse(address)
	if base == "" {
		return nil
	}

	noUnit := collapse(unitRe.ReplaceAllString(base, ""))
	zip5 := collapse(zipPlus4Re.ReplaceAllString(noUnit, "$1"))
	plain := collapse(punctRe.ReplaceAllString(zip5, " "))

	seen := make(map[string]bool, 4)
	var out []string
	for _, v := range []string{base, noUnit, zip5, plain} {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

func collapse(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}
