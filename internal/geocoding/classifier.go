package geocoding

import (
	"regexp"
	"strings"

	"trip-planner/internal/models"
)

var (
	zipRe          = regexp.MustCompile(`\b\d{5}(?:-\d{4})?\b`)
	stateCodeRe    = regexp.MustCompile(`\b[A-Z]{2}\b`)
	stateTailRe    = regexp.MustCompile(`\b([A-Z]{2})\s*(?:\d{5}(?:-\d{4})?)?\s*$`)
	leadingNumRe   = regexp.MustCompile(`^\d+[A-Za-z]?\b`)
	streetWordRe   = regexp.MustCompile(`[A-Za-z]{2,}`)
	corpusMajority = 0.5
)

var stateCodes = map[string]bool{
	"AL": true, "AK": true, "AZ": true, "AR": true, "CA": true, "CO": true, "CT": true, "DE": true,
	"DC": true, "FL": true, "GA": true, "HI": true, "ID": true, "IL": true, "IN": true, "IA": true,
	"KS": true, "KY": true, "LA": true, "ME": true, "MD": true, "MA": true, "MI": true, "MN": true,
	"MS": true, "MO": true, "MT": true, "NE": true, "NV": true, "NH": true, "NJ": true, "NM": true,
	"NY": true, "NC": true, "ND": true, "OH": true, "OK": true, "OR": true, "PA": true, "RI": true,
	"SC": true, "SD": true, "TN": true, "TX": true, "UT": true, "VT": true, "VA": true, "WA": true,
	"WV": true, "WI": true, "WY": true, "PR": true,
}

// Classifier labels addresses that failed to geocode. The sibling corpus decides
// whether a missing state or ZIP is unusual enough to be the likely cause.
type Classifier struct {
	stateShare float64
	zipShare   float64
}

// NewClassifier measures how many corpus addresses carry a state and a ZIP.
func NewClassifier(corpus []string) *Classifier {
	var withState, withZip, total int
	for _, a := range corpus {
		if strings.TrimSpace(a) == "" {
			continue
		}
		total++
		if hasState(a) {
			withState++
		}
		if hasZip(a) {
			withZip++
		}
	}

	c := &Classifier{}
	if total > 0 {
		c.stateShare = float64(withState) / float64(total)
		c.zipShare = float64(withZip) / float64(total)
	}
	return c
}

// ClassifyFailure is a one-shot NewClassifier(corpus).Classify(address).
func ClassifyFailure(address string, corpus []string) models.FailureReason {
	return NewClassifier(corpus).Classify(address)
}

// Classify is best-effort and does no I/O.
func (c *Classifier) Classify(address string) models.FailureReason {
	a := collapse(address)
	if a == "" {
		return models.ReasonEmpty
	}

	loc := leadingNumRe.FindStringIndex(a)
	if loc == nil {
		return models.ReasonNoLeadingNumber
	}

	street := a[loc[1]:]
	if i := strings.Index(street, ","); i >= 0 {
		street = street[:i]
	}
	if !streetWordRe.MatchString(street) {
		return models.ReasonIncompleteStreet
	}

	if c.stateShare > corpusMajority && !hasState(a) {
		return models.ReasonMissingState
	}
	if c.zipShare > corpusMajority && !hasZip(a) {
		return models.ReasonMissingZip
	}

	return models.ReasonNotFound
}

func hasState(address string) bool {
	rest := strings.TrimSpace(leadingNumRe.ReplaceAllString(collapse(address), ""))
	// Only look past the street line so "N" or "SW" style prefixes don't count.
	i := strings.Index(rest, ",")
	if i < 0 {
		// Without a comma the state can only be the trailing code, before an optional ZIP.
		m := stateTailRe.FindStringSubmatch(rest)
		return m != nil && stateCodes[m[1]]
	}
	rest = rest[i+1:]
	for _, m := range stateCodeRe.FindAllString(rest, -1) {
		if stateCodes[m] {
			return true
		}
	}
	return false
}

func hasZip(address string) bool {
	rest := leadingNumRe.ReplaceAllString(collapse(address), "")
	return zipRe.MatchString(rest)
}
