// Package normalize canonicalizes scraped registration text for identity
// matching and cache keying. The same normalization feeds both the scrape
// cache and the parent-project resolver, so the two layers can never
// disagree about what counts as "the same" value.
package normalize

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/propdata/rera-ingest/internal/model"
)

// punctReplacer strips the punctuation portals are inconsistent about.
// NBSP shows up constantly in scraped HTML; it folds to a regular space
// before the collapse pass.
var punctReplacer = strings.NewReplacer(
	".", "",
	",", "",
	"-", "",
	"'", "",
	" ", " ",
)

var spaceRe = regexp.MustCompile(`\s+`)

// Key standardizes a scraped value for exact matching by:
//  1. Trimming whitespace
//  2. Unicode NFC folding
//  3. Converting to uppercase
//  4. Stripping periods, commas, hyphens, and apostrophes
//  5. Collapsing whitespace runs into single spaces
//
// Key is total: any input yields a deterministic result, empty in → empty
// out, never an error.
func Key(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	s = norm.NFC.String(s)
	s = strings.ToUpper(s)
	s = punctReplacer.Replace(s)
	s = spaceRe.ReplaceAllString(s, " ")

	return strings.TrimSpace(s)
}

// IdentityKey builds the normalized triple that decides parent-project
// identity. Empty components participate as empty strings.
func IdentityKey(name, address, promoter string) model.IdentityTriple {
	return model.IdentityTriple{
		Name:     Key(name),
		Address:  Key(address),
		Promoter: Key(promoter),
	}
}

// CacheKey builds the scrape-cache key for a registration,
// "<STATE>:<REGNO>" with both parts normalized. Registration numbers keep
// their meaning under Key because portals vary hyphenation and spacing of
// the same number between page versions.
func CacheKey(stateCode, registrationNo string) string {
	return Key(stateCode) + ":" + Key(registrationNo)
}
