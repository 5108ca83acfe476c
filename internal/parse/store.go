package parse

import (
	"regexp"
	"strings"
	"unicode"
)

// storeRule is one entry in the ordered store-name rule list. The first
// rule that matches wins; rule order is a contract, not an
// implementation detail, because it pins the confidence a given text
// reproduces on every re-parse.
type storeRule struct {
	name       string
	confidence float64
	match      func(lines []string) (string, bool)
}

// knownChains lists retail chains matched exactly (case-insensitive)
// against the receipt header. Exact chain hits score highest.
var knownChains = []string{
	"WALMART",
	"WALMART SUPERCENTER",
	"TARGET",
	"COSTCO",
	"COSTCO WHOLESALE",
	"WHOLE FOODS MARKET",
	"TRADER JOE'S",
	"SAFEWAY",
	"KROGER",
	"ALDI",
	"CVS",
	"CVS PHARMACY",
	"WALGREENS",
	"PUBLIX",
	"LIDL",
	"TESCO",
	"SAINSBURY'S",
}

var storeRules = []storeRule{
	{
		name:       "known-chain-exact",
		confidence: 0.95,
		match: func(lines []string) (string, bool) {
			limit := len(lines)
			if limit > 5 {
				limit = 5
			}
			for _, line := range lines[:limit] {
				for _, chain := range knownChains {
					if strings.EqualFold(strings.TrimSpace(line), chain) {
						return line, true
					}
				}
			}
			return "", false
		},
	},
	{
		name:       "heading-heuristic",
		confidence: 0.6,
		match: func(lines []string) (string, bool) {
			for _, line := range lines {
				// Store names carry letters; bare numbers are OCR
				// noise or queue counters, never a heading.
				if !hasLetter(line) {
					continue
				}
				if looksLikeDate(line) || looksLikeAmount(line) || looksLikeAddress(line) {
					continue
				}
				return line, true
			}
			return "", false
		},
	},
}

// extractStoreName runs the ordered rule list; first match wins.
func extractStoreName(lines []string) (string, float64) {
	if len(lines) == 0 {
		return "", 0
	}
	for _, rule := range storeRules {
		if name, ok := rule.match(lines); ok {
			return name, rule.confidence
		}
	}
	return "", 0
}

var (
	dateLikeRe    = regexp.MustCompile(`\d{1,4}[-/]\d{1,2}[-/]\d{1,4}`)
	amountLikeRe  = regexp.MustCompile(`^[^a-zA-Z]*\d+\.\d{2}[^a-zA-Z]*$`)
	addressLikeRe = regexp.MustCompile(`(?i)^\d+\s+\S+|^(tel|phone|fax)\b|\d{5}(-\d{4})?$`)
)

func looksLikeDate(line string) bool    { return dateLikeRe.MatchString(line) }
func looksLikeAmount(line string) bool  { return amountLikeRe.MatchString(line) }
func looksLikeAddress(line string) bool { return addressLikeRe.MatchString(line) }

func hasLetter(line string) bool { return strings.ContainsFunc(line, unicode.IsLetter) }
