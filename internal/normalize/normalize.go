// Package normalize canonicalizes raw store and product names into
// stable keys for cross-receipt matching. Normalization is
// deterministic and idempotent: normalizing an already-normalized key
// returns it unchanged.
package normalize

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/nimbly/receipts/internal/domain"
)

// ErrAmbiguousMatch is returned in strict mode when fuzzy matching
// finds multiple near-equal candidates that all sit below the
// acceptance threshold. Outside strict mode the situation resolves to a
// new canonical key instead.
var ErrAmbiguousMatch = errors.New("ambiguous fuzzy match")

const (
	// SimilarityThreshold is the minimum Levenshtein similarity for a
	// fuzzy match against a previously seen key. Raising it trades
	// recall for precision in cross-receipt matching; the tradeoff is
	// pinned by tests, not silently tuned.
	SimilarityThreshold = 0.84

	// ambiguityEpsilon is how close two sub-threshold candidates must
	// score to count as near-equal.
	ambiguityEpsilon = 0.02

	// ambiguityFloor is the minimum similarity before a sub-threshold
	// cluster is considered ambiguous at all; anything weaker is just a
	// new name.
	ambiguityFloor = 0.6
)

// AliasResolver maps known raw variants to canonical keys and exposes
// the canonical keys already seen for a user, for fuzzy matching. The
// backing dictionary is updatable externally; the normalizer only
// reads.
type AliasResolver interface {
	ResolveAlias(ctx context.Context, raw string, kind domain.EntityKind) (domain.Key, bool, error)
	KnownKeys(ctx context.Context, kind domain.EntityKind, userID string) ([]domain.Key, error)
}

// Normalizer is a pure transformation except for the injected resolver.
type Normalizer struct {
	resolver  AliasResolver
	threshold float64
	strict    bool
}

type Option func(*Normalizer)

// Strict makes ambiguous fuzzy matches an error instead of a new key.
func Strict() Option {
	return func(n *Normalizer) { n.strict = true }
}

// WithThreshold overrides the fuzzy acceptance threshold.
func WithThreshold(t float64) Option {
	return func(n *Normalizer) { n.threshold = t }
}

func New(resolver AliasResolver, opts ...Option) *Normalizer {
	n := &Normalizer{resolver: resolver, threshold: SimilarityThreshold}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize canonicalizes a raw name: clean, alias lookup, fuzzy match
// against the user's known keys for the kind, else the cleaned string
// becomes a new canonical key.
func (n *Normalizer) Normalize(ctx context.Context, userID, raw string, kind domain.EntityKind) (domain.Key, error) {
	cleaned := Clean(raw)
	if cleaned == "" {
		return "", nil
	}

	if key, ok, err := n.resolver.ResolveAlias(ctx, cleaned, kind); err != nil {
		return "", fmt.Errorf("Normalize: alias lookup: %w", err)
	} else if ok {
		return key, nil
	}

	known, err := n.resolver.KnownKeys(ctx, kind, userID)
	if err != nil {
		return "", fmt.Errorf("Normalize: listing known keys: %w", err)
	}
	// Deterministic candidate order regardless of resolver iteration.
	sort.Slice(known, func(i, j int) bool { return known[i] < known[j] })

	best, second := domain.Key(""), 0.0
	bestScore := 0.0
	for _, key := range known {
		score := similarity(cleaned, string(key))
		if score > bestScore {
			second = bestScore
			best, bestScore = key, score
		} else if score > second {
			second = score
		}
	}

	if bestScore >= n.threshold {
		return best, nil
	}

	if n.strict && bestScore >= ambiguityFloor && bestScore-second <= ambiguityEpsilon && second > 0 {
		return "", fmt.Errorf("Normalize: %q scored %.2f vs %.2f for nearest keys: %w",
			cleaned, bestScore, second, ErrAmbiguousMatch)
	}

	return domain.Key(cleaned), nil
}

// Clean trims and collapses whitespace, lowercases, and strips
// punctuation that carries no identity. Hyphens between alphanumerics
// survive (product sizes like "2-pack"); everything else punctuation-
// like becomes a separator.
func Clean(raw string) string {
	lower := strings.ToLower(strings.TrimSpace(raw))
	runes := []rune(lower)

	var b strings.Builder
	for i, r := range runes {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteByte(' ')
		case r == '-' && i > 0 && i < len(runes)-1 &&
			isAlnum(runes[i-1]) && isAlnum(runes[i+1]):
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
	}

	return strings.Join(strings.Fields(b.String()), " ")
}

func isAlnum(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// similarity converts Levenshtein edit distance into a [0,1] ratio.
func similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	longest := len([]rune(a))
	if l := len([]rune(b)); l > longest {
		longest = l
	}
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein(a, b))/float64(longest)
}

// levenshtein computes the edit distance between a and b using a
// two-row dynamic program.
func levenshtein(a, b string) int {
	ar, br := []rune(a), []rune(b)
	if len(ar) == 0 {
		return len(br)
	}
	if len(br) == 0 {
		return len(ar)
	}

	prev := make([]int, len(br)+1)
	curr := make([]int, len(br)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ar); i++ {
		curr[0] = i
		for j := 1; j <= len(br); j++ {
			cost := 1
			if ar[i-1] == br[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(br)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
