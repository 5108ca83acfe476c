// Package insights derives bounded, evidence-backed observations from
// a user's accumulated purchase history. Every emitted insight carries
// the observations that justify it; insufficient evidence yields no
// insight of that kind, never an error. All generated language is
// retrospective: the engine does not predict or recommend.
package insights

import (
	"context"
	"fmt"
	"sort"
	"time"

	"cloud.google.com/go/civil"

	"github.com/nimbly/receipts/internal/domain"
	"github.com/nimbly/receipts/internal/history"
)

// Thresholds are the evidentiary bars each insight kind must clear.
// The source behavior pinned the counts; deviation and share cutoffs
// are deliberate configuration, not inferred defaults.
type Thresholds struct {
	// price_trend
	MinTrendObservations int     // distinct price points per (product, store)
	TrendDeviationPct    float64 // |latest - trailing mean| / mean

	// purchase_frequency
	MinFrequencyPurchases int     // distinct purchase dates per product
	MinFrequencySpanDays  int     // window the dates must span
	MaxIntervalRelStdDev  float64 // regularity bar on inter-purchase intervals

	// common_purchase
	MinCommonPurchases int

	// store_pattern
	MinStoreReceipts    int
	StoreShareThreshold float64
}

var DefaultThresholds = Thresholds{
	MinTrendObservations:  3,
	TrendDeviationPct:     0.10,
	MinFrequencyPurchases: 3,
	MinFrequencySpanDays:  14,
	MaxIntervalRelStdDev:  0.5,
	MinCommonPurchases:    3,
	MinStoreReceipts:      5,
	StoreShareThreshold:   0.40,
}

// Snapshot is the read-only view of a user's history one generation
// pass works from. It may be stale by the time generation returns;
// that is acceptable by contract.
type Snapshot struct {
	Observations []domain.PriceObservation
	Receipts     []domain.ReceiptRecord
}

// Rule derives zero or more insights of one kind from a snapshot. Rules
// are pure: same snapshot and clock, same output. New kinds are added
// by appending a rule, without touching existing ones.
type Rule func(snap Snapshot, cfg Thresholds, now time.Time) []domain.Insight

// Engine composes the rules over a shared snapshot loaded from the
// repository.
type Engine struct {
	repo  history.Repository
	cfg   Thresholds
	clock func() time.Time
	rules []Rule
}

type EngineOption func(*Engine)

func WithThresholds(cfg Thresholds) EngineOption {
	return func(e *Engine) { e.cfg = cfg }
}

func WithClock(clock func() time.Time) EngineOption {
	return func(e *Engine) { e.clock = clock }
}

func NewEngine(repo history.Repository, opts ...EngineOption) *Engine {
	e := &Engine{
		repo:  repo,
		cfg:   DefaultThresholds,
		clock: time.Now,
		rules: []Rule{
			priceTrendRule,
			purchaseFrequencyRule,
			commonPurchaseRule,
			storePatternRule,
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Generate loads the user's history and runs every rule over it.
// Output ordering is deterministic: confidence descending, then most
// recent evidence date descending, then subject key, then kind.
func (e *Engine) Generate(ctx context.Context, userID string) ([]domain.Insight, error) {
	observations, err := e.repo.ListObservations(ctx, userID, history.ObservationFilter{})
	if err != nil {
		return nil, fmt.Errorf("Generate: listing observations: %w", err)
	}
	receipts, err := e.repo.ListReceipts(ctx, userID, history.ReceiptFilter{})
	if err != nil {
		return nil, fmt.Errorf("Generate: listing receipts: %w", err)
	}

	snap := Snapshot{Observations: observations, Receipts: receipts}
	return e.FromSnapshot(snap), nil
}

// FromSnapshot runs the rules over an already-loaded snapshot.
func (e *Engine) FromSnapshot(snap Snapshot) []domain.Insight {
	now := e.clock()

	var out []domain.Insight
	for _, rule := range e.rules {
		out = append(out, rule(snap, e.cfg, now)...)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if a, b := confidenceRank(out[i].Confidence), confidenceRank(out[j].Confidence); a != b {
			return a > b
		}
		di, dj := latestEvidenceDate(out[i]), latestEvidenceDate(out[j])
		if di != dj {
			return di.After(dj)
		}
		if out[i].SubjectKey != out[j].SubjectKey {
			return out[i].SubjectKey < out[j].SubjectKey
		}
		return out[i].Kind < out[j].Kind
	})
	return out
}

func confidenceRank(level domain.ConfidenceLevel) int {
	switch level {
	case domain.ConfidenceHigh:
		return 3
	case domain.ConfidenceMedium:
		return 2
	default:
		return 1
	}
}

func latestEvidenceDate(in domain.Insight) civil.Date {
	var latest civil.Date
	for _, obs := range in.Evidence {
		if obs.ObservedAt.After(latest) {
			latest = obs.ObservedAt
		}
	}
	return latest
}
