// Package history records normalized price observations and exposes
// the read access the insight engine scans. The package owns no
// storage; appends go through the injected repository, which is
// responsible for transactional isolation under concurrent writers.
package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nimbly/receipts/internal/domain"
)

// ErrMissingPurchaseDate is returned only when the recorder was
// configured with RequireDate and the parser resolved no date.
var ErrMissingPurchaseDate = errors.New("missing purchase date")

// ObservationFilter narrows ListObservations. Zero values match
// everything.
type ObservationFilter struct {
	ProductKey domain.Key
	StoreKey   domain.Key
	Since      *civil.Date
	Until      *civil.Date
}

// ReceiptFilter narrows ListReceipts.
type ReceiptFilter struct {
	Since  *civil.Date
	Status domain.ParseStatus
}

// Repository is the durable store collaborator. Appends are atomic per
// call; existing observations are never mutated or deleted through this
// interface.
type Repository interface {
	AppendObservations(ctx context.Context, userID string, observations []domain.PriceObservation) error
	ListObservations(ctx context.Context, userID string, filter ObservationFilter) ([]domain.PriceObservation, error)
	InsertReceipt(ctx context.Context, record domain.ReceiptRecord) error
	ListReceipts(ctx context.Context, userID string, filter ReceiptFilter) ([]domain.ReceiptRecord, error)
}

// Recorder converts a parsed receipt plus its normalized keys into
// appended price observations.
type Recorder struct {
	repo        Repository
	clock       func() time.Time
	requireDate bool
}

type RecorderOption func(*Recorder)

// RequireDate makes recording fail with ErrMissingPurchaseDate when no
// purchase date was resolved upstream, for callers that need dated
// trend analysis.
func RequireDate() RecorderOption {
	return func(r *Recorder) { r.requireDate = true }
}

// WithClock injects the time source used when a receipt carries no
// purchase date and dates are not required.
func WithClock(clock func() time.Time) RecorderOption {
	return func(r *Recorder) { r.clock = clock }
}

func NewRecorder(repo Repository, opts ...RecorderOption) *Recorder {
	r := &Recorder{repo: repo, clock: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record emits one PriceObservation per priced, normalized line item
// and appends them to the user's history. Items without a usable price
// or key are skipped, never an error. itemKeys aligns index-for-index
// with parsed.LineItems.
func (r *Recorder) Record(
	ctx context.Context,
	userID, receiptID string,
	parsed domain.ParsedReceipt,
	storeKey domain.Key,
	itemKeys []domain.Key,
) ([]domain.PriceObservation, error) {
	if len(itemKeys) != len(parsed.LineItems) {
		return nil, fmt.Errorf("Record: %d item keys for %d line items", len(itemKeys), len(parsed.LineItems))
	}

	observedAt, err := r.observationDate(parsed)
	if err != nil {
		return nil, err
	}

	var observations []domain.PriceObservation
	for i, item := range parsed.LineItems {
		if itemKeys[i] == "" {
			continue
		}
		unitPrice, ok := usablePrice(item)
		if !ok {
			continue
		}
		observations = append(observations, domain.PriceObservation{
			ObservationID: uuid.NewString(),
			UserID:        userID,
			ProductKey:    itemKeys[i],
			StoreKey:      storeKey,
			UnitPrice:     unitPrice,
			ObservedAt:    observedAt,
			ReceiptID:     receiptID,
		})
	}

	if len(observations) == 0 {
		return nil, nil
	}
	if err := r.repo.AppendObservations(ctx, userID, observations); err != nil {
		return nil, fmt.Errorf("Record: appending observations: %w", err)
	}
	return observations, nil
}

func (r *Recorder) observationDate(parsed domain.ParsedReceipt) (civil.Date, error) {
	if parsed.PurchaseDate != nil {
		return *parsed.PurchaseDate, nil
	}
	if r.requireDate {
		return civil.Date{}, fmt.Errorf("Record: %w", ErrMissingPurchaseDate)
	}
	return civil.DateOf(r.clock()), nil
}

// usablePrice resolves the per-unit price of an item: the printed unit
// price when present, otherwise total divided by quantity.
func usablePrice(item domain.LineItem) (decimal.Decimal, bool) {
	if item.UnitPrice != nil {
		return *item.UnitPrice, true
	}
	if item.TotalPrice != nil && item.Quantity > 0 {
		qty := decimal.NewFromFloat(item.Quantity)
		return item.TotalPrice.Div(qty).Round(2), true
	}
	return decimal.Decimal{}, false
}
