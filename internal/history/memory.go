package history

import (
	"context"
	"sort"
	"sync"

	"github.com/nimbly/receipts/internal/domain"
)

// MemoryRepository is an in-memory Repository, safe for concurrent use.
// It backs one-shot runs and tests; state is lost on exit.
type MemoryRepository struct {
	mu           sync.RWMutex
	observations map[string][]domain.PriceObservation
	receipts     map[string][]domain.ReceiptRecord
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		observations: make(map[string][]domain.PriceObservation),
		receipts:     make(map[string][]domain.ReceiptRecord),
	}
}

func (m *MemoryRepository) AppendObservations(_ context.Context, userID string, observations []domain.PriceObservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observations[userID] = append(m.observations[userID], observations...)
	return nil
}

func (m *MemoryRepository) ListObservations(_ context.Context, userID string, filter ObservationFilter) ([]domain.PriceObservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []domain.PriceObservation
	for _, obs := range m.observations[userID] {
		if filter.ProductKey != "" && obs.ProductKey != filter.ProductKey {
			continue
		}
		if filter.StoreKey != "" && obs.StoreKey != filter.StoreKey {
			continue
		}
		if filter.Since != nil && obs.ObservedAt.Before(*filter.Since) {
			continue
		}
		if filter.Until != nil && filter.Until.Before(obs.ObservedAt) {
			continue
		}
		out = append(out, obs)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].ObservedAt != out[j].ObservedAt {
			return out[i].ObservedAt.Before(out[j].ObservedAt)
		}
		if out[i].ReceiptID != out[j].ReceiptID {
			return out[i].ReceiptID < out[j].ReceiptID
		}
		return out[i].ObservationID < out[j].ObservationID
	})
	return out, nil
}

func (m *MemoryRepository) InsertReceipt(_ context.Context, record domain.ReceiptRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.receipts[record.UserID] = append(m.receipts[record.UserID], record)
	return nil
}

func (m *MemoryRepository) ListReceipts(_ context.Context, userID string, filter ReceiptFilter) ([]domain.ReceiptRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []domain.ReceiptRecord
	for _, rec := range m.receipts[userID] {
		if filter.Status != "" && rec.Status != filter.Status {
			continue
		}
		if filter.Since != nil && (rec.PurchaseDate == nil || rec.PurchaseDate.Before(*filter.Since)) {
			continue
		}
		out = append(out, rec)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].UploadedAt.Equal(out[j].UploadedAt) {
			return out[i].UploadedAt.Before(out[j].UploadedAt)
		}
		return out[i].ReceiptID < out[j].ReceiptID
	})
	return out, nil
}

var _ Repository = (*MemoryRepository)(nil)
