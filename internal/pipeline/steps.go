package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/nimbly/receipts/internal/alias"
	"github.com/nimbly/receipts/internal/domain"
	"github.com/nimbly/receipts/internal/extract"
	"github.com/nimbly/receipts/internal/history"
	"github.com/nimbly/receipts/internal/normalize"
	"github.com/nimbly/receipts/internal/parse"
)

// ExtractTextStep turns the raw document into a text blob.
type ExtractTextStep struct {
	extractor *extract.Extractor
}

func (s *ExtractTextStep) Name() string { return "extract" }

func (s *ExtractTextStep) Execute(ctx context.Context, state *State) error {
	extracted, err := s.extractor.Extract(ctx, state.Document)
	if err != nil {
		return err
	}
	state.Extracted = extracted
	return nil
}

// ParseFieldsStep recovers structured fields from the extracted text.
type ParseFieldsStep struct {
	parser *parse.Parser
}

func (s *ParseFieldsStep) Name() string { return "parse" }

func (s *ParseFieldsStep) Execute(_ context.Context, state *State) error {
	parsed, err := s.parser.Parse(state.Extracted)
	if err != nil {
		return err
	}
	state.Parsed = parsed
	return nil
}

// NormalizeStep canonicalizes the store name and every line item name,
// then registers the resulting keys so future receipts can fuzzy-match
// against them.
type NormalizeStep struct {
	normalizer *normalize.Normalizer
	aliases    alias.Store
}

func (s *NormalizeStep) Name() string { return "normalize" }

func (s *NormalizeStep) Execute(ctx context.Context, state *State) error {
	storeKey, err := s.normalizer.Normalize(ctx, state.UserID, state.Parsed.StoreNameRaw, domain.EntityStore)
	if err != nil {
		return fmt.Errorf("normalizing store name: %w", err)
	}
	state.StoreKey = storeKey
	if storeKey != "" {
		if err := s.aliases.PutKnownKey(ctx, domain.EntityStore, state.UserID, storeKey); err != nil {
			return fmt.Errorf("registering store key: %w", err)
		}
	}

	state.ItemKeys = make([]domain.Key, len(state.Parsed.LineItems))
	for i, item := range state.Parsed.LineItems {
		key, err := s.normalizer.Normalize(ctx, state.UserID, item.RawName, domain.EntityProduct)
		if err != nil {
			return fmt.Errorf("normalizing item %d: %w", i, err)
		}
		state.ItemKeys[i] = key
		if key == "" {
			continue
		}
		if err := s.aliases.PutKnownKey(ctx, domain.EntityProduct, state.UserID, key); err != nil {
			return fmt.Errorf("registering product key: %w", err)
		}
	}
	return nil
}

// PersistReceiptStep stores the receipt-level record the insight
// engine's store-pattern rule reads.
type PersistReceiptStep struct {
	repo  history.Repository
	clock func() time.Time
}

func (s *PersistReceiptStep) Name() string { return "persist-receipt" }

func (s *PersistReceiptStep) Execute(ctx context.Context, state *State) error {
	record := domain.ReceiptRecord{
		ReceiptID:    state.ReceiptID,
		UserID:       state.UserID,
		StoreKey:     state.StoreKey,
		PurchaseDate: state.Parsed.PurchaseDate,
		Total:        state.Parsed.Total,
		Status:       state.Parsed.Status,
		UploadedAt:   s.clock(),
	}
	if err := s.repo.InsertReceipt(ctx, record); err != nil {
		return fmt.Errorf("inserting receipt record: %w", err)
	}
	return nil
}

// RecordHistoryStep appends one price observation per priced,
// normalized line item.
type RecordHistoryStep struct {
	recorder *history.Recorder
}

func (s *RecordHistoryStep) Name() string { return "record-history" }

func (s *RecordHistoryStep) Execute(ctx context.Context, state *State) error {
	observations, err := s.recorder.Record(ctx, state.UserID, state.ReceiptID, state.Parsed, state.StoreKey, state.ItemKeys)
	if err != nil {
		return err
	}
	state.Observations = observations
	return nil
}
