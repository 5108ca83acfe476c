// Package pipeline wires the receipt stages together: extract text,
// parse fields, normalize names, record history. Each run is an
// independent unit of work; the stages themselves are pure
// transformations and all persistence happens through the injected
// collaborators.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nimbly/receipts/internal/alias"
	"github.com/nimbly/receipts/internal/domain"
	"github.com/nimbly/receipts/internal/extract"
	"github.com/nimbly/receipts/internal/history"
	"github.com/nimbly/receipts/internal/logger"
	"github.com/nimbly/receipts/internal/normalize"
	"github.com/nimbly/receipts/internal/parse"
)

// State holds the shared state across all pipeline steps for one
// receipt.
type State struct {
	UserID    string
	ReceiptID string
	Document  domain.RawDocument

	Extracted domain.ExtractedText
	Parsed    domain.ParsedReceipt

	StoreKey     domain.Key
	ItemKeys     []domain.Key
	Observations []domain.PriceObservation
}

// Step is a single stage in the receipt pipeline.
type Step interface {
	Name() string
	Execute(ctx context.Context, state *State) error
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []Step
}

func New(steps ...Step) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps sequentially. The first failing step aborts
// the run; the error carries the receipt id and stage name so the
// caller can log and decide between retry and a user-visible failure.
func (p *Pipeline) Execute(ctx context.Context, state *State) error {
	log := logger.FromContext(ctx)
	for _, step := range p.steps {
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline: receipt %s: stage %s: %w", state.ReceiptID, step.Name(), err)
		}
		log.Debug().
			Str("receipt_id", state.ReceiptID).
			Str("stage", step.Name()).
			Msg("Stage completed")
	}
	return nil
}

// Processor is the assembled receipt-processing pipeline plus the
// collaborators the steps need.
type Processor struct {
	extractor *extract.Extractor
	parser    *parse.Parser
	aliases   alias.Store
	repo      history.Repository
	clock     func() time.Time
}

type ProcessorOption func(*Processor)

func WithClock(clock func() time.Time) ProcessorOption {
	return func(p *Processor) { p.clock = clock }
}

func NewProcessor(
	extractor *extract.Extractor,
	parser *parse.Parser,
	aliases alias.Store,
	repo history.Repository,
	opts ...ProcessorOption,
) *Processor {
	p := &Processor{
		extractor: extractor,
		parser:    parser,
		aliases:   aliases,
		repo:      repo,
		clock:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ProcessReceipt runs one raw document through the full pipeline and
// returns the populated state. A new receipt id is minted per run.
func (p *Processor) ProcessReceipt(ctx context.Context, userID string, doc domain.RawDocument) (*State, error) {
	state := &State{
		UserID:    userID,
		ReceiptID: uuid.NewString(),
		Document:  doc,
	}

	pipe := New(
		&ExtractTextStep{extractor: p.extractor},
		&ParseFieldsStep{parser: p.parser},
		&NormalizeStep{normalizer: normalize.New(p.aliases), aliases: p.aliases},
		&PersistReceiptStep{repo: p.repo, clock: p.clock},
		&RecordHistoryStep{recorder: history.NewRecorder(p.repo, history.WithClock(p.clock))},
	)

	log := logger.FromContext(ctx)
	if err := pipe.Execute(ctx, state); err != nil {
		log.Error().
			Err(err).
			Str("user_id", userID).
			Str("receipt_id", state.ReceiptID).
			Msg("Receipt processing failed")
		return state, err
	}

	log.Info().
		Str("user_id", userID).
		Str("receipt_id", state.ReceiptID).
		Str("store", string(state.StoreKey)).
		Int("line_items", len(state.Parsed.LineItems)).
		Int("observations", len(state.Observations)).
		Float64("confidence", state.Parsed.ParseConfidence).
		Msg("Receipt processed")
	return state, nil
}
