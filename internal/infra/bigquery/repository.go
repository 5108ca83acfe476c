package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"

	"github.com/nimbly/receipts/internal/domain"
	"github.com/nimbly/receipts/internal/history"
)

// Repository implements history.Repository on BigQuery. It holds a
// shared client to avoid creating a new connection for each operation.
type Repository struct {
	client    *bigquery.Client
	datasetID string
}

// NewRepository creates a Repository with its own BigQuery client.
// Close releases the client when the repository is no longer needed.
func NewRepository(ctx context.Context, projectID, datasetID string) (*Repository, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewRepository: creating client: %w", err)
	}
	return &Repository{client: client, datasetID: datasetID}, nil
}

// NewRepositoryWithClient creates a Repository around an existing
// client, which the caller remains responsible for closing.
func NewRepositoryWithClient(client *bigquery.Client, datasetID string) *Repository {
	return &Repository{client: client, datasetID: datasetID}
}

func (r *Repository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

func (r *Repository) AppendObservations(ctx context.Context, userID string, observations []domain.PriceObservation) error {
	rows := make([]*ObservationRow, 0, len(observations))
	for _, obs := range observations {
		if obs.UserID != userID {
			return fmt.Errorf("AppendObservations: observation %s belongs to another user", obs.ObservationID)
		}
		rows = append(rows, observationToRow(obs))
	}
	return InsertObservationsWithClient(ctx, r.client, r.datasetID, rows)
}

func (r *Repository) ListObservations(ctx context.Context, userID string, filter history.ObservationFilter) ([]domain.PriceObservation, error) {
	rows, err := QueryObservationsWithClient(ctx, r.client, r.datasetID, userID, filter)
	if err != nil {
		return nil, err
	}
	observations := make([]domain.PriceObservation, len(rows))
	for i, row := range rows {
		observations[i] = rowToObservation(row)
	}
	return observations, nil
}

func (r *Repository) InsertReceipt(ctx context.Context, record domain.ReceiptRecord) error {
	return InsertReceiptWithClient(ctx, r.client, r.datasetID, receiptToRow(record))
}

func (r *Repository) ListReceipts(ctx context.Context, userID string, filter history.ReceiptFilter) ([]domain.ReceiptRecord, error) {
	rows, err := QueryReceiptsWithClient(ctx, r.client, r.datasetID, userID, filter)
	if err != nil {
		return nil, err
	}
	records := make([]domain.ReceiptRecord, len(rows))
	for i, row := range rows {
		records[i] = rowToReceipt(row)
	}
	return records, nil
}

var _ history.Repository = (*Repository)(nil)
