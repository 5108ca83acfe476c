package bigquery

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/nimbly/receipts/internal/history"
)

const observationsTable = "price_observations"

// InsertObservationsWithClient streams a batch of ObservationRow into
// <dataset>.price_observations using the provided BigQuery client. The
// streaming inserter only appends, which is what keeps history
// immutable at the storage layer.
func InsertObservationsWithClient(ctx context.Context, client *bigquery.Client, datasetID string, rows []*ObservationRow) error {
	if len(rows) == 0 {
		return nil
	}

	inserter := client.Dataset(datasetID).Table(observationsTable).Inserter()
	if err := inserter.Put(ctx, rows); err != nil {
		return fmt.Errorf("InsertObservations: inserting rows: %w", err)
	}
	return nil
}

// QueryObservationsWithClient reads a user's observations, optionally
// narrowed by product, store and date range. Results come back ordered
// by observation date so the insight rules see chronological input.
func QueryObservationsWithClient(ctx context.Context, client *bigquery.Client, datasetID, userID string, filter history.ObservationFilter) ([]*ObservationRow, error) {
	var (
		conditions = []string{"user_id = @user_id"}
		params     = []bigquery.QueryParameter{{Name: "user_id", Value: userID}}
	)
	if filter.ProductKey != "" {
		conditions = append(conditions, "product_key = @product_key")
		params = append(params, bigquery.QueryParameter{Name: "product_key", Value: string(filter.ProductKey)})
	}
	if filter.StoreKey != "" {
		conditions = append(conditions, "store_key = @store_key")
		params = append(params, bigquery.QueryParameter{Name: "store_key", Value: string(filter.StoreKey)})
	}
	if filter.Since != nil {
		conditions = append(conditions, "observed_at >= @since")
		params = append(params, bigquery.QueryParameter{Name: "since", Value: filter.Since.String()})
	}
	if filter.Until != nil {
		conditions = append(conditions, "observed_at <= @until")
		params = append(params, bigquery.QueryParameter{Name: "until", Value: filter.Until.String()})
	}

	q := client.Query(fmt.Sprintf(`
		SELECT
			observation_id,
			user_id,
			product_key,
			store_key,
			unit_price,
			observed_at,
			receipt_id,
			created_ts
		FROM %s.%s
		WHERE %s
		ORDER BY observed_at, receipt_id, observation_id
	`, datasetID, observationsTable, strings.Join(conditions, "\n\t\t  AND ")))
	q.Parameters = params

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("QueryObservations: query read: %w", err)
	}

	var rows []*ObservationRow
	for {
		var r ObservationRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("QueryObservations: iter next: %w", err)
		}
		rows = append(rows, &r)
	}
	return rows, nil
}
