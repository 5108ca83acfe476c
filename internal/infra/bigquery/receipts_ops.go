package bigquery

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/nimbly/receipts/internal/history"
)

const receiptsTable = "receipts"

// InsertReceiptWithClient streams one receipt record into
// <dataset>.receipts using the provided BigQuery client.
func InsertReceiptWithClient(ctx context.Context, client *bigquery.Client, datasetID string, row *ReceiptRow) error {
	inserter := client.Dataset(datasetID).Table(receiptsTable).Inserter()
	if err := inserter.Put(ctx, row); err != nil {
		return fmt.Errorf("InsertReceipt: inserting row: %w", err)
	}
	return nil
}

// QueryReceiptsWithClient reads a user's receipt records, optionally
// narrowed by status and upload date.
func QueryReceiptsWithClient(ctx context.Context, client *bigquery.Client, datasetID, userID string, filter history.ReceiptFilter) ([]*ReceiptRow, error) {
	var (
		conditions = []string{"user_id = @user_id"}
		params     = []bigquery.QueryParameter{{Name: "user_id", Value: userID}}
	)
	if filter.Status != "" {
		conditions = append(conditions, "status = @status")
		params = append(params, bigquery.QueryParameter{Name: "status", Value: string(filter.Status)})
	}
	if filter.Since != nil {
		conditions = append(conditions, "purchase_date >= @since")
		params = append(params, bigquery.QueryParameter{Name: "since", Value: filter.Since.String()})
	}

	q := client.Query(fmt.Sprintf(`
		SELECT
			receipt_id,
			user_id,
			store_key,
			purchase_date,
			total_amount,
			status,
			uploaded_ts
		FROM %s.%s
		WHERE %s
		ORDER BY uploaded_ts, receipt_id
	`, datasetID, receiptsTable, strings.Join(conditions, "\n\t\t  AND ")))
	q.Parameters = params

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("QueryReceipts: query read: %w", err)
	}

	var rows []*ReceiptRow
	for {
		var r ReceiptRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("QueryReceipts: iter next: %w", err)
		}
		rows = append(rows, &r)
	}
	return rows, nil
}
