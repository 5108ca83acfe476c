// Package bigquery persists price observations and receipt records to
// BigQuery. Observations are append-only: the package exposes no update
// or delete operations, so re-parsing a receipt adds rows alongside the
// old ones instead of rewriting history.
package bigquery

import (
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/nimbly/receipts/internal/domain"
)

type ObservationRow struct {
	ObservationID string `bigquery:"observation_id"` // REQUIRED
	UserID        string `bigquery:"user_id"`        // REQUIRED

	ProductKey string `bigquery:"product_key"` // REQUIRED
	StoreKey   string `bigquery:"store_key"`   // NULLABLE

	UnitPrice *big.Rat `bigquery:"unit_price"` // REQUIRED NUMERIC

	ObservedAt civil.Date `bigquery:"observed_at"` // REQUIRED DATE
	ReceiptID  string     `bigquery:"receipt_id"`  // REQUIRED

	CreatedTS time.Time `bigquery:"created_ts"` // REQUIRED (default CURRENT_TIMESTAMP())
}

type ReceiptRow struct {
	ReceiptID string `bigquery:"receipt_id"` // REQUIRED
	UserID    string `bigquery:"user_id"`    // REQUIRED

	StoreKey string `bigquery:"store_key"` // NULLABLE

	PurchaseDate bigquery.NullDate `bigquery:"purchase_date"` // NULLABLE DATE

	TotalAmount *big.Rat `bigquery:"total_amount"` // NULLABLE NUMERIC

	Status string `bigquery:"status"` // REQUIRED

	UploadedTS time.Time `bigquery:"uploaded_ts"` // REQUIRED
}

func observationToRow(obs domain.PriceObservation) *ObservationRow {
	return &ObservationRow{
		ObservationID: obs.ObservationID,
		UserID:        obs.UserID,
		ProductKey:    string(obs.ProductKey),
		StoreKey:      string(obs.StoreKey),
		UnitPrice:     obs.UnitPrice.Rat(),
		ObservedAt:    obs.ObservedAt,
		ReceiptID:     obs.ReceiptID,
		CreatedTS:     time.Now(),
	}
}

func rowToObservation(row *ObservationRow) domain.PriceObservation {
	var price decimal.Decimal
	if row.UnitPrice != nil {
		price = decimal.NewFromBigRat(row.UnitPrice, 2)
	}
	return domain.PriceObservation{
		ObservationID: row.ObservationID,
		UserID:        row.UserID,
		ProductKey:    domain.Key(row.ProductKey),
		StoreKey:      domain.Key(row.StoreKey),
		UnitPrice:     price,
		ObservedAt:    row.ObservedAt,
		ReceiptID:     row.ReceiptID,
	}
}

func receiptToRow(rec domain.ReceiptRecord) *ReceiptRow {
	row := &ReceiptRow{
		ReceiptID:  rec.ReceiptID,
		UserID:     rec.UserID,
		StoreKey:   string(rec.StoreKey),
		Status:     string(rec.Status),
		UploadedTS: rec.UploadedAt,
	}
	if rec.PurchaseDate != nil {
		row.PurchaseDate = bigquery.NullDate{Date: *rec.PurchaseDate, Valid: true}
	}
	if rec.Total != nil {
		row.TotalAmount = rec.Total.Rat()
	}
	return row
}

func rowToReceipt(row *ReceiptRow) domain.ReceiptRecord {
	rec := domain.ReceiptRecord{
		ReceiptID:  row.ReceiptID,
		UserID:     row.UserID,
		StoreKey:   domain.Key(row.StoreKey),
		Status:     domain.ParseStatus(row.Status),
		UploadedAt: row.UploadedTS,
	}
	if row.PurchaseDate.Valid {
		d := row.PurchaseDate.Date
		rec.PurchaseDate = &d
	}
	if row.TotalAmount != nil {
		total := decimal.NewFromBigRat(row.TotalAmount, 2)
		rec.Total = &total
	}
	return rec
}
