package domain

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// MediaKind is the declared media type of an uploaded document.
type MediaKind string

const (
	MediaKindImage MediaKind = "image"
	MediaKindPDF   MediaKind = "pdf"
	MediaKindText  MediaKind = "text"
)

// RawDocument is an uploaded receipt as the caller handed it to us.
// The bytes are owned by the caller and are never persisted by the core.
type RawDocument struct {
	Bytes []byte
	Kind  MediaKind

	// ContentType is the declared MIME type, when the caller knows it
	// (e.g. "image/heic" for iPhone photos). Optional.
	ContentType string
}

// ExtractionMethod records how text was recovered from a document.
type ExtractionMethod string

const (
	MethodOCR     ExtractionMethod = "ocr"
	MethodPDFText ExtractionMethod = "pdf_text"
	MethodPlain   ExtractionMethod = "plain"
)

// ExtractedText is the single text blob produced from a RawDocument,
// together with how it was obtained and how much we trust it.
// Confidence is in [0, 1]. Produced once per document, immutable.
type ExtractedText struct {
	Text       string
	Method     ExtractionMethod
	Confidence float64
}

// ParseStatus summarizes how a parse attempt went. NeedsReview marks
// receipts that parsed but scored too low to trust unattended.
type ParseStatus string

const (
	ParseStatusPending     ParseStatus = "pending"
	ParseStatusSuccess     ParseStatus = "success"
	ParseStatusFailed      ParseStatus = "failed"
	ParseStatusNeedsReview ParseStatus = "needs_review"
)

// LineItem is one purchased product entry recovered from a receipt.
// Quantity defaults to 1 when the line carried none. UnitPrice and
// TotalPrice are nil when the line didn't show them.
type LineItem struct {
	RawName    string
	Quantity   float64
	UnitPrice  *decimal.Decimal
	TotalPrice *decimal.Decimal
	Confidence float64
}

// ParsedReceipt is the structured result of parsing one extracted text
// blob. Fields that could not be recovered stay nil/zero with a low
// confidence; a receipt with zero line items is a valid low-confidence
// result, not a failure.
type ParsedReceipt struct {
	StoreNameRaw    string
	StoreConfidence float64

	PurchaseDate   *civil.Date
	DateConfidence float64

	Currency string

	// LineItems preserves source order.
	LineItems []LineItem

	// Total and Tax are receipt-level amounts (the printed TOTAL / TAX
	// lines), distinct from the sum of line items.
	Total           *decimal.Decimal
	TotalConfidence float64
	Tax             *decimal.Decimal

	// ParseConfidence is an aggregate over the fields above; it is never
	// higher than its weakest heavily-weighted contributor.
	ParseConfidence float64

	Status ParseStatus
}

// EntityKind selects the normalization namespace.
type EntityKind string

const (
	EntityStore   EntityKind = "store"
	EntityProduct EntityKind = "product"
)

// Key is a canonical lowercase, whitespace-collapsed, alias-resolved
// identifier used for cross-receipt matching. Normalization is
// deterministic and idempotent.
type Key string

// PriceObservation is one (product, store, price, date) data point in a
// user's history. Immutable once recorded.
type PriceObservation struct {
	ObservationID string
	UserID        string
	ProductKey    Key
	StoreKey      Key
	UnitPrice     decimal.Decimal
	ObservedAt    civil.Date
	ReceiptID     string
}

// InsightKind enumerates the observation types the engine can emit.
type InsightKind string

const (
	InsightPriceTrend        InsightKind = "price_trend"
	InsightPurchaseFrequency InsightKind = "purchase_frequency"
	InsightCommonPurchase    InsightKind = "common_purchase"
	InsightStorePattern      InsightKind = "store_pattern"
)

// ConfidenceLevel buckets how well-evidenced an insight is.
type ConfidenceLevel string

const (
	ConfidenceLow    ConfidenceLevel = "low"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceHigh   ConfidenceLevel = "high"
)

// Insight is a retrospective, evidence-backed observation over a user's
// purchase history. It is recomputed on demand from the current history
// and never mutated after emission. The language in Title/Description is
// strictly retrospective; the engine never predicts.
type Insight struct {
	Kind       InsightKind
	SubjectKey Key

	Title       string
	Description string

	// Evidence holds the observations that justify the claim, in the
	// order they were considered. Never empty on an emitted insight.
	Evidence []PriceObservation

	// DataPoints is the count of underlying observations/receipts.
	DataPoints int

	Confidence  ConfidenceLevel
	GeneratedAt time.Time
}

// ReceiptRecord is the persisted summary of one processed receipt, as
// the repository returns it for insight generation.
type ReceiptRecord struct {
	ReceiptID    string
	UserID       string
	StoreKey     Key
	PurchaseDate *civil.Date
	Total        *decimal.Decimal
	Status       ParseStatus
	UploadedAt   time.Time
}
