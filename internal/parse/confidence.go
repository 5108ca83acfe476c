package parse

const (
	// NoItemsCap bounds the aggregate confidence of a receipt with zero
	// recognized line items, regardless of how well the header parsed.
	NoItemsCap = 0.25

	// SuccessConfidence is the aggregate confidence at or above which a
	// parse is accepted without review.
	SuccessConfidence = 0.7
)

// Weights configures the aggregate confidence combination. Line items
// dominate because they carry the transactional value.
type Weights struct {
	Store float64
	Date  float64
	Items float64
}

var DefaultWeights = Weights{Store: 0.2, Date: 0.2, Items: 0.6}

// Aggregate combines per-field confidences into a single score. It is a
// pure function of its inputs: tuning the weights never requires
// touching parsing logic. With zero line items the result is capped at
// NoItemsCap.
func Aggregate(w Weights, store, date float64, items []float64) float64 {
	if len(items) == 0 {
		capped := (w.Store*store + w.Date*date) / (w.Store + w.Date + w.Items)
		if capped > NoItemsCap {
			capped = NoItemsCap
		}
		return capped
	}

	var sum float64
	for _, c := range items {
		sum += c
	}
	itemMean := sum / float64(len(items))

	return (w.Store*store + w.Date*date + w.Items*itemMean) / (w.Store + w.Date + w.Items)
}
