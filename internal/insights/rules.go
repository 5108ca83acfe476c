package insights

import (
	"fmt"
	"math"
	"sort"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/nimbly/receipts/internal/domain"
)

// priceTrendRule compares the most recent observation for each
// (product, store) pair against the trailing mean of the prior ones
// and emits when the deviation clears the threshold. Confidence scales
// with sample count: the minimum sample is medium, anything beyond it
// high.
func priceTrendRule(snap Snapshot, cfg Thresholds, now time.Time) []domain.Insight {
	groups := groupObservations(snap.Observations, func(o domain.PriceObservation) string {
		return string(o.ProductKey) + "\x00" + string(o.StoreKey)
	})

	var out []domain.Insight
	for _, group := range groups {
		// A trailing mean needs at least one prior point, however low
		// the configured minimum is.
		if len(group) < cfg.MinTrendObservations || len(group) < 2 {
			continue
		}

		latest := group[len(group)-1]
		prior := group[:len(group)-1]

		mean := decimal.Avg(prior[0].UnitPrice, unitPrices(prior[1:])...)
		if mean.IsZero() {
			continue
		}
		deviation, _ := latest.UnitPrice.Sub(mean).Div(mean).Float64()
		if math.Abs(deviation) < cfg.TrendDeviationPct {
			continue
		}

		direction := "above"
		if deviation < 0 {
			direction = "below"
		}
		confidence := domain.ConfidenceMedium
		if len(group) > cfg.MinTrendObservations {
			confidence = domain.ConfidenceHigh
		}

		out = append(out, domain.Insight{
			Kind:       domain.InsightPriceTrend,
			SubjectKey: latest.ProductKey,
			Title:      fmt.Sprintf("Price change for %s", latest.ProductKey),
			Description: fmt.Sprintf(
				"On %s, %s at %s cost %s, %.0f%% %s the prior average of %s across %d earlier purchases.",
				latest.ObservedAt, latest.ProductKey, latest.StoreKey,
				latest.UnitPrice.StringFixed(2), math.Abs(deviation)*100, direction,
				mean.StringFixed(2), len(prior)),
			Evidence:    group,
			DataPoints:  len(group),
			Confidence:  confidence,
			GeneratedAt: now,
		})
	}
	return out
}

// purchaseFrequencyRule looks for a regular cadence in the distinct
// purchase dates of each product across all stores.
func purchaseFrequencyRule(snap Snapshot, cfg Thresholds, now time.Time) []domain.Insight {
	groups := groupObservations(snap.Observations, func(o domain.PriceObservation) string {
		return string(o.ProductKey)
	})

	var out []domain.Insight
	for _, group := range groups {
		dates := distinctDates(group)
		if len(dates) < cfg.MinFrequencyPurchases {
			continue
		}
		span := dates[len(dates)-1].DaysSince(dates[0])
		if span < cfg.MinFrequencySpanDays {
			continue
		}

		intervals := make([]float64, 0, len(dates)-1)
		for i := 1; i < len(dates); i++ {
			intervals = append(intervals, float64(dates[i].DaysSince(dates[i-1])))
		}
		mean, relStdDev := intervalStats(intervals)
		if relStdDev > cfg.MaxIntervalRelStdDev {
			continue
		}

		confidence := domain.ConfidenceLow
		switch {
		case len(dates) >= 5 && relStdDev <= cfg.MaxIntervalRelStdDev/2:
			confidence = domain.ConfidenceHigh
		case len(dates) > cfg.MinFrequencyPurchases:
			confidence = domain.ConfidenceMedium
		}

		out = append(out, domain.Insight{
			Kind:       domain.InsightPurchaseFrequency,
			SubjectKey: group[0].ProductKey,
			Title:      fmt.Sprintf("Purchase cadence for %s", group[0].ProductKey),
			Description: fmt.Sprintf(
				"Between %s and %s, %s was purchased %d times, once every %.0f days on average.",
				dates[0], dates[len(dates)-1], group[0].ProductKey, len(dates), mean),
			Evidence:    group,
			DataPoints:  len(dates),
			Confidence:  confidence,
			GeneratedAt: now,
		})
	}
	return out
}

// commonPurchaseRule emits products bought often enough to count as
// staples, with confidence ranking by purchase count.
func commonPurchaseRule(snap Snapshot, cfg Thresholds, now time.Time) []domain.Insight {
	groups := groupObservations(snap.Observations, func(o domain.PriceObservation) string {
		return string(o.ProductKey)
	})

	var out []domain.Insight
	for _, group := range groups {
		count := len(group)
		if count < cfg.MinCommonPurchases {
			continue
		}

		confidence := domain.ConfidenceLow
		switch {
		case count >= 8:
			confidence = domain.ConfidenceHigh
		case count >= 5:
			confidence = domain.ConfidenceMedium
		}

		first, last := group[0].ObservedAt, group[len(group)-1].ObservedAt
		out = append(out, domain.Insight{
			Kind:       domain.InsightCommonPurchase,
			SubjectKey: group[0].ProductKey,
			Title:      fmt.Sprintf("Frequent purchase: %s", group[0].ProductKey),
			Description: fmt.Sprintf(
				"%s appeared on %d receipts between %s and %s.",
				group[0].ProductKey, count, first, last),
			Evidence:    group,
			DataPoints:  count,
			Confidence:  confidence,
			GeneratedAt: now,
		})
	}
	return out
}

// storePatternRule emits stores that hold a dominant share of the
// user's tracked spend. Spend comes from receipt totals; stores without
// observation evidence are skipped rather than emitted unsupported.
func storePatternRule(snap Snapshot, cfg Thresholds, now time.Time) []domain.Insight {
	spendByStore := make(map[domain.Key]decimal.Decimal)
	countByStore := make(map[domain.Key]int)
	total := decimal.Zero
	for _, r := range snap.Receipts {
		if r.StoreKey == "" || r.Total == nil {
			continue
		}
		spendByStore[r.StoreKey] = spendByStore[r.StoreKey].Add(*r.Total)
		countByStore[r.StoreKey]++
		total = total.Add(*r.Total)
	}
	if total.IsZero() {
		return nil
	}

	obsByStore := groupObservations(snap.Observations, func(o domain.PriceObservation) string {
		return string(o.StoreKey)
	})

	stores := make([]domain.Key, 0, len(spendByStore))
	for store := range spendByStore {
		stores = append(stores, store)
	}
	sort.Slice(stores, func(i, j int) bool { return stores[i] < stores[j] })

	var out []domain.Insight
	for _, store := range stores {
		if countByStore[store] < cfg.MinStoreReceipts {
			continue
		}
		share, _ := spendByStore[store].Div(total).Float64()
		if share < cfg.StoreShareThreshold {
			continue
		}
		evidence := obsByStore[string(store)]
		if len(evidence) == 0 {
			continue
		}

		confidence := domain.ConfidenceMedium
		if countByStore[store] >= 2*cfg.MinStoreReceipts {
			confidence = domain.ConfidenceHigh
		}

		out = append(out, domain.Insight{
			Kind:       domain.InsightStorePattern,
			SubjectKey: store,
			Title:      fmt.Sprintf("Primary store: %s", store),
			Description: fmt.Sprintf(
				"%.0f%% of tracked spend (%s across %d receipts) went to %s.",
				share*100, spendByStore[store].StringFixed(2), countByStore[store], store),
			Evidence:    evidence,
			DataPoints:  countByStore[store],
			Confidence:  confidence,
			GeneratedAt: now,
		})
	}
	return out
}

// groupObservations buckets observations by key and returns the groups
// in sorted key order, each group sorted by date, then receipt, then
// price, so rule output is deterministic for a fixed snapshot.
func groupObservations(observations []domain.PriceObservation, keyFn func(domain.PriceObservation) string) map[string][]domain.PriceObservation {
	groups := make(map[string][]domain.PriceObservation)
	for _, o := range observations {
		k := keyFn(o)
		groups[k] = append(groups[k], o)
	}
	for _, group := range groups {
		sort.SliceStable(group, func(i, j int) bool {
			if group[i].ObservedAt != group[j].ObservedAt {
				return group[i].ObservedAt.Before(group[j].ObservedAt)
			}
			if group[i].ReceiptID != group[j].ReceiptID {
				return group[i].ReceiptID < group[j].ReceiptID
			}
			return group[i].UnitPrice.LessThan(group[j].UnitPrice)
		})
	}
	return groups
}

func unitPrices(observations []domain.PriceObservation) []decimal.Decimal {
	prices := make([]decimal.Decimal, len(observations))
	for i, o := range observations {
		prices[i] = o.UnitPrice
	}
	return prices
}

func distinctDates(group []domain.PriceObservation) []civil.Date {
	var dates []civil.Date
	for _, o := range group {
		if len(dates) == 0 || dates[len(dates)-1] != o.ObservedAt {
			dates = append(dates, o.ObservedAt)
		}
	}
	return dates
}

// intervalStats returns the mean and relative standard deviation of
// inter-purchase intervals.
func intervalStats(intervals []float64) (mean, relStdDev float64) {
	for _, v := range intervals {
		mean += v
	}
	mean /= float64(len(intervals))
	if mean == 0 {
		return 0, math.Inf(1)
	}

	var variance float64
	for _, v := range intervals {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(intervals))
	return mean, math.Sqrt(variance) / mean
}
