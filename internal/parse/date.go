package parse

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
)

// Date format confidence reflects ambiguity, not match quality:
// YYYY-MM-DD can only be read one way, while MM/DD vs DD/MM needs the
// day value to disambiguate and is penalized when it can't.
const (
	confISODate          = 0.98
	confMonthName        = 0.95
	confSlashUnambiguous = 0.9
	confSlashAmbiguous   = 0.7
	confShortYearPenalty = 0.1
)

type dateCandidate struct {
	date       civil.Date
	confidence float64
	order      int
}

var (
	isoDateRe   = regexp.MustCompile(`\b(\d{4})-(\d{1,2})-(\d{1,2})\b`)
	slashDateRe = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(\d{2,4})\b`)
	monthNameRe = regexp.MustCompile(`(?i)\b(jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.?\s+(\d{1,2}),?\s+(\d{4})\b`)
)

var monthsByPrefix = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March,
	"apr": time.April, "may": time.May, "jun": time.June,
	"jul": time.July, "aug": time.August, "sep": time.September,
	"oct": time.October, "nov": time.November, "dec": time.December,
}

// extractDate scans all lines for date-like tokens across the accepted
// format set and picks the most frequent candidate (ties go to the
// earliest occurrence). The returned confidence is the best format
// confidence seen for the winning date.
func extractDate(lines []string) (*civil.Date, float64) {
	var candidates []dateCandidate
	order := 0
	for _, line := range lines {
		for _, c := range findDateCandidates(line) {
			c.order = order
			order++
			candidates = append(candidates, c)
		}
	}
	if len(candidates) == 0 {
		return nil, 0
	}

	type tally struct {
		count      int
		confidence float64
		firstOrder int
	}
	counts := make(map[civil.Date]*tally)
	for _, c := range candidates {
		t, ok := counts[c.date]
		if !ok {
			counts[c.date] = &tally{count: 1, confidence: c.confidence, firstOrder: c.order}
			continue
		}
		t.count++
		if c.confidence > t.confidence {
			t.confidence = c.confidence
		}
	}

	var best civil.Date
	var bestTally *tally
	for date, t := range counts {
		if bestTally == nil ||
			t.count > bestTally.count ||
			(t.count == bestTally.count && t.firstOrder < bestTally.firstOrder) {
			best, bestTally = date, t
		}
	}
	return &best, bestTally.confidence
}

func findDateCandidates(line string) []dateCandidate {
	var out []dateCandidate

	for _, m := range isoDateRe.FindAllStringSubmatch(line, -1) {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		day, _ := strconv.Atoi(m[3])
		if d, ok := makeDate(year, month, day); ok {
			out = append(out, dateCandidate{date: d, confidence: confISODate})
		}
	}

	for _, m := range monthNameRe.FindAllStringSubmatch(line, -1) {
		month := monthsByPrefix[strings.ToLower(m[1])]
		day, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		if d, ok := makeDate(year, int(month), day); ok {
			out = append(out, dateCandidate{date: d, confidence: confMonthName})
		}
	}

	for _, m := range slashDateRe.FindAllStringSubmatch(line, -1) {
		first, _ := strconv.Atoi(m[1])
		second, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])

		shortYear := len(m[3]) == 2
		if shortYear {
			if year > 50 {
				year += 1900
			} else {
				year += 2000
			}
		}

		// MM/DD unless the day value rules it out.
		month, day := first, second
		confidence := confSlashAmbiguous
		switch {
		case first > 12 && second <= 12:
			month, day = second, first
			confidence = confSlashUnambiguous
		case second > 12 && first <= 12:
			confidence = confSlashUnambiguous
		}
		if shortYear {
			confidence -= confShortYearPenalty
		}

		if d, ok := makeDate(year, month, day); ok {
			out = append(out, dateCandidate{date: d, confidence: confidence})
		}
	}

	return out
}

func makeDate(year, month, day int) (civil.Date, bool) {
	if year < 1990 || year > 2100 || month < 1 || month > 12 || day < 1 || day > 31 {
		return civil.Date{}, false
	}
	d := civil.Date{Year: year, Month: time.Month(month), Day: day}
	if !d.IsValid() {
		return civil.Date{}, false
	}
	return d, true
}
