// src/processors/fxindex.go
package processors

import (
	"sort"
	"time"

	"github.com/username/flexfolio/src/logger"
	"github.com/username/flexfolio/src/models"
	"github.com/username/flexfolio/src/utils"
)

// Traded rates outside these bounds are obvious parsing errors and are
// rejected when the index is built.
const (
	minSaneRate = 1e-6
	maxSaneRate = 1e6
)

type rateEntry struct {
	date time.Time
	rate float64
}

// RateIndex maps a currency pair to its traded rates by date. It is
// built once per document, before classification converts the FX rows
// into transfers, and is read-only afterward.
type RateIndex struct {
	rates map[string][]rateEntry // key "EUR.USD"
}

// BuildRateIndex scans the merged pre-classification rows for
// execution-level FX trades and records both the forward and the inverse
// pair, keyed by day.
func BuildRateIndex(rows []models.RawRow) *RateIndex {
	idx := &RateIndex{rates: make(map[string][]rateEntry)}
	for _, row := range rows {
		if row.Get(colExchange) != fxVenue {
			continue
		}
		if lod := row.Get(colLevelOfDetail); lod != "" && lod != "EXECUTION" {
			continue
		}
		m := fxPairRe.FindStringSubmatch(row.Get(colSymbol))
		if m == nil {
			continue
		}
		rate, ok := parseFloatOk(row.Get(colTradePrice))
		if !ok {
			continue
		}
		if rate < minSaneRate || rate > maxSaneRate {
			logger.L.Warn("Rejecting implausible FX rate", "symbol", row.Get(colSymbol), "rate", rate, "line", row.Line)
			continue
		}
		date := utils.DayOf(utils.ParseFlexDate(rowDate(row)))
		if date.IsZero() {
			continue
		}
		base, quote := m[1], m[2]
		idx.add(base+"."+quote, date, rate)
		idx.add(quote+"."+base, date, 1/rate)
	}
	for pair := range idx.rates {
		entries := idx.rates[pair]
		sort.Slice(entries, func(i, j int) bool { return entries[i].date.Before(entries[j].date) })
		idx.rates[pair] = entries
	}
	return idx
}

func (idx *RateIndex) add(pair string, date time.Time, rate float64) {
	idx.rates[pair] = append(idx.rates[pair], rateEntry{date: date, rate: rate})
}

// Rate returns the rate for base/quote as of the given date: the latest
// entry on or before it, or the first entry after it if none precede it.
// The second return is false if the pair was never observed.
func (idx *RateIndex) Rate(base, quote string, on time.Time) (float64, bool) {
	if base == quote {
		return 1, true
	}
	entries := idx.rates[base+"."+quote]
	if len(entries) == 0 {
		return 0, false
	}
	day := utils.DayOf(on)
	// First entry strictly after day.
	i := sort.Search(len(entries), func(i int) bool { return entries[i].date.After(day) })
	if i == 0 {
		return entries[0].rate, true
	}
	return entries[i-1].rate, true
}

// rowDate picks the best available date column for a row.
func rowDate(row models.RawRow) string {
	if d := row.Get(colTradeDate); d != "" {
		return d
	}
	return row.Get(colDateTime)
}
