// src/processors/positions.go
package processors

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/username/flexfolio/src/models"
	"github.com/username/flexfolio/src/utils"
)

type positionEntry struct {
	date     time.Time
	quantity float64 // cumulative signed quantity after this date
}

// PositionIndex tracks the running position per symbol by replaying the
// document's trades in date order. It exists only for dividend and tax
// currency reconstruction; data gaps before the earliest observed trade
// degrade to a not-found signal.
type PositionIndex struct {
	bySymbol map[string][]positionEntry
}

// BuildPositionIndex replays buy/sell rows in ascending date order per
// symbol. Buys add, sells subtract; a short position is a negative
// running quantity.
func BuildPositionIndex(rows []models.RawRow) *PositionIndex {
	type trade struct {
		date     time.Time
		quantity float64
	}
	trades := make(map[string][]trade)
	for _, row := range rows {
		if row.Get(colExchange) == fxVenue {
			continue
		}
		buySell := strings.ToUpper(strings.TrimSpace(row.Get(colBuySell)))
		if buySell != "BUY" && buySell != "SELL" {
			continue
		}
		qty, ok := parseFloatOk(row.Get(colQuantity))
		if !ok || qty == 0 {
			continue
		}
		date := utils.DayOf(utils.ParseFlexDate(rowDate(row)))
		if date.IsZero() {
			continue
		}
		symbol := strings.TrimSpace(row.Get(colSymbol))
		if symbol == "" {
			continue
		}
		signed := math.Abs(qty)
		if buySell == "SELL" {
			signed = -signed
		}
		trades[symbol] = append(trades[symbol], trade{date: date, quantity: signed})
	}

	idx := &PositionIndex{bySymbol: make(map[string][]positionEntry, len(trades))}
	for symbol, ts := range trades {
		sort.SliceStable(ts, func(i, j int) bool { return ts[i].date.Before(ts[j].date) })
		var running float64
		var entries []positionEntry
		for _, t := range ts {
			running += t.quantity
			if n := len(entries); n > 0 && entries[n-1].date.Equal(t.date) {
				entries[n-1].quantity = running
			} else {
				entries = append(entries, positionEntry{date: t.date, quantity: running})
			}
		}
		idx.bySymbol[symbol] = entries
	}
	return idx
}

// Quantity returns the held quantity of symbol as of the given date: the
// latest entry on or before it, or the first entry after it if none
// precede it. The second return is false if the symbol was never traded.
func (idx *PositionIndex) Quantity(symbol string, on time.Time) (float64, bool) {
	entries := idx.bySymbol[symbol]
	if len(entries) == 0 {
		return 0, false
	}
	day := utils.DayOf(on)
	i := sort.Search(len(entries), func(i int) bool { return entries[i].date.After(day) })
	if i == 0 {
		return entries[0].quantity, true
	}
	return entries[i-1].quantity, true
}
