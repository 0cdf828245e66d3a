package processors

import (
	"strings"

	"github.com/username/flexfolio/src/models"
)

// TickerRequests collects one resolution request per distinct symbol in
// the merged rows, filled from the first row carrying that symbol's
// identifiers.
func TickerRequests(rows []models.RawRow) map[string]models.TickerRequest {
	requests := make(map[string]models.TickerRequest)
	for _, row := range rows {
		symbol := strings.TrimSpace(row.Get(colSymbol))
		if symbol == "" {
			continue
		}
		if _, seen := requests[symbol]; seen {
			continue
		}
		isin := strings.TrimSpace(row.Get(colISIN))
		if isin == "" {
			continue
		}
		requests[symbol] = models.TickerRequest{
			ISIN:        isin,
			CUSIP:       strings.TrimSpace(row.Get(colCUSIP)),
			FIGI:        strings.TrimSpace(row.Get(colFIGI)),
			Symbol:      symbol,
			Exchange:    strings.TrimSpace(row.Get(colListingExchange)),
			Currency:    strings.TrimSpace(row.Get(colCurrency)),
			Description: row.Get(colDescription),
		}
	}
	return requests
}
