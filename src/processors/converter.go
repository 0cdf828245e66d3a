// src/processors/converter.go
package processors

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/username/flexfolio/src/logger"
	"github.com/username/flexfolio/src/models"
	"github.com/username/flexfolio/src/utils"
)

// perShareRes is the regex family for dividend descriptions such as
// "Cash Dividend USD 0.264 per Share" (the trailing "per Share" is
// optional in some statement variants).
var perShareRes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bcash dividend\s+([A-Za-z]{3})\s+([0-9]+(?:\.[0-9]+)?)(?:\s+per\s+share)?`),
	regexp.MustCompile(`(?i)\bdividend\s+([A-Za-z]{3})\s+([0-9]+(?:\.[0-9]+)?)(?:\s+per\s+share)?`),
	regexp.MustCompile(`(?i)\b([A-Za-z]{3})\s+([0-9]+(?:\.[0-9]+)?)\s+per\s+share\b`),
}

// ConversionError is a row-level failure. The row is excluded and the
// batch continues.
type ConversionError struct {
	File   string
	Line   int
	Reason string
}

func (e ConversionError) Error() string {
	return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Reason)
}

// ConversionResult carries the converted records plus everything that
// went wrong or degraded along the way.
type ConversionResult struct {
	Records  []models.ActivityRecord
	Errors   []ConversionError
	Warnings []models.RowWarning
}

// Converter turns classified rows into canonical activity records,
// resolving currency and amount from the FX-rate and position indices.
type Converter struct {
	rates     *RateIndex
	positions *PositionIndex
}

func NewConverter(rates *RateIndex, positions *PositionIndex) *Converter {
	return &Converter{rates: rates, positions: positions}
}

func (c *Converter) Convert(rows []models.ClassifiedRow) *ConversionResult {
	result := &ConversionResult{}

	// Stated base-currency dividend amounts by symbol and day, used to
	// recover original-currency withholding tax.
	divBase := make(map[string]float64)
	for _, cr := range rows {
		if cr.Kind != models.KindDividend {
			continue
		}
		date := utils.ParseFlexDate(rowDate(cr.Row))
		if date.IsZero() {
			continue
		}
		key := divBaseKey(cr.Row.Get(colSymbol), date)
		divBase[key] += math.Abs(parseFloat(cr.Row.Get(colAmount)))
	}

	for _, cr := range rows {
		record, err, warn := c.convertRow(cr, divBase)
		if err != nil {
			result.Errors = append(result.Errors, *err)
			continue
		}
		if warn != "" {
			result.Warnings = append(result.Warnings, models.RowWarning{
				File: cr.Row.File, Line: cr.Row.Line, Message: warn,
			})
		}
		result.Records = append(result.Records, record)
	}
	return result
}

func (c *Converter) convertRow(cr models.ClassifiedRow, divBase map[string]float64) (models.ActivityRecord, *ConversionError, string) {
	row := cr.Row
	date := utils.ParseFlexDate(rowDate(row))
	if date.IsZero() {
		return models.ActivityRecord{}, &ConversionError{
			File: row.File, Line: row.Line,
			Reason: "row has no usable date",
		}, ""
	}

	record := models.ActivityRecord{
		Date:    date,
		Symbol:  strings.TrimSpace(row.Get(colSymbol)),
		Type:    cr.Kind,
		Comment: row.Get(colDescription),
	}
	baseCurrency := strings.TrimSpace(row.Get(colCurrency))
	stated := math.Abs(parseFloat(row.Get(colAmount)))
	var warn string

	switch cr.Kind {
	case models.KindBuy, models.KindSell:
		qty := math.Abs(parseFloat(row.Get(colQuantity)))
		price := parseFloat(row.Get(colTradePrice))
		record.Quantity = qty
		record.UnitPrice = price
		record.Amount = math.Abs(qty * price)
		record.Fee = math.Abs(parseFloat(row.Get(colCommission))) + math.Abs(parseFloat(row.Get(colTransactionTax)))
		record.Currency = baseCurrency

	case models.KindDividend:
		record.Amount, record.Currency, warn = c.dividendAmount(row, date, baseCurrency, stated)

	case models.KindTax:
		record.Amount, record.Currency, warn = c.taxAmount(row, date, baseCurrency, stated, divBase)

	case models.KindFee:
		record.Amount, record.Currency, warn = c.exchangeCurrencyAmount(row, date, baseCurrency, stated)

	case models.KindTransferIn, models.KindTransferOut:
		if cr.Overridden {
			record.Symbol = cr.FXPair
			record.Amount = math.Abs(cr.Amount)
			record.Currency = cr.Currency
		} else {
			record.Amount = stated
			record.Currency = baseCurrency
		}

	default: // interest, deposit, withdrawal
		record.Amount = stated
		record.Currency = baseCurrency
	}

	if record.Currency == "" {
		return models.ActivityRecord{}, &ConversionError{
			File: row.File, Line: row.Line,
			Reason: "row has no resolvable currency",
		}, ""
	}

	// The canonical shares-times-price identity holds for every kind:
	// cash-like records mirror their amount as quantity at unit price 1.
	if cr.Kind.IsCashLike() {
		record.Quantity = record.Amount
		record.UnitPrice = 1
	}
	return record, nil, warn
}

// dividendAmount reconstructs a dividend's original currency and amount.
// Preferred path: per-share rate from the description times the held
// position. Degrades to FX-rate conversion, then to base-currency
// passthrough with a warning. Dividends always import, possibly degraded.
func (c *Converter) dividendAmount(row models.RawRow, date time.Time, baseCurrency string, stated float64) (float64, string, string) {
	ccy, perShare, ok := parsePerShare(row.Get(colDescription))
	if !ok {
		// No foreign-currency indication: the stated amount is the
		// dividend.
		return stated, baseCurrency, ""
	}
	if pos, found := c.positions.Quantity(row.Get(colSymbol), date); found && pos > 0 {
		return utils.RoundFloat(perShare*pos, 4), ccy, ""
	}
	if rate, found := c.rates.Rate(baseCurrency, ccy, date); found {
		return utils.RoundFloat(stated*rate, 4), ccy, ""
	}
	logger.L.Warn("Dividend reconstruction degraded to base currency",
		"symbol", row.Get(colSymbol), "line", row.Line)
	return stated, baseCurrency, fmt.Sprintf("dividend for %s kept in %s: no position or FX rate for %s", row.Get(colSymbol), baseCurrency, ccy)
}

// taxAmount recovers the original-currency tax on a dividend as
// grossDividend * (statedBaseAmount / estimatedBaseDividend), with the
// same fallbacks as dividendAmount.
func (c *Converter) taxAmount(row models.RawRow, date time.Time, baseCurrency string, stated float64, divBase map[string]float64) (float64, string, string) {
	ccy, perShare, ok := parsePerShare(row.Get(colDescription))
	if ok {
		pos, foundPos := c.positions.Quantity(row.Get(colSymbol), date)
		estBase := divBase[divBaseKey(row.Get(colSymbol), date)]
		if foundPos && pos > 0 && estBase > 0 {
			gross := perShare * pos
			return utils.RoundFloat(gross*(stated/estBase), 4), ccy, ""
		}
		if rate, found := c.rates.Rate(baseCurrency, ccy, date); found {
			return utils.RoundFloat(stated*rate, 4), ccy, ""
		}
		return stated, baseCurrency, fmt.Sprintf("dividend tax for %s kept in %s: no position or FX rate for %s", row.Get(colSymbol), baseCurrency, ccy)
	}
	// Taxes tied to a listing exchange (stamp duty, transaction tax)
	// take the exchange's currency.
	return c.exchangeCurrencyAmount(row, date, baseCurrency, stated)
}

// exchangeCurrencyAmount resolves cross-currency fee/tax line items via
// the exchange-to-currency table rather than the statement currency.
func (c *Converter) exchangeCurrencyAmount(row models.RawRow, date time.Time, baseCurrency string, stated float64) (float64, string, string) {
	exchange := strings.TrimSpace(row.Get(colListingExchange))
	exchCcy, ok := ExchangeCurrency(exchange)
	if !ok || exchCcy == baseCurrency {
		return stated, baseCurrency, ""
	}
	if rate, found := c.rates.Rate(baseCurrency, exchCcy, date); found {
		return utils.RoundFloat(stated*rate, 4), exchCcy, ""
	}
	return stated, baseCurrency, fmt.Sprintf("%s line kept in %s: no FX rate for %s", exchange, baseCurrency, exchCcy)
}

func parsePerShare(description string) (currency string, perShare float64, ok bool) {
	for _, re := range perShareRes {
		if m := re.FindStringSubmatch(description); m != nil {
			rate, valid := parseFloatOk(m[2])
			if !valid || rate <= 0 {
				continue
			}
			return strings.ToUpper(m[1]), rate, true
		}
	}
	return "", 0, false
}

func divBaseKey(symbol string, date time.Time) string {
	return strings.TrimSpace(symbol) + "|" + utils.DayOf(date).Format(utils.DefaultDateFormat)
}
