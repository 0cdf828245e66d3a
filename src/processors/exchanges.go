package processors

// exchangeCurrencies maps a listing exchange to its trading currency.
// Cross-currency fee and tax line items (transaction tax, ADR fees)
// resolve their currency here instead of from the statement's base
// currency.
var exchangeCurrencies = map[string]string{
	"NYSE":   "USD",
	"NASDAQ": "USD",
	"ARCA":   "USD",
	"AMEX":   "USD",
	"PINK":   "USD",
	"LSE":    "GBP",
	"LSEETF": "GBP",
	"IBIS":   "EUR",
	"FWB":    "EUR",
	"SBF":    "EUR",
	"AEB":    "EUR",
	"BVME":   "EUR",
	"EBS":    "CHF",
	"SEHK":   "HKD",
	"TSE":    "CAD",
	"ASX":    "AUD",
	"TSEJ":   "JPY",
	"SFB":    "SEK",
}

// ExchangeCurrency returns the trading currency of a listing exchange.
func ExchangeCurrency(exchange string) (string, bool) {
	c, ok := exchangeCurrencies[exchange]
	return c, ok
}
