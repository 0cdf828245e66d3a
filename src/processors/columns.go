package processors

// Column names of the merged statement's base layout. The section merger
// guarantees every row carries the full superset, absent values being "".
const (
	colCurrency        = "CurrencyPrimary"
	colSymbol          = "Symbol"
	colDescription     = "Description"
	colISIN            = "ISIN"
	colCUSIP           = "CUSIP"
	colFIGI            = "FIGI"
	colListingExchange = "ListingExchange"
	colExchange        = "Exchange"
	colTradeDate       = "TradeDate"
	colDateTime        = "DateTime"
	colActivityCode    = "ActivityCode"
	colLevelOfDetail   = "LevelOfDetail"
	colBuySell         = "Buy/Sell"
	colQuantity        = "Quantity"
	colTradePrice      = "TradePrice"
	colAmount          = "Amount"
	colCommission      = "IBCommission"
	colTransactionTax  = "TransactionTax"
	colDirection       = "Direction"
)

// fxVenue is the FX-trading venue; rows executed there are currency
// conversions, not security trades.
const fxVenue = "IDEALFX"
