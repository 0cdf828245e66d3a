package models

// TickerRequest carries the identifiers available for one security
// needing symbol resolution.
type TickerRequest struct {
	ISIN        string
	CUSIP       string
	FIGI        string
	Symbol      string
	Exchange    string
	Currency    string
	Description string
}

// CacheKey is the persistent-cache key for this request.
func (r TickerRequest) CacheKey() string {
	return r.ISIN + ":" + r.Exchange
}

// TickerConfidence grades how trustworthy a resolution is.
type TickerConfidence string

const (
	ConfidenceHigh   TickerConfidence = "HIGH"
	ConfidenceMedium TickerConfidence = "MEDIUM"
	ConfidenceLow    TickerConfidence = "LOW"
)

// Ticker resolution provenance tags.
const (
	TickerSourceCache            = "cache"
	TickerSourceExternalSearch   = "external-search"
	TickerSourceIdentifierSearch = "identifier-search"
	TickerSourceSuffixHeuristic  = "suffix-heuristic"
	TickerSourceFallback         = "fallback"
)

// TickerResult is the outcome of the resolution cascade.
type TickerResult struct {
	Symbol     string
	Confidence TickerConfidence
	Source     string
}
