// src/tickers/cascade.go
package tickers

import (
	"context"
	"strings"

	gocache "github.com/patrickmn/go-cache"
	"github.com/username/flexfolio/src/logger"
	"github.com/username/flexfolio/src/models"
)

// SearchResult is one candidate returned by an external search.
type SearchResult struct {
	Symbol   string
	Name     string
	Exchange string
	Score    float64
}

// SearchFunc is the injected external search function. Keeping it a
// plain function value makes the cascade constructible without network
// access.
type SearchFunc func(ctx context.Context, query string) ([]SearchResult, error)

// QuoteClient is the external quote-search endpoint used for direct
// identifier lookups and candidate validation.
type QuoteClient interface {
	SearchIdentifier(ctx context.Context, identifier string) ([]SearchResult, error)
	ValidateSymbol(ctx context.Context, symbol string) (bool, error)
}

// exchangeSuffixes is the closed, known-correct exchange-to-suffix
// mapping used without external validation.
var exchangeSuffixes = map[string]string{
	"LSE":    ".L",
	"LSEETF": ".L",
	"IBIS":   ".DE",
	"FWB":    ".DE",
	"SBF":    ".PA",
	"AEB":    ".AS",
	"BVME":   ".MI",
	"EBS":    ".SW",
	"SEHK":   ".HK",
	"TSE":    ".TO",
	"ASX":    ".AX",
	"TSEJ":   ".T",
	"SFB":    ".ST",
}

// nonTradableVenues never need symbol resolution.
var nonTradableVenues = map[string]bool{
	"IDEALFX":  true,
	"FUNDSERV": true,
	"CORPACT":  true,
}

// Resolver maps exchange security identifiers to a canonical trading
// symbol through a cascade of sources, short-circuiting on the first
// success.
type Resolver struct {
	cache  *Cache
	search SearchFunc
	quotes QuoteClient
	memo   *gocache.Cache // per-process memo so one run resolves each key once
}

func NewResolver(cache *Cache, search SearchFunc, quotes QuoteClient) *Resolver {
	return &Resolver{
		cache:  cache,
		search: search,
		quotes: quotes,
		memo:   gocache.New(gocache.NoExpiration, 0),
	}
}

// NeedsResolution reports whether a request belongs to the
// need-to-resolve set. Numeric or placeholder exchange values, header
// artifacts and known non-tradable venues are excluded.
func NeedsResolution(req models.TickerRequest) bool {
	if req.ISIN == "" || req.Symbol == "" {
		return false
	}
	exchange := strings.TrimSpace(req.Exchange)
	switch {
	case exchange == "", exchange == "--", exchange == "N/A":
		return false
	case allDigits(exchange):
		return false
	case exchange == "Exchange" || exchange == "ListingExchange": // header artifact
		return false
	case nonTradableVenues[exchange]:
		return false
	}
	return true
}

// Resolve runs the cascade. It never fails hard: an exhausted cascade
// terminates in the uppercased original symbol with low confidence.
func (r *Resolver) Resolve(ctx context.Context, req models.TickerRequest) models.TickerResult {
	key := req.CacheKey()
	if cached, found := r.memo.Get(key); found {
		result := cached.(models.TickerResult)
		result.Source = models.TickerSourceCache
		return result
	}

	result := r.resolve(ctx, req)
	r.memo.Set(key, result, gocache.DefaultExpiration)
	return result
}

func (r *Resolver) resolve(ctx context.Context, req models.TickerRequest) models.TickerResult {
	key := req.CacheKey()

	// 1. Persistent cache.
	if entry, found, err := r.cache.Get(key); err != nil {
		logger.L.Warn("Ticker cache lookup failed", "key", key, "error", err)
	} else if found {
		return models.TickerResult{
			Symbol:     entry.Symbol,
			Confidence: models.ConfidenceHigh,
			Source:     models.TickerSourceCache,
		}
	}

	// 2. Injected external search, tried by each identifier in turn.
	if r.search != nil {
		for _, query := range []string{req.ISIN, req.CUSIP, req.FIGI, req.Symbol, req.Description} {
			if query == "" {
				continue
			}
			results, err := r.search(ctx, query)
			if err != nil {
				logger.L.Debug("External search failed", "query", query, "error", err)
				continue
			}
			for _, candidate := range results {
				if compatibleSymbols(candidate.Symbol, req.Symbol) {
					return r.store(key, candidate.Symbol, models.ConfidenceHigh, models.TickerSourceExternalSearch)
				}
			}
		}
	}

	// 3. Direct identifier search against the quote endpoint, with a
	// secondary validation call on the candidate.
	if r.quotes != nil {
		for _, identifier := range []string{req.ISIN, req.CUSIP, req.FIGI} {
			if identifier == "" {
				continue
			}
			results, err := r.quotes.SearchIdentifier(ctx, identifier)
			if err != nil {
				logger.L.Debug("Identifier search failed", "identifier", identifier, "error", err)
				continue
			}
			for _, candidate := range results {
				if !compatibleSymbols(candidate.Symbol, req.Symbol) {
					continue
				}
				valid, err := r.quotes.ValidateSymbol(ctx, candidate.Symbol)
				if err != nil {
					logger.L.Debug("Symbol validation failed", "symbol", candidate.Symbol, "error", err)
					continue
				}
				if valid {
					return r.store(key, candidate.Symbol, models.ConfidenceMedium, models.TickerSourceIdentifierSearch)
				}
			}
		}
	}

	// 4. Static exchange suffix heuristic. No external validation: the
	// mapping is closed and known correct.
	if suffix, ok := exchangeSuffixes[req.Exchange]; ok {
		symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
		if req.Exchange == "SEHK" && allDigits(symbol) {
			symbol = padNumericSymbol(symbol, 4)
		}
		return r.store(key, symbol+suffix, models.ConfidenceMedium, models.TickerSourceSuffixHeuristic)
	}

	// 5. Final fallback for manual follow-up.
	return models.TickerResult{
		Symbol:     strings.ToUpper(strings.TrimSpace(req.Symbol)),
		Confidence: models.ConfidenceLow,
		Source:     models.TickerSourceFallback,
	}
}

// store writes a successful non-cache resolution back to the persistent
// cache. Cache write failures are logged, never propagated.
func (r *Resolver) store(key, symbol string, confidence models.TickerConfidence, source string) models.TickerResult {
	if err := r.cache.Put(key, symbol, source); err != nil {
		logger.L.Warn("Ticker cache write failed", "key", key, "error", err)
	}
	return models.TickerResult{Symbol: symbol, Confidence: confidence, Source: source}
}

// compatibleSymbols accepts an exact match, or numeric equivalence after
// stripping leading-zero padding. The latter accommodates identifiers
// that are zero-padded inconsistently across sources.
func compatibleSymbols(candidate, original string) bool {
	a := strings.ToUpper(strings.TrimSpace(candidate))
	b := strings.ToUpper(strings.TrimSpace(original))
	if a == "" || b == "" {
		return false
	}
	if a == b {
		return true
	}
	// Candidate symbols may carry an exchange suffix ("0001.HK").
	if dot := strings.IndexByte(a, '.'); dot > 0 {
		a = a[:dot]
	}
	if a == b {
		return true
	}
	if allDigits(a) && allDigits(b) {
		return strings.TrimLeft(a, "0") == strings.TrimLeft(b, "0")
	}
	return false
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func padNumericSymbol(symbol string, width int) string {
	for len(symbol) < width {
		symbol = "0" + symbol
	}
	return symbol
}
