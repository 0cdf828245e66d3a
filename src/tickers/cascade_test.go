package tickers

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/username/flexfolio/src/database"
	"github.com/username/flexfolio/src/logger"
	"github.com/username/flexfolio/src/models"
)

func TestMain(m *testing.M) {
	logger.InitLogger("error")
	os.Exit(m.Run())
}

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	db := database.InitDB(filepath.Join(t.TempDir(), "test.db"))
	t.Cleanup(func() { db.Close() })
	return db
}

func testCache(t *testing.T) *Cache {
	return NewCache(testDB(t), 30*24*time.Hour, 1000)
}

type fakeQuotes struct {
	searchResults map[string][]SearchResult
	validSymbols  map[string]bool
	searchCalls   int
}

func (f *fakeQuotes) SearchIdentifier(ctx context.Context, identifier string) ([]SearchResult, error) {
	f.searchCalls++
	return f.searchResults[identifier], nil
}

func (f *fakeQuotes) ValidateSymbol(ctx context.Context, symbol string) (bool, error) {
	return f.validSymbols[symbol], nil
}

func request(symbol, exchange string) models.TickerRequest {
	return models.TickerRequest{
		ISIN:     "US0378331005",
		Symbol:   symbol,
		Exchange: exchange,
	}
}

func TestNeedsResolution(t *testing.T) {
	assert.True(t, NeedsResolution(request("AAPL", "NASDAQ")))

	assert.False(t, NeedsResolution(request("AAPL", "")))
	assert.False(t, NeedsResolution(request("AAPL", "--")))
	assert.False(t, NeedsResolution(request("AAPL", "N/A")))
	assert.False(t, NeedsResolution(request("AAPL", "12345")))
	assert.False(t, NeedsResolution(request("AAPL", "Exchange")))
	assert.False(t, NeedsResolution(request("EUR.USD", "IDEALFX")))

	noISIN := request("AAPL", "NASDAQ")
	noISIN.ISIN = ""
	assert.False(t, NeedsResolution(noISIN))
}

func TestResolveExternalSearchMatch(t *testing.T) {
	calls := 0
	search := func(ctx context.Context, query string) ([]SearchResult, error) {
		calls++
		return []SearchResult{{Symbol: "AAPL", Exchange: "NASDAQ"}}, nil
	}
	r := NewResolver(testCache(t), search, nil)

	result := r.Resolve(context.Background(), request("AAPL", "NASDAQ"))
	assert.Equal(t, "AAPL", result.Symbol)
	assert.Equal(t, models.ConfidenceHigh, result.Confidence)
	assert.Equal(t, models.TickerSourceExternalSearch, result.Source)
	assert.Equal(t, 1, calls)
}

func TestResolveMemoIdempotent(t *testing.T) {
	calls := 0
	search := func(ctx context.Context, query string) ([]SearchResult, error) {
		calls++
		return []SearchResult{{Symbol: "AAPL"}}, nil
	}
	r := NewResolver(testCache(t), search, nil)

	first := r.Resolve(context.Background(), request("AAPL", "NASDAQ"))
	second := r.Resolve(context.Background(), request("AAPL", "NASDAQ"))

	assert.Equal(t, first.Symbol, second.Symbol)
	assert.Equal(t, models.TickerSourceCache, second.Source)
	assert.Equal(t, 1, calls)
}

func TestResolvePersistentCacheAcrossResolvers(t *testing.T) {
	db := testDB(t)
	cache := NewCache(db, 30*24*time.Hour, 1000)

	search := func(ctx context.Context, query string) ([]SearchResult, error) {
		return []SearchResult{{Symbol: "AAPL"}}, nil
	}
	first := NewResolver(cache, search, nil)
	first.Resolve(context.Background(), request("AAPL", "NASDAQ"))

	// A fresh resolver over the same database must hit the persistent
	// cache, not search again.
	second := NewResolver(NewCache(db, 30*24*time.Hour, 1000), nil, nil)
	result := second.Resolve(context.Background(), request("AAPL", "NASDAQ"))
	assert.Equal(t, "AAPL", result.Symbol)
	assert.Equal(t, models.TickerSourceCache, result.Source)
	assert.Equal(t, models.ConfidenceHigh, result.Confidence)
}

func TestResolveIdentifierSearchWithValidation(t *testing.T) {
	quotes := &fakeQuotes{
		searchResults: map[string][]SearchResult{
			"US0378331005": {{Symbol: "AAPL"}},
		},
		validSymbols: map[string]bool{"AAPL": true},
	}
	r := NewResolver(testCache(t), nil, quotes)

	result := r.Resolve(context.Background(), request("AAPL", "NASDAQ"))
	assert.Equal(t, "AAPL", result.Symbol)
	assert.Equal(t, models.ConfidenceMedium, result.Confidence)
	assert.Equal(t, models.TickerSourceIdentifierSearch, result.Source)
}

func TestResolveIdentifierSearchRejectsInvalidCandidate(t *testing.T) {
	quotes := &fakeQuotes{
		searchResults: map[string][]SearchResult{
			"US0378331005": {{Symbol: "AAPL"}},
		},
		validSymbols: map[string]bool{}, // validation says no
	}
	r := NewResolver(testCache(t), nil, quotes)

	result := r.Resolve(context.Background(), request("AAPL", "NASDAQ"))
	assert.Equal(t, models.TickerSourceFallback, result.Source)
	assert.Equal(t, models.ConfidenceLow, result.Confidence)
}

func TestResolveSuffixHeuristic(t *testing.T) {
	r := NewResolver(testCache(t), nil, nil)

	result := r.Resolve(context.Background(), request("VOD", "LSE"))
	assert.Equal(t, "VOD.L", result.Symbol)
	assert.Equal(t, models.ConfidenceMedium, result.Confidence)
	assert.Equal(t, models.TickerSourceSuffixHeuristic, result.Source)
}

func TestResolveSEHKZeroPadding(t *testing.T) {
	r := NewResolver(testCache(t), nil, nil)

	result := r.Resolve(context.Background(), request("1", "SEHK"))
	assert.Equal(t, "0001.HK", result.Symbol)
	assert.Equal(t, models.TickerSourceSuffixHeuristic, result.Source)
}

func TestResolveFallback(t *testing.T) {
	r := NewResolver(testCache(t), nil, nil)

	result := r.Resolve(context.Background(), request("aapl", "NASDAQ"))
	assert.Equal(t, "AAPL", result.Symbol)
	assert.Equal(t, models.ConfidenceLow, result.Confidence)
	assert.Equal(t, models.TickerSourceFallback, result.Source)
}

func TestCompatibleSymbols(t *testing.T) {
	assert.True(t, compatibleSymbols("AAPL", "aapl"))
	assert.True(t, compatibleSymbols("0700.HK", "700"))
	assert.True(t, compatibleSymbols("0700", "700"))
	assert.True(t, compatibleSymbols("VOD.L", "VOD"))
	assert.False(t, compatibleSymbols("MSFT", "AAPL"))
	assert.False(t, compatibleSymbols("", "AAPL"))
}
