package processors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/flexfolio/src/models"
)

func accountTable(table map[string]string) func(string) (string, bool) {
	return func(currency string) (string, bool) {
		id, ok := table[currency]
		return id, ok
	}
}

func TestSplitConversionsMatchedLegs(t *testing.T) {
	records := []models.ActivityRecord{
		{Type: models.KindTransferOut, Symbol: "EUR.USD", Currency: "USD", Amount: 1080},
		{Type: models.KindTransferIn, Symbol: "EUR.USD", Currency: "EUR", Amount: 1000},
	}
	out, unmatched := SplitConversions(records, accountTable(map[string]string{
		"USD": "acc-usd", "EUR": "acc-eur",
	}))
	require.Empty(t, unmatched)
	require.Len(t, out, 2)

	assert.Equal(t, models.KindWithdrawal, out[0].Type)
	assert.Equal(t, "acc-usd", out[0].AccountID)
	assert.Equal(t, models.KindDeposit, out[1].Type)
	assert.Equal(t, "acc-eur", out[1].AccountID)
}

func TestSplitConversionsUnmatchedCurrency(t *testing.T) {
	records := []models.ActivityRecord{
		{Type: models.KindTransferOut, Symbol: "EUR.USD", Currency: "USD", Amount: 1080},
		{Type: models.KindTransferIn, Symbol: "EUR.USD", Currency: "EUR", Amount: 1000},
	}
	out, unmatched := SplitConversions(records, accountTable(map[string]string{"USD": "acc-usd"}))
	require.Len(t, out, 1)
	assert.Equal(t, []string{"EUR"}, unmatched)
}

func TestSplitConversionsZeroAmountStillSplits(t *testing.T) {
	records := []models.ActivityRecord{
		{Type: models.KindTransferIn, Symbol: "EUR.USD", Currency: "EUR", Amount: 0},
	}
	out, unmatched := SplitConversions(records, accountTable(map[string]string{"EUR": "acc-eur"}))
	require.Empty(t, unmatched)
	require.Len(t, out, 1)
	assert.Equal(t, models.KindDeposit, out[0].Type)
}

func TestSplitConversionsNonStrictSymbolPassesThrough(t *testing.T) {
	records := []models.ActivityRecord{
		// Four-letter code, not a strict currency pair.
		{Type: models.KindTransferIn, Symbol: "BTC.USDT", Currency: "USDT", Amount: 5},
		// Ordinary transfer without a pair symbol.
		{Type: models.KindTransferIn, Symbol: "", Currency: "USD", Amount: 100},
	}
	out, unmatched := SplitConversions(records, accountTable(nil))
	require.Empty(t, unmatched)
	require.Len(t, out, 2)
	assert.Equal(t, models.KindTransferIn, out[0].Type)
	assert.Equal(t, models.KindTransferIn, out[1].Type)
}
