package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/flexfolio/src/models"
)

func TestGetAccounts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/account", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		fmt.Fprint(w, `{"accounts":[{"id":"a1","name":"IBKR - USD","currency":"USD"}]}`)
	}))
	defer server.Close()

	accounts, err := NewHTTPClient(server.URL, "tok").GetAccounts(context.Background())
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "a1", accounts[0].ID)
	assert.Equal(t, "IBKR - USD", accounts[0].Name)
}

func TestCreateAccount(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var spec AccountSpec
		require.NoError(t, json.NewDecoder(r.Body).Decode(&spec))
		assert.Equal(t, "IBKR - EUR", spec.Name)
		json.NewEncoder(w).Encode(Account{ID: "a2", Name: spec.Name, Currency: spec.Currency})
	}))
	defer server.Close()

	account, err := NewHTTPClient(server.URL, "").CreateAccount(context.Background(), AccountSpec{
		Name: "IBKR - EUR", Group: "IBKR", Currency: "EUR",
	})
	require.NoError(t, err)
	assert.Equal(t, "a2", account.ID)
}

func TestGetActivities(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/order", r.URL.Path)
		assert.Equal(t, "a1", r.URL.Query().Get("accounts"))
		fmt.Fprint(w, `{"activities":[{"symbol":"AAPL","type":"BUY","amount":1855}]}`)
	}))
	defer server.Close()

	activities, err := NewHTTPClient(server.URL, "").GetActivities(context.Background(), "a1")
	require.NoError(t, err)
	require.Len(t, activities, 1)
	assert.Equal(t, models.KindBuy, activities[0].Type)
}

func TestImportActivities(t *testing.T) {
	var received struct {
		Activities []models.ActivityRecord `json:"activities"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/import", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	records := []models.ActivityRecord{{
		Date: time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC),
		Symbol: "AAPL", Type: models.KindBuy, Amount: 1855, Currency: "USD",
	}}
	err := NewHTTPClient(server.URL, "").ImportActivities(context.Background(), records)
	require.NoError(t, err)
	require.Len(t, received.Activities, 1)
	assert.Equal(t, "AAPL", received.Activities[0].Symbol)
}

func TestErrorIncludesBodySnippet(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "account group missing", http.StatusBadRequest)
	}))
	defer server.Close()

	_, err := NewHTTPClient(server.URL, "").GetAccounts(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 400")
	assert.Contains(t, err.Error(), "account group missing")
}

func TestAccountName(t *testing.T) {
	assert.Equal(t, "IBKR - USD", AccountName("IBKR", "USD"))
}
