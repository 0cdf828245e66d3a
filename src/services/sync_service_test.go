package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/flexfolio/src/flexquery"
	"github.com/username/flexfolio/src/models"
	"github.com/username/flexfolio/src/parsers/flex"
)

type stubClock struct{ now time.Time }

func (c *stubClock) Now() time.Time                                   { return c.now }
func (c *stubClock) Sleep(ctx context.Context, d time.Duration) error { c.now = c.now.Add(d); return ctx.Err() }

// fakeImporter records imported documents and returns a fixed summary.
// onImport, when set, runs before the summary is returned.
type fakeImporter struct {
	documents []string
	summary   ImportSummary
	err       error
	onImport  func()
}

func (f *fakeImporter) ImportDocument(ctx context.Context, document []byte, accountGroup string) (*ImportSummary, error) {
	f.documents = append(f.documents, string(document))
	if f.onImport != nil {
		f.onImport()
	}
	if f.err != nil {
		return nil, f.err
	}
	result := f.summary
	return &result, nil
}

func (f *fakeImporter) ImportFiles(ctx context.Context, files []flex.File, accountGroup string) (*ImportSummary, error) {
	return f.ImportDocument(ctx, nil, accountGroup)
}

// flexServer serves the submit/poll protocol, answering every poll with
// payload immediately.
func flexServer(t *testing.T, payload string, tokens *[]string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if tokens != nil {
			*tokens = append(*tokens, r.URL.Query().Get("t"))
		}
		if strings.Contains(r.URL.Path, "SendRequest") {
			fmt.Fprint(w, `<FlexStatementResponse><Status>Success</Status><ReferenceCode>42</ReferenceCode></FlexStatementResponse>`)
			return
		}
		fmt.Fprint(w, payload)
	}))
	t.Cleanup(server.Close)
	return server
}

func newTestSync(t *testing.T, secrets *memorySecrets, importer ImportService, serverURL string, cooldown time.Duration, clk flexquery.Clock) (*syncServiceImpl, *ConfigStore) {
	t.Helper()
	configs := NewConfigStore(secrets)
	flexClient := flexquery.NewClient(serverURL, time.Millisecond, time.Millisecond, time.Minute, time.Nanosecond)
	svc := NewSyncService(configs, secrets, flexClient, importer, cooldown, "default-token", cache.New(cache.NoExpiration, 0)).(*syncServiceImpl)
	return svc.WithClock(clk), configs
}

func seedConfig(t *testing.T, configs *ConfigStore, lastFetch time.Time, autoFetch bool) models.FetchConfig {
	t.Helper()
	created, err := configs.Create(models.FetchConfig{
		Name: "main", QueryID: "q1", AccountGroup: "IBKR", AutoFetch: autoFetch,
	})
	require.NoError(t, err)
	if !lastFetch.IsZero() {
		created.LastFetch = lastFetch
		require.NoError(t, configs.Update(created))
	}
	return created
}

func TestRunDueFetchesAndImports(t *testing.T) {
	secrets := newMemorySecrets()
	importer := &fakeImporter{summary: ImportSummary{Imported: 3, Duplicates: 1, Skipped: 2}}
	server := flexServer(t, "ClientAccountID,Symbol\nU1,AAPL\n", nil)
	clk := &stubClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	svc, configs := newTestSync(t, secrets, importer, server.URL, 12*time.Hour, clk)
	cfg := seedConfig(t, configs, time.Time{}, true)

	results, started := svc.RunDue(context.Background())
	require.True(t, started)
	require.Len(t, results, 1)

	res := results[0]
	assert.True(t, res.Success)
	assert.Equal(t, cfg.ID, res.ConfigID)
	assert.Equal(t, 3, res.Imported)
	assert.Equal(t, 3, res.Skipped) // skipped + duplicates
	require.Len(t, importer.documents, 1)
	assert.Contains(t, importer.documents[0], "AAPL")

	final, found, err := configs.GetByID(cfg.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, models.FetchStatusSuccess, final.LastStatus)
	assert.Equal(t, clk.now, final.LastFetch)

	assert.Equal(t, results, svc.LatestResults())
}

func TestRunDueCooldownBoundary(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	cooldown := 12 * time.Hour

	cases := []struct {
		name      string
		lastFetch time.Time
		expectRun bool
	}{
		{"exactly at threshold", now.Add(-cooldown), true},
		{"one millisecond short", now.Add(-cooldown + time.Millisecond), false},
		{"well past threshold", now.Add(-2 * cooldown), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			secrets := newMemorySecrets()
			importer := &fakeImporter{}
			server := flexServer(t, "payload", nil)
			svc, configs := newTestSync(t, secrets, importer, server.URL, cooldown, &stubClock{now: now})
			seedConfig(t, configs, tc.lastFetch, true)

			results, started := svc.RunDue(context.Background())
			require.True(t, started)
			if tc.expectRun {
				assert.Len(t, results, 1)
			} else {
				assert.Empty(t, results)
			}
		})
	}
}

func TestRunDueSkipsDisabledConfigs(t *testing.T) {
	secrets := newMemorySecrets()
	importer := &fakeImporter{}
	server := flexServer(t, "payload", nil)
	svc, configs := newTestSync(t, secrets, importer, server.URL, 12*time.Hour, &stubClock{now: time.Now()})
	seedConfig(t, configs, time.Time{}, false)

	results, started := svc.RunDue(context.Background())
	assert.True(t, started)
	assert.Empty(t, results)
	assert.Empty(t, importer.documents)
}

func TestRunDueDroppedWhileRunning(t *testing.T) {
	secrets := newMemorySecrets()
	server := flexServer(t, "payload", nil)
	svc, _ := newTestSync(t, secrets, &fakeImporter{}, server.URL, 12*time.Hour, &stubClock{now: time.Now()})

	require.True(t, svc.guard.TryAcquire())
	defer svc.guard.Release()

	results, started := svc.RunDue(context.Background())
	assert.False(t, started)
	assert.Nil(t, results)
}

func TestRunOneClaimsBeforeFetch(t *testing.T) {
	secrets := newMemorySecrets()
	importer := &fakeImporter{}
	server := flexServer(t, "payload", nil)
	svc, configs := newTestSync(t, secrets, importer, server.URL, 12*time.Hour, &stubClock{now: time.Now()})
	seedConfig(t, configs, time.Time{}, true)

	_, started := svc.RunDue(context.Background())
	require.True(t, started)

	// The status trail must claim with a pending write before the final
	// status lands.
	var statuses []string
	for _, raw := range secrets.history[configsKey] {
		var snapshot []models.FetchConfig
		require.NoError(t, json.Unmarshal([]byte(raw), &snapshot))
		if len(snapshot) == 1 && snapshot[0].LastStatus != "" {
			statuses = append(statuses, snapshot[0].LastStatus)
		}
	}
	assert.Equal(t, []string{models.FetchStatusPending, models.FetchStatusSuccess}, statuses)
}

func TestRunDueKeepsEditMadeDuringFetch(t *testing.T) {
	secrets := newMemorySecrets()
	importer := &fakeImporter{summary: ImportSummary{Imported: 1}}
	server := flexServer(t, "payload", nil)
	clk := &stubClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	svc, configs := newTestSync(t, secrets, importer, server.URL, 12*time.Hour, clk)
	cfg := seedConfig(t, configs, time.Time{}, true)

	// A user renames the configuration while the fetch is in flight.
	importer.onImport = func() {
		edited, found, err := configs.GetByID(cfg.ID)
		require.NoError(t, err)
		require.True(t, found)
		edited.Name = "renamed"
		edited.QueryID = "q2"
		require.NoError(t, configs.Update(edited))
	}

	results, started := svc.RunDue(context.Background())
	require.True(t, started)
	require.Len(t, results, 1)
	require.True(t, results[0].Success)

	final, found, err := configs.GetByID(cfg.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "renamed", final.Name)
	assert.Equal(t, "q2", final.QueryID)
	assert.Equal(t, models.FetchStatusSuccess, final.LastStatus)
	assert.Equal(t, clk.now, final.LastFetch)
}

func TestRunDueRecordsFetchError(t *testing.T) {
	secrets := newMemorySecrets()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<FlexStatementResponse><Status>Fail</Status><ErrorCode>1012</ErrorCode><ErrorMessage>token expired</ErrorMessage></FlexStatementResponse>`)
	}))
	t.Cleanup(server.Close)

	svc, configs := newTestSync(t, secrets, &fakeImporter{}, server.URL, 12*time.Hour, &stubClock{now: time.Now()})
	cfg := seedConfig(t, configs, time.Time{}, true)

	results, started := svc.RunDue(context.Background())
	require.True(t, started)
	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Contains(t, results[0].Error, "token expired")

	final, found, err := configs.GetByID(cfg.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, models.FetchStatusError, final.LastStatus)
	assert.Contains(t, final.LastError, "token expired")
}

func TestTokenPrefersSecretStore(t *testing.T) {
	secrets := newMemorySecrets()
	require.NoError(t, secrets.Set(FlexTokenKey, "stored-token"))

	var tokens []string
	server := flexServer(t, "payload", &tokens)
	svc, configs := newTestSync(t, secrets, &fakeImporter{}, server.URL, 12*time.Hour, &stubClock{now: time.Now()})
	seedConfig(t, configs, time.Time{}, true)

	_, started := svc.RunDue(context.Background())
	require.True(t, started)
	require.NotEmpty(t, tokens)
	for _, token := range tokens {
		assert.Equal(t, "stored-token", token)
	}
}

func TestTokenFallsBackToDefault(t *testing.T) {
	secrets := newMemorySecrets()
	var tokens []string
	server := flexServer(t, "payload", &tokens)
	svc, configs := newTestSync(t, secrets, &fakeImporter{}, server.URL, 12*time.Hour, &stubClock{now: time.Now()})
	seedConfig(t, configs, time.Time{}, true)

	_, started := svc.RunDue(context.Background())
	require.True(t, started)
	require.NotEmpty(t, tokens)
	assert.Equal(t, "default-token", tokens[0])
}
