package flexquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/flexfolio/src/logger"
)

func TestMain(m *testing.M) {
	logger.InitLogger("error")
	os.Exit(m.Run())
}

// fakeClock advances instantly on Sleep and records the requested
// delays.
type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return ctx.Err()
}

const submitSuccess = `<FlexStatementResponse timestamp="x"><Status>Success</Status><ReferenceCode>12345</ReferenceCode></FlexStatementResponse>`

func notReady(code int) string {
	return fmt.Sprintf(`<FlexStatementResponse><Status>Warn</Status><ErrorCode>%d</ErrorCode><ErrorMessage>generating</ErrorMessage></FlexStatementResponse>`, code)
}

func testClient(serverURL string, clk Clock) *Client {
	return NewClient(serverURL, 2*time.Second, 30*time.Second, 5*time.Minute, time.Nanosecond).WithClock(clk)
}

func TestFetchImmediatePayload(t *testing.T) {
	payload := "ClientAccountID,Symbol\nU1,AAPL\n"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, "SendRequest"):
			assert.Equal(t, "tok", r.URL.Query().Get("t"))
			assert.Equal(t, "q1", r.URL.Query().Get("q"))
			assert.Equal(t, "3", r.URL.Query().Get("v"))
			fmt.Fprint(w, submitSuccess)
		case strings.Contains(r.URL.Path, "GetStatement"):
			assert.Equal(t, "12345", r.URL.Query().Get("q"))
			fmt.Fprint(w, payload)
		}
	}))
	defer server.Close()

	body, err := testClient(server.URL, &fakeClock{}).Fetch(context.Background(), "tok", "q1")
	require.NoError(t, err)
	assert.Equal(t, payload, string(body))
}

func TestFetchPollsUntilReady(t *testing.T) {
	payload := "ClientAccountID,Symbol\nU1,AAPL\n"
	polls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "SendRequest") {
			fmt.Fprint(w, submitSuccess)
			return
		}
		polls++
		if polls < 4 {
			fmt.Fprint(w, notReady(1003))
			return
		}
		fmt.Fprint(w, payload)
	}))
	defer server.Close()

	clk := &fakeClock{}
	body, err := testClient(server.URL, clk).Fetch(context.Background(), "tok", "q1")
	require.NoError(t, err)
	assert.Equal(t, payload, string(body))

	// Backoff doubles from the minimum.
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}, clk.sleeps)
}

func TestFetchBackoffCapped(t *testing.T) {
	polls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "SendRequest") {
			fmt.Fprint(w, submitSuccess)
			return
		}
		polls++
		if polls < 8 {
			fmt.Fprint(w, notReady(1019))
			return
		}
		fmt.Fprint(w, "payload")
	}))
	defer server.Close()

	clk := &fakeClock{}
	client := NewClient(server.URL, 2*time.Second, 5*time.Second, time.Hour, time.Nanosecond).WithClock(clk)
	_, err := client.Fetch(context.Background(), "tok", "q1")
	require.NoError(t, err)

	for _, d := range clk.sleeps {
		assert.LessOrEqual(t, d, 5*time.Second)
	}
}

func TestFetchTimesOut(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "SendRequest") {
			fmt.Fprint(w, submitSuccess)
			return
		}
		fmt.Fprint(w, notReady(1003))
	}))
	defer server.Close()

	clk := &fakeClock{}
	client := NewClient(server.URL, 2*time.Second, 4*time.Second, 10*time.Second, time.Nanosecond).WithClock(clk)
	_, err := client.Fetch(context.Background(), "tok", "q1")
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestFetchFatalCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "SendRequest") {
			fmt.Fprint(w, submitSuccess)
			return
		}
		fmt.Fprint(w, `<FlexStatementResponse><Status>Fail</Status><ErrorCode>1020</ErrorCode><ErrorMessage>invalid query</ErrorMessage></FlexStatementResponse>`)
	}))
	defer server.Close()

	_, err := testClient(server.URL, &fakeClock{}).Fetch(context.Background(), "tok", "q1")
	var protoErr *ProtocolError
	require.ErrorAs(t, err, &protoErr)
	assert.Equal(t, 1020, protoErr.Code)
	assert.Contains(t, protoErr.Message, "invalid query")
}

func TestFetchSubmitRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<FlexStatementResponse><Status>Fail</Status><ErrorCode>1012</ErrorCode><ErrorMessage>token expired</ErrorMessage></FlexStatementResponse>`)
	}))
	defer server.Close()

	_, err := testClient(server.URL, &fakeClock{}).Fetch(context.Background(), "tok", "q1")
	var protoErr *ProtocolError
	require.ErrorAs(t, err, &protoErr)
	assert.Equal(t, 1012, protoErr.Code)
}

func TestFetchHTTPErrorFatal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := testClient(server.URL, &fakeClock{}).Fetch(context.Background(), "tok", "q1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrTimeout)
	assert.Contains(t, err.Error(), "503")
}

func TestFetchContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "SendRequest") {
			fmt.Fprint(w, submitSuccess)
			return
		}
		fmt.Fprint(w, notReady(1003))
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	clk := &cancellingClock{cancel: cancel}
	client := NewClient(server.URL, 2*time.Second, 30*time.Second, time.Hour, time.Nanosecond).WithClock(clk)
	_, err := client.Fetch(ctx, "tok", "q1")
	assert.True(t, errors.Is(err, context.Canceled))
}

// cancellingClock cancels the context on the first sleep, simulating
// shutdown mid-backoff.
type cancellingClock struct {
	now    time.Time
	cancel context.CancelFunc
}

func (c *cancellingClock) Now() time.Time { return c.now }

func (c *cancellingClock) Sleep(ctx context.Context, d time.Duration) error {
	c.cancel()
	return ctx.Err()
}
