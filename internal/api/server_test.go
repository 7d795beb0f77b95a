package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/intake/internal/events"
	"github.com/mattjoyce/intake/internal/journal"
	"github.com/mattjoyce/intake/internal/monitor"
	"github.com/mattjoyce/intake/internal/outcome"
	"github.com/mattjoyce/intake/internal/scheduler"
)

type fakeMonitor struct {
	status monitor.Status
	items  []monitor.ItemView
}

func (f fakeMonitor) Name() string { return f.status.Name }

func (f fakeMonitor) Status() monitor.Status { return f.status }

func (f fakeMonitor) Snapshot() []monitor.ItemView { return f.items }

type fakeStore struct {
	got  journal.Query
	recs []outcome.Record
	err  error
}

func (f *fakeStore) Recent(_ context.Context, q journal.Query) ([]outcome.Record, error) {
	f.got = q
	return f.recs, f.err
}

type fakeJobs []scheduler.JobStatus

func (f fakeJobs) Jobs() []scheduler.JobStatus { return f }

func newTestServer(t *testing.T, apiKey string, deps Deps) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(New(Config{APIKey: apiKey}, deps, nil).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, url, key string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func testDeps() Deps {
	return Deps{
		Monitors: []monitor.Inspector{
			fakeMonitor{status: monitor.Status{Name: "partners", Tracked: 1}},
			fakeMonitor{
				status: monitor.Status{Name: "invoices", Directory: "/srv/in/invoices", Tracked: 2},
				items:  []monitor.ItemView{{Name: "a.csv", Size: 10}, {Name: "b.csv", Size: 20}},
			},
		},
	}
}

func TestHealthzNeedsNoAuth(t *testing.T) {
	srv := newTestServer(t, "secret", testDeps())

	resp := get(t, srv.URL+"/healthz", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body HealthzResponse
	decode(t, resp, &body)
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, 2, body.Monitors)
	assert.Equal(t, 3, body.Tracked)
}

func TestAuth(t *testing.T) {
	srv := newTestServer(t, "secret", testDeps())

	assert.Equal(t, http.StatusUnauthorized, get(t, srv.URL+"/monitors", "").StatusCode)
	assert.Equal(t, http.StatusUnauthorized, get(t, srv.URL+"/monitors", "wrong").StatusCode)
	assert.Equal(t, http.StatusOK, get(t, srv.URL+"/monitors", "secret").StatusCode)
}

func TestAuthDisabledWithoutKey(t *testing.T) {
	srv := newTestServer(t, "", testDeps())
	assert.Equal(t, http.StatusOK, get(t, srv.URL+"/monitors", "").StatusCode)
}

func TestMonitorsSortedByName(t *testing.T) {
	srv := newTestServer(t, "", testDeps())

	var body MonitorsResponse
	decode(t, get(t, srv.URL+"/monitors", ""), &body)
	require.Len(t, body.Monitors, 2)
	assert.Equal(t, "invoices", body.Monitors[0].Name)
	assert.Equal(t, "partners", body.Monitors[1].Name)
}

func TestMonitorAndItems(t *testing.T) {
	srv := newTestServer(t, "", testDeps())

	var status monitor.Status
	decode(t, get(t, srv.URL+"/monitors/invoices", ""), &status)
	assert.Equal(t, "/srv/in/invoices", status.Directory)

	var items ItemsResponse
	decode(t, get(t, srv.URL+"/monitors/invoices/items", ""), &items)
	assert.Equal(t, "invoices", items.Monitor)
	require.Len(t, items.Items, 2)
	assert.Equal(t, int64(20), items.Items[1].Size)

	assert.Equal(t, http.StatusNotFound, get(t, srv.URL+"/monitors/absent", "").StatusCode)
	assert.Equal(t, http.StatusNotFound, get(t, srv.URL+"/monitors/absent/items", "").StatusCode)
}

func TestOutcomes(t *testing.T) {
	store := &fakeStore{recs: []outcome.Record{{ID: "r1", Monitor: "invoices", Kind: outcome.KindError}}}
	deps := testDeps()
	deps.Outcomes = store
	srv := newTestServer(t, "", deps)

	resp := get(t, srv.URL+"/outcomes?monitor=invoices&kind=error&limit=5000", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Outcomes []outcome.Record `json:"outcomes"`
	}
	decode(t, resp, &body)
	require.Len(t, body.Outcomes, 1)
	assert.Equal(t, "r1", body.Outcomes[0].ID)
	assert.Equal(t, journal.Query{Monitor: "invoices", Kind: outcome.KindError, Limit: maxOutcomeLimit}, store.got)

	assert.Equal(t, http.StatusBadRequest, get(t, srv.URL+"/outcomes?limit=-1", "").StatusCode)
	assert.Equal(t, http.StatusBadRequest, get(t, srv.URL+"/outcomes?kind=lost", "").StatusCode)

	store.err = errors.New("database is locked")
	assert.Equal(t, http.StatusInternalServerError, get(t, srv.URL+"/outcomes", "").StatusCode)
}

func TestOptionalRoutesWithoutDeps(t *testing.T) {
	srv := newTestServer(t, "", Deps{})

	assert.Equal(t, http.StatusServiceUnavailable, get(t, srv.URL+"/outcomes", "").StatusCode)
	assert.Equal(t, http.StatusServiceUnavailable, get(t, srv.URL+"/jobs", "").StatusCode)
	assert.Equal(t, http.StatusServiceUnavailable, get(t, srv.URL+"/events", "").StatusCode)
	assert.Equal(t, http.StatusNotFound, get(t, srv.URL+"/metrics", "").StatusCode)
}

func TestJobsAndMetrics(t *testing.T) {
	deps := testDeps()
	deps.Jobs = fakeJobs{{Name: "invoices", Period: time.Second, Runs: 3}}
	deps.Metrics = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("intake_outcomes_total 1\n"))
	})
	srv := newTestServer(t, "secret", deps)

	var body struct {
		Jobs []scheduler.JobStatus `json:"jobs"`
	}
	decode(t, get(t, srv.URL+"/jobs", "secret"), &body)
	require.Len(t, body.Jobs, 1)
	assert.Equal(t, 3, body.Jobs[0].Runs)

	// Scrapes need no token.
	assert.Equal(t, http.StatusOK, get(t, srv.URL+"/metrics", "").StatusCode)
}

func TestEventsReplayAndStream(t *testing.T) {
	hub := events.NewHub(8)
	hub.Publish(events.TypeItemPromoted, map[string]string{"item": "a.csv"})
	hub.Publish(events.TypeItemPromoted, map[string]string{"item": "b.csv"})
	deps := testDeps()
	deps.Events = hub
	srv := newTestServer(t, "", deps)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events", nil)
	require.NoError(t, err)
	req.Header.Set("Last-Event-ID", "1")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := make(chan string, 32)
	go func() {
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()

	next := func() string {
		for {
			select {
			case l, ok := <-lines:
				require.True(t, ok, "stream ended")
				if strings.HasPrefix(l, "id: ") {
					return l
				}
			case <-time.After(2 * time.Second):
				t.Fatal("timed out waiting for event")
			}
		}
	}

	assert.Equal(t, "id: 2", next())
	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, time.Second, 5*time.Millisecond)
	hub.Publish(events.TypeOutcome, map[string]string{"id": "r1"})
	assert.Equal(t, "id: 3", next())
}

func TestExtractAPIKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://example.test", nil)
	_, err := ExtractAPIKey(req)
	assert.Error(t, err)

	req.Header.Set("Authorization", "Token abc")
	_, err = ExtractAPIKey(req)
	assert.Error(t, err)

	req.Header.Set("Authorization", "Bearer    ")
	_, err = ExtractAPIKey(req)
	assert.Error(t, err)

	req.Header.Set("Authorization", "Bearer  test-key ")
	key, err := ExtractAPIKey(req)
	require.NoError(t, err)
	assert.Equal(t, "test-key", key)

	assert.True(t, ValidateAPIKey("k", "k"))
	assert.False(t, ValidateAPIKey("k", "other"))
	assert.False(t, ValidateAPIKey("", ""))
}
