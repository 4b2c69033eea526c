package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albapepper/expirywatch/internal/api/handler"
	"github.com/albapepper/expirywatch/internal/cache"
	"github.com/albapepper/expirywatch/internal/config"
	"github.com/albapepper/expirywatch/internal/digest"
	"github.com/albapepper/expirywatch/internal/expiry"
	"github.com/albapepper/expirywatch/internal/kvstore"
	"github.com/albapepper/expirywatch/internal/notifications"
)

var fixedNow = time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

type fakeDigest struct {
	result digest.RunResult
	err    error
}

func (f fakeDigest) Run(context.Context) (digest.RunResult, error) { return f.result, f.err }

type fakeDB struct{ err error }

func (f fakeDB) HealthCheck(context.Context) error { return f.err }

type testServer struct {
	*httptest.Server
	sched *notifications.Scheduler
	kv    *kvstore.Memory
}

func newTestServer(t *testing.T, mutate func(*handler.Deps)) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	kv := kvstore.NewMemory()
	store := notifications.NewStateStore(kv, logger)
	sched, err := notifications.NewScheduler(
		notifications.NewDispatcher(logger, notifications.DispatcherOptions{}),
		store,
		notifications.SchedulerOptions{TriggerHour: 6, Location: time.UTC, Now: func() time.Time { return fixedNow }},
		logger)
	require.NoError(t, err)
	sched.UpdateProducts([]expiry.Product{
		{ID: "1", Name: "Saumon", Expiry: "2026-10-17T12:00:00Z"},
		{ID: "2", Name: "Pizza", Expiry: "2026-10-23T12:00:00Z"},
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	deps := handler.Deps{
		Cache:     cache.New(ctx, true),
		Scheduler: sched,
		State:     store,
		Channels:  []string{"direct"},
		Location:  time.UTC,
		Now:       func() time.Time { return fixedNow },
	}
	if mutate != nil {
		mutate(&deps)
	}

	cfg := &config.Config{CORSAllowOrigins: []string{"http://localhost:5173"}}
	srv := httptest.NewServer(NewRouter(deps, cfg, logger))
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, sched: sched, kv: kv}
}

func getJSON(t *testing.T, url string, header http.Header) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]any
	if resp.StatusCode != http.StatusNotModified {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	}
	return resp, body
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, body := getJSON(t, ts.URL+"/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", body["status"])
	assert.NotEmpty(t, resp.Header.Get("X-Process-Time"))

	_, body = getJSON(t, ts.URL+"/health/db", nil)
	assert.Equal(t, "disabled", body["database"])

	resp, _ = getJSON(t, ts.URL+"/health/cache", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHealthDB_Unhealthy(t *testing.T) {
	ts := newTestServer(t, func(d *handler.Deps) { d.DB = fakeDB{err: errors.New("down")} })
	resp, body := getJSON(t, ts.URL+"/health/db", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "disconnected", body["database"])
}

func TestGetExpiry_CachedWithETag(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, body := getJSON(t, ts.URL+"/api/v1/expiry", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "MISS", resp.Header.Get("X-Cache"))
	assert.Equal(t, "display", body["window"])
	assert.Equal(t, "2026-10-18", body["today"])

	buckets := body["buckets"].(map[string]any)
	assert.Len(t, buckets["expired"], 1)
	assert.Len(t, buckets["warning"], 1)

	etag := resp.Header.Get("ETag")
	require.NotEmpty(t, etag)

	resp, _ = getJSON(t, ts.URL+"/api/v1/expiry", nil)
	assert.Equal(t, "HIT", resp.Header.Get("X-Cache"))

	resp, _ = getJSON(t, ts.URL+"/api/v1/expiry", http.Header{"If-None-Match": {etag}})
	assert.Equal(t, http.StatusNotModified, resp.StatusCode)
}

func TestGetExpiry_UrgentWindow(t *testing.T) {
	ts := newTestServer(t, nil)
	_, body := getJSON(t, ts.URL+"/api/v1/expiry?window=urgent", nil)
	buckets := body["buckets"].(map[string]any)
	assert.Len(t, buckets["expired"], 1)
	assert.NotContains(t, buckets, "warning")
}

func TestGetExpiry_BadWindow(t *testing.T) {
	ts := newTestServer(t, nil)
	resp, body := getJSON(t, ts.URL+"/api/v1/expiry?window=weekly", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_WINDOW", body["error"].(map[string]any)["code"])
}

type failingLister struct{}

func (failingLister) ListProducts(context.Context) ([]expiry.Product, error) {
	return nil, errors.New("db down")
}

func TestGetExpiry_ListerFailure(t *testing.T) {
	ts := newTestServer(t, func(d *handler.Deps) { d.Products = failingLister{} })
	resp, _ := getJSON(t, ts.URL+"/api/v1/expiry", nil)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestPostSnapshot_ReplacesAndInvalidates(t *testing.T) {
	ts := newTestServer(t, nil)

	getJSON(t, ts.URL+"/api/v1/expiry", nil) // warm cache

	payload := fmt.Sprintf(`{"products":[
		{"id":"a","name":"Glace","expiry":{"seconds":%d}},
		{"id":"b","name":"Lait","expiry":%d},
		{"id":"c","name":"Broken","expiry":"soon"}
	]}`, fixedNow.AddDate(0, 0, 2).Unix(), fixedNow.AddDate(0, 0, 1).UnixMilli())

	resp, err := http.Post(ts.URL+"/api/v1/products/snapshot", "application/json", strings.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, float64(3), body["accepted"])
	assert.Equal(t, float64(2), body["urgent"])
	assert.Equal(t, float64(1), body["invalidated"])
	assert.Len(t, body["invalid"], 1)

	assert.Len(t, ts.sched.Products(), 3)

	r, expiryBody := getJSON(t, ts.URL+"/api/v1/expiry?window=urgent", nil)
	assert.Equal(t, "MISS", r.Header.Get("X-Cache"))
	critical := expiryBody["buckets"].(map[string]any)["critical"].([]any)
	assert.Len(t, critical, 2)
}

func TestPostSnapshot_BadBody(t *testing.T) {
	ts := newTestServer(t, nil)
	resp, err := http.Post(ts.URL+"/api/v1/products/snapshot", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestNotificationState(t *testing.T) {
	ts := newTestServer(t, nil)

	_, body := getJSON(t, ts.URL+"/api/v1/notifications/state", nil)
	assert.Equal(t, "idle", body["scheduler"])
	assert.Equal(t, false, body["fired_today"])
	assert.Nil(t, body["last_fired_on"])
	assert.Equal(t, float64(2), body["products"])

	require.NoError(t, ts.kv.Set(context.Background(), "expiry.lastFiredDay", "2026-10-18"))
	_, body = getJSON(t, ts.URL+"/api/v1/notifications/state", nil)
	assert.Equal(t, true, body["fired_today"])
	assert.Equal(t, "2026-10-18", body["last_fired_on"])
}

func TestDigestRun(t *testing.T) {
	post := func(ts *testServer) (*http.Response, map[string]any) {
		resp, err := http.Post(ts.URL+"/api/v1/digest/run", "application/json", nil)
		require.NoError(t, err)
		defer resp.Body.Close()
		var body map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		return resp, body
	}

	resp, _ := post(newTestServer(t, nil))
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	ok := newTestServer(t, func(d *handler.Deps) {
		d.Digest = fakeDigest{result: digest.RunResult{RunID: "r1", Sent: true, Items: 2}}
	})
	resp, body := post(ok)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "r1", body["run_id"])
	assert.Equal(t, true, body["sent"])

	fatal := newTestServer(t, func(d *handler.Deps) {
		d.Digest = fakeDigest{err: fmt.Errorf("%w: smtp 421", digest.ErrTransportFatal)}
	})
	resp, body = post(fatal)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, "TRANSPORT_FAILED", body["error"].(map[string]any)["code"])
}

func TestRateLimit(t *testing.T) {
	limited := RateLimitMiddleware(2, time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "203.0.113.7:5555"
		limited.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusNoContent, http.StatusTooManyRequests, http.StatusTooManyRequests}, codes)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)
	getJSON(t, ts.URL+"/health", nil)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(b), "expirywatch_http_request_duration_seconds")
}
