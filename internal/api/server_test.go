package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/waio/crawlwatch/internal/classifier"
	"github.com/waio/crawlwatch/internal/config"
	"github.com/waio/crawlwatch/internal/feed"
	"github.com/waio/crawlwatch/internal/ingest"
	"github.com/waio/crawlwatch/internal/report"
	"github.com/waio/crawlwatch/internal/storage/memory"
	"github.com/waio/crawlwatch/internal/visit"
)

const googlebotUA = "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"

type testEnv struct {
	srv   *httptest.Server
	store *memory.VisitStore
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()

	store := memory.NewVisitStore()
	registry := feed.NewRegistry(zap.NewNop())
	pipeline := ingest.New(classifier.Default(), store, registry, ingest.Config{PersistUnknown: true})
	t.Cleanup(func() {
		require.NoError(t, pipeline.Close(context.Background()))
	})

	cfg := config.Config{
		Server: config.ServerConfig{Port: 0, TimeoutSeconds: 10},
		Ingest: config.IngestConfig{BufferSize: 64, PersistUnknown: true},
		Feed:   config.FeedConfig{WriteTimeoutMs: 1000},
	}
	server := NewServer(store, pipeline, registry, nil, report.New("", ""), cfg, zap.NewNop())
	srv := httptest.NewServer(server.Handler())
	t.Cleanup(srv.Close)
	return testEnv{srv: srv, store: store}
}

func (e testEnv) get(t *testing.T, path string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(e.srv.URL + path)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	return resp, body
}

func (e testEnv) seed(t *testing.T, rec visit.Record) {
	t.Helper()
	_, err := e.store.Append(context.Background(), rec)
	require.NoError(t, err)
}

func msPtr(v int64) *int64 { return &v }

func TestHealthAndReady(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	resp, _ := env.get(t, "/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = env.get(t, "/readyz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

// TestTestPageRecordsVisit requests the instrumented page as a crawler and
// waits for the visit to land in the store.
func TestTestPageRecordsVisit(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	req, err := http.NewRequest(http.MethodGet, env.srv.URL+"/test/articles", nil)
	require.NoError(t, err)
	req.Header.Set("User-Agent", googlebotUA)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	assert.Contains(t, string(body), "Test page: articles")
	assert.Contains(t, string(body), "Googlebot")

	require.Eventually(t, func() bool {
		total, err := env.store.TotalCount(context.Background())
		return err == nil && total == 1
	}, 2*time.Second, 10*time.Millisecond)

	recent, err := env.store.Recent(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "/test/articles", recent[0].URL)
	assert.Equal(t, "Googlebot", recent[0].BotName)
	assert.NotEmpty(t, recent[0].SourceAddress)
	assert.NotContains(t, recent[0].SourceAddress, ":")
}

func TestRecentVisitsEndpoint(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	now := time.Now().UTC()
	env.seed(t, visit.Record{Timestamp: now, URL: "/test/a", BotName: "Googlebot", BotCategory: visit.CategorySearchEngine})
	env.seed(t, visit.Record{Timestamp: now.Add(time.Minute), URL: "/test/b", BotName: "GPTBot", BotCategory: visit.CategoryLLM})

	resp, body := env.get(t, "/api/visits/recent?limit=1")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var payload struct {
		Visits []visit.Record `json:"visits"`
	}
	require.NoError(t, json.Unmarshal(body, &payload))
	require.Len(t, payload.Visits, 1)
	assert.Equal(t, "/test/b", payload.Visits[0].URL)

	resp, _ = env.get(t, "/api/visits/recent?limit=bogus")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = env.get(t, "/api/visits/recent?limit=-1")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = env.get(t, "/api/visits/recent?url=/test/a")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &payload))
	require.Len(t, payload.Visits, 1)
	assert.Equal(t, "/test/a", payload.Visits[0].URL)
}

func TestBotStatsEndpoint(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	now := time.Now().UTC()
	for i := 0; i < 2; i++ {
		env.seed(t, visit.Record{Timestamp: now, URL: "/a", BotName: "Googlebot", BotCategory: visit.CategorySearchEngine})
	}
	env.seed(t, visit.Record{Timestamp: now, URL: "/a", BotName: "GPTBot", BotCategory: visit.CategoryLLM})

	resp, body := env.get(t, "/api/stats/bots")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var payload struct {
		ByCategory map[string]int64 `json:"byCategory"`
		ByBot      []struct {
			BotName string `json:"botName"`
			Count   int64  `json:"count"`
		} `json:"byBot"`
		Total int64 `json:"total"`
	}
	require.NoError(t, json.Unmarshal(body, &payload))
	assert.Equal(t, int64(3), payload.Total)
	assert.Equal(t, int64(2), payload.ByCategory["search_engine"])
	require.NotEmpty(t, payload.ByBot)
	assert.Equal(t, "Googlebot", payload.ByBot[0].BotName)
}

func TestSummaryEndpoint(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	now := time.Now().UTC()
	env.seed(t, visit.Record{Timestamp: now, URL: "/a", BotName: "Googlebot", BotCategory: visit.CategorySearchEngine, SourceAddress: "1.1.1.1", ResponseTimeMs: msPtr(100)})
	env.seed(t, visit.Record{Timestamp: now.Add(-48 * time.Hour), URL: "/a", BotName: "GPTBot", BotCategory: visit.CategoryLLM, SourceAddress: "2.2.2.2", ResponseTimeMs: msPtr(300)})

	resp, body := env.get(t, "/api/stats/summary")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var payload struct {
		Total                 int64   `json:"total"`
		Last24Hours           int     `json:"last24Hours"`
		UniqueSources         int64   `json:"uniqueSources"`
		AverageResponseTimeMs float64 `json:"averageResponseTimeMs"`
	}
	require.NoError(t, json.Unmarshal(body, &payload))
	assert.Equal(t, int64(2), payload.Total)
	assert.Equal(t, 1, payload.Last24Hours)
	assert.Equal(t, int64(2), payload.UniqueSources)
	assert.InDelta(t, 200.0, payload.AverageResponseTimeMs, 0.001)
}

func TestDistributionEndpoint(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	now := time.Now().UTC()
	env.seed(t, visit.Record{Timestamp: now, URL: "/a", BotName: "Googlebot", BotCategory: visit.CategorySearchEngine})
	env.seed(t, visit.Record{Timestamp: now, URL: "/a", BotName: "GPTBot", BotCategory: visit.CategoryLLM})

	resp, body := env.get(t, "/api/stats/distribution")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var payload struct {
		Buckets []struct {
			Bucket     string  `json:"bucket"`
			Count      int64   `json:"count"`
			Percentage float64 `json:"percentage"`
		} `json:"buckets"`
	}
	require.NoError(t, json.Unmarshal(body, &payload))
	require.Len(t, payload.Buckets, 2)
	var sum float64
	for _, b := range payload.Buckets {
		sum += b.Percentage
	}
	assert.InDelta(t, 100.0, sum, 0.001)

	resp, _ = env.get(t, "/api/stats/distribution?group_by=bot&since=24h")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = env.get(t, "/api/stats/distribution?group_by=week")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = env.get(t, "/api/stats/distribution?since=yesterday")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTrendEndpoint(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	now := time.Now().UTC()
	env.seed(t, visit.Record{Timestamp: now, URL: "/a", BotName: "Googlebot", BotCategory: visit.CategorySearchEngine})

	resp, body := env.get(t, "/api/stats/trend?days=7")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var payload struct {
		Trend []struct {
			Date  string `json:"date"`
			Count int64  `json:"count"`
		} `json:"trend"`
	}
	require.NoError(t, json.Unmarshal(body, &payload))
	require.Len(t, payload.Trend, 1)
	assert.Equal(t, int64(1), payload.Trend[0].Count)

	resp, _ = env.get(t, "/api/stats/trend?days=0")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestURLStatsEndpoint(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	now := time.Now().UTC()
	env.seed(t, visit.Record{Timestamp: now, URL: "/test/articles", BotName: "Googlebot", BotCategory: visit.CategorySearchEngine})

	resp, _ := env.get(t, "/api/stats/url")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body := env.get(t, "/api/stats/url?url=/test")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var payload struct {
		TotalVisits int64 `json:"totalVisits"`
		UniqueBots  int64 `json:"uniqueBots"`
	}
	require.NoError(t, json.Unmarshal(body, &payload))
	assert.Equal(t, int64(1), payload.TotalVisits)
	assert.Equal(t, int64(1), payload.UniqueBots)
}

func TestReportEndpoint(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.seed(t, visit.Record{Timestamp: time.Now().UTC(), URL: "/a", BotName: "Googlebot", BotCategory: visit.CategorySearchEngine, ResponseTimeMs: msPtr(90)})

	resp, body := env.get(t, "/api/report")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/plain")
	assert.Contains(t, string(body), "CRAWLWATCH DAILY CRAWLER REPORT")
	assert.Contains(t, string(body), "Total Visits: 1")
}

// TestSimulateDisabled verifies the endpoint answers 503 when no simulator
// is configured.
func TestSimulateDisabled(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	resp, err := http.Post(env.srv.URL+"/api/simulate", "application/json",
		strings.NewReader(`{"targetUrl":"http://example.com"}`))
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestRequestIDHeader(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	resp, _ := env.get(t, "/healthz")
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
}
