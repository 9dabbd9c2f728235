package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harvestkit/harvestkit/internal/crawler"
	"github.com/harvestkit/harvestkit/internal/frontier"
	"github.com/harvestkit/harvestkit/internal/state"
)

func newTestServer(t *testing.T) (*Server, *state.CrawlState) {
	t.Helper()
	st := state.New(frontier.DefaultClassifier())
	st.AddSeed("example.com", "https://example.com", "https://example.com")
	st.AddSeed("other.example", "https://other.example", "https://other.example")
	sources := []crawler.CrawlSource{
		{Domain: "example.com", URL: "https://example.com", MaxPages: 100},
		{Domain: "other.example", URL: "https://other.example", MaxPages: 10},
	}
	return NewServer(st, sources, "run-1234", prometheus.NewRegistry(), nil), st
}

func doGet(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthAndReady(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doGet(t, s, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = doGet(t, s, "/readyz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ready"}`, rec.Body.String())
}

func TestGetProgress(t *testing.T) {
	s, st := newTestServer(t)
	st.Stats.Accepted.Add(7)
	st.Stats.RejectedQuality.Add(2)
	st.MarkVisited("https://example.com/a")
	st.IncrementDomainCount("example.com")

	rec := doGet(t, s, "/api/v1/progress")
	require.Equal(t, http.StatusOK, rec.Code)

	var got progressDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "run-1234", got.RunID)
	assert.Equal(t, 1, got.Visited)
	assert.Equal(t, int64(7), got.Statistics.Accepted)
	assert.Equal(t, int64(2), got.Statistics.RejectedQuality)
	require.Len(t, got.Domains, 2)
	assert.Equal(t, "example.com", got.Domains[0].Domain)
	assert.Equal(t, 1, got.Domains[0].Crawled)
	assert.Equal(t, 100, got.Domains[0].Budget)
	assert.Equal(t, 1, got.Domains[0].Queued)
}

func TestGetDomain(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doGet(t, s, "/api/v1/domains/example.com")
	require.Equal(t, http.StatusOK, rec.Code)
	var got struct {
		Domain domainDTO `json:"domain"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "example.com", got.Domain.Domain)
	assert.Equal(t, 100, got.Domain.Budget)

	rec = doGet(t, s, "/api/v1/domains/missing.example")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListDomainsSorted(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doGet(t, s, "/api/v1/domains")
	require.Equal(t, http.StatusOK, rec.Code)
	var got struct {
		Domains []domainDTO `json:"domains"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got.Domains, 2)
	assert.Equal(t, "example.com", got.Domains[0].Domain)
	assert.Equal(t, "other.example", got.Domains[1].Domain)
}

func TestMetricsEndpoint(t *testing.T) {
	st := state.New(frontier.DefaultClassifier())
	reg := prometheus.NewRegistry()
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "crawl_test_gauge"})
	reg.MustRegister(gauge)
	gauge.Set(42)

	s := NewServer(st, nil, "run-1", reg, nil)
	rec := doGet(t, s, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "crawl_test_gauge 42")
}
