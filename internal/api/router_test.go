package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/carousel/internal/api/handler"
	"github.com/timmy/carousel/internal/cache"
	"github.com/timmy/carousel/internal/catalog"
	"github.com/timmy/carousel/internal/config"
	"github.com/timmy/carousel/internal/domain"
	"github.com/timmy/carousel/internal/metrics"
	"github.com/timmy/carousel/internal/service"
	"github.com/timmy/carousel/internal/source"
)

const generatedCatalog = `templates:
  - {name: meme_card, hint: meme, tags: [mood]}
  - {name: news_card, hint: news, tags: [headline]}
  - {name: scene_card, hint: scene, tags: [movie]}
  - {name: chart_card, hint: infographic, tags: [chart]}
`

type testServer struct {
	router *httptest.Server
	store  *cache.Store
}

func newTestServer(t *testing.T, cors config.CORSConfig) *testServer {
	t.Helper()

	cat, err := catalog.Parse([]byte(generatedCatalog))
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	m, err := metrics.NewPipelineMetrics(reg)
	require.NoError(t, err)

	store, err := cache.Open(context.Background(), cache.Options{
		Dir:               t.TempDir(),
		PlaceholderWidth:  300,
		PlaceholderHeight: 300,
		SpillDir:          t.TempDir(),
	}, cache.Deps{Catalog: cat, Metrics: m})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	svc := service.NewCarouselService(
		service.NewClassifier(nil, m, nil),
		service.NewResolver(service.ResolverConfig{}, source.NewRegistry(), store, m),
		service.NewValidator(service.ValidatorConfig{DenyList: config.DefaultDenyList}, m),
		nil,
	)

	r := SetupRouter(Deps{
		Carousel: svc,
		Cache:    store,
		Gatherer: reg,
		PruneAge: 24 * time.Hour,
	}, config.ServerConfig{Mode: "test", CORS: cors})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testServer{router: srv, store: store}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	} else {
		rd = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, s.router.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]interface{}{}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp, out
}

func fiveSlides() []domain.Slide {
	return []domain.Slide{
		{Index: 1, Text: "Most people quit right before the habit starts paying off."},
		{Index: 2, Text: "The president announced new tariffs on imported steel."},
		{Index: 3, Text: "Imports fell 12% within a single quarter."},
		{Index: 4, Text: "Me when my grocery bill arrives, ugh"},
		{Index: 5, Text: "Follow for more plain-language economics."},
	}
}

func TestHealthAndReadiness(t *testing.T) {
	s := newTestServer(t, config.CORSConfig{AllowAllOrigins: true})

	resp, body := s.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])

	resp, _ = s.do(t, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp, body = s.do(t, http.MethodPost, "/api/v1/admin/cache/prewarm", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	report := body["report"].(map[string]interface{})
	assert.Equal(t, float64(4), report["generated"])

	resp, _ = s.do(t, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestProcessBeforePrewarmIsUnavailable(t *testing.T) {
	s := newTestServer(t, config.CORSConfig{})
	resp, body := s.do(t, http.MethodPost, "/api/v1/carousels/process", map[string]interface{}{"slides": fiveSlides()})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, body["error"], "pre-warmed")
}

func TestProcessCarousel(t *testing.T) {
	s := newTestServer(t, config.CORSConfig{})
	_, err := s.store.PreWarm(context.Background())
	require.NoError(t, err)

	resp, body := s.do(t, http.MethodPost, "/api/v1/carousels/process", map[string]interface{}{
		"slides": fiveSlides(),
		"topic":  "economy",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["accepted"])
	assert.NotEmpty(t, body["id"])

	strategies := body["strategies"].(map[string]interface{})
	assert.Len(t, strategies, 5)
	hook := strategies["1"].(map[string]interface{})
	assert.Equal(t, "TEXT_ONLY", hook["visual_type"])
	data := strategies["3"].(map[string]interface{})
	assert.Equal(t, "INFOGRAPHIC", data["visual_type"])

	assets := body["assets"].(map[string]interface{})
	news := assets["2"].(map[string]interface{})
	assert.Equal(t, "template", news["source"])
	assert.Equal(t, true, news["floor"])
	assert.Equal(t, "news_card", news["key"])
}

func TestProcessRejectsBadInput(t *testing.T) {
	s := newTestServer(t, config.CORSConfig{})

	resp, _ := s.do(t, http.MethodPost, "/api/v1/carousels/process", map[string]interface{}{"slides": []domain.Slide{}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = s.do(t, http.MethodPost, "/api/v1/carousels/process", map[string]interface{}{
		"slides": []domain.Slide{{Index: 1, Text: "a"}, {Index: 3, Text: "b"}},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestValidateEndpoint(t *testing.T) {
	s := newTestServer(t, config.CORSConfig{})

	resp, body := s.do(t, http.MethodPost, "/api/v1/carousels/validate", map[string]interface{}{
		"slides": []domain.Slide{
			{Index: 1, Text: "Let's dive in!! Here is everything about budgeting."},
			{Index: 2, Text: strings.Repeat("word ", 80)},
			{Index: 3, Text: "Save this for payday."},
		},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["accepted"])

	validation := body["validation"].(map[string]interface{})
	slides := validation["slides"].(map[string]interface{})
	second := slides["2"].([]interface{})
	require.NotEmpty(t, second)
	assert.Equal(t, "text_too_long", second[0].(map[string]interface{})["code"])
	assert.Less(t, validation["naturalness"], float64(100))
}

func TestTruncateEndpoint(t *testing.T) {
	s := newTestServer(t, config.CORSConfig{})

	resp, body := s.do(t, http.MethodPost, "/api/v1/text/truncate", handler.TruncateRequest{Text: "hello world foo", Limit: 12})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "hello world…", body["text"])
	assert.Equal(t, true, body["truncated"])
	assert.Equal(t, float64(12), body["length"])

	resp, body = s.do(t, http.MethodPost, "/api/v1/text/truncate", handler.TruncateRequest{Text: "short", Role: domain.SlideRoleCTA})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "short", body["text"])
	assert.Equal(t, false, body["truncated"])
	assert.Equal(t, float64(180), body["limit"])

	resp, _ = s.do(t, http.MethodPost, "/api/v1/text/truncate", handler.TruncateRequest{Text: "no limit"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCacheAdmin(t *testing.T) {
	s := newTestServer(t, config.CORSConfig{})
	_, err := s.store.PreWarm(context.Background())
	require.NoError(t, err)

	resp, body := s.do(t, http.MethodGet, "/api/v1/admin/cache?hint=news", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["warmed"])
	assert.Equal(t, float64(1), body["total"])
	byKind := body["by_kind"].(map[string]interface{})
	assert.Equal(t, float64(4), byKind["template"])

	resp, body = s.do(t, http.MethodPost, "/api/v1/admin/cache/prune?older_than=1h", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(0), body["removed"])
	assert.Len(t, s.store.Entries(), 4, "templates are never pruned")

	resp, _ = s.do(t, http.MethodPost, "/api/v1/admin/cache/prune?older_than=soon", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = s.do(t, http.MethodPost, "/api/v1/admin/cache/prune?older_than=-1h", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, config.CORSConfig{})
	s.do(t, http.MethodPost, "/api/v1/carousels/validate", map[string]interface{}{
		"slides": []domain.Slide{{Index: 1, Text: "Most people quit right before the habit starts paying off."}},
	})

	resp, err := http.Get(s.router.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, buf.String(), `carousel_validations_total{outcome="accepted"} 1`)
}

func TestRequestIDAndCORS(t *testing.T) {
	s := newTestServer(t, config.CORSConfig{AllowedOrigins: []string{"https://studio.example"}})

	req, err := http.NewRequest(http.MethodOptions, s.router.URL+"/api/v1/carousels/process", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://studio.example")
	req.Header.Set("X-Request-ID", "req-123")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "https://studio.example", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "req-123", resp.Header.Get("X-Request-ID"))

	req, err = http.NewRequest(http.MethodGet, s.router.URL+"/health", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://evil.example")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}
