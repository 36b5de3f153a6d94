package agentruntime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinScout/internal/domain/models"
	"FinScout/internal/service/ratelimit"
	xhttp "FinScout/pkg/http"
)

var btc = models.MarketContext{
	Symbol: "BTCUSDT", Price: 45000, Change24hPercent: 6.5, VolumeRatio: 1.4,
	Volatility: models.VolatilityHigh, Trend: models.TrendBullish, Session: models.SessionAsian,
	Timestamp: time.Date(2024, 3, 1, 2, 0, 0, 0, time.UTC),
}

func TestSourceGateway_Query(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/sources/whale_tracker/query", r.URL.Path)
		var req queryRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "HIGH", req.Volatility)
		assert.Equal(t, 45000.0, req.Price)

		_, _ = w.Write([]byte(`{"success":true,"data":{"transactions":[{"amount":250}]},"response_time_ms":120}`))
	}))
	defer srv.Close()

	g := NewSourceGateway(xhttp.NewClient(srv.URL), ratelimit.New(100, 10), BreakerSettings{}, nil)
	resp, err := g.Query(context.Background(), models.SourceWhaleTracker, btc)
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, 120.0, resp.ResponseTimeMs)
	assert.JSONEq(t, `{"transactions":[{"amount":250}]}`, string(resp.Payload))
}

func TestSourceGateway_SourceReportsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"error":"exchange api down"}`))
	}))
	defer srv.Close()

	g := NewSourceGateway(xhttp.NewClient(srv.URL), nil, BreakerSettings{}, nil)
	resp, err := g.Query(context.Background(), models.SourceArbitrageScanner, btc)
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, "exchange api down", resp.Error)
}

func TestSourceGateway_BreakerOpensOnServerErrors(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	g := NewSourceGateway(xhttp.NewClient(srv.URL), nil, BreakerSettings{MaxFailures: 2, OpenTimeout: time.Minute}, nil)
	for i := 0; i < 2; i++ {
		_, err := g.Query(context.Background(), models.SourceDerivatives, btc)
		require.Error(t, err)
	}

	_, err := g.Query(context.Background(), models.SourceDerivatives, btc)
	require.Error(t, err)
	assert.True(t, errors.Is(err, gobreaker.ErrOpenState))
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
	assert.Equal(t, "open", g.BreakerStates()[models.SourceDerivatives])

	// Other sources keep their own breaker.
	_, err = g.Query(context.Background(), models.SourceFearGreed, btc)
	assert.False(t, errors.Is(err, gobreaker.ErrOpenState))
}

func TestSourceGateway_ClientErrorsDoNotTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "unknown source", http.StatusNotFound)
	}))
	defer srv.Close()

	g := NewSourceGateway(xhttp.NewClient(srv.URL), nil, BreakerSettings{MaxFailures: 1}, nil)
	for i := 0; i < 3; i++ {
		resp, err := g.Query(context.Background(), models.SourceNewsMonitor, btc)
		require.NoError(t, err)
		assert.False(t, resp.Success)
		assert.Contains(t, resp.Error, "404")
	}
	assert.Equal(t, "closed", g.BreakerStates()[models.SourceNewsMonitor])
}

func TestModelBackend_Invoke(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		var req invokeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "claude-3-haiku", req.Model)
		assert.Equal(t, "anthropic", req.Provider)
		assert.Equal(t, 256, req.MaxTokens)

		_, _ = w.Write([]byte(`{"text":"risk is elevated","usage":{"input_tokens":812,"output_tokens":64},"latency_ms":430}`))
	}))
	defer srv.Close()

	b := NewModelBackend(xhttp.NewClient(srv.URL, xhttp.WithBearerToken("sk-test")))
	resp, err := b.Invoke(context.Background(), "assess risk",
		models.ModelDescriptor{ID: "claude-3-haiku", Provider: "anthropic"},
		models.InvocationOptions{MaxTokens: 256})
	require.NoError(t, err)
	assert.Equal(t, models.InvocationResponse{Text: "risk is elevated", InputTokens: 812, OutputTokens: 64, LatencyMs: 430}, resp)
}

func TestModelBackend_Error(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewModelBackend(xhttp.NewClient(srv.URL)).Invoke(context.Background(), "x", models.ModelDescriptor{ID: "gpt-4o"}, models.InvocationOptions{})
	var se *xhttp.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusServiceUnavailable, se.Code)
}
