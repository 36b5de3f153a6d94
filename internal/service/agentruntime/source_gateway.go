package agentruntime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"FinScout/internal/domain/models"
	domsvc "FinScout/internal/domain/service"
	"FinScout/internal/service/ratelimit"
	xhttp "FinScout/pkg/http"
	"FinScout/pkg/logger"
)

var _ domsvc.SourceGateway = (*SourceGateway)(nil)

// BreakerSettings trips a source's breaker after MaxFailures consecutive
// transport failures and probes again after OpenTimeout.
type BreakerSettings struct {
	MaxFailures uint32
	OpenTimeout time.Duration
}

type queryRequest struct {
	Symbol           string    `json:"symbol,omitempty"`
	Price            float64   `json:"price"`
	Change24hPercent float64   `json:"change_24h_percent"`
	VolumeRatio      float64   `json:"volume_ratio"`
	Volatility       string    `json:"volatility"`
	Trend            string    `json:"trend"`
	Session          string    `json:"session"`
	Timestamp        time.Time `json:"timestamp"`
}

type queryResponse struct {
	Success        bool            `json:"success"`
	Data           json.RawMessage `json:"data"`
	Error          string          `json:"error,omitempty"`
	ResponseTimeMs float64         `json:"response_time_ms"`
}

// SourceGateway queries intelligence sources hosted by the agent runtime at
// POST {base}/v1/sources/{source}/query. Each source has its own rate
// limit bucket and circuit breaker.
type SourceGateway struct {
	client  *xhttp.Client
	limiter *ratelimit.Limiter
	breaker BreakerSettings
	log     *logger.Logger

	mu       sync.Mutex
	breakers map[models.SourceName]*gobreaker.CircuitBreaker
}

func NewSourceGateway(client *xhttp.Client, limiter *ratelimit.Limiter, breaker BreakerSettings, log *logger.Logger) *SourceGateway {
	if log == nil {
		log = logger.Nop()
	}
	if breaker.MaxFailures == 0 {
		breaker.MaxFailures = 5
	}
	if breaker.OpenTimeout <= 0 {
		breaker.OpenTimeout = 30 * time.Second
	}
	return &SourceGateway{
		client:   client,
		limiter:  limiter,
		breaker:  breaker,
		log:      log.With(logger.String("component", "source_gateway")),
		breakers: make(map[models.SourceName]*gobreaker.CircuitBreaker),
	}
}

func (g *SourceGateway) breakerFor(src models.SourceName) *gobreaker.CircuitBreaker {
	g.mu.Lock()
	defer g.mu.Unlock()
	cb, ok := g.breakers[src]
	if !ok {
		limit := g.breaker.MaxFailures
		cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    string(src),
			Timeout: g.breaker.OpenTimeout,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= limit
			},
			// A caller giving up is not the source's fault.
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, context.Canceled)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				g.log.Warn("source breaker state changed",
					logger.String("source", name),
					logger.String("from", from.String()),
					logger.String("to", to.String()))
			},
		})
		g.breakers[src] = cb
	}
	return cb
}

// Query returns an error for transport failures, an open breaker or a
// saturated limiter. A source that answered without data comes back with
// Success=false.
func (g *SourceGateway) Query(ctx context.Context, src models.SourceName, mc models.MarketContext) (models.SourceResponse, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx, string(src)); err != nil {
			return models.SourceResponse{}, fmt.Errorf("%s: rate limited: %w", src, err)
		}
	}

	req := queryRequest{
		Symbol:           mc.Symbol,
		Price:            mc.Price,
		Change24hPercent: mc.Change24hPercent,
		VolumeRatio:      mc.VolumeRatio,
		Volatility:       string(mc.Volatility),
		Trend:            string(mc.Trend),
		Session:          string(mc.Session),
		Timestamp:        mc.Timestamp,
	}

	start := time.Now()
	out, err := g.breakerFor(src).Execute(func() (interface{}, error) {
		var resp queryResponse
		if err := g.client.PostJSON(ctx, "/v1/sources/"+string(src)+"/query", req, &resp); err != nil {
			var se *xhttp.StatusError
			if errors.As(err, &se) && !se.Temporary() {
				// 4xx is a request problem, not a sick source.
				return queryResponse{Success: false, Error: se.Error()}, nil
			}
			return nil, err
		}
		return resp, nil
	})
	if err != nil {
		return models.SourceResponse{}, fmt.Errorf("%s: %w", src, err)
	}

	resp := out.(queryResponse)
	rt := resp.ResponseTimeMs
	if rt <= 0 {
		rt = float64(time.Since(start).Milliseconds())
	}
	return models.SourceResponse{
		Success:        resp.Success,
		Payload:        resp.Data,
		ResponseTimeMs: rt,
		Error:          resp.Error,
	}, nil
}

// BreakerStates reports the state of every breaker created so far.
func (g *SourceGateway) BreakerStates() map[models.SourceName]string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[models.SourceName]string, len(g.breakers))
	for name, cb := range g.breakers {
		out[name] = cb.State().String()
	}
	return out
}
