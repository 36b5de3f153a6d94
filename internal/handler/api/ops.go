package api

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"

	"FinScout/internal/domain/models"
	"FinScout/internal/usecase"
	xhttp "FinScout/pkg/http"
	"FinScout/pkg/queue"
)

// BreakerReporter reports per-source circuit breaker states.
type BreakerReporter interface {
	BreakerStates() map[models.SourceName]string
}

// QueueStats reports job queue depth.
type QueueStats interface {
	Stats(ctx context.Context) (queue.Stats, error)
}

type Health struct {
	Status          string                       `json:"status"`
	CyclesCompleted int64                        `json:"cycles_completed"`
	LastCycleAt     *time.Time                   `json:"last_cycle_at,omitempty"`
	Breakers        map[models.SourceName]string `json:"breakers,omitempty"`
}

// OpsHandler serves liveness and operational state. Both collaborators
// are optional.
type OpsHandler struct {
	engine     *usecase.Engine
	breakers   BreakerReporter
	queue      QueueStats
	staleAfter time.Duration
	now        func() time.Time
}

func NewOpsHandler(engine *usecase.Engine, breakers BreakerReporter, q QueueStats) *OpsHandler {
	return &OpsHandler{engine: engine, breakers: breakers, queue: q, now: time.Now}
}

// WithStaleAfter reports degraded health once the last completed cycle is
// older than d. Zero disables the check.
func (h *OpsHandler) WithStaleAfter(d time.Duration) *OpsHandler {
	h.staleAfter = d
	return h
}

func (h *OpsHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/api/health", h.Health)
	e.GET("/api/queue/stats", h.QueueStats)
}

func (h *OpsHandler) Health(c echo.Context) error {
	rep := h.engine.PerformanceReport()
	out := Health{Status: "ok", CyclesCompleted: rep.CyclesCompleted}
	if !rep.LastCycleAt.IsZero() {
		last := rep.LastCycleAt
		out.LastCycleAt = &last
		if h.staleAfter > 0 && h.now().Sub(last) > h.staleAfter {
			out.Status = "degraded"
		}
	}
	if h.breakers != nil {
		out.Breakers = h.breakers.BreakerStates()
		for _, state := range out.Breakers {
			if state == "open" {
				out.Status = "degraded"
				break
			}
		}
	}
	return xhttp.SuccessResponse(c, out)
}

func (h *OpsHandler) QueueStats(c echo.Context) error {
	if h.queue == nil {
		return xhttp.ErrorResponse(c, xhttp.ServiceUnavailableError("cycle queue is not enabled"))
	}
	st, err := h.queue.Stats(c.Request().Context())
	if err != nil {
		return xhttp.ErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, st)
}
