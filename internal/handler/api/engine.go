package api

import (
	"time"

	"github.com/labstack/echo/v4"

	"FinScout/internal/domain/models"
	"FinScout/internal/usecase"
	xhttp "FinScout/pkg/http"
	xlogger "FinScout/pkg/logger"
	"FinScout/pkg/queue"
	"FinScout/pkg/util"
)

const (
	defaultSignalLimit  = 100
	maxSignalLimit      = 1000
	defaultSignalWindow = 24 * time.Hour
)

// EngineHandler exposes decision cycles, reports and operator resets.
type EngineHandler struct {
	logger *xlogger.Logger
	engine *usecase.Engine
	jobs   queue.Publisher
	now    func() time.Time
}

// NewEngineHandler wires the handler. jobs may be nil, which disables the
// async cycle route.
func NewEngineHandler(logger *xlogger.Logger, engine *usecase.Engine, jobs queue.Publisher) *EngineHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &EngineHandler{logger: logger, engine: engine, jobs: jobs, now: time.Now}
}

func (h *EngineHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.POST("/cycles", h.RunCycle)
	g.POST("/cycles/async", h.EnqueueCycle)
	g.GET("/signals", h.Signals)
	g.GET("/reports/performance", h.Performance)
	g.GET("/reports/usage", h.Usage)
	g.DELETE("/reports/usage", h.ResetUsage)
	g.DELETE("/sources/metrics", h.ResetSourceMetrics)
}

func (h *EngineHandler) RunCycle(c echo.Context) error {
	req := &CycleRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.engine.ExecuteCycle(c.Request().Context(), req.Tick())
	if err != nil {
		h.logger.Warn("cycle rejected", xlogger.Error(err))
		return xhttp.ErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *EngineHandler) EnqueueCycle(c echo.Context) error {
	if h.jobs == nil {
		return xhttp.ErrorResponse(c, xhttp.ServiceUnavailableError("cycle queue is not enabled"))
	}
	req := &CycleRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	id, err := h.jobs.Enqueue(c.Request().Context(), usecase.CycleJobType, req.Tick())
	if err != nil {
		h.logger.Error("enqueue cycle failed", xlogger.Error(err))
		return xhttp.ErrorResponse(c, err)
	}
	return xhttp.AcceptedResponse(c, CycleAccepted{JobID: id})
}

// Signals lists recorded signals, newest first. since accepts a timestamp
// or a lookback such as 6h; limit is capped.
func (h *EngineHandler) Signals(c echo.Context) error {
	now := h.now()
	since := util.ParseSince(c.QueryParam("since"), now, now.Add(-defaultSignalWindow))
	limit := util.ClampInt(util.ParseIntDefault(c.QueryParam("limit"), defaultSignalLimit), 1, maxSignalLimit)

	signals, err := h.engine.RecentSignals(c.Request().Context(), since, limit)
	if err != nil {
		return xhttp.ErrorResponse(c, err)
	}
	return xhttp.ListResponse(c, signals, int64(len(signals)))
}

func (h *EngineHandler) Performance(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.engine.PerformanceReport())
}

func (h *EngineHandler) Usage(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.engine.UsageReport())
}

func (h *EngineHandler) ResetUsage(c echo.Context) error {
	h.engine.ResetUsage()
	return xhttp.NoContentResponse(c)
}

// ResetSourceMetrics resets ?source=... (repeatable), or every source.
func (h *EngineHandler) ResetSourceMetrics(c echo.Context) error {
	raw := c.QueryParams()["source"]
	names := make([]models.SourceName, 0, len(raw))
	for _, s := range raw {
		names = append(names, models.SourceName(s))
	}
	if err := h.engine.ResetSourceMetrics(c.Request().Context(), names...); err != nil {
		return xhttp.ErrorResponse(c, err)
	}
	return xhttp.NoContentResponse(c)
}
