package api

import (
	"github.com/labstack/echo/v4"

	"FinScout/internal/domain/models"
	"FinScout/internal/usecase"
	xhttp "FinScout/pkg/http"
	xlogger "FinScout/pkg/logger"
)

// ModelsHandler serves the model catalog, routing and invocation.
type ModelsHandler struct {
	logger *xlogger.Logger
	engine *usecase.Engine
}

func NewModelsHandler(logger *xlogger.Logger, engine *usecase.Engine) *ModelsHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &ModelsHandler{logger: logger, engine: engine}
}

func (h *ModelsHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/models")
	g.GET("", h.List)
	g.POST("/select", h.Select)
	g.POST("/explain", h.Explain)
	g.POST("/invoke", h.Invoke)
}

func (h *ModelsHandler) List(c echo.Context) error {
	all := h.engine.Models()
	return xhttp.ListResponse(c, all, int64(len(all)))
}

func (h *ModelsHandler) Select(c echo.Context) error {
	req := &models.RoutingCriteria{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	m, err := h.engine.SelectModel(*req)
	if err != nil {
		return xhttp.ErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, m)
}

// Explain returns every model's routing score and why the others were
// rejected.
func (h *ModelsHandler) Explain(c echo.Context) error {
	req := &models.RoutingCriteria{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	scores, rejections, err := h.engine.ExplainRouting(*req)
	if err != nil {
		return xhttp.ErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, RoutingExplanation{Scores: scores, Rejections: rejections})
}

func (h *ModelsHandler) Invoke(c echo.Context) error {
	req := &InvokeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.engine.InvokeModel(c.Request().Context(), req.Prompt, req.Criteria, req.Options())
	if err != nil {
		h.logger.Warn("model invocation failed",
			xlogger.String("task_type", string(req.Criteria.TaskType)),
			xlogger.Error(err))
		return xhttp.ErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, res)
}
