package http

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"FinScout/pkg/http/middleware"
)

// DataResponse writes the envelope with statusCode as both the HTTP status
// and the body status.
func DataResponse(c echo.Context, statusCode int, data interface{}) error {
	return c.JSON(statusCode, APIResponse{
		Status:  statusCode,
		Message: http.StatusText(statusCode),
		Data:    data,
	})
}

func SuccessResponse(c echo.Context, data interface{}) error {
	return DataResponse(c, http.StatusOK, data)
}

func AcceptedResponse(c echo.Context, data interface{}) error {
	return DataResponse(c, http.StatusAccepted, data)
}

func ListResponse(c echo.Context, rows interface{}, total int64) error {
	return SuccessResponse(c, &ListDataResponse{Rows: rows, Total: total})
}

func NoContentResponse(c echo.Context) error {
	return c.NoContent(http.StatusNoContent)
}

// BadRequestResponse writes validation failures.
func BadRequestResponse(c echo.Context, errs []ValidationError) error {
	return DataResponse(c, http.StatusBadRequest, errs)
}

// ErrorResponse maps err through FromDomainError and writes it.
func ErrorResponse(c echo.Context, err error) error {
	appErr := FromDomainError(err)
	if appErr.Status >= http.StatusInternalServerError {
		c.Set(middleware.ErrorKey, err)
	}
	return DataResponse(c, appErr.Status, []*AppError{appErr})
}
