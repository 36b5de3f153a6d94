package middleware

import (
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"FinScout/pkg/logger"
)

// ErrorKey is the echo context key handlers use to hand a server-side
// error to RequestLogging.
const ErrorKey = "finscout.error"

// RequestLogging logs one line per request and tags responses with a
// request id.
func RequestLogging(log *logger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			res := c.Response()

			id := req.Header.Get(echo.HeaderXRequestID)
			if id == "" {
				id = uuid.NewString()
			}
			res.Header().Set(echo.HeaderXRequestID, id)

			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			fields := []logger.Field{
				logger.String("request_id", id),
				logger.String("method", req.Method),
				logger.String("route", c.Path()),
				logger.Int("status", res.Status),
				logger.Duration("latency", time.Since(start)),
				logger.String("remote_ip", c.RealIP()),
			}
			if herr, ok := c.Get(ErrorKey).(error); ok {
				fields = append(fields, logger.Error(herr))
			}
			switch {
			case res.Status >= 500:
				log.Error("http request failed", fields...)
			case res.Status >= 400:
				log.Warn("http request rejected", fields...)
			default:
				log.Debug("http request", fields...)
			}
			return nil
		}
	}
}
