package middleware

import (
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// Logger emits one access log line per request. Routes are keyed by sales
// order, so the so_no path param is logged alongside the request identity
// to make tracing an order's change history through the logs cheap.
func Logger(logger ectologger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			req := c.Request()
			res := c.Response()
			start := time.Now()
			if err = next(c); err != nil {
				c.Error(err)
			}

			id := req.Header.Get(echo.HeaderXRequestID)
			if id == "" {
				id = res.Header().Get(echo.HeaderXRequestID)
				if id == "" {
					id = uuid.New().String()
				}
			}

			fields := map[string]any{
				"request_id": id,
				"method":     req.Method,
				"route":      c.Path(),
				"status":     res.Status,
				"remote_ip":  c.RealIP(),
				"duration":   time.Since(start),
			}
			if soNo := c.Param("so_no"); soNo != "" {
				fields["so_no"] = soNo
			}

			log := logger.WithContext(c.Request().Context()).WithFields(fields)
			if res.Status >= 500 {
				log.Error("Request failed")
			} else {
				log.Info("Request")
			}

			return nil
		}
	}
}
