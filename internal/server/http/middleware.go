package httpserver

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/and161185/course-stream/internal/service"
)

var errUnauthenticated = echo.NewHTTPError(http.StatusUnauthorized, "Unauthenticated.")

// LoggingMiddleware logs one line per request. Only metadata: no bodies, no query strings.
func LoggingMiddleware(log *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			res := c.Response()
			log.Info("http",
				zap.String("method", c.Request().Method),
				zap.String("route", c.Path()),
				zap.Int("status", res.Status),
				zap.Duration("dur", time.Since(start)),
				zap.String("remote", c.RealIP()),
				zap.String("request_id", res.Header().Get(echo.HeaderXRequestID)),
			)
			return nil
		}
	}
}

// RecoverMiddleware turns panics into 500 responses.
func RecoverMiddleware(log *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					log.Error("panic",
						zap.Any("reason", r),
						zap.ByteString("stack", debug.Stack()),
						zap.String("route", c.Path()),
					)
					err = fmt.Errorf("panic: %v", r)
				}
			}()
			return next(c)
		}
	}
}

// BearerMiddleware requires "Authorization: Bearer <session>" and stores the subject in the request context.
func BearerMiddleware(sessions service.UserDirectory) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tok, ok := bearerToken(c.Request())
			if !ok {
				return errUnauthenticated
			}
			id, err := sessions.Verify(tok)
			if err != nil {
				return errUnauthenticated
			}
			req := c.Request()
			c.SetRequest(req.WithContext(withActor(req.Context(), id)))
			return next(c)
		}
	}
}
