package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/cors"
)

// corsMiddleware adapts rs/cors to echo. Empty origins allow any origin.
func corsMiddleware(origins []string) echo.MiddlewareFunc {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         600,
	})
	return echo.WrapMiddleware(c.Handler)
}
