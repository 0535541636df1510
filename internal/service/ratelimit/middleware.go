package ratelimit

import (
	"github.com/labstack/echo/v4"

	pkghttp "MacroPanel/pkg/http"
)

// Middleware rejects requests over the per-client budget with 429. Clients
// are keyed by their real IP.
func (l *Limiter) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !l.Allow(c.RealIP()) {
				return pkghttp.AppErrorResponse(c, pkghttp.TooManyRequestsError("rate limit exceeded, slow down"))
			}
			return next(c)
		}
	}
}
