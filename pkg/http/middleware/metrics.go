package middleware

import (
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"

	"MacroPanel/pkg/logger"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "macropanel_http_requests_total",
		Help: "HTTP requests by route, method and status",
	}, []string{"route", "method", "status"})

	httpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "macropanel_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"route", "method", "class"})

	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "macropanel_http_in_flight_requests",
		Help: "Requests currently being served",
	})

	regOnce sync.Once
)

// Metrics records request counts and latency labelled by the echo route
// template, so path parameters never reach label values. 5xx responses are
// logged as errors and requests slower than slow as warnings.
func Metrics(log *logger.Logger, slow time.Duration) echo.MiddlewareFunc {
	regOnce.Do(func() {
		prometheus.MustRegister(httpRequestsTotal, httpRequestDuration, httpInFlight)
	})

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			httpInFlight.Inc()
			defer httpInFlight.Dec()

			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			dur := time.Since(start)

			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method
			code := c.Response().Status

			httpRequestsTotal.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
			httpRequestDuration.WithLabelValues(route, method, statusClass(code)).Observe(dur.Seconds())

			switch {
			case code >= 500:
				log.Error("http request failed",
					logger.String("route", route),
					logger.String("method", method),
					logger.Int("status", code),
					logger.Duration("duration_ms", dur))
			case slow > 0 && dur >= slow:
				log.Warn("http request slow",
					logger.String("route", route),
					logger.String("method", method),
					logger.Int("status", code),
					logger.Duration("duration_ms", dur))
			}
			return nil
		}
	}
}

func statusClass(code int) string {
	if code < 100 || code > 599 {
		return "5xx"
	}
	return strconv.Itoa(code/100) + "xx"
}
