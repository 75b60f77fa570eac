// Package httpmiddleware contains net/http middlewares shared by the
// storefront HTTP server.
package httpmiddleware

import (
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Middleware is a net/http middleware.
type Middleware = func(http.Handler) http.Handler

// Wrap handler using given middlewares. The first middleware is the
// outermost one.
func Wrap(h http.Handler, middlewares ...Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// Route is a matched route of the router.
type Route struct {
	Method  string
	Pattern string
}

// OperationID returns a stable name for the route, e.g. "POST /api/orders".
func (r Route) OperationID() string {
	return r.Method + " " + r.Pattern
}

// RouteFinder finds the route serving method and u.
type RouteFinder func(method string, u *url.URL) (Route, bool)

// routeMatcher is implemented by *chi.Mux.
type routeMatcher interface {
	Find(rctx *chi.Context, method, path string) string
}

// MakeRouteFinder returns a RouteFinder backed by a chi router.
func MakeRouteFinder(routes routeMatcher) RouteFinder {
	return func(method string, u *url.URL) (Route, bool) {
		pattern := routes.Find(chi.NewRouteContext(), method, u.Path)
		if pattern == "" {
			return Route{}, false
		}
		return Route{Method: method, Pattern: pattern}, true
	}
}

// Telemetry provides the OpenTelemetry providers used by Instrument.
type Telemetry interface {
	TracerProvider() trace.TracerProvider
	MeterProvider() metric.MeterProvider
	TextMapPropagator() propagation.TextMapPropagator
}

// InjectLogger injects logger into request context.
func InjectLogger(lg *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			l := lg
			if id := RequestIDFromContext(ctx); id != "" {
				l = l.With(zap.String("request_id", id))
			}
			next.ServeHTTP(w, r.WithContext(zctx.Base(ctx, l)))
		})
	}
}

// Instrument sets up otelhttp tracing and metrics. Spans are named after the
// matched route.
func Instrument(serviceName string, find RouteFinder, m Telemetry) Middleware {
	return func(h http.Handler) http.Handler {
		return otelhttp.NewHandler(h, "",
			otelhttp.WithPropagators(m.TextMapPropagator()),
			otelhttp.WithTracerProvider(m.TracerProvider()),
			otelhttp.WithMeterProvider(m.MeterProvider()),
			otelhttp.WithServerName(serviceName),
			otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
				if route, ok := find(r.Method, r.URL); ok {
					return serviceName + "." + route.OperationID()
				}
				return operation
			}),
		)
	}
}

// statusRecorder captures the response status code.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter { return s.ResponseWriter }

// LogRequests logs incoming requests using context logger.
func LogRequests(find RouteFinder) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			lg := zctx.From(r.Context())
			op := zap.Skip()
			if route, ok := find(r.Method, r.URL); ok {
				op = zap.String("operation", route.OperationID())
			}
			lg.Debug("Got request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				op,
			)

			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			lg.Debug("Request finished",
				op,
				zap.Int("status", rec.status),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}

// Labeler adds the matched route to otelhttp metric attributes.
func Labeler(find RouteFinder) Middleware {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route, ok := find(r.Method, r.URL)
			if !ok {
				h.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			labeler, found := otelhttp.LabelerFromContext(ctx)
			labeler.Add(attribute.String("http.route", route.Pattern))
			if !found {
				ctx = otelhttp.ContextWithLabeler(ctx, labeler)
			}
			h.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
