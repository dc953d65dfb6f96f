package interfaces

import (
	"net/http"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// withTracing 从请求头恢复上游的追踪上下文，并把带请求信息的 logger 放入 ctx
func withTracing(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		propagator := otel.GetTextMapPropagator()
		ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

		l := log.With().Str("method", r.Method).Str("path", r.URL.Path).Logger()
		ctx = l.WithContext(ctx)

		next(w, r.WithContext(ctx))
	})
}
