package httpmiddleware

import (
	"net/http"

	sdkapp "github.com/go-faster/sdk/app"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Instrument returns a middleware wiring the server into OpenTelemetry:
// otelhttp spans plus a request counter on the meter provider.
func Instrument(serviceName string, m *sdkapp.Telemetry) Middleware {
	meter := m.MeterProvider().Meter(serviceName)
	requests, err := meter.Int64Counter("http.server.requests",
		metric.WithDescription("Number of HTTP requests handled."),
	)

	return func(next http.Handler) http.Handler {
		counted := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err == nil {
				requests.Add(r.Context(), 1,
					metric.WithAttributes(attribute.String("http.request.method", r.Method)),
				)
			}
			next.ServeHTTP(w, r)
		})

		return otelhttp.NewHandler(counted, serviceName,
			otelhttp.WithTracerProvider(m.TracerProvider()),
			otelhttp.WithMeterProvider(m.MeterProvider()),
		)
	}
}
