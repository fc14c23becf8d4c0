package httpclient

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// loggingTransport logs every request with a sanitized URL, injects the
// User-Agent, and propagates the active trace context onto the outgoing
// headers.
type loggingTransport struct {
	base      http.RoundTripper
	userAgent string
}

func newLoggingTransport(base http.RoundTripper, userAgent string) *loggingTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &loggingTransport{base: base, userAgent: userAgent}
}

// RoundTrip implements http.RoundTripper.
func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()

	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", t.userAgent)
	}
	otel.GetTextMapPropagator().Inject(req.Context(), propagation.HeaderCarrier(req.Header))

	resp, err := t.base.RoundTrip(req)
	elapsed := time.Since(start).Milliseconds()
	logURL := sanitizeURL(req.URL)

	if err != nil {
		slog.Warn("http request failed",
			slog.String("method", req.Method),
			slog.String("url", logURL),
			slog.Int64("duration_ms", elapsed),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	level := slog.LevelDebug
	if resp.StatusCode >= 400 {
		level = slog.LevelWarn
	}
	slog.Log(req.Context(), level, "http request",
		slog.String("method", req.Method),
		slog.String("url", logURL),
		slog.Int("status", resp.StatusCode),
		slog.Int64("duration_ms", elapsed),
	)
	return resp, nil
}

// Query parameter names redacted from logs, matched as case-insensitive
// substrings.
var sensitiveParams = []string{
	"api_key", "apikey", "token", "password", "auth", "secret", "key", "credential",
}

// sanitizeURL replaces secret-bearing query parameter values with [REDACTED]
// so logs never leak credentials.
func sanitizeURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	q := u.Query()
	for param := range q {
		lower := strings.ToLower(param)
		for _, sensitive := range sensitiveParams {
			if strings.Contains(lower, sensitive) {
				q.Set(param, "[REDACTED]")
				break
			}
		}
	}
	safe := *u
	safe.RawQuery = q.Encode()
	return safe.String()
}
