package app

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"

	"github.com/cascadeprojects/crm221/internal/auth"
	"github.com/cascadeprojects/crm221/internal/observability"
	"github.com/cascadeprojects/crm221/internal/platform/httpx"
)

const (
	defaultRequestTimeout = 30 * time.Second
	requestsPerMinute     = 120
)

// MiddlewareConfig aggregates dependencies shared by the middleware stack.
type MiddlewareConfig struct {
	Logger   *slog.Logger
	Config  *Config
	Metrics *observability.Metrics
}

// MiddlewareStack returns the chain applied to every route, outermost first.
func MiddlewareStack(cfg MiddlewareConfig) []func(http.Handler) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	production := cfg.Config != nil && cfg.Config.IsProduction()
	timeout := defaultRequestTimeout
	if cfg.Config != nil && cfg.Config.AppRequestTimeout > 0 {
		timeout = cfg.Config.AppRequestTimeout
	}

	chain := []func(http.Handler) http.Handler{
		middleware.RealIP,
		middleware.RequestID,
	}
	if !InTestMode() {
		chain = append(chain, accessLog(logger))
	}
	chain = append(chain,
		middleware.Recoverer,
		middleware.Timeout(timeout),
		securityHeaders(logger, production),
		middleware.Compress(5),
		httprate.Limit(requestsPerMinute, time.Minute,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
				httpx.Problem(w, http.StatusTooManyRequests, "Too Many Requests", "rate limit exceeded")
			}),
		),
	)
	if cfg.Metrics != nil {
		chain = append(chain, cfg.Metrics.Middleware)
	}
	return chain
}

// SessionStack loads the caller's session and reports it to the session
// gauge. It is mounted only on routes that act on a session.
func SessionStack(sessions *auth.Sessions, metrics *observability.Metrics) []func(http.Handler) http.Handler {
	if sessions == nil {
		return nil
	}
	return []func(http.Handler) http.Handler{sessions.Middleware, sessionStatusMiddleware(metrics)}
}

// securityHeaders sets the API's response headers. HTTPS is enforced only in
// production, behind a proxy that reports X-Forwarded-Proto.
func securityHeaders(logger *slog.Logger, production bool) func(http.Handler) http.Handler {
	s := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		ReferrerPolicy:        "no-referrer",
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		SSLRedirect:           production,
		SSLProxyHeaders:       map[string]string{"X-Forwarded-Proto": "https"},
		STSSeconds:            31536000,
		IsDevelopment:         !production,
	})
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := s.Process(w, r); err != nil {
				logger.Warn("request rejected by security headers", slog.String("path", r.URL.Path), slog.Any("error", err))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// accessLog writes one structured line per request.
func accessLog(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			level := slog.LevelInfo
			if ww.Status() >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			logger.LogAttrs(r.Context(), level, "http request",
				slog.String("request_id", middleware.GetReqID(r.Context())),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}

// sessionStatusMiddleware reports in-flight requests by caller status.
func sessionStatusMiddleware(metrics *observability.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if metrics == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			status := auth.StatusAnonymous.String()
			if m := auth.ManagerFromContext(r.Context()); m != nil {
				status = m.Status().String()
			}
			defer metrics.TrackSession(status)()
			next.ServeHTTP(w, r)
		})
	}
}
