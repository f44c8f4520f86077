package http

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/robertarktes/travel-reservations/internal/auth"
	"github.com/robertarktes/travel-reservations/internal/domain"
	"github.com/robertarktes/travel-reservations/internal/idempotency"
	"github.com/robertarktes/travel-reservations/internal/observability"
	"github.com/robertarktes/travel-reservations/internal/rateLimit"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
)

type loggerKey struct{}

func RequestIDMiddleware(next http.Handler) http.Handler {
	return middleware.RequestID(next)
}

// LoggerMiddleware stores a request-scoped logger in the context and writes
// one access log line per request.
func LoggerMiddleware(logger observability.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			entry := logger.WithField("request_id", middleware.GetReqID(r.Context()))
			ctx := context.WithValue(r.Context(), loggerKey{}, entry)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r.WithContext(ctx))

			entry.WithField("method", r.Method).
				WithField("path", r.URL.Path).
				WithField("status", ww.Status()).
				WithField("duration_ms", time.Since(start).Milliseconds()).
				Info("request served")
		})
	}
}

func loggerFrom(ctx context.Context, fallback observability.Logger) observability.Logger {
	if l, ok := ctx.Value(loggerKey{}).(observability.Logger); ok {
		return l
	}
	return fallback
}

// SessionMiddleware attaches the session of a valid bearer token. Requests
// without one, or with an invalid one, continue anonymously.
func SessionMiddleware(v *auth.Verifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := auth.FromHeader(r.Header.Get("Authorization"))
			if !ok || v == nil {
				next.ServeHTTP(w, r)
				return
			}
			s, err := v.Verify(raw)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithSession(r.Context(), s)))
		})
	}
}

// IdempotencyMiddleware replays the stored response of a POST that repeats
// an Idempotency-Key. Keys are scoped to the caller and route, and a key
// reused with a different body is rejected. Requests without a key pass
// through.
func IdempotencyMiddleware(idemp *idempotency.Idempotency, logger observability.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(idempotency.Header)
			if idemp == nil || r.Method != http.MethodPost || key == "" {
				next.ServeHTTP(w, r)
				return
			}
			if len(key) < 16 || len(key) > 255 {
				writeResult(w, domain.Fail(domain.CodeValidation, "invalid Idempotency-Key"), http.StatusOK)
				return
			}

			payload, err := io.ReadAll(r.Body)
			if err != nil {
				writeResult(w, domain.Fail(domain.CodeValidation, "Unable to read request body"), http.StatusOK)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(payload))
			hash := idempotency.Fingerprint(payload)

			caller := "anonymous"
			if s := auth.SessionFrom(r.Context()); s != nil {
				caller = s.UserID
			}
			scoped := caller + ":" + r.Method + ":" + r.URL.Path + ":" + key
			log := loggerFrom(r.Context(), logger)

			stored, err := idemp.Begin(r.Context(), scoped)
			switch {
			case errors.Is(err, idempotency.ErrInFlight):
				writeResult(w, domain.Fail(domain.CodeConflict, "A request with this Idempotency-Key is still in progress"), http.StatusOK)
				return
			case err != nil:
				log.WithError(err).Warn("idempotency store unavailable")
				next.ServeHTTP(w, r)
				return
			case stored != nil && !stored.Answers(hash):
				writeJSON(w, http.StatusUnprocessableEntity, domain.Fail(domain.CodeValidation, "Idempotency-Key was already used with a different request body"))
				return
			case stored != nil:
				if stored.ContentType != "" {
					w.Header().Set("Content-Type", stored.ContentType)
				}
				w.Header().Set(idempotency.ReplayedHdr, "true")
				w.WriteHeader(stored.Status)
				_, _ = w.Write(stored.Result)
				return
			}

			var body bytes.Buffer
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			ww.Tee(&body)
			next.ServeHTTP(ww, r)

			var resp *idempotency.Response
			if status := ww.Status(); status < http.StatusInternalServerError {
				resp = &idempotency.Response{Status: status, ContentType: ww.Header().Get("Content-Type"), Result: body.Bytes(), BodyHash: hash}
			}
			if err := idemp.End(context.WithoutCancel(r.Context()), scoped, resp); err != nil {
				log.WithError(err).Warn("failed to store idempotent response")
			}
		})
	}
}

// Limits are requests per minute.
type Limits struct {
	User int
	IP   int
}

// RateLimitMiddleware limits every request per client IP and mutating
// requests per user.
func RateLimitMiddleware(rl *rateLimit.RateLimiter, limits Limits) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if rl == nil {
				next.ServeHTTP(w, r)
				return
			}
			allowed := rl.Allow(r.Context(), "ip:"+clientIP(r), limits.IP, time.Minute)
			if s := auth.SessionFrom(r.Context()); allowed && s != nil && r.Method != http.MethodGet {
				allowed = rl.Allow(r.Context(), "user:"+s.UserID, limits.User, time.Minute)
			}
			if !allowed {
				w.Header().Set("Retry-After", "60")
				writeJSON(w, http.StatusTooManyRequests, domain.Fail("rate_limited", "Too many requests, please try again later"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

func TracingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		tracer := otel.Tracer("http")
		ctx, span := tracer.Start(ctx, r.Method+" "+r.URL.Path)
		defer span.End()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))

		span.SetName(r.Method + " " + routePattern(r))
		span.SetAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.route", routePattern(r)),
			attribute.Int("http.status_code", ww.Status()),
		)
		if ww.Status() >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(ww.Status()))
		}
	})
}

func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		observability.RequestsTotal.WithLabelValues(routePattern(r), strconv.Itoa(status), r.Method).Inc()
	})
}
