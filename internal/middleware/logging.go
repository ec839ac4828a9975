package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/HammerMeetNail/levelup/internal/handlers"
	"github.com/HammerMeetNail/levelup/internal/logging"
)

const requestIDHeader = "X-Request-ID"

// HTTPObserver receives one observation per finished request.
type HTTPObserver interface {
	ObserveHTTPRequest(method, route string, status int, duration time.Duration)
}

// responseRecorder wraps http.ResponseWriter to capture status code and size.
type responseRecorder struct {
	http.ResponseWriter
	statusCode int
	size       int
}

func (r *responseRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	n, err := r.ResponseWriter.Write(b)
	r.size += n
	return n, err
}

type routeInfoKey struct{}

// routeInfo is filled in by Route, which runs inside the mux layer where
// r.Pattern and the principal are visible.
type routeInfo struct {
	pattern string
	userID  string
}

// Route records the matched pattern and authenticated user for the
// enclosing RequestLogger. Wrap it directly around the ServeMux.
func (l *RequestLogger) Route(mux http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mux.ServeHTTP(w, r)
		info, ok := r.Context().Value(routeInfoKey{}).(*routeInfo)
		if !ok {
			return
		}
		info.pattern = r.Pattern
		if principal := handlers.GetPrincipalFromContext(r.Context()); principal != nil {
			info.userID = principal.UserID
		}
	})
}

// RequestLogger logs HTTP requests with timing information and tags each
// one with a request ID.
type RequestLogger struct {
	logger   *logging.Logger
	observer HTTPObserver
}

func NewRequestLogger(logger *logging.Logger, observer HTTPObserver) *RequestLogger {
	if logger == nil {
		logger = logging.Default
	}
	return &RequestLogger{logger: logger, observer: observer}
}

func (l *RequestLogger) Apply(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get(requestIDHeader)
		if _, err := uuid.Parse(requestID); err != nil {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)
		info := &routeInfo{}
		ctx := handlers.SetRequestIDInContext(r.Context(), requestID)
		r = r.WithContext(context.WithValue(ctx, routeInfoKey{}, info))

		recorder := &responseRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(recorder, r)

		duration := time.Since(start)

		route := info.pattern
		if route == "" {
			route = r.Pattern
		}
		if route == "" {
			route = "unmatched"
		}
		if l.observer != nil {
			l.observer.ObserveHTTPRequest(r.Method, route, recorder.statusCode, duration)
		}

		fields := map[string]interface{}{
			"method":      r.Method,
			"path":        r.URL.Path,
			"route":       route,
			"status":      recorder.statusCode,
			"size":        recorder.size,
			"duration_ms": duration.Milliseconds(),
			"remote_addr": GetClientIP(r),
			"request_id":  requestID,
		}
		if info.userID != "" {
			fields["user_id"] = info.userID
		}

		switch {
		case recorder.statusCode >= 500:
			l.logger.Error("HTTP request", fields)
		case recorder.statusCode >= 400:
			l.logger.Warn("HTTP request", fields)
		default:
			l.logger.Info("HTTP request", fields)
		}
	})
}
