package obs

import (
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/toko-apparel/internal/common"
)

// NewLogger returns a zerolog logger writing JSON to stdout, or a console
// writer when format is "console" or "text". Unknown levels mean info.
func NewLogger(format, level string) zerolog.Logger {
	return newLogger(os.Stdout, format, level)
}

func newLogger(w io.Writer, format, level string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "console", "text":
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

// Component returns a child logger tagged with the component name.
func Component(logger zerolog.Logger, name string) zerolog.Logger {
	return logger.With().Str("component", name).Logger()
}

// quietPaths are logged at debug level; probes and scrapes would drown the log.
var quietPaths = map[string]bool{
	"/health/live":  true,
	"/health/ready": true,
	"/metrics":      true,
}

// RequestLogger writes one "http_request" line per request and puts a
// request-scoped logger on the context for zerolog.Ctx.
type RequestLogger struct {
	Logger zerolog.Logger
	// Slow marks requests slower than this with slow=true. Zero disables it.
	Slow time.Duration
}

func (l RequestLogger) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqLogger := l.Logger.With().Str("request_id", middleware.GetReqID(r.Context())).Logger()
		if sc := trace.SpanContextFromContext(r.Context()); sc.IsValid() {
			reqLogger = reqLogger.With().Str("trace_id", sc.TraceID().String()).Logger()
		}
		r = r.WithContext(reqLogger.WithContext(r.Context()))

		rec := NewStatusRecorder(w)
		next.ServeHTTP(rec, r)

		elapsed := time.Since(start)
		status := rec.Status()
		var evt *zerolog.Event
		switch {
		case status >= http.StatusInternalServerError:
			evt = reqLogger.Error()
		case status >= http.StatusBadRequest:
			evt = reqLogger.Warn()
		case quietPaths[r.URL.Path]:
			evt = reqLogger.Debug()
		default:
			evt = reqLogger.Info()
		}
		evt = evt.
			Str("method", r.Method).
			Str("route", routeLabel(r, r.URL.Path)).
			Str("path", r.URL.Path).
			Int("status", status).
			Dur("duration", elapsed).
			Int64("bytes", rec.BytesWritten()).
			Str("client_ip", common.ClientIP(r))
		if l.Slow > 0 && elapsed >= l.Slow {
			evt = evt.Bool("slow", true)
		}
		if user, ok := common.UserID(r.Context()); ok && user != "" {
			evt = evt.Str("user_id", user)
		}
		if common.HasRole(r.Context(), "admin") {
			evt = evt.Bool("admin", true)
		}
		if ua := r.UserAgent(); ua != "" {
			evt = evt.Str("user_agent", ua)
		}
		evt.Msg("http_request")
	})
}
