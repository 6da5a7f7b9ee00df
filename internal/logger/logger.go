package logger

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

type Config struct {
	Level   string
	Format  string
	Service string
	Env     string
}

type ctxKey int

const (
	ctxKeyLogger ctxKey = iota
	ctxKeyRequestID
)

var (
	levelVar      slog.LevelVar
	defaultLogger *slog.Logger
)

func Default() *slog.Logger {
	if defaultLogger != nil {
		return defaultLogger
	}
	return slog.Default()
}

// InitFromEnv initializes the default logger from LOG_LEVEL, LOG_FORMAT,
// SERVICE_NAME and APP_ENV.
func InitFromEnv() *slog.Logger {
	return Init(Config{
		Level:   os.Getenv("LOG_LEVEL"),
		Format:  os.Getenv("LOG_FORMAT"),
		Service: os.Getenv("SERVICE_NAME"),
		Env:     os.Getenv("APP_ENV"),
	})
}

// Init configures the process-wide logger. Only time, level and msg live at the
// record root; every attribute is scoped under the top-level `data` group.
func Init(cfg Config) *slog.Logger {
	levelVar.Set(parseLevel(cfg.Level))

	opts := &slog.HandlerOptions{Level: &levelVar}

	var h slog.Handler
	if strings.EqualFold(strings.TrimSpace(cfg.Format), "text") {
		h = slog.NewTextHandler(os.Stdout, opts)
	} else {
		h = slog.NewJSONHandler(os.Stdout, opts)
	}

	service := strings.TrimSpace(cfg.Service)
	if service == "" {
		service = processName()
	}

	base := slog.New(h).WithGroup("data").With("service", service)
	if env := strings.TrimSpace(cfg.Env); env != "" {
		base = base.With("env", env)
	}

	defaultLogger = base
	slog.SetDefault(defaultLogger)
	return defaultLogger
}

// FromContext returns the request-scoped logger, falling back to the default.
// A request id stored in the context is attached as an attribute.
func FromContext(ctx context.Context) *slog.Logger {
	l := Default()
	if ctx == nil {
		return l
	}
	if v := ctx.Value(ctxKeyLogger); v != nil {
		if lg, ok := v.(*slog.Logger); ok && lg != nil {
			l = lg
		}
	}
	if v := ctx.Value(ctxKeyRequestID); v != nil {
		if id, ok := v.(string); ok && id != "" {
			l = l.With("request_id", id)
		}
	}
	return l
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxKeyRequestID, requestID)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func processName() string {
	if len(os.Args) == 0 || os.Args[0] == "" {
		return "app"
	}
	path := os.Args[0]
	if i := strings.LastIndexByte(path, '/'); i >= 0 && i+1 < len(path) {
		return path[i+1:]
	}
	return path
}
