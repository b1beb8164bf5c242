package middleware

import (
	"log/slog"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// LoggerConfig controls the request log middleware.
type LoggerConfig struct {
	// SkipPaths are not logged when they answer below 400. Entries ending in
	// "/" match every path under them.
	SkipPaths []string
}

// Logger returns a gin middleware that logs every request with the provided
// slog.Logger.
func Logger(log *slog.Logger) gin.HandlerFunc {
	return LoggerWithConfig(log, LoggerConfig{})
}

// LoggerWithConfig returns a gin middleware that logs each HTTP request. It
// records the method, path, matched route, status code, latency, and client IP.
//
// The log level is chosen based on the response status code:
//   - 2xx/3xx: Info
//   - 4xx: Warn
//   - 5xx: Error
//
// Records are written with the request context so the request_id attached by
// RequestID is included.
func LoggerWithConfig(log *slog.Logger, cfg LoggerConfig) gin.HandlerFunc {
	if log == nil {
		log = slog.Default()
	}

	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		status := c.Writer.Status()
		path := c.Request.URL.Path
		if status < 400 && skipPath(cfg.SkipPaths, path) {
			return
		}

		attrs := []slog.Attr{
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.String("route", c.FullPath()),
			slog.Int("status", status),
			slog.Duration("latency", time.Since(start)),
			slog.String("client_ip", c.ClientIP()),
		}
		if IsHTMX(c) {
			attrs = append(attrs, slog.Bool("htmx", true))
		}
		if errs := c.Errors.ByType(gin.ErrorTypeAny); len(errs) > 0 {
			attrs = append(attrs, slog.String("errors", errs.String()))
		}

		level := slog.LevelInfo
		switch {
		case status >= 500:
			level = slog.LevelError
		case status >= 400:
			level = slog.LevelWarn
		}
		log.LogAttrs(c.Request.Context(), level, "request", attrs...)
	}
}

func skipPath(skip []string, path string) bool {
	for _, p := range skip {
		if p == path || (strings.HasSuffix(p, "/") && strings.HasPrefix(path, p)) {
			return true
		}
	}
	return false
}
