package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/simp-lee/ginx"
)

const rateLimitIdleTTL = 10 * time.Minute

// RateLimitConfig holds the per-client token bucket settings.
type RateLimitConfig struct {
	// RPS is the sustained rate, in requests per second.
	RPS int
	// Burst is the bucket size.
	Burst int
	// SkipPaths are exempt from limiting, e.g. health checks. Entries ending
	// in "/" match every path under them.
	SkipPaths []string
}

// RateLimit returns a gin middleware that enforces a token bucket per client
// IP. Limiters of idle clients expire after ten minutes. Over the limit the
// request is rejected with 429, a Retry-After header, and either a JSON body
// or, for htmx requests, an error toast and no body.
//
// Each call gets its own limiter store, so two engines never share buckets.
func RateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	limit := ginx.RateLimit(cfg.RPS, cfg.Burst,
		ginx.WithIP(),
		ginx.WithStore(ginx.NewMemoryLimiterStore(rateLimitIdleTTL)),
		ginx.WithSkipFunc(func(c *gin.Context) bool {
			return skipPath(cfg.SkipPaths, c.Request.URL.Path)
		}),
	)

	return ginx.NewChain().
		WithErrorFormat(func(status int, message string) any {
			return gin.H{"code": status, "message": message, "data": nil}
		}).
		Use(toastOnReject(limit)).
		Build()
}

// toastOnReject runs limit with a writer that turns its 429 JSON body into an
// HX-Trigger toast for htmx requests. The writer is removed again before the
// request continues past the limiter.
func toastOnReject(limit ginx.Middleware) ginx.Middleware {
	return func(next gin.HandlerFunc) gin.HandlerFunc {
		plain := limit(next)
		htmx := limit(func(c *gin.Context) {
			if w, ok := c.Writer.(*rejectToastWriter); ok {
				c.Writer = w.ResponseWriter
			}
			next(c)
		})
		return func(c *gin.Context) {
			if !IsHTMX(c) {
				plain(c)
				return
			}
			orig := c.Writer
			c.Writer = &rejectToastWriter{ResponseWriter: orig}
			htmx(c)
			c.Writer = orig
		}
	}
}

type rejectToastWriter struct {
	gin.ResponseWriter
	rejected bool
}

func (w *rejectToastWriter) WriteHeader(code int) {
	if code == http.StatusTooManyRequests && !w.rejected {
		w.rejected = true
		setToastHeader(w.Header(), "Too many requests, please slow down.", ToastError)
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *rejectToastWriter) Write(b []byte) (int, error) {
	if !w.rejected {
		return w.ResponseWriter.Write(b)
	}
	w.Header().Del("Content-Type")
	w.ResponseWriter.WriteHeaderNow()
	return len(b), nil
}

func (w *rejectToastWriter) WriteString(s string) (int, error) {
	return w.Write([]byte(s))
}
