package middleware

import (
	"context"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/simp-lee/ginx"
	"github.com/simp-lee/logger"
)

const (
	requestIDHeader = "X-Request-ID"
	requestIDLength = 32
)

var requestIDPattern = regexp.MustCompile(`^[A-Za-z0-9-]{1,64}$`)

var requestIDFallbackCounter atomic.Uint64

// RequestIDConfig controls request-id reuse behavior.
type RequestIDConfig struct {
	// TrustUpstream reuses a well-formed X-Request-ID sent by a proxy in front
	// of the console instead of minting a new one.
	TrustUpstream bool
}

// RequestID returns a gin middleware that assigns a unique request ID to each
// request. Incoming X-Request-ID headers are ignored.
func RequestID() gin.HandlerFunc {
	return RequestIDWithConfig(RequestIDConfig{})
}

// RequestIDWithConfig returns a gin middleware that assigns request IDs based on config.
//
// The ID is stored with ginx.SetRequestID, echoed in the X-Request-ID
// response header, and attached to the request context with
// logger.WithContextAttrs so every log record of the request carries it.
func RequestIDWithConfig(cfg RequestIDConfig) gin.HandlerFunc {
	opts := []ginx.RequestIDOption{
		ginx.WithRequestIDHeader(requestIDHeader),
		ginx.WithRequestIDGenerator(generateRequestID),
		ginx.WithContextInjector(func(ctx context.Context, id string) context.Context {
			return logger.WithContextAttrs(ctx, slog.String("request_id", id))
		}),
	}
	chain := ginx.NewChain()
	if cfg.TrustUpstream {
		// Malformed upstream IDs are dropped so a fresh one is minted.
		chain.Use(dropInvalidRequestID)
	} else {
		opts = append(opts, ginx.WithIgnoreIncoming())
	}
	return chain.Use(ginx.RequestID(opts...)).Build()
}

func dropInvalidRequestID(next gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !isValidRequestID(c.GetHeader(requestIDHeader)) {
			c.Request.Header.Del(requestIDHeader)
		}
		next(c)
	}
}

func isValidRequestID(id string) bool {
	return requestIDPattern.MatchString(id)
}

// GetRequestID extracts the request ID from the gin.Context.
// Returns an empty string if no request ID is set.
func GetRequestID(c *gin.Context) string {
	id, _ := ginx.GetRequestID(c)
	return id
}

// generateRequestID returns a random UUID as 32 hex characters. Should the
// random source fail, a time and counter based ID of the same length is used.
func generateRequestID() string {
	u, err := uuid.NewRandom()
	if err != nil {
		ts := strconv.FormatInt(time.Now().UnixNano(), 16)
		n := strconv.FormatUint(requestIDFallbackCounter.Add(1), 16)
		id := ts + strings.Repeat("0", requestIDLength) + n
		return id[:requestIDLength-len(n)] + n
	}
	return strings.ReplaceAll(u.String(), "-", "")
}
