package middleware

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/simp-lee/practiceadmin/internal/config"
)

var (
	defaultCORSMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	defaultCORSHeaders = []string{
		"Origin", "Content-Type", "Accept", "Authorization", "X-Requested-With", "X-CSRF-Token",
		"HX-Request", "HX-Current-URL", "HX-Target", "HX-Trigger",
	}
)

const defaultCORSMaxAge = 24 * time.Hour

// CORSOptions translates the server.cors section into a gin-contrib/cors
// configuration. Without an allowlist, debug mode allows every origin and
// release mode allows none.
func CORSOptions(mode string, cfg config.CORSConfig) cors.Config {
	out := cors.Config{
		AllowMethods:     defaultCORSMethods,
		AllowHeaders:     defaultCORSHeaders,
		ExposeHeaders:    []string{requestIDHeader, "HX-Trigger", "HX-Redirect"},
		AllowCredentials: cfg.AllowCredentials,
		MaxAge:           config.Duration(cfg.MaxAge, defaultCORSMaxAge),
	}
	if len(cfg.AllowMethods) > 0 {
		out.AllowMethods = cfg.AllowMethods
	}
	if len(cfg.AllowHeaders) > 0 {
		out.AllowHeaders = cfg.AllowHeaders
	}

	switch {
	case len(cfg.AllowOrigins) > 0:
		out.AllowOrigins = cfg.AllowOrigins
	case mode == gin.ReleaseMode:
		out.AllowOriginFunc = func(string) bool { return false }
	default:
		out.AllowAllOrigins = true
	}
	return out
}

// CORS returns the cross-origin middleware for the given mode and settings.
func CORS(mode string, cfg config.CORSConfig) gin.HandlerFunc {
	return cors.New(CORSOptions(mode, cfg))
}
