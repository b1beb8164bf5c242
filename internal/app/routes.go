package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/simp-lee/practiceadmin/internal/metrics"
	"github.com/simp-lee/practiceadmin/internal/middleware"
	"github.com/simp-lee/practiceadmin/internal/pkg"
	"github.com/simp-lee/practiceadmin/web"
)

// APIPrefix is the mount point of the JSON API.
const APIPrefix = "/api"

// RouteDeps holds all dependencies needed to register routes.
type RouteDeps struct {
	Modules    []Module
	DB         *gorm.DB
	Mode       string // "debug" or "release"
	CSRFSecret string
	// Authenticate resolves the principal of API and page requests.
	Authenticate gin.HandlerFunc
	// Metrics is mounted at MetricsPath when set.
	Metrics     *metrics.Metrics
	MetricsPath string
}

// RegisterRoutes registers all application routes on the given gin.Engine.
func RegisterRoutes(r *gin.Engine, deps *RouteDeps) error {
	if r == nil {
		return errors.New("router is nil")
	}
	if deps == nil {
		return errors.New("route dependencies are nil")
	}
	if len(deps.Modules) == 0 {
		return errors.New("at least one module is required")
	}
	if strings.TrimSpace(deps.CSRFSecret) == "" {
		return errors.New("csrf secret is required")
	}
	if deps.Authenticate == nil {
		return errors.New("authentication middleware is required")
	}

	if err := registerStaticRoutesWithError(r, deps.Mode); err != nil {
		return fmt.Errorf("register static routes: %w", err)
	}

	r.GET("/health", healthHandler(deps.DB))

	if deps.Metrics != nil {
		path := deps.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.GET(path, gin.WrapH(deps.Metrics.Handler()))
	}

	// API routes: no CSRF, bearer tokens are accepted.
	api := r.Group(APIPrefix)
	api.Use(deps.Authenticate)

	pages := r.Group("/")
	pages.Use(deps.Authenticate, middleware.CSRF(deps.CSRFSecret))
	pages.GET("/", homeHandler)

	for i, m := range deps.Modules {
		if m == nil {
			return fmt.Errorf("module at index %d is nil", i)
		}
		m.RegisterRoutes(api, pages)
	}

	r.NoRoute(noRouteHandler())

	return nil
}

func homeHandler(c *gin.Context) {
	c.HTML(http.StatusOK, "home.html", gin.H{
		"Principal": middleware.CurrentPrincipal(c),
		"CSRFToken": middleware.GetCSRFToken(c),
	})
}

// healthHandler returns a handler that pings the staff database and reports
// status. The practice API is not checked.
func healthHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		dbStatus := "ok"
		if db == nil {
			dbStatus = "error"
		} else if sqlDB, err := db.DB(); err != nil {
			dbStatus = "error"
		} else {
			ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
			defer cancel()
			if err := sqlDB.PingContext(ctx); err != nil {
				dbStatus = "error"
			}
		}

		status, code := "ok", http.StatusOK
		if dbStatus != "ok" {
			status, code = "degraded", http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"status": status,
			"components": gin.H{
				"database": dbStatus,
			},
		})
	}
}

// noRouteHandler returns a handler that renders a 404 HTML page for browser
// requests or a JSON response for API clients.
func noRouteHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, APIPrefix+"/") {
			c.JSON(http.StatusNotFound, pkg.Response{Code: http.StatusNotFound, Message: "not found"})
			return
		}
		renderError(c, http.StatusNotFound, "not found")
	}
}

func registerStaticRoutesWithError(r *gin.Engine, mode string) error {
	if mode == gin.DebugMode {
		debugStaticFS, err := resolveDebugStaticFS()
		if err != nil {
			return fmt.Errorf("resolve debug static filesystem: %w", err)
		}
		fileServer := http.StripPrefix("/static", http.FileServer(http.FS(debugStaticFS)))
		r.GET("/static/*filepath", func(c *gin.Context) {
			fileServer.ServeHTTP(c.Writer, c.Request)
		})
		return nil
	}

	staticFS, err := fs.Sub(web.EmbeddedFS, "static")
	if err != nil {
		return fmt.Errorf("create sub filesystem for static assets: %w", err)
	}
	r.GET("/static/*filepath", cacheStaticHandler(http.FS(staticFS)))
	return nil
}

func resolveDebugStaticFS() (fs.FS, error) {
	_, currentFile, _, ok := runtime.Caller(0)
	if !ok {
		return nil, errors.New("resolve current file path")
	}

	projectRoot := filepath.Clean(filepath.Join(filepath.Dir(currentFile), "..", ".."))
	staticDir := filepath.Join(projectRoot, "web", "static")
	if _, err := os.Stat(staticDir); err != nil {
		return nil, fmt.Errorf("stat static directory %q: %w", staticDir, err)
	}

	return os.DirFS(staticDir), nil
}

// cacheStaticHandler serves release-mode static assets with a one day
// Cache-Control header.
func cacheStaticHandler(fsys http.FileSystem) gin.HandlerFunc {
	fileServer := http.StripPrefix("/static", http.FileServer(fsys))
	return func(c *gin.Context) {
		c.Header("Cache-Control", "public, max-age=86400")
		fileServer.ServeHTTP(c.Writer, c.Request)
	}
}
