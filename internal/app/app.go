package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/simp-lee/jwt"
	"github.com/simp-lee/logger"
	"gorm.io/gorm"

	"github.com/simp-lee/practiceadmin/internal/access"
	"github.com/simp-lee/practiceadmin/internal/browse"
	"github.com/simp-lee/practiceadmin/internal/config"
	"github.com/simp-lee/practiceadmin/internal/domain"
	"github.com/simp-lee/practiceadmin/internal/metrics"
	"github.com/simp-lee/practiceadmin/internal/middleware"
	"github.com/simp-lee/practiceadmin/internal/module/auth"
	"github.com/simp-lee/practiceadmin/internal/module/practice"
	"github.com/simp-lee/practiceadmin/internal/module/staff"
	"github.com/simp-lee/practiceadmin/internal/upstream"
	"github.com/simp-lee/practiceadmin/web"
)

// Verified principals are reread from the database at most this often.
const (
	principalCacheSize = 1024
	principalCacheTTL  = 30 * time.Second
)

// localAdmin is the principal of every request when sign-in is disabled.
var localAdmin = &domain.Principal{Name: "Local administrator", Role: domain.RoleAdmin}

// App holds the wired console and its HTTP server settings.
type App struct {
	engine   *gin.Engine
	db       *gorm.DB
	logger   *logger.Logger
	cfg      *config.Config
	practice *practice.PracticeModule
	// closers release the session and permission stores, in order.
	closers []func()
}

type httpServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// Writes are not bounded: the table event streams stay open.
var newHTTPServer = func(addr string, handler http.Handler, readTimeout time.Duration) httpServer {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       readTimeout,
		IdleTimeout:       120 * time.Second,
	}
}

var notifyContext = func(parent context.Context, signals ...os.Signal) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, signals...)
}

// New wires the console from cfg: logging, the staff database, the practice
// API client, metrics, middleware, templates and routes.
func New(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	success := false

	log, err := config.SetupLogger(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("setup logger: %w", err)
	}
	if cfg.Server.Mode == gin.DebugMode && cfg.Server.Host == "0.0.0.0" {
		log.Warn("insecure server config: debug mode on 0.0.0.0 may expose debug behavior and permissive CORS")
	}
	defer func() {
		if success {
			return
		}
		if err := log.Close(); err != nil {
			slog.Error("logger close error", slog.Any("error", err))
		}
	}()

	db, err := config.SetupDatabase(&cfg.Database, log.Logger, &domain.Staff{})
	if err != nil {
		return nil, fmt.Errorf("setup database: %w", err)
	}
	defer func() {
		if !success {
			closeDatabase(db)
		}
	}()

	var closers []func()
	defer func() {
		if !success {
			runClosers(closers)
		}
	}()

	acl, err := access.New()
	if err != nil {
		return nil, fmt.Errorf("setup access control: %w", err)
	}
	closers = append(closers, func() {
		if err := acl.Close(); err != nil {
			slog.Error("access control close error", slog.Any("error", err))
		}
	})
	listeners := []domain.AccountListener{acl}

	staffRepo := staff.NewStaffRepository(db)
	var authSvc auth.Service
	expiry := config.Duration(cfg.Auth.TokenExpiry, 24*time.Hour)
	if cfg.Auth.Enabled {
		jwtSvc, err := jwt.New(cfg.Auth.JWTSecret,
			jwt.WithIssuer("practiceadmin"),
			jwt.WithMaxTokenLifetime(expiry),
			jwt.WithUserRevocationTTL(max(jwt.DefaultUserRevocationTTL, expiry)),
		)
		if err != nil {
			return nil, fmt.Errorf("setup session tokens: %w", err)
		}
		principals := auth.NewPrincipalCache(principalCacheSize, principalCacheTTL)
		closers = append(closers, jwtSvc.Close, principals.Close)
		authSvc = auth.NewService(jwtSvc, staffRepo, principals, expiry)
		listeners = append(listeners, authSvc)
	}

	staffSvc := staff.NewStaffService(staffRepo, 0, listeners...)
	if err := bootstrapAdmin(context.Background(), staffSvc, cfg.Auth.Bootstrap); err != nil {
		return nil, err
	}

	tracker := browse.NewTracker()
	var rec *metrics.Metrics
	if cfg.Metrics.Enabled {
		rec = metrics.New(func() float64 { return float64(tracker.Active()) })
	}

	client, err := upstream.NewFromConfig(&cfg.Upstream, config.Component(log.Logger, "upstream"), rec)
	if err != nil {
		return nil, fmt.Errorf("setup upstream client: %w", err)
	}

	if err := validateGinMode(cfg.Server.Mode); err != nil {
		return nil, err
	}
	gin.SetMode(cfg.Server.Mode)
	engine := gin.New()

	quiet := []string{"/health", cfg.Metrics.Path, "/static/"}
	engine.Use(
		middleware.Recovery(config.ConsoleLoggerOpts(&cfg.Log)...),
		middleware.RequestIDWithConfig(middleware.RequestIDConfig{TrustUpstream: false}),
		middleware.LoggerWithConfig(log.Logger, middleware.LoggerConfig{SkipPaths: quiet}),
		rec.Middleware(),
		middleware.CORS(cfg.Server.Mode, cfg.Server.CORS),
	)
	if rl := cfg.Server.RateLimit; rl.Enabled {
		engine.Use(middleware.RateLimit(middleware.RateLimitConfig{RPS: rl.RPS, Burst: rl.Burst, SkipPaths: quiet}))
	}

	var fsys fs.FS
	if cfg.Server.Mode == gin.DebugMode {
		fsys, err = resolveDebugWebFS()
		if err != nil {
			return nil, fmt.Errorf("resolve debug template fs: %w", err)
		}
	} else {
		fsys = web.EmbeddedFS
	}
	renderer, err := NewTemplateRenderer(fsys, cfg.Server.Mode == gin.DebugMode)
	if err != nil {
		return nil, fmt.Errorf("setup template renderer: %w", err)
	}
	engine.HTMLRender = renderer

	csrfSecret := cfg.Server.CSRFSecret
	if isPlaceholderCSRFSecret(csrfSecret) {
		if cfg.Server.Mode == gin.ReleaseMode {
			return nil, errors.New("csrf_secret must be a non-placeholder value in release mode")
		}
		b := make([]byte, 32)
		if _, err := rand.Read(b); err != nil {
			return nil, fmt.Errorf("generate csrf secret: %w", err)
		}
		csrfSecret = hex.EncodeToString(b)
		log.Warn("no csrf_secret configured, using random secret in non-release mode (will change on restart)")
	}

	var modules []Module
	authenticate := middleware.Anonymous(localAdmin)
	if authSvc != nil {
		attempts := cfg.Auth.MaxLoginAttempts
		if attempts <= 0 {
			attempts = config.DefaultMaxLoginAttempts
		}
		throttle := auth.NewThrottle(int64(attempts), config.Duration(cfg.Auth.LoginWindow, 15*time.Minute))
		authenticate = middleware.Authenticate(authSvc, middleware.AuthConfig{
			CookieName:  cfg.Auth.CookieName,
			PublicPaths: cfg.Auth.PublicPaths,
			LoginPath:   "/login",
		})
		modules = append(modules, auth.NewModule(auth.NewHandler(authSvc, throttle, auth.CookieOptions{
			Name:   cfg.Auth.CookieName,
			Secure: cfg.Server.Mode == gin.ReleaseMode,
			MaxAge: expiry,
		})))
	} else {
		log.Warn("auth disabled: every request runs as a local administrator")
	}

	maxViews := cfg.Browse.MaxSessions
	if maxViews <= 0 {
		maxViews = config.DefaultMaxSessions
	}
	views := practice.NewViewStore(maxViews, config.Duration(cfg.Browse.SessionTTL, 30*time.Minute), rec)
	pages := practice.NewPageHandler(client, views, renderer, practice.PageOptions{
		PageSize:    cfg.Upstream.PageSize,
		WaitTimeout: config.Duration(cfg.Browse.WaitTimeout, 10*time.Second),
		Tracker:     tracker,
		Observer:    rec,
		Logger:      config.Component(log.Logger, "browse"),
	})
	practiceModule := practice.NewModule(practice.NewProxyHandler(client), pages, acl)
	modules = append(modules,
		practiceModule,
		staff.NewModule(staff.NewStaffHandler(staffSvc), acl),
	)

	if err := RegisterRoutes(engine, &RouteDeps{
		Modules:      modules,
		DB:           db,
		Mode:         cfg.Server.Mode,
		CSRFSecret:   csrfSecret,
		Authenticate: authenticate,
		Metrics:      rec,
		MetricsPath:  cfg.Metrics.Path,
	}); err != nil {
		views.Close()
		return nil, fmt.Errorf("register routes: %w", err)
	}

	success = true
	return &App{
		engine:   engine,
		db:       db,
		logger:   log,
		cfg:      cfg,
		practice: practiceModule,
		closers:  closers,
	}, nil
}

// Handler returns the HTTP handler of the app.
func (a *App) Handler() http.Handler {
	return a.engine
}

// bootstrapAdmin creates the configured first admin unless an admin exists.
func bootstrapAdmin(ctx context.Context, svc domain.StaffService, b config.BootstrapConfig) error {
	if b.Email == "" {
		return nil
	}
	created, err := svc.EnsureAdmin(ctx, b.Name, b.Email, b.Password)
	if err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}
	if created {
		slog.InfoContext(ctx, "bootstrap admin created", slog.String("email", b.Email))
	}
	return nil
}

func isPlaceholderCSRFSecret(secret string) bool {
	trimmed := strings.TrimSpace(secret)
	if trimmed == "" {
		return true
	}

	switch strings.ToLower(trimmed) {
	case "change-me-to-a-random-secret", "change-me-in-env":
		return true
	default:
		return false
	}
}

func validateGinMode(mode string) error {
	switch mode {
	case gin.DebugMode, gin.ReleaseMode, gin.TestMode:
		return nil
	default:
		return fmt.Errorf("invalid server.mode %q: must be one of %q, %q, %q", mode, gin.DebugMode, gin.ReleaseMode, gin.TestMode)
	}
}

func resolveDebugWebFS() (fs.FS, error) {
	if _, file, _, ok := runtime.Caller(0); ok {
		webDir := filepath.Clean(filepath.Join(filepath.Dir(file), "..", "..", "web"))
		if stat, err := os.Stat(webDir); err == nil && stat.IsDir() {
			return os.DirFS(webDir), nil
		}
	}

	exePath, err := os.Executable()
	if err == nil {
		webDir := filepath.Join(filepath.Dir(exePath), "web")
		if stat, err := os.Stat(webDir); err == nil && stat.IsDir() {
			return os.DirFS(webDir), nil
		}
	}

	return nil, errors.New("debug web directory not found")
}

func runClosers(closers []func()) {
	for _, c := range closers {
		c()
	}
}

func closeDatabase(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		return
	}
	if err := sqlDB.Close(); err != nil {
		slog.Error("database close error", slog.Any("error", err))
	}
}

// Run serves HTTP until SIGINT or SIGTERM, then shuts down within five
// seconds, closes the open table views and the database.
func (a *App) Run() error {
	if a == nil {
		return errors.New("app is nil")
	}
	if a.cfg == nil {
		return errors.New("app config is nil")
	}
	if a.engine == nil {
		return errors.New("app engine is nil")
	}

	addr := fmt.Sprintf("%s:%d", a.cfg.Server.Host, a.cfg.Server.Port)
	srv := newHTTPServer(addr, a.engine, config.Duration(a.cfg.Server.Timeout, 0))

	ctx, stop := notifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server started", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err := <-errCh:
		runErr = fmt.Errorf("server error: %w", err)
	}

	if runErr == nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", slog.Any("error", err))
		}
	}

	a.Close()
	return runErr
}

// Close releases the table views, the session and permission stores, the
// database and the logger. Run calls it on shutdown.
func (a *App) Close() {
	if a.practice != nil {
		a.practice.Close()
		a.practice = nil
	}
	runClosers(a.closers)
	a.closers = nil
	if a.db != nil {
		closeDatabase(a.db)
		slog.Info("database connection closed")
		a.db = nil
	}
	slog.Info("server stopped")
	if a.logger != nil {
		if err := a.logger.Close(); err != nil {
			slog.Error("logger close error", slog.Any("error", err))
		}
		a.logger = nil
	}
}
