package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode"

	"github.com/gin-gonic/gin"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Log      LogConfig      `koanf:"log"`
	Auth     AuthConfig     `koanf:"auth"`
	Upstream UpstreamConfig `koanf:"upstream"`
	Browse   BrowseConfig   `koanf:"browse"`
	Metrics  MetricsConfig  `koanf:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host       string          `koanf:"host"`
	Port       int             `koanf:"port"`
	Mode       string          `koanf:"mode"`
	CSRFSecret string          `koanf:"csrf_secret"`
	Timeout    string          `koanf:"timeout"`
	CORS       CORSConfig      `koanf:"cors"`
	RateLimit  RateLimitConfig `koanf:"rate_limit"`
}

// CORSConfig holds CORS middleware settings.
type CORSConfig struct {
	AllowOrigins     []string `koanf:"allow_origins"`
	AllowMethods     []string `koanf:"allow_methods"`
	AllowHeaders     []string `koanf:"allow_headers"`
	AllowCredentials bool     `koanf:"allow_credentials"`
	MaxAge           string   `koanf:"max_age"`
}

// RateLimitConfig holds per-client rate limiting settings.
type RateLimitConfig struct {
	Enabled bool `koanf:"enabled"`
	RPS     int  `koanf:"rps"`
	Burst   int  `koanf:"burst"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Driver   string         `koanf:"driver"`
	SQLite   SQLiteConfig   `koanf:"sqlite"`
	Postgres PostgresConfig `koanf:"postgres"`
	Pool     PoolConfig     `koanf:"pool"`
}

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	Path string `koanf:"path"`
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`
	DBName   string `koanf:"dbname"`
	SSLMode  string `koanf:"sslmode"`
}

// PoolConfig holds database connection pool settings.
type PoolConfig struct {
	MaxIdleConns    int    `koanf:"max_idle_conns"`
	MaxOpenConns    int    `koanf:"max_open_conns"`
	ConnMaxLifetime string `koanf:"conn_max_lifetime"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level           string `koanf:"level"`
	Format          string `koanf:"format"`
	Color           *bool  `koanf:"color"`
	FilePath        string `koanf:"file_path"`
	MaxSizeMB       int    `koanf:"max_size_mb"`
	RetentionDays   int    `koanf:"retention_days"`
	MaxBackups      int    `koanf:"max_backups"`
	CompressRotated *bool  `koanf:"compress_rotated"`
}

// AuthConfig holds staff sign-in settings.
type AuthConfig struct {
	Enabled     bool            `koanf:"enabled"`
	JWTSecret   string          `koanf:"jwt_secret"`
	TokenExpiry string          `koanf:"token_expiry"`
	CookieName  string          `koanf:"cookie_name"`
	PublicPaths []string        `koanf:"public_paths"`
	Bootstrap   BootstrapConfig `koanf:"bootstrap"`
	// MaxLoginAttempts failed sign-ins per client and email are allowed
	// within LoginWindow before further attempts are refused.
	MaxLoginAttempts int    `koanf:"max_login_attempts"`
	LoginWindow      string `koanf:"login_window"`
}

// BootstrapConfig seeds the first admin account when the staff table is empty.
type BootstrapConfig struct {
	Name     string `koanf:"name"`
	Email    string `koanf:"email"`
	Password string `koanf:"password"`
}

// UpstreamConfig describes the practice API the console manages.
type UpstreamConfig struct {
	BaseURL  string       `koanf:"base_url"`
	Timeout  string       `koanf:"timeout"`
	PageSize int          `koanf:"page_size"`
	Token    string       `koanf:"token"`
	OAuth2   OAuth2Config `koanf:"oauth2"`
}

// OAuth2Config enables the client-credentials flow for upstream calls.
type OAuth2Config struct {
	Enabled      bool     `koanf:"enabled"`
	ClientID     string   `koanf:"client_id"`
	ClientSecret string   `koanf:"client_secret"`
	TokenURL     string   `koanf:"token_url"`
	Audience     string   `koanf:"audience"`
	Scopes       []string `koanf:"scopes"`
}

// BrowseConfig tunes the server-side table sessions behind the practice list.
type BrowseConfig struct {
	SessionTTL  string `koanf:"session_ttl"`
	MaxSessions int    `koanf:"max_sessions"`
	WaitTimeout string `koanf:"wait_timeout"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `koanf:"enabled"`
	Path    string `koanf:"path"`
}

// Defaults applied by Validate when a value is left unset.
const (
	DefaultCookieName  = "practiceadmin_session"
	DefaultUpstreamTTL = "10s"
	DefaultPageSize    = 50
	DefaultSessionTTL  = "30m"
	DefaultMaxSessions = 256
	DefaultWaitTimeout = "10s"
	DefaultMetricsPath = "/metrics"

	DefaultMaxLoginAttempts = 5
	DefaultLoginWindow      = "15m"
)

// Load reads configuration from a YAML file and overlays environment variables.
// Environment variables use the prefix "APP__" and double-underscore as the
// hierarchy separator. Single underscores are preserved as part of the key name.
// For example, APP__SERVER__PORT=9090 overrides server.port and
// APP__UPSTREAM__BASE_URL=https://api.example.com overrides upstream.base_url.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
	}

	if err := k.Load(env.Provider("APP__", ".", func(s string) string {
		key := strings.TrimPrefix(s, "APP__")
		key = strings.ToLower(key)
		key = strings.ReplaceAll(key, "__", ".")
		return key
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks cross-field constraints and supported values, and fills in
// defaults for optional settings.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateDatabase(); err != nil {
		return err
	}
	if err := c.validateAuth(); err != nil {
		return err
	}
	if err := c.validateUpstream(); err != nil {
		return err
	}
	if err := c.validateBrowse(); err != nil {
		return err
	}
	if err := c.validateMetrics(); err != nil {
		return err
	}
	return c.validateLog()
}

func (c *Config) validateServer() error {
	mode := strings.TrimSpace(c.Server.Mode)
	switch mode {
	case gin.DebugMode, gin.ReleaseMode, gin.TestMode:
		c.Server.Mode = mode
	default:
		return fmt.Errorf("invalid server.mode %q: must be one of %q, %q, %q", c.Server.Mode, gin.DebugMode, gin.ReleaseMode, gin.TestMode)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d: must be between 1 and 65535", c.Server.Port)
	}

	host := strings.TrimSpace(c.Server.Host)
	if host == "" {
		return fmt.Errorf("server.host is required")
	}
	c.Server.Host = host

	c.Server.Timeout = strings.TrimSpace(c.Server.Timeout)
	if err := optionalPositiveDuration("server.timeout", c.Server.Timeout); err != nil {
		return err
	}

	origins := make([]string, 0, len(c.Server.CORS.AllowOrigins))
	for _, o := range c.Server.CORS.AllowOrigins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "" {
			continue
		}
		if o != "*" && !strings.HasPrefix(o, "http://") && !strings.HasPrefix(o, "https://") {
			return fmt.Errorf("invalid server.cors.allow_origins entry %q: must be \"*\" or start with http:// or https://", o)
		}
		if o == "*" && c.Server.CORS.AllowCredentials {
			return fmt.Errorf("invalid server.cors.allow_origins: \"*\" cannot be combined with allow_credentials")
		}
		origins = append(origins, o)
	}
	c.Server.CORS.AllowOrigins = origins

	c.Server.CORS.MaxAge = strings.TrimSpace(c.Server.CORS.MaxAge)
	if ma := c.Server.CORS.MaxAge; ma != "" {
		d, err := time.ParseDuration(ma)
		if err != nil {
			return fmt.Errorf("invalid server.cors.max_age %q: must be a valid duration (e.g. \"24h\", \"3600s\"): %w", ma, err)
		}
		if d <= 0 {
			return fmt.Errorf("invalid server.cors.max_age %q: must be greater than 0", ma)
		}
	}

	if c.Server.RateLimit.Enabled {
		if c.Server.RateLimit.RPS <= 0 {
			return fmt.Errorf("invalid server.rate_limit.rps %d: must be positive when rate limiting is enabled", c.Server.RateLimit.RPS)
		}
		if c.Server.RateLimit.Burst <= 0 {
			return fmt.Errorf("invalid server.rate_limit.burst %d: must be positive when rate limiting is enabled", c.Server.RateLimit.Burst)
		}
	}
	return nil
}

func (c *Config) validateDatabase() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("invalid database.driver %q: must be one of %q, %q", c.Database.Driver, "sqlite", "postgres")
	}

	if c.Database.Driver == "sqlite" {
		sqlitePath := strings.TrimSpace(c.Database.SQLite.Path)
		if sqlitePath == "" {
			return fmt.Errorf("database.sqlite.path is required when driver is sqlite")
		}
		c.Database.SQLite.Path = sqlitePath
	}

	if c.Database.Driver == "postgres" {
		pg := &c.Database.Postgres
		pg.Host = strings.TrimSpace(pg.Host)
		pg.User = strings.TrimSpace(pg.User)
		pg.DBName = strings.TrimSpace(pg.DBName)
		pg.SSLMode = strings.TrimSpace(pg.SSLMode)

		if pg.Host == "" {
			return fmt.Errorf("database.postgres.host is required when driver is postgres")
		}
		if pg.Port < 1 || pg.Port > 65535 {
			return fmt.Errorf("invalid database.postgres.port %d: must be between 1 and 65535", pg.Port)
		}
		if pg.User == "" {
			return fmt.Errorf("database.postgres.user is required when driver is postgres")
		}
		if pg.DBName == "" {
			return fmt.Errorf("database.postgres.dbname is required when driver is postgres")
		}
		switch pg.SSLMode {
		case "disable", "allow", "prefer", "require", "verify-ca", "verify-full":
		default:
			return fmt.Errorf("invalid database.postgres.sslmode %q: must be one of %q, %q, %q, %q, %q, %q", pg.SSLMode, "disable", "allow", "prefer", "require", "verify-ca", "verify-full")
		}
		if c.Server.Mode == gin.ReleaseMode {
			switch pg.SSLMode {
			case "require", "verify-ca", "verify-full":
			default:
				return fmt.Errorf("invalid database.postgres.sslmode %q for server.mode %q: must be one of %q, %q, %q", pg.SSLMode, gin.ReleaseMode, "require", "verify-ca", "verify-full")
			}
		}
	}

	c.Database.Pool.ConnMaxLifetime = strings.TrimSpace(c.Database.Pool.ConnMaxLifetime)
	return optionalPositiveDuration("database.pool.conn_max_lifetime", c.Database.Pool.ConnMaxLifetime)
}

func (c *Config) validateAuth() error {
	c.Auth.CookieName = strings.TrimSpace(c.Auth.CookieName)
	if c.Auth.CookieName == "" {
		c.Auth.CookieName = DefaultCookieName
	}

	if email := strings.TrimSpace(c.Auth.Bootstrap.Email); email != "" {
		c.Auth.Bootstrap.Email = email
		if len(c.Auth.Bootstrap.Password) < 8 {
			return fmt.Errorf("invalid auth.bootstrap.password: must be at least 8 characters when auth.bootstrap.email is set")
		}
		if strings.TrimSpace(c.Auth.Bootstrap.Name) == "" {
			c.Auth.Bootstrap.Name = "Administrator"
		}
	}

	if c.Auth.MaxLoginAttempts < 0 {
		return fmt.Errorf("invalid auth.max_login_attempts %d: must not be negative", c.Auth.MaxLoginAttempts)
	}
	if c.Auth.MaxLoginAttempts == 0 {
		c.Auth.MaxLoginAttempts = DefaultMaxLoginAttempts
	}
	c.Auth.LoginWindow = strings.TrimSpace(c.Auth.LoginWindow)
	if c.Auth.LoginWindow == "" {
		c.Auth.LoginWindow = DefaultLoginWindow
	}
	if err := optionalPositiveDuration("auth.login_window", c.Auth.LoginWindow); err != nil {
		return err
	}

	if !c.Auth.Enabled {
		return nil
	}

	jwtSecret := strings.TrimSpace(c.Auth.JWTSecret)
	if jwtSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required when auth is enabled")
	}
	if len(jwtSecret) < 32 {
		return fmt.Errorf("invalid auth.jwt_secret: must be at least 32 characters")
	}
	if c.Server.Mode == gin.ReleaseMode && CountSecretClasses(jwtSecret) < 3 {
		return fmt.Errorf("auth.jwt_secret must include at least 3 character classes (lowercase, uppercase, digit, symbol) in release mode")
	}
	c.Auth.JWTSecret = jwtSecret

	tokenExpiry := strings.TrimSpace(c.Auth.TokenExpiry)
	if tokenExpiry == "" {
		return fmt.Errorf("auth.token_expiry is required when auth is enabled")
	}
	td, err := time.ParseDuration(tokenExpiry)
	if err != nil {
		return fmt.Errorf("invalid auth.token_expiry %q: %w", c.Auth.TokenExpiry, err)
	}
	if td <= 0 {
		return fmt.Errorf("invalid auth.token_expiry %q: must be greater than 0", c.Auth.TokenExpiry)
	}
	c.Auth.TokenExpiry = tokenExpiry

	publicPaths := make([]string, 0, len(c.Auth.PublicPaths))
	seen := make(map[string]struct{}, len(c.Auth.PublicPaths))
	for idx, p := range c.Auth.PublicPaths {
		normalized := strings.TrimSpace(p)
		if normalized == "" {
			return fmt.Errorf("auth.public_paths[%d] cannot be empty when auth is enabled", idx)
		}
		if !strings.HasPrefix(normalized, "/") {
			return fmt.Errorf("invalid auth.public_paths[%d] %q: must start with '/'", idx, p)
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		publicPaths = append(publicPaths, normalized)
	}
	for _, required := range []string{"/login", "/api/auth/login"} {
		if _, exists := seen[required]; !exists {
			return fmt.Errorf("auth.public_paths must include %q when auth is enabled", required)
		}
	}
	c.Auth.PublicPaths = publicPaths
	return nil
}

func (c *Config) validateUpstream() error {
	u := &c.Upstream

	u.BaseURL = strings.TrimRight(strings.TrimSpace(u.BaseURL), "/")
	if u.BaseURL == "" {
		return fmt.Errorf("upstream.base_url is required")
	}
	parsed, err := url.Parse(u.BaseURL)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return fmt.Errorf("invalid upstream.base_url %q: must be an absolute http(s) URL", u.BaseURL)
	}
	if c.Server.Mode == gin.ReleaseMode && parsed.Scheme != "https" {
		return fmt.Errorf("invalid upstream.base_url %q: must use https in release mode", u.BaseURL)
	}

	u.Timeout = strings.TrimSpace(u.Timeout)
	if u.Timeout == "" {
		u.Timeout = DefaultUpstreamTTL
	}
	if err := optionalPositiveDuration("upstream.timeout", u.Timeout); err != nil {
		return err
	}

	if u.PageSize < 0 {
		return fmt.Errorf("invalid upstream.page_size %d: must be positive", u.PageSize)
	}
	if u.PageSize == 0 {
		u.PageSize = DefaultPageSize
	}

	u.Token = strings.TrimSpace(u.Token)
	if u.OAuth2.Enabled {
		if u.Token != "" {
			return fmt.Errorf("upstream.token and upstream.oauth2 are mutually exclusive")
		}
		o := &u.OAuth2
		o.ClientID = strings.TrimSpace(o.ClientID)
		o.TokenURL = strings.TrimSpace(o.TokenURL)
		if o.ClientID == "" {
			return fmt.Errorf("upstream.oauth2.client_id is required when oauth2 is enabled")
		}
		if strings.TrimSpace(o.ClientSecret) == "" {
			return fmt.Errorf("upstream.oauth2.client_secret is required when oauth2 is enabled")
		}
		tokenURL, err := url.Parse(o.TokenURL)
		if o.TokenURL == "" || err != nil || tokenURL.Host == "" {
			return fmt.Errorf("invalid upstream.oauth2.token_url %q: must be an absolute URL", o.TokenURL)
		}
	}
	return nil
}

func (c *Config) validateBrowse() error {
	b := &c.Browse

	b.SessionTTL = strings.TrimSpace(b.SessionTTL)
	if b.SessionTTL == "" {
		b.SessionTTL = DefaultSessionTTL
	}
	if err := optionalPositiveDuration("browse.session_ttl", b.SessionTTL); err != nil {
		return err
	}

	b.WaitTimeout = strings.TrimSpace(b.WaitTimeout)
	if b.WaitTimeout == "" {
		b.WaitTimeout = DefaultWaitTimeout
	}
	if err := optionalPositiveDuration("browse.wait_timeout", b.WaitTimeout); err != nil {
		return err
	}

	if b.MaxSessions < 0 {
		return fmt.Errorf("invalid browse.max_sessions %d: must be positive", b.MaxSessions)
	}
	if b.MaxSessions == 0 {
		b.MaxSessions = DefaultMaxSessions
	}
	return nil
}

func (c *Config) validateMetrics() error {
	c.Metrics.Path = strings.TrimSpace(c.Metrics.Path)
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
	if !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("invalid metrics.path %q: must start with '/'", c.Metrics.Path)
	}
	return nil
}

func (c *Config) validateLog() error {
	level := strings.ToLower(strings.TrimSpace(c.Log.Level))
	switch level {
	case "debug", "info", "warn", "error":
		c.Log.Level = level
	default:
		return fmt.Errorf("invalid log.level %q: must be one of %q, %q, %q, %q", c.Log.Level, "debug", "info", "warn", "error")
	}

	format := strings.ToLower(strings.TrimSpace(c.Log.Format))
	switch format {
	case "text", "json":
		c.Log.Format = format
	default:
		return fmt.Errorf("invalid log.format %q: must be one of %q, %q", c.Log.Format, "text", "json")
	}
	return nil
}

// optionalPositiveDuration accepts an empty value or a valid duration above zero.
func optionalPositiveDuration(field, value string) error {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", field, value, err)
	}
	if d <= 0 {
		return fmt.Errorf("invalid %s %q: must be greater than 0", field, value)
	}
	return nil
}

// Duration parses a duration that Validate has already checked, returning
// fallback when value is empty.
func Duration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

// CountSecretClasses counts how many character classes (lowercase, uppercase,
// digit, symbol) are present in the given secret string.
func CountSecretClasses(secret string) int {
	hasLower := false
	hasUpper := false
	hasDigit := false
	hasSymbol := false

	for _, r := range secret {
		switch {
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsDigit(r):
			hasDigit = true
		default:
			hasSymbol = true
		}
	}

	classes := 0
	for _, has := range []bool{hasLower, hasUpper, hasDigit, hasSymbol} {
		if has {
			classes++
		}
	}
	return classes
}
