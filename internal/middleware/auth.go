package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/simp-lee/ginx"
	"github.com/simp-lee/logger"
	"github.com/simp-lee/rbac"

	"github.com/simp-lee/practiceadmin/internal/domain"
)

const principalContextKey = "principal"

// TokenVerifier resolves a session token to the staff member it was issued to.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*domain.Principal, error)
}

// Authorizer answers permission checks. Grant brings the principal's role
// assignment up to date before it is checked.
type Authorizer interface {
	rbac.Service
	Grant(p *domain.Principal) error
}

// AuthConfig controls the authentication middleware.
type AuthConfig struct {
	// CookieName is the session cookie set at login.
	CookieName string
	// PublicPaths may be visited without a session. Entries ending in "/"
	// match every path under them.
	PublicPaths []string
	// LoginPath is where browsers without a session are sent.
	LoginPath string
}

// Authenticate returns a gin middleware that resolves the session token from
// the cookie, or an Authorization bearer header, and stores the principal in
// gin.Context. Requests without a valid session are rejected unless their
// path is public: API paths get a 401 JSON body, htmx requests an HX-Redirect
// and page requests a redirect to the login page.
func Authenticate(v TokenVerifier, cfg AuthConfig) gin.HandlerFunc {
	if cfg.LoginPath == "" {
		cfg.LoginPath = "/login"
	}
	return func(c *gin.Context) {
		if token := SessionToken(c, cfg.CookieName); token != "" {
			p, err := v.Verify(c.Request.Context(), token)
			if err == nil {
				SetPrincipal(c, p)
				ctx := logger.WithContextAttrs(c.Request.Context(), slog.Uint64("staff_id", uint64(p.StaffID)))
				c.Request = c.Request.WithContext(ctx)
				c.Next()
				return
			}
			slog.DebugContext(c.Request.Context(), "session token rejected", slog.Any("error", err))
		}

		if skipPath(cfg.PublicPaths, c.Request.URL.Path) {
			c.Next()
			return
		}
		unauthenticated(c, cfg.LoginPath)
	}
}

// Anonymous runs every request as p. It stands in for Authenticate when
// sign-in is disabled.
func Anonymous(p *domain.Principal) gin.HandlerFunc {
	return func(c *gin.Context) {
		SetPrincipal(c, p)
		c.Next()
	}
}

// RequirePermission rejects requests whose principal may not perform action
// on resource.
func RequirePermission(acl Authorizer, resource, action string) gin.HandlerFunc {
	allowed := ginx.HasPermission(acl, resource, action)
	return func(c *gin.Context) {
		p := CurrentPrincipal(c)
		if p == nil {
			unauthenticated(c, "/login")
			return
		}
		if err := acl.Grant(p); err != nil {
			slog.ErrorContext(c.Request.Context(), "grant role", slog.String("role", string(p.Role)), slog.Any("error", err))
		} else if allowed(c) {
			c.Next()
			return
		}
		forbidden(c)
	}
}

func forbidden(c *gin.Context) {
	switch {
	case IsHTMX(c):
		c.Header("HX-Reswap", "none")
		TriggerToast(c, "You do not have permission to do that.", ToastError)
		c.AbortWithStatus(http.StatusForbidden)
	case isAPIPath(c):
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"code": http.StatusForbidden, "message": "forbidden", "data": nil})
	default:
		c.Abort()
		c.String(http.StatusForbidden, "403 Forbidden")
	}
}

// CurrentPrincipal returns the authenticated staff member, nil when the
// request has no session.
func CurrentPrincipal(c *gin.Context) *domain.Principal {
	if v, ok := c.Get(principalContextKey); ok {
		if p, ok := v.(*domain.Principal); ok {
			return p
		}
	}
	return nil
}

// SetPrincipal stores p as the authenticated staff member of the request,
// also under the user ID and roles that ginx permission checks read.
func SetPrincipal(c *gin.Context, p *domain.Principal) {
	c.Set(principalContextKey, p)
	ginx.SetUserID(c, p.Subject())
	ginx.SetUserRoles(c, []string{string(p.Role)})
}

// SessionToken returns the request's session token from the cookie named
// cookieName or else an Authorization bearer header, "" when there is none.
func SessionToken(c *gin.Context, cookieName string) string {
	if cookieName != "" {
		if token, err := c.Cookie(cookieName); err == nil && token != "" {
			return token
		}
	}
	if h := c.GetHeader("Authorization"); len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

func unauthenticated(c *gin.Context, loginPath string) {
	if isAPIPath(c) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "authentication required", "data": nil})
		return
	}

	target := loginPath
	if c.Request.Method == http.MethodGet && !IsHTMX(c) {
		target += "?next=" + url.QueryEscape(c.Request.URL.RequestURI())
	}
	if IsHTMX(c) {
		c.Header("HX-Redirect", target)
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	c.Redirect(http.StatusSeeOther, target)
	c.Abort()
}

func isAPIPath(c *gin.Context) bool {
	return strings.HasPrefix(c.Request.URL.Path, "/api/")
}
