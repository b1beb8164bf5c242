package auth

import (
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/simp-lee/practiceadmin/internal/domain"
	"github.com/simp-lee/practiceadmin/internal/middleware"
	"github.com/simp-lee/practiceadmin/internal/pkg"
)

// CookieOptions describes the session cookie written at login.
type CookieOptions struct {
	Name   string
	Secure bool
	// MaxAge matches the token lifetime.
	MaxAge time.Duration
}

// AuthHandler serves sign-in and sign-out for the API and the login page.
type AuthHandler struct {
	svc      Service
	throttle *Throttle
	cookie   CookieOptions
}

// NewHandler creates an AuthHandler. throttle may be nil to disable
// failed-attempt counting.
func NewHandler(svc Service, throttle *Throttle, cookie CookieOptions) *AuthHandler {
	return &AuthHandler{svc: svc, throttle: throttle, cookie: cookie}
}

// Login handles POST /api/auth/login. The token is returned in the body and
// also set as the session cookie.
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if !pkg.BindAndValidate(c, &req) {
		return
	}

	tokenResp, retry, err := h.login(c, req.Email, req.Password)
	if retry > 0 {
		c.Header("Retry-After", retryAfter(retry))
		c.JSON(http.StatusTooManyRequests, pkg.Response{
			Code:    http.StatusTooManyRequests,
			Message: "too many failed sign-in attempts",
		})
		return
	}
	if err != nil {
		pkg.Error(c, err)
		return
	}

	h.setCookie(c, tokenResp.Token)
	pkg.Success(c, tokenResp)
}

// Logout handles POST /api/auth/logout. The session token, from the cookie
// or the bearer header, is revoked.
func (h *AuthHandler) Logout(c *gin.Context) {
	h.revoke(c)
	h.clearCookie(c)
	pkg.Success(c, nil)
}

// LoginPage renders the sign-in form.
// GET /login
func (h *AuthHandler) LoginPage(c *gin.Context) {
	if middleware.CurrentPrincipal(c) != nil {
		c.Redirect(http.StatusSeeOther, safeNext(c.Query("next")))
		return
	}
	c.HTML(http.StatusOK, "auth/login.html", gin.H{
		"Next":      safeNext(c.Query("next")),
		"CSRFToken": middleware.GetCSRFToken(c),
	})
}

// LoginForm handles the sign-in form post.
// POST /login
func (h *AuthHandler) LoginForm(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBind(&req); err != nil {
		slog.DebugContext(c.Request.Context(), "login: bind error", slog.Any("error", err))
		h.renderLogin(c, http.StatusOK, req, "Enter a valid email address and password.")
		return
	}

	tokenResp, retry, err := h.login(c, req.Email, req.Password)
	if retry > 0 {
		c.Header("Retry-After", retryAfter(retry))
		h.renderLogin(c, http.StatusTooManyRequests, req, "Too many failed attempts. Try again later.")
		return
	}
	if err != nil {
		msg := "Sign-in failed, please try again."
		if domain.IsUnauthorized(err) {
			msg = "Incorrect email or password."
		}
		h.renderLogin(c, http.StatusOK, req, msg)
		return
	}

	h.setCookie(c, tokenResp.Token)
	middleware.Redirect(c, safeNext(req.Next))
}

// LogoutPage clears the session cookie and returns to the sign-in page.
// POST /logout
func (h *AuthHandler) LogoutPage(c *gin.Context) {
	h.revoke(c)
	h.clearCookie(c)
	middleware.Redirect(c, "/login")
}

// login runs a throttled sign-in attempt. A positive retry means the caller is
// locked out for that long.
func (h *AuthHandler) login(c *gin.Context, email, password string) (*TokenResponse, time.Duration, error) {
	ctx := c.Request.Context()
	key := throttleKey(c.ClientIP(), email)

	blocked, retry, err := h.throttle.Blocked(ctx, key)
	if err != nil {
		slog.WarnContext(ctx, "login throttle unavailable", slog.Any("error", err))
	}
	if blocked {
		slog.WarnContext(ctx, "login throttled", slog.String("client_ip", c.ClientIP()))
		return nil, retry, nil
	}

	tokenResp, err := h.svc.Login(ctx, email, password)
	if err != nil {
		if domain.IsUnauthorized(err) {
			if ferr := h.throttle.Fail(ctx, key); ferr != nil {
				slog.WarnContext(ctx, "login throttle unavailable", slog.Any("error", ferr))
			}
		}
		return nil, 0, err
	}
	if rerr := h.throttle.Reset(ctx, key); rerr != nil {
		slog.WarnContext(ctx, "login throttle unavailable", slog.Any("error", rerr))
	}
	slog.InfoContext(ctx, "staff signed in", slog.String("email", strings.ToLower(strings.TrimSpace(email))))
	return tokenResp, 0, nil
}

// revoke ends the request's session. Failure only leaves the token valid
// until it expires, so it is logged rather than shown.
func (h *AuthHandler) revoke(c *gin.Context) {
	token := middleware.SessionToken(c, h.cookie.Name)
	if err := h.svc.Logout(token); err != nil {
		slog.WarnContext(c.Request.Context(), "logout", slog.Any("error", err))
	}
}

func (h *AuthHandler) renderLogin(c *gin.Context, status int, req LoginRequest, msg string) {
	c.HTML(status, "auth/login.html", gin.H{
		"Email":     req.Email,
		"Next":      safeNext(req.Next),
		"Error":     msg,
		"CSRFToken": middleware.GetCSRFToken(c),
	})
}

func (h *AuthHandler) setCookie(c *gin.Context, token string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookie.Name, token, int(h.cookie.MaxAge.Seconds()), "/", "", h.cookie.Secure, true)
}

func (h *AuthHandler) clearCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookie.Name, "", -1, "/", "", h.cookie.Secure, true)
}

// safeNext keeps post-login redirects on this site.
func safeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return "/"
	}
	return next
}

func retryAfter(d time.Duration) string {
	return fmt.Sprintf("%d", int(math.Ceil(d.Seconds())))
}
