package middleware

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	csrfCookieName = "_csrf_token"
	csrfFormField  = "_csrf_token"
	csrfHeaderName = "X-CSRF-Token"
	csrfContextKey = "CSRFToken"
)

// csrfSigner issues and checks double-submit tokens of the form
// hex(nonce) + "." + base64url(HMAC-SHA256(nonce, secret)).
type csrfSigner struct {
	secret []byte
}

func (s csrfSigner) issue() (string, error) {
	nonce := make([]byte, 32)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	n := hex.EncodeToString(nonce)
	return n + "." + s.sign(n), nil
}

func (s csrfSigner) sign(nonce string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(nonce))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func (s csrfSigner) valid(token string) bool {
	nonce, sig, ok := strings.Cut(token, ".")
	if !ok || nonce == "" || sig == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(sig), []byte(s.sign(nonce))) == 1
}

// CSRF returns a gin middleware protecting the server-rendered pages.
//
// Safe methods get a signed token cookie (readable by scripts, SameSite=Strict)
// and the token in gin.Context for templates. Unsafe methods must echo the
// cookie in the "_csrf_token" form field or the X-CSRF-Token header; the
// layout configures htmx to send the header on every request. Rejections are
// 403s: a toast for htmx, JSON otherwise.
//
// API routes are exempt by not registering this middleware on their group.
func CSRF(secret string) gin.HandlerFunc {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return func(c *gin.Context) {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "csrf secret is required"})
		}
	}

	signer := csrfSigner{secret: []byte(secret)}
	secure := gin.Mode() == gin.ReleaseMode
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			token, err := c.Cookie(csrfCookieName)
			if err != nil || !signer.valid(token) {
				token, err = signer.issue()
				if err != nil {
					c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to generate CSRF token"})
					return
				}
				setCSRFCookie(c, token, secure)
			}
			c.Set(csrfContextKey, token)
			c.Next()

		case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
			cookieToken, err := c.Cookie(csrfCookieName)
			if err != nil || cookieToken == "" {
				rejectCSRF(c, "CSRF token missing")
				return
			}
			requestToken := c.GetHeader(csrfHeaderName)
			if requestToken == "" {
				requestToken = c.PostForm(csrfFormField)
			}
			if requestToken == "" {
				rejectCSRF(c, "CSRF token missing")
				return
			}
			if !signer.valid(cookieToken) || subtle.ConstantTimeCompare([]byte(cookieToken), []byte(requestToken)) != 1 {
				rejectCSRF(c, "CSRF token invalid")
				return
			}
			c.Set(csrfContextKey, cookieToken)
			c.Next()

		default:
			c.Next()
		}
	}
}

func rejectCSRF(c *gin.Context, reason string) {
	if IsHTMX(c) {
		c.Header("HX-Reswap", "none")
		TriggerToast(c, "Your session expired. Reload the page and try again.", ToastError)
		c.AbortWithStatus(http.StatusForbidden)
		return
	}
	c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": reason})
}

// GetCSRFToken retrieves the CSRF token stored in gin.Context by the CSRF middleware.
// Returns an empty string if no token is available.
func GetCSRFToken(c *gin.Context) string {
	if token, exists := c.Get(csrfContextKey); exists {
		if s, ok := token.(string); ok {
			return s
		}
	}
	return ""
}

// SetCSRFTokenWithSecret copies a correctly signed CSRF cookie into
// gin.Context, for pages rendered outside the CSRF middleware such as the
// 404 page. It is a no-op when a token is already set.
func SetCSRFTokenWithSecret(c *gin.Context, secret string) {
	if _, exists := c.Get(csrfContextKey); exists {
		return
	}
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return
	}
	token, err := c.Cookie(csrfCookieName)
	if err != nil || !(csrfSigner{secret: []byte(secret)}).valid(token) {
		return
	}
	c.Set(csrfContextKey, token)
}

func setCSRFCookie(c *gin.Context, token string, secure bool) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     csrfCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: false,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	})
}
