package middleware

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

const testCSRFSecret = "test-secret-key-for-csrf"

func setupCSRFRouter() *gin.Engine {
	r := gin.New()
	r.Use(CSRF(testCSRFSecret))
	r.GET("/form", func(c *gin.Context) { c.String(http.StatusOK, GetCSRFToken(c)) })
	ok := func(c *gin.Context) { c.String(http.StatusOK, "ok") }
	r.POST("/form", ok)
	r.PUT("/form", ok)
	r.PATCH("/form", ok)
	r.DELETE("/form", ok)
	return r
}

// fetchToken performs a GET and returns the token from the body and the cookie.
func fetchToken(t *testing.T, r *gin.Engine) (token, cookie string) {
	t.Helper()
	w := serve(r, http.MethodGet, "/form", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /form: status %d", w.Code)
	}
	for _, c := range w.Result().Cookies() {
		if c.Name == csrfCookieName {
			cookie = c.Value
		}
	}
	if cookie == "" {
		t.Fatal("expected CSRF cookie")
	}
	return w.Body.String(), cookie
}

func csrfRequest(method, cookie, header, form string) *http.Request {
	var req *http.Request
	if form != "" {
		req = httptest.NewRequest(method, "/form", strings.NewReader(url.Values{csrfFormField: {form}}.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, "/form", nil)
	}
	if cookie != "" {
		req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: cookie})
	}
	if header != "" {
		req.Header.Set(csrfHeaderName, header)
	}
	return req
}

func TestCSRF_GETIssuesSignedToken(t *testing.T) {
	r := setupCSRFRouter()
	token, cookie := fetchToken(t, r)

	if token != cookie {
		t.Errorf("context token %q != cookie %q", token, cookie)
	}
	if !(csrfSigner{secret: []byte(testCSRFSecret)}).valid(token) {
		t.Error("issued token has an invalid signature")
	}
}

func TestCSRF_GETKeepsValidCookie(t *testing.T) {
	r := setupCSRFRouter()
	_, cookie := fetchToken(t, r)

	req := httptest.NewRequest(http.MethodGet, "/form", nil)
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: cookie})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Body.String() != cookie {
		t.Errorf("token = %q, want existing %q", w.Body.String(), cookie)
	}
	if len(w.Result().Cookies()) != 0 {
		t.Error("valid cookie should not be reissued")
	}
}

func TestCSRF_CookieAttributes(t *testing.T) {
	w := serve(setupCSRFRouter(), http.MethodGet, "/form", nil)
	c := w.Result().Cookies()[0]
	if c.HttpOnly {
		t.Error("CSRF cookie must be readable by scripts")
	}
	if c.SameSite != http.SameSiteStrictMode || c.Path != "/" {
		t.Errorf("cookie SameSite=%v Path=%q", c.SameSite, c.Path)
	}
}

func TestCSRF_UnsafeMethods(t *testing.T) {
	r := setupCSRFRouter()
	_, cookie := fetchToken(t, r)
	forged := "00." + strings.Repeat("A", 43)

	tests := []struct {
		name   string
		method string
		cookie string
		header string
		form   string
		want   int
	}{
		{"header", http.MethodPost, cookie, cookie, "", http.StatusOK},
		{"form field", http.MethodPost, cookie, "", cookie, http.StatusOK},
		{"put", http.MethodPut, cookie, cookie, "", http.StatusOK},
		{"patch", http.MethodPatch, cookie, cookie, "", http.StatusOK},
		{"delete", http.MethodDelete, cookie, cookie, "", http.StatusOK},
		{"missing cookie", http.MethodPost, "", cookie, "", http.StatusForbidden},
		{"missing token", http.MethodPost, cookie, "", "", http.StatusForbidden},
		{"mismatch", http.MethodPost, cookie, "abc.def", "", http.StatusForbidden},
		{"forged pair", http.MethodPost, forged, forged, "", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, csrfRequest(tt.method, tt.cookie, tt.header, tt.form))
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestCSRF_HTMXRejectionToasts(t *testing.T) {
	r := setupCSRFRouter()
	req := csrfRequest(http.MethodPost, "", "", "")
	req.Header.Set("HX-Request", "true")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}
	if !strings.Contains(w.Header().Get("HX-Trigger"), "showToast") {
		t.Errorf("HX-Trigger = %q", w.Header().Get("HX-Trigger"))
	}
}

func TestCSRF_EmptySecret(t *testing.T) {
	r := gin.New()
	r.Use(CSRF("  "))
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	if w := serve(r, http.MethodGet, "/", nil); w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

func TestSetCSRFTokenWithSecret(t *testing.T) {
	token, err := (csrfSigner{secret: []byte(testCSRFSecret)}).issue()
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		cookie string
		secret string
		want   string
	}{
		{"valid", token, testCSRFSecret, token},
		{"wrong secret", token, "other", ""},
		{"no secret", token, "", ""},
		{"no cookie", "", testCSRFSecret, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.cookie != "" {
				c.Request.AddCookie(&http.Cookie{Name: csrfCookieName, Value: tt.cookie})
			}
			SetCSRFTokenWithSecret(c, tt.secret)
			if got := GetCSRFToken(c); got != tt.want {
				t.Errorf("GetCSRFToken = %q, want %q", got, tt.want)
			}
		})
	}
}
