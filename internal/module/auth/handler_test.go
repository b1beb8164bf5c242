package auth

import (
	"encoding/json"
	"html/template"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/simp-lee/practiceadmin/internal/middleware"
)

const testCookie = "session"

func setupAuthRouter(t *testing.T, throttle *Throttle) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	svc, _ := newTestService(t, setupStaff(t))
	h := NewHandler(svc, throttle, CookieOptions{Name: testCookie, MaxAge: time.Hour})

	r := gin.New()
	r.SetHTMLTemplate(template.Must(template.New("").Parse(
		`{{define "auth/login.html"}}login next={{.Next}}{{if .Error}} error={{.Error}}{{end}}{{end}}`,
	)))
	r.Use(middleware.Authenticate(svc, middleware.AuthConfig{
		CookieName:  testCookie,
		PublicPaths: []string{"/login", "/logout", "/api/auth/"},
	}))
	NewModule(h).RegisterRoutes(r.Group("/api"), r.Group("/"))
	return r
}

func postJSON(r http.Handler, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func postForm(r http.Handler, target string, form url.Values, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func sessionCookie(w *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == testCookie {
			return c
		}
	}
	return nil
}

func TestAPILogin(t *testing.T) {
	r := setupAuthRouter(t, nil)

	w := postJSON(r, "/api/auth/login", `{"email":"admin@example.com","password":"s3cret-pass"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var resp struct {
		Data TokenResponse `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	cookie := sessionCookie(w)
	if cookie == nil || cookie.Value != resp.Data.Token {
		t.Fatalf("session cookie %v does not carry the token", cookie)
	}
	if !cookie.HttpOnly || cookie.SameSite != http.SameSiteLaxMode {
		t.Errorf("cookie flags: httponly=%v samesite=%v", cookie.HttpOnly, cookie.SameSite)
	}

	w = postJSON(r, "/api/auth/login", `{"email":"admin@example.com","password":"wrong-pass"}`)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong password: status = %d, want 401", w.Code)
	}
	w = postJSON(r, "/api/auth/login", `{"email":"admin"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid body: status = %d, want 400", w.Code)
	}
}

func TestAPILogin_Throttled(t *testing.T) {
	r := setupAuthRouter(t, NewThrottle(2, time.Minute))
	bad := `{"email":"admin@example.com","password":"wrong-pass"}`

	for i := 0; i < 2; i++ {
		if w := postJSON(r, "/api/auth/login", bad); w.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: status = %d, want 401", i+1, w.Code)
		}
	}
	w := postJSON(r, "/api/auth/login", `{"email":"admin@example.com","password":"s3cret-pass"}`)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("expected a Retry-After header")
	}

	if w := postJSON(r, "/api/auth/login", `{"email":"staff@example.com","password":"s3cret-pass"}`); w.Code != http.StatusOK {
		t.Errorf("other account: status = %d, want 200", w.Code)
	}
}

func TestAPILogout(t *testing.T) {
	r := setupAuthRouter(t, nil)
	w := postJSON(r, "/api/auth/logout", `{}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if c := sessionCookie(w); c == nil || c.MaxAge >= 0 {
		t.Errorf("expected the cookie to be cleared, got %v", c)
	}
}

func TestLogout_RevokesSession(t *testing.T) {
	r := setupAuthRouter(t, nil)
	login := postJSON(r, "/api/auth/login", `{"email":"admin@example.com","password":"s3cret-pass"}`)
	cookie := sessionCookie(login)
	if cookie == nil {
		t.Fatal("login set no cookie")
	}

	loginPage := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/login", nil)
		req.AddCookie(cookie)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}
	if w := loginPage(); w.Code != http.StatusSeeOther {
		t.Fatalf("signed in: status = %d, want 303", w.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/logout", nil)
	req.AddCookie(cookie)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusSeeOther {
		t.Fatalf("logout: status = %d", w.Code)
	}

	// A copy of the cookie kept by the browser no longer signs anyone in.
	if w := loginPage(); w.Code != http.StatusOK {
		t.Errorf("after logout: status = %d, want the login form", w.Code)
	}
}

func TestLoginPage(t *testing.T) {
	r := setupAuthRouter(t, nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/login?next=%2Fpractice%3Fpage%3D2", nil))
	if w.Code != http.StatusOK || w.Body.String() != "login next=/practice?page=2" {
		t.Errorf("got %d %q", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/login?next=https://evil.example", nil))
	if w.Body.String() != "login next=/" {
		t.Errorf("foreign next not dropped: %q", w.Body.String())
	}
}

func TestLoginPage_AlreadySignedIn(t *testing.T) {
	r := setupAuthRouter(t, nil)
	login := postJSON(r, "/api/auth/login", `{"email":"admin@example.com","password":"s3cret-pass"}`)

	req := httptest.NewRequest(http.MethodGet, "/login?next=/practice", nil)
	req.AddCookie(sessionCookie(login))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusSeeOther || w.Header().Get("Location") != "/practice" {
		t.Errorf("got %d location %q", w.Code, w.Header().Get("Location"))
	}
}

func TestLoginForm(t *testing.T) {
	tests := []struct {
		name       string
		form       url.Values
		headers    map[string]string
		wantStatus int
		wantCookie bool
		wantTarget string
		wantBody   string
	}{
		{
			name:       "success redirects to next",
			form:       url.Values{"email": {"admin@example.com"}, "password": {"s3cret-pass"}, "next": {"/practice"}},
			wantStatus: http.StatusSeeOther,
			wantCookie: true,
			wantTarget: "/practice",
		},
		{
			name:       "htmx success uses HX-Redirect",
			form:       url.Values{"email": {"admin@example.com"}, "password": {"s3cret-pass"}},
			headers:    map[string]string{"HX-Request": "true"},
			wantStatus: http.StatusOK,
			wantCookie: true,
			wantTarget: "/",
		},
		{
			name:       "wrong password",
			form:       url.Values{"email": {"admin@example.com"}, "password": {"wrong-pass"}, "next": {"/practice"}},
			wantStatus: http.StatusOK,
			wantBody:   "login next=/practice error=Incorrect email or password.",
		},
		{
			name:       "invalid input",
			form:       url.Values{"email": {"nope"}},
			wantStatus: http.StatusOK,
			wantBody:   "login next=/ error=Enter a valid email address and password.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := setupAuthRouter(t, nil)
			w := postForm(r, "/login", tt.form, tt.headers)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tt.wantStatus, w.Body.String())
			}
			if got := sessionCookie(w) != nil; got != tt.wantCookie {
				t.Errorf("cookie set = %v, want %v", got, tt.wantCookie)
			}
			if tt.wantTarget != "" {
				target := w.Header().Get("Location")
				if tt.headers != nil {
					target = w.Header().Get("HX-Redirect")
				}
				if target != tt.wantTarget {
					t.Errorf("redirect = %q, want %q", target, tt.wantTarget)
				}
			}
			if tt.wantBody != "" && w.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", w.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestLogoutPage(t *testing.T) {
	r := setupAuthRouter(t, nil)
	w := postForm(r, "/logout", url.Values{}, nil)
	if w.Code != http.StatusSeeOther || w.Header().Get("Location") != "/login" {
		t.Errorf("got %d location %q", w.Code, w.Header().Get("Location"))
	}
	if c := sessionCookie(w); c == nil || c.MaxAge >= 0 {
		t.Errorf("expected the cookie to be cleared, got %v", c)
	}
}

func TestSafeNext(t *testing.T) {
	tests := map[string]string{
		"":                  "/",
		"/practice":         "/practice",
		"//evil.example":    "/",
		"/\\evil.example":   "/",
		"https://evil.test": "/",
		"practice":          "/",
	}
	for in, want := range tests {
		if got := safeNext(in); got != want {
			t.Errorf("safeNext(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNewModule_PanicsOnNilHandler(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	NewModule(nil)
}
