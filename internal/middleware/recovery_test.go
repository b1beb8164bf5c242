package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/simp-lee/logger"
)

func setupRecoveryRouter(buf *bytes.Buffer) (*gin.Engine, *bool) {
	reached := false
	r := gin.New()
	r.Use(Recovery(
		logger.WithConsoleWriter(buf),
		logger.WithConsoleFormat(logger.FormatText),
		logger.WithConsoleColor(false),
	))
	r.GET("/panic", func(c *gin.Context) { panic("boom") }, func(c *gin.Context) { reached = true })
	r.GET("/abort", func(c *gin.Context) { panic(http.ErrAbortHandler) })
	r.GET("/ok", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	return r, &reached
}

func TestRecovery_PassesThrough(t *testing.T) {
	var buf bytes.Buffer
	r, _ := setupRecoveryRouter(&buf)
	w := serve(r, http.MethodGet, "/ok", nil)
	if w.Code != http.StatusOK || w.Body.String() != "ok" {
		t.Errorf("got %d %q, want 200 ok", w.Code, w.Body.String())
	}
}

func TestRecovery_JSON(t *testing.T) {
	var buf bytes.Buffer
	r, reached := setupRecoveryRouter(&buf)

	w := serve(r, http.MethodGet, "/panic", nil)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body["message"] != "internal server error" {
		t.Errorf("message = %v", body["message"])
	}
	if *reached {
		t.Error("handlers after the panic must not run")
	}
	for _, want := range []string{"Panic recovered", "boom", "stack="} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("expected %q in log:\n%s", want, buf.String())
		}
	}
}

func TestRecovery_HTMLFallbackWithoutRenderer(t *testing.T) {
	var buf bytes.Buffer
	r, _ := setupRecoveryRouter(&buf)

	w := serve(r, http.MethodGet, "/panic", map[string]string{"Accept": "text/html"})
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	if !strings.Contains(w.Body.String(), "500 Internal Server Error") {
		t.Errorf("body = %q", w.Body.String())
	}
}

func TestRecovery_HTMXToast(t *testing.T) {
	var buf bytes.Buffer
	r, _ := setupRecoveryRouter(&buf)

	w := serve(r, http.MethodGet, "/panic", map[string]string{"HX-Request": "true", "Accept": "text/html"})
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	if w.Header().Get("HX-Reswap") != "none" {
		t.Errorf("HX-Reswap = %q", w.Header().Get("HX-Reswap"))
	}
	if !strings.Contains(w.Header().Get("HX-Trigger"), "showToast") {
		t.Errorf("HX-Trigger = %q", w.Header().Get("HX-Trigger"))
	}
}

func TestRecovery_AbortHandlerNotLogged(t *testing.T) {
	var buf bytes.Buffer
	r, _ := setupRecoveryRouter(&buf)

	serve(r, http.MethodGet, "/abort", nil)
	if strings.Contains(buf.String(), "Panic recovered") {
		t.Errorf("http.ErrAbortHandler should not be logged as a panic:\n%s", buf.String())
	}
}
