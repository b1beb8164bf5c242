package app

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/simp-lee/practiceadmin/internal/middleware"
	"github.com/simp-lee/practiceadmin/internal/pkg"
)

// errorTemplates maps status codes to error pages; other codes use the 500
// page.
var errorTemplates = map[int]string{
	http.StatusBadRequest:          "errors/400.html",
	http.StatusForbidden:           "errors/403.html",
	http.StatusNotFound:            "errors/404.html",
	http.StatusInternalServerError: "errors/500.html",
}

// renderError answers with code in the form the client expects: a toast for
// htmx, an error page for browsers and the JSON envelope otherwise.
func renderError(c *gin.Context, code int, message string) {
	if middleware.IsHTMX(c) {
		c.Header("HX-Reswap", "none")
		middleware.TriggerToast(c, message, middleware.ToastError)
		c.Status(code)
		return
	}
	accept := strings.ToLower(c.GetHeader("Accept"))
	// acceptsHTML also matches */*, so an explicit JSON preference wins first.
	if strings.Contains(accept, "application/json") && !strings.Contains(accept, "text/html") {
		c.JSON(code, pkg.Response{Code: code, Message: message})
		return
	}
	if acceptsHTML(c) {
		renderHTMLErrorPage(c, code)
		return
	}
	c.JSON(code, pkg.Response{Code: code, Message: message})
}

// renderHTMLErrorPage renders the error page for code, falling back to plain
// text when no renderer is configured.
func renderHTMLErrorPage(c *gin.Context, code int) {
	defer func() {
		if r := recover(); r != nil {
			c.Data(code, "text/plain; charset=utf-8", []byte(fmt.Sprintf("%d %s", code, statusText(code))))
		}
	}()

	tmpl, ok := errorTemplates[code]
	if !ok {
		tmpl = errorTemplates[http.StatusInternalServerError]
	}
	c.HTML(code, tmpl, gin.H{
		"Status":    code,
		"Principal": middleware.CurrentPrincipal(c),
	})
}

// acceptsHTML matches text/html, */* and an empty Accept header.
func acceptsHTML(c *gin.Context) bool {
	accept := strings.ToLower(c.GetHeader("Accept"))
	return strings.Contains(accept, "text/html") ||
		strings.Contains(accept, "*/*") ||
		strings.TrimSpace(accept) == ""
}

func statusText(code int) string {
	if s := http.StatusText(code); s != "" {
		return s
	}
	return "Error"
}
