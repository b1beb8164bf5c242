package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Toast levels understood by the showToast handler in static/app.js.
const (
	ToastSuccess = "success"
	ToastError   = "error"
	ToastInfo    = "info"
)

// IsHTMX reports whether the request was issued by htmx.
func IsHTMX(c *gin.Context) bool {
	return c.GetHeader("HX-Request") == "true"
}

// TriggerToast sets the HX-Trigger response header with a showToast event.
func TriggerToast(c *gin.Context, message, level string) {
	setToastHeader(c.Writer.Header(), message, level)
}

func setToastHeader(h http.Header, message, level string) {
	trigger, _ := json.Marshal(map[string]any{
		"showToast": map[string]string{
			"message": message,
			"type":    level,
		},
	})
	h.Set("HX-Trigger", string(trigger))
}

// Redirect sends the client to location: through HX-Redirect for htmx
// requests, with a 303 otherwise.
func Redirect(c *gin.Context, location string) {
	if IsHTMX(c) {
		c.Header("HX-Redirect", location)
		c.Status(http.StatusOK)
		return
	}
	c.Redirect(http.StatusSeeOther, location)
}

// ToastOnly answers an htmx request with a toast and tells htmx not to swap
// the (empty) response into the page.
func ToastOnly(c *gin.Context, message, level string) {
	c.Header("HX-Reswap", "none")
	TriggerToast(c, message, level)
	c.Status(http.StatusOK)
}

// acceptsHTML returns true if the request's Accept header contains "text/html".
func acceptsHTML(c *gin.Context) bool {
	accept := strings.ToLower(c.GetHeader("Accept"))
	return strings.Contains(accept, "text/html")
}
