package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/simp-lee/ginx"
	"github.com/simp-lee/logger"
)

// Recovery returns a gin middleware that recovers from panics. Panics are
// logged with their stack trace by ginx to a logger built from opts, so
// callers should pass console options only: a second file writer would race
// the application's log rotation.
//
// The response depends on the caller: htmx requests get an error toast and
// no swap, browsers get the errors/500.html page, everything else gets
//
//	{"code": 500, "message": "internal server error", "data": null}
//
// It panics if the logger cannot be created.
func Recovery(opts ...logger.Option) gin.HandlerFunc {
	return ginx.NewChain().
		Use(ginx.RecoveryWith(renderPanic, opts...)).
		Use(passAbortHandler).
		Build()
}

// passAbortHandler swallows http.ErrAbortHandler, raised when a client goes
// away mid-stream such as an SSE subscriber, so it is not logged as a panic.
func passAbortHandler(next gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				if err == http.ErrAbortHandler {
					c.Abort()
					return
				}
				panic(err)
			}
		}()
		next(c)
	}
}

func renderPanic(c *gin.Context, _ any) {
	c.Abort()

	switch {
	case c.Writer.Written():
	case IsHTMX(c):
		c.Header("HX-Reswap", "none")
		TriggerToast(c, "Something went wrong. Please try again.", ToastError)
		c.Status(http.StatusInternalServerError)
	case acceptsHTML(c):
		renderHTMLError(c)
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "internal server error",
			"data":    nil,
		})
	}
}

// renderHTMLError renders errors/500.html, falling back to plain text when no
// HTML renderer is configured or rendering fails.
func renderHTMLError(c *gin.Context) {
	defer func() {
		if r := recover(); r != nil {
			c.Data(http.StatusInternalServerError, "text/plain; charset=utf-8", []byte("500 Internal Server Error"))
		}
	}()
	c.HTML(http.StatusInternalServerError, "errors/500.html", gin.H{})
}
