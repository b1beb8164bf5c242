package app

import "github.com/gin-gonic/gin"

// Module is a feature that registers its own routes. api is mounted under
// /api without CSRF; pages carries the CSRF middleware and serves HTML.
// Both groups run behind the authentication middleware.
type Module interface {
	RegisterRoutes(api *gin.RouterGroup, pages *gin.RouterGroup)
}
