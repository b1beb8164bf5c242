package auth

import "github.com/gin-gonic/gin"

// AuthModule implements app.Module for staff sign-in.
type AuthModule struct {
	handler *AuthHandler
}

// NewModule creates an AuthModule. Panics if h is nil.
func NewModule(h *AuthHandler) *AuthModule {
	if h == nil {
		panic("auth.NewModule: handler must not be nil")
	}
	return &AuthModule{handler: h}
}

// RegisterRoutes registers the API login endpoints and the login page.
func (m *AuthModule) RegisterRoutes(api *gin.RouterGroup, pages *gin.RouterGroup) {
	auth := api.Group("/auth")
	auth.POST("/login", m.handler.Login)
	auth.POST("/logout", m.handler.Logout)

	if pages != nil {
		pages.GET("/login", m.handler.LoginPage)
		pages.POST("/login", m.handler.LoginForm)
		pages.POST("/logout", m.handler.LogoutPage)
	}
}
