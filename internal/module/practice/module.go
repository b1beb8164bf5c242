package practice

import (
	"github.com/gin-gonic/gin"

	"github.com/simp-lee/practiceadmin/internal/access"
	"github.com/simp-lee/practiceadmin/internal/middleware"
)

// PracticeModule implements app.Module for practice records.
type PracticeModule struct {
	proxy *ProxyHandler
	pages *PageHandler
	acl   middleware.Authorizer
}

// NewModule creates a PracticeModule. Panics if proxy or acl is nil; pages may be
// nil when the HTML pages are disabled.
func NewModule(proxy *ProxyHandler, pages *PageHandler, acl middleware.Authorizer) *PracticeModule {
	if proxy == nil {
		panic("practice.NewModule: proxy handler must not be nil")
	}
	if acl == nil {
		panic("practice.NewModule: acl must not be nil")
	}
	return &PracticeModule{proxy: proxy, pages: pages, acl: acl}
}

// RegisterRoutes registers the JSON proxy and the practice pages. Reading
// needs the practice read permission and changes the write permission.
func (m *PracticeModule) RegisterRoutes(api *gin.RouterGroup, pages *gin.RouterGroup) {
	read := middleware.RequirePermission(m.acl, access.ResourcePractice, access.ActionRead)
	admin := middleware.RequirePermission(m.acl, access.ResourcePractice, access.ActionWrite)

	p := api.Group("/practice", read)
	p.GET("/all", m.proxy.All)
	p.GET("/search", m.proxy.Search)
	p.POST("/create", admin, m.proxy.Create)
	p.GET("/:id/manage", m.proxy.Get)
	p.PUT("/:id/manage", admin, m.proxy.Update)
	p.DELETE("/:id/manage", admin, m.proxy.Delete)
	p.POST("/:id/invite", admin, m.proxy.Invite)

	if pages == nil || m.pages == nil {
		return
	}
	h := m.pages
	pg := pages.Group("/practice", read)
	pg.GET("", h.ListPage)
	pg.GET("/new", admin, h.NewPage)
	pg.POST("", admin, h.Create)
	pg.GET("/:id", h.EditPage)
	pg.PUT("/:id", admin, h.Update)
	pg.DELETE("/:id", admin, h.Delete)
	pg.POST("/:id/invite", admin, h.Invite)

	view := pg.Group("/view/:view")
	view.POST("/search", h.Search)
	view.POST("/sort/:field", h.Sort)
	view.POST("/page", h.Page)
	view.GET("/events", h.Events)
}

// Close closes the open table views.
func (m *PracticeModule) Close() {
	if m.pages != nil {
		m.pages.Close()
	}
}
