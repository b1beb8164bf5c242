package staff

import (
	"github.com/gin-gonic/gin"

	"github.com/simp-lee/practiceadmin/internal/access"
	"github.com/simp-lee/practiceadmin/internal/middleware"
)

// StaffModule implements app.Module for staff account administration.
type StaffModule struct {
	handler *StaffHandler
	acl     middleware.Authorizer
}

// NewModule creates a StaffModule. Panics if h or acl is nil.
func NewModule(h *StaffHandler, acl middleware.Authorizer) *StaffModule {
	if h == nil {
		panic("staff.NewModule: handler must not be nil")
	}
	if acl == nil {
		panic("staff.NewModule: acl must not be nil")
	}
	return &StaffModule{handler: h, acl: acl}
}

// RegisterRoutes registers the staff API, open to principals allowed to
// manage staff. There are no staff pages.
func (m *StaffModule) RegisterRoutes(api *gin.RouterGroup, _ *gin.RouterGroup) {
	read := middleware.RequirePermission(m.acl, access.ResourceStaff, access.ActionRead)
	write := middleware.RequirePermission(m.acl, access.ResourceStaff, access.ActionWrite)

	g := api.Group("/staff", read)
	g.GET("", m.handler.List)
	g.POST("", write, m.handler.Create)
	g.GET("/:id", m.handler.Get)
	g.PUT("/:id/role", write, m.handler.UpdateRole)
	g.DELETE("/:id", write, m.handler.Delete)
}
