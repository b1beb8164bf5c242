package staff

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/simp-lee/practiceadmin/internal/domain"
	"github.com/simp-lee/practiceadmin/internal/pkg"
)

// StaffHandler serves the staff account API.
type StaffHandler struct {
	svc domain.StaffService
}

// NewStaffHandler creates a StaffHandler with the given service.
func NewStaffHandler(svc domain.StaffService) *StaffHandler {
	return &StaffHandler{svc: svc}
}

// Create handles POST /api/staff.
func (h *StaffHandler) Create(c *gin.Context) {
	var req CreateStaffRequest
	if !pkg.BindAndValidate(c, &req) {
		return
	}

	account, err := h.svc.CreateStaff(c.Request.Context(), req.Name, req.Email, req.Password, req.Role)
	if err != nil {
		pkg.Error(c, err)
		return
	}

	c.JSON(http.StatusCreated, pkg.Response{
		Code:    http.StatusCreated,
		Message: "success",
		Data:    account,
	})
}

// Get handles GET /api/staff/:id.
func (h *StaffHandler) Get(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		pkg.Error(c, domain.NewAppError(domain.CodeValidation, err.Error(), nil))
		return
	}

	account, err := h.svc.GetStaff(c.Request.Context(), id)
	if err != nil {
		pkg.Error(c, err)
		return
	}
	pkg.Success(c, account)
}

// List handles GET /api/staff?page=&page_size=&ordering=&name__icontains=&role=.
func (h *StaffHandler) List(c *gin.Context) {
	result, err := h.svc.ListStaff(c.Request.Context(), pkg.ParsePageRequest(c))
	if err != nil {
		pkg.Error(c, err)
		return
	}
	pkg.List(c, result)
}

// UpdateRole handles PUT /api/staff/:id/role.
func (h *StaffHandler) UpdateRole(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		pkg.Error(c, domain.NewAppError(domain.CodeValidation, err.Error(), nil))
		return
	}

	var req UpdateRoleRequest
	if !pkg.BindAndValidate(c, &req) {
		return
	}

	account, err := h.svc.UpdateRole(c.Request.Context(), id, req.Role)
	if err != nil {
		pkg.Error(c, err)
		return
	}
	pkg.Success(c, account)
}

// Delete handles DELETE /api/staff/:id.
func (h *StaffHandler) Delete(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		pkg.Error(c, domain.NewAppError(domain.CodeValidation, err.Error(), nil))
		return
	}

	if err := h.svc.DeleteStaff(c.Request.Context(), id); err != nil {
		pkg.Error(c, err)
		return
	}
	pkg.Success(c, nil)
}

// parseID extracts and validates the "id" URL parameter.
func parseID(c *gin.Context) (uint, error) {
	raw := c.Param("id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 || id > uint64(^uint(0)) {
		return 0, fmt.Errorf("invalid id: %s", raw)
	}
	return uint(id), nil
}
