package staff

import "github.com/simp-lee/practiceadmin/internal/domain"

// CreateStaffRequest is the input for creating a staff account.
type CreateStaffRequest struct {
	Name     string      `json:"name" binding:"required,min=1,max=100"`
	Email    string      `json:"email" binding:"required,email"`
	Password string      `json:"password" binding:"required,min=8,max=72"`
	Role     domain.Role `json:"role" binding:"required,oneof=admin staff"`
}

// UpdateRoleRequest is the input for changing the role of an account.
type UpdateRoleRequest struct {
	Role domain.Role `json:"role" binding:"required,oneof=admin staff"`
}
