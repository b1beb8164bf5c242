package domain

import (
	"context"
	"strconv"

	"github.com/simp-lee/pagination"
)

// Role is the access level of a staff account.
type Role string

// Supported roles. Admins may create, update, delete and invite; staff may browse.
const (
	RoleAdmin Role = "admin"
	RoleStaff Role = "staff"
)

// Valid reports whether r is a supported role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleStaff
}

// Staff is a local account allowed to sign in to the admin console.
type Staff struct {
	BaseModel
	Name         string `gorm:"size:100;not null" json:"name"`
	Email        string `gorm:"size:255;uniqueIndex;not null" json:"email"`
	PasswordHash string `gorm:"size:255" json:"-"`
	Role         Role   `gorm:"size:20;not null;default:staff" json:"role"`
}

// Principal is the authenticated caller of a request.
type Principal struct {
	StaffID uint   `json:"staff_id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Role    Role   `json:"role"`
}

// IsAdmin reports whether the principal holds the admin role.
func (p *Principal) IsAdmin() bool {
	return p != nil && p.Role == RoleAdmin
}

// LocalSubject names the principal of a console running without sign-in.
const LocalSubject = "local"

// Subject identifies the principal to session tokens and the permission
// store: the decimal staff ID, or LocalSubject when there is no account.
func (p *Principal) Subject() string {
	if p.StaffID == 0 {
		return LocalSubject
	}
	return strconv.FormatUint(uint64(p.StaffID), 10)
}

// AccountListener is told about account changes that affect signed-in
// sessions.
type AccountListener interface {
	// AccountUpdated follows a change to the account's role.
	AccountUpdated(ctx context.Context, id uint)
	// AccountDeleted follows the removal of the account.
	AccountDeleted(ctx context.Context, id uint)
}

// StaffRepository defines the data access interface for staff accounts.
type StaffRepository interface {
	Create(ctx context.Context, staff *Staff) error
	GetByID(ctx context.Context, id uint) (*Staff, error)
	GetByEmail(ctx context.Context, email string) (*Staff, error)
	List(ctx context.Context, req PageRequest) (*pagination.Pagination[Staff], error)
	CountByRole(ctx context.Context, role Role) (int64, error)
	Update(ctx context.Context, staff *Staff) error
	Delete(ctx context.Context, id uint) error
	// Transaction runs fn with a repository bound to a single database
	// transaction, committed when fn returns nil.
	Transaction(ctx context.Context, fn func(repo StaffRepository) error) error
}

// StaffService defines the business logic interface for staff accounts.
type StaffService interface {
	CreateStaff(ctx context.Context, name, email, password string, role Role) (*Staff, error)
	GetStaff(ctx context.Context, id uint) (*Staff, error)
	ListStaff(ctx context.Context, req PageRequest) (*pagination.Pagination[Staff], error)
	UpdateRole(ctx context.Context, id uint, role Role) (*Staff, error)
	DeleteStaff(ctx context.Context, id uint) error
	EnsureAdmin(ctx context.Context, name, email, password string) (bool, error)
}
