// Package access holds what each staff role may do, backed by an in-memory
// role store.
package access

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/simp-lee/rbac"

	"github.com/simp-lee/practiceadmin/internal/domain"
)

// Resources guarded by the console.
const (
	ResourcePractice = "practice"
	ResourceStaff    = "staff"
)

// Actions on a resource.
const (
	ActionRead  = "read"
	ActionWrite = "write"
)

// rolePermissions lists, per role, the actions allowed on each resource.
var rolePermissions = map[domain.Role]map[string][]string{
	domain.RoleAdmin: {
		ResourcePractice: {"*"},
		ResourceStaff:    {"*"},
	},
	domain.RoleStaff: {
		ResourcePractice: {ActionRead},
	},
}

// Control answers permission checks for principals. It is an rbac.Service
// whose subjects are principals' Subject values.
type Control struct {
	rbac.Service
}

// New creates a Control with the admin and staff roles defined.
func New() (*Control, error) {
	svc, err := rbac.New(rbac.WithMemoryStorage())
	if err != nil {
		return nil, fmt.Errorf("create rbac service: %w", err)
	}
	for role, perms := range rolePermissions {
		if err := svc.CreateRole(string(role), string(role), ""); err != nil {
			_ = svc.Close()
			return nil, fmt.Errorf("create role %s: %w", role, err)
		}
		for resource, actions := range perms {
			if err := svc.AddRolePermissions(string(role), resource, actions); err != nil {
				_ = svc.Close()
				return nil, fmt.Errorf("grant %s on %s: %w", role, resource, err)
			}
		}
	}
	return &Control{Service: svc}, nil
}

// Grant makes p's role the only role its subject holds. It is cheap when
// nothing changed and safe to call on every request.
func (c *Control) Grant(p *domain.Principal) error {
	if p == nil {
		return nil
	}
	subject := p.Subject()
	want := string(p.Role)

	held, err := c.GetUserRoles(subject)
	if err != nil {
		return fmt.Errorf("roles of %s: %w", subject, err)
	}
	for _, role := range held {
		if role == want {
			continue
		}
		if err := c.UnassignRole(subject, role); err != nil && !errors.Is(err, rbac.ErrUserDoesNotHaveRole) {
			return fmt.Errorf("unassign %s from %s: %w", role, subject, err)
		}
	}
	if slices.Contains(held, want) {
		return nil
	}
	if err := c.AssignRole(subject, want); err != nil && !errors.Is(err, rbac.ErrUserAlreadyHasRole) {
		return fmt.Errorf("assign %s to %s: %w", want, subject, err)
	}
	return nil
}

// Revoke drops every role of the account with id.
func (c *Control) Revoke(id uint) error {
	subject := (&domain.Principal{StaffID: id}).Subject()
	held, err := c.GetUserRoles(subject)
	if err != nil {
		return fmt.Errorf("roles of %s: %w", subject, err)
	}
	for _, role := range held {
		if err := c.UnassignRole(subject, role); err != nil && !errors.Is(err, rbac.ErrUserDoesNotHaveRole) {
			return fmt.Errorf("unassign %s from %s: %w", role, subject, err)
		}
	}
	return nil
}

// Allowed reports whether p may perform action on resource.
func (c *Control) Allowed(p *domain.Principal, resource, action string) (bool, error) {
	if p == nil {
		return false, nil
	}
	if err := c.Grant(p); err != nil {
		return false, err
	}
	return c.HasPermission(p.Subject(), resource, action)
}

// AccountUpdated forgets the account's roles; the next request grants the
// current one.
func (c *Control) AccountUpdated(ctx context.Context, id uint) {
	if err := c.Revoke(id); err != nil {
		slog.WarnContext(ctx, "reset account roles", slog.Uint64("staff_id", uint64(id)), slog.Any("error", err))
	}
}

// AccountDeleted drops the account's roles.
func (c *Control) AccountDeleted(ctx context.Context, id uint) {
	if err := c.Revoke(id); err != nil {
		slog.WarnContext(ctx, "drop account roles", slog.Uint64("staff_id", uint64(id)), slog.Any("error", err))
	}
}
