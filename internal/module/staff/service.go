package staff

import (
	"context"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/simp-lee/pagination"
	"golang.org/x/crypto/bcrypt"

	"github.com/simp-lee/practiceadmin/internal/domain"
)

const (
	minPasswordLen = 8
	// bcrypt ignores input beyond 72 bytes.
	maxPasswordLen = 72
)

type staffService struct {
	repo      domain.StaffRepository
	cost      int
	listeners []domain.AccountListener
}

// NewStaffService creates a StaffService. cost is the bcrypt cost; zero
// selects bcrypt.DefaultCost. listeners hear about role changes and
// deletions once they are committed.
func NewStaffService(repo domain.StaffRepository, cost int, listeners ...domain.AccountListener) domain.StaffService {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &staffService{repo: repo, cost: cost, listeners: listeners}
}

// CreateStaff validates the input, hashes the password and stores the account.
func (s *staffService) CreateStaff(ctx context.Context, name, email, password string, role domain.Role) (*domain.Staff, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	if err := validateAccount(name, email, password, role); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, domain.NewAppError(domain.CodeInternal, "failed to hash password", err)
	}

	account := &domain.Staff{
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
	}
	if err := s.repo.Create(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

func (s *staffService) GetStaff(ctx context.Context, id uint) (*domain.Staff, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *staffService) ListStaff(ctx context.Context, req domain.PageRequest) (*pagination.Pagination[domain.Staff], error) {
	return s.repo.List(ctx, req)
}

// UpdateRole changes the role of an account. The last admin cannot be demoted.
func (s *staffService) UpdateRole(ctx context.Context, id uint, role domain.Role) (*domain.Staff, error) {
	if !role.Valid() {
		return nil, domain.NewAppError(domain.CodeValidation, "role must be admin or staff", nil)
	}

	var updated *domain.Staff
	err := s.repo.Transaction(ctx, func(repo domain.StaffRepository) error {
		account, err := repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if account.Role == domain.RoleAdmin && role != domain.RoleAdmin {
			if err := ensureAnotherAdmin(ctx, repo); err != nil {
				return err
			}
		}
		account.Role = role
		if err := repo.Update(ctx, account); err != nil {
			return err
		}
		updated = account
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, l := range s.listeners {
		l.AccountUpdated(ctx, id)
	}
	return updated, nil
}

// DeleteStaff removes an account. The last admin cannot be deleted.
func (s *staffService) DeleteStaff(ctx context.Context, id uint) error {
	err := s.repo.Transaction(ctx, func(repo domain.StaffRepository) error {
		account, err := repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if account.Role == domain.RoleAdmin {
			if err := ensureAnotherAdmin(ctx, repo); err != nil {
				return err
			}
		}
		return repo.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	for _, l := range s.listeners {
		l.AccountDeleted(ctx, id)
	}
	return nil
}

// EnsureAdmin creates an admin account unless one already exists. It reports
// whether an account was created.
func (s *staffService) EnsureAdmin(ctx context.Context, name, email, password string) (bool, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	if err := validateAccount(name, email, password, domain.RoleAdmin); err != nil {
		return false, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return false, domain.NewAppError(domain.CodeInternal, "failed to hash password", err)
	}

	created := false
	err = s.repo.Transaction(ctx, func(repo domain.StaffRepository) error {
		n, err := repo.CountByRole(ctx, domain.RoleAdmin)
		if err != nil {
			return err
		}
		if n > 0 {
			return nil
		}
		if err := repo.Create(ctx, &domain.Staff{
			Name:         name,
			Email:        email,
			PasswordHash: string(hash),
			Role:         domain.RoleAdmin,
		}); err != nil {
			return err
		}
		created = true
		return nil
	})
	return created, err
}

func ensureAnotherAdmin(ctx context.Context, repo domain.StaffRepository) error {
	n, err := repo.CountByRole(ctx, domain.RoleAdmin)
	if err != nil {
		return err
	}
	if n <= 1 {
		return domain.NewAppError(domain.CodeValidation, "at least one admin account must remain", nil)
	}
	return nil
}

func validateAccount(name, email, password string, role domain.Role) error {
	n := utf8.RuneCountInString(name)
	if n == 0 {
		return domain.NewAppError(domain.CodeValidation, "name is required", nil)
	}
	if n > 100 {
		return domain.NewAppError(domain.CodeValidation, "name must not exceed 100 characters", nil)
	}
	if email == "" {
		return domain.NewAppError(domain.CodeValidation, "email is required", nil)
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Name != "" || addr.Address != email {
		return domain.NewAppError(domain.CodeValidation, "email must be a valid email address", nil)
	}
	if len(password) < minPasswordLen {
		return domain.NewAppError(domain.CodeValidation, "password must be at least 8 characters", nil)
	}
	if len(password) > maxPasswordLen {
		return domain.NewAppError(domain.CodeValidation, "password must not exceed 72 bytes", nil)
	}
	if !role.Valid() {
		return domain.NewAppError(domain.CodeValidation, "role must be admin or staff", nil)
	}
	return nil
}
