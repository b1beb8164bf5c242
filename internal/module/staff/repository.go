package staff

import (
	"context"
	"errors"
	"strings"

	"github.com/simp-lee/pagination"
	"gorm.io/gorm"

	"github.com/simp-lee/practiceadmin/internal/domain"
	"github.com/simp-lee/practiceadmin/internal/pkg"
)

// Fields accepted in the ordering and filter parameters of List.
var (
	allowedOrderFields  = []string{"id", "name", "email", "role", "created_at"}
	allowedFilterFields = []string{"name", "email", "role"}
)

type staffRepository struct {
	db *gorm.DB
}

// NewStaffRepository creates a StaffRepository backed by the given GORM database.
func NewStaffRepository(db *gorm.DB) domain.StaffRepository {
	return &staffRepository{db: db}
}

func (r *staffRepository) Create(ctx context.Context, s *domain.Staff) error {
	s.Email = normalizeEmail(s.Email)
	if err := r.db.WithContext(ctx).Create(s).Error; err != nil {
		return mapError(err)
	}
	return nil
}

func (r *staffRepository) GetByID(ctx context.Context, id uint) (*domain.Staff, error) {
	var s domain.Staff
	if err := r.db.WithContext(ctx).First(&s, id).Error; err != nil {
		return nil, mapError(err)
	}
	return &s, nil
}

// GetByEmail looks the account up case-insensitively; emails are stored lower case.
func (r *staffRepository) GetByEmail(ctx context.Context, email string) (*domain.Staff, error) {
	var s domain.Staff
	if err := r.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).First(&s).Error; err != nil {
		return nil, mapError(err)
	}
	return &s, nil
}

// List returns one page of accounts, filtered and ordered as req asks.
func (r *staffRepository) List(ctx context.Context, req domain.PageRequest) (*pagination.Pagination[domain.Staff], error) {
	query := func(ctx context.Context) *gorm.DB {
		return r.db.WithContext(ctx).Model(&domain.Staff{}).
			Scopes(pkg.Filter(req, allowedFilterFields))
	}

	page, err := pkg.PageQuery(ctx, req,
		func(ctx context.Context) (int64, error) {
			var total int64
			err := query(ctx).Count(&total).Error
			return total, err
		},
		func(ctx context.Context, offset, limit int) ([]domain.Staff, error) {
			var items []domain.Staff
			err := query(ctx).
				Scopes(pkg.Order(req, allowedOrderFields)).
				Offset(offset).Limit(limit).
				Find(&items).Error
			return items, err
		},
	)
	if err != nil {
		return nil, mapError(err)
	}
	return page, nil
}

func (r *staffRepository) CountByRole(ctx context.Context, role domain.Role) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&domain.Staff{}).Where("role = ?", role).Count(&n).Error; err != nil {
		return 0, mapError(err)
	}
	return n, nil
}

func (r *staffRepository) Update(ctx context.Context, s *domain.Staff) error {
	s.Email = normalizeEmail(s.Email)
	if err := r.db.WithContext(ctx).Save(s).Error; err != nil {
		return mapError(err)
	}
	return nil
}

func (r *staffRepository) Delete(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Delete(&domain.Staff{}, id)
	if result.Error != nil {
		return mapError(result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *staffRepository) Transaction(ctx context.Context, fn func(repo domain.StaffRepository) error) error {
	return pkg.WithTx(ctx, r.db, func(tx *gorm.DB) error {
		return fn(&staffRepository{db: tx})
	})
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// mapError converts GORM errors to domain errors.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrNotFound
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || isDuplicateKeyError(err) {
		return domain.NewAppError(domain.CodeAlreadyExists, "a staff account with this email already exists", err)
	}
	return domain.NewAppError(domain.CodeInternal, "database error", err)
}

// isDuplicateKeyError matches unique constraint violations by message, since
// the pure-Go SQLite driver does not translate them to gorm.ErrDuplicatedKey.
func isDuplicateKeyError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "duplicate entry")
}
