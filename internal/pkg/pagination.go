package pkg

import (
	"context"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/simp-lee/pagination"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/simp-lee/practiceadmin/internal/browse"
	"github.com/simp-lee/practiceadmin/internal/domain"
)

const (
	defaultPage     = 1
	defaultPageSize = 20
	maxPageSize     = 100
	defaultOrdering = "-id"

	// pagesInRange is how many page numbers a pager shows at once.
	pagesInRange = 7

	// containsSuffix marks a filter key as a case-insensitive substring match.
	containsSuffix = "__icontains"
)

// reservedParams lists query parameter names used for pagination/ordering, not for filtering.
var reservedParams = map[string]bool{
	"page":      true,
	"page_size": true,
	"ordering":  true,
}

// validFieldName matches only alphanumeric characters and underscores.
var validFieldName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ParsePageRequest extracts pagination, ordering and filtering parameters from
// the query string. Ordering uses the same comma separated "field,-field"
// form as the practice API.
func ParsePageRequest(c *gin.Context) domain.PageRequest {
	page, _ := strconv.Atoi(c.DefaultQuery("page", strconv.Itoa(defaultPage)))
	if page < 1 {
		page = defaultPage
	}

	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", strconv.Itoa(defaultPageSize)))
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	ordering := strings.TrimSpace(c.Query("ordering"))
	if ordering == "" {
		ordering = defaultOrdering
	}

	filter := make(map[string]string)
	for key, values := range c.Request.URL.Query() {
		if reservedParams[key] {
			continue
		}
		if len(values) > 0 && values[0] != "" {
			filter[key] = values[0]
		}
	}

	return domain.PageRequest{
		Page:     page,
		PageSize: pageSize,
		Ordering: ordering,
		Filter:   filter,
	}
}

// Order returns a GORM scope that applies ORDER BY for each key of the
// request's ordering, in order. Fields outside allowed, or that are not plain
// identifiers, are skipped.
func Order(req domain.PageRequest, allowed []string) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		for _, key := range browse.ParseOrdering(req.Ordering) {
			if !validFieldName.MatchString(key.ID) || !isAllowed(key.ID, allowed) {
				continue
			}
			db = db.Order(clause.OrderByColumn{
				Column: clause.Column{Name: key.ID},
				Desc:   key.Direction == browse.Desc,
			})
		}
		return db
	}
}

// Filter returns a GORM scope that applies WHERE conditions based on the page
// request filters. Only keys in allowed are applied. Keys ending in
// "__icontains" match case-insensitively on a substring; others match exactly.
func Filter(req domain.PageRequest, allowed []string) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		for key, value := range req.Filter {
			field, contains := strings.CutSuffix(key, containsSuffix)
			if !validFieldName.MatchString(field) || !isAllowed(field, allowed) {
				continue
			}
			if contains {
				db = db.Where("LOWER("+field+") LIKE ?", "%"+strings.ToLower(value)+"%")
			} else {
				db = db.Where(field+" = ?", value)
			}
		}
		return db
	}
}

// PageQuery pages a counted query: count reports the matches across all
// pages and slice loads one window of them. A page past the last is clamped
// to the last.
func PageQuery[T any](
	ctx context.Context,
	req domain.PageRequest,
	count func(ctx context.Context) (int64, error),
	slice func(ctx context.Context, offset, limit int) ([]T, error),
) (*pagination.Pagination[T], error) {
	return pagination.NewPaginator(
		pagination.WithItemsPerPage[T](max(req.PageSize, 1)),
		pagination.WithPagesInRange[T](pagesInRange),
		pagination.WithItemTotalCallback[T](count),
		pagination.WithSliceCallback(slice),
	).Paginate(ctx, max(req.Page, 1))
}

// Pager lays out the navigation of a page fetched elsewhere: items is that
// page and count the number of matches across all pages.
func Pager[T any](ctx context.Context, items []T, count, pageSize, page int) (*pagination.Pagination[T], error) {
	return pagination.NewPaginator(
		pagination.WithItemsPerPage[T](max(pageSize, 1)),
		pagination.WithPagesInRange[T](pagesInRange),
		pagination.WithKnownTotal[T](int64(max(count, 0))),
		pagination.WithSliceCallback(func(context.Context, int, int) ([]T, error) {
			return items, nil
		}),
	).Paginate(ctx, max(page, 1))
}

func isAllowed(field string, allowed []string) bool {
	return slices.Contains(allowed, field)
}
