package pkg

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"slices"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	dbtest "gorm.io/gorm/utils/tests"

	"github.com/simp-lee/practiceadmin/internal/domain"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestContext(queryParams url.Values) *gin.Context {
	req := httptest.NewRequest(http.MethodGet, "/?"+queryParams.Encode(), nil)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req
	return c
}

func TestParsePageRequest(t *testing.T) {
	tests := []struct {
		name       string
		query      url.Values
		wantPage   int
		wantSize   int
		wantOrder  string
		wantFilter map[string]string
	}{
		{name: "defaults", query: url.Values{}, wantPage: 1, wantSize: 20, wantOrder: "-id", wantFilter: map[string]string{}},
		{
			name: "staff directory query",
			query: url.Values{
				"page":            {"3"},
				"page_size":       {"50"},
				"ordering":        {"name,-email"},
				"role":            {"admin"},
				"name__icontains": {"robin"},
			},
			wantPage: 3, wantSize: 50, wantOrder: "name,-email",
			wantFilter: map[string]string{"role": "admin", "name__icontains": "robin"},
		},
		{name: "zero page", query: url.Values{"page": {"0"}}, wantPage: 1, wantSize: 20, wantOrder: "-id", wantFilter: map[string]string{}},
		{name: "negative page", query: url.Values{"page": {"-5"}}, wantPage: 1, wantSize: 20, wantOrder: "-id", wantFilter: map[string]string{}},
		{name: "zero page size", query: url.Values{"page_size": {"0"}}, wantPage: 1, wantSize: 20, wantOrder: "-id", wantFilter: map[string]string{}},
		{name: "negative page size", query: url.Values{"page_size": {"-5"}}, wantPage: 1, wantSize: 20, wantOrder: "-id", wantFilter: map[string]string{}},
		{name: "page size capped", query: url.Values{"page_size": {"200"}}, wantPage: 1, wantSize: 100, wantOrder: "-id", wantFilter: map[string]string{}},
		{name: "non numeric page size", query: url.Values{"page_size": {"abc"}}, wantPage: 1, wantSize: 20, wantOrder: "-id", wantFilter: map[string]string{}},
		{name: "blank ordering", query: url.Values{"ordering": {"  "}}, wantPage: 1, wantSize: 20, wantOrder: "-id", wantFilter: map[string]string{}},
		{
			name:     "empty filter values dropped",
			query:    url.Values{"role": {""}, "email": {"robin@example.com"}},
			wantPage: 1, wantSize: 20, wantOrder: "-id",
			wantFilter: map[string]string{"email": "robin@example.com"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pr := ParsePageRequest(newTestContext(tt.query))

			if pr.Page != tt.wantPage || pr.PageSize != tt.wantSize {
				t.Errorf("page=%d size=%d, want page=%d size=%d", pr.Page, pr.PageSize, tt.wantPage, tt.wantSize)
			}
			if pr.Ordering != tt.wantOrder {
				t.Errorf("ordering=%q, want %q", pr.Ordering, tt.wantOrder)
			}
			if len(pr.Filter) != len(tt.wantFilter) {
				t.Errorf("filter=%v, want %v", pr.Filter, tt.wantFilter)
			}
			for k, v := range tt.wantFilter {
				if pr.Filter[k] != v {
					t.Errorf("filter[%s]=%q, want %q", k, pr.Filter[k], v)
				}
			}
		})
	}
}

func TestPageQuery(t *testing.T) {
	rows := make([]int, 25)
	for i := range rows {
		rows[i] = i + 1
	}
	count := func(context.Context) (int64, error) { return int64(len(rows)), nil }
	slice := func(_ context.Context, offset, limit int) ([]int, error) {
		return rows[offset:min(offset+limit, len(rows))], nil
	}

	tests := []struct {
		name      string
		req       domain.PageRequest
		wantPage  int
		wantPages int
		wantFirst int
		wantItems int
	}{
		{"first page", domain.PageRequest{Page: 1, PageSize: 10}, 1, 3, 1, 10},
		{"last page", domain.PageRequest{Page: 3, PageSize: 10}, 3, 3, 21, 5},
		{"past the end clamps", domain.PageRequest{Page: 9, PageSize: 10}, 3, 3, 21, 5},
		{"zero page starts at one", domain.PageRequest{Page: 0, PageSize: 10}, 1, 3, 1, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PageQuery(context.Background(), tt.req, count, slice)
			if err != nil {
				t.Fatalf("PageQuery: %v", err)
			}
			if got.CurrentPage != tt.wantPage || got.TotalPages != tt.wantPages {
				t.Errorf("page %d of %d, want %d of %d", got.CurrentPage, got.TotalPages, tt.wantPage, tt.wantPages)
			}
			if len(got.Items) != tt.wantItems || got.Items[0] != tt.wantFirst {
				t.Errorf("items = %v", got.Items)
			}
			if got.TotalItems != 25 {
				t.Errorf("TotalItems = %d, want 25", got.TotalItems)
			}
		})
	}
}

func TestPageQuery_CountFailure(t *testing.T) {
	boom := errors.New("boom")
	_, err := PageQuery(context.Background(), domain.PageRequest{Page: 1, PageSize: 10},
		func(context.Context) (int64, error) { return 0, boom },
		func(context.Context, int, int) ([]int, error) { return nil, nil },
	)
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
}

func TestPager(t *testing.T) {
	tests := []struct {
		name               string
		count, size, page  int
		wantPage           int
		wantPages          []int
		wantPrev, wantNext int
	}{
		{"empty result is one page", 0, 50, 1, 1, []int{1}, 0, 0},
		{"middle page", 120, 50, 2, 2, []int{1, 2, 3}, 1, 3},
		{"past the end clamps", 120, 50, 9, 3, []int{1, 2, 3}, 2, 0},
		{"negative page starts at one", 120, 50, -4, 1, []int{1, 2, 3}, 0, 2},
		{"window follows the page", 1000, 50, 12, 12, []int{9, 10, 11, 12, 13, 14, 15}, 11, 13},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Pager(context.Background(), []string{"a"}, tt.count, tt.size, tt.page)
			if err != nil {
				t.Fatalf("Pager: %v", err)
			}
			if got.CurrentPage != tt.wantPage {
				t.Errorf("CurrentPage = %d, want %d", got.CurrentPage, tt.wantPage)
			}
			if !slices.Equal(got.Pages, tt.wantPages) {
				t.Errorf("Pages = %v, want %v", got.Pages, tt.wantPages)
			}
			if deref(got.PreviousPage) != tt.wantPrev || deref(got.NextPage) != tt.wantNext {
				t.Errorf("prev/next = %d/%d, want %d/%d", deref(got.PreviousPage), deref(got.NextPage), tt.wantPrev, tt.wantNext)
			}
			if len(got.Items) != 1 {
				t.Errorf("items = %v", got.Items)
			}
		})
	}
}

func deref(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

func TestIsAllowed(t *testing.T) {
	allowed := []string{"name", "email", "role"}

	if !isAllowed("name", allowed) {
		t.Error("expected 'name' to be allowed")
	}
	if isAllowed("password", allowed) {
		t.Error("expected 'password' to not be allowed")
	}
	if isAllowed("", allowed) {
		t.Error("expected empty string to not be allowed")
	}
}

func TestValidFieldName(t *testing.T) {
	valid := []string{"id", "name", "created_at", "user_name", "_private"}
	invalid := []string{"", "1field", "name;DROP", "field name", "a.b", "a-b"}

	for _, f := range valid {
		if !validFieldName.MatchString(f) {
			t.Errorf("expected %q to be valid", f)
		}
	}
	for _, f := range invalid {
		if validFieldName.MatchString(f) {
			t.Errorf("expected %q to be invalid", f)
		}
	}
}

// --------------- helpers for GORM scope tests ---------------

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(dbtest.DummyDialector{}, &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	return db
}

// --------------- Order scope ---------------

func TestOrder(t *testing.T) {
	tests := []struct {
		name     string
		ordering string
		allowed  []string
		columns  []string
	}{
		{"single asc", "name", []string{"name", "email"}, []string{"name"}},
		{"single desc", "-id", []string{"id", "name"}, []string{"id"}},
		{"multiple keep order", "name,-email", []string{"name", "email"}, []string{"name", "email"}},
		{"field not in allowed list", "password_hash", []string{"name", "email"}, nil},
		{"mixed allowed and not", "password_hash,-name", []string{"name"}, []string{"name"}},
		{"empty ordering", "", []string{"name"}, nil},
		{"sql injection in field", "name;DROP TABLE staff--", []string{"name"}, nil},
		{"sql injection attempt", "-1=1;--", []string{"name"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := domain.PageRequest{Ordering: tt.ordering}
			db := newTestDB(t)
			result := Order(req, tt.allowed)(db)

			c, hasOrder := result.Statement.Clauses["ORDER BY"]
			if hasOrder != (len(tt.columns) > 0) {
				t.Fatalf("Order clause applied=%v, want %v", hasOrder, len(tt.columns) > 0)
			}
			if !hasOrder {
				return
			}
			orderBy, ok := c.Expression.(clause.OrderBy)
			if !ok {
				t.Fatalf("ORDER BY expression = %T, want clause.OrderBy", c.Expression)
			}
			var got []string
			for _, col := range orderBy.Columns {
				got = append(got, col.Column.Name)
			}
			if strings.Join(got, ",") != strings.Join(tt.columns, ",") {
				t.Errorf("ordered columns = %v, want %v", got, tt.columns)
			}
		})
	}
}

func TestOrder_Direction(t *testing.T) {
	db := newTestDB(t)
	result := Order(domain.PageRequest{Ordering: "name,-email"}, []string{"name", "email"})(db)

	orderBy := result.Statement.Clauses["ORDER BY"].Expression.(clause.OrderBy)
	if orderBy.Columns[0].Desc {
		t.Error("expected name ascending")
	}
	if !orderBy.Columns[1].Desc {
		t.Error("expected email descending")
	}
}

// --------------- Filter scope ---------------

func TestFilter(t *testing.T) {
	tests := []struct {
		name    string
		filter  map[string]string
		allowed []string
		applied bool
	}{
		{"valid exact match", map[string]string{"role": "admin"}, []string{"role", "name"}, true},
		{"valid contains match", map[string]string{"name__icontains": "robin"}, []string{"name"}, true},
		{"field not in allowed", map[string]string{"password": "secret"}, []string{"name", "email"}, false},
		{"contains field not in allowed", map[string]string{"password__icontains": "secret"}, []string{"name"}, false},
		{"sql injection in key", map[string]string{"name;DROP TABLE--": "val"}, []string{"name"}, false},
		{"sql injection with spaces", map[string]string{"name OR 1=1": "val"}, []string{"name"}, false},
		{"empty filter map", map[string]string{}, []string{"name"}, false},
		{"several fields", map[string]string{"role": "admin", "name__icontains": "robin"}, []string{"role", "name"}, true},
		{"valid field alongside rejected one", map[string]string{"role": "admin", "password_hash": "x"}, []string{"role", "name"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := domain.PageRequest{Filter: tt.filter}
			scope := Filter(req, tt.allowed)
			db := newTestDB(t)
			result := scope(db)
			_, hasWhere := result.Statement.Clauses["WHERE"]
			if hasWhere != tt.applied {
				t.Errorf("Where clause applied=%v, want %v", hasWhere, tt.applied)
			}
		})
	}
}
