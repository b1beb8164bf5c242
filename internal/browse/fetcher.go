package browse

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/simp-lee/practiceadmin/internal/domain"
)

// Query selects one page of a collection.
type Query struct {
	Name     string
	Page     int
	Ordering string
}

// Encode renders the query string in the order the API documents:
// name (search only), page, then ordering when set.
func (q Query) Encode() string {
	var b strings.Builder
	if q.Name != "" {
		b.WriteString("name=")
		b.WriteString(url.QueryEscape(q.Name))
		b.WriteByte('&')
	}
	page := q.Page
	if page < 1 {
		page = 1
	}
	b.WriteString("page=")
	b.WriteString(strconv.Itoa(page))
	if q.Ordering != "" {
		b.WriteString("&ordering=")
		b.WriteString(strings.ReplaceAll(url.QueryEscape(q.Ordering), "%2C", ","))
	}
	return b.String()
}

// Fetcher loads pages of T. Implementations must return promptly once ctx is
// cancelled; the session discards whatever they return after that.
type Fetcher[T any] interface {
	Search(ctx context.Context, q Query) (*domain.ResultSet[T], error)
	All(ctx context.Context, q Query) (*domain.ResultSet[T], error)
}

// Source names which of the two result sets a fetch fills.
type Source string

const (
	SourceSearch Source = "search"
	SourceAll    Source = "all"
)

// Outcome is how a fetch ended.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeStale     Outcome = "stale"
	OutcomeFailed    Outcome = "failed"
)

// Observer is told about every finished fetch.
type Observer interface {
	FetchFinished(source Source, outcome Outcome, elapsed time.Duration)
}
