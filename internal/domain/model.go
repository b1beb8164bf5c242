package domain

import "time"

// BaseModel is the common base struct for all domain models.
// It replaces gorm.Model to avoid the implicit soft delete behavior of DeletedAt.
type BaseModel struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PageRequest holds pagination, ordering, and filtering parameters for local queries.
// Ordering uses the same encoding as the practice API: comma separated field
// names, each optionally prefixed with "-" for descending order.
type PageRequest struct {
	Page     int
	PageSize int
	Ordering string
	Filter   map[string]string
}

// ResultSet is one page of records as returned by the practice API:
// the records of the requested page and the total number of matches.
type ResultSet[T any] struct {
	Results  []T     `json:"results"`
	Count    int     `json:"count"`
	Next     *string `json:"next,omitempty"`
	Previous *string `json:"previous,omitempty"`
}

// Len returns the number of records on this page.
func (r *ResultSet[T]) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Results)
}
