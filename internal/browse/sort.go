// Package browse keeps a paged, searchable and sortable view of a remote
// collection in sync with the query a user is editing.
package browse

import (
	"slices"
	"strings"
)

// Direction is the sort direction of a single column.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
	// None means the column does not take part in ordering.
	None Direction = ""
)

// Next returns the direction a header toggle moves to: asc, then desc, then none.
func (d Direction) Next() Direction {
	switch d {
	case Asc:
		return Desc
	case Desc:
		return None
	default:
		return Asc
	}
}

// SortKey orders by one field.
type SortKey struct {
	ID        string    `json:"id"`
	Direction Direction `json:"direction"`
}

// SortSpec is an ordered list of sort keys; earlier keys take precedence.
type SortSpec []SortKey

// Ordering encodes the spec as the API expects it: comma separated field ids,
// descending ones prefixed with "-". An empty spec encodes to "".
func (s SortSpec) Ordering() string {
	if len(s) == 0 {
		return ""
	}
	parts := make([]string, 0, len(s))
	for _, k := range s {
		if k.ID == "" || k.Direction == None {
			continue
		}
		if k.Direction == Desc {
			parts = append(parts, "-"+k.ID)
		} else {
			parts = append(parts, k.ID)
		}
	}
	return strings.Join(parts, ",")
}

// DirectionOf returns the direction of field id, or None when it is not sorted.
func (s SortSpec) DirectionOf(id string) Direction {
	for _, k := range s {
		if k.ID == id {
			return k.Direction
		}
	}
	return None
}

// With returns a copy of s where field id has direction d. The field is moved
// to the end of the list; None removes it.
func (s SortSpec) With(id string, d Direction) SortSpec {
	out := make(SortSpec, 0, len(s)+1)
	for _, k := range s {
		if k.ID != id {
			out = append(out, k)
		}
	}
	if d != None {
		out = append(out, SortKey{ID: id, Direction: d})
	}
	return out
}

// Toggle advances the direction of field id one step, as a click on its
// column header does.
func (s SortSpec) Toggle(id string) SortSpec {
	return s.With(id, s.DirectionOf(id).Next())
}

// Equal reports whether both specs order by the same keys in the same way.
func (s SortSpec) Equal(other SortSpec) bool {
	return slices.Equal(s, other)
}

// Clone returns an independent copy of s.
func (s SortSpec) Clone() SortSpec {
	if s == nil {
		return nil
	}
	return slices.Clone(s)
}

// ParseOrdering decodes an ordering parameter such as "name,-city".
// Empty segments are skipped; a field listed twice keeps its last position.
func ParseOrdering(ordering string) SortSpec {
	var spec SortSpec
	for _, part := range strings.Split(ordering, ",") {
		part = strings.TrimSpace(part)
		dir := Asc
		if strings.HasPrefix(part, "-") {
			dir = Desc
			part = strings.TrimPrefix(part, "-")
		}
		if part == "" {
			continue
		}
		spec = spec.With(part, dir)
	}
	return spec
}
