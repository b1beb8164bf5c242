package practice

import (
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/simp-lee/practiceadmin/internal/browse"
	"github.com/simp-lee/practiceadmin/internal/domain"
)

// SessionRecorder is told when table views open and close.
type SessionRecorder interface {
	SessionOpened()
	SessionClosed()
}

// View is one open practice table: a browse session owned by a staff member.
type View struct {
	id      string
	owner   uint
	session *browse.Session[domain.Practice]
}

// ID identifies the view in URLs.
func (v *View) ID() string { return v.id }

// Session returns the browse session behind the view.
func (v *View) Session() *browse.Session[domain.Practice] { return v.session }

// ViewStore keeps the open table views. Views idle for longer than the TTL,
// or pushed out by newer ones once the store is full, are closed.
type ViewStore struct {
	cache *expirable.LRU[string, *View]
	rec   SessionRecorder
}

// NewViewStore creates a store holding at most size views.
func NewViewStore(size int, ttl time.Duration, rec SessionRecorder) *ViewStore {
	s := &ViewStore{rec: rec}
	s.cache = expirable.NewLRU[string, *View](size, s.evicted, ttl)
	return s
}

// evicted runs under the cache lock; Close waits for fetches, so it runs
// in its own goroutine.
func (s *ViewStore) evicted(_ string, v *View) {
	go v.session.Close()
	if s.rec != nil {
		s.rec.SessionClosed()
	}
}

// Open registers session for owner and returns the new view.
func (s *ViewStore) Open(owner uint, session *browse.Session[domain.Practice]) *View {
	v := &View{id: uuid.NewString(), owner: owner, session: session}
	s.cache.Add(v.id, v)
	if s.rec != nil {
		s.rec.SessionOpened()
	}
	return v
}

// Get returns the view with id if it is open and owned by owner. A hit
// restarts the idle timer.
func (s *ViewStore) Get(id string, owner uint) (*View, bool) {
	v, ok := s.cache.Get(id)
	if !ok || v.owner != owner || v.session.Closed() {
		return nil, false
	}
	s.cache.Add(id, v)
	return v, true
}

// Remove closes the view with id.
func (s *ViewStore) Remove(id string) {
	s.cache.Remove(id)
}

// Len returns the number of open views.
func (s *ViewStore) Len() int {
	return s.cache.Len()
}

// Close closes every open view and waits for their fetches to return.
func (s *ViewStore) Close() {
	views := s.cache.Values()
	s.cache.Purge()
	for _, v := range views {
		v.session.Close()
	}
}
