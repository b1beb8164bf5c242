package browse

import "sync"

// Tracker counts outstanding fetches across sessions so the UI can show a
// global loading indicator. Each fetch holds a Ticket that is released exactly
// once, whatever way the fetch ends.
type Tracker struct {
	mu     sync.Mutex
	active int
}

// NewTracker returns an idle tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Ticket represents one outstanding fetch.
type Ticket struct {
	tracker *Tracker
	once    sync.Once
}

// Begin records the start of a fetch.
func (t *Tracker) Begin() *Ticket {
	t.mu.Lock()
	t.active++
	t.mu.Unlock()
	return &Ticket{tracker: t}
}

// Done releases the ticket. Calling it more than once has no further effect.
func (tk *Ticket) Done() {
	if tk == nil || tk.tracker == nil {
		return
	}
	tk.once.Do(func() {
		t := tk.tracker
		t.mu.Lock()
		if t.active > 0 {
			t.active--
		}
		t.mu.Unlock()
	})
}

// Active returns the number of outstanding tickets.
func (t *Tracker) Active() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

// Loading reports whether any ticket is outstanding.
func (t *Tracker) Loading() bool {
	return t.Active() > 0
}
