package browse

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/simp-lee/practiceadmin/internal/domain"
)

var errEmptyResult = errors.New("fetcher returned no result")

// Options configures a Session. Zero values are replaced with defaults.
type Options struct {
	Tracker  *Tracker
	Logger   *slog.Logger
	Observer Observer
}

// Snapshot is a consistent copy of a session's state.
type Snapshot[T any] struct {
	Search    string
	Page      int
	Sort      SortSpec
	Dataset   *domain.ResultSet[T]
	Searching bool
	Loading   bool
	Version   uint64
}

// Session keeps the displayed dataset of one table view in sync with its
// query. Two effects drive it:
//
//   - search: reruns when the search text, page or sort changes; an empty
//     search text clears the search results without a request.
//   - all: reruns when the initial results, page or sort changes; on page 1
//     with no sort it adopts the initial results without a request.
//
// Starting an effect cancels the fetch it previously started. The displayed
// dataset is the search results when present, else the list-all results.
type Session[T any] struct {
	fetcher     Fetcher[T]
	sort        *SortState
	tracker     *Tracker
	log         *slog.Logger
	observer    Observer
	ctx         context.Context
	cancel      context.CancelFunc
	unsubscribe func()
	wg          sync.WaitGroup

	mu         sync.Mutex
	closed     bool
	search     string
	page       int
	initial    *domain.ResultSet[T]
	initialRev uint64
	searchRes  *domain.ResultSet[T]
	allRes     *domain.ResultSet[T]
	dataset    *domain.ResultSet[T]
	searchEff  effect
	allEff     effect
	pending    int
	version    uint64
	changed    chan struct{}
}

// effect remembers the dependencies an effect last ran with and the fetch it
// started, so that only a dependency change reruns it.
type effect struct {
	ran    bool
	deps   string
	gen    uint64
	cancel context.CancelFunc
}

// supersede cancels the outstanding fetch, if any, and invalidates its result.
func (e *effect) supersede() {
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.gen++
}

// NewSession starts a session on page 1 with no search text. initial is the
// list-all page the caller already holds for page 1 without sorting.
func NewSession[T any](fetcher Fetcher[T], sort *SortState, initial *domain.ResultSet[T], opts Options) *Session[T] {
	if sort == nil {
		sort = NewSortState(nil)
	}
	if opts.Tracker == nil {
		opts.Tracker = NewTracker()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session[T]{
		fetcher:  fetcher,
		sort:     sort,
		tracker:  opts.Tracker,
		log:      opts.Logger,
		observer: opts.Observer,
		ctx:      ctx,
		cancel:   cancel,
		page:     1,
		initial:  initial,
		changed:  make(chan struct{}),
	}

	s.mu.Lock()
	s.reconcileLocked()
	s.mu.Unlock()

	s.unsubscribe = sort.Subscribe(func(SortSpec) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.reconcileLocked()
	})
	return s
}

// SetSearch changes the search text.
func (s *Session[T]) SetSearch(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.search = text
	s.reconcileLocked()
}

// SetPage changes the page number. Values below 1 select page 1.
func (s *Session[T]) SetPage(page int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.page = normalizePage(page)
	s.reconcileLocked()
}

// SetQuery changes search text and page together so that only one round of
// fetches is started.
func (s *Session[T]) SetQuery(text string, page int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.search = text
	s.page = normalizePage(page)
	s.reconcileLocked()
}

// SetSort writes spec to the shared sort state and moves to page.
func (s *Session[T]) SetSort(spec SortSpec, page int) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.page = normalizePage(page)
	s.mu.Unlock()

	s.sort.Set(spec)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.reconcileLocked()
	}
}

// SetInitial replaces the initial list-all results.
func (s *Session[T]) SetInitial(initial *domain.ResultSet[T]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.initial = initial
	s.initialRev++
	s.reconcileLocked()
}

// Dataset returns the displayed dataset.
func (s *Session[T]) Dataset() *domain.ResultSet[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dataset
}

// SearchResults returns the search result set, nil when undefined.
func (s *Session[T]) SearchResults() *domain.ResultSet[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.searchRes
}

// AllResults returns the list-all result set.
func (s *Session[T]) AllResults() *domain.ResultSet[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.allRes
}

// Loading reports whether a fetch started by this session is outstanding.
func (s *Session[T]) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending > 0
}

// Sort returns the shared sort state the session follows.
func (s *Session[T]) Sort() *SortState {
	return s.sort
}

// Snapshot returns the current state.
func (s *Session[T]) Snapshot() Snapshot[T] {
	spec := s.sort.Get()
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot[T]{
		Search:    s.search,
		Page:      s.page,
		Sort:      spec,
		Dataset:   s.dataset,
		Searching: s.searchRes != nil,
		Loading:   s.pending > 0,
		Version:   s.version,
	}
}

// Changed returns a channel that is closed at the next state change:
// a new dataset, a fetch starting or finishing, or Close.
func (s *Session[T]) Changed() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.changed
}

// Wait blocks until no fetch of this session is outstanding, the session is
// closed, or ctx is done.
func (s *Session[T]) Wait(ctx context.Context) error {
	for {
		s.mu.Lock()
		if s.pending == 0 || s.closed {
			s.mu.Unlock()
			return nil
		}
		ch := s.changed
		s.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close cancels outstanding fetches and waits for them to return, also when
// another goroutine closed the session first. Later mutations are ignored.
func (s *Session[T]) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.wg.Wait()
		return
	}
	s.closed = true
	s.searchEff.supersede()
	s.allEff.supersede()
	s.cancel()
	s.notifyLocked()
	unsubscribe := s.unsubscribe
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	s.wg.Wait()
}

// Closed reports whether Close has been called.
func (s *Session[T]) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session[T]) reconcileLocked() {
	if s.closed {
		return
	}
	ordering := s.sort.Get().Ordering()
	page := strconv.Itoa(s.page)

	if deps := s.search + "\x00" + page + "\x00" + ordering; !s.searchEff.ran || s.searchEff.deps != deps {
		s.searchEff.ran = true
		s.searchEff.deps = deps
		s.searchEff.supersede()
		if s.search == "" {
			s.applyLocked(SourceSearch, nil)
		} else {
			s.startLocked(SourceSearch, &s.searchEff, Query{Name: s.search, Page: s.page, Ordering: ordering})
		}
	}

	if deps := strconv.FormatUint(s.initialRev, 10) + "\x00" + page + "\x00" + ordering; !s.allEff.ran || s.allEff.deps != deps {
		s.allEff.ran = true
		s.allEff.deps = deps
		s.allEff.supersede()
		if ordering == "" && s.page == 1 {
			s.applyLocked(SourceAll, s.initial)
		} else {
			s.startLocked(SourceAll, &s.allEff, Query{Page: s.page, Ordering: ordering})
		}
	}
}

func (s *Session[T]) startLocked(source Source, eff *effect, q Query) {
	ctx, cancel := context.WithCancel(s.ctx)
	eff.cancel = cancel
	gen := eff.gen
	ticket := s.tracker.Begin()
	s.pending++
	s.notifyLocked()

	s.wg.Add(1)
	go s.fetch(ctx, cancel, source, gen, q, ticket)
}

func (s *Session[T]) fetch(ctx context.Context, cancel context.CancelFunc, source Source, gen uint64, q Query, ticket *Ticket) {
	defer s.wg.Done()
	defer ticket.Done()
	defer cancel()

	start := time.Now()
	var (
		rs  *domain.ResultSet[T]
		err error
	)
	if source == SourceSearch {
		rs, err = s.fetcher.Search(ctx, q)
	} else {
		rs, err = s.fetcher.All(ctx, q)
	}
	if err == nil && rs == nil {
		err = errEmptyResult
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ticket.Done()
	s.pending--

	eff := &s.allEff
	if source == SourceSearch {
		eff = &s.searchEff
	}

	outcome := OutcomeApplied
	switch {
	case ctx.Err() != nil || errors.Is(err, context.Canceled):
		outcome = OutcomeCancelled
	case err != nil:
		outcome = OutcomeFailed
	case eff.gen != gen:
		outcome = OutcomeStale
	default:
		s.applyLocked(source, rs)
	}

	switch outcome {
	case OutcomeFailed:
		s.log.Warn("browse fetch failed",
			slog.String("source", string(source)),
			slog.String("query", q.Encode()),
			slog.Any("error", err),
		)
	case OutcomeCancelled, OutcomeStale:
		s.log.Debug("browse fetch discarded",
			slog.String("source", string(source)),
			slog.String("query", q.Encode()),
			slog.String("outcome", string(outcome)),
		)
	}
	if s.observer != nil {
		s.observer.FetchFinished(source, outcome, time.Since(start))
	}
	s.notifyLocked()
}

// applyLocked replaces one result set and recomputes the displayed dataset.
func (s *Session[T]) applyLocked(source Source, rs *domain.ResultSet[T]) {
	if source == SourceSearch {
		s.searchRes = rs
	} else {
		s.allRes = rs
	}
	if s.searchRes != nil {
		s.dataset = s.searchRes
	} else {
		s.dataset = s.allRes
	}
	s.notifyLocked()
}

func (s *Session[T]) notifyLocked() {
	s.version++
	close(s.changed)
	s.changed = make(chan struct{})
}

func normalizePage(page int) int {
	if page < 1 {
		return 1
	}
	return page
}
