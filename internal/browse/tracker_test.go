package browse

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTracker_TicketLifecycle(t *testing.T) {
	tr := NewTracker()
	assert.False(t, tr.Loading())

	a := tr.Begin()
	b := tr.Begin()
	assert.Equal(t, 2, tr.Active())
	assert.True(t, tr.Loading())

	a.Done()
	a.Done()
	assert.Equal(t, 1, tr.Active(), "a ticket is released once")

	b.Done()
	assert.Equal(t, 0, tr.Active())
	assert.False(t, tr.Loading())
}

func TestTracker_NilTicketIsSafe(t *testing.T) {
	var tk *Ticket
	tk.Done()
	(&Ticket{}).Done()
}

func TestTracker_ConcurrentTickets(t *testing.T) {
	tr := NewTracker()
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tk := tr.Begin()
			tk.Done()
			tk.Done()
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, tr.Active())
}

func TestSortState_NotifiesOnChangeOnly(t *testing.T) {
	st := NewSortState(nil)
	var got []string
	unsubscribe := st.Subscribe(func(spec SortSpec) {
		got = append(got, spec.Ordering())
	})

	st.Set(SortSpec{{ID: "name", Direction: Asc}})
	st.Set(SortSpec{{ID: "name", Direction: Asc}})
	st.Toggle("name")
	assert.Equal(t, []string{"name", "-name"}, got)

	unsubscribe()
	st.Toggle("name")
	assert.Len(t, got, 2)
	assert.Empty(t, st.Get())
}

func TestSortState_GetReturnsCopy(t *testing.T) {
	st := NewSortState(SortSpec{{ID: "name", Direction: Asc}})
	spec := st.Get()
	spec[0].Direction = Desc
	assert.Equal(t, "name", st.Get().Ordering())
}
