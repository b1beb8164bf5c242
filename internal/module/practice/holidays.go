package practice

import (
	"sort"
	"time"

	"github.com/rickar/cal/v2"
	"github.com/rickar/cal/v2/gb"
)

// Holiday is a public holiday observed by practices.
type Holiday struct {
	Date time.Time
	Name string
}

// UK weekend substitution: Saturday and Sunday both move to Monday.
var weekendToMonday = []cal.AltDay{
	{Day: time.Saturday, Offset: 2},
	{Day: time.Sunday, Offset: 1},
}

var (
	stPatricksDay = &cal.Holiday{
		Name:     "St Patrick's Day",
		Type:     cal.ObservanceBank,
		Month:    time.March,
		Day:      17,
		Observed: weekendToMonday,
		Func:     cal.CalcDayOfMonth,
	}
	battleOfTheBoyne = &cal.Holiday{
		Name:     "Battle of the Boyne",
		Type:     cal.ObservanceBank,
		Month:    time.July,
		Day:      12,
		Observed: weekendToMonday,
		Func:     cal.CalcDayOfMonth,
	}
)

// practiceHolidays is the England and Wales calendar, one-off years
// included, plus the two Northern Ireland days.
var practiceHolidays = append(append([]*cal.Holiday{}, gb.Holidays...), stPatricksDay, battleOfTheBoyne)

// PublicHolidays returns the bank holidays of England and Wales together
// with those of Northern Ireland for year, in date order. A holiday whose
// observance moves is listed on its date and again on its substitute day.
func PublicHolidays(year int) []Holiday {
	var out []Holiday
	for _, h := range practiceHolidays {
		actual, observed := h.Calc(year)
		if actual.IsZero() {
			continue
		}
		out = append(out, Holiday{Date: utcDay(actual), Name: h.Name})
		if !observed.Equal(actual) {
			out = append(out, Holiday{Date: utcDay(observed), Name: h.Name + " (substitute day)"})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// utcDay drops the calendar's local zone so form dates never shift.
func utcDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func isWeekend(d time.Time) bool {
	return d.Weekday() == time.Saturday || d.Weekday() == time.Sunday
}
