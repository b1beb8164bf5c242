package practice

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func holidayDates(year int) map[string]time.Time {
	dates := map[string]time.Time{}
	for _, h := range PublicHolidays(year) {
		dates[h.Name] = h.Date
	}
	return dates
}

func TestPublicHolidays_GoodFridayFollowsEaster(t *testing.T) {
	tests := map[int]time.Time{
		2000: day(2000, time.April, 21),
		2019: day(2019, time.April, 19),
		2024: day(2024, time.March, 29),
		2025: day(2025, time.April, 18),
	}
	for year, want := range tests {
		assert.Equal(t, want, holidayDates(year)["Good Friday"], "year %d", year)
	}
}

func TestPublicHolidays_2024(t *testing.T) {
	got := PublicHolidays(2024)

	want := []Holiday{
		{day(2024, time.January, 1), "New Year's Day"},
		{day(2024, time.March, 17), "St Patrick's Day"},
		{day(2024, time.March, 18), "St Patrick's Day (substitute day)"},
		{day(2024, time.March, 29), "Good Friday"},
		{day(2024, time.April, 1), "Easter Monday"},
		{day(2024, time.May, 6), "Early May"},
		{day(2024, time.May, 27), "Spring Bank Holiday"},
		{day(2024, time.July, 12), "Battle of the Boyne"},
		{day(2024, time.August, 26), "Summer Bank Holiday"},
		{day(2024, time.December, 25), "Christmas Day"},
		{day(2024, time.December, 26), "Boxing Day"},
	}
	assert.Equal(t, want, got)
}

func TestPublicHolidays_2022MovesSpringAndAddsJubilee(t *testing.T) {
	dates := holidayDates(2022)

	assert.Equal(t, day(2022, time.June, 2), dates["Spring Bank Holiday"])
	assert.Equal(t, day(2022, time.June, 3), dates["Platinum Jubilee Bank Holiday"])
	for _, h := range PublicHolidays(2022) {
		assert.NotEqual(t, day(2022, time.May, 30), h.Date, "no late May holiday in 2022")
	}
}

func TestPublicHolidays_2023Coronation(t *testing.T) {
	dates := holidayDates(2023)

	assert.Equal(t, day(2023, time.May, 1), dates["Early May"])
	assert.Equal(t, day(2023, time.May, 8), dates["Coronation of King Charles III"])
	assert.Equal(t, day(2023, time.May, 29), dates["Spring Bank Holiday"])

	_, ok := holidayDates(2024)["Coronation of King Charles III"]
	assert.False(t, ok)
}

func TestPublicHolidays_ChristmasSubstitutes(t *testing.T) {
	tests := []struct {
		year      int
		christmas time.Time
		boxing    time.Time
	}{
		// Saturday and Sunday: Monday and Tuesday.
		{2021, day(2021, time.December, 27), day(2021, time.December, 28)},
		// Sunday and Monday: Christmas takes the Monday, Boxing Day the Tuesday.
		{2022, day(2022, time.December, 26), day(2022, time.December, 27)},
		// Weekdays: no substitutes.
		{2024, time.Time{}, time.Time{}},
	}
	for _, tt := range tests {
		dates := holidayDates(tt.year)
		assert.Equal(t, tt.christmas, dates["Christmas Day (substitute day)"], "year %d", tt.year)
		assert.Equal(t, tt.boxing, dates["Boxing Day (substitute day)"], "year %d", tt.year)
	}
}

func TestPublicHolidays_SortedWithDistinctWeekdaySubstitutes(t *testing.T) {
	for year := 2020; year <= 2030; year++ {
		hs := PublicHolidays(year)
		for i := 1; i < len(hs); i++ {
			assert.False(t, hs[i].Date.Before(hs[i-1].Date), "year %d not sorted at %d", year, i)
		}
		subs := map[time.Time]string{}
		for _, h := range hs {
			if !strings.HasSuffix(h.Name, "(substitute day)") {
				continue
			}
			assert.False(t, isWeekend(h.Date), "%s %s on a weekend", h.Name, h.Date)
			if other, ok := subs[h.Date]; ok {
				t.Errorf("%s shares %s with %s", h.Name, h.Date.Format(time.DateOnly), other)
			}
			subs[h.Date] = h.Name
		}
	}
}
