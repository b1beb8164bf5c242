package practice

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simp-lee/practiceadmin/internal/domain"
)

func validValues() url.Values {
	return url.Values{
		"name":                         {"  Riverside Surgery "},
		"address_line_1":               {"1 High Street"},
		"city":                         {"Belfast"},
		"state":                        {"Antrim"},
		"zip_code":                     {"BT1 1AA"},
		"country":                      {"United Kingdom"},
		"team_members[0].first_name":   {"Ada"},
		"team_members[0].last_name":    {"Byron"},
		"team_members[0].job_title":    {"GP"},
		"opening_hours[0].day_of_week": {"1"},
		"opening_hours[0].start_time":  {"09:00"},
		"opening_hours[0].end_time":    {"17:30"},
		"opening_hours[1].day_of_week": {"0"},
		"opening_hours[1].is_closed":   {"true"},
		"opening_time_exceptions[0].start_datetime": {"25/12/2024"},
		"opening_time_exceptions[0].end_datetime":   {"26/12/2024"},
		"opening_time_exceptions[0].is_closed":      {"true"},
		"opening_time_exceptions[0].reason":         {"Christmas"},
		"feature_flags[0].flag_id":                  {domain.FlagAppointmentRequest},
		"feature_flags[0].flag_value":               {"true"},
	}
}

func TestFormParser_Valid(t *testing.T) {
	f, errs, err := NewFormParser().Parse(validValues())
	require.NoError(t, err)
	require.Nil(t, errs)

	assert.Equal(t, "Riverside Surgery", f.Name)
	require.Len(t, f.OpeningHours, 2)
	assert.True(t, f.OpeningHours[1].IsClosed)

	p := f.Practice()
	assert.Equal(t, "Riverside Surgery", p.Name)
	assert.Equal(t, "2024-12-25", p.OpeningTimeExceptions[0].StartDatetime)
	assert.Equal(t, "2024-12-26", p.OpeningTimeExceptions[0].EndDatetime)
	assert.Equal(t, "17:30", p.OpeningHours[0].EndTime)
	assert.Equal(t, []domain.FeatureFlag{{FlagID: domain.FlagAppointmentRequest, FlagValue: true}}, p.FeatureFlags)
	assert.NotNil(t, p.ContactOptions, "empty collections are sent as []")
}

func TestFormParser_DropsBlankRows(t *testing.T) {
	v := validValues()
	v.Del("team_members[0].first_name")
	v.Del("team_members[0].last_name")
	v.Del("team_members[0].job_title")
	v.Set("team_members[2].first_name", "Grace")
	v.Set("team_members[2].last_name", "Hopper")
	v.Set("team_members[2].job_title", "Nurse")

	f, errs, err := NewFormParser().Parse(v)
	require.NoError(t, err)
	require.Nil(t, errs)
	require.Len(t, f.TeamMembers, 1)
	assert.Equal(t, "Grace", f.TeamMembers[0].FirstName)
}

func TestFormParser_Errors(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(url.Values)
		field string
		msg   string
	}{
		{
			name:  "missing name",
			edit:  func(v url.Values) { v.Set("name", "   ") },
			field: "name",
			msg:   "This field is required.",
		},
		{
			name:  "partial team member",
			edit:  func(v url.Values) { v.Del("team_members[0].job_title") },
			field: "team_members[0].job_title",
			msg:   "This field is required.",
		},
		{
			name:  "bad clock",
			edit:  func(v url.Values) { v.Set("opening_hours[0].start_time", "9am") },
			field: "opening_hours[0].start_time",
			msg:   "Use the HH:mm format.",
		},
		{
			name:  "open day without times",
			edit:  func(v url.Values) { v.Del("opening_hours[0].start_time") },
			field: "opening_hours[0].start_time",
			msg:   "This field is required.",
		},
		{
			name:  "closing before opening",
			edit:  func(v url.Values) { v.Set("opening_hours[0].end_time", "08:00") },
			field: "opening_hours[0].end_time",
			msg:   "Must not be before the start.",
		},
		{
			name:  "bad date",
			edit:  func(v url.Values) { v.Set("opening_time_exceptions[0].start_datetime", "2024-12-25") },
			field: "opening_time_exceptions[0].start_datetime",
			msg:   "Use the DD/MM/YYYY format.",
		},
		{
			name:  "end date without start",
			edit:  func(v url.Values) { v.Del("opening_time_exceptions[0].start_datetime") },
			field: "opening_time_exceptions[0].start_datetime",
			msg:   "This field is required.",
		},
		{
			name:  "exception ends before it starts",
			edit:  func(v url.Values) { v.Set("opening_time_exceptions[0].end_datetime", "24/12/2024") },
			field: "opening_time_exceptions[0].end_datetime",
			msg:   "Must not be before the start.",
		},
	}
	parser := NewFormParser()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := validValues()
			tt.edit(v)
			f, errs, err := parser.Parse(v)
			require.NoError(t, err)
			require.NotNil(t, f, "the form is returned for re-rendering")
			assert.Equal(t, tt.msg, errs[tt.field], "errors: %v", errs)
		})
	}
}

func TestFormParser_Malformed(t *testing.T) {
	v := validValues()
	v.Set("opening_hours[0].day_of_week", "monday")
	_, _, err := NewFormParser().Parse(v)
	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))
}

func TestDefaultForm(t *testing.T) {
	f := DefaultForm(time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC))

	assert.Len(t, f.TeamMembers, 1)
	require.Len(t, f.OpeningHours, 7)
	for _, h := range f.OpeningHours {
		weekend := h.DayOfWeek == int(time.Saturday) || h.DayOfWeek == int(time.Sunday)
		assert.Equal(t, weekend, h.IsClosed, "day %d", h.DayOfWeek)
		if !weekend {
			assert.Equal(t, "09:00", h.StartTime)
			assert.Equal(t, "17:00", h.EndTime)
		}
	}
	assert.Equal(t, []FeatureFlagForm{
		{FlagID: domain.FlagAppointmentRequest},
		{FlagID: domain.FlagPrescriptionRequest},
	}, f.FeatureFlags)

	require.Len(t, f.OpeningTimeExceptions, len(PublicHolidays(2024)))
	first := f.OpeningTimeExceptions[0]
	assert.Equal(t, ExceptionForm{StartDate: "01/01/2024", EndDate: "01/01/2024", IsClosed: true, Reason: "New Year's Day"}, first)
}

func TestFormFromPractice(t *testing.T) {
	p := &domain.Practice{
		ID:           7,
		Name:         "Harbour Clinic",
		AddressLine1: "2 Quay",
		OpeningHours: []domain.OpeningHour{{ID: 3, DayOfWeek: 2, StartTime: "08:30:00", EndTime: "18:00:00"}},
		OpeningTimeExceptions: []domain.OpeningTimeException{
			{ID: 4, StartDatetime: "2024-12-25T00:00:00Z", EndDatetime: "2024-12-26", Reason: "Christmas", IsClosed: true},
		},
	}
	f := FormFromPractice(p)

	assert.Equal(t, int64(7), f.ID)
	assert.Equal(t, "harbour-clinic", f.Slug)
	assert.Equal(t, OpeningHourForm{ID: 3, DayOfWeek: 2, StartTime: "08:30", EndTime: "18:00"}, f.OpeningHours[0])
	assert.Equal(t, "25/12/2024", f.OpeningTimeExceptions[0].StartDate)
	assert.Equal(t, "26/12/2024", f.OpeningTimeExceptions[0].EndDate)

	back := f.Practice()
	assert.Equal(t, int64(7), back.ID)
	assert.Equal(t, "2024-12-25", back.OpeningTimeExceptions[0].StartDatetime)
	assert.Equal(t, "08:30", back.OpeningHours[0].StartTime)
	assert.Empty(t, back.Slug)
}

func TestDateConversions(t *testing.T) {
	assert.Equal(t, "2024-02-29", DateToAPI("29/02/2024"))
	assert.Equal(t, "", DateToAPI("31/02/2024"))
	assert.Equal(t, "", DateToAPI(""))
	assert.Equal(t, "29/02/2024", DateFromAPI("2024-02-29"))
	assert.Equal(t, "29/02/2024", DateFromAPI("2024-02-29T10:00:00Z"))
	assert.Equal(t, "soon", DateFromAPI("soon"))
	assert.Equal(t, "09:15", clockFromAPI("09:15:00"))
	assert.Equal(t, "", clockFromAPI(""))
}
