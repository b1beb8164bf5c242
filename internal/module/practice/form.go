package practice

import (
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/form/v4"
	"github.com/go-playground/validator/v10"

	"github.com/simp-lee/practiceadmin/internal/domain"
)

// Date and time layouts used by the practice form and the practice API.
const (
	formDateLayout = "02/01/2006"
	apiDateLayout  = "2006-01-02"
	clockLayout    = "15:04"
)

// PracticeForm is the practice edit form. Nested rows are posted as
// team_members[0].first_name and so on.
type PracticeForm struct {
	ID           int64  `form:"id"`
	Slug         string `form:"-"`
	Name         string `form:"name" validate:"required,max=255"`
	AddressLine1 string `form:"address_line_1" validate:"required"`
	AddressLine2 string `form:"address_line_2"`
	City         string `form:"city" validate:"required"`
	State        string `form:"state" validate:"required"`
	ZipCode      string `form:"zip_code" validate:"required"`
	Country      string `form:"country" validate:"required"`

	TeamMembers           []TeamMemberForm    `form:"team_members" validate:"dive"`
	OpeningHours          []OpeningHourForm   `form:"opening_hours" validate:"dive"`
	OpeningTimeExceptions []ExceptionForm     `form:"opening_time_exceptions" validate:"dive"`
	ContactOptions        []ContactOptionForm `form:"contact_options" validate:"dive"`
	Notices               []NoticeForm        `form:"notices" validate:"dive"`
	FeatureFlags          []FeatureFlagForm   `form:"feature_flags" validate:"dive"`
}

type TeamMemberForm struct {
	ID        int64  `form:"id"`
	FirstName string `form:"first_name" validate:"required"`
	LastName  string `form:"last_name" validate:"required"`
	JobTitle  string `form:"job_title" validate:"required"`
	Bio       string `form:"bio"`
}

// OpeningHourForm holds one weekday. Times are HH:mm and may be left empty
// on closed days.
type OpeningHourForm struct {
	ID        int64  `form:"id"`
	DayOfWeek int    `form:"day_of_week" validate:"min=0,max=6"`
	StartTime string `form:"start_time" validate:"required_unless=IsClosed true,omitempty,clock"`
	EndTime   string `form:"end_time" validate:"required_unless=IsClosed true,omitempty,clock"`
	IsClosed  bool   `form:"is_closed"`
}

// ExceptionForm holds a date range in DD/MM/YYYY. Both dates or neither.
type ExceptionForm struct {
	ID        int64  `form:"id"`
	StartDate string `form:"start_datetime" validate:"required_with=EndDate,omitempty,date_dmy"`
	EndDate   string `form:"end_datetime" validate:"required_with=StartDate,omitempty,date_dmy"`
	IsClosed  bool   `form:"is_closed"`
	Reason    string `form:"reason" validate:"required"`
}

type ContactOptionForm struct {
	ID       int64  `form:"id"`
	Name     string `form:"name" validate:"required"`
	Value    string `form:"value" validate:"required"`
	HrefType string `form:"href_type" validate:"required"`
}

type NoticeForm struct {
	ID                  int64  `form:"id"`
	Title               string `form:"title" validate:"required"`
	DescriptionMarkdown string `form:"description_markdown" validate:"required"`
}

type FeatureFlagForm struct {
	ID        int64  `form:"id"`
	FlagID    string `form:"flag_id" validate:"required"`
	FlagValue bool   `form:"flag_value"`
}

// FormErrors maps a form field path such as "team_members[0].first_name" to
// a message for the user.
type FormErrors map[string]string

// FormParser decodes and validates posted practice forms.
type FormParser struct {
	decoder  *form.Decoder
	validate *validator.Validate
}

// NewFormParser creates a FormParser with the practice validation rules.
func NewFormParser() *FormParser {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("form"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("clock", func(fl validator.FieldLevel) bool {
		_, ok := parseClock(fl.Field().String())
		return ok
	})
	_ = v.RegisterValidation("date_dmy", func(fl validator.FieldLevel) bool {
		_, err := time.Parse(formDateLayout, fl.Field().String())
		return err == nil
	})
	v.RegisterStructValidation(validateOpeningHour, OpeningHourForm{})
	v.RegisterStructValidation(validateException, ExceptionForm{})

	return &FormParser{decoder: form.NewDecoder(), validate: v}
}

// Parse decodes values into a form and validates it. Rows left entirely
// blank, such as gaps from removed rows, are dropped first; opening hours
// always carry all seven days and are kept as posted. errs is nil
// when the form is valid.
func (p *FormParser) Parse(values url.Values) (*PracticeForm, FormErrors, error) {
	var f PracticeForm
	if err := p.decoder.Decode(&f, values); err != nil {
		return nil, nil, domain.NewAppError(domain.CodeValidation, "malformed form data", err)
	}
	f.trim()
	f.compact()

	err := p.validate.Struct(&f)
	if err == nil {
		return &f, nil, nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return nil, nil, domain.NewAppError(domain.CodeValidation, "invalid form data", err)
	}
	errs := make(FormErrors, len(verrs))
	for _, fe := range verrs {
		_, path, _ := strings.Cut(fe.Namespace(), ".")
		if _, seen := errs[path]; !seen {
			errs[path] = errorMessage(fe.Tag())
		}
	}
	return &f, errs, nil
}

func validateOpeningHour(sl validator.StructLevel) {
	h := sl.Current().Interface().(OpeningHourForm)
	if h.IsClosed {
		return
	}
	start, ok1 := parseClock(h.StartTime)
	end, ok2 := parseClock(h.EndTime)
	if ok1 && ok2 && end.Before(start) {
		sl.ReportError(h.EndTime, "end_time", "EndTime", "after_start", "")
	}
}

func validateException(sl validator.StructLevel) {
	e := sl.Current().Interface().(ExceptionForm)
	start, err1 := time.Parse(formDateLayout, e.StartDate)
	end, err2 := time.Parse(formDateLayout, e.EndDate)
	if err1 == nil && err2 == nil && end.Before(start) {
		sl.ReportError(e.EndDate, "end_datetime", "EndDate", "after_start", "")
	}
}

func errorMessage(tag string) string {
	switch tag {
	case "required", "required_unless", "required_with":
		return "This field is required."
	case "clock":
		return "Use the HH:mm format."
	case "date_dmy":
		return "Use the DD/MM/YYYY format."
	case "after_start":
		return "Must not be before the start."
	case "max":
		return "Too long."
	default:
		return "Invalid value."
	}
}

func parseClock(s string) (time.Time, bool) {
	t, err := time.Parse(clockLayout, s)
	return t, err == nil
}

// trim strips surrounding whitespace from the single-line fields.
func (f *PracticeForm) trim() {
	for _, s := range []*string{&f.Name, &f.AddressLine1, &f.AddressLine2, &f.City, &f.State, &f.ZipCode, &f.Country} {
		*s = strings.TrimSpace(*s)
	}
	for i := range f.OpeningHours {
		f.OpeningHours[i].StartTime = strings.TrimSpace(f.OpeningHours[i].StartTime)
		f.OpeningHours[i].EndTime = strings.TrimSpace(f.OpeningHours[i].EndTime)
	}
	for i := range f.OpeningTimeExceptions {
		f.OpeningTimeExceptions[i].StartDate = strings.TrimSpace(f.OpeningTimeExceptions[i].StartDate)
		f.OpeningTimeExceptions[i].EndDate = strings.TrimSpace(f.OpeningTimeExceptions[i].EndDate)
	}
}

func (f *PracticeForm) compact() {
	f.TeamMembers = dropZero(f.TeamMembers)
	f.OpeningTimeExceptions = dropZero(f.OpeningTimeExceptions)
	f.ContactOptions = dropZero(f.ContactOptions)
	f.Notices = dropZero(f.Notices)
	f.FeatureFlags = dropZero(f.FeatureFlags)
}

func dropZero[T comparable](rows []T) []T {
	var zero T
	out := rows[:0]
	for _, r := range rows {
		if r != zero {
			out = append(out, r)
		}
	}
	return out
}

// DefaultForm returns the add form as first shown: one blank team member,
// weekdays 09:00 to 17:00, closed weekends, both feature flags off and this
// year's public holidays as closures.
func DefaultForm(now time.Time) *PracticeForm {
	f := &PracticeForm{
		TeamMembers: []TeamMemberForm{{}},
		FeatureFlags: []FeatureFlagForm{
			{FlagID: domain.FlagAppointmentRequest},
			{FlagID: domain.FlagPrescriptionRequest},
		},
	}
	for _, day := range []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday} {
		f.OpeningHours = append(f.OpeningHours, OpeningHourForm{DayOfWeek: int(day), StartTime: "09:00", EndTime: "17:00"})
	}
	for _, day := range []time.Weekday{time.Saturday, time.Sunday} {
		f.OpeningHours = append(f.OpeningHours, OpeningHourForm{DayOfWeek: int(day), IsClosed: true})
	}
	for _, h := range PublicHolidays(now.Year()) {
		d := h.Date.Format(formDateLayout)
		f.OpeningTimeExceptions = append(f.OpeningTimeExceptions, ExceptionForm{
			StartDate: d,
			EndDate:   d,
			IsClosed:  true,
			Reason:    h.Name,
		})
	}
	return f
}

// FormFromPractice fills the edit form from a stored practice.
func FormFromPractice(p *domain.Practice) *PracticeForm {
	f := &PracticeForm{
		ID:           p.ID,
		Slug:         p.PublicSlug(),
		Name:         p.Name,
		AddressLine1: p.AddressLine1,
		AddressLine2: p.AddressLine2,
		City:         p.City,
		State:        p.State,
		ZipCode:      p.ZipCode,
		Country:      p.Country,
	}
	for _, m := range p.TeamMembers {
		f.TeamMembers = append(f.TeamMembers, TeamMemberForm(m))
	}
	for _, h := range p.OpeningHours {
		f.OpeningHours = append(f.OpeningHours, OpeningHourForm{
			ID:        h.ID,
			DayOfWeek: h.DayOfWeek,
			StartTime: clockFromAPI(h.StartTime),
			EndTime:   clockFromAPI(h.EndTime),
			IsClosed:  h.IsClosed,
		})
	}
	for _, e := range p.OpeningTimeExceptions {
		f.OpeningTimeExceptions = append(f.OpeningTimeExceptions, ExceptionForm{
			ID:        e.ID,
			StartDate: DateFromAPI(e.StartDatetime),
			EndDate:   DateFromAPI(e.EndDatetime),
			IsClosed:  e.IsClosed,
			Reason:    e.Reason,
		})
	}
	for _, c := range p.ContactOptions {
		f.ContactOptions = append(f.ContactOptions, ContactOptionForm(c))
	}
	for _, n := range p.Notices {
		f.Notices = append(f.Notices, NoticeForm(n))
	}
	for _, fl := range p.FeatureFlags {
		f.FeatureFlags = append(f.FeatureFlags, FeatureFlagForm(fl))
	}
	return f
}

// Practice converts a validated form to the record sent to the practice
// API. Read-only fields (slug, org and coordinates) are left for the API.
func (f *PracticeForm) Practice() *domain.Practice {
	p := &domain.Practice{
		ID:                    f.ID,
		Name:                  f.Name,
		AddressLine1:          f.AddressLine1,
		AddressLine2:          f.AddressLine2,
		City:                  f.City,
		State:                 f.State,
		ZipCode:               f.ZipCode,
		Country:               f.Country,
		TeamMembers:           make([]domain.TeamMember, 0, len(f.TeamMembers)),
		OpeningHours:          make([]domain.OpeningHour, 0, len(f.OpeningHours)),
		OpeningTimeExceptions: make([]domain.OpeningTimeException, 0, len(f.OpeningTimeExceptions)),
		ContactOptions:        make([]domain.ContactOption, 0, len(f.ContactOptions)),
		Notices:               make([]domain.Notice, 0, len(f.Notices)),
		FeatureFlags:          make([]domain.FeatureFlag, 0, len(f.FeatureFlags)),
	}
	for _, m := range f.TeamMembers {
		p.TeamMembers = append(p.TeamMembers, domain.TeamMember(m))
	}
	for _, h := range f.OpeningHours {
		oh := domain.OpeningHour{ID: h.ID, DayOfWeek: h.DayOfWeek, IsClosed: h.IsClosed}
		if t, ok := parseClock(h.StartTime); ok {
			oh.StartTime = t.Format(clockLayout)
		}
		if t, ok := parseClock(h.EndTime); ok {
			oh.EndTime = t.Format(clockLayout)
		}
		p.OpeningHours = append(p.OpeningHours, oh)
	}
	for _, e := range f.OpeningTimeExceptions {
		p.OpeningTimeExceptions = append(p.OpeningTimeExceptions, domain.OpeningTimeException{
			ID:            e.ID,
			StartDatetime: DateToAPI(e.StartDate),
			EndDatetime:   DateToAPI(e.EndDate),
			IsClosed:      e.IsClosed,
			Reason:        e.Reason,
		})
	}
	for _, c := range f.ContactOptions {
		p.ContactOptions = append(p.ContactOptions, domain.ContactOption(c))
	}
	for _, n := range f.Notices {
		p.Notices = append(p.Notices, domain.Notice(n))
	}
	for _, fl := range f.FeatureFlags {
		p.FeatureFlags = append(p.FeatureFlags, domain.FeatureFlag(fl))
	}
	return p
}

// DateToAPI converts DD/MM/YYYY to YYYY-MM-DD. Empty or malformed input
// yields "".
func DateToAPI(s string) string {
	t, err := time.Parse(formDateLayout, s)
	if err != nil {
		return ""
	}
	return t.Format(apiDateLayout)
}

// DateFromAPI converts the API date, or the date part of a timestamp, to
// DD/MM/YYYY. Input it cannot read is returned unchanged.
func DateFromAPI(s string) string {
	if len(s) < len(apiDateLayout) {
		return s
	}
	t, err := time.Parse(apiDateLayout, s[:len(apiDateLayout)])
	if err != nil {
		return s
	}
	return t.Format(formDateLayout)
}

// clockFromAPI shortens "09:00:00" to "09:00".
func clockFromAPI(s string) string {
	for _, layout := range []string{"15:04:05", clockLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(clockLayout)
		}
	}
	return s
}
