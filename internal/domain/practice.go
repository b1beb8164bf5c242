package domain

import (
	"time"

	"github.com/gosimple/slug"
)

// Practice is a practice record as exchanged with the practice API.
type Practice struct {
	ID    int64  `json:"id,omitempty"`
	OrgID string `json:"org_id,omitempty"`
	Name  string `json:"name"`
	Slug  string `json:"slug,omitempty"`

	AddressLine1 string   `json:"address_line_1"`
	AddressLine2 string   `json:"address_line_2"`
	City         string   `json:"city"`
	State        string   `json:"state"`
	ZipCode      string   `json:"zip_code"`
	Country      string   `json:"country"`
	Latitude     *float64 `json:"latitude,omitempty"`
	Longitude    *float64 `json:"longitude,omitempty"`

	TeamMembers           []TeamMember           `json:"team_members"`
	OpeningHours          []OpeningHour          `json:"opening_hours"`
	OpeningTimeExceptions []OpeningTimeException `json:"opening_time_exceptions"`
	ContactOptions        []ContactOption        `json:"contact_options"`
	Notices               []Notice               `json:"notices"`
	FeatureFlags          []FeatureFlag          `json:"feature_flags"`

	CreatedAt *time.Time `json:"created_at,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// PublicSlug returns the slug assigned by the practice API, or the slug the
// API would derive from the name for records it has not stored yet.
func (p *Practice) PublicSlug() string {
	if p.Slug != "" {
		return p.Slug
	}
	return slug.Make(p.Name)
}

// TeamMember is a person listed on a practice page.
type TeamMember struct {
	ID        int64  `json:"id,omitempty"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	JobTitle  string `json:"job_title"`
	Bio       string `json:"bio"`
}

// OpeningHour is the regular opening window of one weekday.
// DayOfWeek follows time.Weekday: 0 is Sunday.
type OpeningHour struct {
	ID        int64  `json:"id,omitempty"`
	DayOfWeek int    `json:"day_of_week"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	IsClosed  bool   `json:"is_closed"`
}

// OpeningTimeException overrides the regular hours for a date range.
// Dates use the API format YYYY-MM-DD.
type OpeningTimeException struct {
	ID            int64  `json:"id,omitempty"`
	StartDatetime string `json:"start_datetime,omitempty"`
	EndDatetime   string `json:"end_datetime,omitempty"`
	IsClosed      bool   `json:"is_closed"`
	Reason        string `json:"reason"`
}

// ContactOption is a way to reach the practice, rendered as a link.
type ContactOption struct {
	ID       int64  `json:"id,omitempty"`
	Name     string `json:"name"`
	Value    string `json:"value"`
	HrefType string `json:"href_type"`
}

// Notice is a markdown announcement shown on the practice page.
type Notice struct {
	ID                  int64  `json:"id,omitempty"`
	Title               string `json:"title"`
	DescriptionMarkdown string `json:"description_markdown"`
}

// FeatureFlag toggles an optional practice feature.
type FeatureFlag struct {
	ID        int64  `json:"id,omitempty"`
	FlagID    string `json:"flag_id"`
	FlagValue bool   `json:"flag_value"`
}

// Feature flags every new practice starts with.
const (
	FlagAppointmentRequest  = "appointment_request"
	FlagPrescriptionRequest = "prescription_request"
)

// PracticePage is one page of practices from the list or search endpoints.
type PracticePage = ResultSet[Practice]
