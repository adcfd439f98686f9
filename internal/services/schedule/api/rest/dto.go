package rest

import (
	"strings"
	"time"

	"teamcal/internal/platform/apperrors"
	"teamcal/internal/services/schedule/domain"
	"teamcal/internal/services/schedule/storage"
)

// eventPayload is the JSON projection of one scheduling event.
type eventPayload struct {
	ID              int64      `json:"id"`
	TeamID          int64      `json:"team_id"`
	TeamName        string     `json:"team_name"`
	OwnerID         int64      `json:"owner_id"`
	OwnerName       string     `json:"owner_name"`
	Title           string     `json:"title"`
	StartsAt        time.Time  `json:"starts_at"`
	EndsAt          time.Time  `json:"ends_at"`
	Fixed           bool       `json:"is_fixed"`
	Location        string     `json:"location,omitempty"`
	Attendees       []string   `json:"attendees"`
	Memo            string     `json:"memo,omitempty"`
	Recurrence      string     `json:"recurrence_kind"`
	RecurrenceUntil *time.Time `json:"recurrence_until,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

type occurrencePayload struct {
	EventID  int64     `json:"event_id"`
	TeamID   int64     `json:"team_id"`
	TeamName string    `json:"team_name"`
	Title    string    `json:"title"`
	Location string    `json:"location,omitempty"`
	Fixed    bool      `json:"is_fixed"`
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
}

type teamPayload struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type teamListPayload struct {
	Teams         []teamPayload `json:"teams"`
	NextPageToken string        `json:"next_page_token,omitempty"`
}

type memberPayload struct {
	ID          int64     `json:"id"`
	DisplayName string    `json:"display_name"`
	Email       string    `json:"email"`
	CreatedAt   time.Time `json:"created_at"`
}

type sessionPayload struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func eventFromRecord(record storage.EventRecord) eventPayload {
	attendees := record.Attendees
	if attendees == nil {
		attendees = []string{}
	}
	return eventPayload{
		ID:              record.ID,
		TeamID:          record.TeamID,
		TeamName:        record.TeamName,
		OwnerID:         record.OwnerID,
		OwnerName:       record.OwnerName,
		Title:           record.Title,
		StartsAt:        record.StartsAt,
		EndsAt:          record.EndsAt,
		Fixed:           record.Fixed,
		Location:        record.Location,
		Attendees:       attendees,
		Memo:            record.Memo,
		Recurrence:      string(record.Recurrence),
		RecurrenceUntil: record.RecurrenceUntil,
		CreatedAt:       record.CreatedAt,
		UpdatedAt:       record.UpdatedAt,
	}
}

func eventListFromRecords(records []storage.EventRecord) []eventPayload {
	out := make([]eventPayload, 0, len(records))
	for _, record := range records {
		out = append(out, eventFromRecord(record))
	}
	return out
}

func occurrenceListFromDomain(occurrences []domain.Occurrence) []occurrencePayload {
	out := make([]occurrencePayload, 0, len(occurrences))
	for _, occurrence := range occurrences {
		out = append(out, occurrencePayload{
			EventID:  occurrence.EventID,
			TeamID:   occurrence.TeamID,
			TeamName: occurrence.TeamName,
			Title:    occurrence.Title,
			Location: occurrence.Location,
			Fixed:    occurrence.Fixed,
			StartsAt: occurrence.StartsAt,
			EndsAt:   occurrence.EndsAt,
		})
	}
	return out
}

func teamFromRecord(record storage.TeamRecord) teamPayload {
	return teamPayload{
		ID:        record.ID,
		Name:      record.Name,
		CreatedAt: record.CreatedAt,
		UpdatedAt: record.UpdatedAt,
	}
}

func teamListFromPage(page storage.TeamPage) teamListPayload {
	teams := make([]teamPayload, 0, len(page.Teams))
	for _, record := range page.Teams {
		teams = append(teams, teamFromRecord(record))
	}
	return teamListPayload{Teams: teams, NextPageToken: page.NextPageToken}
}

func memberFromRecord(record storage.MemberRecord) memberPayload {
	return memberPayload{
		ID:          record.ID,
		DisplayName: record.DisplayName,
		Email:       record.Email,
		CreatedAt:   record.CreatedAt,
	}
}

// eventRequest carries the event write body. Timestamps arrive as strings so
// parse failures produce field-level messages instead of a decoder error.
type eventRequest struct {
	TeamID          int64    `json:"team_id"`
	OwnerID         int64    `json:"owner_id"`
	Title           string   `json:"title"`
	StartsAt        string   `json:"starts_at"`
	EndsAt          string   `json:"ends_at"`
	Fixed           bool     `json:"is_fixed"`
	Location        string   `json:"location"`
	Attendees       []string `json:"attendees"`
	Memo            string   `json:"memo"`
	Recurrence      string   `json:"recurrence_kind"`
	RecurrenceUntil string   `json:"recurrence_until"`
}

// record validates the request and shapes it into a storage record stamped
// with now. The returned record has no ID; callers set it for updates.
func (req eventRequest) record(now time.Time) (storage.EventRecord, error) {
	if req.TeamID <= 0 {
		return storage.EventRecord{}, apperrors.E(apperrors.KindInvalidInput, "team_id is required")
	}
	if req.OwnerID <= 0 {
		return storage.EventRecord{}, apperrors.E(apperrors.KindInvalidInput, "owner_id is required")
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return storage.EventRecord{}, apperrors.E(apperrors.KindInvalidInput, "title is required")
	}
	startsAt, err := parseTimeField(req.StartsAt, "starts_at")
	if err != nil {
		return storage.EventRecord{}, err
	}
	endsAt, err := parseTimeField(req.EndsAt, "ends_at")
	if err != nil {
		return storage.EventRecord{}, err
	}
	if endsAt.Before(startsAt) {
		return storage.EventRecord{}, apperrors.E(apperrors.KindInvalidInput, "ends_at must not be before starts_at")
	}
	kind, err := domain.ParseRecurrenceKind(req.Recurrence)
	if err != nil {
		return storage.EventRecord{}, apperrors.E(apperrors.KindInvalidInput, err.Error())
	}

	var recurrenceUntil *time.Time
	if strings.TrimSpace(req.RecurrenceUntil) != "" {
		until, err := parseTimeField(req.RecurrenceUntil, "recurrence_until")
		if err != nil {
			return storage.EventRecord{}, err
		}
		if !kind.Recurring() {
			return storage.EventRecord{}, apperrors.E(apperrors.KindInvalidInput, "recurrence_until requires a recurring kind")
		}
		if until.Before(startsAt) {
			return storage.EventRecord{}, apperrors.E(apperrors.KindInvalidInput, "recurrence_until must not be before starts_at")
		}
		recurrenceUntil = &until
	}

	attendees := make([]string, 0, len(req.Attendees))
	for _, attendee := range req.Attendees {
		attendee = strings.TrimSpace(attendee)
		if attendee == "" {
			continue
		}
		attendees = append(attendees, attendee)
	}

	now = now.UTC()
	return storage.EventRecord{
		TeamID:          req.TeamID,
		OwnerID:         req.OwnerID,
		Title:           title,
		StartsAt:        startsAt,
		EndsAt:          endsAt,
		Fixed:           req.Fixed,
		Location:        strings.TrimSpace(req.Location),
		Attendees:       attendees,
		Memo:            strings.TrimSpace(req.Memo),
		Recurrence:      kind,
		RecurrenceUntil: recurrenceUntil,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

type teamRequest struct {
	Name string `json:"name"`
}

type addMemberRequest struct {
	MemberID int64  `json:"member_id"`
	Role     string `json:"role"`
}

type registerRequest struct {
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	Password    string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func parseTimeField(value string, label string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, apperrors.E(apperrors.KindInvalidInput, label+" is required")
	}
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, apperrors.E(apperrors.KindInvalidInput, label+" must be an RFC3339 timestamp")
	}
	return parsed.UTC(), nil
}
