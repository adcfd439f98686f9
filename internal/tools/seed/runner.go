package seed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"teamcal/internal/services/schedule/auth"
	"teamcal/internal/services/schedule/domain"
	"teamcal/internal/services/schedule/storage"
)

// Store is the subset of schedule storage the seed runner writes through.
type Store interface {
	CreateMember(ctx context.Context, record storage.MemberRecord) (storage.MemberRecord, error)
	CreateTeam(ctx context.Context, record storage.TeamRecord) (storage.TeamRecord, error)
	AddTeamMember(ctx context.Context, record storage.MembershipRecord) error
	CreateEvent(ctx context.Context, record storage.EventRecord) (storage.EventRecord, error)
}

// Summary counts the records a seed run created.
type Summary struct {
	Members     int
	Teams       int
	Memberships int
	Events      int
}

// Runner applies one fixture graph to a schedule store.
type Runner struct {
	store Store
	now   func() time.Time
	out   io.Writer
}

// NewRunner creates a Runner writing per-record progress lines to out.
func NewRunner(store Store, now func() time.Time, out io.Writer) (*Runner, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if now == nil {
		now = time.Now
	}
	if out == nil {
		out = io.Discard
	}
	return &Runner{store: store, now: now, out: out}, nil
}

// Apply loads every fixture record into the store. All records are built
// up front so a malformed fixture fails before anything is written.
func (r *Runner) Apply(ctx context.Context, fixture Fixture) (Summary, error) {
	if err := Validate(fixture); err != nil {
		return Summary{}, err
	}
	now := r.now().UTC()

	members := make([]storage.MemberRecord, 0, len(fixture.Members))
	for _, member := range fixture.Members {
		hash, err := auth.HashPassword(member.Password)
		if err != nil {
			return Summary{}, fmt.Errorf("member %d: %w", member.ID, err)
		}
		members = append(members, storage.MemberRecord{
			ID:           member.ID,
			DisplayName:  strings.TrimSpace(member.DisplayName),
			Email:        strings.ToLower(strings.TrimSpace(member.Email)),
			PasswordHash: hash,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
	}
	events := make([]storage.EventRecord, 0, len(fixture.Events))
	for _, event := range fixture.Events {
		record, err := eventRecord(event, now)
		if err != nil {
			return Summary{}, err
		}
		events = append(events, record)
	}

	var summary Summary
	for _, record := range members {
		if _, err := r.store.CreateMember(ctx, record); err != nil {
			return summary, fmt.Errorf("create member %q: %w", record.Email, err)
		}
		summary.Members++
		fmt.Fprintf(r.out, "member %d %s\n", record.ID, record.Email)
	}
	for _, team := range fixture.Teams {
		record := storage.TeamRecord{
			ID:        team.ID,
			Name:      strings.TrimSpace(team.Name),
			CreatedAt: now,
			UpdatedAt: now,
		}
		if _, err := r.store.CreateTeam(ctx, record); err != nil {
			return summary, fmt.Errorf("create team %q: %w", record.Name, err)
		}
		summary.Teams++
		fmt.Fprintf(r.out, "team %d %s\n", record.ID, record.Name)
		for _, membership := range team.Members {
			role := storage.MemberRole(strings.TrimSpace(membership.Role))
			if role == "" {
				role = storage.RoleMember
			}
			err := r.store.AddTeamMember(ctx, storage.MembershipRecord{
				TeamID:   team.ID,
				MemberID: membership.MemberID,
				Role:     role,
				AddedAt:  now,
			})
			if err != nil {
				return summary, fmt.Errorf("add member %d to team %q: %w", membership.MemberID, record.Name, err)
			}
			summary.Memberships++
		}
	}
	for _, record := range events {
		if _, err := r.store.CreateEvent(ctx, record); err != nil {
			return summary, fmt.Errorf("create event %q: %w", record.Title, err)
		}
		summary.Events++
		fmt.Fprintf(r.out, "event %d %s\n", record.ID, record.Title)
	}
	return summary, nil
}

func eventRecord(event EventFixture, now time.Time) (storage.EventRecord, error) {
	starts, err := time.Parse(time.RFC3339, strings.TrimSpace(event.StartsAt))
	if err != nil {
		return storage.EventRecord{}, fmt.Errorf("event %d: starts_at must be an RFC3339 timestamp", event.ID)
	}
	ends, err := time.Parse(time.RFC3339, strings.TrimSpace(event.EndsAt))
	if err != nil {
		return storage.EventRecord{}, fmt.Errorf("event %d: ends_at must be an RFC3339 timestamp", event.ID)
	}
	if ends.Before(starts) {
		return storage.EventRecord{}, fmt.Errorf("event %d: ends_at must not be before starts_at", event.ID)
	}
	kind, err := domain.ParseRecurrenceKind(event.Recurrence)
	if err != nil {
		return storage.EventRecord{}, fmt.Errorf("event %d: %w", event.ID, err)
	}
	var until *time.Time
	if trimmed := strings.TrimSpace(event.RecurrenceUntil); trimmed != "" {
		if !kind.Recurring() {
			return storage.EventRecord{}, fmt.Errorf("event %d: recurrence_until requires a recurring event", event.ID)
		}
		parsed, err := time.Parse(time.RFC3339, trimmed)
		if err != nil {
			return storage.EventRecord{}, fmt.Errorf("event %d: recurrence_until must be an RFC3339 timestamp", event.ID)
		}
		utc := parsed.UTC()
		until = &utc
	}
	attendees := make([]string, 0, len(event.Attendees))
	for _, attendee := range event.Attendees {
		if trimmed := strings.TrimSpace(attendee); trimmed != "" {
			attendees = append(attendees, trimmed)
		}
	}
	return storage.EventRecord{
		ID:              event.ID,
		TeamID:          event.TeamID,
		OwnerID:         event.OwnerID,
		Title:           strings.TrimSpace(event.Title),
		StartsAt:        starts.UTC(),
		EndsAt:          ends.UTC(),
		Fixed:           event.Fixed,
		Location:        strings.TrimSpace(event.Location),
		Attendees:       attendees,
		Memo:            event.Memo,
		Recurrence:      kind,
		RecurrenceUntil: until,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}
