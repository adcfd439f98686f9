package reminder

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"teamcal/internal/services/schedule/domain"
	"teamcal/internal/services/schedule/push"
	"teamcal/internal/services/schedule/storage"
)

type fakeStore struct {
	teamIDs []int64
	events  map[int64][]storage.EventRecord
	err     error
}

func (f fakeStore) ListTeamIDs(context.Context) ([]int64, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.teamIDs, nil
}

func (f fakeStore) ListTeamEvents(_ context.Context, teamID int64) ([]storage.EventRecord, error) {
	return f.events[teamID], nil
}

type published struct {
	teamID int64
	kind   string
	event  any
}

type fakePublisher struct {
	notices []published
}

func (f *fakePublisher) Publish(teamID int64, kind string, event any) {
	f.notices = append(f.notices, published{teamID: teamID, kind: kind, event: event})
}

func newTestScheduler(t *testing.T, store Store, publisher Publisher, now time.Time) *Scheduler {
	t.Helper()
	scheduler, err := NewScheduler(store, publisher, 10*time.Minute, log.New(io.Discard, "", 0), func() time.Time { return now })
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	return scheduler
}

func TestNewSchedulerRequiresCollaborators(t *testing.T) {
	t.Parallel()

	if _, err := NewScheduler(nil, &fakePublisher{}, time.Minute, nil, nil); err == nil {
		t.Fatal("expected missing store error")
	}
	if _, err := NewScheduler(fakeStore{}, nil, time.Minute, nil, nil); err == nil {
		t.Fatal("expected missing publisher error")
	}
	if _, err := NewScheduler(fakeStore{}, &fakePublisher{}, 0, nil, nil); err == nil {
		t.Fatal("expected non-positive lead error")
	}
}

func TestRunOncePublishesUpcomingOccurrences(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 11, 19, 8, 55, 0, 0, time.UTC)
	store := fakeStore{
		teamIDs: []int64{7},
		events: map[int64][]storage.EventRecord{
			7: {
				{
					ID:       160,
					TeamID:   7,
					TeamName: "Engineering",
					Title:    "Standup",
					StartsAt: time.Date(2025, 11, 19, 9, 0, 0, 0, time.UTC),
					EndsAt:   time.Date(2025, 11, 19, 9, 30, 0, 0, time.UTC),
				},
				{
					ID:       161,
					TeamID:   7,
					TeamName: "Engineering",
					Title:    "Later today",
					StartsAt: time.Date(2025, 11, 19, 15, 0, 0, 0, time.UTC),
					EndsAt:   time.Date(2025, 11, 19, 16, 0, 0, 0, time.UTC),
				},
			},
		},
	}
	publisher := &fakePublisher{}
	scheduler := newTestScheduler(t, store, publisher, now)

	if err := scheduler.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if len(publisher.notices) != 1 {
		t.Fatalf("notices = %d, want 1", len(publisher.notices))
	}
	got := publisher.notices[0]
	if got.teamID != 7 {
		t.Fatalf("notice team = %d, want 7", got.teamID)
	}
	if got.kind != push.EventReminder {
		t.Fatalf("notice kind = %q, want %q", got.kind, push.EventReminder)
	}
	notice, ok := got.event.(Notice)
	if !ok {
		t.Fatalf("notice payload type = %T, want Notice", got.event)
	}
	if notice.EventID != 160 {
		t.Fatalf("notice event id = %d, want 160", notice.EventID)
	}
	if notice.StartsIn != "5m0s" {
		t.Fatalf("notice starts_in = %q, want 5m0s", notice.StartsIn)
	}
}

func TestRunOnceDeduplicatesAcrossScans(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 11, 19, 8, 55, 0, 0, time.UTC)
	store := fakeStore{
		teamIDs: []int64{7},
		events: map[int64][]storage.EventRecord{
			7: {
				{
					ID:       160,
					TeamID:   7,
					Title:    "Standup",
					StartsAt: time.Date(2025, 11, 19, 9, 0, 0, 0, time.UTC),
					EndsAt:   time.Date(2025, 11, 19, 9, 30, 0, 0, time.UTC),
				},
			},
		},
	}
	publisher := &fakePublisher{}
	scheduler := newTestScheduler(t, store, publisher, now)

	if err := scheduler.RunOnce(context.Background()); err != nil {
		t.Fatalf("first scan: %v", err)
	}
	if err := scheduler.RunOnce(context.Background()); err != nil {
		t.Fatalf("second scan: %v", err)
	}
	if len(publisher.notices) != 1 {
		t.Fatalf("notices after repeat scans = %d, want 1", len(publisher.notices))
	}
}

func TestRunOnceExpandsRecurringEvents(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 11, 19, 8, 55, 0, 0, time.UTC)
	store := fakeStore{
		teamIDs: []int64{7},
		events: map[int64][]storage.EventRecord{
			7: {
				{
					ID:         160,
					TeamID:     7,
					Title:      "Standup",
					StartsAt:   time.Date(2025, 11, 16, 9, 0, 0, 0, time.UTC),
					EndsAt:     time.Date(2025, 11, 16, 9, 30, 0, 0, time.UTC),
					Recurrence: domain.RecurrenceDaily,
				},
			},
		},
	}
	publisher := &fakePublisher{}
	scheduler := newTestScheduler(t, store, publisher, now)

	if err := scheduler.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if len(publisher.notices) != 1 {
		t.Fatalf("notices = %d, want 1", len(publisher.notices))
	}
	notice, ok := publisher.notices[0].event.(Notice)
	if !ok {
		t.Fatalf("notice payload type = %T, want Notice", publisher.notices[0].event)
	}
	want := time.Date(2025, 11, 19, 9, 0, 0, 0, time.UTC)
	if !notice.StartsAt.Equal(want) {
		t.Fatalf("notice starts_at = %v, want %v", notice.StartsAt, want)
	}
}

func TestRunOnceReportsStoreFailure(t *testing.T) {
	t.Parallel()

	publisher := &fakePublisher{}
	scheduler := newTestScheduler(t, fakeStore{err: errors.New("db offline")}, publisher, time.Date(2025, 11, 19, 8, 55, 0, 0, time.UTC))

	if err := scheduler.RunOnce(context.Background()); err == nil {
		t.Fatal("expected store failure error")
	}
	if len(publisher.notices) != 0 {
		t.Fatalf("notices = %d, want 0", len(publisher.notices))
	}
}

func TestStartRejectsBadCronSpec(t *testing.T) {
	t.Parallel()

	scheduler := newTestScheduler(t, fakeStore{}, &fakePublisher{}, time.Date(2025, 11, 19, 8, 55, 0, 0, time.UTC))
	if err := scheduler.Start("not a cron spec"); err == nil {
		t.Fatal("expected invalid cron spec error")
	}

	if err := scheduler.Start(""); err != nil {
		t.Fatalf("start with default spec: %v", err)
	}
	defer scheduler.Stop()
	if err := scheduler.Start(DefaultCronSpec); err == nil {
		t.Fatal("expected already started error")
	}
}
