// Package reminder pushes upcoming-event notices on a cron schedule.
package reminder

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"teamcal/internal/services/schedule/domain"
	"teamcal/internal/services/schedule/push"
	"teamcal/internal/services/schedule/storage"
)

// DefaultCronSpec runs the reminder scan once a minute.
const DefaultCronSpec = "@every 1m"

// sentRetention bounds how long delivered reminder keys are remembered.
const sentRetention = time.Hour

// Store lists the teams and events the scheduler scans.
type Store interface {
	ListTeamIDs(ctx context.Context) ([]int64, error)
	ListTeamEvents(ctx context.Context, teamID int64) ([]storage.EventRecord, error)
}

// Publisher delivers reminder frames to team subscribers.
type Publisher interface {
	Publish(teamID int64, kind string, event any)
}

// Notice is the reminder payload pushed to subscribers.
type Notice struct {
	EventID  int64     `json:"event_id"`
	TeamID   int64     `json:"team_id"`
	Title    string    `json:"title"`
	StartsAt time.Time `json:"starts_at"`
	StartsIn string    `json:"starts_in"`
}

// Scheduler scans schedules and publishes one reminder per upcoming occurrence.
type Scheduler struct {
	store     Store
	publisher Publisher
	lead      time.Duration
	logger    *log.Logger
	now       func() time.Time

	runner *cron.Cron

	mu   sync.Mutex
	sent map[string]time.Time
}

// NewScheduler creates a reminder scheduler that announces occurrences
// starting within lead of each scan.
func NewScheduler(store Store, publisher Publisher, lead time.Duration, logger *log.Logger, now func() time.Time) (*Scheduler, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if lead <= 0 {
		return nil, fmt.Errorf("reminder lead must be positive")
	}
	if logger == nil {
		logger = log.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &Scheduler{
		store:     store,
		publisher: publisher,
		lead:      lead,
		logger:    logger,
		now:       now,
		sent:      make(map[string]time.Time),
	}, nil
}

// Start schedules periodic scans with the given cron spec.
func (s *Scheduler) Start(spec string) error {
	if s == nil {
		return fmt.Errorf("reminder scheduler is not configured")
	}
	if s.runner != nil {
		return fmt.Errorf("reminder scheduler already started")
	}
	spec = strings.TrimSpace(spec)
	if spec == "" {
		spec = DefaultCronSpec
	}
	runner := cron.New()
	if _, err := runner.AddFunc(spec, func() {
		if err := s.RunOnce(context.Background()); err != nil {
			s.logger.Printf("reminder scan failed: %v", err)
		}
	}); err != nil {
		return fmt.Errorf("schedule reminder cron %q: %w", spec, err)
	}
	runner.Start()
	s.runner = runner
	return nil
}

// Stop halts scheduled scans. In-flight scans finish on their own.
func (s *Scheduler) Stop() {
	if s == nil || s.runner == nil {
		return
	}
	s.runner.Stop()
	s.runner = nil
}

// RunOnce scans every team once and publishes reminders for occurrences
// starting within the lead window. Repeat scans skip already-sent notices.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	now := s.now().UTC()
	windowEnd := now.Add(s.lead)

	teamIDs, err := s.store.ListTeamIDs(ctx)
	if err != nil {
		return fmt.Errorf("list team ids: %w", err)
	}
	for _, teamID := range teamIDs {
		records, err := s.store.ListTeamEvents(ctx, teamID)
		if err != nil {
			s.logger.Printf("reminder list failed team=%d: %v", teamID, err)
			continue
		}
		occurrences, err := domain.ExpandOccurrences(toDomainEvents(records), now, windowEnd)
		if err != nil {
			s.logger.Printf("reminder expand failed team=%d: %v", teamID, err)
			continue
		}
		for _, occurrence := range occurrences {
			key := reminderKey(occurrence)
			if !s.markSent(key, occurrence.StartsAt) {
				continue
			}
			s.publisher.Publish(teamID, push.EventReminder, Notice{
				EventID:  occurrence.EventID,
				TeamID:   occurrence.TeamID,
				Title:    occurrence.Title,
				StartsAt: occurrence.StartsAt,
				StartsIn: occurrence.StartsAt.Sub(now).Round(time.Second).String(),
			})
		}
	}
	s.prune(now)
	return nil
}

// markSent records a reminder key and reports whether it was new.
func (s *Scheduler) markSent(key string, startsAt time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sent[key]; ok {
		return false
	}
	s.sent[key] = startsAt
	return true
}

func (s *Scheduler) prune(now time.Time) {
	cutoff := now.Add(-sentRetention)
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, startsAt := range s.sent {
		if startsAt.Before(cutoff) {
			delete(s.sent, key)
		}
	}
}

func reminderKey(occurrence domain.Occurrence) string {
	return fmt.Sprintf("%d:%d:%d", occurrence.TeamID, occurrence.EventID, occurrence.StartsAt.Unix())
}

func toDomainEvents(records []storage.EventRecord) []domain.Event {
	events := make([]domain.Event, 0, len(records))
	for _, record := range records {
		events = append(events, domain.Event{
			ID:              record.ID,
			TeamID:          record.TeamID,
			TeamName:        record.TeamName,
			Title:           record.Title,
			Location:        record.Location,
			Fixed:           record.Fixed,
			StartsAt:        record.StartsAt,
			EndsAt:          record.EndsAt,
			Recurrence:      record.Recurrence,
			RecurrenceUntil: record.RecurrenceUntil,
		})
	}
	return events
}
