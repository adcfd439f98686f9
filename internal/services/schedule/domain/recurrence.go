// Package domain holds scheduling domain values and recurrence expansion.
package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

// RecurrenceKind identifies how an event repeats.
type RecurrenceKind string

const (
	// RecurrenceNone marks a one-off event.
	RecurrenceNone RecurrenceKind = "none"
	// RecurrenceDaily repeats every day from the event start.
	RecurrenceDaily RecurrenceKind = "daily"
	// RecurrenceWeekly repeats every week from the event start.
	RecurrenceWeekly RecurrenceKind = "weekly"
	// RecurrenceMonthly repeats every month from the event start.
	RecurrenceMonthly RecurrenceKind = "monthly"
	// RecurrenceYearly repeats every year from the event start.
	RecurrenceYearly RecurrenceKind = "yearly"
)

// Safety cap so a pathological window cannot expand without bound.
const maxOccurrencesPerEvent = 1000

// ParseRecurrenceKind maps user input to a known recurrence kind.
// The empty string parses as RecurrenceNone.
func ParseRecurrenceKind(value string) (RecurrenceKind, error) {
	kind := RecurrenceKind(strings.ToLower(strings.TrimSpace(value)))
	if kind == "" {
		return RecurrenceNone, nil
	}
	if !kind.Valid() {
		return "", fmt.Errorf("unknown recurrence kind %q", value)
	}
	return kind, nil
}

// Valid reports whether the kind is one of the known recurrence kinds.
func (k RecurrenceKind) Valid() bool {
	switch k {
	case RecurrenceNone, RecurrenceDaily, RecurrenceWeekly, RecurrenceMonthly, RecurrenceYearly:
		return true
	default:
		return false
	}
}

// Recurring reports whether the kind produces more than one occurrence.
func (k RecurrenceKind) Recurring() bool {
	return k.Valid() && k != RecurrenceNone
}

func (k RecurrenceKind) frequency() (rrule.Frequency, bool) {
	switch k {
	case RecurrenceDaily:
		return rrule.DAILY, true
	case RecurrenceWeekly:
		return rrule.WEEKLY, true
	case RecurrenceMonthly:
		return rrule.MONTHLY, true
	case RecurrenceYearly:
		return rrule.YEARLY, true
	default:
		return 0, false
	}
}

// Event carries the scheduling fields occurrence expansion needs.
type Event struct {
	ID              int64
	TeamID          int64
	TeamName        string
	Title           string
	Location        string
	Fixed           bool
	StartsAt        time.Time
	EndsAt          time.Time
	Recurrence      RecurrenceKind
	RecurrenceUntil *time.Time
}

// Occurrence is one concrete calendar slot of an event inside a window.
type Occurrence struct {
	EventID  int64
	TeamID   int64
	TeamName string
	Title    string
	Location string
	Fixed    bool
	StartsAt time.Time
	EndsAt   time.Time
}

// ExpandOccurrences expands events into the concrete occurrences whose start
// falls inside [from, to] inclusive, sorted by start then event id. One-off
// events pass through when their start is in the window; recurring events
// repeat from their start at the kind's frequency, preserve the original
// duration, and stop at RecurrenceUntil when set.
func ExpandOccurrences(events []Event, from time.Time, to time.Time) ([]Occurrence, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("occurrence window end is before start")
	}

	out := make([]Occurrence, 0, len(events))
	for _, event := range events {
		occurrences, err := expandEvent(event, from, to)
		if err != nil {
			return nil, err
		}
		out = append(out, occurrences...)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartsAt.Equal(out[j].StartsAt) {
			return out[i].StartsAt.Before(out[j].StartsAt)
		}
		return out[i].EventID < out[j].EventID
	})
	return out, nil
}

func expandEvent(event Event, from time.Time, to time.Time) ([]Occurrence, error) {
	if !event.Recurrence.Recurring() {
		if event.StartsAt.Before(from) || event.StartsAt.After(to) {
			return nil, nil
		}
		return []Occurrence{makeOccurrence(event, event.StartsAt, event.EndsAt)}, nil
	}

	freq, ok := event.Recurrence.frequency()
	if !ok {
		return nil, fmt.Errorf("unknown recurrence kind %q", event.Recurrence)
	}
	option := rrule.ROption{Freq: freq, Dtstart: event.StartsAt.UTC()}
	if event.RecurrenceUntil != nil {
		option.Until = event.RecurrenceUntil.UTC()
	}
	rule, err := rrule.NewRRule(option)
	if err != nil {
		return nil, fmt.Errorf("build recurrence rule for event %d: %w", event.ID, err)
	}

	duration := event.EndsAt.Sub(event.StartsAt)
	starts := rule.Between(from.UTC(), to.UTC(), true)
	if len(starts) > maxOccurrencesPerEvent {
		starts = starts[:maxOccurrencesPerEvent]
	}

	out := make([]Occurrence, 0, len(starts))
	for _, start := range starts {
		out = append(out, makeOccurrence(event, start, start.Add(duration)))
	}
	return out, nil
}

func makeOccurrence(event Event, start time.Time, end time.Time) Occurrence {
	return Occurrence{
		EventID:  event.ID,
		TeamID:   event.TeamID,
		TeamName: event.TeamName,
		Title:    event.Title,
		Location: event.Location,
		Fixed:    event.Fixed,
		StartsAt: start.UTC(),
		EndsAt:   end.UTC(),
	}
}
