// Package ical renders team schedules as iCalendar feeds.
package ical

import (
	"fmt"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"

	"teamcal/internal/services/schedule/storage"
)

// ContentType is the response content type for calendar feeds.
const ContentType = "text/calendar; charset=utf-8"

const productID = "-//teamcal//schedule//EN"

// Feed renders one team's events as a VCALENDAR document. Recurring events
// carry an RRULE so calendar clients expand occurrences themselves.
func Feed(teamName string, events []storage.EventRecord, now time.Time) string {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(productID)
	cal.SetXWRCalName(strings.TrimSpace(teamName))

	stamp := now.UTC()
	for _, event := range events {
		vevent := cal.AddEvent(uid(event.ID))
		vevent.SetDtStampTime(stamp)
		vevent.SetStartAt(event.StartsAt.UTC())
		vevent.SetEndAt(event.EndsAt.UTC())
		vevent.SetSummary(event.Title)
		if event.Location != "" {
			vevent.SetLocation(event.Location)
		}
		if event.Memo != "" {
			vevent.SetDescription(event.Memo)
		}
		for _, attendee := range event.Attendees {
			vevent.AddAttendee(attendee)
		}
		if rule, ok := recurrenceRule(event); ok {
			vevent.AddRrule(rule)
		}
	}
	return cal.Serialize()
}

// FileName builds a download file name from a team name.
func FileName(teamName string) string {
	slug := make([]rune, 0, len(teamName))
	for _, r := range strings.ToLower(strings.TrimSpace(teamName)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			slug = append(slug, r)
		case r == ' ' || r == '-' || r == '_':
			slug = append(slug, '-')
		}
	}
	if len(slug) == 0 {
		return "calendar.ics"
	}
	return string(slug) + "-calendar.ics"
}

func uid(eventID int64) string {
	return fmt.Sprintf("event-%d@teamcal", eventID)
}

func recurrenceRule(event storage.EventRecord) (string, bool) {
	if !event.Recurrence.Recurring() {
		return "", false
	}
	rule := "FREQ=" + strings.ToUpper(string(event.Recurrence))
	if event.RecurrenceUntil != nil {
		rule += ";UNTIL=" + event.RecurrenceUntil.UTC().Format("20060102T150405Z")
	}
	return rule, true
}
