// Package seed loads declarative YAML fixtures into a schedule store for
// local development datasets.
package seed

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"teamcal/internal/services/schedule/storage"
)

// Fixture defines a declarative seed graph.
type Fixture struct {
	Members []MemberFixture `yaml:"members"`
	Teams   []TeamFixture   `yaml:"teams"`
	Events  []EventFixture  `yaml:"events"`
}

// MemberFixture defines one member account declaration.
type MemberFixture struct {
	ID          int64  `yaml:"id"`
	DisplayName string `yaml:"display_name"`
	Email       string `yaml:"email"`
	Password    string `yaml:"password"`
}

// TeamFixture defines one team and its membership declarations.
type TeamFixture struct {
	ID      int64               `yaml:"id"`
	Name    string              `yaml:"name"`
	Members []MembershipFixture `yaml:"members"`
}

// MembershipFixture defines one membership inside a team declaration.
type MembershipFixture struct {
	MemberID int64  `yaml:"member_id"`
	Role     string `yaml:"role"`
}

// EventFixture defines one scheduling event declaration. Timestamps are
// RFC3339 strings and field names follow the HTTP API payloads.
type EventFixture struct {
	ID              int64    `yaml:"id"`
	TeamID          int64    `yaml:"team_id"`
	OwnerID         int64    `yaml:"owner_id"`
	Title           string   `yaml:"title"`
	StartsAt        string   `yaml:"starts_at"`
	EndsAt          string   `yaml:"ends_at"`
	Fixed           bool     `yaml:"is_fixed"`
	Location        string   `yaml:"location"`
	Attendees       []string `yaml:"attendees"`
	Memo            string   `yaml:"memo"`
	Recurrence      string   `yaml:"recurrence_kind"`
	RecurrenceUntil string   `yaml:"recurrence_until"`
}

// Load reads and validates one fixture file.
func Load(path string) (Fixture, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return Fixture{}, fmt.Errorf("fixture path is required")
	}
	data, err := os.ReadFile(trimmed)
	if err != nil {
		return Fixture{}, fmt.Errorf("read fixture file: %w", err)
	}
	return Parse(data)
}

// Parse decodes fixture YAML and validates the declared records.
func Parse(data []byte) (Fixture, error) {
	var fixture Fixture
	if err := yaml.Unmarshal(data, &fixture); err != nil {
		return Fixture{}, fmt.Errorf("decode fixture: %w", err)
	}
	if err := Validate(fixture); err != nil {
		return Fixture{}, err
	}
	return fixture, nil
}

// Validate checks required fields and cross-references before any record
// is written.
func Validate(fixture Fixture) error {
	memberIDs := make(map[int64]struct{}, len(fixture.Members))
	emails := make(map[string]struct{}, len(fixture.Members))
	for _, member := range fixture.Members {
		if member.ID <= 0 {
			return fmt.Errorf("member %q: id must be a positive integer", member.Email)
		}
		if _, ok := memberIDs[member.ID]; ok {
			return fmt.Errorf("member %d: duplicate id", member.ID)
		}
		memberIDs[member.ID] = struct{}{}
		if strings.TrimSpace(member.DisplayName) == "" {
			return fmt.Errorf("member %d: display_name is required", member.ID)
		}
		email := strings.ToLower(strings.TrimSpace(member.Email))
		if email == "" {
			return fmt.Errorf("member %d: email is required", member.ID)
		}
		if _, ok := emails[email]; ok {
			return fmt.Errorf("member %d: duplicate email %q", member.ID, email)
		}
		emails[email] = struct{}{}
	}

	teamIDs := make(map[int64]struct{}, len(fixture.Teams))
	teamNames := make(map[string]struct{}, len(fixture.Teams))
	teamMembers := make(map[int64]map[int64]struct{}, len(fixture.Teams))
	for _, team := range fixture.Teams {
		if team.ID <= 0 {
			return fmt.Errorf("team %q: id must be a positive integer", team.Name)
		}
		if _, ok := teamIDs[team.ID]; ok {
			return fmt.Errorf("team %d: duplicate id", team.ID)
		}
		teamIDs[team.ID] = struct{}{}
		name := strings.TrimSpace(team.Name)
		if name == "" {
			return fmt.Errorf("team %d: name is required", team.ID)
		}
		if _, ok := teamNames[name]; ok {
			return fmt.Errorf("team %d: duplicate name %q", team.ID, name)
		}
		teamNames[name] = struct{}{}

		seen := make(map[int64]struct{}, len(team.Members))
		for _, membership := range team.Members {
			if _, ok := memberIDs[membership.MemberID]; !ok {
				return fmt.Errorf("team %d: unknown member %d", team.ID, membership.MemberID)
			}
			if _, ok := seen[membership.MemberID]; ok {
				return fmt.Errorf("team %d: duplicate member %d", team.ID, membership.MemberID)
			}
			seen[membership.MemberID] = struct{}{}
			role := strings.TrimSpace(membership.Role)
			if role != "" && role != string(storage.RoleOwner) && role != string(storage.RoleMember) {
				return fmt.Errorf("team %d: member %d role must be owner or member", team.ID, membership.MemberID)
			}
		}
		teamMembers[team.ID] = seen
	}

	eventIDs := make(map[int64]struct{}, len(fixture.Events))
	for _, event := range fixture.Events {
		if event.ID <= 0 {
			return fmt.Errorf("event %q: id must be a positive integer", event.Title)
		}
		if _, ok := eventIDs[event.ID]; ok {
			return fmt.Errorf("event %d: duplicate id", event.ID)
		}
		eventIDs[event.ID] = struct{}{}
		if strings.TrimSpace(event.Title) == "" {
			return fmt.Errorf("event %d: title is required", event.ID)
		}
		if _, ok := teamIDs[event.TeamID]; !ok {
			return fmt.Errorf("event %d: unknown team %d", event.ID, event.TeamID)
		}
		if _, ok := memberIDs[event.OwnerID]; !ok {
			return fmt.Errorf("event %d: unknown owner %d", event.ID, event.OwnerID)
		}
		if _, ok := teamMembers[event.TeamID][event.OwnerID]; !ok {
			return fmt.Errorf("event %d: owner %d is not a member of team %d", event.ID, event.OwnerID, event.TeamID)
		}
	}
	return nil
}
