// Package storage defines persistence contracts for schedule service state.
package storage

import (
	"context"
	"errors"
	"time"

	"teamcal/internal/services/schedule/domain"
)

var (
	// ErrNotFound indicates a requested schedule record is missing.
	ErrNotFound = errors.New("record not found")
	// ErrConflict indicates a requested write conflicts with uniqueness constraints.
	ErrConflict = errors.New("record conflict")
)

// MemberRole identifies a member's role inside a team.
type MemberRole string

const (
	// RoleOwner marks the member who created the team.
	RoleOwner MemberRole = "owner"
	// RoleMember marks a regular team member.
	RoleMember MemberRole = "member"
)

// EventRecord is the flat, fully-materialized projection of one scheduling
// event. Team and owner are carried as scalar columns resolved in the same
// round trip as the event row itself; the record never holds a handle back
// into the store and stays usable after the call returns.
type EventRecord struct {
	ID              int64
	TeamID          int64
	TeamName        string
	OwnerID         int64
	OwnerName       string
	Title           string
	StartsAt        time.Time
	EndsAt          time.Time
	Fixed           bool
	Location        string
	Attendees       []string
	Memo            string
	Recurrence      domain.RecurrenceKind
	RecurrenceUntil *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// TeamRecord stores one team row.
type TeamRecord struct {
	ID        int64
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TeamPage stores a paged team listing result.
type TeamPage struct {
	Teams         []TeamRecord
	NextPageToken string
}

// MemberRecord stores one member row including the login credential hash.
type MemberRecord struct {
	ID           int64
	DisplayName  string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// MembershipRecord stores one team membership row.
type MembershipRecord struct {
	TeamID   int64
	MemberID int64
	Role     MemberRole
	AddedAt  time.Time
}

// EventStore persists scheduling events and serves their flat projection.
// Write operations ignore the joined TeamName/OwnerName fields and the
// generated id; they re-read and return the full projection after the write.
type EventStore interface {
	CreateEvent(ctx context.Context, record EventRecord) (EventRecord, error)
	GetEvent(ctx context.Context, id int64) (EventRecord, error)
	ListTeamEvents(ctx context.Context, teamID int64) ([]EventRecord, error)
	ListTeamEventsInRange(ctx context.Context, teamID int64, from time.Time, to time.Time) ([]EventRecord, error)
	UpdateEvent(ctx context.Context, record EventRecord) (EventRecord, error)
	DeleteEvent(ctx context.Context, id int64) error
}

// TeamStore persists team rows.
type TeamStore interface {
	CreateTeam(ctx context.Context, record TeamRecord) (TeamRecord, error)
	GetTeam(ctx context.Context, id int64) (TeamRecord, error)
	ListTeams(ctx context.Context, pageSize int, pageToken string, orderBy string) (TeamPage, error)
	ListTeamIDs(ctx context.Context) ([]int64, error)
}

// MemberStore persists member rows.
type MemberStore interface {
	CreateMember(ctx context.Context, record MemberRecord) (MemberRecord, error)
	GetMember(ctx context.Context, id int64) (MemberRecord, error)
	GetMemberByEmail(ctx context.Context, email string) (MemberRecord, error)
}

// MembershipStore persists team membership rows.
type MembershipStore interface {
	AddTeamMember(ctx context.Context, record MembershipRecord) error
	IsTeamMember(ctx context.Context, teamID int64, memberID int64) (bool, error)
	ListTeamMemberIDs(ctx context.Context, teamID int64) ([]int64, error)
}
