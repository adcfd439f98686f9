// Package sqlite implements schedule storage on SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"teamcal/internal/platform/storage/sqlitemigrate"
	"teamcal/internal/services/schedule/domain"
	"teamcal/internal/services/schedule/storage"
	"teamcal/internal/services/schedule/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed persistence for schedule state.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Columns of the event projection: every field of an EventRecord resolved in
// one round trip, team and owner names joined in.
const eventProjection = `
SELECT e.id, e.team_id, t.name, e.owner_id, m.display_name, e.title,
       e.starts_at, e.ends_at, e.is_fixed, e.location, e.attendees, e.memo,
       e.recurrence_kind, e.recurrence_until, e.created_at, e.updated_at
FROM events e
JOIN teams t ON t.id = e.team_id
JOIN members m ON m.id = e.owner_id
`

// Open opens a schedule SQLite store at the provided path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_pragma=foreign_keys(ON)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := ensureForeignKeysEnabled(sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	store := &Store{sqlDB: sqlDB}
	if err := store.runMigrations(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return store, nil
}

// Close closes the underlying SQLite database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Ping verifies the database connection is usable.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return s.sqlDB.PingContext(ctx)
}

func (s *Store) runMigrations() error {
	return sqlitemigrate.ApplyMigrations(context.Background(), s.sqlDB, migrations.FS)
}

func ensureForeignKeysEnabled(db *sql.DB) error {
	if db == nil {
		return fmt.Errorf("sqlite db is required")
	}
	var enabled int
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&enabled); err != nil {
		return fmt.Errorf("check sqlite foreign key pragma: %w", err)
	}
	if enabled != 1 {
		return fmt.Errorf("sqlite foreign keys are disabled")
	}
	return nil
}

// CreateEvent inserts one event row and returns its re-read projection.
// A positive record.ID is honored (fixtures); zero lets SQLite assign one.
func (s *Store) CreateEvent(ctx context.Context, record storage.EventRecord) (storage.EventRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.EventRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.EventRecord{}, fmt.Errorf("storage is not configured")
	}
	normalized, err := normalizeEventRecord(record)
	if err != nil {
		return storage.EventRecord{}, err
	}
	attendees, err := marshalAttendees(normalized.Attendees)
	if err != nil {
		return storage.EventRecord{}, err
	}

	args := []any{
		normalized.TeamID,
		normalized.OwnerID,
		normalized.Title,
		toMillis(normalized.StartsAt),
		toMillis(normalized.EndsAt),
		boolToInt(normalized.Fixed),
		normalized.Location,
		attendees,
		normalized.Memo,
		string(normalized.Recurrence),
		nullableMillis(normalized.RecurrenceUntil),
		toMillis(normalized.CreatedAt),
		toMillis(normalized.UpdatedAt),
	}
	query := `
INSERT INTO events (
	team_id, owner_id, title, starts_at, ends_at, is_fixed, location, attendees, memo,
	recurrence_kind, recurrence_until, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`
	if normalized.ID > 0 {
		query = `
INSERT INTO events (
	id, team_id, owner_id, title, starts_at, ends_at, is_fixed, location, attendees, memo,
	recurrence_kind, recurrence_until, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`
		args = append([]any{normalized.ID}, args...)
	}

	result, err := s.sqlDB.ExecContext(ctx, query, args...)
	if err != nil {
		if isUniqueConstraintError(err) || isForeignKeyConstraintError(err) {
			return storage.EventRecord{}, storage.ErrConflict
		}
		return storage.EventRecord{}, fmt.Errorf("create event: %w", err)
	}
	eventID := normalized.ID
	if eventID == 0 {
		eventID, err = result.LastInsertId()
		if err != nil {
			return storage.EventRecord{}, fmt.Errorf("create event id: %w", err)
		}
	}
	return s.GetEvent(ctx, eventID)
}

// GetEvent loads one event projection by id in a single round trip.
func (s *Store) GetEvent(ctx context.Context, id int64) (storage.EventRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.EventRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.EventRecord{}, fmt.Errorf("storage is not configured")
	}
	if id <= 0 {
		return storage.EventRecord{}, storage.ErrNotFound
	}

	row := s.sqlDB.QueryRowContext(ctx, eventProjection+`WHERE e.id = ?`, id)
	record, err := scanEvent(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.EventRecord{}, storage.ErrNotFound
		}
		return storage.EventRecord{}, fmt.Errorf("get event: %w", err)
	}
	return record, nil
}

// ListTeamEvents lists every event owned by one team, ordered by start then id.
func (s *Store) ListTeamEvents(ctx context.Context, teamID int64) ([]storage.EventRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if teamID <= 0 {
		return nil, fmt.Errorf("team id is required")
	}

	rows, err := s.sqlDB.QueryContext(ctx, eventProjection+`
WHERE e.team_id = ?
ORDER BY e.starts_at ASC, e.id ASC
`, teamID)
	if err != nil {
		return nil, fmt.Errorf("list team events: %w", err)
	}
	defer rows.Close()
	return collectEvents(rows)
}

// ListTeamEventsInRange lists one team's events with starts inside [from, to].
func (s *Store) ListTeamEventsInRange(ctx context.Context, teamID int64, from time.Time, to time.Time) ([]storage.EventRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if teamID <= 0 {
		return nil, fmt.Errorf("team id is required")
	}
	if from.IsZero() || to.IsZero() {
		return nil, fmt.Errorf("range bounds are required")
	}

	rows, err := s.sqlDB.QueryContext(ctx, eventProjection+`
WHERE e.team_id = ?
  AND e.starts_at >= ?
  AND e.starts_at <= ?
ORDER BY e.starts_at ASC, e.id ASC
`, teamID, toMillis(from), toMillis(to))
	if err != nil {
		return nil, fmt.Errorf("list team events in range: %w", err)
	}
	defer rows.Close()
	return collectEvents(rows)
}

// UpdateEvent rewrites one event row and returns its re-read projection.
func (s *Store) UpdateEvent(ctx context.Context, record storage.EventRecord) (storage.EventRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.EventRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.EventRecord{}, fmt.Errorf("storage is not configured")
	}
	if record.ID <= 0 {
		return storage.EventRecord{}, fmt.Errorf("event id is required")
	}
	normalized, err := normalizeEventRecord(record)
	if err != nil {
		return storage.EventRecord{}, err
	}
	attendees, err := marshalAttendees(normalized.Attendees)
	if err != nil {
		return storage.EventRecord{}, err
	}

	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE events
SET team_id = ?, owner_id = ?, title = ?, starts_at = ?, ends_at = ?, is_fixed = ?,
    location = ?, attendees = ?, memo = ?, recurrence_kind = ?, recurrence_until = ?,
    updated_at = ?
WHERE id = ?
`,
		normalized.TeamID,
		normalized.OwnerID,
		normalized.Title,
		toMillis(normalized.StartsAt),
		toMillis(normalized.EndsAt),
		boolToInt(normalized.Fixed),
		normalized.Location,
		attendees,
		normalized.Memo,
		string(normalized.Recurrence),
		nullableMillis(normalized.RecurrenceUntil),
		toMillis(normalized.UpdatedAt),
		normalized.ID,
	)
	if err != nil {
		if isUniqueConstraintError(err) || isForeignKeyConstraintError(err) {
			return storage.EventRecord{}, storage.ErrConflict
		}
		return storage.EventRecord{}, fmt.Errorf("update event: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return storage.EventRecord{}, fmt.Errorf("update event rows affected: %w", err)
	}
	if affected == 0 {
		return storage.EventRecord{}, storage.ErrNotFound
	}
	return s.GetEvent(ctx, normalized.ID)
}

// DeleteEvent removes one event row.
func (s *Store) DeleteEvent(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if id <= 0 {
		return storage.ErrNotFound
	}

	result, err := s.sqlDB.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete event rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// CreateTeam inserts one team row. A positive record.ID is honored (fixtures).
func (s *Store) CreateTeam(ctx context.Context, record storage.TeamRecord) (storage.TeamRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.TeamRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.TeamRecord{}, fmt.Errorf("storage is not configured")
	}
	normalized, err := normalizeTeamRecord(record)
	if err != nil {
		return storage.TeamRecord{}, err
	}

	args := []any{normalized.Name, toMillis(normalized.CreatedAt), toMillis(normalized.UpdatedAt)}
	query := `INSERT INTO teams (name, created_at, updated_at) VALUES (?, ?, ?)`
	if normalized.ID > 0 {
		query = `INSERT INTO teams (id, name, created_at, updated_at) VALUES (?, ?, ?, ?)`
		args = append([]any{normalized.ID}, args...)
	}

	result, err := s.sqlDB.ExecContext(ctx, query, args...)
	if err != nil {
		if isUniqueConstraintError(err) {
			return storage.TeamRecord{}, storage.ErrConflict
		}
		return storage.TeamRecord{}, fmt.Errorf("create team: %w", err)
	}
	teamID := normalized.ID
	if teamID == 0 {
		teamID, err = result.LastInsertId()
		if err != nil {
			return storage.TeamRecord{}, fmt.Errorf("create team id: %w", err)
		}
	}
	normalized.ID = teamID
	return normalized, nil
}

// GetTeam loads one team row by id.
func (s *Store) GetTeam(ctx context.Context, id int64) (storage.TeamRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.TeamRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.TeamRecord{}, fmt.Errorf("storage is not configured")
	}
	if id <= 0 {
		return storage.TeamRecord{}, storage.ErrNotFound
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, name, created_at, updated_at
FROM teams
WHERE id = ?
`, id)
	record, err := scanTeam(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.TeamRecord{}, storage.ErrNotFound
		}
		return storage.TeamRecord{}, fmt.Errorf("get team: %w", err)
	}
	return record, nil
}

// ListTeams lists teams with cursor pagination ordered by name or created_at.
func (s *Store) ListTeams(ctx context.Context, pageSize int, pageToken string, orderBy string) (storage.TeamPage, error) {
	if err := ctx.Err(); err != nil {
		return storage.TeamPage{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.TeamPage{}, fmt.Errorf("storage is not configured")
	}
	if pageSize <= 0 {
		return storage.TeamPage{}, fmt.Errorf("page size must be greater than zero")
	}
	orderBy = strings.TrimSpace(orderBy)
	if orderBy == "" {
		orderBy = "name"
	}
	if orderBy != "name" && orderBy != "created_at" {
		return storage.TeamPage{}, fmt.Errorf("unsupported team order %q", orderBy)
	}

	limit := pageSize + 1
	pageToken = strings.TrimSpace(pageToken)
	if pageToken == "" {
		rows, err := s.sqlDB.QueryContext(ctx, fmt.Sprintf(`
SELECT id, name, created_at, updated_at
FROM teams
ORDER BY %s ASC, id ASC
LIMIT ?
`, orderBy), limit)
		if err != nil {
			return storage.TeamPage{}, fmt.Errorf("list teams: %w", err)
		}
		defer rows.Close()
		return collectTeamPage(rows, pageSize)
	}

	cursorID, err := strconv.ParseInt(pageToken, 10, 64)
	if err != nil {
		return storage.TeamPage{}, fmt.Errorf("parse team page token: %w", err)
	}
	cursor, err := s.GetTeam(ctx, cursorID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.TeamPage{}, nil
		}
		return storage.TeamPage{}, err
	}

	cursorValue := any(cursor.Name)
	if orderBy == "created_at" {
		cursorValue = toMillis(cursor.CreatedAt)
	}
	rows, err := s.sqlDB.QueryContext(ctx, fmt.Sprintf(`
SELECT id, name, created_at, updated_at
FROM teams
WHERE (%[1]s > ? OR (%[1]s = ? AND id > ?))
ORDER BY %[1]s ASC, id ASC
LIMIT ?
`, orderBy), cursorValue, cursorValue, cursor.ID, limit)
	if err != nil {
		return storage.TeamPage{}, fmt.Errorf("list teams with token: %w", err)
	}
	defer rows.Close()
	return collectTeamPage(rows, pageSize)
}

// ListTeamIDs returns every team id, ascending.
func (s *Store) ListTeamIDs(ctx context.Context) ([]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `SELECT id FROM teams ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list team ids: %w", err)
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan team id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate team ids: %w", err)
	}
	return ids, nil
}

// CreateMember inserts one member row. A positive record.ID is honored (fixtures).
func (s *Store) CreateMember(ctx context.Context, record storage.MemberRecord) (storage.MemberRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.MemberRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.MemberRecord{}, fmt.Errorf("storage is not configured")
	}
	normalized, err := normalizeMemberRecord(record)
	if err != nil {
		return storage.MemberRecord{}, err
	}

	args := []any{
		normalized.DisplayName,
		normalized.Email,
		normalized.PasswordHash,
		toMillis(normalized.CreatedAt),
		toMillis(normalized.UpdatedAt),
	}
	query := `INSERT INTO members (display_name, email, password_hash, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`
	if normalized.ID > 0 {
		query = `INSERT INTO members (id, display_name, email, password_hash, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`
		args = append([]any{normalized.ID}, args...)
	}

	result, err := s.sqlDB.ExecContext(ctx, query, args...)
	if err != nil {
		if isUniqueConstraintError(err) {
			return storage.MemberRecord{}, storage.ErrConflict
		}
		return storage.MemberRecord{}, fmt.Errorf("create member: %w", err)
	}
	memberID := normalized.ID
	if memberID == 0 {
		memberID, err = result.LastInsertId()
		if err != nil {
			return storage.MemberRecord{}, fmt.Errorf("create member id: %w", err)
		}
	}
	normalized.ID = memberID
	return normalized, nil
}

// GetMember loads one member row by id.
func (s *Store) GetMember(ctx context.Context, id int64) (storage.MemberRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.MemberRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.MemberRecord{}, fmt.Errorf("storage is not configured")
	}
	if id <= 0 {
		return storage.MemberRecord{}, storage.ErrNotFound
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, display_name, email, password_hash, created_at, updated_at
FROM members
WHERE id = ?
`, id)
	record, err := scanMember(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.MemberRecord{}, storage.ErrNotFound
		}
		return storage.MemberRecord{}, fmt.Errorf("get member: %w", err)
	}
	return record, nil
}

// GetMemberByEmail loads one member row by normalized email.
func (s *Store) GetMemberByEmail(ctx context.Context, email string) (storage.MemberRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.MemberRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.MemberRecord{}, fmt.Errorf("storage is not configured")
	}
	email = normalizeEmail(email)
	if email == "" {
		return storage.MemberRecord{}, storage.ErrNotFound
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, display_name, email, password_hash, created_at, updated_at
FROM members
WHERE email = ?
`, email)
	record, err := scanMember(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.MemberRecord{}, storage.ErrNotFound
		}
		return storage.MemberRecord{}, fmt.Errorf("get member by email: %w", err)
	}
	return record, nil
}

// AddTeamMember inserts one membership row.
func (s *Store) AddTeamMember(ctx context.Context, record storage.MembershipRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	normalized, err := normalizeMembershipRecord(record)
	if err != nil {
		return err
	}

	_, err = s.sqlDB.ExecContext(ctx, `
INSERT INTO team_members (team_id, member_id, role, added_at)
VALUES (?, ?, ?, ?)
`, normalized.TeamID, normalized.MemberID, string(normalized.Role), toMillis(normalized.AddedAt))
	if err != nil {
		if isUniqueConstraintError(err) || isForeignKeyConstraintError(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("add team member: %w", err)
	}
	return nil
}

// IsTeamMember reports whether one member belongs to one team.
func (s *Store) IsTeamMember(ctx context.Context, teamID int64, memberID int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if s == nil || s.sqlDB == nil {
		return false, fmt.Errorf("storage is not configured")
	}
	if teamID <= 0 || memberID <= 0 {
		return false, nil
	}

	var found int
	err := s.sqlDB.QueryRowContext(ctx, `
SELECT 1 FROM team_members WHERE team_id = ? AND member_id = ?
`, teamID, memberID).Scan(&found)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check team membership: %w", err)
	}
	return true, nil
}

// ListTeamMemberIDs returns member ids of one team, ascending.
func (s *Store) ListTeamMemberIDs(ctx context.Context, teamID int64) ([]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if teamID <= 0 {
		return nil, fmt.Errorf("team id is required")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT member_id FROM team_members WHERE team_id = ? ORDER BY member_id ASC
`, teamID)
	if err != nil {
		return nil, fmt.Errorf("list team member ids: %w", err)
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan team member id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate team member ids: %w", err)
	}
	return ids, nil
}

type scanner func(dest ...any) error

func normalizeEventRecord(record storage.EventRecord) (storage.EventRecord, error) {
	record.Title = strings.TrimSpace(record.Title)
	record.Location = strings.TrimSpace(record.Location)
	record.Memo = strings.TrimSpace(record.Memo)
	record.Attendees = normalizeAttendees(record.Attendees)
	if record.Recurrence == "" {
		record.Recurrence = domain.RecurrenceNone
	}
	if record.TeamID <= 0 {
		return storage.EventRecord{}, fmt.Errorf("team id is required")
	}
	if record.OwnerID <= 0 {
		return storage.EventRecord{}, fmt.Errorf("owner id is required")
	}
	if record.Title == "" {
		return storage.EventRecord{}, fmt.Errorf("title is required")
	}
	if record.StartsAt.IsZero() {
		return storage.EventRecord{}, fmt.Errorf("starts_at is required")
	}
	if record.EndsAt.IsZero() {
		return storage.EventRecord{}, fmt.Errorf("ends_at is required")
	}
	if record.EndsAt.Before(record.StartsAt) {
		return storage.EventRecord{}, fmt.Errorf("ends_at is before starts_at")
	}
	if !record.Recurrence.Valid() {
		return storage.EventRecord{}, fmt.Errorf("unknown recurrence kind %q", record.Recurrence)
	}
	if record.RecurrenceUntil != nil {
		if !record.Recurrence.Recurring() {
			return storage.EventRecord{}, fmt.Errorf("recurrence_until requires a recurring kind")
		}
		if record.RecurrenceUntil.Before(record.StartsAt) {
			return storage.EventRecord{}, fmt.Errorf("recurrence_until is before starts_at")
		}
		until := record.RecurrenceUntil.UTC()
		record.RecurrenceUntil = &until
	}
	if record.CreatedAt.IsZero() {
		return storage.EventRecord{}, fmt.Errorf("created_at is required")
	}
	if record.UpdatedAt.IsZero() {
		return storage.EventRecord{}, fmt.Errorf("updated_at is required")
	}
	record.StartsAt = record.StartsAt.UTC()
	record.EndsAt = record.EndsAt.UTC()
	record.CreatedAt = record.CreatedAt.UTC()
	record.UpdatedAt = record.UpdatedAt.UTC()
	return record, nil
}

func normalizeTeamRecord(record storage.TeamRecord) (storage.TeamRecord, error) {
	record.Name = strings.TrimSpace(record.Name)
	if record.Name == "" {
		return storage.TeamRecord{}, fmt.Errorf("team name is required")
	}
	if record.CreatedAt.IsZero() {
		return storage.TeamRecord{}, fmt.Errorf("created_at is required")
	}
	if record.UpdatedAt.IsZero() {
		return storage.TeamRecord{}, fmt.Errorf("updated_at is required")
	}
	record.CreatedAt = record.CreatedAt.UTC()
	record.UpdatedAt = record.UpdatedAt.UTC()
	return record, nil
}

func normalizeMemberRecord(record storage.MemberRecord) (storage.MemberRecord, error) {
	record.DisplayName = strings.TrimSpace(record.DisplayName)
	record.Email = normalizeEmail(record.Email)
	record.PasswordHash = strings.TrimSpace(record.PasswordHash)
	if record.DisplayName == "" {
		return storage.MemberRecord{}, fmt.Errorf("display name is required")
	}
	if record.Email == "" {
		return storage.MemberRecord{}, fmt.Errorf("email is required")
	}
	if record.PasswordHash == "" {
		return storage.MemberRecord{}, fmt.Errorf("password hash is required")
	}
	if record.CreatedAt.IsZero() {
		return storage.MemberRecord{}, fmt.Errorf("created_at is required")
	}
	if record.UpdatedAt.IsZero() {
		return storage.MemberRecord{}, fmt.Errorf("updated_at is required")
	}
	record.CreatedAt = record.CreatedAt.UTC()
	record.UpdatedAt = record.UpdatedAt.UTC()
	return record, nil
}

func normalizeMembershipRecord(record storage.MembershipRecord) (storage.MembershipRecord, error) {
	if record.TeamID <= 0 {
		return storage.MembershipRecord{}, fmt.Errorf("team id is required")
	}
	if record.MemberID <= 0 {
		return storage.MembershipRecord{}, fmt.Errorf("member id is required")
	}
	if record.Role == "" {
		record.Role = storage.RoleMember
	}
	if record.Role != storage.RoleOwner && record.Role != storage.RoleMember {
		return storage.MembershipRecord{}, fmt.Errorf("unknown member role %q", record.Role)
	}
	if record.AddedAt.IsZero() {
		return storage.MembershipRecord{}, fmt.Errorf("added_at is required")
	}
	record.AddedAt = record.AddedAt.UTC()
	return record, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func normalizeAttendees(attendees []string) []string {
	out := make([]string, 0, len(attendees))
	for _, attendee := range attendees {
		attendee = strings.TrimSpace(attendee)
		if attendee == "" {
			continue
		}
		out = append(out, attendee)
	}
	return out
}

func marshalAttendees(attendees []string) (string, error) {
	if len(attendees) == 0 {
		return "[]", nil
	}
	payload, err := json.Marshal(attendees)
	if err != nil {
		return "", fmt.Errorf("marshal attendees: %w", err)
	}
	return string(payload), nil
}

func unmarshalAttendees(payload string) ([]string, error) {
	if strings.TrimSpace(payload) == "" {
		return []string{}, nil
	}
	var attendees []string
	if err := json.Unmarshal([]byte(payload), &attendees); err != nil {
		return nil, fmt.Errorf("unmarshal attendees: %w", err)
	}
	if attendees == nil {
		attendees = []string{}
	}
	return attendees, nil
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func nullableMillis(value *time.Time) sql.NullInt64 {
	if value == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*value), Valid: true}
}

func scanEvent(scan scanner) (storage.EventRecord, error) {
	var record storage.EventRecord
	var startsAt int64
	var endsAt int64
	var isFixed int
	var attendees string
	var recurrence string
	var recurrenceUntil sql.NullInt64
	var createdAt int64
	var updatedAt int64
	if err := scan(
		&record.ID,
		&record.TeamID,
		&record.TeamName,
		&record.OwnerID,
		&record.OwnerName,
		&record.Title,
		&startsAt,
		&endsAt,
		&isFixed,
		&record.Location,
		&attendees,
		&record.Memo,
		&recurrence,
		&recurrenceUntil,
		&createdAt,
		&updatedAt,
	); err != nil {
		return storage.EventRecord{}, err
	}
	record.StartsAt = fromMillis(startsAt)
	record.EndsAt = fromMillis(endsAt)
	record.Fixed = isFixed != 0
	record.Recurrence = domain.RecurrenceKind(recurrence)
	if recurrenceUntil.Valid {
		value := fromMillis(recurrenceUntil.Int64)
		record.RecurrenceUntil = &value
	}
	record.CreatedAt = fromMillis(createdAt)
	record.UpdatedAt = fromMillis(updatedAt)
	parsed, err := unmarshalAttendees(attendees)
	if err != nil {
		return storage.EventRecord{}, err
	}
	record.Attendees = parsed
	return record, nil
}

func collectEvents(rows *sql.Rows) ([]storage.EventRecord, error) {
	records := make([]storage.EventRecord, 0)
	for rows.Next() {
		record, err := scanEvent(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event rows: %w", err)
	}
	return records, nil
}

func scanTeam(scan scanner) (storage.TeamRecord, error) {
	var record storage.TeamRecord
	var createdAt int64
	var updatedAt int64
	if err := scan(&record.ID, &record.Name, &createdAt, &updatedAt); err != nil {
		return storage.TeamRecord{}, err
	}
	record.CreatedAt = fromMillis(createdAt)
	record.UpdatedAt = fromMillis(updatedAt)
	return record, nil
}

func collectTeamPage(rows *sql.Rows, pageSize int) (storage.TeamPage, error) {
	page := storage.TeamPage{
		Teams: make([]storage.TeamRecord, 0, pageSize),
	}
	for rows.Next() {
		record, err := scanTeam(rows.Scan)
		if err != nil {
			return storage.TeamPage{}, fmt.Errorf("scan team row: %w", err)
		}
		page.Teams = append(page.Teams, record)
	}
	if err := rows.Err(); err != nil {
		return storage.TeamPage{}, fmt.Errorf("iterate team rows: %w", err)
	}
	if len(page.Teams) > pageSize {
		page.NextPageToken = strconv.FormatInt(page.Teams[pageSize-1].ID, 10)
		page.Teams = page.Teams[:pageSize]
	}
	return page, nil
}

func scanMember(scan scanner) (storage.MemberRecord, error) {
	var record storage.MemberRecord
	var createdAt int64
	var updatedAt int64
	if err := scan(
		&record.ID,
		&record.DisplayName,
		&record.Email,
		&record.PasswordHash,
		&createdAt,
		&updatedAt,
	); err != nil {
		return storage.MemberRecord{}, err
	}
	record.CreatedAt = fromMillis(createdAt)
	record.UpdatedAt = fromMillis(updatedAt)
	return record, nil
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	value := strings.ToLower(err.Error())
	return strings.Contains(value, "unique constraint failed")
}

func isForeignKeyConstraintError(err error) bool {
	if err == nil {
		return false
	}
	value := strings.ToLower(err.Error())
	return strings.Contains(value, "foreign key constraint failed")
}
