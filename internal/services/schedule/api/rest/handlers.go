// Package rest serves the schedule service HTTP API.
package rest

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"teamcal/internal/platform/apperrors"
	"teamcal/internal/platform/httpapi"
	"teamcal/internal/platform/pagination"
	"teamcal/internal/platform/timeouts"
	"teamcal/internal/services/schedule/auth"
	"teamcal/internal/services/schedule/domain"
	"teamcal/internal/services/schedule/ical"
	"teamcal/internal/services/schedule/push"
	"teamcal/internal/services/schedule/storage"
)

var teamPageSizes = pagination.PageSizeConfig{Default: 20, Max: 100}

var teamOrderings = pagination.OrderByConfig{
	Default: "name",
	Allowed: []string{"name", "created_at"},
}

// Store groups the persistence operations the REST handlers depend on.
type Store interface {
	storage.EventStore
	storage.TeamStore
	storage.MemberStore
	storage.MembershipStore
}

// Publisher fans schedule change notices out to push subscribers.
type Publisher interface {
	Publish(teamID int64, kind string, event any)
}

// Config wires the collaborators the REST handlers need. Publisher is
// optional; without one, writes simply skip the push notification.
type Config struct {
	Store        Store
	Tokens       *auth.Manager
	Publisher    Publisher
	Logger       *log.Logger
	QueryTimeout time.Duration
	Now          func() time.Time
}

// Handlers serves the schedule REST routes.
type Handlers struct {
	store        Store
	tokens       *auth.Manager
	publisher    Publisher
	logger       *log.Logger
	queryTimeout time.Duration
	nowFunc      func() time.Time
}

// NewHandlers builds the REST handler set.
func NewHandlers(config Config) (*Handlers, error) {
	if config.Store == nil {
		return nil, errors.New("store is required")
	}
	if config.Tokens == nil {
		return nil, errors.New("token manager is required")
	}
	if config.Logger == nil {
		config.Logger = log.Default()
	}
	if config.QueryTimeout <= 0 {
		config.QueryTimeout = timeouts.Query
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &Handlers{
		store:        config.Store,
		tokens:       config.Tokens,
		publisher:    config.Publisher,
		logger:       config.Logger,
		queryTimeout: config.QueryTimeout,
		nowFunc:      config.Now,
	}, nil
}

// queryContext bounds one storage round trip with the configured timeout.
func (h *Handlers) queryContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(httpapi.RequestContext(r), h.queryTimeout)
}

// storeError maps storage sentinels to typed boundary errors. Anything that
// is not a sentinel counts as a storage fault: logged and surfaced as 503.
func (h *Handlers) storeError(op string, err error, notFoundMessage string, conflictMessage string) error {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		if notFoundMessage == "" {
			notFoundMessage = "record not found"
		}
		return apperrors.E(apperrors.KindNotFound, notFoundMessage)
	case errors.Is(err, storage.ErrConflict):
		if conflictMessage == "" {
			conflictMessage = "record conflict"
		}
		return apperrors.Wrap(apperrors.KindConflict, conflictMessage, err)
	}
	h.logger.Printf("storage fault op=%s: %v", op, err)
	return apperrors.Wrap(apperrors.KindUnavailable, "schedule storage unavailable", err)
}

func (h *Handlers) publish(teamID int64, kind string, record storage.EventRecord) {
	if h.publisher == nil {
		return
	}
	h.publisher.Publish(teamID, kind, eventFromRecord(record))
}

func (h *Handlers) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	eventID, err := parsePathID(r, "id", "event id")
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}
	ctx, cancel := h.queryContext(r)
	defer cancel()

	record, err := h.store.GetEvent(ctx, eventID)
	if err != nil {
		httpapi.WriteError(w, h.storeError("get_event", err, "event not found", ""))
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, eventFromRecord(record))
}

func (h *Handlers) handleListTeamEvents(w http.ResponseWriter, r *http.Request) {
	teamID, err := parsePathID(r, "teamID", "team id")
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}
	fromRaw := strings.TrimSpace(r.URL.Query().Get("from"))
	toRaw := strings.TrimSpace(r.URL.Query().Get("to"))
	if (fromRaw == "") != (toRaw == "") {
		httpapi.WriteError(w, apperrors.E(apperrors.KindInvalidInput, "from and to must be provided together"))
		return
	}

	ctx, cancel := h.queryContext(r)
	defer cancel()

	if fromRaw == "" {
		records, err := h.store.ListTeamEvents(ctx, teamID)
		if err != nil {
			httpapi.WriteError(w, h.storeError("list_team_events", err, "", ""))
			return
		}
		_ = httpapi.WriteJSON(w, http.StatusOK, eventListFromRecords(records))
		return
	}

	from, err := parseTimeField(fromRaw, "from")
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}
	to, err := parseTimeField(toRaw, "to")
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}
	// An inverted window matches nothing; answer without a storage trip.
	if to.Before(from) {
		_ = httpapi.WriteJSON(w, http.StatusOK, []eventPayload{})
		return
	}

	records, err := h.store.ListTeamEventsInRange(ctx, teamID, from, to)
	if err != nil {
		httpapi.WriteError(w, h.storeError("list_team_events_in_range", err, "", ""))
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, eventListFromRecords(records))
}

func (h *Handlers) handleListOccurrences(w http.ResponseWriter, r *http.Request) {
	teamID, err := parsePathID(r, "teamID", "team id")
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}
	from, err := parseTimeField(r.URL.Query().Get("from"), "from")
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}
	to, err := parseTimeField(r.URL.Query().Get("to"), "to")
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}
	if to.Before(from) {
		httpapi.WriteError(w, apperrors.E(apperrors.KindInvalidInput, "to must not be before from"))
		return
	}

	ctx, cancel := h.queryContext(r)
	defer cancel()

	records, err := h.store.ListTeamEvents(ctx, teamID)
	if err != nil {
		httpapi.WriteError(w, h.storeError("list_team_events", err, "", ""))
		return
	}
	occurrences, err := domain.ExpandOccurrences(domainEventsFromRecords(records), from, to)
	if err != nil {
		h.logger.Printf("expand occurrences team=%d: %v", teamID, err)
		httpapi.WriteError(w, apperrors.Wrap(apperrors.KindUnknown, "expand occurrences", err))
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, occurrenceListFromDomain(occurrences))
}

func (h *Handlers) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if err := decodeJSON(r, &req); err != nil {
		httpapi.WriteError(w, err)
		return
	}
	record, err := req.record(h.nowFunc())
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}

	ctx, cancel := h.queryContext(r)
	defer cancel()

	if err := h.checkEventReferences(ctx, record); err != nil {
		httpapi.WriteError(w, err)
		return
	}
	created, err := h.store.CreateEvent(ctx, record)
	if err != nil {
		httpapi.WriteError(w, h.storeError("create_event", err, "", "event conflicts with existing data"))
		return
	}
	h.publish(created.TeamID, push.EventCreated, created)
	_ = httpapi.WriteJSON(w, http.StatusCreated, eventFromRecord(created))
}

func (h *Handlers) handleUpdateEvent(w http.ResponseWriter, r *http.Request) {
	eventID, err := parsePathID(r, "id", "event id")
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}
	var req eventRequest
	if err := decodeJSON(r, &req); err != nil {
		httpapi.WriteError(w, err)
		return
	}

	ctx, cancel := h.queryContext(r)
	defer cancel()

	existing, err := h.store.GetEvent(ctx, eventID)
	if err != nil {
		httpapi.WriteError(w, h.storeError("get_event", err, "event not found", ""))
		return
	}
	record, err := req.record(h.nowFunc())
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}
	record.ID = eventID
	record.CreatedAt = existing.CreatedAt
	if err := h.checkEventReferences(ctx, record); err != nil {
		httpapi.WriteError(w, err)
		return
	}

	updated, err := h.store.UpdateEvent(ctx, record)
	if err != nil {
		httpapi.WriteError(w, h.storeError("update_event", err, "event not found", "event conflicts with existing data"))
		return
	}
	h.publish(updated.TeamID, push.EventUpdated, updated)
	_ = httpapi.WriteJSON(w, http.StatusOK, eventFromRecord(updated))
}

func (h *Handlers) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	eventID, err := parsePathID(r, "id", "event id")
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}

	ctx, cancel := h.queryContext(r)
	defer cancel()

	existing, err := h.store.GetEvent(ctx, eventID)
	if err != nil {
		httpapi.WriteError(w, h.storeError("get_event", err, "event not found", ""))
		return
	}
	if err := h.store.DeleteEvent(ctx, eventID); err != nil {
		httpapi.WriteError(w, h.storeError("delete_event", err, "event not found", ""))
		return
	}
	h.publish(existing.TeamID, push.EventDeleted, existing)
	w.WriteHeader(http.StatusNoContent)
}

// checkEventReferences verifies the team and owner behind an event write so
// unknown references answer 404 instead of leaking a constraint error.
func (h *Handlers) checkEventReferences(ctx context.Context, record storage.EventRecord) error {
	if _, err := h.store.GetTeam(ctx, record.TeamID); err != nil {
		return h.storeError("get_team", err, "team not found", "")
	}
	if _, err := h.store.GetMember(ctx, record.OwnerID); err != nil {
		return h.storeError("get_member", err, "member not found", "")
	}
	isMember, err := h.store.IsTeamMember(ctx, record.TeamID, record.OwnerID)
	if err != nil {
		return h.storeError("is_team_member", err, "", "")
	}
	if !isMember {
		return apperrors.E(apperrors.KindInvalidInput, "owner must be a member of the team")
	}
	return nil
}

func (h *Handlers) handleCreateTeam(w http.ResponseWriter, r *http.Request) {
	var req teamRequest
	if err := decodeJSON(r, &req); err != nil {
		httpapi.WriteError(w, err)
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		httpapi.WriteError(w, apperrors.E(apperrors.KindInvalidInput, "name is required"))
		return
	}

	ctx, cancel := h.queryContext(r)
	defer cancel()

	now := h.nowFunc().UTC()
	created, err := h.store.CreateTeam(ctx, storage.TeamRecord{Name: name, CreatedAt: now, UpdatedAt: now})
	if err != nil {
		httpapi.WriteError(w, h.storeError("create_team", err, "", "team name is already taken"))
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusCreated, teamFromRecord(created))
}

func (h *Handlers) handleGetTeam(w http.ResponseWriter, r *http.Request) {
	teamID, err := parsePathID(r, "id", "team id")
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}
	ctx, cancel := h.queryContext(r)
	defer cancel()

	record, err := h.store.GetTeam(ctx, teamID)
	if err != nil {
		httpapi.WriteError(w, h.storeError("get_team", err, "team not found", ""))
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, teamFromRecord(record))
}

func (h *Handlers) handleListTeams(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	pageSize := 0
	if raw := strings.TrimSpace(query.Get("page_size")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			httpapi.WriteError(w, apperrors.E(apperrors.KindInvalidInput, "page_size must be an integer"))
			return
		}
		pageSize = parsed
	}
	pageSize = pagination.ClampPageSize(pageSize, teamPageSizes)

	pageToken := strings.TrimSpace(query.Get("page_token"))
	if pageToken != "" {
		if _, err := strconv.ParseInt(pageToken, 10, 64); err != nil {
			httpapi.WriteError(w, apperrors.E(apperrors.KindInvalidInput, "page_token is invalid"))
			return
		}
	}
	orderBy, err := pagination.NormalizeOrderBy(strings.TrimSpace(query.Get("order_by")), teamOrderings)
	if err != nil {
		httpapi.WriteError(w, apperrors.E(apperrors.KindInvalidInput, err.Error()))
		return
	}

	ctx, cancel := h.queryContext(r)
	defer cancel()

	page, err := h.store.ListTeams(ctx, pageSize, pageToken, orderBy)
	if err != nil {
		httpapi.WriteError(w, h.storeError("list_teams", err, "", ""))
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, teamListFromPage(page))
}

func (h *Handlers) handleAddTeamMember(w http.ResponseWriter, r *http.Request) {
	teamID, err := parsePathID(r, "id", "team id")
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}
	var req addMemberRequest
	if err := decodeJSON(r, &req); err != nil {
		httpapi.WriteError(w, err)
		return
	}
	if req.MemberID <= 0 {
		httpapi.WriteError(w, apperrors.E(apperrors.KindInvalidInput, "member_id is required"))
		return
	}
	role := storage.MemberRole(strings.TrimSpace(req.Role))
	if role == "" {
		role = storage.RoleMember
	}
	if role != storage.RoleOwner && role != storage.RoleMember {
		httpapi.WriteError(w, apperrors.E(apperrors.KindInvalidInput, "role must be owner or member"))
		return
	}

	ctx, cancel := h.queryContext(r)
	defer cancel()

	if _, err := h.store.GetTeam(ctx, teamID); err != nil {
		httpapi.WriteError(w, h.storeError("get_team", err, "team not found", ""))
		return
	}
	if _, err := h.store.GetMember(ctx, req.MemberID); err != nil {
		httpapi.WriteError(w, h.storeError("get_member", err, "member not found", ""))
		return
	}
	membership := storage.MembershipRecord{
		TeamID:   teamID,
		MemberID: req.MemberID,
		Role:     role,
		AddedAt:  h.nowFunc().UTC(),
	}
	if err := h.store.AddTeamMember(ctx, membership); err != nil {
		httpapi.WriteError(w, h.storeError("add_team_member", err, "", "member already belongs to the team"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		httpapi.WriteError(w, err)
		return
	}
	displayName := strings.TrimSpace(req.DisplayName)
	if displayName == "" {
		httpapi.WriteError(w, apperrors.E(apperrors.KindInvalidInput, "display_name is required"))
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" {
		httpapi.WriteError(w, apperrors.E(apperrors.KindInvalidInput, "email is required"))
		return
	}
	if !strings.Contains(email, "@") {
		httpapi.WriteError(w, apperrors.E(apperrors.KindInvalidInput, "email is invalid"))
		return
	}
	if len(req.Password) < auth.MinPasswordLength {
		httpapi.WriteError(w, apperrors.E(apperrors.KindInvalidInput, "password must be at least 8 characters"))
		return
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}

	ctx, cancel := h.queryContext(r)
	defer cancel()

	now := h.nowFunc().UTC()
	created, err := h.store.CreateMember(ctx, storage.MemberRecord{
		DisplayName:  displayName,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		httpapi.WriteError(w, h.storeError("create_member", err, "", "email is already registered"))
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusCreated, memberFromRecord(created))
}

func (h *Handlers) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		httpapi.WriteError(w, err)
		return
	}
	email := strings.TrimSpace(req.Email)
	if email == "" || req.Password == "" {
		httpapi.WriteError(w, apperrors.E(apperrors.KindInvalidInput, "email and password are required"))
		return
	}

	ctx, cancel := h.queryContext(r)
	defer cancel()

	member, err := h.store.GetMemberByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// Same answer as a wrong password so probes cannot tell
			// registered emails apart.
			httpapi.WriteError(w, apperrors.E(apperrors.KindUnauthorized, "invalid email or password"))
			return
		}
		httpapi.WriteError(w, h.storeError("get_member_by_email", err, "", ""))
		return
	}
	if !auth.VerifyPassword(member.PasswordHash, req.Password) {
		httpapi.WriteError(w, apperrors.E(apperrors.KindUnauthorized, "invalid email or password"))
		return
	}

	token, err := h.tokens.Issue(member.ID)
	if err != nil {
		h.logger.Printf("issue token member=%d: %v", member.ID, err)
		httpapi.WriteError(w, apperrors.Wrap(apperrors.KindUnknown, "issue token", err))
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, sessionPayload{
		Token:     token,
		ExpiresAt: h.nowFunc().UTC().Add(h.tokens.TTL()),
	})
}

func (h *Handlers) handleCalendarFeed(w http.ResponseWriter, r *http.Request) {
	// Feed readers cannot set headers, so the token rides the query string.
	if _, err := h.tokens.Verify(r.URL.Query().Get("token")); err != nil {
		httpapi.WriteError(w, err)
		return
	}
	teamID, err := parsePathID(r, "teamID", "team id")
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}

	ctx, cancel := h.queryContext(r)
	defer cancel()

	team, err := h.store.GetTeam(ctx, teamID)
	if err != nil {
		httpapi.WriteError(w, h.storeError("get_team", err, "team not found", ""))
		return
	}
	records, err := h.store.ListTeamEvents(ctx, teamID)
	if err != nil {
		httpapi.WriteError(w, h.storeError("list_team_events", err, "", ""))
		return
	}

	w.Header().Set("Content-Type", ical.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+ical.FileName(team.Name)+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(ical.Feed(team.Name, records, h.nowFunc())))
}

func domainEventsFromRecords(records []storage.EventRecord) []domain.Event {
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

func parsePathID(r *http.Request, name string, label string) (int64, error) {
	raw := strings.TrimSpace(r.PathValue(name))
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.E(apperrors.KindInvalidInput, label+" must be a positive integer")
	}
	return id, nil
}

func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperrors.E(apperrors.KindInvalidInput, "invalid json body")
	}
	return nil
}
