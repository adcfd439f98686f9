package rest

import "net/http"

// Register mounts the schedule REST routes on mux.
func (h *Handlers) Register(mux *http.ServeMux) {
	if mux == nil {
		return
	}
	mux.HandleFunc(http.MethodPost+" /events", h.handleCreateEvent)
	mux.HandleFunc(http.MethodGet+" /events/{id}", h.handleGetEvent)
	mux.HandleFunc(http.MethodPut+" /events/{id}", h.handleUpdateEvent)
	mux.HandleFunc(http.MethodDelete+" /events/{id}", h.handleDeleteEvent)
	mux.HandleFunc(http.MethodGet+" /events/team/{teamID}", h.handleListTeamEvents)

	mux.HandleFunc(http.MethodPost+" /teams", h.handleCreateTeam)
	mux.HandleFunc(http.MethodGet+" /teams", h.handleListTeams)
	mux.HandleFunc(http.MethodGet+" /teams/{id}", h.handleGetTeam)
	mux.HandleFunc(http.MethodPost+" /teams/{id}/members", h.handleAddTeamMember)
	mux.HandleFunc(http.MethodGet+" /teams/{teamID}/occurrences", h.handleListOccurrences)
	mux.HandleFunc(http.MethodGet+" /teams/{teamID}/calendar.ics", h.handleCalendarFeed)

	mux.HandleFunc(http.MethodPost+" /auth/register", h.handleRegister)
	mux.HandleFunc(http.MethodPost+" /auth/login", h.handleLogin)
}
