// Package push broadcasts schedule changes to websocket subscribers.
package push

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"teamcal/internal/platform/httpapi"
)

// Broadcast frame types sent to subscribers.
const (
	EventCreated  = "event_created"
	EventUpdated  = "event_updated"
	EventDeleted  = "event_deleted"
	EventReminder = "event_reminder"
)

// TokenVerifier validates a session token and resolves the member it names.
type TokenVerifier interface {
	Verify(token string) (int64, error)
}

// MembershipChecker reports whether a member belongs to a team.
type MembershipChecker interface {
	IsTeamMember(ctx context.Context, teamID int64, memberID int64) (bool, error)
}

// Frame is the wire envelope for websocket traffic in both directions.
type Frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type teamPayload struct {
	TeamID int64 `json:"team_id"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// Hub tracks websocket peers and their team subscriptions.
type Hub struct {
	tokens     TokenVerifier
	membership MembershipChecker
	origins    map[string]struct{}
	logger     *log.Logger
	upgrader   websocket.Upgrader

	mu    sync.Mutex
	peers map[*peer]map[int64]struct{}
}

// peer serializes writes to one websocket connection.
type peer struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (p *peer) writeFrame(frame Frame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn.WriteJSON(frame)
}

// NewHub creates a hub that authenticates peers with tokens and authorizes
// team subscriptions with membership. An empty origins list allows any origin.
func NewHub(tokens TokenVerifier, membership MembershipChecker, origins []string, logger *log.Logger) (*Hub, error) {
	if tokens == nil {
		return nil, fmt.Errorf("token verifier is required")
	}
	if membership == nil {
		return nil, fmt.Errorf("membership checker is required")
	}
	if logger == nil {
		logger = log.Default()
	}
	allowed := make(map[string]struct{}, len(origins))
	for _, origin := range origins {
		origin = strings.TrimSpace(origin)
		if origin == "" {
			continue
		}
		allowed[origin] = struct{}{}
	}
	hub := &Hub{
		tokens:     tokens,
		membership: membership,
		origins:    allowed,
		logger:     logger,
		peers:      make(map[*peer]map[int64]struct{}),
	}
	hub.upgrader = websocket.Upgrader{CheckOrigin: hub.checkOrigin}
	return hub, nil
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	if len(h.origins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	_, ok := h.origins[origin]
	return ok
}

// Handler upgrades authenticated requests and serves the subscription loop.
// The session token arrives as a token query parameter because browser
// websocket clients cannot set an Authorization header.
func (h *Hub) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		memberID, err := h.tokens.Verify(r.URL.Query().Get("token"))
		if err != nil {
			httpapi.WriteError(w, err)
			return
		}
		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.logger.Printf("websocket upgrade failed member=%d: %v", memberID, err)
			return
		}
		h.serve(r.Context(), conn, memberID)
	})
}

func (h *Hub) serve(ctx context.Context, conn *websocket.Conn, memberID int64) {
	p := &peer{conn: conn}
	h.register(p)
	defer h.unregister(p)
	defer func() {
		_ = conn.Close()
	}()

	_ = p.writeFrame(Frame{Type: "connected"})
	for {
		var frame Frame
		if err := conn.ReadJSON(&frame); err != nil {
			return
		}
		switch frame.Type {
		case "subscribe":
			h.handleSubscribe(ctx, p, memberID, frame)
		case "unsubscribe":
			h.handleUnsubscribe(p, frame)
		case "ping":
			_ = p.writeFrame(Frame{Type: "pong"})
		default:
			writeError(p, "unsupported frame type")
		}
	}
}

func (h *Hub) handleSubscribe(ctx context.Context, p *peer, memberID int64, frame Frame) {
	var payload teamPayload
	if err := json.Unmarshal(frame.Data, &payload); err != nil || payload.TeamID <= 0 {
		writeError(p, "team_id is required")
		return
	}
	allowed, err := h.membership.IsTeamMember(ctx, payload.TeamID, memberID)
	if err != nil {
		h.logger.Printf("membership check failed member=%d team=%d: %v", memberID, payload.TeamID, err)
		writeError(p, "membership check unavailable")
		return
	}
	if !allowed {
		writeError(p, "team membership required")
		return
	}

	h.mu.Lock()
	if teams, ok := h.peers[p]; ok {
		teams[payload.TeamID] = struct{}{}
	}
	h.mu.Unlock()
	_ = p.writeFrame(Frame{Type: "subscribed", Data: mustJSON(payload)})
}

func (h *Hub) handleUnsubscribe(p *peer, frame Frame) {
	var payload teamPayload
	if err := json.Unmarshal(frame.Data, &payload); err != nil || payload.TeamID <= 0 {
		writeError(p, "team_id is required")
		return
	}
	h.mu.Lock()
	if teams, ok := h.peers[p]; ok {
		delete(teams, payload.TeamID)
	}
	h.mu.Unlock()
	_ = p.writeFrame(Frame{Type: "unsubscribed", Data: mustJSON(payload)})
}

// Publish sends one frame carrying the event payload to every peer
// subscribed to the team. Peers whose write fails are dropped.
func (h *Hub) Publish(teamID int64, kind string, event any) {
	if h == nil || teamID <= 0 {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Printf("marshal push payload team=%d kind=%s: %v", teamID, kind, err)
		return
	}
	frame := Frame{Type: kind, Data: payload}
	for _, p := range h.subscribersOf(teamID) {
		if err := p.writeFrame(frame); err != nil {
			h.logger.Printf("drop websocket peer team=%d: %v", teamID, err)
			h.unregister(p)
			_ = p.conn.Close()
		}
	}
}

func (h *Hub) register(p *peer) {
	h.mu.Lock()
	h.peers[p] = make(map[int64]struct{})
	h.mu.Unlock()
}

func (h *Hub) unregister(p *peer) {
	h.mu.Lock()
	delete(h.peers, p)
	h.mu.Unlock()
}

func (h *Hub) subscribersOf(teamID int64) []*peer {
	h.mu.Lock()
	defer h.mu.Unlock()
	peers := make([]*peer, 0, len(h.peers))
	for p, teams := range h.peers {
		if _, ok := teams[teamID]; ok {
			peers = append(peers, p)
		}
	}
	return peers
}

func writeError(p *peer, message string) {
	_ = p.writeFrame(Frame{Type: "error", Data: mustJSON(errorPayload{Message: message})})
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		log.Printf("failed to marshal websocket frame payload: %v", err)
		return nil
	}
	return b
}
