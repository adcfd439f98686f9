package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func testManager(t *testing.T) *Manager {
	t.Helper()
	now := time.Date(2025, 11, 19, 9, 0, 0, 0, time.UTC)
	manager, err := NewManager(testKey(), 12*time.Hour, func() time.Time { return now })
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return manager
}

func TestMiddlewareAllowsPublicPaths(t *testing.T) {
	t.Parallel()

	handler := Middleware(testManager(t))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	for _, path := range []string{"/healthz", "/auth/login", "/auth/signup", "/ws", "/teams/7/calendar.ics"} {
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, path, nil))
		if recorder.Code != http.StatusNoContent {
			t.Fatalf("public path %s status = %d, want %d", path, recorder.Code, http.StatusNoContent)
		}
	}
}

func TestMiddlewareRejectsMissingHeader(t *testing.T) {
	t.Parallel()

	handler := Middleware(testManager(t))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run without credentials")
	}))

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/events/160", nil))
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", recorder.Code, http.StatusUnauthorized)
	}
	if !strings.Contains(recorder.Body.String(), "authorization header") {
		t.Fatalf("body = %q, want authorization header message", recorder.Body.String())
	}
}

func TestMiddlewareRejectsWrongScheme(t *testing.T) {
	t.Parallel()

	handler := Middleware(testManager(t))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run with wrong scheme")
	}))

	request := httptest.NewRequest(http.MethodGet, "/events/160", nil)
	request.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", recorder.Code, http.StatusUnauthorized)
	}
}

func TestMiddlewarePassesMemberIdentity(t *testing.T) {
	t.Parallel()

	manager := testManager(t)
	token, err := manager.Issue(42)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	var gotMemberID int64
	handler := Middleware(manager)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMemberID = MemberIDFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	request := httptest.NewRequest(http.MethodGet, "/events/160", nil)
	request.Header.Set("Authorization", "Bearer "+token)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	if recorder.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", recorder.Code, http.StatusNoContent)
	}
	if gotMemberID != 42 {
		t.Fatalf("member id = %d, want 42", gotMemberID)
	}
}

func TestMiddlewareRejectsTamperedToken(t *testing.T) {
	t.Parallel()

	manager := testManager(t)
	token, err := manager.Issue(42)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	handler := Middleware(manager)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run with tampered token")
	}))

	request := httptest.NewRequest(http.MethodGet, "/events/160", nil)
	request.Header.Set("Authorization", "Bearer "+token+"x")
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", recorder.Code, http.StatusUnauthorized)
	}
}

func TestMemberIDContextRoundTrip(t *testing.T) {
	t.Parallel()

	if got := MemberIDFromContext(nil); got != 0 {
		t.Fatalf("nil context member id = %d, want 0", got)
	}
	ctx := WithMemberID(nil, 42)
	if got := MemberIDFromContext(ctx); got != 42 {
		t.Fatalf("member id = %d, want 42", got)
	}
}
