package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pvolkov/mailmirror/internal/imap"
)

func TestHandleHealth(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	env.server.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestAuthMiddlewareRejectsMissingToken(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/api/v1/emails", "/api/v1/me"} {
		req := httptest.NewRequest("GET", path, nil)
		w := httptest.NewRecorder()
		env.server.Router().ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("GET %s status = %d, want 401", path, w.Code)
		}
	}
}

func TestAuthMiddlewareRejectsBadToken(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest("GET", "/api/v1/me", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	w := httptest.NewRecorder()
	env.server.Router().ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestAuthMiddlewareAcceptsCookie(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest("GET", "/api/v1/me", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: env.sessionToken(t)})
	w := httptest.NewRecorder()
	env.server.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestHandleLoginRedirects(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest("GET", "/auth/login", nil)
	w := httptest.NewRecorder()
	env.server.Router().ServeHTTP(w, req)

	if w.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", w.Code)
	}

	location := w.Header().Get("Location")
	if !strings.HasPrefix(location, "https://accounts.example.com/auth?state=") {
		t.Errorf("location = %q", location)
	}

	var state string
	for _, c := range w.Result().Cookies() {
		if c.Name == stateCookie {
			state = c.Value
		}
	}
	if state == "" {
		t.Fatal("state cookie not set")
	}
	if !strings.HasSuffix(location, state) {
		t.Error("redirect state does not match cookie")
	}
}

func TestHandleCallbackStateMismatch(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest("GET", "/auth/callback?state=evil&code=abc", nil)
	req.AddCookie(&http.Cookie{Name: stateCookie, Value: "good"})
	w := httptest.NewRecorder()
	env.server.Router().ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestHandleCallbackIssuesSession(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest("GET", "/auth/callback?state=good&code=abc", nil)
	req.AddCookie(&http.Cookie{Name: stateCookie, Value: "good"})
	w := httptest.NewRecorder()
	env.server.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}

	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	claims, err := env.tokens.Parse(resp["token"])
	if err != nil {
		t.Fatalf("returned token invalid: %v", err)
	}
	if claims.Email != "user@example.com" {
		t.Errorf("claims email = %q", claims.Email)
	}

	var sessionSet bool
	for _, c := range w.Result().Cookies() {
		if c.Name == SessionCookie && c.Value != "" {
			sessionSet = true
		}
	}
	if !sessionSet {
		t.Error("session cookie not set")
	}
}

func TestHandleSync(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest("POST", "/api/v1/sync", nil)
	req.Header.Set("Authorization", "Bearer "+env.sessionToken(t))
	w := httptest.NewRecorder()
	env.server.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}

	var resp SyncResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.InsertedCount != 3 {
		t.Errorf("inserted_count = %d, want 3", resp.InsertedCount)
	}

	// The sync ran with freshly refreshed credentials
	if env.syncer.syncedCreds.BearerToken != "fresh-access" {
		t.Errorf("bearer token = %q, want fresh-access", env.syncer.syncedCreds.BearerToken)
	}
	if env.syncer.syncedCreds.Identity != "user@example.com" {
		t.Errorf("identity = %q", env.syncer.syncedCreds.Identity)
	}
	if env.users.tokenCalls != 1 {
		t.Errorf("token persist calls = %d, want 1", env.users.tokenCalls)
	}
	if env.syncer.syncedOpts.Full {
		t.Error("full rescan requested without ?full")
	}
}

func TestHandleSyncFullRescan(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest("POST", "/api/v1/sync?full=true", nil)
	req.Header.Set("Authorization", "Bearer "+env.sessionToken(t))
	w := httptest.NewRecorder()
	env.server.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !env.syncer.syncedOpts.Full {
		t.Error("full rescan not propagated")
	}
}

func TestHandleSyncMailboxErrors(t *testing.T) {
	for _, kind := range []error{imap.ErrConnection, imap.ErrMailbox, imap.ErrFetch} {
		env := newTestEnv(t)
		env.syncer.err = fmt.Errorf("%w: boom", kind)

		req := httptest.NewRequest("POST", "/api/v1/sync", nil)
		req.Header.Set("Authorization", "Bearer "+env.sessionToken(t))
		w := httptest.NewRecorder()
		env.server.Router().ServeHTTP(w, req)

		if w.Code != http.StatusBadGateway {
			t.Errorf("%v: status = %d, want 502", kind, w.Code)
		}
	}
}

func TestHandleSyncStoreError(t *testing.T) {
	env := newTestEnv(t)
	env.syncer.err = fmt.Errorf("database locked")

	req := httptest.NewRequest("POST", "/api/v1/sync", nil)
	req.Header.Set("Authorization", "Bearer "+env.sessionToken(t))
	w := httptest.NewRecorder()
	env.server.Router().ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

func TestHandleSyncUnknownUser(t *testing.T) {
	env := newTestEnv(t)
	token := env.sessionToken(t)
	delete(env.users.users, 1)

	req := httptest.NewRequest("POST", "/api/v1/sync", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	env.server.Router().ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestHandleListEmails(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest("GET", "/api/v1/emails?page=2&page_size=5&q=deals", nil)
	req.Header.Set("Authorization", "Bearer "+env.sessionToken(t))
	w := httptest.NewRecorder()
	env.server.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}

	want := []interface{}{int64(1), 2, 5, "deals"}
	for i, arg := range env.syncer.listArgs {
		if arg != want[i] {
			t.Errorf("list arg %d = %v, want %v", i, arg, want[i])
		}
	}

	var resp EmailListResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Emails) != 1 {
		t.Fatalf("emails = %d, want 1", len(resp.Emails))
	}
	if resp.Emails[0].From != "a@x" {
		t.Errorf("from = %q", resp.Emails[0].From)
	}
	if resp.Emails[0].Date != "2025-05-01T09:00:00Z" {
		t.Errorf("date = %q", resp.Emails[0].Date)
	}
	if resp.TotalPages != 1 {
		t.Errorf("total_pages = %d, want 1", resp.TotalPages)
	}
}

func TestHandleMe(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest("GET", "/api/v1/me", nil)
	req.Header.Set("Authorization", "Bearer "+env.sessionToken(t))
	w := httptest.NewRecorder()
	env.server.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["email"] != "user@example.com" {
		t.Errorf("email = %v", resp["email"])
	}
}
