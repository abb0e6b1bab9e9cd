package api

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/pvolkov/mailmirror/internal/auth"
	"github.com/pvolkov/mailmirror/internal/config"
	"github.com/pvolkov/mailmirror/internal/database"
	mailsync "github.com/pvolkov/mailmirror/internal/sync"
	"github.com/pvolkov/mailmirror/pkg/models"
)

type mockUserStore struct {
	users      map[int64]*models.User
	upsertErr  error
	tokenCalls int
}

func (m *mockUserStore) UpsertUser(_ context.Context, user *models.User) error {
	if m.upsertErr != nil {
		return m.upsertErr
	}
	if user.ID == 0 {
		user.ID = int64(len(m.users) + 1)
	}
	m.users[user.ID] = user
	return nil
}

func (m *mockUserStore) GetUserByID(_ context.Context, id int64) (*models.User, error) {
	user, ok := m.users[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return user, nil
}

func (m *mockUserStore) UpdateUserTokens(_ context.Context, id int64, accessToken, refreshToken string, expiry time.Time) error {
	m.tokenCalls++
	if user, ok := m.users[id]; ok {
		user.AccessToken = accessToken
		if refreshToken != "" {
			user.RefreshToken = refreshToken
		}
		user.TokenExpiry = expiry
	}
	return nil
}

type mockSyncer struct {
	result *mailsync.Result
	page   *mailsync.Page
	err    error

	syncedCreds mailsync.Credentials
	syncedOpts  mailsync.Options
	listArgs    []interface{}
}

func (m *mockSyncer) SyncAccount(_ context.Context, user *models.User, creds mailsync.Credentials, opts mailsync.Options) (*mailsync.Result, error) {
	m.syncedCreds = creds
	m.syncedOpts = opts
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

func (m *mockSyncer) ListEmails(_ context.Context, userID int64, page, pageSize int, search string) (*mailsync.Page, error) {
	m.listArgs = []interface{}{userID, page, pageSize, search}
	if m.err != nil {
		return nil, m.err
	}
	return m.page, nil
}

type mockOAuth struct {
	token   *oauth2.Token
	profile *auth.Profile
	err     error
}

func (m *mockOAuth) AuthCodeURL(state string) string {
	return "https://accounts.example.com/auth?state=" + state
}

func (m *mockOAuth) Exchange(_ context.Context, code string) (*oauth2.Token, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.token, nil
}

func (m *mockOAuth) Userinfo(_ context.Context, _ *oauth2.Token) (*auth.Profile, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.profile, nil
}

func (m *mockOAuth) Refresh(_ context.Context, accessToken, refreshToken string, expiry time.Time) (*oauth2.Token, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.token, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const testSecret = "0123456789abcdef0123456789abcdef"

type testEnv struct {
	server *Server
	users  *mockUserStore
	syncer *mockSyncer
	oauth  *mockOAuth
	tokens *auth.TokenIssuer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	users := &mockUserStore{users: map[int64]*models.User{
		1: {
			ID:           1,
			GoogleID:     "sub-1",
			Email:        "user@example.com",
			AccessToken:  "stored-access",
			RefreshToken: "stored-refresh",
			TokenExpiry:  time.Now().Add(time.Hour),
		},
	}}

	syncer := &mockSyncer{
		result: &mailsync.Result{Fetched: 5, Inserted: 3, Skipped: 2},
		page: &mailsync.Page{
			Emails: []*models.EmailMetadata{
				{ID: 1, UserID: 1, MessageID: "m1", FromAddr: "a@x", Subject: "one", Date: time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)},
			},
			Page:       1,
			PageSize:   10,
			TotalPages: 1,
			Total:      1,
		},
	}

	oauthMock := &mockOAuth{
		token: &oauth2.Token{
			AccessToken:  "fresh-access",
			RefreshToken: "stored-refresh",
			Expiry:       time.Now().Add(time.Hour),
		},
		profile: &auth.Profile{Sub: "sub-1", Email: "user@example.com"},
	}

	tokens := auth.NewTokenIssuer(testSecret, time.Hour)

	cfg := &config.Config{
		HTTPAddr: ":0",
		JWTTTL:   time.Hour,
	}

	server := NewServer(ServerDeps{
		Config: cfg,
		Users:  users,
		Sync:   syncer,
		OAuth:  oauthMock,
		Tokens: tokens,
		Logger: testLogger(),
	})

	return &testEnv{server: server, users: users, syncer: syncer, oauth: oauthMock, tokens: tokens}
}

func (e *testEnv) sessionToken(t *testing.T) string {
	t.Helper()
	raw, err := e.tokens.Issue(e.users.users[1])
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	return raw
}
