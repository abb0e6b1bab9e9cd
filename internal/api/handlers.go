package api

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/pvolkov/mailmirror/internal/database"
	"github.com/pvolkov/mailmirror/internal/imap"
	mailsync "github.com/pvolkov/mailmirror/internal/sync"
	"github.com/pvolkov/mailmirror/pkg/models"
)

const stateCookie = "mailmirror_oauth_state"

// ErrorResponse represents an API error
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// SyncResponse reports the outcome of a sync run
type SyncResponse struct {
	InsertedCount int64 `json:"inserted_count"`
	Fetched       int   `json:"fetched"`
	Skipped       int64 `json:"skipped"`
	Dropped       int   `json:"dropped"`
}

// EmailSummary represents one metadata record in list responses
type EmailSummary struct {
	ID        int64  `json:"id"`
	MessageID string `json:"message_id"`
	From      string `json:"from"`
	Subject   string `json:"subject"`
	Date      string `json:"date"`
}

// EmailListResponse is one page of metadata records
type EmailListResponse struct {
	Emails     []EmailSummary `json:"emails"`
	Page       int            `json:"page"`
	PageSize   int            `json:"page_size"`
	TotalPages int            `json:"total_pages"`
	Total      int64          `json:"total"`
}

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response
func writeError(w http.ResponseWriter, status int, err string, message string) {
	writeJSON(w, status, ErrorResponse{Error: err, Message: message})
}

// handleLogin redirects to the OAuth consent page
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		s.logger.Error("failed to generate state", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to start login")
		return
	}
	state := hex.EncodeToString(buf)

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/auth",
		MaxAge:   int((10 * time.Minute).Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, s.oauth.AuthCodeURL(state), http.StatusFound)
}

// handleCallback finishes the OAuth flow: code exchange, profile lookup,
// account upsert, session token issue
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	cookie, err := r.Cookie(stateCookie)
	if err != nil || cookie.Value == "" || cookie.Value != r.URL.Query().Get("state") {
		writeError(w, http.StatusBadRequest, "invalid_state", "OAuth state mismatch")
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "missing_code", "Authorization code is required")
		return
	}

	token, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		s.logger.Error("code exchange failed", "error", err)
		writeError(w, http.StatusBadGateway, "oauth_error", "Failed to exchange authorization code")
		return
	}

	profile, err := s.oauth.Userinfo(ctx, token)
	if err != nil {
		s.logger.Error("userinfo fetch failed", "error", err)
		writeError(w, http.StatusBadGateway, "oauth_error", "Failed to fetch account profile")
		return
	}

	user := &models.User{
		GoogleID:     profile.Sub,
		Email:        profile.Email,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenExpiry:  token.Expiry,
	}
	if err := s.users.UpsertUser(ctx, user); err != nil {
		s.logger.Error("failed to upsert user", "email", profile.Email, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to store account")
		return
	}

	session, err := s.tokens.Issue(user)
	if err != nil {
		s.logger.Error("failed to issue session token", "user_id", user.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to create session")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    session,
		Path:     "/",
		MaxAge:   int(s.cfg.JWTTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	s.logger.Info("user logged in", "user_id", user.ID, "email", user.Email)
	writeJSON(w, http.StatusOK, map[string]string{"token": session})
}

// handleSync refreshes the account credentials and runs one sync
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := claimsFromContext(ctx)

	user, err := s.users.GetUserByID(ctx, claims.UserID)
	if errors.Is(err, database.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "Account no longer exists")
		return
	}
	if err != nil {
		s.logger.Error("failed to load user", "user_id", claims.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to load account")
		return
	}

	token, err := s.oauth.Refresh(ctx, user.AccessToken, user.RefreshToken, user.TokenExpiry)
	if err != nil {
		s.logger.Error("token refresh failed", "user_id", user.ID, "error", err)
		writeError(w, http.StatusBadGateway, "oauth_error", "Failed to refresh mailbox credentials")
		return
	}
	if token.AccessToken != user.AccessToken {
		if err := s.users.UpdateUserTokens(ctx, user.ID, token.AccessToken, token.RefreshToken, token.Expiry); err != nil {
			s.logger.Warn("failed to persist refreshed tokens", "user_id", user.ID, "error", err)
		}
	}

	full, _ := strconv.ParseBool(r.URL.Query().Get("full"))
	creds := mailsync.Credentials{Identity: user.Email, BearerToken: token.AccessToken}

	result, err := s.sync.SyncAccount(ctx, user, creds, mailsync.Options{Full: full})
	if err != nil {
		s.logger.Error("sync failed", "user_id", user.ID, "error", err)
		switch {
		case errors.Is(err, imap.ErrConnection), errors.Is(err, imap.ErrMailbox), errors.Is(err, imap.ErrFetch):
			writeError(w, http.StatusBadGateway, "mailbox_error", "Failed to read remote mailbox")
		default:
			writeError(w, http.StatusInternalServerError, "internal_error", "Failed to store mailbox metadata")
		}
		return
	}

	writeJSON(w, http.StatusOK, SyncResponse{
		InsertedCount: result.Inserted,
		Fetched:       result.Fetched,
		Skipped:       result.Skipped,
		Dropped:       result.Dropped,
	})
}

// handleListEmails returns a paginated, searchable page of metadata
func (s *Server) handleListEmails(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := claimsFromContext(ctx)

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	search := r.URL.Query().Get("q")

	result, err := s.sync.ListEmails(ctx, claims.UserID, page, pageSize, search)
	if err != nil {
		s.logger.Error("failed to list emails", "user_id", claims.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to retrieve emails")
		return
	}

	summaries := make([]EmailSummary, len(result.Emails))
	for i, rec := range result.Emails {
		summaries[i] = EmailSummary{
			ID:        rec.ID,
			MessageID: rec.MessageID,
			From:      rec.FromAddr,
			Subject:   rec.Subject,
			Date:      rec.Date.UTC().Format(time.RFC3339),
		}
	}

	writeJSON(w, http.StatusOK, EmailListResponse{
		Emails:     summaries,
		Page:       result.Page,
		PageSize:   result.PageSize,
		TotalPages: result.TotalPages,
		Total:      result.Total,
	})
}

// handleMe returns the authenticated account
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := claimsFromContext(ctx)

	user, err := s.users.GetUserByID(ctx, claims.UserID)
	if errors.Is(err, database.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "Account no longer exists")
		return
	}
	if err != nil {
		s.logger.Error("failed to load user", "user_id", claims.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to load account")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":    user.ID,
		"email": user.Email,
	})
}
