// Package api provides the HTTP request layer over the sync and read paths.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/oauth2"

	"github.com/pvolkov/mailmirror/internal/auth"
	"github.com/pvolkov/mailmirror/internal/config"
	mailsync "github.com/pvolkov/mailmirror/internal/sync"
	"github.com/pvolkov/mailmirror/pkg/models"
)

// UserStore defines the account operations the API needs
type UserStore interface {
	UpsertUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	UpdateUserTokens(ctx context.Context, id int64, accessToken, refreshToken string, expiry time.Time) error
}

// Syncer defines the reconciler operations the API needs
type Syncer interface {
	SyncAccount(ctx context.Context, user *models.User, creds mailsync.Credentials, opts mailsync.Options) (*mailsync.Result, error)
	ListEmails(ctx context.Context, userID int64, page, pageSize int, search string) (*mailsync.Page, error)
}

// OAuthProvider defines the credential-source operations the API needs
type OAuthProvider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	Userinfo(ctx context.Context, token *oauth2.Token) (*auth.Profile, error)
	Refresh(ctx context.Context, accessToken, refreshToken string, expiry time.Time) (*oauth2.Token, error)
}

// Server is the HTTP API server
type Server struct {
	cfg    *config.Config
	users  UserStore
	sync   Syncer
	oauth  OAuthProvider
	tokens *auth.TokenIssuer
	logger *slog.Logger
	router chi.Router
	server *http.Server
}

// ServerDeps dependencies for creating a server
type ServerDeps struct {
	Config *config.Config
	Users  UserStore
	Sync   Syncer
	OAuth  OAuthProvider
	Tokens *auth.TokenIssuer
	Logger *slog.Logger
}

// NewServer creates a new API server
func NewServer(deps ServerDeps) *Server {
	s := &Server{
		cfg:    deps.Config,
		users:  deps.Users,
		sync:   deps.Sync,
		oauth:  deps.OAuth,
		tokens: deps.Tokens,
		logger: deps.Logger.With("component", "api"),
	}
	s.router = s.setupRouter()
	return s
}

// setupRouter configures the chi router with all routes and middleware
func (s *Server) setupRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(s.loggerMiddleware)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))

	r.Get("/health", s.handleHealth)

	r.Get("/auth/login", s.handleLogin)
	r.Get("/auth/callback", s.handleCallback)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Post("/sync", s.handleSync)
		r.Get("/emails", s.handleListEmails)
		r.Get("/me", s.handleMe)
	})

	return r
}

// Start begins listening for HTTP requests
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.HTTPAddr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.logger.Info("starting API server", "addr", s.cfg.HTTPAddr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	s.logger.Info("shutting down API server")
	return s.server.Shutdown(ctx)
}

// Router returns the chi router for testing
func (s *Server) Router() chi.Router {
	return s.router
}

// loggerMiddleware logs HTTP requests
func (s *Server) loggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			s.logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"request_id", chimw.GetReqID(r.Context()),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

// handleHealth returns a simple health check response
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
