// Package webui implements the assistant's web chat interface.
// Serves a static SPA frontend with a JSON API backend.
package webui

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// AssistantAPI defines the interface the web UI uses to access assistant
// state. This avoids a direct dependency on the assistant package.
type AssistantAPI interface {
	// WebChat runs a web conversation turn and returns the reply.
	WebChat(ctx context.Context, message string, history []ChatTurn) (string, error)

	// MessagingStatus returns the messaging link status and the pending
	// pairing code, if any.
	MessagingStatus() (status string, pairingCode string)

	// DisconnectMessaging unlinks the messaging session.
	DisconnectMessaging(ctx context.Context) error

	// Mode returns the current operating mode.
	Mode() string

	// SetMode switches the operating mode.
	SetMode(mode string) error

	// Restart tears down and re-establishes the messaging connection.
	Restart()
}

// ChatTurn is a single prior turn of a web conversation.
type ChatTurn struct {
	Role string `json:"role"` // "user" or "model"
	Text string `json:"text"`
}

// Config holds web UI configuration.
type Config struct {
	// Enabled turns the web UI on/off.
	Enabled bool `yaml:"enabled"`

	// Address is the listen address (default: ":3001").
	Address string `yaml:"address"`

	// AuthToken is the Bearer token for authentication (empty = no auth).
	AuthToken string `yaml:"auth_token"`

	// StaticDir is the directory with the SPA frontend (optional).
	StaticDir string `yaml:"static_dir"`
}

// Server is the web UI HTTP server.
type Server struct {
	cfg    Config
	api    AssistantAPI
	logger *slog.Logger
	server *http.Server
}

// New creates a new web UI server.
func New(cfg Config, api AssistantAPI, logger *slog.Logger) *Server {
	if cfg.Address == "" {
		cfg.Address = ":3001"
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		cfg:    cfg,
		api:    api,
		logger: logger.With("component", "webui"),
	}
}

// Handler builds the HTTP handler. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/chat", s.authMiddleware(s.handleChat))
	mux.HandleFunc("/api/whatsapp/status", s.authMiddleware(s.handleStatus))
	mux.HandleFunc("/api/whatsapp/disconnect", s.authMiddleware(s.handleDisconnect))
	mux.HandleFunc("/api/settings", s.authMiddleware(s.handleSettings))
	mux.HandleFunc("/api/restart", s.authMiddleware(s.handleRestart))

	if s.cfg.StaticDir != "" {
		if _, err := os.Stat(s.cfg.StaticDir); err != nil {
			s.logger.Warn("static dir not found, serving API only", "dir", s.cfg.StaticDir)
		} else {
			mux.Handle("/", spaFileServer(s.cfg.StaticDir))
		}
	}

	return corsMiddleware(mux)
}

// Start begins serving the web UI.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.cfg.Address,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.logger.Info("web UI starting", "address", s.cfg.Address)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("web UI server error", "error", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the web UI server.
func (s *Server) Stop() {
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(ctx)
		s.logger.Info("web UI stopped")
	}
}

// ── Middleware ──

// authMiddleware validates the bearer token if configured.
func (s *Server) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.AuthToken == "" {
			next(w, r)
			return
		}

		token := extractToken(r)
		if !compareTokens(token, s.cfg.AuthToken) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
			return
		}

		next(w, r)
	}
}

// corsMiddleware adds CORS headers for frontend development servers.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// extractToken pulls the auth token from the request.
func extractToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	return ""
}

// compareTokens hashes both sides so comparison stays constant-time
// regardless of length.
func compareTokens(a, b string) bool {
	ha := sha256.Sum256([]byte(a))
	hb := sha256.Sum256([]byte(b))
	return subtle.ConstantTimeCompare(ha[:], hb[:]) == 1
}

// ── JSON helpers ──

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// spaFileServer serves static files with an index.html fallback for
// client-side routes.
func spaFileServer(dir string) http.Handler {
	fileServer := http.FileServer(http.Dir(dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := filepath.Join(dir, filepath.Clean(r.URL.Path))
		if info, err := os.Stat(path); err != nil || info.IsDir() {
			if r.URL.Path != "/" {
				http.ServeFile(w, r, filepath.Join(dir, "index.html"))
				return
			}
		}
		fileServer.ServeHTTP(w, r)
	})
}
