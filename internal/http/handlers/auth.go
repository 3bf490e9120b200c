package handlers

import (
	"net/http"

	"github.com/wolfman30/hmpv-lab-platform/internal/auth"
	"github.com/wolfman30/hmpv-lab-platform/internal/http/middleware"
	"github.com/wolfman30/hmpv-lab-platform/pkg/logging"
)

// SessionProvider hands out session handles. Satisfied by *auth.Provider.
type SessionProvider interface {
	NewSession() *auth.Session
	Session(id string) *auth.Session
}

// AuthHandler serves login, registration and session endpoints.
type AuthHandler struct {
	provider SessionProvider
	logger   *logging.Logger
}

func NewAuthHandler(provider SessionProvider, logger *logging.Logger) *AuthHandler {
	if provider == nil {
		panic("handlers: session provider required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AuthHandler{provider: provider, logger: logger}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SessionResponse carries the bearer token and signed-in user.
type SessionResponse struct {
	Token     string    `json:"token,omitempty"`
	SessionID string    `json:"sessionId"`
	User      auth.User `json:"user"`
}

// POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	sess := h.provider.NewSession()
	user, err := sess.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, SessionResponse{Token: sess.Token(), SessionID: sess.ID(), User: *user})
}

// POST /auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	sess := h.provider.NewSession()
	user, err := sess.Register(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, SessionResponse{Token: sess.Token(), SessionID: sess.ID(), User: *user})
}

// GET /auth/session
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	sess := h.provider.Session(claims.SessionID)
	user, err := sess.Restore(r.Context())
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, SessionResponse{SessionID: sess.ID(), User: *user})
}

// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	if err := h.provider.Session(claims.SessionID).Logout(r.Context()); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
