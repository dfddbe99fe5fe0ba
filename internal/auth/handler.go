package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/cascadeprojects/crm221/internal/platform/httpx"
)

const (
	msgInvalidCredentials = "Invalid credentials. Only authorized users can access this system."
	msgProviderFailed     = "Failed to login with %s. Only authorized users can access this system."
)

// Handler wires HTTP endpoints for the session lifecycle. Requests must pass
// through Sessions.Middleware first.
type Handler struct {
	logger    *slog.Logger
	sessions  *Sessions
	oauth     OAuthConfig
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, sessions *Sessions, oauth OAuthConfig) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		sessions:  sessions,
		oauth:     oauth,
		validator: validator.New(),
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
	r.Get("/session", h.showSession)
	r.Post("/provider/{provider}", h.handleProvider)
	r.Get("/provider/{provider}/url", h.providerURL)
}

type loginForm struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type sessionView struct {
	Status    string     `json:"status"`
	User      *Identity  `json:"user,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func (h *Handler) manager(w http.ResponseWriter, r *http.Request) *Manager {
	m := ManagerFromContext(r.Context())
	if m == nil {
		h.logger.Error("session manager missing from request")
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
	return m
}

func (h *Handler) decodeLogin(r *http.Request) (loginForm, error) {
	var form loginForm
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/json" {
		if err := httpx.DecodeJSON(r, &form); err != nil {
			return form, fmt.Errorf("%w: %v", httpx.ErrValidation, err)
		}
	} else {
		if err := r.ParseForm(); err != nil {
			return form, fmt.Errorf("%w: %v", httpx.ErrValidation, err)
		}
		form.Email = r.PostFormValue("email")
		form.Password = r.PostFormValue("password")
	}
	form.Email = NormalizeEmail(form.Email)
	if err := h.validator.Struct(form); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return form, fmt.Errorf("%w: %s failed %s", httpx.ErrValidation, fieldErrs[0].Field(), fieldErrs[0].Tag())
		}
		return form, fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	}
	return form, nil
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	m := h.manager(w, r)
	if m == nil {
		return
	}
	form, err := h.decodeLogin(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	sess, err := m.SignIn(r.Context(), form.Email, form.Password)
	h.respondSignIn(w, m, sess, err, msgInvalidCredentials)
}

func (h *Handler) handleProvider(w http.ResponseWriter, r *http.Request) {
	m := h.manager(w, r)
	if m == nil {
		return
	}
	provider := chi.URLParam(r, "provider")
	sess, err := m.SignInWithProvider(r.Context(), provider)
	h.respondSignIn(w, m, sess, err, fmt.Sprintf(msgProviderFailed, provider))
}

func (h *Handler) respondSignIn(w http.ResponseWriter, m *Manager, sess *Session, err error, denied string) {
	switch {
	case err == nil:
		h.sessions.WriteCookie(w, m.Key())
		httpx.JSON(w, http.StatusOK, sess)
	case errors.Is(err, ErrUnauthorized):
		httpx.Problem(w, http.StatusUnauthorized, "Access Denied", denied)
	case errors.Is(err, ErrSessionActive):
		httpx.Problem(w, http.StatusConflict, "Session Active", "sign out before signing in again")
	default:
		h.logger.Error("sign in", slog.Any("error", err))
		httpx.Problem(w, http.StatusServiceUnavailable, "Session Unavailable", "session storage unavailable")
	}
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	m := h.manager(w, r)
	if m == nil {
		return
	}
	m.SignOut(r.Context())
	h.sessions.ClearCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) showSession(w http.ResponseWriter, r *http.Request) {
	m := h.manager(w, r)
	if m == nil {
		return
	}
	view := sessionView{Status: m.Status().String()}
	if sess := m.Session(); sess != nil {
		view.User = sess.User
		view.ExpiresAt = &sess.ExpiresAt
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) providerURL(w http.ResponseWriter, r *http.Request) {
	u, err := h.oauth.ProviderAuthURL(chi.URLParam(r, "provider"), uuid.NewString())
	if err != nil {
		httpx.Problem(w, http.StatusNotFound, "Unknown Provider", err.Error())
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"url": u})
}
