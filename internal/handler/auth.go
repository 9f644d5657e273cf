package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	appI18n "github.com/pavelanni/ieltsprep/internal/i18n"
	"github.com/pavelanni/ieltsprep/internal/model"
)

const sessionCookieName = "session"

// requireAuth resolves the session cookie or bearer token to a user.
func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := sessionToken(r)
		if token == "" {
			writeError(w, r, model.ErrNoUser)
			return
		}

		authSess, err := h.deps.Sessions.GetAuthSession(r.Context(), token)
		if err != nil {
			slog.Error("failed to get auth session", "error", err)
			writeError(w, r, err)
			return
		}
		if authSess == nil {
			writeError(w, r, model.ErrNoUser)
			return
		}

		user, err := h.deps.Users.GetUser(r.Context(), authSess.UserID)
		if err != nil {
			if errors.Is(err, model.ErrNotFound) {
				err = model.ErrNoUser
			}
			writeError(w, r, err)
			return
		}

		ctx := model.ContextWithUser(r.Context(), user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func sessionToken(r *http.Request) string {
	if cookie, err := r.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	if auth, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(auth)
	}
	return ""
}

// requireRole returns middleware that checks the user has one of the allowed roles.
func requireRole(allowed ...model.UserRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := model.UserFromContext(r.Context())
			if user == nil {
				writeError(w, r, model.ErrNoUser)
				return
			}
			for _, role := range allowed {
				if user.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeStatus(w, r, http.StatusForbidden, "ErrForbidden")
		})
	}
}

type loginRequest struct {
	Email string `json:"email"`
}

type loginResponse struct {
	Token string     `json:"token"`
	User  model.User `json:"user"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Email) == "" {
		writeError(w, r, model.Invalid("email is required"))
		return
	}

	user, err := h.deps.Users.FindByEmail(r.Context(), req.Email)
	if errors.Is(err, model.ErrNotFound) {
		writeStatus(w, r, http.StatusUnauthorized, "ErrUnknownEmail")
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.deps.Users.SaveUser(r.Context(), *user); err != nil {
		writeError(w, r, err)
		return
	}

	token, err := h.deps.Sessions.CreateAuthSession(r.Context(), user.ID)
	if err != nil {
		slog.Error("failed to create auth session", "error", err)
		writeError(w, r, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     h.cookiePath(),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   h.config.SecureCookies,
	})
	slog.Info("user logged in", "user", user.ID)
	writeJSON(w, http.StatusOK, loginResponse{Token: token, User: *user})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if token := sessionToken(r); token != "" {
		if err := h.deps.Sessions.DeleteAuthSession(r.Context(), token); err != nil {
			slog.Warn("failed to delete auth session", "error", err)
		}
	}
	if user := model.UserFromContext(r.Context()); user != nil {
		h.workspaces.drop(user.ID)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     h.cookiePath(),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.SecureCookies,
	})
	writeJSON(w, http.StatusOK, map[string]string{"message": appI18n.T(r.Context(), "LoggedOut")})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, model.UserFromContext(r.Context()))
}
