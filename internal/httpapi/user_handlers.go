package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"culturetrail.org/internal/audit"
	"culturetrail.org/internal/auth"
)

type meResponse struct {
	ID    string   `json:"id"`
	Email string   `json:"email"`
	Roles []string `json:"roles"`
}

// handleMe returns the authenticated user's identity. The route sits behind
// requireUser, so a principal is always present here.
func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	principal, _ := auth.PrincipalFromContext(r.Context())

	user, err := a.store.Users(r.Context()).Find(r.Context(), principal.UserID)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "user not found")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, meResponse{
		ID:    user.ID,
		Email: user.Email,
		Roles: principal.Roles,
	})
}

// handleAdminUsers dispatches /v1/admin/users/{id}/... subroutes. Guarded by
// requireRoles(admin, editor).
func (a *API) handleAdminUsers(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/admin/users/")
	parts := strings.Split(rest, "/")
	if len(parts) == 2 && parts[1] == "revoke-sessions" && parts[0] != "" {
		a.handleRevokeSessions(w, r, parts[0])
		return
	}
	http.NotFound(w, r)
}

// handleRevokeSessions closes every live session of the target user ("log out
// everywhere"). Already-issued access tokens stay valid until expiry.
func (a *API) handleRevokeSessions(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if _, err := a.store.Users(r.Context()).Find(r.Context(), userID); err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "user not found")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	count, err := a.auth.RevokeAll(r.Context(), userID)
	if err != nil {
		a.handleAuthError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.revoke_all", map[string]any{
		"target_user_id": userID,
		"revoked":        count,
	})
	writeJSON(w, http.StatusOK, map[string]any{"revoked": count})
}
