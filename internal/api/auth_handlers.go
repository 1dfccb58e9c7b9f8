package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/igorgomez/medidascorporais/internal/auth"
	"github.com/igorgomez/medidascorporais/internal/identity"
)

func (h *Handler) signUp(w http.ResponseWriter, r *http.Request) {
	var creds identity.Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	session, err := h.identity.SignUp(r.Context(), creds)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, identity.ErrEmailTaken) {
			status = http.StatusConflict
		}
		writeError(w, status, "account_creation_failed", identity.Message(err))
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (h *Handler) signIn(w http.ResponseWriter, r *http.Request) {
	var creds identity.Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	session, err := h.identity.SignIn(r.Context(), creds)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid_credentials", identity.Message(err))
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *Handler) signOut(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if err := h.identity.SignOut(r.Context(), claims); err != nil {
		writeError(w, http.StatusInternalServerError, "sign_out_failed", identity.Message(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	user, err := h.identity.CurrentUser(r.Context(), claims)
	if err != nil {
		if errors.Is(err, identity.ErrAccountNotFound) {
			writeError(w, http.StatusUnauthorized, "unauthorized", identity.Message(err))
			return
		}
		h.logger.Error("resolve current user", zap.String("user_id", claims.Subject), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "server_error", identity.Message(err))
		return
	}
	writeJSON(w, http.StatusOK, user)
}
