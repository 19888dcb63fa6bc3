package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// Issue handles POST /v1/tokens/issue. The caller authenticates with a
// (userId, key) pair; a fresh opaque token is stored through the failover
// delegator and returned.
func (a *API) Issue(w http.ResponseWriter, r *http.Request) {
	var req IssueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.audit.rejected(AuditIssueRejected, r, http.StatusBadRequest, "")
		writeError(w, http.StatusBadRequest, "request body must contain userId and key")
		return
	}
	if req.UserID == uuid.Nil || req.Key == uuid.Nil {
		a.audit.rejected(AuditIssueRejected, r, http.StatusBadRequest, req.UserID.String())
		writeError(w, http.StatusBadRequest, "userId and key are required")
		return
	}

	key, err := a.dir.Key(r.Context(), req.UserID)
	if err != nil {
		status := mapDirectoryError(w, err)
		a.audit.rejected(AuditIssueRejected, r, status, req.UserID.String())
		return
	}
	if key != req.Key {
		// Same response as an unknown user so callers cannot probe which
		// user ids exist.
		a.audit.rejected(AuditIssueRejected, r, http.StatusNotFound, req.UserID.String())
		writeError(w, http.StatusNotFound, "user not found or key mismatch")
		return
	}

	token := uuid.NewString()
	if err := a.tokens.SaveToken(r.Context(), token, req.UserID); err != nil {
		status := mapStoreError(w, err)
		a.audit.rejected(AuditIssueRejected, r, status, req.UserID.String())
		return
	}

	a.audit.success(AuditTokenIssued, r, req.UserID.String(), maskToken(token))
	writeJSON(w, http.StatusCreated, IssueResponse{AccessToken: token})
}

// Validate handles GET /v1/tokens/validate. The token comes from the
// Authorization header; absence from the store is indistinguishable from
// expiry or revocation.
func (a *API) Validate(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if !isUUID(token) {
		a.audit.rejected(AuditTokenInvalid, r, http.StatusBadRequest, "")
		writeError(w, http.StatusBadRequest, "token format is wrong")
		return
	}

	valid, err := a.tokens.IsValid(r.Context(), token)
	if err != nil {
		status := mapStoreError(w, err)
		a.audit.rejected(AuditStoreDegraded, r, status, identityFromContext(r.Context()))
		return
	}
	if !valid {
		a.audit.rejected(AuditTokenInvalid, r, http.StatusUnauthorized, identityFromContext(r.Context()))
		writeError(w, http.StatusUnauthorized, "token is invalid")
		return
	}

	a.audit.success(AuditTokenValid, r, identityFromContext(r.Context()), maskToken(token))
	w.WriteHeader(http.StatusNoContent)
}

// Revoke handles DELETE /v1/tokens/revoke. The token must currently be
// valid; revoking it removes it from the store and its owner's index.
func (a *API) Revoke(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if !isUUID(token) {
		a.audit.rejected(AuditTokenInvalid, r, http.StatusBadRequest, "")
		writeError(w, http.StatusBadRequest, "token format is wrong")
		return
	}

	valid, err := a.tokens.IsValid(r.Context(), token)
	if err != nil {
		status := mapStoreError(w, err)
		a.audit.rejected(AuditStoreDegraded, r, status, "")
		return
	}
	if !valid {
		a.audit.rejected(AuditTokenInvalid, r, http.StatusUnauthorized, "")
		writeError(w, http.StatusUnauthorized, "token is invalid")
		return
	}

	owner, _ := a.tokens.OwnerOf(r.Context(), token)
	removed, err := a.tokens.Revoke(r.Context(), token)
	if err != nil {
		status := mapStoreError(w, err)
		a.audit.rejected(AuditStoreDegraded, r, status, owner)
		return
	}
	if !removed {
		// Valid a moment ago but gone now: lost a race with expiry or a
		// concurrent revoke.
		a.audit.rejected(AuditTokenInvalid, r, http.StatusInternalServerError, owner)
		writeError(w, http.StatusInternalServerError, "the token could not be revoked, try again later")
		return
	}

	a.audit.success(AuditTokenRevoked, r, owner, maskToken(token))
	w.WriteHeader(http.StatusNoContent)
}

// bearerToken extracts the token from an "Authorization: Bearer x" header.
func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

func isUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
