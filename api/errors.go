package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/tokengate/tokengate/store"
	"github.com/tokengate/tokengate/users"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// mapStoreError translates token store errors to HTTP statuses: business
// blocks are forbidden (with a Retry-After hint), a missing backend is an
// internal fault, and anything else is an exhausted-failover infrastructure
// error reported as service-unavailable.
func mapStoreError(w http.ResponseWriter, err error) int {
	var blocked *store.BlockedError
	switch {
	case errors.As(err, &blocked):
		w.Header().Set("Retry-After", strconv.Itoa(blocked.RetrySeconds()))
		writeError(w, http.StatusForbidden, blocked.Error())
		return http.StatusForbidden
	case errors.Is(err, store.ErrNoBackend):
		writeError(w, http.StatusInternalServerError, "no token store backend available")
		return http.StatusInternalServerError
	default:
		writeError(w, http.StatusServiceUnavailable, "token store is temporarily unavailable, try again later")
		return http.StatusServiceUnavailable
	}
}

// mapDirectoryError translates user directory errors: unknown users get a
// deliberately unspecific not-found, infrastructure failures map to
// service-unavailable so clients know to retry.
func mapDirectoryError(w http.ResponseWriter, err error) int {
	if errors.Is(err, users.ErrNotFound) {
		writeError(w, http.StatusNotFound, "user not found or key mismatch")
		return http.StatusNotFound
	}
	writeError(w, http.StatusServiceUnavailable, "the service is temporarily unavailable, try again later")
	return http.StatusServiceUnavailable
}
