package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// maxIssueBodySize caps how much of the issue request body the limiter
// reads for identity resolution.
const maxIssueBodySize = 4 << 10

type contextKey int

const identityKey contextKey = iota

// ContextWithIdentity attaches a resolved user identity to the request
// context. Upstream middleware can use it to pre-resolve identity; the rate
// limiter honors it before looking at the body or token.
func ContextWithIdentity(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, identityKey, userID)
}

func identityFromContext(ctx context.Context) string {
	id, _ := ctx.Value(identityKey).(string)
	return id
}

// intervalLimiter enforces a minimum interval between consecutive requests
// attributable to the same user. The single lock makes the compare-and-set
// per key atomic, so two near-simultaneous requests from one user cannot
// both pass.
type intervalLimiter struct {
	mu       sync.Mutex
	lastSeen map[string]time.Time
}

func newIntervalLimiter() *intervalLimiter {
	return &intervalLimiter{lastSeen: make(map[string]time.Time)}
}

// allow checks and updates the last-seen timestamp for key. When the
// interval has not elapsed, it reports the remaining wait and leaves the
// timestamp untouched.
func (l *intervalLimiter) allow(key string, interval time.Duration) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if last, ok := l.lastSeen[key]; ok {
		if elapsed := now.Sub(last); elapsed < interval {
			return false, interval - elapsed
		}
	}
	l.lastSeen[key] = now
	return true, 0
}

// identityResolver extracts the user identity a request should be limited
// under. It may return a replacement request (e.g. with a restored body).
// An empty identity means the request passes through ungated.
type identityResolver func(a *API, r *http.Request) (string, *http.Request)

// identityFromBody resolves the userId field of a JSON body, restoring the
// body so downstream handlers can decode it again.
func identityFromBody(a *API, r *http.Request) (string, *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxIssueBodySize))
	if err != nil {
		return "", r
	}
	r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))

	var probe struct {
		UserID string `json:"userId"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return "", r
	}
	return probe.UserID, r
}

// identityFromToken resolves the presented bearer token's owner through the
// store. Unresolvable tokens leave the request ungated; the handler still
// rejects them on its own terms.
func identityFromToken(a *API, r *http.Request) (string, *http.Request) {
	token := bearerToken(r)
	if token == "" {
		return "", r
	}
	owner, err := a.tokens.OwnerOf(r.Context(), token)
	if err != nil || !isUUID(owner) {
		return "", r
	}
	return owner, r
}

// rateLimit builds a per-endpoint middleware enforcing the given minimum
// interval per resolved identity. Each endpoint gets its own limiter state,
// so hitting one endpoint never throttles another. Identity order: explicit
// context value, then the endpoint's own resolver. Requests without identity
// pass through.
func (a *API) rateLimit(interval time.Duration, resolve identityResolver) func(http.Handler) http.Handler {
	limiter := newIntervalLimiter()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := identityFromContext(r.Context())
			if userID == "" {
				userID, r = resolve(a, r)
			}
			if userID == "" {
				next.ServeHTTP(w, r)
				return
			}

			r = r.WithContext(ContextWithIdentity(r.Context(), userID))
			if ok, wait := limiter.allow(userID, interval); !ok {
				secs := retrySeconds(wait)
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				a.audit.rejected(AuditRateLimited, r, http.StatusTooManyRequests, userID)
				writeError(w, http.StatusTooManyRequests,
					"too many requests, try again in "+strconv.Itoa(secs)+"s")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// retrySeconds rounds a wait up to whole seconds, minimum one.
func retrySeconds(d time.Duration) int {
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}
