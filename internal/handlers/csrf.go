package handlers

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"sync"
	"time"
)

const (
	csrfCookieName = "csrf_token"
	csrfHeaderName = "X-CSRF-Token"
	csrfTokenLen   = 32
	csrfMaxAge     = 12 * time.Hour
)

// csrfManager handles CSRF token generation and validation
type csrfManager struct {
	mu     sync.RWMutex
	tokens map[string]time.Time // token -> expiry
}

var csrf = &csrfManager{
	tokens: make(map[string]time.Time),
}

// generateToken creates a new cryptographically secure CSRF token
func (m *csrfManager) generateToken() (string, error) {
	bytes := make([]byte, csrfTokenLen)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	token := base64.URLEncoding.EncodeToString(bytes)

	m.mu.Lock()
	m.tokens[token] = time.Now().Add(csrfMaxAge)
	m.mu.Unlock()

	return token, nil
}

// validateToken checks if a token is known and not expired
func (m *csrfManager) validateToken(token string) bool {
	if token == "" {
		return false
	}

	m.mu.RLock()
	expiry, exists := m.tokens[token]
	m.mu.RUnlock()

	return exists && time.Now().Before(expiry)
}

// cleanup removes expired tokens
func (m *csrfManager) cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for token, expiry := range m.tokens {
		if now.After(expiry) {
			delete(m.tokens, token)
		}
	}
}

// CSRFToken handles GET /api/csrf. It reuses a valid token from the cookie
// or issues a new one.
func (h *Handler) CSRFToken(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(csrfCookieName); err == nil && csrf.validateToken(cookie.Value) {
		writeJSON(w, http.StatusOK, map[string]string{"token": cookie.Value})
		return
	}

	token, err := csrf.generateToken()
	if err != nil {
		writeError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(csrfMaxAge.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// requireCSRF validates CSRF and writes an error response if invalid.
// Returns true if valid, false if invalid (response already written).
func (h *Handler) requireCSRF(w http.ResponseWriter, r *http.Request) bool {
	if h.validateCSRF(r) {
		return true
	}
	writeJSON(w, http.StatusForbidden, errorResponse{Error: "invalid CSRF token"})
	return false
}

// validateCSRF checks that the header token matches the cookie on
// state-changing requests
func (h *Handler) validateCSRF(r *http.Request) bool {
	// Desktop mode only accepts local connections
	if h.disableCSRF {
		return true
	}

	if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
		return true
	}

	cookie, err := r.Cookie(csrfCookieName)
	if err != nil {
		return false
	}
	header := r.Header.Get(csrfHeaderName)

	return subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(header)) == 1 && csrf.validateToken(header)
}

// StartCSRFCleanup periodically removes expired tokens until ctx is done
func StartCSRFCleanup(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				csrf.cleanup()
			}
		}
	}()
}
