package dashboard

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	sessionCookieName = "wafwatch_session"
	sessionDuration   = 24 * time.Hour

	maxFailedAttempts = 5
	lockoutDuration   = 15 * time.Minute
)

type session struct {
	token     string
	createdAt time.Time
}

type attempts struct {
	failures    int
	lockedUntil time.Time
}

// Auth manages access-code authentication and session tokens for the dashboard.
type Auth struct {
	accessCode string
	sessions   map[string]session
	failures   map[string]*attempts
	now        func() time.Time
	mu         sync.RWMutex
}

// NewAuth generates a random 8-digit access code and returns a new Auth instance.
func NewAuth() *Auth {
	return &Auth{
		accessCode: generateAccessCode(),
		sessions:   make(map[string]session),
		failures:   make(map[string]*attempts),
		now:        time.Now,
	}
}

// AccessCode returns the code the user must enter to authenticate.
func (a *Auth) AccessCode() string {
	return a.accessCode
}

// ValidateCode checks if the provided code matches the access code.
func (a *Auth) ValidateCode(code string) bool {
	return code == a.accessCode
}

// CreateSession generates a session token and stores it.
func (a *Auth) CreateSession() string {
	token := generateSessionToken()
	a.mu.Lock()
	a.sessions[token] = session{token: token, createdAt: a.now()}
	a.mu.Unlock()
	return token
}

// ValidateSession checks if a session token is valid and not expired.
func (a *Auth) ValidateSession(token string) bool {
	a.mu.RLock()
	s, ok := a.sessions[token]
	a.mu.RUnlock()
	if !ok {
		return false
	}
	return a.now().Sub(s.createdAt) < sessionDuration
}

// InvalidateSession removes a session token.
func (a *Auth) InvalidateSession(token string) {
	a.mu.Lock()
	delete(a.sessions, token)
	a.mu.Unlock()
}

// CheckRateLimit reports whether ip may attempt a login, and if not, how
// long until the lockout expires.
func (a *Auth) CheckRateLimit(ip string) (bool, time.Duration) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	rec, ok := a.failures[ip]
	if !ok {
		return true, 0
	}
	if wait := rec.lockedUntil.Sub(a.now()); wait > 0 {
		return false, wait
	}
	return true, 0
}

// RecordFailure counts a failed login from ip. It returns the lockout
// duration when this failure triggers one, otherwise zero.
func (a *Auth) RecordFailure(ip string) time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	rec, ok := a.failures[ip]
	if !ok {
		rec = &attempts{}
		a.failures[ip] = rec
	}
	rec.failures++
	if rec.failures >= maxFailedAttempts {
		rec.failures = 0
		rec.lockedUntil = a.now().Add(lockoutDuration)
		return lockoutDuration
	}
	return 0
}

// RecordSuccess forgets earlier failures from ip.
func (a *Auth) RecordSuccess(ip string) {
	a.mu.Lock()
	delete(a.failures, ip)
	a.mu.Unlock()
}

// Middleware protects dashboard routes, redirecting unauthenticated requests to login.
// Paths outside /dashboard (metrics, health) are not guarded.
func (a *Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/dashboard") || r.URL.Path == "/dashboard/login" {
			next.ServeHTTP(w, r)
			return
		}

		cookie, err := r.Cookie(sessionCookieName)
		if err != nil || !a.ValidateSession(cookie.Value) {
			http.Redirect(w, r, "/dashboard/login", http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP returns the remote host without its port.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// generateAccessCode returns a random 8-digit numeric code.
func generateAccessCode() string {
	n, _ := rand.Int(rand.Reader, big.NewInt(100_000_000))
	return fmt.Sprintf("%08d", n.Int64())
}

// generateSessionToken returns a cryptographically random hex string.
func generateSessionToken() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return fmt.Sprintf("%x", b)
}
