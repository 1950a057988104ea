package bridge

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"
)

// RateLimiter tracks failed authentication attempts per IP.
type RateLimiter struct {
	mu       sync.Mutex
	attempts map[string][]time.Time
	limit    int
	window   time.Duration
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		attempts: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
	}
}

// Blocked reports whether ip reached the limit within the window.
func (r *RateLimiter) Blocked(ip string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts[ip] = r.recent(ip, time.Now())
	return len(r.attempts[ip]) >= r.limit
}

// Fail records a failed attempt.
func (r *RateLimiter) Fail(ip string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	r.attempts[ip] = append(r.recent(ip, now), now)
}

// Reset clears attempts for an IP (on successful authentication).
func (r *RateLimiter) Reset(ip string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.attempts, ip)
}

func (r *RateLimiter) recent(ip string, now time.Time) []time.Time {
	cutoff := now.Add(-r.window)
	var recent []time.Time
	for _, t := range r.attempts[ip] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}
	return recent
}

// Auth verifies bearer tokens and TOTP codes. With no token hash every
// request is accepted; config only allows that on loopback addresses.
type Auth struct {
	tokenHash   string
	totpSecret  string
	rateLimiter *RateLimiter
}

// NewAuth creates the authenticator.
func NewAuth(tokenHash, totpSecret string) *Auth {
	return &Auth{
		tokenHash:   tokenHash,
		totpSecret:  totpSecret,
		rateLimiter: NewRateLimiter(5, time.Minute),
	}
}

// Enabled reports whether a token is required.
func (a *Auth) Enabled() bool {
	return a.tokenHash != ""
}

// HasTOTP reports whether a TOTP code is required for commands.
func (a *Auth) HasTOTP() bool {
	return a.totpSecret != ""
}

// CheckToken verifies the token against the hash.
func (a *Auth) CheckToken(token string) bool {
	return bcrypt.CompareHashAndPassword([]byte(a.tokenHash), []byte(token)) == nil
}

// CheckTOTP verifies the TOTP code.
func (a *Auth) CheckTOTP(code string) bool {
	if !a.HasTOTP() {
		return true
	}
	return totp.Validate(code, a.totpSecret)
}

// bearerToken extracts the token from the Authorization header, or from the
// token query parameter for browser WebSocket clients.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
