package core

import (
	"sync"
	"time"
)

type attemptState struct {
	count        int
	firstAttempt time.Time
	lockedUntil  time.Time
}

// LoginThrottle limits failed logins per client key (the client IP).
// maxAttempts failures inside window lock the key for lockFor.
type LoginThrottle struct {
	maxAttempts int
	window      time.Duration
	lockFor     time.Duration
	now         func() time.Time

	mu       sync.Mutex
	attempts map[string]*attemptState
}

// NewLoginThrottle returns a throttle; maxAttempts <= 0 disables it.
func NewLoginThrottle(maxAttempts int, window, lockFor time.Duration) *LoginThrottle {
	return &LoginThrottle{
		maxAttempts: maxAttempts,
		window:      window,
		lockFor:     lockFor,
		now:         time.Now,
		attempts:    make(map[string]*attemptState),
	}
}

// Locked returns the remaining lock time for key, or 0.
func (t *LoginThrottle) Locked(key string) time.Duration {
	if t == nil || t.maxAttempts <= 0 {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.attempts[key]
	if !ok {
		return 0
	}
	now := t.now()
	if !now.Before(state.lockedUntil) {
		return 0
	}
	return state.lockedUntil.Sub(now)
}

// Failure records a failed attempt and returns the attempts left before lock.
func (t *LoginThrottle) Failure(key string) int {
	if t == nil || t.maxAttempts <= 0 {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	state, ok := t.attempts[key]
	if !ok || now.Sub(state.firstAttempt) > t.window {
		state = &attemptState{firstAttempt: now}
		t.attempts[key] = state
	}

	state.count++
	if state.count >= t.maxAttempts {
		state.lockedUntil = now.Add(t.lockFor)
		state.count = t.maxAttempts
	}

	remaining := t.maxAttempts - state.count
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

// Reset forgets key after a successful login.
func (t *LoginThrottle) Reset(key string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.attempts, key)
}
