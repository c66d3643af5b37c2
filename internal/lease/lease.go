// Package lease manages the TTL session under which backend keys are held.
package lease

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

var (
	// ErrLeaseLost is returned once the session can no longer be trusted.
	ErrLeaseLost = errors.New("lease lost")
	// ErrSessionNotFound is returned by a SessionStore when the session expired
	// or was destroyed store-side.
	ErrSessionNotFound = errors.New("session not found")
	// ErrNoSession is returned when Renew is called before Create.
	ErrNoSession = errors.New("no session")
)

// Behavior is what the store does with held keys when the session expires.
type Behavior string

const (
	BehaviorDelete  Behavior = "delete"
	BehaviorRelease Behavior = "release"
)

// SessionSpec describes a session to create.
type SessionSpec struct {
	Name     string
	TTL      time.Duration
	Behavior Behavior
}

// SessionStore is the store-side session API.
type SessionStore interface {
	CreateSession(ctx context.Context, spec SessionSpec) (string, error)
	RenewSession(ctx context.Context, id string) error
}

// Manager owns one session and counts consecutive renewal failures.
type Manager struct {
	store       SessionStore
	spec        SessionSpec
	maxFailures int

	id       string
	failures int
}

// NewManager returns a Manager that declares the lease lost after
// maxFailures consecutive failed renewals. Values below 1 are treated as 1.
func NewManager(store SessionStore, spec SessionSpec, maxFailures int) *Manager {
	if maxFailures < 1 {
		maxFailures = 1
	}
	if spec.Behavior == "" {
		spec.Behavior = BehaviorDelete
	}
	return &Manager{store: store, spec: spec, maxFailures: maxFailures}
}

// Create establishes the session. It is called once at startup.
func (m *Manager) Create(ctx context.Context) (string, error) {
	id, err := m.store.CreateSession(ctx, m.spec)
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	if id == "" {
		return "", fmt.Errorf("create session: store returned empty id")
	}
	m.id = id
	m.failures = 0
	return id, nil
}

// ID returns the current session id, empty before Create.
func (m *Manager) ID() string {
	return m.id
}

// TTL returns the configured session TTL.
func (m *Manager) TTL() time.Duration {
	return m.spec.TTL
}

// Renew extends the session. A failure below the threshold is returned
// as-is so the caller can skip the cycle; reaching the threshold, or the
// store reporting the session gone, wraps ErrLeaseLost.
func (m *Manager) Renew(ctx context.Context) error {
	if m.id == "" {
		return ErrNoSession
	}
	err := m.store.RenewSession(ctx, m.id)
	if err == nil {
		m.failures = 0
		return nil
	}
	m.failures++
	if errors.Is(err, ErrSessionNotFound) {
		return fmt.Errorf("%w: session %s: %w", ErrLeaseLost, m.id, err)
	}
	if m.failures >= m.maxFailures {
		return fmt.Errorf("%w: %d consecutive renewal failures: %w", ErrLeaseLost, m.failures, err)
	}
	slog.Warn("Lease renewal failed.", "component", "lease", "session", m.id,
		"failures", m.failures, "max", m.maxFailures, "err", err)
	return fmt.Errorf("renew session %s: %w", m.id, err)
}

// Failures returns the current count of consecutive renewal failures.
func (m *Manager) Failures() int {
	return m.failures
}
