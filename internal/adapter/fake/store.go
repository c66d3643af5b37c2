package fake

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"backendd/internal/adapter/fake/fault"
	"backendd/internal/backend"
	"backendd/internal/lease"
)

var (
	_ lease.SessionStore = (*Store)(nil)
	_ backend.KV         = (*Store)(nil)
)

// Fault points evaluated by Store.
const (
	PointWaitReady     = "store.wait_ready"
	PointCreateSession = "store.create_session"
	PointRenewSession  = "store.renew_session"
	PointDelete        = "store.delete"
	PointAcquire       = "store.acquire"
)

type session struct {
	spec    lease.SessionSpec
	expires time.Time
}

// Entry is a stored key.
type Entry struct {
	Value   string
	Session string
}

// Store is an in-memory coordination store with TTL sessions and
// acquire-tagged writes. Expired sessions are reaped on every call.
type Store struct {
	CallRecorder
	Faults fault.Injector

	mu       sync.Mutex
	clock    *Clock
	nextID   int
	sessions map[string]*session
	kv       map[string]Entry
}

// NewStore creates an empty Store. A nil clock never expires sessions.
func NewStore(clock *Clock) *Store {
	return &Store{
		clock:    clock,
		sessions: make(map[string]*session),
		kv:       make(map[string]Entry),
	}
}

func (s *Store) now() time.Time {
	if s.clock == nil {
		return time.Time{}
	}
	return s.clock.Now()
}

// reap destroys expired sessions. Caller holds mu.
func (s *Store) reap() {
	if s.clock == nil {
		return
	}
	now := s.now()
	for id, sess := range s.sessions {
		if now.After(sess.expires) {
			s.destroyLocked(id)
		}
	}
}

// destroyLocked removes a session and applies its behavior to held keys.
func (s *Store) destroyLocked(id string) {
	sess, ok := s.sessions[id]
	if !ok {
		return
	}
	delete(s.sessions, id)
	for k, e := range s.kv {
		if e.Session != id {
			continue
		}
		if sess.spec.Behavior == lease.BehaviorRelease {
			e.Session = ""
			s.kv[k] = e
			continue
		}
		delete(s.kv, k)
	}
}

func (s *Store) WaitReady(ctx context.Context) error {
	s.record("WaitReady")
	return s.Faults.Eval(PointWaitReady)
}

func (s *Store) CreateSession(ctx context.Context, spec lease.SessionSpec) (string, error) {
	s.record("CreateSession", spec)
	if err := s.Faults.Eval(PointCreateSession, spec); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := "session-" + strconv.Itoa(s.nextID)
	s.sessions[id] = &session{spec: spec, expires: s.now().Add(spec.TTL)}
	return id, nil
}

func (s *Store) RenewSession(ctx context.Context, id string) error {
	s.record("RenewSession", id)
	if err := s.Faults.Eval(PointRenewSession, id); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reap()
	sess, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("renew %s: %w", id, lease.ErrSessionNotFound)
	}
	sess.expires = s.now().Add(sess.spec.TTL)
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	s.record("Delete", key)
	if err := s.Faults.Eval(PointDelete, key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reap()
	delete(s.kv, key)
	return nil
}

func (s *Store) Acquire(ctx context.Context, key string, value []byte, sessionID string) (bool, error) {
	s.record("Acquire", key, string(value), sessionID)
	if err := s.Faults.Eval(PointAcquire, key, sessionID); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reap()
	if _, ok := s.sessions[sessionID]; !ok {
		return false, fmt.Errorf("acquire %s: invalid session %q", key, sessionID)
	}
	if cur, ok := s.kv[key]; ok && cur.Session != "" && cur.Session != sessionID {
		return false, nil
	}
	s.kv[key] = Entry{Value: string(value), Session: sessionID}
	return true, nil
}

// Put writes key without a session, as another writer would.
func (s *Store) Put(key, value, sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kv[key] = Entry{Value: value, Session: sessionID}
}

// Get returns the entry for key.
func (s *Store) Get(key string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reap()
	e, ok := s.kv[key]
	return e, ok
}

// Keys returns all stored keys, sorted.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reap()
	out := make([]string, 0, len(s.kv))
	for k := range s.kv {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Expire destroys a session as if its TTL elapsed.
func (s *Store) Expire(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.destroyLocked(id)
}

// SessionAlive reports whether the session exists.
func (s *Store) SessionAlive(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reap()
	_, ok := s.sessions[id]
	return ok
}
