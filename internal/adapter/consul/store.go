// Package consul implements the session and key/value store on Consul.
package consul

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"backendd/internal/backend"
	"backendd/internal/lease"

	"github.com/hashicorp/consul/api"
)

var (
	_ lease.SessionStore = (*Store)(nil)
	_ backend.KV         = (*Store)(nil)
)

// Store talks to a Consul agent over its HTTP API.
type Store struct {
	client *api.Client
	addr   string
}

// New creates a Store for the agent at addr (host:port).
func New(addr, token string) (*Store, error) {
	cfg := api.DefaultConfig()
	cfg.Address = addr
	if token != "" {
		cfg.Token = token
	}
	client, err := api.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create consul client: %w", err)
	}
	return &Store{client: client, addr: addr}, nil
}

// NewFromClient wraps an existing Consul client.
func NewFromClient(client *api.Client) *Store {
	return &Store{client: client}
}

// Addr returns the agent address the store was created for.
func (s *Store) Addr() string {
	return s.addr
}

func (s *Store) CreateSession(ctx context.Context, spec lease.SessionSpec) (string, error) {
	entry := &api.SessionEntry{
		Name:     spec.Name,
		TTL:      spec.TTL.String(),
		Behavior: behavior(spec.Behavior),
	}
	id, _, err := s.client.Session().Create(entry, writeOpts(ctx))
	if err != nil {
		return "", fmt.Errorf("consul session create: %w", err)
	}
	return id, nil
}

func (s *Store) RenewSession(ctx context.Context, id string) error {
	entry, _, err := s.client.Session().Renew(id, writeOpts(ctx))
	if err != nil {
		return fmt.Errorf("consul session renew: %w", err)
	}
	// Consul answers 404 with a nil entry when the session is gone.
	if entry == nil {
		return fmt.Errorf("consul session %s: %w", id, lease.ErrSessionNotFound)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.client.KV().Delete(key, writeOpts(ctx)); err != nil {
		return fmt.Errorf("consul kv delete %s: %w", key, err)
	}
	return nil
}

func (s *Store) Acquire(ctx context.Context, key string, value []byte, session string) (bool, error) {
	ok, _, err := s.client.KV().Acquire(&api.KVPair{Key: key, Value: value, Session: session}, writeOpts(ctx))
	if err != nil {
		return false, fmt.Errorf("consul kv acquire %s: %w", key, err)
	}
	return ok, nil
}

// Ping succeeds once the cluster has an elected leader.
func (s *Store) Ping(ctx context.Context) error {
	leader, err := s.client.Status().LeaderWithQueryOptions((&api.QueryOptions{}).WithContext(ctx))
	if err != nil {
		return fmt.Errorf("consul status leader: %w", err)
	}
	if leader == "" {
		return fmt.Errorf("consul has no leader")
	}
	return nil
}

// WaitReady polls Ping every second until it succeeds or ctx is done.
func (s *Store) WaitReady(ctx context.Context) error {
	log := slog.With("component", "consul")
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	waiting := false
	for {
		err := s.Ping(ctx)
		if err == nil {
			if waiting {
				log.Debug("consul reachable")
			}
			return nil
		}
		if !waiting {
			waiting = true
			log.Debug("waiting for consul", "err", err)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("wait for consul: %w", err)
		case <-ticker.C:
		}
	}
}

func behavior(b lease.Behavior) string {
	if b == lease.BehaviorRelease {
		return api.SessionBehaviorRelease
	}
	return api.SessionBehaviorDelete
}

func writeOpts(ctx context.Context) *api.WriteOptions {
	return (&api.WriteOptions{}).WithContext(ctx)
}
