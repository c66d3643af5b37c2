// Package backend translates container ports into proxy backend keys in the
// coordination store.
//
// Key layout, relative to an optional prefix:
//
//	backends/<backend>/servers/<12-char container id>/url = http://<host>:<port>
package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"strings"

	"backendd/internal/inventory"
	"backendd/internal/registry"
)

// ErrKeyHeld is returned when an acquire-tagged write is refused because
// another session holds the key.
var ErrKeyHeld = errors.New("key held by another session")

// KV is the subset of the store used for backend keys.
type KV interface {
	// Delete removes key unconditionally. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Acquire writes value under session. It reports false when another
	// session holds the key.
	Acquire(ctx context.Context, key string, value []byte, session string) (bool, error)
}

// Registrar writes and removes backend keys and keeps State in sync.
type Registrar struct {
	kv      KV
	state   *registry.State
	prefix  string
	host    netip.Addr
	session func() string
	log     *slog.Logger
}

// NewRegistrar returns a Registrar writing keys under prefix for host.
// session is consulted on every write so a replaced session is picked up.
func NewRegistrar(kv KV, state *registry.State, prefix string, host netip.Addr, session func() string) *Registrar {
	return &Registrar{
		kv:      kv,
		state:   state,
		prefix:  prefix,
		host:    host,
		session: session,
		log:     slog.With("component", "registrar"),
	}
}

// Key returns the store key for a backend server. Segments are joined
// verbatim; callers must pass a name accepted by inventory.ValidBackendName.
func Key(prefix, backend, containerID string) string {
	parts := []string{"backends", backend, "servers", inventory.ShortID(containerID), "url"}
	if prefix != "" {
		parts = append([]string{prefix}, parts...)
	}
	return strings.Join(parts, "/")
}

// URL returns the backend server URL for host and port.
func URL(host netip.Addr, port uint16) string {
	return "http://" + netip.AddrPortFrom(host, port).String()
}

// Register writes one key per published port that carries a SERVICE_<port>
// label. Records are added to State as each write succeeds; the container is
// marked complete only if every labeled port was written.
func (r *Registrar) Register(ctx context.Context, c inventory.Container) error {
	r.state.Track(c.ID)
	for _, p := range c.Ports {
		if p.PublicPort == 0 {
			continue
		}
		name, ok := c.Backend(p.PrivatePort)
		if !ok {
			continue
		}
		if !inventory.ValidBackendName(name) {
			r.log.Warn("Skipping port with invalid backend name.", "backend", name,
				"port", p.PrivatePort, "container", c.ShortID())
			continue
		}
		key := Key(r.prefix, name, c.ID)
		value := URL(r.host, p.PublicPort)

		r.log.Info("Adding upstream.", "backend", name, "upstream", value, "container", c.ShortID())

		if err := r.kv.Delete(ctx, key); err != nil {
			return fmt.Errorf("clear key %s: %w", key, err)
		}
		acquired, err := r.kv.Acquire(ctx, key, []byte(value), r.session())
		if err != nil {
			return fmt.Errorf("acquire key %s: %w", key, err)
		}
		if !acquired {
			return fmt.Errorf("acquire key %s: %w", key, ErrKeyHeld)
		}

		r.state.Add(registry.Record{
			ContainerID: c.ID,
			Backend:     name,
			Host:        r.host.String(),
			PublicPort:  p.PublicPort,
			Key:         key,
		})
	}
	r.state.MarkComplete(c.ID)
	return nil
}

// Deregister deletes every key recorded for the container and forgets it.
// On a failed delete the remaining records stay tracked for the next attempt.
func (r *Registrar) Deregister(ctx context.Context, containerID string) error {
	recs, ok := r.state.Lookup(containerID)
	if !ok {
		return nil
	}
	for _, rec := range recs {
		r.log.Info("Removing upstream.", "backend", rec.Backend, "host", rec.Host,
			"port", rec.PublicPort, "container", inventory.ShortID(containerID))

		if err := r.kv.Delete(ctx, rec.Key); err != nil {
			return fmt.Errorf("delete key %s: %w", rec.Key, err)
		}
		r.state.RemoveRecord(containerID, rec.PublicPort)
	}
	r.state.Forget(containerID)
	return nil
}
