// Package hostaddr resolves the externally reachable address of this host.
package hostaddr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// DefaultTimeout bounds metadata retries when no timeout is configured.
const DefaultTimeout = 30 * time.Second

// DefaultMetadataURL is the EC2 instance metadata path for the private IPv4.
const DefaultMetadataURL = "http://169.254.169.254/latest/meta-data/local-ipv4"

// ErrNoAddress is returned when no usable address could be resolved.
var ErrNoAddress = errors.New("no host address")

// Resolver returns the host address used in backend URLs.
type Resolver interface {
	Resolve(ctx context.Context) (netip.Addr, error)
}

// Static always returns Addr.
type Static struct {
	Addr netip.Addr
}

func (s Static) Resolve(context.Context) (netip.Addr, error) {
	if !s.Addr.IsValid() {
		return netip.Addr{}, ErrNoAddress
	}
	return s.Addr, nil
}

// Metadata queries an instance metadata endpoint whose body is a bare IP.
type Metadata struct {
	URL        string
	Timeout    time.Duration
	HTTPClient *http.Client

	newBackoff func() backoff.BackOff
}

// NewMetadata returns a Metadata resolver that retries until timeout.
func NewMetadata(url string, timeout time.Duration) *Metadata {
	if url == "" {
		url = DefaultMetadataURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Metadata{URL: url, Timeout: timeout, HTTPClient: &http.Client{Timeout: 2 * time.Second}}
}

func (m *Metadata) retryBackoff() backoff.BackOff {
	if m.newBackoff != nil {
		return m.newBackoff()
	}
	return backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(250*time.Millisecond),
		backoff.WithMaxInterval(5*time.Second),
		backoff.WithMaxElapsedTime(m.Timeout),
	)
}

func (m *Metadata) Resolve(ctx context.Context) (netip.Addr, error) {
	log := slog.With("component", "hostaddr")
	attempt := func() (netip.Addr, error) {
		addr, err := m.fetch(ctx)
		if err != nil {
			log.Debug("host address lookup failed", "url", m.URL, "err", err)
			return netip.Addr{}, err
		}
		return addr, nil
	}
	addr, err := backoff.RetryWithData(attempt, backoff.WithContext(m.retryBackoff(), ctx))
	if err != nil {
		return netip.Addr{}, fmt.Errorf("%w: %s: %w", ErrNoAddress, m.URL, err)
	}
	return addr, nil
}

func (m *Metadata) fetch(ctx context.Context) (netip.Addr, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.URL, nil)
	if err != nil {
		return netip.Addr{}, backoff.Permanent(err)
	}
	client := m.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return netip.Addr{}, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 256))
	if err != nil {
		return netip.Addr{}, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return netip.Addr{}, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	addr, err := netip.ParseAddr(strings.TrimSpace(string(data)))
	if err != nil {
		return netip.Addr{}, backoff.Permanent(fmt.Errorf("parse address %q: %w", strings.TrimSpace(string(data)), err))
	}
	return addr, nil
}
