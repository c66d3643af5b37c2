package docker

import (
	"context"
	"fmt"

	"backendd/internal/inventory"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
)

var _ inventory.Reader = (*Runtime)(nil)

// Runtime implements inventory.Reader using the Docker Engine API.
type Runtime struct {
	cli *client.Client
}

// NewRuntime creates a Runtime with a Docker client from the environment.
// A non-empty host overrides DOCKER_HOST.
func NewRuntime(host string) (*Runtime, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return &Runtime{cli: cli}, nil
}

// NewRuntimeFromClient wraps an existing Docker client.
func NewRuntimeFromClient(cli *client.Client) *Runtime {
	return &Runtime{cli: cli}
}

// Host returns the daemon address the client talks to.
func (r *Runtime) Host() string {
	return r.cli.DaemonHost()
}

func (r *Runtime) WaitReady(ctx context.Context) error {
	return WaitReady(ctx, r.cli)
}

// ListContainers returns a snapshot of running containers.
func (r *Runtime) ListContainers(ctx context.Context) ([]inventory.Container, error) {
	list, err := r.cli.ContainerList(ctx, container.ListOptions{
		Filters: filters.NewArgs(filters.Arg("status", "running")),
	})
	if err != nil {
		if client.IsErrConnectionFailed(err) || errdefs.IsUnavailable(err) {
			return nil, fmt.Errorf("list containers: %w: %w", inventory.ErrRuntimeUnavailable, err)
		}
		return nil, fmt.Errorf("list containers: %w", err)
	}

	out := make([]inventory.Container, 0, len(list))
	for _, c := range list {
		ports := make([]inventory.PortBinding, 0, len(c.Ports))
		for _, p := range c.Ports {
			ports = append(ports, inventory.PortBinding{
				PrivatePort: p.PrivatePort,
				PublicPort:  p.PublicPort,
				Proto:       p.Type,
			})
		}
		out = append(out, inventory.Container{
			ID:     c.ID,
			Ports:  dedupePorts(ports),
			Labels: c.Labels,
		})
	}
	return out, nil
}

// dedupePorts drops repeated bindings. Docker lists a port once per host IP
// family when it is published on both 0.0.0.0 and [::].
func dedupePorts(ports []inventory.PortBinding) []inventory.PortBinding {
	seen := make(map[inventory.PortBinding]struct{}, len(ports))
	out := ports[:0]
	for _, p := range ports {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

func (r *Runtime) Close() error {
	return r.cli.Close()
}
