// Package inventory describes the running containers observed on this host.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ServiceLabelPrefix names the label that maps a private port to a backend:
// SERVICE_<privatePort>=<backendName>.
const ServiceLabelPrefix = "SERVICE_"

// ErrRuntimeUnavailable marks a listing failure caused by an unreachable
// container runtime.
var ErrRuntimeUnavailable = errors.New("container runtime unavailable")

// PortBinding is a single published port of a container.
type PortBinding struct {
	PrivatePort uint16
	PublicPort  uint16
	Proto       string
}

// Container is a read-only snapshot of a running container.
type Container struct {
	ID     string
	Ports  []PortBinding
	Labels map[string]string
}

// ShortID returns the first 12 characters of the container id.
func (c Container) ShortID() string {
	return ShortID(c.ID)
}

// Backend returns the backend name labeled for privatePort, if any.
func (c Container) Backend(privatePort uint16) (string, bool) {
	name, ok := c.Labels[ServiceLabel(privatePort)]
	if !ok || name == "" {
		return "", false
	}
	return name, true
}

// ValidBackendName reports whether name can be used as a single key segment.
func ValidBackendName(name string) bool {
	return name != "" && name != "." && name != ".." && !strings.Contains(name, "/")
}

// ShortID truncates a container id to the 12-character form.
func ShortID(id string) string {
	if len(id) <= 12 {
		return id
	}
	return id[:12]
}

// ServiceLabel returns the label key consulted for privatePort.
func ServiceLabel(privatePort uint16) string {
	return ServiceLabelPrefix + strconv.Itoa(int(privatePort))
}

// Reader lists the containers currently running on the host.
type Reader interface {
	ListContainers(ctx context.Context) ([]Container, error)
}

// ReaderFunc adapts a function to Reader.
type ReaderFunc func(ctx context.Context) ([]Container, error)

func (f ReaderFunc) ListContainers(ctx context.Context) ([]Container, error) {
	return f(ctx)
}

// Validate checks that a snapshot carries unique non-empty ids.
func Validate(containers []Container) error {
	seen := make(map[string]struct{}, len(containers))
	for _, c := range containers {
		if c.ID == "" {
			return fmt.Errorf("container with empty id")
		}
		if _, dup := seen[c.ID]; dup {
			return fmt.Errorf("duplicate container id %q", c.ID)
		}
		seen[c.ID] = struct{}{}
	}
	return nil
}
