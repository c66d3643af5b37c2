package fake

import (
	"context"
	"sync"

	"backendd/internal/adapter/fake/fault"
	"backendd/internal/inventory"
)

var _ inventory.Reader = (*ContainerRuntime)(nil)

const (
	PointRuntimeReady  = "runtime.wait_ready"
	PointListContainer = "runtime.list_containers"
)

// ContainerRuntime is an in-memory inventory of running containers.
type ContainerRuntime struct {
	CallRecorder
	Faults fault.Injector

	mu         sync.Mutex
	containers []inventory.Container
}

// NewContainerRuntime creates a runtime reporting containers.
func NewContainerRuntime(containers ...inventory.Container) *ContainerRuntime {
	r := &ContainerRuntime{}
	r.Set(containers...)
	return r
}

// Set replaces the running set.
func (r *ContainerRuntime) Set(containers ...inventory.Container) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.containers = append([]inventory.Container(nil), containers...)
}

func (r *ContainerRuntime) WaitReady(ctx context.Context) error {
	r.record("WaitReady")
	return r.Faults.Eval(PointRuntimeReady)
}

func (r *ContainerRuntime) ListContainers(ctx context.Context) ([]inventory.Container, error) {
	r.record("ListContainers")
	if err := r.Faults.Eval(PointListContainer); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]inventory.Container(nil), r.containers...), nil
}

// Container builds a container with one labeled port per backend entry.
// ports maps private port to public port; backends maps private port to
// backend name.
func Container(id string, ports map[uint16]uint16, backends map[uint16]string) inventory.Container {
	c := inventory.Container{ID: id, Labels: make(map[string]string)}
	for priv, pub := range ports {
		c.Ports = append(c.Ports, inventory.PortBinding{PrivatePort: priv, PublicPort: pub, Proto: "tcp"})
	}
	for priv, name := range backends {
		c.Labels[inventory.ServiceLabel(priv)] = name
	}
	return c
}
