package reconcile

import (
	"context"

	"backendd/internal/inventory"
)

// Lease is renewed at the start of every cycle.
type Lease interface {
	Renew(ctx context.Context) error
}

// Registrar applies a single create or remove delta.
type Registrar interface {
	Register(ctx context.Context, c inventory.Container) error
	Deregister(ctx context.Context, containerID string) error
}
