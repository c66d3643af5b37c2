package reconcile

import (
	"fmt"

	"backendd/internal/inventory"
)

// Phase names the step of a cycle that failed.
type Phase string

const (
	PhaseRenew  Phase = "renew"
	PhaseList   Phase = "list"
	PhaseCreate Phase = "create"
	PhaseRemove Phase = "remove"
)

// CycleError reports the step, and for create/remove the container, at
// which a cycle stopped.
type CycleError struct {
	Phase       Phase
	ContainerID string
	Err         error
}

func (e *CycleError) Error() string {
	if e.ContainerID != "" {
		return fmt.Sprintf("reconcile %s (container %s): %v", e.Phase, inventory.ShortID(e.ContainerID), e.Err)
	}
	return fmt.Sprintf("reconcile %s: %v", e.Phase, e.Err)
}

func (e *CycleError) Unwrap() error {
	return e.Err
}
