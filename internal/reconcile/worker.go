package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"backendd/internal/config"
	"backendd/internal/inventory"
	"backendd/internal/lease"
	"backendd/internal/registry"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation name of cycle spans.
const TracerName = "backendd/reconcile"

// Result summarizes one completed cycle.
type Result struct {
	Live    int
	Created int
	Removed int
	Records int
}

// Worker runs the reconciliation loop. One cycle runs at a time; the timer
// for the next cycle is armed only after the current one returns.
type Worker struct {
	Lease     Lease
	Inventory inventory.Reader
	State     *registry.State
	Registrar Registrar
	Interval  time.Duration
	Policy    config.FaultPolicy
	Tracer    trace.Tracer
	OnEvent   func(eventType, message string)
	OnFailure func(error)
}

func (w *Worker) tracer() trace.Tracer {
	if w.Tracer != nil {
		return w.Tracer
	}
	return otel.Tracer(TracerName)
}

func (w *Worker) emit(eventType, message string) {
	if w.OnEvent != nil {
		w.OnEvent(eventType, message)
	}
	slog.Debug("reconcile event", "event", eventType, "message", message)
}

func (w *Worker) fail(err error) {
	if w.OnFailure != nil {
		w.OnFailure(err)
	}
}

// Fatal reports whether err must stop the loop under the worker's policy.
// Lease loss and a missing session are always fatal; a renewal miss below
// the threshold never is.
func (w *Worker) Fatal(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, lease.ErrLeaseLost) || errors.Is(err, lease.ErrNoSession) {
		return true
	}
	var ce *CycleError
	if errors.As(err, &ce) && ce.Phase == PhaseRenew {
		return false
	}
	return w.Policy != config.FaultRetry
}

// Run cycles every Interval until ctx is done or a fatal error occurs.
func (w *Worker) Run(ctx context.Context) error {
	if w.Lease == nil || w.Inventory == nil || w.State == nil || w.Registrar == nil {
		return fmt.Errorf("reconcile worker is missing a dependency")
	}
	if w.Interval <= 0 {
		return fmt.Errorf("reconcile interval must be positive, got %v", w.Interval)
	}

	slog.Info("Polling.", "component", "reconcile", "interval", w.Interval, "policy", w.Policy)

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}

		res, err := w.Cycle(ctx)
		switch {
		case err == nil:
			if res.Created > 0 || res.Removed > 0 {
				w.emit("reconcile.success", fmt.Sprintf("created %d, removed %d, %d records", res.Created, res.Removed, res.Records))
			}
		case ctx.Err() != nil:
			return ctx.Err()
		case w.Fatal(err):
			w.emit("reconcile.fatal", err.Error())
			w.fail(err)
			return err
		default:
			w.emit("reconcile.error", err.Error())
			w.fail(err)
			slog.Warn("Reconcile cycle aborted, retrying next tick.", "component", "reconcile", "err", err)
		}

		timer.Reset(w.Interval)
	}
}

// Cycle renews the lease, lists containers, and applies creates then
// removes. The first failure aborts the rest of the cycle; deltas are
// recomputed from scratch on the next call.
func (w *Worker) Cycle(ctx context.Context) (res Result, err error) {
	ctx, span := w.tracer().Start(ctx, "reconcile.cycle")
	defer func() {
		span.SetAttributes(
			attribute.Int("reconcile.live", res.Live),
			attribute.Int("reconcile.created", res.Created),
			attribute.Int("reconcile.removed", res.Removed),
			attribute.Int("reconcile.records", res.Records),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if err := w.Lease.Renew(ctx); err != nil {
		return res, &CycleError{Phase: PhaseRenew, Err: err}
	}

	live, err := w.Inventory.ListContainers(ctx)
	if err != nil {
		return res, &CycleError{Phase: PhaseList, Err: err}
	}
	if err := inventory.Validate(live); err != nil {
		return res, &CycleError{Phase: PhaseList, Err: err}
	}
	res.Live = len(live)

	toCreate, toRemove := w.State.Diff(live)

	for _, c := range toCreate {
		if err := w.Registrar.Register(ctx, c); err != nil {
			res.Records = w.State.Len()
			return res, &CycleError{Phase: PhaseCreate, ContainerID: c.ID, Err: err}
		}
		res.Created++
	}
	for _, id := range toRemove {
		if err := w.Registrar.Deregister(ctx, id); err != nil {
			res.Records = w.State.Len()
			return res, &CycleError{Phase: PhaseRemove, ContainerID: id, Err: err}
		}
		res.Removed++
	}
	res.Records = w.State.Len()
	return res, nil
}
