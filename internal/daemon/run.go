package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"time"

	"backendd/internal/backend"
	"backendd/internal/config"
	"backendd/internal/health"
	"backendd/internal/hostaddr"
	"backendd/internal/inventory"
	"backendd/internal/lease"
	"backendd/internal/reconcile"
	"backendd/internal/registry"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const sessionName = "backendd"

// Store is the coordination store: lease sessions plus backend keys.
type Store interface {
	lease.SessionStore
	backend.KV
	WaitReady(ctx context.Context) error
}

// Runtime is the local container runtime.
type Runtime interface {
	inventory.Reader
	WaitReady(ctx context.Context) error
}

// Deps are the collaborators Run drives.
type Deps struct {
	Store    Store
	Runtime  Runtime
	Resolver hostaddr.Resolver
	Status   *health.Status
	Tracer   trace.Tracer

	// HealthListener, when set, is served instead of listening on
	// Config.HealthAddr.
	HealthListener net.Listener
	// StoreAddr is only used for the startup log.
	StoreAddr string
	Version   string
}

// Run bootstraps the lease and host address, then serves the health
// endpoint and runs the reconciler until ctx is cancelled or a fatal error
// occurs. Cancellation returns nil. Every other return sets the failure flag
// and is left to the caller to log.
func Run(ctx context.Context, cfg config.Config, deps Deps) error {
	status := deps.Status
	if status == nil {
		status = &health.Status{}
	}

	err := run(ctx, cfg, deps, status)
	if ctx.Err() != nil && (err == nil || errors.Is(err, context.Canceled)) {
		status.Fail("terminated")
		slog.Info("Received termination signal. Exiting...")
		return nil
	}
	if err != nil {
		status.Fail(err.Error())
		return err
	}
	return nil
}

func run(ctx context.Context, cfg config.Config, deps Deps, status *health.Status) error {
	if cfg.StartupDelay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(cfg.StartupDelay):
		}
	}

	host, mgr, err := bootstrap(ctx, cfg, deps)
	if err != nil {
		return err
	}

	state := registry.New()
	worker := &reconcile.Worker{
		Lease:     mgr,
		Inventory: deps.Runtime,
		State:     state,
		Registrar: backend.NewRegistrar(deps.Store, state, cfg.KeyPrefix, host, mgr.ID),
		Interval:  cfg.Interval,
		Policy:    cfg.OnFault,
		Tracer:    deps.Tracer,
	}
	srv := &health.Server{Addr: cfg.HealthAddr, Status: status}

	slog.Info("Bootstrap complete.",
		"host", host.String(),
		"consul", deps.StoreAddr,
		"session", mgr.ID(),
		"health", cfg.HealthAddr,
		"version", deps.Version,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if deps.HealthListener != nil {
			return srv.Serve(gctx, deps.HealthListener)
		}
		return srv.Run(gctx)
	})
	g.Go(func() error {
		err := worker.Run(gctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			// Flip before the group unwinds so the endpoint reports FAIL
			// while it shuts down.
			status.Fail(err.Error())
		}
		return err
	})
	return g.Wait()
}

// bootstrap waits for the store and runtime, resolves the host address and
// creates the lease session. Any failure is fatal.
func bootstrap(ctx context.Context, cfg config.Config, deps Deps) (netip.Addr, *lease.Manager, error) {
	readyCtx, cancel := context.WithTimeout(ctx, cfg.HostResolveTimeout)
	defer cancel()
	if err := deps.Store.WaitReady(readyCtx); err != nil {
		return netip.Addr{}, nil, fmt.Errorf("bootstrap: store not ready: %w", err)
	}
	if err := deps.Runtime.WaitReady(readyCtx); err != nil {
		return netip.Addr{}, nil, fmt.Errorf("bootstrap: container runtime not ready: %w", err)
	}

	host, err := deps.Resolver.Resolve(ctx)
	if err != nil {
		return netip.Addr{}, nil, fmt.Errorf("bootstrap: obtain host IP address: %w", err)
	}

	mgr := lease.NewManager(deps.Store, lease.SessionSpec{
		Name:     sessionName,
		TTL:      cfg.LeaseTTL,
		Behavior: lease.BehaviorDelete,
	}, cfg.MaxRenewFailures)
	if _, err := mgr.Create(ctx); err != nil {
		return netip.Addr{}, nil, fmt.Errorf("bootstrap: obtain session: %w", err)
	}
	return host, mgr, nil
}
