package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/netip"

	"backendd/internal/adapter/consul"
	"backendd/internal/adapter/docker"
	"backendd/internal/config"
	"backendd/internal/health"
	"backendd/internal/hostaddr"
	"backendd/internal/reconcile"
	"backendd/internal/telemetry"
)

// Wire builds production dependencies from cfg. The returned close func
// shuts down the tracer provider and releases the Docker client.
func Wire(cfg config.Config, version string) (Deps, func() error, error) {
	store, err := consul.New(cfg.ConsulAddr, cfg.ConsulToken)
	if err != nil {
		return Deps{}, nil, err
	}
	rt, err := docker.NewRuntime(cfg.DockerHost)
	if err != nil {
		return Deps{}, nil, err
	}

	var resolver hostaddr.Resolver
	if cfg.HostIP != "" {
		addr, err := netip.ParseAddr(cfg.HostIP)
		if err != nil {
			_ = rt.Close()
			return Deps{}, nil, fmt.Errorf("parse host IP: %w", err)
		}
		resolver = hostaddr.Static{Addr: addr}
	} else {
		resolver = hostaddr.NewMetadata(cfg.HostMetadataURL, cfg.HostResolveTimeout)
	}

	out := telemetry.New(nil)
	closeFn := func() error {
		return errors.Join(out.Close(context.Background()), rt.Close())
	}

	return Deps{
		Store:     store,
		Runtime:   rt,
		Resolver:  resolver,
		Status:    &health.Status{},
		Tracer:    out.Tracer(reconcile.TracerName),
		StoreAddr: store.Addr(),
		Version:   version,
	}, closeFn, nil
}
