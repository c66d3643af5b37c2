package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"backendd/internal/buildinfo"
	"backendd/internal/config"
	"backendd/internal/daemon"
	"backendd/internal/logging"

	"github.com/spf13/cobra"
)

func main() {
	if err := logging.Configure(logging.LevelInfo, logging.FormatText); err != nil {
		_, _ = os.Stderr.WriteString("configure logger: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := rootCmd().Execute(); err != nil {
		slog.Error("[FATAL] Exiting.", "err", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string
	flagCfg := config.Default()

	cmd := &cobra.Command{
		Use:           "backendd",
		Short:         "Register published container ports as proxy backends in Consul",
		Version:       buildinfo.Resolve(),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			applyFlags(cmd, &cfg, flagCfg)
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			if err := logging.Configure(cfg.LogLevel, cfg.LogFormat); err != nil {
				return err
			}
			slog.Info(cfg.String())

			deps, closeFn, err := daemon.Wire(cfg, buildinfo.Resolve())
			if err != nil {
				return err
			}
			defer func() { _ = closeFn() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM, syscall.SIGABRT)
			defer stop()
			return daemon.Run(ctx, cfg, deps)
		},
	}

	f := cmd.Flags()
	f.StringVar(&configPath, "config", "", "Path to a YAML config file")
	f.StringVar(&flagCfg.ConsulAddr, "consul-addr", flagCfg.ConsulAddr, "Consul agent address (host:port)")
	f.StringVar(&flagCfg.ConsulToken, "consul-token", "", "Consul ACL token")
	f.StringVar(&flagCfg.DockerHost, "docker-host", "", "Docker daemon address (default: DOCKER_HOST or local socket)")
	f.StringVar(&flagCfg.HealthAddr, "health-addr", flagCfg.HealthAddr, "Health check API listen address")
	f.DurationVar(&flagCfg.Interval, "interval", flagCfg.Interval, "Reconciliation interval")
	f.DurationVar(&flagCfg.LeaseTTL, "lease-ttl", flagCfg.LeaseTTL, "Consul session TTL")
	f.IntVar(&flagCfg.MaxRenewFailures, "lease-max-renew-failures", flagCfg.MaxRenewFailures, "Consecutive renewal failures treated as lease loss")
	f.DurationVar(&flagCfg.StartupDelay, "startup-delay", flagCfg.StartupDelay, "Delay before bootstrap")
	f.StringVar(&flagCfg.HostIP, "host-ip", "", "Host address to advertise (skips metadata lookup)")
	f.StringVar(&flagCfg.HostMetadataURL, "host-metadata-url", flagCfg.HostMetadataURL, "Instance metadata URL returning the host IP")
	f.DurationVar(&flagCfg.HostResolveTimeout, "host-resolve-timeout", flagCfg.HostResolveTimeout, "Bootstrap timeout for host and store readiness")
	f.StringVar(&flagCfg.KeyPrefix, "key-prefix", flagCfg.KeyPrefix, "KV prefix under which backends are written")
	f.StringVar((*string)(&flagCfg.OnFault), "on-fault", string(flagCfg.OnFault), "Cycle fault policy: exit or retry")
	f.StringVar(&flagCfg.LogLevel, "log-level", flagCfg.LogLevel, "Log level: debug, info, warn, error")
	f.StringVar(&flagCfg.LogFormat, "log-format", flagCfg.LogFormat, "Log format: text or json")
	return cmd
}

// applyFlags copies explicitly set flags over file values.
func applyFlags(cmd *cobra.Command, cfg *config.Config, flags config.Config) {
	set := func(name string, apply func()) {
		if cmd.Flags().Changed(name) {
			apply()
		}
	}
	set("consul-addr", func() { cfg.ConsulAddr = flags.ConsulAddr })
	set("consul-token", func() { cfg.ConsulToken = flags.ConsulToken })
	set("docker-host", func() { cfg.DockerHost = flags.DockerHost })
	set("health-addr", func() { cfg.HealthAddr = flags.HealthAddr })
	set("interval", func() { cfg.Interval = flags.Interval })
	set("lease-ttl", func() { cfg.LeaseTTL = flags.LeaseTTL })
	set("lease-max-renew-failures", func() { cfg.MaxRenewFailures = flags.MaxRenewFailures })
	set("startup-delay", func() { cfg.StartupDelay = flags.StartupDelay })
	set("host-ip", func() { cfg.HostIP = flags.HostIP })
	set("host-metadata-url", func() { cfg.HostMetadataURL = flags.HostMetadataURL })
	set("host-resolve-timeout", func() { cfg.HostResolveTimeout = flags.HostResolveTimeout })
	set("key-prefix", func() { cfg.KeyPrefix = flags.KeyPrefix })
	set("on-fault", func() { cfg.OnFault = flags.OnFault })
	set("log-level", func() { cfg.LogLevel = flags.LogLevel })
	set("log-format", func() { cfg.LogFormat = flags.LogFormat })
}
