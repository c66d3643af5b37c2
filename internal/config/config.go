// Package config holds the daemon settings.
//
// Settings come from built-in defaults, optionally overridden by a YAML file,
// then by command-line flags.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FaultPolicy decides what a failed reconciliation cycle does.
type FaultPolicy string

const (
	// FaultExit terminates the process on any cycle fault.
	FaultExit FaultPolicy = "exit"
	// FaultRetry abandons the rest of the cycle and retries on the next tick.
	FaultRetry FaultPolicy = "retry"
)

const (
	DefaultConsulAddr         = "172.17.0.1:8500"
	DefaultHealthAddr         = "0.0.0.0:9999"
	DefaultInterval           = 5 * time.Second
	DefaultLeaseTTL           = 30 * time.Second
	DefaultMaxRenewFailures   = 1
	DefaultStartupDelay       = 5 * time.Second
	DefaultHostResolveTimeout = 30 * time.Second
	DefaultMetadataURL        = "http://169.254.169.254/latest/meta-data/local-ipv4"
	DefaultKeyPrefix          = "traefik"
)

// Config is the full daemon configuration.
type Config struct {
	ConsulAddr  string `yaml:"consul-addr"`
	ConsulToken string `yaml:"consul-token,omitempty"`
	DockerHost  string `yaml:"docker-host,omitempty"`
	HealthAddr  string `yaml:"health-addr"`

	Interval         time.Duration `yaml:"interval"`
	LeaseTTL         time.Duration `yaml:"lease-ttl"`
	MaxRenewFailures int           `yaml:"lease-max-renew-failures"`
	StartupDelay     time.Duration `yaml:"startup-delay"`

	HostIP             string        `yaml:"host-ip,omitempty"`
	HostMetadataURL    string        `yaml:"host-metadata-url"`
	HostResolveTimeout time.Duration `yaml:"host-resolve-timeout"`

	KeyPrefix string      `yaml:"key-prefix"`
	OnFault   FaultPolicy `yaml:"on-fault"`

	LogLevel  string `yaml:"log-level"`
	LogFormat string `yaml:"log-format"`
}

// Default returns the reference deployment settings.
func Default() Config {
	return Config{
		ConsulAddr:         DefaultConsulAddr,
		HealthAddr:         DefaultHealthAddr,
		Interval:           DefaultInterval,
		LeaseTTL:           DefaultLeaseTTL,
		MaxRenewFailures:   DefaultMaxRenewFailures,
		StartupDelay:       DefaultStartupDelay,
		HostMetadataURL:    DefaultMetadataURL,
		HostResolveTimeout: DefaultHostResolveTimeout,
		KeyPrefix:          DefaultKeyPrefix,
		OnFault:            FaultExit,
		LogLevel:           "info",
		LogFormat:          "text",
	}
}

// Load returns defaults overlaid with the YAML file at path. An empty path
// returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Validate checks the logical consistency of the settings.
func (c Config) Validate() error {
	var errs []error

	if c.Interval <= 0 {
		errs = append(errs, fmt.Errorf("interval must be positive, got %v", c.Interval))
	}
	if c.LeaseTTL <= 0 {
		errs = append(errs, fmt.Errorf("lease TTL must be positive, got %v", c.LeaseTTL))
	} else if c.LeaseTTL <= c.Interval {
		// The lease must survive at least one missed renewal.
		errs = append(errs, fmt.Errorf("lease TTL (%v) must be greater than interval (%v)", c.LeaseTTL, c.Interval))
	}
	if c.MaxRenewFailures < 1 {
		errs = append(errs, fmt.Errorf("lease max renew failures must be at least 1, got %d", c.MaxRenewFailures))
	}
	if c.StartupDelay < 0 {
		errs = append(errs, fmt.Errorf("startup delay must not be negative, got %v", c.StartupDelay))
	}
	switch c.OnFault {
	case FaultExit, FaultRetry:
	default:
		errs = append(errs, fmt.Errorf("unknown fault policy %q (want %q or %q)", c.OnFault, FaultExit, FaultRetry))
	}
	if c.HostIP != "" {
		if _, err := netip.ParseAddr(c.HostIP); err != nil {
			errs = append(errs, fmt.Errorf("host IP is not an IP address: %q", c.HostIP))
		}
	} else if c.HostMetadataURL == "" {
		errs = append(errs, errors.New("either host IP or host metadata URL is required"))
	}
	if _, _, err := net.SplitHostPort(c.ConsulAddr); err != nil {
		errs = append(errs, fmt.Errorf("consul address %q: %w", c.ConsulAddr, err))
	}
	if _, _, err := net.SplitHostPort(c.HealthAddr); err != nil {
		errs = append(errs, fmt.Errorf("health address %q: %w", c.HealthAddr, err))
	}
	if strings.HasPrefix(c.KeyPrefix, "/") || strings.HasSuffix(c.KeyPrefix, "/") {
		errs = append(errs, fmt.Errorf("key prefix %q must not start or end with '/'", c.KeyPrefix))
	}
	return errors.Join(errs...)
}

// String renders the settings for the startup log.
func (c Config) String() string {
	return fmt.Sprintf(`Configuration:
 - Consul:   %s
 - Docker:   %s
 - Health:   %s
 - Poll:     every %v (lease TTL %v, max renew failures %d)
 - Host:     %s
 - Keys:     %q (on fault: %s)`,
		c.ConsulAddr,
		orDefault(c.DockerHost, "from environment"),
		c.HealthAddr,
		c.Interval, c.LeaseTTL, c.MaxRenewFailures,
		orDefault(c.HostIP, c.HostMetadataURL),
		c.KeyPrefix, c.OnFault)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
