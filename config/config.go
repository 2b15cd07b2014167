// Package config loads the suite configuration for a throughput run.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pascal71/ethperf/client"
	"github.com/pascal71/ethperf/runlog"
	"github.com/pascal71/ethperf/throughput"
)

// Environment variables overriding file values. EnvUser and EnvPass apply to
// both devices.
const (
	EnvBBIP = "ETHPERF_BB_IP"
	EnvPCIP = "ETHPERF_PC_IP"
	EnvUser = "ETHPERF_USER"
	EnvPass = "ETHPERF_PASS"
)

// Config describes one suite run.
type Config struct {
	LogDir            string        `yaml:"log_dir"`
	Duration          int           `yaml:"duration"`
	Bandwidth         string        `yaml:"bandwidth"`
	Parallel          int           `yaml:"parallel"`
	Port              int           `yaml:"port"`
	Settle            time.Duration `yaml:"settle"`
	OverlapMonitoring bool          `yaml:"overlap_monitoring"`
	Devices           Devices       `yaml:"devices"`
}

// Devices are the two endpoints under test.
type Devices struct {
	BB client.Device `yaml:"bb"`
	PC client.Device `yaml:"pc"`
}

// Default returns a Config with every default filled in and no devices.
func Default() Config {
	return Config{
		LogDir:    runlog.DefaultDir,
		Duration:  throughput.DefaultDuration,
		Bandwidth: throughput.DefaultBandwidth,
		Parallel:  throughput.DefaultParallel,
		Port:      throughput.DefaultPort,
		Settle:    throughput.ServerSettleTime,
	}
}

// Load reads path (if non-empty) over the defaults, then applies the
// environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}
	cfg.applyEnv(os.Getenv)
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv(EnvBBIP); v != "" {
		c.Devices.BB.IP = v
	}
	if v := getenv(EnvPCIP); v != "" {
		c.Devices.PC.IP = v
	}
	for _, d := range []*client.Device{&c.Devices.BB, &c.Devices.PC} {
		if v := getenv(EnvUser); v != "" {
			d.User = v
		}
		if v := getenv(EnvPass); v != "" {
			d.Password = v
		}
	}
}

// Validate reports missing or out-of-range settings.
func (c Config) Validate() error {
	var errs []error
	if c.Devices.BB.IP == "" {
		errs = append(errs, fmt.Errorf("devices.bb.ip is required (or set %s)", EnvBBIP))
	}
	if c.Devices.PC.IP == "" {
		errs = append(errs, fmt.Errorf("devices.pc.ip is required (or set %s)", EnvPCIP))
	}
	if c.Duration <= 0 {
		errs = append(errs, fmt.Errorf("duration must be positive, got %d", c.Duration))
	}
	if c.Settle < 0 {
		errs = append(errs, fmt.Errorf("settle must not be negative, got %s", c.Settle))
	}
	return errors.Join(errs...)
}

// Options returns the throughput options of the run.
func (c Config) Options() throughput.Options {
	return throughput.Options{
		Duration:          c.Duration,
		Bandwidth:         c.Bandwidth,
		Parallel:          c.Parallel,
		Port:              c.Port,
		OverlapMonitoring: c.OverlapMonitoring,
	}
}

// Targets returns the devices in the driver's form.
func (c Config) Targets() throughput.Devices {
	return throughput.Devices{BB: c.Devices.BB, PC: c.Devices.PC}
}
