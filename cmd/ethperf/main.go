// Command ethperf runs the ethernet throughput suite between a board and a
// peer PC over SSH, logging iperf3 output and resource usage.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/integrii/flaggy"

	"github.com/pascal71/ethperf/client"
	"github.com/pascal71/ethperf/config"
	"github.com/pascal71/ethperf/runlog"
	"github.com/pascal71/ethperf/throughput"
)

type flags struct {
	configPath string
	debug      bool

	duration  int
	bandwidth string
	overlap   bool

	device string
	phase  string

	from   string
	target string
}

func main() {
	if err := execute(os.Args[1:]); err != nil {
		log.Fatalf("%v", err)
	}
}

func execute(args []string) error {
	var f flags

	flaggy.ResetParser()
	flaggy.SetName("ethperf")
	flaggy.SetDescription("Ethernet throughput suite driving iperf3 over SSH")
	flaggy.String(&f.configPath, "c", "config", "Suite configuration file (YAML).")
	flaggy.Bool(&f.debug, "d", "debug", "Record debug diagnostics in the run log.")

	runCmd := flaggy.NewSubcommand("run")
	runCmd.Description = "Run every throughput subtest between the board and the PC"
	runCmd.Int(&f.duration, "t", "duration", "Seconds per client run and monitoring pass.")
	runCmd.String(&f.bandwidth, "b", "bandwidth", "UDP bandwidth cap, e.g. 500M.")
	runCmd.Bool(&f.overlap, "o", "overlap", "Sample resources while the first client of each subtest runs.")

	statsCmd := flaggy.NewSubcommand("stats")
	statsCmd.Description = "Take a one-shot CPU, memory and interrupt sample"
	f.device, f.phase = "bb", "SNAPSHOT"
	statsCmd.String(&f.device, "", "device", "Device to sample: bb or pc.")
	statsCmd.String(&f.phase, "p", "phase", "Phase label of the sample.")

	pingCmd := flaggy.NewSubcommand("ping")
	pingCmd.Description = "Ping one device from the other"
	f.from = "pc"
	pingCmd.String(&f.from, "", "from", "Device to ping from: bb or pc.")
	pingCmd.String(&f.target, "", "target", "Address to ping. Defaults to the other device.")

	flaggy.AttachSubcommand(runCmd, 1)
	flaggy.AttachSubcommand(statsCmd, 1)
	flaggy.AttachSubcommand(pingCmd, 1)
	flaggy.ParseArgs(args)

	if !runCmd.Used && !statsCmd.Used && !pingCmd.Used {
		flaggy.ShowHelpAndExit("No command specified")
	}

	cfg, err := config.Load(f.configPath)
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if f.duration > 0 {
		cfg.Duration = f.duration
	}
	if f.bandwidth != "" {
		cfg.Bandwidth = f.bandwidth
	}
	if f.overlap {
		cfg.OverlapMonitoring = true
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := runlog.New(&runlog.State{}, os.Stdout)
	if _, err := logger.Initialize(cfg.LogDir); err != nil {
		return fmt.Errorf("log init error: %w", err)
	}
	level := slog.LevelInfo
	if f.debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(logger.Handler(level)))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	d := throughput.New(client.DefaultFactory, logger)
	d.Settle = cfg.Settle
	devs := cfg.Targets()

	switch {
	case runCmd.Used:
		err = run(ctx, d, cfg)
	case statsCmd.Used:
		var dev client.Device
		if dev, err = pick(devs, f.device); err == nil {
			err = report(d.Snapshot(ctx, dev, f.phase))
		}
	case pingCmd.Used:
		err = ping(ctx, d, devs, f.from, f.target)
	}
	return err
}

func run(ctx context.Context, d *throughput.Driver, cfg config.Config) error {
	slog.InfoContext(ctx, "Starting throughput run",
		"bb", cfg.Devices.BB.Host(), "pc", cfg.Devices.PC.Host(),
		"duration", cfg.Duration, "bandwidth", cfg.Bandwidth)

	rep, err := d.Run(ctx, cfg.Targets(), cfg.Options())
	if rep != nil {
		if serr := d.Summarize(rep); serr != nil && err == nil {
			err = serr
		}
	}
	return err
}

func ping(ctx context.Context, d *throughput.Driver, devs throughput.Devices, from, target string) error {
	src, err := pick(devs, from)
	if err != nil {
		return err
	}
	if target == "" {
		other := throughput.BB
		if strings.EqualFold(from, "bb") {
			other = throughput.PC
		}
		target = devs.Get(other).Host()
	}
	return report(d.Ping(ctx, src, target))
}

func report(step throughput.Step, err error) error {
	if err != nil {
		return err
	}
	if w := step.Warning(); w != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", w)
	}
	return nil
}

func pick(devs throughput.Devices, name string) (client.Device, error) {
	switch strings.ToLower(name) {
	case "bb":
		return devs.BB, nil
	case "pc":
		return devs.PC, nil
	}
	return client.Device{}, fmt.Errorf("unknown device %q (want bb or pc)", name)
}
