// Package monitor samples CPU, memory and interrupt statistics on a device.
package monitor

import (
	"context"
	"fmt"
	"strings"

	"github.com/pascal71/ethperf/client"
	"github.com/pascal71/ethperf/runlog"
)

// Diagnostic commands. They must stay byte-for-byte stable.
const (
	CPUCommand  = "sar -P ALL 1 1"
	MemCommand  = "free -h"
	IntrCommand = "cat /proc/interrupts | head -20"
)

// Check is one labeled diagnostic command.
type Check struct {
	Label   string
	Command string
}

// Checks is the fixed battery run by Snapshot, in order.
var Checks = []Check{
	{Label: "CPU", Command: CPUCommand},
	{Label: "MEM", Command: MemCommand},
	{Label: "INTR", Command: IntrCommand},
}

// loopScript repeats the battery once per second for %d iterations.
const loopScript = `
    for i in $(seq 1 %d); do
        echo "=== [$(date +%%H:%%M:%%S)] ===";
        sar -P ALL 1 1;
        free -h;
        head -20 /proc/interrupts;
        echo "-----------------------------";
        sleep 1;
    done
    `

// LoopCommand returns the shell loop run by Durable.
func LoopCommand(seconds int) string {
	return fmt.Sprintf(loopScript, seconds)
}

// Sampler runs diagnostic commands on devices and logs their output.
type Sampler struct {
	NewClient client.Factory
	Log       *runlog.Logger
}

// New returns a Sampler dialing devices with newClient.
func New(newClient client.Factory, log *runlog.Logger) *Sampler {
	if newClient == nil {
		newClient = client.DefaultFactory
	}
	return &Sampler{NewClient: newClient, Log: log}
}

// Snapshot runs every check once on dev over a single connection and logs
// the combined output as one entry tagged with phase. The per-check results
// are returned in Checks order.
func (s *Sampler) Snapshot(ctx context.Context, dev client.Device, phase string) ([]client.Result, error) {
	c := s.NewClient(dev)
	defer c.Close()

	if err := c.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", dev.Host(), err)
	}
	if err := s.Log.Logf("📊 Collecting [%s] stats from %s", phase, dev.Host()); err != nil {
		return nil, err
	}

	var b strings.Builder
	results := make([]client.Result, 0, len(Checks))
	for _, p := range Checks {
		res, err := c.RunCommand(ctx, p.Command)
		if err != nil {
			return results, fmt.Errorf("%s check on %s: %w", p.Label, dev.Host(), err)
		}
		results = append(results, res)
		fmt.Fprintf(&b, "$ %s => %s\n%s\n", p.Label, p.Command, res.Stdout)
	}

	if err := s.Log.Logf("📊 [%s] Stats:\n%s", phase, b.String()); err != nil {
		return results, err
	}
	for i, res := range results {
		if err := s.Log.Failure(Checks[i].Label+" check", res.Stderr, res.ExitCode); err != nil {
			return results, err
		}
	}
	return results, nil
}

// Durable runs the sampling loop on dev for seconds iterations and blocks until
// the loop finishes. The whole loop output is logged as one entry.
func (s *Sampler) Durable(ctx context.Context, dev client.Device, seconds int) (client.Result, error) {
	c := s.NewClient(dev)
	defer c.Close()

	if err := c.Connect(ctx); err != nil {
		return client.Result{}, fmt.Errorf("connecting to %s: %w", dev.Host(), err)
	}
	if err := s.Log.Logf("🛠️ Running inline monitoring on %s for %ds during iperf", dev.Host(), seconds); err != nil {
		return client.Result{}, err
	}

	res, err := c.RunCommand(ctx, LoopCommand(seconds))
	c.Close()
	if err != nil {
		return res, fmt.Errorf("monitoring %s: %w", dev.Host(), err)
	}

	if err := s.Log.Logf("📊 [DURING] Monitoring from %s:\n%s", dev.Host(), res.Stdout); err != nil {
		return res, err
	}
	return res, s.Log.Failure("monitoring", res.Stderr, res.ExitCode)
}
