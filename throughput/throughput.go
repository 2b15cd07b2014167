// Package throughput drives iperf3 between two devices over SSH while
// sampling resource usage on one of them.
package throughput

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"
	"golang.org/x/sync/errgroup"

	"github.com/pascal71/ethperf/client"
	"github.com/pascal71/ethperf/monitor"
	"github.com/pascal71/ethperf/runlog"
)

const (
	DefaultPort      = 5201
	DefaultParallel  = 5
	DefaultDuration  = 10
	DefaultBandwidth = "1G"

	// ServerCommand replaces any running iperf3 with a daemonized server.
	ServerCommand = "pkill iperf3; iperf3 -s -D"
	// ServerSettleTime is the pause after ServerCommand before a client may
	// connect. Server output is never read.
	ServerSettleTime = 2 * time.Second

	pingCount = 4
)

// Options tune a throughput run. Zero values take the defaults.
type Options struct {
	Duration  int    // Seconds per client run and monitoring pass
	Bandwidth string // UDP bandwidth cap, e.g. "500M"
	Parallel  int    // Parallel client streams
	Port      int    // Server port

	// OverlapMonitoring runs the monitoring pass concurrently with the first
	// client run of each subtest instead of before it.
	OverlapMonitoring bool
}

func (o Options) withDefaults() Options {
	if o.Duration <= 0 {
		o.Duration = DefaultDuration
	}
	if o.Bandwidth == "" {
		o.Bandwidth = DefaultBandwidth
	}
	if o.Parallel <= 0 {
		o.Parallel = DefaultParallel
	}
	if o.Port <= 0 {
		o.Port = DefaultPort
	}
	return o
}

// ClientCommand returns the iperf3 client invocation against target.
// Only UDP runs carry a bandwidth cap.
func ClientCommand(target string, o Options, udp bool) string {
	o = o.withDefaults()
	args := []string{"iperf3", "-c", target, "-t", strconv.Itoa(o.Duration), "-P", strconv.Itoa(o.Parallel)}
	if o.Port != DefaultPort {
		args = append(args, "-p", strconv.Itoa(o.Port))
	}
	if udp {
		args = append(args, "-u", "-b", o.Bandwidth)
	}
	return shellquote.Join(args...)
}

// Driver runs the subtest sequence. Every remote action opens and closes
// its own connection.
type Driver struct {
	NewClient client.Factory
	Log       *runlog.Logger
	Sampler   *monitor.Sampler
	Sequence  []Subtest
	// Settle is waited after starting a server.
	Settle time.Duration
}

// New returns a Driver running the default Sequence.
func New(newClient client.Factory, log *runlog.Logger) *Driver {
	if newClient == nil {
		newClient = client.DefaultFactory
	}
	return &Driver{
		NewClient: newClient,
		Log:       log,
		Sampler:   monitor.New(newClient, log),
		Sequence:  Sequence,
		Settle:    ServerSettleTime,
	}
}

// Run executes every subtest in order. Remote command failures are logged
// and recorded in the report without stopping the run; connection and log
// write failures abort it.
func (d *Driver) Run(ctx context.Context, devs Devices, opts Options) (*Report, error) {
	opts = opts.withDefaults()
	report := &Report{}
	for _, st := range d.Sequence {
		if err := d.RunSubtest(ctx, st, devs, opts, report); err != nil {
			return report, fmt.Errorf("%s: %w", st.Name, err)
		}
	}
	return report, nil
}

// RunSubtest starts the server, monitors and runs each client leg of st,
// appending its steps to report.
func (d *Driver) RunSubtest(ctx context.Context, st Subtest, devs Devices, opts Options, report *Report) error {
	opts = opts.withDefaults()
	if err := d.Log.Log("📡 " + st.Name); err != nil {
		return err
	}

	step, err := d.StartServer(ctx, devs.Get(st.Server))
	if err != nil {
		return err
	}
	step.Subtest = st.Name
	report.add(step)

	legs := st.Clients
	if opts.OverlapMonitoring && len(legs) > 0 {
		if err := d.overlap(ctx, st, devs, opts, report); err != nil {
			return err
		}
		legs = legs[1:]
	} else {
		step, err := d.Monitor(ctx, devs.Get(st.Monitor), opts.Duration)
		if err != nil {
			return err
		}
		step.Subtest = st.Name
		report.add(step)
	}

	for _, leg := range legs {
		step, err := d.RunClient(ctx, devs.Get(leg.From), devs.Get(leg.To).Host(), opts, st.UDP)
		if err != nil {
			return err
		}
		step.Subtest = st.Name
		report.add(step)
	}
	return nil
}

func (d *Driver) overlap(ctx context.Context, st Subtest, devs Devices, opts Options, report *Report) error {
	var mon, cli Step
	leg := st.Clients[0]

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		mon, err = d.Monitor(gctx, devs.Get(st.Monitor), opts.Duration)
		return err
	})
	g.Go(func() error {
		var err error
		cli, err = d.RunClient(gctx, devs.Get(leg.From), devs.Get(leg.To).Host(), opts, st.UDP)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	mon.Subtest, cli.Subtest = st.Name, st.Name
	report.add(mon)
	report.add(cli)
	return nil
}

// StartServer replaces any iperf3 on host with a detached server, waits
// Settle and closes the connection without reading output.
func (d *Driver) StartServer(ctx context.Context, host client.Device) (Step, error) {
	step := Step{Kind: KindServer, Device: host.Host(), Command: ServerCommand}

	c := d.NewClient(host)
	defer c.Close()

	if err := c.Connect(ctx); err != nil {
		return step, fmt.Errorf("connecting to %s: %w", host.Host(), err)
	}
	if err := d.Log.Logf("🔧 Starting iperf3 server on %s", host.Host()); err != nil {
		return step, err
	}
	if err := c.Start(ctx, ServerCommand); err != nil {
		return step, err
	}

	select {
	case <-ctx.Done():
		return step, ctx.Err()
	case <-time.After(d.Settle):
	}
	return step, nil
}

// Monitor runs durable sampling on dev for seconds.
func (d *Driver) Monitor(ctx context.Context, dev client.Device, seconds int) (Step, error) {
	res, err := d.Sampler.Durable(ctx, dev, seconds)
	return Step{
		Kind:    KindMonitor,
		Device:  dev.Host(),
		Command: monitor.LoopCommand(seconds),
		Result:  res,
	}, err
}

// RunClient runs an iperf3 client on host against target and logs its
// output. Stderr output or a non-zero exit is logged as a warning.
func (d *Driver) RunClient(ctx context.Context, host client.Device, target string, opts Options, udp bool) (Step, error) {
	cmd := ClientCommand(target, opts, udp)
	step := Step{Kind: KindClient, Device: host.Host(), Command: cmd}

	if err := d.Log.Logf("🚀 Running iperf3:\n%s", cmd); err != nil {
		return step, err
	}
	res, err := client.Exec(ctx, d.NewClient, host, cmd)
	step.Result = res
	if err != nil {
		return step, fmt.Errorf("iperf3 client on %s: %w", host.Host(), err)
	}
	return step, d.logOutput("iperf3", res)
}

// Ping runs ping from source towards target and logs the reply.
func (d *Driver) Ping(ctx context.Context, source client.Device, target string) (Step, error) {
	cmd := shellquote.Join("ping", "-c", strconv.Itoa(pingCount), target)
	step := Step{Kind: KindPing, Device: source.Host(), Command: cmd}

	if err := d.Log.Logf("📡 Pinging %s from %s", target, source.Host()); err != nil {
		return step, err
	}
	res, err := client.Exec(ctx, d.NewClient, source, cmd)
	step.Result = res
	if err != nil {
		return step, fmt.Errorf("ping from %s: %w", source.Host(), err)
	}
	return step, d.logOutput("ping", res)
}

// Snapshot takes a one-shot resource sample of dev tagged with phase.
func (d *Driver) Snapshot(ctx context.Context, dev client.Device, phase string) (Step, error) {
	results, err := d.Sampler.Snapshot(ctx, dev, phase)
	step := Step{Kind: KindSnapshot, Device: dev.Host(), Subtest: phase}

	var cmds, stderr []string
	for i, res := range results {
		cmds = append(cmds, monitor.Checks[i].Command)
		if s := strings.TrimSpace(res.Stderr); s != "" {
			stderr = append(stderr, monitor.Checks[i].Label+": "+s)
		}
		if res.ExitCode != 0 && step.ExitCode == 0 {
			step.ExitCode = res.ExitCode
		}
	}
	step.Command = strings.Join(cmds, "; ")
	step.Stderr = strings.Join(stderr, "\n")
	return step, err
}

// Summarize records step counts and any step warnings of rep in the run log.
func (d *Driver) Summarize(rep *Report) error {
	err := d.Log.Logf("📋 Run summary: servers started: %d, monitoring passes: %d, client runs: %d",
		rep.Count(KindServer), rep.Count(KindMonitor), rep.Count(KindClient))
	if err != nil {
		return err
	}
	if werr := rep.Err(); werr != nil {
		return d.Log.Logf("📋 %d step(s) logged warnings: %v", len(rep.Warnings()), werr)
	}
	return nil
}

func (d *Driver) logOutput(tool string, res client.Result) error {
	if strings.TrimSpace(res.Stdout) != "" {
		if err := d.Log.Logf("📥 %s output:\n%s", tool, res.Stdout); err != nil {
			return err
		}
	}
	return d.Log.Failure(tool, res.Stderr, res.ExitCode)
}
