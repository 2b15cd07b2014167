// Package fakeclient provides an in-memory client.Interface that records
// every call, for tests of code driving remote devices.
package fakeclient

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/pascal71/ethperf/client"
)

// Op names a recorded client call.
type Op string

const (
	OpConnect Op = "connect"
	OpRun     Op = "run"
	OpStart   Op = "start"
	OpClose   Op = "close"
)

// Call is one recorded interaction with a device.
type Call struct {
	Device  string
	Op      Op
	Command string
}

// Recorder hands out fake clients and records what they were asked to do.
type Recorder struct {
	// Respond produces the result for a RunCommand. Nil returns empty output.
	Respond func(dev client.Device, command string) client.Result
	// ConnectErr, keyed by device IP, makes Connect fail.
	ConnectErr map[string]error

	mu    sync.Mutex
	calls []Call
	open  int
}

// Factory satisfies client.Factory.
func (r *Recorder) Factory(dev client.Device) client.Interface {
	return &fake{r: r, dev: dev}
}

// Calls returns a copy of every recorded call, optionally filtered by op.
func (r *Recorder) Calls(ops ...Op) []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Call
	for _, c := range r.calls {
		if len(ops) == 0 || slices.Contains(ops, c.Op) {
			out = append(out, c)
		}
	}
	return out
}

// Open reports connections that were established but not closed.
func (r *Recorder) Open() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.open
}

func (r *Recorder) record(c Call) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, c)
	switch c.Op {
	case OpConnect:
		r.open++
	case OpClose:
		r.open--
	}
}

type fake struct {
	r         *Recorder
	dev       client.Device
	connected bool
}

func (f *fake) Connect(ctx context.Context) error {
	if err := f.r.ConnectErr[f.dev.IP]; err != nil {
		return err
	}
	f.connected = true
	f.r.record(Call{Device: f.dev.IP, Op: OpConnect})
	return nil
}

func (f *fake) RunCommand(ctx context.Context, command string) (client.Result, error) {
	if !f.connected {
		return client.Result{}, client.ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return client.Result{}, err
	}
	f.r.record(Call{Device: f.dev.IP, Op: OpRun, Command: command})
	if f.r.Respond == nil {
		return client.Result{}, nil
	}
	return f.r.Respond(f.dev, command), nil
}

func (f *fake) Start(ctx context.Context, command string) error {
	if !f.connected {
		return client.ErrNotConnected
	}
	f.r.record(Call{Device: f.dev.IP, Op: OpStart, Command: command})
	return nil
}

func (f *fake) Close() {
	if !f.connected {
		return
	}
	f.connected = false
	f.r.record(Call{Device: f.dev.IP, Op: OpClose})
}

// ErrUnreachable is a convenience error for ConnectErr.
var ErrUnreachable = errors.New("fakeclient: host unreachable")
