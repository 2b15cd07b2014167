package throughput

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/pascal71/ethperf/client"
)

// Kind classifies a step of a run.
type Kind string

const (
	KindServer   Kind = "server"
	KindMonitor  Kind = "monitor"
	KindClient   Kind = "client"
	KindSnapshot Kind = "snapshot"
	KindPing     Kind = "ping"
)

// Step is the outcome of one remote action.
type Step struct {
	Subtest string
	Kind    Kind
	Device  string
	Command string
	client.Result
}

// Warning returns a non-nil error when the remote command wrote to stderr
// or exited non-zero.
func (s Step) Warning() error {
	stderr := strings.TrimSpace(s.Stderr)
	if stderr == "" && s.ExitCode == 0 {
		return nil
	}
	where := string(s.Kind) + " on " + s.Device
	if s.Subtest != "" {
		where = s.Subtest + ": " + where
	}
	if stderr == "" {
		return fmt.Errorf("%s: exit status %d", where, s.ExitCode)
	}
	return fmt.Errorf("%s: exit status %d: %s", where, s.ExitCode, stderr)
}

// Report accumulates the steps of a run in execution order.
type Report struct {
	Steps []Step
}

func (r *Report) add(s Step) {
	r.Steps = append(r.Steps, s)
}

// Count returns how many steps of kind k ran.
func (r *Report) Count(k Kind) int {
	n := 0
	for _, s := range r.Steps {
		if s.Kind == k {
			n++
		}
	}
	return n
}

// Warnings returns the steps that logged a warning.
func (r *Report) Warnings() []Step {
	var out []Step
	for _, s := range r.Steps {
		if s.Warning() != nil {
			out = append(out, s)
		}
	}
	return out
}

// Err combines every step warning, or returns nil if there were none.
func (r *Report) Err() error {
	var result *multierror.Error
	for _, s := range r.Steps {
		if err := s.Warning(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
