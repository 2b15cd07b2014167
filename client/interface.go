package client

import (
	"context"
)

// Interface defines the minimal SSH interaction contract.
type Interface interface {
	Connect(ctx context.Context) error
	RunCommand(ctx context.Context, command string) (Result, error)
	Start(ctx context.Context, command string) error
	Close()
}

// Factory builds an unconnected Interface for a device.
type Factory func(dev Device) Interface

// DefaultFactory returns SSH clients.
func DefaultFactory(dev Device) Interface {
	return NewClient(dev.Addr(), dev.Username(), dev.Secret())
}

// Exec opens a session to dev, runs a single command and closes the session
// before returning. Remote non-zero exit is reported in Result, not as an error.
func Exec(ctx context.Context, newClient Factory, dev Device, command string) (Result, error) {
	c := newClient(dev)
	defer c.Close()

	if err := c.Connect(ctx); err != nil {
		return Result{}, err
	}
	return c.RunCommand(ctx, command)
}
