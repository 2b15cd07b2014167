package client

import (
	"net"
	"strconv"
)

const (
	// DefaultUser and DefaultPassword are used when a device omits credentials.
	DefaultUser     = "osboxes"
	DefaultPassword = "spanidea"
	// DefaultPort is the SSH port appended to bare addresses.
	DefaultPort = 22
)

// Device identifies a remote host and its credentials.
type Device struct {
	IP       string `yaml:"ip"`
	User     string `yaml:"user,omitempty"`
	Password string `yaml:"password,omitempty"`
}

// Addr returns the dialable host:port of the device.
func (d Device) Addr() string {
	if _, _, err := net.SplitHostPort(d.IP); err == nil {
		return d.IP
	}
	return net.JoinHostPort(d.IP, strconv.Itoa(DefaultPort))
}

// Host returns the device address without the SSH port.
func (d Device) Host() string {
	if host, _, err := net.SplitHostPort(d.IP); err == nil {
		return host
	}
	return d.IP
}

// Username returns the configured user or DefaultUser.
func (d Device) Username() string {
	if d.User == "" {
		return DefaultUser
	}
	return d.User
}

// Secret returns the configured password or DefaultPassword.
func (d Device) Secret() string {
	if d.Password == "" {
		return DefaultPassword
	}
	return d.Password
}
