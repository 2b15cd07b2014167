package throughput

import "github.com/pascal71/ethperf/client"

// Role names one of the two devices under test.
type Role int

const (
	// BB is the board under test.
	BB Role = iota
	// PC is the peer workstation.
	PC
)

func (r Role) String() string {
	switch r {
	case BB:
		return "BB"
	case PC:
		return "PC"
	}
	return "unknown"
}

// Devices holds the two endpoints of a run.
type Devices struct {
	BB client.Device
	PC client.Device
}

// Get returns the device playing role r.
func (d Devices) Get(r Role) client.Device {
	if r == PC {
		return d.PC
	}
	return d.BB
}

// Leg is one client run from a device towards the other.
type Leg struct {
	From Role
	To   Role
}

// Subtest is one labeled phase: a server start on Server, a monitoring pass
// on Monitor, then each client leg in order.
type Subtest struct {
	Name    string
	Server  Role
	Monitor Role
	UDP     bool
	Clients []Leg
}

// Sequence is the default subtest order.
var Sequence = []Subtest{
	{Name: "PC → BB TCP", Server: BB, Monitor: BB, Clients: []Leg{{From: PC, To: BB}}},
	{Name: "PC → BB UDP", Server: BB, Monitor: BB, UDP: true, Clients: []Leg{{From: PC, To: BB}}},
	{Name: "BB → PC TCP", Server: PC, Monitor: BB, Clients: []Leg{{From: BB, To: PC}}},
	{Name: "BB → PC UDP", Server: PC, Monitor: BB, UDP: true, Clients: []Leg{{From: BB, To: PC}}},
	{Name: "Bidirectional TCP", Server: PC, Monitor: BB, Clients: []Leg{{From: BB, To: PC}, {From: PC, To: BB}}},
}
