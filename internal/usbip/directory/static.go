// Package directory provides the in-memory reference DeviceDirectory
// and ClaimRegistry used by cmd/usbipd's default "static" transport
// mode and by the test suite, per SPEC_FULL.md §4.9.
package directory

import (
	"context"
	"fmt"
	"sync"

	"usbipd/internal/usbip/transport"
)

// StaticDirectory is a fixed, in-memory device table keyed by busid.
// It implements both transport.DeviceDirectory and
// transport.ClaimRegistry: a device is claimed by at most one
// connection at a time.
type StaticDirectory struct {
	mu         sync.Mutex
	devices    map[string]transport.Device
	transports map[string]transport.UsbTransport
	claimed    map[string]bool
	allowed    map[string]bool // nil means "all allowed"
}

// NewStaticDirectory returns an empty directory. allowedBusIDs, if
// non-empty, restricts List/Lookup/Claim to that set (SPEC_FULL.md
// property 11); an empty slice means "all allowed".
func NewStaticDirectory(allowedBusIDs []string) *StaticDirectory {
	var allowed map[string]bool
	if len(allowedBusIDs) > 0 {
		allowed = make(map[string]bool, len(allowedBusIDs))
		for _, id := range allowedBusIDs {
			allowed[id] = true
		}
	}
	return &StaticDirectory{
		devices:    make(map[string]transport.Device),
		transports: make(map[string]transport.UsbTransport),
		claimed:    make(map[string]bool),
		allowed:    allowed,
	}
}

// Register adds or replaces a device and the transport that will
// serve its transfers once claimed.
func (s *StaticDirectory) Register(dev transport.Device, t transport.UsbTransport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices[dev.BusID] = dev
	s.transports[dev.BusID] = t
}

func (s *StaticDirectory) isAllowed(busID string) bool {
	if s.allowed == nil {
		return true
	}
	return s.allowed[busID]
}

// List returns every registered, allow-listed device.
func (s *StaticDirectory) List(ctx context.Context) ([]transport.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]transport.Device, 0, len(s.devices))
	for busID, dev := range s.devices {
		if s.isAllowed(busID) {
			out = append(out, dev)
		}
	}
	return out, nil
}

// Lookup returns a single allow-listed device by busid.
func (s *StaticDirectory) Lookup(ctx context.Context, busID string) (transport.Device, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isAllowed(busID) {
		return transport.Device{}, false, nil
	}
	dev, ok := s.devices[busID]
	return dev, ok, nil
}

// Claim grants exclusive access to dev's transport, failing if it is
// already claimed by another connection or not allow-listed.
func (s *StaticDirectory) Claim(ctx context.Context, dev transport.Device) (transport.ClaimHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isAllowed(dev.BusID) {
		return nil, fmt.Errorf("directory: busid %q not allowed", dev.BusID)
	}
	if s.claimed[dev.BusID] {
		return nil, fmt.Errorf("directory: busid %q already claimed", dev.BusID)
	}
	t, ok := s.transports[dev.BusID]
	if !ok {
		return nil, fmt.Errorf("directory: busid %q has no registered transport", dev.BusID)
	}
	s.claimed[dev.BusID] = true
	return &staticClaim{dir: s, dev: dev, transport: t}, nil
}

// IsClaimed reports whether busID currently has an outstanding claim.
func (s *StaticDirectory) IsClaimed(busID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.claimed[busID]
}

type staticClaim struct {
	dir       *StaticDirectory
	dev       transport.Device
	transport transport.UsbTransport
	once      sync.Once
}

func (c *staticClaim) Device() transport.Device          { return c.dev }
func (c *staticClaim) Transport() transport.UsbTransport { return c.transport }

func (c *staticClaim) Release() {
	c.once.Do(func() {
		c.dir.mu.Lock()
		defer c.dir.mu.Unlock()
		delete(c.dir.claimed, c.dev.BusID)
	})
}
