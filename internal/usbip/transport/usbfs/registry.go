//go:build linux

package usbfs

import (
	"context"
	"fmt"
	"sync"

	"usbipd/internal/usbip/transport"
)

// ClaimRegistry opens devices under /dev/bus/usb on demand and tracks
// which busids are currently claimed.
type ClaimRegistry struct {
	mu      sync.Mutex
	claimed map[string]bool
}

// NewClaimRegistry returns an empty registry.
func NewClaimRegistry() *ClaimRegistry {
	return &ClaimRegistry{claimed: make(map[string]bool)}
}

// Claim opens dev's usbfs device file and marks it claimed.
func (r *ClaimRegistry) Claim(ctx context.Context, dev transport.Device) (transport.ClaimHandle, error) {
	r.mu.Lock()
	if r.claimed[dev.BusID] {
		r.mu.Unlock()
		return nil, fmt.Errorf("usbfs: busid %q already claimed", dev.BusID)
	}
	r.claimed[dev.BusID] = true
	r.mu.Unlock()

	path, err := FindDevicePath(dev.BusNum, dev.DevNum)
	if err != nil {
		r.mu.Lock()
		delete(r.claimed, dev.BusID)
		r.mu.Unlock()
		return nil, err
	}
	t, err := Open(dev, path)
	if err != nil {
		r.mu.Lock()
		delete(r.claimed, dev.BusID)
		r.mu.Unlock()
		return nil, err
	}
	return &registryClaim{registry: r, busID: dev.BusID, transport: t}, nil
}

// IsClaimed reports whether busID currently has an outstanding claim.
func (r *ClaimRegistry) IsClaimed(busID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.claimed[busID]
}

type registryClaim struct {
	registry  *ClaimRegistry
	busID     string
	transport *Transport
	once      sync.Once
}

func (c *registryClaim) Device() transport.Device          { return c.transport.Device() }
func (c *registryClaim) Transport() transport.UsbTransport { return c.transport }

func (c *registryClaim) Release() {
	c.once.Do(func() {
		c.transport.Release()
		c.registry.mu.Lock()
		delete(c.registry.claimed, c.busID)
		c.registry.mu.Unlock()
	})
}
