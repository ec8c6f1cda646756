//go:build !mips && !mipsle

// Package gousb implements transport.UsbTransport against real local
// hardware via github.com/google/gousb (libusb), adapted from the
// claim/endpoint lifecycle this codebase used to drive ASIC hardware
// directly over USB, generalized here to any control/bulk/interrupt
// transfer a SUBMIT PDU can describe.
package gousb

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/gousb"

	"usbipd/internal/usbip/errcode"
	"usbipd/internal/usbip/transport"
)

// Transport drives one claimed USB device through gousb. It satisfies
// transport.UsbTransport and transport.ClaimHandle both, since gousb's
// config/interface claim IS the exclusive-access token this server
// needs to hand back as a ClaimHandle.
type Transport struct {
	mu     sync.Mutex
	dev    transport.Device
	ctx    *gousb.Context
	handle *gousb.Device
	config *gousb.Config
	intf   *gousb.Interface

	cancelMu sync.Mutex
	cancels  map[uint32]context.CancelFunc
}

// Open opens dev by vendor/product ID, sets its first configuration,
// and claims its first interface, mirroring the teacher's
// OpenUSBDevice/claimInterface sequence.
func Open(dev transport.Device) (*Transport, error) {
	ctx := gousb.NewContext()

	handle, err := ctx.OpenDeviceWithVIDPID(gousb.ID(dev.IDVendor), gousb.ID(dev.IDProduct))
	if err != nil {
		ctx.Close()
		return nil, fmt.Errorf("gousb: open %s: %w", dev.BusID, err)
	}
	if handle == nil {
		ctx.Close()
		return nil, fmt.Errorf("gousb: device %s not present (VID:%#04x PID:%#04x)", dev.BusID, dev.IDVendor, dev.IDProduct)
	}

	config, err := handle.Config(int(dev.BConfigurationValue))
	if err != nil {
		handle.Close()
		ctx.Close()
		return nil, fmt.Errorf("gousb: set config on %s: %w", dev.BusID, err)
	}

	intf, err := config.Interface(0, 0)
	if err != nil {
		config.Close()
		handle.Close()
		ctx.Close()
		return nil, fmt.Errorf("gousb: claim interface on %s: %w", dev.BusID, err)
	}

	return &Transport{
		dev:     dev,
		ctx:     ctx,
		handle:  handle,
		config:  config,
		intf:    intf,
		cancels: make(map[uint32]context.CancelFunc),
	}, nil
}

// Device returns the device this transport was opened for.
func (t *Transport) Device() transport.Device { return t.dev }

// Transport satisfies transport.ClaimHandle by returning itself.
func (t *Transport) Transport() transport.UsbTransport { return t }

// Release closes the interface, config, device and context, in that
// order, matching the teacher's Close().
func (t *Transport) Release() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.intf != nil {
		t.intf.Close()
		t.intf = nil
	}
	if t.config != nil {
		t.config.Close()
		t.config = nil
	}
	if t.handle != nil {
		t.handle.Close()
		t.handle = nil
	}
	if t.ctx != nil {
		t.ctx.Close()
		t.ctx = nil
	}
}

// Cancel is best-effort: gousb does not expose true mid-transfer
// cancellation below the context passed to ReadContext/WriteContext,
// so Cancel just cancels that context if the transfer registered one.
func (t *Transport) Cancel(seqnum uint32) {
	t.cancelMu.Lock()
	cancel, ok := t.cancels[seqnum]
	t.cancelMu.Unlock()
	if ok {
		cancel()
	}
}

func (t *Transport) registerCancel(seqnum uint32, cancel context.CancelFunc) {
	t.cancelMu.Lock()
	t.cancels[seqnum] = cancel
	t.cancelMu.Unlock()
}

func (t *Transport) unregisterCancel(seqnum uint32) {
	t.cancelMu.Lock()
	delete(t.cancels, seqnum)
	t.cancelMu.Unlock()
}

// Transfer executes one URB's worth of transfer against the claimed
// device. Isochronous transfers are not exposed by gousb's high-level
// API; requests of that kind are reported as a protocol error rather
// than silently downgraded to bulk.
func (t *Transport) Transfer(ctx context.Context, req transport.TransferRequest) (transport.TransferResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	t.registerCancel(req.Seqnum, cancel)
	defer t.unregisterCancel(req.Seqnum)
	defer cancel()

	switch req.Kind {
	case transport.KindControl:
		return t.transferControl(ctx, req)
	case transport.KindBulk, transport.KindInterrupt:
		return t.transferEndpoint(ctx, req)
	case transport.KindIsochronous:
		return transport.TransferResult{Outcome: errcode.OutcomeProtocolError}, fmt.Errorf("gousb: isochronous transfers unsupported")
	default:
		return transport.TransferResult{Outcome: errcode.OutcomeProtocolError}, fmt.Errorf("gousb: unknown transfer kind %d", req.Kind)
	}
}

func (t *Transport) transferControl(ctx context.Context, req transport.TransferRequest) (transport.TransferResult, error) {
	t.mu.Lock()
	handle := t.handle
	t.mu.Unlock()
	if handle == nil {
		return transport.TransferResult{Outcome: errcode.OutcomeDeviceGone}, fmt.Errorf("gousb: device released")
	}

	requestType := req.Setup[0]
	request := req.Setup[1]
	value := uint16(req.Setup[2]) | uint16(req.Setup[3])<<8
	index := uint16(req.Setup[4]) | uint16(req.Setup[5])<<8

	if req.Direction == transport.DirectionIn {
		buf := make([]byte, req.InLength)
		n, err := handle.Control(requestType, request, value, index, buf)
		if err != nil {
			return classifyErr(err)
		}
		return transport.TransferResult{Outcome: errcode.OutcomeOK, ActualLength: uint32(n), Data: buf[:n]}, nil
	}

	n, err := handle.Control(requestType, request, value, index, req.OutData)
	if err != nil {
		return classifyErr(err)
	}
	return transport.TransferResult{Outcome: errcode.OutcomeOK, ActualLength: uint32(n)}, nil
}

func (t *Transport) transferEndpoint(ctx context.Context, req transport.TransferRequest) (transport.TransferResult, error) {
	t.mu.Lock()
	intf := t.intf
	t.mu.Unlock()
	if intf == nil {
		return transport.TransferResult{Outcome: errcode.OutcomeDeviceGone}, fmt.Errorf("gousb: device released")
	}

	if req.Direction == transport.DirectionIn {
		ep, err := intf.InEndpoint(int(req.Endpoint))
		if err != nil {
			return classifyErr(err)
		}
		buf := make([]byte, req.InLength)
		n, err := ep.ReadContext(ctx, buf)
		if err != nil {
			return classifyErr(err)
		}
		return transport.TransferResult{Outcome: errcode.OutcomeOK, ActualLength: uint32(n), Data: buf[:n]}, nil
	}

	ep, err := intf.OutEndpoint(int(req.Endpoint))
	if err != nil {
		return classifyErr(err)
	}
	n, err := ep.WriteContext(ctx, req.OutData)
	if err != nil {
		return classifyErr(err)
	}
	return transport.TransferResult{Outcome: errcode.OutcomeOK, ActualLength: uint32(n)}, nil
}

func classifyErr(err error) (transport.TransferResult, error) {
	if err == context.DeadlineExceeded {
		return transport.TransferResult{Outcome: errcode.OutcomeTimeout}, err
	}
	return transport.TransferResult{Outcome: errcode.OutcomeProtocolError}, err
}
