//go:build linux

// Package usbfs implements transport.UsbTransport directly against
// Linux's usbdevfs ioctls, adapted from this codebase's raw-ioctl USB
// driver (USBDEVFS_CONTROL/USBDEVFS_BULK/USBDEVFS_CLAIMINTERFACE),
// generalized from one fixed bulk endpoint pair to any control/bulk
// transfer a SUBMIT PDU can describe. No cgo, no gousb dependency.
package usbfs

import (
	"context"
	"fmt"
	"os"
	"sync"
	"syscall"
	"time"
	"unsafe"

	"usbipd/internal/usbip/errcode"
	"usbipd/internal/usbip/transport"
)

// usbdevfs ioctl numbers, x86/ARM/MIPS little-endian encoding
// (_IOWR/_IOR('U', nr, ...) per linux/usbdevice_fs.h).
const (
	usbdevfsControl           = 0xc0185500
	usbdevfsBulk              = 0xc0105502
	usbdevfsClaimInterface    = 0x8004550f
	usbdevfsReleaseInterface  = 0x80045510
	usbdevfsReset             = 0x5514
)

type ctrlTransfer struct {
	RequestType uint8
	Request     uint8
	Value       uint16
	Index       uint16
	Length      uint16
	Timeout     uint32
	Data        unsafe.Pointer
}

type bulkTransfer struct {
	Ep      uint32
	Len     uint32
	Timeout uint32
	Data    unsafe.Pointer
}

// Transport drives one claimed device file at devicePath via ioctls.
// It satisfies both transport.UsbTransport and transport.ClaimHandle.
type Transport struct {
	mu         sync.Mutex
	dev        transport.Device
	fd         int
	ifaceClaim uint32

	cancelMu sync.Mutex
	cancels  map[uint32]context.CancelFunc
}

// Open opens devicePath (e.g. /dev/bus/usb/001/003) and claims
// interface 0, mirroring the teacher's OpenUSBDevice/claimInterface.
func Open(dev transport.Device, devicePath string) (*Transport, error) {
	fd, err := syscall.Open(devicePath, syscall.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("usbfs: open %s: %w", devicePath, err)
	}

	iface := uint32(0)
	if _, _, errno := syscall.Syscall(syscall.SYS_IOCTL, uintptr(fd), usbdevfsClaimInterface, uintptr(unsafe.Pointer(&iface))); errno != 0 {
		syscall.Close(fd)
		return nil, fmt.Errorf("usbfs: claim interface on %s: %w", devicePath, errno)
	}

	return &Transport{
		dev:        dev,
		fd:         fd,
		ifaceClaim: iface,
		cancels:    make(map[uint32]context.CancelFunc),
	}, nil
}

func (t *Transport) Device() transport.Device          { return t.dev }
func (t *Transport) Transport() transport.UsbTransport { return t }

// Release releases the claimed interface and closes the device file.
// Safe to call more than once.
func (t *Transport) Release() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fd < 0 {
		return
	}
	iface := t.ifaceClaim
	syscall.Syscall(syscall.SYS_IOCTL, uintptr(t.fd), usbdevfsReleaseInterface, uintptr(unsafe.Pointer(&iface)))
	syscall.Close(t.fd)
	t.fd = -1
}

// Cancel has no ioctl-level equivalent for an in-flight USBDEVFS_BULK
// or USBDEVFS_CONTROL syscall; this is a known limitation of the
// synchronous ioctl transport (the async USBDEVFS_SUBMITURB/REAPURB
// pair would support it but is out of scope here). Cancel cancels the
// context Transfer is waiting on, so the caller stops blocking even
// though the syscall itself keeps running in its own goroutine until
// the kernel's own timeout expires.
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

// Transfer executes one URB's worth of transfer. Isochronous transfers
// have no USBDEVFS_BULK/CONTROL equivalent and are reported as a
// protocol error. The ioctl runs on its own goroutine so Cancel (or
// ctx's own deadline) can return control to the caller without waiting
// for the syscall itself to return.
func (t *Transport) Transfer(ctx context.Context, req transport.TransferRequest) (transport.TransferResult, error) {
	t.mu.Lock()
	fd := t.fd
	t.mu.Unlock()
	if fd < 0 {
		return transport.TransferResult{Outcome: errcode.OutcomeDeviceGone}, fmt.Errorf("usbfs: device released")
	}

	timeoutMS := uint32(5000)
	if deadline, ok := ctx.Deadline(); ok {
		if d := time.Until(deadline); d > 0 {
			timeoutMS = uint32(d.Milliseconds())
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	t.registerCancel(req.Seqnum, cancel)
	defer t.unregisterCancel(req.Seqnum)
	defer cancel()

	type outcome struct {
		result transport.TransferResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		switch req.Kind {
		case transport.KindControl:
			result, err := t.control(fd, req, timeoutMS)
			done <- outcome{result, err}
		case transport.KindBulk, transport.KindInterrupt:
			result, err := t.bulk(fd, req, timeoutMS)
			done <- outcome{result, err}
		default:
			done <- outcome{transport.TransferResult{Outcome: errcode.OutcomeProtocolError}, fmt.Errorf("usbfs: unsupported transfer kind %d", req.Kind)}
		}
	}()

	select {
	case o := <-done:
		return o.result, o.err
	case <-ctx.Done():
		return transport.TransferResult{Outcome: errcode.OutcomeCancelled}, ctx.Err()
	}
}

func (t *Transport) control(fd int, req transport.TransferRequest, timeoutMS uint32) (transport.TransferResult, error) {
	requestType := req.Setup[0]
	request := req.Setup[1]
	value := uint16(req.Setup[2]) | uint16(req.Setup[3])<<8
	index := uint16(req.Setup[4]) | uint16(req.Setup[5])<<8

	var buf []byte
	if req.Direction == transport.DirectionIn {
		buf = make([]byte, req.InLength)
	} else {
		buf = req.OutData
	}
	if len(buf) == 0 {
		buf = make([]byte, 1)
	}

	ctrl := ctrlTransfer{
		RequestType: requestType,
		Request:     request,
		Value:       value,
		Index:       index,
		Length:      uint16(len(buf)),
		Timeout:     timeoutMS,
		Data:        unsafe.Pointer(&buf[0]),
	}
	n, _, errno := syscall.Syscall(syscall.SYS_IOCTL, uintptr(fd), usbdevfsControl, uintptr(unsafe.Pointer(&ctrl)))
	if errno != 0 {
		return classifyErrno(errno)
	}

	result := transport.TransferResult{Outcome: errcode.OutcomeOK, ActualLength: uint32(n)}
	if req.Direction == transport.DirectionIn {
		result.Data = buf[:n]
	}
	return result, nil
}

func (t *Transport) bulk(fd int, req transport.TransferRequest, timeoutMS uint32) (transport.TransferResult, error) {
	var buf []byte
	if req.Direction == transport.DirectionIn {
		buf = make([]byte, req.InLength)
	} else {
		buf = req.OutData
	}
	if len(buf) == 0 {
		buf = make([]byte, 1)
	}

	ep := uint32(req.Endpoint)
	if req.Direction == transport.DirectionIn {
		ep |= 0x80
	}
	bulk := bulkTransfer{
		Ep:      ep,
		Len:     uint32(len(buf)),
		Timeout: timeoutMS,
		Data:    unsafe.Pointer(&buf[0]),
	}
	n, _, errno := syscall.Syscall(syscall.SYS_IOCTL, uintptr(fd), usbdevfsBulk, uintptr(unsafe.Pointer(&bulk)))
	if errno != 0 {
		return classifyErrno(errno)
	}

	result := transport.TransferResult{Outcome: errcode.OutcomeOK, ActualLength: uint32(n)}
	if req.Direction == transport.DirectionIn {
		result.Data = buf[:n]
	}
	return result, nil
}

func classifyErrno(errno syscall.Errno) (transport.TransferResult, error) {
	switch errno {
	case syscall.ETIMEDOUT:
		return transport.TransferResult{Outcome: errcode.OutcomeTimeout}, errno
	case syscall.EPIPE:
		return transport.TransferResult{Outcome: errcode.OutcomeStall}, errno
	case syscall.ENODEV, syscall.ENOENT:
		return transport.TransferResult{Outcome: errcode.OutcomeDeviceGone}, errno
	case syscall.ECONNRESET:
		return transport.TransferResult{Outcome: errcode.OutcomeConnReset}, errno
	default:
		return transport.TransferResult{Outcome: errcode.OutcomeProtocolError}, errno
	}
}

// FindDevicePath searches /dev/bus/usb for the device file matching
// busnum/devnum, the way the teacher's findUSBDevice scanned by
// VID/PID; here the caller already knows which device it claimed.
func FindDevicePath(busNum, devNum uint32) (string, error) {
	path := fmt.Sprintf("/dev/bus/usb/%03d/%03d", busNum, devNum)
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("usbfs: %s: %w", path, err)
	}
	return path, nil
}
