// Package transport declares the collaborator interfaces the protocol
// core depends on: device discovery, claim arbitration, and the actual
// USB transfer capability. Concrete implementations live in sibling
// packages (directory.StaticDirectory, transport/gousb, transport/usbfs);
// this package only fixes the contract so the core never depends on a
// specific USB stack.
package transport

import (
	"context"

	"usbipd/internal/usbip/errcode"
)

// Device describes one locally attached USB device as the protocol
// core needs to see it: enough to fill an ExportedDevice wire block
// and to ask the ClaimRegistry/UsbTransport for a handle.
type Device struct {
	BusID               string
	Path                string
	BusNum              uint32
	DevNum              uint32
	Speed               uint32
	IDVendor            uint16
	IDProduct           uint16
	BDeviceClass        uint8
	BDeviceSubClass     uint8
	BDeviceProtocol     uint8
	BNumConfigurations  uint8
	BConfigurationValue uint8
	BNumInterfaces      uint8
}

// Devid packs BusNum/DevNum into the single devid field URB PDUs carry,
// matching the Linux usbip convention of (busnum << 16) | devnum.
func (d Device) Devid() uint32 {
	return (d.BusNum << 16) | (d.DevNum & 0xFFFF)
}

// DeviceDirectory enumerates and looks up locally attached devices.
type DeviceDirectory interface {
	List(ctx context.Context) ([]Device, error)
	Lookup(ctx context.Context, busID string) (Device, bool, error)
}

// ClaimHandle is held by a connection for the lifetime of one imported
// device; Release must be idempotent.
type ClaimHandle interface {
	Device() Device
	Transport() UsbTransport
	Release()
}

// ClaimRegistry arbitrates exclusive access to a device across
// connections: only one connection may hold a device at a time.
type ClaimRegistry interface {
	Claim(ctx context.Context, dev Device) (ClaimHandle, error)
	IsClaimed(busID string) bool
}

// TransferKind tags the shape of a USB transfer; it plus Direction
// selects one of the eight transport method shapes spec.md calls out,
// collapsed here into a single tagged-variant call per spec.md §9's
// "avoids a method explosion" guidance.
type TransferKind int

const (
	KindControl TransferKind = iota
	KindBulk
	KindInterrupt
	KindIsochronous
)

// Direction mirrors wire.DirOut/wire.DirIn without importing the wire
// package, keeping transport free of wire-codec concerns.
type Direction int

const (
	DirectionOut Direction = 0
	DirectionIn  Direction = 1
)

// TransferRequest carries everything a transport needs to execute one
// URB, already decoded from its wire form by the submit processor.
type TransferRequest struct {
	Seqnum          uint32  // the owning CMD_SUBMIT's seqnum, for Cancel
	Kind            TransferKind
	Direction       Direction
	Endpoint        uint8
	Setup           [8]byte // control transfers only
	OutData         []byte  // direction == out
	InLength        uint32  // direction == in
	StartFrame      uint32  // isochronous only
	NumberOfPackets uint32  // isochronous only
}

// TransferResult is what every transport call returns, regardless of
// kind or direction.
type TransferResult struct {
	Outcome      errcode.TransportOutcome
	ActualLength uint32
	Data         []byte // direction == in
	ErrorCount   uint32
	StartFrame   uint32
}

// UsbTransport executes USB transfers against one claimed device.
// Implementations MAY support best-effort mid-transfer cancellation via
// Cancel; the unlink processor treats it as advisory.
type UsbTransport interface {
	Transfer(ctx context.Context, req TransferRequest) (TransferResult, error)
	Cancel(seqnum uint32)
}
