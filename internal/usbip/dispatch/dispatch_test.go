package dispatch

import (
	"bytes"
	"context"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"usbipd/internal/usbip/errcode"
	"usbipd/internal/usbip/transport"
	"usbipd/internal/usbip/wire"
)

type fakeDirectory struct {
	devices map[string]transport.Device
}

func (f *fakeDirectory) List(ctx context.Context) ([]transport.Device, error) {
	out := make([]transport.Device, 0, len(f.devices))
	for _, d := range f.devices {
		out = append(out, d)
	}
	return out, nil
}

func (f *fakeDirectory) Lookup(ctx context.Context, busID string) (transport.Device, bool, error) {
	d, ok := f.devices[busID]
	return d, ok, nil
}

type fakeUsbTransport struct{}

func (fakeUsbTransport) Transfer(ctx context.Context, req transport.TransferRequest) (transport.TransferResult, error) {
	if req.Direction == transport.DirectionIn {
		return transport.TransferResult{Outcome: errcode.OutcomeOK, ActualLength: req.InLength, Data: make([]byte, req.InLength)}, nil
	}
	return transport.TransferResult{Outcome: errcode.OutcomeOK, ActualLength: uint32(len(req.OutData))}, nil
}
func (fakeUsbTransport) Cancel(seqnum uint32) {}

type fakeClaimHandle struct{ dev transport.Device }

func (c fakeClaimHandle) Device() transport.Device          { return c.dev }
func (c fakeClaimHandle) Transport() transport.UsbTransport { return fakeUsbTransport{} }
func (c fakeClaimHandle) Release()                          {}

type fakeClaimRegistry struct{}

func (fakeClaimRegistry) Claim(ctx context.Context, dev transport.Device) (transport.ClaimHandle, error) {
	return fakeClaimHandle{dev: dev}, nil
}
func (fakeClaimRegistry) IsClaimed(busID string) bool { return false }

func newTestDispatcher(devices map[string]transport.Device) *Dispatcher {
	return &Dispatcher{
		Directory:         &fakeDirectory{devices: devices},
		Claims:            fakeClaimRegistry{},
		MaxConcurrentURBs: 64,
		URBTimeoutMS:      1000,
	}
}

// TestScenarioS1EmptyDevList exercises OP_REQ_DEVLIST end to end
// against an empty device table.
func TestScenarioS1EmptyDevList(t *testing.T) {
	d := newTestDispatcher(nil)
	client, server := net.Pipe()
	defer client.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Serve(ctx, server)

	req := wire.Header{Version: wire.Version, Command: wire.OpReqDevlist}.Encode()
	if _, err := client.Write(req); err != nil {
		t.Fatalf("write: %v", err)
	}
	resp := readN(t, client, 16)
	want := []byte{0x01, 0x11, 0x00, 0x05, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}
	if !bytes.Equal(resp, want) {
		t.Fatalf("got % x want % x", resp, want)
	}
}

// TestScenarioS2OneDevice exercises OP_REQ_DEVLIST with one device.
func TestScenarioS2OneDevice(t *testing.T) {
	dev := transport.Device{
		BusID: "1-1", Path: "/sys/devices/1-1",
		IDVendor: 0x05ac, IDProduct: 0x030d,
		BDeviceClass: 0x03, BDeviceSubClass: 0x01, BDeviceProtocol: 0x02,
		Speed: 1,
	}
	d := newTestDispatcher(map[string]transport.Device{"1-1": dev})
	client, server := net.Pipe()
	defer client.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Serve(ctx, server)

	req := wire.Header{Version: wire.Version, Command: wire.OpReqDevlist}.Encode()
	client.Write(req)
	resp := readN(t, client, 16+312)

	count := binary.BigEndian.Uint32(resp[8:12])
	if count != 1 {
		t.Fatalf("expected device count 1, got %d", count)
	}
	busidField := resp[16+256 : 16+256+32]
	if !bytes.HasPrefix(busidField, []byte("1-1\x00")) {
		t.Fatalf("unexpected busid field: %q", busidField)
	}
	vendor := binary.BigEndian.Uint16(resp[16+300 : 16+302])
	product := binary.BigEndian.Uint16(resp[16+302 : 16+304])
	if vendor != 0x05ac || product != 0x030d {
		t.Fatalf("unexpected vendor/product: %#04x/%#04x", vendor, product)
	}
}

// TestScenarioS3ImportSuccess exercises OP_REQ_IMPORT against a known device.
func TestScenarioS3ImportSuccess(t *testing.T) {
	dev := transport.Device{BusID: "1-1", Path: "/sys/devices/1-1"}
	d := newTestDispatcher(map[string]transport.Device{"1-1": dev})
	client, server := net.Pipe()
	defer client.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Serve(ctx, server)

	req, err := wire.ImportRequest{BusID: "1-1"}.Encode()
	if err != nil {
		t.Fatalf("encode request: %v", err)
	}
	client.Write(req)
	resp := readN(t, client, 324)
	cmd, _ := wire.PeekCommand(resp)
	if cmd != wire.OpRepImport {
		t.Fatalf("expected OP_REP_IMPORT, got %#04x", cmd)
	}
	status := binary.BigEndian.Uint32(resp[8:12])
	if status != 0 {
		t.Fatalf("expected success status, got %d", status)
	}
}

// TestScenarioS4ImportUnknownBusID exercises OP_REQ_IMPORT for a busid
// the directory does not know.
func TestScenarioS4ImportUnknownBusID(t *testing.T) {
	d := newTestDispatcher(nil)
	client, server := net.Pipe()
	defer client.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Serve(ctx, server)

	req, _ := wire.ImportRequest{BusID: "9-9"}.Encode()
	client.Write(req)
	resp := readN(t, client, 12)
	status := binary.BigEndian.Uint32(resp[8:12])
	if status == 0 {
		t.Fatal("expected nonzero status for unknown busid")
	}
}

// TestSubmitOutOfPhaseClosesConnection checks that a CMD_SUBMIT arriving
// in Ready closes the connection with no reply, per spec.md property 9.
func TestSubmitOutOfPhaseClosesConnection(t *testing.T) {
	d := newTestDispatcher(nil)
	client, server := net.Pipe()
	defer client.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Serve(ctx, server)

	cmd := wire.CmdSubmit{Seqnum: 1, Direction: wire.DirIn, Ep: 0, BufferLength: 0, Setup: [8]byte{}}
	buf, _ := cmd.Encode()
	client.Write(buf)

	client.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	one := make([]byte, 1)
	if _, err := client.Read(one); err == nil {
		t.Fatal("expected connection to close with no reply")
	}
}

func readN(t *testing.T, r net.Conn, n int) []byte {
	t.Helper()
	r.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, n)
	read := 0
	for read < n {
		m, err := r.Read(buf[read:])
		if err != nil {
			t.Fatalf("read: %v (got %d/%d bytes)", err, read, n)
		}
		read += m
	}
	return buf
}
