package directory

import (
	"context"
	"testing"

	"usbipd/internal/usbip/transport"
)

type noopTransport struct{}

func (noopTransport) Transfer(ctx context.Context, req transport.TransferRequest) (transport.TransferResult, error) {
	return transport.TransferResult{}, nil
}
func (noopTransport) Cancel(seqnum uint32) {}

func TestStaticDirectoryListAndLookup(t *testing.T) {
	d := NewStaticDirectory(nil)
	d.Register(transport.Device{BusID: "1-1"}, noopTransport{})

	devices, err := d.List(context.Background())
	if err != nil || len(devices) != 1 {
		t.Fatalf("expected 1 device, got %d (err=%v)", len(devices), err)
	}
	dev, ok, err := d.Lookup(context.Background(), "1-1")
	if err != nil || !ok || dev.BusID != "1-1" {
		t.Fatalf("unexpected lookup result: %+v ok=%v err=%v", dev, ok, err)
	}
	if _, ok, _ := d.Lookup(context.Background(), "9-9"); ok {
		t.Fatal("expected lookup of unknown busid to fail")
	}
}

func TestStaticDirectoryAllowList(t *testing.T) {
	d := NewStaticDirectory([]string{"1-1"})
	d.Register(transport.Device{BusID: "1-1"}, noopTransport{})
	d.Register(transport.Device{BusID: "2-2"}, noopTransport{})

	devices, _ := d.List(context.Background())
	if len(devices) != 1 || devices[0].BusID != "1-1" {
		t.Fatalf("expected only allow-listed device, got %+v", devices)
	}
	if _, ok, _ := d.Lookup(context.Background(), "2-2"); ok {
		t.Fatal("expected disallowed busid to behave like unknown")
	}
}

func TestStaticDirectoryClaimExclusive(t *testing.T) {
	d := NewStaticDirectory(nil)
	dev := transport.Device{BusID: "1-1"}
	d.Register(dev, noopTransport{})

	claim, err := d.Claim(context.Background(), dev)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if !d.IsClaimed("1-1") {
		t.Fatal("expected busid to be claimed")
	}
	if _, err := d.Claim(context.Background(), dev); err == nil {
		t.Fatal("expected second claim to fail")
	}
	claim.Release()
	if d.IsClaimed("1-1") {
		t.Fatal("expected busid to be released")
	}
	if _, err := d.Claim(context.Background(), dev); err != nil {
		t.Fatalf("expected claim after release to succeed: %v", err)
	}
}

func TestStaticDirectoryClaimUnregisteredDevice(t *testing.T) {
	d := NewStaticDirectory(nil)
	if _, err := d.Claim(context.Background(), transport.Device{BusID: "1-1"}); err == nil {
		t.Fatal("expected claim of unregistered device to fail")
	}
}
