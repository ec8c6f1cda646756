package conn

import (
	"context"
	"testing"

	"usbipd/internal/usbip/errcode"
	"usbipd/internal/usbip/transport"
	"usbipd/internal/usbip/urb"
)

type fakeTransport struct{}

func (fakeTransport) Transfer(ctx context.Context, req transport.TransferRequest) (transport.TransferResult, error) {
	return transport.TransferResult{Outcome: errcode.OutcomeOK}, nil
}
func (fakeTransport) Cancel(seqnum uint32) {}

type fakeClaim struct {
	dev      transport.Device
	released bool
}

func (c *fakeClaim) Device() transport.Device       { return c.dev }
func (c *fakeClaim) Transport() transport.UsbTransport { return fakeTransport{} }
func (c *fakeClaim) Release()                       { c.released = true }

func TestStateStartsReady(t *testing.T) {
	s := NewState()
	if s.Phase() != PhaseReady {
		t.Fatalf("expected Ready, got %v", s.Phase())
	}
}

func TestImportTransitionsToImported(t *testing.T) {
	s := NewState()
	claim := &fakeClaim{dev: transport.Device{BusID: "1-1"}}
	if !s.Import(claim, 64, 5000) {
		t.Fatal("expected import to succeed from Ready")
	}
	if s.Phase() != PhaseImported {
		t.Fatalf("expected Imported, got %v", s.Phase())
	}
	if s.Processor() == nil {
		t.Fatal("expected a processor to be built")
	}
}

func TestImportFailsWhenNotReady(t *testing.T) {
	s := NewState()
	claim := &fakeClaim{dev: transport.Device{BusID: "1-1"}}
	s.Import(claim, 64, 5000)
	if s.Import(claim, 64, 5000) {
		t.Fatal("expected second import to fail")
	}
}

func TestTerminateReleasesClaim(t *testing.T) {
	s := NewState()
	claim := &fakeClaim{dev: transport.Device{BusID: "1-1"}}
	s.Import(claim, 64, 5000)
	s.Terminate()
	if s.Phase() != PhaseTerminating {
		t.Fatalf("expected Terminating, got %v", s.Phase())
	}
	if !claim.released {
		t.Fatal("expected claim to be released")
	}
	s.Terminate() // idempotent
}

func TestTerminateCancelsInFlightURBs(t *testing.T) {
	s := NewState()
	claim := &fakeClaim{dev: transport.Device{BusID: "1-1"}}
	s.Import(claim, 64, 5000)

	proc := s.Processor()
	cancelled := false
	proc.Registry().Insert(&urb.Record{Seqnum: 1, Status: urb.StatusInProgress}, func() { cancelled = true })

	s.Terminate()

	if !cancelled {
		t.Fatal("expected in-flight URB's cancel func to run on Terminate")
	}
	rec, ok := proc.Registry().Get(1)
	if !ok {
		t.Fatal("expected record to remain tracked (submit goroutine removes it)")
	}
	if rec.Status != urb.StatusCancelled {
		t.Fatalf("expected StatusCancelled, got %v", rec.Status)
	}
}
