package urb

import (
	"context"
	"time"

	"usbipd/internal/usbip/errcode"
	"usbipd/internal/usbip/wire"

	"testing"
)

func TestUnlinkOfNonexistentSeqnum(t *testing.T) {
	p := NewProcessor(newFakeTransport(), 1, time.Second)
	reply := p.Unlink(wire.CmdUnlink{Seqnum: 8, UnlinkSeqnum: 7, Direction: wire.DirIn, Ep: 1})
	if reply.Status != int32(errcode.ENOENT) {
		t.Fatalf("expected ENOENT, got %d", reply.Status)
	}
}

func TestUnlinkRejectsEqualSeqnums(t *testing.T) {
	p := NewProcessor(newFakeTransport(), 1, time.Second)
	reply := p.Unlink(wire.CmdUnlink{Seqnum: 7, UnlinkSeqnum: 7, Direction: wire.DirIn, Ep: 1})
	if reply.Status != int32(errcode.EINVAL) {
		t.Fatalf("expected EINVAL, got %d", reply.Status)
	}
}

func TestUnlinkRejectsZeroUnlinkSeqnum(t *testing.T) {
	p := NewProcessor(newFakeTransport(), 1, time.Second)
	reply := p.Unlink(wire.CmdUnlink{Seqnum: 7, UnlinkSeqnum: 0, Direction: wire.DirIn, Ep: 1})
	if reply.Status != int32(errcode.EINVAL) {
		t.Fatalf("expected EINVAL, got %d", reply.Status)
	}
}

func TestUnlinkOfAlreadyCompletedSeqnumYieldsENOENT(t *testing.T) {
	ft := newFakeTransport()
	ft.result.Outcome = errcode.OutcomeOK
	p := NewProcessor(ft, 1, time.Second)

	cmd := wire.CmdSubmit{Seqnum: 7, Direction: wire.DirIn, Ep: 1, BufferLength: 1}
	p.Submit(context.Background(), cmd, 64) // completes synchronously, removed from registry

	reply := p.Unlink(wire.CmdUnlink{Seqnum: 8, UnlinkSeqnum: 7, Direction: wire.DirIn, Ep: 1})
	if reply.Status != int32(errcode.ENOENT) {
		t.Fatalf("expected ENOENT for already-completed URB, got %d", reply.Status)
	}
}

func TestSecondUnlinkOfSameSeqnumReportsENOENT(t *testing.T) {
	ft := newFakeTransport()
	ft.block = make(chan struct{})
	p := NewProcessor(ft, 1, time.Second)

	cmd := wire.CmdSubmit{Seqnum: 7, Direction: wire.DirIn, Ep: 1, BufferLength: 1}
	done := make(chan wire.RetSubmit, 1)
	go func() { done <- p.Submit(context.Background(), cmd, 64) }()
	for !p.Registry().Contains(7) {
		time.Sleep(time.Millisecond)
	}

	first := p.Unlink(wire.CmdUnlink{Seqnum: 8, UnlinkSeqnum: 7, Direction: wire.DirIn, Ep: 1})
	if first.Status != 0 {
		t.Fatalf("expected first unlink to succeed, got %d", first.Status)
	}
	second := p.Unlink(wire.CmdUnlink{Seqnum: 9, UnlinkSeqnum: 7, Direction: wire.DirIn, Ep: 1})
	if second.Status != int32(errcode.ENOENT) {
		t.Fatalf("expected second unlink to report ENOENT, got %d", second.Status)
	}
	close(ft.block)
	<-done
}
