package urb

import (
	"context"
	"time"

	"usbipd/internal/usbip/errcode"
	"usbipd/internal/usbip/transport"
	"usbipd/internal/usbip/wire"
)

// DefaultTimeout is used when a caller does not supply one; spec.md
// §5 calls out 5000ms as the implicit per-URB deadline.
const DefaultTimeout = 5 * time.Second

// Processor owns one connection's registry and the claimed device's
// transport, and turns decoded SUBMIT/UNLINK PDUs into reply PDUs.
type Processor struct {
	registry  *Registry
	transport transport.UsbTransport
	devid     uint32
	timeout   time.Duration
}

// NewProcessor returns a processor bound to one claimed device's
// transport. timeout <= 0 selects DefaultTimeout.
func NewProcessor(t transport.UsbTransport, devid uint32, timeout time.Duration) *Processor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Processor{
		registry:  NewRegistry(),
		transport: t,
		devid:     devid,
		timeout:   timeout,
	}
}

// Registry exposes the processor's registry, mainly for teardown.
func (p *Processor) Registry() *Registry { return p.registry }

// CancelAll cancels every URB still tracked by this processor's
// registry, for connection teardown (spec.md §4.2/§4.6): the owning
// Submit goroutine observes the cancellation and still produces its
// one required RET_SUBMIT reply, rather than running to its timeout.
func (p *Processor) CancelAll() {
	p.registry.CancelAll()
}

func classifyTransfer(ep uint32, numberOfPackets uint32) transport.TransferKind {
	if ep&0x7F == 0 {
		return transport.KindControl
	}
	if numberOfPackets > 0 {
		return transport.KindIsochronous
	}
	return transport.KindBulk
}

// Submit validates, admits, executes and completes one CMD_SUBMIT,
// returning exactly one RET_SUBMIT PDU's contents. maxConcurrent is the
// admission bound (spec.md §4.4's MAX_CONCURRENT, recommended 64).
func (p *Processor) Submit(ctx context.Context, cmd wire.CmdSubmit, maxConcurrent int) wire.RetSubmit {
	if err := validateSubmit(cmd); err != nil {
		return failReply(cmd, errcode.EINVAL)
	}

	if p.registry.Contains(cmd.Seqnum) {
		return failReply(cmd, errcode.EEXIST)
	}
	if p.registry.Count() >= maxConcurrent {
		return failReply(cmd, errcode.EAGAIN)
	}

	kind := classifyTransfer(cmd.Ep, cmd.NumberOfPackets)
	rec := &Record{
		Seqnum:       cmd.Seqnum,
		Devid:        cmd.Devid,
		Direction:    transport.Direction(cmd.Direction),
		Endpoint:     uint8(cmd.Ep & 0x7F),
		TransferType: kind,
		BufferLength: cmd.BufferLength,
		Setup:        cmd.Setup,
		OutgoingData: cmd.Payload,
		Status:       StatusPending,
	}
	transferCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.registry.Insert(rec, cancel); err != nil {
		return failReply(cmd, errcode.EEXIST)
	}
	defer p.registry.Remove(cmd.Seqnum)

	p.registry.UpdateStatus(cmd.Seqnum, StatusInProgress)

	req := transport.TransferRequest{
		Seqnum:          cmd.Seqnum,
		Kind:            kind,
		Direction:       transport.Direction(cmd.Direction),
		Endpoint:        uint8(cmd.Ep & 0x7F),
		Setup:           cmd.Setup,
		OutData:         cmd.Payload,
		InLength:        cmd.BufferLength,
		StartFrame:      cmd.StartFrame,
		NumberOfPackets: cmd.NumberOfPackets,
	}
	result, err := p.transport.Transfer(transferCtx, req)

	if status, ok := p.registry.Status(cmd.Seqnum); ok && status == StatusCancelled {
		return wire.RetSubmit{
			Seqnum:    cmd.Seqnum,
			Devid:     cmd.Devid,
			Direction: cmd.Direction,
			Ep:        cmd.Ep,
			Status:    int32(errcode.ENOENT),
		}
	}

	if err != nil {
		if transferCtx.Err() == context.DeadlineExceeded {
			p.registry.UpdateStatus(cmd.Seqnum, StatusFailed)
			return failReply(cmd, errcode.ETIMEDOUT)
		}
		p.registry.UpdateStatus(cmd.Seqnum, StatusFailed)
		return failReply(cmd, errcode.EPROTO)
	}

	p.registry.UpdateStatus(cmd.Seqnum, StatusCompleted)
	reply := wire.RetSubmit{
		Seqnum:          cmd.Seqnum,
		Devid:           cmd.Devid,
		Direction:       cmd.Direction,
		Ep:              cmd.Ep,
		Status:          int32(errcode.FromTransportOutcome(result.Outcome)),
		ActualLength:    result.ActualLength,
		StartFrame:      result.StartFrame,
		NumberOfPackets: cmd.NumberOfPackets,
		ErrorCount:      result.ErrorCount,
	}
	if cmd.Direction == wire.DirIn {
		reply.Data = result.Data
		reply.ActualLength = uint32(len(result.Data))
	}
	return reply
}

func validateSubmit(cmd wire.CmdSubmit) error {
	if cmd.Direction != wire.DirOut && cmd.Direction != wire.DirIn {
		return &ValidationError{Reason: "direction must be 0 or 1"}
	}
	if cmd.Ep > 0xFF {
		return &ValidationError{Reason: "ep out of range"}
	}
	if cmd.Direction == wire.DirOut && uint32(len(cmd.Payload)) != cmd.BufferLength {
		return &ValidationError{Reason: "OUT payload length mismatch"}
	}
	return nil
}

// ValidationError is returned by validateSubmit/validateUnlink.
type ValidationError struct{ Reason string }

func (e *ValidationError) Error() string { return "urb: " + e.Reason }

func failReply(cmd wire.CmdSubmit, status errcode.Status) wire.RetSubmit {
	return wire.RetSubmit{
		Seqnum:    cmd.Seqnum,
		Devid:     cmd.Devid,
		Direction: cmd.Direction,
		Ep:        cmd.Ep,
		Status:    int32(status),
	}
}
