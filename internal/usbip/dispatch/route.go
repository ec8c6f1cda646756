package dispatch

import (
	"context"
	"io"
	"log/slog"
	"net"
	"sync"

	"usbipd/internal/usbip/conn"
	"usbipd/internal/usbip/wire"
)

// readAndRoute reads exactly one PDU off c and routes it. It returns a
// non-nil error only when the connection must be torn down (EOF,
// short read, or a protocol violation per spec.md §7 — in all three
// cases no reply is owed).
func (d *Dispatcher) readAndRoute(
	ctx context.Context,
	c net.Conn,
	state *conn.State,
	writeCh chan<- []byte,
	admission chan struct{},
	inFlight *sync.WaitGroup,
	logger *slog.Logger,
) error {
	hdrBuf, err := readExact(c, wire.HeaderSize)
	if err != nil {
		return err
	}
	version, err := wire.PeekVersion(hdrBuf)
	if err != nil {
		return err
	}
	command, err := wire.PeekCommand(hdrBuf)
	if err != nil {
		return err
	}
	if version != wire.Version {
		return ErrProtocol
	}

	phase := state.Phase()

	switch phase {
	case conn.PhaseReady:
		switch command {
		case wire.OpReqDevlist:
			return d.handleDevList(ctx, hdrBuf, writeCh, logger)
		case wire.OpReqImport:
			return d.handleImport(ctx, hdrBuf, c, state, writeCh, logger)
		default:
			return ErrProtocol
		}
	case conn.PhaseImported:
		switch command {
		case wire.CmdSubmitOp:
			return d.handleSubmit(ctx, hdrBuf, c, state, writeCh, admission, inFlight, logger)
		case wire.CmdUnlinkOp:
			return d.handleUnlink(hdrBuf, c, state, writeCh, logger)
		default:
			return ErrProtocol
		}
	default:
		return ErrProtocol
	}
}

func (d *Dispatcher) handleDevList(ctx context.Context, hdrBuf []byte, writeCh chan<- []byte, logger *slog.Logger) error {
	devices, err := d.Directory.List(ctx)
	if err != nil {
		devices = nil
	}
	resp := wire.DeviceListResponse{Devices: toExportedDevices(devices)}
	buf, err := resp.Encode()
	if err != nil {
		return err
	}
	if d.Trace {
		logger.Debug("OP_REQ_DEVLIST", "count", len(devices))
	}
	writeCh <- buf
	return nil
}

func (d *Dispatcher) handleImport(ctx context.Context, hdrBuf []byte, c io.Reader, state *conn.State, writeCh chan<- []byte, logger *slog.Logger) error {
	rest, err := readExact(c, wire.BusIDFieldSize)
	if err != nil {
		return err
	}
	req, err := wire.DecodeImportRequest(append(append([]byte{}, hdrBuf...), rest...))
	if err != nil {
		return ErrProtocol
	}

	dev, ok, err := d.Directory.Lookup(ctx, req.BusID)
	if err != nil || !ok {
		resp := wire.ImportResponse{Status: 1}
		buf, encErr := resp.Encode()
		if encErr != nil {
			return encErr
		}
		if d.Trace {
			logger.Debug("OP_REQ_IMPORT unknown busid", "busid", req.BusID)
		}
		writeCh <- buf
		return nil
	}

	claim, err := d.Claims.Claim(ctx, dev)
	if err != nil {
		resp := wire.ImportResponse{Status: 1}
		buf, encErr := resp.Encode()
		if encErr != nil {
			return encErr
		}
		if d.Trace {
			logger.Debug("OP_REQ_IMPORT claim denied", "busid", req.BusID, "error", err)
		}
		writeCh <- buf
		return nil
	}

	state.Import(claim, maxOrDefault(d.MaxConcurrentURBs), urbTimeoutOrDefault(d.URBTimeoutMS))
	exported := toExportedDevice(dev)
	resp := wire.ImportResponse{Status: 0, Device: &exported}
	buf, err := resp.Encode()
	if err != nil {
		return err
	}
	if d.Trace {
		logger.Debug("OP_REQ_IMPORT success", "busid", req.BusID)
	}
	writeCh <- buf
	return nil
}

func urbTimeoutOrDefault(ms int) int {
	if ms <= 0 {
		return 5000
	}
	return ms
}

func (d *Dispatcher) handleSubmit(
	ctx context.Context,
	hdrBuf []byte,
	c net.Conn,
	state *conn.State,
	writeCh chan<- []byte,
	admission chan struct{},
	inFlight *sync.WaitGroup,
	logger *slog.Logger,
) error {
	fixed, err := readExact(c, wire.URBCommandFixedLen)
	if err != nil {
		return err
	}
	full := append(append([]byte{}, hdrBuf...), fixed...)
	cmd, err := wire.DecodeCmdSubmitFixed(full)
	if err != nil {
		return ErrProtocol
	}
	if cmd.Direction == wire.DirOut {
		payload, err := readExact(c, int(cmd.BufferLength))
		if err != nil {
			return err
		}
		cmd.Payload = payload
	}

	processor := state.Processor()
	if processor == nil {
		return ErrProtocol
	}

	// Backpressure: block on admission before handing off, per
	// spec.md §5's preferred design. The registry's own Count check
	// inside Submit is a fallback only: a slot is held until Submit has
	// returned and removed its record, and both use the same bound, so
	// that check does not reply EAGAIN to SUBMITs arriving through here.
	select {
	case admission <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	inFlight.Add(1)
	go func() {
		defer inFlight.Done()
		defer func() { <-admission }()
		reply := processor.Submit(ctx, cmd, maxOrDefault(d.MaxConcurrentURBs))
		buf, err := reply.Encode()
		if err != nil {
			if d.Trace {
				logger.Error("failed to encode RET_SUBMIT", "seqnum", cmd.Seqnum, "error", err)
			}
			return
		}
		if d.Trace {
			logger.Debug("RET_SUBMIT", "seqnum", cmd.Seqnum, "status", reply.Status)
		}
		select {
		case writeCh <- buf:
		case <-ctx.Done():
		}
	}()
	return nil
}

func (d *Dispatcher) handleUnlink(hdrBuf []byte, c io.Reader, state *conn.State, writeCh chan<- []byte, logger *slog.Logger) error {
	fixed, err := readExact(c, wire.UnlinkCommandLen)
	if err != nil {
		return err
	}
	full := append(append([]byte{}, hdrBuf...), fixed...)
	cmd, err := wire.DecodeCmdUnlink(full)
	if err != nil {
		return ErrProtocol
	}
	processor := state.Processor()
	if processor == nil {
		return ErrProtocol
	}
	reply := processor.Unlink(cmd)
	buf := reply.Encode()
	if d.Trace {
		logger.Debug("CMD_UNLINK", "seqnum", cmd.Seqnum, "unlinkSeqnum", cmd.UnlinkSeqnum, "status", reply.Status)
	}
	writeCh <- buf
	return nil
}
