// Package dispatch frames incoming PDUs off a connection, routes them
// by opcode and connection phase, and serializes replies back onto a
// single writer queue per spec.md §4.3/§5.
package dispatch

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"

	"usbipd/internal/usbip/conn"
	"usbipd/internal/usbip/transport"
	"usbipd/internal/usbip/wire"
)

// ErrProtocol marks a fatal framing/phase violation: the connection is
// closed without a reply, per spec.md §7.
var ErrProtocol = errors.New("dispatch: protocol error")

// Dispatcher wires the device directory and claim registry into a
// per-connection serve loop.
type Dispatcher struct {
	Directory         transport.DeviceDirectory
	Claims            transport.ClaimRegistry
	MaxConcurrentURBs int
	URBTimeoutMS      int
	Logger            *slog.Logger
	Trace             bool
}

// Serve runs one connection to completion: a single reader loop,
// SUBMIT processing handed off to goroutines bounded by
// MaxConcurrentURBs, and all writes serialized through one queue.
// It returns when the connection is closed or ctx is cancelled.
func (d *Dispatcher) Serve(ctx context.Context, c net.Conn) {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("remote", c.RemoteAddr().String())
	defer c.Close()
	// Closing c on cancellation unblocks a reader waiting for the next PDU.
	stopCloseOnCancel := context.AfterFunc(ctx, func() { c.Close() })
	defer stopCloseOnCancel()

	state := conn.NewState()
	writeCh := make(chan []byte, 32)
	writeDone := make(chan struct{})
	go d.runWriter(c, writeCh, writeDone)

	admission := make(chan struct{}, maxOrDefault(d.MaxConcurrentURBs))
	var inFlight sync.WaitGroup

	defer func() {
		state.Terminate()
		inFlight.Wait()
		close(writeCh)
		<-writeDone
	}()

	for {
		if err := d.readAndRoute(ctx, c, state, writeCh, admission, &inFlight, logger); err != nil {
			if !isClientDisconnect(err) {
				logger.Warn("connection closed", "error", err)
			}
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

func maxOrDefault(n int) int {
	if n <= 0 {
		return 64
	}
	return n
}

func isClientDisconnect(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

func (d *Dispatcher) runWriter(w io.Writer, writeCh <-chan []byte, done chan<- struct{}) {
	defer close(done)
	for buf := range writeCh {
		if _, err := w.Write(buf); err != nil {
			return
		}
	}
}

func readExact(r io.Reader, n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func peekBufferLength(fixed []byte) uint32 {
	return binary.BigEndian.Uint32(fixed[20:24])
}

func peekDirection(fixed []byte) uint32 {
	return binary.BigEndian.Uint32(fixed[8:12])
}

func (d *Dispatcher) traceLog(logger *slog.Logger, h wire.Header, extra ...any) {
	if !d.Trace {
		return
	}
	logger.Debug(wire.Describe(h, extra...))
}
