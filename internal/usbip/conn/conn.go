// Package conn implements the per-connection state machine: Ready,
// Imported(device), Terminating, per spec.md §4.2. It owns no socket
// I/O itself; the dispatcher drives it with decoded PDUs and the
// server package owns the net.Conn.
package conn

import (
	"sync"
	"time"

	"usbipd/internal/usbip/transport"
	"usbipd/internal/usbip/urb"
)

// Phase is one of the three connection states.
type Phase int

const (
	PhaseReady Phase = iota
	PhaseImported
	PhaseTerminating
)

func (p Phase) String() string {
	switch p {
	case PhaseReady:
		return "ready"
	case PhaseImported:
		return "imported"
	case PhaseTerminating:
		return "terminating"
	default:
		return "unknown"
	}
}

// State holds one connection's phase and, once imported, its claimed
// device and URB processor. A connection claims at most one device for
// its whole lifetime (spec.md §4.2).
type State struct {
	mu        sync.Mutex
	phase     Phase
	claim     transport.ClaimHandle
	processor *urb.Processor
}

// NewState returns a connection in the Ready phase.
func NewState() *State {
	return &State{phase: PhaseReady}
}

// Phase returns the current phase.
func (s *State) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Import transitions Ready -> Imported, storing the claim and building
// a fresh URB processor bound to its transport. Returns false if the
// connection is not in Ready.
func (s *State) Import(claim transport.ClaimHandle, maxConcurrent int, timeoutMS int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseReady {
		return false
	}
	s.claim = claim
	timeout := time.Duration(timeoutMS) * time.Millisecond
	s.processor = urb.NewProcessor(claim.Transport(), claim.Device().Devid(), timeout)
	s.phase = PhaseImported
	return true
}

// Processor returns the URB processor for an Imported connection, or
// nil if not yet imported.
func (s *State) Processor() *urb.Processor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processor
}

// Claim returns the held claim, or nil if not yet imported.
func (s *State) Claim() transport.ClaimHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.claim
}

// Terminate transitions to Terminating, cancels every URB still
// tracked by this connection's processor, and releases the device
// claim, if any. It is safe to call more than once.
func (s *State) Terminate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == PhaseTerminating {
		return
	}
	s.phase = PhaseTerminating
	if s.processor != nil {
		s.processor.CancelAll()
	}
	if s.claim != nil {
		s.claim.Release()
	}
}
