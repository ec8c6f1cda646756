// Package errcode maps transport and processor outcomes onto the
// negative-errno status codes USB/IP PDUs carry on the wire.
package errcode

// Status is a signed USB/IP status code, in two's complement over the
// u32 wire representation. Zero is success; negative values mirror
// Linux errno numbers.
type Status int32

// The subset of errno values this server's processors can produce.
const (
	Success    Status = 0
	EINVAL     Status = -22  // malformed SUBMIT/UNLINK field
	EAGAIN     Status = -11  // registry at MAX_CONCURRENT
	EEXIST     Status = -17  // duplicate seqnum
	ENOENT     Status = -2   // UNLINK found nothing to cancel, or cancellation raced ahead
	ECANCELED  Status = -125 // not produced: every cancellation, including OutcomeCancelled, is reported as ENOENT
	ETIMEDOUT  Status = -110
	EPIPE      Status = -32  // endpoint stalled
	EOVERFLOW  Status = -121 // short packet / overflow
	ENODEV     Status = -19  // device gone
	EBADBUFFER Status = -90
	EPROTO     Status = -71
	ECONNRESET Status = -104
)

// TransportOutcome is the result shape a transport call returns,
// independent of any particular transport's error type.
type TransportOutcome int

const (
	OutcomeOK TransportOutcome = iota
	OutcomeStall
	OutcomeShortPacket
	OutcomeDeviceGone
	OutcomeBufferError
	OutcomeProtocolError
	OutcomeConnReset
	OutcomeTimeout
	OutcomeCancelled
)

// FromTransportOutcome maps a transport-level outcome to its wire
// status code. Callers that already have a concrete error should
// prefer a type switch against the errors in this package's sibling
// transport packages before falling back to this table.
func FromTransportOutcome(o TransportOutcome) Status {
	switch o {
	case OutcomeOK:
		return Success
	case OutcomeStall:
		return EPIPE
	case OutcomeShortPacket:
		return EOVERFLOW
	case OutcomeDeviceGone:
		return ENODEV
	case OutcomeBufferError:
		return EBADBUFFER
	case OutcomeProtocolError:
		return EPROTO
	case OutcomeConnReset:
		return ECONNRESET
	case OutcomeTimeout:
		return ETIMEDOUT
	case OutcomeCancelled:
		return ENOENT
	default:
		return EPROTO
	}
}
