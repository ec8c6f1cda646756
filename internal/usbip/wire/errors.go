package wire

import "fmt"

// ErrInvalidLength is returned when a buffer is the wrong size for the
// PDU being decoded.
var ErrInvalidLength = fmt.Errorf("usbip/wire: invalid length")

// UnsupportedVersionError is returned when a decoded header's Version
// field is not wire.Version.
type UnsupportedVersionError struct {
	Got uint16
}

func (e *UnsupportedVersionError) Error() string {
	return fmt.Sprintf("usbip/wire: unsupported version %#04x", e.Got)
}

// UnsupportedCommandError is returned when an opcode is not one this
// codec knows how to decode in the given context.
type UnsupportedCommandError struct {
	Got uint16
}

func (e *UnsupportedCommandError) Error() string {
	return fmt.Sprintf("usbip/wire: unsupported command %#04x", e.Got)
}

// InvalidFormatError wraps a codec-level decode failure that isn't a
// length or version/command mismatch (e.g. a fixed string field with
// no NUL terminator).
type InvalidFormatError struct {
	Reason string
}

func (e *InvalidFormatError) Error() string {
	return fmt.Sprintf("usbip/wire: invalid format: %s", e.Reason)
}
