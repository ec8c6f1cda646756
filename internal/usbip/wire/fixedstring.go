package wire

import "bytes"

// putFixedString copies s into dst, NUL-terminating and zero-padding the
// remainder. s must leave room for the terminator; callers validate this
// with encodeFixedString below, which is its only caller.
func putFixedString(dst []byte, s string) {
	n := copy(dst, s)
	for i := n; i < len(dst); i++ {
		dst[i] = 0
	}
}

// encodeFixedString renders s into a field of exactly length bytes,
// rejecting strings whose byte length leaves no room for the NUL
// terminator.
func encodeFixedString(s string, length int) ([]byte, error) {
	if len(s) >= length {
		return nil, &InvalidFormatError{Reason: "string too long for fixed field"}
	}
	buf := make([]byte, length)
	putFixedString(buf, s)
	return buf, nil
}

// decodeFixedString returns the bytes up to the first NUL in field. It
// fails if no NUL is found anywhere in the field, per spec.md's
// "Fixed-length string fields MUST be NUL-terminated" invariant.
func decodeFixedString(field []byte) (string, error) {
	idx := bytes.IndexByte(field, 0)
	if idx == -1 {
		return "", &InvalidFormatError{Reason: "fixed string field has no NUL terminator"}
	}
	return string(field[:idx]), nil
}
