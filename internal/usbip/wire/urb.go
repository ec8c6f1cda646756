package wire

import "encoding/binary"

// CmdSubmit is CMD_SUBMIT: a 36-byte fixed command block plus an
// 8-byte setup packet, after the shared 8-byte header. Payload is the
// OUT-direction buffer, present only when Direction == DirOut.
type CmdSubmit struct {
	Seqnum          uint32
	Devid           uint32
	Direction       uint32
	Ep              uint32
	TransferFlags   uint32
	BufferLength    uint32
	StartFrame      uint32
	NumberOfPackets uint32
	Interval        uint32
	Setup           [8]byte
	Payload         []byte // present iff Direction == DirOut
}

// Encode renders the full CMD_SUBMIT PDU, including its 8-byte header.
func (c CmdSubmit) Encode() ([]byte, error) {
	if c.Direction == DirOut && uint32(len(c.Payload)) != c.BufferLength {
		return nil, &InvalidFormatError{Reason: "OUT payload length does not match bufferLength"}
	}
	hdr := Header{Version: Version, Command: CmdSubmitOp, Status: 0}
	buf := make([]byte, 0, HeaderSize+URBCommandFixedLen+len(c.Payload))
	buf = append(buf, hdr.Encode()...)

	fixed := make([]byte, URBCommandFixedLen)
	binary.BigEndian.PutUint32(fixed[0:4], c.Seqnum)
	binary.BigEndian.PutUint32(fixed[4:8], c.Devid)
	binary.BigEndian.PutUint32(fixed[8:12], c.Direction)
	binary.BigEndian.PutUint32(fixed[12:16], c.Ep)
	binary.BigEndian.PutUint32(fixed[16:20], c.TransferFlags)
	binary.BigEndian.PutUint32(fixed[20:24], c.BufferLength)
	binary.BigEndian.PutUint32(fixed[24:28], c.StartFrame)
	binary.BigEndian.PutUint32(fixed[28:32], c.NumberOfPackets)
	binary.BigEndian.PutUint32(fixed[32:36], c.Interval)
	copy(fixed[36:44], c.Setup[:])
	buf = append(buf, fixed...)

	if c.Direction == DirOut {
		buf = append(buf, c.Payload...)
	}
	return buf, nil
}

// DecodeCmdSubmitFixed decodes the header and the 44-byte fixed portion
// (36-byte command block + 8-byte setup) of a CMD_SUBMIT PDU. The
// caller is responsible for then reading BufferLength additional bytes
// when Direction == DirOut and assigning them to Payload; this
// split mirrors how the dispatcher must frame a variable-length PDU.
func DecodeCmdSubmitFixed(buf []byte) (CmdSubmit, error) {
	if len(buf) != HeaderSize+URBCommandFixedLen {
		return CmdSubmit{}, ErrInvalidLength
	}
	hdr, err := DecodeHeader(buf[:HeaderSize])
	if err != nil {
		return CmdSubmit{}, err
	}
	if hdr.Command != CmdSubmitOp {
		return CmdSubmit{}, &UnsupportedCommandError{Got: hdr.Command}
	}
	f := buf[HeaderSize:]
	c := CmdSubmit{
		Seqnum:          binary.BigEndian.Uint32(f[0:4]),
		Devid:           binary.BigEndian.Uint32(f[4:8]),
		Direction:       binary.BigEndian.Uint32(f[8:12]),
		Ep:              binary.BigEndian.Uint32(f[12:16]),
		TransferFlags:   binary.BigEndian.Uint32(f[16:20]),
		BufferLength:    binary.BigEndian.Uint32(f[20:24]),
		StartFrame:      binary.BigEndian.Uint32(f[24:28]),
		NumberOfPackets: binary.BigEndian.Uint32(f[28:32]),
		Interval:        binary.BigEndian.Uint32(f[32:36]),
	}
	copy(c.Setup[:], f[36:44])
	return c, nil
}

// RetSubmit is RET_SUBMIT: header + fixed reply fields, followed by
// Data when Direction == DirIn.
type RetSubmit struct {
	Seqnum          uint32
	Devid           uint32
	Direction       uint32
	Ep              uint32
	Status          int32
	ActualLength    uint32
	StartFrame      uint32
	NumberOfPackets uint32
	ErrorCount      uint32
	Data            []byte // present iff Direction == DirIn
}

// Encode renders the full RET_SUBMIT PDU, including its 8-byte header.
func (r RetSubmit) Encode() ([]byte, error) {
	if r.Direction == DirIn && uint32(len(r.Data)) != r.ActualLength {
		return nil, &InvalidFormatError{Reason: "IN data length does not match actualLength"}
	}
	hdr := Header{Version: Version, Command: RetSubmitOp, Status: 0}
	buf := make([]byte, 0, HeaderSize+URBReplyFixedLen+len(r.Data))
	buf = append(buf, hdr.Encode()...)

	fixed := make([]byte, URBReplyFixedLen)
	binary.BigEndian.PutUint32(fixed[0:4], r.Seqnum)
	binary.BigEndian.PutUint32(fixed[4:8], r.Devid)
	binary.BigEndian.PutUint32(fixed[8:12], r.Direction)
	binary.BigEndian.PutUint32(fixed[12:16], r.Ep)
	binary.BigEndian.PutUint32(fixed[16:20], uint32(r.Status))
	binary.BigEndian.PutUint32(fixed[20:24], r.ActualLength)
	binary.BigEndian.PutUint32(fixed[24:28], r.StartFrame)
	binary.BigEndian.PutUint32(fixed[28:32], r.NumberOfPackets)
	binary.BigEndian.PutUint32(fixed[32:36], r.ErrorCount)
	// fixed[36:44] reserved, left zero.
	buf = append(buf, fixed...)

	if r.Direction == DirIn {
		buf = append(buf, r.Data...)
	}
	return buf, nil
}

// DecodeRetSubmitFixed decodes the header and 44-byte fixed portion of
// a RET_SUBMIT PDU; the caller reads ActualLength additional bytes when
// Direction == DirIn and attaches them separately.
func DecodeRetSubmitFixed(buf []byte) (RetSubmit, error) {
	if len(buf) != HeaderSize+URBReplyFixedLen {
		return RetSubmit{}, ErrInvalidLength
	}
	hdr, err := DecodeHeader(buf[:HeaderSize])
	if err != nil {
		return RetSubmit{}, err
	}
	if hdr.Command != RetSubmitOp {
		return RetSubmit{}, &UnsupportedCommandError{Got: hdr.Command}
	}
	f := buf[HeaderSize:]
	r := RetSubmit{
		Seqnum:          binary.BigEndian.Uint32(f[0:4]),
		Devid:           binary.BigEndian.Uint32(f[4:8]),
		Direction:       binary.BigEndian.Uint32(f[8:12]),
		Ep:              binary.BigEndian.Uint32(f[12:16]),
		Status:          int32(binary.BigEndian.Uint32(f[16:20])),
		ActualLength:    binary.BigEndian.Uint32(f[20:24]),
		StartFrame:      binary.BigEndian.Uint32(f[24:28]),
		NumberOfPackets: binary.BigEndian.Uint32(f[28:32]),
		ErrorCount:      binary.BigEndian.Uint32(f[32:36]),
	}
	return r, nil
}

// CmdUnlink is CMD_UNLINK: header + 24-byte fixed block.
type CmdUnlink struct {
	Seqnum       uint32
	UnlinkSeqnum uint32
	Devid        uint32
	Direction    uint32
	Ep           uint32
}

// Encode renders the full CMD_UNLINK PDU, including its 8-byte header.
func (c CmdUnlink) Encode() []byte {
	hdr := Header{Version: Version, Command: CmdUnlinkOp, Status: 0}
	buf := make([]byte, 0, HeaderSize+UnlinkCommandLen)
	buf = append(buf, hdr.Encode()...)

	fixed := make([]byte, UnlinkCommandLen)
	binary.BigEndian.PutUint32(fixed[0:4], c.Seqnum)
	binary.BigEndian.PutUint32(fixed[4:8], c.UnlinkSeqnum)
	binary.BigEndian.PutUint32(fixed[8:12], c.Devid)
	binary.BigEndian.PutUint32(fixed[12:16], c.Direction)
	binary.BigEndian.PutUint32(fixed[16:20], c.Ep)
	// fixed[20:24] reserved, left zero.
	buf = append(buf, fixed...)
	return buf
}

// DecodeCmdUnlink decodes a full 32-byte CMD_UNLINK PDU.
func DecodeCmdUnlink(buf []byte) (CmdUnlink, error) {
	if len(buf) != HeaderSize+UnlinkCommandLen {
		return CmdUnlink{}, ErrInvalidLength
	}
	hdr, err := DecodeHeader(buf[:HeaderSize])
	if err != nil {
		return CmdUnlink{}, err
	}
	if hdr.Command != CmdUnlinkOp {
		return CmdUnlink{}, &UnsupportedCommandError{Got: hdr.Command}
	}
	f := buf[HeaderSize:]
	return CmdUnlink{
		Seqnum:       binary.BigEndian.Uint32(f[0:4]),
		UnlinkSeqnum: binary.BigEndian.Uint32(f[4:8]),
		Devid:        binary.BigEndian.Uint32(f[8:12]),
		Direction:    binary.BigEndian.Uint32(f[12:16]),
		Ep:           binary.BigEndian.Uint32(f[16:20]),
	}, nil
}

// RetUnlink is RET_UNLINK: header + 24-byte fixed block (status
// carried in the last 4 bytes, signed).
type RetUnlink struct {
	Seqnum       uint32
	UnlinkSeqnum uint32
	Devid        uint32
	Direction    uint32
	Ep           uint32
	Status       int32
}

// Encode renders the full RET_UNLINK PDU, including its 8-byte header.
func (r RetUnlink) Encode() []byte {
	hdr := Header{Version: Version, Command: RetUnlinkOp, Status: 0}
	buf := make([]byte, 0, HeaderSize+UnlinkReplyLen)
	buf = append(buf, hdr.Encode()...)

	fixed := make([]byte, UnlinkReplyLen)
	binary.BigEndian.PutUint32(fixed[0:4], r.Seqnum)
	binary.BigEndian.PutUint32(fixed[4:8], r.UnlinkSeqnum)
	binary.BigEndian.PutUint32(fixed[8:12], r.Devid)
	binary.BigEndian.PutUint32(fixed[12:16], r.Direction)
	binary.BigEndian.PutUint32(fixed[16:20], r.Ep)
	binary.BigEndian.PutUint32(fixed[20:24], uint32(r.Status))
	buf = append(buf, fixed...)
	return buf
}

// DecodeRetUnlink decodes a full 32-byte RET_UNLINK PDU.
func DecodeRetUnlink(buf []byte) (RetUnlink, error) {
	if len(buf) != HeaderSize+UnlinkReplyLen {
		return RetUnlink{}, ErrInvalidLength
	}
	hdr, err := DecodeHeader(buf[:HeaderSize])
	if err != nil {
		return RetUnlink{}, err
	}
	if hdr.Command != RetUnlinkOp {
		return RetUnlink{}, &UnsupportedCommandError{Got: hdr.Command}
	}
	f := buf[HeaderSize:]
	return RetUnlink{
		Seqnum:       binary.BigEndian.Uint32(f[0:4]),
		UnlinkSeqnum: binary.BigEndian.Uint32(f[4:8]),
		Devid:        binary.BigEndian.Uint32(f[8:12]),
		Direction:    binary.BigEndian.Uint32(f[12:16]),
		Ep:           binary.BigEndian.Uint32(f[16:20]),
		Status:       int32(binary.BigEndian.Uint32(f[20:24])),
	}, nil
}
