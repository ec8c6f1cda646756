// Package usbiptest is a minimal USB/IP client used only by this
// module's own end-to-end tests, adapted from VIIPER's test harness
// client (testing/usbip_client.go): dial, request a devlist or import,
// then submit/unlink URBs and read replies back.
package usbiptest

import (
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"usbipd/internal/usbip/wire"
)

// Client drives one or more USB/IP connections against a server
// address for testing. Seqnums are allocated per Client, not per
// connection, matching how a real usbip-tools client session works.
type Client struct {
	addr string
	seq  uint32
}

// New returns a Client dialing addr for every call.
func New(addr string) *Client {
	return &Client{addr: addr}
}

func (c *Client) nextSeq() uint32 {
	return atomic.AddUint32(&c.seq, 1) - 1
}

// ListDevices opens a connection, requests OP_REQ_DEVLIST, and returns
// the decoded device list. The connection is closed before returning:
// devlist is a one-shot request per spec.md's connection phase model.
func (c *Client) ListDevices() ([]wire.ExportedDevice, error) {
	conn, err := net.Dial("tcp", c.addr)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	req := wire.Header{Version: wire.Version, Command: wire.OpReqDevlist}.Encode()
	if _, err := conn.Write(req); err != nil {
		return nil, err
	}

	hdr, err := readN(conn, wire.HeaderSize+wire.DevlistReplyFixed)
	if err != nil {
		return nil, err
	}
	count := peekCount(hdr)
	full := hdr
	for i := uint32(0); i < count; i++ {
		dev, err := readN(conn, wire.ExportedDeviceSize)
		if err != nil {
			return nil, err
		}
		full = append(full, dev...)
	}
	resp, err := wire.DecodeDeviceListResponse(full)
	if err != nil {
		return nil, err
	}
	return resp.Devices, nil
}

func peekCount(hdr []byte) uint32 {
	return uint32(hdr[wire.HeaderSize])<<24 | uint32(hdr[wire.HeaderSize+1])<<16 |
		uint32(hdr[wire.HeaderSize+2])<<8 | uint32(hdr[wire.HeaderSize+3])
}

// Session is one imported device: a live connection plus enough state
// to submit URBs and issue unlinks against it.
type Session struct {
	Conn   net.Conn
	Device wire.ExportedDevice
	client *Client
}

// Attach dials a fresh connection, requests OP_REQ_IMPORT for busID, and
// returns the resulting Session still holding the open connection for
// subsequent CMD_SUBMIT/CMD_UNLINK traffic.
func (c *Client) Attach(busID string) (*Session, error) {
	conn, err := net.Dial("tcp", c.addr)
	if err != nil {
		return nil, err
	}

	req, err := wire.ImportRequest{BusID: busID}.Encode()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if _, err := conn.Write(req); err != nil {
		conn.Close()
		return nil, err
	}

	hdr, err := readN(conn, wire.HeaderSize+4)
	if err != nil {
		conn.Close()
		return nil, err
	}
	status := peekImportStatus(hdr)
	if status != 0 {
		conn.Close()
		return nil, fmt.Errorf("usbiptest: import failed, status %d", status)
	}
	devBuf, err := readN(conn, wire.ExportedDeviceSize)
	if err != nil {
		conn.Close()
		return nil, err
	}
	resp, err := wire.DecodeImportResponse(append(hdr, devBuf...))
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &Session{Conn: conn, Device: *resp.Device, client: c}, nil
}

func peekImportStatus(hdr []byte) uint32 {
	off := wire.HeaderSize
	return uint32(hdr[off])<<24 | uint32(hdr[off+1])<<16 | uint32(hdr[off+2])<<8 | uint32(hdr[off+3])
}

// Close closes the underlying connection.
func (s *Session) Close() error { return s.Conn.Close() }

// Submit issues one CMD_SUBMIT and blocks for its RET_SUBMIT reply.
func (s *Session) Submit(direction uint32, ep uint32, setup [8]byte, outData []byte, inLength uint32, timeout time.Duration) (wire.RetSubmit, []byte, error) {
	seq := s.client.nextSeq()
	cmd := wire.CmdSubmit{
		Seqnum:    seq,
		Devid:     devid(s.Device),
		Direction: direction,
		Ep:        ep,
		Setup:     setup,
	}
	if direction == wire.DirOut {
		cmd.BufferLength = uint32(len(outData))
		cmd.Payload = outData
	} else {
		cmd.BufferLength = inLength
	}

	buf, err := cmd.Encode()
	if err != nil {
		return wire.RetSubmit{}, nil, err
	}

	s.Conn.SetDeadline(time.Now().Add(timeout))
	defer s.Conn.SetDeadline(time.Time{})

	if _, err := s.Conn.Write(buf); err != nil {
		return wire.RetSubmit{}, nil, err
	}

	fixed, err := readN(s.Conn, wire.HeaderSize+wire.URBReplyFixedLen)
	if err != nil {
		return wire.RetSubmit{}, nil, err
	}
	reply, err := wire.DecodeRetSubmitFixed(fixed)
	if err != nil {
		return wire.RetSubmit{}, nil, err
	}
	var data []byte
	if reply.Direction == wire.DirIn && reply.ActualLength > 0 {
		data, err = readN(s.Conn, int(reply.ActualLength))
		if err != nil {
			return reply, nil, err
		}
	}
	return reply, data, nil
}

// Unlink issues CMD_UNLINK for unlinkSeqnum and returns the RET_UNLINK
// reply.
func (s *Session) Unlink(unlinkSeqnum uint32) (wire.RetUnlink, error) {
	seq := s.client.nextSeq()
	cmd := wire.CmdUnlink{
		Seqnum:       seq,
		UnlinkSeqnum: unlinkSeqnum,
		Devid:        devid(s.Device),
	}
	buf := cmd.Encode()
	if _, err := s.Conn.Write(buf); err != nil {
		return wire.RetUnlink{}, err
	}
	fixed, err := readN(s.Conn, wire.HeaderSize+wire.UnlinkReplyLen)
	if err != nil {
		return wire.RetUnlink{}, err
	}
	return wire.DecodeRetUnlink(fixed)
}

func devid(d wire.ExportedDevice) uint32 {
	return (d.BusNum << 16) | (d.DevNum & 0xFFFF)
}

func readN(c net.Conn, n int) ([]byte, error) {
	buf := make([]byte, n)
	total := 0
	for total < n {
		m, err := c.Read(buf[total:])
		total += m
		if err != nil {
			return nil, err
		}
	}
	return buf, nil
}
