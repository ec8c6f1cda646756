package wire

import (
	"bytes"
	"testing"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{Version: Version, Command: OpReqDevlist, Status: 0}
	got, err := DecodeHeader(h.Encode())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != h {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, h)
	}
}

func TestDecodeHeaderRejectsBadVersion(t *testing.T) {
	buf := Header{Version: 0x0222, Command: OpReqDevlist}.Encode()
	_, err := DecodeHeader(buf)
	if _, ok := err.(*UnsupportedVersionError); !ok {
		t.Fatalf("expected UnsupportedVersionError, got %v", err)
	}
}

func TestDecodeHeaderRejectsBadLength(t *testing.T) {
	if _, err := DecodeHeader([]byte{1, 2, 3}); err != ErrInvalidLength {
		t.Fatalf("expected ErrInvalidLength, got %v", err)
	}
}

// S1 – DevList on empty server.
func TestScenarioS1EmptyDevList(t *testing.T) {
	resp := DeviceListResponse{}
	buf, err := resp.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := []byte{0x01, 0x11, 0x00, 0x05, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}
	if !bytes.Equal(buf, want) {
		t.Fatalf("got % x want % x", buf, want)
	}
	if len(buf) != 16 {
		t.Fatalf("expected 16 bytes, got %d", len(buf))
	}
	got, err := DecodeDeviceListResponse(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Devices) != 0 {
		t.Fatalf("expected 0 devices, got %d", len(got.Devices))
	}
}

func TestExportedDeviceRoundTrip(t *testing.T) {
	d := ExportedDevice{
		Path:                "/sys/devices/pci0000:00/usb1/1-1",
		BusID:               "1-1",
		BusNum:              1,
		DevNum:              2,
		Speed:               3,
		IDVendor:            0x1234,
		IDProduct:           0x5678,
		BDeviceClass:        9,
		BDeviceSubClass:     8,
		BDeviceProtocol:     7,
		BNumConfigurations:  1,
		BConfigurationValue: 1,
		BNumInterfaces:      1,
	}
	enc, err := d.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(enc) != ExportedDeviceSize {
		t.Fatalf("expected %d bytes, got %d", ExportedDeviceSize, len(enc))
	}
	if ExportedDeviceSize != 312 {
		t.Fatalf("ExportedDeviceSize must be 312, got %d", ExportedDeviceSize)
	}
	got, err := DecodeExportedDevice(enc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != d {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, d)
	}
}

func TestExportedDeviceRejectsOversizedPath(t *testing.T) {
	d := ExportedDevice{Path: string(make([]byte, PathFieldSize)), BusID: "1-1"}
	if _, err := d.Encode(); err == nil {
		t.Fatal("expected error for path with no room for NUL terminator")
	}
}

// S3 – Import success.
func TestScenarioS3ImportSuccess(t *testing.T) {
	dev := ExportedDevice{Path: "/sys/bus/1-1", BusID: "1-1", BusNum: 1, DevNum: 1}
	resp := ImportResponse{Status: 0, Device: &dev}
	buf, err := resp.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(buf) != 324 {
		t.Fatalf("expected 324 bytes, got %d", len(buf))
	}
	cmd, err := PeekCommand(buf)
	if err != nil {
		t.Fatalf("peek: %v", err)
	}
	if cmd != OpRepImport {
		t.Fatalf("expected OP_REP_IMPORT, got %#04x", cmd)
	}
	got, err := DecodeImportResponse(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Status != 0 || got.Device == nil || got.Device.BusID != "1-1" {
		t.Fatalf("unexpected decode result: %+v", got)
	}
}

// S4 – Import unknown busid.
func TestScenarioS4ImportUnknownBusID(t *testing.T) {
	resp := ImportResponse{Status: 1}
	buf, err := resp.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(buf) != 12 {
		t.Fatalf("expected 12 bytes, got %d", len(buf))
	}
	got, err := DecodeImportResponse(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Status != 1 || got.Device != nil {
		t.Fatalf("unexpected decode result: %+v", got)
	}
}

func TestImportResponseRejectsMissingDeviceOnSuccess(t *testing.T) {
	resp := ImportResponse{Status: 0}
	if _, err := resp.Encode(); err == nil {
		t.Fatal("expected error encoding a success ImportResponse with no device")
	}
}

func TestImportRequestRoundTrip(t *testing.T) {
	req := ImportRequest{BusID: "1-1"}
	buf, err := req.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(buf) != 40 {
		t.Fatalf("expected 40 bytes, got %d", len(buf))
	}
	got, err := DecodeImportRequest(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.BusID != "1-1" {
		t.Fatalf("expected busid 1-1, got %q", got.BusID)
	}
}

// S5 – SUBMIT control IN round trip, 18-byte GET_DESCRIPTOR(DEVICE).
func TestScenarioS5ControlSubmitAndReply(t *testing.T) {
	cmd := CmdSubmit{
		Seqnum:       1,
		Devid:        0x00010001,
		Direction:    DirIn,
		Ep:           0,
		BufferLength: 18,
		Setup:        [8]byte{0x80, 0x06, 0x00, 0x01, 0x00, 0x00, 0x12, 0x00},
	}
	buf, err := cmd.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(buf) != HeaderSize+URBCommandFixedLen {
		t.Fatalf("IN submit must carry no payload, got %d bytes", len(buf))
	}
	got, err := DecodeCmdSubmitFixed(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Seqnum != 1 || got.Ep != 0 || got.BufferLength != 18 || got.Setup != cmd.Setup {
		t.Fatalf("unexpected decode: %+v", got)
	}

	data := make([]byte, 18)
	for i := range data {
		data[i] = byte(i)
	}
	reply := RetSubmit{Seqnum: 1, Devid: cmd.Devid, Direction: DirIn, Status: 0, ActualLength: 18, Data: data}
	rbuf, err := reply.Encode()
	if err != nil {
		t.Fatalf("encode reply: %v", err)
	}
	if len(rbuf) != HeaderSize+URBReplyFixedLen+18 {
		t.Fatalf("unexpected reply length %d", len(rbuf))
	}
	rgot, err := DecodeRetSubmitFixed(rbuf[:HeaderSize+URBReplyFixedLen])
	if err != nil {
		t.Fatalf("decode reply: %v", err)
	}
	if rgot.Seqnum != 1 || rgot.Status != 0 || rgot.ActualLength != 18 {
		t.Fatalf("unexpected reply decode: %+v", rgot)
	}
	if !bytes.Equal(rbuf[HeaderSize+URBReplyFixedLen:], data) {
		t.Fatal("reply payload mismatch")
	}
}

func TestCmdSubmitRejectsMismatchedOutPayload(t *testing.T) {
	cmd := CmdSubmit{Direction: DirOut, BufferLength: 10, Payload: []byte{1, 2, 3}}
	if _, err := cmd.Encode(); err == nil {
		t.Fatal("expected error for mismatched OUT payload length")
	}
}

func TestCmdUnlinkRoundTrip(t *testing.T) {
	cmd := CmdUnlink{Seqnum: 8, UnlinkSeqnum: 7, Devid: 1, Direction: DirIn, Ep: 2}
	buf := cmd.Encode()
	if len(buf) != HeaderSize+UnlinkCommandLen {
		t.Fatalf("unexpected length %d", len(buf))
	}
	got, err := DecodeCmdUnlink(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != cmd {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, cmd)
	}
}

func TestRetUnlinkRoundTripNegativeStatus(t *testing.T) {
	reply := RetUnlink{Seqnum: 8, UnlinkSeqnum: 7, Devid: 1, Direction: DirIn, Ep: 2, Status: -2}
	buf := reply.Encode()
	got, err := DecodeRetUnlink(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != reply {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, reply)
	}
	if got.Status != -2 {
		t.Fatalf("expected signed status -2, got %d", got.Status)
	}
}

func TestDecodeRejectsWrongCommand(t *testing.T) {
	buf := Header{Version: Version, Command: OpReqDevlist}.Encode()
	buf = append(buf, make([]byte, UnlinkCommandLen)...)
	if _, err := DecodeCmdUnlink(buf); err == nil {
		t.Fatal("expected UnsupportedCommandError")
	}
}

func TestDecodeFixedStringRequiresNUL(t *testing.T) {
	field := bytes.Repeat([]byte{'x'}, BusIDFieldSize)
	if _, err := decodeFixedString(field); err == nil {
		t.Fatal("expected error for field with no NUL terminator")
	}
}

func TestDescribeDoesNotPanic(t *testing.T) {
	h := Header{Version: Version, Command: CmdSubmitOp, Status: 0}
	if s := Describe(h, "seqnum=1"); s == "" {
		t.Fatal("expected non-empty description")
	}
}
