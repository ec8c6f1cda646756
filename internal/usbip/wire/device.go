package wire

import "encoding/binary"

// ExportedDevice is the 312-byte device block shared by OP_REP_DEVLIST
// entries and a successful OP_REP_IMPORT reply. This server does not
// append the per-interface descriptor blocks Linux usbip appends after
// each device entry (spec.md §3, §9 Q2); each device reports a single
// minimal-viable block.
type ExportedDevice struct {
	Path                string
	BusID               string
	BusNum              uint32
	DevNum              uint32
	Speed               uint32
	IDVendor            uint16
	IDProduct           uint16
	BDeviceClass        uint8
	BDeviceSubClass     uint8
	BDeviceProtocol     uint8
	BNumConfigurations  uint8
	BConfigurationValue uint8
	BNumInterfaces      uint8
}

// Encode renders the device into its 312-byte wire form.
func (d ExportedDevice) Encode() ([]byte, error) {
	buf := make([]byte, ExportedDeviceSize)

	path, err := encodeFixedString(d.Path, PathFieldSize)
	if err != nil {
		return nil, err
	}
	busid, err := encodeFixedString(d.BusID, BusIDFieldSize)
	if err != nil {
		return nil, err
	}

	off := 0
	copy(buf[off:], path)
	off += PathFieldSize
	copy(buf[off:], busid)
	off += BusIDFieldSize

	binary.BigEndian.PutUint32(buf[off:], d.BusNum)
	off += 4
	binary.BigEndian.PutUint32(buf[off:], d.DevNum)
	off += 4
	binary.BigEndian.PutUint32(buf[off:], d.Speed)
	off += 4
	binary.BigEndian.PutUint16(buf[off:], d.IDVendor)
	off += 2
	binary.BigEndian.PutUint16(buf[off:], d.IDProduct)
	off += 2

	buf[off] = d.BDeviceClass
	off++
	buf[off] = d.BDeviceSubClass
	off++
	buf[off] = d.BDeviceProtocol
	off++
	buf[off] = d.BNumConfigurations
	off++
	buf[off] = d.BConfigurationValue
	off++
	buf[off] = d.BNumInterfaces
	off++
	// 2 reserved bytes, left zero.

	return buf, nil
}

// DecodeExportedDevice parses a 312-byte device block.
func DecodeExportedDevice(buf []byte) (ExportedDevice, error) {
	if len(buf) != ExportedDeviceSize {
		return ExportedDevice{}, ErrInvalidLength
	}

	path, err := decodeFixedString(buf[0:PathFieldSize])
	if err != nil {
		return ExportedDevice{}, err
	}
	busidOff := PathFieldSize
	busid, err := decodeFixedString(buf[busidOff : busidOff+BusIDFieldSize])
	if err != nil {
		return ExportedDevice{}, err
	}

	off := busidOff + BusIDFieldSize
	d := ExportedDevice{
		Path:  path,
		BusID: busid,
	}
	d.BusNum = binary.BigEndian.Uint32(buf[off:])
	off += 4
	d.DevNum = binary.BigEndian.Uint32(buf[off:])
	off += 4
	d.Speed = binary.BigEndian.Uint32(buf[off:])
	off += 4
	d.IDVendor = binary.BigEndian.Uint16(buf[off:])
	off += 2
	d.IDProduct = binary.BigEndian.Uint16(buf[off:])
	off += 2
	d.BDeviceClass = buf[off]
	off++
	d.BDeviceSubClass = buf[off]
	off++
	d.BDeviceProtocol = buf[off]
	off++
	d.BNumConfigurations = buf[off]
	off++
	d.BConfigurationValue = buf[off]
	off++
	d.BNumInterfaces = buf[off]

	return d, nil
}

// DeviceListRequest is OP_REQ_DEVLIST: header only.
type DeviceListRequest struct{}

// DeviceListResponse is OP_REP_DEVLIST: header + count + reserved + N devices.
type DeviceListResponse struct {
	Devices []ExportedDevice
}

// Encode renders the full devlist reply, including its 8-byte header.
func (r DeviceListResponse) Encode() ([]byte, error) {
	hdr := Header{Version: Version, Command: OpRepDevlist, Status: 0}
	buf := make([]byte, 0, HeaderSize+DevlistReplyFixed+len(r.Devices)*ExportedDeviceSize)
	buf = append(buf, hdr.Encode()...)

	countAndReserved := make([]byte, DevlistReplyFixed)
	binary.BigEndian.PutUint32(countAndReserved[0:4], uint32(len(r.Devices)))
	buf = append(buf, countAndReserved...)

	for _, d := range r.Devices {
		enc, err := d.Encode()
		if err != nil {
			return nil, err
		}
		buf = append(buf, enc...)
	}
	return buf, nil
}

// DecodeDeviceListResponse parses a full devlist reply: pass the
// complete buffer including the 8-byte header, which it validates.
func DecodeDeviceListResponse(buf []byte) (DeviceListResponse, error) {
	if len(buf) < HeaderSize+DevlistReplyFixed {
		return DeviceListResponse{}, ErrInvalidLength
	}
	hdr, err := DecodeHeader(buf[:HeaderSize])
	if err != nil {
		return DeviceListResponse{}, err
	}
	if hdr.Command != OpRepDevlist {
		return DeviceListResponse{}, &UnsupportedCommandError{Got: hdr.Command}
	}
	count := binary.BigEndian.Uint32(buf[HeaderSize : HeaderSize+4])
	off := HeaderSize + DevlistReplyFixed
	want := off + int(count)*ExportedDeviceSize
	if len(buf) != want {
		return DeviceListResponse{}, ErrInvalidLength
	}
	devices := make([]ExportedDevice, 0, count)
	for i := uint32(0); i < count; i++ {
		d, err := DecodeExportedDevice(buf[off : off+ExportedDeviceSize])
		if err != nil {
			return DeviceListResponse{}, err
		}
		devices = append(devices, d)
		off += ExportedDeviceSize
	}
	return DeviceListResponse{Devices: devices}, nil
}

// ImportRequest is OP_REQ_IMPORT's 32-byte remainder after the header.
type ImportRequest struct {
	BusID string
}

// Encode renders the request including its 8-byte header.
func (r ImportRequest) Encode() ([]byte, error) {
	hdr := Header{Version: Version, Command: OpReqImport, Status: 0}
	busid, err := encodeFixedString(r.BusID, BusIDFieldSize)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 0, HeaderSize+BusIDFieldSize)
	buf = append(buf, hdr.Encode()...)
	buf = append(buf, busid...)
	return buf, nil
}

// DecodeImportRequest parses a full 40-byte OP_REQ_IMPORT PDU.
func DecodeImportRequest(buf []byte) (ImportRequest, error) {
	if len(buf) != HeaderSize+BusIDFieldSize {
		return ImportRequest{}, ErrInvalidLength
	}
	hdr, err := DecodeHeader(buf[:HeaderSize])
	if err != nil {
		return ImportRequest{}, err
	}
	if hdr.Command != OpReqImport {
		return ImportRequest{}, &UnsupportedCommandError{Got: hdr.Command}
	}
	busid, err := decodeFixedString(buf[HeaderSize : HeaderSize+BusIDFieldSize])
	if err != nil {
		return ImportRequest{}, err
	}
	return ImportRequest{BusID: busid}, nil
}

// ImportResponse is OP_REP_IMPORT: header + status, optionally followed
// by a device block on success. Status == 0 means success; Device must
// be non-nil in that case. This is the 12/324-byte "richer" variant
// spec.md §9 Q3 requires, never the 4-byte-only variant.
type ImportResponse struct {
	Status uint32
	Device *ExportedDevice
}

// Encode renders the response including its 8-byte header.
func (r ImportResponse) Encode() ([]byte, error) {
	hdr := Header{Version: Version, Command: OpRepImport, Status: 0}
	buf := make([]byte, 0, HeaderSize+4+ExportedDeviceSize)
	buf = append(buf, hdr.Encode()...)
	status := make([]byte, 4)
	binary.BigEndian.PutUint32(status, r.Status)
	buf = append(buf, status...)
	if r.Status == 0 {
		if r.Device == nil {
			return nil, &InvalidFormatError{Reason: "success ImportResponse missing device block"}
		}
		dev, err := r.Device.Encode()
		if err != nil {
			return nil, err
		}
		buf = append(buf, dev...)
	}
	return buf, nil
}

// DecodeImportResponse parses a full OP_REP_IMPORT PDU: 12 bytes on
// error, 324 bytes on success.
func DecodeImportResponse(buf []byte) (ImportResponse, error) {
	if len(buf) != HeaderSize+4 && len(buf) != HeaderSize+4+ExportedDeviceSize {
		return ImportResponse{}, ErrInvalidLength
	}
	hdr, err := DecodeHeader(buf[:HeaderSize])
	if err != nil {
		return ImportResponse{}, err
	}
	if hdr.Command != OpRepImport {
		return ImportResponse{}, &UnsupportedCommandError{Got: hdr.Command}
	}
	status := binary.BigEndian.Uint32(buf[HeaderSize : HeaderSize+4])
	resp := ImportResponse{Status: status}
	if status == 0 {
		if len(buf) != HeaderSize+4+ExportedDeviceSize {
			return ImportResponse{}, ErrInvalidLength
		}
		dev, err := DecodeExportedDevice(buf[HeaderSize+4:])
		if err != nil {
			return ImportResponse{}, err
		}
		resp.Device = &dev
	}
	return resp, nil
}
