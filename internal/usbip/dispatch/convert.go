package dispatch

import (
	"usbipd/internal/usbip/transport"
	"usbipd/internal/usbip/wire"
)

func toExportedDevice(d transport.Device) wire.ExportedDevice {
	return wire.ExportedDevice{
		Path:                d.Path,
		BusID:               d.BusID,
		BusNum:              d.BusNum,
		DevNum:              d.DevNum,
		Speed:               d.Speed,
		IDVendor:            d.IDVendor,
		IDProduct:           d.IDProduct,
		BDeviceClass:        d.BDeviceClass,
		BDeviceSubClass:     d.BDeviceSubClass,
		BDeviceProtocol:     d.BDeviceProtocol,
		BNumConfigurations:  d.BNumConfigurations,
		BConfigurationValue: d.BConfigurationValue,
		BNumInterfaces:      d.BNumInterfaces,
	}
}

func toExportedDevices(devices []transport.Device) []wire.ExportedDevice {
	out := make([]wire.ExportedDevice, 0, len(devices))
	for _, d := range devices {
		out = append(out, toExportedDevice(d))
	}
	return out
}
