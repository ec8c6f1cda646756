//go:build linux

package main

import (
	"log/slog"

	"usbipd/internal/usbip/config"
	"usbipd/internal/usbip/directory"
	"usbipd/internal/usbip/transport"
	"usbipd/internal/usbip/transport/usbfs"
)

func buildUsbfsDirectory(cfg config.Config, logger *slog.Logger) (transport.DeviceDirectory, transport.ClaimRegistry, error) {
	dir := directory.NewStaticDirectory(cfg.AllowedBusIDs)
	registry := usbfs.NewClaimRegistry()
	dir.Register(transport.Device{
		BusID:               cfg.DeviceBusID,
		BusNum:              cfg.DeviceBusNum,
		DevNum:              cfg.DeviceDevNum,
		IDVendor:            cfg.DeviceVendorID,
		IDProduct:           cfg.DeviceProductID,
		BNumConfigurations:  1,
		BConfigurationValue: 1,
	}, nil)
	logger.Info("usbfs transport configured", "busid", cfg.DeviceBusID, "busnum", cfg.DeviceBusNum, "devnum", cfg.DeviceDevNum)
	return dir, registry, nil
}
