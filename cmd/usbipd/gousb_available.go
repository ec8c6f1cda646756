//go:build !mips && !mipsle

package main

import (
	"log/slog"

	"usbipd/internal/usbip/config"
	"usbipd/internal/usbip/directory"
	"usbipd/internal/usbip/transport"
	"usbipd/internal/usbip/transport/gousb"
)

func buildGousbDirectory(cfg config.Config, logger *slog.Logger) (transport.DeviceDirectory, transport.ClaimRegistry, error) {
	dir := directory.NewStaticDirectory(cfg.AllowedBusIDs)
	registry := gousb.NewClaimRegistry()
	// The transport argument to Register is unused here: Claims is
	// registry, not dir, so dir.Claim is never called and its
	// transport table is never consulted.
	dir.Register(transport.Device{
		BusID:               cfg.DeviceBusID,
		BusNum:              cfg.DeviceBusNum,
		DevNum:              cfg.DeviceDevNum,
		IDVendor:            cfg.DeviceVendorID,
		IDProduct:           cfg.DeviceProductID,
		BNumConfigurations:  1,
		BConfigurationValue: 1,
	}, nil)
	logger.Info("gousb transport configured", "busid", cfg.DeviceBusID, "vendor_id", cfg.DeviceVendorID, "product_id", cfg.DeviceProductID)
	return dir, registry, nil
}
