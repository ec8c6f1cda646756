//go:build !linux

package main

import (
	"fmt"
	"log/slog"

	"usbipd/internal/usbip/config"
	"usbipd/internal/usbip/transport"
)

func buildUsbfsDirectory(cfg config.Config, logger *slog.Logger) (transport.DeviceDirectory, transport.ClaimRegistry, error) {
	return nil, nil, fmt.Errorf("usbipd: the usbfs transport is linux-only")
}
