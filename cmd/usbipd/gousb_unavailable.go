//go:build mips || mipsle

package main

import (
	"fmt"
	"log/slog"

	"usbipd/internal/usbip/config"
	"usbipd/internal/usbip/transport"
)

func buildGousbDirectory(cfg config.Config, logger *slog.Logger) (transport.DeviceDirectory, transport.ClaimRegistry, error) {
	return nil, nil, fmt.Errorf("usbipd: the gousb transport is unavailable on mips builds, use usbfs")
}
