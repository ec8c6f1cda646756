// Package config loads server configuration from environment
// variables and an optional .env file, the way the rest of this
// codebase's ancestor loaded device credentials: environment wins over
// file, file wins over built-in defaults.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config is the full set of options cmd/usbipd accepts, either via
// flags, environment variables, or a .env file. Flags passed on the
// command line take precedence over everything loaded here.
type Config struct {
	Port              int
	MaxConcurrentURBs int
	DefaultURBTimeout time.Duration
	AllowedBusIDs     []string
	Transport         string // "static", "gousb", or "usbfs"
	Trace             bool

	// DeviceBusID/DeviceBusNum/DeviceDevNum/DeviceVendorID/DeviceProductID
	// describe the single real device cmd/usbipd registers with the
	// gousb or usbfs transport at startup. Unused in "static" mode,
	// where the test suite registers its own fake devices directly.
	DeviceBusID     string
	DeviceBusNum    uint32
	DeviceDevNum    uint32
	DeviceVendorID  uint16
	DeviceProductID uint16
}

// Defaults mirror SPEC_FULL.md §4.8.
func Defaults() Config {
	return Config{
		Port:              3240,
		MaxConcurrentURBs: 64,
		DefaultURBTimeout: 5 * time.Second,
		AllowedBusIDs:     nil,
		Transport:         "static",
		Trace:             false,
		DeviceBusID:       "1-1",
		DeviceBusNum:      1,
		DeviceDevNum:      1,
	}
}

// Load builds a Config starting from Defaults, then overlaying an
// optional .env file found by findProjectRoot, then the process
// environment.
func Load() Config {
	cfg := Defaults()

	projectRoot := findProjectRoot()
	envPath := filepath.Join(projectRoot, ".env")
	if data, err := os.ReadFile(envPath); err == nil {
		parseEnvFile(string(data), &cfg)
	}

	applyEnviron(&cfg)
	return cfg
}

func applyEnviron(cfg *Config) {
	if v := os.Getenv("USBIPD_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Port = n
		}
	}
	if v := os.Getenv("USBIPD_MAX_CONCURRENT_URBS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxConcurrentURBs = n
		}
	}
	if v := os.Getenv("USBIPD_URB_TIMEOUT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.DefaultURBTimeout = time.Duration(n) * time.Millisecond
		}
	}
	if v := os.Getenv("USBIPD_ALLOWED_BUSIDS"); v != "" {
		cfg.AllowedBusIDs = splitCommaList(v)
	}
	if v := os.Getenv("USBIPD_TRANSPORT"); v != "" {
		cfg.Transport = v
	}
	if v := os.Getenv("USBIPD_TRACE"); v != "" {
		cfg.Trace = v == "1" || strings.EqualFold(v, "true")
	}
	if v := os.Getenv("USBIPD_DEVICE_BUSID"); v != "" {
		cfg.DeviceBusID = v
	}
	if v := os.Getenv("USBIPD_DEVICE_BUSNUM"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			cfg.DeviceBusNum = uint32(n)
		}
	}
	if v := os.Getenv("USBIPD_DEVICE_DEVNUM"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			cfg.DeviceDevNum = uint32(n)
		}
	}
	if v := os.Getenv("USBIPD_DEVICE_VENDOR_ID"); v != "" {
		if n, err := strconv.ParseUint(v, 16, 16); err == nil {
			cfg.DeviceVendorID = uint16(n)
		}
	}
	if v := os.Getenv("USBIPD_DEVICE_PRODUCT_ID"); v != "" {
		if n, err := strconv.ParseUint(v, 16, 16); err == nil {
			cfg.DeviceProductID = uint16(n)
		}
	}
}

func parseEnvFile(content string, cfg *Config) {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		switch key {
		case "USBIPD_PORT":
			if n, err := strconv.Atoi(value); err == nil {
				cfg.Port = n
			}
		case "USBIPD_MAX_CONCURRENT_URBS":
			if n, err := strconv.Atoi(value); err == nil {
				cfg.MaxConcurrentURBs = n
			}
		case "USBIPD_URB_TIMEOUT_MS":
			if n, err := strconv.Atoi(value); err == nil {
				cfg.DefaultURBTimeout = time.Duration(n) * time.Millisecond
			}
		case "USBIPD_ALLOWED_BUSIDS":
			cfg.AllowedBusIDs = splitCommaList(value)
		case "USBIPD_TRANSPORT":
			cfg.Transport = value
		case "USBIPD_TRACE":
			cfg.Trace = value == "1" || strings.EqualFold(value, "true")
		case "USBIPD_DEVICE_BUSID":
			cfg.DeviceBusID = value
		case "USBIPD_DEVICE_BUSNUM":
			if n, err := strconv.ParseUint(value, 10, 32); err == nil {
				cfg.DeviceBusNum = uint32(n)
			}
		case "USBIPD_DEVICE_DEVNUM":
			if n, err := strconv.ParseUint(value, 10, 32); err == nil {
				cfg.DeviceDevNum = uint32(n)
			}
		case "USBIPD_DEVICE_VENDOR_ID":
			if n, err := strconv.ParseUint(value, 16, 16); err == nil {
				cfg.DeviceVendorID = uint16(n)
			}
		case "USBIPD_DEVICE_PRODUCT_ID":
			if n, err := strconv.ParseUint(value, 16, 16); err == nil {
				cfg.DeviceProductID = uint16(n)
			}
		}
	}
}

func splitCommaList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// findProjectRoot returns the working directory if it holds a .env
// file, otherwise the nearest directory at or above it holding a
// go.mod, otherwise the working directory. Parent directories are not
// searched for .env.
func findProjectRoot() string {
	cwd, _ := os.Getwd()
	if _, err := os.Stat(filepath.Join(cwd, ".env")); err == nil {
		return cwd
	}
	dir := cwd
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return cwd
		}
		dir = parent
	}
}
