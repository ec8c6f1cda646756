// Command usbipd serves the USB/IP protocol over TCP, the way this
// codebase's hasher-server served gRPC: load config, build the
// dispatcher's collaborators, listen, and shut down gracefully on
// SIGINT/SIGTERM.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"usbipd/internal/usbip/config"
	"usbipd/internal/usbip/dispatch"
	"usbipd/internal/usbip/directory"
	"usbipd/internal/usbip/server"
	"usbipd/internal/usbip/transport"
)

var (
	port              = flag.Int("port", 0, "TCP port to listen on (0 = use config/default)")
	transportFlag     = flag.String("transport", "", "transport backend: static, gousb, or usbfs (empty = use config/default)")
	maxConcurrentURBs = flag.Int("max-concurrent-urbs", 0, "max concurrent in-flight URBs per connection (0 = use config/default)")
	allowedBusIDs     = flag.String("allowed-busids", "", "comma-separated busid allow-list (empty = use config/default)")
	trace             = flag.Bool("trace", false, "enable per-PDU protocol trace logging")
	logFormat         = flag.String("log-format", "text", "log output format: text or json")
	logLevel          = flag.String("log-level", "info", "log level: debug, info, warn, or error")
)

func main() {
	flag.Parse()

	cfg := config.Load()
	applyFlags(&cfg)

	logger := newLogger(*logFormat, *logLevel)
	slog.SetDefault(logger)

	dir, claims, err := buildDirectory(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize device directory", "transport", cfg.Transport, "error", err)
		os.Exit(1)
	}

	d := &dispatch.Dispatcher{
		Directory:         dir,
		Claims:            claims,
		MaxConcurrentURBs: cfg.MaxConcurrentURBs,
		URBTimeoutMS:      int(cfg.DefaultURBTimeout.Milliseconds()),
		Logger:            logger,
		Trace:             cfg.Trace,
	}
	srv := &server.Server{
		Addr:       fmt.Sprintf("0.0.0.0:%d", cfg.Port),
		Dispatcher: d,
		Logger:     logger,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("usbipd starting", "port", cfg.Port, "transport", cfg.Transport, "max_concurrent_urbs", cfg.MaxConcurrentURBs)
	if err := srv.ListenAndServe(ctx); err != nil && ctx.Err() == nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
	logger.Info("usbipd stopped")
}

func applyFlags(cfg *config.Config) {
	if *port != 0 {
		cfg.Port = *port
	}
	if *transportFlag != "" {
		cfg.Transport = *transportFlag
	}
	if *maxConcurrentURBs != 0 {
		cfg.MaxConcurrentURBs = *maxConcurrentURBs
	}
	if *allowedBusIDs != "" {
		cfg.AllowedBusIDs = splitCommaList(*allowedBusIDs)
	}
	if *trace {
		cfg.Trace = true
	}
}

func splitCommaList(v string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(v); i++ {
		if i == len(v) || v[i] == ',' {
			if s := trimSpace(v[start:i]); s != "" {
				out = append(out, s)
			}
			start = i + 1
		}
	}
	return out
}

func trimSpace(s string) string {
	for len(s) > 0 && (s[0] == ' ' || s[0] == '\t') {
		s = s[1:]
	}
	for len(s) > 0 && (s[len(s)-1] == ' ' || s[len(s)-1] == '\t') {
		s = s[:len(s)-1]
	}
	return s
}

func newLogger(format, level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

// buildDirectory wires the device directory and claim registry for
// cfg.Transport. "static" starts empty (a demo/test instance with no
// devices registered, or one populated programmatically by an embedder);
// "gousb" and "usbfs" register the single configured real device against
// their respective transport-backed claim registries.
func buildDirectory(cfg config.Config, logger *slog.Logger) (transport.DeviceDirectory, transport.ClaimRegistry, error) {
	switch cfg.Transport {
	case "", "static":
		dir := directory.NewStaticDirectory(cfg.AllowedBusIDs)
		return dir, dir, nil
	case "gousb":
		return buildGousbDirectory(cfg, logger)
	case "usbfs":
		return buildUsbfsDirectory(cfg, logger)
	default:
		return nil, nil, fmt.Errorf("usbipd: unknown transport %q", cfg.Transport)
	}
}
