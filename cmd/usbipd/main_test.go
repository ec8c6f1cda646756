package main

import (
	"log/slog"
	"testing"

	"usbipd/internal/usbip/config"
)

func TestSplitCommaList(t *testing.T) {
	got := splitCommaList("1-1, 2-2 ,3-3")
	want := []string{"1-1", "2-2", "3-3"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestSplitCommaListEmpty(t *testing.T) {
	if got := splitCommaList(""); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}

func TestBuildDirectoryUnknownTransport(t *testing.T) {
	cfg := config.Defaults()
	cfg.Transport = "bogus"
	if _, _, err := buildDirectory(cfg, slog.Default()); err == nil {
		t.Fatal("expected an error for an unknown transport")
	}
}

func TestBuildDirectoryStaticDefault(t *testing.T) {
	cfg := config.Defaults()
	dir, claims, err := buildDirectory(cfg, slog.Default())
	if err != nil {
		t.Fatalf("buildDirectory: %v", err)
	}
	if dir == nil || claims == nil {
		t.Fatal("expected non-nil directory and claims for the static transport")
	}
}
