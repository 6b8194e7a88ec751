package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	return path
}

func setHome(t *testing.T) {
	t.Helper()
	homeDir := t.TempDir()
	t.Setenv("HOME", homeDir)
	t.Setenv("XDG_CONFIG_HOME", homeDir)
}

func TestRunRejectsRemoteAddressWithoutOptIn(t *testing.T) {
	setHome(t)
	configPath := writeConfig(t, "[store]\nbackend = \"memory\"\n")

	err := run(context.Background(), []string{"-config", configPath, "-addr", "0.0.0.0:7420"})
	if err == nil || !strings.Contains(err.Error(), "--allow-remote") {
		t.Fatalf("expected loopback error, got: %v", err)
	}
}

func TestRunReportsConfigErrors(t *testing.T) {
	setHome(t)
	configPath := writeConfig(t, "[store]\nbackend = \"ftp\"\n")

	err := run(context.Background(), []string{"-config", configPath})
	if err == nil || !strings.Contains(err.Error(), "config error") {
		t.Fatalf("expected config error, got: %v", err)
	}
}

func TestRunStopsWhenContextIsDone(t *testing.T) {
	setHome(t)
	configPath := writeConfig(t, "[store]\nbackend = \"local\"\nlocal_dir = '"+t.TempDir()+"'\n\n[log]\nlevel = \"error\"\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := run(ctx, []string{"-config", configPath, "-addr", "127.0.0.1:0"}); err != nil {
		t.Fatalf("run with cancelled context: %v", err)
	}
}
