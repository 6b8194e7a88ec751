package state

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadEnvFileExportsMissingVariables(t *testing.T) {
	const fromFile, fromShell = "PHOTOSTORE_TEST_FROM_FILE", "PHOTOSTORE_TEST_FROM_SHELL"
	t.Setenv(fromFile, "")
	if err := os.Unsetenv(fromFile); err != nil {
		t.Fatalf("unsetenv: %v", err)
	}
	t.Setenv(fromShell, "shell")

	path := filepath.Join(t.TempDir(), ".env")
	content := fromFile + "=file-value\n" + fromShell + "=ignored\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	if err := LoadEnvFile(path); err != nil {
		t.Fatalf("load env file: %v", err)
	}
	if got := os.Getenv(fromFile); got != "file-value" {
		t.Fatalf("expected value from env file, got %q", got)
	}
	if got := os.Getenv(fromShell); got != "shell" {
		t.Fatalf("env file must not override the shell, got %q", got)
	}
}

func TestLoadEnvFileMissingIsNotAnError(t *testing.T) {
	if err := LoadEnvFile(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("missing env file: %v", err)
	}
	if err := LoadEnvFile(""); err != nil {
		t.Fatalf("empty path: %v", err)
	}
}

func TestLoadEnvFileRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("BAD-KEY=value\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	if err := LoadEnvFile(path); err == nil {
		t.Fatal("expected malformed env file to fail")
	}
}
