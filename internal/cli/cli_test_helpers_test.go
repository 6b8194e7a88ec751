package cli

import (
	"io"
	"os"
	"path/filepath"
	"testing"
)

func captureStdout(t *testing.T, fn func() error) (string, error) {
	t.Helper()

	original := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	os.Stdout = w

	runErr := fn()
	_ = w.Close()
	os.Stdout = original

	out, readErr := io.ReadAll(r)
	_ = r.Close()
	if readErr != nil {
		t.Fatalf("read stdout: %v", readErr)
	}
	return string(out), runErr
}

func setCLIHome(t *testing.T) {
	t.Helper()

	homeDir := t.TempDir()
	t.Setenv("HOME", homeDir)
	t.Setenv("XDG_CONFIG_HOME", homeDir)
}

// writeLocalConfig writes a config selecting the local backend rooted in a
// temp dir and returns the global flags pointing at it.
func writeLocalConfig(t *testing.T) []string {
	t.Helper()

	dir := t.TempDir()
	storeDir := filepath.Join(dir, "containers")
	configPath := filepath.Join(dir, "config.toml")
	content := "[store]\nbackend = \"local\"\nlocal_dir = " + quoteTOML(storeDir) + "\n\n[log]\nlevel = \"error\"\n"
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return []string{"-config", configPath, "-env", filepath.Join(dir, "missing.env")}
}

func quoteTOML(s string) string {
	return "'" + s + "'"
}

func writeTempFile(t *testing.T, name string, data []byte) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}
