package state

import (
	"path/filepath"
	"testing"
)

func TestPathsLiveUnderAppDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())

	dir, err := AppDir()
	if err != nil {
		t.Fatalf("app dir: %v", err)
	}
	if filepath.Base(dir) != AppName {
		t.Fatalf("expected app dir to end in %q, got %q", AppName, dir)
	}

	for name, fn := range map[string]func() (string, error){
		"config.toml": ConfigPath,
		".env":        EnvPath,
		"containers":  LocalStoreDir,
	} {
		got, err := fn()
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if want := filepath.Join(dir, name); got != want {
			t.Fatalf("path mismatch: got %q want %q", got, want)
		}
	}
}
