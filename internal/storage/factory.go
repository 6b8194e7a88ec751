package storage

import (
	"fmt"

	appconfig "photostore/internal/config"
)

// NewFromConfig builds the backend named by cfg.Store.Backend. localDir is
// the root used by the local backend when cfg.Store.LocalDir is empty.
func NewFromConfig(cfg appconfig.Config, localDir string) (Backend, error) {
	switch cfg.Store.Backend {
	case "", appconfig.BackendLocal:
		root := cfg.Store.LocalDir
		if root == "" {
			root = localDir
		}
		if root == "" {
			return nil, fmt.Errorf("local backend requires a root directory")
		}
		return NewLocalStore(root), nil
	case appconfig.BackendMemory:
		return NewMemoryStore(), nil
	case appconfig.BackendAzure:
		return NewAzureStore(cfg.Azure)
	case appconfig.BackendS3:
		return NewS3Store(cfg.S3)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Store.Backend)
	}
}
