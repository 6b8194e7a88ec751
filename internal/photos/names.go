package photos

import (
	"fmt"
	"mime"
	"path"
	"strings"
)

// BlobName returns the final segment of filePath, treating both '/' and
// '\' as separators.
func BlobName(filePath string) (string, error) {
	name := filePath[strings.LastIndexAny(filePath, `/\`)+1:]
	switch name {
	case "", ".", "..":
		return "", fmt.Errorf("%w: no file name in %q", ErrInvalidName, filePath)
	}
	return name, nil
}

func validateContainer(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: empty container name", ErrInvalidName)
	}
	if strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: container name %q contains a path separator", ErrInvalidName, name)
	}
	return nil
}

func contentTypeFor(name string) string {
	if ct := mime.TypeByExtension(strings.ToLower(path.Ext(name))); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
