package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

const localMetaDir = ".photostore"

// LocalStore keeps containers as directories under rootDir. Blob metadata
// lives in a sidecar under each container's .photostore directory.
//
// Conditional writes are serialized across processes by a file lock per
// container, so a CLI and a daemon sharing rootDir see each other's ETags.
// Leases are held in process memory and only exclude writers sharing the
// same LocalStore; another process can still write a leased blob.
type LocalStore struct {
	mu        sync.Mutex
	rootDir   string
	now       func() time.Time
	lastTag   int64
	leases    *leaseTable
	writeFile func(path string, data []byte) error
}

type localBlobMeta struct {
	ETag        string `json:"etag"`
	ContentType string `json:"content_type,omitempty"`
}

type localContainerMeta struct {
	PublicBlobAccess bool `json:"public_blob_access"`
}

func NewLocalStore(rootDir string) *LocalStore {
	return &LocalStore{
		rootDir:   rootDir,
		now:       time.Now,
		leases:    newLeaseTable(time.Now),
		writeFile: writeFileAtomic,
	}
}

func (s *LocalStore) Name() string { return "local" }

func (s *LocalStore) EnsureContainer(_ context.Context, container string) error {
	dir, err := s.containerPath(container)
	if err != nil {
		return err
	}
	return os.MkdirAll(filepath.Join(dir, localMetaDir, "blobs"), 0o755)
}

func (s *LocalStore) SetPublicBlobAccess(_ context.Context, container string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir, err := s.existingContainer(container)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(localContainerMeta{PublicBlobAccess: true})
	if err != nil {
		return err
	}
	return writeFileAtomic(filepath.Join(dir, localMetaDir, "container.json"), payload)
}

func (s *LocalStore) ListBlobs(_ context.Context, container string) ([]BlobItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir, err := s.existingContainer(container)
	if err != nil {
		return nil, err
	}
	unlock, err := lockContainer(dir, false)
	if err != nil {
		return nil, err
	}
	defer unlock()

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	items := make([]BlobItem, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".tmp-") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, err
		}
		meta, err := s.readMeta(dir, entry.Name())
		if err != nil {
			return nil, err
		}
		items = append(items, BlobItem{
			Name: entry.Name(),
			URL:  s.BlobURL(container, entry.Name()),
			Kind: KindBlock,
			ETag: ETag(meta.ETag),
			Size: info.Size(),
		})
	}
	return items, nil
}

func (s *LocalStore) BlobURL(container, name string) string {
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(filepath.Join(s.rootDir, container, name))}
	return u.String()
}

func (s *LocalStore) Properties(_ context.Context, container, name string) (BlobProperties, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir, blobPath, err := s.existingBlob(container, name)
	if err != nil {
		return BlobProperties{}, err
	}
	unlock, err := lockContainer(dir, false)
	if err != nil {
		return BlobProperties{}, err
	}
	defer unlock()

	info, err := os.Stat(blobPath)
	if err != nil {
		return BlobProperties{}, err
	}
	meta, err := s.readMeta(dir, name)
	if err != nil {
		return BlobProperties{}, err
	}
	return BlobProperties{
		ETag:         ETag(meta.ETag),
		Size:         info.Size(),
		ContentType:  meta.ContentType,
		LastModified: info.ModTime().UTC(),
		Leased:       s.leases.isLeased(leaseKey(container, name)),
	}, nil
}

func (s *LocalStore) Upload(_ context.Context, container, name string, data []byte, opts UploadOptions) (UploadResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir, err := s.existingContainer(container)
	if err != nil {
		return UploadResult{}, err
	}
	blobPath, err := blobPathIn(dir, name)
	if err != nil {
		return UploadResult{}, err
	}
	unlock, err := lockContainer(dir, true)
	if err != nil {
		return UploadResult{}, err
	}
	defer unlock()

	exists := true
	if _, err := os.Stat(blobPath); errors.Is(err, os.ErrNotExist) {
		exists = false
	} else if err != nil {
		return UploadResult{}, err
	}

	var current localBlobMeta
	if exists {
		current, err = s.readMeta(dir, name)
		switch {
		case err == nil:
			s.observeETag(current.ETag)
		case opts.Condition.Kind == CondIfMatch:
			return UploadResult{}, err
		}
	}

	switch opts.Condition.Kind {
	case CondIfMatch:
		if !exists || current.ETag != opts.Condition.Value {
			return UploadResult{}, &StatusError{Status: http.StatusPreconditionFailed, Code: "ConditionNotMet", Err: errPreconditionFailed}
		}
	case CondIfNoneMatch:
		if exists {
			return UploadResult{}, newStatusError(http.StatusConflict, "BlobAlreadyExists")
		}
	}
	if err := s.leases.checkWrite(leaseKey(container, name), opts.Condition); err != nil {
		return UploadResult{}, err
	}

	sidecar := metaPath(dir, name)
	previous, err := os.ReadFile(sidecar)
	hadSidecar := err == nil
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return UploadResult{}, err
	}

	meta := localBlobMeta{ETag: s.nextETag(), ContentType: opts.ContentType}
	payload, err := json.Marshal(meta)
	if err != nil {
		return UploadResult{}, err
	}
	// The sidecar goes first: if the content write then fails, the old
	// sidecar is put back and the old ETag keeps describing the old content.
	if err := s.writeFile(sidecar, payload); err != nil {
		return UploadResult{}, err
	}
	if err := s.writeFile(blobPath, data); err != nil {
		if rbErr := s.restoreSidecar(sidecar, previous, hadSidecar); rbErr != nil {
			return UploadResult{}, errors.Join(err, fmt.Errorf("restore metadata for %s: %w", name, rbErr))
		}
		return UploadResult{}, err
	}
	return UploadResult{ETag: ETag(meta.ETag)}, nil
}

func (s *LocalStore) restoreSidecar(path string, previous []byte, existed bool) error {
	if !existed {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		return nil
	}
	return s.writeFile(path, previous)
}

func (s *LocalStore) Download(_ context.Context, container, name string) (DownloadResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir, blobPath, err := s.existingBlob(container, name)
	if err != nil {
		return DownloadResult{}, err
	}
	unlock, err := lockContainer(dir, false)
	if err != nil {
		return DownloadResult{}, err
	}
	defer unlock()

	data, err := os.ReadFile(blobPath)
	if err != nil {
		return DownloadResult{}, err
	}
	meta, err := s.readMeta(dir, name)
	if err != nil {
		return DownloadResult{}, err
	}
	return DownloadResult{Data: data, ETag: ETag(meta.ETag), ContentType: meta.ContentType}, nil
}

func (s *LocalStore) AcquireLease(_ context.Context, container, name string, duration time.Duration, proposedID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, _, err := s.existingBlob(container, name); err != nil {
		return "", err
	}
	return s.leases.acquire(leaseKey(container, name), duration, proposedID)
}

func (s *LocalStore) ReleaseLease(_ context.Context, container, name, leaseID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, _, err := s.existingBlob(container, name); err != nil {
		return err
	}
	return s.leases.release(leaseKey(container, name), leaseID)
}

func (s *LocalStore) containerPath(container string) (string, error) {
	if !validSegment(container) {
		return "", fmt.Errorf("invalid container name %q", container)
	}
	return filepath.Join(s.rootDir, container), nil
}

func (s *LocalStore) existingContainer(container string) (string, error) {
	dir, err := s.containerPath(container)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(dir); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", &StatusError{Status: http.StatusNotFound, Code: "ContainerNotFound", Err: errNotFound}
		}
		return "", err
	}
	return dir, nil
}

func (s *LocalStore) existingBlob(container, name string) (string, string, error) {
	dir, err := s.existingContainer(container)
	if err != nil {
		return "", "", err
	}
	blobPath, err := blobPathIn(dir, name)
	if err != nil {
		return "", "", err
	}
	if _, err := os.Stat(blobPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", "", &StatusError{Status: http.StatusNotFound, Code: "BlobNotFound", Err: errNotFound}
		}
		return "", "", err
	}
	return dir, blobPath, nil
}

// readMeta returns the sidecar for name. Files dropped into the container
// directory by hand have none; they get an ETag derived from their stat.
func (s *LocalStore) readMeta(dir, name string) (localBlobMeta, error) {
	payload, err := os.ReadFile(metaPath(dir, name))
	if errors.Is(err, os.ErrNotExist) {
		info, statErr := os.Stat(filepath.Join(dir, name))
		if statErr != nil {
			return localBlobMeta{}, statErr
		}
		return localBlobMeta{ETag: fmt.Sprintf("\"0x%X-%X\"", info.ModTime().UnixNano(), info.Size())}, nil
	}
	if err != nil {
		return localBlobMeta{}, err
	}
	var meta localBlobMeta
	if err := json.Unmarshal(payload, &meta); err != nil {
		return localBlobMeta{}, fmt.Errorf("decode blob metadata for %s: %w", name, err)
	}
	return meta, nil
}

// nextETag returns a token strictly newer than every token this store
// has issued or observed, even when the clock does not advance between
// writes.
func (s *LocalStore) nextETag() string {
	tag := s.now().UnixNano()
	if tag <= s.lastTag {
		tag = s.lastTag + 1
	}
	s.lastTag = tag
	return fmt.Sprintf("\"0x%X\"", tag)
}

// observeETag records a token another writer may have issued, so the next
// token this store hands out sorts after it. Tokens derived from a file's
// stat do not parse and are ignored.
func (s *LocalStore) observeETag(tag string) {
	var n int64
	if _, err := fmt.Sscanf(tag, "\"0x%X\"", &n); err != nil {
		return
	}
	if n > s.lastTag {
		s.lastTag = n
	}
}

// lockContainer takes the container's file lock, exclusive for writers and
// shared for readers. The returned func releases it.
func lockContainer(dir string, exclusive bool) (func(), error) {
	metaDir := filepath.Join(dir, localMetaDir)
	if err := os.MkdirAll(metaDir, 0o755); err != nil {
		return nil, err
	}
	fl := flock.New(filepath.Join(metaDir, "write.lock"))
	lock := fl.RLock
	if exclusive {
		lock = fl.Lock
	}
	if err := lock(); err != nil {
		return nil, fmt.Errorf("lock container %s: %w", filepath.Base(dir), err)
	}
	return func() { _ = fl.Unlock() }, nil
}

func blobPathIn(dir, name string) (string, error) {
	if !validSegment(name) {
		return "", fmt.Errorf("invalid blob name %q", name)
	}
	return filepath.Join(dir, name), nil
}

func metaPath(dir, name string) string {
	return filepath.Join(dir, localMetaDir, "blobs", name+".json")
}

func validSegment(name string) bool {
	if name == "" || name == "." || name == ".." || name == localMetaDir {
		return false
	}
	if strings.HasPrefix(name, ".tmp-") {
		return false
	}
	return !strings.ContainsAny(name, `/\`)
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
