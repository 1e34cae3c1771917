package fleet

import (
	"fmt"
	"os"
	"path/filepath"
)

// Transport is the live duplex channel to a connected agent. The WebSocket
// layer adapts its connection wrapper to this; tests use fakes.
type Transport interface {
	// SendCommand pushes a command payload (already carrying its "type" key)
	// to the agent.
	SendCommand(payload map[string]interface{}) error

	// Close tears down the underlying channel.
	Close() error
}

// BlobStore persists raw media bytes under a relative path.
type BlobStore interface {
	Write(relPath string, data []byte) error
}

// UploadEvent is an inbound media upload from an agent. Inline carries the
// base64-encoded bytes; events without image content are ignored.
type UploadEvent struct {
	Name     string
	Inline   string
	HasImage bool
}

// DirBlobStore is a BlobStore rooted at a directory on the local filesystem.
type DirBlobStore struct {
	root string
}

// NewDirBlobStore creates the root directory if needed.
func NewDirBlobStore(root string) (*DirBlobStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create downloads directory: %w", err)
	}
	return &DirBlobStore{root: root}, nil
}

// Root returns the directory all writes are rooted under.
func (s *DirBlobStore) Root() string {
	return s.root
}

func (s *DirBlobStore) Write(relPath string, data []byte) error {
	full := filepath.Join(s.root, relPath)
	if dir := filepath.Dir(full); dir != s.root {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create media directory: %w", err)
		}
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return fmt.Errorf("failed to write media file: %w", err)
	}
	return nil
}
