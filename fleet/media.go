package fleet

import (
	"context"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"fleetmaster/storage"
)

// HandleUpload ingests one inbound media upload. Events without image
// content are ignored. The decoded bytes are written to blob storage first;
// only a successful write appends a download-log record, so a failed write
// leaves no partial state. Concurrent ingests are capped.
func (m *Manager) HandleUpload(ctx context.Context, clientID string, ev UploadEvent) error {
	if !ev.HasImage {
		return nil
	}

	select {
	case m.uploadSem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-m.uploadSem }()

	m.logInfo("Receiving upload", "client_id", clientID, "name", ev.Name)

	data, err := base64.StdEncoding.DecodeString(ev.Inline)
	if err != nil {
		return fmt.Errorf("failed to decode upload: %w", err)
	}

	relPath := newStorageKey() + fileExtension(ev.Name)
	if err := m.blobs.Write(relPath, data); err != nil {
		m.logError("Failed to write upload", "client_id", clientID, "name", ev.Name, "error", err)
		return fmt.Errorf("failed to write upload: %w", err)
	}

	rec := &storage.DownloadRecord{
		Time:         time.Now(),
		Type:         storage.MediaScreenshot,
		OriginalName: ev.Name,
		Path:         relPath,
	}
	if err := m.store.AppendDownload(ctx, clientID, rec); err != nil {
		return fmt.Errorf("failed to record upload: %w", err)
	}
	return nil
}

// newStorageKey produces a dash-formatted uniqueness token for a stored
// blob. It is derived from the current time plus a random value, not from
// the content, so it performs no deduplication.
func newStorageKey() string {
	sum := md5.Sum([]byte(time.Now().String() + uuid.NewString()))
	h := hex.EncodeToString(sum[:])
	return h[0:5] + "-" + h[5:9] + "-" + h[9:14]
}

// fileExtension returns the suffix after the last dot of name, or ".unknown"
// when there is no usable extension (no dot, or the "extension" would be the
// whole name).
func fileExtension(name string) string {
	i := strings.LastIndex(name, ".")
	if i <= 0 {
		return ".unknown"
	}
	return name[i:]
}
