package fleet

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"fleetmaster/storage"
)

// Command types accepted by SendCommand. CommandLocate doubles as the
// internal location-poll issued by the poll scheduler.
const (
	CommandLock   = "lock"
	CommandUnlock = "unlock"
	CommandErase  = "erase"
	CommandLocate = "locate"
)

var allowedCommands = map[string]struct{}{
	CommandLock:   {},
	CommandUnlock: {},
	CommandErase:  {},
	CommandLocate: {},
}

// Status strings returned by SendCommand on success.
const (
	StatusRequested = "Requested"
	StatusQueued    = "Command queued (device is offline)"
)

// SendCommand validates and routes a command to a client: immediate delivery
// over the live transport when connected, otherwise a type-deduplicated queue
// entry. The returned status tells the caller which path was taken. A command
// delivered immediately is never persisted.
func (m *Manager) SendCommand(ctx context.Context, clientID, commandType string, payload map[string]interface{}) (string, error) {
	if _, ok := allowedCommands[commandType]; !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownCommand, commandType)
	}

	client, err := m.store.GetClient(ctx, clientID)
	if err != nil {
		return "", fmt.Errorf("failed to look up client: %w", err)
	}
	if client == nil {
		return "", ErrUnknownClient
	}

	if t, ok := m.transportFor(clientID); ok {
		full := make(map[string]interface{}, len(payload)+1)
		for k, v := range payload {
			full[k] = v
		}
		full["type"] = commandType
		if err := t.SendCommand(full); err != nil {
			return "", fmt.Errorf("failed to send command: %w", err)
		}
		m.logInfo("Requested command", "client_id", clientID, "command", commandType)
		return StatusRequested, nil
	}

	return m.enqueue(ctx, clientID, commandType, payload)
}

// enqueue appends a queue entry unless one of the same type is already
// pending. The read-check-append runs under the per-client lock so two
// concurrent sends of the same type cannot both pass the duplicate check.
func (m *Manager) enqueue(ctx context.Context, clientID, commandType string, payload map[string]interface{}) (string, error) {
	lock := m.clientLock(clientID)
	lock.Lock()
	defer lock.Unlock()

	pending, err := m.store.ListQueuedCommands(ctx, clientID)
	if err != nil {
		return "", fmt.Errorf("failed to read command queue: %w", err)
	}
	for _, cmd := range pending {
		if cmd.Type == commandType {
			return "", ErrDuplicateQueued
		}
	}

	err = m.store.AppendQueuedCommand(ctx, &storage.QueuedCommand{
		ID:       uuid.NewString(),
		ClientID: clientID,
		Type:     commandType,
		Payload:  payload,
		QueuedAt: time.Now(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to queue command: %w", err)
	}

	m.logInfo("Queued command", "client_id", clientID, "command", commandType)
	return StatusQueued, nil
}

// replayQueue attempts every entry queued for clientID exactly once, in
// insertion order. Entries that deliver are removed; entries that fail stay
// put until the next reconnect.
func (m *Manager) replayQueue(ctx context.Context, clientID string) {
	pending, err := m.store.ListQueuedCommands(ctx, clientID)
	if err != nil {
		m.logError("Failed to read command queue for replay", "client_id", clientID, "error", err)
		return
	}
	if len(pending) == 0 {
		return
	}

	m.logInfo("Running queued commands", "client_id", clientID, "count", len(pending))
	for _, cmd := range pending {
		if _, err := m.SendCommand(ctx, clientID, cmd.Type, cmd.Payload); err != nil {
			m.logError("Queued command failed", "client_id", clientID, "command", cmd.Type, "error", err)
			continue
		}
		if err := m.store.RemoveQueuedCommand(ctx, clientID, cmd.ID); err != nil {
			m.logError("Failed to remove replayed command", "client_id", clientID, "command", cmd.Type, "error", err)
		}
	}
}
