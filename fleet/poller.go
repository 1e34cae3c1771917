package fleet

import (
	"context"
	"time"
)

// poller is the cancellation handle for one client's recurring location
// check. Identity (pointer equality against the registry) is what makes a
// tick "current": a tick from a replaced or cancelled poller must not act.
type poller struct {
	stop chan struct{}
}

// startPoller arms the recurring location-freshness check for clientID,
// replacing (and cancelling) any previous poller. The client must still hold
// a live transport: a start racing a delete or disconnect that already
// removed the handle is a no-op, so a removed client cannot end up with a
// ticker and nothing else.
func (m *Manager) startPoller(clientID string) {
	p := &poller{stop: make(chan struct{})}

	m.mu.Lock()
	if _, connected := m.conns[clientID]; !connected {
		m.mu.Unlock()
		return
	}
	if old, ok := m.pollers[clientID]; ok {
		close(old.stop)
	}
	m.pollers[clientID] = p
	m.mu.Unlock()

	go m.runPoller(clientID, p)
}

// stopPoller cancels the current poller for clientID. Safe to call when none
// is running; a second stop is a no-op.
func (m *Manager) stopPoller(clientID string) {
	m.mu.Lock()
	p, ok := m.pollers[clientID]
	if ok {
		delete(m.pollers, clientID)
	}
	m.mu.Unlock()

	if ok {
		close(p.stop)
	}
}

func (m *Manager) runPoller(clientID string, p *poller) {
	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			m.pollTick(clientID, p)
		}
	}
}

// pollTick issues a locate command when the freshest stored sample is older
// than the poll interval. The tick first re-checks that it still belongs to
// the registered poller so a cancellation racing a fire has no effect.
func (m *Manager) pollTick(clientID string, p *poller) {
	m.mu.Lock()
	current := m.pollers[clientID] == p
	m.mu.Unlock()
	if !current {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.PollInterval)
	defer cancel()

	latest, err := m.store.LatestLocation(ctx, clientID)
	if err != nil {
		m.logError("Failed to read latest location", "client_id", clientID, "error", err)
		return
	}
	if latest == nil {
		m.logDebug("No location samples yet, poll skipped", "client_id", clientID)
		return
	}

	now := time.Now()
	if !latest.Date.Before(now.Add(-m.cfg.PollInterval)) {
		m.logDebug("Location still fresh, poll skipped", "client_id", clientID, "sample_age", now.Sub(latest.Date).String())
		return
	}

	payload := map[string]interface{}{
		"until": now.Add(m.cfg.PollInterval).UnixMilli(),
	}
	if _, err := m.SendCommand(ctx, clientID, CommandLocate, payload); err != nil {
		m.logError("Location poll failed", "client_id", clientID, "error", err)
	}
}
