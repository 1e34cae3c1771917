package fleet

func (m *Manager) logInfo(msg string, kv ...interface{}) {
	if m.log != nil {
		m.log.Info(msg, kv...)
	}
}

func (m *Manager) logWarn(msg string, kv ...interface{}) {
	if m.log != nil {
		m.log.Warn(msg, kv...)
	}
}

func (m *Manager) logError(msg string, kv ...interface{}) {
	if m.log != nil {
		m.log.Error(msg, kv...)
	}
}

func (m *Manager) logDebug(msg string, kv ...interface{}) {
	if m.log != nil {
		m.log.Debug(msg, kv...)
	}
}
