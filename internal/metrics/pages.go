package metrics

import "time"

// ObserveOp records one page engine operation. result is a fixed vocabulary
// (ok, not_found, invalid_input, unauthorized, io, error).
func (m *ServerMetrics) ObserveOp(op, result string, d time.Duration) {
	m.opsTotal.WithLabelValues(op, result).Inc()
	m.opDur.WithLabelValues(op).Observe(d.Seconds())
}

func (m *ServerMetrics) VersionCreated() {
	m.versionsCreated.Inc()
}

func (m *ServerMetrics) TrashArchived(ok bool) {
	if ok {
		m.trashArchiveTotal.WithLabelValues("ok").Inc()
	} else {
		m.trashArchiveTotal.WithLabelValues("error").Inc()
	}
}

// IncAuthDenied counts refused credentials by reason (missing_credential,
// mismatch, no_page_secret, scope).
func (m *ServerMetrics) IncAuthDenied(reason string) {
	m.authDeniedTotal.WithLabelValues(reason).Inc()
}

func (m *ServerMetrics) IncAuthThrottled() {
	m.authThrottledTotal.Inc()
}

func (m *ServerMetrics) IncAdminSecretReload(result string) {
	m.adminReloadTotal.WithLabelValues(result).Inc()
}
