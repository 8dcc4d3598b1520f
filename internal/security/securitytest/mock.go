// Package securitytest provides test doubles for the security package.
package securitytest

import (
	"sync"

	"github.com/pagesmith/pagesmith/internal/security"
)

// NewTestRedactor creates a Redactor with no patterns, so fixtures that
// happen to look like tokens survive untouched.
func NewTestRedactor() *security.Redactor {
	return &security.Redactor{}
}

// NewTestAuditLogger returns an AuditLogger that records events in memory
// and a function returning a snapshot of them.
func NewTestAuditLogger() (*security.AuditLogger, func() []security.AuditEvent) {
	var (
		mu     sync.Mutex
		events []security.AuditEvent
	)
	logger := security.NewAuditLogger(security.AuditLoggerConfig{
		OnEvent: func(e security.AuditEvent) {
			mu.Lock()
			events = append(events, e)
			mu.Unlock()
		},
	})
	return logger, func() []security.AuditEvent {
		mu.Lock()
		defer mu.Unlock()
		return append([]security.AuditEvent(nil), events...)
	}
}
