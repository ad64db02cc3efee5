// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package governance

import (
	"sync"
)

// LogSink writes audit entries to the governance logger. It is the
// default sink for processes that do not ship audit records anywhere.
type LogSink struct{}

// Append is part of the AuditSink interface.
func (LogSink) Append(e AuditEntry) error {
	logger.Infof("audit: module=%s capability=%s action=%s allowed=%t",
		e.ModuleID, e.Capability, e.Operation, e.Allowed)
	return nil
}

// RecordingSink retains audit entries in memory, for tests and for
// dashboards that poll recent decisions.
type RecordingSink struct {
	mu      sync.Mutex
	entries []AuditEntry
}

// Append is part of the AuditSink interface.
func (s *RecordingSink) Append(e AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return nil
}

// Entries returns a snapshot of the recorded entries.
func (s *RecordingSink) Entries() []AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]AuditEntry, len(s.entries))
	copy(out, s.entries)
	return out
}
