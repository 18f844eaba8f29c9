package memory

import (
	"context"
	"errors"
	"time"

	"github.com/mobilenet-retail/backoffice/internal/shared"
)

func idemKey(key, module string) string {
	return module + "\x00" + key
}

// Claim implements sales.IdempotencyGuard.
func (s *Store) Claim(_ context.Context, key, module string) error {
	if key == "" || module == "" {
		return shared.Validationf("idempotency key and module required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	k := idemKey(key, module)
	if _, ok := s.idem[k]; ok {
		return shared.ErrDuplicateRequest
	}
	s.idem[k] = s.now().UTC()
	return nil
}

// Release implements sales.IdempotencyGuard.
func (s *Store) Release(_ context.Context, key, module string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.idem, idemKey(key, module))
	return nil
}

// Cleanup drops keys older than olderThan.
func (s *Store) Cleanup(_ context.Context, olderThan time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().UTC().Add(-olderThan)
	for k, at := range s.idem {
		if at.Before(cutoff) {
			delete(s.idem, k)
		}
	}
	return nil
}

// Record appends an audit entry.
func (s *Store) Record(_ context.Context, entry shared.AuditEntry) error {
	if entry.Action == "" || entry.Entity == "" || entry.EntityID == "" {
		return errors.New("audit entry requires action/entity/entity_id")
	}
	if entry.At.IsZero() {
		entry.At = s.now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = append(s.audit, entry)
	return nil
}

// AuditEntries returns a copy of the journal.
func (s *Store) AuditEntries() []shared.AuditEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]shared.AuditEntry, len(s.audit))
	copy(out, s.audit)
	return out
}
