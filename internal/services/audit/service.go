// Package audit is the append-only event sink. Emission is asynchronous and
// never fails the originating request; a full buffer drops the entry and
// counts it.
package audit

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/darkauth/darkauth/internal/db/models"
	"github.com/darkauth/darkauth/internal/repository"
)

// Event types emitted across the server.
const (
	EventUserRegister    = "user.register"
	EventUserLogin       = "user.login"
	EventUserLoginFailed = "user.login_failed"
	EventUserLogout      = "user.logout"
	EventUserDeleted     = "user.deleted"
	EventAdminLogin      = "admin.login"
	EventAdminAction     = "admin.action"
	EventPasswordReset   = "user.password_reset"
	EventEmailChanged    = "user.email_changed"
	EventOtpVerified     = "otp.verified"
	EventOtpFailed       = "otp.failed"
	EventOtpLocked       = "otp.locked"
	EventTokenIssued     = "token.issued"
	EventTokenRefreshed  = "token.refreshed"
	EventRefreshReuse    = "token.refresh_reuse"
	EventCodeIssued      = "code.issued"
	EventCodeConsumed    = "code.consumed"
	EventKeyRotated      = "jwks.rotated"
	EventInstall         = "system.install"
	EventSettingsChanged = "settings.changed"
)

const (
	bufferSize   = 1024
	writeTimeout = 5 * time.Second
)

// Service buffers audit entries and writes them from a single background
// worker.
type Service struct {
	repo    repository.AuditRepository
	entries chan *models.AuditLog
	dropped atomic.Int64
	done    chan struct{}
	once    sync.Once
}

// NewService starts the sink worker.
func NewService(repo repository.AuditRepository) *Service {
	s := &Service{
		repo:    repo,
		entries: make(chan *models.AuditLog, bufferSize),
		done:    make(chan struct{}),
	}
	go s.run()
	return s
}

// Emit queues an entry. It never blocks: when the buffer is full the entry is
// dropped and counted.
func (s *Service) Emit(entry *models.AuditLog) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	select {
	case s.entries <- entry:
	default:
		s.dropped.Add(1)
	}
}

// Dropped reports how many entries were lost to a full buffer.
func (s *Service) Dropped() int64 {
	return s.dropped.Load()
}

// Close drains the buffer and stops the worker.
func (s *Service) Close() {
	s.once.Do(func() {
		close(s.entries)
		<-s.done
	})
}

func (s *Service) run() {
	defer close(s.done)
	for entry := range s.entries {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		if err := s.repo.Insert(ctx, entry); err != nil {
			log.Printf("audit: failed to write %s entry: %v", entry.EventType, err)
		}
		cancel()
	}
}

// List returns a page of entries, newest first, optionally filtered by a
// boolean expression over the entry fields (see Filter).
func (s *Service) List(ctx context.Context, page, limit int, filterExpr string) ([]models.AuditLog, int, error) {
	entries, total, err := s.repo.List(ctx, page, limit)
	if err != nil {
		return nil, 0, err
	}
	if filterExpr == "" {
		return entries, total, nil
	}

	filter, err := NewFilter(filterExpr)
	if err != nil {
		return nil, 0, err
	}
	matched := entries[:0]
	for i := range entries {
		if filter.Match(&entries[i]) {
			matched = append(matched, entries[i])
		}
	}
	// Total reflects the unfiltered count; filtered pagination is
	// best-effort within the fetched page.
	return matched, total, nil
}
