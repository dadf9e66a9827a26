// Package sweeper deletes expired ephemeral state on a fixed interval: auth
// codes, pending auths, sessions, refresh tokens, and in-memory PAKE
// sessions. Sweeping is idempotent and safe alongside live redemption; auth
// codes get a grace window so a consume racing the sweep never loses its row.
package sweeper

import (
	"context"
	"log"
	"time"

	"github.com/darkauth/darkauth/internal/pake"
	"github.com/darkauth/darkauth/internal/repository"
)

const (
	interval      = 60 * time.Second
	authCodeGrace = 5 * time.Second
)

// Sweeper runs the periodic cleanup loop.
type Sweeper struct {
	codes    repository.AuthCodeRepository
	pending  repository.PendingAuthRepository
	sessions repository.SessionRepository
	pake     *pake.Service
}

// New creates a sweeper over the expiring stores.
func New(codes repository.AuthCodeRepository, pending repository.PendingAuthRepository, sessions repository.SessionRepository, pakeSvc *pake.Service) *Sweeper {
	return &Sweeper{codes: codes, pending: pending, sessions: sessions, pake: pakeSvc}
}

// Run blocks until ctx is done, sweeping every minute.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	now := time.Now()
	total := 0

	if n, err := s.codes.DeleteExpired(ctx, now, authCodeGrace); err != nil {
		log.Printf("sweeper: auth codes: %v", err)
	} else {
		total += n
	}
	if n, err := s.pending.DeleteExpired(ctx, now); err != nil {
		log.Printf("sweeper: pending auths: %v", err)
	} else {
		total += n
	}
	if n, err := s.sessions.DeleteExpired(ctx, now); err != nil {
		log.Printf("sweeper: sessions: %v", err)
	} else {
		total += n
	}
	if n, err := s.sessions.DeleteExpiredRefreshTokens(ctx, now); err != nil {
		log.Printf("sweeper: refresh tokens: %v", err)
	} else {
		total += n
	}
	total += s.pake.Sweep()

	if total > 0 {
		log.Printf("sweeper: removed %d expired records", total)
	}
}
