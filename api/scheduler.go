/*
scheduler.go - Periodic drift audit

PURPOSE:
  Runs the ledger Auditor on a fixed interval so stored totals and
  inventory accumulators that disagree with their children are noticed
  (and optionally repaired) without anyone calling the admin endpoint.

DESIGN:
  - One background goroutine driven by a ticker
  - Runs once immediately on Start
  - Keeps the most recent report for GET /api/admin/audit
  - Stop cancels an in-flight pass and waits for the goroutine

CONFIGURATION:
  - Interval: How often to audit (AUDIT_INTERVAL, 0 disables)
  - Repair: Whether drifted rows are rewritten (AUDIT_REPAIR)

USAGE:
  scheduler := NewAuditScheduler(l.Audit, time.Hour, false, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - ledger/audit.go: Auditor
  - handlers.go: RunAudit / LastAudit endpoints
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/crudexec/construction-sub006/ledger"
)

// AuditScheduler runs drift audits in the background.
type AuditScheduler struct {
	Auditor  *ledger.Auditor
	Interval time.Duration
	Repair   bool

	log    zerolog.Logger
	ticker *time.Ticker
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex

	lastMu sync.RWMutex
	last   *ledger.AuditReport
}

// NewAuditScheduler creates a scheduler. It does nothing until Start.
func NewAuditScheduler(auditor *ledger.Auditor, interval time.Duration, repair bool, log zerolog.Logger) *AuditScheduler {
	return &AuditScheduler{
		Auditor:  auditor,
		Interval: interval,
		Repair:   repair,
		log:      log.With().Str("component", "audit_scheduler").Logger(),
	}
}

// Start begins the periodic audit. A non-positive interval leaves the
// scheduler idle; RunNow still works.
func (s *AuditScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Interval <= 0 {
		s.log.Info().Msg("periodic audit disabled")
		return
	}
	if s.ticker != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.ticker = time.NewTicker(s.Interval)
	s.wg.Add(1)
	go s.run(ctx)

	s.log.Info().Dur("interval", s.Interval).Bool("repair", s.Repair).Msg("audit scheduler started")
}

// Stop halts the scheduler and waits for a running pass to return.
func (s *AuditScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	s.cancel()
	s.wg.Wait()
	s.ticker = nil
	s.log.Info().Msg("audit scheduler stopped")
}

func (s *AuditScheduler) run(ctx context.Context) {
	defer s.wg.Done()

	s.pass(ctx)
	for {
		select {
		case <-s.ticker.C:
			s.pass(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *AuditScheduler) pass(ctx context.Context) {
	if _, err := s.RunNow(ctx, s.Repair); err != nil && ctx.Err() == nil {
		s.log.Error().Err(err).Msg("drift audit failed")
	}
}

// RunNow performs one audit pass and records its report.
func (s *AuditScheduler) RunNow(ctx context.Context, repair bool) (*ledger.AuditReport, error) {
	rep, err := s.Auditor.Run(ctx, repair)
	if err != nil {
		return nil, err
	}
	s.lastMu.Lock()
	s.last = rep
	s.lastMu.Unlock()
	return rep, nil
}

// LastReport returns the most recent report, or nil before the first pass.
func (s *AuditScheduler) LastReport() *ledger.AuditReport {
	s.lastMu.RLock()
	defer s.lastMu.RUnlock()
	return s.last
}
