// Package janitor runs the background sweep that reclaims idle Views and
// Documents, mirroring the differential-sync server's cleanup loop.
package janitor

import (
	"time"

	"go.uber.org/zap"

	"syncserver/internal/syncstore"
)

// Sweeper periodically evicts Views that have gone quiet and Documents
// nothing references anymore.
type Sweeper struct {
	docs   *syncstore.DocumentRegistry
	views  *syncstore.ViewRegistry
	logger *zap.Logger

	interval    time.Duration
	viewIdle    time.Duration
	docIdle     time.Duration
	stopRefresh chan struct{}
}

// New creates a Sweeper. interval is how often the sweep runs; viewIdle and
// docIdle are the per-registry idle thresholds passed to Sweep.
func New(docs *syncstore.DocumentRegistry, views *syncstore.ViewRegistry, logger *zap.Logger, interval, viewIdle, docIdle time.Duration) *Sweeper {
	return &Sweeper{
		docs:        docs,
		views:       views,
		logger:      logger,
		interval:    interval,
		viewIdle:    viewIdle,
		docIdle:     docIdle,
		stopRefresh: make(chan struct{}),
	}
}

// Run blocks, sweeping every interval until Stop is called. Intended to be
// started in its own goroutine.
func (s *Sweeper) Run() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopRefresh:
			return
		case <-ticker.C:
			s.sweepOnce()
		}
	}
}

// Stop halts a running Sweeper. Safe to call at most once.
func (s *Sweeper) Stop() {
	s.stopRefresh <- struct{}{}
}

// sweepOnce runs a single pass: Views before Documents, so that a View
// freshly detached for idleness makes its Document immediately eligible in
// the same pass rather than waiting for the next tick.
func (s *Sweeper) sweepOnce() {
	removedViews := s.views.Sweep(s.viewIdle)
	for _, v := range removedViews {
		s.logger.Info("swept idle view", zap.String("user", v.User), zap.String("filename", v.Filename))
	}

	removedDocs := s.docs.Sweep(s.docIdle)
	for _, name := range removedDocs {
		s.logger.Info("swept idle document", zap.String("name", name))
	}
}
