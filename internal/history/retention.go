package history

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/aqa-systems/brain/pkg/logger"
)

// RetentionScheduler periodically prunes records older than a configured
// window from a Backend, mirroring the plan cache's sweep scheduler.
type RetentionScheduler struct {
	cron *cron.Cron
	log  *logger.Logger
}

// NewRetentionScheduler builds a scheduler that deletes every record older
// than maxAge on the given cron spec. log may be nil.
func NewRetentionScheduler(backend Backend, spec string, maxAge time.Duration, log *logger.Logger) (*RetentionScheduler, error) {
	s := cron.New()
	_, err := s.AddFunc(spec, func() {
		n, err := pruneOlderThan(context.Background(), backend, maxAge)
		if log == nil {
			return
		}
		if err != nil {
			log.WithField("error", err).Error("history: retention sweep failed")
			return
		}
		if n > 0 {
			log.WithField("pruned", n).Info("history: retention sweep removed expired records")
		}
	})
	if err != nil {
		return nil, err
	}
	return &RetentionScheduler{cron: s, log: log}, nil
}

// Start begins running the retention job in the background.
func (s *RetentionScheduler) Start() { s.cron.Start() }

// Stop halts the retention job, waiting for any in-flight run to finish.
func (s *RetentionScheduler) Stop() { <-s.cron.Stop().Done() }

// pruneOlderThan deletes every record whose timestamp is before the cutoff
// and returns how many were removed.
func pruneOlderThan(ctx context.Context, backend Backend, maxAge time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-maxAge)
	removed := 0
	const page = 500

	for {
		records, err := backend.List(ctx, ListFilter{Limit: page, EndDate: &cutoff})
		if err != nil {
			return removed, err
		}
		if len(records) == 0 {
			return removed, nil
		}
		for _, r := range records {
			if ok, err := backend.Delete(ctx, r.ID); err != nil {
				return removed, err
			} else if ok {
				removed++
			}
		}
		if len(records) < page {
			return removed, nil
		}
	}
}
