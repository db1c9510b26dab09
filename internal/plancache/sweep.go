package plancache

import (
	"context"

	"github.com/robfig/cron/v3"

	"github.com/aqa-systems/brain/pkg/logger"
)

// Scheduler periodically sweeps expired cache entries so TTL enforcement
// doesn't depend solely on passive expiry-on-read.
type Scheduler struct {
	cron *cron.Cron
	log  *logger.Logger
}

// NewScheduler builds a Scheduler that calls cache.SweepExpired(ctx) on the
// given cron spec (standard 5-field format, e.g. "0 * * * *" for hourly).
// log may be nil.
func NewScheduler(c *Cache, spec string, log *logger.Logger) (*Scheduler, error) {
	s := cron.New()
	_, err := s.AddFunc(spec, func() {
		n := c.SweepExpired(context.Background())
		if log != nil && n > 0 {
			log.WithField("expired", n).Info("plancache: swept expired entries")
		}
	})
	if err != nil {
		return nil, err
	}
	return &Scheduler{cron: s, log: log}, nil
}

// Start begins running the sweep job in the background.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts the sweep job, waiting for any in-flight run to finish.
func (s *Scheduler) Stop() { <-s.cron.Stop().Done() }
