package scheduler

import (
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	logx "schedbot/pkg/logx"
)

// startHousekeeping schedules the daily pruning of exclusion dates that are
// already in the past, so snapshots of long-lived repeating events don't
// grow stale exclusions forever.
func (s *Service) startHousekeeping() {
	spec := strings.TrimSpace(s.cfg.Housekeeping)
	if strings.EqualFold(spec, "off") {
		s.log.Debug("housekeeping disabled")
		return
	}
	if spec == "" {
		spec = "@daily"
	}

	c := cron.New(cron.WithLocation(time.UTC))
	if _, err := c.AddFunc(spec, s.pruneExcludeDates); err != nil {
		s.log.Warn("housekeeping spec rejected; job disabled", logx.String("spec", spec), logx.Err(err))
		return
	}
	c.Start()

	s.runMu.Lock()
	s.cron = c
	s.runMu.Unlock()
	s.log.Debug("housekeeping scheduled", logx.String("spec", spec))
}

func (s *Service) pruneExcludeDates() {
	today := s.clock().UTC().Format(dayFormat)

	changed := 0
	s.mu.Lock()
	for _, ev := range s.events {
		if !ev.Repeating() || len(ev.ExcludeDates) == 0 {
			continue
		}
		kept := ev.ExcludeDates[:0]
		for _, d := range ev.ExcludeDates {
			// Keep today's exclusion; it still matters until midnight.
			if d >= today {
				kept = append(kept, d)
			}
		}
		if len(kept) != len(ev.ExcludeDates) {
			ev.ExcludeDates = kept
			changed++
		}
	}
	if changed > 0 {
		s.requestPersistLocked()
	}
	s.mu.Unlock()

	if changed > 0 {
		s.log.Info("pruned stale exclusion dates", logx.Int("events", changed))
	}
}
