package scheduler

import (
	"context"
	"encoding/json"
	"time"

	"schedbot/internal/eventbus"
	logx "schedbot/pkg/logx"
)

// requestPersistLocked queues a snapshot write. The channel has capacity
// one so bursts of mutations coalesce into a single write; the caller
// never waits on the disk.
func (s *Service) requestPersistLocked() {
	select {
	case s.persistCh <- struct{}{}:
	default:
	}
}

func (s *Service) persistLoop(ctx context.Context) {
	defer close(s.stopDone)
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.persistCh:
			// Debounce so a burst of mutations lands in one write.
			t := time.NewTimer(s.cfg.PersistDebounce)
			select {
			case <-ctx.Done():
				t.Stop()
				return
			case <-t.C:
			}
			s.persistNow(ctx)
		}
	}
}

// persistNow serializes the schedule under the lock and writes it out.
// A write failure is logged and published, never surfaced to the mutation
// that triggered it; memory stays authoritative until the next success.
func (s *Service) persistNow(ctx context.Context) {
	if s.store == nil {
		return
	}

	s.mu.Lock()
	snap := make(map[string]json.RawMessage, len(s.events))
	for id, ev := range s.events {
		b, err := ev.encode()
		if err != nil {
			s.log.Error("event not serializable; left out of snapshot", logx.String("id", id), logx.Err(err))
			continue
		}
		snap[id] = b
	}
	s.mu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}
	wctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := s.store.SaveSchedule(wctx, snap); err != nil {
		s.persistErrors.Add(1)
		s.log.Error("schedule snapshot write failed", logx.Err(err), logx.Int("events", len(snap)))
		if s.bus != nil {
			s.bus.Publish(eventbus.Event{Type: eventbus.TypeSnapshotError, Data: map[string]any{"err": err.Error()}})
		}
		return
	}
	s.log.Debug("schedule snapshot written", logx.Int("events", len(snap)))
}
