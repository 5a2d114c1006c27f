package scheduler

import (
	"time"
)

// Snapshot is a point-in-time diagnostic view of the scheduler, exposed
// through the stats API.
type Snapshot struct {
	Events    int `json:"events"`
	Armed     int `json:"armed"`
	Repeating int `json:"repeating"`
	OneShot   int `json:"one_shot"`

	// NextDue is the earliest pending timer, if any.
	NextDue *time.Time `json:"next_due,omitempty"`

	Fired         uint64 `json:"fired"`
	Retired       uint64 `json:"retired"`
	PersistErrors uint64 `json:"persist_errors"`
	Overrides     int    `json:"overrides"`
}

func (s *Service) Snapshot() Snapshot {
	now := s.clock()

	s.mu.Lock()
	snap := Snapshot{
		Events:    len(s.events),
		Armed:     len(s.timers),
		Overrides: len(s.overrides),
	}
	var nextDue *time.Time
	for id, ev := range s.events {
		if ev.Repeating() {
			snap.Repeating++
		} else {
			snap.OneShot++
		}
		if _, armed := s.timers[id]; !armed {
			continue
		}
		due, err := dueTimeOf(ev, now)
		if err != nil {
			continue
		}
		if nextDue == nil || due.Before(*nextDue) {
			d := due
			nextDue = &d
		}
	}
	s.mu.Unlock()

	snap.NextDue = nextDue
	snap.Fired = s.fired.Load()
	snap.Retired = s.retired.Load()
	snap.PersistErrors = s.persistErrors.Load()
	return snap
}

func dueTimeOf(ev *Event, now time.Time) (time.Time, error) {
	if ev.Repeating() {
		return nextDueTime(ev, now)
	}
	return time.Parse(time.RFC3339, ev.Date)
}
