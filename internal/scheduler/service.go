package scheduler

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"schedbot/internal/eventbus"
	"schedbot/internal/storage"
	logx "schedbot/pkg/logx"
)

// Config holds the runtime knobs of the scheduler service.
type Config struct {
	// Housekeeping is a cron spec for the exclusion-date pruning job.
	// Empty means "@daily", "off" disables it.
	Housekeeping string

	// PersistDebounce coalesces bursts of mutations into one snapshot write.
	PersistDebounce time.Duration
}

// Delivery is the default-path payload handed to the sink when no override
// callback claims the command.
type Delivery struct {
	ChatID  string
	IsGroup bool
	UserID  string
	Command string
	Answers map[string]any
}

// Sink routes a delivery into the host chat system. Implementations must
// not block; the notifier's enqueue path satisfies this.
type Sink interface {
	Deliver(d Delivery)
}

// OverrideFunc intercepts dispatch for one command name instead of the
// default delivery path.
type OverrideFunc func(ctx context.Context, chatID string, isGroup bool, userID string, answers map[string]any)

// Service owns the schedule map, the timer handles and the override
// registry. One coarse mutex guards all three so a fire callback and a
// delete request can never race on the same event id.
type Service struct {
	cfg   Config
	log   logx.Logger
	store storage.Store
	bus   eventbus.Bus
	sink  Sink

	// clock is swappable for tests.
	clock func() time.Time

	mu        sync.Mutex
	events    map[string]*Event
	timers    map[string]*time.Timer
	armGen    map[string]uint64
	overrides map[string]OverrideFunc

	persistCh chan struct{}

	runMu    sync.Mutex
	running  bool
	runCtx   context.Context
	cancel   context.CancelFunc
	stopDone chan struct{}
	cron     *cron.Cron

	fired         atomic.Uint64
	retired       atomic.Uint64
	persistErrors atomic.Uint64
}

func New(cfg Config, store storage.Store, sink Sink, bus eventbus.Bus, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.PersistDebounce <= 0 {
		cfg.PersistDebounce = 100 * time.Millisecond
	}
	return &Service{
		cfg:       cfg,
		log:       log,
		store:     store,
		bus:       bus,
		sink:      sink,
		clock:     time.Now,
		events:    map[string]*Event{},
		timers:    map[string]*time.Timer{},
		armGen:    map[string]uint64{},
		overrides: map[string]OverrideFunc{},
		persistCh: make(chan struct{}, 1),
	}
}

// Start loads the persisted schedule, re-arms every event (overdue one-shot
// events fire immediately) and starts the persist and housekeeping loops.
// It is idempotent.
func (s *Service) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.runMu.Lock()
	if s.running {
		s.runMu.Unlock()
		return nil
	}
	s.running = true
	s.runCtx, s.cancel = context.WithCancel(context.Background())
	s.stopDone = make(chan struct{})
	s.runMu.Unlock()

	s.loadFromDisk(ctx)

	go s.persistLoop(s.runCtx)
	s.startHousekeeping()

	s.log.Info("scheduler started", logx.Int("events", s.eventCount()))
	return nil
}

// Stop disarms all timers, writes a final snapshot and waits for the
// persist loop to drain. It is idempotent.
func (s *Service) Stop(ctx context.Context) error {
	s.runMu.Lock()
	if !s.running {
		s.runMu.Unlock()
		return nil
	}
	s.running = false
	cancel := s.cancel
	done := s.stopDone
	cr := s.cron
	s.cron = nil
	s.runMu.Unlock()

	if cr != nil {
		crCtx := cr.Stop()
		select {
		case <-crCtx.Done():
		case <-ctx.Done():
		}
	}

	s.mu.Lock()
	for id := range s.timers {
		s.disarmLocked(id)
	}
	s.mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out waiting for persist loop")
		return ctx.Err()
	}

	// Final snapshot so nothing coalesced at shutdown is lost.
	s.persistNow(context.Background())
	s.log.Info("scheduler stopped")
	return nil
}

func (s *Service) eventCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

// loadFromDisk replays the persisted snapshot. A missing or corrupt file
// starts an empty schedule; individual bad records are skipped, never fatal.
func (s *Service) loadFromDisk(ctx context.Context) {
	if s.store == nil {
		return
	}
	raw, err := s.store.LoadSchedule(ctx)
	if err != nil {
		s.log.Warn("schedule snapshot unreadable; starting empty", logx.Err(err))
	}

	now := s.clock()
	var fireNow []string

	s.mu.Lock()
	for id, doc := range raw {
		ev, err := decodeEvent(doc)
		if err != nil {
			s.log.Warn("skipping undecodable event", logx.String("id", id), logx.Err(err))
			continue
		}
		if ev.ID == "" {
			ev.ID = id
		}
		if err := ev.validate(); err != nil {
			s.log.Warn("skipping invalid persisted event", logx.String("id", id), logx.Err(err))
			continue
		}
		s.events[ev.ID] = ev
		due, err := s.armLocked(ev, now)
		if err != nil {
			// Left un-armed but kept in the store; a later config or
			// delete can still act on it.
			s.log.Warn("event not armed at load", logx.String("id", ev.ID), logx.Err(err))
			continue
		}
		if due {
			fireNow = append(fireNow, ev.ID)
		}
	}
	s.mu.Unlock()

	// Overdue one-shot events execute at load rather than silently dropping.
	for _, id := range fireNow {
		s.log.Info("firing overdue event at load", logx.String("id", id))
		s.executeDue(id)
	}
}

// armLocked computes the due time and creates the timer. It returns
// fireNow=true (and no timer) when the due time has already passed; the
// caller must invoke executeDue after releasing the lock.
func (s *Service) armLocked(ev *Event, now time.Time) (fireNow bool, err error) {
	if _, exists := s.timers[ev.ID]; exists {
		return false, ErrAlreadyArmed
	}

	var due time.Time
	if ev.Repeating() {
		due, err = nextDueTime(ev, now)
		if err != nil {
			return false, err
		}
	} else {
		due, err = time.Parse(time.RFC3339, ev.Date)
		if err != nil {
			return false, ErrInvalidSchedule
		}
	}

	delay := due.Sub(now)
	if delay <= 0 {
		return true, nil
	}

	gen := s.armGen[ev.ID] + 1
	s.armGen[ev.ID] = gen
	id := ev.ID
	s.timers[id] = time.AfterFunc(delay, func() { s.onTimerFire(id, gen) })

	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.TypeEventArmed, Data: map[string]any{"id": id, "due": due}})
	}
	s.log.Debug("event armed", logx.String("id", id), logx.Time("due", due), logx.Duration("in", delay))
	return false, nil
}

// disarmLocked cancels the pending timer and invalidates any in-flight fire
// callback for the id.
func (s *Service) disarmLocked(id string) {
	if t, ok := s.timers[id]; ok {
		t.Stop()
		delete(s.timers, id)
	}
	s.armGen[id]++
}

func (s *Service) onTimerFire(id string, gen uint64) {
	s.mu.Lock()
	if s.armGen[id] != gen {
		// Disarmed or re-armed after this callback was scheduled.
		s.mu.Unlock()
		return
	}
	// The handle removes itself before dispatch so re-arming inside the
	// fire path is legal.
	delete(s.timers, id)
	s.mu.Unlock()

	s.executeDue(id)
}

// executeDue dispatches a due event, then re-arms repeating events and
// retires one-shot ones.
func (s *Service) executeDue(id string) {
	s.mu.Lock()
	ev, ok := s.events[id]
	if !ok {
		s.mu.Unlock()
		// Stale timer; the event was removed between scheduling and firing.
		s.log.Warn("due event not found", logx.String("id", id))
		return
	}
	ev = ev.Clone()
	s.mu.Unlock()

	s.fired.Add(1)
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.TypeEventFired, Data: map[string]any{"id": id, "command": ev.Command}})
	}
	s.dispatch(ev)

	if ev.Repeating() {
		now := s.clock()
		s.mu.Lock()
		if cur, still := s.events[id]; still {
			if _, err := s.armLocked(cur, now); err != nil {
				s.log.Error("re-arm failed; event stays dormant", logx.String("id", id), logx.Err(err))
			}
		}
		s.mu.Unlock()
		return
	}

	// One-shot: retire.
	s.mu.Lock()
	if _, still := s.events[id]; still {
		s.disarmLocked(id)
		delete(s.events, id)
		s.requestPersistLocked()
	}
	s.mu.Unlock()
	s.retired.Add(1)
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.TypeEventRetired, Data: map[string]any{"id": id}})
	}
}

// dispatch invokes the override callback for the command if one is
// registered, otherwise hands the delivery to the sink. A panicking
// override is contained so one bad handler cannot take the process down.
func (s *Service) dispatch(ev *Event) {
	userID := ev.ActingUser()

	s.mu.Lock()
	fn := s.overrides[strings.ToUpper(ev.Command)]
	s.mu.Unlock()

	if fn != nil {
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("override callback panicked", logx.String("command", ev.Command), logx.Any("panic", r))
			}
		}()
		ctx := s.runContext()
		fn(ctx, ev.ChatID, ev.IsGroup, userID, ev.Answers)
		return
	}

	if s.sink == nil {
		s.log.Warn("no delivery sink; event dropped", logx.String("id", ev.ID), logx.String("command", ev.Command))
		return
	}
	s.sink.Deliver(Delivery{
		ChatID:  ev.ChatID,
		IsGroup: ev.IsGroup,
		UserID:  userID,
		Command: ev.Command,
		Answers: ev.Answers,
	})
}

func (s *Service) runContext() context.Context {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.runCtx != nil {
		return s.runCtx
	}
	return context.Background()
}
