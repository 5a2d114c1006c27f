package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"schedbot/internal/storage"
	logx "schedbot/pkg/logx"
)

type memStore struct {
	mu    sync.Mutex
	saved map[string]json.RawMessage
	saves int
}

func (m *memStore) SaveSchedule(_ context.Context, events map[string]json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make(map[string]json.RawMessage, len(events))
	for k, v := range events {
		cp[k] = append(json.RawMessage(nil), v...)
	}
	m.saved = cp
	m.saves++
	return nil
}

func (m *memStore) LoadSchedule(context.Context) (map[string]json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make(map[string]json.RawMessage, len(m.saved))
	for k, v := range m.saved {
		cp[k] = append(json.RawMessage(nil), v...)
	}
	return cp, nil
}

func (m *memStore) AppendAudit(context.Context, storage.AuditEntry) error { return nil }
func (m *memStore) Close() error                                         { return nil }

func (m *memStore) saveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

type recordSink struct {
	mu    sync.Mutex
	got   []Delivery
	fired chan struct{}
}

func newRecordSink() *recordSink {
	return &recordSink{fired: make(chan struct{}, 16)}
}

func (r *recordSink) Deliver(d Delivery) {
	r.mu.Lock()
	r.got = append(r.got, d)
	r.mu.Unlock()
	r.fired <- struct{}{}
}

func (r *recordSink) deliveries() []Delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Delivery(nil), r.got...)
}

func newTestService(store storage.Store, sink Sink, at time.Time) *Service {
	s := New(Config{Housekeeping: "off", PersistDebounce: time.Millisecond}, store, sink, nil, logx.Nop())
	s.clock = func() time.Time { return at }
	return s
}

func repeatingEvent(id string) *Event {
	return &Event{
		ID:      id,
		ChatID:  "100",
		Command: "BACKUP",
		Times:   []string{"09:00:00"},
	}
}

func TestAddGeneratesID(t *testing.T) {
	t.Parallel()
	s := newTestService(&memStore{}, newRecordSink(), time.Date(2026, 1, 6, 8, 0, 0, 0, time.UTC))
	ev := repeatingEvent("")
	id, err := s.Add(ev)
	if err != nil {
		t.Fatalf("Add error: %v", err)
	}
	if id == "" {
		t.Fatal("Add returned empty id")
	}
	if ev.ID != "" {
		t.Fatal("Add mutated the caller's event")
	}
}

func TestAddDuplicateID(t *testing.T) {
	t.Parallel()
	s := newTestService(&memStore{}, newRecordSink(), time.Date(2026, 1, 6, 8, 0, 0, 0, time.UTC))
	if _, err := s.Add(repeatingEvent("e1")); err != nil {
		t.Fatalf("first Add error: %v", err)
	}
	if _, err := s.Add(repeatingEvent("e1")); !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("err = %v, want ErrDuplicateID", err)
	}
}

func TestAddValidation(t *testing.T) {
	t.Parallel()
	s := newTestService(&memStore{}, newRecordSink(), time.Date(2026, 1, 6, 8, 0, 0, 0, time.UTC))
	tests := []struct {
		name string
		ev   *Event
	}{
		{name: "no chat", ev: &Event{Command: "X", Times: []string{"09:00:00"}}},
		{name: "no command", ev: &Event{ChatID: "100", Times: []string{"09:00:00"}}},
		{name: "group without user", ev: &Event{ChatID: "-1", IsGroup: true, Command: "X", Times: []string{"09:00:00"}}},
		{name: "date and times", ev: &Event{ChatID: "100", Command: "X", Date: "2026-01-06T09:00:00Z", Times: []string{"09:00:00"}}},
		{name: "neither date nor times", ev: &Event{ChatID: "100", Command: "X"}},
		{name: "bad date", ev: &Event{ChatID: "100", Command: "X", Date: "tomorrow"}},
		{name: "bad weekday", ev: &Event{ChatID: "100", Command: "X", Times: []string{"09:00:00"}, WeekDays: []int{0}}},
		{name: "bad exclusion", ev: &Event{ChatID: "100", Command: "X", Times: []string{"09:00:00"}, ExcludeDates: []string{"06.01.2026"}}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			var verr *ValidationError
			if _, err := s.Add(tt.ev); !errors.As(err, &verr) {
				t.Fatalf("err = %v, want ValidationError", err)
			}
		})
	}
}

func TestGetScopeChecked(t *testing.T) {
	t.Parallel()
	s := newTestService(&memStore{}, newRecordSink(), time.Date(2026, 1, 6, 8, 0, 0, 0, time.UTC))
	if _, err := s.Add(repeatingEvent("e1")); err != nil {
		t.Fatalf("Add error: %v", err)
	}
	if _, err := s.Get("100", false, "e1"); err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if _, err := s.Get("999", false, "e1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("wrong chat: err = %v, want ErrNotFound", err)
	}
	if _, err := s.Get("100", true, "e1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("wrong scope: err = %v, want ErrNotFound", err)
	}
}

func TestRemoveNotFoundQueuesNoWrite(t *testing.T) {
	t.Parallel()
	s := newTestService(&memStore{}, newRecordSink(), time.Date(2026, 1, 6, 8, 0, 0, 0, time.UTC))
	if err := s.Remove("100", false, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if len(s.persistCh) != 0 {
		t.Fatal("failed Remove queued a snapshot write")
	}
}

func TestRemoveDisarms(t *testing.T) {
	t.Parallel()
	s := newTestService(&memStore{}, newRecordSink(), time.Date(2026, 1, 6, 8, 0, 0, 0, time.UTC))
	if _, err := s.Add(repeatingEvent("e1")); err != nil {
		t.Fatalf("Add error: %v", err)
	}
	if err := s.Remove("100", false, "e1"); err != nil {
		t.Fatalf("Remove error: %v", err)
	}
	s.mu.Lock()
	_, hasTimer := s.timers["e1"]
	s.mu.Unlock()
	if hasTimer {
		t.Fatal("timer still armed after Remove")
	}
	if _, err := s.Get("100", false, "e1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("event still present after Remove: %v", err)
	}
}

func TestOverdueOneShotFiresAtAdd(t *testing.T) {
	t.Parallel()
	sink := newRecordSink()
	now := time.Date(2026, 1, 6, 8, 0, 0, 0, time.UTC)
	s := newTestService(&memStore{}, sink, now)

	id, err := s.Add(&Event{
		ID:      "late",
		ChatID:  "100",
		Command: "REMINDER",
		Date:    "2026-01-06T07:00:00Z", // already past
	})
	if err != nil {
		t.Fatalf("Add error: %v", err)
	}

	got := sink.deliveries()
	if len(got) != 1 {
		t.Fatalf("deliveries = %d, want 1", len(got))
	}
	if got[0].Command != "REMINDER" || got[0].ChatID != "100" {
		t.Fatalf("unexpected delivery: %+v", got[0])
	}
	// One-on-one chats act as the chat itself.
	if got[0].UserID != "100" {
		t.Fatalf("UserID = %q, want chat id", got[0].UserID)
	}
	if _, err := s.Get("100", false, id); !errors.Is(err, ErrNotFound) {
		t.Fatal("one-shot event not retired after firing")
	}
	if s.retired.Load() != 1 {
		t.Fatalf("retired = %d, want 1", s.retired.Load())
	}
}

func TestOneShotFiresFromTimer(t *testing.T) {
	t.Parallel()
	sink := newRecordSink()
	s := New(Config{Housekeeping: "off", PersistDebounce: time.Millisecond}, &memStore{}, sink, nil, logx.Nop())

	due := time.Now().UTC().Add(50 * time.Millisecond)
	if _, err := s.Add(&Event{
		ID:      "soon",
		ChatID:  "100",
		Command: "PING",
		Date:    due.Format(time.RFC3339),
	}); err != nil {
		t.Fatalf("Add error: %v", err)
	}

	select {
	case <-sink.fired:
	case <-time.After(3 * time.Second):
		t.Fatal("timer never fired")
	}
	if _, err := s.Get("100", false, "soon"); !errors.Is(err, ErrNotFound) {
		t.Fatal("one-shot event not retired after timer fire")
	}
}

func TestRepeatingReArmsAfterFire(t *testing.T) {
	t.Parallel()
	sink := newRecordSink()
	s := newTestService(&memStore{}, sink, time.Date(2026, 1, 6, 8, 0, 0, 0, time.UTC))
	if _, err := s.Add(repeatingEvent("e1")); err != nil {
		t.Fatalf("Add error: %v", err)
	}

	s.mu.Lock()
	gen := s.armGen["e1"]
	s.mu.Unlock()

	// Simulate the timer callback.
	s.onTimerFire("e1", gen)

	if len(sink.deliveries()) != 1 {
		t.Fatalf("deliveries = %d, want 1", len(sink.deliveries()))
	}
	s.mu.Lock()
	_, armed := s.timers["e1"]
	_, kept := s.events["e1"]
	s.mu.Unlock()
	if !kept {
		t.Fatal("repeating event removed after fire")
	}
	if !armed {
		t.Fatal("repeating event not re-armed after fire")
	}
}

func TestStaleTimerCallbackIgnored(t *testing.T) {
	t.Parallel()
	sink := newRecordSink()
	s := newTestService(&memStore{}, sink, time.Date(2026, 1, 6, 8, 0, 0, 0, time.UTC))
	if _, err := s.Add(repeatingEvent("e1")); err != nil {
		t.Fatalf("Add error: %v", err)
	}
	s.mu.Lock()
	gen := s.armGen["e1"]
	s.mu.Unlock()

	if err := s.Remove("100", false, "e1"); err != nil {
		t.Fatalf("Remove error: %v", err)
	}

	// Callback from the pre-Remove arming must be a no-op.
	s.onTimerFire("e1", gen)
	if n := len(sink.deliveries()); n != 0 {
		t.Fatalf("stale callback delivered %d times", n)
	}
}

func TestOverrideCallbackCaseInsensitive(t *testing.T) {
	t.Parallel()
	sink := newRecordSink()
	s := newTestService(&memStore{}, sink, time.Date(2026, 1, 6, 8, 0, 0, 0, time.UTC))

	called := make(chan string, 1)
	s.SetOverrideCallback("backup", func(_ context.Context, chatID string, _ bool, _ string, _ map[string]any) {
		called <- chatID
	})

	if err := s.TriggerNow("100", false, "", "BACKUP", nil); err != nil {
		t.Fatalf("TriggerNow error: %v", err)
	}
	select {
	case chat := <-called:
		if chat != "100" {
			t.Fatalf("override chat = %q", chat)
		}
	default:
		t.Fatal("override callback not invoked")
	}
	if len(sink.deliveries()) != 0 {
		t.Fatal("sink received a delivery despite override")
	}

	// Unregister, then the default path applies again.
	s.SetOverrideCallback("BACKUP", nil)
	if err := s.TriggerNow("100", false, "", "backup", nil); err != nil {
		t.Fatalf("TriggerNow error: %v", err)
	}
	if len(sink.deliveries()) != 1 {
		t.Fatal("sink not used after override unregistered")
	}
}

func TestTriggerNowValidation(t *testing.T) {
	t.Parallel()
	s := newTestService(&memStore{}, newRecordSink(), time.Date(2026, 1, 6, 8, 0, 0, 0, time.UTC))
	if err := s.TriggerNow("", false, "", "X", nil); err == nil {
		t.Fatal("expected error for empty chat id")
	}
	if err := s.TriggerNow("100", false, "", "", nil); err == nil {
		t.Fatal("expected error for empty command")
	}
	if err := s.TriggerNow("-1", true, "", "X", nil); err == nil {
		t.Fatal("expected error for group trigger without user")
	}
}

func TestPersistReloadRoundTrip(t *testing.T) {
	t.Parallel()
	store := &memStore{}
	at := time.Date(2026, 1, 6, 8, 0, 0, 0, time.UTC)

	s1 := newTestService(store, newRecordSink(), at)
	if err := s1.Start(context.Background()); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	if _, err := s1.Add(repeatingEvent("e1")); err != nil {
		t.Fatalf("Add error: %v", err)
	}
	if err := s1.Stop(context.Background()); err != nil {
		t.Fatalf("Stop error: %v", err)
	}
	if store.saveCount() == 0 {
		t.Fatal("Stop wrote no snapshot")
	}

	s2 := newTestService(store, newRecordSink(), at)
	if err := s2.Start(context.Background()); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	defer func() { _ = s2.Stop(context.Background()) }()

	ev, err := s2.Get("100", false, "e1")
	if err != nil {
		t.Fatalf("event lost across restart: %v", err)
	}
	if ev.Command != "BACKUP" {
		t.Fatalf("Command = %q after reload", ev.Command)
	}
	s2.mu.Lock()
	_, armed := s2.timers["e1"]
	s2.mu.Unlock()
	if !armed {
		t.Fatal("event not re-armed after reload")
	}
}

func TestSnapshotCounts(t *testing.T) {
	t.Parallel()
	s := newTestService(&memStore{}, newRecordSink(), time.Date(2026, 1, 6, 8, 0, 0, 0, time.UTC))
	if _, err := s.Add(repeatingEvent("r1")); err != nil {
		t.Fatalf("Add error: %v", err)
	}
	if _, err := s.Add(&Event{ID: "o1", ChatID: "100", Command: "X", Date: "2026-01-06T09:00:00Z"}); err != nil {
		t.Fatalf("Add error: %v", err)
	}
	snap := s.Snapshot()
	if snap.Events != 2 || snap.Repeating != 1 || snap.OneShot != 1 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if snap.Armed != 2 {
		t.Fatalf("Armed = %d, want 2", snap.Armed)
	}
	if snap.NextDue == nil {
		t.Fatal("NextDue not set")
	}
}

func TestPruneExcludeDates(t *testing.T) {
	t.Parallel()
	at := time.Date(2026, 1, 6, 8, 0, 0, 0, time.UTC)
	s := newTestService(&memStore{}, newRecordSink(), at)
	ev := repeatingEvent("e1")
	ev.ExcludeDates = []string{"2025-12-31", "2026-01-06", "2026-02-01"}
	if _, err := s.Add(ev); err != nil {
		t.Fatalf("Add error: %v", err)
	}

	s.pruneExcludeDates()

	got, err := s.Get("100", false, "e1")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	want := []string{"2026-01-06", "2026-02-01"}
	if len(got.ExcludeDates) != len(want) {
		t.Fatalf("ExcludeDates = %v, want %v", got.ExcludeDates, want)
	}
	for i := range want {
		if got.ExcludeDates[i] != want[i] {
			t.Fatalf("ExcludeDates = %v, want %v", got.ExcludeDates, want)
		}
	}
}
