package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"schedbot/internal/scheduler"
	logx "schedbot/pkg/logx"
)

type stubScheduler struct {
	events   map[string]*scheduler.Event
	lastAdd  *scheduler.Event
	triggers int
}

func newStubScheduler() *stubScheduler {
	return &stubScheduler{events: map[string]*scheduler.Event{}}
}

func (s *stubScheduler) Add(ev *scheduler.Event) (string, error) {
	if ev.Command == "" {
		return "", scheduler.ErrInvalidSchedule
	}
	if ev.ID == "" {
		ev.ID = "generated-id"
	}
	if _, dup := s.events[ev.ID]; dup {
		return "", scheduler.ErrDuplicateID
	}
	s.events[ev.ID] = ev
	s.lastAdd = ev
	return ev.ID, nil
}

func (s *stubScheduler) Get(chatID string, isGroup bool, id string) (*scheduler.Event, error) {
	ev, ok := s.events[id]
	if !ok || ev.ChatID != chatID || ev.IsGroup != isGroup {
		return nil, scheduler.ErrNotFound
	}
	return ev, nil
}

func (s *stubScheduler) Remove(chatID string, isGroup bool, id string) error {
	if _, err := s.Get(chatID, isGroup, id); err != nil {
		return err
	}
	delete(s.events, id)
	return nil
}

func (s *stubScheduler) TriggerNow(string, bool, string, string, map[string]any) error {
	s.triggers++
	return nil
}

func (s *stubScheduler) List() []*scheduler.Event { return nil }

func (s *stubScheduler) Snapshot() scheduler.Snapshot {
	return scheduler.Snapshot{Events: len(s.events)}
}

type stubStats struct{ configured, connected bool }

func (s *stubStats) Configured() bool { return s.configured }
func (s *stubStats) Connected() bool  { return s.connected }

func newTestHandler(sched Scheduler) http.Handler {
	svc := New(Config{Enabled: true}, Deps{
		Scheduler: sched,
		Stats:     &stubStats{configured: true},
	}, logx.Nop())
	return svc.routes("sekret")
}

func doReq(t *testing.T, h http.Handler, method, path, body string, auth bool) *httptest.ResponseRecorder {
	t.Helper()
	var rd *strings.Reader
	if body == "" {
		rd = strings.NewReader("")
	} else {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if auth {
		req.Header.Set("Authorization", "Bearer sekret")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAuthRequired(t *testing.T) {
	t.Parallel()
	h := newTestHandler(newStubScheduler())

	rec := doReq(t, h, http.MethodGet, "/stats/configured", "", false)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no auth: status = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/stats/configured", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad token: status = %d, want 401", rec.Code)
	}

	rec = doReq(t, h, http.MethodGet, "/stats/configured", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("good token: status = %d, want 200", rec.Code)
	}
}

func TestHealthzUnauthenticated(t *testing.T) {
	t.Parallel()
	h := newTestHandler(newStubScheduler())
	rec := doReq(t, h, http.MethodGet, "/healthz", "", false)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestCreateScheduleEvent(t *testing.T) {
	t.Parallel()
	stub := newStubScheduler()
	h := newTestHandler(stub)

	body := `{"command":"BACKUP","times":["09:00:00"],"week_days":[1,3,5]}`
	rec := doReq(t, h, http.MethodPost, "/conversations/100/schedule", body, true)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 (body %s)", rec.Code, rec.Body)
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if resp["id"] == "" {
		t.Fatal("response missing id")
	}
	if stub.lastAdd == nil || stub.lastAdd.ChatID != "100" || stub.lastAdd.IsGroup {
		t.Fatalf("unexpected event: %+v", stub.lastAdd)
	}
	// One-on-one chats default the acting user to the chat itself.
	if stub.lastAdd.UserID != "100" {
		t.Fatalf("UserID = %q", stub.lastAdd.UserID)
	}
}

func TestCreateGroupScheduleEvent(t *testing.T) {
	t.Parallel()
	stub := newStubScheduler()
	h := newTestHandler(stub)

	body := `{"command":"PING","user_id":"42","date":"2026-06-01T09:00:00Z"}`
	rec := doReq(t, h, http.MethodPost, "/groupchats/-500/schedule", body, true)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 (body %s)", rec.Code, rec.Body)
	}
	if !stub.lastAdd.IsGroup || stub.lastAdd.ChatID != "-500" || stub.lastAdd.UserID != "42" {
		t.Fatalf("unexpected event: %+v", stub.lastAdd)
	}
}

func TestCreateValidation(t *testing.T) {
	t.Parallel()
	h := newTestHandler(newStubScheduler())
	tests := []struct {
		name string
		body string
	}{
		{name: "missing command", body: `{"times":["09:00:00"]}`},
		{name: "date and times", body: `{"command":"X","date":"2026-06-01T09:00:00Z","times":["09:00:00"]}`},
		{name: "neither", body: `{"command":"X"}`},
		{name: "bad time format", body: `{"command":"X","times":["9am"]}`},
		{name: "bad weekday", body: `{"command":"X","times":["09:00:00"],"week_days":[8]}`},
		{name: "bad exclusion", body: `{"command":"X","times":["09:00:00"],"exclude_dates":["01.06.2026"]}`},
		{name: "unknown field", body: `{"command":"X","times":["09:00:00"],"bogus":1}`},
		{name: "not json", body: `nope`},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			rec := doReq(t, h, http.MethodPost, "/conversations/100/schedule", tt.body, true)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400 (body %s)", rec.Code, rec.Body)
			}
		})
	}
}

func TestCreateDuplicate(t *testing.T) {
	t.Parallel()
	stub := newStubScheduler()
	stub.events["generated-id"] = &scheduler.Event{ID: "generated-id", ChatID: "100"}
	h := newTestHandler(stub)

	body := `{"command":"BACKUP","times":["09:00:00"]}`
	rec := doReq(t, h, http.MethodPost, "/conversations/100/schedule", body, true)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestGetAndDeleteScopeChecked(t *testing.T) {
	t.Parallel()
	stub := newStubScheduler()
	stub.events["e1"] = &scheduler.Event{ID: "e1", ChatID: "100", Command: "BACKUP"}
	h := newTestHandler(stub)

	rec := doReq(t, h, http.MethodGet, "/conversations/100/schedule/e1", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: status = %d, want 200", rec.Code)
	}
	// Same id through the group scope must 404.
	rec = doReq(t, h, http.MethodGet, "/groupchats/100/schedule/e1", "", true)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("cross-scope get: status = %d, want 404", rec.Code)
	}

	rec = doReq(t, h, http.MethodDelete, "/conversations/999/schedule/e1", "", true)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("cross-chat delete: status = %d, want 404", rec.Code)
	}
	rec = doReq(t, h, http.MethodDelete, "/conversations/100/schedule/e1", "", true)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: status = %d, want 204", rec.Code)
	}
}

func TestTrigger(t *testing.T) {
	t.Parallel()
	stub := newStubScheduler()
	h := newTestHandler(stub)

	rec := doReq(t, h, http.MethodPost, "/conversations/100/trigger", `{"command":"BACKUP"}`, true)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202 (body %s)", rec.Code, rec.Body)
	}
	if stub.triggers != 1 {
		t.Fatalf("triggers = %d, want 1", stub.triggers)
	}

	rec = doReq(t, h, http.MethodPost, "/conversations/100/trigger", `{}`, true)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing command: status = %d, want 400", rec.Code)
	}
}

func TestScheduleStats(t *testing.T) {
	t.Parallel()
	stub := newStubScheduler()
	stub.events["e1"] = &scheduler.Event{ID: "e1", ChatID: "100"}
	h := newTestHandler(stub)

	rec := doReq(t, h, http.MethodGet, "/stats/schedule", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp struct {
		Snapshot scheduler.Snapshot `json:"snapshot"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if resp.Snapshot.Events != 1 {
		t.Fatalf("snapshot events = %d, want 1", resp.Snapshot.Events)
	}
}
