package scheduler

import (
	"strings"

	"github.com/google/uuid"

	logx "schedbot/pkg/logx"
)

// Add validates and inserts a new event, arms its timer and queues a
// snapshot write. An empty id gets a generated one; a duplicate id is
// rejected without touching the existing record.
//
// An overdue one-shot date fires synchronously before Add returns, and the
// event is retired immediately after.
func (s *Service) Add(ev *Event) (string, error) {
	if ev == nil {
		return "", invalidField("event", "must not be nil")
	}
	cp := ev.Clone()
	if strings.TrimSpace(cp.ID) == "" {
		cp.ID = uuid.NewString()
	}
	if err := cp.validate(); err != nil {
		return "", err
	}

	now := s.clock()

	s.mu.Lock()
	if _, dup := s.events[cp.ID]; dup {
		s.mu.Unlock()
		return "", ErrDuplicateID
	}
	fireNow, err := s.armLocked(cp, now)
	if err != nil {
		s.mu.Unlock()
		return "", err
	}
	s.events[cp.ID] = cp
	s.requestPersistLocked()
	s.mu.Unlock()

	if fireNow {
		s.log.Info("event overdue at add; firing now", logx.String("id", cp.ID))
		s.executeDue(cp.ID)
	}
	return cp.ID, nil
}

// Get returns the event only when the id exists AND its chat scope matches,
// so callers cannot read other chats' events by guessing ids.
func (s *Service) Get(chatID string, isGroup bool, id string) (*Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.events[id]
	if !ok || ev.ChatID != chatID || ev.IsGroup != isGroup {
		return nil, ErrNotFound
	}
	return ev.Clone(), nil
}

// Remove disarms and deletes the event and queues a snapshot write.
// An unknown id returns ErrNotFound and performs no disk write.
func (s *Service) Remove(chatID string, isGroup bool, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.events[id]
	if !ok || ev.ChatID != chatID || ev.IsGroup != isGroup {
		return ErrNotFound
	}
	s.disarmLocked(id)
	delete(s.events, id)
	s.requestPersistLocked()
	return nil
}

// TriggerNow dispatches a command immediately. It never touches the
// schedule or the timers.
func (s *Service) TriggerNow(chatID string, isGroup bool, userID, command string, answers map[string]any) error {
	ev := &Event{
		ChatID:  chatID,
		IsGroup: isGroup,
		UserID:  userID,
		Command: command,
		Answers: answers,
	}
	if strings.TrimSpace(chatID) == "" {
		return invalidField("chat_id", "must not be empty")
	}
	if strings.TrimSpace(command) == "" {
		return invalidField("command", "must not be empty")
	}
	if isGroup && strings.TrimSpace(userID) == "" {
		return invalidField("user_id", "required for group triggers")
	}
	s.dispatch(ev)
	return nil
}

// SetOverrideCallback registers a handler that intercepts dispatch for one
// command name (case-insensitive). A nil callback unregisters.
func (s *Service) SetOverrideCallback(command string, fn OverrideFunc) {
	key := strings.ToUpper(strings.TrimSpace(command))
	if key == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn == nil {
		delete(s.overrides, key)
		return
	}
	s.overrides[key] = fn
}

// List returns a copy of every scheduled event, for the stats API.
func (s *Service) List() []*Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Event, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev.Clone())
	}
	return out
}
