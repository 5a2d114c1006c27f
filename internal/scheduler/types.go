package scheduler

import (
	"encoding/json"
	"strings"
	"time"
)

// Event is the unit of schedulability.
//
// Exactly one of Date (one-shot) or Times (repeating) is set; this is fixed
// at creation and never mixed. Answers is an opaque payload carried through
// to dispatch unchanged.
type Event struct {
	ID      string `json:"id"`
	ChatID  string `json:"chat_id"`
	IsGroup bool   `json:"is_group"`
	// UserID is required iff IsGroup; for one-on-one chats the acting user
	// is the chat id itself.
	UserID  string         `json:"user_id,omitempty"`
	Command string         `json:"command"`
	Answers map[string]any `json:"answers,omitempty"`

	// Date is an absolute RFC 3339 timestamp (one-shot).
	Date string `json:"date,omitempty"`

	// Times are "HH:MM:SS" times-of-day (repeating). WeekDays holds ISO
	// weekday numbers (Mon=1..Sun=7); empty means every day. ExcludeDates
	// are "YYYY-MM-DD" calendar days that never fire.
	Times        []string `json:"times,omitempty"`
	WeekDays     []int    `json:"week_days,omitempty"`
	ExcludeDates []string `json:"exclude_dates,omitempty"`
}

func (e *Event) Repeating() bool { return len(e.Times) > 0 }

// ActingUser resolves the user id a dispatch runs as.
func (e *Event) ActingUser() string {
	if e.IsGroup {
		return e.UserID
	}
	return e.ChatID
}

func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}
	cp := *e
	cp.Times = append([]string(nil), e.Times...)
	cp.WeekDays = append([]int(nil), e.WeekDays...)
	cp.ExcludeDates = append([]string(nil), e.ExcludeDates...)
	if e.Answers != nil {
		cp.Answers = cloneAnswers(e.Answers)
	}
	return &cp
}

func cloneAnswers(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		if m, ok := v.(map[string]any); ok {
			out[k] = cloneAnswers(m)
			continue
		}
		out[k] = v
	}
	return out
}

// validate enforces the creation invariants. The id is checked by the
// caller (it may still be empty when the scheduler assigns one).
func (e *Event) validate() error {
	if strings.TrimSpace(e.ChatID) == "" {
		return invalidField("chat_id", "must not be empty")
	}
	if strings.TrimSpace(e.Command) == "" {
		return invalidField("command", "must not be empty")
	}
	if e.IsGroup && strings.TrimSpace(e.UserID) == "" {
		return invalidField("user_id", "required for group events")
	}
	if !e.IsGroup && strings.TrimSpace(e.UserID) != "" && e.UserID != e.ChatID {
		return invalidField("user_id", "must be omitted for one-on-one events")
	}

	hasDate := strings.TrimSpace(e.Date) != ""
	if hasDate == e.Repeating() {
		return invalidField("date", "exactly one of date or times must be set")
	}

	if hasDate {
		if _, err := time.Parse(time.RFC3339, e.Date); err != nil {
			return invalidField("date", "not a valid RFC 3339 timestamp")
		}
		return nil
	}

	for _, tod := range e.Times {
		if _, err := parseTimeOfDay(tod); err != nil {
			return invalidField("times", "entry "+tod+" is not HH:MM:SS")
		}
	}
	for _, wd := range e.WeekDays {
		if wd < 1 || wd > 7 {
			return invalidField("week_days", "weekday numbers are 1 (Mon) .. 7 (Sun)")
		}
	}
	for _, d := range e.ExcludeDates {
		if _, err := time.Parse(dayFormat, d); err != nil {
			return invalidField("exclude_dates", "entry "+d+" is not YYYY-MM-DD")
		}
	}
	return nil
}

// encode serializes the event for the schedule snapshot.
func (e *Event) encode() (json.RawMessage, error) {
	return json.Marshal(e)
}

func decodeEvent(raw json.RawMessage) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}
