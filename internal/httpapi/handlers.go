package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"schedbot/internal/scheduler"
	"schedbot/internal/storage"
	logx "schedbot/pkg/logx"
)

// scheduleRequest is the POST body for creating an event. The recurrence
// fields mirror the stored event: exactly one of date/times must be set.
type scheduleRequest struct {
	Command      string         `json:"command" validate:"required"`
	UserID       string         `json:"user_id"`
	Answers      map[string]any `json:"answers"`
	Date         string         `json:"date" validate:"required_without=Times,excluded_with=Times,omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	Times        []string       `json:"times" validate:"required_without=Date,omitempty,min=1,dive,datetime=15:04:05"`
	WeekDays     []int          `json:"week_days" validate:"omitempty,dive,min=1,max=7"`
	ExcludeDates []string       `json:"exclude_dates" validate:"omitempty,dive,datetime=2006-01-02"`
}

// triggerRequest is the POST body for firing a command immediately.
type triggerRequest struct {
	Command string         `json:"command" validate:"required"`
	UserID  string         `json:"user_id"`
	Answers map[string]any `json:"answers"`
}

func (s *Service) routes(token string) http.Handler {
	mux := http.NewServeMux()
	a := func(h http.HandlerFunc) http.HandlerFunc { return s.withAuth(token, h) }

	for scope, group := range map[string]bool{"conversations": false, "groupchats": true} {
		mux.HandleFunc("POST /"+scope+"/{chat_id}/schedule", a(s.handleCreate(group)))
		mux.HandleFunc("GET /"+scope+"/{chat_id}/schedule/{event_id}", a(s.handleGet(group)))
		mux.HandleFunc("DELETE /"+scope+"/{chat_id}/schedule/{event_id}", a(s.handleDelete(group)))
		mux.HandleFunc("POST /"+scope+"/{chat_id}/trigger", a(s.handleTrigger(group)))
	}

	mux.HandleFunc("GET /stats/configured", a(s.handleConfigured))
	mux.HandleFunc("GET /stats/connected", a(s.handleConnected))
	mux.HandleFunc("GET /stats/schedule", a(s.handleScheduleStats))

	mux.HandleFunc("GET /actions/stop", a(s.handleStop))
	mux.HandleFunc("GET /actions/kill", a(s.handleKill))

	// Liveness probe stays unauthenticated.
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return mux
}

func (s *Service) handleCreate(group bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		chatID := r.PathValue("chat_id")
		var req scheduleRequest
		if !s.decodeBody(w, r, &req) {
			return
		}

		ev := &scheduler.Event{
			ChatID:       chatID,
			IsGroup:      group,
			UserID:       req.UserID,
			Command:      req.Command,
			Answers:      req.Answers,
			Date:         req.Date,
			Times:        req.Times,
			WeekDays:     req.WeekDays,
			ExcludeDates: req.ExcludeDates,
		}
		if !group && ev.UserID == "" {
			ev.UserID = chatID
		}

		start := time.Now()
		id, err := s.deps.Scheduler.Add(ev)
		s.audit(r, "schedule.create", chatID, group, ev.UserID, id, err, start)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"id": id})
	}
}

func (s *Service) handleGet(group bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ev, err := s.deps.Scheduler.Get(r.PathValue("chat_id"), group, r.PathValue("event_id"))
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, ev)
	}
}

func (s *Service) handleDelete(group bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		chatID := r.PathValue("chat_id")
		id := r.PathValue("event_id")

		start := time.Now()
		err := s.deps.Scheduler.Remove(chatID, group, id)
		s.audit(r, "schedule.delete", chatID, group, "", id, err, start)
		if err != nil {
			s.writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Service) handleTrigger(group bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		chatID := r.PathValue("chat_id")
		var req triggerRequest
		if !s.decodeBody(w, r, &req) {
			return
		}
		if !group && req.UserID == "" {
			req.UserID = chatID
		}

		start := time.Now()
		err := s.deps.Scheduler.TriggerNow(chatID, group, req.UserID, req.Command, req.Answers)
		s.audit(r, "trigger", chatID, group, req.UserID, "", err, start)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "triggered"})
	}
}

func (s *Service) handleConfigured(w http.ResponseWriter, r *http.Request) {
	configured := s.deps.Stats != nil && s.deps.Stats.Configured()
	writeJSON(w, http.StatusOK, map[string]bool{"configured": configured})
}

func (s *Service) handleConnected(w http.ResponseWriter, r *http.Request) {
	connected := s.deps.Stats != nil && s.deps.Stats.Connected()
	writeJSON(w, http.StatusOK, map[string]bool{"connected": connected})
}

func (s *Service) handleScheduleStats(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"snapshot": s.deps.Scheduler.Snapshot(),
		"events":   s.deps.Scheduler.List(),
	}
	if s.deps.Deliveries != nil {
		resp["deliveries"] = s.deps.Deliveries.Snapshot()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Service) handleStop(w http.ResponseWriter, r *http.Request) {
	s.log.Info("shutdown requested over httpapi", logx.String("remote", r.RemoteAddr))
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopping"})
	if s.deps.Control != nil {
		s.deps.Control.RequestStop()
	}
}

func (s *Service) handleKill(w http.ResponseWriter, r *http.Request) {
	s.log.Warn("kill requested over httpapi", logx.String("remote", r.RemoteAddr))
	writeJSON(w, http.StatusOK, map[string]string{"status": "killing"})
	if s.deps.Control != nil {
		s.deps.Control.Kill()
	}
}

// decodeBody parses and validates a JSON request body. On failure it
// writes the error response and returns false.
func (s *Service) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body: " + err.Error()})
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": validationMessage(err)})
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		f := verrs[0]
		return "invalid " + f.Field() + ": failed " + f.Tag()
	}
	return err.Error()
}

func (s *Service) writeError(w http.ResponseWriter, err error) {
	var verr *scheduler.ValidationError
	switch {
	case errors.As(err, &verr),
		errors.Is(err, scheduler.ErrInvalidSchedule),
		errors.Is(err, scheduler.ErrNoValidOccurrence):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, scheduler.ErrDuplicateID):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, scheduler.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	default:
		s.log.Error("httpapi internal error", logx.Err(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// audit records a mutating call; failures only log.
func (s *Service) audit(r *http.Request, action, chatID string, group bool, userID, eventID string, opErr error, start time.Time) {
	if s.deps.Audit == nil {
		return
	}
	e := storage.AuditEntry{
		At:      time.Now().UTC(),
		UserID:  userID,
		ChatID:  chatID,
		Group:   group,
		Action:  action,
		EventID: eventID,
		TookMS:  time.Since(start).Milliseconds(),
	}
	if opErr != nil {
		e.Error = opErr.Error()
	}
	if err := s.deps.Audit.AppendAudit(r.Context(), e); err != nil && !errors.Is(err, storage.ErrDisabled) {
		s.log.Warn("audit append failed", logx.Err(err))
	}
}
