package app

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"schedbot/internal/notifier"
	"schedbot/internal/scheduler"
	kit "schedbot/internal/transport"
	logx "schedbot/pkg/logx"
)

// notifySink routes fired schedule events into the notifier queue. It is
// the default dispatch path when no override callback claims the command.
type notifySink struct {
	notif *notifier.Service
	log   logx.Logger
}

func (s *notifySink) Deliver(d scheduler.Delivery) {
	if s.notif == nil {
		s.log.Warn("delivery dropped: transport not configured",
			logx.String("chat", d.ChatID), logx.String("command", d.Command))
		return
	}
	err := s.notif.Notify(context.Background(), kit.Notification{
		Channel:  "telegram",
		Priority: 5,
		Target:   kit.ChatTarget{ChatID: d.ChatID, Group: d.IsGroup},
		Text:     formatDelivery(d),
	})
	if err != nil {
		s.log.Warn("delivery enqueue failed",
			logx.String("chat", d.ChatID), logx.String("command", d.Command), logx.Err(err))
	}
}

// formatDelivery renders the command plus its canned answers as the
// outbound message body.
func formatDelivery(d scheduler.Delivery) string {
	if len(d.Answers) == 0 {
		return d.Command
	}
	keys := make([]string, 0, len(d.Answers))
	for k := range d.Answers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(d.Command)
	for _, k := range keys {
		b.WriteString("\n")
		b.WriteString(k)
		b.WriteString(": ")
		fmt.Fprintf(&b, "%v", d.Answers[k])
	}
	return b.String()
}

// transportStats answers the /stats/{configured,connected} routes.
type transportStats struct {
	adapter kit.Adapter
}

func (t *transportStats) Configured() bool { return t.adapter != nil }

func (t *transportStats) Connected() bool {
	c, ok := t.adapter.(kit.Connected)
	return ok && c.IsConnected()
}

// processControl backs the /actions/{stop,kill} routes.
type processControl struct {
	a *App
}

func (p *processControl) RequestStop() { p.a.requestStop() }

func (p *processControl) Kill() {
	// Give the HTTP response a moment to flush, then exit without cleanup.
	go func() {
		time.Sleep(250 * time.Millisecond)
		os.Exit(1)
	}()
}
