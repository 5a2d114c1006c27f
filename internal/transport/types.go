package transport

import "context"

// The host chat system addresses conversations and groupchats by opaque
// string ids. Adapters translate these to whatever their backend uses
// (Telegram: numeric chat ids rendered as decimal strings).

type Update struct {
	Message *Message
}

type Message struct {
	ID           string
	ChatID       string
	FromID       string
	FromUsername string
	Text         string
	IsGroup      bool
}

// ChatTarget identifies where a message is delivered. Group selects the
// groupchat namespace, everything else is a one-on-one conversation.
type ChatTarget struct {
	ChatID string
	Group  bool
}

type MessageRef struct {
	ChatID    string
	MessageID string
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

// Notification is an outbound delivery request handed to the notifier queue.
type Notification struct {
	Channel  string // "telegram" now
	Priority int    // 0 low.. 10 high
	Target   ChatTarget
	Text     string
	Options  *SendOptions
}

type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
}

// Connected is an optional interface for adapters that can report whether
// their backend link is currently up. The stats API uses it.
type Connected interface {
	IsConnected() bool
}
