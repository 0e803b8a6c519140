package model

import (
	"strings"
	"time"
)

type UpdateKind string

const (
	KindText          UpdateKind = "text"
	KindCallback      UpdateKind = "callback"
	KindEditedMessage UpdateKind = "edited_message"
	KindOther         UpdateKind = "other"
)

// Update is one decoded inbound event. It is never mutated after decoding.
type Update struct {
	ID               int64
	ChatID           int64
	SenderID         int64
	Kind             UpdateKind
	Payload          string
	CallbackID       string
	MessageID        int
	ReplyToMessageID int
	Username         string
	LanguageCode     string
	ReceivedAt       time.Time
}

// IsCommand reports whether a text update starts with a bot command.
func (u Update) IsCommand() bool {
	return u.Kind == KindText && strings.HasPrefix(u.Payload, "/")
}

// Command returns the lower-cased command name without the leading slash and
// without a "@botname" suffix. Empty when the update is not a command.
func (u Update) Command() string {
	if !u.IsCommand() {
		return ""
	}
	head := strings.Fields(u.Payload)
	if len(head) == 0 {
		return ""
	}
	name := strings.TrimPrefix(head[0], "/")
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	return strings.ToLower(name)
}

// CommandArgs returns everything after the command token.
func (u Update) CommandArgs() string {
	if !u.IsCommand() {
		return ""
	}
	parts := strings.SplitN(strings.TrimSpace(u.Payload), " ", 2)
	if len(parts) < 2 {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
