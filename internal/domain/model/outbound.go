package model

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

type ActionKind string

const (
	ActionSendMessage    ActionKind = "send_message"
	ActionAnswerCallback ActionKind = "answer_callback"
)

type Button struct {
	Text string `json:"text"`
	Data string `json:"data,omitempty"`
	URL  string `json:"url,omitempty"`
}

type Content struct {
	Text             string     `json:"text"`
	ParseMode        string     `json:"parse_mode,omitempty"`
	Buttons          [][]Button `json:"buttons,omitempty"`
	ReplyToMessageID int        `json:"reply_to_message_id,omitempty"`
	ForceReply       bool       `json:"force_reply,omitempty"`
}

// OutboundAction is a message (or callback answer) waiting to be delivered.
type OutboundAction struct {
	ID           string        `json:"id"`
	ChatID       int64         `json:"chat_id"`
	Kind         ActionKind    `json:"kind"`
	Content      Content       `json:"content"`
	CallbackID   string        `json:"callback_id,omitempty"`
	UpdateID     int64         `json:"update_id,omitempty"`
	AttemptCount int           `json:"attempt_count"`
	NotBefore    time.Time     `json:"not_before"`
	LastDelay    time.Duration `json:"last_delay"`
	CreatedAt    time.Time     `json:"created_at"`
}

func NewActionID(now time.Time) string {
	return ulid.MustNew(ulid.Timestamp(now), rand.Reader).String()
}

func NewMessage(chatID int64, c Content, now time.Time) OutboundAction {
	return OutboundAction{
		ID:        NewActionID(now),
		ChatID:    chatID,
		Kind:      ActionSendMessage,
		Content:   c,
		CreatedAt: now,
	}
}

func NewCallbackAnswer(chatID int64, callbackID, text string, now time.Time) OutboundAction {
	return OutboundAction{
		ID:         NewActionID(now),
		ChatID:     chatID,
		Kind:       ActionAnswerCallback,
		Content:    Content{Text: text},
		CallbackID: callbackID,
		CreatedAt:  now,
	}
}
