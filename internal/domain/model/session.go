package model

import (
	"maps"
	"time"
)

type Stage string

const (
	StageStart         Stage = "start"
	StageAwaitingInput Stage = "awaiting_input"
	StageInProgress    Stage = "in_progress"
	StageCompleted     Stage = "completed"
	StageError         Stage = "error"
)

func (s Stage) Valid() bool {
	switch s {
	case StageStart, StageAwaitingInput, StageInProgress, StageCompleted, StageError:
		return true
	}
	return false
}

// Session is the conversation state of one chat. Generation changes whenever
// a new exercise round begins and is stamped into callback data, so buttons
// from an older round can be recognised.
type Session struct {
	ChatID     int64             `json:"chat_id"`
	Stage      Stage             `json:"stage"`
	Context    map[string]string `json:"context"`
	Generation int64             `json:"generation"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

func NewSession(chatID int64, now time.Time) *Session {
	return &Session{
		ChatID:    chatID,
		Stage:     StageStart,
		Context:   map[string]string{},
		UpdatedAt: now,
	}
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Context = maps.Clone(s.Context)
	if c.Context == nil {
		c.Context = map[string]string{}
	}
	return &c
}

func (s *Session) Get(key string) string { return s.Context[key] }

func (s *Session) Set(key, value string) {
	if s.Context == nil {
		s.Context = map[string]string{}
	}
	s.Context[key] = value
}

// Reset clears the context and returns the session to the start stage.
func (s *Session) Reset() {
	s.Stage = StageStart
	s.Context = map[string]string{}
}
