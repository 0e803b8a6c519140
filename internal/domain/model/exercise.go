package model

import "time"

type ExerciseEventType string

const (
	EventAsked    ExerciseEventType = "asked"
	EventAnswered ExerciseEventType = "answered"
)

type Direction string

const (
	DirectionItalian Direction = "IT" // source sentence is Italian, answer in English
	DirectionEnglish Direction = "EN" // source sentence is English, answer in Italian
)

// ExerciseEvent is one line of the exercise journal.
type ExerciseEvent struct {
	Type       ExerciseEventType `json:"type"`
	ChatID     int64             `json:"chat_id"`
	UpdateID   int64             `json:"update_id"`
	QuestionID string            `json:"qid"`
	Direction  Direction         `json:"direction,omitempty"`
	Sentence   string            `json:"sentence,omitempty"`
	Answer     string            `json:"answer,omitempty"`
	Reply      string            `json:"reply,omitempty"`
	Correct    *bool             `json:"correct,omitempty"`
	At         time.Time         `json:"at"`
}
