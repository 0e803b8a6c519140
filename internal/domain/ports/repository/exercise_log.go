package repository

import (
	"context"

	"tg-bot-italian/internal/domain/model"
)

type ExerciseJournal interface {
	Append(ctx context.Context, events ...model.ExerciseEvent) error
	ListByChat(ctx context.Context, chatID int64, limit int) ([]model.ExerciseEvent, error)
}
