package memory

import (
	"context"
	"sync"

	"tg-bot-italian/internal/domain/model"
	"tg-bot-italian/internal/domain/ports/repository"
)

// ExerciseJournal keeps the most recent events per chat.
type ExerciseJournal struct {
	mu      sync.Mutex
	perChat int
	events  map[int64][]model.ExerciseEvent
}

var _ repository.ExerciseJournal = (*ExerciseJournal)(nil)

func NewExerciseJournal(perChat int) *ExerciseJournal {
	if perChat <= 0 {
		perChat = 200
	}
	return &ExerciseJournal{perChat: perChat, events: make(map[int64][]model.ExerciseEvent)}
}

func (j *ExerciseJournal) Append(_ context.Context, events ...model.ExerciseEvent) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, ev := range events {
		list := append(j.events[ev.ChatID], ev)
		if len(list) > j.perChat {
			list = list[len(list)-j.perChat:]
		}
		j.events[ev.ChatID] = list
	}
	return nil
}

// ListByChat returns up to limit events, newest first.
func (j *ExerciseJournal) ListByChat(_ context.Context, chatID int64, limit int) ([]model.ExerciseEvent, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	src := j.events[chatID]
	if limit <= 0 || limit > len(src) {
		limit = len(src)
	}
	out := make([]model.ExerciseEvent, 0, limit)
	for i := len(src) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, src[i])
	}
	return out, nil
}
