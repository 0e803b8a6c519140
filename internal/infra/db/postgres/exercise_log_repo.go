package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"tg-bot-italian/internal/domain/model"
	"tg-bot-italian/internal/domain/ports/repository"
)

var _ repository.ExerciseJournal = (*ExerciseLogRepo)(nil)

type ExerciseLogRepo struct {
	pool *pgxpool.Pool
}

func NewExerciseLogRepo(pool *pgxpool.Pool) *ExerciseLogRepo {
	return &ExerciseLogRepo{pool: pool}
}

const qInsertEvent = `
INSERT INTO exercise_events (chat_id, update_id, type, qid, direction, sentence, answer, reply, correct, at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10);`

// Append writes all events in one batch.
func (r *ExerciseLogRepo) Append(ctx context.Context, events ...model.ExerciseEvent) error {
	if len(events) == 0 {
		return nil
	}
	b := &pgx.Batch{}
	for _, e := range events {
		b.Queue(qInsertEvent, e.ChatID, e.UpdateID, string(e.Type), e.QuestionID, string(e.Direction),
			e.Sentence, e.Answer, e.Reply, e.Correct, e.At)
	}
	br := r.pool.SendBatch(ctx, b)
	defer br.Close()
	for range events {
		if _, err := br.Exec(); err != nil {
			return storeErr("journal_append", err)
		}
	}
	return nil
}

func (r *ExerciseLogRepo) ListByChat(ctx context.Context, chatID int64, limit int) ([]model.ExerciseEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
SELECT chat_id, update_id, type, qid, direction, sentence, answer, reply, correct, at
FROM exercise_events WHERE chat_id = $1
ORDER BY at DESC, id DESC LIMIT $2;`, chatID, limit)
	if err != nil {
		return nil, storeErr("journal_list", err)
	}
	defer rows.Close()

	var out []model.ExerciseEvent
	for rows.Next() {
		var (
			e              model.ExerciseEvent
			typ, direction string
		)
		if err := rows.Scan(&e.ChatID, &e.UpdateID, &typ, &e.QuestionID, &direction,
			&e.Sentence, &e.Answer, &e.Reply, &e.Correct, &e.At); err != nil {
			return nil, fmt.Errorf("scan exercise event: %w", err)
		}
		e.Type = model.ExerciseEventType(typ)
		e.Direction = model.Direction(direction)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("journal_list", err)
	}
	return out, nil
}
