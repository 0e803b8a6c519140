package usecase

import (
	"strconv"
	"strings"
	"time"

	"tg-bot-italian/internal/domain/model"
)

// Turn is the handler's view of one dispatch: the update, the session's
// working copy and the output collected so far.
type Turn struct {
	Update  model.Update
	Session *model.Session

	now      time.Time
	arg      string
	answered bool
	actions  []model.OutboundAction
	events   []model.ExerciseEvent
}

func (t *Turn) Now() time.Time { return t.now }

// Arg is the optional argument of a callback ("<gen>:<action>:<arg>").
func (t *Turn) Arg() string { return t.arg }

func (t *Turn) Stage() model.Stage { return t.Session.Stage }

func (t *Turn) Transition(to model.Stage) { t.Session.Stage = to }

// NewRound bumps the generation so buttons sent earlier become stale.
func (t *Turn) NewRound() { t.Session.Generation++ }

// CallbackData builds generation-stamped callback data for a button.
func (t *Turn) CallbackData(action string, args ...string) string {
	var b strings.Builder
	b.WriteString(strconv.FormatInt(t.Session.Generation, 10))
	b.WriteByte(':')
	b.WriteString(action)
	if len(args) > 0 {
		b.WriteByte(':')
		b.WriteString(strings.Join(args, ","))
	}
	return b.String()
}

func (t *Turn) Reply(text string) {
	t.Send(model.Content{Text: text})
}

func (t *Turn) ReplyButtons(text string, rows ...[]model.Button) {
	t.Send(model.Content{Text: text, Buttons: rows})
}

// Send queues a message to the update's chat.
func (t *Turn) Send(c model.Content) {
	a := model.NewMessage(t.Update.ChatID, c, t.now)
	a.UpdateID = t.Update.ID
	t.actions = append(t.actions, a)
}

// AnswerCallback acknowledges the callback query of this update. It is a
// no-op for other update kinds and is sent at most once.
func (t *Turn) AnswerCallback(text string) {
	if t.Update.Kind != model.KindCallback || t.answered {
		return
	}
	t.answered = true
	a := model.NewCallbackAnswer(t.Update.ChatID, t.Update.CallbackID, text, t.now)
	a.UpdateID = t.Update.ID
	t.actions = append(t.actions, a)
}

// Record adds an exercise journal event; chat and update ids are filled in.
func (t *Turn) Record(ev model.ExerciseEvent) {
	ev.ChatID = t.Update.ChatID
	ev.UpdateID = t.Update.ID
	if ev.At.IsZero() {
		ev.At = t.now
	}
	t.events = append(t.events, ev)
}

func (t *Turn) Actions() []model.OutboundAction { return t.actions }
