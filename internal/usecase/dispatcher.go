package usecase

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"tg-bot-italian/internal/domain"
	"tg-bot-italian/internal/domain/model"
	"tg-bot-italian/internal/infra/logging"
	"tg-bot-italian/internal/infra/metrics"
)

// Translator resolves user-facing texts.
type Translator interface {
	T(key string, args ...any) string
}

// HandlerFunc handles one update. It mutates t.Session and queues output on t.
type HandlerFunc func(ctx context.Context, t *Turn) error

type stageRoute struct {
	fn    HandlerFunc
	kinds map[model.UpdateKind]bool
}

// Result is what one dispatch produced.
type Result struct {
	Actions []model.OutboundAction
	Events  []model.ExerciseEvent
	From    model.Stage
	To      model.Stage
	// Outcome is one of "handled", "stale_callback", "unknown_command",
	// "unsupported_kind", "handler_error".
	Outcome string
}

// Dispatcher is the conversation state machine: it routes an update to a
// handler based on callback action, command name or the session's stage.
// Dispatch never fails; handler errors become the error stage plus an apology.
type Dispatcher struct {
	commands  map[string]HandlerFunc
	callbacks map[string]HandlerFunc
	stages    map[model.Stage]stageRoute

	restartOnComplete bool
	texts             Translator
	log               *zerolog.Logger
	now               func() time.Time
}

func NewDispatcher(texts Translator, log *zerolog.Logger) *Dispatcher {
	if log == nil {
		log = logging.Nop()
	}
	return &Dispatcher{
		commands:  make(map[string]HandlerFunc),
		callbacks: make(map[string]HandlerFunc),
		stages:    make(map[model.Stage]stageRoute),
		texts:     texts,
		log:       logging.Component(log, "dispatcher"),
		now:       time.Now,
	}
}

// HandleCommand routes "/name" text updates, regardless of stage.
func (d *Dispatcher) HandleCommand(name string, fn HandlerFunc) {
	d.commands[strings.ToLower(strings.TrimPrefix(name, "/"))] = fn
}

// HandleCallback routes callback presses whose action matches.
func (d *Dispatcher) HandleCallback(action string, fn HandlerFunc) {
	d.callbacks[action] = fn
}

// HandleStage routes non-command updates of the given kinds while the
// session is in stage. Kinds default to text.
func (d *Dispatcher) HandleStage(stage model.Stage, fn HandlerFunc, kinds ...model.UpdateKind) {
	if len(kinds) == 0 {
		kinds = []model.UpdateKind{model.KindText}
	}
	set := make(map[model.UpdateKind]bool, len(kinds))
	for _, k := range kinds {
		set[k] = true
	}
	d.stages[stage] = stageRoute{fn: fn, kinds: set}
}

// RestartOnComplete makes a session that reaches the completed stage return
// to start with a fresh generation in the same turn.
func (d *Dispatcher) RestartOnComplete(v bool) { d.restartOnComplete = v }

// Dispatch computes the next state of sess (mutated in place) and the
// outbound actions for upd.
func (d *Dispatcher) Dispatch(ctx context.Context, sess *model.Session, upd model.Update) Result {
	log := logging.With(ctx, d.log)
	before := sess.Clone()
	turn := &Turn{Update: upd, Session: sess, now: d.now()}
	res := Result{From: before.Stage, Outcome: "handled"}

	fn, outcome := d.route(turn)
	res.Outcome = outcome

	err := d.call(ctx, fn, turn)
	if err != nil {
		kind := "error"
		if errors.Is(err, errPanic) {
			kind = "panic"
		}
		metrics.IncHandlerError(kind)
		log.Error().Err(err).
			Str("stage", string(before.Stage)).
			Str("kind", string(upd.Kind)).
			Str("command", upd.Command()).
			Msg("handler failed")

		*sess = *before
		sess.Stage = model.StageError
		turn = &Turn{Update: upd, Session: sess, now: turn.now}
		turn.Reply(d.texts.T("dispatch.apology"))
		res.Outcome = "handler_error"
	}

	if sess.Stage == model.StageCompleted && before.Stage != model.StageCompleted {
		d.complete(turn)
	}
	if upd.Kind == model.KindCallback && !turn.answered {
		// stop the client's spinner before anything else is delivered
		n := len(turn.actions)
		turn.AnswerCallback("")
		if n > 0 {
			ans := turn.actions[n]
			copy(turn.actions[1:], turn.actions[:n])
			turn.actions[0] = ans
		}
	}

	res.Actions = turn.actions
	res.Events = turn.events
	res.To = sess.Stage
	if res.To != res.From {
		metrics.IncTransition(string(res.From), string(res.To))
		log.Debug().Str("from", string(res.From)).Str("to", string(res.To)).Msg("stage transition")
	}
	return res
}

func (d *Dispatcher) route(t *Turn) (HandlerFunc, string) {
	upd := t.Update
	switch {
	case upd.Kind == model.KindCallback:
		gen, action, arg, ok := parseCallbackData(upd.Payload)
		if !ok || gen != t.Session.Generation {
			return d.staleCallback, "stale_callback"
		}
		t.arg = arg
		if fn, ok := d.callbacks[action]; ok {
			return fn, "handled"
		}
		return d.unsupported, "unsupported_kind"

	case upd.IsCommand():
		if fn, ok := d.commands[upd.Command()]; ok {
			return fn, "handled"
		}
		return d.unknownCommand, "unknown_command"
	}

	if r, ok := d.stages[t.Session.Stage]; ok && r.kinds[upd.Kind] {
		return r.fn, "handled"
	}
	return d.unsupported, "unsupported_kind"
}

var errPanic = errors.New("handler panicked")

func (d *Dispatcher) call(ctx context.Context, fn HandlerFunc, t *Turn) (err error) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error().Bytes("stack", debug.Stack()).Msg("recovered handler panic")
			err = fmt.Errorf("%w: %w: %v", domain.ErrHandlerFailed, errPanic, r)
		}
	}()
	if err := fn(ctx, t); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrHandlerFailed, err)
	}
	return nil
}

func (d *Dispatcher) staleCallback(_ context.Context, t *Turn) error {
	metrics.IncStaleCallback()
	t.AnswerCallback(d.texts.T("dispatch.stale_callback"))
	return nil
}

func (d *Dispatcher) unknownCommand(_ context.Context, t *Turn) error {
	t.Reply(d.texts.T("dispatch.unknown_command"))
	return nil
}

func (d *Dispatcher) unsupported(_ context.Context, t *Turn) error {
	t.Transition(model.StageError)
	t.Reply(d.texts.T("dispatch.clarify"))
	return nil
}

func (d *Dispatcher) complete(t *Turn) {
	if !d.restartOnComplete {
		return
	}
	t.Session.Reset()
	t.NewRound()
}

// parseCallbackData splits "<generation>:<action>[:<arg>]".
func parseCallbackData(data string) (gen int64, action, arg string, ok bool) {
	parts := strings.SplitN(data, ":", 3)
	if len(parts) < 2 || parts[1] == "" {
		return 0, "", "", false
	}
	gen, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, "", "", false
	}
	if len(parts) == 3 {
		arg = parts[2]
	}
	return gen, parts[1], arg, true
}
