package usecase

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"tg-bot-italian/internal/domain/model"
	"tg-bot-italian/internal/domain/ports/adapter"
	"tg-bot-italian/internal/infra/logging"
)

// session context keys
const (
	keyQuestionID = "qid"
	keyDirection  = "direction"
	keySentence   = "sentence"
	keyAnswered   = "answered"
	keyJudged     = "judged"
	keyCorrect    = "correct"
)

// callback actions
const (
	actionNext = "next"
	actionStop = "stop"
)

// evalReserve is kept free of the processing deadline so the session can
// still be committed after a slow evaluation.
const evalReserve = time.Second

// Tutor is the translation-exercise handler set.
type Tutor struct {
	bank       *QuestionBank
	eval       adapter.Evaluator
	texts      Translator
	lessonSize int
	log        *zerolog.Logger
}

func NewTutor(bank *QuestionBank, eval adapter.Evaluator, texts Translator, lessonSize int, log *zerolog.Logger) *Tutor {
	if lessonSize <= 0 {
		lessonSize = 5
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Tutor{bank: bank, eval: eval, texts: texts, lessonSize: lessonSize, log: logging.Component(log, "tutor")}
}

// Register wires the tutor's routes into d.
func (tu *Tutor) Register(d *Dispatcher) {
	d.HandleCommand("start", tu.start)
	d.HandleCommand("ask", tu.ask)
	d.HandleCommand("help", tu.help)
	d.HandleCommand("stop", tu.stop)

	d.HandleCallback(actionNext, tu.next)
	d.HandleCallback(actionStop, tu.stop)

	d.HandleStage(model.StageStart, tu.hint("tutor.hint_start"))
	d.HandleStage(model.StageAwaitingInput, tu.answer)
	d.HandleStage(model.StageInProgress, tu.hint("tutor.hint_in_progress"))
	d.HandleStage(model.StageCompleted, tu.hint("tutor.hint_completed"))
	d.HandleStage(model.StageError, tu.restart, model.KindText, model.KindEditedMessage, model.KindOther)
}

func (tu *Tutor) start(_ context.Context, t *Turn) error {
	t.Session.Reset()
	tu.askQuestion(t, true)
	return nil
}

func (tu *Tutor) ask(_ context.Context, t *Turn) error {
	if t.Stage() == model.StageCompleted || t.Stage() == model.StageError {
		t.Session.Reset()
	}
	tu.askQuestion(t, false)
	return nil
}

func (tu *Tutor) help(_ context.Context, t *Turn) error {
	t.Reply(tu.texts.T("tutor.help"))
	return nil
}

func (tu *Tutor) stop(_ context.Context, t *Turn) error {
	switch t.Stage() {
	case model.StageAwaitingInput, model.StageInProgress:
		t.AnswerCallback("")
		tu.finish(t)
	default:
		t.AnswerCallback(tu.texts.T("tutor.hint_start"))
		if t.Update.Kind != model.KindCallback {
			t.Reply(tu.texts.T("tutor.hint_start"))
		}
	}
	return nil
}

func (tu *Tutor) next(_ context.Context, t *Turn) error {
	if t.Stage() != model.StageInProgress {
		t.AnswerCallback(tu.texts.T("tutor.hint_start"))
		return nil
	}
	t.AnswerCallback("")
	tu.askQuestion(t, false)
	return nil
}

func (tu *Tutor) hint(key string) HandlerFunc {
	return func(_ context.Context, t *Turn) error {
		if t.Stage() == model.StageInProgress {
			t.ReplyButtons(tu.texts.T(key), tu.navigation(t))
			return nil
		}
		t.Reply(tu.texts.T(key))
		return nil
	}
}

func (tu *Tutor) restart(_ context.Context, t *Turn) error {
	t.Session.Reset()
	t.Reply(tu.texts.T("tutor.recovered"))
	return nil
}

func (tu *Tutor) askQuestion(t *Turn, welcome bool) {
	q, ok := tu.bank.Next()
	if !ok {
		t.Reply(tu.texts.T("tutor.no_questions"))
		return
	}
	t.NewRound()
	t.Session.Set(keyQuestionID, q.ID)
	t.Session.Set(keyDirection, string(q.Direction))
	t.Session.Set(keySentence, q.Sentence)

	key := "tutor.question_en"
	if q.Direction == model.DirectionItalian {
		key = "tutor.question_it"
	}
	text := tu.texts.T(key, q.Sentence)
	if welcome {
		text = tu.texts.T("tutor.welcome", text)
	}
	t.Send(model.Content{Text: text, ForceReply: true})
	t.Record(model.ExerciseEvent{
		Type:       model.EventAsked,
		QuestionID: q.ID,
		Direction:  q.Direction,
		Sentence:   q.Sentence,
	})
	t.Transition(model.StageAwaitingInput)
}

func (tu *Tutor) answer(ctx context.Context, t *Turn) error {
	answer := strings.TrimSpace(t.Update.Payload)
	req := adapter.EvaluationRequest{
		QuestionID: t.Session.Get(keyQuestionID),
		Direction:  model.Direction(t.Session.Get(keyDirection)),
		Source:     t.Session.Get(keySentence),
		Answer:     answer,
	}

	evalCtx, cancel := evaluationContext(ctx)
	defer cancel()

	var feedback string
	ev, err := tu.eval.Evaluate(evalCtx, req)
	if err != nil {
		logging.With(ctx, tu.log).Warn().Err(err).Str("qid", req.QuestionID).Msg("evaluation failed, using canned reply")
		feedback = tu.texts.T("tutor.feedback_fallback", tu.bank.Reply())
	} else {
		feedback = tu.texts.T("tutor.feedback", ev.Feedback)
	}

	incr(t.Session, keyAnswered)
	if err == nil && ev.Correct != nil {
		incr(t.Session, keyJudged)
		if *ev.Correct {
			incr(t.Session, keyCorrect)
		}
	}

	t.Record(model.ExerciseEvent{
		Type:       model.EventAnswered,
		QuestionID: req.QuestionID,
		Direction:  req.Direction,
		Sentence:   req.Source,
		Answer:     answer,
		Reply:      feedback,
		Correct:    ev.Correct,
	})
	delete(t.Session.Context, keyQuestionID)
	delete(t.Session.Context, keyDirection)
	delete(t.Session.Context, keySentence)

	reply := model.Content{Text: feedback, ReplyToMessageID: t.Update.MessageID}
	if count(t.Session, keyAnswered) >= tu.lessonSize {
		t.Send(reply)
		tu.finish(t)
		return nil
	}
	reply.Buttons = [][]model.Button{tu.navigation(t)}
	t.Send(reply)
	t.Transition(model.StageInProgress)
	return nil
}

func (tu *Tutor) finish(t *Turn) {
	answered := count(t.Session, keyAnswered)
	if judged := count(t.Session, keyJudged); judged > 0 {
		t.Reply(tu.texts.T("tutor.summary", count(t.Session, keyCorrect), judged))
	} else {
		t.Reply(tu.texts.T("tutor.summary_plain", answered))
	}
	t.Transition(model.StageCompleted)
}

func (tu *Tutor) navigation(t *Turn) []model.Button {
	return []model.Button{
		{Text: tu.texts.T("tutor.btn_next"), Data: t.CallbackData(actionNext)},
		{Text: tu.texts.T("tutor.btn_stop"), Data: t.CallbackData(actionStop)},
	}
}

func evaluationContext(ctx context.Context) (context.Context, context.CancelFunc) {
	dl, ok := ctx.Deadline()
	if !ok {
		return context.WithCancel(ctx)
	}
	reserve := evalReserve
	if remaining := time.Until(dl); remaining < 2*reserve {
		reserve = remaining / 2
	}
	return context.WithDeadline(ctx, dl.Add(-reserve))
}

func count(s *model.Session, key string) int {
	n, _ := strconv.Atoi(s.Get(key))
	return n
}

func incr(s *model.Session, key string) {
	s.Set(key, strconv.Itoa(count(s, key)+1))
}
