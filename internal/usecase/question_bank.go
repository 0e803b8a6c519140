package usecase

import (
	"bufio"
	"bytes"
	"embed"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"strings"

	"github.com/google/uuid"

	"tg-bot-italian/internal/domain/model"
)

//go:embed data/questions.txt data/answers.txt
var defaultData embed.FS

type Question struct {
	ID        string
	Direction model.Direction
	Sentence  string
}

// QuestionBank holds the sentences to translate and the canned replies used
// when no evaluation is available.
type QuestionBank struct {
	questions []Question
	replies   []string
	pick      func(n int) int
}

// ParseQuestions reads "IT|sentence" / "EN|sentence" lines. A line without a
// direction is English. Blank lines and "#" comments are skipped.
func ParseQuestions(r io.Reader) ([]Question, error) {
	var out []Question
	for _, line := range readLines(r) {
		dir, sentence := model.DirectionEnglish, line
		if head, tail, ok := strings.Cut(line, "|"); ok {
			dir = model.Direction(strings.ToUpper(strings.TrimSpace(head)))
			sentence = strings.TrimSpace(tail)
		}
		if dir != model.DirectionItalian && dir != model.DirectionEnglish {
			return nil, fmt.Errorf("unknown direction %q in %q", dir, line)
		}
		if sentence == "" {
			continue
		}
		out = append(out, Question{Direction: dir, Sentence: sentence})
	}
	return out, nil
}

func readLines(r io.Reader) []string {
	var out []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out
}

func NewQuestionBank(questions []Question, replies []string) *QuestionBank {
	return &QuestionBank{questions: questions, replies: replies, pick: rand.IntN}
}

// LoadQuestionBank reads the given files; an empty path selects the built-in list.
func LoadQuestionBank(questionsPath, answersPath string) (*QuestionBank, error) {
	qb, err := readSource(questionsPath, "data/questions.txt")
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	questions, err := ParseQuestions(bytes.NewReader(qb))
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	ab, err := readSource(answersPath, "data/answers.txt")
	if err != nil {
		return nil, fmt.Errorf("load answers: %w", err)
	}
	return NewQuestionBank(questions, readLines(bytes.NewReader(ab))), nil
}

func readSource(path, builtin string) ([]byte, error) {
	if path == "" {
		return defaultData.ReadFile(builtin)
	}
	return os.ReadFile(path)
}

func (b *QuestionBank) Len() int { return len(b.questions) }

// Next returns a random question with a fresh id.
func (b *QuestionBank) Next() (Question, bool) {
	if len(b.questions) == 0 {
		return Question{}, false
	}
	q := b.questions[b.pick(len(b.questions))]
	q.ID = uuid.NewString()
	return q, true
}

// Reply returns a random canned reply.
func (b *QuestionBank) Reply() string {
	if len(b.replies) == 0 {
		return "Thanks!"
	}
	return b.replies[b.pick(len(b.replies))]
}
