package evaluator

import (
	"fmt"
	"strings"

	"tg-bot-italian/internal/domain/ports/adapter"
)

const temperature = 0.1

func buildPrompt(req adapter.EvaluationRequest) string {
	target := targetLanguage(req.Direction)
	return fmt.Sprintf(`You are a strict bilingual tutor. Please evaluate the user's translation of the source sentence.

Direction: %s
Source: %q
User: %q

RULES:
- The correct translation MUST be in %s
- Output MUST follow the format exactly
- No extra paragraphs, no headings, no blank lines
- Do not add anything before "Verdict:"
- Verdict is CORRECT if meaning is faithful and grammatical enough to be understood.

OUTPUT FORMAT (EXACT):
Verdict: CORRECT or WRONG
Correct translation: <one sentence in %s>
Feedback:
- <bullet 1>
- <bullet 2 (optional)>
`, directionLabel(req.Direction), req.Source, req.Answer, target, target)
}

// parseReply keeps the whole reply as feedback and lifts out the verdict and
// the suggested translation when the model followed the format.
func parseReply(text string) adapter.Evaluation {
	text = strings.TrimSpace(strings.Trim(strings.TrimSpace(text), "`"))
	ev := adapter.Evaluation{Feedback: text}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "verdict":
			switch strings.ToUpper(strings.Trim(value, "*. ")) {
			case "CORRECT":
				v := true
				ev.Correct = &v
			case "WRONG", "INCORRECT":
				v := false
				ev.Correct = &v
			}
		case "correct translation":
			ev.CorrectTranslation = value
		}
	}
	return ev
}
