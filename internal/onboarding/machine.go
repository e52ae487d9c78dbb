package onboarding

import (
	"strings"
	"unicode"

	"github.com/unigo-labs/unigo-chat/internal/domain"
)

const (
	resetPhrase        = "추천시작"
	resetPhraseSpaced  = "추천 시작"
	defaultPlaceholder = "답변을 입력하세요..."
)

// IsResetTrigger reports whether text asks to restart the questionnaire.
func IsResetTrigger(text string) bool {
	compact := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, text)
	return compact == resetPhrase || strings.Contains(text, resetPhraseSpaced)
}

// Pending returns the question awaiting an answer. ok is false once the
// questionnaire is complete or the step ran past the end.
func Pending(state domain.OnboardingState, set QuestionSet) (Question, bool) {
	if state.IsComplete {
		return Question{}, false
	}
	return set.At(state.Step)
}

// Record stores answer for the pending step and advances it. done reports
// that the final answer was recorded; the caller marks completion once the
// recommendation request is issued.
func Record(state domain.OnboardingState, set QuestionSet, answer string) (next domain.OnboardingState, done bool) {
	next = state.Clone()
	q, ok := set.At(next.Step)
	if !ok {
		return next, true
	}
	next.Answers[q.Key] = answer
	next.Step++
	return next, next.Step >= set.Len()
}

// NeedsPrompt reports whether q's prompt must be shown. A reload resumes on
// the same step, so the prompt is skipped if it is already the last thing the
// assistant said.
func NeedsPrompt(history domain.ChatHistory, q Question) bool {
	last, ok := history.LastAssistant()
	return !ok || last.Content != q.Prompt
}

// Placeholder returns the input hint for q.
func Placeholder(q Question) string {
	if q.Placeholder == "" {
		return defaultPlaceholder
	}
	return q.Placeholder
}
