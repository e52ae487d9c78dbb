package domain

// OnboardingState tracks progress through the onboarding questionnaire.
type OnboardingState struct {
	IsComplete bool              `json:"isComplete"`
	Step       int               `json:"step"`
	Answers    map[string]string `json:"answers"`
}

// FreshOnboarding returns the state of a questionnaire that has not started.
func FreshOnboarding() OnboardingState {
	return OnboardingState{Answers: map[string]string{}}
}

// CompletedOnboarding returns the state used when onboarding is skipped.
func CompletedOnboarding() OnboardingState {
	return OnboardingState{IsComplete: true, Answers: map[string]string{}}
}

// Clone returns a deep copy of the state.
func (s OnboardingState) Clone() OnboardingState {
	answers := make(map[string]string, len(s.Answers))
	for k, v := range s.Answers {
		answers[k] = v
	}
	s.Answers = answers
	return s
}

// Session holds the state of one browser tab.
type Session struct {
	ChatHistory           ChatHistory     `json:"chatHistory"`
	OnboardingState       OnboardingState `json:"onboardingState"`
	CurrentConversationID string          `json:"currentConversationId,omitempty"`
}

// NewSession returns an empty guest session.
func NewSession() Session {
	return Session{
		ChatHistory:     ChatHistory{},
		OnboardingState: FreshOnboarding(),
	}
}
