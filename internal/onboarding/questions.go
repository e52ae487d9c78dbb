// Package onboarding implements the fixed-sequence intake questionnaire.
package onboarding

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed questions/*.yaml
var builtinFS embed.FS

const (
	minQuestions = 4
	maxQuestions = 7
)

var (
	// ErrUnknownSet is returned when a named question set is not built in.
	ErrUnknownSet = errors.New("unknown question set")
	// ErrInvalidSet is returned when a question set fails validation.
	ErrInvalidSet = errors.New("invalid question set")
)

// Question is one step of the questionnaire.
type Question struct {
	Key         string `yaml:"key" json:"key"`
	Label       string `yaml:"label" json:"label"`
	Prompt      string `yaml:"prompt" json:"prompt"`
	Placeholder string `yaml:"placeholder" json:"placeholder"`
}

// QuestionSet is a named, ordered list of questions.
type QuestionSet struct {
	Name      string     `yaml:"name"`
	Questions []Question `yaml:"questions"`
}

// Len returns the number of questions.
func (s QuestionSet) Len() int { return len(s.Questions) }

// At returns the question for step, if the step is in range.
func (s QuestionSet) At(step int) (Question, bool) {
	if step < 0 || step >= len(s.Questions) {
		return Question{}, false
	}
	return s.Questions[step], true
}

// Validate checks size bounds and key uniqueness.
func (s QuestionSet) Validate() error {
	if n := len(s.Questions); n < minQuestions || n > maxQuestions {
		return fmt.Errorf("%w: %q has %d questions, want %d-%d", ErrInvalidSet, s.Name, n, minQuestions, maxQuestions)
	}
	seen := make(map[string]bool, len(s.Questions))
	for i, q := range s.Questions {
		if strings.TrimSpace(q.Key) == "" {
			return fmt.Errorf("%w: question %d has no key", ErrInvalidSet, i)
		}
		if strings.TrimSpace(q.Prompt) == "" {
			return fmt.Errorf("%w: question %q has no prompt", ErrInvalidSet, q.Key)
		}
		if seen[q.Key] {
			return fmt.Errorf("%w: duplicate key %q", ErrInvalidSet, q.Key)
		}
		seen[q.Key] = true
	}
	return nil
}

// Builtin returns one of the embedded question sets by name.
func Builtin(name string) (QuestionSet, error) {
	data, err := builtinFS.ReadFile("questions/" + name + ".yaml")
	if err != nil {
		return QuestionSet{}, fmt.Errorf("%w: %s", ErrUnknownSet, name)
	}
	return parse(data)
}

// Load resolves ref as a built-in set name, or else as a YAML file path.
func Load(ref string) (QuestionSet, error) {
	if ref == "" {
		ref = "default"
	}
	if !strings.ContainsAny(ref, `/\.`) {
		return Builtin(ref)
	}
	data, err := os.ReadFile(ref)
	if err != nil {
		return QuestionSet{}, fmt.Errorf("read question set: %w", err)
	}
	return parse(data)
}

func parse(data []byte) (QuestionSet, error) {
	var set QuestionSet
	if err := yaml.Unmarshal(data, &set); err != nil {
		return QuestionSet{}, fmt.Errorf("parse question set: %w", err)
	}
	if err := set.Validate(); err != nil {
		return QuestionSet{}, err
	}
	return set, nil
}
