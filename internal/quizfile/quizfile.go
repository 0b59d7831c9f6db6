// Package quizfile loads and validates YAML quiz definitions and produces
// the immutable QuestionSet consumed by the lobby engine.
//
// Choice ids are assigned here, server-side, so that shuffled choice order
// is safe on the wire. Randomization of question and choice order happens
// exactly once, at load; the resulting order is fixed for the lobby's
// lifetime.
package quizfile

import (
	"fmt"
	"math/rand"
	"os"
	"strings"
	"unicode/utf8"

	"classquiz-backend/api"

	"github.com/lithammer/shortuuid/v3"
	"gopkg.in/yaml.v3"
)

// File mirrors the on-disk YAML schema.
type File struct {
	Name               string         `yaml:"name"`
	RandomizeQuestions bool           `yaml:"randomize_questions"`
	RandomizeAnswers   bool           `yaml:"randomize_answers"`
	Questions          []api.Question `yaml:"questions"`
}

// Load reads, validates and finalizes the quiz file at path.
func Load(path string) (api.QuestionSet, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return api.QuestionSet{}, fmt.Errorf("read quiz file: %w", err)
	}
	return Parse(raw)
}

// Parse builds a QuestionSet from raw YAML.
func Parse(raw []byte) (api.QuestionSet, error) {
	var file File
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return api.QuestionSet{}, fmt.Errorf("parse quiz file: %w", err)
	}
	if err := validate(file); err != nil {
		return api.QuestionSet{}, err
	}

	for i := range file.Questions {
		for j := range file.Questions[i].Choices {
			file.Questions[i].Choices[j].ID = shortuuid.New()
		}
	}

	if file.RandomizeQuestions {
		rand.Shuffle(len(file.Questions), func(i, j int) {
			file.Questions[i], file.Questions[j] = file.Questions[j], file.Questions[i]
		})
	}
	if file.RandomizeAnswers {
		for i := range file.Questions {
			choices := file.Questions[i].Choices
			rand.Shuffle(len(choices), func(a, b int) {
				choices[a], choices[b] = choices[b], choices[a]
			})
		}
	}

	return api.QuestionSet{
		Name:      file.Name,
		Questions: file.Questions,
	}, nil
}

func validate(file File) error {
	if strings.TrimSpace(file.Name) == "" {
		return fmt.Errorf("quiz has no name")
	}
	if len(file.Questions) == 0 {
		return fmt.Errorf("quiz %q has no questions", file.Name)
	}
	for i, q := range file.Questions {
		if err := validateQuestion(q); err != nil {
			return fmt.Errorf("question %d: %w", i, err)
		}
	}
	return nil
}

func validateQuestion(q api.Question) error {
	if strings.TrimSpace(q.Text) == "" {
		return fmt.Errorf("missing text")
	}
	if utf8.RuneCountInString(q.Text) > api.MaxQuestionLength {
		return fmt.Errorf("text exceeds %d characters", api.MaxQuestionLength)
	}
	if q.Code != nil && utf8.RuneCountInString(q.Code.Code) > api.MaxCodeLength {
		return fmt.Errorf("code block exceeds %d characters", api.MaxCodeLength)
	}
	if q.TimeSeconds <= 0 {
		return fmt.Errorf("time_seconds must be positive")
	}
	if len(q.Choices) < api.MinChoicesPerQuest || len(q.Choices) > api.MaxChoicesPerQuest {
		return fmt.Errorf("must have between %d and %d choices",
			api.MinChoicesPerQuest, api.MaxChoicesPerQuest)
	}

	anyCorrect := false
	for j, c := range q.Choices {
		if strings.TrimSpace(c.Text) == "" {
			return fmt.Errorf("choice %d: missing text", j)
		}
		if utf8.RuneCountInString(c.Text) > api.MaxChoiceLength {
			return fmt.Errorf("choice %d: text exceeds %d characters", j, api.MaxChoiceLength)
		}
		if c.Correct {
			anyCorrect = true
		}
	}
	if !anyCorrect {
		return fmt.Errorf("no correct choice")
	}
	return nil
}
