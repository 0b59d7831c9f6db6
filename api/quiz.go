package api

import "github.com/google/uuid"

// Limits enforced on quiz files and on player input.
const (
	MaxNicknameLength  = 20
	MaxQuestionLength  = 200
	MaxChoiceLength    = 200
	MaxCodeLength      = 400
	MaxChoicesPerQuest = 4
	MinChoicesPerQuest = 1
	DefaultListenAddr  = ":8080"
)

// Color is one of the seven named player colors.
type Color string

const (
	ColorRed     Color = "red"
	ColorOrange  Color = "orange"
	ColorYellow  Color = "yellow"
	ColorGreen   Color = "green"
	ColorBlue    Color = "blue"
	ColorMagenta Color = "magenta"
	ColorCyan    Color = "cyan"
)

var Colors = []Color{
	ColorRed, ColorOrange, ColorYellow, ColorGreen,
	ColorBlue, ColorMagenta, ColorCyan,
}

// Valid reports whether c names one of the seven colors.
func (c Color) Valid() bool {
	for _, known := range Colors {
		if c == known {
			return true
		}
	}
	return false
}

// PlayerData identifies one student. The uuid is chosen client-side before
// the handshake; the server binds it to a single session for its lifetime.
type PlayerData struct {
	UUID     uuid.UUID `json:"uuid"`
	Nickname string    `json:"nickname"`
	Color    Color     `json:"color"`
}

// Choice is one selectable answer. Ids are assigned server-side at load so
// that shuffling the choice order is safe on the wire.
type Choice struct {
	ID      string `json:"id"      yaml:"-"`
	Text    string `json:"text"    yaml:"text"`
	Correct bool   `json:"correct" yaml:"correct"`
}

// ChoiceCensored is a Choice with the correctness flag stripped.
type ChoiceCensored struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// CodeBlock is an optional snippet rendered alongside a question.
type CodeBlock struct {
	Language string `json:"language" yaml:"language"`
	Code     string `json:"code"     yaml:"code"`
}

// Question is the full, uncensored form. It is only sent to students after
// the question has ended.
type Question struct {
	Text        string     `json:"text"                yaml:"question"`
	Code        *CodeBlock `json:"code,omitempty"      yaml:"code"`
	TimeSeconds int        `json:"timeSeconds"         yaml:"time_seconds"`
	Multichoice bool       `json:"multichoice"         yaml:"multichoice"`
	Choices     []Choice   `json:"choices"             yaml:"choices"`
}

// QuestionCensored is what students receive while a question is active.
type QuestionCensored struct {
	Text        string           `json:"text"`
	Code        *CodeBlock       `json:"code,omitempty"`
	TimeSeconds int              `json:"timeSeconds"`
	Multichoice bool             `json:"multichoice"`
	Choices     []ChoiceCensored `json:"choices"`
}

// Censored strips the correctness flags off every choice.
func (q Question) Censored() QuestionCensored {
	choices := make([]ChoiceCensored, 0, len(q.Choices))
	for _, c := range q.Choices {
		choices = append(choices, ChoiceCensored{ID: c.ID, Text: c.Text})
	}
	return QuestionCensored{
		Text:        q.Text,
		Code:        q.Code,
		TimeSeconds: q.TimeSeconds,
		Multichoice: q.Multichoice,
		Choices:     choices,
	}
}

// CorrectChoiceIDs returns the set of correct choice ids.
func (q Question) CorrectChoiceIDs() map[string]struct{} {
	ids := make(map[string]struct{})
	for _, c := range q.Choices {
		if c.Correct {
			ids[c.ID] = struct{}{}
		}
	}
	return ids
}

// QuestionSet is the fixed, validated quiz consumed by the engine.
// Randomization, if requested in the quiz file, has already been applied;
// the order never changes for the lifetime of a lobby.
type QuestionSet struct {
	Name      string     `json:"name"`
	Questions []Question `json:"questions"`
}
