package api

import "github.com/google/uuid"

// TryJoinRequestData opens the two-step handshake: the client proves it is
// reachable under an id before committing a nickname and color.
type TryJoinRequestData struct {
	UUID uuid.UUID `json:"uuid"`
}

type JoinRequestData struct {
	Player PlayerData `json:"playerData"`
}

type AnswerSelectedRequestData struct {
	PlayerUUID    uuid.UUID `json:"playerUuid"`
	QuestionIndex int       `json:"questionIndex"`
	Answers       []string  `json:"answers"`
}

type EmptyRequestData struct{}

// TryJoinResponseData replies to the pre-handshake. A zero Reason with
// CanJoin=true means the client may proceed to join.
type TryJoinResponseData struct {
	UUID     uuid.UUID `json:"uuid"`
	CanJoin  bool      `json:"canJoin"`
	Reason   string    `json:"reason,omitempty"`
	QuizName string    `json:"quizName"`
}

type JoinResponseData struct {
	UUID     uuid.UUID    `json:"uuid"`
	CanJoin  bool         `json:"canJoin"`
	Reason   string       `json:"reason,omitempty"`
	QuizName string       `json:"quizName"`
	Players  []PlayerData `json:"players"`
}

// PlayersUpdateData carries the full roster, ordered by join time.
type PlayersUpdateData struct {
	Players []PlayerData `json:"players"`
}

type NextQuestionData struct {
	QuestionIndex  int `json:"questionIndex"`
	QuestionsCount int `json:"questionsCount"`
	// ShowChoicesAfter is the reading time in seconds before clients
	// reveal the answer choices.
	ShowChoicesAfter int              `json:"showChoicesAfter"`
	Question         QuestionCensored `json:"question"`
}

type QuestionUpdateData struct {
	QuestionIndex        int `json:"questionIndex"`
	PlayersAnsweredCount int `json:"playersAnsweredCount"`
}

type ChoiceStats struct {
	PlayersAnsweredCount int `json:"playersAnsweredCount"`
}

// QuestionEndedData reveals the full question. PlayerAnswer is nil for
// players who never answered and for the teacher.
type QuestionEndedData struct {
	QuestionIndex int                    `json:"questionIndex"`
	Question      Question               `json:"question"`
	PlayerAnswer  []string               `json:"playerAnswer,omitempty"`
	Stats         map[string]ChoiceStats `json:"stats"`
}

type LeaderboardEntry struct {
	Player PlayerData `json:"player"`
	Score  int        `json:"score"`
}

type ShowLeaderboardData struct {
	Players       []LeaderboardEntry `json:"players"`
	WasFinalRound bool               `json:"wasFinalRound"`
}

type TeacherDisconnectedData struct{}

type EmptyResponseData struct{}

type ErrorResponseData struct {
	Request RequestType `json:"request,omitempty"`
	Message string      `json:"message"`
}
