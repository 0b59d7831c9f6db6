package quiz

import (
	"errors"

	"classquiz-backend/api"

	"github.com/google/uuid"
)

var (
	// ErrStopped is returned when the lobby engine is no longer running.
	ErrStopped = errors.New("lobby stopped")

	// ErrTeacherAlreadyRegistered guards the one-shot teacher handle.
	ErrTeacherAlreadyRegistered = errors.New("teacher already registered")

	// ErrNotJoined rejects events from ids that are not part of the lobby.
	ErrNotJoined = errors.New("player is not part of this lobby")

	// ErrWrongQuestion rejects answers targeting a question that is not
	// the one currently active.
	ErrWrongQuestion = errors.New("answer is for a different question")

	// ErrAlreadyAnswered rejects a second answer on the same question.
	ErrAlreadyAnswered = errors.New("question already answered")

	// ErrSingleChoice rejects multiple selections on single-choice questions.
	ErrSingleChoice = errors.New("multiple answers on a single-choice question")

	// ErrWrongPhase rejects a control event illegal in the current phase.
	ErrWrongPhase = errors.New("operation not allowed in current phase")
)

// TryJoinResult answers the pre-handshake.
type TryJoinResult struct {
	CanJoin  bool
	Reason   string
	QuizName string
}

// JoinResult answers the join commit. Players carries the roster in join
// order when CanJoin is true.
type JoinResult struct {
	CanJoin  bool
	Reason   string
	QuizName string
	Players  []api.PlayerData
}

// Snapshot is a read-only view of the engine state.
type Snapshot struct {
	Phase       Phase
	PlayerCount int
	Locked      bool
}

// event is a message posted to the engine inbox. Request/reply events carry
// a buffered reply channel the engine writes exactly once.
type event any

type registerTeacherEvent struct {
	reply chan registerTeacherResult
}

type registerTeacherResult struct {
	teacher *Teacher
	err     error
}

type setLockEvent struct {
	locked bool
	reply  chan struct{}
}

type tryJoinEvent struct {
	id    uuid.UUID
	reply chan TryJoinResult
}

type joinEvent struct {
	player api.PlayerData
	peer   Peer
	reply  chan JoinResult
}

type answerEvent struct {
	id        uuid.UUID
	index     int
	choiceIDs []string
	reply     chan error
}

type startQuestionEvent struct {
	reply chan error
}

// endQuestionEvent is posted by the teacher, by the per-question timer, or
// synthesized when the last player answers. reply is nil for timer posts.
type endQuestionEvent struct {
	index int
	reply chan error
}

type switchLeaderboardEvent struct {
	reply chan error
}

type kickEvent struct {
	id     uuid.UUID
	reason string
	reply  chan error
}

type disconnectEvent struct {
	id uuid.UUID
}

type snapshotEvent struct {
	reply chan Snapshot
}

type teacherLeaveEvent struct{}

type stopEvent struct{}
