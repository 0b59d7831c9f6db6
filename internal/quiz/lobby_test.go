package quiz_test

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"classquiz-backend/api"
	"classquiz-backend/internal/quiz"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// fakePeer records engine fan-out without any socket underneath.
type fakePeer struct {
	msgs    chan any
	stopped chan string
}

func newFakePeer() *fakePeer {
	return &fakePeer{
		msgs:    make(chan any, 64),
		stopped: make(chan string, 1),
	}
}

func (p *fakePeer) Send(v any) bool {
	select {
	case p.msgs <- v:
		return true
	default:
		return false
	}
}

func (p *fakePeer) Stop(reason string) {
	select {
	case p.stopped <- reason:
	default:
	}
}

func testQuiz() api.QuestionSet {
	return api.QuestionSet{
		Name: "Go Basics",
		Questions: []api.Question{
			{
				Text:        "What does the go keyword do?",
				TimeSeconds: 10,
				Choices: []api.Choice{
					{ID: "a1", Text: "Starts a goroutine", Correct: true},
					{ID: "a2", Text: "Blocks the caller"},
					{ID: "a3", Text: "Panics"},
				},
			},
			{
				Text:        "Which of these types are comparable?",
				TimeSeconds: 10,
				Multichoice: true,
				Choices: []api.Choice{
					{ID: "b1", Text: "string", Correct: true},
					{ID: "b2", Text: "array", Correct: true},
					{ID: "b3", Text: "slice"},
				},
			},
		},
	}
}

func newTestLobby(t *testing.T) (*quiz.Lobby, *quiz.Teacher, *clock.Mock) {
	t.Helper()

	clk := clock.NewMock()
	clk.Set(time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))

	lobby := quiz.NewLobby(quiz.Options{
		Quiz:   testQuiz(),
		Clock:  clk,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	go lobby.Run()

	teacher, err := lobby.RegisterTeacher()
	require.NoError(t, err)
	t.Cleanup(teacher.Stop)

	return lobby, teacher, clk
}

// join runs the full two-step handshake for a player.
func join(t *testing.T, lobby *quiz.Lobby, id uuid.UUID, nickname string) *fakePeer {
	t.Helper()

	try, err := lobby.TryJoin(id)
	require.NoError(t, err)
	require.True(t, try.CanJoin, "tryJoin refused: %s", try.Reason)

	peer := newFakePeer()
	res, err := lobby.Join(api.PlayerData{UUID: id, Nickname: nickname, Color: api.ColorRed}, peer)
	require.NoError(t, err)
	require.True(t, res.CanJoin, "join refused: %s", res.Reason)

	return peer
}

// recv expects the next fan-out message for peer to be a response of the
// given type and returns its payload.
func recv[T any](t *testing.T, peer *fakePeer, want api.ResponseType) T {
	t.Helper()

	select {
	case v := <-peer.msgs:
		res, ok := v.(*api.Response[T])
		if !ok {
			t.Fatalf("unexpected message %T (want %q)", v, want)
		}
		if res.Type != want {
			t.Fatalf("unexpected response type %q, want %q", res.Type, want)
		}
		return res.Data
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for %q", want)
	}
	panic("unreachable")
}

// teacherRecv scans the teacher event stream for a response of type want.
func teacherRecv[T any](t *testing.T, teacher *quiz.Teacher, want api.ResponseType) T {
	t.Helper()

	deadline := time.After(time.Second)
	for {
		select {
		case v := <-teacher.Events():
			if res, ok := v.(*api.Response[T]); ok && res.Type == want {
				return res.Data
			}
		case <-deadline:
			t.Fatalf("timed out waiting for teacher %q", want)
		}
	}
}

func TestJoinHandshake(t *testing.T) {
	lobby, _, _ := newTestLobby(t)

	id := uuid.New()
	try, err := lobby.TryJoin(id)
	require.NoError(t, err)
	require.True(t, try.CanJoin)
	require.Equal(t, "Go Basics", try.QuizName)

	peer := newFakePeer()
	res, err := lobby.Join(api.PlayerData{UUID: id, Nickname: "alice", Color: api.ColorRed}, peer)
	require.NoError(t, err)
	require.True(t, res.CanJoin)
	require.Len(t, res.Players, 1)
	require.Equal(t, "alice", res.Players[0].Nickname)

	snap, err := lobby.Snapshot()
	require.NoError(t, err)
	require.Equal(t, 1, snap.PlayerCount)
	require.Equal(t, quiz.PhaseWaitingForPlayers, snap.Phase.Kind)
}

func TestTryJoinLockedLobby(t *testing.T) {
	clk := clock.NewMock()
	lobby := quiz.NewLobby(quiz.Options{
		Quiz:   testQuiz(),
		Clock:  clk,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	go lobby.Run()

	// No teacher registered yet: the lobby is locked.
	try, err := lobby.TryJoin(uuid.New())
	require.NoError(t, err)
	require.False(t, try.CanJoin)
	require.Equal(t, api.ReasonLobbyLocked, try.Reason)

	teacher, err := lobby.RegisterTeacher()
	require.NoError(t, err)
	defer teacher.Stop()

	try, err = lobby.TryJoin(uuid.New())
	require.NoError(t, err)
	require.True(t, try.CanJoin)

	// Locking again refuses new handshakes.
	require.NoError(t, teacher.SetLock(true))
	try, err = lobby.TryJoin(uuid.New())
	require.NoError(t, err)
	require.Equal(t, api.ReasonLobbyLocked, try.Reason)
}

func TestJoinWithoutTryJoin(t *testing.T) {
	lobby, _, _ := newTestLobby(t)

	res, err := lobby.Join(api.PlayerData{UUID: uuid.New(), Nickname: "alice", Color: api.ColorRed}, newFakePeer())
	require.NoError(t, err)
	require.False(t, res.CanJoin)
	require.Equal(t, api.ReasonNotInWaitingList, res.Reason)
}

func TestNicknameCollision(t *testing.T) {
	lobby, _, _ := newTestLobby(t)

	join(t, lobby, uuid.New(), "bob")

	id := uuid.New()
	_, err := lobby.TryJoin(id)
	require.NoError(t, err)

	res, err := lobby.Join(api.PlayerData{UUID: id, Nickname: "bob", Color: api.ColorBlue}, newFakePeer())
	require.NoError(t, err)
	require.False(t, res.CanJoin)
	require.Equal(t, api.ReasonNicknameTaken, res.Reason)

	snap, err := lobby.Snapshot()
	require.NoError(t, err)
	require.Equal(t, 1, snap.PlayerCount)
}

func TestPlayersUpdateSkipsJoiner(t *testing.T) {
	lobby, teacher, _ := newTestLobby(t)

	alice := join(t, lobby, uuid.New(), "alice")
	join(t, lobby, uuid.New(), "bob")

	// Alice hears about bob; bob's reply already carried the roster.
	update := recv[api.PlayersUpdateData](t, alice, api.ResponseTypePlayersUpdate)
	require.Len(t, update.Players, 2)
	require.Equal(t, "alice", update.Players[0].Nickname)
	require.Equal(t, "bob", update.Players[1].Nickname)

	// The teacher mirror saw both joins.
	teacherRecv[api.PlayersUpdateData](t, teacher, api.ResponseTypePlayersUpdate)
	tUpdate := teacherRecv[api.PlayersUpdateData](t, teacher, api.ResponseTypePlayersUpdate)
	require.Len(t, tUpdate.Players, 2)
}

func TestSinglePlayerAutoEnd(t *testing.T) {
	lobby, teacher, _ := newTestLobby(t)

	id := uuid.New()
	peer := join(t, lobby, id, "alice")

	require.NoError(t, teacher.StartQuestion())

	next := recv[api.NextQuestionData](t, peer, api.ResponseTypeNextQuestion)
	require.Equal(t, 0, next.QuestionIndex)
	require.Equal(t, 2, next.QuestionsCount)
	require.Equal(t, 1, next.ShowChoicesAfter) // 6 words of reading time

	require.NoError(t, lobby.Answer(id, 0, []string{"a1"}))

	// The last-answerer short-circuit fires before any questionUpdate.
	ended := recv[api.QuestionEndedData](t, peer, api.ResponseTypeQuestionEnded)
	require.Equal(t, 0, ended.QuestionIndex)
	require.Equal(t, []string{"a1"}, ended.PlayerAnswer)
	require.Equal(t, 1, ended.Stats["a1"].PlayersAnsweredCount)
	require.Equal(t, 0, ended.Stats["a2"].PlayersAnsweredCount)
	require.True(t, ended.Question.Choices[0].Correct)

	snap, err := lobby.Snapshot()
	require.NoError(t, err)
	require.Equal(t, quiz.Phase{Kind: quiz.PhaseAfterQuestion, Index: 0}, snap.Phase)
}

func TestDoubleAnswerRejected(t *testing.T) {
	lobby, teacher, _ := newTestLobby(t)

	id := uuid.New()
	join(t, lobby, id, "alice")
	join(t, lobby, uuid.New(), "bob")

	require.NoError(t, teacher.StartQuestion())
	require.NoError(t, lobby.Answer(id, 0, []string{"a1"}))

	err := lobby.Answer(id, 0, []string{"a2"})
	require.ErrorIs(t, err, quiz.ErrAlreadyAnswered)
}

func TestAnswerWrongRound(t *testing.T) {
	lobby, teacher, _ := newTestLobby(t)

	id := uuid.New()
	join(t, lobby, id, "alice")
	join(t, lobby, uuid.New(), "bob")

	require.ErrorIs(t, lobby.Answer(id, 0, []string{"a1"}), quiz.ErrWrongQuestion)

	require.NoError(t, teacher.StartQuestion())
	require.ErrorIs(t, lobby.Answer(id, 1, []string{"b1"}), quiz.ErrWrongQuestion)
}

func TestAnswerAfterEndSilentlyDropped(t *testing.T) {
	lobby, teacher, _ := newTestLobby(t)

	id := uuid.New()
	join(t, lobby, id, "alice")
	join(t, lobby, uuid.New(), "bob")

	require.NoError(t, teacher.StartQuestion())
	require.NoError(t, teacher.EndQuestion(0))

	// The packet raced the end of the question: no error, no record.
	require.NoError(t, lobby.Answer(id, 0, []string{"a1"}))

	require.NoError(t, teacher.SwitchToLeaderboard())
	board := teacherRecv[api.ShowLeaderboardData](t, teacher, api.ResponseTypeShowLeaderboard)
	for _, entry := range board.Players {
		require.Zero(t, entry.Score)
	}
}

func TestSingleChoiceRejectsMultiple(t *testing.T) {
	lobby, teacher, _ := newTestLobby(t)

	id := uuid.New()
	join(t, lobby, id, "alice")

	require.NoError(t, teacher.StartQuestion())

	err := lobby.Answer(id, 0, []string{"a1", "a2"})
	require.ErrorIs(t, err, quiz.ErrSingleChoice)
}

func TestAnswerFromStranger(t *testing.T) {
	lobby, teacher, _ := newTestLobby(t)

	join(t, lobby, uuid.New(), "alice")
	require.NoError(t, teacher.StartQuestion())

	err := lobby.Answer(uuid.New(), 0, []string{"a1"})
	require.ErrorIs(t, err, quiz.ErrNotJoined)
}

func TestTimerEndsQuestion(t *testing.T) {
	lobby, teacher, clk := newTestLobby(t)

	fast := uuid.New()
	fastPeer := join(t, lobby, fast, "alice")
	slowPeer := join(t, lobby, uuid.New(), "bob")
	recv[api.PlayersUpdateData](t, fastPeer, api.ResponseTypePlayersUpdate)

	require.NoError(t, teacher.StartQuestion())
	recv[api.NextQuestionData](t, fastPeer, api.ResponseTypeNextQuestion)
	recv[api.NextQuestionData](t, slowPeer, api.ResponseTypeNextQuestion)

	require.NoError(t, lobby.Answer(fast, 0, []string{"a1"}))

	// One of two answered: progress update, question still active.
	update := recv[api.QuestionUpdateData](t, slowPeer, api.ResponseTypeQuestionUpdate)
	require.Equal(t, 1, update.PlayersAnsweredCount)
	recv[api.QuestionUpdateData](t, fastPeer, api.ResponseTypeQuestionUpdate)

	// Reading time (1s) plus answer time (10s) expires the question.
	clk.Add(12 * time.Second)

	ended := recv[api.QuestionEndedData](t, slowPeer, api.ResponseTypeQuestionEnded)
	require.Nil(t, ended.PlayerAnswer)
	require.Equal(t, 1, ended.Stats["a1"].PlayersAnsweredCount)

	fastEnded := recv[api.QuestionEndedData](t, fastPeer, api.ResponseTypeQuestionEnded)
	require.Equal(t, []string{"a1"}, fastEnded.PlayerAnswer)

	tEnded := teacherRecv[api.QuestionEndedData](t, teacher, api.ResponseTypeQuestionEnded)
	require.Nil(t, tEnded.PlayerAnswer)

	require.NoError(t, teacher.SwitchToLeaderboard())
	board := recv[api.ShowLeaderboardData](t, fastPeer, api.ResponseTypeShowLeaderboard)
	require.False(t, board.WasFinalRound)
	require.Equal(t, "alice", board.Players[0].Player.Nickname)
	require.Equal(t, 110, board.Players[0].Score) // speed 11, base 10
	require.Equal(t, "bob", board.Players[1].Player.Nickname)
	require.Zero(t, board.Players[1].Score)
}

func TestEndQuestionIdempotent(t *testing.T) {
	lobby, teacher, _ := newTestLobby(t)

	id := uuid.New()
	peer := join(t, lobby, id, "alice")

	require.NoError(t, teacher.StartQuestion())
	recv[api.NextQuestionData](t, peer, api.ResponseTypeNextQuestion)

	require.NoError(t, teacher.EndQuestion(0))
	recv[api.QuestionEndedData](t, peer, api.ResponseTypeQuestionEnded)

	// A second end is a no-op: no broadcast, no phase change.
	require.NoError(t, teacher.EndQuestion(0))
	select {
	case v := <-peer.msgs:
		t.Fatalf("unexpected broadcast after duplicate end: %T", v)
	case <-time.After(50 * time.Millisecond):
	}

	snap, err := lobby.Snapshot()
	require.NoError(t, err)
	require.Equal(t, quiz.Phase{Kind: quiz.PhaseAfterQuestion, Index: 0}, snap.Phase)
}

func TestLateTimerIsNoOp(t *testing.T) {
	lobby, teacher, clk := newTestLobby(t)

	id := uuid.New()
	peer := join(t, lobby, id, "alice")

	require.NoError(t, teacher.StartQuestion())
	recv[api.NextQuestionData](t, peer, api.ResponseTypeNextQuestion)

	// All players answer: the question ends early.
	require.NoError(t, lobby.Answer(id, 0, []string{"a1"}))
	recv[api.QuestionEndedData](t, peer, api.ResponseTypeQuestionEnded)

	// The pending timer fires into the already-ended question.
	clk.Add(time.Minute)
	select {
	case v := <-peer.msgs:
		t.Fatalf("unexpected broadcast after late timer: %T", v)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPhaseTransitions(t *testing.T) {
	lobby, teacher, _ := newTestLobby(t)

	id := uuid.New()
	join(t, lobby, id, "alice")

	// Leaderboard before any question is illegal.
	require.ErrorIs(t, teacher.SwitchToLeaderboard(), quiz.ErrWrongPhase)

	require.NoError(t, teacher.StartQuestion())
	// Starting again mid-question is illegal.
	require.ErrorIs(t, teacher.StartQuestion(), quiz.ErrWrongPhase)

	require.NoError(t, teacher.EndQuestion(0))
	require.ErrorIs(t, teacher.StartQuestion(), quiz.ErrWrongPhase)
	require.NoError(t, teacher.SwitchToLeaderboard())
	first := teacherRecv[api.ShowLeaderboardData](t, teacher, api.ResponseTypeShowLeaderboard)
	require.False(t, first.WasFinalRound)

	// Second (final) question.
	require.NoError(t, teacher.StartQuestion())
	require.NoError(t, lobby.Answer(id, 1, []string{"b1", "b2"}))

	require.NoError(t, teacher.SwitchToLeaderboard())
	board := teacherRecv[api.ShowLeaderboardData](t, teacher, api.ResponseTypeShowLeaderboard)
	require.True(t, board.WasFinalRound)

	snap, err := lobby.Snapshot()
	require.NoError(t, err)
	require.Equal(t, quiz.PhaseGameEnded, snap.Phase.Kind)

	// The game is over; nothing can be started anymore.
	require.ErrorIs(t, teacher.StartQuestion(), quiz.ErrWrongPhase)
}

func TestKickRemovesPlayer(t *testing.T) {
	lobby, teacher, _ := newTestLobby(t)

	id := uuid.New()
	kicked := join(t, lobby, id, "alice")
	other := join(t, lobby, uuid.New(), "bob")
	recv[api.PlayersUpdateData](t, kicked, api.ResponseTypePlayersUpdate)

	require.NoError(t, teacher.Kick(id, "misbehaving"))

	select {
	case reason := <-kicked.stopped:
		require.Equal(t, "misbehaving", reason)
	case <-time.After(time.Second):
		t.Fatal("kicked peer was never stopped")
	}

	update := recv[api.PlayersUpdateData](t, other, api.ResponseTypePlayersUpdate)
	require.Len(t, update.Players, 1)
	require.Equal(t, "bob", update.Players[0].Nickname)

	require.ErrorIs(t, teacher.Kick(id, ""), quiz.ErrNotJoined)
}

func TestDisconnectUpdatesRoster(t *testing.T) {
	lobby, _, _ := newTestLobby(t)

	id := uuid.New()
	join(t, lobby, id, "alice")
	other := join(t, lobby, uuid.New(), "bob")

	lobby.Disconnect(id)

	update := recv[api.PlayersUpdateData](t, other, api.ResponseTypePlayersUpdate)
	require.Len(t, update.Players, 1)
	require.Equal(t, "bob", update.Players[0].Nickname)
}

func TestTeacherLeaveStopsLobby(t *testing.T) {
	clk := clock.NewMock()
	lobby := quiz.NewLobby(quiz.Options{
		Quiz:   testQuiz(),
		Clock:  clk,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	go lobby.Run()

	teacher, err := lobby.RegisterTeacher()
	require.NoError(t, err)

	peer := join(t, lobby, uuid.New(), "alice")

	teacher.Leave()

	select {
	case <-lobby.Done():
	case <-time.After(time.Second):
		t.Fatal("lobby never stopped")
	}

	found := false
	for len(peer.msgs) > 0 {
		if res, ok := (<-peer.msgs).(*api.Response[api.TeacherDisconnectedData]); ok {
			require.Equal(t, api.ResponseTypeTeacherDisconnected, res.Type)
			found = true
		}
	}
	require.True(t, found, "student never heard about the teacher leaving")

	_, err = lobby.TryJoin(uuid.New())
	require.ErrorIs(t, err, quiz.ErrStopped)
}

func TestStopIdempotent(t *testing.T) {
	lobby, teacher, _ := newTestLobby(t)

	join(t, lobby, uuid.New(), "alice")

	// Stop-class events queued behind the first one must not bring the
	// engine down.
	for i := 0; i < 10; i++ {
		teacher.Stop()
	}
	teacher.Leave()

	select {
	case <-lobby.Done():
	case <-time.After(time.Second):
		t.Fatal("lobby never stopped")
	}
}

func TestCallersUnblockAfterStop(t *testing.T) {
	lobby, teacher, _ := newTestLobby(t)

	id := uuid.New()
	join(t, lobby, id, "alice")

	teacher.Stop()
	select {
	case <-lobby.Done():
	case <-time.After(time.Second):
		t.Fatal("lobby never stopped")
	}

	// Posts racing the closed done channel may still land in the inbox;
	// either way the caller must come back with ErrStopped, never hang.
	finished := make(chan error, 1)
	go func() {
		for i := 0; i < 100; i++ {
			if _, err := lobby.TryJoin(uuid.New()); !errors.Is(err, quiz.ErrStopped) {
				finished <- fmt.Errorf("TryJoin after stop: %v", err)
				return
			}
		}
		if err := lobby.Answer(id, 0, []string{"a1"}); !errors.Is(err, quiz.ErrStopped) {
			finished <- fmt.Errorf("Answer after stop: %v", err)
			return
		}
		if _, err := lobby.Snapshot(); !errors.Is(err, quiz.ErrStopped) {
			finished <- fmt.Errorf("Snapshot after stop: %v", err)
			return
		}
		if err := teacher.StartQuestion(); !errors.Is(err, quiz.ErrStopped) {
			finished <- fmt.Errorf("StartQuestion after stop: %v", err)
			return
		}
		finished <- nil
	}()

	select {
	case err := <-finished:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("caller hung after lobby stop")
	}
}

func TestTeacherEventsCloseOnStop(t *testing.T) {
	lobby, teacher, _ := newTestLobby(t)

	join(t, lobby, uuid.New(), "alice")

	teacher.Stop()
	select {
	case <-lobby.Done():
	case <-time.After(time.Second):
		t.Fatal("lobby never stopped")
	}

	// Buffered broadcasts drain, then the stream ends.
	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-teacher.Events():
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("events channel never closed")
		}
	}
}

func TestRegisterTeacherTwice(t *testing.T) {
	lobby, _, _ := newTestLobby(t)

	_, err := lobby.RegisterTeacher()
	require.True(t, errors.Is(err, quiz.ErrTeacherAlreadyRegistered))
}
