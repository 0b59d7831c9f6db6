// Package quiz implements the lobby engine: a single-writer event loop
// owning the phase machine, the roster and the per-question records of one
// quiz session.
//
// All mutations flow through a private inbox processed by one goroutine.
// Fan-out to students is a non-blocking hand-off to session inboxes; the
// engine never performs network I/O itself.
package quiz

import (
	"log/slog"
	"sort"
	"time"
	"unicode/utf8"

	"classquiz-backend/api"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
)

const defaultInboxSize = 256

// playerEntry is one joined student.
type playerEntry struct {
	data     api.PlayerData
	peer     Peer
	joinedAt time.Time
}

// answerRecord is one player's answer to one question.
type answerRecord struct {
	order      int
	answeredAt time.Time
	choiceIDs  []string
	points     int
}

// Lobby is the engine for exactly one quiz session.
//
// Multiple goroutines may invoke methods on a Lobby simultaneously; every
// method posts an event and, for request/reply events, awaits the answer.
type Lobby struct {
	quiz  api.QuestionSet
	clk   clock.Clock
	log   *slog.Logger
	inbox chan event
	done  chan struct{}

	// State below is owned by the Run goroutine.
	phase   Phase
	stopped bool
	locked  bool
	teacher *Teacher
	joined  []*playerEntry
	byID    map[uuid.UUID]*playerEntry
	waiting map[uuid.UUID]struct{}
	results map[int]map[uuid.UUID]*answerRecord
}

type Options struct {
	// Quiz is the validated, already-randomized question set.
	Quiz api.QuestionSet

	// Clock defaults to the wall clock. Tests inject a mock.
	Clock clock.Clock

	Logger *slog.Logger

	// InboxSize bounds the engine event inbox.
	InboxSize int
}

// NewLobby builds a lobby in the WaitingForPlayers phase. The lobby starts
// locked and unlocks when the teacher registers.
func NewLobby(opts Options) *Lobby {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.InboxSize <= 0 {
		opts.InboxSize = defaultInboxSize
	}
	return &Lobby{
		quiz:    opts.Quiz,
		clk:     opts.Clock,
		log:     opts.Logger,
		inbox:   make(chan event, opts.InboxSize),
		done:    make(chan struct{}),
		phase:   Phase{Kind: PhaseWaitingForPlayers},
		locked:  true,
		byID:    map[uuid.UUID]*playerEntry{},
		waiting: map[uuid.UUID]struct{}{},
		results: map[int]map[uuid.UUID]*answerRecord{},
	}
}

// Run processes engine events until the lobby stops. It is the sole writer
// of lobby state.
func (l *Lobby) Run() {
	for {
		// Bias towards exit: once done is closed, no queued event may be
		// handled anymore. Abandoned callers unblock via awaitReply.
		select {
		case <-l.done:
			return
		default:
		}
		select {
		case <-l.done:
			return
		case ev := <-l.inbox:
			l.handle(ev)
		}
	}
}

// Done is closed once the lobby has stopped.
func (l *Lobby) Done() <-chan struct{} {
	return l.done
}

// QuizName returns the quiz name. The question set is immutable, so no
// event round-trip is needed.
func (l *Lobby) QuizName() string {
	return l.quiz.Name
}

func (l *Lobby) post(ev event) bool {
	select {
	case l.inbox <- ev:
		return true
	case <-l.done:
		return false
	}
}

// awaitReply waits for the engine's answer to a posted event. ok is false
// when the lobby stopped with the event still queued; the event is then
// abandoned and never handled.
func awaitReply[T any](l *Lobby, reply chan T) (v T, ok bool) {
	select {
	case v = <-reply:
		return v, true
	case <-l.done:
		// The engine may have replied right before stopping.
		select {
		case v = <-reply:
			return v, true
		default:
			return v, false
		}
	}
}

// RegisterTeacher installs the one-shot teacher handle and unlocks the
// lobby for joins.
func (l *Lobby) RegisterTeacher() (*Teacher, error) {
	reply := make(chan registerTeacherResult, 1)
	if !l.post(registerTeacherEvent{reply: reply}) {
		return nil, ErrStopped
	}
	res, ok := awaitReply(l, reply)
	if !ok {
		return nil, ErrStopped
	}
	return res.teacher, res.err
}

// TryJoin performs the pre-handshake for id.
func (l *Lobby) TryJoin(id uuid.UUID) (TryJoinResult, error) {
	reply := make(chan TryJoinResult, 1)
	if !l.post(tryJoinEvent{id: id, reply: reply}) {
		return TryJoinResult{}, ErrStopped
	}
	res, ok := awaitReply(l, reply)
	if !ok {
		return TryJoinResult{}, ErrStopped
	}
	return res, nil
}

// Join commits a player that previously passed TryJoin.
func (l *Lobby) Join(player api.PlayerData, peer Peer) (JoinResult, error) {
	reply := make(chan JoinResult, 1)
	if !l.post(joinEvent{player: player, peer: peer, reply: reply}) {
		return JoinResult{}, ErrStopped
	}
	res, ok := awaitReply(l, reply)
	if !ok {
		return JoinResult{}, ErrStopped
	}
	return res, nil
}

// Answer records a player's selection for the given question index.
// Rule violations come back as typed errors; an answer racing a question
// end is silently dropped (nil error).
func (l *Lobby) Answer(id uuid.UUID, index int, choiceIDs []string) error {
	reply := make(chan error, 1)
	if !l.post(answerEvent{id: id, index: index, choiceIDs: choiceIDs, reply: reply}) {
		return ErrStopped
	}
	err, ok := awaitReply(l, reply)
	if !ok {
		return ErrStopped
	}
	return err
}

// Disconnect removes id from the lobby after its session closed.
func (l *Lobby) Disconnect(id uuid.UUID) {
	l.post(disconnectEvent{id: id})
}

// Snapshot returns a read-only view of the engine state.
func (l *Lobby) Snapshot() (Snapshot, error) {
	reply := make(chan Snapshot, 1)
	if !l.post(snapshotEvent{reply: reply}) {
		return Snapshot{}, ErrStopped
	}
	snap, ok := awaitReply(l, reply)
	if !ok {
		return Snapshot{}, ErrStopped
	}
	return snap, nil
}

func (l *Lobby) handle(ev event) {
	switch ev := ev.(type) {
	case registerTeacherEvent:
		ev.reply <- l.handleRegisterTeacher()
	case setLockEvent:
		l.locked = ev.locked
		ev.reply <- struct{}{}
	case tryJoinEvent:
		ev.reply <- l.handleTryJoin(ev.id)
	case joinEvent:
		ev.reply <- l.handleJoin(ev.player, ev.peer)
	case answerEvent:
		ev.reply <- l.handleAnswer(ev.id, ev.index, ev.choiceIDs)
	case startQuestionEvent:
		ev.reply <- l.handleStartQuestion()
	case endQuestionEvent:
		err := l.handleEndQuestion(ev.index)
		if ev.reply != nil {
			ev.reply <- err
		}
	case switchLeaderboardEvent:
		ev.reply <- l.handleSwitchLeaderboard()
	case kickEvent:
		ev.reply <- l.handleKick(ev.id, ev.reason)
	case disconnectEvent:
		l.handleDisconnect(ev.id)
	case snapshotEvent:
		ev.reply <- Snapshot{
			Phase:       l.phase,
			PlayerCount: len(l.joined),
			Locked:      l.locked,
		}
	case teacherLeaveEvent:
		l.handleTeacherLeave()
	case stopEvent:
		l.handleStop(api.ReasonGoodbye)
	default:
		l.log.Error("unhandled engine event", slog.Any("event", ev))
	}
}

func (l *Lobby) handleRegisterTeacher() registerTeacherResult {
	if l.teacher != nil {
		return registerTeacherResult{err: ErrTeacherAlreadyRegistered}
	}
	l.teacher = &Teacher{
		lobby:  l,
		events: make(chan any, teacherEventsSize),
	}
	l.locked = false
	l.log.Info("teacher registered, lobby unlocked")
	return registerTeacherResult{teacher: l.teacher}
}

func (l *Lobby) handleTryJoin(id uuid.UUID) TryJoinResult {
	if l.locked {
		return TryJoinResult{Reason: api.ReasonLobbyLocked, QuizName: l.quiz.Name}
	}
	// An id may not sit in both the roster and the waiting set.
	if _, joined := l.byID[id]; joined {
		return TryJoinResult{Reason: api.ReasonNotInWaitingList, QuizName: l.quiz.Name}
	}
	l.waiting[id] = struct{}{}
	return TryJoinResult{CanJoin: true, QuizName: l.quiz.Name}
}

func (l *Lobby) handleJoin(player api.PlayerData, peer Peer) JoinResult {
	refuse := func(reason string) JoinResult {
		return JoinResult{Reason: reason, QuizName: l.quiz.Name}
	}

	if l.locked {
		return refuse(api.ReasonLobbyLocked)
	}
	if _, ok := l.waiting[player.UUID]; !ok {
		return refuse(api.ReasonNotInWaitingList)
	}
	if player.Nickname == "" || utf8.RuneCountInString(player.Nickname) > api.MaxNicknameLength {
		return refuse("Invalid nickname")
	}
	if !player.Color.Valid() {
		return refuse("Invalid color")
	}
	for _, entry := range l.joined {
		if entry.data.Nickname == player.Nickname {
			return refuse(api.ReasonNicknameTaken)
		}
	}

	delete(l.waiting, player.UUID)
	entry := &playerEntry{
		data:     player,
		peer:     peer,
		joinedAt: l.clk.Now(),
	}
	l.joined = append(l.joined, entry)
	l.byID[player.UUID] = entry

	l.log.Info("player joined",
		slog.String("nickname", player.Nickname),
		slog.Int("players", len(l.joined)))

	// The joining peer already receives the roster in its reply.
	l.broadcastPlayersUpdate(player.UUID)

	return JoinResult{
		CanJoin:  true,
		QuizName: l.quiz.Name,
		Players:  l.roster(),
	}
}

func (l *Lobby) handleAnswer(id uuid.UUID, index int, choiceIDs []string) error {
	if _, ok := l.byID[id]; !ok {
		return ErrNotJoined
	}
	// Packet raced the end of the question: not cheating, not an error.
	if l.phase.is(PhaseAfterQuestion, index) {
		return nil
	}
	if !l.phase.is(PhaseActiveQuestion, index) {
		return ErrWrongQuestion
	}

	records := l.results[index]
	if records == nil {
		records = map[uuid.UUID]*answerRecord{}
		l.results[index] = records
	}
	if _, ok := records[id]; ok {
		return ErrAlreadyAnswered
	}

	question := l.quiz.Questions[index]
	selected := dedupe(choiceIDs)
	if len(selected) > 1 && !question.Multichoice {
		return ErrSingleChoice
	}

	order := len(records) + 1
	records[id] = &answerRecord{
		order:      order,
		answeredAt: l.clk.Now(),
		choiceIDs:  selected,
		points:     Points(order, len(l.joined), selected, question.CorrectChoiceIDs()),
	}

	if len(records) == len(l.joined) {
		// Last answer ends the question immediately; the pending timer
		// later no-ops on the phase check.
		return l.handleEndQuestion(index)
	}

	l.broadcast(&api.Response[api.QuestionUpdateData]{
		Type: api.ResponseTypeQuestionUpdate,
		Data: api.QuestionUpdateData{
			QuestionIndex:        index,
			PlayersAnsweredCount: len(records),
		},
	})
	return nil
}

func (l *Lobby) handleStartQuestion() error {
	var next int
	switch {
	case l.phase.Kind == PhaseWaitingForPlayers:
		next = 0
	case l.phase.Kind == PhaseShowingLeaderboard && l.phase.Index < len(l.quiz.Questions)-1:
		next = l.phase.Index + 1
	default:
		return ErrWrongPhase
	}

	l.phase = Phase{Kind: PhaseActiveQuestion, Index: next}
	question := l.quiz.Questions[next]

	l.log.Info("question started",
		slog.Int("index", next),
		slog.String("phase", l.phase.String()))

	l.broadcast(&api.Response[api.NextQuestionData]{
		Type: api.ResponseTypeNextQuestion,
		Data: api.NextQuestionData{
			QuestionIndex:    next,
			QuestionsCount:   len(l.quiz.Questions),
			ShowChoicesAfter: ReadingSeconds(question),
			Question:         question.Censored(),
		},
	})

	// One-shot end timer. It is never cancelled: a late firing no-ops on
	// the phase equality check in handleEndQuestion.
	timer := l.clk.After(questionWindow(question))
	go func() {
		select {
		case <-timer:
			l.post(endQuestionEvent{index: next})
		case <-l.done:
		}
	}()

	return nil
}

func (l *Lobby) handleEndQuestion(index int) error {
	if !l.phase.is(PhaseActiveQuestion, index) {
		// Timer fired late or the question already ended early.
		return nil
	}
	l.phase = Phase{Kind: PhaseAfterQuestion, Index: index}

	question := l.quiz.Questions[index]
	records := l.results[index]

	stats := make(map[string]api.ChoiceStats, len(question.Choices))
	for _, choice := range question.Choices {
		count := 0
		for _, record := range records {
			for _, id := range record.choiceIDs {
				if id == choice.ID {
					count++
					break
				}
			}
		}
		stats[choice.ID] = api.ChoiceStats{PlayersAnsweredCount: count}
	}

	l.log.Info("question ended",
		slog.Int("index", index),
		slog.Int("answers", len(records)))

	for _, entry := range l.joined {
		var playerAnswer []string
		if record, ok := records[entry.data.UUID]; ok {
			playerAnswer = record.choiceIDs
		}
		l.send(entry, &api.Response[api.QuestionEndedData]{
			Type: api.ResponseTypeQuestionEnded,
			Data: api.QuestionEndedData{
				QuestionIndex: index,
				Question:      question,
				PlayerAnswer:  playerAnswer,
				Stats:         stats,
			},
		})
	}
	l.sendTeacher(&api.Response[api.QuestionEndedData]{
		Type: api.ResponseTypeQuestionEnded,
		Data: api.QuestionEndedData{
			QuestionIndex: index,
			Question:      question,
			Stats:         stats,
		},
	})
	return nil
}

func (l *Lobby) handleSwitchLeaderboard() error {
	if l.phase.Kind != PhaseAfterQuestion {
		return ErrWrongPhase
	}
	index := l.phase.Index
	final := index == len(l.quiz.Questions)-1

	entries := make([]api.LeaderboardEntry, 0, len(l.joined))
	for _, entry := range l.joined {
		score := 0
		for k := 0; k <= index; k++ {
			if record, ok := l.results[k][entry.data.UUID]; ok {
				score += record.points
			}
		}
		entries = append(entries, api.LeaderboardEntry{
			Player: entry.data,
			Score:  score,
		})
	}
	// Highest score first; join order breaks ties.
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Score > entries[j].Score
	})

	l.broadcast(&api.Response[api.ShowLeaderboardData]{
		Type: api.ResponseTypeShowLeaderboard,
		Data: api.ShowLeaderboardData{
			Players:       entries,
			WasFinalRound: final,
		},
	})

	if final {
		l.phase = Phase{Kind: PhaseGameEnded}
	} else {
		l.phase = Phase{Kind: PhaseShowingLeaderboard, Index: index}
	}

	l.log.Info("leaderboard shown",
		slog.Int("index", index),
		slog.Bool("final", final))
	return nil
}

func (l *Lobby) handleKick(id uuid.UUID, reason string) error {
	entry, ok := l.byID[id]
	if !ok {
		return ErrNotJoined
	}
	if reason == "" {
		reason = api.ReasonGoodbye
	}
	l.remove(id)
	entry.peer.Stop(reason)

	l.log.Info("player kicked",
		slog.String("nickname", entry.data.Nickname),
		slog.String("reason", reason))

	l.broadcastPlayersUpdate(uuid.Nil)
	return nil
}

func (l *Lobby) handleDisconnect(id uuid.UUID) {
	delete(l.waiting, id)
	entry, ok := l.byID[id]
	if !ok {
		return
	}
	l.remove(id)

	l.log.Info("player disconnected",
		slog.String("nickname", entry.data.Nickname),
		slog.Int("players", len(l.joined)))

	l.broadcastPlayersUpdate(uuid.Nil)
}

func (l *Lobby) handleTeacherLeave() {
	for _, entry := range l.joined {
		l.send(entry, &api.Response[api.TeacherDisconnectedData]{
			Type: api.ResponseTypeTeacherDisconnected,
		})
	}
	l.handleStop(api.ReasonGoodbye)
}

// handleStop shuts the lobby down exactly once; stop-class events queued
// behind the first one are no-ops.
func (l *Lobby) handleStop(reason string) {
	if l.stopped {
		return
	}
	l.stopped = true

	l.log.Info("lobby stopping", slog.Int("players", len(l.joined)))
	for _, entry := range l.joined {
		entry.peer.Stop(reason)
	}
	if l.teacher != nil {
		close(l.teacher.events)
	}
	close(l.done)
}

// remove drops id from the roster while preserving join order.
func (l *Lobby) remove(id uuid.UUID) {
	delete(l.byID, id)
	for i, entry := range l.joined {
		if entry.data.UUID == id {
			l.joined = append(l.joined[:i], l.joined[i+1:]...)
			return
		}
	}
}

// roster returns the joined players by ascending join time.
func (l *Lobby) roster() []api.PlayerData {
	players := make([]api.PlayerData, 0, len(l.joined))
	for _, entry := range l.joined {
		players = append(players, entry.data)
	}
	return players
}

func (l *Lobby) broadcastPlayersUpdate(except uuid.UUID) {
	res := &api.Response[api.PlayersUpdateData]{
		Type: api.ResponseTypePlayersUpdate,
		Data: api.PlayersUpdateData{Players: l.roster()},
	}
	for _, entry := range l.joined {
		if entry.data.UUID == except {
			continue
		}
		l.send(entry, res)
	}
	l.sendTeacher(res)
}

// broadcast fans a message out to every joined peer and to the teacher.
func (l *Lobby) broadcast(v any) {
	for _, entry := range l.joined {
		l.send(entry, v)
	}
	l.sendTeacher(v)
}

func (l *Lobby) send(entry *playerEntry, v any) {
	if !entry.peer.Send(v) {
		// The peer tears itself down on overflow; we only log here so
		// the engine never stalls on a dead session.
		l.log.Warn("dropped message for overloaded peer",
			slog.String("nickname", entry.data.Nickname))
	}
}

func (l *Lobby) sendTeacher(v any) {
	if l.teacher != nil {
		l.teacher.push(v)
	}
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
