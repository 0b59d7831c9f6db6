package quiz

import "github.com/google/uuid"

const teacherEventsSize = 128

// Teacher is the in-process control surface for the presenter. It issues
// control events to the lobby and receives every broadcast students
// receive on Events.
//
// A lobby hands out exactly one Teacher; registering it unlocks the lobby.
type Teacher struct {
	lobby  *Lobby
	events chan any
}

// Events streams the broadcasts mirrored to the teacher. Slow consumers
// lose messages rather than stalling the engine. The channel is closed
// when the lobby stops.
func (t *Teacher) Events() <-chan any {
	return t.events
}

// StartQuestion advances to the next question, from the waiting room or
// from a leaderboard.
func (t *Teacher) StartQuestion() error {
	reply := make(chan error, 1)
	if !t.lobby.post(startQuestionEvent{reply: reply}) {
		return ErrStopped
	}
	return t.await(reply)
}

// EndQuestion force-ends the question at index. Ending a question that is
// no longer active is a no-op.
func (t *Teacher) EndQuestion(index int) error {
	reply := make(chan error, 1)
	if !t.lobby.post(endQuestionEvent{index: index, reply: reply}) {
		return ErrStopped
	}
	return t.await(reply)
}

// SwitchToLeaderboard computes cumulative scores and shows the leaderboard.
func (t *Teacher) SwitchToLeaderboard() error {
	reply := make(chan error, 1)
	if !t.lobby.post(switchLeaderboardEvent{reply: reply}) {
		return ErrStopped
	}
	return t.await(reply)
}

// Kick removes a player and closes its session with reason.
func (t *Teacher) Kick(id uuid.UUID, reason string) error {
	reply := make(chan error, 1)
	if !t.lobby.post(kickEvent{id: id, reason: reason, reply: reply}) {
		return ErrStopped
	}
	return t.await(reply)
}

// SetLock toggles whether new players may start the join handshake.
func (t *Teacher) SetLock(locked bool) error {
	reply := make(chan struct{}, 1)
	if !t.lobby.post(setLockEvent{locked: locked, reply: reply}) {
		return ErrStopped
	}
	if _, ok := awaitReply(t.lobby, reply); !ok {
		return ErrStopped
	}
	return nil
}

func (t *Teacher) await(reply chan error) error {
	err, ok := awaitReply(t.lobby, reply)
	if !ok {
		return ErrStopped
	}
	return err
}

// Leave announces the teacher's departure to all students and stops the
// lobby.
func (t *Teacher) Leave() {
	t.lobby.post(teacherLeaveEvent{})
}

// Stop shuts the lobby down, closing every session.
func (t *Teacher) Stop() {
	t.lobby.post(stopEvent{})
}

// push mirrors a broadcast to the teacher without ever blocking the engine.
func (t *Teacher) push(v any) {
	select {
	case t.events <- v:
	default:
	}
}
