package quiz

import "fmt"

// PhaseKind is the coarse state of a quiz session.
type PhaseKind int

const (
	PhaseWaitingForPlayers PhaseKind = iota
	PhaseActiveQuestion
	PhaseAfterQuestion
	PhaseShowingLeaderboard
	PhaseGameEnded
)

var phaseKindToString = map[PhaseKind]string{
	PhaseWaitingForPlayers:  "waitingForPlayers",
	PhaseActiveQuestion:     "activeQuestion",
	PhaseAfterQuestion:      "afterQuestion",
	PhaseShowingLeaderboard: "showingLeaderboard",
	PhaseGameEnded:          "gameEnded",
}

func (k PhaseKind) String() string {
	if s, ok := phaseKindToString[k]; ok {
		return s
	}
	return "unknown"
}

// Phase pairs a kind with the index of the question it is scoped to.
// Index is meaningless for PhaseWaitingForPlayers and PhaseGameEnded.
type Phase struct {
	Kind  PhaseKind
	Index int
}

func (p Phase) String() string {
	switch p.Kind {
	case PhaseActiveQuestion, PhaseAfterQuestion, PhaseShowingLeaderboard:
		return fmt.Sprintf("%s(%d)", p.Kind, p.Index)
	default:
		return p.Kind.String()
	}
}

// is reports whether p equals the given kind and index.
func (p Phase) is(kind PhaseKind, index int) bool {
	return p.Kind == kind && p.Index == index
}
