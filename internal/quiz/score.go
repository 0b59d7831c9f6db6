package quiz

import (
	"strings"
	"time"

	"classquiz-backend/api"
)

// speedBonusOffset keeps the speed factor of the slowest answerer at 10,
// preserving wire compatibility with existing score tables.
const speedBonusOffset = 9

// Points computes the score for a single answer.
//
// answerOrder is the 1-based position of the player among respondents and
// totalPlayers the number of joined players at answer time. Wrong selections
// reduce the base but never push it below zero.
func Points(answerOrder, totalPlayers int, selected []string, correct map[string]struct{}) int {
	var right, wrong int
	for _, id := range selected {
		if _, ok := correct[id]; ok {
			right++
		} else {
			wrong++
		}
	}

	speed := (totalPlayers - answerOrder + 1) + speedBonusOffset

	base := 10*right - 5*wrong
	if base < 0 {
		base = 0
	}

	return speed * base
}

// ReadingSeconds estimates how long students need to read a question before
// the choices are revealed: max(1, words*6/20), counting whitespace-split
// words of the question text and of the code block if present.
func ReadingSeconds(q api.Question) int {
	words := len(strings.Fields(q.Text))
	if q.Code != nil {
		words += len(strings.Fields(q.Code.Code))
	}
	secs := words * 6 / 20
	if secs < 1 {
		secs = 1
	}
	return secs
}

// questionWindow is the full duration of a question: reading time plus the
// configured answer time.
func questionWindow(q api.Question) time.Duration {
	return time.Duration(ReadingSeconds(q)+q.TimeSeconds) * time.Second
}
