package game

import (
	"github.com/victornm/livequiz/internal/domain"
)

type answerKey struct {
	playerID   string
	questionID string
}

// ledger records at most one answer per (player, question). Answers are never updated or removed.
// Callers hold the session lock.
type ledger struct {
	answers  map[answerKey]domain.Answer
	byPlayer map[string][]domain.Answer
}

func newLedger(answers []domain.Answer) *ledger {
	l := &ledger{
		answers:  make(map[answerKey]domain.Answer, len(answers)),
		byPlayer: make(map[string][]domain.Answer),
	}
	for _, a := range answers {
		l.record(a)
	}

	return l
}

func (l *ledger) has(playerID, questionID string) bool {
	_, ok := l.answers[answerKey{playerID: playerID, questionID: questionID}]
	return ok
}

// record stores a. It reports false and leaves the ledger unchanged if the pair already exists.
func (l *ledger) record(a domain.Answer) bool {
	k := answerKey{playerID: a.PlayerID, questionID: a.QuestionID}
	if _, ok := l.answers[k]; ok {
		return false
	}

	l.answers[k] = a
	l.byPlayer[a.PlayerID] = append(l.byPlayer[a.PlayerID], a)
	return true
}

func (l *ledger) answeredBy(playerID string) []domain.Answer {
	src := l.byPlayer[playerID]
	out := make([]domain.Answer, len(src))
	copy(out, src)
	return out
}
