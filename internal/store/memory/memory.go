// Package memory keeps session state in process memory. Used when postgres is not configured and
// in tests.
package memory

import (
	"context"
	"sync"

	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/errors"
)

type answerKey struct {
	playerID   string
	questionID string
}

type Store struct {
	mu       sync.RWMutex
	sessions map[string]domain.Session
	players  map[string]domain.Player
	order    map[string][]string
	answers  map[answerKey]domain.Answer
	answered map[string][]answerKey
}

func New() *Store {
	return &Store{
		sessions: make(map[string]domain.Session),
		players:  make(map[string]domain.Player),
		order:    make(map[string][]string),
		answers:  make(map[answerKey]domain.Answer),
		answered: make(map[string][]answerKey),
	}
}

func (s *Store) SaveSession(_ context.Context, ss domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[ss.SessionID] = ss
	return nil
}

func (s *Store) SavePlayer(_ context.Context, p domain.Player) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.putPlayerLocked(p)
	return nil
}

// SaveAnswer stores the answer and the updated player together.
func (s *Store) SaveAnswer(_ context.Context, p domain.Player, a domain.Answer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := answerKey{playerID: a.PlayerID, questionID: a.QuestionID}
	if _, ok := s.answers[k]; ok {
		return errors.Conflict("already answered this question: player=%s question=%s", a.PlayerID, a.QuestionID)
	}

	s.answers[k] = a
	s.answered[p.SessionID] = append(s.answered[p.SessionID], k)
	s.putPlayerLocked(p)
	return nil
}

func (s *Store) putPlayerLocked(p domain.Player) {
	if _, ok := s.players[p.PlayerID]; !ok {
		s.order[p.SessionID] = append(s.order[p.SessionID], p.PlayerID)
	}
	s.players[p.PlayerID] = p
}

func (s *Store) LoadSession(_ context.Context, sessionID string) (domain.SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ss, ok := s.sessions[sessionID]
	if !ok {
		return domain.SessionRecord{}, errors.NotFound("session not found: %s", sessionID)
	}

	rec := domain.SessionRecord{Session: ss}
	for _, id := range s.order[sessionID] {
		rec.Players = append(rec.Players, s.players[id])
	}
	for _, k := range s.answered[sessionID] {
		rec.Answers = append(rec.Answers, s.answers[k])
	}

	return rec, nil
}

// FindOpenSession returns the most recently created waiting or active session of a quiz.
func (s *Store) FindOpenSession(_ context.Context, quizID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *domain.Session
	for _, ss := range s.sessions {
		if ss.QuizID != quizID || ss.Status == domain.StatusFinished {
			continue
		}
		if found == nil || ss.CreatedAt.After(found.CreatedAt) {
			ss := ss
			found = &ss
		}
	}

	if found == nil {
		return "", errors.NotFound("no open session for quiz %s", quizID)
	}

	return found.SessionID, nil
}
