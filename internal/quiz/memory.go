package quiz

import (
	"context"
	"sync"

	"github.com/victornm/livequiz/internal/errors"
)

// Memory is an in-process Repository, used when postgres is not configured.
type Memory struct {
	mu     sync.RWMutex
	byID   map[string]Quiz
	byCode map[string]string
}

func NewMemory(quizzes ...Quiz) (*Memory, error) {
	m := &Memory{
		byID:   make(map[string]Quiz),
		byCode: make(map[string]string),
	}

	for _, q := range quizzes {
		if err := m.SaveQuiz(context.Background(), q); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func (m *Memory) GetQuiz(_ context.Context, quizID string) (Quiz, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	q, ok := m.byID[quizID]
	if !ok {
		return Quiz{}, errors.NotFound("quiz not found: %s", quizID)
	}

	return q, nil
}

// FindByJoinCode returns the active quiz with the given code.
func (m *Memory) FindByJoinCode(_ context.Context, code string) (Quiz, error) {
	code = NormalizeJoinCode(code)

	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byCode[code]
	if !ok || !m.byID[id].IsActive {
		return Quiz{}, errors.NotFound("invalid join code or quiz not active: %s", code)
	}

	return m.byID[id], nil
}

// SaveQuiz validates q and inserts or replaces it. A quiz without a join code gets one.
func (m *Memory) SaveQuiz(_ context.Context, q Quiz) error {
	q, err := Validate(q)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if q.JoinCode == "" {
		if q.JoinCode, err = m.freeCodeLocked(); err != nil {
			return err
		}
	}

	if owner, ok := m.byCode[q.JoinCode]; ok && owner != q.ID {
		return errors.Conflict("join code already in use: %s", q.JoinCode)
	}

	if prev, ok := m.byID[q.ID]; ok && prev.JoinCode != q.JoinCode {
		delete(m.byCode, prev.JoinCode)
	}

	m.byID[q.ID] = q
	m.byCode[q.JoinCode] = q.ID
	return nil
}

func (m *Memory) freeCodeLocked() (string, error) {
	for {
		code, err := NewJoinCode()
		if err != nil {
			return "", err
		}
		if _, ok := m.byCode[code]; !ok {
			return code, nil
		}
	}
}
