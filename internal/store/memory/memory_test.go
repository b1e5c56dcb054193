package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/errors"
	"github.com/victornm/livequiz/internal/store/memory"
)

var t0 = time.Date(2024, 10, 1, 12, 0, 0, 0, time.UTC)

func TestStore_LoadSession(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := memory.New()

	_, err := s.LoadSession(ctx, "s1")
	assert.True(t, errors.Is(err, errors.CodeNotFound))

	require.NoError(t, s.SaveSession(ctx, domain.Session{SessionID: "s1", QuizID: "quiz-1", Status: domain.StatusWaiting}))
	require.NoError(t, s.SavePlayer(ctx, domain.Player{PlayerID: "p2", SessionID: "s1", Nickname: "bob", IsActive: true}))
	require.NoError(t, s.SavePlayer(ctx, domain.Player{PlayerID: "p1", SessionID: "s1", Nickname: "alice", IsActive: true}))

	p := domain.Player{PlayerID: "p2", SessionID: "s1", Nickname: "bob", Score: 150, AnswersCorrect: 1, IsActive: true}
	a := domain.Answer{PlayerID: "p2", QuestionID: "q1", SelectedAnswer: "right", IsCorrect: true, ScoreEarned: 150}
	require.NoError(t, s.SaveAnswer(ctx, p, a))

	err = s.SaveAnswer(ctx, p, a)
	assert.True(t, errors.Is(err, errors.CodeAlreadyExists))

	rec, err := s.LoadSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "quiz-1", rec.Session.QuizID)
	require.Len(t, rec.Players, 2)
	assert.Equal(t, "p2", rec.Players[0].PlayerID, "join order is kept")
	assert.Equal(t, 150, rec.Players[0].Score)
	assert.Equal(t, []domain.Answer{a}, rec.Answers)
}

func TestStore_FindOpenSession(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := memory.New()

	_, err := s.FindOpenSession(ctx, "quiz-1")
	assert.True(t, errors.Is(err, errors.CodeNotFound))

	require.NoError(t, s.SaveSession(ctx, domain.Session{SessionID: "old", QuizID: "quiz-1", Status: domain.StatusWaiting, CreatedAt: t0}))
	require.NoError(t, s.SaveSession(ctx, domain.Session{SessionID: "new", QuizID: "quiz-1", Status: domain.StatusActive, CreatedAt: t0.Add(time.Minute)}))
	require.NoError(t, s.SaveSession(ctx, domain.Session{SessionID: "done", QuizID: "quiz-1", Status: domain.StatusFinished, CreatedAt: t0.Add(time.Hour)}))

	id, err := s.FindOpenSession(ctx, "quiz-1")
	require.NoError(t, err)
	assert.Equal(t, "new", id)
}
