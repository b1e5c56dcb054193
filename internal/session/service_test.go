package session_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/errors"
	"github.com/victornm/livequiz/internal/event"
	"github.com/victornm/livequiz/internal/quiz"
	"github.com/victornm/livequiz/internal/session"
	"github.com/victornm/livequiz/internal/store/memory"
)

const host = "host-1"

var t0 = time.Date(2024, 10, 1, 12, 0, 0, 0, time.UTC)

func sampleQuiz() quiz.Quiz {
	return quiz.Quiz{
		ID:       "quiz-1",
		HostID:   host,
		Title:    "capitals",
		JoinCode: "CAP123",
		IsActive: true,
		Questions: []domain.QuestionSpec{
			{ID: "q1", Order: 1, Text: "France?", CorrectAnswer: "Paris", WrongAnswers: []string{"Lyon", "Nice", "Lille"}},
			{ID: "q2", Order: 2, Text: "Japan?", CorrectAnswer: "Tokyo", WrongAnswers: []string{"Osaka", "Kyoto", "Nagoya"}, TimeLimitSeconds: 10},
		},
	}
}

type recorder struct {
	mu     sync.Mutex
	events []event.Event
}

func (r *recorder) handle(_ context.Context, e event.Event) error {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	return nil
}

func (r *recorder) find(name string) []event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []event.Event
	for _, e := range r.events {
		if e.Name() == name {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	svc    *session.Service
	eb     *event.Bus
	clock  *clockwork.FakeClock
	store  *memory.Store
	quiz   *quiz.Memory
	events *recorder
}

func newFixture(t *testing.T, quizzes ...quiz.Quiz) fixture {
	t.Helper()

	if len(quizzes) == 0 {
		quizzes = []quiz.Quiz{sampleQuiz()}
	}
	qm, err := quiz.NewMemory(quizzes...)
	require.NoError(t, err)

	f := fixture{
		eb:     event.NewBus(),
		clock:  clockwork.NewFakeClockAt(t0),
		store:  memory.New(),
		quiz:   qm,
		events: &recorder{},
	}
	f.eb.SubscribeAll(f.events.handle)
	f.svc = f.newService()

	return f
}

func (f fixture) newService() *session.Service {
	return session.NewService(session.Config{
		EventBus: f.eb,
		Store:    f.store,
		Quizzes:  f.quiz,
		Clock:    f.clock,
	})
}

func TestService_CreateSession(t *testing.T) {
	inactive := sampleQuiz()
	inactive.ID, inactive.JoinCode, inactive.IsActive = "inactive", "", false

	empty := sampleQuiz()
	empty.ID, empty.JoinCode, empty.Questions = "empty", "", nil

	tests := map[string]struct {
		req    session.CreateSessionRequest
		assert func(t *testing.T, ss *domain.Session, err error)
	}{
		"host creates a waiting session": {
			req: session.CreateSessionRequest{QuizID: "quiz-1", HostID: host},
			assert: func(t *testing.T, ss *domain.Session, err error) {
				require.NoError(t, err)
				assert.Equal(t, domain.StatusWaiting, ss.Status)
				assert.Equal(t, host, ss.HostID)
				assert.NotEmpty(t, ss.SessionID)
			},
		},
		"someone else cannot": {
			req: session.CreateSessionRequest{QuizID: "quiz-1", HostID: "intruder"},
			assert: func(t *testing.T, _ *domain.Session, err error) {
				assert.True(t, errors.Is(err, errors.CodePermissionDenied))
			},
		},
		"unknown quiz": {
			req: session.CreateSessionRequest{QuizID: "nope", HostID: host},
			assert: func(t *testing.T, _ *domain.Session, err error) {
				assert.True(t, errors.Is(err, errors.CodeNotFound))
			},
		},
		"inactive quiz": {
			req: session.CreateSessionRequest{QuizID: "inactive", HostID: host},
			assert: func(t *testing.T, _ *domain.Session, err error) {
				assert.True(t, errors.Is(err, errors.CodeFailedPrecondition))
			},
		},
		"quiz without questions": {
			req: session.CreateSessionRequest{QuizID: "empty", HostID: host},
			assert: func(t *testing.T, _ *domain.Session, err error) {
				assert.True(t, errors.Is(err, errors.CodeFailedPrecondition))
			},
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t, sampleQuiz(), inactive, empty)
			ss, err := f.svc.CreateSession(context.Background(), tt.req)
			tt.assert(t, ss, err)
		})
	}
}

func TestService_JoinByCode(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)

	first, err := f.svc.JoinByCode(ctx, session.JoinByCodeRequest{JoinCode: "cap123", Nickname: " alice "})
	require.NoError(t, err)
	assert.Equal(t, "alice", first.Player.Nickname)
	assert.Equal(t, domain.StatusWaiting, first.Session.Status)

	second, err := f.svc.JoinByCode(ctx, session.JoinByCodeRequest{JoinCode: "CAP123", Nickname: "bob"})
	require.NoError(t, err)
	assert.Equal(t, first.Session.SessionID, second.Session.SessionID, "open session is reused")

	_, err = f.svc.JoinByCode(ctx, session.JoinByCodeRequest{JoinCode: "CAP123", Nickname: "bob"})
	assert.True(t, errors.Is(err, errors.CodeAlreadyExists))

	_, err = f.svc.JoinByCode(ctx, session.JoinByCodeRequest{JoinCode: "XXXXXX", Nickname: "carol"})
	assert.True(t, errors.Is(err, errors.CodeNotFound))

	_, err = f.svc.JoinByCode(ctx, session.JoinByCodeRequest{JoinCode: "CAP123", Nickname: "   "})
	assert.True(t, errors.Is(err, errors.CodeInvalidArgument))

	_, err = f.svc.JoinByCode(ctx, session.JoinByCodeRequest{JoinCode: "CAP123", Nickname: strings.Repeat("x", session.MaxNicknameLength+1)})
	assert.True(t, errors.Is(err, errors.CodeInvalidArgument))

	f.eb.Stop()
	assert.Len(t, f.events.find(domain.EventNameSessionCreated), 1)
	assert.Len(t, f.events.find(domain.EventNamePlayerJoined), 2)
}

func TestService_JoinByCode_Concurrent(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	const n = 20
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := f.svc.JoinByCode(context.Background(), session.JoinByCodeRequest{
				JoinCode: "CAP123",
				Nickname: "player" + string(rune('a'+i)),
			})
			if assert.NoError(t, err) {
				ids[i] = resp.Session.SessionID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id, "every player lands in the same session")
	}
}

func TestService_Game(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)

	ss, err := f.svc.CreateSession(ctx, session.CreateSessionRequest{QuizID: "quiz-1", HostID: host})
	require.NoError(t, err)
	id := ss.SessionID

	alice, err := f.svc.Join(ctx, session.JoinRequest{SessionID: id, Nickname: "alice"})
	require.NoError(t, err)
	f.clock.Advance(time.Second)
	bob, err := f.svc.Join(ctx, session.JoinRequest{SessionID: id, Nickname: "bob"})
	require.NoError(t, err)

	adv, err := f.svc.StartGame(ctx, session.StartGameRequest{SessionID: id, HostID: host})
	require.NoError(t, err)
	assert.Equal(t, "q1", adv.Question.QuestionID)

	_, err = f.svc.SubmitAnswer(ctx, session.SubmitAnswerRequest{SessionID: id, PlayerID: alice.PlayerID, QuestionID: "q1", SelectedAnswer: "Paris", TimeTakenSeconds: -1})
	assert.True(t, errors.Is(err, errors.CodeInvalidArgument))

	res, err := f.svc.SubmitAnswer(ctx, session.SubmitAnswerRequest{SessionID: id, PlayerID: alice.PlayerID, QuestionID: "q1", SelectedAnswer: "Paris", TimeTakenSeconds: 6})
	require.NoError(t, err)
	assert.Equal(t, &domain.AnswerResult{IsCorrect: true, CorrectAnswer: "Paris", ScoreEarned: 135, TotalScore: 135}, res)

	res, err = f.svc.SubmitAnswer(ctx, session.SubmitAnswerRequest{SessionID: id, PlayerID: bob.PlayerID, QuestionID: "q1", SelectedAnswer: "Lyon", TimeTakenSeconds: 2})
	require.NoError(t, err)
	assert.False(t, res.IsCorrect)

	hostView, err := f.svc.GetState(ctx, session.GetStateRequest{SessionID: id, RequesterID: host})
	require.NoError(t, err)
	assert.Equal(t, "Paris", hostView.CurrentQuestion.CorrectAnswer)
	assert.Equal(t, 2, hostView.ResponsesReceivedForCurrentQuestion)

	playerView, err := f.svc.GetState(ctx, session.GetStateRequest{SessionID: id, RequesterID: alice.PlayerID})
	require.NoError(t, err)
	assert.Empty(t, playerView.CurrentQuestion.CorrectAnswer)

	f.clock.Advance(21 * time.Second)
	snap, err := f.svc.GetState(ctx, session.GetStateRequest{SessionID: id})
	require.NoError(t, err)
	assert.True(t, snap.AutoAdvanced)
	assert.Equal(t, 1, snap.CurrentQuestionIndex)
	assert.Equal(t, 10.0, snap.TimeLeftSeconds)

	adv, err = f.svc.AdvanceQuestion(ctx, session.AdvanceQuestionRequest{SessionID: id, HostID: host})
	require.NoError(t, err)
	assert.True(t, adv.Finished)

	lb, err := f.svc.GetLeaderboard(ctx, session.GetLeaderboardRequest{SessionID: id})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFinished, lb.Status)
	require.Len(t, lb.Entries, 2)
	assert.Equal(t, "alice", lb.Entries[0].Nickname)

	results, err := f.svc.PlayerResults(ctx, session.PlayerResultsRequest{SessionID: id, PlayerID: bob.PlayerID})
	require.NoError(t, err)
	assert.Equal(t, 2, results.Rank)
	require.Len(t, results.Answers, 1)
	assert.False(t, results.Answers[0].IsCorrect)

	f.eb.Stop()
	assert.Equal(t, 1, len(f.events.find(domain.EventNameGameStarted)))
	assert.Equal(t, 2, len(f.events.find(domain.EventNameAnswerSubmitted)))

	advanced := f.events.find(domain.EventNameQuestionAdvanced)
	require.Len(t, advanced, 1)
	assert.Equal(t, domain.EventQuestionAdvanced{SessionID: id, QuestionIndex: 1, Auto: true}, advanced[0])

	finished := f.events.find(domain.EventNameSessionFinished)
	require.Len(t, finished, 1)
	e := finished[0].(domain.EventSessionFinished)
	assert.False(t, e.Auto)
	assert.Equal(t, lb.Entries, e.Leaderboard.Entries)
}

func TestService_Deactivate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)

	ss, err := f.svc.CreateSession(ctx, session.CreateSessionRequest{QuizID: "quiz-1", HostID: host})
	require.NoError(t, err)
	p, err := f.svc.Join(ctx, session.JoinRequest{SessionID: ss.SessionID, Nickname: "alice"})
	require.NoError(t, err)

	_, err = f.svc.Deactivate(ctx, session.DeactivateRequest{SessionID: ss.SessionID, PlayerID: p.PlayerID, HostID: p.PlayerID})
	assert.True(t, errors.Is(err, errors.CodePermissionDenied))

	for i := 0; i < 2; i++ {
		got, err := f.svc.Deactivate(ctx, session.DeactivateRequest{SessionID: ss.SessionID, PlayerID: p.PlayerID, HostID: host})
		require.NoError(t, err)
		assert.False(t, got.IsActive)
	}

	_, err = f.svc.StartGame(ctx, session.StartGameRequest{SessionID: ss.SessionID, HostID: host})
	assert.True(t, errors.Is(err, errors.CodeFailedPrecondition), "no active players")

	f.eb.Stop()
	assert.Len(t, f.events.find(domain.EventNamePlayerDeactivated), 1)
}

func TestService_Rehydrate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)

	ss, err := f.svc.CreateSession(ctx, session.CreateSessionRequest{QuizID: "quiz-1", HostID: host})
	require.NoError(t, err)
	p, err := f.svc.Join(ctx, session.JoinRequest{SessionID: ss.SessionID, Nickname: "alice"})
	require.NoError(t, err)
	_, err = f.svc.StartGame(ctx, session.StartGameRequest{SessionID: ss.SessionID, HostID: host})
	require.NoError(t, err)
	_, err = f.svc.SubmitAnswer(ctx, session.SubmitAnswerRequest{SessionID: ss.SessionID, PlayerID: p.PlayerID, QuestionID: "q1", SelectedAnswer: "Paris"})
	require.NoError(t, err)

	// A fresh service over the same store, as after a restart.
	restarted := f.newService()
	f.clock.Advance(5 * time.Second)

	snap, err := restarted.GetState(ctx, session.GetStateRequest{SessionID: ss.SessionID})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, snap.Status)
	assert.Equal(t, 15.0, snap.TimeLeftSeconds)
	assert.Equal(t, 1, snap.ResponsesReceivedForCurrentQuestion)
	require.Len(t, snap.Players, 1)
	assert.Equal(t, 150, snap.Players[0].Score)

	_, err = restarted.SubmitAnswer(ctx, session.SubmitAnswerRequest{SessionID: ss.SessionID, PlayerID: p.PlayerID, QuestionID: "q1", SelectedAnswer: "Paris"})
	assert.True(t, errors.Is(err, errors.CodeAlreadyExists))

	_, err = restarted.GetState(ctx, session.GetStateRequest{SessionID: "unknown"})
	assert.True(t, errors.Is(err, errors.CodeNotFound))
}
