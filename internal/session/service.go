package session

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/errors"
	"github.com/victornm/livequiz/internal/event"
	"github.com/victornm/livequiz/internal/game"
	"github.com/victornm/livequiz/internal/quiz"
)

const MaxNicknameLength = 50

// Store persists sessions and can rebuild them.
type Store interface {
	game.Store
	LoadSession(ctx context.Context, sessionID string) (domain.SessionRecord, error)
	FindOpenSession(ctx context.Context, quizID string) (string, error)
}

type Config struct {
	EventBus *event.Bus
	Store    Store
	Quizzes  quiz.Provider
	Clock    clockwork.Clock
}

// Service owns the live sessions of this process. Each session serializes its own operations; the
// service lock only guards the lookup table.
type Service struct {
	eb      *event.Bus
	store   Store
	quizzes quiz.Provider
	clock   clockwork.Clock

	mu       sync.RWMutex
	sessions map[string]*game.Session

	loads sync.Map // sessionID -> *sync.Mutex
	opens singleflight.Group
}

func NewService(c Config) *Service {
	clock := c.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &Service{
		eb:       c.EventBus,
		store:    c.Store,
		quizzes:  c.Quizzes,
		clock:    clock,
		sessions: make(map[string]*game.Session),
	}
}

// CreateSessionRequest represents a request to start a new play-through of a quiz.
type CreateSessionRequest struct {
	QuizID string
	// HostID must be the quiz's host.
	HostID string
}

// CreateSession creates a waiting session for an active quiz with at least one question.
func (s *Service) CreateSession(ctx context.Context, req CreateSessionRequest) (*domain.Session, error) {
	q, err := s.quizzes.GetQuiz(ctx, req.QuizID)
	if err != nil {
		return nil, err
	}

	if q.HostID != req.HostID {
		return nil, errors.Unauthorized("only the quiz host can start a session")
	}

	return s.createSession(ctx, q)
}

func (s *Service) createSession(ctx context.Context, q quiz.Quiz) (*domain.Session, error) {
	if !q.IsActive {
		return nil, errors.PreconditionFailed("quiz %s is not active", q.ID)
	}

	questions, err := quiz.ValidateQuestions(q.Questions)
	if err != nil {
		return nil, err
	}
	if len(questions) == 0 {
		return nil, errors.PreconditionFailed("quiz %s has no questions", q.ID)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate session ID: %w", err)
	}

	ss := domain.Session{
		SessionID: id.String(),
		QuizID:    q.ID,
		HostID:    q.HostID,
		Status:    domain.StatusWaiting,
		CreatedAt: s.clock.Now(),
	}

	// Registered before it is saved, so a concurrent lookup through the store never rebuilds a
	// second copy.
	s.mu.Lock()
	s.sessions[ss.SessionID] = game.New(game.Config{
		Session:   ss,
		Questions: questions,
		Store:     s.store,
		Clock:     s.clock,
	})
	s.mu.Unlock()

	if err := s.store.SaveSession(ctx, ss); err != nil {
		s.mu.Lock()
		delete(s.sessions, ss.SessionID)
		s.mu.Unlock()
		return nil, fmt.Errorf("session: save: %w", err)
	}

	slog.InfoContext(ctx, "session: created", "session_id", ss.SessionID, "quiz_id", q.ID, "questions", len(questions))

	s.eb.Publish(ctx, domain.EventSessionCreated{
		SessionID: ss.SessionID,
		QuizID:    ss.QuizID,
	})

	return &ss, nil
}

type JoinRequest struct {
	SessionID string
	Nickname  string
}

// Join adds a player to a session.
func (s *Service) Join(ctx context.Context, req JoinRequest) (*domain.Player, error) {
	nickname, err := validateNickname(req.Nickname)
	if err != nil {
		return nil, err
	}

	g, err := s.get(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}

	return s.join(ctx, g, nickname)
}

func (s *Service) join(ctx context.Context, g *game.Session, nickname string) (*domain.Player, error) {
	p, err := g.Join(ctx, nickname)
	if err != nil {
		return nil, err
	}

	s.eb.Publish(ctx, domain.EventPlayerJoined{
		Player: p,
	})

	return &p, nil
}

type JoinByCodeRequest struct {
	JoinCode string
	Nickname string
}

type JoinByCodeResponse struct {
	Player  domain.Player
	Session domain.Session
}

// JoinByCode joins the open session of the quiz with the given code, creating one if the quiz has
// none.
func (s *Service) JoinByCode(ctx context.Context, req JoinByCodeRequest) (*JoinByCodeResponse, error) {
	nickname, err := validateNickname(req.Nickname)
	if err != nil {
		return nil, err
	}

	q, err := s.quizzes.FindByJoinCode(ctx, req.JoinCode)
	if err != nil {
		return nil, err
	}

	g, err := s.openSession(ctx, q)
	if err != nil {
		return nil, err
	}

	p, err := s.join(ctx, g, nickname)
	if err != nil {
		return nil, err
	}

	return &JoinByCodeResponse{
		Player:  *p,
		Session: g.State(),
	}, nil
}

// openSession finds or creates the open session of a quiz. Concurrent callers for the same quiz
// share one lookup so they end up in the same session.
func (s *Service) openSession(ctx context.Context, q quiz.Quiz) (*game.Session, error) {
	v, err, _ := s.opens.Do(q.ID, func() (any, error) {
		id, err := s.store.FindOpenSession(ctx, q.ID)
		if err == nil {
			return s.get(ctx, id)
		}
		if !errors.Is(err, errors.CodeNotFound) {
			return nil, err
		}

		ss, err := s.createSession(ctx, q)
		if err != nil {
			return nil, err
		}

		return s.get(ctx, ss.SessionID)
	})
	if err != nil {
		return nil, err
	}

	return v.(*game.Session), nil
}

type StartGameRequest struct {
	SessionID string
	HostID    string
}

func (s *Service) StartGame(ctx context.Context, req StartGameRequest) (*domain.Advance, error) {
	g, err := s.get(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}

	adv, err := g.StartGame(ctx, req.HostID)
	if err != nil {
		return nil, err
	}

	active := 0
	for _, p := range g.Players() {
		if p.IsActive {
			active++
		}
	}

	slog.InfoContext(ctx, "session: game started", "session_id", req.SessionID, "players", active)

	s.eb.Publish(ctx, domain.EventGameStarted{
		SessionID: req.SessionID,
		Players:   active,
	})

	return &adv, nil
}

type AdvanceQuestionRequest struct {
	SessionID string
	HostID    string
}

func (s *Service) AdvanceQuestion(ctx context.Context, req AdvanceQuestionRequest) (*domain.Advance, error) {
	g, err := s.get(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}

	adv, err := g.AdvanceQuestion(ctx, req.HostID)
	if err != nil {
		return nil, err
	}

	s.publishAdvance(ctx, req.SessionID, adv.Finished, adv.QuestionNumber-1, adv.FinalScores, false)
	return &adv, nil
}

type GetStateRequest struct {
	SessionID string
	// RequesterID is the host ID when the host polls; the snapshot then carries the correct answer.
	RequesterID string
}

// GetState returns the session snapshot, advancing an expired question first.
func (s *Service) GetState(ctx context.Context, req GetStateRequest) (*domain.Snapshot, error) {
	g, err := s.get(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}

	snap, err := g.GetState(ctx, req.RequesterID)
	if err != nil {
		return nil, err
	}

	if snap.AutoAdvanced {
		s.publishAdvance(ctx, req.SessionID, snap.Status == domain.StatusFinished, snap.CurrentQuestionIndex, snap.FinalScores, true)
	}

	return &snap, nil
}

func (s *Service) publishAdvance(ctx context.Context, sessionID string, finished bool, index int, final []domain.LeaderboardEntry, auto bool) {
	if finished {
		slog.InfoContext(ctx, "session: finished", "session_id", sessionID, "auto", auto)

		s.eb.Publish(ctx, domain.EventSessionFinished{
			Leaderboard: domain.Leaderboard{
				SessionID: sessionID,
				Status:    domain.StatusFinished,
				Entries:   final,
			},
			Auto: auto,
		})
		return
	}

	s.eb.Publish(ctx, domain.EventQuestionAdvanced{
		SessionID:     sessionID,
		QuestionIndex: index,
		Auto:          auto,
	})
}

type SubmitAnswerRequest struct {
	SessionID        string
	PlayerID         string
	QuestionID       string
	SelectedAnswer   string
	TimeTakenSeconds float64
}

// SubmitAnswer records a player's answer and returns the result, including the correct answer.
func (s *Service) SubmitAnswer(ctx context.Context, req SubmitAnswerRequest) (*domain.AnswerResult, error) {
	if req.TimeTakenSeconds < 0 || math.IsNaN(req.TimeTakenSeconds) || math.IsInf(req.TimeTakenSeconds, 0) {
		return nil, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("time taken must be a non-negative number"))
	}

	g, err := s.get(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}

	sub, err := g.SubmitAnswer(ctx, req.PlayerID, req.QuestionID, req.SelectedAnswer, req.TimeTakenSeconds)
	if err != nil {
		return nil, err
	}

	s.eb.Publish(ctx, domain.EventAnswerSubmitted{
		SessionID: req.SessionID,
		Answer:    sub.Answer,
		Player:    sub.Player,
	})

	return &sub.Result, nil
}

type GetLeaderboardRequest struct {
	SessionID string
}

// GetLeaderboard returns the ranking of the active players. It never advances the session.
func (s *Service) GetLeaderboard(ctx context.Context, req GetLeaderboardRequest) (*domain.Leaderboard, error) {
	g, err := s.get(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}

	l := g.Leaderboard()
	return &l, nil
}

type DeactivateRequest struct {
	SessionID string
	PlayerID  string
	HostID    string
}

// Deactivate removes a player from play. Only the host may do this.
func (s *Service) Deactivate(ctx context.Context, req DeactivateRequest) (*domain.Player, error) {
	g, err := s.get(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}

	if req.HostID != g.HostID() {
		return nil, errors.Unauthorized("only the host can remove players")
	}

	p, changed, err := g.Deactivate(ctx, req.PlayerID)
	if err != nil {
		return nil, err
	}

	if changed {
		s.eb.Publish(ctx, domain.EventPlayerDeactivated{
			Player: p,
		})
	}

	return &p, nil
}

type PlayerResultsRequest struct {
	SessionID string
	PlayerID  string
}

func (s *Service) PlayerResults(ctx context.Context, req PlayerResultsRequest) (*domain.PlayerResults, error) {
	g, err := s.get(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}

	res, err := g.PlayerResults(req.PlayerID)
	if err != nil {
		return nil, err
	}

	return &res, nil
}

// get returns the live session, rebuilding it from the store if this process has not seen it.
func (s *Service) get(ctx context.Context, sessionID string) (*game.Session, error) {
	s.mu.RLock()
	g, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if ok {
		return g, nil
	}

	// One rebuild per session at a time; the map is re-checked under the load lock.
	l, _ := s.loads.LoadOrStore(sessionID, new(sync.Mutex))
	mu := l.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()
	defer s.loads.Delete(sessionID)

	s.mu.RLock()
	g, ok = s.sessions[sessionID]
	s.mu.RUnlock()
	if ok {
		return g, nil
	}

	g, err := s.rehydrate(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.sessions[sessionID]; ok {
		return existing, nil
	}
	s.sessions[sessionID] = g

	return g, nil
}

func (s *Service) rehydrate(ctx context.Context, sessionID string) (*game.Session, error) {
	rec, err := s.store.LoadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	q, err := s.quizzes.GetQuiz(ctx, rec.Session.QuizID)
	if err != nil {
		return nil, fmt.Errorf("session: load quiz %s of session %s: %w", rec.Session.QuizID, sessionID, err)
	}

	questions, err := quiz.ValidateQuestions(q.Questions)
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "session: rehydrated", "session_id", sessionID, "status", rec.Session.Status, "players", len(rec.Players))

	return game.New(game.Config{
		Session:   rec.Session,
		Questions: questions,
		Store:     s.store,
		Clock:     s.clock,
		Players:   rec.Players,
		Answers:   rec.Answers,
	}), nil
}

func validateNickname(nickname string) (string, error) {
	nickname = strings.TrimSpace(nickname)
	if nickname == "" {
		return "", errors.New(errors.CodeInvalidArgument, errors.WithMessagef("nickname is required"))
	}

	if utf8.RuneCountInString(nickname) > MaxNicknameLength {
		return "", errors.New(errors.CodeInvalidArgument, errors.WithMessagef("nickname must be at most %d characters", MaxNicknameLength))
	}

	return nickname, nil
}
