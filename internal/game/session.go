// Package game implements the state machine of one live quiz session.
//
// A Session is the single serialization point for everything that happens in one play-through:
// joins, host commands, polls and answers all take the session lock, so check-then-write and
// read-then-advance sequences are atomic. Sessions never share locks with each other.
//
// Question progression has no timer of its own. An expired question is advanced the next time
// anybody reads the state, so an abandoned session simply stops progressing.
package game

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"

	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/errors"
	"github.com/victornm/livequiz/internal/leaderboard"
	"github.com/victornm/livequiz/internal/score"
)

// Store durably records session state. Each call must be atomic: SaveAnswer stores the answer
// and the updated player together or not at all. The session applies a change in memory only
// after the store accepted it.
type Store interface {
	SaveSession(ctx context.Context, s domain.Session) error
	SavePlayer(ctx context.Context, p domain.Player) error
	SaveAnswer(ctx context.Context, p domain.Player, a domain.Answer) error
}

type Config struct {
	Session   domain.Session
	Questions []domain.QuestionSpec
	Store     Store
	Clock     clockwork.Clock

	// Players and Answers rehydrate a session loaded from the store.
	Players []domain.Player
	Answers []domain.Answer
}

type Session struct {
	clock clockwork.Clock
	store Store

	questions []domain.QuestionSpec
	index     map[string]int
	hostID    string

	mu      sync.Mutex
	state   domain.Session
	players *registry
	answers *ledger
}

func New(c Config) *Session {
	questions := make([]domain.QuestionSpec, len(c.Questions))
	copy(questions, c.Questions)
	for i := range questions {
		if questions[i].TimeLimitSeconds <= 0 {
			questions[i].TimeLimitSeconds = domain.DefaultTimeLimitSeconds
		}
	}
	sort.SliceStable(questions, func(i, j int) bool {
		return questions[i].Order < questions[j].Order
	})

	index := make(map[string]int, len(questions))
	for i, q := range questions {
		index[q.ID] = i
	}

	clock := c.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	state := c.Session
	if state.Status == "" {
		state.Status = domain.StatusWaiting
	}

	return &Session{
		clock:     clock,
		store:     c.Store,
		questions: questions,
		index:     index,
		hostID:    state.HostID,
		state:     state,
		players:   newRegistry(c.Players),
		answers:   newLedger(c.Answers),
	}
}

// HostID never changes, so it is readable without the session lock.
func (s *Session) HostID() string {
	return s.hostID
}

// State returns a copy of the session record.
func (s *Session) State() domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

// HasQuestion reports whether questionID belongs to this session's quiz.
func (s *Session) HasQuestion(questionID string) bool {
	_, ok := s.index[questionID]
	return ok
}

// Join adds a new player. Nicknames are unique among all players of the session, active or not.
func (s *Session) Join(ctx context.Context, nickname string) (domain.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Status == domain.StatusFinished {
		return domain.Player{}, errors.PreconditionFailed("session %s is finished", s.state.SessionID)
	}

	if s.players.nicknameTaken(nickname) {
		return domain.Player{}, errors.Conflict("nickname already taken in this session: %s", nickname)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return domain.Player{}, fmt.Errorf("game: generate player ID: %w", err)
	}

	p := domain.Player{
		PlayerID:  id.String(),
		SessionID: s.state.SessionID,
		Nickname:  nickname,
		IsActive:  true,
		JoinedAt:  s.clock.Now(),
	}

	if err := s.store.SavePlayer(ctx, p); err != nil {
		return domain.Player{}, fmt.Errorf("game: save player: %w", err)
	}

	s.players.put(p)
	return p, nil
}

// Deactivate removes a player from scoring, response tracking and the leaderboard. The player's
// answers are kept. The returned bool is false when the player was already inactive.
func (s *Session) Deactivate(ctx context.Context, playerID string) (domain.Player, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.players.get(playerID)
	if !ok {
		return domain.Player{}, false, errors.NotFound("player not found: session=%s player=%s", s.state.SessionID, playerID)
	}

	if !p.IsActive {
		return p, false, nil
	}

	p.IsActive = false
	if err := s.store.SavePlayer(ctx, p); err != nil {
		return domain.Player{}, false, fmt.Errorf("game: save player: %w", err)
	}

	s.players.put(p)
	return p, true, nil
}

// StartGame moves a waiting session to its first question.
func (s *Session) StartGame(ctx context.Context, requestingHost string) (domain.Advance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if requestingHost != s.state.HostID {
		return domain.Advance{}, errors.Unauthorized("only the host can start the game")
	}

	if s.state.Status != domain.StatusWaiting {
		return domain.Advance{}, errors.PreconditionFailed("session %s is %s, not waiting", s.state.SessionID, s.state.Status)
	}

	if len(s.questions) == 0 {
		return domain.Advance{}, errors.PreconditionFailed("quiz has no questions")
	}

	if s.players.activeCount() == 0 {
		return domain.Advance{}, errors.PreconditionFailed("no players have joined yet")
	}

	now := s.clock.Now()
	next := s.state
	next.Status = domain.StatusActive
	next.StartedAt = &now
	next.CurrentQuestionIndex = 0
	next.QuestionStartedAt = &now

	if err := s.store.SaveSession(ctx, next); err != nil {
		return domain.Advance{}, fmt.Errorf("game: save session: %w", err)
	}

	s.state = next
	return s.advanceResultLocked(true), nil
}

// AdvanceQuestion is the host-driven transition to the next question, or to Finished after the
// last one.
func (s *Session) AdvanceQuestion(ctx context.Context, requestingHost string) (domain.Advance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if requestingHost != s.state.HostID {
		return domain.Advance{}, errors.Unauthorized("only the host can control questions")
	}

	if s.state.Status != domain.StatusActive {
		return domain.Advance{}, errors.PreconditionFailed("session %s is %s, not active", s.state.SessionID, s.state.Status)
	}

	if err := s.advanceLocked(ctx, s.clock.Now()); err != nil {
		return domain.Advance{}, err
	}

	return s.advanceResultLocked(true), nil
}

// GetState returns the current snapshot. If the current question's deadline has passed, the
// session advances exactly one step first and the snapshot reports AutoAdvanced. The correct
// answer of the current question is included only when requester is the host.
func (s *Session) GetState(ctx context.Context, requester string) (domain.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	auto := false
	if s.state.Status == domain.StatusActive && s.timeLeftLocked(now) == 0 {
		if err := s.advanceLocked(ctx, now); err != nil {
			return domain.Snapshot{}, err
		}
		auto = true
	}

	return s.snapshotLocked(now, auto, requester != "" && requester == s.state.HostID), nil
}

// Submission is the full outcome of SubmitAnswer.
type Submission struct {
	Result domain.AnswerResult
	Player domain.Player
	Answer domain.Answer
}

// SubmitAnswer records a player's only answer to a question and credits its score.
func (s *Session) SubmitAnswer(ctx context.Context, playerID, questionID, selectedAnswer string, timeTakenSeconds float64) (Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.players.get(playerID)
	if !ok {
		return Submission{}, errors.NotFound("player not found: session=%s player=%s", s.state.SessionID, playerID)
	}

	if !p.IsActive {
		return Submission{}, errors.PreconditionFailed("player %s is not active", playerID)
	}

	i, ok := s.index[questionID]
	if !ok {
		return Submission{}, errors.InvalidReference("invalid question for this quiz: %s", questionID)
	}
	q := s.questions[i]

	if s.answers.has(playerID, questionID) {
		return Submission{}, errors.Conflict("already answered this question: player=%s question=%s", playerID, questionID)
	}

	correct := selectedAnswer == q.CorrectAnswer
	earned := score.Points(correct, timeTakenSeconds, q.TimeLimitSeconds)

	a := domain.Answer{
		PlayerID:         playerID,
		QuestionID:       questionID,
		SelectedAnswer:   selectedAnswer,
		IsCorrect:        correct,
		TimeTakenSeconds: timeTakenSeconds,
		ScoreEarned:      earned,
		AnsweredAt:       s.clock.Now(),
	}

	if correct {
		p.Score += earned
		p.AnswersCorrect++
	} else {
		p.AnswersWrong++
	}

	if err := s.store.SaveAnswer(ctx, p, a); err != nil {
		return Submission{}, fmt.Errorf("game: save answer: %w", err)
	}

	s.answers.record(a)
	s.players.put(p)

	return Submission{
		Result: domain.AnswerResult{
			IsCorrect:     correct,
			CorrectAnswer: q.CorrectAnswer,
			ScoreEarned:   earned,
			TotalScore:    p.Score,
		},
		Player: p,
		Answer: a,
	}, nil
}

// Leaderboard ranks the active players.
func (s *Session) Leaderboard() domain.Leaderboard {
	s.mu.Lock()
	defer s.mu.Unlock()

	return leaderboard.Build(s.state.SessionID, s.state.Status, s.players.all())
}

// Players returns all players in join order.
func (s *Session) Players() []domain.Player {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.players.all()
}

// Player returns one player with its current rank, if ranked.
func (s *Session) Player(playerID string) (domain.Player, int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.players.get(playerID)
	if !ok {
		return domain.Player{}, 0, false, errors.NotFound("player not found: session=%s player=%s", s.state.SessionID, playerID)
	}

	rank, ranked := leaderboard.GetRank(s.players.all(), playerID)
	return p, rank, ranked, nil
}

// PlayerResults returns the player's answers in question order.
func (s *Session) PlayerResults(playerID string) (domain.PlayerResults, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.players.get(playerID)
	if !ok {
		return domain.PlayerResults{}, errors.NotFound("player not found: session=%s player=%s", s.state.SessionID, playerID)
	}

	answered := s.answers.answeredBy(playerID)
	out := make([]domain.AnsweredQuestion, 0, len(answered))
	for _, a := range answered {
		q := s.questions[s.index[a.QuestionID]]
		out = append(out, domain.AnsweredQuestion{
			Answer:        a,
			QuestionText:  q.Text,
			QuestionOrder: q.Order,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].QuestionOrder < out[j].QuestionOrder
	})

	rank, ranked := leaderboard.GetRank(s.players.all(), playerID)
	return domain.PlayerResults{
		Player:  p,
		Rank:    rank,
		Ranked:  ranked,
		Answers: out,
	}, nil
}

// advanceLocked moves to the next question, or finishes the session when the current question is
// the last one. The index is never moved past the last question.
func (s *Session) advanceLocked(ctx context.Context, now time.Time) error {
	next := s.state
	if next.CurrentQuestionIndex >= len(s.questions)-1 {
		next.Status = domain.StatusFinished
		next.EndedAt = &now
	} else {
		next.CurrentQuestionIndex++
		next.QuestionStartedAt = &now
	}

	if err := s.store.SaveSession(ctx, next); err != nil {
		return fmt.Errorf("game: save session: %w", err)
	}

	s.state = next
	return nil
}

func (s *Session) advanceResultLocked(host bool) domain.Advance {
	if s.state.Status == domain.StatusFinished {
		return domain.Advance{
			Finished:       true,
			TotalQuestions: len(s.questions),
			FinalScores:    leaderboard.Entries(leaderboard.Rank(s.players.all())),
		}
	}

	return domain.Advance{
		Question:       s.currentQuestionLocked(host),
		QuestionNumber: s.state.CurrentQuestionIndex + 1,
		TotalQuestions: len(s.questions),
	}
}

func (s *Session) timeLeftLocked(now time.Time) time.Duration {
	if s.state.Status != domain.StatusActive || s.state.QuestionStartedAt == nil {
		return 0
	}

	q := s.questions[s.state.CurrentQuestionIndex]
	left := q.TimeLimit() - now.Sub(*s.state.QuestionStartedAt)
	if left < 0 {
		return 0
	}

	return left
}

func (s *Session) currentQuestionLocked(host bool) *domain.CurrentQuestion {
	if s.state.Status != domain.StatusActive {
		return nil
	}

	q := s.questions[s.state.CurrentQuestionIndex]
	options := make([]string, 0, len(q.WrongAnswers)+1)
	options = append(options, q.CorrectAnswer)
	options = append(options, q.WrongAnswers...)
	sort.Strings(options)

	cq := &domain.CurrentQuestion{
		QuestionID:       q.ID,
		Text:             q.Text,
		Options:          options,
		TimeLimitSeconds: q.TimeLimitSeconds,
	}
	if host {
		cq.CorrectAnswer = q.CorrectAnswer
	}

	return cq
}

func (s *Session) snapshotLocked(now time.Time, auto, host bool) domain.Snapshot {
	snap := domain.Snapshot{
		SessionID:         s.state.SessionID,
		Status:            s.state.Status,
		TotalQuestions:    len(s.questions),
		QuestionStartedAt: s.state.QuestionStartedAt,
		CurrentQuestion:   s.currentQuestionLocked(host),
		AutoAdvanced:      auto,
		EndedAt:           s.state.EndedAt,
		ServerTime:        now,
	}

	if s.state.Status != domain.StatusWaiting {
		snap.CurrentQuestionIndex = s.state.CurrentQuestionIndex
	}

	left := decimal.NewFromFloat(s.timeLeftLocked(now).Seconds()).Round(1)
	snap.TimeLeftSeconds = left.InexactFloat64()

	var current string
	if snap.CurrentQuestion != nil {
		current = snap.CurrentQuestion.QuestionID
	}

	players := s.players.all()
	snap.Players = make([]domain.PlayerState, 0, len(players))
	for _, p := range players {
		answered := current != "" && s.answers.has(p.PlayerID, current)
		if answered && p.IsActive {
			snap.ResponsesReceivedForCurrentQuestion++
		}

		snap.Players = append(snap.Players, domain.PlayerState{
			PlayerID:                   p.PlayerID,
			Nickname:                   p.Nickname,
			Score:                      p.Score,
			AnswersCorrect:             p.AnswersCorrect,
			AnswersWrong:               p.AnswersWrong,
			IsActive:                   p.IsActive,
			HasAnsweredCurrentQuestion: answered && p.IsActive,
		})
	}

	if s.state.Status == domain.StatusFinished {
		snap.FinalScores = leaderboard.Entries(leaderboard.Rank(players))
	}

	return snap
}
