// Package postgres persists sessions, players and answers with pgx.
package postgres

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/errors"
)

const codeUniqueViolation = "23505"

type Store struct {
	db *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) SaveSession(ctx context.Context, ss domain.Session) error {
	const stmt = `
INSERT INTO sessions (session_id, quiz_id, host_id, status, current_question_index, question_started_at, started_at, ended_at, create_time)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (session_id) DO UPDATE SET
	status = EXCLUDED.status,
	current_question_index = EXCLUDED.current_question_index,
	question_started_at = EXCLUDED.question_started_at,
	started_at = EXCLUDED.started_at,
	ended_at = EXCLUDED.ended_at;`

	_, err := s.db.Exec(ctx, stmt,
		ss.SessionID, ss.QuizID, ss.HostID, string(ss.Status), ss.CurrentQuestionIndex,
		ss.QuestionStartedAt, ss.StartedAt, ss.EndedAt, ss.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: save session %s: %w", ss.SessionID, err)
	}

	return nil
}

func (s *Store) SavePlayer(ctx context.Context, p domain.Player) error {
	if err := upsertPlayer(ctx, s.db, p); err != nil {
		return convert(fmt.Errorf("postgres: save player %s: %w", p.PlayerID, err))
	}

	return nil
}

// SaveAnswer inserts the answer and updates the player's counters in one transaction.
func (s *Store) SaveAnswer(ctx context.Context, p domain.Player, a domain.Answer) (err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			err = stderrors.Join(err, tx.Rollback(ctx))
		}
	}()

	const stmt = `
INSERT INTO answers (session_id, player_id, question_id, selected_answer, is_correct, time_taken_seconds, score_earned, answered_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8);`

	_, err = tx.Exec(ctx, stmt, p.SessionID, a.PlayerID, a.QuestionID, a.SelectedAnswer, a.IsCorrect, a.TimeTakenSeconds, a.ScoreEarned, a.AnsweredAt)
	if err != nil {
		return convert(fmt.Errorf("postgres: insert answer: %w", err))
	}

	if err = upsertPlayer(ctx, tx, p); err != nil {
		return fmt.Errorf("postgres: update player: %w", err)
	}

	return tx.Commit(ctx)
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func upsertPlayer(ctx context.Context, db execer, p domain.Player) error {
	const stmt = `
INSERT INTO players (player_id, session_id, nickname, score, answers_correct, answers_wrong, is_active, joined_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (player_id) DO UPDATE SET
	score = EXCLUDED.score,
	answers_correct = EXCLUDED.answers_correct,
	answers_wrong = EXCLUDED.answers_wrong,
	is_active = EXCLUDED.is_active;`

	_, err := db.Exec(ctx, stmt, p.PlayerID, p.SessionID, p.Nickname, p.Score, p.AnswersCorrect, p.AnswersWrong, p.IsActive, p.JoinedAt)
	return err
}

// LoadSession reads a session with its players in join order and all its answers.
func (s *Store) LoadSession(ctx context.Context, sessionID string) (domain.SessionRecord, error) {
	const sessionStmt = `
SELECT session_id, quiz_id, host_id, status, current_question_index, question_started_at, started_at, ended_at, create_time
FROM sessions
WHERE session_id = $1;`

	var (
		rec    domain.SessionRecord
		status string
	)
	ss := &rec.Session
	err := s.db.QueryRow(ctx, sessionStmt, sessionID).Scan(
		&ss.SessionID, &ss.QuizID, &ss.HostID, &status, &ss.CurrentQuestionIndex,
		&ss.QuestionStartedAt, &ss.StartedAt, &ss.EndedAt, &ss.CreatedAt,
	)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return domain.SessionRecord{}, errors.NotFound("session not found: %s", sessionID)
	}
	if err != nil {
		return domain.SessionRecord{}, fmt.Errorf("postgres: load session %s: %w", sessionID, err)
	}
	ss.Status = domain.Status(status)

	if rec.Players, err = s.listPlayers(ctx, sessionID); err != nil {
		return domain.SessionRecord{}, err
	}

	if rec.Answers, err = s.listAnswers(ctx, sessionID); err != nil {
		return domain.SessionRecord{}, err
	}

	return rec, nil
}

func (s *Store) listPlayers(ctx context.Context, sessionID string) ([]domain.Player, error) {
	const stmt = `
SELECT player_id, session_id, nickname, score, answers_correct, answers_wrong, is_active, joined_at
FROM players
WHERE session_id = $1
ORDER BY joined_at, player_id;`

	rows, err := s.db.Query(ctx, stmt, sessionID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list players: %w", err)
	}

	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.Player, error) {
		var p domain.Player
		err := r.Scan(&p.PlayerID, &p.SessionID, &p.Nickname, &p.Score, &p.AnswersCorrect, &p.AnswersWrong, &p.IsActive, &p.JoinedAt)
		return p, err
	})
}

func (s *Store) listAnswers(ctx context.Context, sessionID string) ([]domain.Answer, error) {
	const stmt = `
SELECT player_id, question_id, selected_answer, is_correct, time_taken_seconds, score_earned, answered_at
FROM answers
WHERE session_id = $1
ORDER BY answered_at;`

	rows, err := s.db.Query(ctx, stmt, sessionID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list answers: %w", err)
	}

	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.Answer, error) {
		var a domain.Answer
		err := r.Scan(&a.PlayerID, &a.QuestionID, &a.SelectedAnswer, &a.IsCorrect, &a.TimeTakenSeconds, &a.ScoreEarned, &a.AnsweredAt)
		return a, err
	})
}

// FindOpenSession returns the most recently created waiting or active session of a quiz.
func (s *Store) FindOpenSession(ctx context.Context, quizID string) (string, error) {
	const stmt = `
SELECT session_id
FROM sessions
WHERE quiz_id = $1 AND status <> 'finished'
ORDER BY create_time DESC
LIMIT 1;`

	var id string
	err := s.db.QueryRow(ctx, stmt, quizID).Scan(&id)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return "", errors.NotFound("no open session for quiz %s", quizID)
	}
	if err != nil {
		return "", fmt.Errorf("postgres: find open session: %w", err)
	}

	return id, nil
}

func convert(err error) error {
	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
		return errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("%s", pgErr.Detail),
			errors.WithCause(err))
	}

	return err
}
