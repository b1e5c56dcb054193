package quiz

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

// Postgres is a Repository backed by the quizzes and questions tables.
type Postgres struct {
	db *pgxpool.Pool
}

func NewPostgres(db *pgxpool.Pool) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) GetQuiz(ctx context.Context, quizID string) (Quiz, error) {
	const stmt = `
SELECT quiz_id, host_id, title, topic, difficulty, join_code, is_active
FROM quizzes
WHERE quiz_id = $1;`

	q, err := p.queryQuiz(ctx, stmt, quizID)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return Quiz{}, errors.NotFound("quiz not found: %s", quizID)
	}
	if err != nil {
		return Quiz{}, fmt.Errorf("quiz: get %s: %w", quizID, err)
	}

	return q, nil
}

func (p *Postgres) FindByJoinCode(ctx context.Context, code string) (Quiz, error) {
	const stmt = `
SELECT quiz_id, host_id, title, topic, difficulty, join_code, is_active
FROM quizzes
WHERE join_code = $1 AND is_active;`

	code = NormalizeJoinCode(code)
	q, err := p.queryQuiz(ctx, stmt, code)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return Quiz{}, errors.NotFound("invalid join code or quiz not active: %s", code)
	}
	if err != nil {
		return Quiz{}, fmt.Errorf("quiz: find by code %s: %w", code, err)
	}

	return q, nil
}

func (p *Postgres) queryQuiz(ctx context.Context, stmt string, arg any) (Quiz, error) {
	var q Quiz
	err := p.db.QueryRow(ctx, stmt, arg).Scan(&q.ID, &q.HostID, &q.Title, &q.Topic, &q.Difficulty, &q.JoinCode, &q.IsActive)
	if err != nil {
		return Quiz{}, err
	}

	q.Questions, err = p.listQuestions(ctx, q.ID)
	if err != nil {
		return Quiz{}, err
	}

	return q, nil
}

func (p *Postgres) listQuestions(ctx context.Context, quizID string) ([]domain.QuestionSpec, error) {
	const stmt = `
SELECT question_id, question_order, text, correct_answer, wrong_answers, time_limit_seconds
FROM questions
WHERE quiz_id = $1
ORDER BY question_order;`

	rows, err := p.db.Query(ctx, stmt, quizID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}

	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.QuestionSpec, error) {
		var q domain.QuestionSpec
		err := r.Scan(&q.ID, &q.Order, &q.Text, &q.CorrectAnswer, &q.WrongAnswers, &q.TimeLimitSeconds)
		return q, err
	})
}

// SaveQuiz validates q and upserts it together with its questions. A quiz without a join code
// gets a generated one.
func (p *Postgres) SaveQuiz(ctx context.Context, q Quiz) (err error) {
	q, err = Validate(q)
	if err != nil {
		return err
	}

	if q.JoinCode == "" {
		if q.JoinCode, err = NewJoinCode(); err != nil {
			return err
		}
	}

	tx, err := p.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("quiz: begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			err = stderrors.Join(err, tx.Rollback(ctx))
		}
	}()

	const (
		upsertQuizStmt = `
INSERT INTO quizzes (quiz_id, host_id, title, topic, difficulty, join_code, is_active)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (quiz_id) DO UPDATE SET
	host_id = EXCLUDED.host_id,
	title = EXCLUDED.title,
	topic = EXCLUDED.topic,
	difficulty = EXCLUDED.difficulty,
	join_code = EXCLUDED.join_code,
	is_active = EXCLUDED.is_active;`
		delQuestionsStmt = `DELETE FROM questions WHERE quiz_id = $1;`
		insQuestionStmt  = `
INSERT INTO questions (question_id, quiz_id, question_order, text, correct_answer, wrong_answers, time_limit_seconds)
VALUES ($1, $2, $3, $4, $5, $6, $7);`
	)

	_, err = tx.Exec(ctx, upsertQuizStmt, q.ID, q.HostID, q.Title, q.Topic, q.Difficulty, q.JoinCode, q.IsActive)
	if err != nil {
		return uniqueViolation(fmt.Errorf("quiz: upsert %s: %w", q.ID, err))
	}

	if _, err = tx.Exec(ctx, delQuestionsStmt, q.ID); err != nil {
		return fmt.Errorf("quiz: delete questions: %w", err)
	}

	b := &pgx.Batch{}
	for _, qs := range q.Questions {
		b.Queue(insQuestionStmt, qs.ID, q.ID, qs.Order, qs.Text, qs.CorrectAnswer, qs.WrongAnswers, qs.TimeLimitSeconds)
	}
	if err = tx.SendBatch(ctx, b).Close(); err != nil {
		return uniqueViolation(fmt.Errorf("quiz: insert questions: %w", err))
	}

	return tx.Commit(ctx)
}

func uniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
		return errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("%s", pgErr.Detail),
			errors.WithCause(err))
	}

	return err
}
