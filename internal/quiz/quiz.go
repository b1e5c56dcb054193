// Package quiz provides quizzes and their question sets to game sessions.
package quiz

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/errors"
)

const (
	JoinCodeLength   = 6
	joinCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	// WrongAnswerCount is the number of distractors every question carries.
	WrongAnswerCount = 3
)

type Quiz struct {
	ID         string                `json:"id" yaml:"id"`
	HostID     string                `json:"hostId" yaml:"hostId"`
	Title      string                `json:"title" yaml:"title"`
	Topic      string                `json:"topic" yaml:"topic"`
	Difficulty string                `json:"difficulty" yaml:"difficulty"`
	JoinCode   string                `json:"joinCode" yaml:"joinCode"`
	IsActive   bool                  `json:"isActive" yaml:"active"`
	Questions  []domain.QuestionSpec `json:"questions" yaml:"questions"`
}

// Provider supplies quizzes to the session service.
type Provider interface {
	GetQuiz(ctx context.Context, quizID string) (Quiz, error)
	FindByJoinCode(ctx context.Context, code string) (Quiz, error)
}

// Repository is a Provider that can also store quizzes.
type Repository interface {
	Provider
	SaveQuiz(ctx context.Context, q Quiz) error
}

// NewJoinCode returns a random code of JoinCodeLength uppercase letters and digits.
func NewJoinCode() (string, error) {
	size := big.NewInt(int64(len(joinCodeAlphabet)))

	var sb strings.Builder
	sb.Grow(JoinCodeLength)
	for i := 0; i < JoinCodeLength; i++ {
		n, err := rand.Int(rand.Reader, size)
		if err != nil {
			return "", fmt.Errorf("quiz: generate join code: %w", err)
		}
		sb.WriteByte(joinCodeAlphabet[n.Int64()])
	}

	return sb.String(), nil
}

// NormalizeJoinCode makes user input comparable with stored codes.
func NormalizeJoinCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Validate checks a quiz and returns it with defaults applied and questions sorted by order.
func Validate(q Quiz) (Quiz, error) {
	if q.ID == "" {
		return Quiz{}, invalid("quiz id is required")
	}

	if q.JoinCode != "" {
		q.JoinCode = NormalizeJoinCode(q.JoinCode)
		if len(q.JoinCode) != JoinCodeLength || strings.Trim(q.JoinCode, joinCodeAlphabet) != "" {
			return Quiz{}, invalid("quiz %s: join code must be %d letters or digits", q.ID, JoinCodeLength)
		}
	}

	questions, err := ValidateQuestions(q.Questions)
	if err != nil {
		return Quiz{}, fmt.Errorf("quiz %s: %w", q.ID, err)
	}
	q.Questions = questions

	return q, nil
}

// ValidateQuestions checks a question set: every question needs an id, text, a correct answer and
// exactly WrongAnswerCount wrong answers; ids and orders are unique. A missing time limit becomes
// domain.DefaultTimeLimitSeconds.
func ValidateQuestions(in []domain.QuestionSpec) ([]domain.QuestionSpec, error) {
	out := make([]domain.QuestionSpec, len(in))
	copy(out, in)

	ids := make(map[string]struct{}, len(out))
	orders := make(map[int]struct{}, len(out))
	for i := range out {
		q := &out[i]

		switch {
		case q.ID == "":
			return nil, invalid("question at position %d has no id", i)
		case strings.TrimSpace(q.Text) == "":
			return nil, invalid("question %s has no text", q.ID)
		case q.CorrectAnswer == "":
			return nil, invalid("question %s has no correct answer", q.ID)
		case len(q.WrongAnswers) != WrongAnswerCount:
			return nil, invalid("question %s needs exactly %d wrong answers, got %d", q.ID, WrongAnswerCount, len(q.WrongAnswers))
		case q.TimeLimitSeconds < 0:
			return nil, invalid("question %s has a negative time limit", q.ID)
		}

		for _, w := range q.WrongAnswers {
			if w == "" || w == q.CorrectAnswer {
				return nil, invalid("question %s has an empty or duplicate wrong answer", q.ID)
			}
		}

		if _, ok := ids[q.ID]; ok {
			return nil, invalid("duplicate question id %s", q.ID)
		}
		ids[q.ID] = struct{}{}

		if _, ok := orders[q.Order]; ok {
			return nil, invalid("duplicate question order %d", q.Order)
		}
		orders[q.Order] = struct{}{}

		if q.TimeLimitSeconds == 0 {
			q.TimeLimitSeconds = domain.DefaultTimeLimitSeconds
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Order < out[j].Order
	})

	return out, nil
}

func invalid(format string, args ...any) *errors.Error {
	return errors.New(errors.CodeInvalidArgument, errors.WithMessagef(format, args...))
}
