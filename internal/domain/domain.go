package domain

import (
	"time"
)

// DefaultTimeLimitSeconds is used when a question does not carry its own limit.
const DefaultTimeLimitSeconds = 20

// Status is the lifecycle state of a game session.
type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusActive   Status = "active"
	StatusFinished Status = "finished"
)

// QuestionSpec is one immutable question of a quiz.
type QuestionSpec struct {
	ID               string   `json:"id" yaml:"id"`
	Order            int      `json:"order" yaml:"order"`
	Text             string   `json:"text" yaml:"text"`
	CorrectAnswer    string   `json:"correctAnswer" yaml:"correctAnswer"`
	WrongAnswers     []string `json:"wrongAnswers" yaml:"wrongAnswers"`
	TimeLimitSeconds int      `json:"timeLimitSeconds" yaml:"timeLimitSeconds"`
}

// TimeLimit returns the question's time limit as a duration.
func (q QuestionSpec) TimeLimit() time.Duration {
	return time.Duration(q.TimeLimitSeconds) * time.Second
}

// Session is the persisted state of one play-through of a quiz.
type Session struct {
	SessionID            string
	QuizID               string
	HostID               string
	Status               Status
	CurrentQuestionIndex int
	QuestionStartedAt    *time.Time
	StartedAt            *time.Time
	EndedAt              *time.Time
	CreatedAt            time.Time
}

// Player is a participant bound to one session.
type Player struct {
	PlayerID       string
	SessionID      string
	Nickname       string
	Score          int
	AnswersCorrect int
	AnswersWrong   int
	IsActive       bool
	JoinedAt       time.Time
}

// Answer is immutable once recorded.
type Answer struct {
	PlayerID         string
	QuestionID       string
	SelectedAnswer   string
	IsCorrect        bool
	TimeTakenSeconds float64
	ScoreEarned      int
	AnsweredAt       time.Time
}

// Leaderboard is the ranked view of the active players of a session.
type Leaderboard struct {
	SessionID string             `json:"sessionId"`
	Status    Status             `json:"sessionStatus"`
	Entries   []LeaderboardEntry `json:"leaderboard"`
}

type LeaderboardEntry struct {
	PlayerID string `json:"playerId"`
	Nickname string `json:"nickname"`
	Score    int    `json:"score"`
	Rank     int    `json:"rank"`
}

// CurrentQuestion is the public view of the current question: the options never say which one is
// correct. CorrectAnswer is filled only for the host.
type CurrentQuestion struct {
	QuestionID       string   `json:"id"`
	Text             string   `json:"text"`
	Options          []string `json:"options"`
	TimeLimitSeconds int      `json:"timeLimitSeconds"`
	CorrectAnswer    string   `json:"correctAnswer,omitempty"`
}

type PlayerState struct {
	PlayerID                   string `json:"playerId"`
	Nickname                   string `json:"nickname"`
	Score                      int    `json:"score"`
	AnswersCorrect             int    `json:"answersCorrect"`
	AnswersWrong               int    `json:"answersWrong"`
	IsActive                   bool   `json:"isActive"`
	HasAnsweredCurrentQuestion bool   `json:"hasAnsweredCurrentQuestion"`
}

// Snapshot is the game state returned to polling clients.
type Snapshot struct {
	SessionID                           string             `json:"sessionId"`
	Status                              Status             `json:"status"`
	CurrentQuestionIndex                int                `json:"currentQuestionIndex"`
	TotalQuestions                      int                `json:"totalQuestions"`
	TimeLeftSeconds                     float64            `json:"timeLeftSeconds"`
	QuestionStartedAt                   *time.Time         `json:"questionStartedAt,omitempty"`
	CurrentQuestion                     *CurrentQuestion   `json:"currentQuestion,omitempty"`
	Players                             []PlayerState      `json:"players"`
	ResponsesReceivedForCurrentQuestion int                `json:"responsesReceivedForCurrentQuestion"`
	AutoAdvanced                        bool               `json:"autoAdvanced"`
	EndedAt                             *time.Time         `json:"endedAt,omitempty"`
	FinalScores                         []LeaderboardEntry `json:"finalScores,omitempty"`
	ServerTime                          time.Time          `json:"serverTime"`
}

// AnswerResult is the outcome of a submission, returned only to the submitting player.
type AnswerResult struct {
	IsCorrect     bool   `json:"isCorrect"`
	CorrectAnswer string `json:"correctAnswer"`
	ScoreEarned   int    `json:"scoreEarned"`
	TotalScore    int    `json:"totalScore"`
}

// Advance is the outcome of a question transition: either the next question or the final board.
type Advance struct {
	Finished       bool
	Question       *CurrentQuestion
	QuestionNumber int
	TotalQuestions int
	FinalScores    []LeaderboardEntry
}

// AnsweredQuestion pairs a recorded answer with the question it belongs to.
type AnsweredQuestion struct {
	Answer
	QuestionText  string
	QuestionOrder int
}

// PlayerResults is a player's complete record within a session.
type PlayerResults struct {
	Player  Player
	Rank    int
	Ranked  bool
	Answers []AnsweredQuestion
}

// SessionRecord is everything persisted about one session, used to rebuild it after a restart.
type SessionRecord struct {
	Session Session
	Players []Player
	Answers []Answer
}
