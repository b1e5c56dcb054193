package api

import (
	"time"

	"github.com/victornm/livequiz/internal/domain"
)

type (
	sessionResponse struct {
		SessionID            string        `json:"sessionId"`
		QuizID               string        `json:"quizId"`
		HostID               string        `json:"hostId"`
		Status               domain.Status `json:"status"`
		CurrentQuestionIndex int           `json:"currentQuestionIndex"`
		QuestionStartedAt    *time.Time    `json:"questionStartedAt,omitempty"`
		StartedAt            *time.Time    `json:"startedAt,omitempty"`
		EndedAt              *time.Time    `json:"endedAt,omitempty"`
		CreatedAt            time.Time     `json:"createdAt"`
	}

	playerResponse struct {
		PlayerID       string    `json:"playerId"`
		SessionID      string    `json:"sessionId"`
		Nickname       string    `json:"nickname"`
		Score          int       `json:"score"`
		AnswersCorrect int       `json:"answersCorrect"`
		AnswersWrong   int       `json:"answersWrong"`
		IsActive       bool      `json:"isActive"`
		JoinedAt       time.Time `json:"joinedAt"`
	}

	advanceResponse struct {
		Status          domain.Status             `json:"status"`
		CurrentQuestion *domain.CurrentQuestion   `json:"currentQuestion,omitempty"`
		QuestionNumber  int                       `json:"questionNumber,omitempty"`
		TotalQuestions  int                       `json:"totalQuestions"`
		FinalScores     []domain.LeaderboardEntry `json:"finalScores,omitempty"`
	}

	answerResponse struct {
		QuestionID     string    `json:"questionId"`
		QuestionText   string    `json:"questionText"`
		QuestionOrder  int       `json:"questionOrder"`
		SelectedAnswer string    `json:"selectedAnswer"`
		IsCorrect      bool      `json:"isCorrect"`
		TimeTaken      float64   `json:"timeTaken"`
		ScoreEarned    int       `json:"scoreEarned"`
		AnsweredAt     time.Time `json:"answeredAt"`
	}

	resultsResponse struct {
		Player  playerResponse   `json:"player"`
		Rank    *int             `json:"rank"`
		Answers []answerResponse `json:"answers"`
	}
)

func sessionJSON(s domain.Session) sessionResponse {
	return sessionResponse{
		SessionID:            s.SessionID,
		QuizID:               s.QuizID,
		HostID:               s.HostID,
		Status:               s.Status,
		CurrentQuestionIndex: s.CurrentQuestionIndex,
		QuestionStartedAt:    s.QuestionStartedAt,
		StartedAt:            s.StartedAt,
		EndedAt:              s.EndedAt,
		CreatedAt:            s.CreatedAt,
	}
}

func playerJSON(p domain.Player) playerResponse {
	return playerResponse{
		PlayerID:       p.PlayerID,
		SessionID:      p.SessionID,
		Nickname:       p.Nickname,
		Score:          p.Score,
		AnswersCorrect: p.AnswersCorrect,
		AnswersWrong:   p.AnswersWrong,
		IsActive:       p.IsActive,
		JoinedAt:       p.JoinedAt,
	}
}

func advanceJSON(a domain.Advance) advanceResponse {
	if a.Finished {
		return advanceResponse{
			Status:         domain.StatusFinished,
			TotalQuestions: a.TotalQuestions,
			FinalScores:    a.FinalScores,
		}
	}

	return advanceResponse{
		Status:          domain.StatusActive,
		CurrentQuestion: a.Question,
		QuestionNumber:  a.QuestionNumber,
		TotalQuestions:  a.TotalQuestions,
	}
}

// resultsJSON leaves rank null for players that dropped out of the ranking.
func resultsJSON(r domain.PlayerResults) resultsResponse {
	resp := resultsResponse{
		Player:  playerJSON(r.Player),
		Answers: make([]answerResponse, 0, len(r.Answers)),
	}
	if r.Ranked {
		rank := r.Rank
		resp.Rank = &rank
	}

	for _, a := range r.Answers {
		resp.Answers = append(resp.Answers, answerResponse{
			QuestionID:     a.QuestionID,
			QuestionText:   a.QuestionText,
			QuestionOrder:  a.QuestionOrder,
			SelectedAnswer: a.SelectedAnswer,
			IsCorrect:      a.IsCorrect,
			TimeTaken:      a.TimeTakenSeconds,
			ScoreEarned:    a.ScoreEarned,
			AnsweredAt:     a.AnsweredAt,
		})
	}

	return resp
}
