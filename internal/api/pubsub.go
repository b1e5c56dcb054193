package api

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/victornm/livequiz/internal/domain"
)

const maxConcurrent = 100

// Notification is what watchers and redis subscribers receive for every session event.
type Notification struct {
	Event     string `json:"event"`
	SessionID string `json:"sessionId"`
	Data      any    `json:"data,omitempty"`
}

type (
	questionAdvancedData struct {
		QuestionIndex int  `json:"questionIndex"`
		Auto          bool `json:"auto"`
	}

	sessionFinishedData struct {
		domain.Leaderboard
		Auto bool `json:"auto"`
	}

	// answerSubmittedData does not say whether the answer was correct; only the submitting player
	// learns that.
	answerSubmittedData struct {
		PlayerID   string `json:"playerId"`
		QuestionID string `json:"questionId"`
	}
)

func notificationOf(e domain.SessionEvent) Notification {
	n := Notification{
		Event:     e.Name(),
		SessionID: e.Session(),
	}

	switch e := e.(type) {
	case domain.EventSessionCreated:
		n.Data = map[string]string{"quizId": e.QuizID}
	case domain.EventPlayerJoined:
		n.Data = playerJSON(e.Player)
	case domain.EventPlayerDeactivated:
		n.Data = playerJSON(e.Player)
	case domain.EventGameStarted:
		n.Data = map[string]int{"players": e.Players}
	case domain.EventQuestionAdvanced:
		n.Data = questionAdvancedData{QuestionIndex: e.QuestionIndex, Auto: e.Auto}
	case domain.EventSessionFinished:
		n.Data = sessionFinishedData{Leaderboard: e.Leaderboard, Auto: e.Auto}
	case domain.EventAnswerSubmitted:
		n.Data = answerSubmittedData{PlayerID: e.Answer.PlayerID, QuestionID: e.Answer.QuestionID}
	case domain.EventLeaderboardUpdated:
		n.Data = e.Leaderboard
	}

	return n
}

// PublishSessionEvent publishes the event to the session channel. Leaderboard changes are also
// pushed to the channel of every ranked player.
func (a *API) PublishSessionEvent(ctx context.Context, e domain.SessionEvent) error {
	n := notificationOf(e)

	var entries []domain.LeaderboardEntry
	switch e := e.(type) {
	case domain.EventLeaderboardUpdated:
		entries = e.Leaderboard.Entries
	case domain.EventSessionFinished:
		entries = e.Leaderboard.Entries
	}

	var eg errgroup.Group
	eg.SetLimit(maxConcurrent)

	eg.Go(func() error {
		return a.publishNotification(ctx, a.SessionChannel(n.SessionID), n)
	})

	for _, entry := range entries {
		entry := entry
		eg.Go(func() error {
			return a.publishNotification(ctx, a.PlayerChannel(entry.PlayerID), n)
		})
	}

	return eg.Wait()
}

func (a *API) SessionChannel(sessionID string) string {
	return fmt.Sprintf("%s:session:%s", a.prefix, sessionID)
}

func (a *API) PlayerChannel(playerID string) string {
	return fmt.Sprintf("%s:player:%s", a.prefix, playerID)
}

func (a *API) publishNotification(ctx context.Context, channel string, n Notification) error {
	b, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("pubsub: marshal %s: %v", n.Event, err)
	}

	return a.redis.Publish(ctx, channel, b).Err()
}
