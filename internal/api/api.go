// Package api exposes the session service over HTTP and pushes session notifications to watchers.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/errors"
	"github.com/victornm/livequiz/internal/event"
	"github.com/victornm/livequiz/internal/session"
)

// HeaderHostID carries the identity of the host. Authentication happens upstream.
const HeaderHostID = "X-Host-ID"

type Config struct {
	Router   gin.IRouter
	EventBus *event.Bus
	Session  *session.Service

	// Redis is optional; without it notifications only reach websocket watchers.
	Redis        Redis
	PubsubPrefix string
}

type Redis interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

type API struct {
	ss *session.Service

	redis  Redis
	prefix string

	hub *hub
}

func New(c Config) *API {
	a := &API{
		ss:     c.Session,
		redis:  c.Redis,
		prefix: c.PubsubPrefix,
		hub:    newHub(),
	}

	r := c.Router.Group("/api")
	r.POST("/quizzes/:quiz_id/sessions", a.CreateSession)
	r.POST("/sessions/join", a.JoinByCode)
	r.POST("/sessions/:session_id/players", a.Join)
	r.POST("/sessions/:session_id/start", a.StartGame)
	r.POST("/sessions/:session_id/next", a.AdvanceQuestion)
	r.GET("/sessions/:session_id/state", a.GetState)
	r.GET("/sessions/:session_id/leaderboard", a.GetLeaderboard)
	r.GET("/sessions/:session_id/watch", a.Watch)
	r.POST("/sessions/:session_id/players/:player_id/answers", a.SubmitAnswer)
	r.POST("/sessions/:session_id/players/:player_id/deactivate", a.Deactivate)
	r.GET("/sessions/:session_id/players/:player_id/results", a.PlayerResults)

	// Register event handlers
	c.EventBus.SubscribeAll(func(ctx context.Context, e event.Event) error {
		se, ok := e.(domain.SessionEvent)
		if !ok {
			return nil
		}
		a.hub.broadcast(ctx, notificationOf(se))
		return nil
	})

	if a.redis != nil {
		c.EventBus.SubscribeAll(func(ctx context.Context, e event.Event) error {
			se, ok := e.(domain.SessionEvent)
			if !ok {
				return nil
			}
			return a.PublishSessionEvent(ctx, se)
		})
	}

	return a
}

func (a *API) CreateSession(c *gin.Context) {
	ss, err := a.ss.CreateSession(c.Request.Context(), session.CreateSessionRequest{
		QuizID: c.Param("quiz_id"),
		HostID: c.GetHeader(HeaderHostID),
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, sessionJSON(*ss))
}

type joinByCodeRequest struct {
	JoinCode string `json:"joinCode" binding:"required,len=6,alphanum"`
	Nickname string `json:"nickname" binding:"required,max=50"`
}

func (a *API) JoinByCode(c *gin.Context) {
	var req joinByCodeRequest
	if !bind(c, &req) {
		return
	}

	resp, err := a.ss.JoinByCode(c.Request.Context(), session.JoinByCodeRequest{
		JoinCode: req.JoinCode,
		Nickname: req.Nickname,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"player":  playerJSON(resp.Player),
		"session": sessionJSON(resp.Session),
	})
}

type joinRequest struct {
	Nickname string `json:"nickname" binding:"required,max=50"`
}

func (a *API) Join(c *gin.Context) {
	var req joinRequest
	if !bind(c, &req) {
		return
	}

	p, err := a.ss.Join(c.Request.Context(), session.JoinRequest{
		SessionID: c.Param("session_id"),
		Nickname:  req.Nickname,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, playerJSON(*p))
}

func (a *API) StartGame(c *gin.Context) {
	adv, err := a.ss.StartGame(c.Request.Context(), session.StartGameRequest{
		SessionID: c.Param("session_id"),
		HostID:    c.GetHeader(HeaderHostID),
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, advanceJSON(*adv))
}

func (a *API) AdvanceQuestion(c *gin.Context) {
	adv, err := a.ss.AdvanceQuestion(c.Request.Context(), session.AdvanceQuestionRequest{
		SessionID: c.Param("session_id"),
		HostID:    c.GetHeader(HeaderHostID),
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, advanceJSON(*adv))
}

func (a *API) GetState(c *gin.Context) {
	snap, err := a.ss.GetState(c.Request.Context(), session.GetStateRequest{
		SessionID:   c.Param("session_id"),
		RequesterID: c.GetHeader(HeaderHostID),
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, snap)
}

func (a *API) GetLeaderboard(c *gin.Context) {
	l, err := a.ss.GetLeaderboard(c.Request.Context(), session.GetLeaderboardRequest{
		SessionID: c.Param("session_id"),
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, l)
}

type submitAnswerRequest struct {
	QuestionID     string `json:"questionId" binding:"required"`
	SelectedAnswer string `json:"selectedAnswer" binding:"required"`
	// Seconds since the question was shown, measured by the client.
	TimeTaken *float64 `json:"timeTaken" binding:"required,gte=0"`
}

func (a *API) SubmitAnswer(c *gin.Context) {
	var req submitAnswerRequest
	if !bind(c, &req) {
		return
	}

	res, err := a.ss.SubmitAnswer(c.Request.Context(), session.SubmitAnswerRequest{
		SessionID:        c.Param("session_id"),
		PlayerID:         c.Param("player_id"),
		QuestionID:       req.QuestionID,
		SelectedAnswer:   req.SelectedAnswer,
		TimeTakenSeconds: *req.TimeTaken,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

func (a *API) Deactivate(c *gin.Context) {
	p, err := a.ss.Deactivate(c.Request.Context(), session.DeactivateRequest{
		SessionID: c.Param("session_id"),
		PlayerID:  c.Param("player_id"),
		HostID:    c.GetHeader(HeaderHostID),
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, playerJSON(*p))
}

func (a *API) PlayerResults(c *gin.Context) {
	res, err := a.ss.PlayerResults(c.Request.Context(), session.PlayerResultsRequest{
		SessionID: c.Param("session_id"),
		PlayerID:  c.Param("player_id"),
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, resultsJSON(*res))
}

func bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		writeError(c, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("invalid request: %v", err),
			errors.WithCause(err),
		))
		return false
	}

	return true
}

func writeError(c *gin.Context, err error) {
	e := errors.Convert(err)
	if e.Code == errors.CodeInternal {
		slog.ErrorContext(c, "api: request failed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"error", err,
		)
	}

	c.AbortWithStatusJSON(e.HTTPStatusCode(), gin.H{
		"code":    e.Code.String(),
		"message": e.Message,
	})
}
