package domain

const (
	EventNameSessionCreated     = "session.created"
	EventNamePlayerJoined       = "player.joined"
	EventNamePlayerDeactivated  = "player.deactivated"
	EventNameGameStarted        = "game.started"
	EventNameQuestionAdvanced   = "question.advanced"
	EventNameSessionFinished    = "session.finished"
	EventNameAnswerSubmitted    = "answer.submitted"
	EventNameLeaderboardUpdated = "leaderboard.updated"
)

// SessionEvent is implemented by every event that belongs to one session.
type SessionEvent interface {
	Name() string
	Session() string
}

type EventSessionCreated struct {
	SessionID string
	QuizID    string
}

func (EventSessionCreated) Name() string      { return EventNameSessionCreated }
func (e EventSessionCreated) Session() string { return e.SessionID }

type EventPlayerJoined struct {
	Player Player
}

func (EventPlayerJoined) Name() string      { return EventNamePlayerJoined }
func (e EventPlayerJoined) Session() string { return e.Player.SessionID }

type EventPlayerDeactivated struct {
	Player Player
}

func (EventPlayerDeactivated) Name() string      { return EventNamePlayerDeactivated }
func (e EventPlayerDeactivated) Session() string { return e.Player.SessionID }

type EventGameStarted struct {
	SessionID string
	Players   int
}

func (EventGameStarted) Name() string      { return EventNameGameStarted }
func (e EventGameStarted) Session() string { return e.SessionID }

// EventQuestionAdvanced is published when a new question becomes current. Auto is set when the
// transition was triggered by an expired deadline seen during a state read.
type EventQuestionAdvanced struct {
	SessionID     string
	QuestionIndex int
	Auto          bool
}

func (EventQuestionAdvanced) Name() string      { return EventNameQuestionAdvanced }
func (e EventQuestionAdvanced) Session() string { return e.SessionID }

type EventSessionFinished struct {
	Leaderboard Leaderboard
	Auto        bool
}

func (EventSessionFinished) Name() string      { return EventNameSessionFinished }
func (e EventSessionFinished) Session() string { return e.Leaderboard.SessionID }

type EventAnswerSubmitted struct {
	SessionID string
	Answer    Answer
	Player    Player
}

func (EventAnswerSubmitted) Name() string      { return EventNameAnswerSubmitted }
func (e EventAnswerSubmitted) Session() string { return e.SessionID }

// EventLeaderboardUpdated is a throttled notification that scores of a session changed.
type EventLeaderboardUpdated struct {
	Leaderboard Leaderboard
}

func (EventLeaderboardUpdated) Name() string      { return EventNameLeaderboardUpdated }
func (e EventLeaderboardUpdated) Session() string { return e.Leaderboard.SessionID }
