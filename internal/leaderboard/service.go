package leaderboard

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"

	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/event"
)

const (
	DefaultPublishInterval = 200 * time.Millisecond
)

// Source returns the current leaderboard of a session.
type Source func(ctx context.Context, sessionID string) (*domain.Leaderboard, error)

type Config struct {
	EventBus    *event.Bus
	Leaderboard Source
	Redis       redis.UniversalClient
	Prefix      string
	Interval    time.Duration
	Clock       clockwork.Clock
}

// Service publishes leaderboard.updated events when scores change, at most once per interval and
// session across every instance sharing the redis.
type Service struct {
	eb       *event.Bus
	source   Source
	redis    redis.UniversalClient
	prefix   string
	interval time.Duration
	clock    clockwork.Clock
}

func NewService(c Config) *Service {
	s := &Service{
		eb:       c.EventBus,
		source:   c.Leaderboard,
		redis:    c.Redis,
		prefix:   c.Prefix,
		interval: c.Interval,
		clock:    c.Clock,
	}
	if s.interval <= 0 {
		s.interval = DefaultPublishInterval
	}
	if s.clock == nil {
		s.clock = clockwork.NewRealClock()
	}

	s.eb.Subscribe(domain.EventNameAnswerSubmitted, func(ctx context.Context, e event.Event) error {
		return s.ScheduleUpdate(ctx, e.(domain.EventAnswerSubmitted).SessionID)
	})
	s.eb.Subscribe(domain.EventNamePlayerDeactivated, func(ctx context.Context, e event.Event) error {
		return s.ScheduleUpdate(ctx, e.(domain.EventPlayerDeactivated).Player.SessionID)
	})

	return s
}

// ScheduleUpdate publishes the session's leaderboard unless another update was published within
// the interval. Many answers arrive in a burst right after a question is shown, so only the first
// of each window is announced; session.finished always carries the final board.
func (s *Service) ScheduleUpdate(ctx context.Context, sessionID string) error {
	ok, err := s.redis.SetNX(ctx, s.throttleKey(sessionID), s.clock.Now().UnixMilli(), s.interval).Result()
	if err != nil {
		return fmt.Errorf("leaderboard: setnx: %w", err)
	}

	if !ok {
		return nil
	}

	l, err := s.source(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("leaderboard: get leaderboard failed: session=%s: %w", sessionID, err)
	}

	if l.Status == domain.StatusFinished {
		return nil
	}

	s.eb.Publish(ctx, domain.EventLeaderboardUpdated{
		Leaderboard: *l,
	})

	return nil
}

func (s *Service) throttleKey(session string) string {
	return fmt.Sprintf("%s:session:%s:leaderboard:time", s.prefix, session)
}
