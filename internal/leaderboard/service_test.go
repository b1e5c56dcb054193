package leaderboard_test

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/errors"
	"github.com/victornm/livequiz/internal/event"
	"github.com/victornm/livequiz/internal/leaderboard"
)

func board(sessionID string) *domain.Leaderboard {
	return &domain.Leaderboard{
		SessionID: sessionID,
		Status:    domain.StatusActive,
		Entries: []domain.LeaderboardEntry{
			{PlayerID: "p1", Nickname: "alice", Score: 135, Rank: 1},
		},
	}
}

func TestService_ScheduleUpdate(t *testing.T) {
	type (
		inputs struct {
			sessions []string
			// fastForward is applied to redis after the first update.
			fastForward time.Duration
		}

		outputs struct {
			publishedEvents []domain.EventLeaderboardUpdated
		}
	)

	tests := map[string]struct {
		arrange func() inputs
		assert  func(t *testing.T, out outputs)
	}{
		"should publish leaderboard.updated after an answer": {
			arrange: func() inputs {
				return inputs{sessions: []string{"s1"}}
			},

			assert: func(t *testing.T, out outputs) {
				require.Len(t, out.publishedEvents, 1, "should receive 1 leaderboard updated event")
				require.Equal(t, *board("s1"), out.publishedEvents[0].Leaderboard)
			},
		},

		"should publish 2 events for 2 different sessions": {
			arrange: func() inputs {
				return inputs{sessions: []string{"s1", "s2"}}
			},

			assert: func(t *testing.T, out outputs) {
				require.Len(t, out.publishedEvents, 2, "should receive 2 leaderboard updated events")
			},
		},

		"should publish 1 event for the same session within the publish interval": {
			arrange: func() inputs {
				return inputs{sessions: []string{"s1", "s1", "s1"}}
			},

			assert: func(t *testing.T, out outputs) {
				require.Len(t, out.publishedEvents, 1, "should receive 1 leaderboard updated event")
			},
		},

		"should publish again once the interval has passed": {
			arrange: func() inputs {
				return inputs{sessions: []string{"s1", "s1"}, fastForward: time.Second}
			},

			assert: func(t *testing.T, out outputs) {
				require.Len(t, out.publishedEvents, 2, "should receive 2 leaderboard updated events")
			},
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			in, out := tt.arrange(), outputs{}

			eb := event.NewBus()

			var mu sync.Mutex
			eb.Subscribe(domain.EventNameLeaderboardUpdated, func(ctx context.Context, e event.Event) error {
				mu.Lock()
				out.publishedEvents = append(out.publishedEvents, e.(domain.EventLeaderboardUpdated))
				mu.Unlock()
				return nil
			})

			rs := miniredis.RunT(t)
			s := makeService(t, rs, withEventBus(eb))

			for i, sessionID := range in.sessions {
				if i == 1 && in.fastForward > 0 {
					rs.FastForward(in.fastForward)
				}
				err := s.ScheduleUpdate(context.Background(), sessionID)
				require.NoError(t, err)
			}

			eb.Stop()

			tt.assert(t, out)
		})
	}
}

func TestService_SubscribesToScoreChanges(t *testing.T) {
	t.Parallel()

	eb := event.NewBus()
	updates := make(chan domain.EventLeaderboardUpdated, 1)
	eb.Subscribe(domain.EventNameLeaderboardUpdated, func(_ context.Context, e event.Event) error {
		updates <- e.(domain.EventLeaderboardUpdated)
		return nil
	})

	makeService(t, miniredis.RunT(t), withEventBus(eb))

	eb.Publish(context.Background(), domain.EventAnswerSubmitted{SessionID: "s1"})
	eb.Stop()

	select {
	case e := <-updates:
		require.Equal(t, "s1", e.Session())
	default:
		t.Fatal("expected a leaderboard update")
	}
}

func TestService_ScheduleUpdate_SkipsFinishedSessions(t *testing.T) {
	t.Parallel()

	eb := event.NewBus()
	published := 0
	var mu sync.Mutex
	eb.Subscribe(domain.EventNameLeaderboardUpdated, func(context.Context, event.Event) error {
		mu.Lock()
		published++
		mu.Unlock()
		return nil
	})

	s := makeService(t, miniredis.RunT(t), withEventBus(eb), withSource(func(_ context.Context, id string) (*domain.Leaderboard, error) {
		l := board(id)
		l.Status = domain.StatusFinished
		return l, nil
	}))

	require.NoError(t, s.ScheduleUpdate(context.Background(), "s1"))
	eb.Stop()

	require.Zero(t, published)
}

func TestService_ScheduleUpdate_SourceError(t *testing.T) {
	t.Parallel()

	s := makeService(t, miniredis.RunT(t), withSource(func(context.Context, string) (*domain.Leaderboard, error) {
		return nil, errors.NotFound("session not found")
	}))

	err := s.ScheduleUpdate(context.Background(), "s1")
	require.True(t, errors.Is(err, errors.CodeNotFound), "got %v", err)
}

func TestService_ScheduleUpdate_StampsClockTime(t *testing.T) {
	t.Parallel()

	at := time.Date(2024, 10, 1, 12, 0, 0, 0, time.UTC)
	rs := miniredis.RunT(t)
	s := makeService(t, rs, withClock(clockwork.NewFakeClockAt(at)))

	require.NoError(t, s.ScheduleUpdate(context.Background(), "s1"))

	v, err := rs.Get("test:session:s1:leaderboard:time")
	require.NoError(t, err)
	require.Equal(t, strconv.FormatInt(at.UnixMilli(), 10), v)
}

func makeService(t *testing.T, rs *miniredis.Miniredis, opts ...options) *leaderboard.Service {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	rc := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{rs.Addr()},
	})
	require.NoError(t, rc.Ping(ctx).Err(), "should be able to ping redis")

	c := leaderboard.Config{
		EventBus: event.NewBus(),
		Redis:    rc,
		Prefix:   "test",
		Leaderboard: func(_ context.Context, sessionID string) (*domain.Leaderboard, error) {
			return board(sessionID), nil
		},
	}

	for _, opt := range opts {
		opt(&c)
	}

	return leaderboard.NewService(c)
}

type options func(c *leaderboard.Config)

func withEventBus(eb *event.Bus) options {
	return func(c *leaderboard.Config) {
		c.EventBus = eb
	}
}

func withSource(src leaderboard.Source) options {
	return func(c *leaderboard.Config) {
		c.Leaderboard = src
	}
}

func withClock(clock clockwork.Clock) options {
	return func(c *leaderboard.Config) {
		c.Clock = clock
	}
}
