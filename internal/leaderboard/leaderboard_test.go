package leaderboard_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/leaderboard"
)

var t0 = time.Date(2024, 10, 1, 12, 0, 0, 0, time.UTC)

func player(id string, score int, joined time.Duration, active bool) domain.Player {
	return domain.Player{
		PlayerID: id,
		Nickname: id,
		Score:    score,
		IsActive: active,
		JoinedAt: t0.Add(joined),
	}
}

func nicknames(players []domain.Player) []string {
	out := make([]string, 0, len(players))
	for _, p := range players {
		out = append(out, p.Nickname)
	}
	return out
}

func TestRank(t *testing.T) {
	tests := map[string]struct {
		players []domain.Player
		want    []string
	}{
		"higher score ranks first, ties go to the earlier joiner": {
			players: []domain.Player{
				player("A", 100, 1*time.Second, true),
				player("B", 100, 2*time.Second, true),
				player("C", 150, 3*time.Second, true),
			},
			want: []string{"C", "A", "B"},
		},
		"inactive players are excluded": {
			players: []domain.Player{
				player("A", 300, 1*time.Second, false),
				player("B", 100, 2*time.Second, true),
			},
			want: []string{"B"},
		},
		"input order does not matter": {
			players: []domain.Player{
				player("B", 0, 2*time.Second, true),
				player("A", 0, 1*time.Second, true),
			},
			want: []string{"A", "B"},
		},
		"no players": {
			players: nil,
			want:    []string{},
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, nicknames(leaderboard.Rank(tt.players)))
		})
	}
}

func TestGetRank(t *testing.T) {
	players := []domain.Player{
		player("A", 100, 1*time.Second, true),
		player("B", 100, 2*time.Second, true),
		player("C", 150, 3*time.Second, true),
		player("D", 500, 4*time.Second, false),
	}

	rank, ok := leaderboard.GetRank(players, "A")
	require.True(t, ok)
	assert.Equal(t, 2, rank)

	rank, ok = leaderboard.GetRank(players, "C")
	require.True(t, ok)
	assert.Equal(t, 1, rank)

	_, ok = leaderboard.GetRank(players, "D")
	assert.False(t, ok, "inactive player has no rank")

	_, ok = leaderboard.GetRank(players, "unknown")
	assert.False(t, ok)
}

func TestBuild(t *testing.T) {
	lb := leaderboard.Build("s1", domain.StatusFinished, []domain.Player{
		player("A", 100, 1*time.Second, true),
		player("C", 150, 3*time.Second, true),
	})

	assert.Equal(t, domain.Leaderboard{
		SessionID: "s1",
		Status:    domain.StatusFinished,
		Entries: []domain.LeaderboardEntry{
			{PlayerID: "C", Nickname: "C", Score: 150, Rank: 1},
			{PlayerID: "A", Nickname: "A", Score: 100, Rank: 2},
		},
	}, lb)
}
