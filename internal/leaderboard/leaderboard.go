// Package leaderboard derives rankings from a session's players. It owns no state.
package leaderboard

import (
	"sort"

	"github.com/victornm/livequiz/internal/domain"
)

// Rank returns the active players ordered by descending score, ties broken by the earlier join.
// The input is not modified.
func Rank(players []domain.Player) []domain.Player {
	ranked := make([]domain.Player, 0, len(players))
	for _, p := range players {
		if p.IsActive {
			ranked = append(ranked, p)
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].JoinedAt.Before(ranked[j].JoinedAt)
	})

	return ranked
}

// GetRank returns the 1-based position of playerID in Rank(players). ok is false when the player
// is unknown or inactive.
func GetRank(players []domain.Player, playerID string) (rank int, ok bool) {
	for i, p := range Rank(players) {
		if p.PlayerID == playerID {
			return i + 1, true
		}
	}

	return 0, false
}

// Entries converts a ranking into leaderboard entries.
func Entries(ranked []domain.Player) []domain.LeaderboardEntry {
	entries := make([]domain.LeaderboardEntry, 0, len(ranked))
	for i, p := range ranked {
		entries = append(entries, domain.LeaderboardEntry{
			PlayerID: p.PlayerID,
			Nickname: p.Nickname,
			Score:    p.Score,
			Rank:     i + 1,
		})
	}

	return entries
}

// Build returns the leaderboard of a session.
func Build(sessionID string, status domain.Status, players []domain.Player) domain.Leaderboard {
	return domain.Leaderboard{
		SessionID: sessionID,
		Status:    status,
		Entries:   Entries(Rank(players)),
	}
}
