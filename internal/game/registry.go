package game

import (
	"github.com/victornm/livequiz/internal/domain"
)

// registry holds the players of one session in join order. Callers hold the session lock.
type registry struct {
	players    map[string]domain.Player
	order      []string
	byNickname map[string]string
}

func newRegistry(players []domain.Player) *registry {
	r := &registry{
		players:    make(map[string]domain.Player, len(players)),
		byNickname: make(map[string]string, len(players)),
	}
	for _, p := range players {
		r.put(p)
	}

	return r
}

func (r *registry) get(playerID string) (domain.Player, bool) {
	p, ok := r.players[playerID]
	return p, ok
}

// nicknameTaken checks active and inactive players alike; comparison is case-sensitive.
func (r *registry) nicknameTaken(nickname string) bool {
	_, ok := r.byNickname[nickname]
	return ok
}

func (r *registry) put(p domain.Player) {
	if _, ok := r.players[p.PlayerID]; !ok {
		r.order = append(r.order, p.PlayerID)
	}
	r.players[p.PlayerID] = p
	r.byNickname[p.Nickname] = p.PlayerID
}

func (r *registry) all() []domain.Player {
	out := make([]domain.Player, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.players[id])
	}

	return out
}

func (r *registry) activeCount() int {
	n := 0
	for _, p := range r.players {
		if p.IsActive {
			n++
		}
	}

	return n
}
