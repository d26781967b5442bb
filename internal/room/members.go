package room

import "slices"

// Roster tracks the member set, the ordered player list and spectators.
// Minigames and the arena embed it.
type Roster struct {
	members    map[int64]bool
	players    []int64
	spectators map[int64]bool
	maxPlayers int
}

func NewRoster(maxPlayers int) Roster {
	return Roster{
		members:    make(map[int64]bool),
		spectators: make(map[int64]bool),
		maxPlayers: maxPlayers,
	}
}

// Add admits uid as a player while seats remain, otherwise as a spectator.
// An existing player is never displaced.
func (r *Roster) Add(uid int64) Role {
	r.members[uid] = true
	if slices.Contains(r.players, uid) {
		return RolePlayer
	}
	if r.spectators[uid] {
		return RoleSpectator
	}
	if len(r.players) < r.maxPlayers {
		r.players = append(r.players, uid)
		return RolePlayer
	}
	r.spectators[uid] = true
	return RoleSpectator
}

// Remove drops uid everywhere and reports whether it held a player seat.
func (r *Roster) Remove(uid int64) (wasPlayer bool) {
	delete(r.members, uid)
	delete(r.spectators, uid)
	if i := slices.Index(r.players, uid); i >= 0 {
		r.players = slices.Delete(r.players, i, i+1)
		return true
	}
	return false
}

func (r *Roster) IsPlayer(uid int64) bool { return slices.Contains(r.players, uid) }

func (r *Roster) PlayerIndex(uid int64) int { return slices.Index(r.players, uid) }

func (r *Roster) Players() []int64 { return slices.Clone(r.players) }

func (r *Roster) PlayerCount() int { return len(r.players) }

func (r *Roster) MaxPlayers() int { return r.maxPlayers }

func (r *Roster) Spectators() []int64 { return sortedKeys(r.spectators) }

func (r *Roster) Members() []int64 { return sortedKeys(r.members) }

func (r *Roster) HasMember(uid int64) bool { return r.members[uid] }

func sortedKeys(m map[int64]bool) []int64 {
	out := make([]int64, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// Outbox is the ordered event buffer a room appends to and the hub drains.
type Outbox struct {
	events []Event
}

func (o *Outbox) Emit(e Event) { o.events = append(o.events, e) }

func (o *Outbox) Drain() []Event {
	out := o.events
	o.events = nil
	return out
}
