package arena

import (
	"sort"

	"github.com/DoyleJ11/arcade-server/internal/room"
)

type startBody struct {
	RoomID   string  `json:"room_id"`
	ModeName string  `json:"mode_name"`
	TimeLeft float64 `json:"time_left"`
}

type ScoreRow struct {
	UserID      int64  `json:"user_id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Team        int    `json:"team"`
	KOs         int    `json:"kos"`
	Deaths      int    `json:"deaths"`
	CharacterID string `json:"character_id"`
}

type endBody struct {
	RoomID     string     `json:"room_id"`
	Reason     string     `json:"reason"`
	Scoreboard []ScoreRow `json:"scoreboard"`
}

type fighterMeta struct {
	UserID        int64     `json:"user_id"`
	Username      string    `json:"username"`
	DisplayName   string    `json:"display_name"`
	CharacterID   string    `json:"character_id"`
	CharacterName string    `json:"character_name"`
	MoveNames     MoveNames `json:"move_names"`
	Team          int       `json:"team"`
	Color         string    `json:"color"`
}

type rosterBody struct {
	RoomID     string                `json:"room_id"`
	ModeName   string                `json:"mode_name"`
	State      room.State            `json:"state"`
	Players    []int64               `json:"players"`
	Spectators []int64               `json:"spectators"`
	Ready      []int64               `json:"ready"`
	Fighters   map[int64]fighterMeta `json:"fighters"`
}

type arenaSize struct {
	W float64 `json:"w"`
	H float64 `json:"h"`
}

type stateBody struct {
	RoomID     string                `json:"room_id"`
	ModeName   string                `json:"mode_name"`
	State      room.State            `json:"state"`
	Tick       uint64                `json:"tick"`
	TimeLeft   float64               `json:"time_left"`
	TargetKOs  int                   `json:"target_kos"`
	Players    []int64               `json:"players"`
	Spectators []int64               `json:"spectators"`
	Ready      []int64               `json:"ready"`
	Fighters   map[int64]fighterView `json:"fighters"`
	Boss       *fighterView          `json:"boss"`
	TeamScores map[int]int           `json:"team_scores"`
	Events     []CombatEvent         `json:"events"`
	Arena      arenaSize             `json:"arena"`
}

func (a *Arena) emitRoster() {
	meta := make(map[int64]fighterMeta)
	for _, f := range a.humans() {
		ch := a.catalog.Lookup(f.CharacterID)
		meta[f.UserID] = fighterMeta{
			UserID:        f.UserID,
			Username:      f.Username,
			DisplayName:   f.DisplayName,
			CharacterID:   f.CharacterID,
			CharacterName: ch.DisplayName,
			MoveNames:     ch.MoveNames,
			Team:          f.Team,
			Color:         f.Color,
		}
	}
	a.out.Emit(room.Event{
		Type: "arena_roster",
		Body: rosterBody{
			RoomID:     a.id,
			ModeName:   string(a.mode),
			State:      a.state,
			Players:    a.roster.Players(),
			Spectators: a.roster.Spectators(),
			Ready:      a.readyList(),
			Fighters:   meta,
		},
		Lobby: true,
	})
}

func (a *Arena) Snapshot() room.Event {
	views := make(map[int64]fighterView)
	for _, f := range a.humans() {
		views[f.UserID] = f.view()
	}
	body := stateBody{
		RoomID:     a.id,
		ModeName:   string(a.mode),
		State:      a.state,
		Tick:       a.tick,
		TimeLeft:   round(a.timeLeft, 2),
		TargetKOs:  a.rules.targetKOs,
		Players:    a.roster.Players(),
		Spectators: a.roster.Spectators(),
		Ready:      a.readyList(),
		Fighters:   views,
		Events:     append([]CombatEvent(nil), a.events...),
		Arena:      arenaSize{W: Width, H: Height},
	}
	if a.boss != nil {
		v := a.boss.view()
		body.Boss = &v
	}
	if a.mode == ModeTeams {
		body.TeamScores = a.teamScores()
	}
	return room.Event{Type: "arena_state", Body: body}
}

// finish ends the running match. Results are applied at most once per
// start no matter how many end triggers fire.
func (a *Arena) finish(reason string) {
	if a.state == room.StateEnded {
		return
	}
	a.state = room.StateEnded
	if !a.finalized {
		a.finalized = true
		a.applyResults()
	}
	a.out.Emit(room.Event{
		Type:  "arena_end",
		Body:  endBody{RoomID: a.id, Reason: reason, Scoreboard: a.scoreboard()},
		Lobby: true,
	})
}

func (a *Arena) scoreboard() []ScoreRow {
	humans := a.humans()
	rows := make([]ScoreRow, 0, len(humans))
	for _, f := range humans {
		rows = append(rows, ScoreRow{
			UserID:      f.UserID,
			Username:    f.Username,
			DisplayName: f.DisplayName,
			Team:        f.Team,
			KOs:         f.KOs,
			Deaths:      f.Deaths,
			CharacterID: f.CharacterID,
		})
	}
	teams := a.teamScores()
	sort.SliceStable(rows, func(i, j int) bool {
		ri, rj := rows[i], rows[j]
		if a.mode == ModeTeams && teams[ri.Team] != teams[rj.Team] {
			return teams[ri.Team] > teams[rj.Team]
		}
		if ri.KOs != rj.KOs {
			return ri.KOs > rj.KOs
		}
		if a.mode != ModeTeams && ri.Deaths != rj.Deaths {
			return ri.Deaths < rj.Deaths
		}
		return ri.Username < rj.Username
	})
	return rows
}

func (a *Arena) applyResults() {
	humans := a.humans()
	if a.mode == ModePractice || len(humans) == 0 {
		return
	}

	record := func(f *Fighter, win bool) {
		a.recorder.RecordResult(f.UserID, room.Result{Win: win, KOs: f.KOs, Deaths: f.Deaths})
	}

	if a.mode == ModeBoss {
		won := a.boss != nil && !a.boss.Alive
		for _, f := range humans {
			record(f, won)
		}
		return
	}

	winners := make(map[int64]bool)
	if a.mode == ModeTeams {
		scores := a.teamScores()
		bestTeam, best, tied := 0, -1, false
		for team, s := range scores {
			switch {
			case s > best:
				bestTeam, best, tied = team, s, false
			case s == best:
				tied = true
			}
		}
		if !tied {
			for _, f := range humans {
				if f.Team == bestTeam {
					winners[f.UserID] = true
				}
			}
		}
	} else {
		var leader *Fighter
		tied := false
		for _, f := range humans {
			switch {
			case leader == nil || f.KOs > leader.KOs:
				leader, tied = f, false
			case f.KOs == leader.KOs:
				tied = true
			}
		}
		if leader != nil && !tied {
			winners[leader.UserID] = true
		}
	}

	if len(winners) == 0 {
		return
	}
	for _, f := range humans {
		record(f, winners[f.UserID])
	}
}
