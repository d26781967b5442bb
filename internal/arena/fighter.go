package arena

import (
	"math"

	"github.com/DoyleJ11/arcade-server/internal/protocol"
)

// BossID is the reserved user id of the scripted boss fighter.
const BossID int64 = 0

type latch uint8

const (
	latchIdle latch = iota
	latchPressed
)

// Fighter is one combatant. It belongs to exactly one arena room.
type Fighter struct {
	UserID      int64
	Username    string
	DisplayName string
	CharacterID string
	Color       string
	Team        int

	X, Y   float64
	VX, VY float64

	HP    float64
	MaxHP float64

	Speed           float64
	DamageScale     float64
	KnockbackResist float64
	HitboxScale     float64

	DashCD    float64
	BasicCD   float64
	SpecialCD float64
	UltCD     float64

	DashTimer float64
	Stun      float64
	Respawn   float64
	Charge    float64
	UltBuff   float64
	Slow      float64
	SlowMult  float64

	Alive        bool
	LastInputSeq int64
	KOs          int
	Deaths       int
	LastHitBy    int64

	boss      bool
	hpMult    float64
	speedMult float64
	latches   [len(protocol.Actions)]latch
}

func newFighter(id int64, username, display string) *Fighter {
	return &Fighter{
		UserID:      id,
		Username:    username,
		DisplayName: display,
		SlowMult:    1,
		Alive:       true,
		hpMult:      1,
		speedMult:   1,
	}
}

func (f *Fighter) IsBoss() bool { return f.boss }

func (f *Fighter) radius() float64 { return baseRadius * f.HitboxScale }

// applyCharacter re-derives base stats from ch. Current health is kept but
// clamped to the new maximum; a fresh fighter starts at full health.
func (f *Fighter) applyCharacter(ch Character) {
	f.CharacterID = ch.ID
	f.Color = ch.Color
	f.MaxHP = ch.Stats.HP * f.hpMult
	if f.HP <= 0 && f.Alive {
		f.HP = f.MaxHP
	}
	f.HP = min(f.HP, f.MaxHP)
	f.Speed = ch.Stats.Speed * f.speedMult
	f.DamageScale = ch.Stats.Damage
	f.KnockbackResist = ch.Stats.KnockbackResist
	f.HitboxScale = ch.Stats.HitboxScale
}

// decayTimers counts every cooldown and status timer down by dt, clamped at
// zero. It reports whether the slow modifier expired on this call.
func (f *Fighter) decayTimers(dt float64) (slowExpired bool) {
	dec := func(v *float64) { *v = max(0, *v-dt) }
	dec(&f.DashCD)
	dec(&f.BasicCD)
	dec(&f.SpecialCD)
	dec(&f.UltCD)
	dec(&f.DashTimer)
	dec(&f.Stun)
	dec(&f.UltBuff)

	hadSlow := f.Slow > 0
	dec(&f.Slow)
	return hadSlow && f.Slow == 0
}

// edge records the held state of a and reports an off to on transition.
func (f *Fighter) edge(a protocol.Action, held bool) bool {
	prev := f.latches[a]
	if held {
		f.latches[a] = latchPressed
	} else {
		f.latches[a] = latchIdle
	}
	return held && prev == latchIdle
}

func (f *Fighter) resetRound(preserveScores bool) {
	if !preserveScores {
		f.KOs = 0
		f.Deaths = 0
	}
	f.Charge = 0
	f.UltBuff = 0
	f.Slow = 0
	f.SlowMult = 1
	f.DashCD, f.BasicCD, f.SpecialCD, f.UltCD = 0, 0, 0, 0
	f.DashTimer = 0
}

type fighterView struct {
	UserID       int64   `json:"user_id"`
	Username     string  `json:"username"`
	DisplayName  string  `json:"display_name"`
	CharacterID  string  `json:"character_id"`
	Color        string  `json:"color"`
	Team         int     `json:"team"`
	X            float64 `json:"x"`
	Y            float64 `json:"y"`
	VX           float64 `json:"vx"`
	VY           float64 `json:"vy"`
	HP           float64 `json:"hp"`
	MaxHP        float64 `json:"max_hp"`
	Alive        bool    `json:"alive"`
	DashCD       float64 `json:"dash_cd"`
	SpecialCD    float64 `json:"special_cd"`
	UltCD        float64 `json:"ult_cd"`
	Stun         float64 `json:"stun"`
	Respawn      float64 `json:"respawn"`
	Charge       float64 `json:"ult_charge"`
	KOs          int     `json:"score_kos"`
	Deaths       int     `json:"score_deaths"`
	LastInputSeq int64   `json:"last_input_seq"`
	UltBuff      float64 `json:"ult_buff"`
	Slow         float64 `json:"slow"`
}

func (f *Fighter) view() fighterView {
	return fighterView{
		UserID:       f.UserID,
		Username:     f.Username,
		DisplayName:  f.DisplayName,
		CharacterID:  f.CharacterID,
		Color:        f.Color,
		Team:         f.Team,
		X:            round(f.X, 2),
		Y:            round(f.Y, 2),
		VX:           round(f.VX, 2),
		VY:           round(f.VY, 2),
		HP:           round(f.HP, 1),
		MaxHP:        round(f.MaxHP, 1),
		Alive:        f.Alive,
		DashCD:       round(f.DashCD, 2),
		SpecialCD:    round(f.SpecialCD, 2),
		UltCD:        round(f.UltCD, 2),
		Stun:         round(f.Stun, 2),
		Respawn:      round(f.Respawn, 2),
		Charge:       round(f.Charge, 1),
		KOs:          f.KOs,
		Deaths:       f.Deaths,
		LastInputSeq: f.LastInputSeq,
		UltBuff:      round(f.UltBuff, 2),
		Slow:         round(f.Slow, 2),
	}
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func norm(dx, dy float64) (nx, ny, dist float64) {
	dist = math.Hypot(dx, dy)
	if dist <= 0.0001 {
		return 0, 0, 0.0001
	}
	return dx / dist, dy / dist, dist
}

func clamp(v, lo, hi float64) float64 {
	return max(lo, min(hi, v))
}
