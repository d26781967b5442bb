package arena

import "github.com/DoyleJ11/arcade-server/internal/protocol"

const (
	Width  = 960.0
	Height = 540.0

	wallMargin = 18.0
	baseRadius = 16.0

	SnapshotRate = 20.0
	nominalRate  = 60.0
	maxEvents    = 20

	BasicCooldown   = 0.35
	BasicDamage     = 8.0
	BasicKnockback  = 140.0
	BasicRange      = 58.0
	StunOnHit       = 0.18
	SpecialCooldown = 2.2
	UltCooldown     = 8.0
	UltChargeMax    = 100.0

	DashCooldown = 1.1
	DashDuration = 0.16
	DashSpeed    = 520.0

	RespawnSeconds = 2.5

	DefaultMatchSeconds = 90
	MinMatchSeconds     = 60
	MaxMatchSeconds     = 120

	koChargeBonus     = 20.0
	chargePerDamage   = 0.8
	passiveChargeRate = 2.2

	ultBuffDamage    = 1.18
	ultBuffKnockback = 1.12
	ultBuffSpeed     = 1.18

	stunFriction = 0.90
	dashFriction = 0.96

	minKnockback   = 50.0
	minResistScale = 0.25

	bossCharacter = "hannigan"
	bossHPMult    = 2.2
	bossSpeedMult = 0.92
	bossTeam      = 999
)

var teamColors = []string{"#3a86ff", "#ff006e", "#8338ec", "#fb5607", "#06d6a0", "#ffbe0b"}

// move is one resolved ability. A move with selfOnly set never looks for
// targets; it applies self to the attacker and emits a buff event.
type move struct {
	rng       float64
	damage    float64
	knockback float64
	stun      float64
	selfOnly  bool
	buffName  string
	self      func(f *Fighter)
	onHit     func(t *Fighter)
}

var basicMove = move{rng: BasicRange, damage: BasicDamage, knockback: BasicKnockback, stun: StunOnHit}

func withStats(rng, damage, knockback, stun float64) move {
	return move{rng: rng, damage: damage, knockback: knockback, stun: stun}
}

// Per-character special and ultimate variants. Characters missing from a
// table use the basic numbers.
var specials = map[string]move{
	"jovan": {
		rng: 88, damage: 9, knockback: 110, stun: 0.28,
		onHit: func(t *Fighter) {
			t.Slow = max(t.Slow, 1.6)
			t.SlowMult = 0.65
		},
	},
	"big_t": withStats(92, 18, 220, 0.24),
	"simon": {
		rng: 76, damage: 11, knockback: 145, stun: StunOnHit,
		self: func(f *Fighter) {
			f.VX *= 1.15
			f.VY *= 1.15
		},
	},
	"edward": {
		selfOnly: true,
		buffName: "Low Profile",
		self: func(f *Fighter) {
			f.HitboxScale = max(0.68, f.HitboxScale*0.88)
			f.SlowMult = 1.12
			f.Slow = 2.6
		},
	},
	"griffin": {
		rng: 80, damage: 22, knockback: 240, stun: StunOnHit,
		self: func(f *Fighter) {
			f.SlowMult = 0.88
			f.Slow = 1.1
		},
	},
	"hannigan": withStats(110, 15, 180, 0.26),
}

var ults = map[string]move{
	"jovan": {
		selfOnly: true,
		buffName: "Lock In",
		self: func(f *Fighter) {
			f.UltBuff = 6
		},
	},
	"big_t": withStats(120, 30, 310, StunOnHit),
	"simon": {
		selfOnly: true,
		buffName: "Frame Advantage",
		self: func(f *Fighter) {
			f.UltBuff = 5
			f.SlowMult = 1.35
			f.Slow = 5
		},
	},
	"edward": {
		rng: 95, damage: 20, knockback: 210, stun: StunOnHit,
		self: func(f *Fighter) {
			f.HitboxScale = 0.7
			f.SlowMult = 1.18
			f.Slow = 3
		},
	},
	"griffin":  withStats(130, 34, 330, StunOnHit),
	"hannigan": withStats(145, 28, 290, StunOnHit),
}

func moveFor(characterID string, a protocol.Action) move {
	var table map[string]move
	switch a {
	case protocol.ActionSpecial:
		table = specials
	case protocol.ActionUlt:
		table = ults
	default:
		return basicMove
	}
	if m, ok := table[characterID]; ok {
		return m
	}
	return basicMove
}
