package arena

import (
	"math/rand/v2"

	"github.com/DoyleJ11/arcade-server/internal/protocol"
)

const (
	approachWeight = 0.8
	strafeWeight   = 0.4
	axisDeadzone   = 0.15

	bossBasicRange   = 70.0
	bossSpecialRange = 110.0
	bossUltRange     = 130.0
	bossDashMinRange = 150.0

	bossBasicChance   = 0.2
	bossSpecialChance = 0.03
	bossUltChance     = 0.02
	bossDashChance    = 0.03
)

// Boss is the scripted policy for the boss fighter. It produces the same
// input record a client sends, so presses go through the normal edge
// trigger and cooldowns.
type Boss struct {
	rng        *rand.Rand
	retargetIn float64
	burstIn    float64
	target     int64
	hasTarget  bool
	strafe     float64
}

func NewBoss(rng *rand.Rand) *Boss {
	b := &Boss{rng: rng, strafe: 1}
	b.burstIn = b.uniform(1.0, 2.5)
	return b
}

func (b *Boss) uniform(lo, hi float64) float64 {
	return lo + b.rng.Float64()*(hi-lo)
}

func (b *Boss) Target() (int64, bool) { return b.target, b.hasTarget }

// Decide picks this tick's input for self against the human fighters.
func (b *Boss) Decide(self *Fighter, humans []*Fighter, dt float64) protocol.Input {
	alive := make([]*Fighter, 0, len(humans))
	for _, h := range humans {
		if h.Alive {
			alive = append(alive, h)
		}
	}
	if len(alive) == 0 {
		b.hasTarget = false
		return protocol.Input{}
	}

	b.retargetIn -= dt
	b.burstIn -= dt

	target := b.current(alive)
	if b.retargetIn <= 0 || target == nil {
		target = nearest(self, alive)
		b.target, b.hasTarget = target.UserID, true
		b.retargetIn = b.uniform(0.5, 1.3)
		b.strafe = 1
		if b.rng.IntN(2) == 0 {
			b.strafe = -1
		}
	}

	nx, ny, dist := norm(target.X-self.X, target.Y-self.Y)
	mx := nx*approachWeight - ny*b.strafe*strafeWeight
	my := ny*approachWeight + nx*b.strafe*strafeWeight

	in := protocol.Input{
		Up:    my < -axisDeadzone,
		Down:  my > axisDeadzone,
		Left:  mx < -axisDeadzone,
		Right: mx > axisDeadzone,
	}
	// Attacks are pulsed, never held, so each press is a fresh edge.
	in.Basic = dist < bossBasicRange && b.rng.Float64() < bossBasicChance
	in.Special = dist < bossSpecialRange && b.rng.Float64() < bossSpecialChance
	in.Ult = dist < bossUltRange && self.Charge >= UltChargeMax && b.rng.Float64() < bossUltChance
	in.Dash = dist > bossDashMinRange && b.rng.Float64() < bossDashChance
	if b.burstIn <= 0 {
		in.Dash = true
		b.burstIn = b.uniform(1.8, 3.0)
	}
	return in
}

func (b *Boss) current(alive []*Fighter) *Fighter {
	if !b.hasTarget {
		return nil
	}
	for _, f := range alive {
		if f.UserID == b.target {
			return f
		}
	}
	return nil
}

func nearest(self *Fighter, fs []*Fighter) *Fighter {
	var best *Fighter
	bestD := 0.0
	for _, f := range fs {
		dx, dy := f.X-self.X, f.Y-self.Y
		d := dx*dx + dy*dy
		if best == nil || d < bestD {
			best, bestD = f, d
		}
	}
	return best
}
