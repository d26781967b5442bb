package arena

import (
	"math"

	"github.com/DoyleJ11/arcade-server/internal/protocol"
	"github.com/DoyleJ11/arcade-server/internal/room"
)

// CombatEvent is one entry of the events list carried by arena_state.
// Pointer ids keep the boss (id 0) visible in JSON.
type CombatEvent struct {
	Kind     string  `json:"kind"`
	Attacker *int64  `json:"attacker,omitempty"`
	Target   *int64  `json:"target,omitempty"`
	Victim   *int64  `json:"victim,omitempty"`
	Killer   *int64  `json:"killer,omitempty"`
	UserID   *int64  `json:"user_id,omitempty"`
	Damage   float64 `json:"damage,omitempty"`
	Move     string  `json:"move,omitempty"`
	Name     string  `json:"name,omitempty"`
}

func ref(v int64) *int64 { return &v }

func (a *Arena) pushEvent(e CombatEvent) {
	a.events = append(a.events, e)
	if n := len(a.events); n > maxEvents {
		a.events = append(a.events[:0], a.events[n-maxEvents:]...)
	}
}

func (a *Arena) handleEdges(f *Fighter, in protocol.Input) {
	for _, act := range protocol.Actions {
		if !f.edge(act, in.Pressed(act)) || !f.Alive || f.Stun > 0 {
			continue
		}
		switch act {
		case protocol.ActionDash:
			if f.DashCD > 0 {
				continue
			}
			f.DashCD = DashCooldown
			f.DashTimer = DashDuration
			nx, ny, _ := norm(in.Axis())
			if math.Abs(nx) < 0.01 && math.Abs(ny) < 0.01 {
				nx, ny = 1, 0
			}
			f.VX, f.VY = nx*DashSpeed, ny*DashSpeed
			a.pushEvent(CombatEvent{Kind: "dash", UserID: ref(f.UserID)})
		case protocol.ActionBasic:
			if f.BasicCD > 0 {
				continue
			}
			f.BasicCD = BasicCooldown
			a.attack(f, act)
		case protocol.ActionSpecial:
			if f.SpecialCD > 0 {
				continue
			}
			f.SpecialCD = SpecialCooldown
			a.attack(f, act)
		case protocol.ActionUlt:
			// The boss AI only presses ult on a full meter.
			if f.UltCD > 0 || (f.Charge < UltChargeMax && !f.boss) {
				continue
			}
			f.UltCD = UltCooldown
			a.attack(f, act)
		}
	}
}

func (a *Arena) attack(f *Fighter, act protocol.Action) {
	if !f.Alive {
		return
	}
	mv := moveFor(f.CharacterID, act)
	if mv.self != nil {
		mv.self(f)
	}
	if act == protocol.ActionUlt {
		f.Charge = 0
	}
	if mv.selfOnly {
		a.pushEvent(CombatEvent{Kind: "buff", UserID: ref(f.UserID), Name: mv.buffName})
		return
	}

	damage := mv.damage * f.DamageScale
	kb := mv.knockback
	if f.UltBuff > 0 {
		damage *= ultBuffDamage
		kb *= ultBuffKnockback
	}

	hitAny := false
	for _, t := range a.targets(f) {
		nx, ny, dist := norm(t.X-f.X, t.Y-f.Y)
		if dist > mv.rng+t.radius() {
			continue
		}
		hitAny = true
		a.hit(f, t, hitParams{damage: damage, knockback: kb, stun: mv.stun, nx: nx, ny: ny, onHit: mv.onHit})
		if a.state != room.StateRunning {
			return
		}
	}
	if !hitAny {
		a.pushEvent(CombatEvent{Kind: "whiff", Attacker: ref(f.UserID), Move: act.String()})
	}
}

type hitParams struct {
	damage, knockback, stun float64
	nx, ny                  float64
	onHit                   func(t *Fighter)
}

func (a *Arena) hit(att, t *Fighter, p hitParams) {
	dmg := max(1, p.damage)
	t.HP -= dmg
	scale := max(minKnockback, p.knockback/max(minResistScale, t.KnockbackResist))
	t.VX += p.nx * scale
	t.VY += p.ny * scale
	t.Stun = max(t.Stun, p.stun)
	t.LastHitBy = att.UserID
	att.Charge = min(UltChargeMax, att.Charge+dmg*chargePerDamage)
	if p.onHit != nil {
		p.onHit(t)
	}
	a.pushEvent(CombatEvent{Kind: "hit", Attacker: ref(att.UserID), Target: ref(t.UserID), Damage: round(dmg, 1)})
	if t.HP <= 0 {
		a.knockOut(t, att)
	}
}

func (a *Arena) knockOut(victim, killer *Fighter) {
	victim.Alive = false
	victim.HP = 0
	victim.VX, victim.VY = 0, 0
	victim.Respawn = RespawnSeconds
	victim.Deaths++

	ev := CombatEvent{Kind: "ko", Victim: ref(victim.UserID)}
	if killer != nil {
		killer.KOs++
		killer.Charge = min(UltChargeMax, killer.Charge+koChargeBonus)
		ev.Killer = ref(killer.UserID)
	}
	a.pushEvent(ev)

	if a.mode == ModeBoss && victim.boss {
		a.finish(ReasonBossDefeated)
	}
}

// targets lists fighters att may hit: never itself or the dead, never a
// teammate in team mode, and only the other faction in boss mode.
func (a *Arena) targets(att *Fighter) []*Fighter {
	var out []*Fighter
	for _, f := range a.everyone() {
		if f == att || !f.Alive {
			continue
		}
		switch a.mode {
		case ModeTeams:
			if !att.boss && !f.boss && att.Team == f.Team {
				continue
			}
		case ModeBoss:
			if att.boss == f.boss {
				continue
			}
		}
		out = append(out, f)
	}
	return out
}

func (a *Arena) move(f *Fighter, in protocol.Input, dt float64) {
	switch {
	case f.Stun > 0:
		k := math.Pow(stunFriction, dt*nominalRate)
		f.VX *= k
		f.VY *= k
	case f.DashTimer > 0:
		k := math.Pow(dashFriction, dt*nominalRate)
		f.VX *= k
		f.VY *= k
	default:
		nx, ny, _ := norm(in.Axis())
		speed := f.Speed * f.SlowMult
		if f.UltBuff > 0 {
			speed *= ultBuffSpeed
		}
		f.VX, f.VY = nx*speed, ny*speed
	}
	f.X = clamp(f.X+f.VX*dt, wallMargin, Width-wallMargin)
	f.Y = clamp(f.Y+f.VY*dt, wallMargin, Height-wallMargin)
	f.Charge = min(UltChargeMax, f.Charge+dt*passiveChargeRate)
}
