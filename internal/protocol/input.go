package protocol

import "encoding/json"

// Action is one of the edge-triggered buttons of the arena input record.
type Action int

const (
	ActionDash Action = iota
	ActionBasic
	ActionSpecial
	ActionUlt
)

var Actions = [...]Action{ActionDash, ActionBasic, ActionSpecial, ActionUlt}

func (a Action) String() string {
	switch a {
	case ActionDash:
		return "dash"
	case ActionBasic:
		return "basic"
	case ActionSpecial:
		return "special"
	case ActionUlt:
		return "ult"
	}
	return "unknown"
}

// Input is the normalized arena input record. Seq is echoed back in
// snapshots; out-of-order values are accepted as last write wins.
type Input struct {
	Seq     int64 `json:"seq"`
	Up      bool  `json:"up"`
	Down    bool  `json:"down"`
	Left    bool  `json:"left"`
	Right   bool  `json:"right"`
	Dash    bool  `json:"dash"`
	Basic   bool  `json:"basic"`
	Special bool  `json:"special"`
	Ult     bool  `json:"ult"`
}

func (in Input) Pressed(a Action) bool {
	switch a {
	case ActionDash:
		return in.Dash
	case ActionBasic:
		return in.Basic
	case ActionSpecial:
		return in.Special
	case ActionUlt:
		return in.Ult
	}
	return false
}

// Axis returns the raw directional intent, each component in {-1,0,1}.
func (in Input) Axis() (dx, dy float64) {
	if in.Right {
		dx++
	}
	if in.Left {
		dx--
	}
	if in.Down {
		dy++
	}
	if in.Up {
		dy--
	}
	return dx, dy
}

// key aliases accepted inside an optional "keys" object.
var keyAliases = map[string][]string{
	"up":      {"w", "up", "arrowup"},
	"down":    {"s", "down", "arrowdown"},
	"left":    {"a", "left", "arrowleft"},
	"right":   {"d", "right", "arrowright"},
	"dash":    {"shift", "dash", "space"},
	"basic":   {"j", "basic"},
	"special": {"k", "special"},
	"ult":     {"e", "ult"},
}

// ParseInput accepts both the flat record and a client key map
// ({"seq":3,"keys":{"w":true,"j":true}}); either source pressing a button
// counts as pressed.
func ParseInput(raw json.RawMessage) (Input, error) {
	var p struct {
		Input
		Keys map[string]bool `json:"keys"`
	}
	if len(raw) == 0 {
		return Input{}, nil
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return Input{}, err
	}
	in := p.Input
	if len(p.Keys) == 0 {
		return in, nil
	}
	held := func(name string) bool {
		for _, k := range keyAliases[name] {
			if p.Keys[k] {
				return true
			}
		}
		return false
	}
	in.Up = in.Up || held("up")
	in.Down = in.Down || held("down")
	in.Left = in.Left || held("left")
	in.Right = in.Right || held("right")
	in.Dash = in.Dash || held("dash")
	in.Basic = in.Basic || held("basic")
	in.Special = in.Special || held("special")
	in.Ult = in.Ult || held("ult")
	return in, nil
}
