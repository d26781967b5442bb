package types

type ServerFlags struct {
	BossEnabled bool `json:"boss_enabled"`
}

type HelloOK struct {
	Me     any         `json:"me"`
	Server ServerFlags `json:"server"`
}

type Pong struct {
	TS int64 `json:"ts"`
}

type MatchFound struct {
	Kind    string  `json:"kind"`
	Mode    string  `json:"mode"`
	RoomID  string  `json:"room_id"`
	RoomKey string  `json:"room_key"`
	Players []int64 `json:"players"`
}

type RoomJoined struct {
	RoomKey  string `json:"room_key"`
	RoomID   string `json:"room_id"`
	Kind     string `json:"kind"`
	Role     string `json:"role"`
	Seat     string `json:"seat,omitempty"`
	State    string `json:"state"`
	ModeName string `json:"mode_name,omitempty"`
}

type RoomRef struct {
	RoomKey string `json:"room_key"`
}

type ChatMessage struct {
	RoomKey   string `json:"room_key"`
	FromID    int64  `json:"from_user_id"`
	FromName  string `json:"from_name"`
	Text      string `json:"text"`
	CreatedAt int64  `json:"created_at"`
}

type Announcement struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	CreatedAt int64  `json:"created_at"`
}

type Moderation struct {
	Kind    string `json:"kind"`
	UntilTS int64  `json:"until_ts"`
}

type Kicked struct {
	Reason string `json:"reason"`
}

type AdminResult struct {
	Op    string `json:"op"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	Until int64  `json:"until,omitempty"`
}
