// Package types holds the hub-level wire bodies shared by the server and Go
// clients. Room-specific frames (arena_*, pong_*, chess_* ...) live with
// their rooms.
//
// Client -> server:
//
//	hello{token}
//	ping
//	get_lobby
//	queue_join{kind, mode}
//	queue_leave{kind?, mode?}
//	join_room{kind, room_id, mode?, match_seconds?}   (alias room_join)
//	leave_room{room_key | kind+room_id}             (alias room_leave)
//	room_chat{room_key, text}
//	admin_mute{user_id, minutes}
//	admin_ban{user_id, minutes}
//	admin_kick{user_id}
//	admin_announce{text}
//	admin_force_start{room_key}
//	admin_force_end{room_key}
//	set_boss_enabled{enabled}
//
// Server -> client:
//
//	hello_required, hello_ok, presence, lobby_state, pong, queue_status,
//	match_found, room_joined, room_left, room_chat, room_error,
//	announcement, moderation, kicked, server_flag, admin_result, error
package types

type Hello struct {
	Token string `json:"token"`
}

type QueueRequest struct {
	Kind string `json:"kind"`
	Mode string `json:"mode"`
}

type JoinRoom struct {
	Kind         string `json:"kind"`
	RoomID       string `json:"room_id"`
	Mode         string `json:"mode"`
	MatchSeconds int    `json:"match_seconds"`
}

type LeaveRoom struct {
	RoomKey string `json:"room_key"`
	Kind    string `json:"kind"`
	RoomID  string `json:"room_id"`
}

type ChatRequest struct {
	RoomKey string `json:"room_key"`
	Text    string `json:"text"`
}

type ModerationRequest struct {
	UserID  int64 `json:"user_id"`
	Minutes int   `json:"minutes"`
}

type AnnounceRequest struct {
	Text string `json:"text"`
}

type RoomRequest struct {
	RoomKey string `json:"room_key"`
}

type BossToggle struct {
	Enabled bool `json:"enabled"`
}
