package protocol

import (
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
)

const maxRoomIDLen = 32

// Fold trims and case-folds an identifier coming off the wire.
func Fold(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}

func RoomKey(kind, roomID string) string {
	return kind + ":" + roomID
}

func SplitRoomKey(key string) (kind, roomID string, ok bool) {
	kind, roomID, ok = strings.Cut(key, ":")
	if !ok || kind == "" || roomID == "" {
		return "", "", false
	}
	return kind, roomID, true
}

// SanitizeRoomID keeps [a-z0-9_-], caps the length and falls back to a
// fresh id when nothing survives.
func SanitizeRoomID(s string) string {
	var b strings.Builder
	for _, r := range Fold(s) {
		if b.Len() >= maxRoomIDLen {
			break
		}
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return NewRoomID()
	}
	return b.String()
}

func NewRoomID() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return id[:8]
}
