package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var ErrBadJSON = errors.New("bad json")
var ErrMissingType = errors.New("missing type")

// Envelope is a decoded client frame. Raw keeps the whole record so handlers
// can decode the fields they care about and ignore the rest.
type Envelope struct {
	Type string
	Raw  json.RawMessage
}

func DecodeEnvelope(data []byte) (Envelope, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrBadJSON, err)
	}
	if head.Type == "" {
		return Envelope{}, ErrMissingType
	}
	return Envelope{Type: head.Type, Raw: json.RawMessage(data)}, nil
}

// NewEnvelope builds an envelope from a Go value, used by the server itself
// when it synthesizes room messages (console commands, tests).
func NewEnvelope(typ string, body any) (Envelope, error) {
	raw, err := Encode(typ, body)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: typ, Raw: raw}, nil
}

func (e Envelope) Decode(v any) error {
	if len(e.Raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(e.Raw, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrBadJSON, e.Type, err)
	}
	return nil
}

// Encode renders body as a flat JSON object with a leading "type" field.
// body must marshal to an object (or be nil).
func Encode(typ string, body any) ([]byte, error) {
	tb, err := json.Marshal(typ)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.WriteString(`{"type":`)
	buf.Write(tb)
	if body == nil {
		buf.WriteByte('}')
		return buf.Bytes(), nil
	}

	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", typ, err)
	}
	b = bytes.TrimSpace(b)
	if len(b) < 2 || b[0] != '{' {
		return nil, fmt.Errorf("encode %s: body is not an object", typ)
	}
	inner := bytes.TrimSpace(b[1 : len(b)-1])
	if len(inner) > 0 {
		buf.WriteByte(',')
		buf.Write(inner)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Error is the body of every "error" frame.
type Error struct {
	Error       string `json:"error"`
	Got         string `json:"got,omitempty"`
	MutedUntil  int64  `json:"muted_until,omitempty"`
	BannedUntil int64  `json:"banned_until,omitempty"`
}

// Wire error codes.
const (
	CodeBadJSON            = "invalid_json"
	CodeHelloFirst         = "hello_first"
	CodeMissingToken       = "missing_token"
	CodeBadToken           = "bad_token"
	CodeBanned             = "banned"
	CodeMuted              = "muted"
	CodeNotInRoom          = "not_in_room"
	CodeUnknownMessageType = "unknown_message_type"
	CodeUnknownRoomKind    = "unknown_room_kind"
	CodeUnsupportedQueue   = "unsupported_queue"
	CodeBossDisabled       = "boss_disabled"
	CodeAdminOnly          = "admin_only"
)
