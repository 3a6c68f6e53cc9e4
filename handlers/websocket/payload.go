package websocket

import (
	"docsync-server/auth"
	"docsync-server/collab"
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
	socketio "github.com/zishang520/socket.io/v2/socket"
)

// rawArg returns the JSON form of an inbound event argument. Strings holding
// a JSON object are accepted as-is.
func rawArg(arg any) []byte {
	switch v := arg.(type) {
	case nil:
		return nil
	case string:
		if trimmed := strings.TrimSpace(v); strings.HasPrefix(trimmed, "{") && gjson.Valid(trimmed) {
			return []byte(trimmed)
		}
		return nil
	case []byte:
		if gjson.ValidBytes(v) {
			return v
		}
		return nil
	}

	raw, err := json.Marshal(arg)
	if err != nil {
		return nil
	}
	return raw
}

// roomOf reads the document id from a join/leave/save argument: either a bare
// string or an object carrying "room" or "documentId".
func roomOf(args []any) string {
	if len(args) == 0 {
		return ""
	}
	if id, ok := args[0].(string); ok && !strings.HasPrefix(strings.TrimSpace(id), "{") {
		return id
	}

	raw := rawArg(args[0])
	if raw == nil {
		return ""
	}
	for _, path := range []string{"room", "documentId"} {
		if r := gjson.GetBytes(raw, path); r.Type == gjson.String && r.String() != "" {
			return r.String()
		}
	}
	return ""
}

// parseEdit decodes a typing event. Malformed payloads yield a message with
// no room, which the engine rejects.
func parseEdit(args []any) collab.EditMessage {
	msg := collab.EditMessage{Room: roomOf(args)}
	if len(args) == 0 {
		return msg
	}
	raw := rawArg(args[0])
	if raw == nil {
		return msg
	}

	if content := gjson.GetBytes(raw, "content"); content.Exists() && content.Type != gjson.Null {
		msg.Content = json.RawMessage(content.Raw)
	}
	if title := gjson.GetBytes(raw, "title"); title.Type == gjson.String {
		t := title.String()
		msg.Title = &t
	}
	if delta := gjson.GetBytes(raw, "delta"); delta.Exists() && delta.Type != gjson.Null {
		msg.Delta = json.RawMessage(delta.Raw)
	}
	return msg
}

// handshakeToken finds the connection token in the socket.io auth object,
// the Authorization header or the "token" query parameter.
func handshakeToken(handshake *socketio.Handshake) string {
	if handshake == nil {
		return ""
	}

	if raw := rawArg(handshake.Auth); raw != nil {
		if token := gjson.GetBytes(raw, "token"); token.Type == gjson.String && token.String() != "" {
			return stripBearer(token.String())
		}
	}

	for name, values := range handshake.Headers {
		if !strings.EqualFold(name, "Authorization") || len(values) == 0 {
			continue
		}
		if token, ok := auth.BearerToken(values[0]); ok {
			return token
		}
	}

	if values := handshake.Query["token"]; len(values) > 0 {
		return values[0]
	}
	return ""
}

func stripBearer(token string) string {
	if t, ok := auth.BearerToken(token); ok {
		return t
	}
	return token
}
