package websocket

import (
	"testing"

	socketio "github.com/zishang520/socket.io/v2/socket"
)

func TestRoomOf(t *testing.T) {
	tests := []struct {
		name string
		args []any
		want string
	}{
		{name: "no args"},
		{name: "bare id", args: []any{"doc-1"}, want: "doc-1"},
		{name: "room field", args: []any{map[string]any{"room": "doc-2"}}, want: "doc-2"},
		{name: "documentId field", args: []any{map[string]any{"documentId": "doc-3"}}, want: "doc-3"},
		{name: "room wins", args: []any{map[string]any{"room": "a", "documentId": "b"}}, want: "a"},
		{name: "json string", args: []any{`{"documentId":"doc-4"}`}, want: "doc-4"},
		{name: "non-string id", args: []any{map[string]any{"room": 42}}},
		{name: "number", args: []any{7.0}},
		{name: "nil", args: []any{nil}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := roomOf(tt.args); got != tt.want {
				t.Errorf("roomOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseEdit(t *testing.T) {
	msg := parseEdit([]any{map[string]any{
		"room":    "doc-1",
		"title":   "Notes",
		"content": []any{map[string]any{"insert": "hi\n"}},
		"delta":   map[string]any{"ops": []any{map[string]any{"insert": "i"}}},
	}})

	if msg.Room != "doc-1" {
		t.Errorf("Expected room doc-1, got %q", msg.Room)
	}
	if msg.Title == nil || *msg.Title != "Notes" {
		t.Errorf("Expected title Notes, got %v", msg.Title)
	}
	if string(msg.Content) != `[{"insert":"hi\n"}]` {
		t.Errorf("Unexpected content %s", msg.Content)
	}
	if string(msg.Delta) != `{"ops":[{"insert":"i"}]}` {
		t.Errorf("Unexpected delta %s", msg.Delta)
	}
}

func TestParseEdit_Partial(t *testing.T) {
	msg := parseEdit([]any{map[string]any{"documentId": "doc-1", "content": "plain", "title": nil}})
	if msg.Room != "doc-1" {
		t.Errorf("Expected room from documentId, got %q", msg.Room)
	}
	if string(msg.Content) != `"plain"` {
		t.Errorf("Unexpected content %s", msg.Content)
	}
	if msg.Title != nil {
		t.Errorf("Expected no title, got %q", *msg.Title)
	}
	if msg.Delta != nil {
		t.Errorf("Expected no delta, got %s", msg.Delta)
	}
}

func TestParseEdit_Malformed(t *testing.T) {
	for _, args := range [][]any{nil, {"just-a-string"}, {nil}, {42.0}} {
		msg := parseEdit(args)
		if msg.Content != nil {
			t.Errorf("parseEdit(%v) content = %s, want none", args, msg.Content)
		}
	}
}

func TestHandshakeToken(t *testing.T) {
	tests := []struct {
		name      string
		handshake *socketio.Handshake
		want      string
	}{
		{name: "nil handshake"},
		{name: "empty", handshake: &socketio.Handshake{}},
		{
			name:      "auth object",
			handshake: &socketio.Handshake{Auth: map[string]any{"token": "abc"}},
			want:      "abc",
		},
		{
			name:      "auth object with bearer prefix",
			handshake: &socketio.Handshake{Auth: map[string]any{"token": "Bearer abc"}},
			want:      "abc",
		},
		{
			name:      "authorization header",
			handshake: &socketio.Handshake{Headers: map[string][]string{"authorization": {"Bearer xyz"}}},
			want:      "xyz",
		},
		{
			name: "auth object wins over header",
			handshake: &socketio.Handshake{
				Auth:    map[string]any{"token": "abc"},
				Headers: map[string][]string{"Authorization": {"Bearer xyz"}},
			},
			want: "abc",
		},
		{
			name:      "query parameter",
			handshake: &socketio.Handshake{Query: map[string][]string{"token": {"q"}}},
			want:      "q",
		},
		{
			name:      "malformed header",
			handshake: &socketio.Handshake{Headers: map[string][]string{"Authorization": {"Basic zzz"}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := handshakeToken(tt.handshake); got != tt.want {
				t.Errorf("handshakeToken() = %q, want %q", got, tt.want)
			}
		})
	}
}
