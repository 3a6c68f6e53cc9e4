package websocket

import (
	"encoding/json"
	"fmt"

	socketio "github.com/zishang520/socket.io/v2/socket"
)

// socketConn adapts a socket.io socket to collab.Conn.
type socketConn struct {
	socket *socketio.Socket
}

func newSocketConn(socket *socketio.Socket) *socketConn {
	return &socketConn{socket: socket}
}

func (c *socketConn) ID() string {
	return string(c.socket.Id())
}

func (c *socketConn) Emit(event string, payload any) error {
	wire, err := toWire(payload)
	if err != nil {
		return err
	}
	return c.socket.Emit(event, wire)
}

func (c *socketConn) JoinGroup(room string) {
	c.socket.Join(socketio.Room(room))
}

func (c *socketConn) LeaveGroup(room string) {
	c.socket.Leave(socketio.Room(room))
}

func (c *socketConn) BroadcastGroup(room, event string, payload any) error {
	wire, err := toWire(payload)
	if err != nil {
		return err
	}
	return c.socket.Broadcast().To(socketio.Room(room)).Emit(event, wire)
}

func (c *socketConn) Close() {
	c.socket.Disconnect(true)
}

// toWire turns a payload into the plain values socket.io can encode: maps
// must be map[string]any, so structs and raw JSON go through a JSON round trip.
func toWire(payload any) (any, error) {
	switch payload.(type) {
	case nil, string, bool, float64, int, map[string]any, []any:
		return payload, nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	var wire any
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return wire, nil
}
