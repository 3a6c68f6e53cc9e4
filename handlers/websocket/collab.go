package websocket

import (
	"context"
	"docsync-server/collab"
	"regexp"

	"github.com/sirupsen/logrus"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/engine.io/v2/utils"
	socketio "github.com/zishang520/socket.io/v2/socket"
)

// Engine is the part of collab.Engine the socket binding drives.
type Engine interface {
	Connect(ctx context.Context, conn collab.Conn, token string) error
	Join(ctx context.Context, sessionID, room string) error
	Edit(ctx context.Context, sessionID string, msg collab.EditMessage) error
	Save(ctx context.Context, sessionID string, msg collab.SaveMessage) error
	Leave(ctx context.Context, sessionID, room string) error
	Disconnect(ctx context.Context, sessionID string)
}

var localhostOrigin = regexp.MustCompile(`^https?://(localhost|127\.0\.0\.1|\[::1\])(:\d+)?$`)

// corsOrigin allows any origin when none are configured, otherwise the
// configured origins plus local development hosts.
func corsOrigin(origins []string) any {
	if len(origins) == 0 {
		return "*"
	}
	allowed := make([]any, 0, len(origins)+1)
	for _, origin := range origins {
		allowed = append(allowed, origin)
	}
	return append(allowed, localhostOrigin)
}

func SetupSocketIO(engine Engine, origins []string) *socketio.Server {
	opts := socketio.DefaultServerOptions()
	opts.SetMaxHttpBufferSize(5000000)
	opts.SetPath("/socket.io")
	opts.SetAllowEIO3(true)
	opts.SetCors(&types.Cors{
		Origin:      corsOrigin(origins),
		Credentials: len(origins) > 0,
	})
	srv := socketio.NewServer(nil, opts)

	//nolint:errcheck // Socket.IO event handlers do not return useful errors
	srv.On("connection", func(clients ...any) {
		socket, ok := clients[0].(*socketio.Socket)
		if !ok {
			return
		}
		bindSocket(engine, socket)
	})

	return srv
}

func bindSocket(engine Engine, socket *socketio.Socket) {
	ctx := context.Background()
	me := string(socket.Id())
	utils.Log().Printf("socket %v connected\n", me)

	if err := engine.Connect(ctx, newSocketConn(socket), handshakeToken(socket.Handshake())); err != nil {
		return
	}

	//nolint:errcheck // Socket.IO event handlers do not return useful errors
	socket.On("join", func(datas ...any) {
		handleJoin(ctx, engine, me, datas)
	})

	//nolint:errcheck // Socket.IO event handlers do not return useful errors
	socket.On("typing", func(datas ...any) {
		handleTyping(ctx, engine, me, datas)
	})

	//nolint:errcheck // Socket.IO event handlers do not return useful errors
	socket.On("save", func(datas ...any) {
		handleSave(ctx, engine, me, datas)
	})

	//nolint:errcheck // Socket.IO event handlers do not return useful errors
	socket.On("leave", func(datas ...any) {
		handleLeave(ctx, engine, me, datas)
	})

	//nolint:errcheck // Socket.IO event handlers do not return useful errors
	socket.On("disconnecting", func(datas ...any) {
		engine.Disconnect(ctx, me)
	})

	//nolint:errcheck // Socket.IO event handlers do not return useful errors
	socket.On("disconnect", func(datas ...any) {
		// covers transports that close without a disconnecting event
		engine.Disconnect(ctx, me)
		socket.RemoveAllListeners("")
	})
}

func handleJoin(ctx context.Context, engine Engine, sessionID string, datas []any) {
	ack, args := splitAck(datas)
	err := engine.Join(ctx, sessionID, roomOf(args))
	logResult(sessionID, "join", err)
	answer(ack, err)
}

func handleTyping(ctx context.Context, engine Engine, sessionID string, datas []any) {
	ack, args := splitAck(datas)
	err := engine.Edit(ctx, sessionID, parseEdit(args))
	logResult(sessionID, "typing", err)
	answer(ack, err)
}

func handleSave(ctx context.Context, engine Engine, sessionID string, datas []any) {
	ack, args := splitAck(datas)
	err := engine.Save(ctx, sessionID, collab.SaveMessage{Room: roomOf(args)})
	logResult(sessionID, "save", err)
	answer(ack, err)
}

func handleLeave(ctx context.Context, engine Engine, sessionID string, datas []any) {
	ack, args := splitAck(datas)
	err := engine.Leave(ctx, sessionID, roomOf(args))
	logResult(sessionID, "leave", err)
	answer(ack, err)
}

func logResult(sessionID, event string, err error) {
	if err == nil {
		return
	}
	logrus.WithFields(logrus.Fields{
		"sessionId": sessionID,
		"event":     event,
	}).WithError(err).Debug("Socket event rejected")
}
