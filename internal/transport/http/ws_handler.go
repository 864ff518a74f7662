package http

import (
	"context"
	"errors"
	"io"
	stdhttp "net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/axiomchronicles/drevoid-server/internal/core"
	"github.com/axiomchronicles/drevoid-server/internal/proto"
)

// WSHandler upgrades HTTP connections and bridges them to the chat
// dispatcher. WebSocket text frames carry the same JSON records as the
// TCP protocol; the WebSocket's own framing replaces the length prefix.
type WSHandler struct {
	dispatcher *core.Dispatcher
	log        *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(dispatcher *core.Dispatcher, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{dispatcher: dispatcher, log: logger}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	ctx := r.Context()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	sess, err := h.handshake(ctx, conn)
	if err != nil {
		conn.Close(websocket.StatusPolicyViolation, "handshake failed")
		return
	}
	defer h.dispatcher.Disconnect(sess)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, sess)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, sess)
	}()

	err = <-errCh
	sess.Close()
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != 0 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Str("username", sess.Username).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

// handshake reads records until a successful connect, mirroring the
// TCP transport's handshake phase.
func (h *WSHandler) handshake(ctx context.Context, conn *websocket.Conn) (*core.Session, error) {
	connID := uuid.NewString()
	for {
		var rec proto.Record
		if err := wsjson.Read(ctx, conn, &rec); err != nil {
			return nil, err
		}
		sess, reply := h.dispatcher.Connect(connID, &rec)
		if sess == nil {
			if err := wsjson.Write(ctx, conn, reply); err != nil {
				return nil, err
			}
			continue
		}
		return sess, nil
	}
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, sess *core.Session) error {
	for {
		var rec proto.Record
		if err := wsjson.Read(ctx, conn, &rec); err != nil {
			return err
		}
		if rec.Type == proto.TypeDisconnect {
			return io.EOF
		}
		h.dispatcher.Dispatch(sess, &rec)
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, sess *core.Session) error {
	for {
		select {
		case rec := <-sess.Outbound():
			if err := wsjson.Write(ctx, conn, rec); err != nil {
				h.log.Error().Err(err).Str("username", sess.Username).Msg("write ws record")
				return err
			}
		case <-sess.Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
