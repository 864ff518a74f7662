package tcp

import (
	"context"
	"errors"
	"io"
	"net"

	"github.com/rs/zerolog"

	"github.com/axiomchronicles/drevoid-server/internal/core"
	"github.com/axiomchronicles/drevoid-server/internal/proto"
)

const readChunkSize = 4096

// connLoop is the per-connection worker: a blocking read-decode-dispatch
// loop plus a writer draining the session's outbound queue. The worker
// blocks only on its own socket; registry work happens inline in the
// dispatcher and outbound fan-out goes through per-session queues.
type connLoop struct {
	conn       net.Conn
	connID     string
	dispatcher *core.Dispatcher
	maxFrame   int
	log        *zerolog.Logger

	dec  *proto.Decoder
	sess *core.Session
}

func newConnLoop(conn net.Conn, connID string, dispatcher *core.Dispatcher, maxFrame int, logger *zerolog.Logger) *connLoop {
	return &connLoop{
		conn:       conn,
		connID:     connID,
		dispatcher: dispatcher,
		maxFrame:   maxFrame,
		log:        logger,
		dec:        proto.NewDecoder(maxFrame),
	}
}

func (c *connLoop) run(ctx context.Context) {
	defer c.conn.Close()

	// Server shutdown closes the socket directly. During the handshake
	// no writer goroutine exists yet, so without this a connection that
	// never sends a connect record would block in Read past shutdown.
	stop := context.AfterFunc(ctx, func() { c.conn.Close() })
	defer stop()

	if err := c.handshake(); err != nil {
		if !errors.Is(err, io.EOF) {
			c.log.Warn().Err(err).Str("conn_id", c.connID).Msg("handshake failed")
		}
		return
	}
	defer c.dispatcher.Disconnect(c.sess)

	// Writer owns the socket teardown: when the session is closed by
	// the dispatcher (kick, ban, overflow) it closes the conn, which
	// unblocks the read loop below.
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writeLoop(ctx)
		c.conn.Close()
	}()

	if err := c.readLoop(); err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
		c.log.Warn().Err(err).Str("conn_id", c.connID).Str("username", c.sess.Username).Msg("connection closed with error")
	}
	c.sess.Close()
	<-writerDone
}

// handshake reads records until a successful connect. Protocol errors
// terminate the connection; rejected connects (duplicate username,
// banned) get an error record and another chance.
func (c *connLoop) handshake() error {
	buf := make([]byte, readChunkSize)
	for {
		rec, err := c.dec.Next()
		if err != nil {
			return err
		}
		if rec == nil {
			n, readErr := c.conn.Read(buf)
			if n > 0 {
				c.dec.Feed(buf[:n])
			}
			if readErr != nil {
				return readErr
			}
			continue
		}

		sess, reply := c.dispatcher.Connect(c.connID, rec)
		if sess == nil {
			if err := c.writeRecord(reply); err != nil {
				return err
			}
			continue
		}
		c.sess = sess
		return nil
	}
}

func (c *connLoop) readLoop() error {
	buf := make([]byte, readChunkSize)
	for {
		for {
			rec, err := c.dec.Next()
			if err != nil {
				// Protocol violation: frame too large, zero length,
				// or malformed body. Fatal for this connection only.
				return err
			}
			if rec == nil {
				break
			}
			if rec.Type == proto.TypeDisconnect {
				return io.EOF
			}
			c.dispatcher.Dispatch(c.sess, rec)
		}

		n, err := c.conn.Read(buf)
		if n > 0 {
			c.dec.Feed(buf[:n])
		}
		if err != nil {
			return err
		}
	}
}

func (c *connLoop) writeLoop(ctx context.Context) {
	for {
		select {
		case rec := <-c.sess.Outbound():
			if err := c.writeRecord(rec); err != nil {
				c.log.Debug().Err(err).Str("conn_id", c.connID).Msg("write frame")
				return
			}
		case <-c.sess.Done():
			return
		case <-ctx.Done():
			return
		}
	}
}

func (c *connLoop) writeRecord(rec *proto.Record) error {
	frame, err := proto.Encode(rec, c.maxFrame)
	if err != nil {
		c.log.Error().Err(err).Str("type", rec.Type).Msg("encode outbound frame")
		return nil // skip oversized outbound records, keep the conn
	}
	_, err = c.conn.Write(frame)
	return err
}
