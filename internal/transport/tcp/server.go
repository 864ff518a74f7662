package tcp

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/axiomchronicles/drevoid-server/internal/core"
)

// Server accepts raw TCP connections speaking the length-prefixed
// record protocol and runs one connection worker per session.
type Server struct {
	addr       string
	dispatcher *core.Dispatcher
	maxFrame   int
	log        *zerolog.Logger

	ln net.Listener
}

// NewServer builds a TCP server for the given listen address.
func NewServer(addr string, dispatcher *core.Dispatcher, maxFrame int, logger *zerolog.Logger) *Server {
	return &Server{
		addr:       addr,
		dispatcher: dispatcher,
		maxFrame:   maxFrame,
		log:        logger,
	}
}

// Listen binds the listener. Split from Serve so callers can learn the
// bound address before accepting (":0" in tests).
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	s.ln = ln
	return nil
}

// Addr returns the bound listener address.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Serve accepts connections until the context is canceled. Each
// connection gets its own worker; a failure in one never escapes its
// goroutine.
func (s *Server) Serve(ctx context.Context) error {
	if s.ln == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}

	go func() {
		<-ctx.Done()
		s.ln.Close()
	}()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.log.Error().Err(err).Msg("accept")
			continue
		}
		go s.handleConn(ctx, conn)
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	connID := uuid.NewString()
	s.log.Debug().Str("conn_id", connID).Str("remote", conn.RemoteAddr().String()).Msg("connection accepted")

	c := newConnLoop(conn, connID, s.dispatcher, s.maxFrame, s.log)
	c.run(ctx)
}
