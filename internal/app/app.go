package app

import (
	"context"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/axiomchronicles/drevoid-server/internal/auth"
	"github.com/axiomchronicles/drevoid-server/internal/config"
	"github.com/axiomchronicles/drevoid-server/internal/core"
	"github.com/axiomchronicles/drevoid-server/internal/ctf"
	"github.com/axiomchronicles/drevoid-server/internal/store"
	"github.com/axiomchronicles/drevoid-server/internal/store/sqlite"
	transporthttp "github.com/axiomchronicles/drevoid-server/internal/transport/http"
	transporttcp "github.com/axiomchronicles/drevoid-server/internal/transport/tcp"
)

// App wires together core and transport layers.
type App struct {
	tcpServer       *transporttcp.Server
	httpServer      *stdhttp.Server
	shutdownTimeout time.Duration
	store           store.Store
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	sessions := core.NewSessions(cfg.OutboundQueueSize, st, logger)
	bans, err := st.ListBans(context.Background())
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("load bans: %w", err)
	}
	sessions.SeedBans(bans)

	detector, err := ctf.NewDetector(cfg.FlagPatterns, st, logger)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("init flag detector: %w", err)
	}
	flags, err := st.ListFlags(context.Background())
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("load flags: %w", err)
	}
	detector.Seed(flags)
	logger.Info().Int("bans", len(bans)).Int("flags", len(flags)).Msg("persisted state restored")

	rooms := core.NewRooms(cfg.DefaultRoom, cfg.DefaultRoomCapacity, cfg.RoomCapacity, cfg.HistorySize)

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.JWTTTL,
	}

	dispatcher := core.NewDispatcher(sessions, rooms, detector, jwtConfig, cfg.Admins, core.Policy{
		EchoMessages:  cfg.EchoMessages,
		HistoryReplay: cfg.HistoryReplay,
	}, logger)

	tcpServer := transporttcp.NewServer(cfg.ListenAddr, dispatcher, cfg.MaxFrameSize, logger)
	httpServer := transporthttp.NewServer(dispatcher, detector, cfg, logger)

	return &App{
		tcpServer:       tcpServer,
		httpServer:      httpServer,
		shutdownTimeout: cfg.ShutdownTimeout,
		store:           st,
		log:             logger,
	}, nil
}

// Run starts both servers and blocks until context cancellation or a
// fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 2)

	go func() {
		serverErr <- a.tcpServer.Serve(ctx)
	}()
	go func() {
		if err := a.httpServer.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
			a.cleanup()
			return err
		}

		a.cleanup()
		return <-serverErr
	}
}

// cleanup closes database and other resources.
func (a *App) cleanup() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
