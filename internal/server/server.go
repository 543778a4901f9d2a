package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"auctioneer/internal/config"
	"auctioneer/internal/coordinator"
	"auctioneer/internal/protocol"
	"auctioneer/internal/session"
	"auctioneer/utils"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
)

const (
	intakeSize        = 128
	acceptRetryDelay  = 10 * time.Millisecond
	readHeaderTimeout = 5 * time.Second
)

// Option customises a Server
type Option func(*Server)

// WithClock replaces the wall clock driving the auction deadline
func WithClock(clock clockwork.Clock) Option {
	return func(s *Server) { s.clock = clock }
}

// Server accepts participant connections for a single auction and serves
// the status API next to it
type Server struct {
	cfg   config.ServerConfig
	codec protocol.Codec
	clock clockwork.Clock
	coord *coordinator.Coordinator

	listener   net.Listener
	httpLn     net.Listener
	httpServer *http.Server

	sessions   sync.WaitGroup
	acceptDone chan struct{}
}

// New builds a Server. Nothing is bound until Listen or Run.
func New(cfg config.ServerConfig, opts ...Option) (*Server, error) {
	codec, err := protocol.NewCodec(cfg.Codec)
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}

	s := &Server{
		cfg:        cfg,
		codec:      codec,
		acceptDone: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.coord = coordinator.New(coordinator.Config{
		MaxBuyers:  cfg.MaxBuyers,
		IntakeSize: intakeSize,
		Clock:      s.clock,
	})
	return s, nil
}

// Listen binds the participant port and, when configured, the status API
func (s *Server) Listen() error {
	addr := s.cfg.ListenAddr()
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("server: listen on %s: %w", addr, err)
	}
	s.listener = ln

	if s.cfg.HTTPAddr != "" {
		hl, err := net.Listen("tcp", s.cfg.HTTPAddr)
		if err != nil {
			_ = ln.Close()
			return fmt.Errorf("server: status api listen on %s: %w", s.cfg.HTTPAddr, err)
		}
		s.httpLn = hl
		s.httpServer = &http.Server{
			Handler:           SetupRouter(s.coord),
			ReadHeaderTimeout: readHeaderTimeout,
		}
	}

	fields := map[string]any{
		"addr":  ln.Addr().String(),
		"codec": s.codec.Name(),
	}
	if s.httpLn != nil {
		fields["http_addr"] = s.httpLn.Addr().String()
	}
	utils.Info("server: listening", fields)
	return nil
}

// Addr is the bound participant address, nil before Listen
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// HTTPAddr is the bound status API address, nil when disabled
func (s *Server) HTTPAddr() net.Addr {
	if s.httpLn == nil {
		return nil
	}
	return s.httpLn.Addr()
}

// Coordinator exposes the auction for in-process observers
func (s *Server) Coordinator() *coordinator.Coordinator {
	return s.coord
}

// Run serves one auction. It returns nil once the auction is resolved and
// every session has flushed, or when ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	if s.listener == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		return s.coord.Run(gctx)
	})
	g.Go(func() error {
		return s.acceptLoop(gctx)
	})
	if s.httpServer != nil {
		g.Go(func() error {
			if err := s.httpServer.Serve(s.httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server: status api: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
			defer cancel()
			if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
				utils.Warn("server: status api shutdown", map[string]any{"error": err.Error()})
			}
			return nil
		})
	}
	g.Go(func() error {
		select {
		case <-s.coord.Done():
			s.drain()
			stop()
		case <-gctx.Done():
		}
		return nil
	})

	err := g.Wait()
	s.waitSessions()

	if err != nil {
		utils.Error("server: stopped with error", map[string]any{"error": err.Error()})
		return err
	}
	if result, resErr := s.coord.Result(); resErr == nil {
		utils.Info("server: auction complete", map[string]any{
			"outcome":   result.Outcome,
			"winner_id": result.WinnerID,
			"reason":    result.Reason,
		})
	} else {
		utils.Info("server: stopped before the auction resolved", map[string]any{"reason": context.Cause(ctx)})
	}
	return nil
}

func (s *Server) acceptLoop(ctx context.Context) error {
	defer close(s.acceptDone)
	go func() {
		<-ctx.Done()
		_ = s.listener.Close()
	}()

	opts := session.Options{OutboxSize: s.cfg.OutboxSize}
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			utils.Warn("server: accept failed", map[string]any{"error": err.Error()})
			time.Sleep(acceptRetryDelay)
			continue
		}

		s.sessions.Add(1)
		go func() {
			defer s.sessions.Done()
			_ = session.New(conn, s.codec, s.coord, opts).Serve(ctx)
		}()
	}
}

// drain stops new connections and gives open sessions time to deliver the
// outcome before the coordinator goes away
func (s *Server) drain() {
	utils.Info("server: auction resolved, no longer accepting connections", nil)
	_ = s.listener.Close()
	<-s.acceptDone
	s.waitSessions()
}

func (s *Server) waitSessions() {
	drained := make(chan struct{})
	go func() {
		s.sessions.Wait()
		close(drained)
	}()

	select {
	case <-drained:
	case <-time.After(s.cfg.ShutdownTimeout):
		utils.Warn("server: sessions still open after shutdown timeout", map[string]any{
			"timeout": s.cfg.ShutdownTimeout.String(),
		})
	}
}
