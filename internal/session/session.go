// Package session runs one participant connection: it decodes inbound
// messages into coordinator calls and writes outbound messages from a
// bounded outbox.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"auctioneer/internal/auctionerrors"
	"auctioneer/internal/broadcast"
	"auctioneer/internal/models"
	"auctioneer/internal/protocol"
	"auctioneer/utils"

	"github.com/shopspring/decimal"
	"go.uber.org/atomic"
)

//go:generate mockgen -destination=mock_coordinator.go -package=session auctioneer/internal/session Coordinator

// Coordinator is the part of the auction coordinator a session talks to
type Coordinator interface {
	Join(ctx context.Context, sink broadcast.Sink, remoteAddr string) (models.Role, error)
	CreateAuction(ctx context.Context, participantID string, spec models.AuctionSpec) (models.Auction, error)
	PlaceBid(ctx context.Context, participantID string, amount decimal.Decimal) (models.Bid, error)
	EndAuction(ctx context.Context, participantID string) error
	Disconnect(ctx context.Context, participantID string) error
}

// Options tunes a Session
type Options struct {
	OutboxSize   int
	WriteTimeout time.Duration
}

const (
	defaultOutboxSize   = 64
	defaultWriteTimeout = 5 * time.Second
)

// Session is one participant connection. It implements broadcast.Sink.
type Session struct {
	id           string
	conn         net.Conn
	codec        protocol.Codec
	coord        Coordinator
	outbox       chan protocol.Message
	writeTimeout time.Duration

	role      models.Role
	connected *atomic.Bool
	closing   chan struct{}
	closeOnce sync.Once
	written   chan struct{}
}

// New wraps conn. Call Serve to run it.
func New(conn net.Conn, codec protocol.Codec, coord Coordinator, opts Options) *Session {
	if opts.OutboxSize <= 0 {
		opts.OutboxSize = defaultOutboxSize
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	return &Session{
		id:           utils.ParticipantID("p"),
		conn:         conn,
		codec:        codec,
		coord:        coord,
		outbox:       make(chan protocol.Message, opts.OutboxSize),
		writeTimeout: opts.WriteTimeout,
		connected:    atomic.NewBool(true),
		closing:      make(chan struct{}),
		written:      make(chan struct{}),
	}
}

// ID returns the connection-scoped participant handle
func (s *Session) ID() string {
	return s.id
}

// Role is set once Join succeeds
func (s *Session) Role() models.Role {
	return s.role
}

// Deliver queues msg for writing without blocking the caller
func (s *Session) Deliver(msg protocol.Message) error {
	if !s.connected.Load() {
		return fmt.Errorf("deliver to %s: %w", s.id, auctionerrors.ErrDisconnected)
	}
	select {
	case <-s.closing:
		return fmt.Errorf("deliver to %s: %w", s.id, auctionerrors.ErrDisconnected)
	default:
	}

	select {
	case s.outbox <- msg:
		return nil
	default:
		return fmt.Errorf("deliver to %s: %w", s.id, auctionerrors.ErrOutboxFull)
	}
}

// Serve joins the auction and processes inbound messages until the
// connection ends, the auction closes, or ctx is cancelled.
func (s *Session) Serve(ctx context.Context) error {
	go s.writeLoop()
	defer func() {
		s.close()
		<-s.written
	}()

	remote := s.conn.RemoteAddr().String()
	role, err := s.coord.Join(ctx, s, remote)
	if err != nil {
		s.rejectJoin(err)
		return nil
	}
	s.role = role

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = s.Deliver(protocol.ErrorNotice(auctionerrors.ReasonShuttingDown, "server is shutting down"))
			s.close()
		case <-stop:
		}
	}()

	utils.Info("session: started", map[string]any{
		"participant_id": s.id,
		"role":           role,
		"remote_addr":    remote,
	})

	s.readLoop(ctx)

	if err := s.coord.Disconnect(ctx, s.id); err != nil && ctx.Err() == nil {
		utils.Warn("session: disconnect not recorded", map[string]any{"participant_id": s.id, "error": err.Error()})
	}
	utils.Info("session: ended", map[string]any{"participant_id": s.id, "role": role})
	return nil
}

func (s *Session) readLoop(ctx context.Context) {
	dec := s.codec.NewDecoder(s.conn)
	for {
		var msg protocol.Message
		if err := dec.Decode(&msg); err != nil {
			if s.isClosed() || errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return
			}
			var netErr net.Error
			if errors.As(err, &netErr) {
				return
			}
			utils.Warn("session: malformed message", map[string]any{"participant_id": s.id, "error": err.Error()})
			_ = s.Deliver(protocol.ErrorNotice(auctionerrors.ReasonMalformedMessage, err.Error()))
			s.close()
			return
		}

		if err := s.dispatch(ctx, msg); err != nil {
			if !errors.Is(err, auctionerrors.ErrProtocol) {
				return
			}
			// the seller's disconnect aborts the auction, so a well-formed
			// but out-of-turn seller message only gets the notice
			if s.role == models.RoleSeller {
				utils.Warn("session: seller protocol error ignored", map[string]any{"participant_id": s.id, "error": err.Error()})
				continue
			}
			s.close()
			return
		}
	}
}

// dispatch forwards one message. Validation failures were already answered
// by the coordinator and keep the connection open. A returned error ends the
// session, except a protocol error from the seller.
func (s *Session) dispatch(ctx context.Context, msg protocol.Message) error {
	var err error
	switch msg.Type {
	case protocol.TypeCreateAuction:
		_, err = s.coord.CreateAuction(ctx, s.id, msg.AuctionSpec())
	case protocol.TypeBid:
		if msg.Amount == nil {
			_ = s.Deliver(protocol.ErrorNotice(auctionerrors.ReasonMalformedMessage, "bid without amount"))
			return fmt.Errorf("session %s: %w - bid without amount", s.id, auctionerrors.ErrProtocol)
		}
		_, err = s.coord.PlaceBid(ctx, s.id, *msg.Amount)
	case protocol.TypeEndAuction:
		err = s.coord.EndAuction(ctx, s.id)
	default:
		_ = s.Deliver(protocol.ErrorNotice(auctionerrors.ReasonUnexpectedMessage, fmt.Sprintf("unexpected message type %q", msg.Type)))
		return fmt.Errorf("session %s: %w - unexpected message type %q", s.id, auctionerrors.ErrProtocol, msg.Type)
	}

	switch {
	case err == nil,
		errors.Is(err, auctionerrors.ErrBidRejected),
		errors.Is(err, auctionerrors.ErrInvalidAuctionSpec):
		return nil
	default:
		return err
	}
}

func (s *Session) rejectJoin(err error) {
	reason := auctionerrors.ReasonShuttingDown
	switch {
	case errors.Is(err, auctionerrors.ErrAuctionClosed):
		reason = auctionerrors.ReasonAuctionClosed
	case errors.Is(err, auctionerrors.ErrAuctionFull):
		reason = auctionerrors.ReasonAuctionFull
	}
	utils.Info("session: connection refused", map[string]any{
		"participant_id": s.id,
		"reason":         reason,
	})
	_ = s.Deliver(protocol.ErrorNotice(reason, err.Error()))
}

// writeLoop is the only writer on conn. It stops after a terminal message
// or, once the session is closing, after flushing what is queued.
func (s *Session) writeLoop() {
	defer close(s.written)
	defer func() {
		s.connected.Store(false)
		_ = s.conn.Close()
	}()

	enc := s.codec.NewEncoder(s.conn)
	for {
		select {
		case msg := <-s.outbox:
			if !s.write(enc, msg) || msg.Terminal() {
				return
			}
		case <-s.closing:
			for {
				select {
				case msg := <-s.outbox:
					if !s.write(enc, msg) || msg.Terminal() {
						return
					}
				default:
					return
				}
			}
		}
	}
}

func (s *Session) write(enc protocol.Encoder, msg protocol.Message) bool {
	_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	if err := enc.Encode(msg); err != nil {
		utils.Warn("session: write failed", map[string]any{
			"participant_id": s.id,
			"type":           msg.Type,
			"error":          err.Error(),
		})
		return false
	}
	return true
}

// close asks the writer to flush and hang up
func (s *Session) close() {
	s.closeOnce.Do(func() { close(s.closing) })
}

func (s *Session) isClosed() bool {
	select {
	case <-s.closing:
		return true
	default:
		return !s.connected.Load()
	}
}
