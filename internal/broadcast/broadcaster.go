// Package broadcast delivers acknowledgments and auction announcements to
// participant sessions.
package broadcast

import (
	"fmt"

	"auctioneer/internal/auctionerrors"
	"auctioneer/internal/models"
	"auctioneer/internal/protocol"
	"auctioneer/utils"

	"go.uber.org/atomic"
)

//go:generate mockgen -destination=mock_sink.go -package=broadcast auctioneer/internal/broadcast Sink

// Sink is the outbound side of one participant session
type Sink interface {
	ID() string
	Deliver(msg protocol.Message) error
}

// Broadcaster keeps the sink registry. Registration and delivery happen on
// the coordinator loop; only the counters are read from other goroutines.
type Broadcaster struct {
	sinks     map[string]Sink
	delivered *atomic.Uint64
	failed    *atomic.Uint64
}

// New creates an empty Broadcaster
func New() *Broadcaster {
	return &Broadcaster{
		sinks:     make(map[string]Sink),
		delivered: atomic.NewUint64(0),
		failed:    atomic.NewUint64(0),
	}
}

// Register adds or replaces the sink for s.ID()
func (b *Broadcaster) Register(s Sink) {
	b.sinks[s.ID()] = s
}

// Unregister drops the sink of participant id
func (b *Broadcaster) Unregister(id string) {
	delete(b.sinks, id)
}

// Send delivers one message to one participant
func (b *Broadcaster) Send(id string, msg protocol.Message) error {
	sink, ok := b.sinks[id]
	if !ok {
		return fmt.Errorf("send %s to %s: %w", msg.Type, id, auctionerrors.ErrUnknownParticipant)
	}
	if err := sink.Deliver(msg); err != nil {
		b.failed.Inc()
		utils.Warn("broadcast: delivery failed", map[string]any{
			"participant_id": id,
			"type":           msg.Type,
			"error":          err.Error(),
		})
		return fmt.Errorf("send %s to %s: %w", msg.Type, id, err)
	}
	b.delivered.Inc()
	return nil
}

// Opened tells every connected buyer that bidding has started. It returns
// the number of successful deliveries.
func (b *Broadcaster) Opened(a models.Auction, participants []models.Participant) int {
	msg := protocol.AuctionOpened(a)
	sent := 0
	for _, p := range participants {
		if p.Role != models.RoleBuyer || p.State != models.Connected {
			continue
		}
		if err := b.Send(p.ID, msg); err == nil {
			sent++
		}
	}
	return sent
}

// Closed delivers the outcome to the seller and every buyer that is still
// connected. Disconnected participants are skipped and not retried.
func (b *Broadcaster) Closed(item string, r models.Result, participants []models.Participant) int {
	sent := 0
	for _, p := range participants {
		if p.State != models.Connected {
			utils.Debug("broadcast: skipping disconnected participant", map[string]any{"participant_id": p.ID})
			continue
		}
		youWon := r.Outcome == models.OutcomeSold && p.ID == r.WinnerID
		if err := b.Send(p.ID, protocol.AuctionClosed(item, r, youWon)); err == nil {
			sent++
		}
	}
	return sent
}

// Delivered returns the number of successful deliveries so far
func (b *Broadcaster) Delivered() uint64 {
	return b.delivered.Load()
}

// Failed returns the number of failed deliveries so far
func (b *Broadcaster) Failed() uint64 {
	return b.failed.Load()
}
