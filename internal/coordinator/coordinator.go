// Package coordinator owns the auction state. Every state-affecting event
// goes through one intake channel and is applied by a single goroutine, in
// arrival order, before the next one is read.
package coordinator

import (
	"context"
	"fmt"
	"time"

	"auctioneer/internal/auctionerrors"
	"auctioneer/internal/broadcast"
	"auctioneer/internal/models"
	"auctioneer/internal/repository"
	"auctioneer/internal/roles"
	"auctioneer/utils"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
)

// Config tunes a Coordinator. Zero values are usable.
type Config struct {
	// MaxBuyers caps concurrent buyers; 0 means unlimited
	MaxBuyers int
	// IntakeSize is the intake channel buffer
	IntakeSize int
	// Clock drives timestamps and the deadline timer
	Clock clockwork.Clock
}

type eventKind int

const (
	evJoin eventKind = iota
	evCreate
	evBid
	evEnd
	evDeadline
	evDisconnect
	evSnapshot
)

func (k eventKind) String() string {
	return [...]string{"join", "create_auction", "bid", "end_auction", "deadline", "disconnect", "snapshot"}[k]
}

type event struct {
	kind          eventKind
	participantID string
	sink          broadcast.Sink
	remoteAddr    string
	spec          models.AuctionSpec
	amount        decimal.Decimal
	reply         chan reply
}

type reply struct {
	role     models.Role
	auction  models.Auction
	bid      models.Bid
	snapshot models.Snapshot
	err      error
}

// Coordinator is the single authority over the auction
type Coordinator struct {
	intake  chan event
	clock   clockwork.Clock
	roles   *roles.Assigner
	bids    repository.BidLog
	bcast   *broadcast.Broadcaster
	stopped chan struct{}
	done    chan struct{}

	// owned by the Run goroutine
	auction      models.Auction
	participants map[string]*models.Participant
	joinOrder    []string
	seq          uint64
	timer        clockwork.Timer
	result       *models.Result
}

// New creates a Coordinator in the awaiting_seller state
func New(cfg Config) *Coordinator {
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	intakeSize := cfg.IntakeSize
	if intakeSize < 0 {
		intakeSize = 0
	}

	return &Coordinator{
		intake:       make(chan event, intakeSize),
		clock:        clock,
		roles:        roles.NewAssigner(cfg.MaxBuyers),
		bids:         repository.NewMemoryRepo(),
		bcast:        broadcast.New(),
		stopped:      make(chan struct{}),
		done:         make(chan struct{}),
		auction:      models.Auction{ID: utils.GenerateID(), Status: models.StatusAwaitingSeller},
		participants: make(map[string]*models.Participant),
	}
}

// Run processes intake events until ctx is cancelled. It keeps answering
// events after the auction resolves so late arrivals get a definite reply.
func (c *Coordinator) Run(ctx context.Context) error {
	defer close(c.stopped)
	defer c.stopTimer()

	utils.Info("coordinator: started", map[string]any{"auction_id": c.auction.ID})
	for {
		select {
		case <-ctx.Done():
			utils.Info("coordinator: stopped", map[string]any{
				"auction_id": c.auction.ID,
				"status":     c.auction.Status,
			})
			return nil
		case ev := <-c.intake:
			r := c.handle(ev)
			if ev.reply != nil {
				ev.reply <- r
			}
		}
	}
}

// Done is closed once the outcome has been handed to the broadcaster
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// Result returns the outcome once the auction is resolved
func (c *Coordinator) Result() (models.Result, error) {
	select {
	case <-c.done:
		return *c.result, nil
	default:
		return models.Result{}, fmt.Errorf("coordinator: %w", auctionerrors.ErrNotResolved)
	}
}

// Join assigns a role to a new session and registers its sink
func (c *Coordinator) Join(ctx context.Context, sink broadcast.Sink, remoteAddr string) (models.Role, error) {
	r, err := c.submit(ctx, event{kind: evJoin, participantID: sink.ID(), sink: sink, remoteAddr: remoteAddr})
	return r.role, err
}

// CreateAuction opens the auction with the seller's spec
func (c *Coordinator) CreateAuction(ctx context.Context, participantID string, spec models.AuctionSpec) (models.Auction, error) {
	r, err := c.submit(ctx, event{kind: evCreate, participantID: participantID, spec: spec})
	return r.auction, err
}

// PlaceBid submits a buyer's bid
func (c *Coordinator) PlaceBid(ctx context.Context, participantID string, amount decimal.Decimal) (models.Bid, error) {
	r, err := c.submit(ctx, event{kind: evBid, participantID: participantID, amount: amount})
	return r.bid, err
}

// EndAuction closes the auction early on the seller's request
func (c *Coordinator) EndAuction(ctx context.Context, participantID string) error {
	_, err := c.submit(ctx, event{kind: evEnd, participantID: participantID})
	return err
}

// Disconnect reports that a session's transport closed
func (c *Coordinator) Disconnect(ctx context.Context, participantID string) error {
	_, err := c.submit(ctx, event{kind: evDisconnect, participantID: participantID})
	return err
}

// Snapshot returns a read-only copy of the current state
func (c *Coordinator) Snapshot(ctx context.Context) (models.Snapshot, error) {
	r, err := c.submit(ctx, event{kind: evSnapshot})
	return r.snapshot, err
}

func (c *Coordinator) submit(ctx context.Context, ev event) (reply, error) {
	ev.reply = make(chan reply, 1)

	select {
	case c.intake <- ev:
	case <-ctx.Done():
		return reply{}, ctx.Err()
	case <-c.stopped:
		return reply{}, fmt.Errorf("coordinator: %s: %w", ev.kind, auctionerrors.ErrCoordinatorStopped)
	}

	select {
	case r := <-ev.reply:
		return r, r.err
	case <-ctx.Done():
		return reply{}, ctx.Err()
	case <-c.stopped:
		return reply{}, fmt.Errorf("coordinator: %s: %w", ev.kind, auctionerrors.ErrCoordinatorStopped)
	}
}

// fireDeadline runs on the timer goroutine and only enqueues
func (c *Coordinator) fireDeadline() {
	select {
	case c.intake <- event{kind: evDeadline}:
	case <-c.stopped:
	}
}

func (c *Coordinator) stopTimer() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// advance moves the status forward; a status is never revisited
func (c *Coordinator) advance(next models.Status) bool {
	if next.Rank() <= c.auction.Status.Rank() {
		utils.Warn("coordinator: refusing status regression", map[string]any{
			"from": c.auction.Status,
			"to":   next,
		})
		return false
	}
	utils.Info("coordinator: status changed", map[string]any{
		"auction_id": c.auction.ID,
		"from":       c.auction.Status,
		"to":         next,
	})
	c.auction.Status = next
	return true
}

func (c *Coordinator) now() time.Time {
	return c.clock.Now().UTC()
}
