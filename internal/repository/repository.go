package repository

import (
	"fmt"

	"auctioneer/internal/auctionerrors"
	model "auctioneer/internal/models"
)

// BidLog defines the append-only store of accepted bids
type BidLog interface {
	Append(bid model.Bid) error
	Bids() []model.Bid
	Highest() (model.Bid, error)
	BidsByBidder(bidderID string) ([]model.Bid, error)
	Len() int
}

// MemoryRepo is an in-memory implementation of BidLog. It has a single
// owner, the coordinator loop, and does no locking of its own.
type MemoryRepo struct {
	bids     []model.Bid
	byBidder map[string][]int // key: bidderID -> value: indexes into bids
}

// NewMemoryRepo creates a new in-memory repository instance
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		byBidder: make(map[string][]int),
	}
}

// Append records an accepted bid. Sequence numbers must strictly increase.
func (r *MemoryRepo) Append(bid model.Bid) error {
	if bid.BidderID == "" {
		return fmt.Errorf("append bid %d: %w - missing bidder", bid.Sequence, auctionerrors.ErrInvalidBid)
	}
	if n := len(r.bids); n > 0 && bid.Sequence <= r.bids[n-1].Sequence {
		return fmt.Errorf("append bid %d after %d: %w", bid.Sequence, r.bids[n-1].Sequence, auctionerrors.ErrOutOfOrder)
	}

	r.bids = append(r.bids, bid)
	r.byBidder[bid.BidderID] = append(r.byBidder[bid.BidderID], len(r.bids)-1)
	return nil
}

// Bids returns a copy of all accepted bids in sequence order
func (r *MemoryRepo) Bids() []model.Bid {
	return append([]model.Bid(nil), r.bids...)
}

// Highest returns the last accepted bid
func (r *MemoryRepo) Highest() (model.Bid, error) {
	if len(r.bids) == 0 {
		return model.Bid{}, fmt.Errorf("get highest bid: %w", auctionerrors.ErrNoBids)
	}
	return r.bids[len(r.bids)-1], nil
}

// Len returns the number of accepted bids
func (r *MemoryRepo) Len() int {
	return len(r.bids)
}

// BidsByBidder returns the accepted bids of one bidder
func (r *MemoryRepo) BidsByBidder(bidderID string) ([]model.Bid, error) {
	idx, ok := r.byBidder[bidderID]
	if !ok || len(idx) == 0 {
		return nil, fmt.Errorf("get bids for bidder %s: %w", bidderID, auctionerrors.ErrNoBids)
	}

	bids := make([]model.Bid, 0, len(idx))
	for _, i := range idx {
		bids = append(bids, r.bids[i])
	}
	return bids, nil
}
