// Package roles decides whether a new connection is the seller or a buyer.
package roles

import (
	"fmt"

	"auctioneer/internal/auctionerrors"
	"auctioneer/internal/models"
)

// Assigner hands out roles in connection order. It is owned by the
// coordinator loop and is not safe for concurrent use.
type Assigner struct {
	sellerID  string
	buyers    map[string]struct{}
	maxBuyers int
	closed    bool
}

// NewAssigner creates an Assigner. maxBuyers <= 0 means no cap.
func NewAssigner(maxBuyers int) *Assigner {
	return &Assigner{
		buyers:    make(map[string]struct{}),
		maxBuyers: maxBuyers,
	}
}

// Assign returns the role for participant id. The first id becomes the
// seller; repeated ids keep the role they were given.
func (a *Assigner) Assign(id string) (models.Role, error) {
	if id == "" {
		return "", fmt.Errorf("assign role: %w - empty participant id", auctionerrors.ErrProtocol)
	}
	if id == a.sellerID {
		return models.RoleSeller, nil
	}
	if _, ok := a.buyers[id]; ok {
		return models.RoleBuyer, nil
	}
	if a.closed {
		return "", fmt.Errorf("assign role for %s: %w", id, auctionerrors.ErrAuctionClosed)
	}
	if a.sellerID == "" {
		a.sellerID = id
		return models.RoleSeller, nil
	}
	if a.maxBuyers > 0 && len(a.buyers) >= a.maxBuyers {
		return "", fmt.Errorf("assign role for %s: %w - %d buyers already connected", id, auctionerrors.ErrAuctionFull, a.maxBuyers)
	}
	a.buyers[id] = struct{}{}
	return models.RoleBuyer, nil
}

// Close rejects every later new connection
func (a *Assigner) Close() {
	a.closed = true
}

// SellerID returns the seller's id, or "" before one connected
func (a *Assigner) SellerID() string {
	return a.sellerID
}

// BuyerCount returns how many buyers have been assigned
func (a *Assigner) BuyerCount() int {
	return len(a.buyers)
}
