package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// AuctionType selects how the clearing price is computed
type AuctionType string

const (
	FirstPrice  AuctionType = "first_price"
	SecondPrice AuctionType = "second_price"
)

// ParseAuctionType accepts the canonical names, the short forms and the numeric codes 1 and 2
func ParseAuctionType(s string) (AuctionType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "first", "first_price", "first-price":
		return FirstPrice, nil
	case "2", "second", "second_price", "second-price", "vickrey":
		return SecondPrice, nil
	default:
		return "", fmt.Errorf("unknown auction type %q", s)
	}
}

// Valid reports whether t is one of the supported auction types
func (t AuctionType) Valid() bool {
	return t == FirstPrice || t == SecondPrice
}

// Status is the lifecycle state of the auction
type Status string

const (
	StatusAwaitingSeller  Status = "awaiting_seller"
	StatusAwaitingDetails Status = "awaiting_details"
	StatusOpen            Status = "open"
	StatusClosing         Status = "closing"
	StatusResolved        Status = "resolved"
)

var statusRank = map[Status]int{
	StatusAwaitingSeller:  0,
	StatusAwaitingDetails: 1,
	StatusOpen:            2,
	StatusClosing:         3,
	StatusResolved:        4,
}

// Rank orders statuses along the lifecycle; unknown statuses rank -1
func (s Status) Rank() int {
	if r, ok := statusRank[s]; ok {
		return r
	}
	return -1
}

// Role is fixed for a participant at connection time
type Role string

const (
	RoleSeller Role = "seller"
	RoleBuyer  Role = "buyer"
)

// ConnectionState tracks whether a participant can still be reached
type ConnectionState string

const (
	Connected    ConnectionState = "connected"
	Disconnected ConnectionState = "disconnected"
)

// Outcome of a resolved auction
type Outcome string

const (
	OutcomeSold   Outcome = "sold"
	OutcomeUnsold Outcome = "unsold"
)

// CloseReason records what moved the auction out of the open state
type CloseReason string

const (
	CloseDeadline           CloseReason = "deadline"
	CloseEndedBySeller      CloseReason = "ended_by_seller"
	CloseSellerDisconnected CloseReason = "seller_disconnected"
)

// MaxAuctionDuration is the longest bidding window a seller may request
const MaxAuctionDuration = 7 * 24 * time.Hour

// Amount bounds for prices and bids
const (
	MaxAmountIntegerDigits = 15
	MaxAmountScale         = 8
)

// AmountInRange reports whether d has at most MaxAmountIntegerDigits digits
// before the point and MaxAmountScale after it. Comparing two in-range
// amounts rescales by a bounded number of digits.
func AmountInRange(d decimal.Decimal) bool {
	exp := int(d.Exponent())
	if exp < -MaxAmountScale || exp > MaxAmountIntegerDigits {
		return false
	}
	// ~3.33 bits per decimal digit
	if d.Coefficient().BitLen() > 4*(MaxAmountIntegerDigits+MaxAmountScale) {
		return false
	}
	return d.NumDigits()+exp <= MaxAmountIntegerDigits
}

// AuctionSpec is what the seller submits to open the auction
type AuctionSpec struct {
	Item       string          `json:"item"`
	StartPrice decimal.Decimal `json:"start_price"`
	Type       AuctionType     `json:"type"`
	Duration   time.Duration   `json:"duration"`
}

// Auction is the single live auction of a server run
type Auction struct {
	ID         string          `json:"auction_id"`
	Item       string          `json:"item,omitempty"`
	StartPrice decimal.Decimal `json:"start_price"`
	Type       AuctionType     `json:"type,omitempty"`
	Status     Status          `json:"status"`
	CreatedAt  time.Time       `json:"created_at,omitempty"`
	Deadline   time.Time       `json:"deadline,omitempty"`
}

// Bid is an accepted buyer submission. Accepted bids are never mutated.
type Bid struct {
	BidderID   string          `json:"bidder_id"`
	Amount     decimal.Decimal `json:"amount"`
	Sequence   uint64          `json:"sequence"`
	AcceptedAt time.Time       `json:"accepted_at"`
}

// Participant represents one connected session
type Participant struct {
	ID          string          `json:"participant_id"`
	Role        Role            `json:"role"`
	State       ConnectionState `json:"connection_state"`
	RemoteAddr  string          `json:"remote_addr,omitempty"`
	ConnectedAt time.Time       `json:"connected_at"`
	BidCount    int             `json:"bid_count"`
}

// Result is the resolved outcome of the auction
type Result struct {
	Outcome    Outcome          `json:"outcome"`
	WinnerID   string           `json:"winner_id,omitempty"`
	Price      *decimal.Decimal `json:"price,omitempty"`
	Reason     CloseReason      `json:"reason,omitempty"`
	BidCount   int              `json:"bid_count"`
	ResolvedAt time.Time        `json:"resolved_at"`
}

// Snapshot is a read-only copy of coordinator state
type Snapshot struct {
	Auction      Auction       `json:"auction"`
	Bids         []Bid         `json:"bids"`
	Participants []Participant `json:"participants"`
	Result       *Result       `json:"result,omitempty"`

	DeliveryFailures uint64 `json:"delivery_failures"`
}

// HighestBid returns the last accepted bid, if any
func (s Snapshot) HighestBid() (Bid, bool) {
	if len(s.Bids) == 0 {
		return Bid{}, false
	}
	return s.Bids[len(s.Bids)-1], true
}
