// Package protocol defines the logical messages exchanged between
// participants and the server, and the codecs that frame them on a stream.
package protocol

import (
	"math"
	"time"

	"auctioneer/internal/auctionerrors"
	"auctioneer/internal/models"

	"github.com/shopspring/decimal"
)

// Type identifies a message
type Type string

const (
	TypeRoleAssign         Type = "role_assign"
	TypeCreateAuction      Type = "create_auction"
	TypeAck                Type = "ack"
	TypeInvalidAuctionSpec Type = "invalid_auction_spec"
	TypeBid                Type = "bid"
	TypeBidAccepted        Type = "bid_accepted"
	TypeBidRejected        Type = "bid_rejected"
	TypeEndAuction         Type = "end_auction"
	TypeAuctionOpened      Type = "auction_opened"
	TypeAuctionClosed      Type = "auction_closed"
	TypeErrorNotice        Type = "error_notice"
)

// Message is the single envelope used in both directions. Only the fields
// relevant to Type are set.
type Message struct {
	Type          Type                 `json:"type"`
	Role          models.Role          `json:"role,omitempty"`
	ParticipantID string               `json:"participant_id,omitempty"`
	Item          string               `json:"item,omitempty"`
	StartPrice    *decimal.Decimal     `json:"start_price,omitempty"`
	AuctionType   models.AuctionType   `json:"auction_type,omitempty"`
	DurationMs    int64                `json:"duration_ms,omitempty"`
	Deadline      *time.Time           `json:"deadline,omitempty"`
	Amount        *decimal.Decimal     `json:"amount,omitempty"`
	Sequence      uint64               `json:"sequence,omitempty"`
	Reason        auctionerrors.Reason `json:"reason,omitempty"`
	Detail        string               `json:"detail,omitempty"`
	Outcome       models.Outcome       `json:"outcome,omitempty"`
	CloseReason   models.CloseReason   `json:"close_reason,omitempty"`
	WinnerID      string               `json:"winner_id,omitempty"`
	Price         *decimal.Decimal     `json:"price,omitempty"`
	YouWon        bool                 `json:"you_won,omitempty"`
}

// RoleAssign tells a participant its role and handle
func RoleAssign(id string, role models.Role) Message {
	return Message{Type: TypeRoleAssign, ParticipantID: id, Role: role}
}

// CreateAuction builds the seller's auction request
func CreateAuction(spec models.AuctionSpec) Message {
	price := spec.StartPrice
	return Message{
		Type:        TypeCreateAuction,
		Item:        spec.Item,
		StartPrice:  &price,
		AuctionType: spec.Type,
		DurationMs:  spec.Duration.Milliseconds(),
	}
}

// AuctionSpec extracts the auction request carried by a create_auction message
func (m Message) AuctionSpec() models.AuctionSpec {
	spec := models.AuctionSpec{
		Item:     m.Item,
		Type:     m.AuctionType,
		Duration: durationFromMillis(m.DurationMs),
	}
	if m.StartPrice != nil {
		spec.StartPrice = *m.StartPrice
	}
	return spec
}

// durationFromMillis saturates instead of wrapping around
func durationFromMillis(ms int64) time.Duration {
	const limit = math.MaxInt64 / int64(time.Millisecond)
	switch {
	case ms > limit:
		return time.Duration(math.MaxInt64)
	case ms < -limit:
		return time.Duration(math.MinInt64)
	default:
		return time.Duration(ms) * time.Millisecond
	}
}

// Ack confirms a seller request
func Ack(a *models.Auction) Message {
	msg := Message{Type: TypeAck}
	if a != nil && !a.Deadline.IsZero() {
		deadline := a.Deadline
		msg.Deadline = &deadline
	}
	return msg
}

// InvalidAuctionSpec answers a create_auction that failed validation
func InvalidAuctionSpec(detail string) Message {
	return Message{Type: TypeInvalidAuctionSpec, Reason: auctionerrors.ReasonInvalidAuctionSpec, Detail: detail}
}

// Bid builds a buyer's bid
func Bid(amount decimal.Decimal) Message {
	return Message{Type: TypeBid, Amount: &amount}
}

// EndAuction builds the seller's request to close early
func EndAuction() Message {
	return Message{Type: TypeEndAuction}
}

// BidAccepted acknowledges an accepted bid
func BidAccepted(b models.Bid) Message {
	amount := b.Amount
	return Message{Type: TypeBidAccepted, Sequence: b.Sequence, Amount: &amount}
}

// BidRejected answers a refused bid
func BidRejected(reason auctionerrors.Reason, detail string) Message {
	return Message{Type: TypeBidRejected, Reason: reason, Detail: detail}
}

// AuctionOpened announces that bidding has started
func AuctionOpened(a models.Auction) Message {
	price := a.StartPrice
	deadline := a.Deadline
	return Message{
		Type:        TypeAuctionOpened,
		Item:        a.Item,
		StartPrice:  &price,
		AuctionType: a.Type,
		Deadline:    &deadline,
	}
}

// AuctionClosed carries the final outcome; youWon is set on the winner's copy
func AuctionClosed(item string, r models.Result, youWon bool) Message {
	msg := Message{
		Type:        TypeAuctionClosed,
		Item:        item,
		Outcome:     r.Outcome,
		CloseReason: r.Reason,
		WinnerID:    r.WinnerID,
		YouWon:      youWon,
	}
	if r.Price != nil {
		price := *r.Price
		msg.Price = &price
	}
	return msg
}

// ErrorNotice reports a protocol-level problem
func ErrorNotice(reason auctionerrors.Reason, detail string) Message {
	return Message{Type: TypeErrorNotice, Reason: reason, Detail: detail}
}

// Terminal reports whether no further message follows m on this connection
func (m Message) Terminal() bool {
	return m.Type == TypeAuctionClosed
}
