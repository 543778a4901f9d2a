package auctionerrors

import (
	"errors"
	"fmt"
)

// Repository-level errors
var (
	ErrNoBids     = errors.New("no bids accepted")
	ErrOutOfOrder = errors.New("bid sequence out of order")
	ErrInvalidBid = errors.New("invalid bid")
)

// Lifecycle and protocol errors
var (
	ErrProtocol           = errors.New("protocol error")
	ErrAuctionClosed      = errors.New("auction closed")
	ErrAuctionFull        = errors.New("auction full")
	ErrNotResolved        = errors.New("auction not resolved")
	ErrCoordinatorStopped = errors.New("coordinator stopped")
	ErrUnknownParticipant = errors.New("unknown participant")
)

// validation errors, answered to the originating session only
var (
	ErrInvalidAuctionSpec = errors.New("invalid auction spec")
	ErrBidRejected        = errors.New("bid rejected")
)

// Transport errors
var (
	ErrDisconnected = errors.New("participant disconnected")
	ErrOutboxFull   = errors.New("participant outbox full")
)

// Reason is a machine-readable code sent to clients
type Reason string

const (
	ReasonNotAnImprovement  Reason = "not_an_improvement"
	ReasonAuctionNotOpen    Reason = "auction_not_open"
	ReasonNonPositiveAmount Reason = "non_positive_amount"
	ReasonBelowStartPrice   Reason = "below_start_price"
	ReasonAmountOutOfRange  Reason = "amount_out_of_range"

	ReasonInvalidAuctionSpec Reason = "invalid_auction_spec"
	ReasonMalformedMessage   Reason = "malformed_message"
	ReasonUnexpectedMessage  Reason = "unexpected_message"
	ReasonAuctionClosed      Reason = "auction_closed"
	ReasonAuctionFull        Reason = "auction_full"
	ReasonShuttingDown       Reason = "shutting_down"
)

// RejectionError carries the reason a bid was refused
type RejectionError struct {
	Reason Reason
	Detail string
}

func (e *RejectionError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: %s", ErrBidRejected, e.Reason)
	}
	return fmt.Sprintf("%s: %s - %s", ErrBidRejected, e.Reason, e.Detail)
}

func (e *RejectionError) Unwrap() error { return ErrBidRejected }

// ReasonOf extracts the reason code of a rejection, or "" if err is not one
func ReasonOf(err error) Reason {
	var rej *RejectionError
	if errors.As(err, &rej) {
		return rej.Reason
	}
	return ""
}
