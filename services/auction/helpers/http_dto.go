package helpers

import (
	"time"

	"auctioneer/internal/models"
)

// Response DTOs. Amounts are decimal strings so no precision is lost.
type AuctionResponse struct {
	AuctionID        string       `json:"auction_id"`
	Status           string       `json:"status"`
	Item             string       `json:"item,omitempty"`
	Type             string       `json:"type,omitempty"`
	StartPrice       string       `json:"start_price,omitempty"`
	CreatedAt        string       `json:"created_at,omitempty"`
	Deadline         string       `json:"deadline,omitempty"`
	HighestBid       *BidResponse `json:"highest_bid,omitempty"`
	BidCount         int          `json:"bid_count"`
	ParticipantCount int          `json:"participant_count"`
	DeliveryFailures uint64       `json:"delivery_failures"`
}

type BidResponse struct {
	BidderID   string `json:"bidder_id"`
	Amount     string `json:"amount"`
	Sequence   uint64 `json:"sequence"`
	AcceptedAt string `json:"accepted_at"`
}

type ParticipantResponse struct {
	ParticipantID   string `json:"participant_id"`
	Role            string `json:"role"`
	ConnectionState string `json:"connection_state"`
	RemoteAddr      string `json:"remote_addr,omitempty"`
	ConnectedAt     string `json:"connected_at"`
	BidCount        int    `json:"bid_count"`
}

type ResultResponse struct {
	Outcome    string `json:"outcome"`
	Reason     string `json:"reason"`
	WinnerID   string `json:"winner_id,omitempty"`
	Price      string `json:"price,omitempty"`
	BidCount   int    `json:"bid_count"`
	ResolvedAt string `json:"resolved_at"`
}

// NewAuctionResponse summarises a snapshot
func NewAuctionResponse(snap models.Snapshot) AuctionResponse {
	a := snap.Auction
	resp := AuctionResponse{
		AuctionID:        a.ID,
		Status:           string(a.Status),
		Item:             a.Item,
		Type:             string(a.Type),
		CreatedAt:        formatTime(a.CreatedAt),
		Deadline:         formatTime(a.Deadline),
		BidCount:         len(snap.Bids),
		ParticipantCount: len(snap.Participants),
		DeliveryFailures: snap.DeliveryFailures,
	}
	if !a.StartPrice.IsZero() {
		resp.StartPrice = a.StartPrice.String()
	}
	if highest, ok := snap.HighestBid(); ok {
		bid := NewBidResponse(highest)
		resp.HighestBid = &bid
	}
	return resp
}

func NewBidResponse(b models.Bid) BidResponse {
	return BidResponse{
		BidderID:   b.BidderID,
		Amount:     b.Amount.String(),
		Sequence:   b.Sequence,
		AcceptedAt: formatTime(b.AcceptedAt),
	}
}

func NewParticipantResponse(p models.Participant) ParticipantResponse {
	return ParticipantResponse{
		ParticipantID:   p.ID,
		Role:            string(p.Role),
		ConnectionState: string(p.State),
		RemoteAddr:      p.RemoteAddr,
		ConnectedAt:     formatTime(p.ConnectedAt),
		BidCount:        p.BidCount,
	}
}

func NewResultResponse(r models.Result) ResultResponse {
	resp := ResultResponse{
		Outcome:    string(r.Outcome),
		Reason:     string(r.Reason),
		WinnerID:   r.WinnerID,
		BidCount:   r.BidCount,
		ResolvedAt: formatTime(r.ResolvedAt),
	}
	if r.Price != nil {
		resp.Price = r.Price.String()
	}
	return resp
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
