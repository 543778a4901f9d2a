package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"auctioneer/internal/auctionerrors"
	"auctioneer/internal/models"
	"auctioneer/services/auction/helpers"
	"auctioneer/utils"

	"github.com/gin-gonic/gin"
)

//go:generate mockgen -destination=mock_auction_service.go -package=handler auctioneer/services/auction/handler AuctionServiceInterface

type AuctionServiceInterface interface {
	Snapshot(ctx context.Context) (models.Snapshot, error)
}

// snapshotTimeout bounds how long a request waits behind the intake queue
const snapshotTimeout = 2 * time.Second

type AuctionHandler struct {
	service AuctionServiceInterface
}

func NewAuctionHandler(service AuctionServiceInterface) *AuctionHandler {
	return &AuctionHandler{service: service}
}

// GetAuctionHandler handles GET /auction
func (h *AuctionHandler) GetAuctionHandler(c *gin.Context) {
	snap, ok := h.snapshot(c, "GetAuctionHandler")
	if !ok {
		return
	}

	resp := helpers.NewAuctionResponse(snap)
	utils.JSONResponse(c, http.StatusOK, resp, "auction retrieved successfully")
	helpers.LogSuccess("GetAuctionHandler", "auction retrieved successfully", map[string]any{
		"auction_id": resp.AuctionID,
		"status":     resp.Status,
	})
}

// GetBidsHandler handles GET /auction/bids, optionally filtered by ?bidder=
func (h *AuctionHandler) GetBidsHandler(c *gin.Context) {
	snap, ok := h.snapshot(c, "GetBidsHandler")
	if !ok {
		return
	}

	bidder := c.Query("bidder")
	if bidder != "" && !hasParticipant(snap, bidder) {
		err := fmt.Errorf("bidder %s: %w", bidder, auctionerrors.ErrUnknownParticipant)
		status, message := helpers.MapErrorToHTTP(err)
		utils.JSONError(c, status, err, message)
		utils.Info("GetBidsHandler: unknown bidder", map[string]any{"bidder": bidder})
		return
	}

	bids := make([]helpers.BidResponse, 0, len(snap.Bids))
	for _, b := range snap.Bids {
		if bidder != "" && b.BidderID != bidder {
			continue
		}
		bids = append(bids, helpers.NewBidResponse(b))
	}

	utils.JSONResponse(c, http.StatusOK, bids, "bids retrieved successfully")
	helpers.LogSuccess("GetBidsHandler", "bids retrieved successfully", map[string]any{
		"bidder": bidder,
		"count":  len(bids),
	})
}

// GetResultHandler handles GET /auction/result
func (h *AuctionHandler) GetResultHandler(c *gin.Context) {
	snap, ok := h.snapshot(c, "GetResultHandler")
	if !ok {
		return
	}

	if snap.Result == nil {
		err := fmt.Errorf("auction is %s: %w", snap.Auction.Status, auctionerrors.ErrNotResolved)
		status, message := helpers.MapErrorToHTTP(err)
		utils.JSONError(c, status, err, message)
		utils.Info("GetResultHandler: auction not resolved", map[string]any{"status": snap.Auction.Status})
		return
	}

	resp := helpers.NewResultResponse(*snap.Result)
	utils.JSONResponse(c, http.StatusOK, resp, "result retrieved successfully")
	helpers.LogSuccess("GetResultHandler", "result retrieved successfully", map[string]any{
		"outcome":   resp.Outcome,
		"winner_id": resp.WinnerID,
		"price":     resp.Price,
	})
}

// GetParticipantsHandler handles GET /participants
func (h *AuctionHandler) GetParticipantsHandler(c *gin.Context) {
	snap, ok := h.snapshot(c, "GetParticipantsHandler")
	if !ok {
		return
	}

	participants := make([]helpers.ParticipantResponse, 0, len(snap.Participants))
	for _, p := range snap.Participants {
		participants = append(participants, helpers.NewParticipantResponse(p))
	}

	utils.JSONResponse(c, http.StatusOK, participants, "participants retrieved successfully")
	helpers.LogSuccess("GetParticipantsHandler", "participants retrieved successfully", map[string]any{
		"count": len(participants),
	})
}

// snapshot fetches state and writes the error response itself on failure
func (h *AuctionHandler) snapshot(c *gin.Context, handlerName string) (models.Snapshot, bool) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), snapshotTimeout)
	defer cancel()

	snap, err := h.service.Snapshot(ctx)
	if err != nil {
		status, message := helpers.MapErrorToHTTP(err)
		utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)
		utils.Warn(handlerName+": snapshot failed", map[string]any{"error": err.Error()})
		return models.Snapshot{}, false
	}
	return snap, true
}

func hasParticipant(snap models.Snapshot, id string) bool {
	for _, p := range snap.Participants {
		if p.ID == id {
			return true
		}
	}
	return false
}
