package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"auctioneer/internal/auctionerrors"
	"auctioneer/internal/models"
	"auctioneer/utils"

	"github.com/gin-gonic/gin"
	"github.com/golang/mock/gomock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
	utils.SetLogOutput(io.Discard)
}

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func openSnapshot() models.Snapshot {
	return models.Snapshot{
		Auction: models.Auction{
			ID:         "a-1",
			Item:       "Vintage Lamp",
			StartPrice: decimal.NewFromInt(100),
			Type:       models.SecondPrice,
			Status:     models.StatusOpen,
			CreatedAt:  now,
			Deadline:   now.Add(time.Minute),
		},
		Bids: []models.Bid{
			{BidderID: "b1", Amount: decimal.NewFromInt(150), Sequence: 1, AcceptedAt: now.Add(time.Second)},
			{BidderID: "b2", Amount: decimal.RequireFromString("200.50"), Sequence: 2, AcceptedAt: now.Add(2 * time.Second)},
			{BidderID: "b1", Amount: decimal.NewFromInt(250), Sequence: 3, AcceptedAt: now.Add(3 * time.Second)},
		},
		Participants: []models.Participant{
			{ID: "s1", Role: models.RoleSeller, State: models.Connected, ConnectedAt: now},
			{ID: "b1", Role: models.RoleBuyer, State: models.Connected, ConnectedAt: now, BidCount: 2},
			{ID: "b2", Role: models.RoleBuyer, State: models.Disconnected, ConnectedAt: now, BidCount: 1},
		},
	}
}

func resolvedSnapshot() models.Snapshot {
	snap := openSnapshot()
	snap.Auction.Status = models.StatusResolved
	price := decimal.RequireFromString("200.50")
	snap.Result = &models.Result{
		Outcome:    models.OutcomeSold,
		WinnerID:   "b1",
		Price:      &price,
		Reason:     models.CloseDeadline,
		BidCount:   3,
		ResolvedAt: now.Add(time.Minute),
	}
	return snap
}

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func serve(t *testing.T, setup func(m *MockAuctionServiceInterface), route string, register func(h *AuctionHandler) gin.HandlerFunc, target string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	ctrl := gomock.NewController(t)
	mockService := NewMockAuctionServiceInterface(ctrl)
	setup(mockService)

	router := gin.New()
	router.GET(route, register(NewAuctionHandler(mockService)))

	req := httptest.NewRequest(http.MethodGet, target, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var resp envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, w.Code, resp.Status)
	return w, resp
}

func TestGetAuctionHandler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		snapshot       models.Snapshot
		err            error
		expectedStatus int
		expectedMsg    string
		validateData   func(t *testing.T, data map[string]any)
	}{
		{
			name:           "open_auction_with_bids",
			snapshot:       openSnapshot(),
			expectedStatus: http.StatusOK,
			expectedMsg:    "auction retrieved successfully",
			validateData: func(t *testing.T, data map[string]any) {
				require.Equal(t, "a-1", data["auction_id"])
				require.Equal(t, "open", data["status"])
				require.Equal(t, "second_price", data["type"])
				require.Equal(t, "100", data["start_price"])
				require.Equal(t, 3.0, data["bid_count"])
				require.Equal(t, 3.0, data["participant_count"])
				highest := data["highest_bid"].(map[string]any)
				require.Equal(t, "b1", highest["bidder_id"])
				require.Equal(t, "250", highest["amount"])
			},
		},
		{
			name:           "awaiting_seller",
			snapshot:       models.Snapshot{Auction: models.Auction{ID: "a-2", Status: models.StatusAwaitingSeller}},
			expectedStatus: http.StatusOK,
			expectedMsg:    "auction retrieved successfully",
			validateData: func(t *testing.T, data map[string]any) {
				require.Equal(t, "awaiting_seller", data["status"])
				require.NotContains(t, data, "highest_bid")
				require.NotContains(t, data, "start_price")
			},
		},
		{
			name:           "coordinator_stopped",
			err:            fmt.Errorf("coordinator: snapshot: %w", auctionerrors.ErrCoordinatorStopped),
			expectedStatus: http.StatusServiceUnavailable,
			expectedMsg:    "auction server is shutting down",
		},
		{
			name:           "generic_error",
			err:            errors.New("boom"),
			expectedStatus: http.StatusInternalServerError,
			expectedMsg:    "internal server error",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			w, resp := serve(t, func(m *MockAuctionServiceInterface) {
				m.EXPECT().Snapshot(gomock.Any()).Return(tc.snapshot, tc.err)
			}, "/auction", func(h *AuctionHandler) gin.HandlerFunc { return h.GetAuctionHandler }, "/auction")

			require.Equal(t, tc.expectedStatus, w.Code)
			require.Equal(t, tc.expectedMsg, resp.Message)
			if tc.validateData != nil {
				var data map[string]any
				require.NoError(t, json.Unmarshal(resp.Data, &data))
				tc.validateData(t, data)
			} else {
				require.NotEmpty(t, resp.Error)
			}
		})
	}
}

func TestGetBidsHandler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		target         string
		snapshot       models.Snapshot
		expectedStatus int
		expectedMsg    string
		wantAmounts    []string
	}{
		{
			name:           "all_bids_in_sequence_order",
			target:         "/auction/bids",
			snapshot:       openSnapshot(),
			expectedStatus: http.StatusOK,
			expectedMsg:    "bids retrieved successfully",
			wantAmounts:    []string{"150", "200.5", "250"},
		},
		{
			name:           "filtered_by_bidder",
			target:         "/auction/bids?bidder=b1",
			snapshot:       openSnapshot(),
			expectedStatus: http.StatusOK,
			expectedMsg:    "bids retrieved successfully",
			wantAmounts:    []string{"150", "250"},
		},
		{
			name:           "no_bids_is_empty_list",
			target:         "/auction/bids",
			snapshot:       models.Snapshot{Auction: models.Auction{Status: models.StatusOpen}},
			expectedStatus: http.StatusOK,
			expectedMsg:    "bids retrieved successfully",
			wantAmounts:    []string{},
		},
		{
			name:           "unknown_bidder",
			target:         "/auction/bids?bidder=ghost",
			snapshot:       openSnapshot(),
			expectedStatus: http.StatusNotFound,
			expectedMsg:    "participant not found",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			w, resp := serve(t, func(m *MockAuctionServiceInterface) {
				m.EXPECT().Snapshot(gomock.Any()).Return(tc.snapshot, nil)
			}, "/auction/bids", func(h *AuctionHandler) gin.HandlerFunc { return h.GetBidsHandler }, tc.target)

			require.Equal(t, tc.expectedStatus, w.Code)
			require.Equal(t, tc.expectedMsg, resp.Message)
			if tc.wantAmounts == nil {
				return
			}

			var bids []map[string]any
			require.NoError(t, json.Unmarshal(resp.Data, &bids))
			amounts := make([]string, 0, len(bids))
			for _, b := range bids {
				amounts = append(amounts, b["amount"].(string))
			}
			require.Equal(t, tc.wantAmounts, amounts)
		})
	}
}

func TestGetResultHandler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		snapshot       models.Snapshot
		expectedStatus int
		expectedMsg    string
		validateData   func(t *testing.T, data map[string]any)
	}{
		{
			name:           "resolved_sold",
			snapshot:       resolvedSnapshot(),
			expectedStatus: http.StatusOK,
			expectedMsg:    "result retrieved successfully",
			validateData: func(t *testing.T, data map[string]any) {
				require.Equal(t, "sold", data["outcome"])
				require.Equal(t, "b1", data["winner_id"])
				require.Equal(t, "200.5", data["price"])
				require.Equal(t, "deadline", data["reason"])
				_, err := time.Parse(time.RFC3339Nano, data["resolved_at"].(string))
				require.NoError(t, err)
			},
		},
		{
			name: "resolved_unsold",
			snapshot: models.Snapshot{
				Auction: models.Auction{Status: models.StatusResolved},
				Result:  &models.Result{Outcome: models.OutcomeUnsold, Reason: models.CloseSellerDisconnected, ResolvedAt: now},
			},
			expectedStatus: http.StatusOK,
			expectedMsg:    "result retrieved successfully",
			validateData: func(t *testing.T, data map[string]any) {
				require.Equal(t, "unsold", data["outcome"])
				require.Equal(t, "seller_disconnected", data["reason"])
				require.NotContains(t, data, "price")
				require.NotContains(t, data, "winner_id")
			},
		},
		{
			name:           "still_open",
			snapshot:       openSnapshot(),
			expectedStatus: http.StatusNotFound,
			expectedMsg:    "auction not resolved yet",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			w, resp := serve(t, func(m *MockAuctionServiceInterface) {
				m.EXPECT().Snapshot(gomock.Any()).Return(tc.snapshot, nil)
			}, "/auction/result", func(h *AuctionHandler) gin.HandlerFunc { return h.GetResultHandler }, "/auction/result")

			require.Equal(t, tc.expectedStatus, w.Code)
			require.Equal(t, tc.expectedMsg, resp.Message)
			if tc.validateData != nil {
				var data map[string]any
				require.NoError(t, json.Unmarshal(resp.Data, &data))
				tc.validateData(t, data)
			}
		})
	}
}

func TestGetParticipantsHandler(t *testing.T) {
	t.Parallel()

	w, resp := serve(t, func(m *MockAuctionServiceInterface) {
		m.EXPECT().Snapshot(gomock.Any()).Return(openSnapshot(), nil)
	}, "/participants", func(h *AuctionHandler) gin.HandlerFunc { return h.GetParticipantsHandler }, "/participants")

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "participants retrieved successfully", resp.Message)

	var participants []map[string]any
	require.NoError(t, json.Unmarshal(resp.Data, &participants))
	require.Len(t, participants, 3)
	require.Equal(t, "seller", participants[0]["role"])
	require.Equal(t, "b2", participants[2]["participant_id"])
	require.Equal(t, "disconnected", participants[2]["connection_state"])
	require.Equal(t, 1.0, participants[2]["bid_count"])
}
