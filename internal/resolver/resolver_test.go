package resolver

import (
	"testing"

	"auctioneer/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func bids(amounts ...int64) []models.Bid {
	out := make([]models.Bid, 0, len(amounts))
	for i, a := range amounts {
		out = append(out, models.Bid{
			BidderID: "buyer-" + string(rune('a'+i)),
			Amount:   decimal.NewFromInt(a),
			Sequence: uint64(i + 1),
		})
	}
	return out
}

func TestResolve(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		auctionType models.AuctionType
		startPrice  int64
		bids        []models.Bid
		wantOutcome models.Outcome
		wantWinner  string
		wantPrice   int64
	}{
		{
			name:        "no_bids_first_price",
			auctionType: models.FirstPrice,
			startPrice:  100,
			wantOutcome: models.OutcomeUnsold,
		},
		{
			name:        "no_bids_second_price",
			auctionType: models.SecondPrice,
			startPrice:  100,
			wantOutcome: models.OutcomeUnsold,
		},
		{
			name:        "first_price_single_bid",
			auctionType: models.FirstPrice,
			startPrice:  100,
			bids:        bids(120),
			wantOutcome: models.OutcomeSold,
			wantWinner:  "buyer-a",
			wantPrice:   120,
		},
		{
			name:        "first_price_pays_last_bid",
			auctionType: models.FirstPrice,
			startPrice:  50,
			bids:        bids(60, 70, 95),
			wantOutcome: models.OutcomeSold,
			wantWinner:  "buyer-c",
			wantPrice:   95,
		},
		{
			name:        "second_price_pays_previous_bid",
			auctionType: models.SecondPrice,
			startPrice:  100,
			bids:        bids(150, 200),
			wantOutcome: models.OutcomeSold,
			wantWinner:  "buyer-b",
			wantPrice:   150,
		},
		{
			name:        "second_price_single_bid_pays_start_price",
			auctionType: models.SecondPrice,
			startPrice:  100,
			bids:        bids(180),
			wantOutcome: models.OutcomeSold,
			wantWinner:  "buyer-a",
			wantPrice:   100,
		},
		{
			name:        "unordered_log_still_picks_highest",
			auctionType: models.SecondPrice,
			startPrice:  10,
			bids:        bids(40, 90, 60),
			wantOutcome: models.OutcomeSold,
			wantWinner:  "buyer-b",
			wantPrice:   60,
		},
		{
			name:        "equal_amounts_go_to_earlier_sequence",
			auctionType: models.FirstPrice,
			startPrice:  10,
			bids:        bids(50, 50),
			wantOutcome: models.OutcomeSold,
			wantWinner:  "buyer-a",
			wantPrice:   50,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := Resolve(tc.auctionType, decimal.NewFromInt(tc.startPrice), tc.bids)

			require.Equal(t, tc.wantOutcome, got.Outcome)
			require.Equal(t, len(tc.bids), got.BidCount)
			if tc.wantOutcome == models.OutcomeUnsold {
				require.Empty(t, got.WinnerID)
				require.Nil(t, got.Price)
				return
			}
			require.Equal(t, tc.wantWinner, got.WinnerID)
			require.NotNil(t, got.Price)
			require.True(t, got.Price.Equal(decimal.NewFromInt(tc.wantPrice)), "expected price %d, got %s", tc.wantPrice, got.Price)
		})
	}
}

func TestResolve_DoesNotMutateInput(t *testing.T) {
	in := bids(150, 200)
	before := append([]models.Bid(nil), in...)

	_ = Resolve(models.SecondPrice, decimal.NewFromInt(100), in)

	require.Equal(t, before, in)
}

func TestResolve_Deterministic(t *testing.T) {
	in := bids(110, 130, 170, 220)
	first := Resolve(models.SecondPrice, decimal.NewFromInt(100), in)
	for i := 0; i < 50; i++ {
		require.Equal(t, first, Resolve(models.SecondPrice, decimal.NewFromInt(100), in))
	}
}
