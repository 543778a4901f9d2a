// Package resolver computes the winner and clearing price of a closed auction.
package resolver

import (
	"auctioneer/internal/models"

	"github.com/shopspring/decimal"
)

// Resolve returns the outcome for the final bid log. It has no side effects.
//
// The highest amount wins; equal amounts go to the lower sequence number.
// Under first-price the winner pays their own bid. Under second-price the
// winner pays the best amount among the other bids, or startPrice when
// there is no other bid.
func Resolve(auctionType models.AuctionType, startPrice decimal.Decimal, bids []models.Bid) models.Result {
	result := models.Result{Outcome: models.OutcomeUnsold, BidCount: len(bids)}
	if len(bids) == 0 {
		return result
	}

	best, runnerUp := rank(bids)
	winner := bids[best]

	price := winner.Amount
	if auctionType == models.SecondPrice {
		price = startPrice
		if runnerUp >= 0 {
			price = bids[runnerUp].Amount
		}
	}

	result.Outcome = models.OutcomeSold
	result.WinnerID = winner.BidderID
	result.Price = &price
	return result
}

// rank returns the index of the best bid and of the runner-up, -1 if none.
// For a log built by strict improvement these are the last two entries.
func rank(bids []models.Bid) (best, runnerUp int) {
	best, runnerUp = -1, -1
	for i, b := range bids {
		switch {
		case best < 0 || beats(b, bids[best]):
			runnerUp, best = best, i
		case runnerUp < 0 || beats(b, bids[runnerUp]):
			runnerUp = i
		}
	}
	return best, runnerUp
}

func beats(a, b models.Bid) bool {
	if c := a.Amount.Cmp(b.Amount); c != 0 {
		return c > 0
	}
	return a.Sequence < b.Sequence
}
