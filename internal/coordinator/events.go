package coordinator

import (
	"fmt"
	"strings"

	"auctioneer/internal/auctionerrors"
	"auctioneer/internal/models"
	"auctioneer/internal/protocol"
	"auctioneer/internal/resolver"
	"auctioneer/utils"

	"github.com/shopspring/decimal"
)

func (c *Coordinator) handle(ev event) reply {
	switch ev.kind {
	case evJoin:
		return c.handleJoin(ev)
	case evCreate:
		return c.handleCreate(ev)
	case evBid:
		return c.handleBid(ev)
	case evEnd:
		return c.handleEnd(ev)
	case evDeadline:
		c.handleDeadline()
		return reply{}
	case evDisconnect:
		return c.handleDisconnect(ev)
	case evSnapshot:
		return reply{snapshot: c.snapshot()}
	default:
		return reply{err: fmt.Errorf("coordinator: %w - unknown event %d", auctionerrors.ErrProtocol, ev.kind)}
	}
}

func (c *Coordinator) handleJoin(ev event) reply {
	role, err := c.roles.Assign(ev.participantID)
	if err != nil {
		utils.Warn("coordinator: connection rejected", map[string]any{
			"participant_id": ev.participantID,
			"remote_addr":    ev.remoteAddr,
			"error":          err.Error(),
		})
		return reply{err: fmt.Errorf("coordinator: %w", err)}
	}

	if _, known := c.participants[ev.participantID]; !known {
		c.participants[ev.participantID] = &models.Participant{
			ID:          ev.participantID,
			Role:        role,
			State:       models.Connected,
			RemoteAddr:  ev.remoteAddr,
			ConnectedAt: c.now(),
		}
		c.joinOrder = append(c.joinOrder, ev.participantID)
	}
	c.bcast.Register(ev.sink)

	if role == models.RoleSeller && c.auction.Status == models.StatusAwaitingSeller {
		c.advance(models.StatusAwaitingDetails)
	}

	_ = c.bcast.Send(ev.participantID, protocol.RoleAssign(ev.participantID, role))
	if role == models.RoleBuyer && c.auction.Status == models.StatusOpen {
		_ = c.bcast.Send(ev.participantID, protocol.AuctionOpened(c.auction))
	}

	utils.Info("coordinator: participant joined", map[string]any{
		"participant_id": ev.participantID,
		"role":           role,
		"remote_addr":    ev.remoteAddr,
	})
	return reply{role: role}
}

func (c *Coordinator) handleCreate(ev event) reply {
	p, err := c.sender(ev, models.RoleSeller)
	if err != nil {
		return reply{err: err}
	}
	if c.auction.Status != models.StatusAwaitingDetails {
		return reply{err: c.unexpected(p.ID, fmt.Sprintf("create_auction while %s", c.auction.Status))}
	}

	if detail := validateSpec(ev.spec); detail != "" {
		_ = c.bcast.Send(p.ID, protocol.InvalidAuctionSpec(detail))
		utils.Warn("coordinator: invalid auction spec", map[string]any{"participant_id": p.ID, "detail": detail})
		return reply{err: fmt.Errorf("coordinator: %w - %s", auctionerrors.ErrInvalidAuctionSpec, detail)}
	}

	now := c.now()
	c.auction.Item = strings.TrimSpace(ev.spec.Item)
	c.auction.StartPrice = ev.spec.StartPrice
	c.auction.Type = ev.spec.Type
	c.auction.CreatedAt = now
	c.auction.Deadline = now.Add(ev.spec.Duration)
	c.advance(models.StatusOpen)
	c.timer = c.clock.AfterFunc(ev.spec.Duration, c.fireDeadline)

	_ = c.bcast.Send(p.ID, protocol.Ack(&c.auction))
	opened := c.bcast.Opened(c.auction, c.participantList())

	utils.Info("coordinator: auction opened", map[string]any{
		"auction_id":      c.auction.ID,
		"item":            c.auction.Item,
		"start_price":     c.auction.StartPrice.String(),
		"type":            c.auction.Type,
		"deadline":        c.auction.Deadline,
		"buyers_notified": opened,
	})
	return reply{auction: c.auction}
}

func validateSpec(spec models.AuctionSpec) string {
	switch {
	case strings.TrimSpace(spec.Item) == "":
		return "item must not be empty"
	case !spec.StartPrice.IsPositive():
		return "start price must be positive"
	case !models.AmountInRange(spec.StartPrice):
		return fmt.Sprintf("start price must have at most %d integer and %d fractional digits", models.MaxAmountIntegerDigits, models.MaxAmountScale)
	case spec.Duration <= 0:
		return "duration must be positive"
	case spec.Duration > models.MaxAuctionDuration:
		return fmt.Sprintf("duration must be at most %s", models.MaxAuctionDuration)
	case !spec.Type.Valid():
		return fmt.Sprintf("unknown auction type %q", spec.Type)
	default:
		return ""
	}
}

func (c *Coordinator) handleBid(ev event) reply {
	p, err := c.sender(ev, models.RoleBuyer)
	if err != nil {
		return reply{err: err}
	}

	if rej := c.validateBid(ev.amount); rej != nil {
		_ = c.bcast.Send(p.ID, protocol.BidRejected(rej.Reason, rej.Detail))
		utils.Info("coordinator: bid rejected", map[string]any{
			"participant_id": p.ID,
			"amount":         loggedAmount(ev.amount),
			"reason":         rej.Reason,
		})
		return reply{err: fmt.Errorf("coordinator: %w", rej)}
	}

	bid := models.Bid{
		BidderID:   p.ID,
		Amount:     ev.amount,
		Sequence:   c.seq + 1,
		AcceptedAt: c.now(),
	}
	if err := c.bids.Append(bid); err != nil {
		utils.Error("coordinator: failed to record bid", map[string]any{
			"participant_id": p.ID,
			"sequence":       bid.Sequence,
			"error":          err.Error(),
		})
		return reply{err: fmt.Errorf("coordinator: failed to record bid: %w", err)}
	}
	c.seq = bid.Sequence

	_ = c.bcast.Send(p.ID, protocol.BidAccepted(bid))
	utils.Info("coordinator: bid accepted", map[string]any{
		"participant_id": p.ID,
		"amount":         bid.Amount.String(),
		"sequence":       bid.Sequence,
	})
	return reply{bid: bid}
}

// validateBid applies the acceptance rule. Only strictly improving bids
// are accepted, so the log is strictly increasing in amount.
func (c *Coordinator) validateBid(amount decimal.Decimal) *auctionerrors.RejectionError {
	if c.auction.Status != models.StatusOpen {
		return &auctionerrors.RejectionError{Reason: auctionerrors.ReasonAuctionNotOpen, Detail: fmt.Sprintf("auction is %s", c.auction.Status)}
	}
	if !amount.IsPositive() {
		return &auctionerrors.RejectionError{Reason: auctionerrors.ReasonNonPositiveAmount}
	}
	if !models.AmountInRange(amount) {
		return &auctionerrors.RejectionError{
			Reason: auctionerrors.ReasonAmountOutOfRange,
			Detail: fmt.Sprintf("at most %d integer and %d fractional digits", models.MaxAmountIntegerDigits, models.MaxAmountScale),
		}
	}

	highest, err := c.bids.Highest()
	if err != nil {
		if amount.LessThan(c.auction.StartPrice) {
			return &auctionerrors.RejectionError{Reason: auctionerrors.ReasonBelowStartPrice, Detail: fmt.Sprintf("start price is %s", c.auction.StartPrice)}
		}
		return nil
	}
	if amount.LessThanOrEqual(highest.Amount) {
		return &auctionerrors.RejectionError{Reason: auctionerrors.ReasonNotAnImprovement, Detail: fmt.Sprintf("current highest bid is %s", highest.Amount)}
	}
	return nil
}

func (c *Coordinator) handleEnd(ev event) reply {
	p, err := c.sender(ev, models.RoleSeller)
	if err != nil {
		return reply{err: err}
	}

	switch c.auction.Status {
	case models.StatusOpen:
		_ = c.bcast.Send(p.ID, protocol.Ack(&c.auction))
		c.close(models.CloseEndedBySeller)
		return reply{}
	case models.StatusClosing, models.StatusResolved:
		return reply{}
	default:
		return reply{err: c.unexpected(p.ID, fmt.Sprintf("end_auction while %s", c.auction.Status))}
	}
}

func (c *Coordinator) handleDeadline() {
	if c.auction.Status != models.StatusOpen {
		utils.Debug("coordinator: stale deadline ignored", map[string]any{"status": c.auction.Status})
		return
	}
	utils.Info("coordinator: deadline reached", map[string]any{"auction_id": c.auction.ID})
	c.close(models.CloseDeadline)
}

func (c *Coordinator) handleDisconnect(ev event) reply {
	p, ok := c.participants[ev.participantID]
	if !ok || p.State == models.Disconnected {
		return reply{}
	}

	p.State = models.Disconnected
	c.bcast.Unregister(p.ID)
	utils.Info("coordinator: participant disconnected", map[string]any{
		"participant_id": p.ID,
		"role":           p.Role,
		"status":         c.auction.Status,
	})

	if p.Role == models.RoleSeller {
		switch c.auction.Status {
		case models.StatusAwaitingDetails, models.StatusOpen:
			c.close(models.CloseSellerDisconnected)
		}
	}
	return reply{}
}

// close runs open -> closing -> resolved within a single event
func (c *Coordinator) close(reason models.CloseReason) {
	if !c.advance(models.StatusClosing) {
		return
	}
	c.stopTimer()

	var result models.Result
	if reason == models.CloseSellerDisconnected {
		result = models.Result{Outcome: models.OutcomeUnsold, BidCount: c.bids.Len()}
	} else {
		result = resolver.Resolve(c.auction.Type, c.auction.StartPrice, c.bids.Bids())
	}
	result.Reason = reason
	result.ResolvedAt = c.now()

	c.advance(models.StatusResolved)
	c.result = &result
	c.roles.Close()

	notified := c.bcast.Closed(c.auction.Item, result, c.participantList())

	fields := map[string]any{
		"auction_id": c.auction.ID,
		"outcome":    result.Outcome,
		"reason":     reason,
		"bids":       result.BidCount,
		"notified":   notified,
	}
	if result.Price != nil {
		fields["winner_id"] = result.WinnerID
		fields["price"] = result.Price.String()
	}
	utils.Info("coordinator: auction resolved", fields)

	close(c.done)
}

// sender resolves the participant behind ev and checks its role
func (c *Coordinator) sender(ev event, want models.Role) (*models.Participant, error) {
	p, ok := c.participants[ev.participantID]
	if !ok {
		return nil, fmt.Errorf("coordinator: %s from %s: %w", ev.kind, ev.participantID, auctionerrors.ErrUnknownParticipant)
	}
	if p.Role != want {
		return nil, c.unexpected(p.ID, fmt.Sprintf("%s is not allowed for a %s", ev.kind, p.Role))
	}
	return p, nil
}

// unexpected answers a protocol violation with an error notice
func (c *Coordinator) unexpected(participantID, detail string) error {
	_ = c.bcast.Send(participantID, protocol.ErrorNotice(auctionerrors.ReasonUnexpectedMessage, detail))
	utils.Warn("coordinator: protocol violation", map[string]any{"participant_id": participantID, "detail": detail})
	return fmt.Errorf("coordinator: %w - %s", auctionerrors.ErrProtocol, detail)
}

func (c *Coordinator) participantList() []models.Participant {
	list := make([]models.Participant, 0, len(c.joinOrder))
	for _, id := range c.joinOrder {
		p := *c.participants[id]
		if bids, err := c.bids.BidsByBidder(id); err == nil {
			p.BidCount = len(bids)
		}
		list = append(list, p)
	}
	return list
}

func (c *Coordinator) snapshot() models.Snapshot {
	snap := models.Snapshot{
		Auction:          c.auction,
		Bids:             c.bids.Bids(),
		Participants:     c.participantList(),
		DeliveryFailures: c.bcast.Failed(),
	}
	if c.result != nil {
		result := *c.result
		snap.Result = &result
	}
	return snap
}

// loggedAmount renders out-of-range amounts by exponent only
func loggedAmount(d decimal.Decimal) string {
	if !models.AmountInRange(d) {
		return fmt.Sprintf("out of range (exponent %d)", d.Exponent())
	}
	return d.String()
}
