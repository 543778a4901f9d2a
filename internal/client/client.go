// Package client is the interactive terminal participant. The server decides
// whether it acts as the seller or as a buyer.
package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"auctioneer/internal/auctionerrors"
	"auctioneer/internal/config"
	"auctioneer/internal/models"
	"auctioneer/internal/protocol"
	"auctioneer/utils"

	"github.com/shopspring/decimal"
)

var (
	// ErrRefused means the server turned the connection away
	ErrRefused = errors.New("connection refused by the auctioneer")
	// ErrConnectionLost means the server hung up before announcing the outcome
	ErrConnectionLost = errors.New("connection to the auctioneer lost")
)

// Client drives one participant connection from line-oriented input
type Client struct {
	conn net.Conn
	enc  protocol.Encoder
	dec  protocol.Decoder
	in   io.Reader
	out  io.Writer

	id         string
	role       models.Role
	opened     bool
	item       string
	lastNotice *protocol.Message
}

// Dial connects to the server described by cfg
func Dial(ctx context.Context, cfg config.ClientConfig, in io.Reader, out io.Writer) (*Client, error) {
	codec, err := protocol.NewCodec(cfg.Codec)
	if err != nil {
		return nil, fmt.Errorf("client: %w", err)
	}

	dialer := net.Dialer{Timeout: cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", cfg.Addr())
	if err != nil {
		return nil, fmt.Errorf("client: connect to %s: %w", cfg.Addr(), err)
	}
	utils.Debug("client: connected", map[string]any{"addr": cfg.Addr(), "codec": codec.Name()})
	return New(conn, codec, in, out), nil
}

// New wraps an established connection
func New(conn net.Conn, codec protocol.Codec, in io.Reader, out io.Writer) *Client {
	return &Client{
		conn: conn,
		enc:  codec.NewEncoder(conn),
		dec:  codec.NewDecoder(conn),
		in:   in,
		out:  out,
	}
}

// Role is empty until the server has assigned one
func (c *Client) Role() models.Role {
	return c.role
}

// Run prints server messages and forwards typed commands until the auction
// closes. It returns nil once the outcome has been received.
func (c *Client) Run(ctx context.Context) error {
	defer c.conn.Close()
	c.printf("Connected to the Auctioneer server.\n")

	msgs := make(chan protocol.Message)
	readErr := make(chan error, 1)
	quit := make(chan struct{})
	defer close(quit)

	go c.readServer(msgs, readErr, quit)
	lines := make(chan string)
	go c.readInput(lines, quit)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			if c.lastNotice != nil {
				return fmt.Errorf("client: %w: %s", ErrConnectionLost, c.lastNotice.Reason)
			}
			return fmt.Errorf("client: %w: %v", ErrConnectionLost, err)
		case msg := <-msgs:
			done, err := c.handle(msg)
			if done {
				return err
			}
		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			if err := c.command(line); err != nil {
				return err
			}
		}
	}
}

func (c *Client) readServer(msgs chan<- protocol.Message, readErr chan<- error, quit <-chan struct{}) {
	for {
		var msg protocol.Message
		if err := c.dec.Decode(&msg); err != nil {
			readErr <- err
			return
		}
		select {
		case msgs <- msg:
		case <-quit:
			return
		}
	}
}

func (c *Client) readInput(lines chan<- string, quit <-chan struct{}) {
	defer close(lines)
	scanner := bufio.NewScanner(c.in)
	for scanner.Scan() {
		select {
		case lines <- scanner.Text():
		case <-quit:
			return
		}
	}
}

// handle prints one server message; done is set when the session is over
func (c *Client) handle(msg protocol.Message) (done bool, err error) {
	utils.Debug("client: received", map[string]any{"type": msg.Type})

	switch msg.Type {
	case protocol.TypeRoleAssign:
		c.id, c.role = msg.ParticipantID, msg.Role
		if c.role == models.RoleSeller {
			c.printf("Your role is: [Seller] (%s)\n", c.id)
			c.printf("Please submit auction request: <type 1|2> <start_price> <duration> <item>, e.g. 2 100 30s Lamp\n")
		} else {
			c.printf("Your role is: [Buyer] (%s)\n", c.id)
			c.printf("Waiting for the seller to open the auction...\n")
		}

	case protocol.TypeAck:
		if c.role == models.RoleSeller && !c.opened {
			c.opened = true
			c.printf("Server: Auction started.\n")
			if msg.Deadline != nil {
				c.printf("Bidding closes at %s. Type 'end' to close it early.\n", msg.Deadline.Local().Format(time.Kitchen))
			}
		} else {
			c.printf("Server: end of auction requested.\n")
		}

	case protocol.TypeInvalidAuctionSpec:
		c.printf("Server: Invalid auction request! %s\n", msg.Detail)
		c.printf("Please submit auction request:\n")

	case protocol.TypeAuctionOpened:
		c.item = msg.Item
		c.printf("The bidding has started for %q (%s, start price %s).\n", msg.Item, describeType(msg.AuctionType), formatAmount(msg.StartPrice))
		if msg.Deadline != nil {
			c.printf("Bidding closes at %s.\n", msg.Deadline.Local().Format(time.Kitchen))
		}
		c.printf("Please submit your bid:\n")

	case protocol.TypeBidAccepted:
		c.printf("Server: Bid %s received (#%d).\n", formatAmount(msg.Amount), msg.Sequence)

	case protocol.TypeBidRejected:
		c.printf("Server: Bid rejected: %s", strings.ReplaceAll(string(msg.Reason), "_", " "))
		if msg.Detail != "" {
			c.printf(" (%s)", msg.Detail)
		}
		c.printf("\nPlease submit your bid:\n")

	case protocol.TypeAuctionClosed:
		c.printOutcome(msg)
		c.printf("Disconnecting from the Auctioneer server. Auction is over!\n")
		return true, nil

	case protocol.TypeErrorNotice:
		notice := msg
		c.lastNotice = &notice
		c.printf("Server: %s", strings.ReplaceAll(string(msg.Reason), "_", " "))
		if msg.Detail != "" {
			c.printf(": %s", msg.Detail)
		}
		c.printf("\n")
		switch msg.Reason {
		case auctionerrors.ReasonAuctionFull, auctionerrors.ReasonAuctionClosed, auctionerrors.ReasonShuttingDown:
			return true, fmt.Errorf("client: %w: %s", ErrRefused, msg.Reason)
		}

	default:
		utils.Warn("client: unexpected message", map[string]any{"type": msg.Type})
	}
	return false, nil
}

func (c *Client) printOutcome(msg protocol.Message) {
	item := msg.Item
	if item == "" {
		item = c.item
	}
	c.printf("Auction finished!\n")

	if msg.Outcome != models.OutcomeSold {
		switch msg.CloseReason {
		case models.CloseSellerDisconnected:
			c.printf("The seller left; %q was not sold.\n", item)
		default:
			c.printf("Unfortunately, %q was not sold.\n", item)
		}
		return
	}

	price := formatAmount(msg.Price)
	switch {
	case c.role == models.RoleSeller:
		c.printf("Success! Your item %q has been sold for $%s.\n", item, price)
	case msg.YouWon:
		c.printf("You won %q! Your payment due is $%s.\n", item, price)
	default:
		c.printf("You lost. %q was sold for $%s.\n", item, price)
	}
}

// command turns one typed line into a request, or explains why it cannot
func (c *Client) command(line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	var msg protocol.Message
	switch c.role {
	case models.RoleSeller:
		if c.opened {
			if !strings.EqualFold(line, "end") {
				c.printf("The auction is running. Type 'end' to close it early.\n")
				return nil
			}
			msg = protocol.EndAuction()
			break
		}
		spec, err := ParseAuctionRequest(line)
		if err != nil {
			c.printf("Invalid auction request! %v\n", err)
			return nil
		}
		c.item = spec.Item
		msg = protocol.CreateAuction(spec)

	case models.RoleBuyer:
		amount, err := decimal.NewFromString(strings.TrimPrefix(line, "$"))
		if err != nil {
			c.printf("Invalid bid %q: enter an amount such as 150 or 99.50\n", line)
			return nil
		}
		msg = protocol.Bid(amount)

	default:
		c.printf("Still waiting for a role from the server.\n")
		return nil
	}

	if err := c.enc.Encode(msg); err != nil {
		return fmt.Errorf("client: %w: %v", ErrConnectionLost, err)
	}
	return nil
}

// ParseAuctionRequest reads `<type> <start_price> <duration> <item...>`.
// A bare number as duration is taken as seconds.
func ParseAuctionRequest(line string) (models.AuctionSpec, error) {
	fields := strings.Fields(line)
	if len(fields) < 4 {
		return models.AuctionSpec{}, fmt.Errorf("expected <type> <start_price> <duration> <item>")
	}

	auctionType, err := models.ParseAuctionType(fields[0])
	if err != nil {
		return models.AuctionSpec{}, err
	}
	price, err := decimal.NewFromString(fields[1])
	if err != nil {
		return models.AuctionSpec{}, fmt.Errorf("start price %q is not a number", fields[1])
	}
	duration, err := parseDuration(fields[2])
	if err != nil {
		return models.AuctionSpec{}, err
	}

	return models.AuctionSpec{
		Item:       strings.Join(fields[3:], " "),
		StartPrice: price,
		Type:       auctionType,
		Duration:   duration,
	}, nil
}

func parseDuration(s string) (time.Duration, error) {
	if secs, err := strconv.Atoi(s); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("duration %q is not valid, use e.g. 30s or 2m", s)
	}
	return d, nil
}

func describeType(t models.AuctionType) string {
	switch t {
	case models.FirstPrice:
		return "first-price"
	case models.SecondPrice:
		return "second-price"
	default:
		return string(t)
	}
}

func formatAmount(d *decimal.Decimal) string {
	if d == nil {
		return "-"
	}
	return d.StringFixed(2)
}

func (c *Client) printf(format string, args ...any) {
	fmt.Fprintf(c.out, format, args...)
}
