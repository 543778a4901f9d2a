package integrationtests

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"auctioneer/internal/config"
	"auctioneer/internal/models"
	"auctioneer/internal/protocol"
	"auctioneer/internal/server"
	"auctioneer/utils"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
	utils.SetLogOutput(io.Discard)
}

type fakeClock interface {
	clockwork.Clock
	Advance(d time.Duration)
}

// TestServer is a running auction server on loopback ports
type TestServer struct {
	srv    *server.Server
	clock  fakeClock
	codec  protocol.Codec
	errCh  chan error
	cancel context.CancelFunc
}

// StartTestServer binds the participant port and the status API on random
// loopback ports and runs the server in the background
func StartTestServer(t *testing.T, codecName string, maxBuyers int) *TestServer {
	t.Helper()
	codec, err := protocol.NewCodec(codecName)
	require.NoError(t, err)

	clock := clockwork.NewFakeClock()
	srv, err := server.New(config.ServerConfig{
		Port:            0,
		HTTPAddr:        "127.0.0.1:0",
		Codec:           codecName,
		MaxBuyers:       maxBuyers,
		ShutdownTimeout: 2 * time.Second,
		OutboxSize:      32,
		LogLevel:        "info",
	}, server.WithClock(clock))
	require.NoError(t, err)
	require.NoError(t, srv.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	ts := &TestServer{srv: srv, clock: clock, codec: codec, errCh: make(chan error, 1), cancel: cancel}
	go func() { ts.errCh <- srv.Run(ctx) }()
	t.Cleanup(cancel)
	return ts
}

// Addr is the loopback address participants dial
func (ts *TestServer) Addr() string {
	return fmt.Sprintf("127.0.0.1:%d", ts.srv.Addr().(*net.TCPAddr).Port)
}

// WaitExit waits for Run to return after the auction resolved
func (ts *TestServer) WaitExit(t *testing.T) {
	t.Helper()
	select {
	case err := <-ts.errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not exit after the auction")
	}
}

// Result is the outcome recorded by the coordinator
func (ts *TestServer) Result(t *testing.T) models.Result {
	t.Helper()
	result, err := ts.srv.Coordinator().Result()
	require.NoError(t, err)
	return result
}

// GetJSON calls the status API and decodes the envelope
func (ts *TestServer) GetJSON(t *testing.T, path string) (int, map[string]any) {
	t.Helper()
	client := http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get("http://" + ts.srv.HTTPAddr().String() + path)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

// Participant is a raw protocol connection
type Participant struct {
	ID   string
	Role models.Role
	conn net.Conn
	enc  protocol.Encoder
	dec  protocol.Decoder
}

// Connect dials the server and consumes the role assignment
func (ts *TestServer) Connect(t *testing.T) *Participant {
	t.Helper()
	p := ts.Dial(t)
	hello := p.Expect(t, protocol.TypeRoleAssign)
	p.ID, p.Role = hello.ParticipantID, hello.Role
	return p
}

// Dial opens a connection without reading anything
func (ts *TestServer) Dial(t *testing.T) *Participant {
	t.Helper()
	conn, err := net.DialTimeout("tcp", ts.Addr(), 2*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &Participant{conn: conn, enc: ts.codec.NewEncoder(conn), dec: ts.codec.NewDecoder(conn)}
}

func (p *Participant) Send(t *testing.T, msg protocol.Message) {
	t.Helper()
	require.NoError(t, p.enc.Encode(msg))
}

func (p *Participant) Recv(t *testing.T) protocol.Message {
	t.Helper()
	require.NoError(t, p.conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var msg protocol.Message
	require.NoError(t, p.dec.Decode(&msg))
	return msg
}

// Expect reads the next message and checks its type
func (p *Participant) Expect(t *testing.T, want protocol.Type) protocol.Message {
	t.Helper()
	msg := p.Recv(t)
	require.Equal(t, want, msg.Type, "unexpected message %+v", msg)
	return msg
}

// ExpectHangUp checks the server closed the connection
func (p *Participant) ExpectHangUp(t *testing.T) {
	t.Helper()
	require.NoError(t, p.conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var msg protocol.Message
	require.Error(t, p.dec.Decode(&msg), "expected hang-up, got %+v", msg)
}

// OpenAuction has the seller submit spec and waits for the acknowledgment
func OpenAuction(t *testing.T, seller *Participant, auctionType models.AuctionType, startPrice int64, d time.Duration) {
	t.Helper()
	seller.Send(t, protocol.CreateAuction(models.AuctionSpec{
		Item:       "Vintage Lamp",
		StartPrice: decimal.NewFromInt(startPrice),
		Type:       auctionType,
		Duration:   d,
	}))
	seller.Expect(t, protocol.TypeAck)
}
