package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"auctioneer/internal/auctionerrors"
	"auctioneer/internal/config"
	"auctioneer/internal/coordinator"
	"auctioneer/internal/models"
	"auctioneer/internal/protocol"
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

func testConfig() config.ServerConfig {
	return config.ServerConfig{
		Port:            0,
		Codec:           "json",
		ShutdownTimeout: 2 * time.Second,
		OutboxSize:      16,
		LogLevel:        "info",
	}
}

type participant struct {
	conn net.Conn
	enc  protocol.Encoder
	dec  protocol.Decoder
}

func connect(t *testing.T, addr net.Addr) *participant {
	t.Helper()
	port := addr.(*net.TCPAddr).Port
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", port), 2*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	codec := protocol.JSONCodec{}
	return &participant{conn: conn, enc: codec.NewEncoder(conn), dec: codec.NewDecoder(conn)}
}

func (p *participant) send(t *testing.T, msg protocol.Message) {
	t.Helper()
	require.NoError(t, p.enc.Encode(msg))
}

func (p *participant) recv(t *testing.T) protocol.Message {
	t.Helper()
	require.NoError(t, p.conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var msg protocol.Message
	require.NoError(t, p.dec.Decode(&msg))
	return msg
}

func startServer(t *testing.T, cfg config.ServerConfig, opts ...Option) (*Server, context.CancelFunc, <-chan error) {
	t.Helper()
	srv, err := New(cfg, opts...)
	require.NoError(t, err)
	require.NoError(t, srv.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run(ctx) }()
	t.Cleanup(cancel)
	return srv, cancel, errCh
}

func waitRun(t *testing.T, errCh <-chan error) {
	t.Helper()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestServer_RejectsUnknownCodec(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.Codec = "xml"
	_, err := New(cfg)
	require.Error(t, err)
}

func TestServer_BindFailure(t *testing.T) {
	t.Parallel()
	taken, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer taken.Close()

	cfg := testConfig()
	cfg.Port = taken.Addr().(*net.TCPAddr).Port
	srv, err := New(cfg)
	require.NoError(t, err)

	err = srv.Run(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "listen on")
}

func TestServer_DeadlineResolvesAndExits(t *testing.T) {
	t.Parallel()
	clock := clockwork.NewFakeClock()
	srv, _, errCh := startServer(t, testConfig(), WithClock(clock))

	seller := connect(t, srv.Addr())
	require.Equal(t, models.RoleSeller, seller.recv(t).Role)
	seller.send(t, protocol.CreateAuction(models.AuctionSpec{
		Item:       "Clock",
		StartPrice: decimal.NewFromInt(10),
		Type:       models.FirstPrice,
		Duration:   time.Minute,
	}))
	require.Equal(t, protocol.TypeAck, seller.recv(t).Type)

	buyer := connect(t, srv.Addr())
	require.Equal(t, models.RoleBuyer, buyer.recv(t).Role)
	require.Equal(t, protocol.TypeAuctionOpened, buyer.recv(t).Type)
	buyer.send(t, protocol.Bid(decimal.NewFromInt(12)))
	require.Equal(t, protocol.TypeBidAccepted, buyer.recv(t).Type)

	clock.Advance(time.Minute)

	closed := buyer.recv(t)
	require.Equal(t, protocol.TypeAuctionClosed, closed.Type)
	require.Equal(t, models.CloseDeadline, closed.CloseReason)
	require.True(t, closed.YouWon)
	require.True(t, decimal.NewFromInt(12).Equal(*closed.Price))
	require.Equal(t, protocol.TypeAuctionClosed, seller.recv(t).Type)

	waitRun(t, errCh)

	result, err := srv.Coordinator().Result()
	require.NoError(t, err)
	require.Equal(t, models.OutcomeSold, result.Outcome)
}

func TestServer_CancelNotifiesParticipants(t *testing.T) {
	t.Parallel()
	srv, cancel, errCh := startServer(t, testConfig())

	seller := connect(t, srv.Addr())
	require.Equal(t, models.RoleSeller, seller.recv(t).Role)

	cancel()
	notice := seller.recv(t)
	require.Equal(t, protocol.TypeErrorNotice, notice.Type)
	require.Equal(t, auctionerrors.ReasonShuttingDown, notice.Reason)
	waitRun(t, errCh)

	_, err := srv.Coordinator().Result()
	require.ErrorIs(t, err, auctionerrors.ErrNotResolved)
}

func TestSetupRouter(t *testing.T) {
	t.Parallel()
	coord := coordinator.New(coordinator.Config{Clock: clockwork.NewFakeClock()})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = coord.Run(ctx) }()

	router := SetupRouter(coord)

	tests := []struct {
		name       string
		path       string
		wantStatus int
	}{
		{name: "auction", path: "/auction", wantStatus: http.StatusOK},
		{name: "bids", path: "/auction/bids", wantStatus: http.StatusOK},
		{name: "result_before_resolution", path: "/auction/result", wantStatus: http.StatusNotFound},
		{name: "participants", path: "/participants", wantStatus: http.StatusOK},
		{name: "unknown_route", path: "/items", wantStatus: http.StatusNotFound},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tc.path, nil))
			require.Equal(t, tc.wantStatus, w.Code)
		})
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auction", nil))
	var resp struct {
		Data struct {
			Status string `json:"status"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, string(models.StatusAwaitingSeller), resp.Data.Status)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/items", nil))
	var notFound utils.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &notFound))
	require.Equal(t, http.StatusNotFound, notFound.Status)
	require.Equal(t, "route not found: /items", notFound.Message)
}
