package gateway

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/NicolaBuomp/fantabid/go/internal/auction"
	"github.com/NicolaBuomp/fantabid/go/internal/models"
)

const testSecret = "test-jwt-secret"

// ------------------------
// Fake Engine
// ------------------------

type leaveCall struct {
	LeagueID     uuid.UUID
	MemberID     uuid.UUID
	ConnectionID string
}

// FakeEngine records calls. Unset funcs succeed with zero values.
type FakeEngine struct {
	mu     sync.Mutex
	Leaves []leaveCall
	Bids   []float64
	Pulses int

	JoinFunc      func(ctx context.Context, leagueID, userID uuid.UUID, connectionID string) (auction.JoinResult, error)
	PlaceBidFunc  func(ctx context.Context, leagueID, memberID uuid.UUID, amount float64) auction.BidResult
	StartItemFunc func(ctx context.Context, leagueID, memberID uuid.UUID, playerID *int64) (models.AuctionPlayer, error)
	PauseFunc     func(ctx context.Context, leagueID, memberID uuid.UUID) error
	SkipFunc      func(ctx context.Context, leagueID, memberID uuid.UUID) error
	RollbackFunc  func(ctx context.Context, leagueID, memberID uuid.UUID) (auction.RollbackResult, error)
}

func (f *FakeEngine) Join(ctx context.Context, leagueID, userID uuid.UUID, connectionID string) (auction.JoinResult, error) {
	if f.JoinFunc != nil {
		return f.JoinFunc(ctx, leagueID, userID, connectionID)
	}
	return auction.JoinResult{MemberID: uuid.New()}, nil
}

func (f *FakeEngine) Leave(leagueID, memberID uuid.UUID, connectionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Leaves = append(f.Leaves, leaveCall{leagueID, memberID, connectionID})
}

func (f *FakeEngine) PlaceBid(ctx context.Context, leagueID, memberID uuid.UUID, amount float64) auction.BidResult {
	f.mu.Lock()
	f.Bids = append(f.Bids, amount)
	f.mu.Unlock()
	if f.PlaceBidFunc != nil {
		return f.PlaceBidFunc(ctx, leagueID, memberID, amount)
	}
	return auction.BidResult{Amount: int(amount)}
}

func (f *FakeEngine) StartItem(ctx context.Context, leagueID, memberID uuid.UUID, playerID *int64) (models.AuctionPlayer, error) {
	if f.StartItemFunc != nil {
		return f.StartItemFunc(ctx, leagueID, memberID, playerID)
	}
	return models.AuctionPlayer{}, nil
}

func (f *FakeEngine) Pause(ctx context.Context, leagueID, memberID uuid.UUID) error {
	if f.PauseFunc != nil {
		return f.PauseFunc(ctx, leagueID, memberID)
	}
	return nil
}

func (f *FakeEngine) Resume(context.Context, uuid.UUID, uuid.UUID) error { return nil }

func (f *FakeEngine) Skip(ctx context.Context, leagueID, memberID uuid.UUID) error {
	if f.SkipFunc != nil {
		return f.SkipFunc(ctx, leagueID, memberID)
	}
	return nil
}

func (f *FakeEngine) Rollback(ctx context.Context, leagueID, memberID uuid.UUID) (auction.RollbackResult, error) {
	if f.RollbackFunc != nil {
		return f.RollbackFunc(ctx, leagueID, memberID)
	}
	return auction.RollbackResult{Success: true}, nil
}

func (f *FakeEngine) Heartbeat(context.Context, uuid.UUID, uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Pulses++
	return nil
}

func (f *FakeEngine) leaves() []leaveCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]leaveCall(nil), f.Leaves...)
}

func (f *FakeEngine) bids() []float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]float64(nil), f.Bids...)
}

// ------------------------
// Helpers
// ------------------------

func signToken(t *testing.T, secret string, claims jwt.Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func userToken(t *testing.T, userID uuid.UUID) string {
	t.Helper()
	return signToken(t, testSecret, jwt.RegisteredClaims{
		Subject:   userID.String(),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
}

// inbound is an outbound event as the client sees it.
type inbound struct {
	Type     string          `json:"type"`
	LeagueID uuid.UUID       `json:"leagueId"`
	Data     json.RawMessage `json:"data"`
}

type socketServer struct {
	engine  *FakeEngine
	manager *ConnectionManager
	server  *httptest.Server
}

func newSocketServer(t *testing.T, engine *FakeEngine, cfg ConnectionConfig) *socketServer {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	auth := NewAuthenticator(testSecret, 0)
	cm := NewConnectionManager(cfg, nil)
	go cm.Start(ctx)

	ws := NewWebSocketHandler(cm, NewDispatcher(ctx, engine, auth), auth)
	srv := httptest.NewServer(NewRouter(RouterConfig{WebSocket: ws}))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return &socketServer{engine: engine, manager: cm, server: srv}
}

func (s *socketServer) url() string {
	return "ws" + strings.TrimPrefix(s.server.URL, "http") + "/ws/auction"
}

func (s *socketServer) dial(t *testing.T, userID uuid.UUID) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(s.url()+"?token="+userToken(t, userID), nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, typ string, data any) {
	t.Helper()
	msg := map[string]any{"type": typ}
	if data != nil {
		msg["data"] = data
	}
	require.NoError(t, conn.WriteJSON(msg))
}

func receive(t *testing.T, conn *websocket.Conn) inbound {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg inbound
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func decodeInto[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}
