package gateway

import (
	"context"
	"net/http/httptest"
	"testing"

	"connectrpc.com/connect"
	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NicolaBuomp/fantabid/go/internal/auction"
	"github.com/NicolaBuomp/fantabid/go/internal/models"
)

type fakeRooms map[uuid.UUID]auction.RoomSnapshot

func (f fakeRooms) State(leagueID uuid.UUID) (auction.RoomSnapshot, bool) {
	s, ok := f[leagueID]
	return s, ok
}

func (f fakeRooms) LiveRooms() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(f))
	for id := range f {
		ids = append(ids, id)
	}
	return ids
}

func TestAuctionService(t *testing.T) {
	ctx := context.Background()
	active := uuid.MustParse("11111111-1111-4111-8111-111111111111")
	idle := uuid.MustParse("22222222-2222-4222-8222-222222222222")
	leader := uuid.New()

	rooms := fakeRooms{
		active: {
			LeagueID:              active,
			Status:                models.AuctionStatusActive,
			CurrentPlayer:         &models.AuctionPlayer{ID: 10, Name: "Barella", Roles: []string{"C"}},
			CurrentBid:            12,
			HighestBidderMemberID: &leader,
			BidCount:              4,
			Members: []auction.MemberView{
				{MemberID: leader, Username: "alice", Connected: true},
				{MemberID: uuid.New(), Username: "bob"},
			},
		},
		idle: {LeagueID: idle, Status: models.AuctionStatusIdle, IsPaused: true},
	}

	srv := httptest.NewServer(NewRouter(RouterConfig{Rooms: rooms}))
	t.Cleanup(srv.Close)
	client := NewAuctionServiceClient(srv.Client(), srv.URL)

	t.Run("room state", func(t *testing.T) {
		state, err := client.GetRoomState(ctx, active)
		require.NoError(t, err)
		if diff := cmp.Diff(rooms[active], state); diff != "" {
			t.Errorf("GetRoomState() mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("room not live", func(t *testing.T) {
		_, err := client.GetRoomState(ctx, uuid.New())
		assert.Equal(t, connect.CodeNotFound, connect.CodeOf(err))
	})

	t.Run("bad league id", func(t *testing.T) {
		svc := NewAuctionService(rooms)
		_, err := svc.GetRoomState(ctx, connect.NewRequest(&GetRoomStateRequest{LeagueID: "x"}))
		assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))
	})

	t.Run("list rooms", func(t *testing.T) {
		got, err := client.ListRooms(ctx)
		require.NoError(t, err)
		playerID := int64(10)
		want := []RoomSummary{
			{LeagueID: active, Status: "ACTIVE", BidCount: 4, CurrentItem: &playerID, Connected: 1, Members: 2},
			{LeagueID: idle, Status: "IDLE", IsPaused: true},
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("ListRooms() mismatch (-want +got):\n%s", diff)
		}
	})
}
