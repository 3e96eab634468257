package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/NicolaBuomp/fantabid/go/internal/auction"
)

const (
	AuctionServiceName = "fantabid.auction.v1.AuctionService"

	GetRoomStateProcedure = "/" + AuctionServiceName + "/GetRoomState"
	ListRoomsProcedure    = "/" + AuctionServiceName + "/ListRooms"
)

// jsonCodec lets the service exchange plain Go structs over the Connect
// protocol without generated protobuf types.
type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

// RoomReader exposes read-only views of live rooms.
type RoomReader interface {
	State(leagueID uuid.UUID) (auction.RoomSnapshot, bool)
	LiveRooms() []uuid.UUID
}

type GetRoomStateRequest struct {
	LeagueID string `json:"leagueId"`
}

type GetRoomStateResponse struct {
	State auction.RoomSnapshot `json:"state"`
}

type ListRoomsRequest struct{}

type RoomSummary struct {
	LeagueID    uuid.UUID `json:"leagueId"`
	Status      string    `json:"status"`
	IsPaused    bool      `json:"isPaused"`
	BidCount    int       `json:"bidCount"`
	CurrentItem *int64    `json:"currentPlayerId,omitempty"`
	Connected   int       `json:"connectedMembers"`
	Members     int       `json:"members"`
}

type ListRoomsResponse struct {
	Rooms []RoomSummary `json:"rooms"`
}

// AuctionService answers read-only questions about live rooms for
// operators and dashboards.
type AuctionService struct {
	rooms RoomReader
}

func NewAuctionService(rooms RoomReader) *AuctionService {
	return &AuctionService{rooms: rooms}
}

func (s *AuctionService) GetRoomState(ctx context.Context, req *connect.Request[GetRoomStateRequest]) (*connect.Response[GetRoomStateResponse], error) {
	leagueID, err := uuid.Parse(req.Msg.LeagueID)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("leagueId must be a UUID"))
	}
	state, ok := s.rooms.State(leagueID)
	if !ok {
		return nil, connect.NewError(connect.CodeNotFound, errors.New(string(auction.CodeRoomNotFound)))
	}
	return connect.NewResponse(&GetRoomStateResponse{State: state}), nil
}

func (s *AuctionService) ListRooms(ctx context.Context, req *connect.Request[ListRoomsRequest]) (*connect.Response[ListRoomsResponse], error) {
	res := &ListRoomsResponse{Rooms: []RoomSummary{}}
	for _, leagueID := range s.rooms.LiveRooms() {
		state, ok := s.rooms.State(leagueID)
		if !ok {
			continue
		}
		summary := RoomSummary{
			LeagueID: leagueID,
			Status:   string(state.Status),
			IsPaused: state.IsPaused,
			BidCount: state.BidCount,
			Members:  len(state.Members),
		}
		if state.CurrentPlayer != nil {
			id := state.CurrentPlayer.ID
			summary.CurrentItem = &id
		}
		for _, m := range state.Members {
			if m.Connected {
				summary.Connected++
			}
		}
		res.Rooms = append(res.Rooms, summary)
	}
	sort.Slice(res.Rooms, func(i, j int) bool {
		return res.Rooms[i].LeagueID.String() < res.Rooms[j].LeagueID.String()
	})
	return connect.NewResponse(res), nil
}

func loggingInterceptor() connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			res, err := next(ctx, req)
			if err != nil {
				log.Debug().Err(err).Str("procedure", req.Spec().Procedure).Msg("rpc failed")
			}
			return res, err
		}
	}
}

// NewAuctionServiceHandler mounts the service the way generated Connect
// handlers do: it returns the path prefix and a handler for it.
func NewAuctionServiceHandler(svc *AuctionService, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{
		connect.WithCodec(jsonCodec{}),
		connect.WithInterceptors(loggingInterceptor()),
	}, opts...)

	getRoomState := connect.NewUnaryHandler(GetRoomStateProcedure, svc.GetRoomState, opts...)
	listRooms := connect.NewUnaryHandler(ListRoomsProcedure, svc.ListRooms, opts...)

	return "/" + AuctionServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case GetRoomStateProcedure:
			getRoomState.ServeHTTP(w, r)
		case ListRoomsProcedure:
			listRooms.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}

// NewAuctionServiceClient calls the service over the Connect protocol.
func NewAuctionServiceClient(httpClient connect.HTTPClient, baseURL string) *AuctionServiceClient {
	return &AuctionServiceClient{
		getRoomState: connect.NewClient[GetRoomStateRequest, GetRoomStateResponse](httpClient, baseURL+GetRoomStateProcedure, connect.WithCodec(jsonCodec{})),
		listRooms:    connect.NewClient[ListRoomsRequest, ListRoomsResponse](httpClient, baseURL+ListRoomsProcedure, connect.WithCodec(jsonCodec{})),
	}
}

type AuctionServiceClient struct {
	getRoomState *connect.Client[GetRoomStateRequest, GetRoomStateResponse]
	listRooms    *connect.Client[ListRoomsRequest, ListRoomsResponse]
}

func (c *AuctionServiceClient) GetRoomState(ctx context.Context, leagueID uuid.UUID) (auction.RoomSnapshot, error) {
	res, err := c.getRoomState.CallUnary(ctx, connect.NewRequest(&GetRoomStateRequest{LeagueID: leagueID.String()}))
	if err != nil {
		return auction.RoomSnapshot{}, err
	}
	return res.Msg.State, nil
}

func (c *AuctionServiceClient) ListRooms(ctx context.Context) ([]RoomSummary, error) {
	res, err := c.listRooms.CallUnary(ctx, connect.NewRequest(&ListRoomsRequest{}))
	if err != nil {
		return nil, err
	}
	return res.Msg.Rooms, nil
}
