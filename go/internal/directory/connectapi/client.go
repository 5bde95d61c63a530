package connectapi

import (
	"context"
	"strings"

	"connectrpc.com/connect"

	"github.com/mcdev12/planningroom/go/internal/directory"
	"github.com/mcdev12/planningroom/go/internal/models"
)

// Client is a Directory backed by a remote RoomDirectoryService.
type Client struct {
	getRoomInfo               *connect.Client[RoomRequest, directory.RoomInfo]
	createRoom                *connect.Client[directory.CreateRoomRequest, directory.Membership]
	joinRoom                  *connect.Client[directory.JoinRoomRequest, directory.Membership]
	reconnectToRoom           *connect.Client[ParticipantRequest, ReconnectResponse]
	leaveRoom                 *connect.Client[ParticipantRequest, Empty]
	castVote                  *connect.Client[CastVoteRequest, Empty]
	revealVotes               *connect.Client[RoomRequest, Empty]
	resetVotes                *connect.Client[RoomRequest, Empty]
	updateParticipantProfile  *connect.Client[UpdateProfileRequest, Empty]
	updateParticipantLastSeen *connect.Client[ParticipantRequest, Empty]
	updateRoomName            *connect.Client[UpdateRoomNameRequest, Empty]
	toggleAutoReveal          *connect.Client[ToggleAutoRevealRequest, Empty]
	updateDeckType            *connect.Client[UpdateDeckTypeRequest, Empty]
	kickParticipant           *connect.Client[KickParticipantRequest, Empty]
	getRoomWithParticipants   *connect.Client[RoomRequest, models.Room]
}

var _ directory.Directory = (*Client)(nil)

// NewClient creates a directory client for the service at baseURL.
func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(jsonCodec{})}, opts...)
	return &Client{
		getRoomInfo:               connect.NewClient[RoomRequest, directory.RoomInfo](httpClient, baseURL+GetRoomInfoProcedure, opts...),
		createRoom:                connect.NewClient[directory.CreateRoomRequest, directory.Membership](httpClient, baseURL+CreateRoomProcedure, opts...),
		joinRoom:                  connect.NewClient[directory.JoinRoomRequest, directory.Membership](httpClient, baseURL+JoinRoomProcedure, opts...),
		reconnectToRoom:           connect.NewClient[ParticipantRequest, ReconnectResponse](httpClient, baseURL+ReconnectToRoomProcedure, opts...),
		leaveRoom:                 connect.NewClient[ParticipantRequest, Empty](httpClient, baseURL+LeaveRoomProcedure, opts...),
		castVote:                  connect.NewClient[CastVoteRequest, Empty](httpClient, baseURL+CastVoteProcedure, opts...),
		revealVotes:               connect.NewClient[RoomRequest, Empty](httpClient, baseURL+RevealVotesProcedure, opts...),
		resetVotes:                connect.NewClient[RoomRequest, Empty](httpClient, baseURL+ResetVotesProcedure, opts...),
		updateParticipantProfile:  connect.NewClient[UpdateProfileRequest, Empty](httpClient, baseURL+UpdateParticipantProfileProcedure, opts...),
		updateParticipantLastSeen: connect.NewClient[ParticipantRequest, Empty](httpClient, baseURL+UpdateParticipantLastSeenProcedure, opts...),
		updateRoomName:            connect.NewClient[UpdateRoomNameRequest, Empty](httpClient, baseURL+UpdateRoomNameProcedure, opts...),
		toggleAutoReveal:          connect.NewClient[ToggleAutoRevealRequest, Empty](httpClient, baseURL+ToggleAutoRevealProcedure, opts...),
		updateDeckType:            connect.NewClient[UpdateDeckTypeRequest, Empty](httpClient, baseURL+UpdateDeckTypeProcedure, opts...),
		kickParticipant:           connect.NewClient[KickParticipantRequest, Empty](httpClient, baseURL+KickParticipantProcedure, opts...),
		getRoomWithParticipants:   connect.NewClient[RoomRequest, models.Room](httpClient, baseURL+GetRoomWithParticipantsProcedure, opts...),
	}
}

func call[Req, Res any](ctx context.Context, c *connect.Client[Req, Res], req *Req) (*Res, error) {
	res, err := c.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, fromConnectError(err)
	}
	return res.Msg, nil
}

func (c *Client) GetRoomInfo(ctx context.Context, roomID string) (*directory.RoomInfo, error) {
	return call(ctx, c.getRoomInfo, &RoomRequest{RoomID: roomID})
}

func (c *Client) CreateRoom(ctx context.Context, req directory.CreateRoomRequest) (*directory.Membership, error) {
	return call(ctx, c.createRoom, &req)
}

func (c *Client) JoinRoom(ctx context.Context, req directory.JoinRoomRequest) (*directory.Membership, error) {
	return call(ctx, c.joinRoom, &req)
}

func (c *Client) ReconnectToRoom(ctx context.Context, roomID, participantID string) (*directory.Membership, error) {
	res, err := call(ctx, c.reconnectToRoom, &ParticipantRequest{RoomID: roomID, ParticipantID: participantID})
	if err != nil {
		return nil, err
	}
	return res.Membership, nil
}

func (c *Client) LeaveRoom(ctx context.Context, roomID, participantID string) error {
	_, err := call(ctx, c.leaveRoom, &ParticipantRequest{RoomID: roomID, ParticipantID: participantID})
	return err
}

func (c *Client) CastVote(ctx context.Context, participantID string, vote *string) error {
	_, err := call(ctx, c.castVote, &CastVoteRequest{ParticipantID: participantID, Vote: vote})
	return err
}

func (c *Client) RevealVotes(ctx context.Context, roomID string) error {
	_, err := call(ctx, c.revealVotes, &RoomRequest{RoomID: roomID})
	return err
}

func (c *Client) ResetVotes(ctx context.Context, roomID string) error {
	_, err := call(ctx, c.resetVotes, &RoomRequest{RoomID: roomID})
	return err
}

func (c *Client) UpdateParticipantProfile(ctx context.Context, participantID string, update directory.ProfileUpdate) error {
	_, err := call(ctx, c.updateParticipantProfile, &UpdateProfileRequest{ParticipantID: participantID, Update: update})
	return err
}

func (c *Client) UpdateParticipantLastSeen(ctx context.Context, participantID string) error {
	_, err := call(ctx, c.updateParticipantLastSeen, &ParticipantRequest{ParticipantID: participantID})
	return err
}

func (c *Client) UpdateRoomName(ctx context.Context, roomID, name, requesterID string) error {
	_, err := call(ctx, c.updateRoomName, &UpdateRoomNameRequest{RoomID: roomID, Name: name, RequesterID: requesterID})
	return err
}

func (c *Client) ToggleAutoReveal(ctx context.Context, roomID string, enabled bool, requesterID string) error {
	_, err := call(ctx, c.toggleAutoReveal, &ToggleAutoRevealRequest{RoomID: roomID, Enabled: enabled, RequesterID: requesterID})
	return err
}

func (c *Client) UpdateDeckType(ctx context.Context, roomID string, deckType models.DeckType, requesterID string) error {
	_, err := call(ctx, c.updateDeckType, &UpdateDeckTypeRequest{RoomID: roomID, DeckType: deckType, RequesterID: requesterID})
	return err
}

func (c *Client) KickParticipant(ctx context.Context, roomID, targetID, requesterID string) error {
	_, err := call(ctx, c.kickParticipant, &KickParticipantRequest{RoomID: roomID, TargetID: targetID, RequesterID: requesterID})
	return err
}

func (c *Client) GetRoomWithParticipants(ctx context.Context, roomID string) (*models.Room, error) {
	return call(ctx, c.getRoomWithParticipants, &RoomRequest{RoomID: roomID})
}
