package connectapi

import (
	"context"
	"net/http"

	"connectrpc.com/connect"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/planningroom/go/internal/directory"
	"github.com/mcdev12/planningroom/go/internal/models"
)

// NewRoomDirectoryServiceHandler exposes a Directory over connect. It returns the
// path to mount the handler on, like generated connect handlers do.
func NewRoomDirectoryServiceHandler(d directory.Directory, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(jsonCodec{})}, opts...)
	mux := http.NewServeMux()

	mux.Handle(GetRoomInfoProcedure, unary(GetRoomInfoProcedure, opts,
		func(ctx context.Context, req *RoomRequest) (*directory.RoomInfo, error) {
			return d.GetRoomInfo(ctx, req.RoomID)
		}))
	mux.Handle(CreateRoomProcedure, unary(CreateRoomProcedure, opts,
		func(ctx context.Context, req *directory.CreateRoomRequest) (*directory.Membership, error) {
			return d.CreateRoom(ctx, *req)
		}))
	mux.Handle(JoinRoomProcedure, unary(JoinRoomProcedure, opts,
		func(ctx context.Context, req *directory.JoinRoomRequest) (*directory.Membership, error) {
			return d.JoinRoom(ctx, *req)
		}))
	mux.Handle(ReconnectToRoomProcedure, unary(ReconnectToRoomProcedure, opts,
		func(ctx context.Context, req *ParticipantRequest) (*ReconnectResponse, error) {
			m, err := d.ReconnectToRoom(ctx, req.RoomID, req.ParticipantID)
			if err != nil {
				return nil, err
			}
			return &ReconnectResponse{Membership: m}, nil
		}))
	mux.Handle(LeaveRoomProcedure, unary(LeaveRoomProcedure, opts,
		func(ctx context.Context, req *ParticipantRequest) (*Empty, error) {
			return empty(d.LeaveRoom(ctx, req.RoomID, req.ParticipantID))
		}))
	mux.Handle(CastVoteProcedure, unary(CastVoteProcedure, opts,
		func(ctx context.Context, req *CastVoteRequest) (*Empty, error) {
			return empty(d.CastVote(ctx, req.ParticipantID, req.Vote))
		}))
	mux.Handle(RevealVotesProcedure, unary(RevealVotesProcedure, opts,
		func(ctx context.Context, req *RoomRequest) (*Empty, error) {
			return empty(d.RevealVotes(ctx, req.RoomID))
		}))
	mux.Handle(ResetVotesProcedure, unary(ResetVotesProcedure, opts,
		func(ctx context.Context, req *RoomRequest) (*Empty, error) {
			return empty(d.ResetVotes(ctx, req.RoomID))
		}))
	mux.Handle(UpdateParticipantProfileProcedure, unary(UpdateParticipantProfileProcedure, opts,
		func(ctx context.Context, req *UpdateProfileRequest) (*Empty, error) {
			return empty(d.UpdateParticipantProfile(ctx, req.ParticipantID, req.Update))
		}))
	mux.Handle(UpdateParticipantLastSeenProcedure, unary(UpdateParticipantLastSeenProcedure, opts,
		func(ctx context.Context, req *ParticipantRequest) (*Empty, error) {
			return empty(d.UpdateParticipantLastSeen(ctx, req.ParticipantID))
		}))
	mux.Handle(UpdateRoomNameProcedure, unary(UpdateRoomNameProcedure, opts,
		func(ctx context.Context, req *UpdateRoomNameRequest) (*Empty, error) {
			return empty(d.UpdateRoomName(ctx, req.RoomID, req.Name, req.RequesterID))
		}))
	mux.Handle(ToggleAutoRevealProcedure, unary(ToggleAutoRevealProcedure, opts,
		func(ctx context.Context, req *ToggleAutoRevealRequest) (*Empty, error) {
			return empty(d.ToggleAutoReveal(ctx, req.RoomID, req.Enabled, req.RequesterID))
		}))
	mux.Handle(UpdateDeckTypeProcedure, unary(UpdateDeckTypeProcedure, opts,
		func(ctx context.Context, req *UpdateDeckTypeRequest) (*Empty, error) {
			return empty(d.UpdateDeckType(ctx, req.RoomID, req.DeckType, req.RequesterID))
		}))
	mux.Handle(KickParticipantProcedure, unary(KickParticipantProcedure, opts,
		func(ctx context.Context, req *KickParticipantRequest) (*Empty, error) {
			return empty(d.KickParticipant(ctx, req.RoomID, req.TargetID, req.RequesterID))
		}))
	mux.Handle(GetRoomWithParticipantsProcedure, unary(GetRoomWithParticipantsProcedure, opts,
		func(ctx context.Context, req *RoomRequest) (*models.Room, error) {
			return d.GetRoomWithParticipants(ctx, req.RoomID)
		}))

	return "/" + ServiceName + "/", mux
}

func unary[Req, Res any](
	procedure string,
	opts []connect.HandlerOption,
	fn func(context.Context, *Req) (*Res, error),
) *connect.Handler {
	return connect.NewUnaryHandler(procedure,
		func(ctx context.Context, req *connect.Request[Req]) (*connect.Response[Res], error) {
			res, err := fn(ctx, req.Msg)
			if err != nil {
				cerr := toConnectError(err)
				if connect.CodeOf(cerr) == connect.CodeInternal {
					log.Error().Err(err).Str("procedure", procedure).Msg("directory call failed")
				}
				return nil, cerr
			}
			return connect.NewResponse(res), nil
		},
		opts...,
	)
}

func empty(err error) (*Empty, error) {
	if err != nil {
		return nil, err
	}
	return &Empty{}, nil
}
