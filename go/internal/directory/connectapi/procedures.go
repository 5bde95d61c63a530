package connectapi

import (
	"github.com/mcdev12/planningroom/go/internal/directory"
	"github.com/mcdev12/planningroom/go/internal/models"
)

// ServiceName is the fully-qualified name of the room directory service.
const ServiceName = "planningroom.v1.RoomDirectoryService"

const (
	GetRoomInfoProcedure               = "/" + ServiceName + "/GetRoomInfo"
	CreateRoomProcedure                = "/" + ServiceName + "/CreateRoom"
	JoinRoomProcedure                  = "/" + ServiceName + "/JoinRoom"
	ReconnectToRoomProcedure           = "/" + ServiceName + "/ReconnectToRoom"
	LeaveRoomProcedure                 = "/" + ServiceName + "/LeaveRoom"
	CastVoteProcedure                  = "/" + ServiceName + "/CastVote"
	RevealVotesProcedure               = "/" + ServiceName + "/RevealVotes"
	ResetVotesProcedure                = "/" + ServiceName + "/ResetVotes"
	UpdateParticipantProfileProcedure  = "/" + ServiceName + "/UpdateParticipantProfile"
	UpdateParticipantLastSeenProcedure = "/" + ServiceName + "/UpdateParticipantLastSeen"
	UpdateRoomNameProcedure            = "/" + ServiceName + "/UpdateRoomName"
	ToggleAutoRevealProcedure          = "/" + ServiceName + "/ToggleAutoReveal"
	UpdateDeckTypeProcedure            = "/" + ServiceName + "/UpdateDeckType"
	KickParticipantProcedure           = "/" + ServiceName + "/KickParticipant"
	GetRoomWithParticipantsProcedure   = "/" + ServiceName + "/GetRoomWithParticipants"
)

type Empty struct{}

type RoomRequest struct {
	RoomID string `json:"room_id"`
}

type ParticipantRequest struct {
	RoomID        string `json:"room_id,omitempty"`
	ParticipantID string `json:"participant_id"`
}

type ReconnectResponse struct {
	Membership *directory.Membership `json:"membership,omitempty"`
}

type CastVoteRequest struct {
	ParticipantID string  `json:"participant_id"`
	Vote          *string `json:"vote,omitempty"`
}

type UpdateProfileRequest struct {
	ParticipantID string                  `json:"participant_id"`
	Update        directory.ProfileUpdate `json:"update"`
}

type UpdateRoomNameRequest struct {
	RoomID      string `json:"room_id"`
	Name        string `json:"name"`
	RequesterID string `json:"requester_id"`
}

type ToggleAutoRevealRequest struct {
	RoomID      string `json:"room_id"`
	Enabled     bool   `json:"enabled"`
	RequesterID string `json:"requester_id"`
}

type UpdateDeckTypeRequest struct {
	RoomID      string          `json:"room_id"`
	DeckType    models.DeckType `json:"deck_type"`
	RequesterID string          `json:"requester_id"`
}

type KickParticipantRequest struct {
	RoomID      string `json:"room_id"`
	TargetID    string `json:"target_id"`
	RequesterID string `json:"requester_id"`
}
