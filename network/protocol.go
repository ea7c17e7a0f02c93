package network

import "github.com/wfunc/soccerserver/models"

const (
	MsgTypeHeartbeat = 1

	// client -> server
	MsgTypeJoinRoom  = 101
	MsgTypeLeaveRoom = 102
	MsgTypeReady     = 103
	MsgTypeInput     = 201
	MsgTypeInputBits = 202

	// server -> client
	MsgTypeJoined    = 301
	MsgTypeRoomFull  = 302
	MsgTypeGameState = 303
	MsgTypeError     = 304
)

// JoinRequest asks for a room by id; an empty id means any room with space.
type JoinRequest struct {
	RoomID string `json:"roomId,omitempty" msgpack:"roomId,omitempty"`
	Token  string `json:"token,omitempty" msgpack:"token,omitempty"`
}

type JoinedMessage struct {
	RoomID   string      `json:"roomId" msgpack:"roomId"`
	SocketID string      `json:"socketId" msgpack:"socketId"`
	Team     models.Team `json:"team" msgpack:"team"`
	Capacity int         `json:"capacity" msgpack:"capacity"`
}

type RoomFullMessage struct {
	RoomID   string `json:"roomId" msgpack:"roomId"`
	Capacity int    `json:"capacity" msgpack:"capacity"`
}

type ErrorMessage struct {
	Message string `json:"message" msgpack:"message"`
}
