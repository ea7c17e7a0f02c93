package rpc

import (
	"context"
	"time"

	"github.com/wfunc/soccerserver/models"
	"github.com/wfunc/soccerserver/room"
	"github.com/wfunc/soccerserver/services"
)

// DirectoryServiceName is the name clients use in calls, e.g. "Directory.FindAvailable".
const DirectoryServiceName = "Directory"

// DirectoryService exposes room discovery over net/rpc. Methods follow the net/rpc
// signature: exported args, pointer reply, error result.
type DirectoryService struct {
	registry      *room.Registry
	playerService *services.PlayerService
}

// NewDirectoryService creates a new DirectoryService. playerService may be nil.
func NewDirectoryService(registry *room.Registry, playerService *services.PlayerService) *DirectoryService {
	return &DirectoryService{registry: registry, playerService: playerService}
}

type RoomArgs struct {
	RoomID string
}

// ListArgs limits List; zero means every room.
type ListArgs struct {
	Limit int
}

type RoomInfo struct {
	RoomID   string
	Players  int
	Capacity int
	Phase    models.Phase
}

type ListReply struct {
	Rooms []RoomInfo
}

type GetPlayerArgs struct {
	UserID int64
}

func roomInfo(r *room.Room) RoomInfo {
	return RoomInfo{RoomID: r.ID, Players: r.PlayerCount(), Capacity: r.Capacity(), Phase: r.Phase()}
}

func (d *DirectoryService) FindOrCreate(args *RoomArgs, reply *RoomInfo) error {
	*reply = roomInfo(d.registry.FindOrCreate(args.RoomID))
	return nil
}

// FindAvailable ignores args.RoomID and answers with the oldest room that has space.
func (d *DirectoryService) FindAvailable(_ *RoomArgs, reply *RoomInfo) error {
	r := d.registry.FindOrCreate(d.registry.FindAvailable())
	*reply = roomInfo(r)
	return nil
}

// Snapshot returns the current state of an existing room.
func (d *DirectoryService) Snapshot(args *RoomArgs, reply *models.GameStateSnapshot) error {
	r, ok := d.registry.Get(room.SanitizeRoomID(args.RoomID))
	if !ok {
		return room.ErrUnknownRoom
	}
	*reply = *r.Snapshot()
	return nil
}

func (d *DirectoryService) List(args *ListArgs, reply *ListReply) error {
	rooms := d.registry.Rooms()
	if args.Limit > 0 && len(rooms) > args.Limit {
		rooms = rooms[:args.Limit]
	}
	reply.Rooms = make([]RoomInfo, 0, len(rooms))
	for _, r := range rooms {
		reply.Rooms = append(reply.Rooms, roomInfo(r))
	}
	return nil
}

// GetPlayerWithStats returns the lifetime stats of a registered user.
func (d *DirectoryService) GetPlayerWithStats(args *GetPlayerArgs, reply *models.UserStats) error {
	if d.playerService == nil {
		return services.ErrStatsUnavailable
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	stats, err := d.playerService.GetPlayerWithStats(ctx, args.UserID)
	if err != nil {
		return err
	}
	*reply = *stats
	return nil
}
