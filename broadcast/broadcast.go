// broadcast/broadcast.go
package broadcast

import (
	"errors"
	"fmt"

	"github.com/wfunc/soccerserver/logger"
	"github.com/wfunc/soccerserver/models"
	"github.com/wfunc/soccerserver/network"
	"github.com/wfunc/soccerserver/session"
)

// Publisher hands a room snapshot to whoever is listening. Implementations must not block.
type Publisher interface {
	Publish(roomID string, snap *models.GameStateSnapshot) error
}

// 基于房间的广播器: sends snapshots to every websocket session joined to the room
type RoomBroadcaster struct {
	sessionManager *session.Manager
	codec          network.Codec
}

func NewRoomBroadcaster(sessionManager *session.Manager, codec network.Codec) *RoomBroadcaster {
	return &RoomBroadcaster{
		sessionManager: sessionManager,
		codec:          codec,
	}
}

func (b *RoomBroadcaster) Publish(roomID string, snap *models.GameStateSnapshot) error {
	data, err := b.codec.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return b.BroadcastToRoom(roomID, network.MsgTypeGameState, data)
}

// BroadcastToRoom sends a packet to every session in the room. A slow or closed
// connection loses the packet; the error reports how many sessions missed it.
func (b *RoomBroadcaster) BroadcastToRoom(roomID string, msgID uint16, data []byte) error {
	sessions := b.sessionManager.ListByRoom(roomID)

	failed := 0
	for _, s := range sessions {
		if err := s.Send(msgID, data); err != nil {
			// 处理发送错误, the read loop cleans the session up on disconnect
			failed++
			logger.Log.Debugf("room %s: send to %s failed: %v", roomID, s.GetID(), err)
		}
	}
	if failed > 0 {
		return fmt.Errorf("room %s: %d of %d sends failed", roomID, failed, len(sessions))
	}
	return nil
}

// Multi fans a snapshot out to several publishers. Every publisher is tried.
type Multi []Publisher

func (m Multi) Publish(roomID string, snap *models.GameStateSnapshot) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(roomID, snap); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
