package broadcast

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/wfunc/soccerserver/logger"
	"github.com/wfunc/soccerserver/models"
	"github.com/wfunc/soccerserver/network"
)

// natsConn is the part of *nats.Conn the publisher uses.
type natsConn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// NATSPublisher mirrors snapshots onto <prefix>.<roomId>.state for out-of-process consumers
// (spectators, replays). nats.Conn buffers publishes, so Publish never waits on the server.
type NATSPublisher struct {
	conn   natsConn
	prefix string
	codec  network.Codec
}

// NewNATSPublisher 连接 NATS, reconnecting forever in the background.
func NewNATSPublisher(url, prefix string) (*NATSPublisher, error) {
	conn, err := nats.Connect(
		url,
		nats.Name("soccer-engine"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Log.Warnf("nats disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Log.Infof("nats reconnected to %s", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return newNATSPublisher(conn, prefix), nil
}

func newNATSPublisher(conn natsConn, prefix string) *NATSPublisher {
	if prefix == "" {
		prefix = "soccer.rooms"
	}
	return &NATSPublisher{conn: conn, prefix: prefix, codec: network.MsgPackCodec{}}
}

func (p *NATSPublisher) Subject(roomID string) string {
	return p.prefix + "." + roomID + ".state"
}

func (p *NATSPublisher) Publish(roomID string, snap *models.GameStateSnapshot) error {
	data, err := p.codec.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := p.conn.Publish(p.Subject(roomID), data); err != nil {
		return fmt.Errorf("nats publish %s: %w", roomID, err)
	}
	return nil
}

// Close flushes buffered snapshots and closes the connection.
func (p *NATSPublisher) Close() error {
	return p.conn.Drain()
}
