package network

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var (
	ErrPacketTooLarge    = errors.New("packet too large")
	ErrMalformedPacket   = errors.New("malformed packet")
	ErrSendQueueFull     = errors.New("send queue full")
	ErrConnectionClosed  = errors.New("connection closed")
	DefaultSendQueueSize = 64
)

type Packet struct {
	MsgID  uint16
	Data   []byte
	Length uint16
}

type Connection interface {
	Send(msgID uint16, data []byte) error
	Close() error
	RemoteAddr() net.Addr
	SetHeartbeat(interval time.Duration)
	ReadPacket() (*Packet, error)
}

// EncodePacket 封包: 2字节消息ID + 2字节数据长度 + 数据
func EncodePacket(msgID uint16, data []byte) ([]byte, error) {
	if len(data) > math.MaxUint16 {
		return nil, ErrPacketTooLarge
	}
	packet := make([]byte, 4+len(data))
	binary.BigEndian.PutUint16(packet[0:2], msgID)
	binary.BigEndian.PutUint16(packet[2:4], uint16(len(data)))
	copy(packet[4:], data)
	return packet, nil
}

// DecodePacket 解包, the inverse of EncodePacket.
func DecodePacket(data []byte) (*Packet, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("%w: %d byte frame: %w", ErrMalformedPacket, len(data), io.ErrShortBuffer)
	}

	msgID := binary.BigEndian.Uint16(data[0:2])
	length := binary.BigEndian.Uint16(data[2:4])

	if len(data) < 4+int(length) {
		return nil, fmt.Errorf("%w: body %d of %d bytes: %w", ErrMalformedPacket, len(data)-4, length, io.ErrShortBuffer)
	}

	return &Packet{
		MsgID:  msgID,
		Length: length,
		Data:   data[4 : 4+int(length)],
	}, nil
}

// WSConnection writes through a bounded queue drained by its own goroutine,
// so Send never blocks on the network.
type WSConnection struct {
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	heartbeat time.Duration
}

func NewWSConnection(conn *websocket.Conn, queueSize int) *WSConnection {
	if queueSize <= 0 {
		queueSize = DefaultSendQueueSize
	}
	c := &WSConnection{
		conn: conn,
		send: make(chan []byte, queueSize),
		done: make(chan struct{}),
	}
	go c.writePump()
	return c
}

// Send queues a packet. A slow client whose queue is full loses the packet.
func (c *WSConnection) Send(msgID uint16, data []byte) error {
	packet, err := EncodePacket(msgID, data)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrConnectionClosed
	default:
	}
	select {
	case c.send <- packet:
		return nil
	case <-c.done:
		return ErrConnectionClosed
	default:
		return ErrSendQueueFull
	}
}

func (c *WSConnection) writePump() {
	for {
		select {
		case <-c.done:
			return
		case packet := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := c.conn.WriteMessage(websocket.BinaryMessage, packet); err != nil {
				c.Close()
				return
			}
		}
	}
}

// ReadPacket returns the next frame. An error wrapping ErrMalformedPacket only
// rejects that frame and the connection stays usable.
func (c *WSConnection) ReadPacket() (*Packet, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	if c.heartbeat > 0 {
		c.conn.SetReadDeadline(time.Now().Add(c.heartbeat * 2))
	}
	return DecodePacket(data)
}

func (c *WSConnection) SetHeartbeat(interval time.Duration) {
	c.heartbeat = interval
	c.conn.SetReadDeadline(time.Now().Add(interval * 2))
}

func (c *WSConnection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}

func (c *WSConnection) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}
