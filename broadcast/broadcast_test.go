package broadcast

import (
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/wfunc/soccerserver/models"
	"github.com/wfunc/soccerserver/network"
	"github.com/wfunc/soccerserver/session"
)

type sentPacket struct {
	msgID uint16
	data  []byte
}

// MockConnection records packets; fail makes every Send error out.
type MockConnection struct {
	mu   sync.Mutex
	sent []sentPacket
	fail bool
}

func (m *MockConnection) Send(msgID uint16, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return network.ErrSendQueueFull
	}
	m.sent = append(m.sent, sentPacket{msgID, data})
	return nil
}
func (m *MockConnection) Close() error                         { return nil }
func (m *MockConnection) RemoteAddr() net.Addr                 { return &net.TCPAddr{} }
func (m *MockConnection) SetHeartbeat(interval time.Duration)  {}
func (m *MockConnection) ReadPacket() (*network.Packet, error) { return nil, nil }

func testSnapshot() *models.GameStateSnapshot {
	return &models.GameStateSnapshot{
		RoomID:  "room-1",
		Width:   800,
		Height:  600,
		Players: map[string]models.PlayerView{"a": {X: 1, Y: 2, Team: models.TeamRed}},
		Phase:   models.PhaseWaiting,
	}
}

func TestRoomBroadcaster_Publish(t *testing.T) {
	sessions := session.NewManager()
	inRoom := &MockConnection{}
	otherRoom := &MockConnection{}

	a := session.NewSession("a", inRoom)
	a.SetRoomID("room-1")
	b := session.NewSession("b", otherRoom)
	b.SetRoomID("room-2")
	sessions.Add(a)
	sessions.Add(b)

	bc := NewRoomBroadcaster(sessions, network.JSONCodec{})
	require.NoError(t, bc.Publish("room-1", testSnapshot()))

	require.Len(t, inRoom.sent, 1)
	assert.Equal(t, uint16(network.MsgTypeGameState), inRoom.sent[0].msgID)
	assert.Contains(t, string(inRoom.sent[0].data), `"roomId":"room-1"`)
	assert.Empty(t, otherRoom.sent)
}

func TestRoomBroadcaster_SlowClientDoesNotStopOthers(t *testing.T) {
	sessions := session.NewManager()
	slow := &MockConnection{fail: true}
	ok := &MockConnection{}
	for id, c := range map[string]*MockConnection{"slow": slow, "ok": ok} {
		s := session.NewSession(id, c)
		s.SetRoomID("room-1")
		sessions.Add(s)
	}

	bc := NewRoomBroadcaster(sessions, network.MsgPackCodec{})
	err := bc.Publish("room-1", testSnapshot())
	assert.Error(t, err)
	assert.Len(t, ok.sent, 1)
}

type fakeNATS struct {
	subjects []string
	payloads [][]byte
	err      error
	drained  bool
}

func (f *fakeNATS) Publish(subject string, data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.subjects = append(f.subjects, subject)
	f.payloads = append(f.payloads, data)
	return nil
}

func (f *fakeNATS) Drain() error {
	f.drained = true
	return nil
}

func TestNATSPublisher(t *testing.T) {
	conn := &fakeNATS{}
	p := newNATSPublisher(conn, "")

	require.NoError(t, p.Publish("room-1", testSnapshot()))
	assert.Equal(t, []string{"soccer.rooms.room-1.state"}, conn.subjects)

	var got models.GameStateSnapshot
	require.NoError(t, msgpack.Unmarshal(conn.payloads[0], &got))
	assert.Equal(t, "room-1", got.RoomID)

	conn.err = errors.New("nats: connection closed")
	assert.ErrorIs(t, p.Publish("room-1", testSnapshot()), conn.err)

	require.NoError(t, p.Close())
	assert.True(t, conn.drained)
}

type countingPublisher struct {
	calls int
	err   error
}

func (c *countingPublisher) Publish(string, *models.GameStateSnapshot) error {
	c.calls++
	return c.err
}

func TestMultiTriesEveryPublisher(t *testing.T) {
	boom := errors.New("boom")
	a := &countingPublisher{err: boom}
	b := &countingPublisher{}

	err := Multi{a, b}.Publish("room-1", testSnapshot())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, a.calls)
	assert.Equal(t, 1, b.calls)
	assert.NoError(t, Multi{b}.Publish("room-1", testSnapshot()))
}
