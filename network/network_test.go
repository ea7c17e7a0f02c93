package network

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/soccerserver/models"
)

func TestPacketFraming(t *testing.T) {
	raw, err := EncodePacket(MsgTypeInputBits, []byte{0x05})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0xCA, 0x00, 0x01, 0x05}, raw)

	p, err := DecodePacket(raw)
	require.NoError(t, err)
	assert.Equal(t, uint16(MsgTypeInputBits), p.MsgID)
	assert.Equal(t, []byte{0x05}, p.Data)

	_, err = DecodePacket([]byte{0, 1, 0, 9, 1})
	assert.ErrorIs(t, err, io.ErrShortBuffer)
	assert.ErrorIs(t, err, ErrMalformedPacket)
	_, err = DecodePacket([]byte{0, 1})
	assert.ErrorIs(t, err, io.ErrShortBuffer)
	assert.ErrorIs(t, err, ErrMalformedPacket)

	_, err = EncodePacket(1, make([]byte, 70000))
	assert.ErrorIs(t, err, ErrPacketTooLarge)
}

func TestCodecs(t *testing.T) {
	snap := &models.GameStateSnapshot{
		RoomID:  "room-1",
		Width:   800,
		Height:  600,
		Players: map[string]models.PlayerView{"p1": {X: 100, Y: 300, Team: models.TeamRed}},
		Score:   models.Score{Red: 1},
		Phase:   models.PhasePlaying,
	}

	for _, name := range []string{"json", "msgpack"} {
		c, err := CodecByName(name)
		require.NoError(t, err)
		assert.Equal(t, name, c.Name())

		data, err := c.Marshal(snap)
		require.NoError(t, err)
		var got models.GameStateSnapshot
		require.NoError(t, c.Unmarshal(data, &got))
		assert.Equal(t, snap.Players, got.Players)
		assert.Equal(t, models.PhasePlaying, got.Phase)
	}

	_, err := CodecByName("xml")
	assert.Error(t, err)
}

func TestJSONSnapshotFieldNames(t *testing.T) {
	data, err := JSONCodec{}.Marshal(&models.GameStateSnapshot{RoomID: "r", MatchTimeRemaining: 42})
	require.NoError(t, err)
	s := string(data)
	assert.True(t, strings.Contains(s, `"roomId":"r"`))
	assert.True(t, strings.Contains(s, `"matchTime":42`))
}

func TestWSConnectionRoundTrip(t *testing.T) {
	upgrader := websocket.Upgrader{}
	received := make(chan *Packet, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn := NewWSConnection(ws, 4)
		defer conn.Close()
		p, err := conn.ReadPacket()
		if err != nil {
			return
		}
		received <- p
		conn.Send(MsgTypeJoined, []byte(`{"roomId":"room-1"}`))
		time.Sleep(50 * time.Millisecond)
	}))
	defer srv.Close()

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	client := NewWSConnection(ws, 4)
	defer client.Close()

	require.NoError(t, client.Send(MsgTypeJoinRoom, []byte(`{}`)))
	select {
	case p := <-received:
		assert.Equal(t, uint16(MsgTypeJoinRoom), p.MsgID)
	case <-time.After(time.Second):
		t.Fatal("server did not receive the packet")
	}

	p, err := client.ReadPacket()
	require.NoError(t, err)
	assert.Equal(t, uint16(MsgTypeJoined), p.MsgID)

	client.Close()
	assert.ErrorIs(t, client.Send(MsgTypeHeartbeat, nil), ErrConnectionClosed)
}
