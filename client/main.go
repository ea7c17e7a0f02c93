package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wfunc/soccerserver/models"
	"github.com/wfunc/soccerserver/network"
)

// send formats and sends a message to the WebSocket server.
func send(c *websocket.Conn, msgID uint16, data []byte) error {
	packet, err := network.EncodePacket(msgID, data)
	if err != nil {
		return err
	}
	return c.WriteMessage(websocket.BinaryMessage, packet)
}

// parseInput turns a command such as "ur", "l kick" or "stop" into input flags.
func parseInput(text string) (models.InputState, bool) {
	var in models.InputState
	if text == "stop" {
		return in, true
	}
	for _, word := range strings.Fields(text) {
		if word == "kick" {
			in.Action = true
			continue
		}
		for _, c := range word {
			switch c {
			case 'l':
				in.Left = true
			case 'r':
				in.Right = true
			case 'u':
				in.Up = true
			case 'd':
				in.Down = true
			default:
				return in, false
			}
		}
	}
	return in, in != models.InputState{}
}

func describe(msgID uint16, data []byte) string {
	if msgID != network.MsgTypeGameState {
		return string(data)
	}
	var snap models.GameStateSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return "undecodable state (msgpack codec?)"
	}
	var events []string
	for _, e := range snap.Events {
		events = append(events, string(e.Type))
	}
	return strings.Join([]string{
		snap.RoomID,
		string(snap.Phase),
		"red", strconv.Itoa(snap.Score.Red), "blue", strconv.Itoa(snap.Score.Blue),
		"time", strconv.Itoa(snap.MatchTimeRemaining),
		"players", strconv.Itoa(len(snap.Players)),
		strings.Join(events, ","),
	}, " ")
}

func main() {
	addr := flag.String("addr", "localhost:8080", "game server address")
	roomID := flag.String("room", "", "room to join, empty for any room with space")
	token := flag.String("token", "", "optional login token")
	quiet := flag.Bool("quiet", true, "only print state snapshots that carry events")
	flag.Parse()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	u := url.URL{Scheme: "ws", Host: *addr, Path: "/ws"}
	log.Printf("Connecting to %s", u.String())

	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("Dial failed: %v", err)
	}
	defer c.Close()

	done := make(chan struct{})

	// Read loop
	go func() {
		defer close(done)
		for {
			_, message, err := c.ReadMessage()
			if err != nil {
				log.Println("Read error:", err)
				return
			}
			p, err := network.DecodePacket(message)
			if err != nil {
				log.Printf("Received invalid packet of size %d", len(message))
				continue
			}
			if *quiet && p.MsgID == network.MsgTypeGameState && !strings.Contains(string(p.Data), `"events"`) {
				continue
			}
			log.Printf("<- RECV (ID: %d): %s", p.MsgID, describe(p.MsgID, p.Data))
		}
	}()

	join, _ := json.Marshal(network.JoinRequest{RoomID: *roomID, Token: *token})
	if err := send(c, network.MsgTypeJoinRoom, join); err != nil {
		log.Println("Write error:", err)
		return
	}

	log.Println("Client started. Commands: l/r/u/d combinations, kick, stop, ready, leave.")

	lines := make(chan string)
	go func() {
		reader := bufio.NewScanner(os.Stdin)
		for reader.Scan() {
			lines <- strings.TrimSpace(reader.Text())
		}
	}()

	heartbeat := time.NewTicker(10 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-done:
			return
		case <-heartbeat.C:
			if err := send(c, network.MsgTypeHeartbeat, nil); err != nil {
				log.Println("Write error:", err)
				return
			}
		case <-interrupt:
			log.Println("Interrupt received, closing connection.")
			err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			if err != nil {
				log.Println("Write close error:", err)
			}
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return
		case text := <-lines:
			var err error
			switch text {
			case "":
				continue
			case "ready":
				err = send(c, network.MsgTypeReady, nil)
			case "leave":
				err = send(c, network.MsgTypeLeaveRoom, nil)
			default:
				in, ok := parseInput(text)
				if !ok {
					log.Printf("unknown command %q", text)
					continue
				}
				err = send(c, network.MsgTypeInputBits, []byte{in.Bits()})
			}
			if err != nil {
				log.Println("Write error:", err)
				return
			}
			log.Printf("-> SENT: %s", text)
		}
	}
}
