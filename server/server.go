package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/wfunc/soccerserver/logger"
	"github.com/wfunc/soccerserver/models"
	"github.com/wfunc/soccerserver/monitor"
	"github.com/wfunc/soccerserver/network"
	"github.com/wfunc/soccerserver/persistence"
	"github.com/wfunc/soccerserver/room"
	"github.com/wfunc/soccerserver/services"
	"github.com/wfunc/soccerserver/session"
	"github.com/wfunc/soccerserver/state"
)

// RoomPublisher pushes a room's state to its players outside the tick loop.
type RoomPublisher interface {
	Publish(r *room.Room)
}

type Options struct {
	Addr          string
	PublicURL     string        // base of the join link encoded in QR codes
	Heartbeat     time.Duration // read deadline is twice this, 0 disables it
	SendQueueSize int
}

type GameServer struct {
	opts           Options
	upgrader       websocket.Upgrader
	registry       *room.Registry
	sessionManager *session.Manager
	publisher      RoomPublisher
	mirror         persistence.Mirror
	auth           *services.AuthService
	playerService  *services.PlayerService
	metrics        *monitor.Metrics
	httpServer     *http.Server
	shutdownChan   chan struct{}
}

func NewGameServer(opts Options, registry *room.Registry, sessions *session.Manager, publisher RoomPublisher) *GameServer {
	return &GameServer{
		opts:           opts,
		registry:       registry,
		sessionManager: sessions,
		publisher:      publisher,
		shutdownChan:   make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 允许所有跨域请求
			},
		},
	}
}

// SetMirror, SetAuth, SetPlayerService and SetMetrics are optional and must be called before Start.
func (s *GameServer) SetMirror(m persistence.Mirror) { s.mirror = m }

func (s *GameServer) SetAuth(a *services.AuthService) { s.auth = a }

func (s *GameServer) SetPlayerService(p *services.PlayerService) { s.playerService = p }

func (s *GameServer) SetMetrics(m *monitor.Metrics) { s.metrics = m }

// Start serves HTTP and websockets until Shutdown.
func (s *GameServer) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	logger.Log.Infof("Game server listening on %s", s.opts.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and closes every websocket; each read loop then
// removes its player from the room.
func (s *GameServer) Shutdown(ctx context.Context) error {
	close(s.shutdownChan)
	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}
	for _, sess := range s.sessionManager.All() {
		sess.Close()
	}
	return err
}

func (s *GameServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Infof("Failed to upgrade connection: %v", err)
		return
	}
	s.handleConnection(conn)
}

func (s *GameServer) handleConnection(conn *websocket.Conn) {
	wsConn := network.NewWSConnection(conn, s.opts.SendQueueSize)
	if s.opts.Heartbeat > 0 {
		wsConn.SetHeartbeat(s.opts.Heartbeat)
	}
	sess := session.NewSession(uuid.NewString(), wsConn)
	s.sessionManager.Add(sess)

	logger.Log.Infof("New connection from %s, session ID: %s", wsConn.RemoteAddr(), sess.GetID())

	defer func() {
		logger.Log.Infof("Connection closed from %s, session ID: %s", wsConn.RemoteAddr(), sess.GetID())
		s.leave(sess)
		s.sessionManager.Remove(sess.GetID())
		wsConn.Close()
	}()

	for {
		select {
		case <-s.shutdownChan:
			return
		default:
			packet, err := wsConn.ReadPacket()
			if errors.Is(err, network.ErrMalformedPacket) {
				sess.Touch()
				s.rejectInput(sess, err)
				continue
			}
			if err != nil {
				return
			}
			s.handlePacket(sess, packet)
		}
	}
}

func (s *GameServer) handlePacket(sess *session.Session, packet *network.Packet) {
	sess.Touch()
	switch packet.MsgID {
	case network.MsgTypeHeartbeat:
		sess.Send(network.MsgTypeHeartbeat, nil)
	case network.MsgTypeJoinRoom:
		s.handleJoinRoom(sess, packet)
	case network.MsgTypeLeaveRoom:
		s.leave(sess)
	case network.MsgTypeInput:
		var in models.InputState
		if err := json.Unmarshal(packet.Data, &in); err != nil {
			s.rejectInput(sess, err)
			return
		}
		s.applyInput(sess, in)
	case network.MsgTypeInputBits:
		in, err := models.ParseInputBits(packet.Data)
		if err != nil {
			s.rejectInput(sess, err)
			return
		}
		s.applyInput(sess, in)
	case network.MsgTypeReady:
		s.handleReady(sess)
	default:
		logger.Log.Infof("Unknown message type: %d", packet.MsgID)
	}
}

func (s *GameServer) handleJoinRoom(sess *session.Session, packet *network.Packet) {
	if current := sess.RoomID(); current != "" {
		s.sendError(sess, "already in room "+current)
		return
	}

	var req network.JoinRequest
	if len(packet.Data) > 0 {
		if err := json.Unmarshal(packet.Data, &req); err != nil {
			s.sendError(sess, "malformed join request")
			return
		}
	}

	if req.Token != "" && s.auth != nil {
		claims, err := s.auth.ValidateToken(req.Token)
		if err != nil {
			s.sendError(sess, err.Error())
			return
		}
		sess.SetUser(claims.UserID, claims.Username)
	}

	r, p, err := s.registry.Join(req.RoomID, sess.GetID())
	if err != nil {
		if errors.Is(err, room.ErrRoomFull) {
			if s.metrics != nil {
				s.metrics.RoomFull.Inc()
			}
			full := network.RoomFullMessage{Capacity: s.registry.Settings().MaxPlayers}
			if r != nil {
				full.RoomID = r.ID
			}
			s.sendJSON(sess, network.MsgTypeRoomFull, full)
			return
		}
		logger.Log.Warnf("Session %s failed to join room %q: %v", sess.GetID(), req.RoomID, err)
		s.sendError(sess, err.Error())
		return
	}

	sess.SetRoomID(r.ID)
	if uid := sess.UserID(); uid > 0 {
		r.BindUser(sess.GetID(), uid)
	}
	logger.Log.Infof("Session %s joined room %s as %s", sess.GetID(), r.ID, p.Team)

	s.sendJSON(sess, network.MsgTypeJoined, network.JoinedMessage{
		RoomID:   r.ID,
		SocketID: sess.GetID(),
		Team:     p.Team,
		Capacity: r.Capacity(),
	})
	if s.mirror != nil {
		rec := models.PlayerRecord{SocketID: p.ID, RoomID: r.ID, X: p.Pos.X, Y: p.Pos.Y, Team: p.Team}
		if err := s.mirror.SavePlayer(context.Background(), rec); err != nil {
			logger.Log.Warnf("room %s: mirror player %s: %v", r.ID, p.ID, err)
		}
	}
	s.publish(r)
}

// leave takes the session out of its room, if any, and publishes the new state right away.
func (s *GameServer) leave(sess *session.Session) {
	roomID := sess.RoomID()
	if roomID == "" {
		return
	}
	sess.SetRoomID("")

	if r, ok := s.registry.Get(roomID); ok {
		r.Leave(sess.GetID())
		s.publish(r)
	}
	if s.mirror != nil {
		if err := s.mirror.DeletePlayer(context.Background(), sess.GetID()); err != nil {
			logger.Log.Warnf("room %s: mirror delete %s: %v", roomID, sess.GetID(), err)
		}
	}
}

func (s *GameServer) applyInput(sess *session.Session, in models.InputState) {
	r, ok := s.currentRoom(sess)
	if !ok {
		return
	}
	r.SetInput(sess.GetID(), in)
	if s.metrics != nil {
		s.metrics.Inputs.Inc()
	}
}

func (s *GameServer) rejectInput(sess *session.Session, err error) {
	if s.metrics != nil {
		s.metrics.InvalidInputs.Inc()
	}
	logger.Log.Debugf("Session %s sent invalid input: %v", sess.GetID(), err)
	s.sendError(sess, models.ErrInvalidInput.Error())
}

func (s *GameServer) handleReady(sess *session.Session) {
	r, ok := s.currentRoom(sess)
	if !ok {
		s.sendError(sess, "not in a room")
		return
	}
	err := r.Ready(sess.GetID())
	switch {
	case err == nil:
	case errors.Is(err, state.ErrNotEnded):
		// 比赛未结束, ignore
	default:
		s.sendError(sess, err.Error())
	}
}

func (s *GameServer) currentRoom(sess *session.Session) (*room.Room, bool) {
	roomID := sess.RoomID()
	if roomID == "" {
		return nil, false
	}
	return s.registry.Get(roomID)
}

func (s *GameServer) publish(r *room.Room) {
	if s.publisher != nil {
		s.publisher.Publish(r)
	}
}

func (s *GameServer) sendJSON(sess *session.Session, msgID uint16, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		logger.Log.Errorf("encode message %d: %v", msgID, err)
		return
	}
	if err := sess.Send(msgID, data); err != nil {
		logger.Log.Debugf("Session %s: send %d: %v", sess.GetID(), msgID, err)
	}
}

func (s *GameServer) sendError(sess *session.Session, msg string) {
	s.sendJSON(sess, network.MsgTypeError, network.ErrorMessage{Message: msg})
}
