// room/room.go
package room

import (
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/wfunc/soccerserver/logger"
	"github.com/wfunc/soccerserver/models"
	"github.com/wfunc/soccerserver/physics"
	"github.com/wfunc/soccerserver/state"
)

var (
	ErrRoomFull      = errors.New("room is full")
	ErrRoomClosed    = errors.New("room is closed")
	ErrRoomNotEmpty  = errors.New("room is not empty")
	ErrUnknownRoom   = errors.New("unknown room")
	ErrUnknownPlayer = errors.New("unknown player")
)

// Settings are the per-room limits and simulation constants.
type Settings struct {
	MaxPlayers    int
	MatchDuration time.Duration
	GoalPause     time.Duration
	Physics       physics.Config
}

func DefaultSettings() Settings {
	return Settings{
		MaxPlayers:    6,
		MatchDuration: 60 * time.Second,
		GoalPause:     1500 * time.Millisecond,
		Physics:       physics.DefaultConfig(),
	}
}

// Player 房间内的玩家
type Player struct {
	physics.Body
	UserID int64
	Goals  int
}

// GetID implements state.Player.
func (p *Player) GetID() string {
	return p.ID
}

// Room 是一场比赛的全部可变状态, guarded by a single mutex.
type Room struct {
	ID        string
	CreatedAt time.Time

	settings Settings
	engine   *physics.Engine

	mutex   sync.Mutex
	players map[string]*Player
	teams   models.Teams
	ball    physics.Ball
	score   models.Score
	clock   *state.MatchClock
	states  *state.MatchStates
	machine *state.BaseStateMachine
	events  []models.Event
	result  *models.MatchResult
	tick    uint64
	closed  bool
	rng     *rand.Rand
}

// NewRoom 创建一个新房间, waiting for players with the ball on the centre spot.
func NewRoom(id string, settings Settings) *Room {
	engine := physics.NewEngine(settings.Physics)
	r := &Room{
		ID:        id,
		CreatedAt: time.Now(),
		settings:  settings,
		engine:    engine,
		players:   make(map[string]*Player),
		ball:      engine.NewBall(),
		clock:     state.NewMatchClock(settings.MatchDuration),
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	r.states, r.machine = state.NewMatchStates(&roomContext{r}, settings.GoalPause)
	return r
}

func (r *Room) Capacity() int {
	return r.settings.MaxPlayers
}

// Join adds a player to the smaller team at a random interior spot.
// Joining twice with the same socket id returns the existing player.
func (r *Room) Join(socketID string) (Player, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.closed {
		return Player{}, ErrRoomClosed
	}
	if p, ok := r.players[socketID]; ok {
		return *p, nil
	}
	if len(r.players) >= r.settings.MaxPlayers {
		return Player{}, ErrRoomFull
	}

	team := AssignTeam(r.teams)
	p := &Player{Body: physics.Body{
		ID:   socketID,
		Team: team,
		Pos:  r.engine.SpawnPoint(r.rng),
	}}
	r.players[socketID] = p
	r.addToTeam(socketID, team)
	r.emit(models.Event{Type: models.EventPlayerJoined, SocketID: socketID, Team: team})

	logger.Log.Infof("room %s: player %s joined %s (%d/%d)", r.ID, socketID, team, len(r.players), r.settings.MaxPlayers)
	return *p, nil
}

// Leave removes a player. Unknown ids are ignored.
func (r *Room) Leave(socketID string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	p, ok := r.players[socketID]
	if !ok {
		return
	}
	delete(r.players, socketID)
	r.removeFromTeam(socketID, p.Team)
	r.emit(models.Event{Type: models.EventPlayerLeft, SocketID: socketID, Team: p.Team})
	r.rebalance()

	logger.Log.Infof("room %s: player %s left (%d/%d)", r.ID, socketID, len(r.players), r.settings.MaxPlayers)
}

// SetInput overwrites the player's input flags. Unknown ids are ignored.
func (r *Room) SetInput(socketID string, in models.InputState) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if p, ok := r.players[socketID]; ok {
		p.Input = in
	}
}

// Ready marks the player as ready for a rematch.
func (r *Room) Ready(socketID string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	p, ok := r.players[socketID]
	if !ok {
		return ErrUnknownPlayer
	}
	return r.machine.GetCurrentState().HandleAction(p, state.ActionReady)
}

// BindUser links an authenticated account to a player for match statistics.
func (r *Room) BindUser(socketID string, userID int64) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	p, ok := r.players[socketID]
	if ok {
		p.UserID = userID
	}
	return ok
}

// Advance runs one tick of dt seconds and returns the resulting snapshot with the
// events collected since the previous tick. A non-positive dt only takes a snapshot.
func (r *Room) Advance(dt float64) *models.GameStateSnapshot {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if dt <= 0 {
		return r.snapshot(nil)
	}
	r.tick++
	r.machine.GetCurrentState().OnUpdate(dt)

	events := r.events
	r.events = nil
	return r.snapshot(events)
}

// Snapshot returns the current state without advancing it. Pending events are kept for the next tick.
func (r *Room) Snapshot() *models.GameStateSnapshot {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.snapshot(nil)
}

func (r *Room) snapshot(events []models.Event) *models.GameStateSnapshot {
	cfg := r.engine.Config()
	phase := state.Phase(r.machine)
	snap := &models.GameStateSnapshot{
		RoomID:  r.ID,
		Width:   cfg.Width,
		Height:  cfg.Height,
		Players: make(map[string]models.PlayerView, len(r.players)),
		Ball: models.BallView{
			X:      r.ball.Pos.X,
			Y:      r.ball.Pos.Y,
			Radius: r.ball.Radius,
			SpeedX: r.ball.Vel.X,
			SpeedY: r.ball.Vel.Y,
		},
		Score: r.score,
		Teams: models.Teams{
			Red:  append([]string{}, r.teams.Red...),
			Blue: append([]string{}, r.teams.Blue...),
		},
		MatchTimeRemaining: r.clock.Seconds(),
		Phase:              phase,
		IsPlaying:          phase == models.PhasePlaying || phase == models.PhaseGoalPause,
		Tick:               r.tick,
		Events:             events,
	}
	for id, p := range r.players {
		snap.Players[id] = models.PlayerView{X: p.Pos.X, Y: p.Pos.Y, Team: p.Team, Goals: p.Goals}
	}
	return snap
}

func (r *Room) PlayerCount() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return len(r.players)
}

func (r *Room) Phase() models.Phase {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return state.Phase(r.machine)
}

// Player returns a copy of the player with the given socket id.
func (r *Room) Player(socketID string) (Player, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	p, ok := r.players[socketID]
	if !ok {
		return Player{}, false
	}
	return *p, true
}

// Record is the durable projection of the room.
func (r *Room) Record() models.RoomRecord {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	cfg := r.engine.Config()
	phase := state.Phase(r.machine)
	return models.RoomRecord{
		RoomID:    r.ID,
		Width:     cfg.Width,
		Height:    cfg.Height,
		RedScore:  r.score.Red,
		BlueScore: r.score.Blue,
		MatchTime: r.clock.Seconds(),
		Phase:     phase,
		IsPlaying: phase == models.PhasePlaying || phase == models.PhaseGoalPause,
		Players:   len(r.players),
		UpdatedAt: time.Now(),
	}
}

// PlayerRecords lists the durable projection of every player.
func (r *Room) PlayerRecords() []models.PlayerRecord {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	records := make([]models.PlayerRecord, 0, len(r.players))
	for _, id := range r.orderedIDs() {
		p := r.players[id]
		records = append(records, models.PlayerRecord{SocketID: id, RoomID: r.ID, X: p.Pos.X, Y: p.Pos.Y, Team: p.Team})
	}
	return records
}

// TakeResult returns the result of the last finished match once.
func (r *Room) TakeResult() *models.MatchResult {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	res := r.result
	r.result = nil
	return res
}

// closeIfEmpty marks an empty room closed so later joins fail with ErrRoomClosed.
func (r *Room) closeIfEmpty() bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if len(r.players) > 0 {
		return false
	}
	r.closed = true
	return true
}

func (r *Room) emit(e models.Event) {
	r.events = append(r.events, e)
}

func (r *Room) orderedIDs() []string {
	ids := make([]string, 0, len(r.teams.Red)+len(r.teams.Blue))
	ids = append(ids, r.teams.Red...)
	return append(ids, r.teams.Blue...)
}

func (r *Room) bodies() []*physics.Body {
	ids := r.orderedIDs()
	bodies := make([]*physics.Body, 0, len(ids))
	for _, id := range ids {
		bodies = append(bodies, &r.players[id].Body)
	}
	return bodies
}
