// models/models.go
package models

import (
	"errors"
	"time"
)

// Team is one side of the pitch. Red defends the west goal, Blue the east goal.
type Team string

const (
	TeamRed  Team = "red"
	TeamBlue Team = "blue"
)

// Opponent returns the other side.
func (t Team) Opponent() Team {
	if t == TeamRed {
		return TeamBlue
	}
	return TeamRed
}

// Phase is the match clock state of a room.
type Phase string

const (
	PhaseWaiting   Phase = "waiting"
	PhasePlaying   Phase = "playing"
	PhaseGoalPause Phase = "goal_pause"
	PhaseEnded     Phase = "ended"
)

// ErrInvalidInput is returned for malformed input payloads.
var ErrInvalidInput = errors.New("invalid input")

// InputState is the latest directional and action flags of a player.
type InputState struct {
	Left   bool `json:"left" msgpack:"left"`
	Right  bool `json:"right" msgpack:"right"`
	Up     bool `json:"up" msgpack:"up"`
	Down   bool `json:"down" msgpack:"down"`
	Action bool `json:"action" msgpack:"action"`
}

const (
	bitLeft byte = 1 << iota
	bitRight
	bitUp
	bitDown
	bitAction

	inputBitsMask = bitLeft | bitRight | bitUp | bitDown | bitAction
)

// Direction returns the unit movement axis for the flags. Opposing flags cancel.
func (in InputState) Direction() (dx, dy float64) {
	if in.Left != in.Right {
		if in.Right {
			dx = 1
		} else {
			dx = -1
		}
	}
	if in.Up != in.Down {
		if in.Down {
			dy = 1
		} else {
			dy = -1
		}
	}
	return dx, dy
}

// Bits packs the flags into one byte: left, right, up, down, action from bit 0.
func (in InputState) Bits() byte {
	var b byte
	if in.Left {
		b |= bitLeft
	}
	if in.Right {
		b |= bitRight
	}
	if in.Up {
		b |= bitUp
	}
	if in.Down {
		b |= bitDown
	}
	if in.Action {
		b |= bitAction
	}
	return b
}

// ParseInputBits decodes the compact one-byte input frame.
func ParseInputBits(data []byte) (InputState, error) {
	if len(data) != 1 || data[0]&^inputBitsMask != 0 {
		return InputState{}, ErrInvalidInput
	}
	b := data[0]
	return InputState{
		Left:   b&bitLeft != 0,
		Right:  b&bitRight != 0,
		Up:     b&bitUp != 0,
		Down:   b&bitDown != 0,
		Action: b&bitAction != 0,
	}, nil
}

// Score is the goal tally of a match.
type Score struct {
	Red  int `json:"red" msgpack:"red"`
	Blue int `json:"blue" msgpack:"blue"`
}

// WinnerDraw is the winner of a tied match.
const WinnerDraw = "draw"

// Winner returns red, blue or draw.
func (s Score) Winner() string {
	switch {
	case s.Red > s.Blue:
		return string(TeamRed)
	case s.Blue > s.Red:
		return string(TeamBlue)
	default:
		return WinnerDraw
	}
}

// Of returns the goals of team t.
func (s Score) Of(t Team) int {
	if t == TeamBlue {
		return s.Blue
	}
	return s.Red
}

// Teams lists socket ids per side in join order.
type Teams struct {
	Red  []string `json:"red" msgpack:"red"`
	Blue []string `json:"blue" msgpack:"blue"`
}

// PlayerView is the snapshot projection of a player.
type PlayerView struct {
	X     float64 `json:"x" msgpack:"x"`
	Y     float64 `json:"y" msgpack:"y"`
	Team  Team    `json:"team" msgpack:"team"`
	Goals int     `json:"goals" msgpack:"goals"`
}

// BallView is the snapshot projection of the ball.
type BallView struct {
	X      float64 `json:"x" msgpack:"x"`
	Y      float64 `json:"y" msgpack:"y"`
	Radius float64 `json:"radius" msgpack:"radius"`
	SpeedX float64 `json:"speedX" msgpack:"speedX"`
	SpeedY float64 `json:"speedY" msgpack:"speedY"`
}

// EventType names something that happened in a room since the previous snapshot.
type EventType string

const (
	EventPlayerJoined      EventType = "player_joined"
	EventPlayerLeft        EventType = "player_left"
	EventPlayerReady       EventType = "player_ready"
	EventTeamChanged       EventType = "team_changed"
	EventMatchStart        EventType = "match_start"
	EventGoal              EventType = "goal"
	EventGoalPauseEnd      EventType = "goal_pause_end"
	EventMatchEnd          EventType = "match_end"
	EventWaitingForPlayers EventType = "waiting_for_players"
)

// Event carries the details relevant to its type; unused fields are empty.
type Event struct {
	Type     EventType `json:"type" msgpack:"type"`
	SocketID string    `json:"socketId,omitempty" msgpack:"socketId,omitempty"`
	Team     Team      `json:"team,omitempty" msgpack:"team,omitempty"`
	Scorer   string    `json:"scorer,omitempty" msgpack:"scorer,omitempty"`
	OwnGoal  bool      `json:"ownGoal,omitempty" msgpack:"ownGoal,omitempty"`
	Winner   string    `json:"winner,omitempty" msgpack:"winner,omitempty"`
	Score    *Score    `json:"score,omitempty" msgpack:"score,omitempty"`
}

// GameStateSnapshot is a read-only projection of a room, rebuilt for every publish.
type GameStateSnapshot struct {
	RoomID             string                `json:"roomId" msgpack:"roomId"`
	Width              float64               `json:"width" msgpack:"width"`
	Height             float64               `json:"height" msgpack:"height"`
	Players            map[string]PlayerView `json:"players" msgpack:"players"`
	Ball               BallView              `json:"ball" msgpack:"ball"`
	Score              Score                 `json:"score" msgpack:"score"`
	Teams              Teams                 `json:"teams" msgpack:"teams"`
	MatchTimeRemaining int                   `json:"matchTime" msgpack:"matchTime"`
	Phase              Phase                 `json:"phase" msgpack:"phase"`
	IsPlaying          bool                  `json:"isPlaying" msgpack:"isPlaying"`
	Tick               uint64                `json:"tick" msgpack:"tick"`
	Events             []Event               `json:"events,omitempty" msgpack:"events,omitempty"`
}

// HasEvent reports whether the snapshot carries an event of type t.
func (s *GameStateSnapshot) HasEvent(t EventType) bool {
	for _, e := range s.Events {
		if e.Type == t {
			return true
		}
	}
	return false
}

// RoomRecord is the durable mirror of a room.
type RoomRecord struct {
	RoomID    string    `json:"room_id"`
	Width     float64   `json:"width"`
	Height    float64   `json:"height"`
	RedScore  int       `json:"red_score"`
	BlueScore int       `json:"blue_score"`
	MatchTime int       `json:"match_time"`
	Phase     Phase     `json:"phase"`
	IsPlaying bool      `json:"is_playing"`
	Players   int       `json:"players"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PlayerRecord is the durable mirror of a player in a room.
type PlayerRecord struct {
	SocketID string  `json:"socket_id"`
	RoomID   string  `json:"room_id"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Team     Team    `json:"team"`
}

// MatchPlayer is one participant of a finished match.
type MatchPlayer struct {
	SocketID string `json:"socket_id"`
	UserID   int64  `json:"user_id,omitempty"`
	Team     Team   `json:"team"`
	Goals    int    `json:"goals"`
}

// MatchResult is stored when a match ends.
type MatchResult struct {
	RoomID   string        `json:"room_id"`
	Score    Score         `json:"score"`
	Winner   string        `json:"winner"`
	Duration time.Duration `json:"duration"`
	Players  []MatchPlayer `json:"players"`
	EndedAt  time.Time     `json:"ended_at"`
}

// User is a registered account.
type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	PassHash  string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// UserStats are the lifetime totals of a user.
type UserStats struct {
	UserID         int64  `json:"user_id"`
	Username       string `json:"username"`
	GoalsScored    int    `json:"total_goals_scored"`
	GoalsConceded  int    `json:"total_goals_conceded"`
	Wins           int    `json:"wins"`
	Losses         int    `json:"losses"`
	Draws          int    `json:"draws"`
	MatchesPlayed  int    `json:"matches_played"`
	GoalDifference int    `json:"goals_difference"`
}

// StatsDelta is added to a user's totals after a match.
type StatsDelta struct {
	GoalsScored   int
	GoalsConceded int
	Wins          int
	Losses        int
	Draws         int
}
