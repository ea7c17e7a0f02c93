// Package physics advances players and the ball on a rectangular pitch.
package physics

import (
	"math"
	"math/rand"

	"github.com/wfunc/soccerserver/geometry"
	"github.com/wfunc/soccerserver/models"
)

// Config holds the pitch dimensions and the numeric constants of the simulation.
// Speeds are in pitch units per second.
type Config struct {
	Width           float64
	Height          float64
	PlayerRadius    float64
	BallRadius      float64
	PlayerSpeed     float64
	Friction        float64 // velocity factor per 1/60 s
	StopEpsilon     float64
	GoalMouthHeight float64
	KickStrength    float64
	KickBoost       float64
	WallRestitution float64
	CornerSize      float64 // leg of the 45 degree chamfer cut off each corner, 0 keeps square corners
	PlayerMass      float64
	BallMass        float64
	MaxBallSpeed    float64
}

// DefaultConfig returns the stock 800x600 pitch.
func DefaultConfig() Config {
	return Config{
		Width:           800,
		Height:          600,
		PlayerRadius:    20,
		BallRadius:      10,
		PlayerSpeed:     150,
		Friction:        0.98,
		StopEpsilon:     2,
		GoalMouthHeight: 200,
		KickStrength:    360,
		KickBoost:       1.8,
		WallRestitution: 0.7,
		CornerSize:      80,
		PlayerMass:      4,
		BallMass:        1,
		MaxBallSpeed:    900,
	}
}

// Body is the simulated part of a player.
type Body struct {
	ID    string
	Team  models.Team
	Pos   geometry.Vec2
	Vel   geometry.Vec2 // movement velocity of the last step
	Input models.InputState
}

// Ball carries velocity between ticks and remembers who touched it last.
type Ball struct {
	Pos       geometry.Vec2
	Vel       geometry.Vec2
	Radius    float64
	LastTouch string
	LastTeam  models.Team
}

// Goal describes a completed goal-line crossing.
type Goal struct {
	Team        models.Team // side credited with the goal
	Toucher     string
	ToucherTeam models.Team
}

// OwnGoal reports whether the last toucher defends the goal that was scored on.
func (g Goal) OwnGoal() bool {
	return g.Toucher != "" && g.ToucherTeam != g.Team
}

// Engine steps one pitch. It holds no per-room state and is safe to share.
type Engine struct {
	cfg Config
}

func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

func (e *Engine) Config() Config {
	return e.cfg
}

func (e *Engine) bounds() geometry.Rect {
	return geometry.Rect{Max: geometry.V(e.cfg.Width, e.cfg.Height)}
}

// Centre is the kickoff spot.
func (e *Engine) Centre() geometry.Vec2 {
	return geometry.V(e.cfg.Width/2, e.cfg.Height/2)
}

// NewBall returns a ball at rest on the centre spot.
func (e *Engine) NewBall() Ball {
	return Ball{Pos: e.Centre(), Radius: e.cfg.BallRadius}
}

// ResetBall puts the ball back on the centre spot with zero velocity.
func (e *Engine) ResetBall(b *Ball) {
	b.Pos = e.Centre()
	b.Vel = geometry.Vec2{}
	b.LastTouch = ""
	b.LastTeam = ""
}

// SpawnPoint picks a random position inside the interior box, away from the walls and goals.
func (e *Engine) SpawnPoint(rng *rand.Rand) geometry.Vec2 {
	mx := e.cfg.Width/8 + e.cfg.PlayerRadius
	my := e.cfg.PlayerRadius * 2
	return geometry.V(
		mx+rng.Float64()*(e.cfg.Width-2*mx),
		my+rng.Float64()*(e.cfg.Height-2*my),
	)
}

// KickoffPosition is where the i-th of n players of a team lines up.
func (e *Engine) KickoffPosition(team models.Team, i, n int) geometry.Vec2 {
	x := e.cfg.Width / 8
	if team == models.TeamBlue {
		x = e.cfg.Width - e.cfg.Width/8
	}
	return geometry.V(x, e.cfg.Height*float64(i+1)/float64(n+1))
}

// Step advances bodies and ball by dt seconds and returns the goal scored, if any.
// Bodies are processed in slice order so the result is deterministic.
func (e *Engine) Step(bodies []*Body, ball *Ball, dt float64) *Goal {
	if dt <= 0 {
		return nil
	}
	e.movePlayers(bodies, dt)
	e.moveBall(ball, dt)
	e.collidePlayers(bodies)
	e.collideBall(bodies, ball)
	e.bounceBall(ball)
	e.bounceCorners(ball)
	return e.detectGoal(ball)
}

func (e *Engine) movePlayers(bodies []*Body, dt float64) {
	for _, b := range bodies {
		dx, dy := b.Input.Direction()
		b.Vel = geometry.V(dx, dy).Normalize().Scale(e.cfg.PlayerSpeed)
		b.Pos = b.Pos.Add(b.Vel.Scale(dt))
		e.clampPlayer(b)
	}
}

func (e *Engine) clampPlayer(b *Body) {
	r := e.cfg.PlayerRadius
	if e.bounds().ContainsCircle(geometry.Circle{C: b.Pos, R: r}) {
		return
	}
	b.Pos.X = geometry.Clamp(b.Pos.X, r, e.cfg.Width-r)
	b.Pos.Y = geometry.Clamp(b.Pos.Y, r, e.cfg.Height-r)
}

func (e *Engine) moveBall(ball *Ball, dt float64) {
	ball.Pos = ball.Pos.Add(ball.Vel.Scale(dt))
	ball.Vel = ball.Vel.Scale(math.Pow(e.cfg.Friction, dt*60))
	if ball.Vel.Len() < e.cfg.StopEpsilon {
		ball.Vel = geometry.Vec2{}
	}
}

func (e *Engine) inGoalMouth(y float64) bool {
	half := e.cfg.GoalMouthHeight / 2
	mid := e.cfg.Height / 2
	return y >= mid-half && y <= mid+half
}

var (
	east  = geometry.V(1, 0)
	west  = geometry.V(-1, 0)
	south = geometry.V(0, 1)
	north = geometry.V(0, -1)
)

// bounceBall reflects the ball off the walls and clamps it back inside.
// Inside the goal-mouth band the side walls are open.
func (e *Engine) bounceBall(ball *Ball) {
	r := ball.Radius
	k := e.cfg.WallRestitution

	if !e.inGoalMouth(ball.Pos.Y) {
		if ball.Pos.X < r {
			ball.Pos.X = r
			ball.Vel = bounce(ball.Vel, east, k)
		} else if ball.Pos.X > e.cfg.Width-r {
			ball.Pos.X = e.cfg.Width - r
			ball.Vel = bounce(ball.Vel, west, k)
		}
	}

	if ball.Pos.Y < r {
		ball.Pos.Y = r
		ball.Vel = bounce(ball.Vel, south, k)
	} else if ball.Pos.Y > e.cfg.Height-r {
		ball.Pos.Y = e.cfg.Height - r
		ball.Vel = bounce(ball.Vel, north, k)
	}
}

// bounceCorners pushes the ball off the chamfer of the corner square it is in.
// At most one corner applies per step.
func (e *Engine) bounceCorners(ball *Ball) {
	cs := e.cfg.CornerSize
	if cs <= 0 {
		return
	}
	w, h := e.cfg.Width, e.cfg.Height
	p := ball.Pos

	// edge is a point on the chamfer, n its unit normal pointing into the pitch
	var edge, n geometry.Vec2
	switch {
	case p.X < cs && p.Y < cs:
		edge, n = geometry.V(cs, 0), geometry.V(1, 1)
	case p.X > w-cs && p.Y < cs:
		edge, n = geometry.V(w-cs, 0), geometry.V(-1, 1)
	case p.X < cs && p.Y > h-cs:
		edge, n = geometry.V(cs, h), geometry.V(1, -1)
	case p.X > w-cs && p.Y > h-cs:
		edge, n = geometry.V(w-cs, h), geometry.V(-1, -1)
	default:
		return
	}
	n = n.Normalize()

	dist := p.Sub(edge).Dot(n)
	if dist >= ball.Radius {
		return
	}
	ball.Pos = p.Add(n.Scale(ball.Radius - dist))
	ball.Vel = bounce(ball.Vel, n, e.cfg.WallRestitution)
}

// bounce reflects v off a surface with unit normal n and keeps k of the normal speed.
// A ball already moving away from the surface is left alone.
func bounce(v, n geometry.Vec2, k float64) geometry.Vec2 {
	vn := v.Dot(n)
	if vn >= 0 {
		return v
	}
	return geometry.Reflect(v, n).Sub(n.Scale(-vn * (1 - k)))
}

func (e *Engine) collidePlayers(bodies []*Body) {
	r := e.cfg.PlayerRadius
	for i := 0; i < len(bodies); i++ {
		for j := i + 1; j < len(bodies); j++ {
			a, b := bodies[i], bodies[j]
			if !geometry.CirclesOverlap(geometry.Circle{C: a.Pos, R: r}, geometry.Circle{C: b.Pos, R: r}) {
				continue
			}
			n, dist := separation(a.Pos, b.Pos)
			push := (2*r - dist) / 2
			a.Pos = a.Pos.Sub(n.Scale(push))
			b.Pos = b.Pos.Add(n.Scale(push))
			e.clampPlayer(a)
			e.clampPlayer(b)
		}
	}
}

func (e *Engine) collideBall(bodies []*Body, ball *Ball) {
	invBall := 1 / e.cfg.BallMass
	invPlayer := 1 / e.cfg.PlayerMass
	wBall := invBall / (invBall + invPlayer)

	for _, p := range bodies {
		pc := geometry.Circle{C: p.Pos, R: e.cfg.PlayerRadius}
		bc := geometry.Circle{C: ball.Pos, R: ball.Radius}
		if !geometry.CirclesOverlap(pc, bc) {
			continue
		}
		n, dist := separation(p.Pos, ball.Pos)
		if dist == 0 && p.Vel.LenSq() > 0 {
			n = p.Vel.Normalize()
		}
		overlap := pc.R + bc.R - dist
		ball.Pos = ball.Pos.Add(n.Scale(overlap * wBall))
		p.Pos = p.Pos.Sub(n.Scale(overlap * (1 - wBall)))
		e.clampPlayer(p)

		// drop the part of the ball's velocity heading into the player, then kick
		if vn := ball.Vel.Dot(n); vn < 0 {
			ball.Vel = ball.Vel.Sub(n.Scale(vn))
		}
		kick := e.cfg.KickStrength
		if p.Input.Action {
			kick *= e.cfg.KickBoost
		}
		ball.Vel = ball.Vel.Add(n.Scale(kick)).Add(p.Vel)
		if s := ball.Vel.Len(); s > e.cfg.MaxBallSpeed {
			ball.Vel = ball.Vel.Scale(e.cfg.MaxBallSpeed / s)
		}
		ball.LastTouch = p.ID
		ball.LastTeam = p.Team
	}
}

// separation returns the unit normal from a to b and their distance.
// Coincident centres separate along +X.
func separation(a, b geometry.Vec2) (geometry.Vec2, float64) {
	dist := geometry.Distance(a, b)
	if dist == 0 {
		return geometry.V(1, 0), 0
	}
	return b.Sub(a).Scale(1 / dist), dist
}

// detectGoal reports a goal once the ball has fully crossed a goal line inside the mouth.
// The west goal is defended by red, so crossing it scores for blue.
func (e *Engine) detectGoal(ball *Ball) *Goal {
	if !e.inGoalMouth(ball.Pos.Y) {
		return nil
	}
	if geometry.CircleIntersectsRect(geometry.Circle{C: ball.Pos, R: ball.Radius}, e.bounds()) {
		return nil
	}
	g := &Goal{Toucher: ball.LastTouch, ToucherTeam: ball.LastTeam}
	switch {
	case ball.Pos.X < 0:
		g.Team = models.TeamBlue
	case ball.Pos.X > e.cfg.Width:
		g.Team = models.TeamRed
	default:
		return nil
	}
	return g
}
