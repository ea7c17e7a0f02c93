package physics

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/soccerserver/geometry"
	"github.com/wfunc/soccerserver/models"
)

const tick = 1.0 / 60

func TestPlayerMovesAtConfiguredSpeed(t *testing.T) {
	e := NewEngine(DefaultConfig())
	p := &Body{ID: "p1", Team: models.TeamRed, Pos: geometry.V(100, 300), Input: models.InputState{Right: true}}
	ball := e.NewBall()

	for i := 0; i < 10; i++ {
		e.Step([]*Body{p}, &ball, 1.0/30)
	}
	assert.InDelta(t, 150, p.Pos.X, 1e-6)
	assert.InDelta(t, 300, p.Pos.Y, 1e-9)
}

func TestDiagonalIsNormalized(t *testing.T) {
	e := NewEngine(DefaultConfig())
	p := &Body{Pos: geometry.V(200, 200), Input: models.InputState{Right: true, Down: true}}
	ball := e.NewBall()

	e.Step([]*Body{p}, &ball, 1)
	moved := geometry.Distance(geometry.V(200, 200), p.Pos)
	assert.InDelta(t, 150, moved, 1e-6)
}

func TestOpposingFlagsCancel(t *testing.T) {
	e := NewEngine(DefaultConfig())
	p := &Body{Pos: geometry.V(200, 200), Input: models.InputState{Left: true, Right: true}}
	ball := e.NewBall()

	e.Step([]*Body{p}, &ball, tick)
	assert.Equal(t, geometry.V(200, 200), p.Pos)
}

func TestPlayerClampedToPitch(t *testing.T) {
	e := NewEngine(DefaultConfig())
	p := &Body{Pos: geometry.V(790, 10), Input: models.InputState{Right: true, Up: true}}
	ball := e.NewBall()

	e.Step([]*Body{p}, &ball, 1)
	assert.Equal(t, geometry.V(780, 20), p.Pos)
}

func TestBallFrictionStopsBall(t *testing.T) {
	e := NewEngine(DefaultConfig())
	ball := e.NewBall()
	ball.Vel = geometry.V(100, 0)

	e.Step(nil, &ball, tick)
	assert.InDelta(t, 98, ball.Vel.X, 1e-9)

	for i := 0; i < 1000; i++ {
		e.Step(nil, &ball, tick)
	}
	assert.Equal(t, geometry.Vec2{}, ball.Vel)
}

func TestFrictionIsTickRateIndependent(t *testing.T) {
	e := NewEngine(DefaultConfig())
	fast := e.NewBall()
	fast.Vel = geometry.V(300, 0)
	slow := fast

	for i := 0; i < 60; i++ {
		e.Step(nil, &fast, 1.0/60)
	}
	for i := 0; i < 30; i++ {
		e.Step(nil, &slow, 1.0/30)
	}
	assert.InDelta(t, fast.Vel.X, slow.Vel.X, 1e-6)
}

func TestBallBouncesOffWalls(t *testing.T) {
	e := NewEngine(DefaultConfig())

	// east wall outside the goal mouth
	ball := e.NewBall()
	ball.Pos = geometry.V(785, 100)
	ball.Vel = geometry.V(600, 0)
	e.Step(nil, &ball, tick)
	assert.Equal(t, 790.0, ball.Pos.X)
	assert.Less(t, ball.Vel.X, 0.0)

	// top wall always reflects
	ball = e.NewBall()
	ball.Pos = geometry.V(400, 12)
	ball.Vel = geometry.V(0, -300)
	e.Step(nil, &ball, tick)
	assert.Equal(t, 10.0, ball.Pos.Y)
	assert.Greater(t, ball.Vel.Y, 0.0)
}

func TestBallBouncesOffCorner(t *testing.T) {
	e := NewEngine(DefaultConfig())

	// straight into the top-left chamfer
	ball := e.NewBall()
	ball.Pos = geometry.V(30, 30)
	ball.Vel = geometry.V(-300, -300)
	e.Step(nil, &ball, tick)
	assert.InDelta(t, 10, (ball.Pos.X+ball.Pos.Y-80)/math.Sqrt2, 1e-9)
	assert.InDelta(t, 0.7*294, ball.Vel.X, 1e-9)
	assert.InDelta(t, 0.7*294, ball.Vel.Y, 1e-9)

	// glancing: the speed along the chamfer is kept
	ball = e.NewBall()
	ball.Pos = geometry.V(20, 50)
	ball.Vel = geometry.V(0, -300)
	e.Step(nil, &ball, tick)
	assert.InDelta(t, 147+0.7*147, ball.Vel.X, 1e-9)
	assert.InDelta(t, -147+0.7*147, ball.Vel.Y, 1e-9)
}

func TestEveryCornerIsChamfered(t *testing.T) {
	cfg := DefaultConfig()
	e := NewEngine(cfg)
	w, h, cs := cfg.Width, cfg.Height, cfg.CornerSize

	tests := []struct {
		name     string
		pos, vel geometry.Vec2
		edge     geometry.Vec2 // where the chamfer meets the top or bottom wall
		inward   geometry.Vec2
	}{
		{"top-left", geometry.V(25, 25), geometry.V(-200, -200), geometry.V(cs, 0), geometry.V(1, 1)},
		{"top-right", geometry.V(w-25, 25), geometry.V(200, -200), geometry.V(w-cs, 0), geometry.V(-1, 1)},
		{"bottom-left", geometry.V(25, h-25), geometry.V(-200, 200), geometry.V(cs, h), geometry.V(1, -1)},
		{"bottom-right", geometry.V(w-25, h-25), geometry.V(200, 200), geometry.V(w-cs, h), geometry.V(-1, -1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ball := e.NewBall()
			ball.Pos = tt.pos
			ball.Vel = tt.vel
			assert.Nil(t, e.Step(nil, &ball, tick))

			n := tt.inward.Normalize()
			assert.Greater(t, ball.Vel.Dot(n), 0.0, "moving back into the pitch")
			assert.InDelta(t, ball.Radius, ball.Pos.Sub(tt.edge).Dot(n), 1e-9)
		})
	}
}

func TestSquareCornersWhenDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CornerSize = 0
	e := NewEngine(cfg)

	ball := e.NewBall()
	ball.Pos = geometry.V(12, 12)
	ball.Vel = geometry.V(-300, -300)
	e.Step(nil, &ball, tick)
	assert.Equal(t, geometry.V(10, 10), ball.Pos)
	assert.Greater(t, ball.Vel.X, 0.0)
	assert.Greater(t, ball.Vel.Y, 0.0)
}

func TestBallStaysInBounds(t *testing.T) {
	cfg := DefaultConfig()
	e := NewEngine(cfg)
	rng := rand.New(rand.NewSource(7))

	var bodies []*Body
	for i := 0; i < 6; i++ {
		team := models.TeamRed
		if i%2 == 1 {
			team = models.TeamBlue
		}
		bodies = append(bodies, &Body{ID: string(rune('a' + i)), Team: team, Pos: e.SpawnPoint(rng)})
	}
	ball := e.NewBall()

	for i := 0; i < 3000; i++ {
		for _, b := range bodies {
			b.Input = models.InputState{
				Left: rng.Intn(2) == 0, Right: rng.Intn(2) == 0,
				Up: rng.Intn(2) == 0, Down: rng.Intn(2) == 0,
				Action: rng.Intn(3) == 0,
			}
		}
		if g := e.Step(bodies, &ball, tick); g != nil {
			e.ResetBall(&ball)
			continue
		}
		if e.inGoalMouth(ball.Pos.Y) {
			continue
		}
		require.GreaterOrEqual(t, ball.Pos.X, ball.Radius)
		require.LessOrEqual(t, ball.Pos.X, cfg.Width-ball.Radius)
		require.GreaterOrEqual(t, ball.Pos.Y, ball.Radius)
		require.LessOrEqual(t, ball.Pos.Y, cfg.Height-ball.Radius)
	}
}

func TestGoalLeftScoresForBlue(t *testing.T) {
	e := NewEngine(DefaultConfig())
	ball := e.NewBall()
	ball.Pos = geometry.V(5, 300)
	ball.Vel = geometry.V(-900, 0)

	g := e.Step(nil, &ball, tick)
	require.NotNil(t, g)
	assert.Equal(t, models.TeamBlue, g.Team)
}

func TestGoalRightScoresForRed(t *testing.T) {
	e := NewEngine(DefaultConfig())
	ball := e.NewBall()
	ball.Pos = geometry.V(795, 350)
	ball.Vel = geometry.V(900, 0)
	ball.LastTouch, ball.LastTeam = "p1", models.TeamRed

	g := e.Step(nil, &ball, tick)
	require.NotNil(t, g)
	assert.Equal(t, models.TeamRed, g.Team)
	assert.Equal(t, "p1", g.Toucher)
	assert.False(t, g.OwnGoal())
}

func TestNoGoalWhilePartlyOverLine(t *testing.T) {
	e := NewEngine(DefaultConfig())
	ball := e.NewBall()
	ball.Pos = geometry.V(3, 300)
	ball.Vel = geometry.V(-60, 0)

	assert.Nil(t, e.Step(nil, &ball, tick))
	assert.Less(t, ball.Pos.X, ball.Radius, "goal mouth lets the ball through")
}

func TestOwnGoal(t *testing.T) {
	g := Goal{Team: models.TeamBlue, Toucher: "p1", ToucherTeam: models.TeamRed}
	assert.True(t, g.OwnGoal())
	assert.False(t, Goal{Team: models.TeamBlue}.OwnGoal())
}

func TestPlayersPushedApart(t *testing.T) {
	e := NewEngine(DefaultConfig())
	a := &Body{ID: "a", Pos: geometry.V(300, 300)}
	b := &Body{ID: "b", Pos: geometry.V(310, 300)}
	ball := e.NewBall()
	ball.Pos = geometry.V(600, 500)

	e.Step([]*Body{a, b}, &ball, tick)
	assert.InDelta(t, 40, geometry.Distance(a.Pos, b.Pos), 1e-9)
	assert.InDelta(t, 305, (a.Pos.X+b.Pos.X)/2, 1e-9, "equal masses move equally")
}

func TestCoincidentPlayersSeparate(t *testing.T) {
	e := NewEngine(DefaultConfig())
	a := &Body{ID: "a", Pos: geometry.V(300, 300)}
	b := &Body{ID: "b", Pos: geometry.V(300, 300)}
	ball := e.NewBall()

	e.Step([]*Body{a, b}, &ball, tick)
	assert.InDelta(t, 40, geometry.Distance(a.Pos, b.Pos), 1e-9)
}

func TestPlayerKicksBall(t *testing.T) {
	e := NewEngine(DefaultConfig())
	p := &Body{ID: "p1", Team: models.TeamRed, Pos: geometry.V(372, 300), Input: models.InputState{Right: true}}
	ball := e.NewBall()

	e.Step([]*Body{p}, &ball, tick)
	assert.Greater(t, ball.Vel.X, 360.0)
	assert.InDelta(t, 0, ball.Vel.Y, 1e-9)
	assert.Equal(t, "p1", ball.LastTouch)
	assert.Equal(t, models.TeamRed, ball.LastTeam)
	assert.GreaterOrEqual(t, geometry.Distance(p.Pos, ball.Pos), 30-1e-9)
}

func TestActionBoostsKick(t *testing.T) {
	e := NewEngine(DefaultConfig())
	plain := &Body{ID: "p", Pos: geometry.V(375, 300)}
	boosted := &Body{ID: "p", Pos: geometry.V(375, 300), Input: models.InputState{Action: true}}

	b1 := e.NewBall()
	e.Step([]*Body{plain}, &b1, tick)
	b2 := e.NewBall()
	e.Step([]*Body{boosted}, &b2, tick)

	assert.InDelta(t, 360, b1.Vel.X, 1e-9)
	assert.InDelta(t, 648, b2.Vel.X, 1e-9)
}

func TestBallSpeedCapped(t *testing.T) {
	cfg := DefaultConfig()
	cfg.KickStrength = 5000
	e := NewEngine(cfg)
	p := &Body{ID: "p", Pos: geometry.V(375, 300)}
	ball := e.NewBall()

	e.Step([]*Body{p}, &ball, tick)
	assert.InDelta(t, cfg.MaxBallSpeed, ball.Vel.Len(), 1e-6)
}

func TestZeroDtIsNoop(t *testing.T) {
	e := NewEngine(DefaultConfig())
	p := &Body{Pos: geometry.V(100, 100), Input: models.InputState{Right: true}}
	ball := e.NewBall()
	ball.Vel = geometry.V(50, 50)

	assert.Nil(t, e.Step([]*Body{p}, &ball, 0))
	assert.Equal(t, geometry.V(100, 100), p.Pos)
	assert.Equal(t, geometry.V(50, 50), ball.Vel)
}

func TestKickoffPosition(t *testing.T) {
	e := NewEngine(DefaultConfig())
	assert.Equal(t, geometry.V(100, 300), e.KickoffPosition(models.TeamRed, 0, 1))
	assert.Equal(t, geometry.V(700, 200), e.KickoffPosition(models.TeamBlue, 0, 2))
	assert.Equal(t, geometry.V(700, 400), e.KickoffPosition(models.TeamBlue, 1, 2))
}

func TestSpawnPointInsideInterior(t *testing.T) {
	cfg := DefaultConfig()
	e := NewEngine(cfg)
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 500; i++ {
		p := e.SpawnPoint(rng)
		require.True(t, geometry.Rect{Max: geometry.V(cfg.Width, cfg.Height)}.ContainsCircle(geometry.Circle{C: p, R: cfg.PlayerRadius}))
	}
}
