package config

import (
	"fmt"
	"time"

	"github.com/wfunc/soccerserver/physics"
	"github.com/wfunc/soccerserver/room"
)

// GameSettings converts the game section into room settings.
func (c *Config) GameSettings() room.Settings {
	g := c.Game
	p := g.Physics
	return room.Settings{
		MaxPlayers:    g.MaxPlayers,
		MatchDuration: g.MatchDuration,
		GoalPause:     g.GoalPause,
		Physics: physics.Config{
			Width:           g.Width,
			Height:          g.Height,
			PlayerRadius:    p.PlayerRadius,
			BallRadius:      p.BallRadius,
			PlayerSpeed:     p.PlayerSpeed,
			Friction:        p.Friction,
			StopEpsilon:     p.StopEpsilon,
			GoalMouthHeight: p.GoalMouthHeight,
			KickStrength:    p.KickStrength,
			KickBoost:       p.KickBoost,
			WallRestitution: p.WallRestitution,
			CornerSize:      p.CornerSize,
			PlayerMass:      p.PlayerMass,
			BallMass:        p.BallMass,
			MaxBallSpeed:    p.MaxBallSpeed,
		},
	}
}

// TickInterval is the fixed simulation step.
func (c *Config) TickInterval() time.Duration {
	if c.Game.TickRate <= 0 {
		return time.Second / 60
	}
	return time.Second / time.Duration(c.Game.TickRate)
}

// PostgresDSN is the libpq connection string of the postgres section.
func (c *Config) PostgresDSN() string {
	pg := c.Database.Postgres
	sslmode := pg.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		pg.Host, pg.Port, pg.User, pg.Password, pg.DBName, sslmode)
}
