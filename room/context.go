package room

import (
	"time"

	"github.com/wfunc/soccerserver/geometry"
	"github.com/wfunc/soccerserver/logger"
	"github.com/wfunc/soccerserver/models"
	"github.com/wfunc/soccerserver/physics"
	"github.com/wfunc/soccerserver/state"
)

// roomContext exposes the room to its match states. Every method runs with r.mutex held.
type roomContext struct {
	r *Room
}

func (c *roomContext) GetID() string {
	return c.r.ID
}

func (c *roomContext) TeamSizes() (int, int) {
	return len(c.r.teams.Red), len(c.r.teams.Blue)
}

func (c *roomContext) PlayerIDs() []string {
	return c.r.orderedIDs()
}

func (c *roomContext) ChangeState(newState state.State) error {
	return c.r.machine.ChangeState(newState)
}

func (c *roomContext) Clock() *state.MatchClock {
	return c.r.clock
}

func (c *roomContext) StepPhysics(dt float64) *physics.Goal {
	return c.r.engine.Step(c.r.bodies(), &c.r.ball, dt)
}

// AwardGoal credits the scoring team and, unless it was an own goal, the last toucher.
func (c *roomContext) AwardGoal(g physics.Goal) {
	r := c.r
	if g.Team == models.TeamRed {
		r.score.Red++
	} else {
		r.score.Blue++
	}

	ev := models.Event{Type: models.EventGoal, Team: g.Team, OwnGoal: g.OwnGoal()}
	if p, ok := r.players[g.Toucher]; ok && !ev.OwnGoal {
		p.Goals++
		ev.Scorer = p.ID
	}
	score := r.score
	ev.Score = &score
	r.emit(ev)
	r.engine.ResetBall(&r.ball)

	logger.Log.Infof("room %s: goal for %s (scorer=%q own=%v) %d-%d", r.ID, g.Team, ev.Scorer, ev.OwnGoal, r.score.Red, r.score.Blue)
}

// StartMatch resets score, clock and personal goals and lines both teams up for kickoff.
func (c *roomContext) StartMatch() {
	r := c.r
	r.score = models.Score{}
	r.clock.Reset()
	r.result = nil
	r.engine.ResetBall(&r.ball)

	for _, side := range []struct {
		team models.Team
		ids  []string
	}{{models.TeamRed, r.teams.Red}, {models.TeamBlue, r.teams.Blue}} {
		for i, id := range side.ids {
			p := r.players[id]
			p.Goals = 0
			p.Vel = geometry.Vec2{}
			p.Pos = r.engine.KickoffPosition(side.team, i, len(side.ids))
		}
	}
	r.emit(models.Event{Type: models.EventMatchStart})
	logger.Log.Infof("room %s: match started %d vs %d", r.ID, len(r.teams.Red), len(r.teams.Blue))
}

// FinishMatch stores the match result and announces the winner.
func (c *roomContext) FinishMatch() {
	r := c.r
	score := r.score
	winner := score.Winner()

	res := &models.MatchResult{
		RoomID:   r.ID,
		Score:    score,
		Winner:   winner,
		Duration: r.clock.Played(),
		EndedAt:  time.Now(),
	}
	for _, id := range r.orderedIDs() {
		p := r.players[id]
		res.Players = append(res.Players, models.MatchPlayer{SocketID: id, UserID: p.UserID, Team: p.Team, Goals: p.Goals})
	}
	r.result = res
	r.emit(models.Event{Type: models.EventMatchEnd, Winner: winner, Score: &score})

	logger.Log.Infof("room %s: match ended %d-%d, winner %s", r.ID, score.Red, score.Blue, winner)
}

func (c *roomContext) Emit(e models.Event) {
	c.r.emit(e)
}
