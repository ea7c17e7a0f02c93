package room

import (
	"slices"

	"github.com/wfunc/soccerserver/logger"
	"github.com/wfunc/soccerserver/models"
)

// AssignTeam picks the side with fewer members. Ties go to red.
func AssignTeam(teams models.Teams) models.Team {
	if len(teams.Red) <= len(teams.Blue) {
		return models.TeamRed
	}
	return models.TeamBlue
}

func (r *Room) addToTeam(socketID string, team models.Team) {
	if team == models.TeamRed {
		r.teams.Red = append(r.teams.Red, socketID)
	} else {
		r.teams.Blue = append(r.teams.Blue, socketID)
	}
}

func (r *Room) removeFromTeam(socketID string, team models.Team) {
	if team == models.TeamRed {
		r.teams.Red = slices.DeleteFunc(r.teams.Red, func(id string) bool { return id == socketID })
	} else {
		r.teams.Blue = slices.DeleteFunc(r.teams.Blue, func(id string) bool { return id == socketID })
	}
}

// rebalance moves the newest player of the larger side across when the sides differ by more than one.
func (r *Room) rebalance() {
	from, to := models.TeamRed, models.TeamBlue
	src := r.teams.Red
	if len(r.teams.Blue) > len(r.teams.Red) {
		from, to = to, from
		src = r.teams.Blue
	}
	if len(src)-(len(r.teams.Red)+len(r.teams.Blue)-len(src)) <= 1 {
		return
	}

	id := src[len(src)-1]
	r.removeFromTeam(id, from)
	r.addToTeam(id, to)
	r.players[id].Team = to
	r.emit(models.Event{Type: models.EventTeamChanged, SocketID: id, Team: to})

	logger.Log.Infof("room %s: moved %s from %s to %s", r.ID, id, from, to)
}
