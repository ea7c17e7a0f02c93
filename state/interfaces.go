// state/interfaces.go
package state

import (
	"github.com/wfunc/soccerserver/models"
	"github.com/wfunc/soccerserver/physics"
)

// Player defines the minimal interface for a player entity that a state needs to interact with.
type Player interface {
	GetID() string
}

// RoomContext defines the interface that a Room must implement to be managed by the state machine.
// This breaks the import cycle between room and state. Implementations are called with the
// room already locked and must not lock again.
type RoomContext interface {
	GetID() string
	TeamSizes() (red, blue int)
	PlayerIDs() []string
	ChangeState(newState State) error
	Clock() *MatchClock

	StepPhysics(dt float64) *physics.Goal
	AwardGoal(goal physics.Goal)
	StartMatch()
	FinishMatch()
	Emit(event models.Event)
}
