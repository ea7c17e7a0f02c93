package state

import (
	"time"

	"github.com/wfunc/soccerserver/logger"
	"github.com/wfunc/soccerserver/models"
)

// MatchStates bundles the four phases of one room so they can reach each other.
type MatchStates struct {
	Waiting   *WaitingState
	Playing   *PlayingState
	GoalPause *GoalPauseState
	Ended     *EndedState
}

// NewMatchStates builds the phases for room and a machine starting in Waiting.
func NewMatchStates(room RoomContext, goalPause time.Duration) (*MatchStates, *BaseStateMachine) {
	ms := &MatchStates{}
	ms.Waiting = &WaitingState{RoomStateBase: RoomStateBase{ID: string(models.PhaseWaiting), Room: room}, states: ms}
	ms.Playing = &PlayingState{RoomStateBase: RoomStateBase{ID: string(models.PhasePlaying), Room: room}, states: ms}
	ms.GoalPause = &GoalPauseState{
		RoomStateBase: RoomStateBase{ID: string(models.PhaseGoalPause), Room: room},
		states:        ms,
		pause:         goalPause.Seconds(),
	}
	ms.Ended = &EndedState{RoomStateBase: RoomStateBase{ID: string(models.PhaseEnded), Room: room}, states: ms}

	sm := NewBaseStateMachine(ms.Waiting)
	sm.AddTransition(ms.Waiting, ms.Playing, func() bool { return bothTeamsPresent(room) })
	sm.AddTransition(ms.Ended, ms.Waiting, ms.Ended.AllReady)
	return ms, sm
}

// 等待状态
type WaitingState struct {
	RoomStateBase
	states *MatchStates
}

func (s *WaitingState) OnEnter() {
	s.Room.Emit(models.Event{Type: models.EventWaitingForPlayers})
}

// OnUpdate kicks off a fresh match as soon as both sides have a player.
func (s *WaitingState) OnUpdate(dt float64) {
	if !bothTeamsPresent(s.Room) {
		return
	}
	s.Room.StartMatch()
	enter(s.Room, s.states.Playing, "start match")
}

// 比赛进行状态
type PlayingState struct {
	RoomStateBase
	states *MatchStates
}

func (s *PlayingState) OnUpdate(dt float64) {
	if !bothTeamsPresent(s.Room) {
		logger.Log.Infof("room %s: one team is empty, waiting for players", s.Room.GetID())
		enter(s.Room, s.states.Waiting, "wait for players")
		return
	}

	goal := s.Room.StepPhysics(dt)
	expired := s.Room.Clock().Tick(dt)
	if goal != nil {
		s.Room.AwardGoal(*goal)
	}

	switch {
	case expired:
		enter(s.Room, s.states.Ended, "end match")
	case goal != nil:
		enter(s.Room, s.states.GoalPause, "goal pause")
	}
}

// 进球暂停状态: ball stays on the centre spot, players do not move
type GoalPauseState struct {
	RoomStateBase
	states  *MatchStates
	pause   float64
	elapsed float64
}

func (s *GoalPauseState) OnEnter() {
	s.elapsed = 0
}

func (s *GoalPauseState) OnUpdate(dt float64) {
	if !bothTeamsPresent(s.Room) {
		enter(s.Room, s.states.Waiting, "wait for players")
		return
	}
	s.elapsed += dt
	if s.elapsed < s.pause {
		return
	}
	s.Room.Emit(models.Event{Type: models.EventGoalPauseEnd})
	enter(s.Room, s.states.Playing, "resume play")
}

// 比赛结束状态, left only when every connected player is ready
type EndedState struct {
	RoomStateBase
	states *MatchStates
	ready  map[string]bool
}

func (s *EndedState) OnEnter() {
	s.ready = make(map[string]bool)
	s.Room.FinishMatch()
}

func (s *EndedState) OnUpdate(dt float64) {
	s.tryRestart()
}

func (s *EndedState) HandleAction(player Player, action Action) error {
	if action != ActionReady {
		return nil
	}
	if !s.ready[player.GetID()] {
		s.ready[player.GetID()] = true
		s.Room.Emit(models.Event{Type: models.EventPlayerReady, SocketID: player.GetID()})
	}
	s.tryRestart()
	return nil
}

// AllReady reports whether at least one player is present and all present players are ready.
// Players that left are ignored.
func (s *EndedState) AllReady() bool {
	ids := s.Room.PlayerIDs()
	if len(ids) == 0 {
		return false
	}
	for _, id := range ids {
		if !s.ready[id] {
			return false
		}
	}
	return true
}

func (s *EndedState) tryRestart() {
	if err := s.Room.ChangeState(s.states.Waiting); err == nil {
		logger.Log.Infof("room %s: all players ready, restarting", s.Room.GetID())
	}
}

// enter moves the room to next and logs a refused transition.
func enter(room RoomContext, next State, what string) {
	if err := room.ChangeState(next); err != nil {
		logger.Log.Warnf("room %s: %s: %v", room.GetID(), what, err)
	}
}
