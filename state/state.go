package state

import (
	"errors"
	"sync"

	"github.com/wfunc/soccerserver/models"
)

// 状态机接口
type StateMachine interface {
	ChangeState(state State) error
	GetCurrentState() State
	AddTransition(from State, to State, condition func() bool) error
}

// 状态接口
type State interface {
	OnEnter()
	OnExit()
	OnUpdate(dt float64)
	GetID() string
	HandleAction(player Player, action Action) error
}

// Action is a discrete player request handled by the current state.
type Action string

const ActionReady Action = "ready"

var (
	// ErrTransitionNotAllowed is returned when a state transition is not allowed.
	ErrTransitionNotAllowed = errors.New("state transition not allowed")
	// ErrNotEnded is returned for a ready request while a match is not over.
	ErrNotEnded = errors.New("match has not ended")
)

// 基础状态机实现
type BaseStateMachine struct {
	currentState State
	transitions  map[string]map[string]func() bool // fromState -> toState -> condition
	mutex        sync.RWMutex
}

func NewBaseStateMachine(initialState State) *BaseStateMachine {
	machine := &BaseStateMachine{
		currentState: initialState,
		transitions:  make(map[string]map[string]func() bool),
	}
	initialState.OnEnter()
	return machine
}

// ChangeState runs OnExit/OnEnter with the machine locked; states must not call back into it from those hooks.
func (sm *BaseStateMachine) ChangeState(newState State) error {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	currentID := sm.currentState.GetID()
	newID := newState.GetID()

	// 检查是否有转换条件
	if conditions, exists := sm.transitions[currentID]; exists {
		if condition, exists := conditions[newID]; exists {
			if condition != nil && !condition() {
				return ErrTransitionNotAllowed
			}
		}
	}

	sm.currentState.OnExit()
	sm.currentState = newState
	sm.currentState.OnEnter()

	return nil
}

func (sm *BaseStateMachine) GetCurrentState() State {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()
	return sm.currentState
}

func (sm *BaseStateMachine) AddTransition(from State, to State, condition func() bool) error {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	fromID := from.GetID()
	toID := to.GetID()

	if _, exists := sm.transitions[fromID]; !exists {
		sm.transitions[fromID] = make(map[string]func() bool)
	}

	sm.transitions[fromID][toID] = condition
	return nil
}

// Phase maps the current state onto the snapshot phase.
func Phase(sm StateMachine) models.Phase {
	return models.Phase(sm.GetCurrentState().GetID())
}

// 房间状态基础结构
type RoomStateBase struct {
	ID   string
	Room RoomContext
}

func (s *RoomStateBase) GetID() string {
	return s.ID
}

func (s *RoomStateBase) OnEnter() {}

func (s *RoomStateBase) OnExit() {}

func (s *RoomStateBase) OnUpdate(dt float64) {}

func (s *RoomStateBase) HandleAction(player Player, action Action) error {
	if action == ActionReady {
		return ErrNotEnded
	}
	return nil
}

// bothTeamsPresent is the start condition of a match.
func bothTeamsPresent(room RoomContext) bool {
	red, blue := room.TeamSizes()
	return red > 0 && blue > 0
}
