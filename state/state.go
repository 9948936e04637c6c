package state

import (
	"errors"
	"sync"

	"github.com/wfunc/mafiaserver/models"
)

// 状态机接口
type StateMachine interface {
	ChangeState(state State) error
	GetCurrentState() State
	AddTransition(from models.Phase, to models.Phase, condition func() bool) error
	Epoch() uint64
}

// 状态接口
type State interface {
	OnEnter()
	OnExit()
	GetID() models.Phase
}

// ErrTransitionNotAllowed is returned when a state transition is not allowed.
var ErrTransitionNotAllowed = errors.New("state transition not allowed")

// 基础状态机实现
//
// Once any transition has been registered for a phase, only registered
// targets are reachable from it; a phase with no registrations is terminal.
// Epoch increments on every successful change so that delayed callbacks can
// detect that the machine moved on while they were waiting.
type BaseStateMachine struct {
	currentState State
	transitions  map[models.Phase]map[models.Phase]func() bool // fromState -> toState -> condition
	epoch        uint64
	mutex        sync.RWMutex
}

var _ StateMachine = (*BaseStateMachine)(nil)

func NewBaseStateMachine(initialState State) *BaseStateMachine {
	machine := &BaseStateMachine{
		currentState: initialState,
		transitions:  make(map[models.Phase]map[models.Phase]func() bool),
	}
	initialState.OnEnter()
	return machine
}

// ChangeState swaps the current state. OnExit and OnEnter run after the
// machine lock is released so that a state may itself trigger a change.
func (sm *BaseStateMachine) ChangeState(newState State) error {
	sm.mutex.Lock()
	old := sm.currentState
	currentID := old.GetID()
	newID := newState.GetID()

	conditions, exists := sm.transitions[currentID]
	if !exists {
		sm.mutex.Unlock()
		return ErrTransitionNotAllowed
	}
	condition, exists := conditions[newID]
	if !exists || (condition != nil && !condition()) {
		sm.mutex.Unlock()
		return ErrTransitionNotAllowed
	}

	sm.currentState = newState
	sm.epoch++
	sm.mutex.Unlock()

	old.OnExit()
	newState.OnEnter()
	return nil
}

func (sm *BaseStateMachine) GetCurrentState() State {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()
	return sm.currentState
}

// Phase is a shortcut for GetCurrentState().GetID().
func (sm *BaseStateMachine) Phase() models.Phase {
	return sm.GetCurrentState().GetID()
}

func (sm *BaseStateMachine) Epoch() uint64 {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()
	return sm.epoch
}

func (sm *BaseStateMachine) AddTransition(from models.Phase, to models.Phase, condition func() bool) error {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	if _, exists := sm.transitions[from]; !exists {
		sm.transitions[from] = make(map[models.Phase]func() bool)
	}

	sm.transitions[from][to] = condition
	return nil
}

// CanTransition reports whether a change to "to" would currently be accepted.
func (sm *BaseStateMachine) CanTransition(to models.Phase) bool {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()
	condition, ok := sm.transitions[sm.currentState.GetID()][to]
	return ok && (condition == nil || condition())
}

// 阶段状态基础结构
type PhaseStateBase struct {
	ID models.Phase
}

func (s *PhaseStateBase) GetID() models.Phase {
	return s.ID
}

func (s *PhaseStateBase) OnEnter() {
	// 默认实现
}

func (s *PhaseStateBase) OnExit() {
	// 默认实现
}

// FuncState is a State whose hooks are plain functions.
type FuncState struct {
	PhaseStateBase
	Enter func()
	Exit  func()
}

func NewFuncState(id models.Phase, enter, exit func()) *FuncState {
	return &FuncState{PhaseStateBase: PhaseStateBase{ID: id}, Enter: enter, Exit: exit}
}

func (s *FuncState) OnEnter() {
	if s.Enter != nil {
		s.Enter()
	}
}

func (s *FuncState) OnExit() {
	if s.Exit != nil {
		s.Exit()
	}
}
