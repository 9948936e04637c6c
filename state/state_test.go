package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/mafiaserver/models"
)

// MockState is a test double for the State interface.
// It helps us track which methods have been called.
type MockState struct {
	ID            models.Phase
	OnEnterCalled bool
	OnExitCalled  bool
}

func (m *MockState) OnEnter() {
	m.OnEnterCalled = true
}

func (m *MockState) OnExit() {
	m.OnExitCalled = true
}

func (m *MockState) GetID() models.Phase {
	return m.ID
}

// reset clears the call tracking flags.
func (m *MockState) reset() {
	m.OnEnterCalled = false
	m.OnExitCalled = false
}

func TestStateMachine_InitialState(t *testing.T) {
	initialState := &MockState{ID: models.PhaseLobby}
	sm := NewBaseStateMachine(initialState)

	assert.True(t, initialState.OnEnterCalled, "OnEnter should run for the initial state")
	assert.Equal(t, initialState, sm.GetCurrentState())
	assert.Equal(t, models.PhaseLobby, sm.Phase())
	assert.Zero(t, sm.Epoch())
}

func TestStateMachine_ChangeState(t *testing.T) {
	initialState := &MockState{ID: models.PhaseLobby}
	nextState := &MockState{ID: models.PhaseNightSleep}

	sm := NewBaseStateMachine(initialState)
	require.NoError(t, sm.AddTransition(models.PhaseLobby, models.PhaseNightSleep, nil))
	initialState.reset()

	require.NoError(t, sm.ChangeState(nextState))

	assert.True(t, initialState.OnExitCalled, "OnExit should run on the old state")
	assert.True(t, nextState.OnEnterCalled, "OnEnter should run on the new state")
	assert.Equal(t, nextState, sm.GetCurrentState())
	assert.Equal(t, uint64(1), sm.Epoch())
}

func TestStateMachine_UnregisteredTransition(t *testing.T) {
	lobby := &MockState{ID: models.PhaseLobby}
	over := &MockState{ID: models.PhaseGameOver}
	sm := NewBaseStateMachine(lobby)
	require.NoError(t, sm.AddTransition(models.PhaseLobby, models.PhaseNightSleep, nil))

	err := sm.ChangeState(over)
	assert.ErrorIs(t, err, ErrTransitionNotAllowed)
	assert.Equal(t, models.PhaseLobby, sm.Phase())
	assert.Zero(t, sm.Epoch())
	assert.False(t, over.OnEnterCalled)
}

func TestStateMachine_TerminalState(t *testing.T) {
	over := &MockState{ID: models.PhaseGameOver}
	sm := NewBaseStateMachine(over)

	err := sm.ChangeState(&MockState{ID: models.PhaseNightSleep})
	assert.ErrorIs(t, err, ErrTransitionNotAllowed)
	assert.False(t, sm.CanTransition(models.PhaseNightSleep))
}

func TestStateMachine_ConditionalTransition(t *testing.T) {
	stateA := &MockState{ID: models.PhaseNightMafia}
	stateB := &MockState{ID: models.PhaseNightNurse}
	stateC := &MockState{ID: models.PhaseNightDetective}

	sm := NewBaseStateMachine(stateA)
	require.NoError(t, sm.AddTransition(stateA.ID, stateB.ID, func() bool { return true }))
	require.NoError(t, sm.AddTransition(stateB.ID, stateC.ID, func() bool { return false }))

	require.NoError(t, sm.ChangeState(stateB))
	assert.Equal(t, stateB.ID, sm.Phase())

	stateB.reset()
	err := sm.ChangeState(stateC)
	assert.ErrorIs(t, err, ErrTransitionNotAllowed)
	assert.Equal(t, stateB.ID, sm.Phase())
	assert.False(t, stateB.OnExitCalled, "OnExit must not run when the transition is blocked")
	assert.False(t, stateC.OnEnterCalled, "OnEnter must not run when the transition is blocked")
}

func TestStateMachine_EnterMayChangeState(t *testing.T) {
	var sm *BaseStateMachine
	final := NewFuncState(models.PhaseGameOver, nil, nil)
	wake := NewFuncState(models.PhaseDayWake, func() {
		_ = sm.ChangeState(final)
	}, nil)
	sm = NewBaseStateMachine(NewFuncState(models.PhaseNightDetective, nil, nil))
	require.NoError(t, sm.AddTransition(models.PhaseNightDetective, models.PhaseDayWake, nil))
	require.NoError(t, sm.AddTransition(models.PhaseDayWake, models.PhaseGameOver, nil))

	require.NoError(t, sm.ChangeState(wake))
	assert.Equal(t, models.PhaseGameOver, sm.Phase())
	assert.Equal(t, uint64(2), sm.Epoch())
}
