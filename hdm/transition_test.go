package hdm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestTransitionHappyPath walks the protocol from Idle to Complete.
func TestTransitionHappyPath(t *testing.T) {
	t.Parallel()

	steps := []struct {
		event   Event
		next    State
		effects []Effect
	}{
		{
			event:   &EntropyCreated{},
			next:    StateEntropyGenerated,
			effects: []Effect{&DeriveHotKey{}},
		},
		{
			event:   &HotKeyReady{},
			next:    StateHotDerived,
			effects: []Effect{&DeriveColdKey{}},
		},
		{
			event: &ColdKeyReady{},
			next:  StateColdDerived,
			effects: []Effect{
				&EscrowColdKey{}, &RequestChallenge{},
			},
		},
		{
			event:   &ChallengeReceived{Nonce: "n"},
			next:    StateColdDerived,
			effects: []Effect{&UploadBinding{Nonce: "n"}},
		},
		{
			event:   &BindingAccepted{},
			next:    StateServerBound,
			effects: []Effect{&FetchCosigners{}},
		},
		{
			event:   &CosignersReceived{},
			next:    StateServerBound,
			effects: []Effect{&ProvisionAddresses{}},
		},
		{
			event:   &AddressesProvisioned{},
			next:    StateServerBound,
			effects: []Effect{&RecordBinding{}},
		},
		{
			event:   &BindingRecorded{},
			next:    StateComplete,
			effects: []Effect{&WipeColdKey{}},
		},
	}

	state := StateIdle
	for _, step := range steps {
		next, effects, err := Transition(state, step.event)
		require.NoError(t, err, "%T in %v", step.event, state)
		require.Equal(t, step.next, next)
		require.Equal(t, step.effects, effects)

		state = next
	}
	require.True(t, state.IsTerminal())
}

// TestTransitionFailures checks that every failure between Idle and Complete
// lands in Error and wipes the cold half.
func TestTransitionFailures(t *testing.T) {
	t.Parallel()

	failures := []Event{
		&ServiceFailed{Err: errors.New("down")},
		&LocalFailed{Err: errors.New("disk")},
	}
	for _, state := range []State{
		StateEntropyGenerated, StateHotDerived, StateColdDerived,
		StateServerBound,
	} {
		for _, failure := range failures {
			next, effects, err := Transition(state, failure)
			require.NoError(t, err)
			require.Equal(t, StateError, next)
			require.Equal(t, []Effect{
				&DropEscrow{}, &WipeColdKey{},
			}, effects)
		}
	}

	next, effects, err := Transition(StateColdDerived, &BindingRejected{})
	require.NoError(t, err)
	require.Equal(t, StateError, next)
	require.Equal(t, []Effect{&DropEscrow{}, &WipeColdKey{}}, effects)
}

// TestTransitionReset checks that every state resets to Idle, and that only
// a completed run keeps its stored escrow.
func TestTransitionReset(t *testing.T) {
	t.Parallel()

	for state := StateIdle; state <= StateError; state++ {
		next, effects, err := Transition(state, &Reset{})
		require.NoError(t, err)
		require.Equal(t, StateIdle, next)

		if state == StateComplete {
			require.Equal(t, []Effect{&WipeAll{}}, effects)
			continue
		}
		require.Equal(t, []Effect{&DropEscrow{}, &WipeAll{}}, effects)
	}
}

// TestTransitionInvalid checks that out of order events are refused without
// a state change.
func TestTransitionInvalid(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		state State
		event Event
	}{
		{StateIdle, &HotKeyReady{}},
		{StateIdle, &ServiceFailed{Err: errors.New("x")}},
		{StateEntropyGenerated, &EntropyCreated{}},
		{StateHotDerived, &BindingAccepted{}},
		{StateColdDerived, &AddressesProvisioned{}},
		{StateServerBound, &ChallengeReceived{}},
		{StateColdDerived, &BindingRecorded{}},
		{StateComplete, &EntropyCreated{}},
		{StateComplete, &LocalFailed{Err: errors.New("x")}},
		{StateError, &EntropyCreated{}},
		{StateError, &ServiceFailed{Err: errors.New("x")}},
	}

	for _, tc := range testCases {
		next, effects, err := Transition(tc.state, tc.event)
		require.ErrorIs(t, err, ErrInvalidTransition)
		require.Equal(t, tc.state, next)
		require.Empty(t, effects)
	}
}

func TestStateString(t *testing.T) {
	t.Parallel()

	require.Equal(t, "ColdDerived", StateColdDerived.String())
	require.Equal(t, "Error", StateError.String())
	require.Equal(t, "Unknown", State(42).String())
	require.False(t, StateServerBound.IsTerminal())
}
