package hdm

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is returned for an event the current state does not
// accept.
var ErrInvalidTransition = errors.New("invalid binding transition")

// Transition returns the state that follows state on event and the effects
// the driver must carry out, in order. It has no side effects.
func Transition(state State, event Event) (State, []Effect, error) {
	switch event.(type) {
	case *Reset:
		if state == StateComplete {
			return StateIdle, []Effect{&WipeAll{}}, nil
		}

		return StateIdle, []Effect{&DropEscrow{}, &WipeAll{}}, nil

	case *ServiceFailed, *LocalFailed:
		if state == StateIdle || state.IsTerminal() {
			break
		}

		return StateError, failEffects(), nil
	}

	switch state {
	case StateIdle:
		if _, ok := event.(*EntropyCreated); ok {
			return StateEntropyGenerated,
				[]Effect{&DeriveHotKey{}}, nil
		}

	case StateEntropyGenerated:
		if _, ok := event.(*HotKeyReady); ok {
			return StateHotDerived, []Effect{&DeriveColdKey{}}, nil
		}

	case StateHotDerived:
		if _, ok := event.(*ColdKeyReady); ok {
			return StateColdDerived, []Effect{
				&EscrowColdKey{}, &RequestChallenge{},
			}, nil
		}

	case StateColdDerived:
		switch e := event.(type) {
		case *ChallengeReceived:
			return StateColdDerived, []Effect{
				&UploadBinding{Nonce: e.Nonce},
			}, nil

		case *BindingAccepted:
			return StateServerBound, []Effect{&FetchCosigners{}}, nil

		case *BindingRejected:
			return StateError, failEffects(), nil
		}

	case StateServerBound:
		switch e := event.(type) {
		case *CosignersReceived:
			return StateServerBound, []Effect{
				&ProvisionAddresses{ServerKeys: e.ServerKeys},
			}, nil

		case *AddressesProvisioned:
			return StateServerBound, []Effect{
				&RecordBinding{Addresses: e.Addresses},
			}, nil

		case *BindingRecorded:
			return StateComplete, []Effect{&WipeColdKey{}}, nil
		}
	}

	return state, nil, fmt.Errorf("%w: %T in state %v",
		ErrInvalidTransition, event, state)
}

// failEffects are the effects of entering Error: nothing of the run may stay
// persisted and the cold half is wiped.
func failEffects() []Effect {
	return []Effect{&DropEscrow{}, &WipeColdKey{}}
}
