package hdm

import (
	"github.com/btcsuite/btcd/btcec/v2"
)

// Event is something that happened to a binding run. The set of events is
// closed.
type Event interface {
	eventSealed()
}

// EntropyCreated is sent once fresh entropy is held.
type EntropyCreated struct{}

// HotKeyReady is sent once the hot chain is derived.
type HotKeyReady struct{}

// ColdKeyReady is sent once the cold chain is derived.
type ColdKeyReady struct{}

// ChallengeReceived carries the server's nonce for the hot address.
type ChallengeReceived struct {
	Nonce string
}

// BindingAccepted is sent when the server accepts the signed challenge.
type BindingAccepted struct{}

// BindingRejected is sent when the server refuses the signed challenge.
type BindingRejected struct{}

// CosignersReceived carries one server key per receiving address.
type CosignersReceived struct {
	ServerKeys []*btcec.PublicKey
}

// AddressesProvisioned carries the provisioned receiving addresses.
type AddressesProvisioned struct {
	Addresses []Address
}

// BindingRecorded is sent once the escrow and binding record are stored.
type BindingRecorded struct{}

// ServiceFailed is sent when a call to the server fails.
type ServiceFailed struct {
	Err error
}

// LocalFailed is sent when a local step, such as the escrow stretch, fails.
type LocalFailed struct {
	Err error
}

// Reset returns the protocol to Idle from any state.
type Reset struct{}

func (*EntropyCreated) eventSealed()       {}
func (*HotKeyReady) eventSealed()          {}
func (*ColdKeyReady) eventSealed()         {}
func (*ChallengeReceived) eventSealed()    {}
func (*BindingAccepted) eventSealed()      {}
func (*BindingRejected) eventSealed()      {}
func (*CosignersReceived) eventSealed()    {}
func (*AddressesProvisioned) eventSealed() {}
func (*BindingRecorded) eventSealed()      {}
func (*ServiceFailed) eventSealed()        {}
func (*LocalFailed) eventSealed()          {}
func (*Reset) eventSealed()                {}

// Effect is work a transition asks the driver to carry out. The set of
// effects is closed.
type Effect interface {
	effectSealed()
}

// DeriveHotKey derives the hot mnemonic, seed and account chain from the
// first half of the entropy.
type DeriveHotKey struct{}

// DeriveColdKey derives the cold mnemonic, seed and account chain from the
// second half of the entropy.
type DeriveColdKey struct{}

// EscrowColdKey password encrypts the cold root key. The escrow is stored
// along with the binding record.
type EscrowColdKey struct{}

// RequestChallenge asks the server for a nonce for the hot address.
type RequestChallenge struct{}

// UploadBinding signs the challenge with the cold key and uploads it.
type UploadBinding struct {
	Nonce string
}

// FetchCosigners asks the server for its cosigner keys.
type FetchCosigners struct{}

// ProvisionAddresses builds the 2-of-3 receiving addresses.
type ProvisionAddresses struct {
	ServerKeys []*btcec.PublicKey
}

// RecordBinding stores the cold key escrow, then stamps and stores the
// binding.
type RecordBinding struct {
	Addresses []Address
}

// DropEscrow removes a stored cold key escrow of an unfinished run.
type DropEscrow struct{}

// WipeColdKey wipes every private buffer of the cold half.
type WipeColdKey struct{}

// WipeAll wipes every private buffer and forgets the run.
type WipeAll struct{}

func (*DeriveHotKey) effectSealed()       {}
func (*DeriveColdKey) effectSealed()      {}
func (*EscrowColdKey) effectSealed()      {}
func (*RequestChallenge) effectSealed()   {}
func (*UploadBinding) effectSealed()      {}
func (*FetchCosigners) effectSealed()     {}
func (*ProvisionAddresses) effectSealed() {}
func (*RecordBinding) effectSealed()      {}
func (*DropEscrow) effectSealed()         {}
func (*WipeColdKey) effectSealed()        {}
func (*WipeAll) effectSealed()            {}
