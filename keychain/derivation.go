package keychain

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
)

const (
	// HardenedKeyStart is the index at which hardened child keys start.
	HardenedKeyStart uint32 = 0x80000000

	// BIP0044Purpose is the purpose level of every key path we derive. All
	// wallets following BIP44 place their accounts below m/44'.
	BIP0044Purpose = 44

	// CoinTypeBitcoin specifies the BIP44 coin type for Bitcoin key
	// derivation.
	CoinTypeBitcoin uint32 = 0

	// CoinTypeTestnet specifies the BIP44 coin type for all testnet key
	// derivation.
	CoinTypeTestnet uint32 = 1

	// CoinTypeLitecoin specifies the BIP44 coin type for Litecoin key
	// derivation.
	CoinTypeLitecoin uint32 = 2
)

// Branch is the BIP44 "change" level below an account.
type Branch uint32

const (
	// BranchExternal holds receiving addresses handed out to payers.
	BranchExternal Branch = 0

	// BranchInternal holds change addresses.
	BranchInternal Branch = 1
)

// ErrCannotDerivePrivKey is returned when a key ring cannot produce the
// private key for a descriptor, either because it is watch-only or because
// the public key does not match the locator.
var ErrCannotDerivePrivKey = errors.New("unable to derive private key")

// KeyLocator identifies a key by its position in the BIP44 hierarchy:
//
//   - m/44'/coinType'/account'/branch/index
type KeyLocator struct {
	// CoinType is the registered coin type of the chain.
	CoinType uint32

	// Account is the hardened account number.
	Account uint32

	// Branch selects external or internal (change) keys.
	Branch Branch

	// Index is the non-hardened address index.
	Index uint32
}

// IsEmpty returns true if a KeyLocator is "empty". This may be the case where
// we learn of a key from a remote cosigner, but don't know the precise
// details of its derivation.
func (k KeyLocator) IsEmpty() bool {
	return k == KeyLocator{}
}

// Path returns the full child index sequence from the master key.
func (k KeyLocator) Path() []uint32 {
	return append(k.AccountPath(), uint32(k.Branch), k.Index)
}

// AccountPath returns the hardened m/44'/coinType'/account' prefix.
func (k KeyLocator) AccountPath() []uint32 {
	return []uint32{
		HardenedKeyStart + BIP0044Purpose,
		HardenedKeyStart + k.CoinType,
		HardenedKeyStart + k.Account,
	}
}

// String renders the locator in the usual m/44'/0'/0'/0/1 notation.
func (k KeyLocator) String() string {
	return fmt.Sprintf("m/%d'/%d'/%d'/%d/%d", BIP0044Purpose, k.CoinType,
		k.Account, k.Branch, k.Index)
}

// KeyDescriptor wraps a KeyLocator and also optionally includes a public key.
// Either the KeyLocator must be non-empty, or the public key pointer be
// non-nil.
type KeyDescriptor struct {
	// KeyLocator is the internal KeyLocator of the descriptor.
	KeyLocator

	// PubKey is an optional public key that fully describes a target key.
	// If this is nil, the KeyLocator MUST NOT be empty.
	PubKey *btcec.PublicKey
}

// KeyRing performs public derivation of keys below a single account. A ring
// holding only an extended public key for the account can serve it.
type KeyRing interface {
	// DeriveKey derives the key at the passed locator.
	DeriveKey(keyLoc KeyLocator) (KeyDescriptor, error)
}

// SecretKeyRing is a KeyRing that can also produce private keys and sign with
// them.
type SecretKeyRing interface {
	KeyRing

	MessageSignerRing

	// DerivePrivKey derives the key pair described by keyDesc. If the
	// public key is set it must match the key at the locator, otherwise
	// ErrCannotDerivePrivKey is returned.
	DerivePrivKey(keyDesc KeyDescriptor) (*KeyPair, error)
}

// MessageSignerRing is an interface that abstracts away basic low-level ECDSA
// signing on keys within a key ring.
type MessageSignerRing interface {
	// SignMessage signs the given message, single or double SHA256 hashing
	// it first, with the private key described in the key locator.
	SignMessage(keyLoc KeyLocator, msg []byte,
		doubleHash bool) (*ecdsa.Signature, error)

	// SignMessageCompact signs msg with the private key described in the
	// key locator using the signed-message digest, and returns the
	// signature in the compact, public key recoverable format.
	SignMessageCompact(keyLoc KeyLocator, msg []byte) ([]byte, error)
}

// SingleKeyMessageSigner is an abstraction interface that hides the
// implementation of the low-level ECDSA signing operations by wrapping a
// single, specific private key.
type SingleKeyMessageSigner interface {
	// PubKey returns the public key of the wrapped private key.
	PubKey() *btcec.PublicKey

	// KeyLocator returns the locator that describes the wrapped private
	// key.
	KeyLocator() KeyLocator

	// SignMessage signs the given message, single or double SHA256 hashing
	// it first, with the wrapped private key.
	SignMessage(message []byte, doubleHash bool) (*ecdsa.Signature, error)

	// SignMessageCompact signs msg with the signed-message digest and
	// returns the signature in the compact, public key recoverable format.
	SignMessageCompact(message []byte) ([]byte, error)
}
