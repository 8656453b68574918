package hdkey

import "errors"

var (
	// ErrInvalidSeedLen is returned when a master seed is shorter than
	// MinSeedBytes or longer than MaxSeedBytes.
	ErrInvalidSeedLen = errors.New("seed length must be between 128 " +
		"and 512 bits")

	// ErrUnusableSeed is returned when the left half of the master HMAC is
	// zero or not below the curve order. The caller should pick another
	// seed.
	ErrUnusableSeed = errors.New("unusable seed")

	// ErrDeriveHardFromPublic is returned when a hardened child is
	// requested from a public-only key.
	ErrDeriveHardFromPublic = errors.New("cannot derive a hardened key " +
		"from a public key")

	// ErrDeriveBeyondMaxDepth is returned when a child would sit deeper
	// than the single depth byte of the record can express.
	ErrDeriveBeyondMaxDepth = errors.New("cannot derive a key with more " +
		"than 255 indices in its path")

	// ErrInvalidChild is returned when the child at an index is not a valid
	// key. The chance of this is below 1 in 2^127; the convention is to
	// move on to the next index, see DeriveNext.
	ErrInvalidChild = errors.New("the extended key at this index is " +
		"invalid")

	// ErrNotPrivExtKey is returned when a private key is requested from a
	// public extended key.
	ErrNotPrivExtKey = errors.New("unable to create private keys from a " +
		"public extended key")

	// ErrInvalidKeyLen is returned when a serialized extended key is not
	// the expected length.
	ErrInvalidKeyLen = errors.New("the provided serialized extended key " +
		"length is invalid")

	// ErrBadChecksum is returned when the checksum of a serialized extended
	// key does not match.
	ErrBadChecksum = errors.New("bad extended key checksum")

	// ErrUnknownHDKeyID is returned when the version bytes of a serialized
	// extended key do not belong to any of the candidate networks.
	ErrUnknownHDKeyID = errors.New("unknown hd key version")

	// ErrInvalidKeyData is returned when the key data of a serialized
	// extended key is malformed.
	ErrInvalidKeyData = errors.New("invalid extended key data")

	// ErrInvalidPath is returned when a textual derivation path cannot be
	// parsed.
	ErrInvalidPath = errors.New("invalid derivation path")

	// ErrMissingPrivateKey is returned when no node between a key and the
	// root of its tree carries private material.
	ErrMissingPrivateKey = errors.New("no ancestor holds a private key")

	// ErrIntegrityFault is returned when re-deriving a node's private key
	// yields a public key that differs from the stored one. It means the
	// tree is corrupt and must not be used for signing.
	ErrIntegrityFault = errors.New("re-derived key does not match stored " +
		"public key")

	// ErrUnknownNode is returned for node ids the tree does not hold.
	ErrUnknownNode = errors.New("unknown key node")

	// ErrNotChild is returned when a key inserted under a parent was not
	// derived from it.
	ErrNotChild = errors.New("key is not a child of the given parent")
)
