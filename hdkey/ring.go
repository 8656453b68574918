package hdkey

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/hdmwallet/hdmcore/keychain"
)

// Ring is a keychain.SecretKeyRing backed by a Tree. Derived keys are stored
// public-only; private keys are re-derived from the root when a caller asks
// for them, and wiped by the caller after use.
//
// The root may sit at any depth. A root at depth d is taken to be the node at
// the first d indices of every locator handed to the ring, so an account node
// serves locators of that account.
type Ring struct {
	tree *Tree
	root NodeID
}

// A compile time check to ensure Ring implements the SecretKeyRing
// interface.
var _ keychain.SecretKeyRing = (*Ring)(nil)

// NewRing creates a ring rooted at root and stores the root in tree.
func NewRing(tree *Tree, root *ExtendedKey) (*Ring, error) {
	id, err := tree.Insert(root, noParent)
	if err != nil {
		return nil, err
	}

	return &Ring{
		tree: tree,
		root: id,
	}, nil
}

// Tree returns the arena the ring stores its keys in.
func (r *Ring) Tree() *Tree {
	return r.tree
}

// Root returns the id of the ring's root node.
func (r *Ring) Root() NodeID {
	return r.root
}

// relativePath strips the part of the locator's path the root already
// covers.
func (r *Ring) relativePath(keyLoc keychain.KeyLocator) (Path, error) {
	root, err := r.tree.Key(r.root)
	if err != nil {
		return nil, err
	}

	full := keyLoc.Path()
	if int(root.Depth()) > len(full) {
		return nil, fmt.Errorf("%w: root depth %d below locator %v",
			ErrInvalidPath, root.Depth(), keyLoc)
	}

	return PathFromUint32(full[root.Depth():]), nil
}

// NodeFor derives, or looks up, the node at the locator.
func (r *Ring) NodeFor(keyLoc keychain.KeyLocator) (NodeID, error) {
	path, err := r.relativePath(keyLoc)
	if err != nil {
		return 0, err
	}

	return r.tree.DerivePublicPath(r.root, path)
}

// DeriveKey derives the public key at the passed locator.
//
// NOTE: This is part of the keychain.KeyRing interface.
func (r *Ring) DeriveKey(
	keyLoc keychain.KeyLocator) (keychain.KeyDescriptor, error) {

	id, err := r.NodeFor(keyLoc)
	if err != nil {
		return keychain.KeyDescriptor{}, err
	}

	key, err := r.tree.Key(id)
	if err != nil {
		return keychain.KeyDescriptor{}, err
	}

	return keychain.KeyDescriptor{
		KeyLocator: keyLoc,
		PubKey:     key.PubKey(),
	}, nil
}

// DerivePrivKey returns the key pair described by keyDesc. The pair is owned
// by the caller, who should Zero it once done.
//
// NOTE: This is part of the keychain.SecretKeyRing interface.
func (r *Ring) DerivePrivKey(
	keyDesc keychain.KeyDescriptor) (*keychain.KeyPair, error) {

	id, err := r.NodeFor(keyDesc.KeyLocator)
	if err != nil {
		return nil, err
	}

	key, err := r.tree.PrivateKey(id)
	if err != nil {
		return nil, err
	}

	if keyDesc.PubKey != nil && !keyDesc.PubKey.IsEqual(key.PubKey()) {
		key.Zero()
		return nil, keychain.ErrCannotDerivePrivKey
	}

	return key.KeyPair(), nil
}

// SignMessage signs the given message, single or double SHA256 hashing it
// first, with the private key described in the key locator.
//
// NOTE: This is part of the keychain.MessageSignerRing interface.
func (r *Ring) SignMessage(keyLoc keychain.KeyLocator, msg []byte,
	doubleHash bool) (*ecdsa.Signature, error) {

	keyPair, err := r.DerivePrivKey(keychain.KeyDescriptor{
		KeyLocator: keyLoc,
	})
	if err != nil {
		return nil, err
	}
	defer keyPair.Zero()

	var digest []byte
	if doubleHash {
		digest = chainhash.DoubleHashB(msg)
	} else {
		digest = chainhash.HashB(msg)
	}

	return keyPair.Sign(digest)
}

// SignMessageCompact signs msg in the standard signed-message format with the
// private key described in the key locator.
//
// NOTE: This is part of the keychain.MessageSignerRing interface.
func (r *Ring) SignMessageCompact(keyLoc keychain.KeyLocator,
	msg []byte) ([]byte, error) {

	keyPair, err := r.DerivePrivKey(keychain.KeyDescriptor{
		KeyLocator: keyLoc,
	})
	if err != nil {
		return nil, err
	}
	defer keyPair.Zero()

	signer := keychain.NewPrivKeyMessageSigner(keyPair, keyLoc)

	return signer.SignMessageCompact(msg)
}

// Wipe zeroes every private key held by the ring's tree.
func (r *Ring) Wipe() {
	r.tree.Wipe()
}
