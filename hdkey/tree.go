package hdkey

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hdmwallet/hdmcore/hdmutils"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// NodeID identifies a node within a Tree. Ids are handed out in increasing
// order and never reused.
type NodeID uint64

// noParent marks a root node.
var noParent = fn.None[NodeID]()

// node is a single arena entry.
type node struct {
	key    *ExtendedKey
	parent fn.Option[NodeID]
}

// childKey indexes the children of a node so that a position is derived at
// most once.
type childKey struct {
	parent NodeID
	index  ChildIndex
}

// Tree is an arena of extended keys. Nodes refer to their parents by id, so
// finding the ancestors of a node is a walk over the arena rather than over
// pointers, and wiping every secret the tree holds is a single loop.
//
// Nodes are stored either private or public-only. PrivateKey rebuilds the
// private key of a public-only node from the nearest private ancestor, which
// lets callers keep a single private root and materialize leaves on demand.
type Tree struct {
	mu sync.RWMutex

	nextID   NodeID
	nodes    map[NodeID]*node
	children map[childKey]NodeID
}

// NewTree creates an empty tree.
func NewTree() *Tree {
	return &Tree{
		nodes:    make(map[NodeID]*node),
		children: make(map[childKey]NodeID),
	}
}

// Len returns the number of nodes in the tree.
func (t *Tree) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return len(t.nodes)
}

// Insert adds key to the tree. A key inserted under a parent must be one of
// its children: one level deeper and carrying the parent's fingerprint.
func (t *Tree) Insert(key *ExtendedKey,
	parent fn.Option[NodeID]) (NodeID, error) {

	t.mu.Lock()
	defer t.mu.Unlock()

	if !parent.IsSome() {
		return t.addLocked(key, parent), nil
	}

	parentID := parent.UnwrapOr(0)
	parentNode, ok := t.nodes[parentID]
	if !ok {
		return 0, ErrUnknownNode
	}

	parentKey := parentNode.key
	if key.depth != parentKey.depth+1 ||
		key.parentFP != parentKey.Fingerprint() {

		return 0, ErrNotChild
	}

	id := t.addLocked(key, parent)
	t.children[childKey{parentID, key.childNum}] = id

	return id, nil
}

// addLocked stores key under a fresh id. The caller must hold the write lock.
func (t *Tree) addLocked(key *ExtendedKey, parent fn.Option[NodeID]) NodeID {
	id := t.nextID
	t.nextID++

	t.nodes[id] = &node{key: key, parent: parent}

	return id
}

// Key returns the key stored for id. The key is shared with the tree.
func (t *Tree) Key(id NodeID) (*ExtendedKey, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n, ok := t.nodes[id]
	if !ok {
		return nil, ErrUnknownNode
	}

	return n.key, nil
}

// Parent returns the parent id of a node, or None for roots and unknown ids.
func (t *Tree) Parent(id NodeID) fn.Option[NodeID] {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n, ok := t.nodes[id]
	if !ok {
		return fn.None[NodeID]()
	}

	return n.parent
}

// Ancestors returns the ids above id, its parent first and its root last.
func (t *Tree) Ancestors(id NodeID) ([]NodeID, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n, ok := t.nodes[id]
	if !ok {
		return nil, ErrUnknownNode
	}

	var ancestors []NodeID
	for n.parent.IsSome() {
		parentID := n.parent.UnwrapOr(0)
		ancestors = append(ancestors, parentID)
		n = t.nodes[parentID]
	}

	return ancestors, nil
}

// Derive stores and returns the child at index of the given parent. The child
// is private if the parent is. Deriving an existing position returns the
// existing node.
func (t *Tree) Derive(parent NodeID, index ChildIndex) (NodeID, error) {
	return t.derive(parent, index, false)
}

// DerivePublic stores and returns the public-only child at index of the given
// parent. Hardened children of a public-only parent are derived from the
// parent's re-derived private key, which is wiped right after.
func (t *Tree) DerivePublic(parent NodeID, index ChildIndex) (NodeID, error) {
	return t.derive(parent, index, true)
}

// DerivePublicPath walks path below root with DerivePublic and returns the
// id of the last node.
func (t *Tree) DerivePublicPath(root NodeID, path Path) (NodeID, error) {
	id := root
	for _, idx := range path {
		var err error
		id, err = t.DerivePublic(id, idx)
		if err != nil {
			return 0, err
		}
	}

	return id, nil
}

func (t *Tree) derive(parent NodeID, index ChildIndex,
	public bool) (NodeID, error) {

	t.mu.Lock()
	defer t.mu.Unlock()

	if id, ok := t.children[childKey{parent, index}]; ok {
		return id, nil
	}

	parentNode, ok := t.nodes[parent]
	if !ok {
		return 0, ErrUnknownNode
	}

	parentKey := parentNode.key
	if index.IsHardened() && !parentKey.IsPrivate() {
		rederived, err := t.privateKeyLocked(parent)
		if err != nil {
			return 0, err
		}
		defer rederived.Zero()

		parentKey = rederived
	}

	child, err := parentKey.Derive(index)
	if err != nil {
		return 0, err
	}

	if public && child.IsPrivate() {
		neutered := child.Neuter()
		child.Zero()
		child = neutered
	}

	id := t.addLocked(child, fn.Some(parent))
	t.children[childKey{parent, index}] = id

	return id, nil
}

// PrivateAncestor walks up from id, the node itself included, and returns the
// first node that holds private material.
func (t *Tree) PrivateAncestor(id NodeID) (NodeID, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	ancestor, _, err := t.privateAncestorLocked(id)

	return ancestor, err
}

// privateAncestorLocked returns the nearest private ancestor of id together
// with the child indices leading from it down to id, nearest to the ancestor
// first.
func (t *Tree) privateAncestorLocked(id NodeID) (NodeID, Path, error) {
	var replay Path
	for {
		n, ok := t.nodes[id]
		if !ok {
			return 0, nil, ErrUnknownNode
		}

		if n.key.IsPrivate() {
			// replay was collected leaf first.
			for i, j := 0, len(replay)-1; i < j; i, j = i+1, j-1 {
				replay[i], replay[j] = replay[j], replay[i]
			}

			return id, replay, nil
		}

		parent, err := n.parent.UnwrapOrErr(ErrMissingPrivateKey)
		if err != nil {
			return 0, nil, err
		}

		replay = append(replay, n.key.childNum)
		id = parent
	}
}

// PrivateKey returns a private copy of the node's key. A public-only node is
// re-derived from its nearest private ancestor and the result is checked
// against the stored public key; a mismatch is reported as
// ErrIntegrityFault. The caller owns the returned key and should Zero it when
// done.
func (t *Tree) PrivateKey(id NodeID) (*ExtendedKey, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.privateKeyLocked(id)
}

func (t *Tree) privateKeyLocked(id NodeID) (*ExtendedKey, error) {
	target, ok := t.nodes[id]
	if !ok {
		return nil, ErrUnknownNode
	}

	ancestorID, replay, err := t.privateAncestorLocked(id)
	if err != nil {
		return nil, err
	}

	ancestor, err := t.nodes[ancestorID].key.clonePrivate()
	if err != nil {
		return nil, err
	}
	if len(replay) == 0 {
		return ancestor, nil
	}

	log.DebugS(context.TODO(), "Re-deriving private key",
		slog.Uint64("node", uint64(id)),
		slog.Uint64("ancestor", uint64(ancestorID)),
		slog.Int("steps", len(replay)))

	key, err := ancestor.DerivePath(replay)
	ancestor.Zero()
	if err != nil {
		return nil, err
	}

	if !key.PubKey().IsEqual(target.key.PubKey()) {
		key.Zero()

		log.CriticalS(context.TODO(), "Key tree integrity fault",
			ErrIntegrityFault,
			slog.Uint64("node", uint64(id)),
			hdmutils.LogPubKey("stored", target.key.PubKey()),
			hdmutils.LogPubKey("rederived", key.PubKey()))

		return nil, fmt.Errorf("node %d: %w", id, ErrIntegrityFault)
	}

	// Keep the node's own view of its position, which may be truncated
	// for imported keys, rather than the replayed one.
	key.path = target.key.Path()

	return key, nil
}

// Wipe zeroes every private scalar held by the tree. The nodes stay in place
// as public-only nodes.
func (t *Tree) Wipe() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, n := range t.nodes {
		n.key.Zero()
	}

	log.Debugf("Wiped %d key tree nodes", len(t.nodes))
}
