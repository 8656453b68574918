package hdkey

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/hdmwallet/hdmcore/keychain"
)

const (
	// RecommendedSeedLen is the recommended length in bytes for a seed
	// to a master node.
	RecommendedSeedLen = 32

	// MinSeedBytes is the minimum number of bytes allowed for a seed to
	// a master node.
	MinSeedBytes = 16

	// MaxSeedBytes is the maximum number of bytes allowed for a seed to
	// a master node.
	MaxSeedBytes = 64

	// serializedKeyLen is the length of a serialized public or private
	// extended key: version, depth, parent fingerprint, child number,
	// chain code and key data.
	serializedKeyLen = 4 + 1 + 4 + 4 + 32 + 33

	// checksumLen is the number of double-SHA256 bytes appended to the
	// record in its text form.
	checksumLen = 4

	// maxUint8 is the deepest a key can sit.
	maxUint8 = 1<<8 - 1
)

// masterKey is the HMAC key used to generate a master node from a seed.
var masterKey = []byte("Bitcoin seed")

// ExtendedKey is a node of a BIP32 hierarchy: a key pair, a chain code and the
// position of the node. An ExtendedKey is immutable apart from Zero, which
// turns a private node into a public one.
type ExtendedKey struct {
	keyPair   *keychain.KeyPair
	chainCode [32]byte
	path      Path
	depth     uint8
	parentFP  [4]byte
	childNum  ChildIndex
	net       *chaincfg.Params
}

// NewMaster creates a new master node for use in creating a hierarchical
// deterministic key chain. The seed must be between 128 and 512 bits.
func NewMaster(seed []byte, net *chaincfg.Params) (*ExtendedKey, error) {
	if len(seed) < MinSeedBytes || len(seed) > MaxSeedBytes {
		return nil, ErrInvalidSeedLen
	}

	// First take the HMAC-SHA512 of the master key and the seed data:
	//   I = HMAC-SHA512(Key = "Bitcoin seed", Data = S)
	hmac512 := hmac.New(sha512.New, masterKey)
	_, _ = hmac512.Write(seed)
	lr := hmac512.Sum(nil)
	defer keychain.Zero(lr)

	keyPair, err := keychain.NewKeyPairFromBytes(lr[:32], true)
	if err != nil {
		return nil, ErrUnusableSeed
	}

	k := &ExtendedKey{
		keyPair: keyPair,
		path:    Path{},
		net:     net,
	}
	copy(k.chainCode[:], lr[32:])

	return k, nil
}

// IsPrivate reports whether the node still carries its private scalar.
func (k *ExtendedKey) IsPrivate() bool {
	return k.keyPair.HasPrivKey()
}

// KeyPair returns the key pair of the node. It is shared with the node, so
// zeroing it zeroes the node.
func (k *ExtendedKey) KeyPair() *keychain.KeyPair {
	return k.keyPair
}

// PubKey returns the public point of the node.
func (k *ExtendedKey) PubKey() *btcec.PublicKey {
	return k.keyPair.PubKey()
}

// ChainCode returns a copy of the chain code.
func (k *ExtendedKey) ChainCode() [32]byte {
	return k.chainCode
}

// Depth returns the number of derivation steps between the node and its
// master.
func (k *ExtendedKey) Depth() uint8 {
	return k.depth
}

// ChildIndex returns the index this node was derived at. It is zero for a
// master node.
func (k *ExtendedKey) ChildIndex() ChildIndex {
	return k.childNum
}

// ParentFingerprint returns the fingerprint of the parent node, zero for a
// master node.
func (k *ExtendedKey) ParentFingerprint() [4]byte {
	return k.parentFP
}

// Path returns a copy of the node's path. For nodes imported from a record
// with depth above zero only the last index is known, so the path holds that
// single index.
func (k *ExtendedKey) Path() Path {
	p := make(Path, len(k.path))
	copy(p, k.path)

	return p
}

// Net returns the network whose version bytes the node serializes with.
func (k *ExtendedKey) Net() *chaincfg.Params {
	return k.net
}

// Fingerprint returns the first four bytes of hash160 of the node's
// compressed public key.
func (k *ExtendedKey) Fingerprint() [4]byte {
	var fp [4]byte
	copy(fp[:], btcutil.Hash160(k.PubKey().SerializeCompressed()))

	return fp
}

// Address returns the pay-to-pubkey-hash address of the node.
func (k *ExtendedKey) Address() (*btcutil.AddressPubKeyHash, error) {
	return k.keyPair.Address(k.net)
}

// Derive returns the child at index i.
//
// A hardened child (i >= HardenedKeyStart) needs the private scalar and is
// computed from HMAC-SHA512(chainCode, 0x00 || k || i). A normal child is
// computed from HMAC-SHA512(chainCode, serP(K) || i) and can be derived from
// public material alone. A private parent yields a private child and a public
// parent a public child.
//
// ErrInvalidChild is returned with negligible probability when the index
// produces an invalid key; DeriveNext skips such indices.
func (k *ExtendedKey) Derive(i ChildIndex) (*ExtendedKey, error) {
	if k.depth == maxUint8 {
		return nil, ErrDeriveBeyondMaxDepth
	}

	privKey, _ := k.keyPair.PrivKey()
	isPrivate := privKey != nil
	if isPrivate {
		defer privKey.Zero()
	}

	if i.IsHardened() && !isPrivate {
		return nil, ErrDeriveHardFromPublic
	}

	// The data fed to the HMAC is 37 bytes for both derivation kinds:
	// the 33-byte key material followed by the big-endian index.
	data := make([]byte, 37)
	defer keychain.Zero(data)

	if i.IsHardened() {
		// data[0] stays 0x00 to pad the scalar to 33 bytes.
		privKey.Key.PutBytesUnchecked(data[1:33])
	} else {
		copy(data, k.PubKey().SerializeCompressed())
	}
	binary.BigEndian.PutUint32(data[33:], uint32(i))

	hmac512 := hmac.New(sha512.New, k.chainCode[:])
	_, _ = hmac512.Write(data)
	ilr := hmac512.Sum(nil)
	defer keychain.Zero(ilr)

	var ilNum btcec.ModNScalar
	defer ilNum.Zero()
	if overflow := ilNum.SetByteSlice(ilr[:32]); overflow {
		return nil, ErrInvalidChild
	}

	var childPair *keychain.KeyPair
	if isPrivate {
		// childKey = parse256(Il) + parentKey
		childScalar := new(btcec.ModNScalar).Set(&ilNum)
		childScalar.Add(&privKey.Key)
		if childScalar.IsZero() {
			return nil, ErrInvalidChild
		}

		childPriv := secp256k1.NewPrivateKey(childScalar)
		childScalar.Zero()

		childPair = keychain.NewKeyPair(childPriv, true)
	} else {
		// childKey = serP(point(parse256(Il)) + parentKey)
		var ilPoint, parentPoint, childPoint btcec.JacobianPoint
		btcec.ScalarBaseMultNonConst(&ilNum, &ilPoint)
		k.PubKey().AsJacobian(&parentPoint)
		btcec.AddNonConst(&ilPoint, &parentPoint, &childPoint)

		childPoint.Z.Normalize()
		if childPoint.Z.IsZero() {
			return nil, ErrInvalidChild
		}
		childPoint.ToAffine()

		childPair = keychain.NewPublicKeyPair(
			btcec.NewPublicKey(&childPoint.X, &childPoint.Y), true,
		)
	}

	child := &ExtendedKey{
		keyPair:  childPair,
		path:     k.path.Child(i),
		depth:    k.depth + 1,
		parentFP: k.Fingerprint(),
		childNum: i,
		net:      k.net,
	}
	copy(child.chainCode[:], ilr[32:])

	return child, nil
}

// DeriveNext derives the child at index i, moving on to the next index for as
// long as the derivation hits an invalid key. The index actually used is
// returned. The search never crosses from normal into hardened indices.
func (k *ExtendedKey) DeriveNext(i ChildIndex) (*ExtendedKey, ChildIndex,
	error) {

	for {
		child, err := k.Derive(i)
		switch {
		case err == nil:
			return child, i, nil

		case !errors.Is(err, ErrInvalidChild):
			return nil, 0, err
		}

		log.Warnf("Skipping invalid child %v of %v", i, k.path)

		next := i + 1
		if next.IsHardened() != i.IsHardened() || next < i {
			return nil, 0, ErrInvalidChild
		}
		i = next
	}
}

// DerivePath derives every index of path in turn, starting at k.
func (k *ExtendedKey) DerivePath(path Path) (*ExtendedKey, error) {
	key := k
	for _, idx := range path {
		child, err := key.Derive(idx)
		if err != nil {
			if key != k {
				key.Zero()
			}

			return nil, fmt.Errorf("derive %v below %v: %w", idx,
				key.path, err)
		}

		// Intermediate private nodes are not handed out, so wipe them
		// as soon as their child exists.
		if key != k {
			key.Zero()
		}
		key = child
	}

	return key, nil
}

// Neuter returns a public-only copy of the node with the same position.
func (k *ExtendedKey) Neuter() *ExtendedKey {
	return &ExtendedKey{
		keyPair:   keychain.NewPublicKeyPair(k.PubKey(), true),
		chainCode: k.chainCode,
		path:      k.Path(),
		depth:     k.depth,
		parentFP:  k.parentFP,
		childNum:  k.childNum,
		net:       k.net,
	}
}

// clonePrivate returns an independent copy of a private node, so the caller
// may zero it without touching the original.
func (k *ExtendedKey) clonePrivate() (*ExtendedKey, error) {
	scalar, err := k.keyPair.PrivKeyBytes()
	if err != nil {
		return nil, ErrNotPrivExtKey
	}
	defer keychain.Zero(scalar)

	keyPair, err := keychain.NewKeyPairFromBytes(scalar, true)
	if err != nil {
		return nil, err
	}

	clone := k.Neuter()
	clone.keyPair = keyPair

	return clone, nil
}

// Zero wipes the private scalar of the node. The node stays usable as a
// public node.
func (k *ExtendedKey) Zero() {
	k.keyPair.Zero()
}

// Serialize returns the 78-byte BIP32 record of the node. Private nodes are
// serialized with their private key data.
func (k *ExtendedKey) Serialize() []byte {
	record := make([]byte, 0, serializedKeyLen)

	privKey, _ := k.keyPair.PrivKey()
	if privKey != nil {
		defer privKey.Zero()
		record = append(record, k.net.HDPrivateKeyID[:]...)
	} else {
		record = append(record, k.net.HDPublicKeyID[:]...)
	}

	record = append(record, k.depth)
	record = append(record, k.parentFP[:]...)
	record = binary.BigEndian.AppendUint32(record, uint32(k.childNum))
	record = append(record, k.chainCode[:]...)

	if privKey != nil {
		record = append(record, 0x00)
		scalar := privKey.Serialize()
		record = append(record, scalar...)
		keychain.Zero(scalar)
	} else {
		record = append(record, k.PubKey().SerializeCompressed()...)
	}

	return record
}

// String returns the Base58 text form of the node: the record followed by
// the first four bytes of its double SHA256. The text of a private node is
// secret.
func (k *ExtendedKey) String() string {
	record := k.Serialize()
	defer keychain.Zero(record)

	checksum := chainhash.DoubleHashB(record)[:checksumLen]
	withSum := append(record, checksum...)
	encoded := base58.Encode(withSum)
	keychain.Zero(withSum)

	return encoded
}

// defaultNets is tried when NewKeyFromString is not told which networks to
// expect.
var defaultNets = []*chaincfg.Params{
	&chaincfg.MainNetParams,
	&chaincfg.TestNet3Params,
	&chaincfg.SimNetParams,
}

// NewKeyFromString parses the Base58 text form of an extended key. The
// version bytes are matched against nets, or against mainnet, testnet and
// simnet when none are given.
func NewKeyFromString(key string, nets ...*chaincfg.Params) (*ExtendedKey,
	error) {

	decoded := base58.Decode(key)
	defer keychain.Zero(decoded)

	if len(decoded) != serializedKeyLen+checksumLen {
		return nil, ErrInvalidKeyLen
	}

	record := decoded[:serializedKeyLen]
	checksum := decoded[serializedKeyLen:]
	expected := chainhash.DoubleHashB(record)[:checksumLen]
	if !bytes.Equal(checksum, expected) {
		return nil, ErrBadChecksum
	}

	return Deserialize(record, nets...)
}

// Deserialize parses a 78-byte BIP32 record. A record with depth above zero
// carries no path, so the resulting node's path is the single child index
// from the record.
func Deserialize(record []byte, nets ...*chaincfg.Params) (*ExtendedKey,
	error) {

	if len(record) != serializedKeyLen {
		return nil, ErrInvalidKeyLen
	}
	if len(nets) == 0 {
		nets = defaultNets
	}

	version := record[:4]
	depth := record[4]
	childNum := ChildIndex(binary.BigEndian.Uint32(record[9:13]))
	keyData := record[45:78]

	var (
		net       *chaincfg.Params
		isPrivate bool
	)
	for _, candidate := range nets {
		switch {
		case bytes.Equal(version, candidate.HDPrivateKeyID[:]):
			net, isPrivate = candidate, true

		case bytes.Equal(version, candidate.HDPublicKeyID[:]):
			net = candidate
		}
		if net != nil {
			break
		}
	}
	if net == nil {
		return nil, fmt.Errorf("%w: %x", ErrUnknownHDKeyID, version)
	}

	k := &ExtendedKey{
		depth:    depth,
		childNum: childNum,
		net:      net,
	}
	copy(k.parentFP[:], record[5:9])
	copy(k.chainCode[:], record[13:45])

	// A master record has nothing above it.
	if depth == 0 {
		if k.parentFP != [4]byte{} || childNum != 0 {
			return nil, fmt.Errorf("%w: master record with parent",
				ErrInvalidKeyData)
		}
		k.path = Path{}
	} else {
		k.path = Path{childNum}
	}

	if isPrivate {
		if keyData[0] != 0x00 {
			return nil, fmt.Errorf("%w: private key data not "+
				"prefixed by 0x00", ErrInvalidKeyData)
		}

		keyPair, err := keychain.NewKeyPairFromBytes(keyData[1:], true)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidKeyData, err)
		}
		k.keyPair = keyPair

		return k, nil
	}

	if keyData[0] != 0x02 && keyData[0] != 0x03 {
		return nil, fmt.Errorf("%w: public key not compressed",
			ErrInvalidKeyData)
	}
	pubKey, err := btcec.ParsePubKey(keyData)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKeyData, err)
	}
	k.keyPair = keychain.NewPublicKeyPair(pubKey, true)

	return k, nil
}
