package keychain

import (
	"errors"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

var (
	// ErrPublicOnly is returned when an operation needs the private scalar
	// of a key pair that only carries the public point, either because it
	// never had one or because it has been zeroed.
	ErrPublicOnly = errors.New("key pair has no private key")

	// ErrInvalidScalar is returned when a private scalar is zero or not
	// below the curve order.
	ErrInvalidScalar = errors.New("private scalar out of range")

	// ErrInvalidScalarLen is returned when a private scalar is not 32
	// bytes.
	ErrInvalidScalarLen = errors.New("private scalar must be 32 bytes")
)

// KeyPair is a secp256k1 private scalar and public point pair. The private
// half is optional. When present, the public point is always the scalar times
// the generator. Once Zero is called the pair is public-only for good.
type KeyPair struct {
	mu sync.RWMutex

	privKey    *btcec.PrivateKey
	pubKey     *btcec.PublicKey
	compressed bool
}

// NewKeyPair wraps an existing private key. The key pair takes ownership of
// privKey and wipes it on Zero.
func NewKeyPair(privKey *btcec.PrivateKey, compressed bool) *KeyPair {
	return &KeyPair{
		privKey:    privKey,
		pubKey:     privKey.PubKey(),
		compressed: compressed,
	}
}

// NewPublicKeyPair creates a watch-only key pair.
func NewPublicKeyPair(pubKey *btcec.PublicKey, compressed bool) *KeyPair {
	return &KeyPair{
		pubKey:     pubKey,
		compressed: compressed,
	}
}

// NewKeyPairFromBytes creates a key pair from a 32-byte big-endian scalar.
// Unlike btcec.PrivKeyFromBytes, a scalar that is zero or overflows the curve
// order is rejected rather than reduced.
func NewKeyPairFromBytes(scalar []byte, compressed bool) (*KeyPair, error) {
	if len(scalar) != btcec.PrivKeyBytesLen {
		return nil, ErrInvalidScalarLen
	}

	var k btcec.ModNScalar
	overflow := k.SetByteSlice(scalar)
	if overflow || k.IsZero() {
		k.Zero()
		return nil, ErrInvalidScalar
	}

	privKey := secp256k1.NewPrivateKey(&k)
	k.Zero()

	return NewKeyPair(privKey, compressed), nil
}

// GenerateKeyPair creates a key pair from a fresh random scalar.
func GenerateKeyPair(compressed bool) (*KeyPair, error) {
	privKey, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, err
	}

	return NewKeyPair(privKey, compressed), nil
}

// PubKey returns the public point.
func (k *KeyPair) PubKey() *btcec.PublicKey {
	return k.pubKey
}

// Compressed reports whether the pair serializes its public key in the 33
// byte compressed form.
func (k *KeyPair) Compressed() bool {
	return k.compressed
}

// SerializePubKey returns the public key in the encoding selected by the
// compression flag.
func (k *KeyPair) SerializePubKey() []byte {
	if k.compressed {
		return k.pubKey.SerializeCompressed()
	}

	return k.pubKey.SerializeUncompressed()
}

// HasPrivKey reports whether the private scalar is still present.
func (k *KeyPair) HasPrivKey() bool {
	k.mu.RLock()
	defer k.mu.RUnlock()

	return k.privKey != nil
}

// PrivKey returns a copy of the private key held by the pair, taken under
// the pair's lock. The copy belongs to the caller, who must wipe it with its
// Zero method once done; zeroing the pair does not reach it.
func (k *KeyPair) PrivKey() (*btcec.PrivateKey, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	if k.privKey == nil {
		return nil, ErrPublicOnly
	}

	var scalar btcec.ModNScalar
	defer scalar.Zero()
	scalar.Set(&k.privKey.Key)

	return secp256k1.NewPrivateKey(&scalar), nil
}

// PrivKeyBytes returns a copy of the 32-byte private scalar. The caller must
// wipe the copy with Zero once done.
func (k *KeyPair) PrivKeyBytes() ([]byte, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	if k.privKey == nil {
		return nil, ErrPublicOnly
	}

	return k.privKey.Serialize(), nil
}

// Sign produces a low-S ECDSA signature over the given 32-byte hash.
func (k *KeyPair) Sign(hash []byte) (*ecdsa.Signature, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	if k.privKey == nil {
		return nil, ErrPublicOnly
	}

	return ecdsa.Sign(k.privKey, hash), nil
}

// SignCompact produces a public key recoverable signature over the given
// 32-byte hash.
func (k *KeyPair) SignCompact(hash []byte) ([]byte, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	if k.privKey == nil {
		return nil, ErrPublicOnly
	}

	return ecdsa.SignCompact(k.privKey, hash, k.compressed), nil
}

// Verify checks sig over hash against the pair's public key.
func (k *KeyPair) Verify(hash []byte, sig *ecdsa.Signature) bool {
	if sig == nil {
		return false
	}

	return sig.Verify(hash, k.pubKey)
}

// Address returns the pay-to-pubkey-hash address of the pair on the given
// network, using the pair's compression flag.
func (k *KeyPair) Address(net *chaincfg.Params) (*btcutil.AddressPubKeyHash,
	error) {

	return btcutil.NewAddressPubKeyHash(
		btcutil.Hash160(k.SerializePubKey()), net,
	)
}

// WIF encodes the private key in wallet import format.
func (k *KeyPair) WIF(net *chaincfg.Params) (*btcutil.WIF, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	if k.privKey == nil {
		return nil, ErrPublicOnly
	}

	return btcutil.NewWIF(k.privKey, net, k.compressed)
}

// KeyPairFromWIF decodes a wallet import format string.
func KeyPairFromWIF(wif string) (*KeyPair, error) {
	decoded, err := btcutil.DecodeWIF(wif)
	if err != nil {
		return nil, err
	}

	return NewKeyPair(decoded.PrivKey, decoded.CompressPubKey), nil
}

// Zero wipes the private scalar. The pair keeps its public point and can
// still verify, but every private operation fails with ErrPublicOnly from
// now on.
func (k *KeyPair) Zero() {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.privKey == nil {
		return
	}

	k.privKey.Zero()
	k.privKey = nil
}
