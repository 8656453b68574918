package bip38

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/rand"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/hdmwallet/hdmcore/keychain"
	"github.com/lightningnetwork/lnd/fn/v2"
)

const (
	// MaxLot is the largest lot number an intermediate code can embed.
	MaxLot = 1<<20 - 1

	// MaxSequence is the largest sequence number an intermediate code can
	// embed.
	MaxSequence = 1<<12 - 1

	// SeedBLen is the length of the random seed the generating party
	// contributes.
	SeedBLen = 24

	// ownerEntropyLen is the length of the owner entropy carried by the
	// intermediate code and the encrypted key.
	ownerEntropyLen = 8

	// intermediateLen is the length of a decoded intermediate code,
	// excluding its first magic byte.
	intermediateLen = 48
)

var (
	// magicNoLotSequence prefixes intermediate codes without a lot and
	// sequence number.
	magicNoLotSequence = []byte{
		0x2c, 0xe9, 0xb3, 0xe1, 0xff, 0x39, 0xe2, 0x53,
	}

	// magicLotSequence prefixes intermediate codes with a lot and
	// sequence number.
	magicLotSequence = []byte{
		0x2c, 0xe9, 0xb3, 0xe1, 0xff, 0x39, 0xe2, 0x51,
	}

	// ErrInvalidLotSequence is returned for a lot or sequence number out
	// of range.
	ErrInvalidLotSequence = errors.New("lot or sequence out of range")

	// ErrInvalidOwnerSalt is returned for an owner salt of the wrong
	// length.
	ErrInvalidOwnerSalt = errors.New("invalid owner salt length")

	// ErrInvalidSeedB is returned when seedb does not hash to a usable
	// scalar or has the wrong length.
	ErrInvalidSeedB = errors.New("invalid seedb")
)

// LotSequence is the optional lot and sequence number embedded in the owner
// entropy of an intermediate code.
type LotSequence struct {
	Lot      uint32
	Sequence uint32
}

// encode packs the pair the way the owner entropy carries it.
func (l LotSequence) encode() ([]byte, error) {
	if l.Lot > MaxLot || l.Sequence > MaxSequence {
		return nil, fmt.Errorf("%w: lot=%d sequence=%d",
			ErrInvalidLotSequence, l.Lot, l.Sequence)
	}

	var b [4]byte
	binary.BigEndian.PutUint32(b[:], l.Lot<<12|l.Sequence)

	return b[:], nil
}

// Intermediate is a decoded intermediate code. It lets a party that does not
// know the passphrase generate keys that only the passphrase holder can
// decrypt.
type Intermediate struct {
	// OwnerEntropy is the owner salt, followed by the lot and sequence
	// number when present.
	OwnerEntropy [ownerEntropyLen]byte

	// PassPoint is the compressed public key of the pass factor.
	PassPoint []byte

	// LotSequence is set when OwnerEntropy embeds a lot and sequence
	// number.
	LotSequence fn.Option[LotSequence]
}

// String encodes the intermediate code as a "passphrase..." string.
func (i *Intermediate) String() string {
	magic := magicNoLotSequence
	if i.LotSequence.IsSome() {
		magic = magicLotSequence
	}

	payload := make([]byte, 0, intermediateLen)
	payload = append(payload, magic[1:]...)
	payload = append(payload, i.OwnerEntropy[:]...)
	payload = append(payload, i.PassPoint...)

	return base58.CheckEncode(payload, magic[0])
}

// ParseIntermediate decodes a "passphrase..." string.
func ParseIntermediate(code string) (*Intermediate, error) {
	payload, ver, err := base58.CheckDecode(code)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if ver != magicNoLotSequence[0] || len(payload) != intermediateLen {
		return nil, fmt.Errorf("%w: not an intermediate code",
			ErrMalformed)
	}

	var i Intermediate
	switch {
	case bytes.Equal(payload[:7], magicNoLotSequence[1:]):

	case bytes.Equal(payload[:7], magicLotSequence[1:]):
		ls := binary.BigEndian.Uint32(payload[11:15])
		i.LotSequence = fn.Some(LotSequence{
			Lot:      ls >> 12,
			Sequence: ls & MaxSequence,
		})

	default:
		return nil, fmt.Errorf("%w: unknown intermediate magic",
			ErrMalformed)
	}

	copy(i.OwnerEntropy[:], payload[7:15])

	if _, err := btcec.ParsePubKey(payload[15:]); err != nil {
		return nil, fmt.Errorf("%w: pass point: %w", ErrMalformed, err)
	}
	i.PassPoint = append([]byte(nil), payload[15:]...)

	return &i, nil
}

// passFactor stretches the passphrase into the pass factor for the given owner
// entropy. The caller must wipe the result.
func passFactor(ctx context.Context, pass []byte,
	ownerEntropy [ownerEntropyLen]byte, lotSequence bool,
	progress *Progress) ([]byte, error) {

	ownerSalt := ownerEntropy[:]
	if lotSequence {
		ownerSalt = ownerEntropy[:4]
	}

	prefactor, err := stretch(
		ctx, pass, ownerSalt, passFactorParams, progress,
	)
	if err != nil {
		return nil, err
	}
	if !lotSequence {
		return prefactor, nil
	}
	defer keychain.Zero(prefactor)

	buf := make([]byte, 0, len(prefactor)+ownerEntropyLen)
	buf = append(buf, prefactor...)
	buf = append(buf, ownerEntropy[:]...)
	defer keychain.Zero(buf)

	return chainhash.DoubleHashB(buf), nil
}

// scalar parses a 32-byte value as a non-zero scalar below the curve order.
func scalar(b []byte) (*btcec.ModNScalar, error) {
	var s btcec.ModNScalar
	if overflow := s.SetByteSlice(b); overflow || s.IsZero() {
		s.Zero()
		return nil, keychain.ErrInvalidScalar
	}

	return &s, nil
}

// mult returns k times point, or k times the generator when point is nil.
func mult(k *btcec.ModNScalar, point *btcec.PublicKey) *btcec.PublicKey {
	var result btcec.JacobianPoint
	if point == nil {
		btcec.ScalarBaseMultNonConst(k, &result)
	} else {
		var p btcec.JacobianPoint
		point.AsJacobian(&p)
		btcec.ScalarMultNonConst(k, &p, &result)
	}
	result.ToAffine()

	return btcec.NewPublicKey(&result.X, &result.Y)
}

// NewIntermediate stretches passphrase into an intermediate code. ownerSalt is
// four bytes when lotSequence is set and eight bytes otherwise; a nil
// ownerSalt is replaced by random bytes of the right length.
func NewIntermediate(ctx context.Context, passphrase, ownerSalt []byte,
	lotSequence fn.Option[LotSequence],
	progress *Progress) (*Intermediate, error) {

	saltLen := ownerEntropyLen
	if lotSequence.IsSome() {
		saltLen = 4
	}
	if ownerSalt == nil {
		ownerSalt = make([]byte, saltLen)
		if _, err := rand.Read(ownerSalt); err != nil {
			return nil, err
		}
	}
	if len(ownerSalt) != saltLen {
		return nil, fmt.Errorf("%w: got %d bytes, want %d",
			ErrInvalidOwnerSalt, len(ownerSalt), saltLen)
	}

	var i Intermediate
	copy(i.OwnerEntropy[:], ownerSalt)
	if lotSequence.IsSome() {
		ls := lotSequence.UnwrapOr(LotSequence{})
		encoded, err := ls.encode()
		if err != nil {
			return nil, err
		}
		copy(i.OwnerEntropy[4:], encoded)
		i.LotSequence = lotSequence
	}

	pass := normalizePassphrase(passphrase)
	defer keychain.Zero(pass)

	progress.begin(passFactorParams.units())

	pf, err := passFactor(
		ctx, pass, i.OwnerEntropy, lotSequence.IsSome(), progress,
	)
	if err != nil {
		return nil, err
	}
	defer keychain.Zero(pf)

	k, err := scalar(pf)
	if err != nil {
		return nil, err
	}
	defer k.Zero()

	i.PassPoint = mult(k, nil).SerializeCompressed()
	progress.finish()

	return &i, nil
}

// EncryptFromIntermediate generates a new key on behalf of the holder of the
// intermediate code's passphrase and returns it encrypted together with its
// address. The caller learns the address but never the private key. A nil
// seedB is replaced by random bytes.
func EncryptFromIntermediate(ctx context.Context, code string, seedB []byte,
	compressed bool, net *chaincfg.Params,
	progress *Progress) (string, string, error) {

	inter, err := ParseIntermediate(code)
	if err != nil {
		return "", "", err
	}

	if seedB == nil {
		seedB = make([]byte, SeedBLen)
		if _, err := rand.Read(seedB); err != nil {
			return "", "", err
		}
		defer keychain.Zero(seedB)
	}
	if len(seedB) != SeedBLen {
		return "", "", fmt.Errorf("%w: got %d bytes", ErrInvalidSeedB,
			len(seedB))
	}

	factorB := chainhash.DoubleHashB(seedB)
	defer keychain.Zero(factorB)

	fb, err := scalar(factorB)
	if err != nil {
		return "", "", fmt.Errorf("%w: %w", ErrInvalidSeedB, err)
	}
	defer fb.Zero()

	passPoint, err := btcec.ParsePubKey(inter.PassPoint)
	if err != nil {
		return "", "", err
	}

	generated := keychain.NewPublicKeyPair(mult(fb, passPoint), compressed)
	salt, addr, err := addressHash(generated, net)
	if err != nil {
		return "", "", err
	}

	progress.begin(passPointParams.units())

	derivedSalt := make([]byte, 0, addressHashLen+ownerEntropyLen)
	derivedSalt = append(derivedSalt, salt...)
	derivedSalt = append(derivedSalt, inter.OwnerEntropy[:]...)

	derived, err := stretch(
		ctx, inter.PassPoint, derivedSalt, passPointParams, progress,
	)
	if err != nil {
		return "", "", err
	}
	defer keychain.Zero(derived)

	block, err := aes.NewCipher(derived[32:])
	if err != nil {
		return "", "", err
	}

	var flag byte
	if compressed {
		flag |= flagCompressed
	}
	if inter.LotSequence.IsSome() {
		flag |= flagLotSequence
	}

	var half, enc1 [16]byte
	defer keychain.Zero(half[:])

	subtle.XORBytes(half[:], seedB[:16], derived[:16])
	block.Encrypt(enc1[:], half[:])

	copy(half[:8], enc1[8:])
	copy(half[8:], seedB[16:])
	subtle.XORBytes(half[:], half[:], derived[16:32])

	payload := make([]byte, 0, encodedLen)
	payload = append(payload, prefixECMultiply, flag)
	payload = append(payload, salt...)
	payload = append(payload, inter.OwnerEntropy[:]...)
	payload = append(payload, enc1[:8]...)
	payload = payload[:encodedLen]
	block.Encrypt(payload[22:], half[:])

	progress.finish()
	log.Debugf("Generated EC-multiplied key for %v", addr)

	return base58.CheckEncode(payload, version), addr, nil
}

// decryptECMultiply recovers the private key of an EC-multiplied key as the
// product of the pass factor and the hash of seedb.
func decryptECMultiply(ctx context.Context, payload, pass []byte,
	progress *Progress) (*keychain.KeyPair, error) {

	lotSequence := payload[1]&flagLotSequence != 0

	var ownerEntropy [ownerEntropyLen]byte
	copy(ownerEntropy[:], payload[6:14])

	progress.begin(passFactorParams.units() + passPointParams.units())

	pf, err := passFactor(ctx, pass, ownerEntropy, lotSequence, progress)
	if err != nil {
		return nil, err
	}
	defer keychain.Zero(pf)

	k, err := scalar(pf)
	if err != nil {
		return nil, err
	}
	defer k.Zero()

	passPoint := mult(k, nil).SerializeCompressed()

	salt := make([]byte, 0, addressHashLen+ownerEntropyLen)
	salt = append(salt, payload[2:6]...)
	salt = append(salt, ownerEntropy[:]...)

	derived, err := stretch(ctx, passPoint, salt, passPointParams, progress)
	if err != nil {
		return nil, err
	}
	defer keychain.Zero(derived)

	block, err := aes.NewCipher(derived[32:])
	if err != nil {
		return nil, err
	}

	var half, enc1 [16]byte
	seedB := make([]byte, SeedBLen)
	defer func() {
		keychain.Zero(half[:])
		keychain.Zero(seedB)
	}()

	block.Decrypt(half[:], payload[22:38])
	subtle.XORBytes(half[:], half[:], derived[16:32])
	copy(seedB[16:], half[8:])

	copy(enc1[:8], payload[14:22])
	copy(enc1[8:], half[:8])
	block.Decrypt(half[:], enc1[:])
	subtle.XORBytes(seedB[:16], half[:], derived[:16])

	factorB := chainhash.DoubleHashB(seedB)
	defer keychain.Zero(factorB)

	fb, err := scalar(factorB)
	if err != nil {
		return nil, err
	}
	defer fb.Zero()

	var priv btcec.ModNScalar
	defer priv.Zero()

	priv.Mul2(k, fb)
	if priv.IsZero() {
		return nil, keychain.ErrInvalidScalar
	}

	return keychain.NewKeyPair(
		secp256k1.NewPrivateKey(&priv), payload[1]&flagCompressed != 0,
	), nil
}
