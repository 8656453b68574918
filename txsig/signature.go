package txsig

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/hdmwallet/hdmcore/keychain"
)

const (
	asn1SequenceID = 0x30
	asn1IntegerID  = 0x02

	// minSigLen is the length of the smallest encoded signature: one byte
	// each for R and S plus the hash type.
	//
	// 0x30 + <1-byte> + 0x02 + 0x01 + <byte> + 0x02 + 0x01 + <byte> + type
	minSigLen = 9

	// maxSigLen is the length of the largest encoded signature: 33 bytes
	// each for R and S plus the hash type.
	//
	// 0x30 + <1-byte> + 0x02 + 0x21 + <33 bytes> + 0x02 + 0x21 +
	// <33 bytes> + type
	maxSigLen = 73

	sequenceOffset = 0
	dataLenOffset  = 1
	rTypeOffset    = 2
	rLenOffset     = 3
	rOffset        = 4
)

// ErrEmptySignature is returned when decoding an empty byte slice.
var ErrEmptySignature = errors.New("empty signature")

// TransactionSignature is an ECDSA signature together with the hash type it
// commits to.
type TransactionSignature struct {
	Sig      *ecdsa.Signature
	HashType SigHashType
}

// Encode returns the DER signature followed by the low byte of the hash type.
// The DER body always carries a low S value.
func (s *TransactionSignature) Encode() []byte {
	der := s.Sig.Serialize()

	return append(der, s.HashType.Byte())
}

// Sign signs hash with key and tags the signature with hashType.
func Sign(key *keychain.KeyPair, hash []byte,
	hashType SigHashType) (*TransactionSignature, error) {

	sig, err := key.Sign(hash)
	if err != nil {
		return nil, err
	}

	return &TransactionSignature{Sig: sig, HashType: hashType}, nil
}

// Decode parses an encoded signature. With requireCanonical the whole
// encoding, hash type included, must pass CheckCanonical. Otherwise the DER
// body is parsed leniently and any trailing byte is taken as the hash type.
func Decode(b []byte, requireCanonical bool) (*TransactionSignature, error) {
	if len(b) == 0 {
		return nil, ErrEmptySignature
	}

	var (
		body     = b[:len(b)-1]
		hashType = SigHashType(b[len(b)-1])
		sig      *ecdsa.Signature
		err      error
	)
	if requireCanonical {
		if err := CheckCanonical(b); err != nil {
			return nil, err
		}
		sig, err = ecdsa.ParseDERSignature(body)
	} else {
		sig, err = ecdsa.ParseSignature(body)
	}
	if err != nil {
		return nil, fmt.Errorf("unable to parse signature: %w", err)
	}

	return &TransactionSignature{Sig: sig, HashType: hashType}, nil
}

// IsCanonical reports whether b is a strictly DER encoded signature followed
// by a defined hash type. It never panics, whatever the input.
func IsCanonical(b []byte) bool {
	return CheckCanonical(b) == nil
}

// CheckCanonical returns a *CanonicalError naming the first encoding rule b
// violates, or nil when b is canonical.
//
// The format of an encoded signature is:
//
//	0x30 <total length> 0x02 <length of R> <R> 0x02 <length of S> <S> <type>
//
// R and S are big-endian and minimally encoded, with a single leading zero
// only when the next byte has its high bit set. Neither may be negative.
func CheckCanonical(b []byte) error {
	sigLen := len(b)
	if sigLen < minSigLen {
		return canonicalError(ErrSigTooShort, fmt.Sprintf(
			"malformed signature: too short: %d < %d", sigLen,
			minSigLen,
		))
	}
	if sigLen > maxSigLen {
		return canonicalError(ErrSigTooLong, fmt.Sprintf(
			"malformed signature: too long: %d > %d", sigLen,
			maxSigLen,
		))
	}

	if b[sequenceOffset] != asn1SequenceID {
		return canonicalError(ErrSigInvalidSeqID, fmt.Sprintf(
			"malformed signature: format has wrong type: %#x",
			b[sequenceOffset],
		))
	}

	// The sequence covers everything but the header and the hash type.
	if int(b[dataLenOffset]) != sigLen-3 {
		return canonicalError(ErrSigInvalidDataLen, fmt.Sprintf(
			"malformed signature: bad length: %d != %d",
			b[dataLenOffset], sigLen-3,
		))
	}

	rLen := int(b[rLenOffset])
	sTypeOffset := rOffset + rLen
	sLenOffset := sTypeOffset + 1
	if sTypeOffset >= sigLen-1 {
		return canonicalError(ErrSigMissingSTypeID,
			"malformed signature: S type indicator missing")
	}
	if sLenOffset >= sigLen-1 {
		return canonicalError(ErrSigMissingSLen,
			"malformed signature: S length missing")
	}

	sOffset := sLenOffset + 1
	sLen := int(b[sLenOffset])
	if sOffset+sLen != sigLen-1 {
		return canonicalError(ErrSigInvalidSLen,
			"malformed signature: invalid S length")
	}

	if b[rTypeOffset] != asn1IntegerID {
		return canonicalError(ErrSigInvalidRIntID, fmt.Sprintf(
			"malformed signature: R integer marker: %#x != %#x",
			b[rTypeOffset], asn1IntegerID,
		))
	}
	if rLen == 0 {
		return canonicalError(ErrSigZeroRLen,
			"malformed signature: R length is zero")
	}
	if b[rOffset]&0x80 != 0 {
		return canonicalError(ErrSigNegativeR,
			"malformed signature: R is negative")
	}
	if rLen > 1 && b[rOffset] == 0x00 && b[rOffset+1]&0x80 == 0 {
		return canonicalError(ErrSigTooMuchRPadding,
			"malformed signature: R value has too much padding")
	}

	if b[sTypeOffset] != asn1IntegerID {
		return canonicalError(ErrSigInvalidSIntID, fmt.Sprintf(
			"malformed signature: S integer marker: %#x != %#x",
			b[sTypeOffset], asn1IntegerID,
		))
	}
	if sLen == 0 {
		return canonicalError(ErrSigZeroSLen,
			"malformed signature: S length is zero")
	}
	if b[sOffset]&0x80 != 0 {
		return canonicalError(ErrSigNegativeS,
			"malformed signature: S is negative")
	}
	if sLen > 1 && b[sOffset] == 0x00 && b[sOffset+1]&0x80 == 0 {
		return canonicalError(ErrSigTooMuchSPadding,
			"malformed signature: S value has too much padding")
	}

	hashType := SigHashType(b[sigLen-1])
	if !hashType.IsDefined() {
		return canonicalError(ErrSigInvalidHashType, fmt.Sprintf(
			"malformed signature: undefined hash type %#x",
			b[sigLen-1],
		))
	}

	return nil
}

// HasLowS reports whether the canonical signature b has an S value no larger
// than half the group order. A non-canonical b reports false.
func HasLowS(b []byte) bool {
	if CheckCanonical(b) != nil {
		return false
	}

	sLenOffset := rOffset + int(b[rLenOffset]) + 1
	sBytes := b[sLenOffset+1 : len(b)-1]
	for len(sBytes) > 0 && sBytes[0] == 0x00 {
		sBytes = sBytes[1:]
	}
	if len(sBytes) > 32 {
		return false
	}

	var s btcec.ModNScalar
	if overflow := s.SetByteSlice(sBytes); overflow {
		return false
	}

	return !s.IsOverHalfOrder()
}

// ToLowS returns sig with its S value replaced by its negation when S is
// above half the group order. Both forms verify against the same key and
// hash.
func ToLowS(sig *ecdsa.Signature) (*ecdsa.Signature, error) {
	// Serialize always emits the low S form.
	return ecdsa.ParseDERSignature(sig.Serialize())
}
