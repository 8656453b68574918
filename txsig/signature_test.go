package txsig

import (
	"bytes"
	"crypto/sha256"
	"math/big"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/hdmwallet/hdmcore/keychain"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// derInt encodes v as a minimal DER integer body.
func derInt(v *big.Int) []byte {
	b := v.Bytes()
	if len(b) == 0 {
		return []byte{0x00}
	}
	if b[0]&0x80 != 0 {
		b = append([]byte{0x00}, b...)
	}

	return b
}

// encodeSig builds an encoded signature from raw R and S bodies.
func encodeSig(r, s []byte, hashType byte) []byte {
	sig := []byte{asn1SequenceID, byte(4 + len(r) + len(s))}
	sig = append(sig, asn1IntegerID, byte(len(r)))
	sig = append(sig, r...)
	sig = append(sig, asn1IntegerID, byte(len(s)))
	sig = append(sig, s...)

	return append(sig, hashType)
}

// filled returns n copies of b.
func filled(n int, b byte) []byte {
	return bytes.Repeat([]byte{b}, n)
}

// TestCheckCanonical checks every rule of the canonical encoding.
func TestCheckCanonical(t *testing.T) {
	t.Parallel()

	big33 := append([]byte{0x00, 0x80}, filled(31, 0x01)...)

	testCases := []struct {
		name string
		sig  []byte
		code ErrorCode
		ok   bool
	}{
		{
			name: "smallest",
			sig:  encodeSig([]byte{0x01}, []byte{0x01}, 0x01),
			ok:   true,
		},
		{
			name: "largest",
			sig:  encodeSig(big33, big33, 0x01),
			ok:   true,
		},
		{
			name: "anyonecanpay forkid",
			sig:  encodeSig([]byte{0x01}, []byte{0x01}, 0xc1),
			ok:   true,
		},
		{
			name: "needed padding",
			sig:  encodeSig([]byte{0x00, 0x80}, []byte{0x7f}, 0x01),
			ok:   true,
		},
		{
			name: "too short",
			sig:  encodeSig([]byte{0x01}, []byte{0x01}, 0x01)[:8],
			code: ErrSigTooShort,
		},
		{
			name: "too long",
			sig: encodeSig(
				append([]byte{0x00}, big33...), big33, 0x01,
			),
			code: ErrSigTooLong,
		},
		{
			name: "wrong sequence id",
			sig: append([]byte{0x31}, encodeSig(
				[]byte{0x01}, []byte{0x01}, 0x01,
			)[1:]...),
			code: ErrSigInvalidSeqID,
		},
		{
			name: "bad data length",
			sig: []byte{
				0x30, 0x07, 0x02, 0x01, 0x01, 0x02, 0x01,
				0x01, 0x01,
			},
			code: ErrSigInvalidDataLen,
		},
		{
			name: "missing S type",
			sig: []byte{
				0x30, 0x06, 0x02, 0x05, 0x01, 0x01, 0x01,
				0x01, 0x01,
			},
			code: ErrSigMissingSTypeID,
		},
		{
			name: "missing S length",
			sig: []byte{
				0x30, 0x06, 0x02, 0x03, 0x01, 0x01, 0x01,
				0x01, 0x01,
			},
			code: ErrSigMissingSLen,
		},
		{
			name: "bad S length",
			sig: []byte{
				0x30, 0x06, 0x02, 0x01, 0x01, 0x02, 0x02,
				0x01, 0x01,
			},
			code: ErrSigInvalidSLen,
		},
		{
			name: "R not integer",
			sig: []byte{
				0x30, 0x06, 0x03, 0x01, 0x01, 0x02, 0x01,
				0x01, 0x01,
			},
			code: ErrSigInvalidRIntID,
		},
		{
			name: "zero R length",
			sig:  encodeSig(nil, []byte{0x01, 0x01}, 0x01),
			code: ErrSigZeroRLen,
		},
		{
			name: "negative R",
			sig:  encodeSig([]byte{0x80}, []byte{0x01}, 0x01),
			code: ErrSigNegativeR,
		},
		{
			name: "padded R",
			sig:  encodeSig([]byte{0x00, 0x7f}, []byte{0x01}, 0x01),
			code: ErrSigTooMuchRPadding,
		},
		{
			name: "S not integer",
			sig: []byte{
				0x30, 0x06, 0x02, 0x01, 0x01, 0x03, 0x01,
				0x01, 0x01,
			},
			code: ErrSigInvalidSIntID,
		},
		{
			name: "zero S length",
			sig:  encodeSig([]byte{0x01, 0x01}, nil, 0x01),
			code: ErrSigZeroSLen,
		},
		{
			name: "negative S",
			sig:  encodeSig([]byte{0x01}, []byte{0xff}, 0x01),
			code: ErrSigNegativeS,
		},
		{
			name: "padded S",
			sig:  encodeSig([]byte{0x01}, []byte{0x00, 0x01}, 0x01),
			code: ErrSigTooMuchSPadding,
		},
		{
			name: "zero hash type",
			sig:  encodeSig([]byte{0x01}, []byte{0x01}, 0x00),
			code: ErrSigInvalidHashType,
		},
		{
			name: "unknown base type",
			sig:  encodeSig([]byte{0x01}, []byte{0x01}, 0x04),
			code: ErrSigInvalidHashType,
		},
		{
			name: "unknown flag",
			sig:  encodeSig([]byte{0x01}, []byte{0x01}, 0x21),
			code: ErrSigInvalidHashType,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			err := CheckCanonical(tc.sig)
			require.Equal(t, tc.ok, IsCanonical(tc.sig))
			if tc.ok {
				require.NoError(t, err)
				return
			}

			require.ErrorIs(t, err, tc.code)

			var canonErr *CanonicalError
			require.ErrorAs(t, err, &canonErr)
			require.Equal(t, tc.code, canonErr.Code)
		})
	}
}

// TestIsCanonicalNeverPanics feeds arbitrary bytes to IsCanonical.
func TestIsCanonicalNeverPanics(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		b := rapid.SliceOfN(rapid.Byte(), 0, 80).Draw(t, "sig")
		require.NotPanics(t, func() {
			IsCanonical(b)
			HasLowS(b)
			_, _ = Decode(b, true)
			_, _ = Decode(b, false)
		})
	})
}

// TestErrorCodeStringer checks that every error code has a name.
func TestErrorCodeStringer(t *testing.T) {
	t.Parallel()

	require.Len(t, errorCodeStrings, int(numErrorCodes))
	for code := ErrorCode(0); code < numErrorCodes; code++ {
		require.Equal(t, errorCodeStrings[code], code.Error())
	}
	require.Equal(t, "Unknown ErrorCode (1000)", ErrorCode(1000).String())
}

// TestSignEncodeDecode checks that signatures produced by Sign are canonical,
// low S and survive a strict decode.
func TestSignEncodeDecode(t *testing.T) {
	t.Parallel()

	key, err := keychain.GenerateKeyPair(true)
	require.NoError(t, err)

	hashTypes := []SigHashType{
		SigHashAll, SigHashNone, SigHashSingle,
		SigHashAll | SigHashAnyOneCanPay,
	}

	rapid.Check(t, func(t *rapid.T) {
		msg := rapid.SliceOfN(rapid.Byte(), 0, 64).Draw(t, "msg")
		hashType := hashTypes[rapid.IntRange(0, 3).Draw(t, "type")]
		hash := sha256.Sum256(msg)

		sig, err := Sign(key, hash[:], hashType)
		require.NoError(t, err)

		encoded := sig.Encode()
		require.True(t, IsCanonical(encoded))
		require.True(t, HasLowS(encoded))

		decoded, err := Decode(encoded, true)
		require.NoError(t, err)
		require.Equal(t, hashType, decoded.HashType)
		require.True(t, decoded.Sig.IsEqual(sig.Sig))
		require.True(t, key.Verify(hash[:], decoded.Sig))
	})
}

// TestLowS checks detection and normalisation of high S signatures.
func TestLowS(t *testing.T) {
	t.Parallel()

	key, err := keychain.GenerateKeyPair(true)
	require.NoError(t, err)

	hash := sha256.Sum256([]byte("low s"))
	sig, err := Sign(key, hash[:], SigHashAll)
	require.NoError(t, err)

	der := sig.Sig.Serialize()
	rLen := int(der[rLenOffset])
	r := new(big.Int).SetBytes(der[rOffset : rOffset+rLen])
	s := new(big.Int).SetBytes(der[rOffset+rLen+2:])

	highS := new(big.Int).Sub(btcec.S256().N, s)
	high := encodeSig(derInt(r), derInt(highS), byte(SigHashAll))
	require.True(t, IsCanonical(high))
	require.False(t, HasLowS(high))

	// A high S signature is still valid, so the lenient and strict
	// decoders both accept it.
	decoded, err := Decode(high, true)
	require.NoError(t, err)
	require.True(t, key.Verify(hash[:], decoded.Sig))

	low, err := ToLowS(decoded.Sig)
	require.NoError(t, err)
	require.True(t, low.IsEqual(sig.Sig))

	lowEncoded := (&TransactionSignature{
		Sig: low, HashType: SigHashAll,
	}).Encode()
	require.True(t, HasLowS(lowEncoded))
}

// TestDecodeLenient checks that the lenient decoder accepts a hash type the
// strict decoder rejects.
func TestDecodeLenient(t *testing.T) {
	t.Parallel()

	key, err := keychain.GenerateKeyPair(true)
	require.NoError(t, err)

	hash := sha256.Sum256([]byte("lenient"))
	sig, err := key.Sign(hash[:])
	require.NoError(t, err)

	encoded := append(sig.Serialize(), 0x00)

	_, err = Decode(encoded, true)
	require.ErrorIs(t, err, ErrSigInvalidHashType)

	decoded, err := Decode(encoded, false)
	require.NoError(t, err)
	require.Equal(t, SigHashType(0), decoded.HashType)
	require.True(t, decoded.Sig.IsEqual(sig))

	_, err = Decode(nil, false)
	require.ErrorIs(t, err, ErrEmptySignature)
}

// TestSignPublicOnly checks that signing needs a private key.
func TestSignPublicOnly(t *testing.T) {
	t.Parallel()

	key, err := keychain.GenerateKeyPair(true)
	require.NoError(t, err)
	key.Zero()

	_, err = Sign(key, make([]byte, 32), SigHashAll)
	require.ErrorIs(t, err, keychain.ErrPublicOnly)
}

// TestSigHashType checks the fork id and flag helpers.
func TestSigHashType(t *testing.T) {
	t.Parallel()

	ht, err := (SigHashAll | SigHashAnyOneCanPay).WithForkID(79)
	require.NoError(t, err)
	require.True(t, ht.HasForkID())
	require.True(t, ht.AnyOneCanPay())
	require.Equal(t, uint32(79), ht.ForkID())
	require.Equal(t, SigHashAll, ht.Base())
	require.Equal(t, byte(0xc1), ht.Byte())
	require.True(t, ht.IsDefined())
	require.Equal(t, "ALL|FORKID(79)|ANYONECANPAY", ht.String())

	_, err = SigHashAll.WithForkID(1 << 24)
	require.Error(t, err)

	require.False(t, SigHashType(0).IsDefined())
	require.Equal(t, "SINGLE", SigHashSingle.String())
	require.Equal(
		t, SigHashNone.TxScript(), SigHashType(2).TxScript(),
	)
}
