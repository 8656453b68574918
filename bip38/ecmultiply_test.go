package bip38

import (
	"context"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/require"
)

var errNoKey = errors.New("no key decrypted")

// testSeedB is a fixed seedb so that generated keys are reproducible.
var testSeedB = []byte{
	0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08,
	0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10,
	0x11, 0x12, 0x13, 0x14, 0x15, 0x16, 0x17, 0x18,
}

const (
	// noLotCode is the intermediate code of "TestingOneTwoThree" with
	// owner salt a50dba6772cb9383.
	noLotCode = "passphrasepxFy57B9v8HtUsszJYKReoNDV6VHjUSGt8EVJmux9n1J3" +
		"Ltf1gRxyDGXqnf9qm"

	// lotCode is the intermediate code of "MOLON LABE" with owner salt
	// 4fca5a97, lot 263183 and sequence 1.
	lotCode = "passphraseaB8feaLQDENqCgr4gKZpmf4VoaT6qdjJNJiv7fsKvjqavc" +
		"JxvuR1hy25aTu5sX"
)

// TestDecryptECMultiplyVectors checks decryption of the published
// EC-multiplied vectors.
func TestDecryptECMultiplyVectors(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name       string
		passphrase string
		encrypted  string
		wif        string
		address    string
	}{
		{
			name:       "no lot",
			passphrase: "TestingOneTwoThree",
			encrypted: "6PfQu77ygVyJLZjfvMLyhLMQbYnu5uguoJJ4kMCLqW" +
				"wPEdfpwANVS76gTX",
			wif: "5K4caxezwjGCGfnoPTZ8tMcJBLB7Jvyjv4xxeacadhq8n" +
				"LisLR2",
			address: "1PE6TQi6HTVNz5DLwB1LcpMBALubfuN2z2",
		},
		{
			name:       "no lot second",
			passphrase: "Satoshi",
			encrypted: "6PfLGnQs6VZnrNpmVKfjotbnQuaJK4KZoPFrAjx1JM" +
				"JUa1Ft8gnf5WxfKd",
			wif: "5KJ51SgxWaAYR13zd9ReMhJpwrcX47xTJh2D3fGPG9CM8" +
				"vkv5sH",
			address: "1CqzrtZC6mXSAhoxtFwVjz8LtwLJjDYU3V",
		},
		{
			name:       "lot and sequence",
			passphrase: "MOLON LABE",
			encrypted: "6PgNBNNzDkKdhkT6uJntUXwwzQV8Rr2tZcbkDcuC9D" +
				"ZRsS6AtHts4Ypo1j",
			wif: "5JLdxTtcTHcfYcmJsNVy1v2PMDx432JPoYcBTVVRHpPax" +
				"Urdtf8",
			address: "1Jscj8ALrYu2y9TD8NrpvDBugPedmbj4Yh",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			key := decryptVector(
				t, tc.encrypted, tc.passphrase, tc.wif,
			)
			addr, err := key.Address(&chaincfg.MainNetParams)
			require.NoError(t, err)
			require.Equal(t, tc.address, addr.EncodeAddress())
		})
	}
}

// TestNewIntermediate checks intermediate code generation against codes
// whose owner entropy matches the published EC-multiplied vectors.
func TestNewIntermediate(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name        string
		passphrase  string
		ownerSalt   string
		lotSequence fn.Option[LotSequence]
		want        string
	}{
		{
			name:        "no lot",
			passphrase:  "TestingOneTwoThree",
			ownerSalt:   "a50dba6772cb9383",
			lotSequence: fn.None[LotSequence](),
			want:        noLotCode,
		},
		{
			name:       "lot and sequence",
			passphrase: "MOLON LABE",
			ownerSalt:  "4fca5a97",
			lotSequence: fn.Some(LotSequence{
				Lot:      263183,
				Sequence: 1,
			}),
			want: lotCode,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			salt, err := hex.DecodeString(tc.ownerSalt)
			require.NoError(t, err)

			progress := NewProgress()
			inter, err := NewIntermediate(
				context.Background(), []byte(tc.passphrase),
				salt, tc.lotSequence, progress,
			)
			require.NoError(t, err)
			require.Equal(t, tc.want, inter.String())
			require.Equal(t, 1.0, progress.Fraction())
		})
	}
}

// TestNewIntermediateInvalid checks argument validation, which happens before
// any stretching.
func TestNewIntermediateInvalid(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	_, err := NewIntermediate(
		ctx, nil, make([]byte, 4), fn.None[LotSequence](), nil,
	)
	require.ErrorIs(t, err, ErrInvalidOwnerSalt)

	_, err = NewIntermediate(
		ctx, nil, make([]byte, 8),
		fn.Some(LotSequence{Lot: 1, Sequence: 1}), nil,
	)
	require.ErrorIs(t, err, ErrInvalidOwnerSalt)

	_, err = NewIntermediate(
		ctx, nil, make([]byte, 4),
		fn.Some(LotSequence{Lot: MaxLot + 1}), nil,
	)
	require.ErrorIs(t, err, ErrInvalidLotSequence)

	_, err = NewIntermediate(
		ctx, nil, make([]byte, 4),
		fn.Some(LotSequence{Sequence: MaxSequence + 1}), nil,
	)
	require.ErrorIs(t, err, ErrInvalidLotSequence)
}

// TestParseIntermediate checks decoding of intermediate codes.
func TestParseIntermediate(t *testing.T) {
	t.Parallel()

	inter, err := ParseIntermediate(noLotCode)
	require.NoError(t, err)
	require.True(t, inter.LotSequence.IsNone())
	require.Equal(
		t, "a50dba6772cb9383", hex.EncodeToString(inter.OwnerEntropy[:]),
	)
	require.Equal(t, noLotCode, inter.String())

	inter, err = ParseIntermediate(lotCode)
	require.NoError(t, err)
	require.Equal(
		t, fn.Some(LotSequence{Lot: 263183, Sequence: 1}),
		inter.LotSequence,
	)
	require.Equal(
		t, "4fca5a974040f001", hex.EncodeToString(inter.OwnerEntropy[:]),
	)
	require.Equal(t, lotCode, inter.String())

	_, err = ParseIntermediate(directVectors[0].encrypted)
	require.ErrorIs(t, err, ErrMalformed)

	payload, ver, err := base58.CheckDecode(noLotCode)
	require.NoError(t, err)
	payload[6] = 0x52
	_, err = ParseIntermediate(base58.CheckEncode(payload, ver))
	require.ErrorIs(t, err, ErrMalformed)
}

// TestEncryptFromIntermediate checks delegated key generation with a fixed
// seedb.
func TestEncryptFromIntermediate(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name       string
		code       string
		compressed bool
		encrypted  string
		address    string
	}{
		{
			name: "no lot uncompressed",
			code: noLotCode,
			encrypted: "6PfUhjVAtuMv1Qte5PSfnFcPbmYv5dG5UCVZML4brZ" +
				"Mryhat1BaquHeZzf",
			address: "183STfwiVuktyPBS7Rq3cNa94SvTtnWJ8p",
		},
		{
			name:       "no lot compressed",
			code:       noLotCode,
			compressed: true,
			encrypted: "6PnW2hSToCFE9UFC3FvCbmphY5p3WsiJXRwREpFreZ" +
				"gjk5DwcDND85usBo",
			address: "1JPH9w8z2XmYupuMWRnzcgG4of7g2ga5uN",
		},
		{
			name: "lot uncompressed",
			code: lotCode,
			encrypted: "6PgNpg3dH9vauakDhyTb6EtmXNvv4TaHppUeWPLoZ3" +
				"E8WUUsGow1imf4bQ",
			address: "1M65dpnCXMPyxoE35eyiAoZUEsgfGW7dcZ",
		},
		{
			name:       "lot compressed",
			code:       lotCode,
			compressed: true,
			encrypted: "6PoP4HZUwvZMgHSiRbP67ppCKxyH3nR4k7DNAPoXPT" +
				"F4sPoLHzwEM3HVof",
			address: "14DGjJ7nGgdXJBT7PYygKkf37MSyNiUfPg",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			encrypted, addr, err := EncryptFromIntermediate(
				context.Background(), tc.code, testSeedB,
				tc.compressed, &chaincfg.MainNetParams, nil,
			)
			require.NoError(t, err)
			require.Equal(t, tc.encrypted, encrypted)
			require.Equal(t, tc.address, addr)
		})
	}

	_, _, err := EncryptFromIntermediate(
		context.Background(), noLotCode, testSeedB[:23], false,
		&chaincfg.MainNetParams, nil,
	)
	require.ErrorIs(t, err, ErrInvalidSeedB)
}

// TestECMultiplyRoundTrip checks that the passphrase holder can decrypt a key
// generated from their intermediate code, and that the decrypted key matches
// the address the generating party was given.
func TestECMultiplyRoundTrip(t *testing.T) {
	t.Parallel()

	encrypted, addr, err := EncryptFromIntermediate(
		context.Background(), lotCode, nil, true,
		&chaincfg.MainNetParams, nil,
	)
	require.NoError(t, err)

	result, err := Decrypt(
		context.Background(), encrypted, []byte("MOLON LABE"),
		&chaincfg.MainNetParams, nil,
	)
	require.NoError(t, err)

	key, err := result.UnwrapOrErr(errNoKey)
	require.NoError(t, err)
	require.True(t, key.Compressed())

	got, err := key.Address(&chaincfg.MainNetParams)
	require.NoError(t, err)
	require.Equal(t, addr, got.EncodeAddress())

	result, err = Decrypt(
		context.Background(), encrypted, []byte("MOLON LABF"),
		&chaincfg.MainNetParams, nil,
	)
	require.NoError(t, err)
	require.True(t, result.IsNone())
}
