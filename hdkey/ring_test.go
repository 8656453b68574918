package hdkey

import (
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/hdmwallet/hdmcore/keychain"
	"github.com/stretchr/testify/require"
)

// TestRingDeriveAndSign derives a key through the ring, signs with it and
// verifies the signature against the derived address.
func TestRingDeriveAndSign(t *testing.T) {
	t.Parallel()

	master, err := NewMaster(vector1Seed, &chaincfg.MainNetParams)
	require.NoError(t, err)

	ring, err := NewRing(NewTree(), master)
	require.NoError(t, err)

	loc := keychain.KeyLocator{
		CoinType: keychain.CoinTypeBitcoin,
		Branch:   keychain.BranchExternal,
	}
	desc, err := ring.DeriveKey(loc)
	require.NoError(t, err)

	addr, err := btcutil.NewAddressPubKeyHash(
		btcutil.Hash160(desc.PubKey.SerializeCompressed()),
		&chaincfg.MainNetParams,
	)
	require.NoError(t, err)
	require.Equal(t, "1NQpH6Nf8QtR2HphLRcvuVqfhXBXsiWn8r",
		addr.EncodeAddress())

	msg := []byte("hello")
	sig, err := ring.SignMessageCompact(loc, msg)
	require.NoError(t, err)

	ok, err := keychain.VerifyMessage(
		addr.EncodeAddress(), msg, sig, &chaincfg.MainNetParams,
	)
	require.NoError(t, err)
	require.True(t, ok)

	plain, err := ring.SignMessage(loc, msg, true)
	require.NoError(t, err)

	keyPair, err := ring.DerivePrivKey(desc)
	require.NoError(t, err)
	defer keyPair.Zero()
	require.True(t, keyPair.Verify(chainhash.DoubleHashB(msg), plain))

	// A descriptor whose public key does not match is refused.
	other := desc
	other.PubKey = master.PubKey()
	_, err = ring.DerivePrivKey(other)
	require.ErrorIs(t, err, keychain.ErrCannotDerivePrivKey)
}

// TestAccountRing roots a ring at an account node and checks that it serves
// the same keys as a master ring.
func TestAccountRing(t *testing.T) {
	t.Parallel()

	master, err := NewMaster(vector1Seed, &chaincfg.MainNetParams)
	require.NoError(t, err)

	loc := keychain.KeyLocator{Index: 4}
	account, err := master.DerivePath(PathFromUint32(loc.AccountPath()))
	require.NoError(t, err)

	masterRing, err := NewRing(NewTree(), master)
	require.NoError(t, err)
	accountRing, err := NewRing(NewTree(), account.Neuter())
	require.NoError(t, err)

	want, err := masterRing.DeriveKey(loc)
	require.NoError(t, err)
	got, err := accountRing.DeriveKey(loc)
	require.NoError(t, err)
	require.True(t, want.PubKey.IsEqual(got.PubKey))

	// The watch-only ring cannot sign.
	_, err = accountRing.SignMessageCompact(loc, []byte("x"))
	require.ErrorIs(t, err, ErrMissingPrivateKey)
}
