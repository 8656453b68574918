package hdkey

import (
	"encoding/hex"
	"sync"
	"testing"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// vector1Seed is the seed of the first BIP32 test vector.
var vector1Seed, _ = hex.DecodeString("000102030405060708090a0b0c0d0e0f")

// TestBIP32Vector1 derives every node of the first BIP32 test vector and
// compares both text forms.
func TestBIP32Vector1(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		path string
		pub  string
		priv string
	}{
		{
			path: "m",
			pub:  "xpub661MyMwAqRbcFtXgS5sYJABqqG9YLmC4Q1Rdap9gSE8NqtwybGhePY2gZ29ESFjqJoCu1Rupje8YtGqsefD265TMg7usUDFdp6W1EGMcet8",
			priv: "xprv9s21ZrQH143K3QTDL4LXw2F7HEK3wJUD2nW2nRk4stbPy6cq3jPPqjiChkVvvNKmPGJxWUtg6LnF5kejMRNNU3TGtRBeJgk33yuGBxrMPHi",
		},
		{
			path: "m/0'",
			pub:  "xpub68Gmy5EdvgibQVfPdqkBBCHxA5htiqg55crXYuXoQRKfDBFA1WEjWgP6LHhwBZeNK1VTsfTFUHCdrfp1bgwQ9xv5ski8PX9rL2dZXvgGDnw",
			priv: "xprv9uHRZZhk6KAJC1avXpDAp4MDc3sQKNxDiPvvkX8Br5ngLNv1TxvUxt4cV1rGL5hj6KCesnDYUhd7oWgT11eZG7XnxHrnYeSvkzY7d2bhkJ7",
		},
		{
			path: "m/0'/1",
			pub:  "xpub6ASuArnXKPbfEwhqN6e3mwBcDTgzisQN1wXN9BJcM47sSikHjJf3UFHKkNAWbWMiGj7Wf5uMash7SyYq527Hqck2AxYysAA7xmALppuCkwQ",
			priv: "xprv9wTYmMFdV23N2TdNG573QoEsfRrWKQgWeibmLntzniatZvR9BmLnvSxqu53Kw1UmYPxLgboyZQaXwTCg8MSY3H2EU4pWcQDnRnrVA1xe8fs",
		},
		{
			path: "m/0'/1/2'",
			pub:  "xpub6D4BDPcP2GT577Vvch3R8wDkScZWzQzMMUm3PWbmWvVJrZwQY4VUNgqFJPMM3No2dFDFGTsxxpG5uJh7n7epu4trkrX7x7DogT5Uv6fcLW5",
			priv: "xprv9z4pot5VBttmtdRTWfWQmoH1taj2axGVzFqSb8C9xaxKymcFzXBDptWmT7FwuEzG3ryjH4ktypQSAewRiNMjANTtpgP4mLTj34bhnZX7UiM",
		},
		{
			path: "m/0'/1/2'/2",
			pub:  "xpub6FHa3pjLCk84BayeJxFW2SP4XRrFd1JYnxeLeU8EqN3vDfZmbqBqaGJAyiLjTAwm6ZLRQUMv1ZACTj37sR62cfN7fe5JnJ7dh8zL4fiyLHV",
			priv: "xprvA2JDeKCSNNZky6uBCviVfJSKyQ1mDYahRjijr5idH2WwLsEd4Hsb2Tyh8RfQMuPh7f7RtyzTtdrbdqqsunu5Mm3wDvUAKRHSC34sJ7in334",
		},
		{
			path: "m/0'/1/2'/2/1000000000",
			pub:  "xpub6H1LXWLaKsWFhvm6RVpEL9P4KfRZSW7abD2ttkWP3SSQvnyA8FSVqNTEcYFgJS2UaFcxupHiYkro49S8yGasTvXEYBVPamhGW6cFJodrTHy",
			priv: "xprvA41z7zogVVwxVSgdKUHDy1SKmdb533PjDz7J6N6mV6uS3ze1ai8FHa8kmHScGpWmj4WggLyQjgPie1rFSruoUihUZREPSL39UNdE3BBDu76",
		},
	}

	master, err := NewMaster(vector1Seed, &chaincfg.MainNetParams)
	require.NoError(t, err)

	for _, tc := range testCases {
		path, err := ParsePath(tc.path)
		require.NoError(t, err)

		key, err := master.DerivePath(path)
		require.NoError(t, err)
		require.Equal(t, tc.priv, key.String(), tc.path)
		require.Equal(t, tc.pub, key.Neuter().String(), tc.path)
		require.Equal(t, len(path), int(key.Depth()))
		require.Equal(t, path, key.Path())
	}
}

// TestBIP44Addresses checks the first twenty receiving addresses of the
// first account below the vector seed.
func TestBIP44Addresses(t *testing.T) {
	t.Parallel()

	expected := []string{
		"1NQpH6Nf8QtR2HphLRcvuVqfhXBXsiWn8r",
		"16qTdEma9YHFPCZ8sB51nNrbfVg8Nkzy6P",
		"1JbFSv4FnJ6ykAmAAMSsfb17xPDRxa3mcd",
		"1LUMqSxParVVQd6JJUFz4hkyw2RRg5kd9p",
		"1ABrPtQMVG2HXeTFdBxFMnFZGXDfBxX6W",
		"1BAe3RWgFyYSYinqMgcYeSn6KhMQiVcq5J",
		"1G4oGpkb8CSaieD42RWDAvdQXSvTyGb3FA",
		"1NfeW33XrsfpbT9kX8bC7drvM15LEowY1f",
		"1NYGvtvJhfz3rYmgvZfnseage7HVniLRwK",
		"14cC65dm9D13VezMRramp1EjT5Y8DCjj5R",
		"1DsTjmQobAy5fDbpwmdX32U7vLRJpBevXx",
		"135CAdKgYEH4sL2VHjDZc833L29WeyUgmk",
		"1DbvjkgJkcJF9km7ki1uvGPRu7ETCqBnad",
		"1Jk3CjrCatH65zcP2ni8UW2GS2UWZZ46kG",
		"181bA8aBHBZ7NhvPCqAYCrgC5K8BwJ3XpS",
		"1JhwVsrRsJadq7i3bAdYpQS1bjNb7GRmQW",
		"1F7B49jJJ7X6mX6XCtaydNq6LMzTmtuE72",
		"13G7g5H6T9zMbuTqutkRem9oAcPRRGkiQo",
		"19sPx9DVWzNjzMzPiAKfYZDHjwF5XKH7WU",
		"1M7kvm32Ph3jWzqn3pQZ9bVJdQHjcV3tJA",
	}

	master, err := NewMaster(vector1Seed, &chaincfg.MainNetParams)
	require.NoError(t, err)

	chain, err := master.DerivePath(Path{
		Hardened(44), Hardened(0), Hardened(0), 0,
	})
	require.NoError(t, err)

	// The external chain is walked from its public form, which is how a
	// watch-only wallet hands out addresses.
	watchOnly := chain.Neuter()
	for i, want := range expected {
		child, err := watchOnly.Derive(ChildIndex(i))
		require.NoError(t, err)
		require.False(t, child.IsPrivate())

		addr, err := child.Address()
		require.NoError(t, err)
		require.Equal(t, want, addr.EncodeAddress(), "index %d", i)
	}
}

// TestNewMasterSeedLen checks the seed length bounds.
func TestNewMasterSeedLen(t *testing.T) {
	t.Parallel()

	_, err := NewMaster(make([]byte, MinSeedBytes-1),
		&chaincfg.MainNetParams)
	require.ErrorIs(t, err, ErrInvalidSeedLen)

	_, err = NewMaster(make([]byte, MaxSeedBytes+1),
		&chaincfg.MainNetParams)
	require.ErrorIs(t, err, ErrInvalidSeedLen)

	_, err = NewMaster(make([]byte, RecommendedSeedLen),
		&chaincfg.MainNetParams)
	require.NoError(t, err)
}

// TestDeriveHardenedFromPublic asserts that a public node refuses hardened
// children.
func TestDeriveHardenedFromPublic(t *testing.T) {
	t.Parallel()

	master, err := NewMaster(vector1Seed, &chaincfg.MainNetParams)
	require.NoError(t, err)

	_, err = master.Neuter().Derive(Hardened(0))
	require.ErrorIs(t, err, ErrDeriveHardFromPublic)

	child, idx, err := master.Neuter().DeriveNext(5)
	require.NoError(t, err)
	require.Equal(t, ChildIndex(5), idx)
	require.Equal(t, ChildIndex(5), child.ChildIndex())
}

// TestZeroKeepsPublicKey checks that zeroing a node leaves a usable public
// node behind.
func TestZeroKeepsPublicKey(t *testing.T) {
	t.Parallel()

	master, err := NewMaster(vector1Seed, &chaincfg.MainNetParams)
	require.NoError(t, err)

	pub := master.Neuter().String()
	master.Zero()

	require.False(t, master.IsPrivate())
	require.Equal(t, pub, master.String())

	_, err = master.Derive(Hardened(1))
	require.ErrorIs(t, err, ErrDeriveHardFromPublic)
}

// TestDeriveWhileZeroing derives hardened children while another goroutine
// zeroes the parent. Every derivation either yields the expected child or
// sees a public node, never a half wiped scalar.
func TestDeriveWhileZeroing(t *testing.T) {
	t.Parallel()

	reference, err := NewMaster(vector1Seed, &chaincfg.MainNetParams)
	require.NoError(t, err)
	want, err := reference.Derive(Hardened(0))
	require.NoError(t, err)

	master, err := NewMaster(vector1Seed, &chaincfg.MainNetParams)
	require.NoError(t, err)

	const workers = 8
	var (
		wg   sync.WaitGroup
		errs = make(chan error, workers)
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()

			child, err := master.Derive(Hardened(0))
			if err != nil {
				errs <- err
				return
			}
			if !child.PubKey().IsEqual(want.PubKey()) {
				errs <- ErrIntegrityFault
			}
		}()
	}
	master.Zero()
	wg.Wait()
	close(errs)

	for err := range errs {
		require.ErrorIs(t, err, ErrDeriveHardFromPublic)
	}
}

// TestDeserializeErrors feeds malformed records and strings to the parser.
func TestDeserializeErrors(t *testing.T) {
	t.Parallel()

	master, err := NewMaster(vector1Seed, &chaincfg.MainNetParams)
	require.NoError(t, err)
	child, err := master.Derive(Hardened(0))
	require.NoError(t, err)
	sibling, err := master.Derive(1)
	require.NoError(t, err)

	text := child.String()

	// Flip the last character to break the checksum.
	last := text[len(text)-1]
	flipped := byte('1')
	if last == '1' {
		flipped = '2'
	}
	_, err = NewKeyFromString(text[:len(text)-1] + string(flipped))
	require.ErrorIs(t, err, ErrBadChecksum)

	_, err = NewKeyFromString(text[:len(text)-4])
	require.ErrorIs(t, err, ErrInvalidKeyLen)

	_, err = NewKeyFromString(text, &chaincfg.TestNet3Params)
	require.ErrorIs(t, err, ErrUnknownHDKeyID)

	record := child.Serialize()
	record[45] = 0x01
	_, err = Deserialize(record)
	require.ErrorIs(t, err, ErrInvalidKeyData)

	record = master.Neuter().Serialize()
	record[5] = 0xff
	_, err = Deserialize(record)
	require.ErrorIs(t, err, ErrInvalidKeyData)

	record = child.Neuter().Serialize()
	copy(record[45:], sibling.PubKey().SerializeUncompressed()[:33])
	_, err = Deserialize(record)
	require.ErrorIs(t, err, ErrInvalidKeyData)

	_, err = Deserialize(record[:40])
	require.ErrorIs(t, err, ErrInvalidKeyLen)
}

// TestImportTruncatesPath checks the documented information loss for
// imported records: depth and fingerprint survive, the path does not.
func TestImportTruncatesPath(t *testing.T) {
	t.Parallel()

	master, err := NewMaster(vector1Seed, &chaincfg.MainNetParams)
	require.NoError(t, err)

	key, err := master.DerivePath(Path{Hardened(0), 1, Hardened(2)})
	require.NoError(t, err)

	imported, err := NewKeyFromString(key.Neuter().String())
	require.NoError(t, err)
	require.Equal(t, uint8(3), imported.Depth())
	require.Equal(t, key.ParentFingerprint(), imported.ParentFingerprint())
	require.Equal(t, Path{Hardened(2)}, imported.Path())
	require.Equal(t, key.Neuter().String(), imported.String())
}

// genPath draws a derivation path of up to six steps.
func genPath(t *rapid.T) Path {
	steps := rapid.SliceOfN(rapid.Uint32Range(0, 50), 0, 6).Draw(t, "steps")
	hardened := rapid.SliceOfN(rapid.Bool(), len(steps), len(steps)).Draw(
		t, "hardened",
	)

	path := make(Path, len(steps))
	for i, s := range steps {
		path[i] = ChildIndex(s)
		if hardened[i] {
			path[i] = Hardened(s)
		}
	}

	return path
}

// TestSerializationRoundTrip checks that both text forms of any derived node
// parse back into the same node, and that derivation agrees with btcutil's
// hdkeychain.
func TestSerializationRoundTrip(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		seed := rapid.SliceOfN(
			rapid.Byte(), MinSeedBytes, MaxSeedBytes,
		).Draw(t, "seed")
		path := genPath(t)

		master, err := NewMaster(seed, &chaincfg.MainNetParams)
		if err != nil {
			require.ErrorIs(t, err, ErrUnusableSeed)
			return
		}

		key, err := master.DerivePath(path)
		if err != nil {
			require.ErrorIs(t, err, ErrInvalidChild)
			return
		}

		for _, k := range []*ExtendedKey{key, key.Neuter()} {
			parsed, err := NewKeyFromString(k.String())
			require.NoError(t, err)
			require.Equal(t, k.Serialize(), parsed.Serialize())
			require.Equal(t, k.IsPrivate(), parsed.IsPrivate())
			require.True(t, k.PubKey().IsEqual(parsed.PubKey()))
		}

		oracle, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
		require.NoError(t, err)
		for _, idx := range path {
			oracle, err = oracle.Derive(uint32(idx))
			require.NoError(t, err)
		}
		require.Equal(t, oracle.String(), key.String())
	})
}

// TestPublicDerivationMatchesPrivate checks that a normal child derived from
// the public parent equals the neutered private child.
func TestPublicDerivationMatchesPrivate(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		seed := rapid.SliceOfN(rapid.Byte(), 32, 32).Draw(t, "seed")
		index := ChildIndex(rapid.Uint32Range(
			0, HardenedKeyStart-1,
		).Draw(t, "index"))

		master, err := NewMaster(seed, &chaincfg.MainNetParams)
		if err != nil {
			return
		}

		priv, err := master.Derive(index)
		if err != nil {
			return
		}
		pub, err := master.Neuter().Derive(index)
		require.NoError(t, err)

		require.Equal(t, priv.Neuter().String(), pub.String())
	})
}

// TestParsePath covers the accepted hardened markers and malformed input.
func TestParsePath(t *testing.T) {
	t.Parallel()

	want := Path{Hardened(44), Hardened(0), Hardened(0), 0, 1}
	for _, s := range []string{
		"m/44'/0'/0'/0/1", "m/44h/0h/0H/0/1", "44'/0'/0'/0/1",
	} {
		path, err := ParsePath(s)
		require.NoError(t, err, s)
		require.Equal(t, want, path, s)
	}
	require.Equal(t, "m/44'/0'/0'/0/1", want.String())

	path, err := ParsePath("m")
	require.NoError(t, err)
	require.Empty(t, path)

	for _, s := range []string{"", "m/x", "m/2147483648", "m/1''", "m//1"} {
		_, err := ParsePath(s)
		require.ErrorIs(t, err, ErrInvalidPath, s)
	}
}
