package bip38

import (
	"context"
	"crypto/aes"
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/hdmwallet/hdmcore/keychain"
	"github.com/lightningnetwork/lnd/fn/v2"
	"golang.org/x/text/unicode/norm"
)

const (
	// version is the first byte of every encrypted key.
	version = 0x01

	// prefixDirect marks a key encrypted directly with the passphrase.
	prefixDirect = 0x42

	// prefixECMultiply marks a key generated through EC multiplication.
	prefixECMultiply = 0x43

	// flagDirect is the set of flag bits always set on a direct key.
	flagDirect = 0xc0

	// flagCompressed is set when the key's address uses the compressed
	// public key.
	flagCompressed = 0x20

	// flagLotSequence is set on EC-multiplied keys whose owner entropy
	// embeds a lot and sequence number.
	flagLotSequence = 0x04

	// encodedLen is the length of an encrypted key after Base58Check
	// decoding, excluding the version byte.
	encodedLen = 38

	// addressHashLen is the length of the address hash salt.
	addressHashLen = 4
)

var (
	// ErrMalformed is returned when an encrypted key or intermediate code
	// cannot be decoded.
	ErrMalformed = errors.New("malformed encrypted key")

	// ErrInvalidFlags is returned when the flag byte of an encrypted key
	// carries bits that are not valid for its type.
	ErrInvalidFlags = errors.New("invalid encrypted key flags")
)

// normalizePassphrase returns the NFC form of passphrase in a fresh buffer
// that the caller must wipe.
func normalizePassphrase(passphrase []byte) []byte {
	return norm.NFC.Append(nil, passphrase...)
}

// addressHash returns the salt bound to the address of key: the first four
// bytes of the double SHA-256 of the address string.
func addressHash(key *keychain.KeyPair, net *chaincfg.Params) ([]byte,
	string, error) {

	addr, err := key.Address(net)
	if err != nil {
		return nil, "", err
	}
	encoded := addr.EncodeAddress()

	return chainhash.DoubleHashB([]byte(encoded))[:addressHashLen], encoded,
		nil
}

// Encrypt encrypts the private key of key under passphrase. The result is the
// 58 character Base58Check string starting with "6P". The address hash that
// salts the stretch depends on the key's compression flag and on net.
func Encrypt(ctx context.Context, key *keychain.KeyPair, passphrase []byte,
	net *chaincfg.Params, progress *Progress) (string, error) {

	priv, err := key.PrivKeyBytes()
	if err != nil {
		return "", err
	}
	defer keychain.Zero(priv)

	salt, _, err := addressHash(key, net)
	if err != nil {
		return "", err
	}

	pass := normalizePassphrase(passphrase)
	defer keychain.Zero(pass)

	progress.begin(keyParams.units())

	derived, err := stretch(ctx, pass, salt, keyParams, progress)
	if err != nil {
		return "", err
	}
	defer keychain.Zero(derived)

	block, err := aes.NewCipher(derived[32:])
	if err != nil {
		return "", err
	}

	flag := byte(flagDirect)
	if key.Compressed() {
		flag |= flagCompressed
	}

	payload := make([]byte, encodedLen)
	payload[0] = prefixDirect
	payload[1] = flag
	copy(payload[2:6], salt)

	var half [16]byte
	defer keychain.Zero(half[:])

	subtle.XORBytes(half[:], priv[:16], derived[:16])
	block.Encrypt(payload[6:22], half[:])
	subtle.XORBytes(half[:], priv[16:], derived[16:32])
	block.Encrypt(payload[22:38], half[:])

	progress.finish()
	log.Debugf("Encrypted key with address hash %x", salt)

	return base58.CheckEncode(payload, version), nil
}

// decode unpacks an encrypted key into its 38 byte payload.
func decode(encoded string) ([]byte, error) {
	payload, ver, err := base58.CheckDecode(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if ver != version || len(payload) != encodedLen {
		return nil, fmt.Errorf("%w: unexpected length or version",
			ErrMalformed)
	}

	flag := payload[1]
	switch payload[0] {
	case prefixDirect:
		if flag&^flagCompressed != flagDirect {
			return nil, fmt.Errorf("%w: %#x", ErrInvalidFlags, flag)
		}

	case prefixECMultiply:
		if flag&^(flagCompressed|flagLotSequence) != 0 {
			return nil, fmt.Errorf("%w: %#x", ErrInvalidFlags, flag)
		}

	default:
		return nil, fmt.Errorf("%w: unknown prefix %#x", ErrMalformed,
			payload[0])
	}

	return payload, nil
}

// Decrypt recovers the private key from either kind of encrypted key.
//
// A malformed string yields an error. A well formed string whose decrypted key
// does not hash to the embedded address hash yields fn.None, which is what a
// wrong passphrase looks like. The address hash is the only authenticity check
// the format offers, so a wrong passphrase is detected with probability
// 1 - 2^-32. Cancellation yields ErrCancelled.
func Decrypt(ctx context.Context, encoded string, passphrase []byte,
	net *chaincfg.Params,
	progress *Progress) (fn.Option[*keychain.KeyPair], error) {

	none := fn.None[*keychain.KeyPair]()

	payload, err := decode(encoded)
	if err != nil {
		return none, err
	}

	pass := normalizePassphrase(passphrase)
	defer keychain.Zero(pass)

	var key *keychain.KeyPair
	if payload[0] == prefixDirect {
		key, err = decryptDirect(ctx, payload, pass, progress)
	} else {
		key, err = decryptECMultiply(ctx, payload, pass, progress)
	}
	switch {
	case errors.Is(err, keychain.ErrInvalidScalar):
		log.Debugf("Decrypted scalar out of range, wrong passphrase")
		return none, nil

	case err != nil:
		return none, err
	}

	salt, _, err := addressHash(key, net)
	if err != nil {
		key.Zero()
		return none, err
	}
	if subtle.ConstantTimeCompare(salt, payload[2:6]) != 1 {
		key.Zero()

		log.Debugf("Address hash mismatch: want %x, got %x",
			payload[2:6], salt)

		return none, nil
	}

	progress.finish()

	return fn.Some(key), nil
}

// decryptDirect undoes Encrypt.
func decryptDirect(ctx context.Context, payload, pass []byte,
	progress *Progress) (*keychain.KeyPair, error) {

	progress.begin(keyParams.units())

	derived, err := stretch(ctx, pass, payload[2:6], keyParams, progress)
	if err != nil {
		return nil, err
	}
	defer keychain.Zero(derived)

	block, err := aes.NewCipher(derived[32:])
	if err != nil {
		return nil, err
	}

	priv := make([]byte, 32)
	defer keychain.Zero(priv)

	block.Decrypt(priv[:16], payload[6:22])
	block.Decrypt(priv[16:], payload[22:38])
	subtle.XORBytes(priv, priv, derived[:32])

	return keychain.NewKeyPairFromBytes(
		priv, payload[1]&flagCompressed != 0,
	)
}
