package bip38

import (
	"encoding/binary"

	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// EncryptedKey is a parsed encrypted key. It exposes what can be read without
// the passphrase.
type EncryptedKey struct {
	payload []byte
}

// ParseEncryptedKey decodes and checks a "6P" string.
func ParseEncryptedKey(encoded string) (*EncryptedKey, error) {
	payload, err := decode(encoded)
	if err != nil {
		return nil, err
	}

	return &EncryptedKey{payload: payload}, nil
}

// ECMultiplied reports whether the key was generated from an intermediate
// code rather than encrypted directly.
func (k *EncryptedKey) ECMultiplied() bool {
	return k.payload[0] == prefixECMultiply
}

// Compressed reports whether the key's address uses the compressed public
// key.
func (k *EncryptedKey) Compressed() bool {
	return k.payload[1]&flagCompressed != 0
}

// AddressHash returns the salt the address of the decrypted key must hash to.
func (k *EncryptedKey) AddressHash() [addressHashLen]byte {
	var h [addressHashLen]byte
	copy(h[:], k.payload[2:6])

	return h
}

// LotSequence returns the lot and sequence number of an EC-multiplied key
// whose owner entropy carries them.
func (k *EncryptedKey) LotSequence() fn.Option[LotSequence] {
	if !k.ECMultiplied() || k.payload[1]&flagLotSequence == 0 {
		return fn.None[LotSequence]()
	}

	ls := binary.BigEndian.Uint32(k.payload[10:14])

	return fn.Some(LotSequence{
		Lot:      ls >> 12,
		Sequence: ls & MaxSequence,
	})
}

// String returns the Base58Check form of the key.
func (k *EncryptedKey) String() string {
	return base58.CheckEncode(k.payload, version)
}
