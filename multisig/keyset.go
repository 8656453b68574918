package multisig

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/hdmwallet/hdmcore/input"
)

var (
	// ErrDuplicateKey is returned when a key set lists the same public key
	// twice, which would make signer identification ambiguous.
	ErrDuplicateKey = errors.New("duplicate public key in key set")

	// ErrNilKey is returned for a key set with a missing public key.
	ErrNilKey = errors.New("nil public key in key set")
)

// KeySet is an ordered M-of-N set of cosigner keys. The order is the order
// of the keys in the redeem script and the order signatures must follow.
type KeySet struct {
	// Threshold is the number of signatures needed to spend.
	Threshold int

	// PubKeys are the cosigner keys in script order.
	PubKeys []*btcec.PublicKey
}

// Validate checks the threshold against the key count and that every key is
// present and distinct.
func (k *KeySet) Validate() error {
	if len(k.PubKeys) == 0 || len(k.PubKeys) > input.MaxMultiSigKeys {
		return fmt.Errorf("%w: %d", input.ErrInvalidPubKeyCount,
			len(k.PubKeys))
	}
	if k.Threshold <= 0 || k.Threshold > len(k.PubKeys) {
		return fmt.Errorf("%w: %d of %d", input.ErrInvalidThreshold,
			k.Threshold, len(k.PubKeys))
	}

	seen := make(map[[33]byte]int, len(k.PubKeys))
	for i, pubKey := range k.PubKeys {
		if pubKey == nil {
			return fmt.Errorf("%w: index %d", ErrNilKey, i)
		}

		var ser [33]byte
		copy(ser[:], pubKey.SerializeCompressed())
		if j, ok := seen[ser]; ok {
			return fmt.Errorf("%w: index %d and %d", ErrDuplicateKey,
				j, i)
		}
		seen[ser] = i
	}

	return nil
}

// serializedKeys returns the compressed encoding of every key.
func (k *KeySet) serializedKeys() [][]byte {
	keys := make([][]byte, len(k.PubKeys))
	for i, pubKey := range k.PubKeys {
		keys[i] = pubKey.SerializeCompressed()
	}

	return keys
}

// RedeemScript validates the set and has builder encode its redeem script.
func (k *KeySet) RedeemScript(builder input.ScriptBuilder) ([]byte, error) {
	if err := k.Validate(); err != nil {
		return nil, err
	}

	return builder.BuildMultisigScript(k.Threshold, k.serializedKeys())
}

// Address returns the pay-to-script-hash address of the set's redeem script
// on net.
func (k *KeySet) Address(builder input.ScriptBuilder,
	net *chaincfg.Params) (*btcutil.AddressScriptHash, error) {

	redeemScript, err := k.RedeemScript(builder)
	if err != nil {
		return nil, err
	}

	return btcutil.NewAddressScriptHash(redeemScript, net)
}
