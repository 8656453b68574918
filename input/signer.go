package input

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/hdmwallet/hdmcore/keychain"
	"github.com/hdmwallet/hdmcore/txsig"
)

// ErrUnsupportedHashType is returned for hash types the legacy signature hash
// cannot commit to, such as fork id types.
var ErrUnsupportedHashType = errors.New("unsupported sighash type")

// Signer represents an abstract object capable of generating raw signatures
// given a valid SignDescriptor and transaction. This interface abstracts away
// where the private keys live: an in-memory key tree, an offline cold device
// or a remote cosigning server.
type Signer interface {
	// SignOutputRaw generates a signature for the passed transaction
	// according to the data within the passed SignDescriptor.
	SignOutputRaw(tx *wire.MsgTx,
		signDesc *SignDescriptor) (*txsig.TransactionSignature, error)
}

// SigHash computes the legacy signature hash of the input described by
// signDesc, committing to its redeem script.
func SigHash(tx *wire.MsgTx, signDesc *SignDescriptor) ([]byte, error) {
	if signDesc.HashType.HasForkID() || !signDesc.HashType.IsDefined() {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedHashType,
			signDesc.HashType)
	}
	if signDesc.InputIndex < 0 || signDesc.InputIndex >= len(tx.TxIn) {
		return nil, fmt.Errorf("input index %d out of range",
			signDesc.InputIndex)
	}

	return txscript.CalcSignatureHash(
		signDesc.RedeemScript, signDesc.HashType.TxScript(), tx,
		signDesc.InputIndex,
	)
}

// KeyRingSigner is a Signer backed by a key ring that can re-derive private
// keys. Every private key is wiped as soon as its signature is made.
type KeyRingSigner struct {
	keyRing keychain.SecretKeyRing
}

// A compile time check to ensure KeyRingSigner implements Signer.
var _ Signer = (*KeyRingSigner)(nil)

// NewKeyRingSigner creates a signer over keyRing.
func NewKeyRingSigner(keyRing keychain.SecretKeyRing) *KeyRingSigner {
	return &KeyRingSigner{keyRing: keyRing}
}

// SignOutputRaw implements Signer.
func (k *KeyRingSigner) SignOutputRaw(tx *wire.MsgTx,
	signDesc *SignDescriptor) (*txsig.TransactionSignature, error) {

	hash, err := SigHash(tx, signDesc)
	if err != nil {
		return nil, err
	}

	key, err := k.keyRing.DerivePrivKey(signDesc.KeyDesc)
	if err != nil {
		return nil, err
	}
	defer key.Zero()

	return txsig.Sign(key, hash, signDesc.HashType)
}

// SignMultiSigInputs produces one cosigner's signature set: one signature per
// input of tx, in input order. signDescs[i] must describe input i.
func SignMultiSigInputs(signer Signer, tx *wire.MsgTx,
	signDescs []*SignDescriptor) ([]*txsig.TransactionSignature, error) {

	if len(signDescs) != len(tx.TxIn) {
		return nil, fmt.Errorf("have %d sign descriptors for %d inputs",
			len(signDescs), len(tx.TxIn))
	}

	sigs := make([]*txsig.TransactionSignature, len(signDescs))
	for i, signDesc := range signDescs {
		if signDesc.InputIndex != i {
			return nil, fmt.Errorf("sign descriptor %d is for "+
				"input %d", i, signDesc.InputIndex)
		}

		sig, err := signer.SignOutputRaw(tx, signDesc)
		if err != nil {
			return nil, fmt.Errorf("unable to sign input %d: %w",
				i, err)
		}
		sigs[i] = sig
	}

	return sigs, nil
}
