package input

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

const (
	// MaxMultiSigKeys is the largest number of compressed keys whose
	// multisig script still fits in a standard P2SH redeem script.
	MaxMultiSigKeys = 15

	// compressedPubKeyLen is the length of a compressed public key.
	compressedPubKeyLen = 33
)

var (
	// ErrInvalidThreshold is returned when a threshold is zero or larger
	// than the number of keys.
	ErrInvalidThreshold = errors.New("invalid multisig threshold")

	// ErrInvalidPubKeyCount is returned when a multisig script would
	// carry no keys or more than MaxMultiSigKeys.
	ErrInvalidPubKeyCount = errors.New("invalid number of multisig keys")

	// ErrInvalidPubKeyLen is returned for public keys that are not
	// compressed.
	ErrInvalidPubKeyLen = errors.New("compressed pubkeys only")
)

// ScriptBuilder builds the scripts of a threshold multisig output. The
// coordinator never encodes opcodes itself; it asks a ScriptBuilder.
type ScriptBuilder interface {
	// BuildMultisigScript returns the redeem script requiring threshold
	// signatures from pubKeys, in the order given.
	BuildMultisigScript(threshold int, pubKeys [][]byte) ([]byte, error)

	// BuildSpendScript returns the scriptSig that spends a P2SH output
	// of redeemScript with sigs, which must be in public key order.
	BuildSpendScript(sigs [][]byte, redeemScript []byte) ([]byte, error)
}

// TxScriptBuilder is the ScriptBuilder that encodes bare CHECKMULTISIG
// scripts wrapped in P2SH.
type TxScriptBuilder struct{}

// A compile time check to ensure TxScriptBuilder implements ScriptBuilder.
var _ ScriptBuilder = (*TxScriptBuilder)(nil)

// BuildMultisigScript implements ScriptBuilder.
func (TxScriptBuilder) BuildMultisigScript(threshold int,
	pubKeys [][]byte) ([]byte, error) {

	return GenMultiSigScript(threshold, pubKeys)
}

// BuildSpendScript implements ScriptBuilder.
func (TxScriptBuilder) BuildSpendScript(sigs [][]byte,
	redeemScript []byte) ([]byte, error) {

	return SpendMultiSig(redeemScript, sigs)
}

// GenMultiSigScript generates the threshold-of-len(pubKeys) CHECKMULTISIG
// script. Keys are not sorted: signatures must be supplied in the same order
// as the keys appear here.
func GenMultiSigScript(threshold int, pubKeys [][]byte) ([]byte, error) {
	if len(pubKeys) == 0 || len(pubKeys) > MaxMultiSigKeys {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPubKeyCount,
			len(pubKeys))
	}
	if threshold <= 0 || threshold > len(pubKeys) {
		return nil, fmt.Errorf("%w: %d of %d", ErrInvalidThreshold,
			threshold, len(pubKeys))
	}

	bldr := txscript.NewScriptBuilder()
	bldr.AddInt64(int64(threshold))
	for i, pubKey := range pubKeys {
		if len(pubKey) != compressedPubKeyLen {
			return nil, fmt.Errorf("%w: key %d has %d bytes",
				ErrInvalidPubKeyLen, i, len(pubKey))
		}
		bldr.AddData(pubKey)
	}
	bldr.AddInt64(int64(len(pubKeys)))
	bldr.AddOp(txscript.OP_CHECKMULTISIG)

	return bldr.Script()
}

// ScriptHashPkScript generates the pay-to-script-hash output script paying to
// the passed redeem script.
func ScriptHashPkScript(redeemScript []byte) ([]byte, error) {
	bldr := txscript.NewScriptBuilder()

	bldr.AddOp(txscript.OP_HASH160)
	bldr.AddData(btcutil.Hash160(redeemScript))
	bldr.AddOp(txscript.OP_EQUAL)

	return bldr.Script()
}

// SpendMultiSig generates the scriptSig that redeems a P2SH multisig output.
// The sigs must already be in the order of the keys in the redeem script and
// each carry its trailing hash type byte.
func SpendMultiSig(redeemScript []byte, sigs [][]byte) ([]byte, error) {
	bldr := txscript.NewScriptBuilder()

	// CHECKMULTISIG pops one element more than it uses.
	bldr.AddOp(txscript.OP_0)
	for _, sig := range sigs {
		bldr.AddData(sig)
	}

	// Finally, add the redeem script as the last push.
	bldr.AddData(redeemScript)

	return bldr.Script()
}

// FindScriptOutputIndex finds the index of the public key script output
// matching 'script'. Additionally, a boolean is returned indicating if a
// matching output was found at all.
//
// NOTE: The search stops after the first matching script is found.
func FindScriptOutputIndex(tx *wire.MsgTx, script []byte) (bool, uint32) {
	for i, txOut := range tx.TxOut {
		if bytes.Equal(txOut.PkScript, script) {
			return true, uint32(i)
		}
	}

	return false, 0
}
