package input

import (
	"encoding/binary"
	"errors"
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/hdmwallet/hdmcore/keychain"
	"github.com/hdmwallet/hdmcore/txsig"
)

// ErrNoOutput is returned when a SignDescriptor is missing the output it
// spends.
var ErrNoOutput = errors.New("sign descriptor has no output")

// SignDescriptor houses the information a Signer needs to sign one input of a
// transaction spending a P2SH multisig output.
type SignDescriptor struct {
	// KeyDesc is a descriptor that precisely describes *which* key to use
	// for signing. The Signer re-derives the key from the locator and
	// checks it against the public key when one is set.
	KeyDesc keychain.KeyDescriptor

	// RedeemScript is the multisig script committed to by the P2SH
	// output. It is the script the signature hash commits to.
	RedeemScript []byte

	// Output is the output being spent.
	Output *wire.TxOut

	// HashType is the sighash type to sign with.
	HashType txsig.SigHashType

	// InputIndex is the target input within the transaction that should be
	// signed. It is not serialized.
	InputIndex int
}

// WriteSignDescriptor serializes a SignDescriptor struct into the passed
// io.Writer stream, so that a cosigner request can be stored or forwarded to
// an offline signer.
func WriteSignDescriptor(w io.Writer, sd *SignDescriptor) error {
	if sd.Output == nil {
		return ErrNoOutput
	}

	loc := sd.KeyDesc.KeyLocator
	for _, v := range []uint32{
		loc.CoinType, loc.Account, uint32(loc.Branch), loc.Index,
	} {
		if err := binary.Write(w, binary.BigEndian, v); err != nil {
			return err
		}
	}

	err := binary.Write(w, binary.BigEndian, sd.KeyDesc.PubKey != nil)
	if err != nil {
		return err
	}
	if sd.KeyDesc.PubKey != nil {
		serializedPubKey := sd.KeyDesc.PubKey.SerializeCompressed()
		if err := wire.WriteVarBytes(w, 0, serializedPubKey); err != nil {
			return err
		}
	}

	if err := wire.WriteVarBytes(w, 0, sd.RedeemScript); err != nil {
		return err
	}

	if err := writeTxOut(w, sd.Output); err != nil {
		return err
	}

	return binary.Write(w, binary.BigEndian, uint32(sd.HashType))
}

// ReadSignDescriptor deserializes a SignDescriptor struct from the passed
// io.Reader stream.
func ReadSignDescriptor(r io.Reader, sd *SignDescriptor) error {
	var loc [4]uint32
	for i := range loc {
		if err := binary.Read(r, binary.BigEndian, &loc[i]); err != nil {
			return err
		}
	}
	sd.KeyDesc.KeyLocator = keychain.KeyLocator{
		CoinType: loc[0],
		Account:  loc[1],
		Branch:   keychain.Branch(loc[2]),
		Index:    loc[3],
	}

	var hasKey bool
	if err := binary.Read(r, binary.BigEndian, &hasKey); err != nil {
		return err
	}

	sd.KeyDesc.PubKey = nil
	if hasKey {
		pubKeyBytes, err := wire.ReadVarBytes(r, 0, 33, "pubkey")
		if err != nil {
			return err
		}
		sd.KeyDesc.PubKey, err = btcec.ParsePubKey(pubKeyBytes)
		if err != nil {
			return err
		}
	}

	redeemScript, err := wire.ReadVarBytes(
		r, 0, txscript.MaxScriptElementSize, "redeemScript",
	)
	if err != nil {
		return err
	}
	sd.RedeemScript = redeemScript

	sd.Output, err = readTxOut(r)
	if err != nil {
		return err
	}

	var hashType uint32
	if err := binary.Read(r, binary.BigEndian, &hashType); err != nil {
		return err
	}
	sd.HashType = txsig.SigHashType(hashType)

	return nil
}
