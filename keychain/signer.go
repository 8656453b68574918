package keychain

import (
	"bytes"
	"context"
	"crypto/sha256"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/hdmwallet/hdmcore/hdmutils"
)

// signedMessageMagic is prepended to every message before hashing so that a
// signed message can never double as a transaction signature.
const signedMessageMagic = "Bitcoin Signed Message:\n"

// SignedMessageHash returns the double SHA256 digest that the standard
// signed-message format signs over: varstr(magic) || varstr(msg).
func SignedMessageHash(msg []byte) []byte {
	var buf bytes.Buffer
	_ = wire.WriteVarString(&buf, 0, signedMessageMagic)
	_ = wire.WriteVarString(&buf, 0, string(msg))

	return chainhash.DoubleHashB(buf.Bytes())
}

// messageDigest hashes msg once or twice with SHA256.
func messageDigest(msg []byte, doubleHash bool) []byte {
	if doubleHash {
		return chainhash.DoubleHashB(msg)
	}

	digest := sha256.Sum256(msg)

	return digest[:]
}

// NewPrivKeyMessageSigner creates a new signer that wraps a key pair holding
// private material.
func NewPrivKeyMessageSigner(keyPair *KeyPair,
	keyLoc KeyLocator) *PrivKeyMessageSigner {

	return &PrivKeyMessageSigner{
		keyLoc:  keyLoc,
		keyPair: keyPair,
	}
}

// PrivKeyMessageSigner is a SingleKeyMessageSigner implementation that
// contains a key pair and its locator.
type PrivKeyMessageSigner struct {
	keyPair *KeyPair
	keyLoc  KeyLocator
}

// PubKey returns the public key of the wrapped private key.
//
// NOTE: This is part of the SingleKeyMessageSigner interface.
func (p *PrivKeyMessageSigner) PubKey() *btcec.PublicKey {
	return p.keyPair.PubKey()
}

// KeyLocator returns the locator that describes the wrapped private key.
//
// NOTE: This is part of the SingleKeyMessageSigner interface.
func (p *PrivKeyMessageSigner) KeyLocator() KeyLocator {
	return p.keyLoc
}

// SignMessage signs the given message, single or double SHA256 hashing it
// first, with the wrapped private key.
//
// NOTE: This is part of the SingleKeyMessageSigner interface.
func (p *PrivKeyMessageSigner) SignMessage(msg []byte,
	doubleHash bool) (*ecdsa.Signature, error) {

	return p.keyPair.Sign(messageDigest(msg, doubleHash))
}

// SignMessageCompact signs msg in the standard signed-message format and
// returns the 65-byte recoverable signature.
//
// NOTE: This is part of the SingleKeyMessageSigner interface.
func (p *PrivKeyMessageSigner) SignMessageCompact(msg []byte) ([]byte, error) {
	log.DebugS(context.TODO(), "Signing message",
		hdmutils.LogPubKey("pubkey", p.keyPair.PubKey()),
		"locator", p.keyLoc.String())

	return p.keyPair.SignCompact(SignedMessageHash(msg))
}

var _ SingleKeyMessageSigner = (*PrivKeyMessageSigner)(nil)

// RecoverMessageSigner recovers the public key that produced a compact
// signed-message signature, along with whether the signer used a compressed
// key.
func RecoverMessageSigner(msg, sig []byte) (*btcec.PublicKey, bool, error) {
	return ecdsa.RecoverCompact(sig, SignedMessageHash(msg))
}

// VerifyMessage reports whether sig is a valid compact signed-message
// signature over msg by the owner of the given pay-to-pubkey-hash address.
func VerifyMessage(addr string, msg, sig []byte,
	net *chaincfg.Params) (bool, error) {

	target, err := btcutil.DecodeAddress(addr, net)
	if err != nil {
		return false, err
	}

	pubKey, compressed, err := RecoverMessageSigner(msg, sig)
	if err != nil {
		// A signature that fails to recover is simply not valid.
		return false, nil
	}

	serialized := pubKey.SerializeUncompressed()
	if compressed {
		serialized = pubKey.SerializeCompressed()
	}

	recovered, err := btcutil.NewAddressPubKeyHash(
		btcutil.Hash160(serialized), net,
	)
	if err != nil {
		return false, err
	}

	return recovered.EncodeAddress() == target.EncodeAddress(), nil
}
