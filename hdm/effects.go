package hdm

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/hdmwallet/hdmcore/bip38"
	"github.com/hdmwallet/hdmcore/blobdb"
	"github.com/hdmwallet/hdmcore/hdkey"
	"github.com/hdmwallet/hdmcore/hdmutils"
	"github.com/hdmwallet/hdmcore/input"
	"github.com/hdmwallet/hdmcore/keychain"
	"github.com/hdmwallet/hdmcore/mnemonic"
	"github.com/hdmwallet/hdmcore/multisig"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/tv42/zbase32"
)

// ChallengeMessage returns the message the cold key signs to bind hotAddress.
func ChallengeMessage(hotAddress string, secret []byte, nonce string) []byte {
	return []byte(challengePrefix + hotAddress + ":" +
		hex.EncodeToString(secret) + ":" + nonce)
}

// none is the outcome of an effect that produces no event.
func none() fn.Option[Event] {
	return fn.None[Event]()
}

// emit wraps an event as the outcome of an effect.
func emit(event Event) fn.Option[Event] {
	return fn.Some(event)
}

// execute carries out one effect and returns the event it produced, if any.
func (b *Binder) execute(ctx context.Context, effect Effect) fn.Option[Event] {
	switch e := effect.(type) {
	case *DeriveHotKey:
		if err := b.deriveHalf(b.hot); err != nil {
			return emit(&LocalFailed{Err: err})
		}

		desc, err := b.hot.ring.DeriveKey(b.locator(0))
		if err != nil {
			return emit(&LocalFailed{Err: err})
		}
		addr, err := btcutil.NewAddressPubKeyHash(
			btcutil.Hash160(desc.PubKey.SerializeCompressed()),
			b.cfg.Net.Params,
		)
		if err != nil {
			return emit(&LocalFailed{Err: err})
		}
		b.hotAddress = addr.EncodeAddress()

		return emit(&HotKeyReady{})

	case *DeriveColdKey:
		if err := b.deriveHalf(b.cold); err != nil {
			return emit(&LocalFailed{Err: err})
		}

		return emit(&ColdKeyReady{})

	case *EscrowColdKey:
		if err := b.escrowColdKey(ctx); err != nil {
			return emit(&LocalFailed{Err: err})
		}

		return none()

	case *RequestChallenge:
		nonce, err := b.cfg.Service.GetChallenge(ctx, b.hotAddress)
		if err != nil {
			return emit(&ServiceFailed{Err: err})
		}

		return emit(&ChallengeReceived{Nonce: nonce})

	case *UploadBinding:
		return b.uploadBinding(ctx, e.Nonce)

	case *FetchCosigners:
		keys, err := b.cfg.Service.FetchCosignerPubkeys(
			ctx, &CosignerRequest{
				HotAddress: b.hotAddress,
				Count:      b.cfg.AddressBatch,
			},
		)
		if err != nil {
			return emit(&ServiceFailed{Err: err})
		}
		if len(keys) != b.cfg.AddressBatch ||
			slices.Contains(keys, nil) {

			return emit(&ServiceFailed{Err: fmt.Errorf("%w: got "+
				"%d, want %d", ErrCosignerCount, len(keys),
				b.cfg.AddressBatch)})
		}

		return emit(&CosignersReceived{ServerKeys: keys})

	case *ProvisionAddresses:
		addrs, err := b.provisionAddresses(e.ServerKeys)
		if err != nil {
			return emit(&LocalFailed{Err: err})
		}

		return emit(&AddressesProvisioned{Addresses: addrs})

	case *RecordBinding:
		if err := b.recordBinding(e.Addresses); err != nil {
			return emit(&LocalFailed{Err: err})
		}

		return emit(&BindingRecorded{})

	case *DropEscrow:
		b.dropEscrow()

		return none()

	case *WipeColdKey:
		b.cold.wipe()

		log.Infof("Wiped cold key material")

		return none()

	case *WipeAll:
		b.hot.wipe()
		b.cold.wipe()
		b.hot, b.cold = nil, nil
		b.hotAddress = ""
		b.escrow = ""
		b.escrowStored = false
		b.binding = fn.None[*Binding]()

		return none()

	default:
		return emit(&LocalFailed{
			Err: fmt.Errorf("unknown effect %T", effect),
		})
	}
}

// locator returns the BIP44 locator of the external key at index.
func (b *Binder) locator(index uint32) keychain.KeyLocator {
	return keychain.KeyLocator{
		CoinType: b.cfg.Net.CoinType,
		Branch:   keychain.BranchExternal,
		Index:    index,
	}
}

// deriveHalf turns a half's entropy into its mnemonic, seed and key ring.
func (b *Binder) deriveHalf(h *half) error {
	words, err := b.cfg.Codec.EntropyToWords(h.entropy.Bytes())
	if err != nil {
		return err
	}

	seed := mnemonic.ToSeed(words, nil)
	defer keychain.Zero(seed)

	master, err := hdkey.NewMaster(seed, b.cfg.Net.Params)
	if err != nil {
		return err
	}

	ring, err := hdkey.NewRing(hdkey.NewTree(), master)
	if err != nil {
		master.Zero()
		return err
	}

	h.words = words
	h.ring = ring

	return nil
}

// escrowColdKey encrypts the cold root key under the passphrase. The result
// is held until the binding is recorded.
func (b *Binder) escrowColdKey(ctx context.Context) error {
	root, err := b.cold.ring.Tree().PrivateKey(b.cold.ring.Root())
	if err != nil {
		return err
	}
	defer root.Zero()

	start := time.Now()
	escrow, err := bip38.Encrypt(
		ctx, root.KeyPair(), b.passphrase.Bytes(), b.cfg.Net.Params,
		nil,
	)
	b.cfg.Metrics.ObserveStretch(start, err, bip38.ErrCancelled)
	if err != nil {
		return err
	}
	b.escrow = escrow

	return nil
}

// dropEscrow deletes the stored cold key escrow, if this run stored one.
func (b *Binder) dropEscrow() {
	if !b.escrowStored {
		return
	}

	err := b.cfg.Store.DeleteBlob(
		blobdb.KindColdEscrow, []byte(b.hotAddress),
	)
	if err != nil && !errors.Is(err, blobdb.ErrBlobNotFound) {
		log.Errorf("Unable to drop cold key escrow of %v: %v",
			b.hotAddress, err)
		return
	}
	b.escrowStored = false

	log.Debugf("Dropped cold key escrow of %v", b.hotAddress)
}

// uploadBinding signs the challenge with the cold key's first external key
// and uploads it with a fresh secret.
func (b *Binder) uploadBinding(ctx context.Context,
	nonce string) fn.Option[Event] {

	secret := make([]byte, secretLen)
	defer keychain.Zero(secret)
	if _, err := io.ReadFull(b.cfg.Rand, secret); err != nil {
		return emit(&LocalFailed{Err: err})
	}

	msg := ChallengeMessage(b.hotAddress, secret, nonce)
	defer keychain.Zero(msg)

	sig, err := b.cold.ring.SignMessageCompact(b.locator(0), msg)
	if err != nil {
		return emit(&LocalFailed{Err: err})
	}

	accepted, err := b.cfg.Service.UploadBinding(ctx, &UploadRequest{
		HotAddress: b.hotAddress,
		Signature:  zbase32.EncodeToString(sig),
		Secret:     secret,
	})
	switch {
	case err != nil:
		return emit(&ServiceFailed{Err: err})

	case !accepted:
		return emit(&BindingRejected{})
	}

	return emit(&BindingAccepted{})
}

// provisionAddresses builds one 2-of-3 address per server key from the hot
// and cold keys at the same index.
func (b *Binder) provisionAddresses(
	serverKeys []*btcec.PublicKey) ([]Address, error) {

	builder := input.TxScriptBuilder{}
	addrs := make([]Address, len(serverKeys))
	for i, serverKey := range serverKeys {
		loc := b.locator(uint32(i))

		hotDesc, err := b.hot.ring.DeriveKey(loc)
		if err != nil {
			return nil, err
		}
		coldDesc, err := b.cold.ring.DeriveKey(loc)
		if err != nil {
			return nil, err
		}

		keySet := multisig.KeySet{
			Threshold: MultisigThreshold,
			PubKeys: []*btcec.PublicKey{
				hotDesc.PubKey, coldDesc.PubKey, serverKey,
			},
		}
		redeemScript, err := keySet.RedeemScript(builder)
		if err != nil {
			return nil, fmt.Errorf("address %d: %w", i, err)
		}
		addr, err := btcutil.NewAddressScriptHash(
			redeemScript, b.cfg.Net.Params,
		)
		if err != nil {
			return nil, err
		}

		addrs[i] = Address{
			Index:        uint32(i),
			Address:      addr,
			RedeemScript: redeemScript,
		}

		log.TraceS(context.TODO(), "Provisioned address",
			slog.Int("index", i),
			slog.String("address", addr.EncodeAddress()),
			hdmutils.LogPubKey("server_key", serverKey))
	}

	return addrs, nil
}

// coldAccount returns the extended public key of the cold external branch.
func (b *Binder) coldAccount() (string, error) {
	loc := b.locator(0)
	path := hdkey.PathFromUint32(
		append(loc.AccountPath(), uint32(loc.Branch)),
	)

	tree := b.cold.ring.Tree()
	id, err := tree.DerivePublicPath(b.cold.ring.Root(), path)
	if err != nil {
		return "", err
	}
	key, err := tree.Key(id)
	if err != nil {
		return "", err
	}

	return key.Neuter().String(), nil
}

// recordBinding stores the cold key escrow, then stamps the binding and
// stores its record.
func (b *Binder) recordBinding(addrs []Address) error {
	account, err := b.coldAccount()
	if err != nil {
		return err
	}

	err = b.cfg.Store.PutBlob(
		blobdb.KindColdEscrow, []byte(b.hotAddress), []byte(b.escrow),
	)
	if err != nil {
		return err
	}
	b.escrowStored = true

	binding := &Binding{
		HotMnemonic:  slices.Clone(b.hot.words),
		ColdMnemonic: slices.Clone(b.cold.words),
		HotAddress:   b.hotAddress,
		ColdEscrow:   b.escrow,
		ColdAccount:  account,
		Addresses:    addrs,
		BoundAt:      b.cfg.Clock.Now(),
	}

	err = b.cfg.Store.PutBlob(
		blobdb.KindBinding, []byte(b.hotAddress), []byte(account),
	)
	if err != nil {
		return err
	}
	b.binding = fn.Some(binding)

	log.InfoS(context.TODO(), "Binding complete",
		slog.String("hot_address", b.hotAddress),
		slog.Int("addresses", len(addrs)),
		slog.Time("bound_at", binding.BoundAt))

	return nil
}
