package hdm

import (
	"context"

	"github.com/btcsuite/btcd/btcec/v2"
)

// UploadRequest is the signed challenge sent to the server.
type UploadRequest struct {
	// HotAddress identifies the wallet.
	HotAddress string

	// Signature is the cold key's compact message signature over the
	// challenge, zbase32 encoded.
	Signature string

	// Secret is the random value only the server keeps.
	Secret []byte
}

// CosignerRequest asks the server for its keys of a batch of addresses.
type CosignerRequest struct {
	// HotAddress identifies the wallet.
	HotAddress string

	// Count is the number of receiving addresses, and so of keys.
	Count int
}

// Service is the remote cosigning server. Every call may fail and is never
// retried by the binder.
type Service interface {
	// GetChallenge returns a fresh nonce for the hot address.
	GetChallenge(ctx context.Context, hotAddress string) (string, error)

	// UploadBinding uploads a signed challenge and reports whether the
	// server accepted it.
	UploadBinding(ctx context.Context, req *UploadRequest) (bool, error)

	// FetchCosignerPubkeys returns the server's key for each of the
	// first req.Count receiving addresses.
	FetchCosignerPubkeys(ctx context.Context,
		req *CosignerRequest) ([]*btcec.PublicKey, error)
}
