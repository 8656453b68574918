package blobdb

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/kvdb"
)

const (
	// DBFilename is the file name of the blob database within its
	// directory.
	DBFilename = "blobs.db"

	// maxKeyLen bounds the length of a blob key.
	maxKeyLen = 255
)

var (
	// blobBucket is the single top-level bucket. Keys are the kind byte
	// followed by the caller's key.
	blobBucket = []byte("hdm-blobs")

	// ErrBlobNotFound is returned when no blob is stored under a key.
	ErrBlobNotFound = errors.New("blob not found")

	// ErrInvalidKey is returned for empty or overlong keys.
	ErrInvalidKey = errors.New("invalid blob key")

	// ErrCorruptBlob is returned when a stored record does not decode or
	// does not match the kind it is stored under.
	ErrCorruptBlob = errors.New("corrupt blob record")
)

// Store persists opaque blobs, such as encrypted keys, by kind and key.
type Store interface {
	// PutBlob stores blob under kind and key, replacing any earlier
	// value.
	PutBlob(kind Kind, key, blob []byte) error

	// FetchBlob returns the blob stored under kind and key, or
	// ErrBlobNotFound.
	FetchBlob(kind Kind, key []byte) (*Blob, error)

	// DeleteBlob removes the blob stored under kind and key, or returns
	// ErrBlobNotFound.
	DeleteBlob(kind Kind, key []byte) error

	// ForEachBlob calls cb with every blob of the given kind in key order.
	ForEachBlob(kind Kind, cb func(key []byte, blob *Blob) error) error
}

// DB is a Store backed by a kvdb database.
type DB struct {
	backend kvdb.Backend
	clock   clock.Clock
}

// A compile time check to ensure DB implements Store.
var _ Store = (*DB)(nil)

// Open opens, or creates, the bbolt blob database within dir.
func Open(dir string, clk clock.Clock) (*DB, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}

	backend, err := kvdb.Create(
		kvdb.BoltBackendName, filepath.Join(dir, DBFilename), true,
		kvdb.DefaultDBTimeout, false,
	)
	if err != nil {
		return nil, fmt.Errorf("unable to open blob db: %w", err)
	}

	db, err := New(backend, clk)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}

	return db, nil
}

// New creates a DB over an open backend.
func New(backend kvdb.Backend, clk clock.Clock) (*DB, error) {
	err := kvdb.Update(backend, func(tx kvdb.RwTx) error {
		_, err := tx.CreateTopLevelBucket(blobBucket)
		return err
	}, func() {})
	if err != nil {
		return nil, err
	}

	return &DB{backend: backend, clock: clk}, nil
}

// Close closes the underlying backend.
func (d *DB) Close() error {
	return d.backend.Close()
}

// dbKey prefixes key with its kind.
func dbKey(kind Kind, key []byte) ([]byte, error) {
	if len(key) == 0 || len(key) > maxKeyLen {
		return nil, fmt.Errorf("%w: length %d", ErrInvalidKey, len(key))
	}

	return append([]byte{byte(kind)}, key...), nil
}

// PutBlob implements Store.
func (d *DB) PutBlob(kind Kind, key, blob []byte) error {
	k, err := dbKey(kind, key)
	if err != nil {
		return err
	}

	rec := newBlobRecord(&Blob{
		Kind:    kind,
		Created: d.clock.Now(),
		Data:    blob,
	})

	var b bytes.Buffer
	if err := rec.Encode(&b); err != nil {
		return err
	}

	err = kvdb.Update(d.backend, func(tx kvdb.RwTx) error {
		return tx.ReadWriteBucket(blobBucket).Put(k, b.Bytes())
	}, func() {})
	if err != nil {
		return err
	}

	log.DebugS(context.TODO(), "Stored blob",
		slog.String("kind", kind.String()),
		slog.Int("size", len(blob)))

	return nil
}

// decodeBlob decodes the record stored under kind.
func decodeBlob(kind Kind, v []byte) (*Blob, error) {
	var rec blobRecord
	if err := rec.Decode(bytes.NewReader(v)); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptBlob, err)
	}

	blob := rec.blob()
	if blob.Kind != kind {
		return nil, fmt.Errorf("%w: kind %v stored as %v",
			ErrCorruptBlob, blob.Kind, kind)
	}

	return blob, nil
}

// FetchBlob implements Store.
func (d *DB) FetchBlob(kind Kind, key []byte) (*Blob, error) {
	k, err := dbKey(kind, key)
	if err != nil {
		return nil, err
	}

	var blob *Blob
	err = kvdb.View(d.backend, func(tx kvdb.RTx) error {
		v := tx.ReadBucket(blobBucket).Get(k)
		if v == nil {
			return ErrBlobNotFound
		}

		blob, err = decodeBlob(kind, v)

		return err
	}, func() {
		blob = nil
	})
	if err != nil {
		return nil, err
	}

	return blob, nil
}

// DeleteBlob implements Store.
func (d *DB) DeleteBlob(kind Kind, key []byte) error {
	k, err := dbKey(kind, key)
	if err != nil {
		return err
	}

	return kvdb.Update(d.backend, func(tx kvdb.RwTx) error {
		bucket := tx.ReadWriteBucket(blobBucket)
		if bucket.Get(k) == nil {
			return ErrBlobNotFound
		}

		return bucket.Delete(k)
	}, func() {})
}

// ForEachBlob implements Store.
func (d *DB) ForEachBlob(kind Kind,
	cb func(key []byte, blob *Blob) error) error {

	return kvdb.View(d.backend, func(tx kvdb.RTx) error {
		return tx.ReadBucket(blobBucket).ForEach(func(k, v []byte) error {
			if len(k) == 0 || Kind(k[0]) != kind {
				return nil
			}

			blob, err := decodeBlob(kind, v)
			if err != nil {
				return err
			}

			return cb(bytes.Clone(k[1:]), blob)
		})
	}, func() {})
}
