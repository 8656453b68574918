package blobdb

import (
	"io"
	"time"

	"github.com/lightningnetwork/lnd/tlv"
)

// Kind tags what a stored blob holds.
type Kind uint8

const (
	// KindEncryptedKey is a password encrypted private key in its text
	// form.
	KindEncryptedKey Kind = 1

	// KindColdEscrow is the password encrypted cold root key escrowed by
	// the binding protocol.
	KindColdEscrow Kind = 2

	// KindBinding is a completed binding record.
	KindBinding Kind = 3
)

// String returns a human readable name for the kind.
func (k Kind) String() string {
	switch k {
	case KindEncryptedKey:
		return "encrypted-key"
	case KindColdEscrow:
		return "cold-escrow"
	case KindBinding:
		return "binding"
	default:
		return "unknown"
	}
}

// Blob is a stored value together with its metadata.
type Blob struct {
	// Kind is the kind the blob was stored under.
	Kind Kind

	// Created is when the blob was last written.
	Created time.Time

	// Data is the stored value.
	Data []byte
}

// blobRecord is the tlv stream a Blob is stored as.
type blobRecord struct {
	Kind    tlv.RecordT[tlv.TlvType0, uint8]
	Created tlv.RecordT[tlv.TlvType1, uint64]
	Data    tlv.RecordT[tlv.TlvType2, tlv.Blob]
}

func newBlobRecord(b *Blob) *blobRecord {
	return &blobRecord{
		Kind: tlv.NewPrimitiveRecord[tlv.TlvType0](uint8(b.Kind)),
		Created: tlv.NewPrimitiveRecord[tlv.TlvType1](
			uint64(b.Created.Unix()),
		),
		Data: tlv.NewPrimitiveRecord[tlv.TlvType2](tlv.Blob(b.Data)),
	}
}

func (r *blobRecord) records() []tlv.Record {
	return []tlv.Record{
		r.Kind.Record(),
		r.Created.Record(),
		r.Data.Record(),
	}
}

// Encode writes the record as a tlv stream.
func (r *blobRecord) Encode(w io.Writer) error {
	stream, err := tlv.NewStream(r.records()...)
	if err != nil {
		return err
	}

	return stream.Encode(w)
}

// Decode reads the record from a tlv stream.
func (r *blobRecord) Decode(rd io.Reader) error {
	stream, err := tlv.NewStream(r.records()...)
	if err != nil {
		return err
	}

	return stream.Decode(rd)
}

// blob converts the record back.
func (r *blobRecord) blob() *Blob {
	return &Blob{
		Kind:    Kind(r.Kind.Val),
		Created: time.Unix(int64(r.Created.Val), 0),
		Data:    r.Data.Val,
	}
}
