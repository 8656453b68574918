package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/hdmwallet/hdmcore/bip38"
	"github.com/hdmwallet/hdmcore/blobdb"
	"github.com/hdmwallet/hdmcore/keychain"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/lightningnetwork/lnd/ticker"
	"github.com/urfave/cli"
)

// progressInterval is how often a running stretch reports its progress.
const progressInterval = 250 * time.Millisecond

// errWrongPassphrase is returned when a key does not decrypt under the given
// passphrase.
var errWrongPassphrase = errors.New("wrong passphrase")

// stretch runs f, a passphrase stretching operation, reporting its progress
// on stderr until it returns. An interrupt cancels it.
func stretch(f func(context.Context, *bip38.Progress) error) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	progress := bip38.NewProgress()
	done := make(chan struct{})
	go func() {
		progressTicker := ticker.New(progressInterval)
		progressTicker.Resume()
		defer progressTicker.Stop()

		for {
			select {
			case <-progressTicker.Ticks():
				fmt.Fprintf(os.Stderr, "\rStretching passphrase: "+
					"%3.0f%%", progress.Fraction()*100)

			case <-done:
				fmt.Fprintln(os.Stderr)
				return
			}
		}
	}()

	start := time.Now()
	err := f(ctx, progress)
	close(done)

	state.metrics.ObserveStretch(start, err, bip38.ErrCancelled)

	return err
}

var encryptKeyCommand = cli.Command{
	Name:      "encryptkey",
	Category:  "BIP38",
	Usage:     "Encrypt a private key with a passphrase.",
	ArgsUsage: "[wif]",
	Description: `
	Encrypts a WIF private key into a BIP38 "6P" string. The key is
	prompted for when not given as an argument. With --label the
	encrypted key is also stored in the key database under that label.`,
	Flags: []cli.Flag{
		cli.StringFlag{
			Name:  "label",
			Usage: "store the encrypted key under this label",
		},
	},
	Action: encryptKey,
}

func encryptKey(ctx *cli.Context) error {
	var (
		wif []byte
		err error
	)
	switch {
	case ctx.NArg() == 1:
		wif = []byte(ctx.Args().First())

	case ctx.NArg() > 1:
		return cli.ShowCommandHelp(ctx, "encryptkey")

	default:
		wif, err = readPassword("Input WIF private key: ")
		if err != nil {
			return err
		}
	}
	defer keychain.Zero(wif)

	key, err := keychain.KeyPairFromWIF(strings.TrimSpace(string(wif)))
	if err != nil {
		return err
	}
	defer key.Zero()

	passphrase, err := readNewPassword("Input passphrase: ")
	if err != nil {
		return err
	}
	defer keychain.Zero(passphrase)

	net := state.cfg.NetParams.Params

	var encrypted string
	err = stretch(func(c context.Context, p *bip38.Progress) error {
		var err error
		encrypted, err = bip38.Encrypt(c, key, passphrase, net, p)
		return err
	})
	if err != nil {
		return err
	}

	addr, err := key.Address(net)
	if err != nil {
		return err
	}

	if label := ctx.String("label"); label != "" {
		db, err := openDB()
		if err != nil {
			return err
		}

		err = db.PutBlob(
			blobdb.KindEncryptedKey, []byte(label), []byte(encrypted),
		)
		if err != nil {
			return err
		}

		log.Infof("Stored encrypted key for %v as %q",
			addr.EncodeAddress(), label)
	}

	printTable(table.Row{"field", "value"}, []table.Row{
		{"address", addr.EncodeAddress()},
		{"encrypted", encrypted},
	})

	return nil
}

var decryptKeyCommand = cli.Command{
	Name:      "decryptkey",
	Category:  "BIP38",
	Usage:     "Decrypt a BIP38 encrypted private key.",
	ArgsUsage: "[encrypted]",
	Description: `
	Decrypts a BIP38 "6P" string, given as an argument or stored in the
	key database with --label, and prints the WIF private key and its
	address. Keys made through EC multiplication are supported.

	With --list the labels in the key database are listed instead.`,
	Flags: []cli.Flag{
		cli.StringFlag{
			Name:  "label",
			Usage: "decrypt the key stored under this label",
		},
		cli.BoolFlag{
			Name:  "list",
			Usage: "list the stored keys",
		},
	},
	Action: decryptKey,
}

func decryptKey(ctx *cli.Context) error {
	if ctx.Bool("list") {
		return listStoredKeys()
	}

	var encrypted string
	switch {
	case ctx.IsSet("label"):
		db, err := openDB()
		if err != nil {
			return err
		}

		blob, err := db.FetchBlob(
			blobdb.KindEncryptedKey, []byte(ctx.String("label")),
		)
		if err != nil {
			return err
		}
		encrypted = string(blob.Data)

	case ctx.NArg() == 1:
		encrypted = ctx.Args().First()

	default:
		return cli.ShowCommandHelp(ctx, "decryptkey")
	}

	// Reject malformed input before asking for the passphrase.
	parsed, err := bip38.ParseEncryptedKey(encrypted)
	if err != nil {
		return err
	}

	passphrase, err := readPassword("Input passphrase: ")
	if err != nil {
		return err
	}
	defer keychain.Zero(passphrase)

	net := state.cfg.NetParams.Params

	var key *keychain.KeyPair
	err = stretch(func(c context.Context, p *bip38.Progress) error {
		res, err := bip38.Decrypt(c, encrypted, passphrase, net, p)
		if err != nil {
			return err
		}

		key, err = res.UnwrapOrErr(errWrongPassphrase)
		return err
	})
	if err != nil {
		return err
	}
	defer key.Zero()

	wif, err := key.WIF(net)
	if err != nil {
		return err
	}
	addr, err := key.Address(net)
	if err != nil {
		return err
	}

	rows := []table.Row{
		{"address", addr.EncodeAddress()},
		{"wif", wif.String()},
		{"ec multiplied", parsed.ECMultiplied()},
	}
	parsed.LotSequence().WhenSome(func(ls bip38.LotSequence) {
		rows = append(rows,
			table.Row{"lot", ls.Lot},
			table.Row{"sequence", ls.Sequence},
		)
	})
	printTable(table.Row{"field", "value"}, rows)

	return nil
}

func listStoredKeys() error {
	db, err := openDB()
	if err != nil {
		return err
	}

	var rows []table.Row
	err = db.ForEachBlob(blobdb.KindEncryptedKey,
		func(key []byte, blob *blobdb.Blob) error {
			rows = append(rows, table.Row{
				string(key), string(blob.Data),
				blob.Created.Format(time.RFC3339),
			})

			return nil
		},
	)
	if err != nil {
		return err
	}

	printTable(table.Row{"label", "encrypted", "created"}, rows)

	return nil
}
