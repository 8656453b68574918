package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"

	"github.com/hdmwallet/hdmcore/hdkey"
	"github.com/hdmwallet/hdmcore/keychain"
	"github.com/hdmwallet/hdmcore/mnemonic"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/urfave/cli"
)

// rootKeyFlags select the key a command starts from: a mnemonic given on
// the command line or stdin, or a serialized extended key.
var rootKeyFlags = []cli.Flag{
	cli.StringFlag{
		Name:  "xkey",
		Usage: "start from this extended key instead of a mnemonic",
	},
	cli.BoolFlag{
		Name:  "passphrase",
		Usage: "prompt for the BIP39 passphrase of the mnemonic",
	},
}

// rootKey returns the key selected by rootKeyFlags. The caller must zero it.
func rootKey(ctx *cli.Context) (*hdkey.ExtendedKey, error) {
	net := state.cfg.NetParams.Params

	if ctx.IsSet("xkey") {
		return hdkey.NewKeyFromString(ctx.String("xkey"), net)
	}

	words, err := readMnemonic(ctx)
	if err != nil {
		return nil, err
	}
	if err := state.codec.Check(words); err != nil {
		return nil, err
	}

	passphrase, err := readSeedPassphrase(ctx)
	if err != nil {
		return nil, err
	}
	defer keychain.Zero(passphrase)

	seed := mnemonic.ToSeed(words, passphrase)
	defer keychain.Zero(seed)

	return hdkey.NewMaster(seed, net)
}

func printTable(header table.Row, rows []table.Row) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(header)
	t.AppendRows(rows)
	t.Render()
}

var deriveKeyCommand = cli.Command{
	Name:      "derivekey",
	Category:  "Keys",
	Usage:     "Derive a key from a mnemonic or an extended key.",
	ArgsUsage: "[word...]",
	Description: `
	Derives the key at --path below the root key and prints its extended
	public key, public key and P2PKH address. The default path is the
	first receiving key of account 0 of the configured network.

	With --xkey the path is relative to the given key, and a public
	extended key can only derive non-hardened children.`,
	Flags: append([]cli.Flag{
		cli.StringFlag{
			Name:  "path",
			Usage: "the derivation path, e.g. m/44'/0'/0'/0/0",
		},
		cli.BoolFlag{
			Name:  "showprivate",
			Usage: "also print the extended private key and WIF",
		},
	}, rootKeyFlags...),
	Action: deriveKey,
}

func deriveKey(ctx *cli.Context) error {
	pathStr := ctx.String("path")
	if pathStr == "" {
		loc := keychain.KeyLocator{
			CoinType: state.cfg.NetParams.CoinType,
		}
		pathStr = loc.String()
	}
	path, err := hdkey.ParsePath(pathStr)
	if err != nil {
		return err
	}

	root, err := rootKey(ctx)
	if err != nil {
		return err
	}
	defer root.Zero()

	key, err := root.DerivePath(path)
	if err != nil {
		return err
	}
	defer key.Zero()

	addr, err := key.Address()
	if err != nil {
		return err
	}

	rows := []table.Row{
		{"path", path.String()},
		{"xpub", key.Neuter().String()},
		{"pubkey", hex.EncodeToString(
			key.PubKey().SerializeCompressed(),
		)},
		{"address", addr.EncodeAddress()},
	}

	if ctx.Bool("showprivate") {
		if !key.IsPrivate() {
			return errors.New("a public key has no private part " +
				"to show")
		}

		wif, err := key.KeyPair().WIF(key.Net())
		if err != nil {
			return err
		}
		rows = append(rows,
			table.Row{"xprv", key.String()},
			table.Row{"wif", wif.String()},
		)
	}

	printTable(table.Row{"field", "value"}, rows)

	return nil
}

var listAddressesCommand = cli.Command{
	Name:      "listaddresses",
	Category:  "Keys",
	Usage:     "List the P2PKH addresses of an account.",
	ArgsUsage: "[word...]",
	Description: `
	Lists --count addresses of one branch of a BIP44 account starting at
	--start. The count defaults to the configured address batch.

	An --xkey at depth 0 is treated as a master key. Any other extended
	key is taken to be the branch key itself, so an account's exported
	external or change xpub lists its addresses without the mnemonic.`,
	Flags: append([]cli.Flag{
		cli.UintFlag{
			Name:  "account",
			Usage: "the account number",
		},
		cli.BoolFlag{
			Name:  "change",
			Usage: "list the change branch instead of the external one",
		},
		cli.UintFlag{
			Name:  "start",
			Usage: "the first address index",
		},
		cli.IntFlag{
			Name:  "count",
			Usage: "the number of addresses to list",
		},
	}, rootKeyFlags...),
	Action: listAddresses,
}

func listAddresses(ctx *cli.Context) error {
	count := state.cfg.AddressBatch
	if ctx.IsSet("count") {
		count = ctx.Int("count")
	}
	if count < 1 {
		return fmt.Errorf("count must be positive, got %d", count)
	}

	loc := keychain.KeyLocator{
		CoinType: state.cfg.NetParams.CoinType,
		Account:  uint32(ctx.Uint("account")),
		Index:    uint32(ctx.Uint("start")),
	}
	if ctx.Bool("change") {
		loc.Branch = keychain.BranchInternal
	}
	if loc.Account >= keychain.HardenedKeyStart ||
		uint64(loc.Index)+uint64(count) > uint64(keychain.HardenedKeyStart) {

		return errors.New("account or address index out of range")
	}

	root, err := rootKey(ctx)
	if err != nil {
		return err
	}
	defer root.Zero()

	branch := root
	if root.Depth() == 0 {
		branchPath := hdkey.PathFromUint32(
			append(loc.AccountPath(), uint32(loc.Branch)),
		)
		branch, err = root.DerivePath(branchPath)
		if err != nil {
			return err
		}
		defer branch.Zero()
	}

	// Addresses are listed from the public branch key so that the
	// private scalars of the children are never computed.
	branch = branch.Neuter()
	basePath := branch.Path()

	rows := make([]table.Row, 0, count)
	for i := 0; i < count; i++ {
		index := hdkey.ChildIndex(loc.Index + uint32(i))
		child, err := branch.Derive(index)
		if errors.Is(err, hdkey.ErrInvalidChild) {
			log.Warnf("Skipping invalid child %v", index)
			continue
		}
		if err != nil {
			return err
		}

		addr, err := child.Address()
		if err != nil {
			return err
		}

		rows = append(rows, table.Row{
			basePath.Child(index).String(), addr.EncodeAddress(),
			hex.EncodeToString(child.PubKey().SerializeCompressed()),
		})
	}

	printTable(table.Row{"path", "address", "pubkey"}, rows)

	return nil
}
