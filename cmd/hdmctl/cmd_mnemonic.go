package main

import (
	"bufio"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/hdmwallet/hdmcore/keychain"
	"github.com/hdmwallet/hdmcore/mnemonic"
	"github.com/urfave/cli"
)

var newMnemonicCommand = cli.Command{
	Name:     "newmnemonic",
	Category: "Mnemonics",
	Usage:    "Generate a new BIP39 mnemonic.",
	Description: `
	Draws fresh entropy and writes it out as a mnemonic in the configured
	language. The entropy size must be a multiple of 32 bits between 128
	and 256.`,
	Flags: []cli.Flag{
		cli.IntFlag{
			Name:  "bits",
			Value: 128,
			Usage: "the entropy size in bits",
		},
		cli.StringFlag{
			Name: "language",
			Usage: "the word list to use instead of the " +
				"configured one",
		},
	},
	Action: newMnemonic,
}

func newMnemonic(ctx *cli.Context) error {
	codec := state.codec
	if ctx.IsSet("language") {
		if err := codec.SetLanguage(ctx.String("language")); err != nil {
			return err
		}
	}

	words, err := codec.NewMnemonic(ctx.Int("bits"))
	if err != nil {
		return err
	}

	fmt.Println(strings.Join(words, " "))

	return nil
}

var mnemonicToSeedCommand = cli.Command{
	Name:      "mnemonictoseed",
	Category:  "Mnemonics",
	Usage:     "Turn a BIP39 mnemonic into its 64 byte seed.",
	ArgsUsage: "[word...]",
	Description: `
	Checks the mnemonic against the known word lists and prints the hex
	encoded seed. The words are read from stdin when none are given on
	the command line. With --passphrase the optional BIP39 passphrase is
	prompted for.`,
	Flags: []cli.Flag{
		cli.BoolFlag{
			Name:  "passphrase",
			Usage: "prompt for a BIP39 passphrase",
		},
		cli.BoolFlag{
			Name:  "nocheck",
			Usage: "skip the checksum check of the words",
		},
	},
	Action: mnemonicToSeed,
}

func mnemonicToSeed(ctx *cli.Context) error {
	words, err := readMnemonic(ctx)
	if err != nil {
		return err
	}

	if !ctx.Bool("nocheck") {
		if err := state.codec.Check(words); err != nil {
			return err
		}
	}

	passphrase, err := readSeedPassphrase(ctx)
	if err != nil {
		return err
	}
	defer keychain.Zero(passphrase)

	seed := mnemonic.ToSeed(words, passphrase)
	defer keychain.Zero(seed)

	fmt.Println(hex.EncodeToString(seed))

	return nil
}

// readMnemonic returns the words given as arguments or, lacking those, the
// first line of stdin.
func readMnemonic(ctx *cli.Context) ([]string, error) {
	if ctx.NArg() > 0 {
		return splitWords(strings.Join(ctx.Args(), " ")), nil
	}

	fmt.Fprint(os.Stderr, "Input your mnemonic: ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return nil, fmt.Errorf("unable to read mnemonic: %w", err)
	}

	words := splitWords(line)
	if len(words) == 0 {
		return nil, errors.New("no mnemonic given")
	}

	return words, nil
}

// splitWords splits on any unicode whitespace, which covers the ideographic
// space Japanese mnemonics are written with.
func splitWords(s string) []string {
	return strings.Fields(s)
}

// readSeedPassphrase prompts for the BIP39 passphrase when asked to and
// returns an empty one otherwise.
func readSeedPassphrase(ctx *cli.Context) ([]byte, error) {
	if !ctx.Bool("passphrase") {
		return nil, nil
	}

	return readPassword("Input BIP39 passphrase: ")
}
