package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"syscall"

	"github.com/hdmwallet/hdmcore/blobdb"
	"github.com/hdmwallet/hdmcore/build"
	"github.com/hdmwallet/hdmcore/hdmcfg"
	"github.com/hdmwallet/hdmcore/keychain"
	"github.com/hdmwallet/hdmcore/mnemonic"
	"github.com/hdmwallet/hdmcore/monitoring"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli"
	"golang.org/x/term"
)

// appState is what the global options resolve to. It is set up once in the
// app's Before hook.
type appState struct {
	cfg     *hdmcfg.Config
	codec   *mnemonic.Codec
	metrics *monitoring.Metrics
	rotator *build.RotatingLogWriter
	db      *blobdb.DB
}

var state *appState

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "[hdmctl] %v\n", err)
	os.Exit(1)
}

// configArgs turns the global options that were set explicitly into the
// argument list hdmcfg parses, so that the config file and the command line
// layer the same way for every front-end.
func configArgs(ctx *cli.Context) []string {
	var args []string
	for _, name := range []string{
		"configfile", "homedir", "datadir", "logdir", "network",
		"debuglevel", "language", "addressbatch",
		"prometheus.listen",
	} {
		if ctx.GlobalIsSet(name) {
			args = append(args, fmt.Sprintf("--%s=%s", name,
				ctx.GlobalString(name)))
		}
	}
	if ctx.GlobalBool("prometheus.enable") {
		args = append(args, "--prometheus.enable")
	}

	return args
}

func setup(ctx *cli.Context) error {
	cfg, err := hdmcfg.LoadConfig(configArgs(ctx))
	if err != nil {
		return err
	}

	rotator, err := setupLoggers(cfg)
	if err != nil {
		return err
	}

	codec, err := mnemonic.NewCodec()
	if err != nil {
		return err
	}
	if err := codec.SetLanguage(cfg.Language); err != nil {
		return err
	}

	state = &appState{
		cfg:     cfg,
		codec:   codec,
		rotator: rotator,
	}

	if cfg.Prometheus.Enable {
		reg := prometheus.NewRegistry()
		state.metrics, err = monitoring.NewMetrics(reg)
		if err != nil {
			return err
		}

		err = monitoring.ExportPrometheusMetrics(
			cfg.Prometheus.Listen, reg,
		)
		if err != nil {
			return err
		}
	}

	log.Debugf("hdmctl version %v (%v build) on %v", build.Version(),
		build.Deployment, cfg.NetParams.Name)

	return nil
}

func teardown(_ *cli.Context) error {
	if state == nil {
		return nil
	}

	var errs []error
	if state.db != nil {
		errs = append(errs, state.db.Close())
	}
	if state.rotator != nil {
		errs = append(errs, state.rotator.Close())
	}

	return errors.Join(errs...)
}

// openDB opens the blob database of the configured network on first use.
func openDB() (*blobdb.DB, error) {
	if state.db != nil {
		return state.db, nil
	}

	db, err := blobdb.Open(state.cfg.DataDir, clock.NewDefaultClock())
	if err != nil {
		return nil, err
	}
	state.db = db

	return db, nil
}

func main() {
	app := cli.NewApp()
	app.Name = "hdmctl"
	app.Version = build.Version() + " commit=" + build.Commit
	app.Usage = "HD wallet key, mnemonic and BIP38 toolbox"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "configfile, C",
			Value: hdmcfg.DefaultConfigFile,
			Usage: "path to the config file",
		},
		cli.StringFlag{
			Name:  "homedir",
			Value: hdmcfg.DefaultHomeDir,
			Usage: "the base directory of hdmctl's data, logs " +
				"and config",
		},
		cli.StringFlag{
			Name:  "datadir",
			Usage: "the directory of the encrypted key database",
		},
		cli.StringFlag{
			Name:  "logdir",
			Usage: "the directory to log to",
		},
		cli.StringFlag{
			Name:  "network, n",
			Value: "mainnet",
			Usage: "the network keys and addresses are encoded " +
				"for (mainnet, testnet, regtest, simnet, " +
				"signet, litecoin, litecoin-testnet4)",
		},
		cli.StringFlag{
			Name:  "debuglevel, d",
			Value: "info",
			Usage: "logging level for all subsystems, or " +
				"<subsystem>=<level>,... for individual ones",
		},
		cli.StringFlag{
			Name:  "language",
			Value: mnemonic.English,
			Usage: "the word list new mnemonics are written in",
		},
		cli.StringFlag{
			Name:  "addressbatch",
			Value: fmt.Sprint(hdmcfg.DefaultAddressBatch),
			Usage: "the number of addresses to list at once",
		},
		cli.BoolFlag{
			Name:  "prometheus.enable",
			Usage: "export metrics over HTTP while running",
		},
		cli.StringFlag{
			Name:  "prometheus.listen",
			Usage: "the interface to serve metrics on",
		},
	}
	app.Before = setup
	app.After = teardown
	app.Commands = []cli.Command{
		newMnemonicCommand,
		mnemonicToSeedCommand,
		deriveKeyCommand,
		encryptKeyCommand,
		decryptKeyCommand,
		listAddressesCommand,
	}

	if err := app.Run(os.Args); err != nil {
		fatal(err)
	}
}

// readPassword reads a password from the terminal. This requires there to be an
// actual TTY so passing in a password from stdin won't work.
func readPassword(text string) ([]byte, error) {
	fmt.Print(text)

	// The variable syscall.Stdin is of a different type in the Windows API
	// that's why we need the explicit cast. And of course the linter
	// doesn't like it either.
	pw, err := term.ReadPassword(int(syscall.Stdin)) // nolint:unconvert
	fmt.Println()
	return pw, err
}

// readNewPassword prompts for a passphrase twice and returns it once both
// entries match.
func readNewPassword(text string) ([]byte, error) {
	pw, err := readPassword(text)
	if err != nil {
		return nil, err
	}

	confirm, err := readPassword("Confirm passphrase: ")
	if err != nil {
		return nil, err
	}
	defer keychain.Zero(confirm)

	if !bytes.Equal(pw, confirm) {
		keychain.Zero(pw)
		return nil, errors.New("passphrases don't match")
	}

	return pw, nil
}
