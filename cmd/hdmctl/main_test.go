package main

import (
	"flag"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/urfave/cli"
)

func getFlagSet(flags []cli.Flag) *flag.FlagSet {
	set := flag.NewFlagSet("hdmctl", flag.ContinueOnError)

	for _, f := range flags {
		f.Apply(set)
	}
	return set
}

// TestConfigArgs checks that only explicitly set global options are passed
// on to the config parser.
func TestConfigArgs(t *testing.T) {
	app := cli.NewApp()
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "network, n", Value: "mainnet"},
		cli.StringFlag{Name: "debuglevel, d", Value: "info"},
		cli.StringFlag{Name: "addressbatch", Value: "20"},
		cli.BoolFlag{Name: "prometheus.enable"},
	}

	set := getFlagSet(app.Flags)
	ctx := cli.NewContext(app, set, nil)
	require.Empty(t, configArgs(ctx))

	require.NoError(t, set.Parse([]string{
		"--network=testnet", "--addressbatch", "5",
		"--prometheus.enable",
	}))
	ctx = cli.NewContext(app, set, nil)
	require.Equal(t, []string{
		"--network=testnet", "--addressbatch=5", "--prometheus.enable",
	}, configArgs(ctx))
}

// TestSplitWords checks ascii and ideographic word separators.
func TestSplitWords(t *testing.T) {
	t.Parallel()

	require.Equal(
		t, []string{"abandon", "ability"},
		splitWords("  abandon\tability \n"),
	)
	require.Equal(
		t, []string{"あいこくしん", "あいさつ"},
		splitWords("あいこくしん　あいさつ"),
	)
	require.Empty(t, splitWords(" \n"))
}
