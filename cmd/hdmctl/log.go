package main

import (
	"github.com/btcsuite/btclog/v2"
	"github.com/hdmwallet/hdmcore/bip38"
	"github.com/hdmwallet/hdmcore/blobdb"
	"github.com/hdmwallet/hdmcore/build"
	"github.com/hdmwallet/hdmcore/chainreg"
	"github.com/hdmwallet/hdmcore/hdkey"
	"github.com/hdmwallet/hdmcore/hdm"
	"github.com/hdmwallet/hdmcore/hdmcfg"
	"github.com/hdmwallet/hdmcore/keychain"
	"github.com/hdmwallet/hdmcore/mnemonic"
	"github.com/hdmwallet/hdmcore/monitoring"
	"github.com/hdmwallet/hdmcore/multisig"
)

// Subsystem is the logging code of the command line tool itself.
const Subsystem = "HCTL"

// log is the command's own logger. It stays disabled until setupLoggers
// runs.
var log btclog.Logger = btclog.Disabled

// setupLoggers wires every package logger to the console and the rotating
// log file of cfg and applies the configured debug levels.
func setupLoggers(cfg *hdmcfg.Config) (*build.RotatingLogWriter, error) {
	var rotator *build.RotatingLogWriter
	if !cfg.LogConfig.File.Disable {
		rotator = build.NewRotatingLogWriter()
		err := rotator.InitLogRotator(cfg.LogConfig.File, cfg.LogFile())
		if err != nil {
			return nil, err
		}
	}

	handlers := build.NewDefaultLogHandlers(cfg.LogConfig, rotator)
	root := build.NewSubLoggerManager(handlers...)

	addSubLogger(root, Subsystem, func(l btclog.Logger) { log = l })
	addSubLogger(root, keychain.Subsystem, keychain.UseLogger)
	addSubLogger(root, hdkey.Subsystem, hdkey.UseLogger)
	addSubLogger(root, mnemonic.Subsystem, mnemonic.UseLogger)
	addSubLogger(root, bip38.Subsystem, bip38.UseLogger)
	addSubLogger(root, chainreg.Subsystem, chainreg.UseLogger)
	addSubLogger(root, multisig.Subsystem, multisig.UseLogger)
	addSubLogger(root, hdm.Subsystem, hdm.UseLogger)
	addSubLogger(root, blobdb.Subsystem, blobdb.UseLogger)
	addSubLogger(root, monitoring.Subsystem, monitoring.UseLogger)
	addSubLogger(root, hdmcfg.Subsystem, hdmcfg.UseLogger)

	err := build.ParseAndSetDebugLevels(cfg.DebugLevel, root)
	if err != nil {
		if rotator != nil {
			_ = rotator.Close()
		}

		return nil, err
	}

	return rotator, nil
}

// addSubLogger creates a logger for subsystem, registers it with root and
// hands it to every useLogger.
func addSubLogger(root *build.SubLoggerManager, subsystem string,
	useLoggers ...func(btclog.Logger)) {

	logger := root.GenSubLogger(subsystem, func() {})
	root.RegisterSubLogger(subsystem, logger)

	for _, useLogger := range useLoggers {
		useLogger(logger)
	}
}
