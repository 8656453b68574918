package hdmcfg

import (
	"errors"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"slices"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/hdmwallet/hdmcore/build"
	"github.com/hdmwallet/hdmcore/chainreg"
	"github.com/hdmwallet/hdmcore/mnemonic"
	flags "github.com/jessevdk/go-flags"
)

const (
	// DefaultConfigFilename is the default configuration file name hdmctl
	// tries to load.
	DefaultConfigFilename = "hdmctl.conf"

	// DefaultLogFilename is the name of the log file within the log
	// directory.
	DefaultLogFilename = "hdmctl.log"

	// DefaultAddressBatch is the default number of addresses listed or
	// provisioned at once.
	DefaultAddressBatch = 20

	// MaxAddressBatch bounds the address batch size.
	MaxAddressBatch = 1000

	defaultDataDirname   = "data"
	defaultLogDirname    = "logs"
	defaultLogLevel      = "info"
	defaultNetwork       = "mainnet"
	defaultMetricsListen = "localhost:9112"
)

var (
	// DefaultHomeDir is the default directory for hdmctl data, logs and
	// configuration.
	DefaultHomeDir = btcutil.AppDataDir("hdmctl", false)

	// DefaultConfigFile is the default full path of the config file.
	DefaultConfigFile = filepath.Join(
		DefaultHomeDir, DefaultConfigFilename,
	)
)

// Prometheus configures the Prometheus exporter.
//
//nolint:lll
type Prometheus struct {
	Enable bool   `long:"enable" description:"Export wallet core metrics over HTTP."`
	Listen string `long:"listen" description:"The interface to serve the metrics endpoint on."`
}

// Config holds the configuration of hdmctl.
//
//nolint:lll
type Config struct {
	ShowVersion bool `short:"V" long:"version" description:"Display version information and exit"`

	HomeDir    string `long:"homedir" description:"The base directory that contains hdmctl's data, logs, configuration file, etc."`
	ConfigFile string `short:"C" long:"configfile" description:"Path to configuration file"`
	DataDir    string `short:"b" long:"datadir" description:"The directory to store the encrypted key database within"`
	LogDir     string `long:"logdir" description:"Directory to log output."`

	Network    string `long:"network" description:"The network keys are derived and encoded for (mainnet, testnet, regtest, simnet, signet, litecoin, litecoin-testnet4)"`
	DebugLevel string `short:"d" long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems"`

	Language     string `long:"language" description:"The word list new mnemonics are written in"`
	AddressBatch int    `long:"addressbatch" description:"The number of addresses to list or provision at once"`

	Prometheus *Prometheus `group:"prometheus" namespace:"prometheus"`

	LogConfig *build.LogConfig `group:"logging" namespace:"logging"`

	// NetParams is the resolved Network.
	NetParams *chainreg.NetParams `no-flag:"true"`
}

// DefaultConfig returns all default values for the Config struct.
func DefaultConfig() Config {
	return Config{
		HomeDir:      DefaultHomeDir,
		ConfigFile:   DefaultConfigFile,
		Network:      defaultNetwork,
		DebugLevel:   defaultLogLevel,
		Language:     mnemonic.English,
		AddressBatch: DefaultAddressBatch,
		Prometheus: &Prometheus{
			Listen: defaultMetricsListen,
		},
		LogConfig: build.DefaultLogConfig(),
	}
}

// LoadConfig initializes and parses the config using a config file and
// command line options.
//
// The configuration proceeds as follows:
//  1. Start with a default config with sane settings
//  2. Pre-parse the command line to check for an alternative config file
//  3. Load configuration file overwriting defaults with any specified options
//  4. Parse CLI options and overwrite/add any specified options
//
// A missing config file is not an error.
func LoadConfig(args []string) (*Config, error) {
	preCfg := DefaultConfig()
	if _, err := flags.ParseArgs(&preCfg, args); err != nil {
		return nil, err
	}

	// A changed home directory moves the default config file with it.
	configFileDir := CleanAndExpandPath(preCfg.HomeDir)
	configFilePath := CleanAndExpandPath(preCfg.ConfigFile)
	if configFileDir != DefaultHomeDir &&
		configFilePath == DefaultConfigFile {

		configFilePath = filepath.Join(
			configFileDir, DefaultConfigFilename,
		)
	}

	cfg := preCfg
	err := flags.IniParse(configFilePath, &cfg)
	if err != nil {
		var iniErr *flags.IniError
		if errors.As(err, &iniErr) || !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}

		log.Debugf("Config file %v not found, using defaults",
			configFilePath)
	}

	// Command line options take precedence over the file.
	if _, err := flags.ParseArgs(&cfg, args); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the config, expands its paths and resolves the network.
// The data and log directories are namespaced by network.
func (c *Config) Validate() error {
	var err error
	c.NetParams, err = chainreg.ByName(c.Network)
	if err != nil {
		return err
	}

	c.HomeDir = CleanAndExpandPath(c.HomeDir)
	if c.DataDir == "" {
		c.DataDir = filepath.Join(c.HomeDir, defaultDataDirname)
	}
	if c.LogDir == "" {
		c.LogDir = filepath.Join(c.HomeDir, defaultLogDirname)
	}
	c.DataDir = filepath.Join(CleanAndExpandPath(c.DataDir), c.Network)
	c.LogDir = filepath.Join(CleanAndExpandPath(c.LogDir), c.Network)

	if c.AddressBatch < 1 || c.AddressBatch > MaxAddressBatch {
		return fmt.Errorf("addressbatch must be between 1 and %d, "+
			"got %d", MaxAddressBatch, c.AddressBatch)
	}

	lists, err := mnemonic.BuiltinWordLists()
	if err != nil {
		return err
	}
	known := make([]string, len(lists))
	for i, list := range lists {
		known[i] = list.Language()
	}
	if !slices.Contains(known, c.Language) {
		return fmt.Errorf("unknown language %q (known: %v)",
			c.Language, known)
	}

	if c.Prometheus.Enable && c.Prometheus.Listen == "" {
		return errors.New("prometheus.listen must be set when " +
			"prometheus.enable is")
	}

	return c.LogConfig.Validate()
}

// LogFile returns the full path of the log file.
func (c *Config) LogFile() string {
	return filepath.Join(c.LogDir, DefaultLogFilename)
}

// CleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
func CleanAndExpandPath(path string) string {
	if path == "" {
		return ""
	}

	// Expand initial ~ to OS specific home directory.
	if strings.HasPrefix(path, "~") {
		var homeDir string
		u, err := user.Current()
		if err == nil {
			homeDir = u.HomeDir
		} else {
			homeDir = os.Getenv("HOME")
		}

		path = strings.Replace(path, "~", homeDir, 1)
	}

	// NOTE: The os.ExpandEnv doesn't work with Windows-style %VARIABLE%,
	// but the variables can still be expanded via POSIX-style $VARIABLE.
	return filepath.Clean(os.ExpandEnv(path))
}
