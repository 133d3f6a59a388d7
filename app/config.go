// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

// Package app holds the application-level configuration and logging setup
// shared by the flint executables.
package app

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"flintwallet.org/flint/core"
	"flintwallet.org/flint/credstore"
	"flintwallet.org/flint/wallet"
	"flintwallet.org/flint/walletrpc"
	"github.com/jessevdk/go-flags"
)

const (
	defaultDaemonHost = "127.0.0.1"
	defaultDaemonPort = "9737"
	defaultLogLevel   = "debug"
	configFilename    = "flint.conf"
)

var (
	defaultApplicationDirectory = appDataDir("flint")
	defaultConfigPath           = filepath.Join(defaultApplicationDirectory, configFilename)
)

// DaemonConfig encapsulates the settings for the wallet daemon connection.
type DaemonConfig struct {
	DaemonHost string `long:"daemonhost" description:"Wallet daemon websocket address"`
	DaemonCert string `long:"daemoncert" description:"Wallet daemon TLS certificate file location"`
}

// Daemon creates a walletrpc client configuration.
func (cfg *DaemonConfig) Daemon(log wallet.Logger) *walletrpc.Config {
	return &walletrpc.Config{
		Host:    cfg.DaemonHost,
		RPCCert: cfg.DaemonCert,
		Logger:  log,
	}
}

// CoreConfig encapsulates the settings specific to core.Core.
type CoreConfig struct {
	DBPath          string        `long:"db" description:"Database filepath. Database will be created if it does not exist."`
	BalanceInterval time.Duration `long:"balanceinterval" description:"Period of the balance refresh loop."`
	HistoryInterval time.Duration `long:"historyinterval" description:"Period of the payment history refresh loop."`
	MinPaymentSat   uint64        `long:"minpayment" description:"Smallest allowed payment, in satoshi."`
	MaxPaymentSat   uint64        `long:"maxpayment" description:"Largest allowed payment, in satoshi."`
	CacheTTL        time.Duration `long:"cachettl" description:"Validity window of the transient credential cache."`
}

// Balance creates a balance manager configuration.
func (cfg *CoreConfig) Balance() *core.BalanceConfig {
	return &core.BalanceConfig{
		Interval:      cfg.BalanceInterval,
		MinPaymentSat: cfg.MinPaymentSat,
		MaxPaymentSat: cfg.MaxPaymentSat,
	}
}

// Store creates a credential store configuration. The Authenticator is left
// for the caller, since it is platform UI territory.
func (cfg *CoreConfig) Store(log wallet.Logger) *credstore.Config {
	return &credstore.Config{
		Path:     cfg.DBPath,
		CacheTTL: cfg.CacheTTL,
		Logger:   log,
	}
}

// LogConfig encapsulates the logging-related settings.
type LogConfig struct {
	LogPath    string `long:"logpath" description:"A file to save app logs"`
	DebugLevel string `long:"log" description:"Logging level {trace, debug, info, warn, error, critical}"`
	LocalLogs  bool   `long:"loglocal" description:"Use local time zone time stamps in log entries."`
}

// Config is the common application configuration definition.
type Config struct {
	CoreConfig
	DaemonConfig
	LogConfig
	// AppData and ConfigPath should be parsed from the command-line, as it
	// makes no sense to set these in the config file itself.
	AppData    string `long:"appdata" description:"Path to application directory."`
	ConfigPath string `long:"config" description:"Path to an INI configuration file."`
	Testnet    bool   `long:"testnet" description:"use testnet"`
	ShowVer    bool   `short:"V" long:"version" description:"Display version information and exit"`
}

// DefaultConfig is the Config before file and CLI parsing.
var DefaultConfig = Config{
	AppData:    defaultApplicationDirectory,
	ConfigPath: defaultConfigPath,
	LogConfig:  LogConfig{DebugLevel: defaultLogLevel},
}

// ParseCLIConfig parses the command-line arguments into the provided struct
// with go-flags tags. If the --help flag has been passed, the struct is
// described back to the terminal and the program exits using os.Exit.
func ParseCLIConfig(cfg any) error {
	preParser := flags.NewParser(cfg, flags.HelpFlag|flags.PassDoubleDash)
	_, flagerr := preParser.Parse()

	if flagerr != nil {
		e, ok := flagerr.(*flags.Error)
		if !ok || e.Type != flags.ErrHelp {
			preParser.WriteHelp(os.Stderr)
		}
		if ok && e.Type == flags.ErrHelp {
			preParser.WriteHelp(os.Stdout)
			os.Exit(0)
		}
		return flagerr
	}
	return nil
}

// ResolveCLIConfigPaths resolves the app data directory path and the
// configuration file path from the CLI config, (presumably parsed with
// ParseCLIConfig).
func ResolveCLIConfigPaths(cfg *Config) (appData, configPath string) {
	// If the app directory has been changed, replace shortcut chars such
	// as "~" with the full path.
	if cfg.AppData != defaultApplicationDirectory {
		cfg.AppData = cleanAndExpandPath(cfg.AppData)
		// If the app directory has been changed, but the config file path
		// hasn't, reform the config file path with the new directory.
		if cfg.ConfigPath == defaultConfigPath {
			cfg.ConfigPath = filepath.Join(cfg.AppData, configFilename)
		}
	}
	cfg.ConfigPath = cleanAndExpandPath(cfg.ConfigPath)
	return cfg.AppData, cfg.ConfigPath
}

// ParseFileConfig parses the INI file into the provided struct with go-flags
// tags. The CLI args are then parsed, and take precedence over the file
// values.
func ParseFileConfig(path string, cfg any) error {
	parser := flags.NewParser(cfg, flags.Default)
	err := flags.NewIniParser(parser).ParseFile(path)
	if err != nil {
		if _, ok := err.(*os.PathError); !ok {
			fmt.Fprintln(os.Stderr, err)
			parser.WriteHelp(os.Stderr)
			return err
		}
		// Missing file is not an error.
	}

	// Parse command line options again to ensure they take precedence.
	_, err = parser.Parse()
	if err != nil {
		if e, ok := err.(*flags.Error); !ok || e.Type != flags.ErrHelp {
			parser.WriteHelp(os.Stderr)
		}
		return err
	}
	return nil
}

// ResolveConfig sets derivative fields of the Config struct using the
// specified app data directory (presumably returned from
// ResolveCLIConfigPaths). Some unset values are given defaults.
func ResolveConfig(appData string, cfg *Config) error {
	cfg.AppData = appData

	network := "mainnet"
	if cfg.Testnet {
		network = "testnet"
	}
	defaultDBPath, defaultLogPath, err := setNet(appData, network)
	if err != nil {
		return err
	}

	if cfg.DaemonHost == "" {
		cfg.DaemonHost = defaultDaemonHost + ":" + defaultDaemonPort
	}
	if cfg.DBPath == "" {
		cfg.DBPath = defaultDBPath
	}
	if cfg.LogPath == "" {
		cfg.LogPath = defaultLogPath
	}
	return nil
}

// setNet creates the filepath for the network directory and returns suggested
// paths for the database file and the log file. If using a file rotator, the
// directory of the log filepath as parsed by filepath.Dir is suitable for
// use.
func setNet(applicationDirectory, net string) (dbPath, logPath string, err error) {
	netDirectory := filepath.Join(applicationDirectory, net)
	logDirectory := filepath.Join(netDirectory, "logs")
	if err := os.MkdirAll(netDirectory, 0700); err != nil {
		return "", "", fmt.Errorf("failed to create net directory: %w", err)
	}
	if err := os.MkdirAll(logDirectory, 0700); err != nil {
		return "", "", fmt.Errorf("failed to create log directory: %w", err)
	}
	return filepath.Join(netDirectory, "flint.db"), filepath.Join(logDirectory, "flint.log"), nil
}

// cleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
func cleanAndExpandPath(path string) string {
	// Nothing to do when no path is given.
	if path == "" {
		return path
	}

	// NOTE: The os.ExpandEnv doesn't work with Windows cmd.exe-style
	// %VARIABLE%, but the variables can still be expanded via POSIX-style
	// $VARIABLE.
	path = os.ExpandEnv(path)

	if !strings.HasPrefix(path, "~") {
		return filepath.Clean(path)
	}

	// Expand initial ~ to the current user's home directory, or ~otheruser
	// to otheruser's home directory. For simplicity, only the current user's
	// home is expanded.
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Clean(path)
	}
	return filepath.Join(homeDir, strings.TrimPrefix(path, "~"))
}

// appDataDir returns an operating system specific directory to be used for
// storing application data for the named application.
func appDataDir(appName string) string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	capitalized := strings.ToUpper(appName[:1]) + appName[1:]
	switch runtime.GOOS {
	case "windows":
		if appData := os.Getenv("LOCALAPPDATA"); appData != "" {
			return filepath.Join(appData, capitalized)
		}
		return filepath.Join(homeDir, capitalized)
	case "darwin":
		return filepath.Join(homeDir, "Library", "Application Support", capitalized)
	default:
		return filepath.Join(homeDir, "."+appName)
	}
}
