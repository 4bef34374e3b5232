// Package config handles application configuration.
//
// Settings come from three layers applied in order: network defaults, the
// recall.conf file in the data directory, and command-line flags.
package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// NetworkType identifies mainnet or testnet.
type NetworkType string

const (
	Mainnet NetworkType = "mainnet"
	Testnet NetworkType = "testnet"
)

// Config holds node-specific runtime configuration.
type Config struct {
	// Core
	Network NetworkType `conf:"network"`
	DataDir string      `conf:"datadir"`

	// RPC server
	RPC RPCConfig

	// Ledger policy
	Ledger LedgerConfig

	// Wallet
	Wallet WalletConfig

	// Logging
	Log LogConfig
}

// RPCConfig holds RPC server settings.
type RPCConfig struct {
	Enabled     bool     `conf:"rpc.enabled"`
	Addr        string   `conf:"rpc.addr"`
	Port        int      `conf:"rpc.port"`
	AllowedIPs  []string `conf:"rpc.allowed"`
	CORSOrigins []string `conf:"rpc.cors"` // Allowed CORS origins ("*" = all).
}

// LedgerConfig holds ledger admission policy.
type LedgerConfig struct {
	FeeRate   uint64 `conf:"ledger.feerate"`   // Base units per signing byte.
	Faucet    bool   `conf:"ledger.faucet"`    // Allow ledger_fund.
	FaucetMax uint64 `conf:"ledger.faucetmax"` // Max value of a single faucet coin.
}

// WalletConfig holds wallet settings.
type WalletConfig struct {
	FilePath string `conf:"wallet.file"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `conf:"log.level"`
	File  string `conf:"log.file"`
	JSON  bool   `conf:"log.json"`
}

// DefaultDataDir returns the platform-specific default data directory.
//
//	Linux:   ~/.recall
//	macOS:   ~/Library/Application Support/Recall
//	Windows: %APPDATA%\Recall
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".recall"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Recall")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "Recall")
		}
		return filepath.Join(home, "AppData", "Roaming", "Recall")
	default:
		return filepath.Join(home, ".recall")
	}
}

// NetworkDataDir returns the network-specific data directory.
func (c *Config) NetworkDataDir() string {
	return filepath.Join(c.DataDir, string(c.Network))
}

// LedgerDir returns the ledger database directory.
func (c *Config) LedgerDir() string {
	return filepath.Join(c.NetworkDataDir(), "ledger")
}

// KeystoreDir returns the keystore directory.
func (c *Config) KeystoreDir() string {
	return filepath.Join(c.NetworkDataDir(), "keystore")
}

// WalletFile returns the wallet keystore path, honoring wallet.file.
func (c *Config) WalletFile() string {
	if c.Wallet.FilePath == "" {
		return filepath.Join(c.KeystoreDir(), "wallet.json")
	}
	if filepath.IsAbs(c.Wallet.FilePath) {
		return c.Wallet.FilePath
	}
	return filepath.Join(c.KeystoreDir(), c.Wallet.FilePath)
}

// LogsDir returns the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// ConfigFile returns the config file path.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.DataDir, "recall.conf")
}
