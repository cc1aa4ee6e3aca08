// Package config contains go-foundry client configuration definitions.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	defaultAPIURL        = "https://lsijwmklicmqtuqxhgnu.supabase.co/functions/v1/main-ts"
	defaultRetryAttempts = 3
	defaultRetryDelay    = 2 * time.Second
	defaultCredentialDir = ".foundry"
	defaultNetwork       = "mainnet-beta"
	defaultRPCURL        = "https://api.mainnet-beta.solana.com"

	envPrefix = "foundry"
)

// Config enumerates every recognized option. Components take it (or the
// relevant fields) through their constructors; there is no process-wide
// mutable state.
type Config struct {
	// APIURL is the base URL of the FoundryNet HTTP service.
	APIURL string `mapstructure:"api-url"`
	// RetryAttempts bounds retried network operations.
	RetryAttempts int `mapstructure:"retry-attempts"`
	// RetryDelay is the base backoff delay; attempt n waits n×delay.
	RetryDelay time.Duration `mapstructure:"retry-delay"`
	// CredentialDir holds the machine credential file.
	CredentialDir string `mapstructure:"credential-dir"`
	// Network selects the ledger cluster for on-chain recording.
	Network string `mapstructure:"network"`
	// RPCURL is the ledger RPC endpoint.
	RPCURL string `mapstructure:"rpc-url"`
}

// DefaultConfig returns the stated defaults. The credential directory
// lives under the user home dir when resolvable, else the working dir.
func DefaultConfig() Config {
	dir := defaultCredentialDir
	if home, err := os.UserHomeDir(); err == nil {
		dir = filepath.Join(home, defaultCredentialDir)
	}
	return Config{
		APIURL:        defaultAPIURL,
		RetryAttempts: defaultRetryAttempts,
		RetryDelay:    defaultRetryDelay,
		CredentialDir: dir,
		Network:       defaultNetwork,
		RPCURL:        defaultRPCURL,
	}
}

// Load builds the configuration from defaults, an optional config file
// and FOUNDRY_* environment variables, in increasing precedence.
func Load(path string) (Config, error) {
	vip := viper.New()
	vip.SetEnvPrefix(envPrefix)
	vip.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	vip.AutomaticEnv()

	def := DefaultConfig()
	vip.SetDefault("api-url", def.APIURL)
	vip.SetDefault("retry-attempts", def.RetryAttempts)
	vip.SetDefault("retry-delay", def.RetryDelay)
	vip.SetDefault("credential-dir", def.CredentialDir)
	vip.SetDefault("network", def.Network)
	vip.SetDefault("rpc-url", def.RPCURL)

	if path != "" {
		vip.SetConfigFile(path)
		if err := vip.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := vip.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshaling config: %w", err)
	}
	if cfg.RetryAttempts < 1 {
		return Config{}, fmt.Errorf("retry-attempts must be at least 1, got %d", cfg.RetryAttempts)
	}
	return cfg, nil
}
