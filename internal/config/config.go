// Package config centralizes the host's operator-tunable defaults
// (spec §4.J's free-tier row cap, §4.C's rename-coalescing window,
// §4.H's settings quota and MCP rate limit) behind a single
// viper-backed loader, instead of leaving them as scattered constants.
//
// Grounded on jra3-linear-fuse's cmd/linear-fuse/commands/root.go viper
// wiring (SetConfigName/SetConfigType/AddConfigPath/SetEnvPrefix/
// AutomaticEnv), generalized from its single global viper instance into
// an injectable *viper.Viper so tests never touch process-global state.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/arkanvault/corevault/internal/csvengine"
	"github.com/arkanvault/corevault/internal/hostapi"
	"github.com/arkanvault/corevault/internal/identity"
	"github.com/arkanvault/corevault/internal/vaultwatch"
)

// EnvPrefix is the prefix environment variables are read under, e.g.
// COREVAULT_CSVPREMIUM.
const EnvPrefix = "COREVAULT"

// Config holds every operator-tunable default the core otherwise
// hardcodes. Zero-value Config is invalid; use Load or Defaults.
type Config struct {
	VaultPath string

	IdentityScanFanout int

	SettingsQuotaBytes int

	McpRateLimit      float64
	McpInitialBackoff time.Duration
	McpMaxBackoff     time.Duration

	CsvFreeRowLimit int
	CsvPremium      bool

	WatchCoalesceWindow time.Duration

	LogLevel string
}

// Defaults returns a Config populated with the same values each
// component falls back to when unconfigured.
func Defaults() Config {
	return Config{
		VaultPath:           ".",
		IdentityScanFanout:  identity.DefaultFanout,
		SettingsQuotaBytes:  hostapi.DefaultSettingsQuota,
		McpRateLimit:        10,
		McpInitialBackoff:   100 * time.Millisecond,
		McpMaxBackoff:       30 * time.Second,
		CsvFreeRowLimit:     csvengine.FreeRowLimit,
		CsvPremium:          false,
		WatchCoalesceWindow: vaultwatch.CoalesceWindow,
		LogLevel:            "info",
	}
}

// Load reads configFile if non-empty, otherwise a "corevault.yaml" found
// on viper's search path, overlaid with COREVAULT_-prefixed environment
// variables, on top of Defaults(). A missing config file is not an
// error — Defaults() alone is a valid configuration.
func Load(configFile string) (Config, error) {
	v := viper.New()
	cfg := Defaults()
	setDefaults(v, cfg)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("corevault")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return cfg, err
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("vaultpath", cfg.VaultPath)
	v.SetDefault("identityscanfanout", cfg.IdentityScanFanout)
	v.SetDefault("settingsquotabytes", cfg.SettingsQuotaBytes)
	v.SetDefault("mcpratelimit", cfg.McpRateLimit)
	v.SetDefault("mcpinitialbackoff", cfg.McpInitialBackoff)
	v.SetDefault("mcpmaxbackoff", cfg.McpMaxBackoff)
	v.SetDefault("csvfreerowlimit", cfg.CsvFreeRowLimit)
	v.SetDefault("csvpremium", cfg.CsvPremium)
	v.SetDefault("watchcoalescewindow", cfg.WatchCoalesceWindow)
	v.SetDefault("loglevel", cfg.LogLevel)
}
