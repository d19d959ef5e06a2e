package config

// Package config provides a reusable loader for Iroha peer configuration
// files and environment variables. It is versioned so that applications can
// depend on a stable API contract.
//
// Version: v0.1.0

import (
	"fmt"

	"github.com/spf13/viper"

	"iroha/pkg/utils"
)

// Version is the semantic version of this configuration package.
const Version = "v0.1.0"

// Config represents the unified configuration for an Iroha peer. It mirrors
// the structure of the YAML files under cmd/config.
type Config struct {
	Chain struct {
		Id          string `mapstructure:"id" json:"id"`
		GenesisFile string `mapstructure:"genesis_file" json:"genesis_file"`
		// SubmitGenesis marks this peer as the one that applies the
		// genesis block on first start; every other peer instead waits
		// to receive height 1 over block-sync.
		SubmitGenesis bool `mapstructure:"submit_genesis" json:"submit_genesis"`
	} `mapstructure:"chain" json:"chain"`

	Network struct {
		ListenAddr     string   `mapstructure:"listen_addr" json:"listen_addr"`
		DiscoveryTag   string   `mapstructure:"discovery_tag" json:"discovery_tag"`
		BootstrapPeers []string `mapstructure:"bootstrap_peers" json:"bootstrap_peers"`
		MaxPeers       int      `mapstructure:"max_peers" json:"max_peers"`
	} `mapstructure:"network" json:"network"`

	Sumeragi struct {
		BlockIntervalMS int `mapstructure:"block_interval_ms" json:"block_interval_ms"`
		ViewTimeoutMS   int `mapstructure:"view_timeout_ms" json:"view_timeout_ms"`
		MaxTxPerBlock   int `mapstructure:"max_tx_per_block" json:"max_tx_per_block"`
	} `mapstructure:"sumeragi" json:"sumeragi"`

	Queue struct {
		Capacity            int     `mapstructure:"capacity" json:"capacity"`
		RatePerSec          float64 `mapstructure:"rate_per_sec" json:"rate_per_sec"`
		RateBurst           int     `mapstructure:"rate_burst" json:"rate_burst"`
		FutureThresholdMS   int     `mapstructure:"future_threshold_ms" json:"future_threshold_ms"`
		MaxSignatures       int     `mapstructure:"max_signatures" json:"max_signatures"`
		MaxInstructionCount int     `mapstructure:"max_instruction_count" json:"max_instruction_count"`
		MaxWasmSizeBytes    int     `mapstructure:"max_wasm_size_bytes" json:"max_wasm_size_bytes"`
	} `mapstructure:"queue" json:"queue"`

	Executor struct {
		FuelLimit uint64 `mapstructure:"fuel_limit" json:"fuel_limit"`
		Workers   int    `mapstructure:"workers" json:"workers"`
	} `mapstructure:"executor" json:"executor"`

	Limits struct {
		IdentMin              int `mapstructure:"ident_min" json:"ident_min"`
		IdentMax              int `mapstructure:"ident_max" json:"ident_max"`
		MetadataCapacity      int `mapstructure:"metadata_capacity" json:"metadata_capacity"`
		MetadataMaxEntryBytes int `mapstructure:"metadata_max_entry_bytes" json:"metadata_max_entry_bytes"`
	} `mapstructure:"limits" json:"limits"`

	Storage struct {
		DBPath string `mapstructure:"db_path" json:"db_path"`
	} `mapstructure:"storage" json:"storage"`

	Gateway struct {
		BindAddr string `mapstructure:"bind_addr" json:"bind_addr"`
	} `mapstructure:"gateway" json:"gateway"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
		File  string `mapstructure:"file" json:"file"`
	} `mapstructure:"logging" json:"logging"`
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config

// Load reads configuration files and merges any environment specific
// overrides. The resulting configuration is stored in AppConfig and returned.
//
// The function uses the provided environment name to merge additional config
// files. If env is empty, only the default configuration is loaded.
func Load(env string) (*Config, error) {
	viper.SetConfigName("default")
	viper.AddConfigPath("cmd/config")
	viper.AddConfigPath("config")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		return nil, utils.Wrap(err, "load config")
	}

	if env != "" {
		viper.SetConfigName(env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, utils.Wrap(err, fmt.Sprintf("merge %s config", env))
		}
	}

	viper.AutomaticEnv() // reads process environment variables; no .env file is loaded

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the IROHA_ENV environment variable.
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("IROHA_ENV", ""))
}
