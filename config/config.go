package config

import (
	"flag"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"
)

var (
	GlobalConfigCallback ConfigCallback[GlobalConfig] = ConfigCallback[GlobalConfig]{}
	CfgFlag                                           = flag.String("config", "config.toml", "Configuration file (toml format)")
)

const (
	Timeout               = 1000 * time.Millisecond
	BackoffMaxElapsedTime = 5 * time.Minute
)

type GlobalConfig interface {
	LoggerConfig() LoggerConfig
	ChainConfig() ChainConfig
}

type Config struct {
	DB          DBConfig          `toml:"db"`
	Logger      LoggerConfig      `toml:"logger"`
	Chain       ChainConfig       `toml:"chain"`
	Indexer     IndexerConfig     `toml:"indexer"`
	API         APIConfig         `toml:"api"`
	HistoryDrop HistoryDropConfig `toml:"history_drop"`
}

type LoggerConfig struct {
	Level       string `toml:"level"` // valid values are: DEBUG, INFO, WARN, ERROR, DPANIC, PANIC, FATAL (zap)
	File        string `toml:"file"`
	MaxFileSize int    `toml:"max_file_size"` // In megabytes
	Console     bool   `toml:"console"`
}

type DBConfig struct {
	Host             string `toml:"host" envconfig:"DB_HOST"`
	Port             int    `toml:"port" envconfig:"DB_PORT"`
	Database         string `toml:"database" envconfig:"DB_DATABASE"`
	Username         string `toml:"username" envconfig:"DB_USERNAME"`
	Password         string `toml:"password" envconfig:"DB_PASSWORD"`
	LogQueries       bool   `toml:"log_queries"`
	DropTableAtStart bool   `toml:"drop_table_at_start"`
}

type ChainConfig struct {
	NodeURL string `toml:"node_url" envconfig:"NODE_URL"`
	APIKey  string `toml:"api_key" envconfig:"NODE_API_KEY"`
	// 1 for Avalanche-flavoured (coreth) nodes, 2 for plain Ethereum nodes.
	ChainType int `toml:"chain_type"`
	// Address of the JobRegistry contract whose events are indexed.
	RegistryAddress string `toml:"registry_address" envconfig:"REGISTRY_ADDRESS"`
}

type IndexerConfig struct {
	StartIndex          int `toml:"start_index"`
	StopIndex           int `toml:"stop_index"`
	BatchSize           int `toml:"batch_size"`
	LogRange            int `toml:"log_range"`
	NumParallelReq      int `toml:"num_parallel_req"`
	NewBlockCheckMillis int `toml:"new_block_check_millis"`
}

type APIConfig struct {
	Enabled bool   `toml:"enabled"`
	Address string `toml:"address"`
}

// HistoryDrop prunes only the raw contract-event journal. Derived entities
// (workers, jobs, histories, stats) are never deleted.
type HistoryDropConfig struct {
	IntervalSeconds      uint64 `toml:"interval_seconds"`
	CheckIntervalSeconds uint64 `toml:"check_interval_seconds"`
}

func newConfig() *Config {
	return &Config{
		Indexer: IndexerConfig{
			BatchSize:           500,
			LogRange:            10,
			NumParallelReq:      4,
			NewBlockCheckMillis: 1000,
		},
		API:         APIConfig{Address: ":8877"},
		HistoryDrop: HistoryDropConfig{CheckIntervalSeconds: 1800},
	}
}

func BuildConfig() (*Config, error) {
	cfgFileName := *CfgFlag

	cfg := newConfig()
	err := ParseConfigFile(cfg, cfgFileName)
	if err != nil {
		return nil, err
	}
	err = ReadEnv(cfg)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func ParseConfigFile(cfg *Config, fileName string) error {
	content, err := os.ReadFile(fileName)
	if err != nil {
		return fmt.Errorf("error opening config file: %w", err)
	}

	_, err = toml.Decode(string(content), cfg)
	if err != nil {
		return fmt.Errorf("error parsing config file: %w", err)
	}
	return nil
}

func ReadEnv(cfg interface{}) error {
	err := envconfig.Process("", cfg)
	if err != nil {
		return fmt.Errorf("error reading env config: %w", err)
	}
	return nil
}

func (c Config) LoggerConfig() LoggerConfig {
	return c.Logger
}

func (c Config) ChainConfig() ChainConfig {
	return c.Chain
}

// FullNodeURL builds the node URL with the API key attached as a query
// parameter, if one is configured.
func (c ChainConfig) FullNodeURL() (*url.URL, error) {
	u, err := url.Parse(c.NodeURL)
	if err != nil {
		return nil, fmt.Errorf("invalid node url: %w", err)
	}

	if c.APIKey != "" {
		q := u.Query()
		q.Set("x-apikey", c.APIKey)
		u.RawQuery = q.Encode()
	}

	return u, nil
}
