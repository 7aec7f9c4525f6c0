package config

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"powledger/core"
	"powledger/crypto"
	"powledger/logger"

	"github.com/holiman/uint256"
	"github.com/spf13/viper"
)

// Config struct holds all configuration for the application.
// Tags are used by viper to map ENV variables and config file keys.
type Config struct {
	// Logging configuration
	LogLevel  string `mapstructure:"log_level"` // e.g., "debug", "info", "warn", "error"
	LogFormat string `mapstructure:"log_format"`
	Verbosity int    `mapstructure:"verbosity"` // Alternative to LogLevel, 0-5

	// Mining configuration
	Difficulty      string        `mapstructure:"difficulty"`
	HashAlgorithm   string        `mapstructure:"hash_algorithm"`
	MiningWorkers   int           `mapstructure:"mining_workers"`
	MiningBatchSize uint64        `mapstructure:"mining_batch_size"`
	QueueSize       int           `mapstructure:"queue_size"`
	SubmitTimeout   time.Duration `mapstructure:"submit_timeout"` // 0 waits as long as the client

	// Demo loop configuration
	Blocks        int    `mapstructure:"blocks"`
	PayloadPrefix string `mapstructure:"payload_prefix"`

	// HTTP API configuration
	RPCAddr  string        `mapstructure:"rpc_addr"`
	RPCPort  int           `mapstructure:"rpc_port"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// defaultConfig holds the unexported default configuration values.
var defaultConfig = Config{
	LogLevel:        "info",
	LogFormat:       "text",
	Verbosity:       3,
	Difficulty:      "0x00000fffffffffffffffffffffffffff",
	HashAlgorithm:   string(crypto.SHA256),
	MiningWorkers:   runtime.NumCPU(),
	MiningBatchSize: 1 << 14,
	QueueSize:       16,
	SubmitTimeout:   2 * time.Minute,
	Blocks:          10,
	PayloadPrefix:   "this number is",
	RPCAddr:         "127.0.0.1",
	RPCPort:         8545,
	CacheTTL:        5 * time.Minute,
}

// DefaultConfig is an exported version of defaultConfig, allowing other packages
// to access the default values, for example, when setting up CLI flags.
var DefaultConfig = defaultConfig

// SetDefaults registers every key with v so AutomaticEnv can resolve keys
// that have no flag or config file entry.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log_level", DefaultConfig.LogLevel)
	v.SetDefault("log_format", DefaultConfig.LogFormat)
	v.SetDefault("verbosity", DefaultConfig.Verbosity)
	v.SetDefault("difficulty", DefaultConfig.Difficulty)
	v.SetDefault("hash_algorithm", DefaultConfig.HashAlgorithm)
	v.SetDefault("mining_workers", DefaultConfig.MiningWorkers)
	v.SetDefault("mining_batch_size", DefaultConfig.MiningBatchSize)
	v.SetDefault("queue_size", DefaultConfig.QueueSize)
	v.SetDefault("submit_timeout", DefaultConfig.SubmitTimeout)
	v.SetDefault("blocks", DefaultConfig.Blocks)
	v.SetDefault("payload_prefix", DefaultConfig.PayloadPrefix)
	v.SetDefault("rpc_addr", DefaultConfig.RPCAddr)
	v.SetDefault("rpc_port", DefaultConfig.RPCPort)
	v.SetDefault("cache_ttl", DefaultConfig.CacheTTL)
}

// LoadConfig loads configuration from file, environment variables, and flags.
func LoadConfig() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom unmarshals v over DefaultConfig and validates the result.
func LoadFrom(v *viper.Viper) (*Config, error) {
	currentConfig := DefaultConfig

	if err := v.Unmarshal(&currentConfig); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config from Viper: %w", err)
	}

	loadedConfigMsg := fmt.Sprintf("Effective config: Difficulty=%s, HashAlgorithm=%s, Workers=%d, BatchSize=%d, Blocks=%d, RPC=%s:%d, LogLevel=%s",
		currentConfig.Difficulty, currentConfig.HashAlgorithm, currentConfig.MiningWorkers, currentConfig.MiningBatchSize,
		currentConfig.Blocks, currentConfig.RPCAddr, currentConfig.RPCPort, currentConfig.LogLevel)

	if logger.GetLogger() != nil {
		logger.Debug(loadedConfigMsg)
	} else {
		fmt.Fprintln(os.Stderr, loadedConfigMsg)
	}

	if err := validate(&currentConfig); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &currentConfig, nil
}

func validate(config *Config) error {
	config.Difficulty = strings.TrimSpace(config.Difficulty)
	if _, err := core.ParseDifficulty(config.Difficulty); err != nil {
		return fmt.Errorf("invalid difficulty: %w", err)
	}

	if _, err := crypto.HasherFor(crypto.Algorithm(config.HashAlgorithm)); err != nil {
		return err
	}

	if config.RPCPort <= 0 || config.RPCPort > 65535 {
		return fmt.Errorf("invalid RPC port: %d. Must be between 1 and 65535", config.RPCPort)
	}

	if config.MiningWorkers <= 0 {
		logger.Warningf("MiningWorkers is invalid (%d), using default: %d", config.MiningWorkers, DefaultConfig.MiningWorkers)
		config.MiningWorkers = DefaultConfig.MiningWorkers
	}
	if config.MiningBatchSize == 0 {
		logger.Warningf("MiningBatchSize is 0, using default: %d", DefaultConfig.MiningBatchSize)
		config.MiningBatchSize = DefaultConfig.MiningBatchSize
	}
	if config.QueueSize <= 0 {
		logger.Warningf("QueueSize is invalid (%d), using default: %d", config.QueueSize, DefaultConfig.QueueSize)
		config.QueueSize = DefaultConfig.QueueSize
	}
	if config.SubmitTimeout < 0 {
		logger.Warningf("SubmitTimeout is negative (%v), using 0 (no limit)", config.SubmitTimeout)
		config.SubmitTimeout = 0
	}
	if config.Blocks < 0 {
		logger.Warningf("Blocks is negative (%d), using 0", config.Blocks)
		config.Blocks = 0
	}
	if config.CacheTTL <= 0 {
		logger.Warningf("CacheTTL is invalid (%v), using default: %v", config.CacheTTL, DefaultConfig.CacheTTL)
		config.CacheTTL = DefaultConfig.CacheTTL
	}
	return nil
}

// GetDifficulty returns the parsed mining difficulty. LoadConfig has already
// validated it.
func (c *Config) GetDifficulty() uint256.Int {
	d, _ := core.ParseDifficulty(c.Difficulty)
	return d
}

func (c *Config) GetHasher() crypto.Hasher {
	h, err := crypto.HasherFor(crypto.Algorithm(c.HashAlgorithm))
	if err != nil {
		logger.Warningf("Unknown hash_algorithm '%s', falling back to sha256", c.HashAlgorithm)
		return crypto.Sha256Hash
	}
	return h
}

func (c *Config) GetLogLevel() logger.LogLevel {
	switch strings.ToLower(c.LogLevel) {
	case "debug", "trace":
		return logger.DEBUG
	case "info":
		return logger.INFO
	case "warn", "warning":
		return logger.WARNING
	case "error":
		return logger.ERROR
	case "fatal":
		return logger.FATAL
	default:
		logger.Warningf("Unknown log_level '%s', falling back to verbosity %d", c.LogLevel, c.Verbosity)
		switch c.Verbosity {
		case 0, 1:
			return logger.ERROR
		case 2:
			return logger.WARNING
		case 3:
			return logger.INFO
		case 4, 5:
			return logger.DEBUG
		default:
			logger.Warningf("Unknown verbosity level %d, defaulting to INFO", c.Verbosity)
			return logger.INFO
		}
	}
}

func (c *Config) RPCListenAddr() string {
	return fmt.Sprintf("%s:%d", c.RPCAddr, c.RPCPort)
}
