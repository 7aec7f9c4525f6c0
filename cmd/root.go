package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings" // Diperlukan untuk SetEnvKeyReplacer

	"powledger/config"
	"powledger/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd merepresentasikan perintah dasar ketika dipanggil tanpa sub-perintah
var rootCmd = &cobra.Command{
	Use:   "powledger",
	Short: "Proof-of-work hash-linked ledger",
	Long: `powledger builds an append-only chain of blocks, each sealed by a
proof-of-work nonce search and linked to its predecessor by hash.`,
	SilenceUsage: true,
}

// Execute menambahkan semua perintah anak ke perintah root dan mengatur flag dengan sesuai.
// Ini dipanggil oleh main.main(). Ini hanya perlu terjadi sekali pada rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.AddCommand(mineCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(hashCmd)

	// Default di sini hanya untuk help text; viper menangani prioritas flag > env > file > default.
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.powledger/config.yaml or ./config.yaml)")
	rootCmd.PersistentFlags().String("log_level", config.DefaultConfig.LogLevel, "Logging level (debug, info, warn, error, fatal)")
	rootCmd.PersistentFlags().String("log_format", config.DefaultConfig.LogFormat, "Log output format (text, json)")
	rootCmd.PersistentFlags().String("difficulty", config.DefaultConfig.Difficulty, "Mining difficulty as a 128-bit upper bound (hex or decimal)")
	rootCmd.PersistentFlags().String("hash_algorithm", config.DefaultConfig.HashAlgorithm, "Block digest (sha256, keccak256)")
	rootCmd.PersistentFlags().Int("mining_workers", config.DefaultConfig.MiningWorkers, "Parallel nonce search workers (1 = sequential)")
	rootCmd.PersistentFlags().Uint64("mining_batch_size", config.DefaultConfig.MiningBatchSize, "Nonces per worker per round")

	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log_level"))
	viper.BindPFlag("log_format", rootCmd.PersistentFlags().Lookup("log_format"))
	viper.BindPFlag("difficulty", rootCmd.PersistentFlags().Lookup("difficulty"))
	viper.BindPFlag("hash_algorithm", rootCmd.PersistentFlags().Lookup("hash_algorithm"))
	viper.BindPFlag("mining_workers", rootCmd.PersistentFlags().Lookup("mining_workers"))
	viper.BindPFlag("mining_batch_size", rootCmd.PersistentFlags().Lookup("mining_batch_size"))
}

// initConfig membaca file konfigurasi dan variabel ENV jika ada.
// Fungsi ini dipanggil oleh cobra.OnInitialize.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".powledger"))
		}
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	config.SetDefaults(viper.GetViper())
	viper.AutomaticEnv()
	viper.SetEnvPrefix("POWLEDGER") // misalnya, POWLEDGER_DIFFICULTY
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	} else {
		// File tidak ditemukan bukan error; default dan ENV tetap berlaku.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintf(os.Stderr, "Error reading config file '%s': %s\n", viper.ConfigFileUsed(), err)
		}
	}
}

// loadConfig loads the effective config and applies its logging settings.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger.SetLevel(cfg.GetLogLevel())
	if strings.EqualFold(cfg.LogFormat, "json") {
		logger.SetJSONFormat()
	}
	return cfg, nil
}
