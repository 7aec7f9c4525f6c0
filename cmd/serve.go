package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"powledger/config"
	"powledger/core"
	"powledger/logger"
	"powledger/rpc"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the miner behind the HTTP API",
	Long:  `Start the block miner and serve the ledger over a REST and JSON-RPC API until interrupted.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("rpcaddr", config.DefaultConfig.RPCAddr, "HTTP API address (0.0.0.0 to listen on all interfaces)")
	serveCmd.Flags().Int("rpcport", config.DefaultConfig.RPCPort, "HTTP API port")
	serveCmd.Flags().Int("queue_size", config.DefaultConfig.QueueSize, "Pending mining jobs accepted before submitters block")
	serveCmd.Flags().Duration("submit_timeout", config.DefaultConfig.SubmitTimeout, "Longest a POST /api/blocks waits for its block (0 = until the client gives up)")
	serveCmd.Flags().Duration("cache_ttl", config.DefaultConfig.CacheTTL, "TTL of cached hash lookups")
	viper.BindPFlag("rpc_addr", serveCmd.Flags().Lookup("rpcaddr"))
	viper.BindPFlag("rpc_port", serveCmd.Flags().Lookup("rpcport"))
	viper.BindPFlag("queue_size", serveCmd.Flags().Lookup("queue_size"))
	viper.BindPFlag("submit_timeout", serveCmd.Flags().Lookup("submit_timeout"))
	viper.BindPFlag("cache_ttl", serveCmd.Flags().Lookup("cache_ttl"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger.Info("Starting powledger node...")
	logger.Infof("Effective Configuration: RPC=%s, Difficulty=%s, Workers=%d, HashAlgorithm=%s, QueueSize=%d, LogLevel=%s",
		cfg.RPCListenAddr(), cfg.Difficulty, cfg.MiningWorkers, cfg.HashAlgorithm, cfg.QueueSize, cfg.LogLevel)

	blockchain := newBlockchain(cfg, core.SystemClock)
	miner := core.NewMiner(blockchain, cfg.QueueSize)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		miner.Start()
		<-ctx.Done()
		logger.Info("Received stop signal for miner, stopping...")
		miner.Stop()
	}()

	rpcServer := rpc.NewServer(&rpc.Config{
		Host:          cfg.RPCAddr,
		Port:          cfg.RPCPort,
		CacheTTL:      cfg.CacheTTL,
		Difficulty:    cfg.GetDifficulty(),
		SubmitTimeout: cfg.SubmitTimeout,
	}, miner)
	if err := rpcServer.Start(); err != nil {
		return fmt.Errorf("failed to start RPC server: %w", err)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		rpcServer.Stop()
	}()

	logger.Info("powledger node started successfully. Press Ctrl+C to stop.")
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	s := <-sigCh
	logger.Infof("Received signal: %v, initiating shutdown...", s)
	cancel()

	shutdownCompleted := make(chan struct{})
	go func() {
		wg.Wait()
		close(shutdownCompleted)
	}()

	select {
	case <-shutdownCompleted:
		logger.Info("All services stopped gracefully.")
	case <-time.After(10 * time.Second):
		logger.Warning("Timeout waiting for services to stop. Forcing exit.")
	}

	var (
		valid  bool
		length int
	)
	miner.View(func(bc *core.Blockchain) {
		valid = bc.Verify()
		length = bc.Len()
	})
	logger.Infof("powledger node stopped. Chain length %d, verify: %t", length, valid)
	return nil
}
