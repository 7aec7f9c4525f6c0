package cmd

import (
	"errors"
	"fmt"
	"io"

	"powledger/config"
	"powledger/consensus"
	"powledger/core"
	"powledger/logger"

	"github.com/holiman/uint256"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var mineCmd = &cobra.Command{
	Use:   "mine",
	Short: "Mine a demo chain and verify it",
	Long: `Mine --blocks blocks with payloads "<payload_prefix> 1" .. "<payload_prefix> N",
printing each block and the chain's verification result after every append.`,
	RunE: runMine,
}

func init() {
	mineCmd.Flags().Int("blocks", config.DefaultConfig.Blocks, "Number of blocks to mine")
	mineCmd.Flags().String("payload-prefix", config.DefaultConfig.PayloadPrefix, "Payload prefix; the block number is appended")
	viper.BindPFlag("blocks", mineCmd.Flags().Lookup("blocks"))
	viper.BindPFlag("payload_prefix", mineCmd.Flags().Lookup("payload-prefix"))
}

// newBlockchain builds a chain from cfg stamped by clock. More than one worker
// selects the parallel engine; a single worker mines sequentially.
func newBlockchain(cfg *config.Config, clock core.Clock) *core.Blockchain {
	bc := core.NewBlockchain(&core.Config{
		Clock:  clock,
		Hasher: cfg.GetHasher(),
	})
	if cfg.MiningWorkers > 1 {
		bc.SetConsensus(consensus.NewProofOfWork(cfg.MiningWorkers, cfg.MiningBatchSize))
	}
	return bc
}

func runMine(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger.Infof("Mining %d blocks at difficulty %s with %d worker(s), hash %s",
		cfg.Blocks, cfg.Difficulty, cfg.MiningWorkers, cfg.HashAlgorithm)

	return mineDemo(cmd.OutOrStdout(), newBlockchain(cfg, core.SystemClock), cfg.Blocks, cfg.PayloadPrefix, cfg.GetDifficulty())
}

func mineDemo(out io.Writer, bc *core.Blockchain, blocks int, prefix string, difficulty uint256.Int) error {
	for i := 1; i <= blocks; i++ {
		block, err := bc.AddBlock([]byte(fmt.Sprintf("%s %d", prefix, i)), difficulty)
		if err != nil && !errors.Is(err, core.ErrNonceSpaceExhausted) {
			return err
		}
		fmt.Fprintln(out, block.String())
		fmt.Fprintf(out, "Verify: %t\n", bc.Verify())
	}

	if err := bc.Validate(); err != nil {
		return fmt.Errorf("chain does not verify: %w", err)
	}
	return nil
}
