package cmd

import (
	"fmt"
	"io"

	"powledger/core"
	"powledger/crypto"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"
)

var hashCmd = &cobra.Command{
	Use:   "hash",
	Short: "Print the canonical bytes and digest of an unmined block",
	RunE:  runHash,
}

func init() {
	hashCmd.Flags().String("payload", "", "Block payload")
	hashCmd.Flags().Uint64("index", 0, "Block index")
	hashCmd.Flags().Uint64("timestamp", 0, "Block timestamp in milliseconds")
	hashCmd.Flags().Uint64("nonce", 0, "Block nonce")
}

func runHash(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	payload, _ := cmd.Flags().GetString("payload")
	index, _ := cmd.Flags().GetUint64("index")
	timestamp, _ := cmd.Flags().GetUint64("timestamp")
	nonce, _ := cmd.Flags().GetUint64("nonce")

	block := core.NewBlock(index, timestamp, crypto.ZeroHash, nonce, []byte(payload), cfg.GetDifficulty()).
		WithHasher(cfg.GetHasher())
	printBlockDigest(cmd.OutOrStdout(), block)
	return nil
}

func printBlockDigest(out io.Writer, block *core.Block) {
	hash := block.CalculateHash()
	data := block.Bytes()
	fmt.Fprintf(out, "bytes (%d): %s\n", len(data), hexutil.Encode(data))
	fmt.Fprintf(out, "hash: %s\n", crypto.Hex(hash))
	fmt.Fprintf(out, "meets difficulty: %t\n", block.MeetsDifficulty(hash))
}
