package core

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"powledger/crypto"
	"powledger/interfaces"
	"powledger/logger"
	"powledger/metrics"

	"github.com/holiman/uint256"
)

// Clock supplies block timestamps in milliseconds since the Unix epoch.
type Clock func() uint64

// SystemClock reads the wall clock. Successive readings are not guaranteed
// to increase.
func SystemClock() uint64 {
	return uint64(time.Now().UnixMilli())
}

var ErrNonceSpaceExhausted = errors.New("no nonce satisfies the difficulty")

// Config mendefinisikan kolaborator eksternal sebuah Blockchain.
type Config struct {
	Clock  Clock
	Hasher crypto.Hasher
	// Engine mines blocks when set; otherwise Block.Mine runs on the caller's goroutine.
	Engine interfaces.Engine
}

// Blockchain is an append-only sequence of mined blocks. It does no locking;
// callers sharing one across goroutines must serialize access (see Miner).
type Blockchain struct {
	blocks    []*Block
	index     int // position of the most recently appended block
	clock     Clock
	hasher    crypto.Hasher
	consensus interfaces.Engine
	validator *Validator
}

func NewBlockchain(cfg *Config) *Blockchain {
	bc := &Blockchain{
		blocks:    make([]*Block, 0),
		clock:     SystemClock,
		hasher:    crypto.Sha256Hash,
		validator: NewValidator(),
	}
	if cfg != nil {
		if cfg.Clock != nil {
			bc.clock = cfg.Clock
		}
		if cfg.Hasher != nil {
			bc.hasher = cfg.Hasher
		}
		bc.consensus = cfg.Engine
	}
	return bc
}

func (bc *Blockchain) SetConsensus(engine interfaces.Engine) {
	bc.consensus = engine
}

func (bc *Blockchain) GetConsensusEngine() interfaces.Engine {
	return bc.consensus
}

// AddBlock constructs the next block, mines it and appends it, returning a
// copy of the stored block. If the nonce space is exhausted the unmined block
// is still appended and ErrNonceSpaceExhausted is returned; Verify will then
// report the chain invalid.
func (bc *Blockchain) AddBlock(payload []byte, difficulty uint256.Int) (Block, error) {
	return bc.AddBlockContext(context.Background(), payload, difficulty)
}

// AddBlockContext is AddBlock with a context handed to the nonce search.
// Cancellation leaves the chain untouched.
func (bc *Blockchain) AddBlockContext(ctx context.Context, payload []byte, difficulty uint256.Int) (Block, error) {
	block, err := bc.nextBlock(payload, difficulty)
	if err != nil {
		return Block{}, err
	}
	start := time.Now()
	return bc.appendBlock(block, bc.mine(ctx, block), time.Since(start))
}

// nextBlock builds the unmined successor of the current block. It reads the
// chain but does not change it.
func (bc *Blockchain) nextBlock(payload []byte, difficulty uint256.Int) (*Block, error) {
	if difficulty.BitLen() > DifficultyBits {
		return nil, fmt.Errorf("%w: %s", ErrDifficultyTooLarge, difficulty.Hex())
	}

	prevBlockHash := crypto.ZeroHash
	index := uint64(0)
	if len(bc.blocks) > 0 {
		prevBlockHash = bc.blocks[bc.index].Hash
		index = uint64(bc.index) + 1
	}

	block := NewBlock(index, bc.clock(), prevBlockHash, 0, append([]byte(nil), payload...), difficulty).
		WithHasher(bc.hasher)
	logger.Debugf("Mining block %d with difficulty %s", block.Index, FormatDifficulty(&block.Difficulty))
	return block, nil
}

// appendBlock stores a block built by nextBlock once its search finished.
// Exhaustion still appends; any other mining error leaves the chain as is.
// The chain must not have changed since nextBlock.
func (bc *Blockchain) appendBlock(block *Block, mineErr error, elapsed time.Duration) (Block, error) {
	if mineErr != nil && !errors.Is(mineErr, ErrNonceSpaceExhausted) {
		return Block{}, fmt.Errorf("failed to mine block %d: %w", block.Index, mineErr)
	}
	if block.Index != uint64(len(bc.blocks)) {
		return Block{}, fmt.Errorf("%w: block %d built for a chain of length %d", ErrIndexMismatch, block.Index, len(bc.blocks))
	}

	bc.blocks = append(bc.blocks, block)
	bc.index = len(bc.blocks) - 1

	if mineErr != nil {
		metrics.GetMetrics().IncrementExhausted()
		logger.Warningf("Block %d appended unmined: %v", block.Index, mineErr)
		return *block.Clone(), mineErr
	}

	metrics.GetMetrics().IncrementBlockCount()
	logger.LogBlockEvent(block.Index, crypto.Hex(block.Hash), block.Nonce, elapsed)
	return *block.Clone(), nil
}

// mine runs the engine, or the sequential search with cancellation checks.
func (bc *Blockchain) mine(ctx context.Context, block *Block) error {
	if bc.consensus != nil {
		return bc.consensus.MineBlock(ctx, block)
	}
	found, err := block.mineRangeContext(ctx, 0, math.MaxUint64)
	if err != nil {
		return err
	}
	if !found {
		return ErrNonceSpaceExhausted
	}
	return nil
}

// Verify reports whether the stored blocks form a valid chain.
func (bc *Blockchain) Verify() bool {
	return bc.Validate() == nil
}

// Validate scans the chain front to back and returns a *ValidationError for
// the first block that fails a check, or nil.
func (bc *Blockchain) Validate() error {
	var prev *Block
	for i, block := range bc.blocks {
		if err := bc.validator.ValidateBlock(block, prev, i); err != nil {
			metrics.GetMetrics().RecordVerification(false)
			return err
		}
		prev = block
	}
	metrics.GetMetrics().RecordVerification(true)
	return nil
}

func (bc *Blockchain) Len() int {
	return len(bc.blocks)
}

// Blocks returns copies of all stored blocks in order.
func (bc *Blockchain) Blocks() []Block {
	out := make([]Block, 0, len(bc.blocks))
	for _, b := range bc.blocks {
		out = append(out, *b.Clone())
	}
	return out
}

func (bc *Blockchain) GetBlockByIndex(index uint64) (Block, bool) {
	if index >= uint64(len(bc.blocks)) {
		return Block{}, false
	}
	return *bc.blocks[index].Clone(), true
}

func (bc *Blockchain) GetBlockByHash(hash [32]byte) (Block, bool) {
	if hash == crypto.ZeroHash {
		return Block{}, false
	}
	for _, b := range bc.blocks {
		if b.Hash == hash {
			return *b.Clone(), true
		}
	}
	return Block{}, false
}

func (bc *Blockchain) CurrentBlock() (Block, bool) {
	if len(bc.blocks) == 0 {
		return Block{}, false
	}
	return *bc.blocks[bc.index].Clone(), true
}
