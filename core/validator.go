package core

import (
	"errors"
	"fmt"

	"powledger/crypto"
	"powledger/logger"
)

var (
	ErrIndexMismatch          = errors.New("block index does not match its position")
	ErrDifficultyNotMet       = errors.New("block hash does not meet difficulty")
	ErrTimestampNotIncreasing = errors.New("block timestamp did not increase")
	ErrPrevHashMismatch       = errors.New("previous block hash mismatch")
	ErrInvalidGenesisPrevHash = errors.New("genesis block previous hash is not zero")
)

// ValidationError identifies the first block that failed verification.
type ValidationError struct {
	Position int
	Err      error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("block at position %d: %v", e.Position, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Validator checks a single block against its predecessor.
type Validator struct{}

func NewValidator() *Validator {
	return &Validator{}
}

// ValidateBlock checks block at position against prev, which is nil for the
// first block. The hash is recomputed rather than trusted.
func (v *Validator) ValidateBlock(block, prev *Block, position int) error {
	if block == nil {
		return &ValidationError{Position: position, Err: errors.New("block is nil")}
	}

	if block.Index != uint64(position) {
		logger.Warningf("Index mismatch %d != %d", block.Index, position)
		return &ValidationError{Position: position, Err: ErrIndexMismatch}
	}

	if !CheckDifficulty(block.CalculateHash(), &block.Difficulty) {
		logger.Warningf("Difficulty fail for block %d (difficulty %s)", block.Index, FormatDifficulty(&block.Difficulty))
		return &ValidationError{Position: position, Err: ErrDifficultyNotMet}
	}

	if prev == nil {
		if block.PrevBlockHash != crypto.ZeroHash {
			logger.Warningf("Genesis block prev_block_hash invalid: %s", crypto.Hex(block.PrevBlockHash))
			return &ValidationError{Position: position, Err: ErrInvalidGenesisPrevHash}
		}
		return nil
	}

	if block.Timestamp <= prev.Timestamp {
		logger.Warningf("Time did not increase for block %d: %d <= %d", block.Index, block.Timestamp, prev.Timestamp)
		return &ValidationError{Position: position, Err: ErrTimestampNotIncreasing}
	}
	if block.PrevBlockHash != prev.Hash {
		logger.Warningf("Hash mismatch for block %d: prev %s, expected %s", block.Index, crypto.Hex(block.PrevBlockHash), crypto.Hex(prev.Hash))
		return &ValidationError{Position: position, Err: ErrPrevHashMismatch}
	}
	return nil
}
