package interfaces

import (
	"context"

	"github.com/holiman/uint256"
)

// BlockConsensusItf is what a proof-of-work engine needs from a block.
type BlockConsensusItf interface {
	Hashable
	GetNonce() uint64
	SetNonce(uint64)
	GetHash() [32]byte
	SetHash([32]byte)
	GetDifficulty() uint256.Int
	MeetsDifficulty(hash [32]byte) bool
	// Copy returns an independent block so workers can mutate nonces concurrently.
	Copy() BlockConsensusItf
}

// Engine interface
type Engine interface {
	MineBlock(ctx context.Context, block BlockConsensusItf) error
	ValidateProofOfWork(block BlockConsensusItf) bool
}
