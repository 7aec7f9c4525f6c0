package core

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"

	"powledger/crypto"
	"powledger/interfaces"
	"powledger/metrics"

	"github.com/holiman/uint256"
)

// cancelCheckInterval is how many nonces the sequential search tries between
// context checks.
const cancelCheckInterval = 1 << 10

// Block is one ledger entry. Only Nonce and Hash change during mining.
type Block struct {
	Index         uint64
	Timestamp     uint64 // milliseconds since the Unix epoch
	Hash          [32]byte
	PrevBlockHash [32]byte
	Nonce         uint64
	Payload       []byte
	Difficulty    uint256.Int

	hasher crypto.Hasher
}

// NewBlock builds a block with a zeroed hash. No validation is performed;
// that is the chain's job.
func NewBlock(index, timestamp uint64, prevBlockHash [32]byte, nonce uint64, payload []byte, difficulty uint256.Int) *Block {
	return &Block{
		Index:         index,
		Timestamp:     timestamp,
		Hash:          crypto.ZeroHash,
		PrevBlockHash: prevBlockHash,
		Nonce:         nonce,
		Payload:       payload,
		Difficulty:    difficulty,
	}
}

// WithHasher sets the digest function and returns b. A nil hasher means SHA-256.
func (b *Block) WithHasher(h crypto.Hasher) *Block {
	b.hasher = h
	return b
}

// Bytes returns the canonical serialization:
// index u64 | timestamp u64 | prev hash | nonce u64 | payload | difficulty u128,
// integers little-endian.
func (b *Block) Bytes() []byte {
	buf := make([]byte, 0, 8+8+32+8+len(b.Payload)+16)

	var tmp [16]byte
	binary.LittleEndian.PutUint64(tmp[:8], b.Index)
	buf = append(buf, tmp[:8]...)
	binary.LittleEndian.PutUint64(tmp[:8], b.Timestamp)
	buf = append(buf, tmp[:8]...)

	buf = append(buf, b.PrevBlockHash[:]...)

	binary.LittleEndian.PutUint64(tmp[:8], b.Nonce)
	buf = append(buf, tmp[:8]...)

	buf = append(buf, b.Payload...)

	putDifficulty(tmp[:], &b.Difficulty)
	buf = append(buf, tmp[:]...)
	return buf
}

// CalculateHash hashes Bytes() without touching the stored Hash field.
func (b *Block) CalculateHash() [32]byte {
	if b.hasher == nil {
		return crypto.Sha256Hash(b.Bytes())
	}
	return b.hasher(b.Bytes())
}

// Mine searches nonces from 0 upwards, inclusive of math.MaxUint64, and
// commits the first one whose digest meets the difficulty. It returns false
// when the whole nonce space was tried without success; Hash is then left zero.
func (b *Block) Mine() bool {
	return b.mineRange(0, math.MaxUint64)
}

func (b *Block) mineRange(first, last uint64) bool {
	found, _ := b.mineRangeContext(context.Background(), first, last)
	return found
}

// mineRangeContext is mineRange polling ctx every cancelCheckInterval
// attempts. On cancellation Hash stays zero and ctx.Err() is returned.
func (b *Block) mineRangeContext(ctx context.Context, first, last uint64) (bool, error) {
	b.Hash = crypto.ZeroHash
	if b.Difficulty.IsZero() {
		// Tidak ada hash yang lebih kecil dari nol.
		return false, nil
	}

	var attempts uint64
	defer func() { metrics.GetMetrics().AddHashes(attempts) }()

	for nonce := first; ; nonce++ {
		if (nonce-first)%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return false, err
			}
		}
		b.Nonce = nonce
		hash := b.CalculateHash()
		attempts++
		if CheckDifficulty(hash, &b.Difficulty) {
			b.Hash = hash
			return true, nil
		}
		if nonce == last {
			return false, nil
		}
	}
}

// IsMined reports whether a digest has been committed.
func (b *Block) IsMined() bool {
	return b.Hash != crypto.ZeroHash
}

// Clone returns a deep copy, including the digest function.
func (b *Block) Clone() *Block {
	c := *b
	c.Payload = append([]byte(nil), b.Payload...)
	return &c
}

// interfaces.BlockConsensusItf
func (b *Block) GetNonce() uint64           { return b.Nonce }
func (b *Block) SetNonce(n uint64)          { b.Nonce = n }
func (b *Block) GetHash() [32]byte          { return b.Hash }
func (b *Block) SetHash(h [32]byte)         { b.Hash = h }
func (b *Block) GetDifficulty() uint256.Int { return b.Difficulty }

func (b *Block) Copy() interfaces.BlockConsensusItf {
	return b.Clone()
}

func (b *Block) MeetsDifficulty(hash [32]byte) bool {
	return CheckDifficulty(hash, &b.Difficulty)
}

type blockJSON struct {
	Index         uint64 `json:"index"`
	Timestamp     uint64 `json:"timestamp"`
	Hash          string `json:"hash"`
	PrevBlockHash string `json:"prevBlockHash"`
	Nonce         uint64 `json:"nonce"`
	Payload       string `json:"payload"`
	Difficulty    string `json:"difficulty"`
}

func (b *Block) MarshalJSON() ([]byte, error) {
	return json.Marshal(blockJSON{
		Index:         b.Index,
		Timestamp:     b.Timestamp,
		Hash:          crypto.Hex(b.Hash),
		PrevBlockHash: crypto.Hex(b.PrevBlockHash),
		Nonce:         b.Nonce,
		Payload:       string(b.Payload),
		Difficulty:    FormatDifficulty(&b.Difficulty),
	})
}

// ToJSON serializes the block to JSON.
func (b *Block) ToJSON() ([]byte, error) {
	return json.Marshal(b)
}

func (b *Block) String() string {
	return fmt.Sprintf("Block[%d]: %s at: %d with: %q nonce: %d difficulty: %s prev: %s",
		b.Index, crypto.Hex(b.Hash), b.Timestamp, b.Payload, b.Nonce,
		FormatDifficulty(&b.Difficulty), crypto.Hex(b.PrevBlockHash))
}
