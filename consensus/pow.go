package consensus

import (
	"context"
	"math"
	"runtime"

	"powledger/core"
	"powledger/interfaces"
	"powledger/metrics"

	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultBatchSize = 1 << 14
	// Workers poll for cancellation every cancelCheckInterval hashes.
	cancelCheckInterval = 1 << 10
)

// ProofOfWork mines by splitting the nonce space into rounds of
// workers*batchSize consecutive nonces, one batch per goroutine. The lowest
// satisfying nonce of the first successful round wins, so the outcome equals
// a sequential search from zero.
type ProofOfWork struct {
	workers   int
	batchSize uint64
}

// NewProofOfWork creates a new PoW consensus engine. Non-positive values
// select runtime.NumCPU() workers and DefaultBatchSize.
func NewProofOfWork(workers int, batchSize uint64) *ProofOfWork {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if batchSize == 0 {
		batchSize = DefaultBatchSize
	}
	return &ProofOfWork{workers: workers, batchSize: batchSize}
}

func (pow *ProofOfWork) Workers() int { return pow.workers }

type nonceSpan struct {
	first, last uint64
}

type spanResult struct {
	nonce uint64
	hash  [32]byte
	found bool
}

// MineBlock performs proof of work mining on a block. It returns
// core.ErrNonceSpaceExhausted when no nonce satisfies the difficulty, or the
// context's error when cancelled; in both cases the hash is left zero.
func (pow *ProofOfWork) MineBlock(ctx context.Context, block interfaces.BlockConsensusItf) error {
	block.SetHash([32]byte{})
	difficulty := block.GetDifficulty()
	if difficulty.IsZero() {
		return core.ErrNonceSpaceExhausted
	}

	hashCount := atomic.NewUint64(0)
	defer func() { metrics.GetMetrics().AddHashes(hashCount.Load()) }()

	base := uint64(0)
	for {
		spans, final := pow.spans(base)
		res, err := pow.searchRound(ctx, block, spans, hashCount)
		if err != nil {
			return err
		}
		if res.found {
			block.SetNonce(res.nonce)
			block.SetHash(res.hash)
			return nil
		}
		if final {
			block.SetNonce(math.MaxUint64)
			return core.ErrNonceSpaceExhausted
		}
		base = spans[len(spans)-1].last + 1
	}
}

// spans splits the round starting at base; final is true when the round
// reaches math.MaxUint64.
func (pow *ProofOfWork) spans(base uint64) ([]nonceSpan, bool) {
	out := make([]nonceSpan, 0, pow.workers)
	start := base
	for w := 0; w < pow.workers; w++ {
		end := start + pow.batchSize - 1
		if end < start {
			end = math.MaxUint64
		}
		out = append(out, nonceSpan{first: start, last: end})
		if end == math.MaxUint64 {
			return out, true
		}
		start = end + 1
	}
	return out, false
}

func (pow *ProofOfWork) searchRound(ctx context.Context, block interfaces.BlockConsensusItf, spans []nonceSpan, hashCount *atomic.Uint64) (spanResult, error) {
	results := make([]spanResult, len(spans))
	// Index of the lowest span with a solution so far; spans above it can stop early.
	best := atomic.NewInt64(int64(len(spans)))

	g, gctx := errgroup.WithContext(ctx)
	for i, sp := range spans {
		i, sp := i, sp
		g.Go(func() error {
			candidate := block.Copy()
			var n uint64
			defer func() { hashCount.Add(n) }()

			for nonce := sp.first; ; nonce++ {
				if (nonce-sp.first)%cancelCheckInterval == 0 {
					if err := gctx.Err(); err != nil {
						return err
					}
					if best.Load() < int64(i) {
						return nil
					}
				}
				candidate.SetNonce(nonce)
				hash := candidate.CalculateHash()
				n++
				if candidate.MeetsDifficulty(hash) {
					results[i] = spanResult{nonce: nonce, hash: hash, found: true}
					for {
						cur := best.Load()
						if cur <= int64(i) || best.CAS(cur, int64(i)) {
							break
						}
					}
					return nil
				}
				if nonce == sp.last {
					return nil
				}
			}
		})
	}
	if err := g.Wait(); err != nil {
		return spanResult{}, err
	}

	for _, r := range results {
		if r.found {
			return r, nil
		}
	}
	return spanResult{}, nil
}

// ValidateProofOfWork validates the proof of work for a block: the stored
// hash must be set, match the block's current contents and meet its difficulty.
func (pow *ProofOfWork) ValidateProofOfWork(block interfaces.BlockConsensusItf) bool {
	currentHash := block.GetHash()
	if currentHash == ([32]byte{}) { // Jika hash belum di-set, tidak valid
		return false
	}
	if block.CalculateHash() != currentHash {
		return false
	}
	return block.MeetsDifficulty(currentHash)
}
