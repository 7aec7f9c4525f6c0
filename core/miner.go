package core

import (
	"context"
	"errors"
	"sync"
	"time"

	"powledger/logger"

	"github.com/holiman/uint256"
	"go.uber.org/atomic"
)

var ErrMinerStopped = errors.New("miner is not running")

type mineJob struct {
	ctx        context.Context
	payload    []byte
	difficulty uint256.Int
	result     chan MineResult
	abandoned  atomic.Bool
}

// MineResult is delivered to the submitter once its block has been appended.
type MineResult struct {
	Block Block
	Err   error
}

// Miner owns a Blockchain and appends blocks on a dedicated goroutine, so
// callers are never blocked on mining unless they wait for the result.
// Readers go through View, which holds the chain's read lock; the write lock
// is only taken to append a finished block.
type Miner struct {
	blockchain *Blockchain
	chainMu    sync.RWMutex

	running  bool
	mu       sync.Mutex
	stopChan chan struct{}
	doneChan chan struct{}
	jobs     chan *mineJob
}

func NewMiner(blockchain *Blockchain, queueSize int) *Miner {
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Miner{
		blockchain: blockchain,
		jobs:       make(chan *mineJob, queueSize),
	}
}

func (m *Miner) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		logger.Info("Miner already running.")
		return
	}
	m.running = true
	m.stopChan = make(chan struct{}) // Buat channel baru setiap kali start
	m.doneChan = make(chan struct{})

	logger.Info("Starting miner work loop.")
	go m.loop(m.stopChan, m.doneChan)
}

// Stop signals the work loop and waits until it has exited. A block being
// mined is cancelled and not appended.
func (m *Miner) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		logger.Info("Miner is not running.")
		return
	}
	logger.Info("Stopping miner...")
	close(m.stopChan)
	done := m.doneChan
	m.running = false
	m.mu.Unlock()

	<-done
	logger.Info("Miner stopped.")
}

func (m *Miner) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Submit queues a block for mining and waits for it to be appended.
func (m *Miner) Submit(ctx context.Context, payload []byte, difficulty uint256.Int) (Block, error) {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return Block{}, ErrMinerStopped
	}
	done := m.doneChan
	m.mu.Unlock()

	job := &mineJob{
		ctx:        ctx,
		payload:    append([]byte(nil), payload...),
		difficulty: difficulty,
		result:     make(chan MineResult, 1),
	}

	select {
	case m.jobs <- job:
	case <-ctx.Done():
		return Block{}, ctx.Err()
	case <-done:
		return Block{}, ErrMinerStopped
	}

	select {
	case res := <-job.result:
		return res.Block, res.Err
	case <-ctx.Done():
		job.abandoned.Store(true)
		return Block{}, ctx.Err()
	case <-done:
		job.abandoned.Store(true)
		return Block{}, ErrMinerStopped
	}
}

// View runs fn with read access to the chain.
func (m *Miner) View(fn func(bc *Blockchain)) {
	m.chainMu.RLock()
	defer m.chainMu.RUnlock()
	fn(m.blockchain)
}

func (m *Miner) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-stop:
			logger.Info("Miner stopping work loop.")
			return
		case job := <-m.jobs:
			m.process(job, stop)
		}
	}
}

func (m *Miner) process(job *mineJob, stop <-chan struct{}) {
	if job.abandoned.Load() || job.ctx.Err() != nil {
		logger.Debug("Miner: skipping abandoned job.")
		return
	}

	ctx, cancel := context.WithCancel(job.ctx)
	defer cancel()
	go func() {
		select {
		case <-stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	// Only this goroutine writes the chain, so the block built here is still
	// the successor when the search ends. Readers are not blocked meanwhile.
	m.chainMu.RLock()
	next, err := m.blockchain.nextBlock(job.payload, job.difficulty)
	m.chainMu.RUnlock()

	startTime := time.Now()
	var block Block
	if err == nil {
		mineErr := m.blockchain.mine(ctx, next)
		m.chainMu.Lock()
		block, err = m.blockchain.appendBlock(next, mineErr, time.Since(startTime))
		m.chainMu.Unlock()
	}

	if err != nil {
		logger.Errorf("Miner: Failed to mine block: %v", err)
	} else {
		logger.Infof("Miner: Block %d mined in %v.", block.Index, time.Since(startTime))
	}
	job.result <- MineResult{Block: block, Err: err}
}
