package metrics

import (
	"sync"
	"time"

	"go.uber.org/atomic"
)

// Metrics collects process-wide mining and verification counters.
type Metrics struct {
	blocksMined          atomic.Uint64
	hashesComputed       atomic.Uint64
	exhaustedSearches    atomic.Uint64
	verifications        atomic.Uint64
	verificationFailures atomic.Uint64
	lastBlockTime        atomic.Int64
	startTime            time.Time
}

var (
	instance *Metrics
	once     sync.Once
)

func GetMetrics() *Metrics {
	once.Do(func() {
		instance = &Metrics{startTime: time.Now()}
	})
	return instance
}

func (m *Metrics) IncrementBlockCount() {
	m.blocksMined.Inc()
	m.lastBlockTime.Store(time.Now().Unix())
}

func (m *Metrics) AddHashes(n uint64)  { m.hashesComputed.Add(n) }
func (m *Metrics) IncrementExhausted() { m.exhaustedSearches.Inc() }

func (m *Metrics) RecordVerification(ok bool) {
	m.verifications.Inc()
	if !ok {
		m.verificationFailures.Inc()
	}
}

func (m *Metrics) BlocksMined() uint64    { return m.blocksMined.Load() }
func (m *Metrics) HashesComputed() uint64 { return m.hashesComputed.Load() }

// ToMap returns a JSON-friendly snapshot.
func (m *Metrics) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"blocks_mined":          m.blocksMined.Load(),
		"hashes_computed":       m.hashesComputed.Load(),
		"exhausted_searches":    m.exhaustedSearches.Load(),
		"verifications":         m.verifications.Load(),
		"verification_failures": m.verificationFailures.Load(),
		"last_block_time":       m.lastBlockTime.Load(),
		"uptime_seconds":        int64(time.Since(m.startTime).Seconds()),
	}
}
