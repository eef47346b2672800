package arbitrage

import (
	"fmt"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru"
)

const DefaultLedgerCapacity = 100000

// ScanSession is the state that outlives a single scan cycle: the ledger of
// order fingerprints already evaluated and the latch that is set once an
// opportunity has been committed to.
//
// The ledger is bounded. Once capacity is reached the least recently observed
// fingerprints are evicted and those orders become eligible again.
type ScanSession struct {
	ledger    *lru.Cache
	committed atomic.Bool
}

func NewScanSession(capacity int) (*ScanSession, error) {
	if capacity <= 0 {
		capacity = DefaultLedgerCapacity
	}
	cache, err := lru.New(capacity)
	if err != nil {
		return nil, fmt.Errorf("failed to create dedup ledger: %w", err)
	}
	return &ScanSession{ledger: cache}, nil
}

// Seen reports whether fp is in the ledger without refreshing it.
func (s *ScanSession) Seen(fp common.Hash) bool {
	return s.ledger.Contains(fp)
}

// Record adds fp to the ledger.
func (s *ScanSession) Record(fp common.Hash) {
	s.ledger.Add(fp, struct{}{})
}

// Observe records fp and reports whether it had been recorded before.
func (s *ScanSession) Observe(fp common.Hash) bool {
	seen, _ := s.ledger.ContainsOrAdd(fp, struct{}{})
	return seen
}

// Len is the number of fingerprints currently held.
func (s *ScanSession) Len() int {
	return s.ledger.Len()
}

func (s *ScanSession) Committed() bool {
	return s.committed.Load()
}

// Commit sets the latch. It returns true only for the call that set it.
func (s *ScanSession) Commit() bool {
	return s.committed.CompareAndSwap(false, true)
}

// Release clears the latch after a committed trade could not be submitted.
func (s *ScanSession) Release() {
	s.committed.Store(false)
}
