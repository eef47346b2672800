package arbitrage

import (
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionLedger(t *testing.T) {
	s, err := NewScanSession(10)
	require.NoError(t, err)

	fp := common.HexToHash("0x01")
	assert.False(t, s.Seen(fp))
	assert.False(t, s.Observe(fp))
	assert.True(t, s.Seen(fp))
	assert.True(t, s.Observe(fp))
	assert.Equal(t, 1, s.Len())

	other := common.HexToHash("0x02")
	s.Record(other)
	assert.True(t, s.Seen(other))
	assert.Equal(t, 2, s.Len())
}

func TestSessionLedgerIsBounded(t *testing.T) {
	s, err := NewScanSession(2)
	require.NoError(t, err)

	s.Record(common.HexToHash("0x01"))
	s.Record(common.HexToHash("0x02"))
	s.Record(common.HexToHash("0x03"))

	assert.Equal(t, 2, s.Len())
	// the oldest fingerprint is evicted and may be evaluated again
	assert.False(t, s.Seen(common.HexToHash("0x01")))
	assert.True(t, s.Seen(common.HexToHash("0x03")))
}

func TestSessionLatch(t *testing.T) {
	s, err := NewScanSession(0)
	require.NoError(t, err)
	assert.False(t, s.Committed())

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.Commit() {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.True(t, s.Committed())
	assert.False(t, s.Commit())

	s.Release()
	assert.False(t, s.Committed())
	assert.True(t, s.Commit())
}
