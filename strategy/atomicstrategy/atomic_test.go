package atomicstrategy

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-dbuf/dbuf/strategy"
)

func TestSwapWaitsForResidualReader(t *testing.T) {
	s := New()
	wid := s.CreateWriterID()
	rid := s.CreateReaderIDFromWriter(wid)

	g := s.AcquireReadGuard(rid)
	sw, err := s.TryStartSwap(wid)
	require.NoError(t, err)
	assert.False(t, s.IsSwapFinished(wid, sw))

	s.ReleaseReadGuard(rid, g)
	assert.True(t, s.IsSwapFinished(wid, sw))
}

func TestFinishSwapBlocksUntilRelease(t *testing.T) {
	s := New()
	wid := s.CreateWriterID()
	rid := s.CreateReaderIDFromWriter(wid)

	g := s.AcquireReadGuard(rid)
	sw, err := s.TryStartSwap(wid)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		s.FinishSwap(wid, sw)
		close(done)
	}()
	s.ReleaseReadGuard(rid, g)
	<-done
}

func TestConcurrentReadersDoNotRace(t *testing.T) {
	s := New()
	wid := s.CreateWriterID()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rid := s.CreateReaderIDFromWriter(wid)
			for j := 0; j < 100; j++ {
				g := s.AcquireReadGuard(rid)
				s.ReleaseReadGuard(rid, g)
			}
		}()
	}
	wg.Wait()
}

var _ strategy.BlockingStrategy = New()
