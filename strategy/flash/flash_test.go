package flash

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-dbuf/dbuf/strategy"
)

func TestSwapFinishesImmediatelyWithNoReaders(t *testing.T) {
	s := New()
	wid := s.CreateWriterID()
	sw, err := s.TryStartSwap(wid)
	require.NoError(t, err)
	assert.True(t, s.IsSwapFinished(wid, sw))
}

func TestSwapWaitsForActiveReader(t *testing.T) {
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

func TestIdleReaderDoesNotBlockSwap(t *testing.T) {
	s := New()
	wid := s.CreateWriterID()
	rid := s.CreateReaderIDFromWriter(wid)
	g := s.AcquireReadGuard(rid)
	s.ReleaseReadGuard(rid, g)

	sw, err := s.TryStartSwap(wid)
	require.NoError(t, err)
	assert.True(t, s.IsSwapFinished(wid, sw))
}

func TestFinishSwapBlocksThenWakes(t *testing.T) {
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

	select {
	case <-done:
		t.Fatal("FinishSwap returned before the residual reader released")
	case <-time.After(20 * time.Millisecond):
	}

	s.ReleaseReadGuard(rid, g)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("FinishSwap never woke after release")
	}
}

func TestRegisterNotifyFiresOnRelease(t *testing.T) {
	s := NewAsync()
	wid := s.CreateWriterID()
	rid := s.CreateReaderIDFromWriter(wid)
	g := s.AcquireReadGuard(rid)
	sw, err := s.TryStartSwap(wid)
	require.NoError(t, err)

	fired := false
	already := s.RegisterNotify(wid, sw, func() { fired = true })
	require.False(t, already)

	s.ReleaseReadGuard(rid, g)
	assert.True(t, fired)
}

func TestClonedReaderIsIndependentlyTracked(t *testing.T) {
	s := New()
	wid := s.CreateWriterID()
	rid := s.CreateReaderIDFromWriter(wid)
	clone := s.CreateReaderIDFromReader(rid)

	g := s.AcquireReadGuard(clone)
	sw, err := s.TryStartSwap(wid)
	require.NoError(t, err)
	assert.False(t, s.IsSwapFinished(wid, sw))
	s.ReleaseReadGuard(clone, g)
	assert.True(t, s.IsSwapFinished(wid, sw))
}

func TestInvalidReaderIDNeverBlocksSwap(t *testing.T) {
	s := New()
	wid := s.CreateWriterID()
	rid := s.CreateInvalidReaderID()
	g := s.AcquireReadGuard(rid)
	sw, err := s.TryStartSwap(wid)
	require.NoError(t, err)
	s.ReleaseReadGuard(rid, g)
	assert.True(t, s.IsSwapFinished(wid, sw))
}

func TestHazardSwapWaitsForActiveReader(t *testing.T) {
	s := NewHazard()
	wid := s.CreateWriterID()
	rid := s.CreateReaderIDFromWriter(wid)

	g := s.AcquireReadGuard(rid)
	sw, err := s.TryStartSwap(wid)
	require.NoError(t, err)
	assert.False(t, s.IsSwapFinished(wid, sw))

	s.ReleaseReadGuard(rid, g)
	assert.True(t, s.IsSwapFinished(wid, sw))
}

func TestHazardSlotReuseAfterRelease(t *testing.T) {
	s := NewHazard()
	wid := s.CreateWriterID()
	rid := s.CreateReaderIDFromWriter(wid)
	s.Release(rid)

	rid2 := s.CreateReaderIDFromWriter(wid)
	g := s.AcquireReadGuard(rid2)
	sw, err := s.TryStartSwap(wid)
	require.NoError(t, err)
	assert.False(t, s.IsSwapFinished(wid, sw))
	s.ReleaseReadGuard(rid2, g)
}

var (
	_ strategy.BlockingStrategy = New()
	_ strategy.AsyncStrategy    = New()
	_ strategy.BlockingStrategy = NewHazard()
	_ strategy.AsyncStrategy    = NewHazard()
)
