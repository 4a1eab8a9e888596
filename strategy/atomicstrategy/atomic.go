// Package atomicstrategy implements the multi-threaded counter-based
// reference Strategy: a pair of atomic reader counts and an atomic
// "which cell is front" flag. Unlike strategy/flash, the writer never
// waits on a wake signal here, it busy-polls the target cell's reader
// count, which is enough to exercise the Strategy contract without any
// reader registry at all.
package atomicstrategy

import (
	"sync/atomic"

	"github.com/go-dbuf/dbuf/strategy"
)

// maxReaderCount bounds the reader counter the way the original bounds
// its u64 counter, to turn a runaway double-release or counter leak into
// an immediate panic instead of silent wraparound.
const maxReaderCount = 1<<63 - 1

type writerState struct {
	numReaders [2]atomic.Int64
	which      atomic.Bool
}

// Strategy is the lock-free counter-based reference implementation.
type Strategy struct {
	w *writerState
}

// New returns a Strategy with no writer id created yet.
func New() *Strategy { return &Strategy{} }

var _ strategy.BlockingStrategy = (*Strategy)(nil)

func (s *Strategy) CreateWriterID() strategy.WriterID {
	s.w = &writerState{}
	return strategy.NewWriterID(s.w)
}

func (s *Strategy) CreateReaderIDFromWriter(id strategy.WriterID) strategy.ReaderID {
	return strategy.NewReaderID(id.Value().(*writerState))
}

func (s *Strategy) CreateReaderIDFromReader(id strategy.ReaderID) strategy.ReaderID {
	return strategy.NewReaderID(id.Value().(*writerState))
}

func (s *Strategy) CreateInvalidReaderID() strategy.ReaderID {
	return strategy.NewReaderID((*writerState)(nil))
}

func (s *Strategy) IsSwappedWriter(id strategy.WriterID) bool {
	// Relaxed with respect to other writers is fine: the Strategy
	// contract guarantees exactly one live WriterID, so there is never
	// a concurrent writer to race against here.
	return id.Value().(*writerState).which.Load()
}

func (s *Strategy) IsSwapped(_ strategy.ReaderID, g strategy.ReadGuard) bool {
	return g.Value().(bool)
}

func (s *Strategy) TryStartSwap(id strategy.WriterID) (strategy.Swap, error) {
	w := id.Value().(*writerState)
	next := !w.which.Load()
	w.which.Store(next)
	return strategy.NewSwap(next), nil
}

func (s *Strategy) IsSwapFinished(id strategy.WriterID, sw strategy.Swap) bool {
	w := id.Value().(*writerState)
	stale := !sw.Value().(bool)
	return w.numReaders[boolIndex(stale)].Load() == 0
}

func (s *Strategy) FinishSwap(id strategy.WriterID, sw strategy.Swap) {
	for !s.IsSwapFinished(id, sw) {
	}
}

func (s *Strategy) AcquireReadGuard(id strategy.ReaderID) strategy.ReadGuard {
	w := id.Value().(*writerState)
	if w == nil {
		return strategy.NewReadGuard(false)
	}
	for {
		front := w.which.Load()
		idx := boolIndex(front)
		// A negative count (wraparound or runaway releases) reads as a
		// value above maxReaderCount once viewed as unsigned.
		if uint64(w.numReaders[idx].Add(1)) > maxReaderCount {
			panic("atomicstrategy: reader count overflow")
		}
		// Re-check the flag: if a swap flipped it in between, the writer
		// may already have seen this cell's count at zero, so retry.
		if w.which.Load() == front {
			return strategy.NewReadGuard(front)
		}
		w.numReaders[idx].Add(-1)
	}
}

func (s *Strategy) ReleaseReadGuard(id strategy.ReaderID, g strategy.ReadGuard) {
	w := id.Value().(*writerState)
	if w == nil {
		return
	}
	w.numReaders[boolIndex(g.Value().(bool))].Add(-1)
}

func boolIndex(b bool) int {
	if b {
		return 1
	}
	return 0
}
