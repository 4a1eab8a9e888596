// Package simple implements the single-threaded reference Strategy: no
// atomics, no locking, a TryStartSwap that fails outright if the target
// cell still has a reader on it instead of waiting for one.
//
// It exists to exercise the Strategy contract with the simplest possible
// bookkeeping, and as the baseline every concurrent strategy's behavior
// is checked against for single-goroutine use.
package simple

import (
	"errors"

	"github.com/go-dbuf/dbuf/internal/park"
	"github.com/go-dbuf/dbuf/strategy"
)

// ErrReaderPresent is returned by TryStartSwap when the cell about to
// become the new back cell still has live readers on it.
var ErrReaderPresent = errors.New("simple: reader present on target cell")

type writerState struct {
	numReaders [2]int
	swapped    bool
}

// Strategy is the non-atomic reference implementation.
type Strategy struct {
	w *writerState
}

// New returns a Strategy with no writer id created yet.
func New() *Strategy { return &Strategy{} }

var _ strategy.Strategy = (*Strategy)(nil)

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
	return id.Value().(*writerState).swapped
}

func (s *Strategy) IsSwapped(_ strategy.ReaderID, g strategy.ReadGuard) bool {
	return g.Value().(bool)
}

func (s *Strategy) TryStartSwap(id strategy.WriterID) (strategy.Swap, error) {
	w := id.Value().(*writerState)
	// The cell about to become the new back cell is the current front
	// cell: it must have no readers left before the writer can mutate it.
	if w.numReaders[boolIndex(w.swapped)] != 0 {
		return strategy.Swap{}, ErrReaderPresent
	}
	w.swapped = !w.swapped
	return strategy.NewSwap(struct{}{}), nil
}

func (s *Strategy) IsSwapFinished(strategy.WriterID, strategy.Swap) bool {
	return true
}

func (s *Strategy) AcquireReadGuard(id strategy.ReaderID) strategy.ReadGuard {
	w := id.Value().(*writerState)
	if w == nil {
		return strategy.NewReadGuard(false)
	}
	w.numReaders[boolIndex(w.swapped)]++
	return strategy.NewReadGuard(w.swapped)
}

func (s *Strategy) ReleaseReadGuard(id strategy.ReaderID, g strategy.ReadGuard) {
	w := id.Value().(*writerState)
	if w == nil {
		return
	}
	w.numReaders[boolIndex(g.Value().(bool))]--
}

func boolIndex(b bool) int {
	if b {
		return 1
	}
	return 0
}

// AsyncStrategy is SimpleAsyncStrategy from the original: TryStartSwap is
// infallible (it always toggles), and a single NotifyParker registration
// is woken once the reader count on the newly-stale cell drops to zero.
type AsyncStrategy struct {
	w      *asyncWriterState
	notify park.NotifyParker
}

type asyncWriterState struct {
	numReaders [2]int
	swapped    bool
}

// NewAsync returns an AsyncStrategy with no writer id created yet.
func NewAsync() *AsyncStrategy { return &AsyncStrategy{} }

var _ strategy.AsyncStrategy = (*AsyncStrategy)(nil)

func (s *AsyncStrategy) CreateWriterID() strategy.WriterID {
	s.w = &asyncWriterState{}
	return strategy.NewWriterID(s.w)
}

func (s *AsyncStrategy) CreateReaderIDFromWriter(id strategy.WriterID) strategy.ReaderID {
	return strategy.NewReaderID(id.Value().(*asyncWriterState))
}

func (s *AsyncStrategy) CreateReaderIDFromReader(id strategy.ReaderID) strategy.ReaderID {
	return strategy.NewReaderID(id.Value().(*asyncWriterState))
}

func (s *AsyncStrategy) CreateInvalidReaderID() strategy.ReaderID {
	return strategy.NewReaderID((*asyncWriterState)(nil))
}

func (s *AsyncStrategy) IsSwappedWriter(id strategy.WriterID) bool {
	return id.Value().(*asyncWriterState).swapped
}

func (s *AsyncStrategy) IsSwapped(_ strategy.ReaderID, g strategy.ReadGuard) bool {
	return g.Value().(bool)
}

func (s *AsyncStrategy) TryStartSwap(id strategy.WriterID) (strategy.Swap, error) {
	w := id.Value().(*asyncWriterState)
	w.swapped = !w.swapped
	return strategy.NewSwap(w.swapped), nil
}

func (s *AsyncStrategy) IsSwapFinished(id strategy.WriterID, sw strategy.Swap) bool {
	w := id.Value().(*asyncWriterState)
	return w.numReaders[boolIndex(!sw.Value().(bool))] == 0
}

func (s *AsyncStrategy) FinishSwap(id strategy.WriterID, sw strategy.Swap) {
	for !s.IsSwapFinished(id, sw) {
	}
}

func (s *AsyncStrategy) RegisterNotify(id strategy.WriterID, sw strategy.Swap, notify func()) bool {
	if s.IsSwapFinished(id, sw) {
		return true
	}
	s.notify.Set(notify)
	return false
}

func (s *AsyncStrategy) AcquireReadGuard(id strategy.ReaderID) strategy.ReadGuard {
	w := id.Value().(*asyncWriterState)
	if w == nil {
		return strategy.NewReadGuard(false)
	}
	w.numReaders[boolIndex(w.swapped)]++
	return strategy.NewReadGuard(w.swapped)
}

func (s *AsyncStrategy) ReleaseReadGuard(id strategy.ReaderID, g strategy.ReadGuard) {
	w := id.Value().(*asyncWriterState)
	if w == nil {
		return
	}
	swapped := g.Value().(bool)
	w.numReaders[boolIndex(swapped)]--
	if w.numReaders[boolIndex(swapped)] == 0 {
		s.notify.Wake()
	}
}
