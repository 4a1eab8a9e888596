// Package evmap implements the per-reader epoch Strategy: every reader
// owns a monotonically increasing counter that is odd while a read is in
// progress and even otherwise. Starting a swap snapshots every reader's
// counter; the swap is finished once each snapshotted counter has either
// moved (the read it was caught mid-flight of has ended) or was already
// even (the reader was not reading at all at snapshot time).
//
// Unlike strategy/flash, AcquireReadGuard and ReleaseReadGuard touch only
// the calling reader's own epoch counter, so the common read path is
// entirely lock-free; a mutex only guards the registry of epochs the
// writer consults when starting a swap, mirroring the original's
// Mutex<Vec<Arc<Epoch>>> registration queue.
package evmap

import (
	"sync"
	"sync/atomic"
	"weak"

	"github.com/go-dbuf/dbuf/internal/hazard"
	"github.com/go-dbuf/dbuf/internal/park"
	"github.com/go-dbuf/dbuf/strategy"
)

// Epoch is a single reader's read-in-progress counter: odd while a read
// guard is held, even otherwise.
type Epoch struct {
	current atomic.Uint64
}

func epochFinished(e *Epoch, last uint64) bool {
	if last%2 == 0 {
		return true
	}
	return e.current.Load() != last
}

type pendingEpoch struct {
	epoch weak.Pointer[Epoch]
	last  uint64
}

// Strategy is the weak-pointer-registry EvMap strategy.
type Strategy struct {
	regMu   sync.Mutex
	epochs  []weak.Pointer[Epoch]
	swapped atomic.Bool
	pending []pendingEpoch
	parker  park.AdaptiveParker
}

var (
	_ strategy.BlockingStrategy = (*Strategy)(nil)
	_ strategy.AsyncStrategy    = (*Strategy)(nil)
)

// New returns a Strategy usable with both the blocking and async writer
// APIs.
func New() *Strategy { return &Strategy{parker: *park.NewAdaptiveParker()} }

// NewBlocking is an alias for New.
func NewBlocking() *Strategy { return New() }

// NewAsync is an alias for New.
func NewAsync() *Strategy { return New() }

// NewAdaptive is an alias for New.
func NewAdaptive() *Strategy { return New() }

func (s *Strategy) CreateWriterID() strategy.WriterID {
	return strategy.NewWriterID(s)
}

func (s *Strategy) newReaderID() strategy.ReaderID {
	e := &Epoch{}
	s.regMu.Lock()
	s.epochs = append(s.epochs, weak.Make(e))
	s.regMu.Unlock()
	return strategy.NewReaderID(e)
}

func (s *Strategy) CreateReaderIDFromWriter(strategy.WriterID) strategy.ReaderID {
	return s.newReaderID()
}

func (s *Strategy) CreateReaderIDFromReader(strategy.ReaderID) strategy.ReaderID {
	return s.newReaderID()
}

func (s *Strategy) CreateInvalidReaderID() strategy.ReaderID {
	return strategy.NewReaderID((*Epoch)(nil))
}

func (s *Strategy) IsSwappedWriter(strategy.WriterID) bool {
	return s.swapped.Load()
}

func (s *Strategy) IsSwapped(_ strategy.ReaderID, g strategy.ReadGuard) bool {
	return g.Value().(bool)
}

func (s *Strategy) TryStartSwap(strategy.WriterID) (strategy.Swap, error) {
	s.swapped.Store(!s.swapped.Load())

	s.regMu.Lock()
	live := s.epochs[:0]
	pending := make([]pendingEpoch, 0, len(s.epochs))
	for _, wp := range s.epochs {
		e := wp.Value()
		if e == nil {
			continue
		}
		live = append(live, wp)
		last := e.current.Load()
		if last%2 != 0 {
			pending = append(pending, pendingEpoch{epoch: wp, last: last})
		}
	}
	s.epochs = live
	s.regMu.Unlock()

	s.pending = pending
	return strategy.NewSwap(struct{}{}), nil
}

func (s *Strategy) IsSwapFinished(strategy.WriterID, strategy.Swap) bool {
	remaining := s.pending[:0]
	for _, p := range s.pending {
		e := p.epoch.Value()
		if e == nil {
			continue
		}
		if !epochFinished(e, p.last) {
			remaining = append(remaining, p)
		}
	}
	s.pending = remaining
	return len(s.pending) == 0
}

func (s *Strategy) FinishSwap(wid strategy.WriterID, sw strategy.Swap) {
	for !s.IsSwapFinished(wid, sw) {
		s.parker.Thread.Park()
	}
}

func (s *Strategy) RegisterNotify(wid strategy.WriterID, sw strategy.Swap, notify func()) bool {
	if s.IsSwapFinished(wid, sw) {
		return true
	}
	s.parker.Notify.Set(notify)
	if s.IsSwapFinished(wid, sw) {
		s.parker.Notify.Clear()
		return true
	}
	return false
}

func (s *Strategy) AcquireReadGuard(id strategy.ReaderID) strategy.ReadGuard {
	e, _ := id.Value().(*Epoch)
	if e == nil {
		return strategy.NewReadGuard(s.swapped.Load())
	}
	// Bump the epoch before reading the parity, so a swap that flips the
	// parity after this load is guaranteed to snapshot an odd epoch.
	e.current.Add(1)
	return strategy.NewReadGuard(s.swapped.Load())
}

func (s *Strategy) ReleaseReadGuard(id strategy.ReaderID, _ strategy.ReadGuard) {
	e, _ := id.Value().(*Epoch)
	if e == nil {
		return
	}
	e.current.Add(1)
	// Unlike Flash's conditional wake, EvMap always wakes on release: a
	// single reader's release can unblock a swap even while other
	// readers remain active, and the cost of checking is another atomic
	// load per pending epoch, which the writer is about to do anyway.
	s.parker.Wake()
}

// hazardEpochSlot is the value type stored in the hazard pool.
type hazardEpochSlot struct {
	owned   bool
	current atomic.Uint64
}

// HazardStrategy is the hazard-allocator-backed EvMap strategy: epoch
// slots are acquired from an internal/hazard.Pool instead of a
// weak-pointer slice.
type HazardStrategy struct {
	pool    *hazard.Pool[hazardEpochSlot]
	swapped atomic.Bool
	pending []hazardPendingEpoch
	mu      sync.Mutex
	parker  park.AdaptiveParker
}

type hazardPendingEpoch struct {
	slot *hazardEpochSlot
	last uint64
}

var (
	_ strategy.BlockingStrategy = (*HazardStrategy)(nil)
	_ strategy.AsyncStrategy    = (*HazardStrategy)(nil)
)

// NewHazard returns a HazardStrategy usable with both the blocking and
// async writer APIs.
func NewHazard() *HazardStrategy {
	return &HazardStrategy{pool: hazard.NewPool[hazardEpochSlot](), parker: *park.NewAdaptiveParker()}
}

// NewHazardBlocking is an alias for NewHazard.
func NewHazardBlocking() *HazardStrategy { return NewHazard() }

// NewHazardAsync is an alias for NewHazard.
func NewHazardAsync() *HazardStrategy { return NewHazard() }

// NewHazardAdaptive is an alias for NewHazard.
func NewHazardAdaptive() *HazardStrategy { return NewHazard() }

type hazardEpochID struct {
	guard *hazard.Guard[hazardEpochSlot]
}

func (s *HazardStrategy) CreateWriterID() strategy.WriterID {
	return strategy.NewWriterID(s)
}

func (s *HazardStrategy) newReaderID() strategy.ReaderID {
	g := s.pool.Acquire(func() hazardEpochSlot { return hazardEpochSlot{} })
	s.mu.Lock()
	g.Value().owned = true
	s.mu.Unlock()
	return strategy.NewReaderID(&hazardEpochID{guard: g})
}

func (s *HazardStrategy) CreateReaderIDFromWriter(strategy.WriterID) strategy.ReaderID {
	return s.newReaderID()
}

func (s *HazardStrategy) CreateReaderIDFromReader(strategy.ReaderID) strategy.ReaderID {
	return s.newReaderID()
}

func (s *HazardStrategy) CreateInvalidReaderID() strategy.ReaderID {
	return strategy.NewReaderID((*hazardEpochID)(nil))
}

func (s *HazardStrategy) IsSwappedWriter(strategy.WriterID) bool {
	return s.swapped.Load()
}

func (s *HazardStrategy) IsSwapped(_ strategy.ReaderID, g strategy.ReadGuard) bool {
	return g.Value().(bool)
}

func (s *HazardStrategy) TryStartSwap(strategy.WriterID) (strategy.Swap, error) {
	s.swapped.Store(!s.swapped.Load())

	var pending []hazardPendingEpoch
	s.mu.Lock()
	s.pool.All(func(v *hazardEpochSlot) bool {
		if !v.owned {
			return true
		}
		last := v.current.Load()
		if last%2 != 0 {
			pending = append(pending, hazardPendingEpoch{slot: v, last: last})
		}
		return true
	})
	s.mu.Unlock()

	s.pending = pending
	return strategy.NewSwap(struct{}{}), nil
}

func (s *HazardStrategy) IsSwapFinished(strategy.WriterID, strategy.Swap) bool {
	remaining := s.pending[:0]
	for _, p := range s.pending {
		if p.slot.current.Load() == p.last {
			remaining = append(remaining, p)
		}
	}
	s.pending = remaining
	return len(s.pending) == 0
}

func (s *HazardStrategy) FinishSwap(wid strategy.WriterID, sw strategy.Swap) {
	for !s.IsSwapFinished(wid, sw) {
		s.parker.Thread.Park()
	}
}

func (s *HazardStrategy) RegisterNotify(wid strategy.WriterID, sw strategy.Swap, notify func()) bool {
	if s.IsSwapFinished(wid, sw) {
		return true
	}
	s.parker.Notify.Set(notify)
	if s.IsSwapFinished(wid, sw) {
		s.parker.Notify.Clear()
		return true
	}
	return false
}

func (s *HazardStrategy) AcquireReadGuard(id strategy.ReaderID) strategy.ReadGuard {
	rid, _ := id.Value().(*hazardEpochID)
	if rid == nil {
		return strategy.NewReadGuard(s.swapped.Load())
	}
	rid.guard.Value().current.Add(1)
	return strategy.NewReadGuard(s.swapped.Load())
}

func (s *HazardStrategy) ReleaseReadGuard(id strategy.ReaderID, _ strategy.ReadGuard) {
	rid, _ := id.Value().(*hazardEpochID)
	if rid == nil {
		return
	}
	rid.guard.Value().current.Add(1)
	s.parker.Wake()
}

// Release returns rid's pool slot to the pool for reuse.
func (s *HazardStrategy) Release(id strategy.ReaderID) {
	rid, _ := id.Value().(*hazardEpochID)
	if rid == nil {
		return
	}
	s.mu.Lock()
	rid.guard.Value().owned = false
	s.mu.Unlock()
	rid.guard.Release()
}
