// Package flash implements the residual-reader-counted Strategy: a
// writer starts a swap by flipping which cell is current and scanning
// the reader registry once for readers still active on the
// about-to-be-stale cell, then waits only for that residual count to
// drain to zero.
//
// Two registries are provided. Strategy keeps a mutex-guarded slice of
// weak.Pointer[readerSlot] entries, pruning dead ones (readers whose
// Reader handle has been garbage collected) on every swap, the direct
// analogue of the original's Mutex<Vec<Arc<AtomicUsize>>> plus
// Arc::is_unique liveness check. HazardStrategy instead allocates reader
// slots from an internal/hazard.Pool, so a slot is reused instead of
// reclaimed and the registry never needs a liveness scan.
//
// Both registries serialize a swap's reader scan against concurrent
// AcquireReadGuard/ReleaseReadGuard calls with a sync.RWMutex (writer
// takes the exclusive lock; readers take the shared lock), which removes
// the need to replicate the original's fetch_xor parity-dance under
// looser memory ordering: correctness falls out of mutual exclusion
// instead of a hand-rolled happens-before argument.
package flash

import (
	"sync"
	"weak"

	"github.com/go-dbuf/dbuf/internal/hazard"
	"github.com/go-dbuf/dbuf/internal/park"
	"github.com/go-dbuf/dbuf/strategy"
)

type readerSlot struct {
	active bool
	parity bool
}

// Strategy is the weak-pointer-registry Flash strategy.
type Strategy struct {
	mu       sync.RWMutex
	readers  []weak.Pointer[readerSlot]
	swapped  bool
	residual int64
	parker   park.AdaptiveParker
}

var (
	_ strategy.BlockingStrategy = (*Strategy)(nil)
	_ strategy.AsyncStrategy    = (*Strategy)(nil)
)

// New returns a Strategy usable with both the blocking (FinishSwap) and
// async (RegisterNotify) writer APIs. NewBlocking, NewAsync and
// NewAdaptive are aliases kept for symmetry with the original's
// per-parker-type constructors: Go's single AdaptiveParker serves both
// roles, so there is no separate type to select between.
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
	slot := &readerSlot{}
	s.mu.Lock()
	s.readers = append(s.readers, weak.Make(slot))
	s.mu.Unlock()
	return strategy.NewReaderID(slot)
}

func (s *Strategy) CreateReaderIDFromWriter(strategy.WriterID) strategy.ReaderID {
	return s.newReaderID()
}

func (s *Strategy) CreateReaderIDFromReader(strategy.ReaderID) strategy.ReaderID {
	return s.newReaderID()
}

func (s *Strategy) CreateInvalidReaderID() strategy.ReaderID {
	return strategy.NewReaderID((*readerSlot)(nil))
}

func (s *Strategy) IsSwappedWriter(strategy.WriterID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.swapped
}

func (s *Strategy) IsSwapped(_ strategy.ReaderID, g strategy.ReadGuard) bool {
	return g.Value().(bool)
}

func (s *Strategy) TryStartSwap(strategy.WriterID) (strategy.Swap, error) {
	s.mu.Lock()
	s.swapped = !s.swapped

	live := s.readers[:0]
	var residual int64
	for _, wp := range s.readers {
		slot := wp.Value()
		if slot == nil {
			continue
		}
		live = append(live, wp)
		if slot.active {
			residual++
		}
	}
	s.readers = live
	s.residual = residual
	s.mu.Unlock()

	return strategy.NewSwap(struct{}{}), nil
}

func (s *Strategy) setResidual(n int64) {
	s.mu.Lock()
	s.residual = n
	s.mu.Unlock()
}

func (s *Strategy) IsSwapFinished(strategy.WriterID, strategy.Swap) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.residual == 0
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
	slot, _ := id.Value().(*readerSlot)
	if slot == nil {
		return strategy.NewReadGuard(false)
	}
	s.mu.RLock()
	slot.active = true
	slot.parity = s.swapped
	g := strategy.NewReadGuard(s.swapped)
	s.mu.RUnlock()
	return g
}

func (s *Strategy) ReleaseReadGuard(id strategy.ReaderID, g strategy.ReadGuard) {
	slot, _ := id.Value().(*readerSlot)
	if slot == nil {
		return
	}
	s.mu.RLock()
	stale := g.Value().(bool) != s.swapped
	slot.active = false
	s.mu.RUnlock()

	if stale {
		s.mu.Lock()
		s.residual--
		done := s.residual == 0
		s.mu.Unlock()
		if done {
			s.parker.Wake()
		}
	}
}

// hazardSlot is the value type stored in the hazard pool: the same
// active/parity pair as readerSlot, plus whether this pool node is
// currently checked out by a live reader (so a scan can skip unowned
// nodes instead of treating an idle, reusable slot as a residual
// reader).
type hazardSlot struct {
	owned  bool
	active bool
	parity bool
}

// HazardStrategy is the hazard-allocator-backed Flash strategy: reader
// slots are acquired from an internal/hazard.Pool instead of a
// weak-pointer slice. A slot goes back to the pool for reuse only when
// Release is called for its ReaderID; dropping a Reader does not release
// it.
type HazardStrategy struct {
	mu       sync.RWMutex
	pool     *hazard.Pool[hazardSlot]
	swapped  bool
	residual int64
	parker   park.AdaptiveParker
}

var (
	_ strategy.BlockingStrategy = (*HazardStrategy)(nil)
	_ strategy.AsyncStrategy    = (*HazardStrategy)(nil)
)

// NewHazard returns a HazardStrategy usable with both the blocking and
// async writer APIs.
func NewHazard() *HazardStrategy {
	return &HazardStrategy{pool: hazard.NewPool[hazardSlot](), parker: *park.NewAdaptiveParker()}
}

// NewHazardBlocking is an alias for NewHazard.
func NewHazardBlocking() *HazardStrategy { return NewHazard() }

// NewHazardAsync is an alias for NewHazard.
func NewHazardAsync() *HazardStrategy { return NewHazard() }

// NewHazardAdaptive is an alias for NewHazard.
func NewHazardAdaptive() *HazardStrategy { return NewHazard() }

type hazardReaderID struct {
	guard *hazard.Guard[hazardSlot]
}

func (s *HazardStrategy) CreateWriterID() strategy.WriterID {
	return strategy.NewWriterID(s)
}

func (s *HazardStrategy) newReaderID() strategy.ReaderID {
	g := s.pool.Acquire(func() hazardSlot { return hazardSlot{} })
	s.mu.Lock()
	g.Value().owned = true
	s.mu.Unlock()
	return strategy.NewReaderID(&hazardReaderID{guard: g})
}

func (s *HazardStrategy) CreateReaderIDFromWriter(strategy.WriterID) strategy.ReaderID {
	return s.newReaderID()
}

func (s *HazardStrategy) CreateReaderIDFromReader(strategy.ReaderID) strategy.ReaderID {
	return s.newReaderID()
}

func (s *HazardStrategy) CreateInvalidReaderID() strategy.ReaderID {
	return strategy.NewReaderID((*hazardReaderID)(nil))
}

func (s *HazardStrategy) IsSwappedWriter(strategy.WriterID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.swapped
}

func (s *HazardStrategy) IsSwapped(_ strategy.ReaderID, g strategy.ReadGuard) bool {
	return g.Value().(bool)
}

func (s *HazardStrategy) TryStartSwap(strategy.WriterID) (strategy.Swap, error) {
	s.mu.Lock()
	s.swapped = !s.swapped
	var residual int64
	s.pool.All(func(v *hazardSlot) bool {
		if v.owned && v.active {
			residual++
		}
		return true
	})
	s.residual = residual
	s.mu.Unlock()
	return strategy.NewSwap(struct{}{}), nil
}

func (s *HazardStrategy) IsSwapFinished(strategy.WriterID, strategy.Swap) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.residual == 0
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
	rid, _ := id.Value().(*hazardReaderID)
	if rid == nil {
		return strategy.NewReadGuard(false)
	}
	s.mu.RLock()
	rid.guard.Value().active = true
	rid.guard.Value().parity = s.swapped
	g := strategy.NewReadGuard(s.swapped)
	s.mu.RUnlock()
	return g
}

func (s *HazardStrategy) ReleaseReadGuard(id strategy.ReaderID, g strategy.ReadGuard) {
	rid, _ := id.Value().(*hazardReaderID)
	if rid == nil {
		return
	}
	s.mu.RLock()
	stale := g.Value().(bool) != s.swapped
	rid.guard.Value().active = false
	s.mu.RUnlock()

	if stale {
		s.mu.Lock()
		s.residual--
		done := s.residual == 0
		s.mu.Unlock()
		if done {
			s.parker.Wake()
		}
	}
}

// Release returns rid's pool slot. Callers that want slot reuse (rather
// than leaving it permanently marked active=false but owned) should call
// this when a Reader built on a HazardStrategy ReaderID is dropped. It is
// not part of the Strategy interface since plain Flash/EvMap readers
// have no equivalent explicit teardown; HazardStrategy exposes it as an
// extra so callers that churn through many short-lived readers can keep
// the pool small.
func (s *HazardStrategy) Release(id strategy.ReaderID) {
	rid, _ := id.Value().(*hazardReaderID)
	if rid == nil {
		return
	}
	s.mu.Lock()
	rid.guard.Value().owned = false
	rid.guard.Value().active = false
	s.mu.Unlock()
	rid.guard.Release()
}
