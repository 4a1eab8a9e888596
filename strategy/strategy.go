// Package strategy defines the synchronization contract every double
// buffer is built on, plus the opaque handle types it is expressed in
// terms of.
//
// Strategy stands in for the original's trait with associated types:
// Go has no associated types, so WriterID, ReaderID, Swap and ReadGuard
// are boxed opaque values instead of per-implementation concrete types.
// A concrete strategy is free to store whatever it needs inside the
// boxed value; callers outside the strategy package only ever pass the
// handles back to the same Strategy that produced them.
package strategy

// WriterID identifies the single writer of a double buffer to its
// Strategy. A Strategy never sees more than one live WriterID at a time.
type WriterID struct{ v any }

// ReaderID identifies one reader to its Strategy. A ReaderID must not be
// used concurrently by more than one goroutine, mirroring the
// "Reader is not threadsafe" contract dbuf.Reader documents for the
// handles built on top of it.
type ReaderID struct{ v any }

// Swap is a token returned by TryStartSwap, later passed back to
// IsSwapFinished/FinishSwap/RegisterNotify to refer to that specific
// in-flight swap.
type Swap struct{ v any }

// ReadGuard is a token returned by AcquireReadGuard, later passed back
// to IsSwapped/ReleaseReadGuard for the read it was acquired for.
type ReadGuard struct{ v any }

// NewWriterID boxes v as a WriterID. Intended for use by strategy
// implementations only.
func NewWriterID(v any) WriterID { return WriterID{v} }

// NewReaderID boxes v as a ReaderID. Intended for use by strategy
// implementations only.
func NewReaderID(v any) ReaderID { return ReaderID{v} }

// NewSwap boxes v as a Swap. Intended for use by strategy
// implementations only.
func NewSwap(v any) Swap { return Swap{v} }

// NewReadGuard boxes v as a ReadGuard. Intended for use by strategy
// implementations only.
func NewReadGuard(v any) ReadGuard { return ReadGuard{v} }

// Value unboxes the id. Intended for use by strategy implementations
// only; callers outside the owning strategy should treat the result as
// opaque.
func (id WriterID) Value() any { return id.v }

// Value unboxes the id. Intended for use by strategy implementations
// only.
func (id ReaderID) Value() any { return id.v }

// Value unboxes the token. Intended for use by strategy implementations
// only.
func (s Swap) Value() any { return s.v }

// Value unboxes the guard. Intended for use by strategy implementations
// only.
func (g ReadGuard) Value() any { return g.v }

// Strategy is the synchronization protocol a double buffer delegates
// swap detection and reader bookkeeping to. Every method is safe for
// concurrent use across different ids; a single WriterID or ReaderID
// must not be used concurrently by more than one goroutine.
type Strategy interface {
	// CreateWriterID returns the single WriterID for this strategy
	// instance. Calling it more than once is a usage error a caller
	// building a Writer is responsible for preventing.
	CreateWriterID() WriterID

	// CreateReaderIDFromWriter derives a new ReaderID, valid for as long
	// as the writer is.
	CreateReaderIDFromWriter(WriterID) ReaderID

	// CreateReaderIDFromReader derives a new ReaderID cloned from an
	// existing one (e.g. when cloning a Reader handle).
	CreateReaderIDFromReader(ReaderID) ReaderID

	// CreateInvalidReaderID returns a ReaderID that can never
	// successfully acquire a read guard, used when the backing writer
	// is known to already be gone.
	CreateInvalidReaderID() ReaderID

	// IsSwappedWriter reports, from the writer's exclusive point of
	// view, which cell is currently the front (reader-visible) cell.
	IsSwappedWriter(WriterID) bool

	// IsSwapped reports which cell guard was acquired against.
	IsSwapped(ReaderID, ReadGuard) bool

	// TryStartSwap begins publishing the writer's back cell. It fails
	// only for strategies that cannot safely start a swap while a
	// reader is present (strategy/simple); all other strategies never
	// return a non-nil error.
	TryStartSwap(WriterID) (Swap, error)

	// IsSwapFinished reports whether every reader that could have been
	// observing the now-stale cell at swap start has released it.
	IsSwapFinished(WriterID, Swap) bool

	// AcquireReadGuard pins the current front cell for reading and
	// returns a guard identifying which cell was pinned.
	AcquireReadGuard(ReaderID) ReadGuard

	// ReleaseReadGuard unpins the cell identified by guard, waking a
	// blocked or registered writer if this was the last reader the
	// writer was waiting on.
	ReleaseReadGuard(ReaderID, ReadGuard)
}

// BlockingStrategy is a Strategy that can synchronously wait for a swap
// to finish.
type BlockingStrategy interface {
	Strategy

	// FinishSwap blocks the calling goroutine until IsSwapFinished
	// would report true for this swap.
	FinishSwap(WriterID, Swap)
}

// AsyncStrategy is a Strategy that can register a callback to run once a
// swap finishes, instead of blocking.
type AsyncStrategy interface {
	Strategy

	// RegisterNotify arranges for notify to be called once this swap
	// finishes. It returns true if the swap had finished by the time of
	// the call; in that case notify is not left registered, though it
	// may already have run once if the swap finished during the call
	// after notify was registered. Registering a
	// new notify for the same Swap replaces any previous registration,
	// so callers must re-register after every spurious wakeup, exactly
	// like re-polling a Future.
	RegisterNotify(id WriterID, s Swap, notify func()) bool
}
