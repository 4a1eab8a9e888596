// Package dbuf implements a concurrency primitive for many lock-free
// Readers and one Writer, built around a pluggable Strategy that decides
// how a Swap detects that every reader present when it started has
// released.
//
// The Writer mutates its own back cell freely; callers do not hold any
// lock while calling Get, GetMut, Split or SplitMut. Swap publishes the
// back cell, waits for it to become safe to reuse under the configured
// Strategy, and flips which cell the Writer sees as its own. A Reader,
// obtained from the Writer, can be used concurrently with the Writer and
// with any other Reader. Under strategy/evmap reads never block; under
// strategy/flash a read takes a shared lock that a starting swap holds
// exclusively for its reader scan. See those packages' docs for their
// exact guarantees.
//
// Check the documentation of the types/methods below for the correct
// usage of each one.
package dbuf

import (
	"context"
	"errors"
	"sync"
	"weak"

	"github.com/go-dbuf/dbuf/strategy"
)

const (
	messageMultipleWritersDetected = "dbuf: multiple writers detected"
	messageUsageOfReleasedGuard    = "dbuf: usage of a released read guard"
	messageDoubleRelease           = "dbuf: read guard released twice"
)

// ErrWriterGone is returned by WeakReader.TryRead when the Writer the
// reader was created from has been garbage collected.
var ErrWriterGone = errors.New("dbuf: writer is gone")

// ErrSwapNotSupported is returned by TrySwap/TryFinishSwap (and is the
// panic value of Swap/FinishSwap) when the configured Strategy does not
// implement strategy.BlockingStrategy, and by TryAswap/TryWaitForSwap
// when it does not implement strategy.AsyncStrategy.
var ErrSwapNotSupported = errors.New("dbuf: strategy does not support this wait mode")

// Payload is the pair of cells a double buffer flips between, plus the
// caller-supplied Extras value carried alongside them (commonly used to
// stash per-generation bookkeeping the Writer and every Reader can see).
type Payload[T, E any] struct {
	Cells  [2]T
	Extras E
}

// Writer is the single mutator of a double buffer. All methods are not
// safe to call concurrently from more than one goroutine; Writer detects
// this misuse and panics rather than silently racing.
type Writer[T, E any] struct {
	s   strategy.Strategy
	wid strategy.WriterID
	p   *Payload[T, E]

	busy sync.Mutex
}

// NewWriter returns a Writer whose initial front (reader-visible) cell
// is front and whose initial back (writer-owned) cell is back, using s
// to synchronize swaps.
func NewWriter[T, E any](s strategy.Strategy, front, back T, extras E) *Writer[T, E] {
	w := &Writer[T, E]{
		s: s,
		p: &Payload[T, E]{Extras: extras},
	}
	w.p.Cells[0] = front
	w.p.Cells[1] = back
	w.wid = s.CreateWriterID()
	return w
}

func boolIndex(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (w *Writer[T, E]) lock() func() {
	if !w.busy.TryLock() {
		panic(messageMultipleWritersDetected)
	}
	return w.busy.Unlock
}

func (w *Writer[T, E]) backIndex() int {
	return boolIndex(!w.s.IsSwappedWriter(w.wid))
}

// Get returns a pointer to the back cell, the one only the Writer may
// read or write until the next Swap.
func (w *Writer[T, E]) Get() *T {
	defer w.lock()()
	return &w.p.Cells[w.backIndex()]
}

// GetMut is an alias for Get kept for symmetry with the paired
// immutable/mutable accessor naming the rest of this package follows
// (ReadGuard.Get is immutable; there is no writer-side immutable-only
// accessor worth distinguishing in Go, since Writer already has
// exclusive access to its own cell).
func (w *Writer[T, E]) GetMut() *T {
	return w.Get()
}

// Split returns pointers to the back cell and the shared Extras value.
func (w *Writer[T, E]) Split() (back *T, extras *E) {
	defer w.lock()()
	return &w.p.Cells[w.backIndex()], &w.p.Extras
}

// SplitMut is an alias for Split, kept for symmetry; see GetMut.
func (w *Writer[T, E]) SplitMut() (back *T, extras *E) {
	return w.Split()
}

// Reader returns a new strongly-referenced Reader over this Writer. The
// Reader keeps w reachable for as long as it exists.
func (w *Writer[T, E]) Reader() *Reader[T, E] {
	defer w.lock()()
	return &Reader[T, E]{w: w, rid: w.s.CreateReaderIDFromWriter(w.wid)}
}

// WeakReader returns a new Reader that only weakly references w: once w
// becomes unreachable from anywhere else, TryRead on the returned
// WeakReader starts failing with ErrWriterGone instead of keeping w
// alive forever. This is the default ownership backend described for
// the root package: a reader that can detect writer teardown without
// reference counting, built on the stdlib weak package.
func (w *Writer[T, E]) WeakReader() *WeakReader[T, E] {
	defer w.lock()()
	return &WeakReader[T, E]{ptr: weak.Make(w), rid: w.s.CreateReaderIDFromWriter(w.wid)}
}

// TryStartSwap begins publishing the back cell as the new front cell. It
// fails only if the configured Strategy refuses to start a swap right
// now (strategy/simple, when a reader is still on the target cell).
func (w *Writer[T, E]) TryStartSwap() (strategy.Swap, error) {
	defer w.lock()()
	return w.s.TryStartSwap(w.wid)
}

// IsSwapFinished reports whether every reader present when sw was
// started has released.
func (w *Writer[T, E]) IsSwapFinished(sw strategy.Swap) bool {
	defer w.lock()()
	return w.s.IsSwapFinished(w.wid, sw)
}

// FinishSwap blocks until sw is finished. It panics with
// ErrSwapNotSupported if the configured Strategy cannot block; callers
// that need to handle an unsupported Strategy without a panic should use
// TryFinishSwap instead.
func (w *Writer[T, E]) FinishSwap(sw strategy.Swap) {
	if err := w.TryFinishSwap(sw); err != nil {
		panic(err)
	}
}

// TryFinishSwap blocks until sw is finished, or returns
// ErrSwapNotSupported immediately if the configured Strategy cannot
// block.
func (w *Writer[T, E]) TryFinishSwap(sw strategy.Swap) error {
	defer w.lock()()
	b, ok := w.s.(strategy.BlockingStrategy)
	if !ok {
		return ErrSwapNotSupported
	}
	b.FinishSwap(w.wid, sw)
	return nil
}

// TrySwap starts a swap and blocks until it finishes, returning any
// error from either step.
func (w *Writer[T, E]) TrySwap() error {
	sw, err := w.TryStartSwap()
	if err != nil {
		return err
	}
	return w.TryFinishSwap(sw)
}

// Swap is TrySwap, panicking instead of returning an error. It is the
// common case for strategies (strategy/flash, strategy/evmap,
// strategy/atomicstrategy) whose TryStartSwap never fails.
func (w *Writer[T, E]) Swap() {
	if err := w.TrySwap(); err != nil {
		panic(err)
	}
}

// TryAswap starts a swap and waits for it to finish without blocking the
// calling goroutine on anything but ctx: it registers a notify callback
// with the configured strategy.AsyncStrategy and returns once that
// callback fires or ctx is done, whichever happens first. Every call
// starts a new swap: if ctx is done first, the swap it started stays
// pending and the Writer does not record it, so a later TryAswap or
// TrySwap starts another swap instead of waiting on that one. Waiting on
// a specific pending swap is done with TryWaitForSwap.
func (w *Writer[T, E]) TryAswap(ctx context.Context) error {
	sw, err := w.TryStartSwap()
	if err != nil {
		return err
	}
	return w.awaitSwap(ctx, sw)
}

// TryWaitForSwap waits for sw, previously returned by TryStartSwap, to
// finish, without starting a new swap. It is the building block
// delay.Writer uses to implement a cancel-safe finish step that is kept
// separate from (re-)starting a swap.
func (w *Writer[T, E]) TryWaitForSwap(ctx context.Context, sw strategy.Swap) error {
	return w.awaitSwap(ctx, sw)
}

func (w *Writer[T, E]) awaitSwap(ctx context.Context, sw strategy.Swap) error {
	a, ok := w.s.(strategy.AsyncStrategy)
	if !ok {
		return ErrSwapNotSupported
	}

	for {
		done := make(chan struct{})
		if a.RegisterNotify(w.wid, sw, func() { close(done) }) {
			return nil
		}
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Reader is a strongly-referenced handle to one position in a Writer's
// reader registry. A Reader is not safe for concurrent use by more than
// one goroutine; clone it with Clone to hand a second goroutine its own
// handle.
type Reader[T, E any] struct {
	w   *Writer[T, E]
	rid strategy.ReaderID
}

// TryRead pins the current front cell and returns a guard over it. It
// never fails for a strongly-referenced Reader; it returns an error only
// for symmetry with WeakReader.TryRead.
func (r *Reader[T, E]) TryRead() (*ReadGuard[T, E], error) {
	return r.Read(), nil
}

// Read pins the current front cell and returns a guard over it.
func (r *Reader[T, E]) Read() *ReadGuard[T, E] {
	g := r.w.s.AcquireReadGuard(r.rid)
	return &ReadGuard[T, E]{w: r.w, rid: r.rid, g: g}
}

// Clone returns an independent Reader over the same Writer.
func (r *Reader[T, E]) Clone() *Reader[T, E] {
	return &Reader[T, E]{w: r.w, rid: r.w.s.CreateReaderIDFromReader(r.rid)}
}

// WeakReader is a Reader that only weakly references its Writer. See
// Writer.WeakReader.
type WeakReader[T, E any] struct {
	ptr weak.Pointer[Writer[T, E]]
	rid strategy.ReaderID
}

// TryRead pins the current front cell and returns a guard over it, or
// returns ErrWriterGone if the Writer has been garbage collected.
func (r *WeakReader[T, E]) TryRead() (*ReadGuard[T, E], error) {
	w := r.ptr.Value()
	if w == nil {
		return nil, ErrWriterGone
	}
	g := w.s.AcquireReadGuard(r.rid)
	return &ReadGuard[T, E]{w: w, rid: r.rid, g: g}, nil
}

// Clone returns an independent WeakReader over the same (possibly
// already gone) Writer.
func (r *WeakReader[T, E]) Clone() *WeakReader[T, E] {
	w := r.ptr.Value()
	if w == nil {
		return &WeakReader[T, E]{ptr: r.ptr}
	}
	return &WeakReader[T, E]{ptr: r.ptr, rid: w.s.CreateReaderIDFromReader(r.rid)}
}

// ReadGuard pins one generation of one cell for reading. Release must be
// called exactly once; using a guard after Release panics.
type ReadGuard[T, E any] struct {
	w        *Writer[T, E]
	rid      strategy.ReaderID
	g        strategy.ReadGuard
	released bool
}

// Get returns a pointer to the pinned cell, valid until Release.
func (g *ReadGuard[T, E]) Get() *T {
	if g.released {
		panic(messageUsageOfReleasedGuard)
	}
	idx := boolIndex(g.w.s.IsSwapped(g.rid, g.g))
	return &g.w.p.Cells[idx]
}

// Extras returns a pointer to the Writer's shared Extras value.
func (g *ReadGuard[T, E]) Extras() *E {
	if g.released {
		panic(messageUsageOfReleasedGuard)
	}
	return &g.w.p.Extras
}

// Release unpins the cell, letting a writer waiting on this specific
// read make progress.
func (g *ReadGuard[T, E]) Release() {
	if g.released {
		panic(messageDoubleRelease)
	}
	g.released = true
	g.w.s.ReleaseReadGuard(g.rid, g.g)
}

// MappedGuard is the result of projecting a ReadGuard through Map or
// TryMap: it keeps the original guard's pin alive under a differently
// typed view. Go methods cannot introduce a new type parameter, so Map
// and TryMap are free functions rather than ReadGuard methods.
type MappedGuard[U any] struct {
	value   *U
	release func()
}

// Get returns the projected pointer, valid until Release.
func (m *MappedGuard[U]) Get() *U { return m.value }

// Release releases the underlying ReadGuard this projection was built
// from.
func (m *MappedGuard[U]) Release() { m.release() }

// Map projects g through fn, returning a MappedGuard that keeps g's pin
// alive until the returned guard is released.
func Map[T, E, U any](g *ReadGuard[T, E], fn func(*T) *U) *MappedGuard[U] {
	return &MappedGuard[U]{value: fn(g.Get()), release: g.Release}
}

// TryMap projects g through fn. If fn reports false, g is released
// immediately and TryMap returns (nil, false); otherwise it behaves like
// Map.
func TryMap[T, E, U any](g *ReadGuard[T, E], fn func(*T) (*U, bool)) (*MappedGuard[U], bool) {
	v, ok := fn(g.Get())
	if !ok {
		g.Release()
		return nil, false
	}
	return &MappedGuard[U]{value: v, release: g.Release}, true
}
