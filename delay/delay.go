// Package delay wraps a dbuf.Writer so starting and finishing a swap are
// separate, idempotent steps: TryStartSwap is a no-op while a swap is
// already pending, and the pending swap is only cleared once it has
// genuinely finished, so a canceled TryAfinishSwap never loses track of
// it.
package delay

import (
	"context"

	"github.com/go-dbuf/dbuf"
	"github.com/go-dbuf/dbuf/strategy"
)

// Writer wraps a *dbuf.Writer[T, E], adding the idempotent
// start/finish-swap split.
type Writer[T, E any] struct {
	w    *dbuf.Writer[T, E]
	swap *strategy.Swap
}

// New wraps w.
func New[T, E any](w *dbuf.Writer[T, E]) *Writer[T, E] {
	return &Writer[T, E]{w: w}
}

// TryStartSwap starts a swap if none is pending; if one is already
// pending, it is left untouched and returned again.
func (d *Writer[T, E]) TryStartSwap() (strategy.Swap, error) {
	if d.swap != nil {
		return *d.swap, nil
	}
	sw, err := d.w.TryStartSwap()
	if err != nil {
		return strategy.Swap{}, err
	}
	d.swap = &sw
	return sw, nil
}

// StartSwap is TryStartSwap, panicking on error.
func (d *Writer[T, E]) StartSwap() strategy.Swap {
	sw, err := d.TryStartSwap()
	if err != nil {
		panic(err)
	}
	return sw
}

// IsSwapFinished reports whether the pending swap, if any, has
// finished. It clears the pending swap on success, same as FinishSwap.
func (d *Writer[T, E]) IsSwapFinished() bool {
	if d.swap == nil {
		return true
	}
	if !d.w.IsSwapFinished(*d.swap) {
		return false
	}
	d.swap = nil
	return true
}

// FinishSwap blocks until the pending swap, if any, finishes, then
// clears it.
func (d *Writer[T, E]) FinishSwap() {
	if d.swap == nil {
		return
	}
	d.w.FinishSwap(*d.swap)
	d.swap = nil
}

// TryAfinishSwap waits for the pending swap, if any, to finish or for
// ctx to be done. Unlike FinishSwap, a canceled wait does NOT clear the
// pending swap: only a wait that observes genuine completion does, so a
// caller that retries after a cancellation resumes waiting on the same
// swap instead of silently starting a new one.
func (d *Writer[T, E]) TryAfinishSwap(ctx context.Context) error {
	if d.swap == nil {
		return nil
	}
	if err := d.w.TryWaitForSwap(ctx, *d.swap); err != nil {
		return err
	}
	d.swap = nil
	return nil
}

// UnderlyingWriter returns the wrapped Writer unconditionally, for
// operations like Reader creation that never touch the back cell and so
// are always safe even while a swap is pending.
func (d *Writer[T, E]) UnderlyingWriter() *dbuf.Writer[T, E] {
	return d.w
}

// GetWriter returns the wrapped Writer and true if no swap is pending,
// or (nil, false) while one is in flight: the back cell must not be
// touched until the writer side of the pending swap has been accounted
// for.
func (d *Writer[T, E]) GetWriter() (*dbuf.Writer[T, E], bool) {
	if d.swap != nil {
		return nil, false
	}
	return d.w, true
}

// IntoWriter returns the wrapped Writer unconditionally, finishing any
// pending swap first.
func (d *Writer[T, E]) IntoWriter() *dbuf.Writer[T, E] {
	d.FinishSwap()
	return d.w
}
