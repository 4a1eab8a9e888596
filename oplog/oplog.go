// Package oplog wraps a delay.Writer with a queued-mutation log: instead
// of mutating the back cell directly, callers Push Operations, and
// SwapBuffers replays the log into both cells so a swap always leaves
// both sides caught up, not just the one being published.
//
// Every Operation is applied exactly twice before being dropped: once
// through Apply when it is promoted from the back cell to the front
// (the cell the writer is about to publish), and once more through
// ApplyOnce on the other cell at the following swap, when it is retired.
package oplog

import (
	"context"

	"github.com/go-dbuf/dbuf"
	"github.com/go-dbuf/dbuf/delay"
)

// Operation mutates a T in place.
type Operation[T any] interface {
	Apply(buf *T)
}

// OperationOnce is an Operation with a distinct final application,
// invoked exactly once, when the operation is retired from the log.
// Go has no trait default methods, so an Operation that does not
// implement OperationOnce falls back to a second call to Apply, which
// is exactly what the default would have done.
type OperationOnce[T any] interface {
	Operation[T]
	ApplyOnce(buf *T)
}

func applyOnce[T any, O Operation[T]](op O, buf *T) {
	if once, ok := Operation[T](op).(OperationOnce[T]); ok {
		once.ApplyOnce(buf)
		return
	}
	op.Apply(buf)
}

// Writer replays a log of Operations into both cells of a double buffer
// on every swap, instead of requiring the caller to copy state across
// manually.
type Writer[T, E any, O Operation[T]] struct {
	d         *delay.Writer[T, E]
	log       []O
	waterLine int
}

// New wraps w with an empty operation log.
func New[T, E any, O Operation[T]](w *dbuf.Writer[T, E]) *Writer[T, E, O] {
	return &Writer[T, E, O]{d: delay.New(w)}
}

// Push appends op to the log. It is not applied to either cell until the
// next SwapBuffers/AswapBuffers call replays the log: applying it here as
// well, in addition to replay's own Apply, would leave it applied three
// times (twice via Apply, once via ApplyOnce) instead of exactly twice.
func (w *Writer[T, E, O]) Push(op O) {
	w.log = append(w.log, op)
}

// Extend pushes every element of ops in order.
func (w *Writer[T, E, O]) Extend(ops []O) {
	for _, op := range ops {
		w.Push(op)
	}
}

// Reserve makes sure the log has room for at least n more entries
// without reallocating, growing its backing array only if needed.
func (w *Writer[T, E, O]) Reserve(n int) {
	if cap(w.log)-len(w.log) >= n {
		return
	}
	grown := make([]O, len(w.log), len(w.log)+n)
	copy(grown, w.log)
	w.log = grown
}

// SwapBuffers finishes any pending swap, replays the operation log into
// the writer's current back cell (retiring the operations the previous
// swap already promoted, and promoting the rest), then starts the next
// swap, which publishes that cell.
func (w *Writer[T, E, O]) SwapBuffers() {
	w.d.FinishSwap()
	writer, ok := w.d.GetWriter()
	if !ok {
		panic("oplog: delay.Writer reported a swap pending right after FinishSwap")
	}
	w.replay(writer.Get())
	w.d.StartSwap()
}

// replay applies every retired operation (those the previous call to
// replay already caught the other cell up with) to buf exactly once
// more via ApplyOnce, drops them from the log, then applies every
// remaining operation (pushed since the previous call) to buf for the
// first time via Apply. Every operation is therefore applied exactly
// twice across the two cells' lifetimes before being dropped: once via
// Apply, once via ApplyOnce.
func (w *Writer[T, E, O]) replay(buf *T) {
	for _, op := range w.log[:w.waterLine] {
		applyOnce[T, O](op, buf)
	}
	rest := w.log[w.waterLine:]
	for _, op := range rest {
		op.Apply(buf)
	}
	w.log = append(make([]O, 0, len(rest)), rest...)
	w.waterLine = len(w.log)
}

// AswapBuffers is SwapBuffers, but waits for the prior swap to finish
// using ctx instead of blocking.
func (w *Writer[T, E, O]) AswapBuffers(ctx context.Context) error {
	if err := w.d.TryAfinishSwap(ctx); err != nil {
		return err
	}
	writer, ok := w.d.GetWriter()
	if !ok {
		return nil
	}
	w.replay(writer.Get())
	_, err := w.d.TryStartSwap()
	return err
}

// Reader returns a new Reader over the wrapped Writer. This is always
// safe, even while a swap is pending: it never touches the back cell.
func (w *Writer[T, E, O]) Reader() *dbuf.Reader[T, E] {
	return w.d.UnderlyingWriter().Reader()
}
