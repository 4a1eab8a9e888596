// Package outline implements the writer-id-collocating Strategy
// combinator: it stores the wrapped strategy's WriterID inside the
// Strategy value itself instead of inside the caller's Writer handle,
// so a Writer built on top only needs to carry a zero-sized marker.
//
// This trades a field on every Writer for one on the (singleton, one per
// double buffer) Strategy, shrinking Writer at the cost of an extra
// pointer indirection on writer-side calls.
package outline

import (
	"github.com/go-dbuf/dbuf/strategy"
)

// marker is the zero-sized WriterID every outline-wrapped strategy
// hands back; it carries no data because the real WriterID lives inside
// the Strategy value, reachable through the marker's presence alone.
type marker struct{}

// Strategy wraps an inner strategy.Strategy, relocating its WriterID.
type Strategy struct {
	inner    strategy.Strategy
	writerID strategy.WriterID
}

// New wraps inner. CreateWriterID must be called on the returned
// Strategy before any other method.
func New(inner strategy.Strategy) *Strategy {
	return &Strategy{inner: inner}
}

var _ strategy.Strategy = (*Strategy)(nil)

func (s *Strategy) CreateWriterID() strategy.WriterID {
	s.writerID = s.inner.CreateWriterID()
	return strategy.NewWriterID(marker{})
}

func (s *Strategy) CreateReaderIDFromWriter(strategy.WriterID) strategy.ReaderID {
	return s.inner.CreateReaderIDFromWriter(s.writerID)
}

func (s *Strategy) CreateReaderIDFromReader(id strategy.ReaderID) strategy.ReaderID {
	return s.inner.CreateReaderIDFromReader(id)
}

func (s *Strategy) CreateInvalidReaderID() strategy.ReaderID {
	return s.inner.CreateInvalidReaderID()
}

func (s *Strategy) IsSwappedWriter(strategy.WriterID) bool {
	return s.inner.IsSwappedWriter(s.writerID)
}

func (s *Strategy) IsSwapped(id strategy.ReaderID, g strategy.ReadGuard) bool {
	return s.inner.IsSwapped(id, g)
}

func (s *Strategy) TryStartSwap(strategy.WriterID) (strategy.Swap, error) {
	return s.inner.TryStartSwap(s.writerID)
}

func (s *Strategy) IsSwapFinished(_ strategy.WriterID, sw strategy.Swap) bool {
	return s.inner.IsSwapFinished(s.writerID, sw)
}

func (s *Strategy) AcquireReadGuard(id strategy.ReaderID) strategy.ReadGuard {
	return s.inner.AcquireReadGuard(id)
}

func (s *Strategy) ReleaseReadGuard(id strategy.ReaderID, g strategy.ReadGuard) {
	s.inner.ReleaseReadGuard(id, g)
}

// BlockingStrategy wraps a strategy.BlockingStrategy, adding FinishSwap
// to the relocated-writer-id surface above.
type BlockingStrategy struct {
	Strategy
	blockingInner strategy.BlockingStrategy
}

var _ strategy.BlockingStrategy = (*BlockingStrategy)(nil)

// NewBlocking wraps inner.
func NewBlocking(inner strategy.BlockingStrategy) *BlockingStrategy {
	return &BlockingStrategy{Strategy: Strategy{inner: inner}, blockingInner: inner}
}

func (s *BlockingStrategy) FinishSwap(_ strategy.WriterID, sw strategy.Swap) {
	s.blockingInner.FinishSwap(s.writerID, sw)
}

// AsyncStrategy wraps a strategy.AsyncStrategy, adding RegisterNotify to
// the relocated-writer-id surface above.
type AsyncStrategy struct {
	Strategy
	asyncInner strategy.AsyncStrategy
}

var _ strategy.AsyncStrategy = (*AsyncStrategy)(nil)

// NewAsync wraps inner.
func NewAsync(inner strategy.AsyncStrategy) *AsyncStrategy {
	return &AsyncStrategy{Strategy: Strategy{inner: inner}, asyncInner: inner}
}

func (s *AsyncStrategy) RegisterNotify(_ strategy.WriterID, sw strategy.Swap, notify func()) bool {
	return s.asyncInner.RegisterNotify(s.writerID, sw, notify)
}
