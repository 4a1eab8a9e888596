package oplog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-dbuf/dbuf"
	"github.com/go-dbuf/dbuf/strategy/flash"
)

type table map[string]int

type insertOp struct {
	key   string
	value int
}

func (op insertOp) Apply(buf *table) {
	(*buf)[op.key] = op.value
}

func newTable() table { return make(table) }

func TestSwapBuffersReplaysLogIntoBothCells(t *testing.T) {
	w := dbuf.NewWriter[table, struct{}](flash.New(), newTable(), newTable(), struct{}{})
	ow := New[table, struct{}, insertOp](w)

	ow.Push(insertOp{"a", 1})
	ow.Push(insertOp{"b", 2})
	ow.SwapBuffers()

	r := ow.Reader()
	g := r.Read()
	assert.Equal(t, 1, (*g.Get())["a"])
	assert.Equal(t, 2, (*g.Get())["b"])
	g.Release()

	ow.Push(insertOp{"c", 3})
	ow.SwapBuffers()

	g = r.Read()
	assert.Equal(t, 1, (*g.Get())["a"])
	assert.Equal(t, 3, (*g.Get())["c"])
	g.Release()
}

func TestPushDoesNotApplyUntilSwapBuffers(t *testing.T) {
	w := dbuf.NewWriter[table, struct{}](flash.New(), newTable(), newTable(), struct{}{})
	ow := New[table, struct{}, insertOp](w)
	ow.Push(insertOp{"x", 42})

	writer, ok := ow.d.GetWriter()
	require.True(t, ok)
	assert.Empty(t, *writer.Get(), "Push must only enqueue, not mutate either cell")

	ow.SwapBuffers()
	r := ow.Reader()
	g := r.Read()
	assert.Equal(t, 42, (*g.Get())["x"])
	g.Release()
}

func TestOperationAppliedExactlyTwice(t *testing.T) {
	w := dbuf.NewWriter[table, struct{}](flash.New(), newTable(), newTable(), struct{}{})
	ow := New[table, struct{}, countingOp](w)
	counter := &counts{}
	ow.Push(countingOp{key: "x", counts: counter})

	ow.SwapBuffers()
	ow.SwapBuffers()

	assert.Equal(t, 1, counter.applyCount, "Apply must run exactly once, when the op is promoted into the stale cell")
	assert.Equal(t, 1, counter.applyOnceCount, "ApplyOnce must run exactly once, when the op is retired from the log")
}

type counts struct {
	applyCount     int
	applyOnceCount int
}

type countingOp struct {
	key    string
	counts *counts
}

func (op countingOp) Apply(buf *table) {
	op.counts.applyCount++
	(*buf)[op.key]++
}

func (op countingOp) ApplyOnce(buf *table) {
	op.counts.applyOnceCount++
	(*buf)[op.key]++
}

func TestExtendPushesAllOperations(t *testing.T) {
	w := dbuf.NewWriter[table, struct{}](flash.New(), newTable(), newTable(), struct{}{})
	ow := New[table, struct{}, insertOp](w)
	ow.Extend([]insertOp{{"a", 1}, {"b", 2}, {"c", 3}})
	ow.SwapBuffers()

	r := ow.Reader()
	g := r.Read()
	assert.Len(t, *g.Get(), 3)
	g.Release()
}

func TestGetWriterBlockedDuringPendingSwapButReaderStillWorks(t *testing.T) {
	w := dbuf.NewWriter[table, struct{}](flash.NewBlocking(), newTable(), newTable(), struct{}{})
	ow := New[table, struct{}, insertOp](w)
	ow.Push(insertOp{"a", 1})

	r := ow.Reader()
	g := r.Read()

	ow.d.StartSwap()
	_, ok := ow.d.GetWriter()
	assert.False(t, ok)

	assert.NotPanics(t, func() { ow.Reader() })

	g.Release()
}
