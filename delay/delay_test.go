package delay

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-dbuf/dbuf"
	"github.com/go-dbuf/dbuf/strategy/flash"
)

func TestStartSwapIsIdempotentWhilePending(t *testing.T) {
	w := dbuf.NewWriter[int, struct{}](flash.NewAsync(), 0, 0, struct{}{})
	d := New(w)

	sw1, err := d.TryStartSwap()
	require.NoError(t, err)
	sw2, err := d.TryStartSwap()
	require.NoError(t, err)
	assert.Equal(t, sw1, sw2)
}

func TestGetWriterBlockedWhileSwapPending(t *testing.T) {
	w := dbuf.NewWriter[int, struct{}](flash.NewBlocking(), 0, 0, struct{}{})
	d := New(w)
	r := w.Reader()
	g := r.Read()

	d.StartSwap()
	_, ok := d.GetWriter()
	assert.False(t, ok)

	g.Release()
	d.FinishSwap()
	_, ok = d.GetWriter()
	assert.True(t, ok)
}

func TestCanceledFinishDoesNotLoseSwap(t *testing.T) {
	w := dbuf.NewWriter[int, struct{}](flash.NewAsync(), 0, 0, struct{}{})
	d := New(w)
	r := w.Reader()
	g := r.Read()

	d.StartSwap()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := d.TryAfinishSwap(ctx)
	require.Error(t, err)
	_, ok := d.GetWriter()
	assert.False(t, ok, "a canceled finish must not drop the pending swap")

	g.Release()
	require.NoError(t, d.TryAfinishSwap(context.Background()))
	_, ok = d.GetWriter()
	assert.True(t, ok)
}

func TestIsSwapFinishedClearsOnSuccess(t *testing.T) {
	w := dbuf.NewWriter[int, struct{}](flash.New(), 0, 0, struct{}{})
	d := New(w)
	d.StartSwap()
	assert.True(t, d.IsSwapFinished())
	_, ok := d.GetWriter()
	assert.True(t, ok)
}
