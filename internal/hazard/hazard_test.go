package hazard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireReleaseReuse(t *testing.T) {
	p := NewPool[int]()
	g1 := p.Acquire(func() int { return 1 })
	*g1.Value() = 42
	g1.Release()

	g2 := p.Acquire(func() int { return 2 })
	require.Equal(t, 42, *g2.Value(), "released node should be reused, not re-initialized")
}

func TestAcquireGrowsChunks(t *testing.T) {
	p := NewPool[int]()
	var guards []*Guard[int]
	for i := 0; i < chunkSize*3+1; i++ {
		guards = append(guards, p.Acquire(func() int { return i }))
	}
	count := 0
	p.All(func(v *int) bool { count++; return true })
	// chunkSize*3+1 acquisitions fill three chunks and start a fourth;
	// All yields every allocated node, locked or not.
	assert.Equal(t, 4*chunkSize, count)
}

func TestAllStopsEarly(t *testing.T) {
	p := NewPool[int]()
	for i := 0; i < chunkSize+2; i++ {
		p.Acquire(func() int { return i })
	}
	seen := 0
	p.All(func(v *int) bool {
		seen++
		return seen < 2
	})
	assert.Equal(t, 2, seen)
}

func TestAllSeesReleasedNodes(t *testing.T) {
	p := NewPool[int]()
	g := p.Acquire(func() int { return 7 })
	g.Release()
	found := false
	p.All(func(v *int) bool {
		if *v == 7 {
			found = true
		}
		return true
	})
	assert.True(t, found, "All must see nodes regardless of lock state")
}
