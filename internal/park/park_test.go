package park

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestThreadParkerWakeBeforePark(t *testing.T) {
	p := NewThreadParker()
	p.Wake()
	done := make(chan struct{})
	go func() {
		p.Park()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Park never returned after a prior Wake")
	}
}

func TestThreadParkerWakeCoalesces(t *testing.T) {
	p := NewThreadParker()
	p.Wake()
	p.Wake()
	p.Park()
	select {
	case <-p.ch:
		t.Fatal("second Wake should have been coalesced")
	default:
	}
}

func TestThreadParkerConcurrent(t *testing.T) {
	p := NewThreadParker()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.Park()
	}()
	time.Sleep(10 * time.Millisecond)
	p.Wake()
	wg.Wait()
}

func TestNotifyParkerSetThenWake(t *testing.T) {
	p := NewNotifyParker()
	called := false
	p.Set(func() { called = true })
	p.Wake()
	assert.True(t, called)
}

func TestNotifyParkerWakeWithoutSetIsNoop(t *testing.T) {
	p := NewNotifyParker()
	assert.NotPanics(t, func() { p.Wake() })
}

func TestNotifyParkerReplacesPending(t *testing.T) {
	p := NewNotifyParker()
	firstCalled := false
	secondCalled := false
	p.Set(func() { firstCalled = true })
	p.Set(func() { secondCalled = true })
	p.Wake()
	assert.False(t, firstCalled)
	assert.True(t, secondCalled)
}

func TestNotifyParkerWakeFiresOnce(t *testing.T) {
	p := NewNotifyParker()
	calls := 0
	p.Set(func() { calls++ })
	p.Wake()
	p.Wake()
	assert.Equal(t, 1, calls)
}

func TestNotifyParkerPanicPropagates(t *testing.T) {
	p := NewNotifyParker()
	p.Set(func() { panic("boom") })
	assert.Panics(t, func() { p.Wake() })
}

func TestAdaptiveParkerWakesBoth(t *testing.T) {
	p := NewAdaptiveParker()
	notified := false
	p.Notify.Set(func() { notified = true })
	done := make(chan struct{})
	go func() {
		p.Thread.Park()
		close(done)
	}()
	time.Sleep(10 * time.Millisecond)
	p.Wake()
	<-done
	assert.True(t, notified)
}
