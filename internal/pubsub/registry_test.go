package pubsub

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestRegistry_PublishInOrder(t *testing.T) {
	r := NewRegistry[int]()
	var got []string

	r.Subscribe(func(v int) { got = append(got, "a") })
	r.Subscribe(func(v int) { got = append(got, "b") })
	r.Publish(1)

	assert.Equal(t, []string{"a", "b"}, got)
	assert.Equal(t, 2, r.Len())
}

func TestRegistry_DisposerIdempotent(t *testing.T) {
	r := NewRegistry[string]()
	var calls int

	stop := r.Subscribe(func(string) { calls++ })
	r.Publish("first")

	assert.NotPanics(t, func() {
		stop()
		stop()
	})

	r.Publish("second")
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_DisposeOneKeepsOthers(t *testing.T) {
	r := NewRegistry[int]()
	var a, b int

	stopA := r.Subscribe(func(v int) { a += v })
	r.Subscribe(func(v int) { b += v })

	r.Publish(1)
	stopA()
	r.Publish(2)

	assert.Equal(t, 1, a)
	assert.Equal(t, 3, b)
}

func TestRegistry_NoDeliveryAfterConcurrentDispose(t *testing.T) {
	r := NewRegistry[int]()
	var calls atomic.Int32

	stop := r.Subscribe(func(int) { calls.Add(1) })

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.Publish(j)
			}
		}()
	}

	stop()
	wg.Wait()
	settled := calls.Load()

	r.Publish(1)
	assert.Equal(t, settled, calls.Load())
}

func TestRegistry_DisposeFromOwnCallback(t *testing.T) {
	r := NewRegistry[int]()
	var calls int

	var stop func()
	stop = r.Subscribe(func(int) {
		calls++
		stop()
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Publish(1)
		r.Publish(2)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked when a callback disposed itself")
	}
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_PublishFromCallback(t *testing.T) {
	r := NewRegistry[int]()
	var got []int

	r.Subscribe(func(v int) {
		got = append(got, v)
		if v == 1 {
			r.Publish(2)
		}
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Publish(1)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("re-entrant publish blocked")
	}
	assert.Equal(t, []int{1, 2}, got)
}
