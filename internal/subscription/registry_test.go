package subscription

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_FanOutToAllHandles(t *testing.T) {
	r := NewRegistry(4)
	a := r.Subscribe("u1")
	b := r.Subscribe("u1")
	other := r.Subscribe("u2")

	n := r.Publish("u1", Message{ID: "n1", Kind: "reservation_created"})
	assert.Equal(t, 2, n)

	assert.Equal(t, "n1", (<-a.C).ID)
	assert.Equal(t, "n1", (<-b.C).ID)
	assert.Len(t, other.C, 0)
}

func TestRegistry_UnsubscribeClosesHandle(t *testing.T) {
	r := NewRegistry(1)
	h := r.Subscribe("u1")
	require.Equal(t, 1, r.Connected("u1"))

	r.Unsubscribe(h)
	r.Unsubscribe(h)

	_, open := <-h.C
	assert.False(t, open)
	assert.Equal(t, 0, r.Connected("u1"))
	assert.Equal(t, 0, r.Publish("u1", Message{ID: "n1"}))
}

func TestRegistry_FullHandleDoesNotBlock(t *testing.T) {
	r := NewRegistry(1)
	h := r.Subscribe("u1")

	assert.Equal(t, 1, r.Publish("u1", Message{ID: "n1"}))
	assert.Equal(t, 0, r.Publish("u1", Message{ID: "n2"}))
	assert.Equal(t, "n1", (<-h.C).ID)
}

func TestRegistry_ConcurrentUse(t *testing.T) {
	r := NewRegistry(8)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			h := r.Subscribe("u1")
			r.Publish("u1", Message{ID: "x"})
			r.Unsubscribe(h)
		}()
		go func() {
			defer wg.Done()
			r.Publish("u1", Message{ID: "y"})
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, r.Connected("u1"))
}
