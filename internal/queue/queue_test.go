package queue

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueue_FIFO(t *testing.T) {
	q := New[string]()
	q.Push("first")
	q.Push("second")
	q.Push("third")

	v, ok := q.Pop()
	assert.True(t, ok)
	assert.Equal(t, "first", v)

	v, ok = q.Pop()
	assert.True(t, ok)
	assert.Equal(t, "second", v)

	v, ok = q.Pop()
	assert.True(t, ok)
	assert.Equal(t, "third", v)

	_, ok = q.Pop()
	assert.False(t, ok)
}

func TestQueue_PopAll(t *testing.T) {
	q := New[int]()
	q.Push(1)
	q.Push(2)
	q.Push(3)
	assert.Equal(t, 3, q.Len())

	all := q.PopAll()
	assert.Equal(t, []int{1, 2, 3}, all)
	assert.Equal(t, 0, q.Len())
	assert.Empty(t, q.PopAll())
}

func TestQueue_ReadySignalled(t *testing.T) {
	q := New[int]()

	select {
	case <-q.Ready():
		t.Fatal("ready before push")
	default:
	}

	q.Push(1)
	q.Push(2) // coalesced, must not block

	select {
	case <-q.Ready():
	default:
		t.Fatal("ready not signalled")
	}
	assert.Equal(t, 2, q.Len())
}

func TestQueue_ConcurrentPush(t *testing.T) {
	q := New[int]()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			q.Push(v)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 50, q.Len())
}
