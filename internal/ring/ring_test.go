package ring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushPopFIFO(t *testing.T) {
	b := New[int](3, Reject)
	require.True(t, b.Push(1))
	require.True(t, b.Push(2))
	require.True(t, b.Push(3))

	for _, want := range []int{1, 2, 3} {
		got, ok := b.Pop()
		require.True(t, ok)
		assert.Equal(t, want, got)
	}
	_, ok := b.Pop()
	assert.False(t, ok)
}

func TestRejectPolicyFailsWhenFull(t *testing.T) {
	b := New[string](2, Reject)
	require.True(t, b.Push("a"))
	require.True(t, b.Push("b"))
	assert.False(t, b.Push("c"))
	assert.Equal(t, 2, b.Len())

	got, ok := b.Pop()
	require.True(t, ok)
	assert.Equal(t, "a", got)
}

func TestOverwritePolicyEvictsOldest(t *testing.T) {
	b := New[int](3, Overwrite)
	for i := 1; i <= 5; i++ {
		require.True(t, b.Push(i))
	}
	assert.Equal(t, 3, b.Len())

	got, ok := b.Pop()
	require.True(t, ok)
	assert.Equal(t, 3, got, "oldest surviving element after two evictions")
}

func TestCapacityNeverExceeded(t *testing.T) {
	for _, policy := range []Policy{Reject, Overwrite} {
		b := New[int](4, policy)
		for i := 0; i < 100; i++ {
			b.Push(i)
			assert.LessOrEqual(t, b.Len(), b.Cap())
		}
	}
}

func TestPeekDoesNotConsume(t *testing.T) {
	b := New[int](2, Reject)
	_, ok := b.Peek()
	assert.False(t, ok)

	b.Push(7)
	got, ok := b.Peek()
	require.True(t, ok)
	assert.Equal(t, 7, got)
	assert.Equal(t, 1, b.Len())
}

func TestClear(t *testing.T) {
	b := New[int](3, Reject)
	b.Push(1)
	b.Push(2)
	b.Clear()

	assert.True(t, b.Empty())
	assert.False(t, b.Full())
	require.True(t, b.Push(9))
	got, ok := b.Pop()
	require.True(t, ok)
	assert.Equal(t, 9, got)
}

func TestDrainReturnsAllInOrder(t *testing.T) {
	b := New[int](5, Reject)
	for i := 0; i < 5; i++ {
		b.Push(i)
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4}, b.Drain())
	assert.True(t, b.Empty())
}

func TestWrapAround(t *testing.T) {
	b := New[int](3, Reject)
	b.Push(1)
	b.Push(2)
	b.Pop()
	b.Push(3)
	b.Push(4)

	assert.True(t, b.Full())
	assert.Equal(t, []int{2, 3, 4}, b.Drain())
}

func TestNewPanicsOnZeroCapacity(t *testing.T) {
	assert.Panics(t, func() { New[int](0, Reject) })
}
