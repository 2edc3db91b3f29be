package container_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tsinghua-fib-lab/signalet-go/utils/container"
)

func TestPriorityQueueHeapOperation(t *testing.T) {
	q := container.NewPriorityQueue[string]()
	assert.Equal(t, 0, q.Len())

	q.HeapPush("b", 2)
	q.HeapPush("a", 1)
	q.HeapPush("c", 3)
	assert.Equal(t, 3, q.Len())
	assert.Equal(t, "a", q.First())

	value, priority := q.HeapPop()
	assert.Equal(t, "a", value)
	assert.Equal(t, 1.0, priority)
	value, _ = q.HeapPop()
	assert.Equal(t, "b", value)
	value, _ = q.HeapPop()
	assert.Equal(t, "c", value)
	assert.Equal(t, 0, q.Len())
}

func TestPriorityQueueHeapify(t *testing.T) {
	q := container.NewPriorityQueue[int]()

	// 批量Push后Heapify一次建堆
	q.Push(1, -1)
	q.Push(2, -2)
	q.Push(3, -3)
	q.Heapify()

	// 负优先级实现大顶堆语义
	value, priority := q.HeapPop()
	assert.Equal(t, 3, value)
	assert.Equal(t, -3.0, priority)
	value, _ = q.HeapPop()
	assert.Equal(t, 2, value)
}

func TestPriorityQueueHeapPushBounded(t *testing.T) {
	q := container.NewPriorityQueue[string]()

	q.HeapPushBounded("a", 1, 2)
	q.HeapPushBounded("b", 5, 2)
	q.HeapPushBounded("c", 3, 2)
	q.HeapPushBounded("d", 4, 2)

	// 容量为2，只保留优先级最大的两个元素
	assert.Equal(t, 2, q.Len())
	value, priority := q.HeapPop()
	assert.Equal(t, "d", value)
	assert.Equal(t, 4.0, priority)
	value, priority = q.HeapPop()
	assert.Equal(t, "b", value)
	assert.Equal(t, 5.0, priority)
}
