package container

import "container/heap"

// item 优先队列中的单个元素
type item[T any] struct {
	Value    T       // 元素值
	Priority float64 // 优先级，数值越小越优先
	index    int     // 在堆中的索引，由heap.Interface维护
}

// priorityQueue 内部堆实现，实现heap.Interface
type priorityQueue[T any] []*item[T]

func (pq priorityQueue[T]) Len() int { return len(pq) }

// Less 比较两个元素的优先级
// 说明：使用小于号，Pop返回优先级数值最小的元素（最小堆）
func (pq priorityQueue[T]) Less(i, j int) bool {
	return pq[i].Priority < pq[j].Priority
}

func (pq priorityQueue[T]) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}

// Push 实现heap.Interface，向队列末尾添加元素
func (pq *priorityQueue[T]) Push(x any) {
	n := len(*pq)
	item := x.(*item[T])
	item.index = n
	*pq = append(*pq, item)
}

// Pop 实现heap.Interface，移除并返回队列末尾的元素
func (pq *priorityQueue[T]) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil // 避免内存泄漏
	item.index = -1
	*pq = old[0 : n-1]
	return item
}

// PriorityQueue 最小堆优先队列
// 功能：按float64优先级组织任意类型的元素，支持堆操作与
// 固定容量的最大K个元素维护
// 说明：非并发安全，调用方负责加锁
type PriorityQueue[T any] struct {
	queue priorityQueue[T]
}

// NewPriorityQueue 创建优先队列
// 返回：新创建的空优先队列
func NewPriorityQueue[T any]() *PriorityQueue[T] {
	return &PriorityQueue[T]{queue: make(priorityQueue[T], 0)}
}

// Len 获取当前队列长度
func (q *PriorityQueue[T]) Len() int {
	return len(q.queue)
}

// First 查看堆顶元素（优先级数值最小的元素），不移除
func (q *PriorityQueue[T]) First() T {
	return q.queue[0].Value
}

// Push 加入元素但不维护堆结构
// 说明：批量加入后调用一次Heapify建堆，比逐个HeapPush更省
func (q *PriorityQueue[T]) Push(value T, priority float64) {
	q.queue = append(q.queue, &item[T]{
		Value:    value,
		Priority: priority,
	})
}

// Heapify 将队列重新构建为有效的堆结构
func (q *PriorityQueue[T]) Heapify() {
	heap.Init(&q.queue)
}

// HeapPush 加入元素并维护堆结构
// 参数：value-元素值，priority-优先级
func (q *PriorityQueue[T]) HeapPush(value T, priority float64) {
	heap.Push(&q.queue, &item[T]{
		Value:    value,
		Priority: priority,
	})
}

// HeapPop 移除并返回堆顶元素
// 返回：元素值与其优先级
func (q *PriorityQueue[T]) HeapPop() (value T, priority float64) {
	item := heap.Pop(&q.queue).(*item[T])
	return item.Value, item.Priority
}

// HeapPushBounded 加入元素并把队列长度限制在capacity之内
// 功能：超出容量时弹出堆顶（优先级数值最小）的元素，队列
// 始终保留优先级最大的capacity个元素
// 参数：value-元素值，priority-优先级，capacity-容量上限
// 说明：容量小于1时队列被清空
func (q *PriorityQueue[T]) HeapPushBounded(value T, priority float64, capacity int) {
	q.HeapPush(value, priority)
	for q.Len() > capacity {
		q.HeapPop()
	}
}
