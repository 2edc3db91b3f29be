package container

// Ring 固定容量环形缓冲区
// 功能：保存最近N个元素，写满后覆盖最旧的元素
// 说明：用于保存进口道观测历史，非并发安全，调用方负责加锁
type Ring[T any] struct {
	data  []T
	head  int // 下一个写入位置
	count int // 当前元素数
}

// NewRing 创建环形缓冲区
// 功能：初始化一个容量为capacity的环形缓冲区
// 参数：capacity-容量，小于1时按1处理
// 返回：新创建的环形缓冲区指针
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{data: make([]T, capacity)}
}

// Len 获取当前元素数
func (r *Ring[T]) Len() int {
	return r.count
}

// Cap 获取容量
func (r *Ring[T]) Cap() int {
	return len(r.data)
}

// Push 写入元素
// 功能：在缓冲区末尾写入一个元素，写满后覆盖最旧的元素
// 参数：value-要写入的元素
func (r *Ring[T]) Push(value T) {
	r.data[r.head] = value
	r.head = (r.head + 1) % len(r.data)
	if r.count < len(r.data) {
		r.count++
	}
}

// Last 获取最新写入的元素
// 返回：最新元素与是否存在
func (r *Ring[T]) Last() (T, bool) {
	var zero T
	if r.count == 0 {
		return zero, false
	}
	return r.data[(r.head-1+len(r.data))%len(r.data)], true
}

// Values 获取所有元素
// 功能：按从旧到新的顺序复制出所有元素
// 返回：元素切片副本
func (r *Ring[T]) Values() []T {
	out := make([]T, 0, r.count)
	start := (r.head - r.count + len(r.data)) % len(r.data)
	for i := 0; i < r.count; i++ {
		out = append(out, r.data[(start+i)%len(r.data)])
	}
	return out
}
