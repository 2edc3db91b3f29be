// Package randengine 包装golang.org/x/exp/rand的随机数引擎，
// 相同种子下输出序列可复现
package randengine

import (
	"flag"
	"sync"

	"golang.org/x/exp/rand"
)

var (
	seedOffset = flag.Uint64("rand.seed_offset", 0, "随机数种子偏移量，整体平移所有可复现序列")
)

// Engine 可复现随机数引擎
// 说明：嵌入rand.Rand，其原生方法非线程安全；
// 多goroutine共享同一引擎时使用Safe后缀的方法
type Engine struct {
	*rand.Rand
	mtx sync.Mutex
}

// New 创建随机数引擎
// 参数：seed-随机种子，实际种子为seed加全局偏移量
// 返回：初始化的Engine实例
func New(seed uint64) *Engine {
	return &Engine{Rand: rand.New(rand.NewSource(seed + *seedOffset))}
}

// PTrue 以概率p返回true（非线程安全）
func (e *Engine) PTrue(p float64) bool {
	return e.Float64() < p
}

// PTrueSafe 以概率p返回true（线程安全）
func (e *Engine) PTrueSafe(p float64) bool {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	return e.Float64() < p
}

// IntnSafe 生成[0,n)内的随机整数（线程安全）
func (e *Engine) IntnSafe(n int) int {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	return e.Intn(n)
}
