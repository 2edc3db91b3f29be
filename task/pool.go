package task

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
)

// runParallel 以有限并发执行一批相互独立的任务
// 功能：控制周期内的批量路口计算，保证不会越过周期截止时间
// 参数：ctx-携带截止时间的上下文，workers-并发数（<=0时取CPU核数），n-任务数，fn-单个任务
// 返回：实际开始执行的任务数
// 算法说明：
// 1. 工作协程从共享通道领取任务下标
// 2. 投递每个任务前检查上下文，截止时间到达后停止投递
// 3. 已开始的任务运行到结束，未投递的任务被放弃
// 4. 返回实际执行的任务数，供调用方统计放弃量
func runParallel(ctx context.Context, workers, n int, fn func(i int)) int {
	if n <= 0 {
		return 0
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > n {
		workers = n
	}

	var executed atomic.Int64
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				fn(i)
				executed.Add(1)
			}
		}()
	}

feed:
	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			break
		}
		select {
		case jobs <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()
	return int(executed.Load())
}
