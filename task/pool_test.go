package task

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRunParallelExecutesAll(t *testing.T) {
	var sum atomic.Int64
	executed := runParallel(context.Background(), 4, 100, func(i int) {
		sum.Add(int64(i))
	})
	assert.Equal(t, 100, executed)
	assert.Equal(t, int64(99*100/2), sum.Load())
}

func TestRunParallelDefaultWorkers(t *testing.T) {
	executed := runParallel(context.Background(), 0, 8, func(int) {})
	assert.Equal(t, 8, executed)

	assert.Equal(t, 0, runParallel(context.Background(), 4, 0, func(int) {}))
}

func TestRunParallelBoundsConcurrency(t *testing.T) {
	var active, peak atomic.Int64
	runParallel(context.Background(), 3, 30, func(int) {
		cur := active.Add(1)
		for {
			old := peak.Load()
			if cur <= old || peak.CompareAndSwap(old, cur) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		active.Add(-1)
	})
	assert.LessOrEqual(t, peak.Load(), int64(3))
}

func TestRunParallelAbandonsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	executed := runParallel(ctx, 4, 100, func(int) {})
	assert.Equal(t, 0, executed)
}

func TestRunParallelAbandonsOnDeadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	executed := runParallel(ctx, 2, 1000, func(int) {
		time.Sleep(time.Millisecond)
	})
	// 截止时间后剩余任务被放弃，已开始的任务正常结束
	assert.Greater(t, executed, 0)
	assert.Less(t, executed, 1000)
}
