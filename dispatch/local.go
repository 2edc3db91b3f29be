package dispatch

import (
	"context"
	"errors"
	"flag"
	"sync"
	"time"

	"github.com/tsinghua-fib-lab/signalet-go/utils/randengine"
)

var (
	simFailP     = flag.Float64("dispatch.sim_fail_p", 0, "模拟链路单次传输失败的概率")
	simLatencyMs = flag.Int("dispatch.sim_latency_ms", 0, "模拟链路单次传输延迟上限（毫秒）")
)

// 模拟链路注入的传输失败
var errSimFailure = errors.New("dispatch: simulated transport failure")

// LocalLink 内置模拟信号机链路
// 功能：单机模式下模拟一组信号机：按路口记录已确认的最高版本，
// 拒绝版本不高于它的命令，并按配置注入传输失败与延迟
// 说明：相同种子下失败与延迟序列可复现
type LocalLink struct {
	engine *randengine.Engine

	mu    sync.Mutex
	acked map[int32]uint64 // 各路口已确认的最高版本
}

// NewLocalLink 创建模拟链路
// 参数：seed-随机种子
// 返回：初始化的LocalLink实例
func NewLocalLink(seed uint64) *LocalLink {
	return &LocalLink{
		engine: randengine.New(seed),
		acked:  make(map[int32]uint64),
	}
}

// Send 模拟发送控制命令
// 算法说明：
// 1. 按sim_latency_ms注入随机延迟，期间上下文取消则按传输失败处理
// 2. 按sim_fail_p注入随机传输失败
// 3. 命令版本不高于该路口已确认版本时拒绝，否则确认并推进版本
func (l *LocalLink) Send(ctx context.Context, cmd *Command) (*Receipt, error) {
	if *simLatencyMs > 0 {
		delay := time.Duration(l.engine.IntnSafe(*simLatencyMs)) * time.Millisecond
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	if l.engine.PTrueSafe(*simFailP) {
		return nil, errSimFailure
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if cmd.Version <= l.acked[cmd.JunctionID] {
		return &Receipt{Accepted: false, Reason: "stale version"}, nil
	}
	l.acked[cmd.JunctionID] = cmd.Version
	return &Receipt{Accepted: true}, nil
}
