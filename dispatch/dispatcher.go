package dispatch

import (
	"context"
	"time"

	"github.com/tsinghua-fib-lab/signalet-go/entity"
	"github.com/tsinghua-fib-lab/signalet-go/utils/config"
)

// Dispatcher 配时方案下发器
// 功能：将配时方案渲染为控制命令下发到信号机，并按回执维护
// 路口的已确认版本与降级状态
// 说明：同一路口的命令按版本号单调下发，低版本永远不会在
// 高版本确认之后生效
type Dispatcher struct {
	link    IActuatorLink
	timeout time.Duration
}

// NewDispatcher 创建下发器
// 参数：link-信号机链路，c-信号机链路配置
// 返回：初始化的Dispatcher实例
func NewDispatcher(link IActuatorLink, c config.Actuator) *Dispatcher {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Dispatcher{
		link:    link,
		timeout: time.Duration(timeout * float64(time.Second)),
	}
}

// Dispatch 将配时方案下发到指定路口的信号机
// 参数：ctx-上下文，j-目标路口，plan-配时方案
// 返回：下发结果
// 算法说明：
// 1. 版本守卫：方案版本不高于已确认版本时直接跳过，
//    周期超限导致两条命令同时在途时高版本胜出
// 2. 发送命令，传输失败时重试一次
// 3. 重试仍失败：路口进入降级状态，改发一次兜底方案
// 4. 信号机明确拒绝：不重试，已确认版本保持不变
// 5. 信号机确认：推进已确认版本并提交方案，
//    优化方案确认后清除降级状态
func (d *Dispatcher) Dispatch(ctx context.Context, j entity.IJunction, plan *entity.SignalPlan) entity.DispatchOutcome {
	if acked := j.AckedVersion(); plan.Version <= acked {
		log.Debugf("junction %d: plan version %d not above acked version %d, skip", j.ID(), plan.Version, acked)
		return entity.DispatchSkipped
	}

	receipt, err := d.send(ctx, j, plan)
	if err != nil {
		log.Warnf("junction %d: dispatch of version %d failed, retrying once: %v", j.ID(), plan.Version, err)
		receipt, err = d.send(ctx, j, plan)
	}
	if err != nil {
		log.Errorf("junction %d: dispatch of version %d failed after retry: %v", j.ID(), plan.Version, err)
		j.SetDegraded(true)
		d.dispatchFailSafe(ctx, j)
		return entity.DispatchTimedOut
	}
	if !receipt.Accepted {
		log.Warnf("junction %d: actuator rejected version %d: %s", j.ID(), plan.Version, receipt.Reason)
		return entity.DispatchRejected
	}

	j.TryAckVersion(plan.Version)
	j.CommitPlan(plan)
	if !plan.Pretimed && j.Degraded() {
		j.SetDegraded(false)
	}
	return entity.DispatchAcknowledged
}

// send 构造并发送一条控制命令
func (d *Dispatcher) send(ctx context.Context, j entity.IJunction, plan *entity.SignalPlan) (*Receipt, error) {
	now := time.Now()
	return d.link.Send(ctx, &Command{
		JunctionID: plan.JunctionID,
		Version:    plan.Version,
		Cycle:      plan.Cycle,
		Offset:     plan.Offset,
		Program:    j.RenderProgram(plan),
		IssuedAt:   now,
		Deadline:   now.Add(d.timeout),
	})
}

// dispatchFailSafe 下发兜底方案
// 说明：链路刚刚连续失败，兜底方案只尝试一次，
// 仍失败时信号机保持当前程序运行
func (d *Dispatcher) dispatchFailSafe(ctx context.Context, j entity.IJunction) {
	failSafe := j.FailSafePlan()
	if failSafe == nil {
		return
	}
	receipt, err := d.send(ctx, j, failSafe)
	if err != nil {
		log.Errorf("junction %d: fail-safe dispatch failed: %v", j.ID(), err)
		return
	}
	if !receipt.Accepted {
		log.Warnf("junction %d: actuator rejected fail-safe version %d: %s", j.ID(), failSafe.Version, receipt.Reason)
		return
	}
	j.TryAckVersion(failSafe.Version)
	j.CommitPlan(failSafe)
	log.Infof("junction %d: fail-safe plan version %d engaged", j.ID(), failSafe.Version)
}
