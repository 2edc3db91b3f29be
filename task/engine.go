package task

import (
	"context"
	"flag"
	"fmt"
	"math"
	"time"

	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/signalet-go/entity"
	"github.com/tsinghua-fib-lab/signalet-go/metrics"
	"github.com/tsinghua-fib-lab/signalet-go/utils/container"
)

const (
	SelfName = "signal" // 本程序在信控任务集群中的名字
)

var (
	heartBeatInterval = flag.Int("log.heartbeat_interval", 10, "心跳日志间隔周期数")
	slowestJunctions  = flag.Int("log.slowest_junctions", 3, "周期报告中记录的最慢路口数量")
	realtime          = flag.Bool("engine.realtime", false, "按控制周期实际时长推进（单机演示模式）")
)

// CycleReport 单个控制周期的执行统计
type CycleReport struct {
	Cycle            int32                           // 周期数
	Targets          int                             // 应处理的路口数
	Processed        int                             // 截止时间前完成计算的路口数
	Optimized        int                             // 产生新方案的路口数
	Dispatched       int                             // 下发并确认的方案数
	Retained         int                             // 沿用上周期方案的路口数
	Abandoned        int                             // 因截止时间被放弃的路口数
	Degraded         int                             // 周期结束时处于降级状态的路口数
	PredictMisses    int                             // 预测服务不可用次数
	DispatchFailures int                             // 下发失败数（拒绝+超时）
	Outcomes         map[entity.DispatchOutcome]int  // 按结果分类的下发数
	Slowest          []string                        // 最慢路口及耗时
	Elapsed          time.Duration                   // 周期实际耗时
}

func (r *CycleReport) String() string {
	return fmt.Sprintf(
		"cycle %d: processed %d/%d, dispatched %d, retained %d, degraded %d, predict misses %d, dispatch failures %d, slowest %v, elapsed %v",
		r.Cycle, r.Processed, r.Targets, r.Dispatched, r.Retained, r.Degraded,
		r.PredictMisses, r.DispatchFailures, r.Slowest, r.Elapsed,
	)
}

// prepare 准备阶段，每个控制周期执行一次
// 功能：在每个控制周期开始时进行准备工作
// 算法说明：
// 1. 更新时钟：增加周期数并计算当前时间
// 2. 心跳日志：定期输出系统状态信息
// 3. 模拟数据源：单机演示模式下生成本周期的检测数据
func (ctx *Context) prepare() {
	log.Debugf("cycle %d complete, +1", ctx.clock.InternalCycle)
	ctx.clock.InternalCycle++
	ctx.clock.T = float64(ctx.clock.InternalCycle) * ctx.clock.DT

	if *heartBeatInterval > 0 && ctx.clock.InternalCycle%int32(*heartBeatInterval) == 0 {
		hour, minute, second := ctx.clock.GetHourMinuteSecond()
		log.Infof(
			"CYCLE: %d(%d:%d:%.2f)",
			ctx.clock.InternalCycle,
			hour, minute, second,
		)
	}

	if ctx.feeder != nil {
		n := ctx.feeder.Step(time.Now())
		log.Debugf("cycle %d: feeder generated %d observations", ctx.clock.InternalCycle, n)
	}
}

// runCycle 执行一个完整的控制周期
// 功能：对所有受控路口执行采集、预测、优化、协调、下发的完整流水线
// 参数：parent-父上下文
// 返回：本周期的执行统计
// 算法说明：
// 1. 以配置的截止时间建立周期上下文，整个流水线共享同一截止时间
// 2. 阶段一：每个路口的采集、预测、优化融合为单个任务，在有限并发的
//    工作池上执行，截止时间到达后放弃未开始的任务
// 3. 阶段二：所有优化完成后按干线应用绿波偏移，只修改Offset；
//    优化失败的干线成员以旧方案结构参与协调，偏移未变时不产生下发
// 4. 阶段三：并发下发方案，下发前复核信控开关
// 5. 被放弃或计算失败的路口沿用上周期方案并标记降级，不做部分更新
func (ctx *Context) runCycle(parent context.Context) *CycleReport {
	start := time.Now()
	rc := ctx.runtimeConfig
	deadline := start.Add(time.Duration(rc.C.Cycle.Deadline * float64(time.Second)))
	cctx, cancel := context.WithDeadline(parent, deadline)
	defer cancel()

	// 只处理开启信控且有可控信号灯的路口
	targets := lo.Filter(ctx.junctionManager.Junctions(), func(j entity.IJunction, _ int) bool {
		return j.HasTrafficLight() && j.ControlEnabled()
	})
	report := &CycleReport{
		Cycle:    ctx.clock.InternalCycle,
		Targets:  len(targets),
		Outcomes: make(map[entity.DispatchOutcome]int),
	}

	horizon := rc.All.Predictor.Horizon
	if horizon <= 0 {
		horizon = rc.C.Cycle.Interval
	}
	workers := rc.C.Cycle.Workers

	// 阶段一：采集、预测、优化融合为单个路口任务
	type computeResult struct {
		junction    entity.IJunction
		plan        *entity.SignalPlan
		failed      bool // 截止时间内完成计算但未产生方案
		predictMiss bool
		elapsed     time.Duration
	}
	results := make([]computeResult, len(targets))
	runParallel(cctx, workers, len(targets), func(i int) {
		j := targets[i]
		t0 := time.Now()
		res := computeResult{junction: j}

		states := ctx.telemetry.Snapshot(j.ID(), t0)
		preds, err := ctx.predictor.Predict(cctx, j.ID(), j.ApproachIDs(), horizon)
		if err != nil {
			// 无预测时只用实时数据
			res.predictMiss = true
			preds = nil
		}
		if plan, err := j.ComputePlan(states, preds); err != nil {
			log.Debugf("junction %d: %v, retain current plan", j.ID(), err)
			res.failed = true
		} else {
			res.plan = plan
		}
		// 迟到的结果作废，不做部分更新
		if cctx.Err() != nil {
			res.plan = nil
			res.failed = false
		}
		res.elapsed = time.Since(t0)
		results[i] = res
	})

	// 阶段一汇总：统计计算结果，放弃或失败的路口沿用上周期方案
	slow := container.NewPriorityQueue[int32]()
	for i := range results {
		r := &results[i]
		if r.junction == nil {
			targets[i].SetDegraded(true)
			report.Abandoned++
			report.Retained++
			continue
		}
		if r.predictMiss {
			report.PredictMisses++
		}
		if k := *slowestJunctions; k > 0 {
			slow.HeapPushBounded(r.junction.ID(), r.elapsed.Seconds(), k)
		}
		if r.plan != nil {
			report.Processed++
			continue
		}
		r.junction.SetDegraded(true)
		report.Retained++
		if r.failed {
			report.Processed++
		} else {
			report.Abandoned++
		}
	}
	report.Slowest = make([]string, slow.Len())
	for i := slow.Len() - 1; i >= 0; i-- {
		id, sec := slow.HeapPop()
		report.Slowest[i] = fmt.Sprintf("%d(%.1fms)", id, sec*1000)
	}

	// 阶段二：按干线应用绿波偏移，各干线成员互不重叠，可并发执行
	pending := make(map[int32]*entity.SignalPlan, len(targets))
	failedOnTime := make(map[int32]entity.IJunction)
	for i := range results {
		r := &results[i]
		if r.plan != nil {
			pending[r.plan.JunctionID] = r.plan
		} else if r.failed {
			failedOnTime[r.junction.ID()] = r.junction
		}
	}
	// 优化失败的干线成员以旧方案结构参与协调，协调只允许改变偏移
	corridors := ctx.corridorManager.Corridors()
	reissued := make(map[int32]entity.IJunction)
	for _, c := range corridors {
		for _, id := range c.MemberIDs() {
			if _, ok := pending[id]; ok {
				continue
			}
			j, ok := failedOnTime[id]
			if !ok {
				continue
			}
			if clone := j.RetainedPlan(); clone != nil {
				pending[id] = clone
				reissued[id] = j
			}
		}
	}
	runParallel(cctx, workers, len(corridors), func(i int) {
		corridors[i].Apply(pending)
	})

	// 阶段三：下发方案，确认后提交为当前方案
	type dispatchItem struct {
		junction entity.IJunction
		plan     *entity.SignalPlan
	}
	type dispatchResult struct {
		done    bool
		outcome entity.DispatchOutcome
	}
	items := make([]dispatchItem, 0, len(pending))
	for i := range results {
		if r := &results[i]; r.plan != nil {
			items = append(items, dispatchItem{junction: r.junction, plan: r.plan})
		}
	}
	report.Optimized = len(items)
	// 协调后偏移未变的旧方案副本不产生下发，路口维持原方案
	for id, j := range reissued {
		clone := pending[id]
		if cur := j.CurrentPlan(); cur != nil && math.Abs(clone.Offset-cur.Offset) <= entity.PlanEpsilon {
			continue
		}
		items = append(items, dispatchItem{junction: j, plan: clone})
	}
	dispatched := make([]dispatchResult, len(items))
	runParallel(cctx, workers, len(items), func(i int) {
		r := items[i]
		// 下发前复核信控开关，运营侧可能已经关闭
		if !r.junction.ControlEnabled() {
			dispatched[i] = dispatchResult{done: true, outcome: entity.DispatchSkipped}
			return
		}
		outcome := ctx.dispatcher.Dispatch(cctx, r.junction, r.plan)
		dispatched[i] = dispatchResult{done: true, outcome: outcome}
	})

	// 阶段三汇总
	for i := range items {
		d := dispatched[i]
		if !d.done {
			items[i].junction.SetDegraded(true)
			report.Abandoned++
			report.Retained++
			continue
		}
		report.Outcomes[d.outcome]++
		switch d.outcome {
		case entity.DispatchAcknowledged:
			report.Dispatched++
		case entity.DispatchSkipped:
			report.Retained++
		default:
			report.DispatchFailures++
		}
	}

	report.Degraded = ctx.junctionManager.DegradedCount()
	report.Elapsed = time.Since(start)
	return report
}

// update 更新阶段，每个控制周期执行一次
// 功能：执行一个控制周期并上报统计数据
// 算法说明：
// 1. 执行完整的控制流水线
// 2. 上报Prometheus指标
// 3. 按心跳间隔输出周期报告
func (ctx *Context) update() {
	report := ctx.runCycle(context.Background())

	metrics.EngineCycles.Inc()
	metrics.CycleDuration.Observe(report.Elapsed.Seconds())
	if report.Abandoned > 0 {
		metrics.CycleOverruns.Inc()
	}
	metrics.PlansComputed.WithLabelValues("optimized").Add(float64(report.Optimized))
	metrics.PlansComputed.WithLabelValues("retained").Add(float64(report.Retained))
	metrics.PlansComputed.WithLabelValues("fallback").Add(float64(report.Outcomes[entity.DispatchTimedOut]))
	for outcome, n := range report.Outcomes {
		metrics.DispatchOutcomes.WithLabelValues(outcome.String()).Add(float64(n))
	}
	metrics.PredictorUnavailable.Add(float64(report.PredictMisses))
	metrics.ControlledJunctions.Set(float64(ctx.junctionManager.ControlledCount()))
	metrics.DegradedJunctions.Set(float64(report.Degraded))

	if *heartBeatInterval > 0 && ctx.clock.InternalCycle%int32(*heartBeatInterval) == 0 {
		log.Infof("%v", report)
	} else {
		log.Debugf("%v", report)
	}
}

// Run 运行
func (ctx *Context) Run() {
	// 初始化
	ctx.Init()
	// init syncer
	ctx.sidecar.Step(false)
	pace := time.Duration(ctx.runtimeConfig.C.Cycle.Interval * float64(time.Second))
	for {
		cycleStart := time.Now()
		ctx.prepare()
		// 通知准备阶段完成
		log.Debugf("cycle %d: prepare complete and call NotifyStepReady", ctx.clock.InternalCycle)
		ctx.sidecar.NotifyStepReady()
		log.Debugf("cycle %d: NotifyStepReady complete", ctx.clock.InternalCycle)
		ctx.update()
		log.Debugf("cycle %d: update complete", ctx.clock.InternalCycle)
		if *realtime {
			if d := pace - time.Since(cycleStart); d > 0 {
				time.Sleep(d)
			}
		}
		close := false
		if !ctx.clock.Endless() && ctx.clock.InternalCycle+1 >= ctx.clock.END_CYCLE {
			close = ctx.sidecar.Step(true)
		} else {
			close = ctx.sidecar.Step(false)
		}
		if close || ctx.closed.Load() {
			break
		}
	}
	log.Infof("engine complete")
	ctx.Close()
}
