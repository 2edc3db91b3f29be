package entity

import (
	"fmt"
	"math"
	"time"

	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
)

// 配时方案校验允许的时间误差（秒）
const PlanEpsilon = 1e-6

// Observation 单个进口道的一次检测器观测
// 说明：Queue与Rate来自路侧检测器，Time为检测器侧的观测时间戳
type Observation struct {
	Queue    float64   // 排队车辆数
	Rate     float64   // 到达流率（veh/s）
	Time     time.Time // 观测时间戳
	Reliable bool      // 检测器自报健康状态
	Priority bool      // 存在优先通行车辆（救护、消防等）
}

// ApproachState 状态快照中单个进口道的只读条目
type ApproachState struct {
	Observation
	Stale bool // 最近一次被接受的观测已超过过期时限
}

// Usable 检查观测是否可用于配时计算
// 说明：过期或自报异常的观测不参与压力计算，缺数据按零需求处理而不是外推
func (s ApproachState) Usable() bool {
	return !s.Stale && s.Reliable
}

// Prediction 单个进口道的需求预测
type Prediction struct {
	Rate       float64   // 预测到达流率（veh/s）
	Confidence float64   // 置信度[0,1]
	Time       time.Time // 预测生成时间
}

// PhaseTiming 配时方案中单个相位的时间分配
type PhaseTiming struct {
	PhaseIndex int     // 相位表中的相位索引
	Green      float64 // 绿灯时长（秒）
	Transition float64 // 固定过渡时长（行人清空+黄灯+全红，秒），不参与优化分配
}

// Duration 相位总时长（绿灯+过渡）
func (t PhaseTiming) Duration() float64 {
	return t.Green + t.Transition
}

// SignalPlan 单个路口一个完整周期的配时方案
// 说明：方案按版本号单调递增，提交与下发以版本号为准；
// Offset为干线协调引入的整体相位偏移，只平移不改变各相位时长
type SignalPlan struct {
	JunctionID int32         // 路口ID
	Version    uint64        // 方案版本号，单路口内严格递增
	Cycle      float64       // 周期长度（秒）
	Offset     float64       // 协调相位偏移（秒），[0, Cycle)
	Timings    []PhaseTiming // 各相位时间分配，相位顺序固定
	Pretimed   bool          // true表示兜底/默认方案（固定配时或均分配时）
	CreatedAt  time.Time     // 方案生成时间

	// 预渲染的信号灯程序（路网固定配时或操作员下发的程序），
	// 为nil时按相位结构渲染，Timings的相位索引才与相位结构对应
	Program *mapv2.TrafficLight
}

// TotalDuration 计算所有相位时长之和
// 说明：合法方案应与Cycle相等
func (p *SignalPlan) TotalDuration() float64 {
	total := 0.0
	for _, t := range p.Timings {
		total += t.Duration()
	}
	return total
}

// Validate 校验配时方案是否满足安全约束
// 功能：检查方案结构完整性、时长总和等于周期、绿灯时长在上下限内
// 参数：minGreen-最小绿灯时间，maxGreen-最大绿灯时间
// 返回：校验失败时返回错误
// 说明：兜底方案（Pretimed）的绿灯时长来自路网内置配时，不受上下限约束
func (p *SignalPlan) Validate(minGreen, maxGreen float64) error {
	if len(p.Timings) == 0 {
		return fmt.Errorf("plan for junction %d has no phase timings", p.JunctionID)
	}
	if p.Version == 0 {
		return fmt.Errorf("plan for junction %d has zero version", p.JunctionID)
	}
	if p.Offset < 0 || p.Offset >= p.Cycle+PlanEpsilon {
		return fmt.Errorf("plan for junction %d has offset %f out of [0, %f)", p.JunctionID, p.Offset, p.Cycle)
	}
	if total := p.TotalDuration(); math.Abs(total-p.Cycle) > PlanEpsilon {
		return fmt.Errorf("plan for junction %d has total duration %f != cycle %f", p.JunctionID, total, p.Cycle)
	}
	if p.Pretimed {
		return nil
	}
	for _, t := range p.Timings {
		if t.Green < minGreen-PlanEpsilon || t.Green > maxGreen+PlanEpsilon {
			return fmt.Errorf(
				"plan for junction %d has green %f of phase %d out of [%f, %f]",
				p.JunctionID, t.Green, t.PhaseIndex, minGreen, maxGreen,
			)
		}
	}
	return nil
}

// Clone 复制配时方案
// 说明：干线协调在下发前修改Offset，复制避免影响已提交的方案
func (p *SignalPlan) Clone() *SignalPlan {
	c := *p
	c.Timings = make([]PhaseTiming, len(p.Timings))
	copy(c.Timings, p.Timings)
	return &c
}

func (p *SignalPlan) String() string {
	return fmt.Sprintf(
		"SignalPlan{Junction=%d, Version=%d, Cycle=%.1f, Offset=%.1f, Phases=%d, Pretimed=%v}",
		p.JunctionID, p.Version, p.Cycle, p.Offset, len(p.Timings), p.Pretimed,
	)
}

// DispatchOutcome 一次方案下发的最终结果
type DispatchOutcome int

const (
	DispatchAcknowledged DispatchOutcome = iota // 信号机确认执行
	DispatchRejected                            // 信号机拒绝（版本不一致），不重试
	DispatchTimedOut                            // 超时，重试一次后仍失败
	DispatchSkipped                             // 版本不高于已确认版本或信控被禁用，未下发
)

func (o DispatchOutcome) String() string {
	switch o {
	case DispatchAcknowledged:
		return "acknowledged"
	case DispatchRejected:
		return "rejected"
	case DispatchTimedOut:
		return "timed_out"
	case DispatchSkipped:
		return "skipped"
	default:
		return fmt.Sprintf("unknown(%d)", int(o))
	}
}
