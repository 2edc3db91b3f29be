package planner

import (
	"time"

	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/signalet-go/entity"
)

// Pretimed 生成均分配时方案
// 功能：把周期长度扣除过渡时长后在各相位间均分，作为兜底方案
// 参数：layout-相位结构
// 返回：未编号的定周期配时方案
// 说明：兜底方案不受绿灯上下限约束，周期长度无法覆盖过渡时长时
// 绿灯取零，保证任何相位结构下都能给出可下发的方案
func Pretimed(layout *Layout) *entity.SignalPlan {
	budget := layout.Cycle - layout.TransitionTotal()
	if budget < 0 {
		budget = 0
	}
	green := budget / float64(len(layout.Phases))
	plan := &entity.SignalPlan{
		JunctionID: layout.JunctionID,
		Cycle:      layout.TransitionTotal() + green*float64(len(layout.Phases)),
		Timings:    make([]entity.PhaseTiming, len(layout.Phases)),
		Pretimed:   true,
		CreatedAt:  time.Now(),
	}
	for i, m := range layout.Phases {
		plan.Timings[i] = entity.PhaseTiming{
			PhaseIndex: i,
			Green:      green,
			Transition: m.Transition.Total,
		}
	}
	return plan
}

// PretimedFromProgram 从固定配时程序生成兜底方案
// 功能：把路网提供的固定配时程序转换为配时方案，保留原始相位时长
// 参数：layout-相位结构，program-固定配时程序
// 返回：未编号的定周期配时方案，程序为空或时长非法时返回nil
// 说明：固定程序的相位表可能与可用相位表不一致（含显式过渡相位），
// 因此时长原样保留在Green字段中、过渡时长记零，渲染时直接使用原程序
func PretimedFromProgram(layout *Layout, program *mapv2.TrafficLight) *entity.SignalPlan {
	if program == nil || len(program.Phases) == 0 {
		return nil
	}
	cycle := lo.SumBy(program.Phases, func(p *mapv2.Phase) float64 { return p.Duration })
	if cycle <= 0 {
		return nil
	}
	plan := &entity.SignalPlan{
		JunctionID: layout.JunctionID,
		Cycle:      cycle,
		Timings:    make([]entity.PhaseTiming, len(program.Phases)),
		Pretimed:   true,
		CreatedAt:  time.Now(),
		Program:    program,
	}
	for i, p := range program.Phases {
		plan.Timings[i] = entity.PhaseTiming{PhaseIndex: i, Green: p.Duration}
	}
	return plan
}
