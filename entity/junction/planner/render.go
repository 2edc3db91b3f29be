package planner

import (
	"math"

	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	"github.com/tsinghua-fib-lab/signalet-go/entity"
)

// Render 把配时方案渲染为可下发的信号灯程序
// 功能：按方案时长展开相位表，在每个绿灯相位之后插入过渡相位
// 参数：layout-相位结构，plan-配时方案
// 返回：信号灯程序，相位时长总和等于方案周期长度
func Render(layout *Layout, plan *entity.SignalPlan) *mapv2.TrafficLight {
	phases := make([]*mapv2.Phase, 0, len(plan.Timings)*2)
	for _, t := range plan.Timings {
		m := layout.Phases[t.PhaseIndex]
		phases = append(phases, &mapv2.Phase{
			Duration: t.Green,
			States:   m.States,
		})
		for k, states := range m.Transition.Phases {
			phases = append(phases, &mapv2.Phase{
				Duration: m.Transition.Times[k],
				States:   states,
			})
		}
	}
	return &mapv2.TrafficLight{
		JunctionId: layout.JunctionID,
		Phases:     phases,
	}
}

// ProgramPhaseAt 定位信号灯程序在给定周期内位置处的相位
// 功能：沿程序相位表累计时长，求位置所在的相位索引与剩余时间
// 参数：program-信号灯程序，pos-周期内位置（秒，调用方负责取模）
// 返回：相位索引与该相位剩余时间
func ProgramPhaseAt(program *mapv2.TrafficLight, pos float64) (int32, float64) {
	if len(program.Phases) == 0 {
		return 0, 0
	}
	for i, p := range program.Phases {
		if pos < p.Duration {
			return int32(i), p.Duration - pos
		}
		pos -= p.Duration
	}
	// 浮点误差落在周期末尾时归入最后一个相位
	return int32(len(program.Phases) - 1), 0
}

// CyclePosition 计算当前时刻在周期内的位置
// 功能：按相位差平移后对周期长度取模
// 参数：t-当前时刻（秒），offset-相位差（秒），cycle-周期长度（秒）
// 返回：周期内位置，范围[0, cycle)
func CyclePosition(t, offset, cycle float64) float64 {
	if cycle <= 0 {
		return 0
	}
	pos := math.Mod(t-offset, cycle)
	if pos < 0 {
		pos += cycle
	}
	return pos
}
