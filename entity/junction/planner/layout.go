// 提供单路口的自适应配时优化算法
// 每个控制周期根据进口道实时状态与需求预测重新分配各相位绿灯时长，
// 相位顺序保持路网提供的可用相位顺序不变
package planner

import (
	"flag"

	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/signalet-go/entity"
)

var (
	yellowTime          = flag.Float64("planner.yellow_time", 3, "相位切换黄灯时间")
	pedestrianClearTime = flag.Float64("planner.pedestrian_clear_time", 5, "相位切换行人清空时间")
	allRedTime          = flag.Float64("planner.all_red_time", 3, "相位切换全红时间")
)

// TransitionTiming 相位切换的固定过渡时长参数
type TransitionTiming struct {
	Yellow   float64 // 黄灯时间（秒）
	PedClear float64 // 行人清空时间（秒）
	AllRed   float64 // 全红时间（秒）
}

// DefaultTransitionTiming 获取过渡时长的全局默认值
// 返回：由命令行参数指定的过渡时长
func DefaultTransitionTiming() TransitionTiming {
	return TransitionTiming{
		Yellow:   *yellowTime,
		PedClear: *pedestrianClearTime,
		AllRed:   *allRedTime,
	}
}

// Transition 单个相位结束后的过渡相位序列
// 说明：过渡时长固定，不参与绿灯时间优化分配，渲染时追加在绿灯相位之后
type Transition struct {
	Phases [][]mapv2.LightState // 过渡相位灯色向量序列（行人清空、黄灯、全红）
	Times  []float64            // 各过渡相位持续时长
	Total  float64              // 过渡总时长
}

// Movements 单个相位的静态结构
type Movements struct {
	Index      int                // 相位表中的索引
	States     []mapv2.LightState // 每车道灯色向量，列序与Layout.Lanes一致
	Approaches []int32            // 该相位放行的进口道（入道路ID，不含右转专用与人行道）
	HasWalk    bool               // 是否放行人行道
	Transition Transition         // 切换到下一相位的过渡序列
}

// Layout 路口的静态相位结构与信控约束
// 功能：在初始化阶段从路网可用相位构建，为配时优化与程序渲染提供静态数据
type Layout struct {
	JunctionID int32
	Lanes      []entity.ILane // 路口内车道，顺序与相位灯色向量列序一致
	Phases     []Movements    // 可用相位，顺序固定
	Cycle      float64        // 周期长度（秒）
	MinGreen   float64        // 最小绿灯时间（秒）
	MaxGreen   float64        // 最大绿灯时间（秒）
}

// NewLayout 构建路口相位结构
// 功能：根据可用相位与车道数据构建Layout，预计算每个相位的进口道集合与过渡相位
// 参数：junctionID-路口ID，lanes-路口内车道（与相位灯色向量列序一致），
// phases-可用相位灯色向量列表，laneApproach-路口车道到入道路的映射，
// cycle/minGreen/maxGreen-信控约束，timing-过渡时长参数
// 返回：初始化完成的Layout
// 算法说明：
// 1. 对每个相位，收集绿灯行车道（不含右转专用）对应的进口道并去重
// 2. 检查相位是否放行人行道（决定过渡中是否插入行人清空）
// 3. 对每对相邻相位（循环），按灯色变化生成过渡相位序列：
//    绿变红的车道先黄灯，其中人行道在行人清空相位提前转黄；
//    红变绿的行车道在全红相位保持红灯
// 说明：相位灯色向量长度与车道数不一致视为路网数据损坏
func NewLayout(
	junctionID int32,
	lanes []entity.ILane,
	phases [][]mapv2.LightState,
	laneApproach map[int32]int32,
	cycle, minGreen, maxGreen float64,
	timing TransitionTiming,
) *Layout {
	l := &Layout{
		JunctionID: junctionID,
		Lanes:      lanes,
		Phases:     make([]Movements, 0, len(phases)),
		Cycle:      cycle,
		MinGreen:   minGreen,
		MaxGreen:   maxGreen,
	}
	for index, states := range phases {
		if len(states) != len(lanes) {
			log.Panicf(
				"junction %d: phase %d has %d states but %d lanes",
				junctionID, index, len(states), len(lanes),
			)
		}
		m := Movements{
			Index:      index,
			States:     states,
			Approaches: make([]int32, 0),
		}
		for i, state := range states {
			if state != mapv2.LightState_LIGHT_STATE_GREEN {
				continue
			}
			lane := lanes[i]
			if lane.IsWalkLane() {
				m.HasWalk = true
				continue
			}
			if lane.IsRightTurnDrivingLane() {
				// 右转默认放行，不参与压力统计
				continue
			}
			if approach, ok := laneApproach[lane.ID()]; ok {
				m.Approaches = append(m.Approaches, approach)
			}
		}
		m.Approaches = lo.Uniq(m.Approaches)
		l.Phases = append(l.Phases, m)
	}
	for i := range l.Phases {
		next := l.Phases[(i+1)%len(l.Phases)]
		l.Phases[i].Transition = buildTransition(l.Phases[i].States, next.States, lanes, timing)
	}
	return l
}

// buildTransition 生成两个相位之间的过渡相位序列
// 功能：根据前后相位的灯色变化生成行人清空、黄灯、全红过渡
// 参数：cur-当前相位灯色，next-下一相位灯色，lanes-车道列表，timing-过渡时长参数
// 返回：过渡相位序列
// 算法说明：
// 1. 黄灯相位：当前为绿灯、下一时刻为红灯的车道变为黄灯
// 2. 行人清空相位：变红的人行道提前转黄，其余保持当前灯色
// 3. 全红相位：下一时刻变绿的行车道保持红灯，清空冲突区
// 4. 顺序为 行人清空--黄灯--全红，时长为0或无灯色变化的过渡相位不生成
func buildTransition(cur, next []mapv2.LightState, lanes []entity.ILane, timing TransitionTiming) Transition {
	// 行人清空相位
	clearPhase := make([]mapv2.LightState, len(cur))
	// 黄灯相位，把当前为绿灯、下一时刻为红灯的变为黄灯
	yellowPhase := make([]mapv2.LightState, len(cur))
	hasClearPhase := false
	hasYellowPhase := false
	// 全红相位
	allRedPhase := make([]mapv2.LightState, len(cur))
	hasAllRedPhase := false
	copy(yellowPhase, cur)
	copy(clearPhase, cur)
	copy(allRedPhase, next)
	for i, state := range cur {
		if state == mapv2.LightState_LIGHT_STATE_GREEN && next[i] == mapv2.LightState_LIGHT_STATE_RED {
			yellowPhase[i] = mapv2.LightState_LIGHT_STATE_YELLOW
			hasYellowPhase = true
			if lanes[i].IsWalkLane() {
				hasClearPhase = true
				clearPhase[i] = mapv2.LightState_LIGHT_STATE_YELLOW
			}
		}
		if state == mapv2.LightState_LIGHT_STATE_RED && next[i] == mapv2.LightState_LIGHT_STATE_GREEN && !lanes[i].IsWalkLane() {
			allRedPhase[i] = mapv2.LightState_LIGHT_STATE_RED
			hasAllRedPhase = true
		}
	}
	t := Transition{
		Phases: make([][]mapv2.LightState, 0, 3),
		Times:  make([]float64, 0, 3),
	}
	if hasClearPhase && timing.PedClear > 0 {
		t.Phases = append(t.Phases, clearPhase)
		t.Times = append(t.Times, timing.PedClear)
	}
	if hasYellowPhase && timing.Yellow > 0 {
		t.Phases = append(t.Phases, yellowPhase)
		t.Times = append(t.Times, timing.Yellow)
	}
	if hasAllRedPhase && timing.AllRed > 0 {
		t.Phases = append(t.Phases, allRedPhase)
		t.Times = append(t.Times, timing.AllRed)
	}
	for _, d := range t.Times {
		t.Total += d
	}
	return t
}

// TransitionTotal 计算所有相位的过渡时长之和
func (l *Layout) TransitionTotal() float64 {
	total := 0.0
	for _, m := range l.Phases {
		total += m.Transition.Total
	}
	return total
}

// ConflictingGreenPairs 检查相位内部的冲突放行
// 功能：找出在同一相位内同时放行且存在冲突点的行车道对
// 返回：冲突车道ID对列表，空表示相位表安全
// 算法说明：
// 1. 对每个相位，收集绿灯行车道（右转默认让行，不参与检查）
// 2. 对每对绿灯车道检查冲突点集合
// 说明：可用相位表把冲突放行编排进同一相位属于路网数据问题，
// 引擎无法通过配时修复，调用方应将该路口排除在优化控制之外
func (l *Layout) ConflictingGreenPairs() [][2]int32 {
	pairs := make([][2]int32, 0)
	for _, m := range l.Phases {
		greens := make([]entity.ILane, 0)
		for i, state := range m.States {
			if state != mapv2.LightState_LIGHT_STATE_GREEN {
				continue
			}
			lane := l.Lanes[i]
			if lane.IsWalkLane() || lane.IsRightTurnDrivingLane() || lane.Type() != mapv2.LaneType_LANE_TYPE_DRIVING {
				continue
			}
			greens = append(greens, lane)
		}
		for i := 0; i < len(greens); i++ {
			for k := i + 1; k < len(greens); k++ {
				for _, overlap := range greens[i].Overlaps() {
					if overlap.Other.ID() == greens[k].ID() {
						pairs = append(pairs, [2]int32{greens[i].ID(), greens[k].ID()})
						break
					}
				}
			}
		}
	}
	return pairs
}
