package planner

import (
	"errors"
	"flag"
	"time"

	"github.com/tsinghua-fib-lab/signalet-go/entity"
)

var (
	liveQueueWeight = flag.Float64("planner.live_queue_weight", 1, "压力计算中实时排队数的权重")
	liveRateWeight  = flag.Float64("planner.live_rate_weight", .5, "压力计算中实时到达率的权重（到达率乘以周期长度折算为车辆数）")
	predRateWeight  = flag.Float64("planner.pred_rate_weight", .8, "压力计算中预测到达率的权重（再乘以预测置信度）")
	minConfidence   = flag.Float64("planner.min_confidence", .2, "参与压力计算的预测置信度下限")
	priorityGain    = flag.Float64("planner.priority_gain", 3, "存在优先车辆的进口道的压力增益")
)

// ErrInfeasible 表示周期长度无法同时满足过渡时长与绿灯上下限约束
var ErrInfeasible = errors.New("planner: constraints cannot be satisfied within cycle")

// approachPressure 计算单个进口道的压力
// 功能：综合实时观测与需求预测计算进口道压力
// 参数：state-进口道实时状态，pred-需求预测，hasPred-是否存在预测
// 返回：压力值（非负）
// 算法说明：
// 1. 实时部分 = 排队数权重*排队数 + 到达率权重*到达率*周期长度，
//    过期或不可靠的观测不参与计算
// 2. 存在优先车辆时实时部分乘以优先增益
// 3. 预测部分 = 预测权重*置信度*预测到达率*周期长度，
//    置信度低于下限的预测不参与计算
func approachPressure(state entity.ApproachState, pred entity.Prediction, hasPred bool, cycle float64) float64 {
	pressure := 0.0
	if state.Usable() {
		live := *liveQueueWeight*state.Queue + *liveRateWeight*state.Rate*cycle
		if state.Priority {
			live *= *priorityGain
		}
		pressure += live
	}
	if hasPred && pred.Confidence >= *minConfidence {
		pressure += *predRateWeight * pred.Confidence * pred.Rate * cycle
	}
	if pressure < 0 {
		return 0
	}
	return pressure
}

// phasePressures 计算各相位的压力
// 功能：把进口道压力按相位放行关系聚合
// 参数：layout-相位结构，states-进口道实时状态，preds-进口道需求预测
// 返回：与相位表等长的压力数组
func phasePressures(
	layout *Layout,
	states map[int32]entity.ApproachState,
	preds map[int32]entity.Prediction,
) []float64 {
	pressures := make([]float64, len(layout.Phases))
	for i, m := range layout.Phases {
		for _, approach := range m.Approaches {
			pred, hasPred := preds[approach]
			pressures[i] += approachPressure(states[approach], pred, hasPred, layout.Cycle)
		}
	}
	return pressures
}

// allocateGreens 在绿灯上下限约束下按压力比例分配绿灯时间
// 功能：把可分配绿灯总时长按相位压力比例分配，并满足[minGreen, maxGreen]约束
// 参数：pressures-各相位压力，budget-可分配绿灯总时长，
// minGreen/maxGreen-单相位绿灯上下限
// 返回：各相位绿灯时长，或无可行解时返回ErrInfeasible
// 算法说明（注水式分配）：
// 1. 所有相位先置为最小绿灯，剩余时长按压力比例逐轮分配
// 2. 某相位到达最大绿灯后固定，余量在未固定相位中继续按比例分配
// 3. 压力全为零时均分
// 4. 全部固定仍有余量视为不可行（周期过长）
func allocateGreens(pressures []float64, budget, minGreen, maxGreen float64) ([]float64, error) {
	n := len(pressures)
	if n == 0 {
		return nil, ErrInfeasible
	}
	if float64(n)*minGreen > budget+entity.PlanEpsilon {
		return nil, ErrInfeasible
	}
	if float64(n)*maxGreen < budget-entity.PlanEpsilon {
		return nil, ErrInfeasible
	}
	greens := make([]float64, n)
	active := make([]int, 0, n)
	for i := range greens {
		greens[i] = minGreen
		active = append(active, i)
	}
	extra := budget - float64(n)*minGreen
	for extra > entity.PlanEpsilon && len(active) > 0 {
		sum := 0.0
		for _, i := range active {
			sum += pressures[i]
		}
		shares := make(map[int]float64, len(active))
		for _, i := range active {
			if sum > 0 {
				shares[i] = extra * pressures[i] / sum
			} else {
				shares[i] = extra / float64(len(active))
			}
		}
		pinned := false
		remain := make([]int, 0, len(active))
		for _, i := range active {
			headroom := maxGreen - greens[i]
			if shares[i] >= headroom-entity.PlanEpsilon {
				greens[i] = maxGreen
				extra -= headroom
				pinned = true
			} else {
				remain = append(remain, i)
			}
		}
		if !pinned {
			for _, i := range active {
				greens[i] += shares[i]
			}
			extra = 0
		}
		active = remain
	}
	if extra > entity.PlanEpsilon {
		return nil, ErrInfeasible
	}
	// 消除浮点累计误差，保证时长总和精确等于预算
	total := 0.0
	for _, g := range greens {
		total += g
	}
	if diff := budget - total; diff != 0 {
		for _, i := range active {
			if greens[i]+diff >= minGreen && greens[i]+diff <= maxGreen {
				greens[i] += diff
				break
			}
		}
	}
	return greens, nil
}

// Optimize 生成一份自适应配时方案
// 功能：根据进口道实时状态与需求预测重新分配各相位绿灯时长
// 参数：layout-相位结构，states-进口道实时状态（键为入道路ID），
// preds-进口道需求预测（键为入道路ID，可为nil）
// 返回：未编号的配时方案（版本号与相位差由调用方填写），
// 或约束无可行解时返回ErrInfeasible
// 算法说明：
// 1. 计算各相位压力（过期观测视为零压力）
// 2. 周期长度扣除固定过渡时长后，按压力比例注水式分配绿灯
// 3. 相位顺序与过渡结构保持不变，时长总和精确等于周期长度
func Optimize(
	layout *Layout,
	states map[int32]entity.ApproachState,
	preds map[int32]entity.Prediction,
) (*entity.SignalPlan, error) {
	pressures := phasePressures(layout, states, preds)
	budget := layout.Cycle - layout.TransitionTotal()
	greens, err := allocateGreens(pressures, budget, layout.MinGreen, layout.MaxGreen)
	if err != nil {
		return nil, err
	}
	plan := &entity.SignalPlan{
		JunctionID: layout.JunctionID,
		Cycle:      layout.Cycle,
		Timings:    make([]entity.PhaseTiming, len(layout.Phases)),
		CreatedAt:  time.Now(),
	}
	for i, m := range layout.Phases {
		plan.Timings[i] = entity.PhaseTiming{
			PhaseIndex: i,
			Green:      greens[i],
			Transition: m.Transition.Total,
		}
	}
	return plan, nil
}
