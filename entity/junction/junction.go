package junction

import (
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"git.fiblab.net/general/common/v2/geometry"
	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/signalet-go/entity"
	"github.com/tsinghua-fib-lab/signalet-go/entity/junction/planner"
)

var (
	ErrNoTrafficLight = errors.New("traffic light control is unavailable for the junction")
)

type Junction struct {
	ctx entity.ITaskContext

	id           int32
	laneIDs      []int32
	lanes        map[int32]entity.ILane // 车道id->车道指针映射表
	orderedLanes []entity.ILane         // 按路网给定顺序排列的车道，与相位灯色向量列序一致

	layout       *planner.Layout        // 相位结构，无可用相位时为nil
	laneApproach map[int32]int32        // 路口车道ID->入道路ID
	approachIDs  []int32                // 进口道（入道路）ID，升序
	outRoads     map[int32]entity.IRoad // 出道路ID->道路
	outRoadIDs   []int32                // 出道路ID，升序
	fixedProgram *mapv2.TrafficLight    // 路网内置固定配时程序
	center       geometry.Point         // 路口中心点

	// 兜底方案模板，版本号在每次取用时重新分配
	failSafeBase *entity.SignalPlan

	// 相位结构可用且不存在冲突放行
	controllable bool

	enabled  atomic.Bool // 优化控制开关，运营侧可关闭
	degraded atomic.Bool // 是否运行在兜底配时上

	versionCounter atomic.Uint64                     // 方案版本号分配器
	ackedVersion   atomic.Uint64                     // 信号机已确认的最高版本
	current        atomic.Pointer[entity.SignalPlan] // 当前生效方案
}

// newJunction 创建并初始化一个新的Junction实例
// 功能：根据基础数据创建Junction对象，构建进口道映射、相位结构与兜底方案
// 参数：ctx-任务上下文，base-基础Junction数据，laneManager-车道管理器，roadManager-道路管理器
// 返回：初始化完成的Junction实例
// 算法说明：
// 1. 从车道组数据建立路口车道到入道路的映射（无车道组时按唯一前驱推断）
// 2. 从可用相位构建相位结构，相位内存在冲突放行时停用该路口的优化控制
// 3. 按配置选择固定配时程序或均分配时作为兜底方案，并作为初始生效方案
func newJunction(
	ctx entity.ITaskContext,
	base *mapv2.Junction,
	laneManager entity.ILaneManager,
	roadManager entity.IRoadManager,
) *Junction {
	j := &Junction{
		ctx:          ctx,
		id:           base.Id,
		laneIDs:      base.LaneIds,
		lanes:        make(map[int32]entity.ILane),
		orderedLanes: make([]entity.ILane, 0, len(base.LaneIds)),
		laneApproach: make(map[int32]int32),
		outRoads:     make(map[int32]entity.IRoad),
		fixedProgram: base.FixedProgram,
	}

	// 初始化车道映射
	for _, laneID := range j.laneIDs {
		lane := laneManager.Get(laneID)
		lane.SetParentJunctionWhenInit(j)
		j.lanes[laneID] = lane
		j.orderedLanes = append(j.orderedLanes, lane)
	}

	// 从车道组建立进口道映射与出道路表
	for _, g := range base.DrivingLaneGroups {
		j.outRoads[g.OutRoadId] = roadManager.Get(g.OutRoadId)
		for _, laneID := range g.LaneIds {
			j.laneApproach[laneID] = g.InRoadId
		}
	}
	// 无车道组数据时按唯一前驱推断进口道
	missing := 0
	for _, l := range j.orderedLanes {
		if l.Type() != mapv2.LaneType_LANE_TYPE_DRIVING {
			continue
		}
		if _, ok := j.laneApproach[l.ID()]; ok {
			continue
		}
		pre, err := l.UniquePredecessor()
		if err != nil || !pre.InRoad() {
			missing++
			continue
		}
		j.laneApproach[l.ID()] = pre.ParentID()
	}
	if missing > 0 {
		log.Debugf("junction %d: %d driving lanes have no approach mapping", j.id, missing)
	}
	j.approachIDs = lo.Uniq(lo.Values(j.laneApproach))
	sort.Slice(j.approachIDs, func(a, b int) bool { return j.approachIDs[a] < j.approachIDs[b] })
	j.outRoadIDs = lo.Keys(j.outRoads)
	sort.Slice(j.outRoadIDs, func(a, b int) bool { return j.outRoadIDs[a] < j.outRoadIDs[b] })

	// 路口中心点取车道中点的均值
	if len(j.orderedLanes) > 0 {
		for _, l := range j.orderedLanes {
			p := l.GetPositionByS(l.Length() / 2)
			j.center.X += p.X
			j.center.Y += p.Y
		}
		j.center.X /= float64(len(j.orderedLanes))
		j.center.Y /= float64(len(j.orderedLanes))
	}

	// 转换可用相位数据并构建相位结构
	phases := lo.Map(base.Phases, func(p *mapv2.AvailablePhase, _ int) []mapv2.LightState {
		return p.States
	})
	cycle, minGreen, maxGreen := ctx.RuntimeConfig().JunctionConstraint(j.id)
	if len(phases) >= 2 {
		j.layout = planner.NewLayout(
			j.id, j.orderedLanes, phases, j.laneApproach,
			cycle, minGreen, maxGreen,
			planner.DefaultTransitionTiming(),
		)
		if pairs := j.layout.ConflictingGreenPairs(); len(pairs) > 0 {
			log.Errorf(
				"junction %d: available phases allow %d conflicting movement pairs, adaptive control disabled",
				j.id, len(pairs),
			)
		} else {
			j.controllable = true
		}
	}

	// 约束静态可行性检查，不可行时每个周期都会落入兜底
	if j.controllable {
		n := float64(len(j.layout.Phases))
		if need := n*minGreen + j.layout.TransitionTotal(); need > cycle+entity.PlanEpsilon {
			log.Warnf(
				"junction %d: min green and transitions need %.1fs but cycle is %.1fs, every cycle will fall back to pretimed",
				j.id, need, cycle,
			)
		} else if most := n*maxGreen + j.layout.TransitionTotal(); most < cycle-entity.PlanEpsilon {
			log.Warnf(
				"junction %d: max green and transitions fill at most %.1fs of the %.1fs cycle, every cycle will fall back to pretimed",
				j.id, most, cycle,
			)
		}
	}

	// 兜底方案与初始生效方案
	if j.controllable {
		if ctx.RuntimeConfig().C.PreferFixedLight && j.fixedProgram != nil && len(j.fixedProgram.Phases) > 0 {
			j.failSafeBase = planner.PretimedFromProgram(j.layout, j.fixedProgram)
		}
		if j.failSafeBase == nil {
			j.failSafeBase = planner.Pretimed(j.layout)
			j.failSafeBase.Program = planner.Render(j.layout, j.failSafeBase)
		}
		seed := j.failSafeBase.Clone()
		seed.Version = j.versionCounter.Add(1)
		j.current.Store(seed)
		j.enabled.Store(true)
	}

	return j
}

// ID 获取Junction的唯一标识符
// 功能：返回Junction的ID，用于标识和查找特定的Junction
// 返回：Junction的ID，如果Junction为nil则返回-1
func (j *Junction) ID() int32 {
	if j == nil {
		return -1
	}
	return j.id
}

func (j *Junction) String() string {
	return fmt.Sprintf("Junction %d", j.id)
}

// Lanes 获取Junction内的所有车道映射
// 功能：返回Junction内所有车道的映射表，以车道ID为键
// 返回：车道ID到车道对象的映射
func (j *Junction) Lanes() map[int32]entity.ILane {
	return j.lanes
}

// HasTrafficLight 判断是否有可控信号灯
// 返回：true表示相位结构可用且不存在冲突放行，可参与优化控制
func (j *Junction) HasTrafficLight() bool {
	return j.layout != nil && j.controllable
}

// ApproachIDs 获取所有进口道（入道路）ID
// 返回：升序排列的入道路ID列表
func (j *Junction) ApproachIDs() []int32 {
	return j.approachIDs
}

// Center 获取Junction中心点坐标
func (j *Junction) Center() geometry.Point {
	return j.center
}

// ConnectingRoad 根据出口路口查找连接两路口的道路
// 功能：在本路口的出道路中查找同时是目标路口进口道的道路
// 参数：to-目标路口
// 返回：连接道路与是否找到，多条道路相连时取ID最小者
func (j *Junction) ConnectingRoad(to entity.IJunction) (entity.IRoad, bool) {
	for _, id := range j.outRoadIDs {
		if lo.Contains(to.ApproachIDs(), id) {
			return j.outRoads[id], true
		}
	}
	return nil, false
}

// ControlEnabled 信控是否开启
func (j *Junction) ControlEnabled() bool {
	return j.enabled.Load()
}

// SetControlEnabled 设置信控开关
func (j *Junction) SetControlEnabled(ok bool) {
	j.enabled.Store(ok)
}

// Degraded 是否处于降级状态（兜底配时运行）
func (j *Junction) Degraded() bool {
	return j.degraded.Load()
}

// SetDegraded 设置降级状态
func (j *Junction) SetDegraded(degraded bool) {
	j.degraded.Store(degraded)
}

// ComputePlan 根据进口道状态与需求预测计算下一周期配时方案
// 功能：调用配时优化器生成新方案，分配版本号并继承当前相位偏移
// 参数：states-进口道实时状态（键为入道路ID），preds-进口道需求预测
// 返回：通过安全校验的新方案，约束不可行或校验失败时返回错误且不产生方案
func (j *Junction) ComputePlan(
	states map[int32]entity.ApproachState, preds map[int32]entity.Prediction,
) (*entity.SignalPlan, error) {
	if !j.HasTrafficLight() {
		return nil, ErrNoTrafficLight
	}
	plan, err := planner.Optimize(j.layout, states, preds)
	if err != nil {
		return nil, err
	}
	plan.Version = j.versionCounter.Add(1)
	if cur := j.current.Load(); cur != nil {
		plan.Offset = planner.CyclePosition(cur.Offset, 0, plan.Cycle)
	}
	if err := plan.Validate(j.layout.MinGreen, j.layout.MaxGreen); err != nil {
		return nil, err
	}
	return plan, nil
}

// CurrentPlan 获取当前生效方案
func (j *Junction) CurrentPlan() *entity.SignalPlan {
	return j.current.Load()
}

// CommitPlan 提交方案作为当前生效方案
// 功能：以版本号为准的单调提交，版本不高于当前方案时拒绝
// 参数：plan-待提交方案
// 返回：true表示提交成功
func (j *Junction) CommitPlan(plan *entity.SignalPlan) bool {
	for {
		cur := j.current.Load()
		if cur != nil && plan.Version <= cur.Version {
			return false
		}
		if j.current.CompareAndSwap(cur, plan) {
			return true
		}
	}
}

// FailSafePlan 产生一份带新版本号的兜底方案
// 功能：复制兜底方案模板，分配新版本号并继承当前相位偏移
// 返回：可直接下发的兜底方案，路口不可控时返回nil
func (j *Junction) FailSafePlan() *entity.SignalPlan {
	if j.failSafeBase == nil {
		return nil
	}
	plan := j.failSafeBase.Clone()
	plan.Version = j.versionCounter.Add(1)
	plan.CreatedAt = time.Now()
	if cur := j.current.Load(); cur != nil {
		plan.Offset = planner.CyclePosition(cur.Offset, 0, plan.Cycle)
	}
	return plan
}

// RetainedPlan 产生一份带新版本号的当前方案副本
// 功能：复制当前生效方案并分配新版本号，优化失败的干线成员
// 以此沿用旧方案的相位结构参与绿波协调
// 返回：相位时长不变的方案副本，无生效方案时返回nil
func (j *Junction) RetainedPlan() *entity.SignalPlan {
	cur := j.current.Load()
	if cur == nil {
		return nil
	}
	plan := cur.Clone()
	plan.Version = j.versionCounter.Add(1)
	plan.CreatedAt = time.Now()
	return plan
}

// RenderProgram 将方案渲染为含过渡相位的信号灯程序
// 参数：plan-配时方案
// 返回：可下发的信号灯程序，方案自带预渲染程序时直接返回
func (j *Junction) RenderProgram(plan *entity.SignalPlan) *mapv2.TrafficLight {
	if plan.Program != nil {
		return plan.Program
	}
	if j.layout == nil {
		return nil
	}
	return planner.Render(j.layout, plan)
}

// AckedVersion 获取信号机已确认的最高版本
func (j *Junction) AckedVersion() uint64 {
	return j.ackedVersion.Load()
}

// TryAckVersion 推进信号机已确认的最高版本
// 功能：以版本号为准的单调推进，容忍乱序到达的确认
// 参数：v-确认的版本号
// 返回：true表示推进成功，v不高于当前值时忽略并返回false
func (j *Junction) TryAckVersion(v uint64) bool {
	for {
		cur := j.ackedVersion.Load()
		if v <= cur {
			return false
		}
		if j.ackedVersion.CompareAndSwap(cur, v) {
			return true
		}
	}
}

// CurrentProgram 获取当前生效方案对应的信号灯程序与周期内位置
// 功能：渲染当前方案并按时钟与相位偏移定位当前相位
// 返回：信号灯程序、当前相位索引、当前相位剩余时间，无生效方案时程序为nil
func (j *Junction) CurrentProgram() (*mapv2.TrafficLight, int32, float64) {
	plan := j.current.Load()
	if plan == nil {
		return nil, 0, 0
	}
	program := j.RenderProgram(plan)
	if program == nil {
		return nil, 0, 0
	}
	pos := planner.CyclePosition(j.ctx.Clock().T, plan.Offset, plan.Cycle)
	index, remaining := planner.ProgramPhaseAt(program, pos)
	return program, index, remaining
}

// Override 将操作员提供的信号灯程序包装为新版本配时方案
// 功能：校验程序结构后生成定周期方案，渲染时原样使用该程序
// 参数：program-操作员提供的信号灯程序
// 返回：带新版本号的方案，程序结构非法时返回错误
func (j *Junction) Override(program *mapv2.TrafficLight) (*entity.SignalPlan, error) {
	if !j.HasTrafficLight() {
		return nil, ErrNoTrafficLight
	}
	for i, p := range program.Phases {
		if len(p.States) != len(j.orderedLanes) {
			return nil, fmt.Errorf(
				"phase %d has %d states but junction %d has %d lanes",
				i, len(p.States), j.id, len(j.orderedLanes),
			)
		}
		if p.Duration <= 0 {
			return nil, fmt.Errorf("phase %d has non-positive duration %f", i, p.Duration)
		}
	}
	plan := planner.PretimedFromProgram(j.layout, program)
	if plan == nil {
		return nil, errors.New("traffic light program has no phases")
	}
	plan.Version = j.versionCounter.Add(1)
	return plan, nil
}

// setStatus 设置信号灯控制状态
// 功能：开启或关闭该路口的优化控制
// 参数：ok-true表示恢复优化控制，false表示停用
// 返回：设置结果，路口不可控时返回错误
func (j *Junction) setStatus(ok bool) error {
	if !j.HasTrafficLight() {
		return ErrNoTrafficLight
	}
	j.SetControlEnabled(ok)
	return nil
}
