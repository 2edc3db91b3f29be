// Package corridor 提供干线绿波协调，按行进方向依次偏移成员路口的配时方案
package corridor

import (
	"flag"
	"fmt"
	"math"

	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/signalet-go/entity"
	"github.com/tsinghua-fib-lab/signalet-go/entity/junction/planner"
	"github.com/tsinghua-fib-lab/signalet-go/utils/config"
)

var (
	fallbackSpeed = flag.Float64("corridor.fallback_speed", 11.1, "相邻路口无道路直接相连且未配置目标车速时，按路口中心距离估算偏移采用的车速（米/秒）")
)

// Corridor 协调干线
// 功能：将一组按行进方向排序的路口组成绿波带，使下游路口的绿灯
// 按行程时间依次开启
// 说明：干线只调整方案的周期偏移，不改变任何相位时长，
// 因此不影响单路口方案已满足的安全约束
type Corridor struct {
	ctx entity.ITaskContext

	name      string
	members   []entity.IJunction
	memberIDs []int32
	skews     []float64 // 各成员相对首个路口的累积行程时间（秒），首个成员为0
	cycle     float64   // 干线统一周期长度（秒）
}

// newCorridor 创建并初始化一个新的Corridor实例
// 功能：解析干线配置，计算各成员路口的绿波偏移
// 参数：ctx-任务上下文，c-干线配置，junctionManager-Junction管理器
// 返回：初始化完成的Corridor实例
// 算法说明：
// 1. 依次解析成员路口，成员少于两个或引用不存在的路口时panic
// 2. 相邻成员间的偏移取连接道路按目标车速的通行时间，
//    无直接道路相连时退化为路口中心距离除以车速
// 3. 偏移沿行进方向累加，得到每个成员相对首个路口的绿波偏移
func newCorridor(ctx entity.ITaskContext, c config.Corridor, junctionManager entity.IJunctionManager) *Corridor {
	if len(c.JunctionIDs) < 2 {
		log.Panicf("corridor %s: at least two junctions are required", c.Name)
	}
	members := lo.Map(c.JunctionIDs, func(id int32, _ int) entity.IJunction {
		j, err := junctionManager.GetOrError(id)
		if err != nil {
			log.Panicf("corridor %s: %v", c.Name, err)
		}
		return j
	})

	cycle := c.Cycle
	if cycle <= 0 {
		cycle = ctx.RuntimeConfig().C.Signal.DefaultCycle
	}

	skews := make([]float64, len(members))
	for i := 1; i < len(members); i++ {
		skews[i] = skews[i-1] + travelSkew(members[i-1], members[i], c.TargetSpeed)
	}

	for _, j := range members {
		if !j.HasTrafficLight() {
			log.Warnf("corridor %s: junction %d has no controllable traffic light", c.Name, j.ID())
			continue
		}
		memberCycle, _, _ := ctx.RuntimeConfig().JunctionConstraint(j.ID())
		if math.Abs(memberCycle-cycle) > entity.PlanEpsilon {
			log.Warnf("corridor %s: junction %d cycle %.1fs differs from corridor cycle %.1fs, progression will drift",
				c.Name, j.ID(), memberCycle, cycle)
		}
	}

	return &Corridor{
		ctx:       ctx,
		name:      c.Name,
		members:   members,
		memberIDs: c.JunctionIDs,
		skews:     skews,
		cycle:     cycle,
	}
}

// travelSkew 估算相邻两个路口间的行程时间
// 参数：from-上游路口，to-下游路口，targetSpeed-协调目标车速（m/s），<=0时取道路限速
// 返回：行程时间（秒）
// 说明：优先按连接道路的平均车道长度估算，无直接道路相连时
// 退化为路口中心的欧氏距离除以车速
func travelSkew(from, to entity.IJunction, targetSpeed float64) float64 {
	if road, ok := from.ConnectingRoad(to); ok {
		return road.TravelTime(targetSpeed)
	}
	v := targetSpeed
	if v <= 0 {
		v = *fallbackSpeed
	}
	a, b := from.Center(), to.Center()
	d := math.Hypot(b.X-a.X, b.Y-a.Y)
	log.Warnf("corridor: no road connects junction %d to %d, estimate skew by centroid distance %.0fm", from.ID(), to.ID(), d)
	return d / v
}

// String 获取Corridor的字符串表示
func (c *Corridor) String() string {
	return fmt.Sprintf("Corridor %s", c.name)
}

// Name 获取干线名
func (c *Corridor) Name() string {
	return c.name
}

// MemberIDs 获取成员路口ID（按行进方向排序）
func (c *Corridor) MemberIDs() []int32 {
	return c.memberIDs
}

// Cycle 获取干线统一周期长度
func (c *Corridor) Cycle() float64 {
	return c.cycle
}

// Apply 对本周期待下发方案应用绿波偏移
// 功能：以首个成员的偏移为基准，将各成员方案的偏移改写为基准
// 加累积行程时间后对各自周期取模
// 参数：pending-本周期待下发方案（路口ID->方案），未出现在其中的成员跳过
// 说明：只修改Offset，相位时长与相位结构保持不变；
// 优化失败而沿用旧方案的成员同样参与偏移，保证整条干线
// 的偏移出自同一周期的计算
func (c *Corridor) Apply(pending map[int32]*entity.SignalPlan) {
	base := .0
	if plan, ok := pending[c.members[0].ID()]; ok {
		base = plan.Offset
	}
	for i, j := range c.members {
		plan, ok := pending[j.ID()]
		if !ok {
			continue
		}
		plan.Offset = planner.CyclePosition(base+c.skews[i], 0, plan.Cycle)
	}
}
