package entity

import (
	"git.fiblab.net/general/common/v2/geometry"
	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
)

// 方位常量
const (
	LEFT  = 0 // 左侧
	RIGHT = 1 // 右侧
)

// Lane连接关系
type Connection struct {
	Lane ILane                    // 连接到的Lane
	Type mapv2.LaneConnectionType // 连接类型
}

// Lane冲突点
type Overlap struct {
	Other     ILane   // 冲突Lane
	OtherS    float64 // 冲突车道的S坐标
	SelfFirst bool    // 是否本Lane优先
}

// entity/lane/lane.go的依赖倒置
type ILane interface {
	// 初始化

	SetParentRoadWhenInit(parent IRoad, offset int) // 设置lane所在road的指针与偏移量
	SetParentJunctionWhenInit(parent IJunction)     // 设置lane所在junction

	// Print

	String() string

	// getter

	ID() int32            // 获取Lane ID
	Length() float64      // 获取Lane长度
	Width() float64       // 获取Lane宽度
	Type() mapv2.LaneType // 获取Lane类型
	Turn() mapv2.LaneTurn // 获取Lane转向类型
	ParentID() int32      // 获取Lane的父对象(road/junction)的ID

	Predecessors() map[int32]Connection // 获取Lane的所有前驱Lane与连接关系
	Successors() map[int32]Connection   // 获取Lane的所有后继Lane与连接关系
	// 查询唯一前驱，仅限于车道类型为DRIVING的路口内车道
	UniquePredecessor() (ILane, error)
	Overlaps() map[float64]Overlap           // 获取Lane上的冲突点列表
	CenterLine() []geometry.Point            // 获取Lane的中心线
	CenterLineLengths() []float64            // 获取Lane的中心线长度
	GetPositionByS(s float64) geometry.Point // 将当前车道s坐标转换为xy坐标
	InRoad() bool                            // 检查Lane是否为Road Lane
	InJunction() bool                        // 检查Lane是否为Junction Lane

	// 车道状态

	MaxV() float64 // 获取车道限速

	// 所在道路/路口

	ParentRoad() IRoad         // 获取Lane所在的Road
	ParentJunction() IJunction // 获取Lane所在的Junction

	// 信控语义

	IsWalkLane() bool             // 检查是否是人行道
	IsRightTurnDrivingLane() bool // 检查是否是右转行车道
}

// entity/road/road.go的依赖倒置
type IRoad interface {
	String() string

	ID() int32                     // 获取Road ID
	Name() string                  // 获取Road名称
	Lanes() map[int32]ILane        // 获取Road的所有Lane(ID -> Lane)
	DrivingPredecessor() IJunction // 获取前驱Junction
	DrivingSuccessor() IJunction   // 获取后继Junction

	MaxV() float64            // 获取道路限速（行车道限速均值）
	GetAvgDrivingL() float64  // 获取行车道平均长度
	TravelTime(v float64) float64 // 按给定车速估算通行时间，v<=0时取道路限速
}

// entity/junction/junction.go的依赖倒置
type IJunction interface {
	String() string

	ID() int32              // 获取Junction ID
	Lanes() map[int32]ILane // 获取Junction内的所有车道（Lane ID -> Lane）
	HasTrafficLight() bool  // 判断是否有可控信号灯（至少两个可用相位且不存在冲突放行）
	ApproachIDs() []int32   // 获取所有进口道（入道路）ID
	Center() geometry.Point // 获取Junction中心点坐标

	// 根据出口路口查找连接两路口的道路
	ConnectingRoad(to IJunction) (IRoad, bool)

	// 信控状态

	ControlEnabled() bool        // 信控是否开启（运营侧可关闭）
	SetControlEnabled(ok bool)   // 设置信控开关
	Degraded() bool              // 是否处于降级状态（兜底配时运行）
	SetDegraded(degraded bool)   // 设置降级状态

	// 配时方案

	// 根据进口道状态与需求预测计算下一周期配时方案，失败时返回错误且不产生方案
	ComputePlan(states map[int32]ApproachState, preds map[int32]Prediction) (*SignalPlan, error)
	CurrentPlan() *SignalPlan                        // 当前生效方案
	CommitPlan(plan *SignalPlan) bool                // 提交方案，版本不高于当前版本时拒绝
	FailSafePlan() *SignalPlan                       // 产生带新版本号的兜底方案
	RetainedPlan() *SignalPlan                       // 产生带新版本号的当前方案副本（相位时长不变）
	RenderProgram(plan *SignalPlan) *mapv2.TrafficLight // 将方案渲染为含过渡相位的信号灯程序

	// 下发版本管理

	AckedVersion() uint64       // 信号机已确认的最高版本
	TryAckVersion(v uint64) bool // 推进已确认版本，v不高于当前值时忽略并返回false
}

// entity/corridor/corridor.go的依赖倒置
type ICorridor interface {
	String() string

	Name() string       // 获取干线名
	MemberIDs() []int32 // 获取成员路口ID（按行进方向排序）
	Cycle() float64     // 获取干线统一周期长度

	// 对本周期待下发方案应用绿波偏移，只修改Offset不修改相位时长
	Apply(pending map[int32]*SignalPlan)
}
