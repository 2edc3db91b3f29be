package lane

import (
	"fmt"
	"sort"

	"github.com/tsinghua-fib-lab/signalet-go/entity"

	"git.fiblab.net/general/common/v2/geometry"
	geov2 "git.fiblab.net/sim/protos/v2/go/city/geo/v2"
	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	"github.com/samber/lo"
)

// Lane 车道实体
// 功能：表示地图中的车道，包含几何信息、拓扑连接、信控语义分类等
// 说明：信控引擎只使用车道的静态属性，不承载车辆与行人
type Lane struct {
	ctx entity.ITaskContext

	id int32

	// 初始化临时变量

	initPredecessors []*mapv2.LaneConnection
	initSuccessors   []*mapv2.LaneConnection
	initOverlaps     []*mapv2.LaneOverlap

	typ               mapv2.LaneType   // 车道类型
	turn              mapv2.LaneTurn   // 转向类型
	maxV              float64          // 车道限速
	parentJunction    entity.IJunction // 所在路口
	parentRoad        entity.IRoad     // 所在道路
	parentID          int32
	offsetInRoad      int                         // 在道路中的索引，0为最左侧车道，1为左数第二侧车道，以此类推
	predecessors      map[int32]entity.Connection // 前驱车道映射表
	successors        map[int32]entity.Connection // 后继车道映射表
	uniquePredecessor entity.ILane                // 唯一前驱
	overlaps          map[float64]entity.Overlap  // 冲突点数据集合
	lineLengths       []float64                   // 中心线折线点对应的的长度列表
	length            float64                     // 以中心线的长度为车道长度
	width             float64                     // 车道宽度
	line              []geometry.Point            // 转成Point的中心线折线
}

// newLane 创建并初始化一个新的Lane实例
// 功能：根据基础数据创建Lane对象，初始化几何信息与类型分类
// 参数：ctx-任务上下文，base-基础Lane数据
// 返回：初始化完成的Lane实例
func newLane(ctx entity.ITaskContext, base *mapv2.Lane) *Lane {
	l := &Lane{
		ctx:              ctx,
		id:               base.Id,
		initPredecessors: base.Predecessors,
		initSuccessors:   base.Successors,
		initOverlaps:     base.Overlaps,
		typ:              base.Type,
		turn:             base.Turn,
		maxV:             base.MaxSpeed,
		predecessors:     make(map[int32]entity.Connection),
		successors:       make(map[int32]entity.Connection),
		overlaps:         make(map[float64]entity.Overlap),
		lineLengths:      make([]float64, 0),
		line:             make([]geometry.Point, 0),
		width:            base.Width,
	}
	l.line = lo.Map(base.CenterLine.Nodes, func(node *geov2.XYPosition, _ int) geometry.Point {
		return geometry.NewPointFromPb(node)
	})
	l.lineLengths = geometry.GetPolylineLengths2D(l.line)
	l.length = l.lineLengths[len(l.lineLengths)-1]

	switch l.typ {
	case mapv2.LaneType_LANE_TYPE_DRIVING:
	case mapv2.LaneType_LANE_TYPE_WALKING:
	case mapv2.LaneType_LANE_TYPE_RAIL_TRANSIT:
	default:
		log.Panicf("bad type %v for lane %d", l.typ, l.id)
	}
	return l
}

// initWithManager 在管理器初始化后建立Lane的连接关系
// 功能：根据初始化数据建立前驱、后继、冲突点等连接关系
// 参数：laneManager-车道管理器
// 说明：建立车道间的拓扑关系，为进口道映射和相位冲突校验提供基础
func (l *Lane) initWithManager(laneManager entity.ILaneManager) {
	for _, conn := range l.initPredecessors {
		lane := laneManager.Get(conn.Id)
		l.predecessors[conn.Id] = entity.Connection{Lane: lane, Type: conn.Type}
	}
	if len(l.predecessors) == 1 {
		for _, conn := range l.predecessors {
			l.uniquePredecessor = conn.Lane
			break
		}
	}
	for _, conn := range l.initSuccessors {
		lane := laneManager.Get(conn.Id)
		l.successors[conn.Id] = entity.Connection{Lane: lane, Type: conn.Type}
	}
	for _, overlap := range l.initOverlaps {
		lane := laneManager.Get(overlap.Other.LaneId)
		l.overlaps[overlap.Self.S] = entity.Overlap{
			Other:     lane,
			OtherS:    overlap.Other.S,
			SelfFirst: overlap.SelfFirst,
		}
	}
	l.initPredecessors = nil
	l.initSuccessors = nil
	l.initOverlaps = nil
}

// 数据初始化

// SetParentRoadWhenInit 设置lane所在road与偏移量
// 功能：在初始化阶段设置Lane所属的道路和偏移量
// 参数：parent-所属道路，offset-在道路中的偏移量
// 说明：设置后清除junction关联，更新parentID
func (l *Lane) SetParentRoadWhenInit(parent entity.IRoad, offset int) {
	l.parentRoad = parent
	l.offsetInRoad = offset
	l.parentJunction = nil
	l.parentID = parent.ID()
}

// SetParentJunctionWhenInit 设置lane所在junction
// 功能：在初始化阶段设置Lane所属的路口
// 参数：parent-所属路口
// 说明：设置后清除道路关联，更新parentID
func (l *Lane) SetParentJunctionWhenInit(parent entity.IJunction) {
	l.parentJunction = parent
	l.parentRoad = nil
	l.parentID = parent.ID()
}

// 静态数据

func (l *Lane) String() string {
	return fmt.Sprintf("Lane %d", l.id)
}

// 获取Lane ID
func (l *Lane) ID() int32 {
	if l == nil {
		return -1
	}
	return l.id
}

// 获取Lane长度
func (l *Lane) Length() float64 {
	return l.length
}

// 获取Lane宽度
func (l *Lane) Width() float64 {
	return l.width
}

// 获取Lane类型
func (l *Lane) Type() mapv2.LaneType {
	return l.typ
}

// 获取Lane转向类型
func (l *Lane) Turn() mapv2.LaneTurn {
	return l.turn
}

// 获取Lane的父对象(road/junction)的ID
func (l *Lane) ParentID() int32 {
	return l.parentID
}

// 获取Lane的所有后继Lane与连接关系
func (l *Lane) Successors() map[int32]entity.Connection {
	return l.successors
}

// 获取Lane的所有前驱Lane与连接关系
func (l *Lane) Predecessors() map[int32]entity.Connection {
	return l.predecessors
}

// 查询唯一前驱，仅限于车道类型为DRIVING的路口内车道
func (l *Lane) UniquePredecessor() (entity.ILane, error) {
	if l.parentJunction == nil || l.typ != mapv2.LaneType_LANE_TYPE_DRIVING {
		return nil, fmt.Errorf("Lane %d: Not in junction or not driving", l.id)
	}
	if l.uniquePredecessor == nil {
		return nil, fmt.Errorf("Lane %d: No unique predecessor", l.id)
	}
	return l.uniquePredecessor, nil
}

// 获取Lane的冲突点数据集合
func (l *Lane) Overlaps() map[float64]entity.Overlap {
	return l.overlaps
}

// 获取Lane所在的Road
func (l *Lane) ParentRoad() entity.IRoad {
	return l.parentRoad
}

// 获取Lane所在的Junction
func (l *Lane) ParentJunction() entity.IJunction {
	return l.parentJunction
}

// 检查Lane是否为Road Lane
func (l *Lane) InRoad() bool {
	return l.parentRoad != nil
}

// 检查Lane是否为Junction Lane
func (l *Lane) InJunction() bool {
	return l.parentJunction != nil
}

// 获取Lane的中心线
func (l *Lane) CenterLine() []geometry.Point {
	return l.line
}

// 获取Lane的中心线长度
func (l *Lane) CenterLineLengths() []float64 {
	return l.lineLengths
}

// 将当前车道s坐标转换为xy(z)坐标
func (l *Lane) GetPositionByS(s float64) (pos geometry.Point) {
	if s < l.lineLengths[0] || s > l.lineLengths[len(l.lineLengths)-1] {
		log.Debugf("get position with s %v out of range{%v,%v}",
			s, l.lineLengths[0], l.lineLengths[len(l.lineLengths)-1])
		s = lo.Clamp(s, l.lineLengths[0], l.lineLengths[len(l.lineLengths)-1])
	}
	if i := sort.SearchFloat64s(l.lineLengths, s); i == 0 {
		pos = l.line[0]
	} else {
		sHigh, sLow := l.lineLengths[i], l.lineLengths[i-1]
		k := (s - sLow) / (sHigh - sLow)
		if k < 0 || k > 1 {
			log.Panicf("lane: GetPositionByS(), bad k %v due to pos %v. sHigh=%f, sLow=%f, s=%f", k, pos, sHigh, sLow, s)
		}
		pos = geometry.Blend(l.line[i-1], l.line[i], k)
	}
	return
}

// 信控语义

// 检查是否是人行道
func (l *Lane) IsWalkLane() bool {
	return l.typ == mapv2.LaneType_LANE_TYPE_WALKING
}

// IsRightTurnDrivingLane 检查是否是右转行车道
// 功能：判断车道是否为右转专用行车道
// 返回：true表示是右转行车道，false表示不是
// 说明：右转车道默认允许红灯右转，不参与相位压力统计
func (l *Lane) IsRightTurnDrivingLane() bool {
	return l.typ == mapv2.LaneType_LANE_TYPE_DRIVING && l.turn == mapv2.LaneTurn_LANE_TURN_RIGHT
}

// 路况

// 获取车道限速
func (l *Lane) MaxV() float64 {
	return l.maxV
}
