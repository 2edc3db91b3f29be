package junction

import (
	"fmt"

	"git.fiblab.net/general/common/v2/parallel"
	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	mapv2connect "git.fiblab.net/sim/protos/v2/go/city/map/v2/mapv2connect"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/signalet-go/entity"
)

// Junction管理器
type JunctionManager struct {
	mapv2connect.UnimplementedTrafficLightServiceHandler
	mapv2connect.UnimplementedJunctionServiceHandler

	ctx entity.ITaskContext

	data      map[int32]*Junction
	junctions []*Junction
	exported  []entity.IJunction
}

// NewManager 创建Junction管理器实例
// 功能：初始化Junction管理器，创建内部数据结构
// 参数：ctx-任务上下文
// 返回：新创建的Junction管理器实例
func NewManager(ctx entity.ITaskContext) *JunctionManager {
	return &JunctionManager{
		ctx:       ctx,
		data:      make(map[int32]*Junction),
		junctions: make([]*Junction, 0),
		exported:  make([]entity.IJunction, 0),
	}
}

// Init 初始化所有Junction及其信控
// 功能：根据protobuf数据初始化所有Junction对象，建立车道映射关系
// 参数：pbs-Junction的protobuf数据列表，laneManager-车道管理器，roadManager-道路管理器
// 说明：使用并行处理提高初始化效率
func (m *JunctionManager) Init(pbs []*mapv2.Junction, laneManager entity.ILaneManager, roadManager entity.IRoadManager) {
	m.junctions = parallel.GoMap(pbs, func(pb *mapv2.Junction) *Junction {
		return newJunction(m.ctx, pb, laneManager, roadManager)
	})
	m.data = lo.SliceToMap(m.junctions, func(j *Junction) (int32, *Junction) {
		return j.id, j
	})
	m.exported = lo.Map(m.junctions, func(j *Junction, _ int) entity.IJunction {
		return j
	})
	log.Infof(
		"junction manager: %d junctions loaded, %d under adaptive control",
		len(m.junctions), m.ControlledCount(),
	)
}

// Get 根据ID获取Junction实例
// 功能：通过Junction ID查找对应的Junction对象，如果不存在则panic
// 参数：id-Junction的唯一标识符
// 返回：对应的Junction实例，如果不存在则panic
func (m *JunctionManager) Get(id int32) entity.IJunction {
	if junction, ok := m.data[id]; !ok {
		log.Panicf("no id %d in junction data", id)
		return nil
	} else {
		return junction
	}
}

// GetOrError 根据ID获取Junction实例（带错误处理）
// 功能：通过Junction ID查找对应的Junction对象，如果不存在则返回错误
// 参数：id-Junction的唯一标识符
// 返回：Junction实例和错误信息，如果不存在则返回nil和错误
func (m *JunctionManager) GetOrError(id int32) (entity.IJunction, error) {
	if junction, ok := m.data[id]; !ok {
		return nil, fmt.Errorf("no id %d in junction data", id)
	} else {
		return junction, nil
	}
}

// Junctions 获取所有Junction
// 返回：按加载顺序排列的Junction列表
func (m *JunctionManager) Junctions() []entity.IJunction {
	return m.exported
}

// ControlledCount 统计处于优化控制下的Junction数量
// 返回：相位结构可用且信控开启的Junction数量
func (m *JunctionManager) ControlledCount() int {
	count := 0
	for _, j := range m.junctions {
		if j.HasTrafficLight() && j.ControlEnabled() {
			count++
		}
	}
	return count
}

// DegradedCount 统计处于降级状态的Junction数量
// 返回：运行在兜底配时上的Junction数量
func (m *JunctionManager) DegradedCount() int {
	count := 0
	for _, j := range m.junctions {
		if j.Degraded() {
			count++
		}
	}
	return count
}
