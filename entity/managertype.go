package entity

import (
	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	"git.fiblab.net/sim/syncer/v3"
	"github.com/tsinghua-fib-lab/signalet-go/utils/config"
)

// Manager依赖倒置

// entity/lane/manager.go的依赖倒置
type ILaneManager interface {
	Init(pbs []*mapv2.Lane) // 初始化

	// 输入Lane ID，查找Lane，如果不存在则panic
	Get(id int32) ILane
	// 输入Lane ID，查找Lane，如果不存在则返回error
	GetOrError(id int32) (ILane, error)
}

// entity/road/manager.go的依赖倒置
type IRoadManager interface {
	Init(pbs []*mapv2.Road, laneManager ILaneManager)   // 初始化
	InitAfterJunction(junctionManager IJunctionManager) // 初始化所有Road的Junction关系

	// 输入Road ID，查找Road，如果不存在则panic
	Get(id int32) IRoad
	// 输入Road ID，查找Road，如果不存在则返回error
	GetOrError(id int32) (IRoad, error)
}

// entity/junction/manager.go的依赖倒置
type IJunctionManager interface {
	Init(pbs []*mapv2.Junction, laneManager ILaneManager, roadManager IRoadManager) // 初始化
	Register(sidecar *syncer.Sidecar)                                               // 注册到Sidecar

	// 输入Junction ID，查找Junction，如果不存在则panic
	Get(id int32) IJunction
	// 输入Junction ID，查找Junction，如果不存在则返回error
	GetOrError(id int32) (IJunction, error)

	Junctions() []IJunction  // 获取所有Junction（周期调度遍历用）
	ControlledCount() int    // 有可控信号灯的Junction数
	DegradedCount() int      // 处于降级状态的Junction数
}

// entity/corridor/manager.go的依赖倒置
type ICorridorManager interface {
	// 根据配置建立所有干线，校验成员唯一性与连通性
	Init(cfgs []config.Corridor, junctionManager IJunctionManager)

	Corridors() []ICorridor // 获取所有干线
	// 输入干线名，查找干线，如果不存在则返回error
	GetOrError(name string) (ICorridor, error)
}
