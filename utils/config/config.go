package config

// 信控约束与周期调度的默认值
const (
	DefaultCycleLength = 60.0 // 默认周期长度（秒）
	DefaultMinGreen    = 8.0  // 默认最小绿灯时间（秒）
	DefaultMaxGreen    = 60.0 // 默认最大绿灯时间（秒）
	DefaultStaleFactor = 2.0  // 默认过期系数
	DefaultHistory     = 16   // 默认观测历史条数
)

// RuntimeConfig 运行时配置
// 功能：存储引擎运行时的配置信息，补全各字段默认值并展开单路口覆盖
// 说明：将YAML配置转换为运行时可用的配置对象
type RuntimeConfig struct {
	All Config  // 全部配置
	C   Control // 全局控制配置

	overrides map[int32]JunctionOverride // 单路口覆盖（JunctionID -> Override）
}

// NewRuntimeConfig 根据配置初始化运行时配置
// 功能：创建运行时配置对象，进行配置验证和默认值补全
// 参数：config-原始配置对象
// 返回：初始化的运行时配置指针
// 算法说明：
// 1. 补全信控约束默认值（周期60s、最小绿8s、最大绿60s）
// 2. 补全周期调度默认值（截止时间=周期×0.8）
// 3. 将单路口覆盖列表展开为查询表
// 说明：确保配置的正确性和一致性，为引擎运行提供有效配置
func NewRuntimeConfig(config Config) *RuntimeConfig {
	rc := &RuntimeConfig{}

	if config.Control.Signal.DefaultCycle <= 0 {
		config.Control.Signal.DefaultCycle = DefaultCycleLength
	}
	if config.Control.Signal.MinGreen <= 0 {
		config.Control.Signal.MinGreen = DefaultMinGreen
	}
	if config.Control.Signal.MaxGreen <= 0 {
		config.Control.Signal.MaxGreen = DefaultMaxGreen
	}
	if config.Control.Cycle.Interval <= 0 {
		config.Control.Cycle.Interval = config.Control.Signal.DefaultCycle
	}
	if config.Control.Cycle.Deadline <= 0 || config.Control.Cycle.Deadline > config.Control.Cycle.Interval {
		config.Control.Cycle.Deadline = config.Control.Cycle.Interval * 0.8
	}
	if config.Telemetry.StaleFactor <= 0 {
		config.Telemetry.StaleFactor = DefaultStaleFactor
	}
	if config.Telemetry.History <= 0 {
		config.Telemetry.History = DefaultHistory
	}

	rc.All = config
	rc.C = config.Control
	rc.overrides = make(map[int32]JunctionOverride, len(config.Control.Signal.Overrides))
	for _, o := range config.Control.Signal.Overrides {
		rc.overrides[o.JunctionID] = o
	}

	return rc
}

// JunctionConstraint 查询单个路口的信控约束
// 功能：返回指定路口生效的周期长度与绿灯时间上下限
// 参数：junctionID-路口ID
// 返回：周期长度、最小绿灯时间、最大绿灯时间（秒）
// 说明：有覆盖项时取覆盖值，否则取全局默认
func (rc *RuntimeConfig) JunctionConstraint(junctionID int32) (cycle, minGreen, maxGreen float64) {
	cycle = rc.C.Signal.DefaultCycle
	minGreen = rc.C.Signal.MinGreen
	maxGreen = rc.C.Signal.MaxGreen
	if o, ok := rc.overrides[junctionID]; ok {
		if o.Cycle > 0 {
			cycle = o.Cycle
		}
		if o.MinGreen > 0 {
			minGreen = o.MinGreen
		}
		if o.MaxGreen > 0 {
			maxGreen = o.MaxGreen
		}
	}
	return cycle, minGreen, maxGreen
}

// StaleAfter 查询观测过期时限
// 返回：过期时限（秒），超过该时限未更新的观测视为过期
func (rc *RuntimeConfig) StaleAfter() float64 {
	return rc.All.Telemetry.StaleFactor * rc.C.Cycle.Interval
}
