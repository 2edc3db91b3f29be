package config

// InputPath 指定输入数据来源的配置（MongoDB、文件系统）
// 功能：定义数据输入路径的配置结构，支持多种数据源
// 说明：支持MongoDB数据库和文件系统两种数据源，支持缓存机制
type InputPath struct {
	DB        string   `yaml:"db"`                   // 数据库名
	Col       string   `yaml:"col"`                  // 集合名
	Cache     string   `yaml:"cache,omitempty"`      // 缓存文件名，为空则采用默认路径{db}.{col}.pb
	OnlyCache bool     `yaml:"only_cache,omitempty"` // 只从缓存中获取
	File      string   `yaml:"file,omitempty"`       // 文件路径（优先级高于MongoDB）
	Files     []string `yaml:"files,omitempty"`      // 文件路径列表（优先级高于MongoDB）
}

// GetDb 获取数据库名
// 功能：返回配置的数据库名称
// 返回：数据库名称字符串
func (p InputPath) GetDb() string {
	return p.DB
}

// GetColl 获取集合名
// 功能：返回配置的集合名称
// 返回：集合名称字符串
func (p InputPath) GetColl() string {
	return p.Col
}

// GetCachePath 获取缓存文件路径
// 功能：返回缓存文件的完整路径
// 返回：缓存文件路径字符串
// 算法说明：
// 1. 如果指定了缓存路径，直接返回
// 2. 否则使用默认命名规则：{数据库名}.{集合名}.pb
// 说明：提供统一的缓存路径获取接口
func (p InputPath) GetCachePath() string {
	if p.Cache != "" {
		return p.Cache
	}
	return p.DB + "." + p.Col + ".pb"
}

// Input 指定控制引擎所有输入数据的配置项
// 功能：定义信控系统的所有输入数据配置
// 说明：包含路网地图等静态输入数据的配置
type Input struct {
	URI string    `yaml:"uri"` // MongoDB连接字符串
	Map InputPath `yaml:"map"` // 地图
}

// ControlCycle 指定控制周期时间范围和周期长度的配置项
// 功能：定义信控引擎的周期调度参数
// 说明：控制引擎按固定周期运行，每个周期内有计算截止时间
type ControlCycle struct {
	Start    int32   `yaml:"start"`              // 开始周期数
	Total    int32   `yaml:"total"`              // 总周期数，<=0表示持续运行
	Interval float64 `yaml:"interval"`           // 每个控制周期的时间长度（秒）
	Deadline float64 `yaml:"deadline,omitempty"` // 周期内计算截止时间（秒），为空则取周期长度的80%
	Workers  int     `yaml:"workers,omitempty"`  // 并发工作协程数，为空则取CPU核数
}

// JunctionOverride 单个路口的信控参数覆盖
// 说明：仅覆盖显式指定的字段，未指定字段沿用全局默认
type JunctionOverride struct {
	JunctionID int32   `yaml:"junction_id"`         // 路口ID
	Cycle      float64 `yaml:"cycle,omitempty"`     // 周期长度（秒）
	MinGreen   float64 `yaml:"min_green,omitempty"` // 最小绿灯时间（秒）
	MaxGreen   float64 `yaml:"max_green,omitempty"` // 最大绿灯时间（秒）
}

// Signal 信控约束配置
// 功能：定义配时方案必须满足的安全约束默认值
type Signal struct {
	DefaultCycle float64            `yaml:"default_cycle,omitempty"` // 默认周期长度（秒），默认60
	MinGreen     float64            `yaml:"min_green,omitempty"`     // 最小绿灯时间（秒），默认8
	MaxGreen     float64            `yaml:"max_green,omitempty"`     // 最大绿灯时间（秒），默认60
	Overrides    []JunctionOverride `yaml:"overrides,omitempty"`     // 单路口覆盖
}

// Corridor 协调干线配置
// 功能：定义一组按行进顺序排列的路口，用于绿波协调
type Corridor struct {
	Name        string  `yaml:"name"`                   // 干线名
	JunctionIDs []int32 `yaml:"junction_ids"`           // 按行进方向排序的路口ID
	TargetSpeed float64 `yaml:"target_speed,omitempty"` // 协调目标车速（m/s），为空则取道路限速
	Cycle       float64 `yaml:"cycle,omitempty"`        // 干线统一周期长度（秒），为空则取全局默认
}

// Predictor 需求预测服务配置
// 说明：URL为空时使用本地滑动平均预测器
type Predictor struct {
	URL     string  `yaml:"url,omitempty"`     // 预测服务HTTP地址
	Timeout float64 `yaml:"timeout,omitempty"` // 单次请求超时（秒），默认1
	Horizon float64 `yaml:"horizon,omitempty"` // 预测时域（秒），默认一个周期
}

// Actuator 信号机下发链路配置
// 说明：URL为空时使用内置模拟信号机
type Actuator struct {
	URL     string  `yaml:"url,omitempty"`     // 信号机网关HTTP地址
	Timeout float64 `yaml:"timeout,omitempty"` // 单次下发超时（秒），默认2
}

// Telemetry 检测器数据配置
type Telemetry struct {
	StaleFactor float64 `yaml:"stale_factor,omitempty"` // 过期系数，过期时限=系数×周期长度，默认2
	History     int     `yaml:"history,omitempty"`      // 每个进口道保留的观测条数，默认16
	Feeder      bool    `yaml:"feeder,omitempty"`       // 启用内置模拟数据源（演示/单机模式）
	FeederSeed  int64   `yaml:"feeder_seed,omitempty"`  // 模拟数据源随机种子
}

// Control 控制引擎核心配置
// 功能：定义信控引擎的周期调度与信控约束参数
type Control struct {
	Cycle            ControlCycle `yaml:"cycle"`
	Signal           Signal       `yaml:"signal,omitempty"`
	Corridors        []Corridor   `yaml:"corridors,omitempty"`
	PreferFixedLight bool         `yaml:"prefer_fixed_light,omitempty"` // 兜底方案优先使用路网内置固定配时，如果不存在则使用均分配时
}

// Config YAML配置文件的根结构
// 功能：定义整个信控系统的配置结构
// 说明：包含输入、控制、外部服务等所有配置项
type Config struct {
	Input     Input     `yaml:"input"`               // 输入
	Control   Control   `yaml:"control"`             // 控制过程
	Predictor Predictor `yaml:"predictor,omitempty"` // 需求预测服务
	Actuator  Actuator  `yaml:"actuator,omitempty"`  // 信号机链路
	Telemetry Telemetry `yaml:"telemetry,omitempty"` // 检测器数据
}
