package clock

import (
	"fmt"

	"git.fiblab.net/sim/protos/v2/go/city/clock/v1/clockv1connect"
	"github.com/tsinghua-fib-lab/signalet-go/utils/config"
)

// Clock 控制周期时钟管理器
// 功能：管理信控引擎的时间推进，每个tick对应一个完整的控制周期
// 说明：维护当前控制时间、周期数等信息，提供时间格式化和RPC服务
type Clock struct {
	clockv1connect.UnimplementedClockServiceHandler

	DT          float64 // 每个控制周期的时间长度（秒）
	START_CYCLE int32   // 起始周期
	END_CYCLE   int32   // 结束周期，控制区间[START, END)，START+Total<=0表示无限

	T             float64 // 当前时间（秒）
	InternalCycle int32   // 当前周期数
}

// New 根据配置创建新的时钟实例
// 功能：根据全局配置初始化时钟信息
// 参数：cycleConfig-控制周期配置，包含周期长度、周期范围等信息
// 返回：初始化完成的时钟实例
// 算法说明：
// 1. 周期长度直接取配置的interval
// 2. 计算起始和结束周期数，total<=0时结束周期为负表示持续运行
// 3. 初始化时钟状态
func New(cycleConfig config.ControlCycle) *Clock {
	startCycle := cycleConfig.Start
	endCycle := int32(-1)
	if cycleConfig.Total > 0 {
		endCycle = cycleConfig.Start + cycleConfig.Total
	}

	c := &Clock{
		DT:          cycleConfig.Interval,
		START_CYCLE: startCycle,
		END_CYCLE:   endCycle,
	}
	c.Init()
	return c
}

// Init 初始化时钟状态
// 功能：重置时钟状态
// 说明：重置周期数为起始周期，重新计算当前时间
func (c *Clock) Init() {
	c.InternalCycle = c.START_CYCLE
	c.T = float64(c.InternalCycle) * c.DT
}

// Endless 检查是否为持续运行模式
// 返回：true表示无结束周期，持续运行
func (c *Clock) Endless() bool {
	return c.END_CYCLE < 0
}

// String 获取时钟的字符串表示
// 功能：将当前时间格式化为可读的字符串
// 返回：格式化的时间字符串（HH:MM:SS）
// 算法说明：
// 1. 将总秒数转换为小时、分钟、秒
// 2. 格式化为标准时间格式
func (c *Clock) String() string {
	t := c.T
	h := int(t / 3600)
	t -= float64(h * 3600)
	m := int(t / 60)
	t -= float64(m * 60)
	s := int(t)
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// GetHourMinuteSecond 获取当前时间的小时、分钟、秒
// 功能：将当前时间分解为小时、分钟、秒三个部分
// 返回：小时、分钟、秒（秒为浮点数，支持亚秒级精度）
// 算法说明：
// 1. 计算小时数：总秒数除以3600
// 2. 计算分钟数：剩余秒数除以60
// 3. 计算秒数：最终剩余秒数（浮点数）
func (c *Clock) GetHourMinuteSecond() (int, int, float64) {
	hour := int(c.T) / 3600
	minute := int(c.T) % 3600 / 60
	second := c.T - float64(hour*3600+minute*60)
	return hour, minute, second
}
