// Package dispatch 提供配时方案的下发器与信号机链路
package dispatch

import (
	"context"
	"time"

	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	"github.com/tsinghua-fib-lab/signalet-go/utils/config"
)

// Command 发往信号机的一条控制命令
type Command struct {
	JunctionID int32               // 路口ID
	Version    uint64              // 方案版本号
	Cycle      float64             // 周期长度（秒）
	Offset     float64             // 协调相位偏移（秒）
	Program    *mapv2.TrafficLight // 渲染好的信号灯程序
	IssuedAt   time.Time           // 命令下发时间
	Deadline   time.Time           // 命令执行截止时间，信号机丢弃迟到的命令
}

// Receipt 信号机对一条命令的回执
type Receipt struct {
	Accepted bool   // 是否接受执行
	Reason   string // 拒绝原因
}

// IActuatorLink 信号机下发链路
// 说明：Send是下发器中唯一允许阻塞的操作，实现必须自带超时；
// 传输失败（超时、连接错误）返回error，信号机明确拒绝返回Accepted=false
type IActuatorLink interface {
	Send(ctx context.Context, cmd *Command) (*Receipt, error)
}

// NewLink 根据配置选择信号机链路
// 功能：配置了URL时使用HTTP网关链路，否则使用内置模拟信号机
// 参数：c-信号机链路配置
// 返回：链路实例
func NewLink(c config.Actuator) IActuatorLink {
	if c.URL == "" {
		log.Info("no actuator gateway configured, using simulated link")
		return NewLocalLink(0)
	}
	log.Infof("using actuator gateway at %s", c.URL)
	return NewHTTPLink(c)
}
