package entity

import (
	"context"

	"github.com/tsinghua-fib-lab/signalet-go/clock"
	"github.com/tsinghua-fib-lab/signalet-go/utils/config"
)

// 需求预测模块接口
type IPredictor interface {
	// 预测指定路口各进口道在未来horizon秒内的到达流率
	// 预测服务不可用时返回错误，调用方退化为仅使用实时数据
	Predict(ctx context.Context, junctionID int32, approachIDs []int32, horizon float64) (map[int32]Prediction, error)
}

// 方案下发模块接口
type IDispatcher interface {
	// 将方案下发给信号机并返回最终结果
	// 超时重试一次，仍失败则切换兜底方案并标记路口降级；拒绝不重试
	Dispatch(ctx context.Context, j IJunction, plan *SignalPlan) DispatchOutcome
}

type ITaskContext interface {
	Clock() *clock.Clock
	LaneManager() ILaneManager
	RoadManager() IRoadManager
	JunctionManager() IJunctionManager
	CorridorManager() ICorridorManager
	RuntimeConfig() *config.RuntimeConfig
	Predictor() IPredictor
	Dispatcher() IDispatcher
}
