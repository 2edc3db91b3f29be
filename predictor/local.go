package predictor

import (
	"context"
	"flag"
	"time"

	"github.com/tsinghua-fib-lab/signalet-go/entity"
)

var (
	ewmaAlpha = flag.Float64("predictor.ewma_alpha", .4, "本地预测器指数加权滑动平均的平滑系数")
)

// 置信度随样本数增长的拐点：样本数等于该值时置信度为0.5
const confidenceKnee = 4

// LocalPredictor 本地滑动平均预测器
// 功能：以观测历史中可靠观测到达流率的指数加权滑动平均作为下一周期的预测
// 说明：单机模式下替代外部预测服务；置信度随样本数增长，
// 样本过少的预测会被压力计算的置信度下限过滤掉
type LocalPredictor struct {
	source HistorySource
}

// NewLocal 创建本地预测器
// 参数：source-观测历史来源
// 返回：初始化的LocalPredictor实例
func NewLocal(source HistorySource) *LocalPredictor {
	return &LocalPredictor{source: source}
}

// Predict 根据观测历史估计各进口道的到达流率
// 说明：从未有可靠观测的进口道不出现在结果中；预测时域未使用，
// 滑动平均假定流率在时域内不变
func (p *LocalPredictor) Predict(
	_ context.Context, junctionID int32, approachIDs []int32, _ float64,
) (map[int32]entity.Prediction, error) {
	now := time.Now()
	predictions := make(map[int32]entity.Prediction, len(approachIDs))
	for _, id := range approachIDs {
		rate, n := ewma(p.source.History(junctionID, id))
		if n == 0 {
			continue
		}
		predictions[id] = entity.Prediction{
			Rate:       rate,
			Confidence: float64(n) / float64(n+confidenceKnee),
			Time:       now,
		}
	}
	return predictions, nil
}

// ewma 计算可靠观测到达流率的指数加权滑动平均
// 参数：history-观测历史（从旧到新）
// 返回：平均流率与参与计算的样本数
func ewma(history []entity.Observation) (float64, int) {
	value, n := .0, 0
	for _, o := range history {
		if !o.Reliable {
			continue
		}
		if n == 0 {
			value = o.Rate
		} else {
			value = *ewmaAlpha*o.Rate + (1-*ewmaAlpha)*value
		}
		n++
	}
	return value, n
}
