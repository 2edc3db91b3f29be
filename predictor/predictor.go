// Package predictor 提供短时需求预测的适配器，支持外部HTTP预测服务与本地滑动平均
package predictor

import (
	"errors"

	"github.com/tsinghua-fib-lab/signalet-go/entity"
	"github.com/tsinghua-fib-lab/signalet-go/utils/config"
)

// ErrUnavailable 预测服务本周期不可用
// 说明：调用方收到该错误后只用实时观测继续计算，绝不把缺失的预测当作零需求
var ErrUnavailable = errors.New("predictor: service unavailable")

// HistorySource 观测历史来源
type HistorySource interface {
	// History 读取单个进口道的观测历史（从旧到新）
	History(junctionID, approachID int32) []entity.Observation
}

// New 根据配置选择预测器
// 功能：配置了URL时使用外部HTTP预测服务，否则退化为基于观测历史的本地滑动平均
// 参数：c-预测服务配置，source-观测历史来源
// 返回：预测器实例
func New(c config.Predictor, source HistorySource) entity.IPredictor {
	if c.URL == "" {
		log.Info("no prediction service configured, using local moving average")
		return NewLocal(source)
	}
	log.Infof("using prediction service at %s", c.URL)
	return NewHTTP(c)
}
