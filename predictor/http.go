package predictor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/tsinghua-fib-lab/signalet-go/entity"
	"github.com/tsinghua-fib-lab/signalet-go/utils/config"
)

// 预测请求默认超时（秒）
const defaultTimeout = 1.0

// predictRequest 预测服务的请求体
type predictRequest struct {
	JunctionID  int32   `json:"junction_id"`  // 路口ID
	ApproachIDs []int32 `json:"approach_ids"` // 进口道ID列表
	Horizon     float64 `json:"horizon"`      // 预测时域（秒）
}

// predictEntry 预测服务返回的单个进口道预测
type predictEntry struct {
	ApproachID int32   `json:"approach_id"` // 进口道ID
	Rate       float64 `json:"rate"`        // 预测到达流率（veh/s）
	Confidence float64 `json:"confidence"`  // 置信度[0,1]
}

// predictResponse 预测服务的响应体
type predictResponse struct {
	Predictions []predictEntry `json:"predictions"`
}

// HTTPPredictor 外部需求预测服务适配器
// 功能：每个路口每周期对预测服务发起一次有界请求
// 说明：不重试不缓存，任何失败（超时、非200、响应非法）都归结为
// ErrUnavailable，由调用方决定只用实时数据继续
type HTTPPredictor struct {
	url    string
	client *http.Client
}

// NewHTTP 创建HTTP预测器
// 参数：c-预测服务配置（URL与超时）
// 返回：初始化的HTTPPredictor实例
func NewHTTP(c config.Predictor) *HTTPPredictor {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &HTTPPredictor{
		url:    c.URL,
		client: &http.Client{Timeout: time.Duration(timeout * float64(time.Second))},
	}
}

// Predict 请求单个路口各进口道的需求预测
// 参数：ctx-上下文，junctionID-路口ID，approachIDs-进口道ID列表，horizon-预测时域（秒）
// 返回：进口道ID->预测映射，失败时返回包装了ErrUnavailable的错误
// 说明：流率为负或置信度超出[0,1]的条目直接丢弃
func (p *HTTPPredictor) Predict(
	ctx context.Context, junctionID int32, approachIDs []int32, horizon float64,
) (map[int32]entity.Prediction, error) {
	body, err := json.Marshal(predictRequest{
		JunctionID:  junctionID,
		ApproachIDs: approachIDs,
		Horizon:     horizon,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %s", ErrUnavailable, resp.Status)
	}
	var decoded predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	now := time.Now()
	predictions := make(map[int32]entity.Prediction, len(decoded.Predictions))
	for _, e := range decoded.Predictions {
		if e.Rate < 0 || e.Confidence < 0 || e.Confidence > 1 {
			log.Debugf("discard invalid prediction for junction %d approach %d: rate %f confidence %f",
				junctionID, e.ApproachID, e.Rate, e.Confidence)
			continue
		}
		predictions[e.ApproachID] = entity.Prediction{
			Rate:       e.Rate,
			Confidence: e.Confidence,
			Time:       now,
		}
	}
	return predictions, nil
}
