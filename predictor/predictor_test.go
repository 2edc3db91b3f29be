package predictor_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/tsinghua-fib-lab/signalet-go/entity"
	"github.com/tsinghua-fib-lab/signalet-go/predictor"
	"github.com/tsinghua-fib-lab/signalet-go/utils/config"
)

type fakeSource struct {
	history map[int32][]entity.Observation
}

func (s *fakeSource) History(_ int32, approachID int32) []entity.Observation {
	return s.history[approachID]
}

func TestHTTPPredict(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			JunctionID  int32   `json:"junction_id"`
			ApproachIDs []int32 `json:"approach_ids"`
			Horizon     float64 `json:"horizon"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, int32(1001), req.JunctionID)
		assert.Equal(t, []int32{100, 200}, req.ApproachIDs)
		assert.InDelta(t, 60, req.Horizon, 1e-9)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"predictions": []map[string]any{
				{"approach_id": 100, "rate": 0.25, "confidence": 0.9},
				{"approach_id": 200, "rate": -1, "confidence": 0.9},
				{"approach_id": 300, "rate": 0.1, "confidence": 1.5},
			},
		})
	}))
	defer server.Close()

	p := predictor.NewHTTP(config.Predictor{URL: server.URL})
	predictions, err := p.Predict(context.Background(), 1001, []int32{100, 200}, 60)
	assert.NoError(t, err)
	// 非法条目（负流率、越界置信度）被丢弃
	assert.Len(t, predictions, 1)
	assert.InDelta(t, 0.25, predictions[100].Rate, 1e-9)
	assert.InDelta(t, 0.9, predictions[100].Confidence, 1e-9)
}

func TestHTTPPredictUnavailable(t *testing.T) {
	// 非200响应
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	p := predictor.NewHTTP(config.Predictor{URL: bad.URL})
	_, err := p.Predict(context.Background(), 1, []int32{10}, 60)
	assert.ErrorIs(t, err, predictor.ErrUnavailable)
	bad.Close()

	// 连接失败
	_, err = p.Predict(context.Background(), 1, []int32{10}, 60)
	assert.ErrorIs(t, err, predictor.ErrUnavailable)

	// 超时：服务端响应慢于客户端超时
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer slow.Close()
	p = predictor.NewHTTP(config.Predictor{URL: slow.URL, Timeout: 0.01})
	_, err = p.Predict(context.Background(), 1, []int32{10}, 60)
	assert.ErrorIs(t, err, predictor.ErrUnavailable)
}

func TestLocalPredict(t *testing.T) {
	now := time.Now()
	source := &fakeSource{history: map[int32][]entity.Observation{
		100: {
			{Rate: 0.2, Time: now.Add(-2 * time.Minute), Reliable: true},
			{Rate: 0.3, Time: now.Add(-time.Minute), Reliable: false},
			{Rate: 0.4, Time: now, Reliable: true},
		},
		200: {},
	}}

	p := predictor.NewLocal(source)
	predictions, err := p.Predict(context.Background(), 1, []int32{100, 200}, 60)
	assert.NoError(t, err)
	assert.Len(t, predictions, 1)

	// 平滑系数0.4：0.4*0.4 + 0.6*0.2 = 0.28，不可靠观测不参与
	assert.InDelta(t, 0.28, predictions[100].Rate, 1e-9)
	// 2个样本，置信度 2/(2+4)
	assert.InDelta(t, 1.0/3, predictions[100].Confidence, 1e-9)
}

func TestNewPicksAdapter(t *testing.T) {
	source := &fakeSource{}
	_, ok := predictor.New(config.Predictor{}, source).(*predictor.LocalPredictor)
	assert.True(t, ok)
	_, ok = predictor.New(config.Predictor{URL: "http://predictor:8080/predict"}, source).(*predictor.HTTPPredictor)
	assert.True(t, ok)
}
