package telemetry

import (
	"encoding/json"
	"math"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"git.fiblab.net/sim/syncer/v3"
	"github.com/tsinghua-fib-lab/signalet-go/entity"
)

// IngestPattern 检测器数据上报的HTTP路径
const IngestPattern = "/telemetry"

// ingestRecord 检测器上报的单条观测
type ingestRecord struct {
	JunctionID int32   `json:"junction_id"` // 路口ID
	ApproachID int32   `json:"approach_id"` // 进口道ID（进口道路ID）
	Queue      float64 `json:"queue"`       // 排队车辆数
	Rate       float64 `json:"rate"`        // 到达流率（veh/s）
	Time       float64 `json:"time"`        // Unix时间戳（秒）
	Reliable   bool    `json:"reliable"`    // 检测器自报健康状态
	Priority   bool    `json:"priority"`    // 存在优先通行车辆
}

// ingestResponse 上报接口的响应
type ingestResponse struct {
	Accepted int `json:"accepted"` // 接受的记录数
	Dropped  int `json:"dropped"`  // 丢弃的记录数（格式非法、字段非法、乱序、未知路口）
}

// Register 将数据上报接口注册到Sidecar
func (c *Cache) Register(sidecar *syncer.Sidecar) {
	sidecar.Register(
		"telemetry",
		func(...connect.HandlerOption) (pattern string, handler http.Handler) {
			return IngestPattern, c.IngestHandler()
		},
		syncer.WithNoLock(),
	)
}

// IngestHandler 获取数据上报接口的HTTP处理器
func (c *Cache) IngestHandler() http.Handler {
	return http.HandlerFunc(c.handleIngest)
}

// handleIngest 处理POST上报的观测数组
// 功能：逐条解析、校验并写入缓存，返回接受与丢弃的条数
// 说明：单条记录解析失败只丢弃该条并计数，不影响同批其他记录
func (c *Cache) handleIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var raws []json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raws); err != nil {
		http.Error(w, "request body must be a JSON array", http.StatusBadRequest)
		return
	}
	accepted, dropped := 0, 0
	for _, raw := range raws {
		var rec ingestRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			dropped++
			continue
		}
		if rec.Time <= 0 || rec.Queue < 0 || rec.Rate < 0 {
			dropped++
			continue
		}
		sec, frac := math.Modf(rec.Time)
		ok := c.Record(rec.JunctionID, rec.ApproachID, entity.Observation{
			Queue:    rec.Queue,
			Rate:     rec.Rate,
			Time:     time.Unix(int64(sec), int64(frac*1e9)),
			Reliable: rec.Reliable,
			Priority: rec.Priority,
		})
		if ok {
			accepted++
		} else {
			dropped++
		}
	}
	if dropped > 0 {
		log.Debugf("telemetry ingest: %d records accepted, %d dropped", accepted, dropped)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(ingestResponse{Accepted: accepted, Dropped: dropped})
}
