package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/tsinghua-fib-lab/signalet-go/utils/config"
	"google.golang.org/protobuf/encoding/protojson"
)

// 单次下发默认超时（秒）
const defaultTimeout = 2.0

// wireCommand 控制命令的JSON编码
// 说明：信号灯程序用protojson编码，保持与proto定义一致的字段名
type wireCommand struct {
	JunctionID int32           `json:"junction_id"`
	Version    uint64          `json:"version"`
	Cycle      float64         `json:"cycle"`
	Offset     float64         `json:"offset"`
	IssuedAt   float64         `json:"issued_at"` // Unix时间戳（秒）
	Deadline   float64         `json:"deadline"`  // Unix时间戳（秒）
	Program    json.RawMessage `json:"program"`
}

// wireReceipt 信号机网关的JSON回执
type wireReceipt struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason"`
}

// HTTPLink 信号机HTTP网关链路
// 功能：将控制命令POST到信号机网关并解析回执
// 说明：单次请求由客户端超时约束，非200响应视为传输失败
type HTTPLink struct {
	url    string
	client *http.Client
}

// NewHTTPLink 创建HTTP链路
// 参数：c-信号机链路配置（URL与超时）
// 返回：初始化的HTTPLink实例
func NewHTTPLink(c config.Actuator) *HTTPLink {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &HTTPLink{
		url:    c.URL,
		client: &http.Client{Timeout: time.Duration(timeout * float64(time.Second))},
	}
}

// Send 发送控制命令
// 参数：ctx-上下文，cmd-控制命令
// 返回：信号机回执，传输失败时返回error
func (l *HTTPLink) Send(ctx context.Context, cmd *Command) (*Receipt, error) {
	program, err := protojson.Marshal(cmd.Program)
	if err != nil {
		return nil, fmt.Errorf("encode program for junction %d: %w", cmd.JunctionID, err)
	}
	body, err := json.Marshal(wireCommand{
		JunctionID: cmd.JunctionID,
		Version:    cmd.Version,
		Cycle:      cmd.Cycle,
		Offset:     cmd.Offset,
		IssuedAt:   float64(cmd.IssuedAt.UnixNano()) / 1e9,
		Deadline:   float64(cmd.Deadline.UnixNano()) / 1e9,
		Program:    program,
	})
	if err != nil {
		return nil, fmt.Errorf("encode command for junction %d: %w", cmd.JunctionID, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request for junction %d: %w", cmd.JunctionID, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send command for junction %d: %w", cmd.JunctionID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("send command for junction %d: unexpected status %s", cmd.JunctionID, resp.Status)
	}
	var receipt wireReceipt
	if err := json.NewDecoder(resp.Body).Decode(&receipt); err != nil {
		return nil, fmt.Errorf("decode receipt for junction %d: %w", cmd.JunctionID, err)
	}
	return &Receipt{Accepted: receipt.Accepted, Reason: receipt.Reason}, nil
}
