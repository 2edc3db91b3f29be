package dispatch_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/signalet-go/dispatch"
	"github.com/tsinghua-fib-lab/signalet-go/utils/config"
	"google.golang.org/protobuf/encoding/protojson"
)

func command(junctionID int32, version uint64) *dispatch.Command {
	now := time.Now()
	return &dispatch.Command{
		JunctionID: junctionID,
		Version:    version,
		Cycle:      60,
		Offset:     12,
		Program: &mapv2.TrafficLight{
			JunctionId: junctionID,
			Phases: []*mapv2.Phase{
				{Duration: 60, States: []mapv2.LightState{mapv2.LightState_LIGHT_STATE_GREEN}},
			},
		},
		IssuedAt: now,
		Deadline: now.Add(2 * time.Second),
	}
}

func TestLocalLinkVersionGuard(t *testing.T) {
	link := dispatch.NewLocalLink(1)
	ctx := context.Background()

	receipt, err := link.Send(ctx, command(1, 2))
	require.NoError(t, err)
	assert.True(t, receipt.Accepted)

	// 重复版本与历史版本都被信号机拒绝
	receipt, err = link.Send(ctx, command(1, 2))
	require.NoError(t, err)
	assert.False(t, receipt.Accepted)
	assert.Equal(t, "stale version", receipt.Reason)

	receipt, err = link.Send(ctx, command(1, 1))
	require.NoError(t, err)
	assert.False(t, receipt.Accepted)

	receipt, err = link.Send(ctx, command(1, 3))
	require.NoError(t, err)
	assert.True(t, receipt.Accepted)

	// 不同路口的版本互不影响
	receipt, err = link.Send(ctx, command(2, 1))
	require.NoError(t, err)
	assert.True(t, receipt.Accepted)
}

func TestHTTPLinkSend(t *testing.T) {
	type wireCommand struct {
		JunctionID int32           `json:"junction_id"`
		Version    uint64          `json:"version"`
		Cycle      float64         `json:"cycle"`
		Offset     float64         `json:"offset"`
		IssuedAt   float64         `json:"issued_at"`
		Deadline   float64         `json:"deadline"`
		Program    json.RawMessage `json:"program"`
	}
	var got wireCommand
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"accepted": true}`))
	}))
	defer server.Close()

	link := dispatch.NewHTTPLink(config.Actuator{URL: server.URL, Timeout: 1})
	receipt, err := link.Send(context.Background(), command(42, 7))
	require.NoError(t, err)
	assert.True(t, receipt.Accepted)

	assert.Equal(t, int32(42), got.JunctionID)
	assert.Equal(t, uint64(7), got.Version)
	assert.InDelta(t, 60.0, got.Cycle, 1e-9)
	assert.InDelta(t, 12.0, got.Offset, 1e-9)
	assert.Greater(t, got.Deadline, got.IssuedAt)

	var program mapv2.TrafficLight
	require.NoError(t, protojson.Unmarshal(got.Program, &program))
	assert.Equal(t, int32(42), program.JunctionId)
	assert.Len(t, program.Phases, 1)
}

func TestHTTPLinkRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"accepted": false, "reason": "controller busy"}`))
	}))
	defer server.Close()

	link := dispatch.NewHTTPLink(config.Actuator{URL: server.URL})
	receipt, err := link.Send(context.Background(), command(1, 1))
	require.NoError(t, err)
	assert.False(t, receipt.Accepted)
	assert.Equal(t, "controller busy", receipt.Reason)
}

func TestHTTPLinkTransportErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	link := dispatch.NewHTTPLink(config.Actuator{URL: server.URL})
	_, err := link.Send(context.Background(), command(1, 1))
	assert.Error(t, err)

	// 连接失败同样按传输错误上报
	server.Close()
	_, err = link.Send(context.Background(), command(1, 1))
	assert.Error(t, err)
}

func TestNewLinkPicksLocalWithoutURL(t *testing.T) {
	link := dispatch.NewLink(config.Actuator{})
	_, ok := link.(*dispatch.LocalLink)
	assert.True(t, ok)

	link = dispatch.NewLink(config.Actuator{URL: "http://actuator:8080/commands"})
	_, ok = link.(*dispatch.HTTPLink)
	assert.True(t, ok)
}
