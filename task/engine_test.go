package task

import (
	"context"
	"testing"
	"time"

	geov2 "git.fiblab.net/sim/protos/v2/go/city/geo/v2"
	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/signalet-go/clock"
	"github.com/tsinghua-fib-lab/signalet-go/dispatch"
	"github.com/tsinghua-fib-lab/signalet-go/entity"
	"github.com/tsinghua-fib-lab/signalet-go/entity/corridor"
	"github.com/tsinghua-fib-lab/signalet-go/entity/junction"
	"github.com/tsinghua-fib-lab/signalet-go/entity/lane"
	"github.com/tsinghua-fib-lab/signalet-go/entity/road"
	"github.com/tsinghua-fib-lab/signalet-go/predictor"
	"github.com/tsinghua-fib-lab/signalet-go/telemetry"
	"github.com/tsinghua-fib-lab/signalet-go/utils/config"
)

const (
	testGreen = mapv2.LightState_LIGHT_STATE_GREEN
	testRed   = mapv2.LightState_LIGHT_STATE_RED
)

func testLine(points ...float64) *mapv2.Polyline {
	nodes := make([]*geov2.XYPosition, 0, len(points)/2)
	for i := 0; i+1 < len(points); i += 2 {
		nodes = append(nodes, &geov2.XYPosition{X: points[i], Y: points[i+1]})
	}
	return &mapv2.Polyline{Nodes: nodes}
}

func testLane(id int32, pre, suc []int32, points ...float64) *mapv2.Lane {
	pb := &mapv2.Lane{
		Id:         id,
		Type:       mapv2.LaneType_LANE_TYPE_DRIVING,
		Turn:       mapv2.LaneTurn_LANE_TURN_STRAIGHT,
		MaxSpeed:   10,
		Width:      3.5,
		CenterLine: testLine(points...),
	}
	for _, p := range pre {
		pb.Predecessors = append(pb.Predecessors, &mapv2.LaneConnection{
			Id: p, Type: mapv2.LaneConnectionType_LANE_CONNECTION_TYPE_HEAD,
		})
	}
	for _, s := range suc {
		pb.Successors = append(pb.Successors, &mapv2.LaneConnection{
			Id: s, Type: mapv2.LaneConnectionType_LANE_CONNECTION_TYPE_TAIL,
		})
	}
	return pb
}

// newTestContext 构建两路口的完整引擎上下文
// 路口1001：西进口道路100、北进口道路200；路口1002经道路300与1001相连，
// 两路口组成一条协调干线
func newTestContext(t *testing.T, overrides ...config.JunctionOverride) *Context {
	t.Helper()
	cfg := config.Config{
		Control: config.Control{
			Cycle: config.ControlCycle{Interval: 60, Workers: 2},
			Signal: config.Signal{
				DefaultCycle: 60, MinGreen: 8, MaxGreen: 40,
				Overrides: overrides,
			},
			Corridors: []config.Corridor{
				{Name: "artery", JunctionIDs: []int32{1001, 1002}, TargetSpeed: 20},
			},
		},
	}
	ctx := &Context{startAt: time.Now()}
	ctx.runtimeConfig = config.NewRuntimeConfig(cfg)
	ctx.clock = clock.New(cfg.Control.Cycle)
	ctx.laneManager = lane.NewManager(ctx)
	ctx.roadManager = road.NewManager(ctx)
	ctx.junctionManager = junction.NewManager(ctx)
	ctx.corridorManager = corridor.NewManager(ctx)
	ctx.telemetry = telemetry.NewCache(ctx)
	ctx.predictor = predictor.New(cfg.Predictor, ctx.telemetry)
	ctx.dispatcher = dispatch.NewDispatcher(dispatch.NewLocalLink(1), cfg.Actuator)

	ctx.laneManager.Init([]*mapv2.Lane{
		// 道路车道
		testLane(101, nil, []int32{111}, 0, 0, 100, 0),
		testLane(201, nil, []int32{211}, 150, 100, 150, 10),
		testLane(301, []int32{111}, []int32{311}, 200, 0, 300, 0),
		testLane(401, []int32{211}, nil, 150, -10, 150, -100),
		testLane(501, []int32{311}, nil, 400, 0, 500, 0),
		// 路口1001内车道
		testLane(111, []int32{101}, []int32{301}, 100, 0, 200, 0),
		testLane(211, []int32{201}, []int32{401}, 150, 10, 150, -10),
		// 路口1002内车道
		testLane(311, []int32{301}, []int32{501}, 300, 0, 400, 0),
	})
	ctx.roadManager.Init([]*mapv2.Road{
		{Id: 100, LaneIds: []int32{101}},
		{Id: 200, LaneIds: []int32{201}},
		{Id: 300, LaneIds: []int32{301}},
		{Id: 400, LaneIds: []int32{401}},
		{Id: 500, LaneIds: []int32{501}},
	}, ctx.laneManager)
	ctx.junctionManager.Init([]*mapv2.Junction{
		{
			Id:      1001,
			LaneIds: []int32{111, 211},
			Phases: []*mapv2.AvailablePhase{
				{States: []mapv2.LightState{testGreen, testRed}},
				{States: []mapv2.LightState{testRed, testGreen}},
			},
			DrivingLaneGroups: []*mapv2.JunctionLaneGroup{
				{InRoadId: 100, OutRoadId: 300, LaneIds: []int32{111}},
				{InRoadId: 200, OutRoadId: 400, LaneIds: []int32{211}},
			},
		},
		{
			Id:      1002,
			LaneIds: []int32{311},
			Phases: []*mapv2.AvailablePhase{
				{States: []mapv2.LightState{testGreen}},
				{States: []mapv2.LightState{testRed}},
			},
			DrivingLaneGroups: []*mapv2.JunctionLaneGroup{
				{InRoadId: 300, OutRoadId: 500, LaneIds: []int32{311}},
			},
		},
	}, ctx.laneManager, ctx.roadManager)
	ctx.roadManager.InitAfterJunction(ctx.junctionManager)
	ctx.corridorManager.Init(ctx.runtimeConfig.C.Corridors, ctx.junctionManager)
	ctx.telemetry.Init(ctx.junctionManager.Junctions())
	return ctx
}

func record(t *testing.T, c *telemetry.Cache, junctionID, approachID int32, queue float64) {
	t.Helper()
	ok := c.Record(junctionID, approachID, entity.Observation{
		Queue:    queue,
		Rate:     queue / 100,
		Time:     time.Now(),
		Reliable: true,
	})
	require.True(t, ok)
}

func TestRunCycleSmoke(t *testing.T) {
	ctx := newTestContext(t)
	record(t, ctx.telemetry, 1001, 100, 10)
	record(t, ctx.telemetry, 1001, 200, 10)
	record(t, ctx.telemetry, 1002, 300, 8)

	report := ctx.runCycle(context.Background())

	assert.Equal(t, 2, report.Targets)
	assert.Equal(t, 2, report.Processed)
	assert.Equal(t, 2, report.Optimized)
	assert.Equal(t, 2, report.Dispatched)
	assert.Equal(t, 0, report.Retained)
	assert.Equal(t, 0, report.Abandoned)
	assert.Equal(t, 0, report.DispatchFailures)
	assert.Equal(t, 0, report.PredictMisses)
	assert.Equal(t, 0, report.Degraded)
	assert.Equal(t, 2, report.Outcomes[entity.DispatchAcknowledged])
	assert.Len(t, report.Slowest, 2)

	// 两路口都提交了新方案并获得信号机确认
	upstream := ctx.junctionManager.Get(1001)
	downstream := ctx.junctionManager.Get(1002)
	require.NotNil(t, upstream.CurrentPlan())
	assert.Equal(t, uint64(2), upstream.CurrentPlan().Version)
	assert.Equal(t, uint64(2), upstream.AckedVersion())
	assert.False(t, upstream.CurrentPlan().Pretimed)

	// 均衡需求下1001两相位均分；1002的压力集中在放行相位，
	// 放行相位到达最大绿灯后余量归入空压相位
	assert.InDelta(t, 24, upstream.CurrentPlan().Timings[0].Green, 1e-9)
	assert.InDelta(t, 24, upstream.CurrentPlan().Timings[1].Green, 1e-9)
	assert.InDelta(t, 40, downstream.CurrentPlan().Timings[0].Green, 1e-9)
	assert.InDelta(t, 14, downstream.CurrentPlan().Timings[1].Green, 1e-9)

	// 干线协调：道路300长100m、协调车速20m/s，下游相位差5秒
	assert.InDelta(t, 0, upstream.CurrentPlan().Offset, 1e-9)
	assert.InDelta(t, 5, downstream.CurrentPlan().Offset, 1e-9)
}

type downPredictor struct{}

func (downPredictor) Predict(context.Context, int32, []int32, float64) (map[int32]entity.Prediction, error) {
	return nil, predictor.ErrUnavailable
}

func TestRunCyclePredictorDown(t *testing.T) {
	ctx := newTestContext(t)
	ctx.predictor = downPredictor{}
	record(t, ctx.telemetry, 1001, 100, 10)
	record(t, ctx.telemetry, 1001, 200, 10)
	record(t, ctx.telemetry, 1002, 300, 8)

	report := ctx.runCycle(context.Background())

	// 预测缺失只计数，优化与下发照常进行
	assert.Equal(t, 2, report.PredictMisses)
	assert.Equal(t, 2, report.Processed)
	assert.Equal(t, 2, report.Dispatched)
	assert.Equal(t, 0, report.Retained)
	assert.Equal(t, 0, report.Degraded)

	// 仅实时数据下1001两相位仍均分，1002放行相位仍到达最大绿灯
	upstream := ctx.junctionManager.Get(1001)
	downstream := ctx.junctionManager.Get(1002)
	assert.InDelta(t, 24, upstream.CurrentPlan().Timings[0].Green, 1e-9)
	assert.InDelta(t, 40, downstream.CurrentPlan().Timings[0].Green, 1e-9)
	assert.InDelta(t, 60, downstream.CurrentPlan().TotalDuration(), 1e-9)
}

func TestRunCycleDeadlineOverrun(t *testing.T) {
	ctx := newTestContext(t)
	record(t, ctx.telemetry, 1001, 100, 10)

	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	report := ctx.runCycle(canceled)

	// 所有路口被放弃，方案原样保留并计入降级
	assert.Equal(t, 2, report.Targets)
	assert.Equal(t, 0, report.Processed)
	assert.Equal(t, 2, report.Abandoned)
	assert.Equal(t, 2, report.Retained)
	assert.Equal(t, 0, report.Dispatched)
	assert.Equal(t, 2, report.Degraded)

	for _, id := range []int32{1001, 1002} {
		j := ctx.junctionManager.Get(id)
		assert.True(t, j.Degraded())
		require.NotNil(t, j.CurrentPlan())
		assert.Equal(t, uint64(1), j.CurrentPlan().Version)
		assert.True(t, j.CurrentPlan().Pretimed)
	}

	// 下一个正常周期恢复：新方案确认后清除降级状态
	next := ctx.runCycle(context.Background())
	assert.Equal(t, 2, next.Processed)
	assert.Equal(t, 2, next.Dispatched)
	assert.Equal(t, 0, next.Degraded)
	assert.False(t, ctx.junctionManager.Get(1001).Degraded())
	assert.Equal(t, uint64(2), ctx.junctionManager.Get(1001).CurrentPlan().Version)
}

func TestRunCycleCoordinatesRetainedMember(t *testing.T) {
	// 路口1002的最小绿灯被覆盖为50秒，两相位共需100秒，超出60秒周期，
	// 每个周期的优化都会失败
	ctx := newTestContext(t, config.JunctionOverride{JunctionID: 1002, MinGreen: 50})
	record(t, ctx.telemetry, 1001, 100, 10)

	report := ctx.runCycle(context.Background())

	// 1002在截止时间内完成计算但无可行方案，计入沿用而不是放弃
	assert.Equal(t, 2, report.Processed)
	assert.Equal(t, 1, report.Optimized)
	assert.Equal(t, 0, report.Abandoned)
	assert.Equal(t, 1, report.Retained)
	assert.Equal(t, 1, report.Degraded)

	// 作为干线成员，1002以旧方案结构参与协调：相位时长保持兜底均分，
	// 偏移被改写为干线偏移并作为新版本下发
	assert.Equal(t, 2, report.Dispatched)
	j := ctx.junctionManager.Get(1002)
	require.NotNil(t, j.CurrentPlan())
	assert.Equal(t, uint64(2), j.CurrentPlan().Version)
	assert.Equal(t, uint64(2), j.AckedVersion())
	assert.True(t, j.CurrentPlan().Pretimed)
	assert.True(t, j.Degraded())
	assert.InDelta(t, 5, j.CurrentPlan().Offset, 1e-9)
	assert.InDelta(t, 27, j.CurrentPlan().Timings[0].Green, 1e-9)
	assert.InDelta(t, 27, j.CurrentPlan().Timings[1].Green, 1e-9)

	// 偏移已经与干线一致，后续周期不再重复下发旧方案
	next := ctx.runCycle(context.Background())
	assert.Equal(t, 1, next.Dispatched)
	assert.Equal(t, 1, next.Retained)
	assert.Equal(t, uint64(2), j.CurrentPlan().Version)
	assert.InDelta(t, 5, j.CurrentPlan().Offset, 1e-9)
	assert.True(t, j.Degraded())
}

func TestRunCycleSkipsDisabledJunction(t *testing.T) {
	ctx := newTestContext(t)
	record(t, ctx.telemetry, 1001, 100, 10)
	ctx.junctionManager.Get(1002).SetControlEnabled(false)

	report := ctx.runCycle(context.Background())

	assert.Equal(t, 1, report.Targets)
	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, 1, report.Dispatched)

	// 关闭信控的路口保持初始兜底方案
	j := ctx.junctionManager.Get(1002)
	assert.Equal(t, uint64(1), j.CurrentPlan().Version)
	assert.False(t, j.Degraded())
}

func TestPrepareAdvancesClock(t *testing.T) {
	ctx := newTestContext(t)
	require.Equal(t, int32(0), ctx.clock.InternalCycle)

	ctx.prepare()
	assert.Equal(t, int32(1), ctx.clock.InternalCycle)
	assert.InDelta(t, 60, ctx.clock.T, 1e-9)
}

func TestPrepareFeederGeneratesObservations(t *testing.T) {
	ctx := newTestContext(t)
	ctx.feeder = telemetry.NewFeeder(ctx.telemetry, ctx.junctionManager.Junctions(), 7)

	ctx.prepare()
	accepted, _, _ := ctx.telemetry.Stats()
	assert.Equal(t, uint64(3), accepted)

	// 随后的周期即可直接在模拟数据上运行
	report := ctx.runCycle(context.Background())
	assert.Equal(t, 2, report.Dispatched)
}
