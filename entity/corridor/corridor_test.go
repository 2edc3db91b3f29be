package corridor_test

import (
	"testing"

	geov2 "git.fiblab.net/sim/protos/v2/go/city/geo/v2"
	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	"github.com/stretchr/testify/assert"
	"github.com/tsinghua-fib-lab/signalet-go/clock"
	"github.com/tsinghua-fib-lab/signalet-go/entity"
	"github.com/tsinghua-fib-lab/signalet-go/entity/corridor"
	"github.com/tsinghua-fib-lab/signalet-go/entity/junction"
	"github.com/tsinghua-fib-lab/signalet-go/entity/lane"
	"github.com/tsinghua-fib-lab/signalet-go/entity/road"
	"github.com/tsinghua-fib-lab/signalet-go/utils/config"
)

const (
	GREEN = mapv2.LightState_LIGHT_STATE_GREEN
	RED   = mapv2.LightState_LIGHT_STATE_RED
)

type fakeContext struct {
	entity.ITaskContext
	clk *clock.Clock
	cfg *config.RuntimeConfig
}

func (c *fakeContext) Clock() *clock.Clock                  { return c.clk }
func (c *fakeContext) RuntimeConfig() *config.RuntimeConfig { return c.cfg }

func line(points ...float64) *mapv2.Polyline {
	nodes := make([]*geov2.XYPosition, 0, len(points)/2)
	for i := 0; i+1 < len(points); i += 2 {
		nodes = append(nodes, &geov2.XYPosition{X: points[i], Y: points[i+1]})
	}
	return &mapv2.Polyline{Nodes: nodes}
}

func lanePb(id int32, pre, suc []int32, points ...float64) *mapv2.Lane {
	pb := &mapv2.Lane{
		Id:         id,
		Type:       mapv2.LaneType_LANE_TYPE_DRIVING,
		Turn:       mapv2.LaneTurn_LANE_TURN_STRAIGHT,
		MaxSpeed:   10,
		Width:      3.5,
		CenterLine: line(points...),
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

// newFixture 双路口干线测试路网
// 路口1001经道路300（长100米）连接下游路口1002
func newFixture() (*junction.JunctionManager, *fakeContext) {
	cfg := config.NewRuntimeConfig(config.Config{Control: config.Control{
		Cycle:  config.ControlCycle{Interval: 60},
		Signal: config.Signal{DefaultCycle: 60, MinGreen: 8, MaxGreen: 40},
	}})
	ctx := &fakeContext{clk: clock.New(cfg.C.Cycle), cfg: cfg}

	laneManager := lane.NewManager(ctx)
	roadManager := road.NewManager(ctx)
	manager := junction.NewManager(ctx)

	laneManager.Init([]*mapv2.Lane{
		lanePb(101, nil, []int32{111}, 0, 0, 100, 0),
		lanePb(201, nil, []int32{211}, 150, 100, 150, 10),
		lanePb(301, []int32{111}, []int32{311}, 200, 0, 300, 0),
		lanePb(401, []int32{211}, nil, 150, -10, 150, -100),
		lanePb(501, []int32{311}, nil, 400, 0, 500, 0),
		lanePb(111, []int32{101}, []int32{301}, 100, 0, 200, 0),
		lanePb(211, []int32{201}, []int32{401}, 150, 10, 150, -10),
		lanePb(311, []int32{301}, []int32{501}, 300, 0, 400, 0),
	})
	roadManager.Init([]*mapv2.Road{
		{Id: 100, LaneIds: []int32{101}},
		{Id: 200, LaneIds: []int32{201}},
		{Id: 300, LaneIds: []int32{301}},
		{Id: 400, LaneIds: []int32{401}},
		{Id: 500, LaneIds: []int32{501}},
	}, laneManager)
	manager.Init([]*mapv2.Junction{
		{
			Id:      1001,
			LaneIds: []int32{111, 211},
			Phases: []*mapv2.AvailablePhase{
				{States: []mapv2.LightState{GREEN, RED}},
				{States: []mapv2.LightState{RED, GREEN}},
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
				{States: []mapv2.LightState{GREEN}},
				{States: []mapv2.LightState{RED}},
			},
			DrivingLaneGroups: []*mapv2.JunctionLaneGroup{
				{InRoadId: 300, OutRoadId: 500, LaneIds: []int32{311}},
			},
		},
	}, laneManager, roadManager)
	roadManager.InitAfterJunction(manager)
	return manager, ctx
}

func plan(junctionID int32, cycle, offset float64) *entity.SignalPlan {
	return &entity.SignalPlan{
		JunctionID: junctionID,
		Version:    2,
		Cycle:      cycle,
		Offset:     offset,
		Timings: []entity.PhaseTiming{
			{PhaseIndex: 0, Green: cycle/2 - 6, Transition: 6},
			{PhaseIndex: 1, Green: cycle/2 - 6, Transition: 6},
		},
	}
}

func TestCorridorApply(t *testing.T) {
	junctionManager, ctx := newFixture()
	m := corridor.NewManager(ctx)
	// 道路300长100米，目标车速20m/s，行程时间5秒
	m.Init([]config.Corridor{
		{Name: "main-street", JunctionIDs: []int32{1001, 1002}, TargetSpeed: 20},
	}, junctionManager)

	c, err := m.GetOrError("main-street")
	assert.NoError(t, err)
	assert.Equal(t, []int32{1001, 1002}, c.MemberIDs())
	assert.InDelta(t, 60, c.Cycle(), 1e-9)

	upstream := plan(1001, 60, 0)
	downstream := plan(1002, 60, 0)
	before := downstream.Timings[0].Green
	pending := map[int32]*entity.SignalPlan{1001: upstream, 1002: downstream}
	c.Apply(pending)

	// 下游路口偏移等于行程时间，相位时长不变
	assert.InDelta(t, 0, upstream.Offset, 1e-9)
	assert.InDelta(t, 5, downstream.Offset, 1e-9)
	assert.InDelta(t, before, downstream.Timings[0].Green, 1e-9)
}

func TestCorridorApplyBaseOffset(t *testing.T) {
	junctionManager, ctx := newFixture()
	m := corridor.NewManager(ctx)
	m.Init([]config.Corridor{
		{Name: "main-street", JunctionIDs: []int32{1001, 1002}, TargetSpeed: 20},
	}, junctionManager)
	c := m.Get("main-street")

	// 首个成员的偏移作为基准，越过周期边界时取模
	pending := map[int32]*entity.SignalPlan{
		1001: plan(1001, 60, 58),
		1002: plan(1002, 60, 0),
	}
	c.Apply(pending)
	assert.InDelta(t, 58, pending[1001].Offset, 1e-9)
	assert.InDelta(t, 3, pending[1002].Offset, 1e-9)
}

func TestCorridorApplyMissingMember(t *testing.T) {
	junctionManager, ctx := newFixture()
	m := corridor.NewManager(ctx)
	m.Init([]config.Corridor{
		{Name: "main-street", JunctionIDs: []int32{1001, 1002}, TargetSpeed: 20},
	}, junctionManager)

	// 本周期没有方案的成员直接跳过
	pending := map[int32]*entity.SignalPlan{1002: plan(1002, 60, 0)}
	m.Get("main-street").Apply(pending)
	assert.InDelta(t, 5, pending[1002].Offset, 1e-9)
}

func TestCorridorCentroidFallback(t *testing.T) {
	junctionManager, ctx := newFixture()
	m := corridor.NewManager(ctx)
	// 1002到1001没有道路直接相连，退化为路口中心距离200米
	m.Init([]config.Corridor{
		{Name: "reverse", JunctionIDs: []int32{1002, 1001}, TargetSpeed: 20},
	}, junctionManager)

	pending := map[int32]*entity.SignalPlan{
		1001: plan(1001, 60, 0),
		1002: plan(1002, 60, 0),
	}
	m.Get("reverse").Apply(pending)
	assert.InDelta(t, 0, pending[1002].Offset, 1e-9)
	assert.InDelta(t, 10, pending[1001].Offset, 1e-9)
}

func TestCorridorManagerValidation(t *testing.T) {
	junctionManager, ctx := newFixture()

	// 同一路口出现在两条干线中
	assert.Panics(t, func() {
		m := corridor.NewManager(ctx)
		m.Init([]config.Corridor{
			{Name: "a", JunctionIDs: []int32{1001, 1002}},
			{Name: "b", JunctionIDs: []int32{1002, 1001}},
		}, junctionManager)
	})

	// 引用不存在的路口
	assert.Panics(t, func() {
		m := corridor.NewManager(ctx)
		m.Init([]config.Corridor{
			{Name: "a", JunctionIDs: []int32{1001, 9999}},
		}, junctionManager)
	})

	// 成员不足两个
	assert.Panics(t, func() {
		m := corridor.NewManager(ctx)
		m.Init([]config.Corridor{
			{Name: "a", JunctionIDs: []int32{1001}},
		}, junctionManager)
	})

	m := corridor.NewManager(ctx)
	m.Init([]config.Corridor{
		{Name: "a", JunctionIDs: []int32{1001, 1002}},
	}, junctionManager)
	assert.Len(t, m.Corridors(), 1)
	_, err := m.GetOrError("nope")
	assert.Error(t, err)
}
