package telemetry

import (
	"flag"
	"math"
	"time"

	"github.com/tsinghua-fib-lab/signalet-go/entity"
	"github.com/tsinghua-fib-lab/signalet-go/utils/randengine"
)

var (
	feederSample      = flag.Int("telemetry.feeder_sample", 100, "模拟数据源每周期更新观测的路口数上限")
	feederUnreliableP = flag.Float64("telemetry.feeder_unreliable_p", .02, "模拟数据源单条观测自报异常的概率")
	feederPriorityP   = flag.Float64("telemetry.feeder_priority_p", .05, "模拟数据源单条观测出现优先车辆的概率")
)

// approachDemand 单个进口道的模拟需求状态
type approachDemand struct {
	queue float64 // 当前排队车辆数，随机游走
}

// Feeder 模拟检测器数据源
// 功能：每个控制周期为随机抽取的一批路口生成观测写入缓存，
// 用于演示与单机模式下替代真实检测器
// 说明：每个路口持有独立种子的随机数引擎，相同种子下输出可复现；
// 排队车辆数按随机游走变化，到达流率与排队正相关
type Feeder struct {
	cache *Cache

	junctions []entity.IJunction
	engines   map[int32]*randengine.Engine
	demands   map[int32]map[int32]*approachDemand
	sampler   *randengine.Engine // 抽取本周期更新路口用
}

// NewFeeder 创建模拟数据源
// 参数：cache-检测器状态缓存，junctions-全部路口，seed-随机种子
// 返回：初始化的Feeder实例
func NewFeeder(cache *Cache, junctions []entity.IJunction, seed int64) *Feeder {
	f := &Feeder{
		cache:     cache,
		junctions: junctions,
		engines:   make(map[int32]*randengine.Engine, len(junctions)),
		demands:   make(map[int32]map[int32]*approachDemand, len(junctions)),
		sampler:   randengine.New(uint64(seed)),
	}
	for _, j := range junctions {
		engine := randengine.New(uint64(seed) + uint64(j.ID()))
		f.engines[j.ID()] = engine
		demands := make(map[int32]*approachDemand, len(j.ApproachIDs()))
		for _, id := range j.ApproachIDs() {
			demands[id] = &approachDemand{queue: engine.Float64() * 20}
		}
		f.demands[j.ID()] = demands
	}
	log.Infof("telemetry feeder: %d junctions, seed %d", len(junctions), seed)
	return f
}

// Step 生成一个周期的模拟观测
// 功能：随机抽取至多feeder_sample个路口，为其每个进口道写入一条观测
// 参数：now-观测时间戳
// 返回：被缓存接受的观测条数
func (f *Feeder) Step(now time.Time) int {
	picked := f.junctions
	if len(f.junctions) > *feederSample {
		picked = make([]entity.IJunction, 0, *feederSample)
		for _, i := range f.sampler.Perm(len(f.junctions))[:*feederSample] {
			picked = append(picked, f.junctions[i])
		}
	}
	accepted := 0
	for _, j := range picked {
		engine := f.engines[j.ID()]
		for _, approachID := range j.ApproachIDs() {
			demand := f.demands[j.ID()][approachID]
			demand.queue = math.Max(0, demand.queue+float64(engine.Intn(13)-6))
			ok := f.cache.Record(j.ID(), approachID, entity.Observation{
				Queue:    demand.queue,
				Rate:     demand.queue/100 + engine.Float64()*.1,
				Time:     now,
				Reliable: !engine.PTrue(*feederUnreliableP),
				Priority: engine.PTrue(*feederPriorityP),
			})
			if ok {
				accepted++
			}
		}
	}
	return accepted
}
