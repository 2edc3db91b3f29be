// Package telemetry 维护路侧检测器观测的内存缓存，并提供观测上报接口与模拟数据源
package telemetry

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/tsinghua-fib-lab/signalet-go/entity"
	"github.com/tsinghua-fib-lab/signalet-go/utils/container"
)

// approachRecord 单个进口道的观测存储
type approachRecord struct {
	last    entity.Observation               // 最近一次被接受的观测
	hasLast bool                             // 是否有过观测
	history *container.Ring[entity.Observation] // 观测历史，供本地预测器使用
}

// junctionShard 单个路口的观测分片
// 说明：锁粒度为路口，不同路口的读写互不阻塞
type junctionShard struct {
	mu         sync.RWMutex
	approaches map[int32]*approachRecord
}

// Cache 检测器状态缓存
// 功能：按（路口，进口道）维度保存最近一次被接受的观测与观测历史
// 说明：路口与进口道集合在初始化后不再变化，查找分片无需任何全局锁；
// 时间戳不新于已存观测的数据视为乱序到达，丢弃并计数
type Cache struct {
	ctx entity.ITaskContext

	data map[int32]*junctionShard // 路口ID->分片映射表

	accepted   atomic.Uint64 // 接受的观测数
	outOfOrder atomic.Uint64 // 因乱序或重复到达被丢弃的观测数
	unknown    atomic.Uint64 // 因路口或进口道未知被丢弃的观测数
}

// NewCache 创建检测器状态缓存
// 参数：ctx-任务上下文
// 返回：初始化的Cache实例
func NewCache(ctx entity.ITaskContext) *Cache {
	return &Cache{ctx: ctx}
}

// Init 初始化缓存分片
// 功能：按路口列表为每个进口道建立观测存储
// 参数：junctions-全部路口
func (c *Cache) Init(junctions []entity.IJunction) {
	history := c.ctx.RuntimeConfig().All.Telemetry.History
	c.data = make(map[int32]*junctionShard, len(junctions))
	approaches := 0
	for _, j := range junctions {
		shard := &junctionShard{approaches: make(map[int32]*approachRecord, len(j.ApproachIDs()))}
		for _, id := range j.ApproachIDs() {
			shard.approaches[id] = &approachRecord{history: container.NewRing[entity.Observation](history)}
		}
		c.data[j.ID()] = shard
		approaches += len(shard.approaches)
	}
	log.Infof("telemetry cache: %d junctions with %d approaches, history depth %d", len(c.data), approaches, history)
}

// Record 写入一条观测
// 功能：观测时间戳严格新于已存观测时接受，否则丢弃并计数
// 参数：junctionID-路口ID，approachID-进口道ID，obs-观测数据
// 返回：是否接受
func (c *Cache) Record(junctionID, approachID int32, obs entity.Observation) bool {
	shard, ok := c.data[junctionID]
	if !ok {
		c.unknown.Add(1)
		return false
	}
	shard.mu.Lock()
	defer shard.mu.Unlock()
	record, ok := shard.approaches[approachID]
	if !ok {
		c.unknown.Add(1)
		return false
	}
	if record.hasLast && !obs.Time.After(record.last.Time) {
		c.outOfOrder.Add(1)
		return false
	}
	record.last = obs
	record.hasLast = true
	record.history.Push(obs)
	c.accepted.Add(1)
	return true
}

// Snapshot 读取单个路口所有进口道的状态快照
// 功能：复制各进口道最近一次被接受的观测并按过期时限标记Stale
// 参数：junctionID-路口ID，now-判定过期的基准时间
// 返回：进口道ID->状态映射，从未有观测的进口道不出现在结果中
func (c *Cache) Snapshot(junctionID int32, now time.Time) map[int32]entity.ApproachState {
	shard, ok := c.data[junctionID]
	if !ok {
		return nil
	}
	staleAfter := time.Duration(c.ctx.RuntimeConfig().StaleAfter() * float64(time.Second))
	shard.mu.RLock()
	defer shard.mu.RUnlock()
	states := make(map[int32]entity.ApproachState, len(shard.approaches))
	for id, record := range shard.approaches {
		if !record.hasLast {
			continue
		}
		states[id] = entity.ApproachState{
			Observation: record.last,
			Stale:       now.Sub(record.last.Time) > staleAfter,
		}
	}
	return states
}

// History 读取单个进口道的观测历史
// 返回：观测切片副本（从旧到新），路口或进口道未知时返回nil
func (c *Cache) History(junctionID, approachID int32) []entity.Observation {
	shard, ok := c.data[junctionID]
	if !ok {
		return nil
	}
	shard.mu.RLock()
	defer shard.mu.RUnlock()
	record, ok := shard.approaches[approachID]
	if !ok {
		return nil
	}
	return record.history.Values()
}

// Stats 读取观测计数器
// 返回：接受数、乱序丢弃数、未知丢弃数
func (c *Cache) Stats() (accepted, outOfOrder, unknown uint64) {
	return c.accepted.Load(), c.outOfOrder.Load(), c.unknown.Load()
}
