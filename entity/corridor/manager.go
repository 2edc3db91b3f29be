package corridor

import (
	"fmt"

	"github.com/tsinghua-fib-lab/signalet-go/entity"
	"github.com/tsinghua-fib-lab/signalet-go/utils/config"
)

// CorridorManager 干线管理器
// 功能：管理配置中定义的所有协调干线
// 说明：校验每个路口至多属于一条干线
type CorridorManager struct {
	ctx entity.ITaskContext

	data      map[string]*Corridor // 干线名->干线指针映射表
	corridors []entity.ICorridor   // 全部干线（周期调度遍历用）
	assigned  map[int32]string     // 成员路口ID->所属干线名
}

// NewManager 创建新的干线管理器
// 参数：ctx-任务上下文
// 返回：初始化的CorridorManager实例
func NewManager(ctx entity.ITaskContext) *CorridorManager {
	return &CorridorManager{
		ctx:      ctx,
		data:     make(map[string]*Corridor),
		assigned: make(map[int32]string),
	}
}

// Init 初始化干线管理器
// 功能：根据配置建立所有干线，校验干线名与成员的唯一性
// 参数：cfgs-干线配置列表，junctionManager-Junction管理器
// 说明：同名干线或一个路口出现在多条干线中时panic
func (m *CorridorManager) Init(cfgs []config.Corridor, junctionManager entity.IJunctionManager) {
	for _, cfg := range cfgs {
		if _, ok := m.data[cfg.Name]; ok {
			log.Panicf("corridor %s is defined twice", cfg.Name)
		}
		c := newCorridor(m.ctx, cfg, junctionManager)
		for _, id := range c.memberIDs {
			if other, ok := m.assigned[id]; ok {
				log.Panicf("junction %d belongs to both corridor %s and %s", id, other, cfg.Name)
			}
			m.assigned[id] = cfg.Name
		}
		m.data[cfg.Name] = c
		m.corridors = append(m.corridors, c)
	}
	log.Infof("corridor manager: %d corridors loaded", len(m.data))
}

// Get 根据干线名查找干线
// 参数：name-干线名
// 返回：找到的干线，如果不存在则panic
func (m *CorridorManager) Get(name string) entity.ICorridor {
	if corridor, ok := m.data[name]; !ok {
		log.Panicf("no name %s in corridor data", name)
		return nil
	} else {
		return corridor
	}
}

// GetOrError 根据干线名查找干线
// 参数：name-干线名
// 返回：找到的干线，如果不存在则返回error
func (m *CorridorManager) GetOrError(name string) (entity.ICorridor, error) {
	if corridor, ok := m.data[name]; !ok {
		return nil, fmt.Errorf("no name %s in corridor data", name)
	} else {
		return corridor, nil
	}
}

// Corridors 获取所有干线
func (m *CorridorManager) Corridors() []entity.ICorridor {
	return m.corridors
}
