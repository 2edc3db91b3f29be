package task

import (
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"git.fiblab.net/sim/syncer/v3"
	"github.com/sirupsen/logrus"
	"github.com/tsinghua-fib-lab/signalet-go/clock"
	"github.com/tsinghua-fib-lab/signalet-go/dispatch"
	"github.com/tsinghua-fib-lab/signalet-go/entity"
	"github.com/tsinghua-fib-lab/signalet-go/entity/corridor"
	"github.com/tsinghua-fib-lab/signalet-go/entity/junction"
	"github.com/tsinghua-fib-lab/signalet-go/entity/lane"
	"github.com/tsinghua-fib-lab/signalet-go/entity/road"
	"github.com/tsinghua-fib-lab/signalet-go/metrics"
	"github.com/tsinghua-fib-lab/signalet-go/predictor"
	"github.com/tsinghua-fib-lab/signalet-go/telemetry"
	"github.com/tsinghua-fib-lab/signalet-go/utils/config"
	"github.com/tsinghua-fib-lab/signalet-go/utils/input"
)

// waitForServerReady 等待服务器就绪
// 功能：通过HTTP请求检查服务器是否已经启动并可以响应
// 参数：addr-服务器地址，retryCount-重试次数，interval-重试间隔
// 返回：错误信息，如果服务器就绪则返回nil
// 算法说明：
// 1. 创建HTTP客户端，设置超时时间
// 2. 循环发送GET请求到指定地址
// 3. 如果请求成功，关闭响应体并返回nil
// 4. 如果请求失败，等待指定间隔后重试
// 5. 达到最大重试次数后返回错误
func waitForServerReady(addr string, retryCount int, interval time.Duration) error {
	client := &http.Client{
		Timeout: interval,
	}
	for i := 0; i < retryCount; i++ {
		resp, err := client.Get(addr)
		if err == nil {
			resp.Body.Close()
			return nil
		}
		time.Sleep(interval)
	}
	return fmt.Errorf("server `%v` did not become ready after %d retries", addr, retryCount)
}

// Context 信控任务上下文
// 功能：包含一次信控任务的所有变量和状态，替代原来的全局变量
// 说明：管理控制引擎的所有组件，包括时钟、管理器、配置、外部服务适配器等
type Context struct {

	// 任务名
	job string
	// 关闭指令
	closed atomic.Bool

	// 时钟
	clock *clock.Clock

	// 辅助程序，处理分布式模式下相关调用，包括与syncer、其他服务的交互
	sidecar *syncer.Sidecar
	// sidecar close channel
	sidecarCloseCh chan struct{}
	// 缓存文件夹
	cacheDir string

	// Lane管理器
	laneManager entity.ILaneManager
	// Road管理器
	roadManager entity.IRoadManager
	// Junction管理器
	junctionManager entity.IJunctionManager
	// Corridor管理器
	corridorManager entity.ICorridorManager

	// 检测器观测缓存
	telemetry *telemetry.Cache
	// 模拟数据源，未启用时为nil
	feeder *telemetry.Feeder
	// 需求预测服务适配器
	predictor entity.IPredictor
	// 方案下发器
	dispatcher entity.IDispatcher

	// 运行时配置文件
	runtimeConfig *config.RuntimeConfig

	// 启动时刻，健康检查端点上报运行时长
	startAt time.Time

	// 用于初始化的输入
	initRes *input.Input
}

// NewContext 创建新的信控任务上下文
// 功能：初始化控制引擎的所有组件和配置
// 参数：
//   - job: 任务名称
//   - grpcAddr: gRPC服务地址
//   - syncerAddr: syncer服务地址
//   - syncerLog: syncer日志记录器
//   - cacheDir: 缓存目录
//   - c: 配置对象
//   - sidecar: 外部sidecar实例
//   - startSidecarServe: 是否启动sidecar服务
//
// 返回：初始化完成的Context实例
// 算法说明：
// 1. 创建Context实例并设置基本属性
// 2. 初始化时钟
// 3. 下载和初始化路网数据
// 4. 创建各种管理器（车道、道路、路口、干线）
// 5. 创建遥测缓存、需求预测适配器和方案下发器
// 6. 注册RPC服务与HTTP端点到sidecar
// 7. 启动sidecar服务（如果需要）
func NewContext(
	job string,
	grpcAddr string,
	syncerAddr string,
	syncerLog *logrus.Entry,
	cacheDir string,
	c config.Config,
	sidecar *syncer.Sidecar,
	startSidecarServe bool,
) *Context {
	ctx := &Context{
		job:            job,
		cacheDir:       cacheDir,
		sidecar:        sidecar,
		sidecarCloseCh: make(chan struct{}),
		startAt:        time.Now(),
	}
	ctx.clock = clock.New(c.Control.Cycle)

	// 下载所有控制引擎启动所需的数据
	ctx.initRes = input.Init(c, ctx.cacheDir)

	ctx.runtimeConfig = config.NewRuntimeConfig(c)

	// 新建各类受控对象管理器
	ctx.laneManager = lane.NewManager(ctx)
	ctx.roadManager = road.NewManager(ctx)
	ctx.junctionManager = junction.NewManager(ctx)
	ctx.corridorManager = corridor.NewManager(ctx)

	// 遥测缓存与外部服务适配器
	ctx.telemetry = telemetry.NewCache(ctx)
	ctx.predictor = predictor.New(c.Predictor, ctx.telemetry)
	ctx.dispatcher = dispatch.NewDispatcher(dispatch.NewLink(c.Actuator), c.Actuator)

	ctx.clock.Register(ctx.sidecar)
	ctx.junctionManager.Register(ctx.sidecar)
	ctx.telemetry.Register(ctx.sidecar)
	metrics.Register(ctx.sidecar, metrics.NewHealthHandler(ctx.startAt, ctx.healthComponents))
	metrics.RegisterTelemetrySource(ctx.telemetry.Stats)

	// sidecar协程，用于提供gRPC服务
	if startSidecarServe {
		go func() {
			err := ctx.sidecar.Serve()
			if err != nil {
				log.Panicf("failed to serve: %v", err)
			}
			ctx.sidecarCloseCh <- struct{}{}
		}()
	}

	return ctx
}

func (ctx *Context) GetInput() *input.Input {
	return ctx.initRes
}

func (ctx *Context) Clock() *clock.Clock {
	return ctx.clock
}

func (ctx *Context) LaneManager() entity.ILaneManager {
	return ctx.laneManager
}

func (ctx *Context) RoadManager() entity.IRoadManager {
	return ctx.roadManager
}

func (ctx *Context) JunctionManager() entity.IJunctionManager {
	return ctx.junctionManager
}

func (ctx *Context) CorridorManager() entity.ICorridorManager {
	return ctx.corridorManager
}

func (ctx *Context) RuntimeConfig() *config.RuntimeConfig {
	return ctx.runtimeConfig
}

func (ctx *Context) Predictor() entity.IPredictor {
	return ctx.predictor
}

func (ctx *Context) Dispatcher() entity.IDispatcher {
	return ctx.dispatcher
}

func (ctx *Context) Telemetry() *telemetry.Cache {
	return ctx.telemetry
}

// healthComponents 汇总健康检查端点上报的组件状态
// 说明：任一路口处于降级状态时整体状态为degraded
func (ctx *Context) healthComponents() map[string]bool {
	return map[string]bool{
		"engine":    !ctx.closed.Load(),
		"junctions": ctx.junctionManager.ControlledCount() > 0,
		"actuator":  ctx.junctionManager.DegradedCount() == 0,
	}
}

func (ctx *Context) Init() {
	ctx.clock.Init()

	// 数据加载
	mapData := ctx.initRes.Map

	log.Infof("Lane: %v", len(mapData.Lanes))
	log.Infof("Road: %v", len(mapData.Roads))
	log.Infof("Junction: %v", len(mapData.Junctions))

	ctx.laneManager.Init(mapData.Lanes) // 先完成lane的所有初始化
	// road初始化
	ctx.roadManager.Init(mapData.Roads, ctx.laneManager)
	// junction初始化
	ctx.junctionManager.Init(mapData.Junctions, ctx.laneManager, ctx.roadManager)
	// road初始化其中的前驱后继路口
	ctx.roadManager.InitAfterJunction(ctx.junctionManager)
	// 完成路网构建后，建立协调干线
	ctx.corridorManager.Init(ctx.runtimeConfig.C.Corridors, ctx.junctionManager)

	// 遥测缓存按受控路口分片
	ctx.telemetry.Init(ctx.junctionManager.Junctions())
	if ctx.runtimeConfig.All.Telemetry.Feeder {
		ctx.feeder = telemetry.NewFeeder(
			ctx.telemetry,
			ctx.junctionManager.Junctions(),
			ctx.runtimeConfig.All.Telemetry.FeederSeed,
		)
	}

	// 等待外部服务就绪，未就绪时以降级模式继续运行
	for name, addr := range map[string]string{
		"predictor": ctx.runtimeConfig.All.Predictor.URL,
		"actuator":  ctx.runtimeConfig.All.Actuator.URL,
	} {
		if addr == "" {
			continue
		}
		if err := waitForServerReady(addr, 5, time.Second); err != nil {
			log.Warnf("%s not ready: %v, continue without it", name, err)
		}
	}

	metrics.ControlledJunctions.Set(float64(ctx.junctionManager.ControlledCount()))
}

func (ctx *Context) Close() {
	if ctx.closed.Load() {
		return
	}
	ctx.sidecar.Close()
	// wait for graceful stop
	<-ctx.sidecarCloseCh
	ctx.closed.Store(true)
}
