package junction

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"connectrpc.com/connect"
	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	mapv2connect "git.fiblab.net/sim/protos/v2/go/city/map/v2/mapv2connect"
	"git.fiblab.net/sim/syncer/v3"
	"github.com/tsinghua-fib-lab/signalet-go/entity"
)

// Register 将Junction管理器注册到sidecar
// 功能：将Junction管理器注册为RPC服务，提供远程调用接口
// 参数：sidecar-同步器侧车实例
// 说明：注册信号灯服务处理器和路口服务处理器，支持gRPC-Connect协议
func (m *JunctionManager) Register(sidecar *syncer.Sidecar) {
	sidecar.Register(
		mapv2connect.TrafficLightServiceName,
		func(opts ...connect.HandlerOption) (pattern string, handler http.Handler) {
			return mapv2connect.NewTrafficLightServiceHandler(m, opts...)
		},
	)
	sidecar.Register(
		mapv2connect.JunctionServiceName,
		func(opts ...connect.HandlerOption) (pattern string, handler http.Handler) {
			return mapv2connect.NewJunctionServiceHandler(m, opts...)
		},
	)
}

// GetTrafficLight RPC接口：获取指定Junction的信号灯状态
// 功能：处理GetTrafficLight RPC请求，返回当前生效方案渲染出的信号灯程序
// 参数：ctx-上下文，in-包含Junction ID的请求
// 返回：信号灯状态响应，包含当前程序、按时钟推算的相位索引和剩余时间
// 说明：如果Junction不存在则返回错误，无生效方案则返回空响应
func (m *JunctionManager) GetTrafficLight(
	ctx context.Context, in *connect.Request[mapv2.GetTrafficLightRequest],
) (*connect.Response[mapv2.GetTrafficLightResponse], error) {
	req := in.Msg
	j, ok := m.data[req.JunctionId]
	if !ok {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("junction id does not exist"))
	}
	program, index, remaining := j.CurrentProgram()
	if program == nil {
		return connect.NewResponse(&mapv2.GetTrafficLightResponse{}), nil
	}
	return connect.NewResponse(&mapv2.GetTrafficLightResponse{
		TrafficLight:  program,
		PhaseIndex:    index,
		TimeRemaining: remaining,
	}), nil
}

// SetTrafficLight RPC接口：操作员下发指定Junction的信号灯程序
// 功能：处理SetTrafficLight RPC请求，校验程序后经正常下发链路推送到信号机
// 参数：ctx-上下文，in-包含信号灯程序的请求
// 返回：设置结果响应
// 说明：下发成功后停用该路口的优化控制，避免下一周期覆盖操作员程序；
// 空相位表等价于停用优化控制；PhaseIndex与TimeRemaining不参与调度，忽略
func (m *JunctionManager) SetTrafficLight(
	ctx context.Context, in *connect.Request[mapv2.SetTrafficLightRequest],
) (*connect.Response[mapv2.SetTrafficLightResponse], error) {
	req := in.Msg
	j, ok := m.data[req.TrafficLight.JunctionId]
	if !ok {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("junction id does not exist"))
	}
	if len(req.TrafficLight.Phases) == 0 {
		if err := j.setStatus(false); err != nil {
			return nil, connect.NewError(connect.CodeInvalidArgument, err)
		}
		return connect.NewResponse(&mapv2.SetTrafficLightResponse{}), nil
	}
	if req.TimeRemaining < 0 {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("invalid remaining time"))
	}
	plan, err := j.Override(req.TrafficLight)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	wasEnabled := j.ControlEnabled()
	j.SetControlEnabled(false)
	outcome := m.ctx.Dispatcher().Dispatch(ctx, j, plan)
	if outcome != entity.DispatchAcknowledged {
		j.SetControlEnabled(wasEnabled)
		return nil, connect.NewError(
			connect.CodeUnavailable,
			fmt.Errorf("dispatch of operator program to junction %d failed: %s", j.id, outcome),
		)
	}
	log.Infof("junction %d: operator program v%d dispatched, adaptive control disabled", j.id, plan.Version)
	return connect.NewResponse(&mapv2.SetTrafficLightResponse{}), nil
}

// SetTrafficLightPhase RPC接口：设置指定Junction的信号灯相位
// 功能：处理SetTrafficLightPhase RPC请求
// 参数：ctx-上下文，in-包含Junction ID、相位索引和剩余时间的请求
// 返回：固定返回失败
// 说明：相位推进由引擎按周期调度，不接受外部直接跳相
func (m *JunctionManager) SetTrafficLightPhase(
	ctx context.Context, in *connect.Request[mapv2.SetTrafficLightPhaseRequest],
) (*connect.Response[mapv2.SetTrafficLightPhaseResponse], error) {
	req := in.Msg
	if _, ok := m.data[req.JunctionId]; !ok {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("junction id does not exist"))
	}
	return nil, connect.NewError(
		connect.CodeFailedPrecondition,
		errors.New("phase is scheduled by the control engine and cannot be set directly"),
	)
}

// SetTrafficLightStatus RPC接口：设置指定Junction的信号灯控制状态
// 功能：处理SetTrafficLightStatus RPC请求，开关该路口的优化控制
// 参数：ctx-上下文，in-包含Junction ID和状态标志的请求
// 返回：设置结果响应
// 说明：true表示恢复优化控制，false表示停用（信号机维持最后下发的程序）
func (m *JunctionManager) SetTrafficLightStatus(
	ctx context.Context, in *connect.Request[mapv2.SetTrafficLightStatusRequest],
) (*connect.Response[mapv2.SetTrafficLightStatusResponse], error) {
	req := in.Msg
	j, ok := m.data[req.JunctionId]
	if !ok {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("junction id does not exist"))
	}
	if err := j.setStatus(req.Ok); err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	return connect.NewResponse(&mapv2.SetTrafficLightStatusResponse{}), nil
}
