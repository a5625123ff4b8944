package grpc

import (
	"github.com/wyfcoding/menuforecast/pkg/middleware"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName 健康检查中的服务名
const ServiceName = "menuforecast.Forecast"

// NewServer 创建带日志与恢复拦截器的 gRPC Server
func NewServer(opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts, grpc.ChainUnaryInterceptor(
		middleware.GRPCRecoveryInterceptor(),
		middleware.GRPCLoggingInterceptor(),
	))
	s := grpc.NewServer(opts...)
	reflection.Register(s)
	return s
}

// HealthServer grpc.health.v1 实现，调度器的健康检查任务通过 SetServing 切换状态
type HealthServer struct {
	srv *health.Server
}

// NewHealthServer 注册健康服务，初始为 SERVING
func NewHealthServer(s *grpc.Server) *HealthServer {
	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	return &HealthServer{srv: hs}
}

// SetServing 设置预测服务状态；整体状态 "" 不受影响
func (h *HealthServer) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.srv.SetServingStatus(ServiceName, status)
}

// Shutdown 所有服务置为 NOT_SERVING，用于优雅退出
func (h *HealthServer) Shutdown() {
	h.srv.Shutdown()
}
