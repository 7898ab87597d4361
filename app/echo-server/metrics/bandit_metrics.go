package metrics

import (
	"context"
	"path"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

var (
	GRPCDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bandit_grpc_latency_seconds",
		Help:    "Latency of bandit gRPC methods",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})

	GRPCTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bandit_grpc_requests_total",
		Help: "Total bandit gRPC calls by method and status code",
	}, []string{"method", "code"})
)

func Init() {
	prometheus.MustRegister(GRPCDuration, GRPCTotal)
}

// UnaryServerInterceptor records latency and outcome for every gRPC call.
func UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		method := path.Base(info.FullMethod)
		GRPCDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
		GRPCTotal.WithLabelValues(method, status.Code(err).String()).Inc()
		return resp, err
	}
}
