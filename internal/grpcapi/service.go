package grpcapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"replyBandit/domain"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "replybandit.v1.Bandit"

// BanditService is the part of the bandit service exposed over gRPC.
type BanditService interface {
	Decide(ctx context.Context, req domain.DecisionRequest) (domain.DecisionRecord, error)
	Feedback(ctx context.Context, fb domain.FeedbackRecord) (domain.FeedbackResult, error)
	Evaluate(ctx context.Context, records []domain.EvaluationRecord, reference *domain.FeatureProfile) (domain.EvaluationReport, error)
}

// BanditServer is implemented by Server; the interface exists so the
// service can be registered through ServiceDesc.
type BanditServer interface {
	Decide(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	Feedback(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	Evaluate(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

type Server struct {
	svc BanditService
}

var _ BanditServer = (*Server)(nil)

func NewServer(svc BanditService) *Server {
	return &Server{svc: svc}
}

// Register adds the bandit service to s.
func Register(s grpc.ServiceRegistrar, srv BanditServer) {
	s.RegisterService(&ServiceDesc, srv)
}

type feedbackRequest struct {
	TurnID   string   `json:"turn_id"`
	ArmIndex *int     `json:"arm_index"`
	Reward   *float64 `json:"reward"`
}

type evaluateRequest struct {
	Records   []domain.EvaluationRecord `json:"records"`
	Reference *domain.FeatureProfile    `json:"reference,omitempty"`
}

func (s *Server) Decide(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req domain.DecisionRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}
	rec, err := s.svc.Decide(ctx, req)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(domain.NewDecisionResponse(rec))
}

func (s *Server) Feedback(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req feedbackRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}
	if req.TurnID == "" || req.ArmIndex == nil || req.Reward == nil {
		return nil, status.Error(codes.InvalidArgument, "turn_id, arm_index and reward are required")
	}
	res, err := s.svc.Feedback(ctx, domain.FeedbackRecord{
		TurnID:   req.TurnID,
		ArmIndex: *req.ArmIndex,
		Reward:   *req.Reward,
	})
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(res)
}

func (s *Server) Evaluate(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req evaluateRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}
	rep, err := s.svc.Evaluate(ctx, req.Records, req.Reference)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(rep)
}

func fromStruct(in *structpb.Struct, out any) error {
	if in == nil {
		return status.Error(codes.InvalidArgument, "empty request")
	}
	raw, err := protojson.Marshal(in)
	if err != nil {
		return status.Errorf(codes.InvalidArgument, "encode request: %v", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return status.Errorf(codes.InvalidArgument, "decode request: %v", err)
	}
	return nil
}

func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(raw, out); err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return out, nil
}

// toStatus maps domain errors onto gRPC codes.
func toStatus(err error) error {
	if _, ok := status.FromError(err); ok {
		return err
	}
	code := codes.Internal
	switch {
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrEmptyCandidateSet):
		code = codes.InvalidArgument
	case errors.Is(err, domain.ErrUnknownArm):
		code = codes.FailedPrecondition
	case errors.Is(err, domain.ErrNotFound):
		code = codes.NotFound
	}
	return status.Error(code, err.Error())
}

func unaryHandler(method string, call func(BanditServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodHandler {
	fullMethod := fmt.Sprintf("/%s/%s", ServiceName, method)
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(BanditServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(BanditServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*BanditServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Decide", Handler: unaryHandler("Decide", BanditServer.Decide)},
		{MethodName: "Feedback", Handler: unaryHandler("Feedback", BanditServer.Feedback)},
		{MethodName: "Evaluate", Handler: unaryHandler("Evaluate", BanditServer.Evaluate)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "replybandit/v1/bandit.proto",
}
