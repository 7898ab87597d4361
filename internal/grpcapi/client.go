package grpcapi

import (
	"context"
	"encoding/json"
	"fmt"

	"replyBandit/domain"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client calls a remote bandit service.
type Client struct {
	conn grpc.ClientConnInterface
	own  *grpc.ClientConn
}

// Dial connects to addr without transport security.
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &Client{conn: conn, own: conn}, nil
}

// NewClient wraps an existing connection.
func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

func (c *Client) Close() error {
	if c.own == nil {
		return nil
	}
	return c.own.Close()
}

func (c *Client) invoke(ctx context.Context, method string, in, out any) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req := &structpb.Struct{}
	if err := protojson.Unmarshal(raw, req); err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	resp := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, "/"+ServiceName+"/"+method, req, resp); err != nil {
		return fmt.Errorf("%s rpc: %w", method, err)
	}

	raw, err = protojson.Marshal(resp)
	if err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) Decide(ctx context.Context, req domain.DecisionRequest) (domain.DecisionResponse, error) {
	var out domain.DecisionResponse
	err := c.invoke(ctx, "Decide", req, &out)
	return out, err
}

func (c *Client) Feedback(ctx context.Context, turnID string, armIndex int, reward float64) (domain.FeedbackResult, error) {
	var out domain.FeedbackResult
	err := c.invoke(ctx, "Feedback", feedbackRequest{TurnID: turnID, ArmIndex: &armIndex, Reward: &reward}, &out)
	return out, err
}

func (c *Client) Evaluate(ctx context.Context, records []domain.EvaluationRecord, reference *domain.FeatureProfile) (domain.EvaluationReport, error) {
	var out domain.EvaluationReport
	err := c.invoke(ctx, "Evaluate", evaluateRequest{Records: records, Reference: reference}, &out)
	return out, err
}
