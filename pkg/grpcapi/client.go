package grpcapi

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/psaab/edgecfg/pkg/reconcile"
	"github.com/psaab/edgecfg/pkg/runner"
	"github.com/psaab/edgecfg/pkg/task"
)

// Client calls a remote ConfigService.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to addr. Without options the connection is plaintext.
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", addr, err)
	}
	return &Client{conn: conn}, nil
}

// Close releases the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) call(ctx context.Context, method string, req, resp any) error {
	in, err := toStruct(req)
	if err != nil {
		return err
	}
	out := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, "/"+serviceName+"/"+method, in, out); err != nil {
		return err
	}
	if resp == nil {
		return nil
	}
	return decodeStruct(out, resp)
}

// Normalize converts configuration text to flat statements.
func (c *Client) Normalize(ctx context.Context, text string) ([]string, error) {
	var resp linesResponse
	if err := c.call(ctx, "Normalize", normalizeRequest{Text: text}, &resp); err != nil {
		return nil, err
	}
	return resp.Lines, nil
}

// Reconcile computes the statements the server would push without
// touching the device.
func (c *Client) Reconcile(ctx context.Context, req ReconcileRequest) (reconcile.Result, error) {
	var res reconcile.Result
	err := c.call(ctx, "Reconcile", req, &res)
	return res, err
}

// Apply runs t on the server. Src paths are read locally and sent as
// inline text.
func (c *Client) Apply(ctx context.Context, t *task.Task) (*runner.Report, error) {
	req := *t
	if req.Src != "" {
		src, err := t.Source()
		if err != nil {
			return nil, err
		}
		req.Src = ""
		req.SrcText = src.Src
	}
	var report runner.Report
	if err := c.call(ctx, "Apply", &req, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// GetConfig returns the device's active configuration.
func (c *Client) GetConfig(ctx context.Context) (string, error) {
	var resp outputResponse
	err := c.call(ctx, "GetConfig", struct{}{}, &resp)
	return resp.Output, err
}

// CompareSaved returns the difference between the active and saved
// configuration.
func (c *Client) CompareSaved(ctx context.Context) (string, error) {
	var resp outputResponse
	err := c.call(ctx, "CompareSaved", struct{}{}, &resp)
	return resp.Output, err
}

// Save writes the active configuration to the boot configuration.
func (c *Client) Save(ctx context.Context) error {
	return c.call(ctx, "Save", struct{}{}, nil)
}
