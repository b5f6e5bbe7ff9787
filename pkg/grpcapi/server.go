// Package grpcapi implements the gRPC API server for edgecfg.
//
// Requests and responses travel as google.protobuf.Struct values holding
// the same JSON documents the HTTP API accepts, so the service needs no
// generated code.
package grpcapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/psaab/edgecfg/pkg/config"
	"github.com/psaab/edgecfg/pkg/device"
	"github.com/psaab/edgecfg/pkg/reconcile"
	"github.com/psaab/edgecfg/pkg/runner"
	"github.com/psaab/edgecfg/pkg/task"
)

// Config configures the gRPC server.
type Config struct {
	Runner *runner.Runner
}

// Server implements the ConfigService gRPC service.
type Server struct {
	runner *runner.Runner
	dev    device.Device
	addr   string
}

// NewServer creates a new gRPC server.
func NewServer(addr string, cfg Config) *Server {
	return &Server{
		runner: cfg.Runner,
		dev:    cfg.Runner.Device(),
		addr:   addr,
	}
}

// Register adds the service to srv.
func (s *Server) Register(srv *grpc.Server) {
	srv.RegisterService(&serviceDesc, s)
}

// Run starts the gRPC server and blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("gRPC listen: %w", err)
	}

	srv := grpc.NewServer()
	s.Register(srv)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("gRPC server listening", "addr", s.addr)
		if err := srv.Serve(lis); err != nil {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	srv.GracefulStop()
	return nil
}

// ReconcileRequest is the document accepted by Reconcile.
type ReconcileRequest struct {
	Lines           []string `json:"lines,omitempty"`
	SrcText         string   `json:"src_text,omitempty"`
	Config          string   `json:"config,omitempty"`
	DeleteUnmanaged bool     `json:"delete_unmanaged,omitempty"`
}

type normalizeRequest struct {
	Text string `json:"text"`
}

type linesResponse struct {
	Lines []string `json:"lines"`
}

type outputResponse struct {
	Output string `json:"output"`
}

// --- Reconciliation RPCs ---

func (s *Server) Normalize(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req normalizeRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}
	lines, err := config.Normalize(req.Text)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "%v", err)
	}
	if lines == nil {
		lines = []string{}
	}
	return toStruct(linesResponse{Lines: lines})
}

func (s *Server) Reconcile(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req ReconcileRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}
	candidate, err := reconcile.BuildCandidate(reconcile.Source{Lines: req.Lines, Src: req.SrcText})
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "%v", err)
	}
	live := req.Config
	if live == "" {
		if live, err = s.dev.FetchConfig(ctx); err != nil {
			return nil, statusFromError(err)
		}
	}
	res := reconcile.Reconcile(candidate, live)
	if req.DeleteUnmanaged {
		res.Updates = reconcile.PromoteUnmanaged(res.Updates, res.Unmanaged)
	}
	return toStruct(res)
}

func (s *Server) Apply(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var t task.Task
	if err := fromStruct(in, &t); err != nil {
		return nil, err
	}
	if t.Src != "" {
		return nil, status.Error(codes.InvalidArgument, "src paths are not accepted over the API, use src_text")
	}
	t.SetDefaults()
	if err := t.Validate(); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "%v", err)
	}
	report, err := s.runner.Run(ctx, &t)
	if err != nil {
		return nil, statusFromError(err)
	}
	return toStruct(report)
}

// --- Device RPCs ---

func (s *Server) GetConfig(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	live, err := s.dev.FetchConfig(ctx)
	if err != nil {
		return nil, statusFromError(err)
	}
	return toStruct(outputResponse{Output: live})
}

func (s *Server) CompareSaved(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	out, err := s.dev.CompareSaved(ctx)
	if err != nil {
		return nil, statusFromError(err)
	}
	return toStruct(outputResponse{Output: out})
}

func (s *Server) Save(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	if err := s.dev.SaveConfig(ctx); err != nil {
		return nil, statusFromError(err)
	}
	return &structpb.Struct{}, nil
}

// statusFromError maps run and device errors to gRPC codes.
func statusFromError(err error) error {
	var pe *config.ParseError
	switch {
	case errors.As(err, &pe), errors.Is(err, reconcile.ErrMutuallyExclusive):
		return status.Errorf(codes.InvalidArgument, "%v", err)
	case errors.Is(err, device.ErrInvalidCommand):
		return status.Errorf(codes.FailedPrecondition, "%v", err)
	case errors.Is(err, device.ErrNoSuchRollback):
		return status.Errorf(codes.NotFound, "%v", err)
	case errors.Is(err, context.Canceled):
		return status.Errorf(codes.Canceled, "%v", err)
	case errors.Is(err, context.DeadlineExceeded):
		return status.Errorf(codes.DeadlineExceeded, "%v", err)
	default:
		return status.Errorf(codes.Unavailable, "%v", err)
	}
}
