// Package api implements the HTTP REST API and Prometheus metrics endpoint.
package api

import (
	"time"

	"github.com/psaab/edgecfg/pkg/runner"
)

// Response is the standard JSON response envelope.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// StatusResponse holds daemon status information.
type StatusResponse struct {
	Uptime  string     `json:"uptime"`
	Device  string     `json:"device"`
	Runs    int        `json:"runs"`
	LastRun *time.Time `json:"last_run,omitempty"`
}

// ConfigOutput carries rendered configuration text.
type ConfigOutput struct {
	Output string `json:"output"`
}

// NormalizeRequest is the body of POST /api/v1/normalize.
type NormalizeRequest struct {
	Text string `json:"text"`
}

// NormalizeResponse lists the flat statements of a configuration.
type NormalizeResponse struct {
	Lines []string `json:"lines"`
}

// ReconcileRequest is the body of POST /api/v1/reconcile. When Config is
// empty the device's active configuration is used.
type ReconcileRequest struct {
	Lines           []string `json:"lines,omitempty"`
	SrcText         string   `json:"src_text,omitempty"`
	Config          string   `json:"config,omitempty"`
	DeleteUnmanaged bool     `json:"delete_unmanaged,omitempty"`
}

// RollbackRequest is the body of POST /api/v1/config/rollback.
type RollbackRequest struct {
	N int `json:"n"`
}

// HistoryInfo describes one commit in the device history.
type HistoryInfo struct {
	Index     int    `json:"index"`
	Timestamp string `json:"timestamp"`
	Comment   string `json:"comment,omitempty"`
	Lines     int    `json:"lines"`
}

// RunInfo is a journal entry as returned by the API.
type RunInfo struct {
	Time   string         `json:"time"`
	Report *runner.Report `json:"report"`
	Error  string         `json:"error,omitempty"`
}

func runInfoFromEntry(e runner.Entry) RunInfo {
	return RunInfo{
		Time:   e.Time.Format(time.RFC3339),
		Report: e.Report,
		Error:  e.Error,
	}
}
