package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/psaab/edgecfg/pkg/config"
	"github.com/psaab/edgecfg/pkg/device"
	"github.com/psaab/edgecfg/pkg/reconcile"
	"github.com/psaab/edgecfg/pkg/task"
)

// historian is implemented by devices that keep a commit history.
type historian interface {
	History() []*device.HistoryEntry
	Rollback(n int) error
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeOK(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, Response{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, Response{Success: false, Error: msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// errorStatus maps run errors to HTTP status codes. Input problems are
// the client's fault; anything else came from the device.
func errorStatus(err error) int {
	var pe *config.ParseError
	switch {
	case errors.As(err, &pe), errors.Is(err, reconcile.ErrMutuallyExclusive):
		return http.StatusBadRequest
	case errors.Is(err, device.ErrInvalidCommand):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadGateway
	}
}

func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeOK(w, map[string]string{"status": "ok"})
}

func (s *Server) statusHandler(w http.ResponseWriter, _ *http.Request) {
	resp := StatusResponse{
		Uptime: time.Since(s.startTime).Truncate(time.Second).String(),
		Device: deviceKind(s.dev),
	}
	if s.journal != nil {
		latest := s.journal.Latest(1)
		if len(latest) > 0 {
			resp.LastRun = &latest[0].Time
		}
		resp.Runs = s.journal.Len()
	}
	writeOK(w, resp)
}

func deviceKind(dev device.Device) string {
	switch d := dev.(type) {
	case *device.Lab:
		return "lab"
	case *device.SSH:
		return "ssh " + d.Addr()
	case *device.Retry:
		return "ssh (retrying)"
	default:
		return fmt.Sprintf("%T", dev)
	}
}

func (s *Server) normalizeHandler(w http.ResponseWriter, r *http.Request) {
	var req NormalizeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	lines, err := config.Normalize(req.Text)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if lines == nil {
		lines = []string{}
	}
	writeOK(w, NormalizeResponse{Lines: lines})
}

func (s *Server) reconcileHandler(w http.ResponseWriter, r *http.Request) {
	var req ReconcileRequest
	if !decodeBody(w, r, &req) {
		return
	}
	candidate, err := reconcile.BuildCandidate(reconcile.Source{Lines: req.Lines, Src: req.SrcText})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	live := req.Config
	if live == "" {
		live, err = s.dev.FetchConfig(r.Context())
		if err != nil {
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
	}

	res := reconcile.Reconcile(candidate, live)
	if req.DeleteUnmanaged {
		res.Updates = reconcile.PromoteUnmanaged(res.Updates, res.Unmanaged)
	}
	writeOK(w, res)
}

func (s *Server) applyHandler(w http.ResponseWriter, r *http.Request) {
	var t task.Task
	if !decodeBody(w, r, &t) {
		return
	}
	if t.Src != "" {
		writeError(w, http.StatusBadRequest, "src paths are not accepted over the API, use src_text")
		return
	}
	t.SetDefaults()
	if err := t.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	report, err := s.runner.Run(r.Context(), &t)
	if err != nil {
		writeJSON(w, errorStatus(err), Response{Success: false, Data: report, Error: err.Error()})
		return
	}
	writeOK(w, report)
}

// configHandler returns the active configuration. ?format= selects
// "set" (default), "text" for bracket format, or "json" for a list of
// statements.
func (s *Server) configHandler(w http.ResponseWriter, r *http.Request) {
	live, err := s.dev.FetchConfig(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	switch format := r.URL.Query().Get("format"); format {
	case "", "set":
		writeOK(w, ConfigOutput{Output: live})
	case "text":
		tree, err := config.TreeFromSetLines(config.SplitLines(live))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeOK(w, ConfigOutput{Output: tree.Format()})
	case "json":
		lines := config.SplitLines(live)
		if lines == nil {
			lines = []string{}
		}
		writeOK(w, NormalizeResponse{Lines: lines})
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unsupported format %q", format))
	}
}

func (s *Server) configCompareHandler(w http.ResponseWriter, r *http.Request) {
	out, err := s.dev.CompareSaved(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeOK(w, map[string]any{
		"output": out,
		"clean":  strings.TrimSpace(out) == device.CompareSavedClean,
	})
}

func (s *Server) configSaveHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.dev.SaveConfig(r.Context()); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeOK(w, nil)
}

func (s *Server) configHistoryHandler(w http.ResponseWriter, _ *http.Request) {
	h, ok := s.dev.(historian)
	if !ok {
		writeError(w, http.StatusNotImplemented, "device does not keep a commit history")
		return
	}
	entries := h.History()
	result := make([]HistoryInfo, 0, len(entries))
	for i, e := range entries {
		result = append(result, HistoryInfo{
			Index:     i + 1,
			Timestamp: e.Timestamp.Format(time.RFC3339),
			Comment:   e.Comment,
			Lines:     len(e.Lines),
		})
	}
	writeOK(w, result)
}

func (s *Server) configRollbackHandler(w http.ResponseWriter, r *http.Request) {
	h, ok := s.dev.(historian)
	if !ok {
		writeError(w, http.StatusNotImplemented, "device does not keep a commit history")
		return
	}
	var req RollbackRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.N < 1 {
		writeError(w, http.StatusBadRequest, "n must be at least 1")
		return
	}
	if err := h.Rollback(req.N); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, device.ErrNoSuchRollback) {
			status = http.StatusNotFound
		}
		writeError(w, status, err.Error())
		return
	}
	writeOK(w, nil)
}

// runsHandler lists recent runs, newest first. ?limit= caps the count.
func (s *Server) runsHandler(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeOK(w, []RunInfo{})
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	entries := s.journal.Latest(limit)
	result := make([]RunInfo, 0, len(entries))
	for _, e := range entries {
		result = append(result, runInfoFromEntry(e))
	}
	writeOK(w, result)
}
