package api

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// setSSEHeaders configures the response for Server-Sent Events streaming.
func setSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
}

// writeSSEEvent writes a single SSE event to the response.
func writeSSEEvent(w http.ResponseWriter, id string, event string, data string) {
	fmt.Fprintf(w, "id: %s\n", id)
	if event != "" {
		fmt.Fprintf(w, "event: %s\n", event)
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

// runStreamHandler streams finished runs via SSE. The event type is the
// run outcome: "changed", "unchanged" or "failed". ?changed=true skips
// runs that did not change the device.
func (s *Server) runStreamHandler(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeError(w, http.StatusServiceUnavailable, "run journal not available")
		return
	}
	onlyChanged := r.URL.Query().Get("changed") == "true"

	setSSEHeaders(w)

	sub := s.journal.Subscribe(32)
	defer sub.Close()

	var seq uint64
	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-sub.C:
			event := "unchanged"
			switch {
			case e.Error != "":
				event = "failed"
			case e.Report != nil && e.Report.Changed:
				event = "changed"
			}
			if onlyChanged && event != "changed" {
				continue
			}
			data, err := json.Marshal(runInfoFromEntry(e))
			if err != nil {
				continue
			}
			seq++
			writeSSEEvent(w, fmt.Sprintf("%d", seq), event, string(data))
		}
	}
}
