package api

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// edgecfgCollector implements prometheus.Collector, reading the run
// journal on each scrape.
type edgecfgCollector struct {
	srv *Server

	uptime        *prometheus.Desc
	journalRuns   *prometheus.Desc
	lastRunTime   *prometheus.Desc
	lastRunStatus *prometheus.Desc
}

func newCollector(srv *Server) *edgecfgCollector {
	return &edgecfgCollector{
		srv: srv,

		uptime: prometheus.NewDesc(
			"edgecfg_uptime_seconds",
			"Seconds since the API server started.",
			nil, nil,
		),
		journalRuns: prometheus.NewDesc(
			"edgecfg_journal_runs",
			"Runs currently held in the run journal.",
			nil, nil,
		),
		lastRunTime: prometheus.NewDesc(
			"edgecfg_last_run_timestamp_seconds",
			"Start time of the most recent run.",
			nil, nil,
		),
		lastRunStatus: prometheus.NewDesc(
			"edgecfg_last_run_status",
			"Outcome of the most recent run (1 for the matching result).",
			[]string{"result"}, nil,
		),
	}
}

func (c *edgecfgCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.uptime
	ch <- c.journalRuns
	ch <- c.lastRunTime
	ch <- c.lastRunStatus
}

func (c *edgecfgCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.uptime, prometheus.GaugeValue,
		time.Since(c.srv.startTime).Seconds())

	j := c.srv.journal
	if j == nil {
		return
	}
	ch <- prometheus.MustNewConstMetric(c.journalRuns, prometheus.GaugeValue, float64(j.Len()))

	latest := j.Latest(1)
	if len(latest) == 0 {
		return
	}
	e := latest[0]
	ch <- prometheus.MustNewConstMetric(c.lastRunTime, prometheus.GaugeValue,
		float64(e.Time.UnixNano())/1e9)

	result := "unchanged"
	switch {
	case e.Error != "":
		result = "failed"
	case e.Report != nil && e.Report.Changed:
		result = "changed"
	}
	for _, r := range []string{"changed", "unchanged", "failed"} {
		v := 0.0
		if r == result {
			v = 1
		}
		ch <- prometheus.MustNewConstMetric(c.lastRunStatus, prometheus.GaugeValue, v, r)
	}
}
