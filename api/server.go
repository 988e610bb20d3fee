// Package api exposes the acquisition daemon's counters and identity
// over HTTP for scraping and quick operator checks.
package api

import (
	"net/http"

	"github.com/lingx107/digdar/internal/httputil"
	"github.com/lingx107/digdar/internal/monitor"
	"github.com/lingx107/digdar/internal/version"
)

type Server struct {
	stats *monitor.PulseStats
}

func NewServer(stats *monitor.PulseStats) *Server {
	return &Server{
		stats: stats,
	}
}

func (s *Server) homeHandler(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("digdar pulse acquisition daemon\n"))
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/stats", s.statsHandler)
	mux.HandleFunc("/version", s.versionHandler)
	mux.HandleFunc("/", s.homeHandler)
	return mux
}

// statusResponse is the /stats payload. Interval is the snapshot taken at
// the most recent stats logging tick and is null until the first pulse
// activity has been logged.
type statusResponse struct {
	UptimeSeconds float64                `json:"uptime_seconds"`
	Interval      *monitor.StatsSnapshot `json:"interval"`
}

func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	httputil.WriteJSONOK(w, statusResponse{
		UptimeSeconds: s.stats.GetUptime().Seconds(),
		Interval:      s.stats.GetLatestSnapshot(),
	})
}

func (s *Server) versionHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	httputil.WriteJSONOK(w, map[string]string{
		"version":    version.Version,
		"git_sha":    version.GitSHA,
		"build_time": version.BuildTime,
	})
}
