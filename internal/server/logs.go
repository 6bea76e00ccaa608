package server

import (
	"net/http"
	"strconv"
	"time"

	gateway "github.com/keyhub-gw/keyhub/internal"
	"github.com/keyhub-gw/keyhub/internal/storage"
)

// handleHealth reports liveness.
func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": gateway.Now(),
	})
}

type logPage struct {
	Logs   []*gateway.RequestLog `json:"logs"`
	Total  int                   `json:"total"`
	Offset int                   `json:"offset"`
	Limit  int                   `json:"limit"`
}

// handleQueryLogs returns request logs matching the query filters, newest
// first.
func (s *server) handleQueryLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := storage.LogFilter{
		ChannelID: q.Get("channelId"),
	}
	f.Status, _ = strconv.Atoi(q.Get("status"))
	f.StartTime, _ = strconv.ParseInt(q.Get("startTime"), 10, 64)
	f.EndTime, _ = strconv.ParseInt(q.Get("endTime"), 10, 64)
	f.Offset, _ = strconv.Atoi(q.Get("offset"))
	f.Limit, _ = strconv.Atoi(q.Get("limit"))
	if f.Limit <= 0 || f.Limit > 1000 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	logs, total, err := s.deps.Store.QueryLogs(r.Context(), f)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	if logs == nil {
		logs = []*gateway.RequestLog{}
	}
	respondData(w, http.StatusOK, logPage{
		Logs:   logs,
		Total:  total,
		Offset: f.Offset,
		Limit:  f.Limit,
	})
}

// dashboardStats aggregates entity counts and the last 24 h of relay traffic.
type dashboardStats struct {
	TotalChannels   int     `json:"totalChannels"`
	EnabledChannels int     `json:"enabledChannels"`
	TotalKeys       int     `json:"totalKeys"`
	ActiveKeys      int     `json:"activeKeys"`
	TotalTokens     int     `json:"totalTokens"`
	RequestsLast24h int     `json:"requestsLast24h"`
	SuccessLast24h  int     `json:"successLast24h"`
	FailedLast24h   int     `json:"failedLast24h"`
	AvgLatencyMs    float64 `json:"avgLatencyMs"`
}

func (s *server) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var stats dashboardStats

	channels, err := s.deps.Store.ListChannels(ctx)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	stats.TotalChannels = len(channels)
	for _, ch := range channels {
		if ch.Enabled {
			stats.EnabledChannels++
		}
	}

	keys, err := s.deps.Store.ListKeys(ctx, "")
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	stats.TotalKeys = len(keys)
	for _, k := range keys {
		if k.Status == gateway.KeyActive {
			stats.ActiveKeys++
		}
	}

	tokens, err := s.deps.Store.ListTokens(ctx)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	stats.TotalTokens = len(tokens)

	since := gateway.Now() - 24*time.Hour.Milliseconds()
	logs, err := s.deps.Store.LogsSince(ctx, since)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	stats.RequestsLast24h = len(logs)
	var latencySum int64
	for _, l := range logs {
		if l.Status >= 200 && l.Status < 300 {
			stats.SuccessLast24h++
		} else {
			stats.FailedLast24h++
		}
		latencySum += l.Latency
	}
	if len(logs) > 0 {
		stats.AvgLatencyMs = float64(latencySum) / float64(len(logs))
	}

	respondData(w, http.StatusOK, stats)
}

type settingsPayload struct {
	CheckInterval    *int64 `json:"checkInterval"`
	MaxLogsRetention *int64 `json:"maxLogsRetention"`
}

func (s *server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.deps.Store.GetSettings(r.Context())
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, settings)
}

func (s *server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.deps.Store.GetSettings(r.Context())
	if err != nil {
		writeStoreError(w, r, err)
		return
	}

	var p settingsPayload
	if !decodeJSON(w, r, &p) {
		return
	}
	if p.CheckInterval != nil {
		if *p.CheckInterval <= 0 {
			respondError(w, http.StatusBadRequest, "checkInterval must be positive")
			return
		}
		settings.CheckInterval = *p.CheckInterval
	}
	if p.MaxLogsRetention != nil {
		if *p.MaxLogsRetention <= 0 {
			respondError(w, http.StatusBadRequest, "maxLogsRetention must be positive")
			return
		}
		settings.MaxLogsRetention = *p.MaxLogsRetention
	}

	if err := s.deps.Store.UpdateSettings(r.Context(), settings); err != nil {
		writeStoreError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, settings)
}
