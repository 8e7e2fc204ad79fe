package api

import (
	"net/http"
	"time"
)

type HealthResponse struct {
	Status        string             `json:"status"`
	Version       string             `json:"version"`
	UptimeSeconds int64              `json:"uptime_seconds"`
	Checks        map[string]string  `json:"checks"`
	Model         *ModelInfo         `json:"model,omitempty"`
	Queue         *QueueStats        `json:"queue,omitempty"`
	Watcher       *WatcherStatusData `json:"watcher,omitempty"`
}

// ModelInfo describes the configured pipeline for health output.
type ModelInfo struct {
	Scorer    string `json:"scorer"`
	Features  string `json:"features"`
	Seed      uint64 `json:"seed"`
	InputDim  int    `json:"input_dim"`
	HiddenDim int    `json:"hidden_dim"`
}

// ConnectionChecker reports broker connectivity. *mqttclient.Client implements it.
type ConnectionChecker interface {
	IsConnected() bool
}

type HealthHandler struct {
	runs      RunStore
	mqtt      ConnectionChecker
	live      LiveDataSource
	queue     JobQueue
	storeType string
	model     *ModelInfo
	version   string
	startTime time.Time
}

func NewHealthHandler(opts ServerOptions) *HealthHandler {
	return &HealthHandler{
		runs:      opts.Runs,
		mqtt:      opts.MQTT,
		live:      opts.Live,
		queue:     opts.Queue,
		storeType: opts.StoreType,
		model:     opts.Model,
		version:   opts.Version,
		startTime: opts.StartTime,
	}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	status := "healthy"
	httpStatus := http.StatusOK

	// Database check
	if h.runs != nil {
		if err := h.runs.HealthCheck(r.Context()); err != nil {
			checks["database"] = "error"
			status = "unhealthy"
			httpStatus = http.StatusServiceUnavailable
		} else {
			checks["database"] = "ok"
		}
	} else {
		checks["database"] = "not_configured"
	}

	// MQTT check
	if h.mqtt != nil {
		if h.mqtt.IsConnected() {
			checks["mqtt"] = "ok"
		} else {
			checks["mqtt"] = "disconnected"
			if status == "healthy" {
				status = "degraded"
			}
		}
	} else {
		checks["mqtt"] = "not_configured"
	}

	if h.storeType != "" {
		checks["storage"] = h.storeType
	}

	resp := HealthResponse{
		Status:        status,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Checks:        checks,
		Model:         h.model,
	}

	if h.queue != nil {
		qs := h.queue.Stats()
		resp.Queue = &qs
	}

	// File watcher check
	if h.live != nil {
		if ws := h.live.WatcherStatus(); ws != nil {
			checks["file_watcher"] = ws.Status
			resp.Watcher = ws
		}
	}

	WriteJSON(w, httpStatus, resp)
}
