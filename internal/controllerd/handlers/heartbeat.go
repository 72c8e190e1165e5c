// Package handlers holds the controller daemon's HTTP endpoint
// implementations, one handler type per route group (mirrors the
// teacher's internal/daemon/handlers layout).
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gridforge/jobcore/internal/controllerd"
)

// HeartbeatHandler serves the Watchdog's heartbeat and accounting RPCs.
type HeartbeatHandler struct {
	store *controllerd.Store
}

// NewHeartbeatHandler constructs a HeartbeatHandler backed by store.
func NewHeartbeatHandler(store *controllerd.Store) *HeartbeatHandler {
	return &HeartbeatHandler{store: store}
}

type heartbeatRequest struct {
	JobID     int                `json:"job_id"`
	Heartbeat map[string]float64 `json:"heartbeat"`
	Static    map[string]string  `json:"static,omitempty"`
}

type heartbeatResponse struct {
	Control map[string]any `json:"control,omitempty"`
}

// Heartbeat records the sampled series and, if an operator has flagged the
// job for termination, replies with a Kill control directive.
func (h *HeartbeatHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	var req heartbeatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	h.store.RecordHeartbeat(req.JobID, req.Heartbeat, req.Static)

	resp := heartbeatResponse{}
	if h.store.ConsumeKillFlag(req.JobID) {
		resp.Control = map[string]any{"Kill": true}
	}
	respondJSON(w, http.StatusOK, resp)
}

type setJobParametersRequest struct {
	JobID      int         `json:"job_id"`
	Parameters [][2]string `json:"parameters"`
}

// SetJobParameters merges reported name/value pairs into a job's record.
func (h *HeartbeatHandler) SetJobParameters(w http.ResponseWriter, r *http.Request) {
	var req setJobParametersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	h.store.SetParameters(req.JobID, req.Parameters)
	w.WriteHeader(http.StatusOK)
}

type renewProxyRequest struct {
	MinLifetimeSeconds float64 `json:"min_lifetime_seconds"`
	NewLifetimeSeconds float64 `json:"new_lifetime_seconds"`
	ProxyPath          string  `json:"proxy_path"`
}

// RenewProxy is a reference stub for the proxy-renewal interface: it never
// contacts a real certificate authority, it only echoes back an empty
// credential so callers see a well-formed response while exercising the
// RPC shape.
func (h *HeartbeatHandler) RenewProxy(w http.ResponseWriter, r *http.Request) {
	var req renewProxyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"credential": ""})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
