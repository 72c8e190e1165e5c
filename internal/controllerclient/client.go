// Package controllerclient is the HTTP+JSON implementation of
// watchdog.Controller: it talks to a controller daemon over the narrow RPC
// surface the Watchdog relies on (sendHeartBeat, setJobParameters,
// renewProxy).
package controllerclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gridforge/jobcore/internal/watchdog"
)

// heartbeatBudget bounds a single heartbeat round trip.
const heartbeatBudget = 120 * time.Second

// Client is a bearer-token-authenticated HTTP client for a controller
// daemon (internal/controllerd).
type Client struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
}

var _ watchdog.Controller = (*Client)(nil)

// New constructs a Client. baseURL should not have a trailing slash.
func New(baseURL, authToken string) *Client {
	return &Client{
		baseURL:   baseURL,
		authToken: authToken,
		httpClient: &http.Client{
			Timeout: heartbeatBudget,
		},
	}
}

type heartbeatRequest struct {
	JobID     int                `json:"job_id"`
	Heartbeat map[string]float64 `json:"heartbeat"`
	Static    map[string]string  `json:"static,omitempty"`
}

type heartbeatResponse struct {
	Control map[string]any `json:"control,omitempty"`
}

// SendHeartbeat posts the sampled series plus optional static payload
// (e.g. tailed stdout) and returns whatever control directives the
// controller attaches.
func (c *Client) SendHeartbeat(jobID int, heartbeat map[string]float64, static map[string]string) (watchdog.HeartbeatResponse, error) {
	body, err := json.Marshal(heartbeatRequest{JobID: jobID, Heartbeat: heartbeat, Static: static})
	if err != nil {
		return watchdog.HeartbeatResponse{}, fmt.Errorf("marshal heartbeat: %w", err)
	}

	var resp heartbeatResponse
	if err := c.post("/api/heartbeat", body, &resp); err != nil {
		return watchdog.HeartbeatResponse{}, err
	}
	return watchdog.HeartbeatResponse{Control: resp.Control}, nil
}

type setJobParametersRequest struct {
	JobID      int         `json:"job_id"`
	Parameters [][2]string `json:"parameters"`
}

// SetJobParameters reports name/value pairs for the job (calibration
// metadata, usage summaries) to the controller's accounting store.
func (c *Client) SetJobParameters(jobID int, pairs [][2]string) error {
	body, err := json.Marshal(setJobParametersRequest{JobID: jobID, Parameters: pairs})
	if err != nil {
		return fmt.Errorf("marshal job parameters: %w", err)
	}
	return c.post("/api/jobparameters", body, nil)
}

type renewProxyRequest struct {
	MinLifetimeSeconds float64 `json:"min_lifetime_seconds"`
	NewLifetimeSeconds float64 `json:"new_lifetime_seconds"`
	ProxyPath          string  `json:"proxy_path"`
}

// RenewProxy asks the controller to renew the pilot's proxy credential if
// its remaining lifetime is below minLifetime. The renewed credential is
// written back to proxyPath.
func (c *Client) RenewProxy(minLifetime, newLifetime time.Duration, proxyPath string) error {
	body, err := json.Marshal(renewProxyRequest{
		MinLifetimeSeconds: minLifetime.Seconds(),
		NewLifetimeSeconds: newLifetime.Seconds(),
		ProxyPath:          proxyPath,
	})
	if err != nil {
		return fmt.Errorf("marshal renew proxy request: %w", err)
	}

	var fileResp struct {
		Credential string `json:"credential"`
	}
	if err := c.post("/api/renewproxy", body, &fileResp); err != nil {
		return err
	}
	if fileResp.Credential == "" {
		return nil
	}
	return os.WriteFile(proxyPath, []byte(fileResp.Credential), 0600)
}

func (c *Client) post(path string, body []byte, out any) error {
	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.authToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: unexpected status %s", path, resp.Status)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", path, err)
	}
	return nil
}
