package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

func New(baseURL, token string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type ServiceConfig struct {
	Name             string `json:"name"`
	Namespace        string `json:"namespace"`
	Job              string `json:"job"`
	Host             string `json:"host"`
	Port             int    `json:"port"`
	HealthPath       string `json:"health"`
	Probe            string `json:"probe"`
	Interval         string `json:"interval"`
	FailureThreshold int    `json:"failureThreshold"`
	Replicas         int    `json:"replicas"`
	Stabilize        string `json:"stabilize"`
	Remediation      string `json:"remediation"`
	Target           string `json:"target"`
}

type HealthRecord struct {
	Service             string            `json:"service"`
	Known               bool              `json:"known"`
	Healthy             bool              `json:"healthy"`
	LastCheckedAt       string            `json:"lastCheckedAt"`
	Detail              map[string]string `json:"detail"`
	ConsecutiveFailures int               `json:"consecutiveFailures"`
	LastTransitionAt    string            `json:"lastTransitionAt"`
	StaleReports        int               `json:"staleReports"`
}

type RemediationState struct {
	Phase         string `json:"phase"`
	AttemptID     string `json:"attemptId,omitempty"`
	StartedAt     string `json:"startedAt,omitempty"`
	CooldownUntil string `json:"cooldownUntil,omitempty"`
}

type ServiceView struct {
	Config      ServiceConfig    `json:"config"`
	Record      HealthRecord     `json:"record"`
	Remediation RemediationState `json:"remediation"`
}

type RemediationStats struct {
	Attempts  int `json:"attempts"`
	Successes int `json:"successes"`
	Failures  int `json:"failures"`
	Timeouts  int `json:"timeouts"`
}

type ClusterStatus struct {
	Cluster        string            `json:"cluster"`
	Status         string            `json:"status"`
	Healthy        int               `json:"healthy"`
	Total          int               `json:"total"`
	Services       []ServiceView     `json:"services"`
	RecentAttempts []AuditEntry      `json:"recentAttempts"`
	Attempts24h    *RemediationStats `json:"attempts24h"`
}

type AuditStep struct {
	Action string `json:"action"`
	Result string `json:"result"`
	OK     bool   `json:"ok"`
	At     string `json:"at"`
}

type AuditEntry struct {
	AttemptID  string      `json:"attemptId"`
	Service    string      `json:"service"`
	Trigger    string      `json:"trigger"`
	StartedAt  string      `json:"startedAt"`
	FinishedAt string      `json:"finishedAt"`
	Outcome    string      `json:"outcome"`
	Steps      []AuditStep `json:"steps"`
}

type Report struct {
	Service    string            `json:"service"`
	Healthy    bool              `json:"healthy"`
	Detail     map[string]string `json:"detail"`
	ObservedAt string            `json:"observedAt"`
}

type HealthStatus struct {
	Status       string            `json:"status"`
	Services     map[string]string `json:"services"`
	Monitored    int               `json:"monitored"`
	WSClients    int               `json:"wsClients"`
	ConsulLeader string            `json:"consulLeader"`
}

type RemediateAccepted struct {
	AttemptID string `json:"attemptId"`
	Status    string `json:"status"`
}

// RejectedError is a remediation request the server refused: reason is
// "already_remediating" or "cooldown".
type RejectedError struct {
	Reason  string
	Message string
}

func (e *RejectedError) Error() string { return e.Message }

func (c *Client) Health() (*HealthStatus, error) {
	var h HealthStatus
	if err := c.get("/api/health", &h); err != nil {
		return nil, err
	}
	return &h, nil
}

func (c *Client) Status() (*ClusterStatus, error) {
	var s ClusterStatus
	if err := c.get("/api/status", &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *Client) ListServices() ([]ServiceView, error) {
	var views []ServiceView
	if err := c.get("/api/services", &views); err != nil {
		return nil, err
	}
	return views, nil
}

func (c *Client) GetService(name string) (*ServiceView, error) {
	var view ServiceView
	if err := c.get("/api/services/"+name, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

func (c *Client) History(name string, limit int) ([]Report, error) {
	path := "/api/services/" + name + "/history"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var reports []Report
	if err := c.get(path, &reports); err != nil {
		return nil, err
	}
	return reports, nil
}

// Remediate asks the server to start an attempt. A refusal comes back as
// a *RejectedError so callers can distinguish cooldown from a busy service.
func (c *Client) Remediate(name string, force bool) (*RemediateAccepted, error) {
	body := "{}"
	if force {
		body = `{"force":true}`
	}

	resp, err := c.do("POST", "/api/services/"+name+"/remediate", body)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		var rej struct {
			Error  string `json:"error"`
			Reason string `json:"reason"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&rej); err != nil {
			return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
		}
		return nil, &RejectedError{Reason: rej.Reason, Message: rej.Error}
	}
	if resp.StatusCode != http.StatusAccepted {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(b))
	}

	var acc RemediateAccepted
	if err := json.NewDecoder(resp.Body).Decode(&acc); err != nil {
		return nil, err
	}
	return &acc, nil
}

func (c *Client) ListAudit(service string, limit int) ([]AuditEntry, error) {
	q := url.Values{}
	if service != "" {
		q.Set("service", service)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/audit"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var entries []AuditEntry
	if err := c.get(path, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (c *Client) GetAuditEntry(attemptID string) (*AuditEntry, error) {
	var entry AuditEntry
	if err := c.get("/api/audit/"+attemptID, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

func (c *Client) get(path string, v any) error {
	resp, err := c.do("GET", path, "")
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}

	return json.NewDecoder(resp.Body).Decode(v)
}

func (c *Client) do(method, path, body string) (*http.Response, error) {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, c.BaseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	return c.HTTPClient.Do(req)
}

func (c *Client) WebSocketURL() string {
	base := c.BaseURL
	base = strings.Replace(base, "http://", "ws://", 1)
	base = strings.Replace(base, "https://", "wss://", 1)
	return base + "/ws"
}
