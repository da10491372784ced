// Package probe implements the direct health checks run by the probing
// agent and by the remediation engine's verification step.
package probe

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"warden/api/model"
)

// Result is the outcome of a single probe.
type Result struct {
	Healthy bool
	Detail  map[string]string
}

type Prober struct {
	Client *http.Client
}

func New() *Prober {
	return &Prober{Client: &http.Client{Timeout: 5 * time.Second}}
}

// Check runs the probe configured for the service. Probe failures are
// results, not errors: an unreachable endpoint yields an unhealthy result
// with the error text in the detail map.
func (p *Prober) Check(ctx context.Context, svc *model.ServiceConfig) Result {
	start := time.Now()
	resp, err := p.get(ctx, svc.HealthURL())
	elapsed := time.Since(start)

	if err != nil {
		return Result{Detail: map[string]string{
			"error":      err.Error(),
			"responseMs": strconv.Itoa(int(elapsed.Milliseconds())),
		}}
	}
	defer resp.Body.Close()

	var res Result
	switch svc.Probe {
	case model.ProbeVault:
		res = vaultResult(resp)
	case model.ProbeESCluster:
		res = esClusterResult(resp)
	case model.ProbeConsulLeader:
		res = consulLeaderResult(resp)
	default:
		res = httpResult(resp)
	}
	res.Detail["responseMs"] = strconv.Itoa(int(elapsed.Milliseconds()))
	return res
}

// Report runs the probe and wraps the outcome as a report ready for intake.
func (p *Prober) Report(ctx context.Context, svc *model.ServiceConfig) model.Report {
	res := p.Check(ctx, svc)
	return model.Report{
		Service:    svc.Name,
		Healthy:    res.Healthy,
		Detail:     res.Detail,
		ObservedAt: time.Now(),
	}
}

func (p *Prober) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, err
	}
	return p.Client.Do(req)
}

func httpResult(resp *http.Response) Result {
	return Result{
		Healthy: resp.StatusCode >= 200 && resp.StatusCode < 400,
		Detail:  map[string]string{"statusCode": strconv.Itoa(resp.StatusCode)},
	}
}

// Vault's health endpoint encodes state in the status code: 200 means
// initialized, unsealed and active. Everything else is unhealthy.
func vaultResult(resp *http.Response) Result {
	detail := map[string]string{"statusCode": strconv.Itoa(resp.StatusCode)}

	var body struct {
		Initialized bool   `json:"initialized"`
		Sealed      bool   `json:"sealed"`
		Version     string `json:"version"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil {
		detail["initialized"] = strconv.FormatBool(body.Initialized)
		detail["sealed"] = strconv.FormatBool(body.Sealed)
		if body.Version != "" {
			detail["version"] = body.Version
		}
	}
	return Result{Healthy: resp.StatusCode == http.StatusOK, Detail: detail}
}

// Yellow means unassigned replicas, red means unassigned primaries; only a
// green cluster counts as healthy.
func esClusterResult(resp *http.Response) Result {
	detail := map[string]string{"statusCode": strconv.Itoa(resp.StatusCode)}
	if resp.StatusCode != http.StatusOK {
		return Result{Detail: detail}
	}

	var body struct {
		ClusterName string `json:"cluster_name"`
		Status      string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		detail["error"] = "unreadable cluster health response"
		return Result{Detail: detail}
	}
	detail["status"] = body.Status
	detail["cluster"] = body.ClusterName
	return Result{Healthy: body.Status == "green", Detail: detail}
}

// A consul agent with no elected leader answers 200 with an empty string.
func consulLeaderResult(resp *http.Response) Result {
	detail := map[string]string{"statusCode": strconv.Itoa(resp.StatusCode)}
	if resp.StatusCode != http.StatusOK {
		return Result{Detail: detail}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		detail["error"] = err.Error()
		return Result{Detail: detail}
	}
	leader := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if leader == "" {
		return Result{Detail: detail}
	}
	detail["leader"] = leader
	return Result{Healthy: true, Detail: detail}
}
