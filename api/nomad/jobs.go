package nomad

import (
	"context"
	"fmt"
	"time"

	nomadapi "github.com/hashicorp/nomad/api"

	"warden/api/model"
)

// ReplicaCount sums the desired task group counts of the service's
// backing job.
func (c *Client) ReplicaCount(ctx context.Context, svc *model.ServiceConfig) (int, error) {
	job, err := c.jobInfo(ctx, svc)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, tg := range job.TaskGroups {
		if tg.Count != nil {
			count += *tg.Count
		}
	}
	return count, nil
}

// ScaleTo sets every task group of the backing job to n.
func (c *Client) ScaleTo(ctx context.Context, svc *model.ServiceConfig, n int) error {
	job, err := c.jobInfo(ctx, svc)
	if err != nil {
		return err
	}
	w := (&nomadapi.WriteOptions{Namespace: svc.Namespace}).WithContext(ctx)
	reason := fmt.Sprintf("warden remediation: scale to %d", n)
	for _, tg := range job.TaskGroups {
		if tg.Name == nil {
			continue
		}
		if _, _, err := c.api.Jobs().Scale(svc.Job, *tg.Name, &n, reason, false, nil, w); err != nil {
			return fmt.Errorf("scale %s/%s: %w", svc.Job, *tg.Name, err)
		}
	}
	return nil
}

// Restart re-registers the backing job with a fresh restart stamp so the
// scheduler replaces its allocations.
func (c *Client) Restart(ctx context.Context, svc *model.ServiceConfig) error {
	job, err := c.jobInfo(ctx, svc)
	if err != nil {
		return err
	}
	if job.Meta == nil {
		job.Meta = make(map[string]string)
	}
	job.Meta["warden.restarted-at"] = time.Now().Format(time.RFC3339)

	w := (&nomadapi.WriteOptions{Namespace: svc.Namespace}).WithContext(ctx)
	if _, _, err := c.api.Jobs().Register(job, w); err != nil {
		return fmt.Errorf("restart %s: %w", svc.Job, err)
	}
	return nil
}

// WaitReady polls until every non-terminal allocation of the backing job
// is running and healthy, or the timeout passes.
func (c *Client) WaitReady(ctx context.Context, svc *model.ServiceConfig, timeout time.Duration) error {
	deadline := time.After(timeout)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return fmt.Errorf("waiting for %s to become ready: %w", svc.Job, context.DeadlineExceeded)
		case <-ticker.C:
			q := (&nomadapi.QueryOptions{Namespace: svc.Namespace}).WithContext(ctx)
			allocs, _, err := c.api.Jobs().Allocations(svc.Job, false, q)
			if err != nil || len(allocs) == 0 {
				continue
			}

			healthy := 0
			pending := 0
			for _, alloc := range allocs {
				// Skip terminal allocations from previous versions.
				if alloc.ClientStatus == "complete" || alloc.ClientStatus == "failed" || alloc.ClientStatus == "lost" {
					continue
				}
				if alloc.ClientStatus != "running" {
					pending++
					continue
				}
				if alloc.DeploymentStatus == nil || alloc.DeploymentStatus.Healthy == nil || !*alloc.DeploymentStatus.Healthy {
					pending++
					continue
				}
				healthy++
			}
			if healthy > 0 && pending == 0 {
				return nil
			}
		}
	}
}

func (c *Client) jobInfo(ctx context.Context, svc *model.ServiceConfig) (*nomadapi.Job, error) {
	q := (&nomadapi.QueryOptions{Namespace: svc.Namespace}).WithContext(ctx)
	job, _, err := c.api.Jobs().Info(svc.Job, q)
	if err != nil {
		return nil, fmt.Errorf("job info %s: %w", svc.Job, err)
	}
	return job, nil
}
