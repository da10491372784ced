package remedy

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"warden/api/audit"
	"warden/api/hub"
	"warden/api/model"
)

const (
	inspectTimeout   = 15 * time.Second
	scaleTimeout     = 30 * time.Second
	restartTimeout   = 60 * time.Second
	readyTimeout     = 60 * time.Second
	reconnectTimeout = 30 * time.Second
	verifyTimeout    = 10 * time.Second
)

type attemptState struct {
	svc      *model.ServiceConfig
	replicas int
}

type step struct {
	name    string
	timeout time.Duration
	fn      func(ctx context.Context, st *attemptState) (string, error)
}

// protocol builds the step list for a service. The plain restart kind
// skips the replica inspection and rescale.
func (e *Engine) protocol(svc *model.ServiceConfig) []step {
	var steps []step
	if svc.Remediation == model.RemediationScaleRestart {
		steps = append(steps,
			step{name: "inspect", timeout: inspectTimeout, fn: e.inspect},
			step{name: "scale-up", timeout: scaleTimeout, fn: e.scaleUp},
		)
	}

	// The stabilize budget covers the fixed wait plus the readiness poll.
	stabilizeTimeout := svc.Stabilize.Std() + readyTimeout + 5*time.Second

	return append(steps,
		step{name: "restart", timeout: restartTimeout, fn: e.restart},
		step{name: "stabilize", timeout: stabilizeTimeout, fn: e.stabilize},
		step{name: "reconnect", timeout: reconnectTimeout, fn: e.reconnect},
		step{name: "verify", timeout: verifyTimeout, fn: e.verify},
	)
}

// execute runs the protocol step by step. The first failing step aborts
// the attempt; a step that ran into a deadline makes the outcome a
// timeout. Panics are contained to the attempt and recorded as failures.
func (e *Engine) execute(ctx context.Context, svc *model.ServiceConfig, rec *audit.Recorder) (outcome audit.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("remedy: panic during %s remediation: %v", svc.Name, r)
			rec.StepFailed("abort", fmt.Errorf("panic: %v", r))
			outcome = audit.OutcomeFailure
		}
	}()

	st := &attemptState{svc: svc, replicas: -1}

	for _, s := range e.protocol(svc) {
		e.broadcastStep(svc.Name, rec.AttemptID(), s.name, "running")

		stepCtx, cancel := context.WithTimeout(ctx, s.timeout)
		result, err := s.fn(stepCtx, st)
		cancel()

		if err != nil {
			rec.StepFailed(s.name, err)
			e.broadcastStep(svc.Name, rec.AttemptID(), s.name, "failed")
			log.Printf("remedy: %s remediation failed at %s: %v", svc.Name, s.name, err)
			if errors.Is(err, context.DeadlineExceeded) {
				return audit.OutcomeTimeout
			}
			return audit.OutcomeFailure
		}

		rec.Step(s.name, result)
		e.broadcastStep(svc.Name, rec.AttemptID(), s.name, "complete")
	}
	return audit.OutcomeSuccess
}

func (e *Engine) broadcastStep(service, attemptID, name, stepStatus string) {
	e.broadcast(hub.Event{Type: "remediation.step", Service: service, Payload: map[string]string{
		"attemptId": attemptID,
		"step":      name,
		"status":    stepStatus,
	}})
}

func (e *Engine) inspect(ctx context.Context, st *attemptState) (string, error) {
	count, err := e.Orch.ReplicaCount(ctx, st.svc)
	if err != nil {
		return "", err
	}
	st.replicas = count
	return fmt.Sprintf("%d replicas desired", count), nil
}

// scaleUp only acts on a job that has been scaled to zero; it must run
// before any restart so the restart has instances to replace.
func (e *Engine) scaleUp(ctx context.Context, st *attemptState) (string, error) {
	if st.replicas != 0 {
		return fmt.Sprintf("replicas already at %d, no scaling needed", st.replicas), nil
	}
	if err := e.Orch.ScaleTo(ctx, st.svc, st.svc.Replicas); err != nil {
		return "", err
	}
	return fmt.Sprintf("scaled from 0 to %d", st.svc.Replicas), nil
}

func (e *Engine) restart(ctx context.Context, st *attemptState) (string, error) {
	if err := e.Orch.Restart(ctx, st.svc); err != nil {
		return "", err
	}
	return "workload restarted", nil
}

// stabilize gives the service its configured settle time, then polls the
// orchestrator until the workload reports ready.
func (e *Engine) stabilize(ctx context.Context, st *attemptState) (string, error) {
	wait := st.svc.Stabilize.Std()
	if wait > 0 {
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err := e.Orch.WaitReady(ctx, st.svc, readyTimeout); err != nil {
		return "", err
	}
	return fmt.Sprintf("ready after %s settle", st.svc.Stabilize), nil
}

func (e *Engine) reconnect(ctx context.Context, st *attemptState) (string, error) {
	return e.Tunnel.EnsureReachable(ctx, st.svc)
}

// verify closes the loop with one direct probe. On success the healthy
// observation is applied to the status store immediately, before the
// attempt completes, so recovery is visible without waiting for the
// agent's next report.
func (e *Engine) verify(ctx context.Context, st *attemptState) (string, error) {
	res := e.Prober.Check(ctx, st.svc)
	if !res.Healthy {
		return "", fmt.Errorf("probe still unhealthy: %s", probeSummary(res.Detail))
	}

	if _, err := e.Store.Apply(model.Report{
		Service:    st.svc.Name,
		Healthy:    true,
		Detail:     res.Detail,
		ObservedAt: time.Now(),
	}); err != nil {
		log.Printf("remedy: apply verified report for %s: %v", st.svc.Name, err)
	}
	return "probe healthy", nil
}

func probeSummary(detail map[string]string) string {
	for _, key := range []string{"error", "status", "statusCode"} {
		if v := detail[key]; v != "" {
			return key + "=" + v
		}
	}
	return "no detail"
}
