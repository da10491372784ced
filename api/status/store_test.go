package status

import (
	"errors"
	"testing"
	"time"

	"warden/api/model"
)

func testRegistry(t *testing.T) *model.Registry {
	t.Helper()
	reg, err := model.ParseRegistry([]byte(`services:
  - name: alpha
    port: 8200
  - name: beta
    port: 9200
    failureThreshold: 3
`))
	if err != nil {
		t.Fatalf("ParseRegistry: %v", err)
	}
	return reg
}

func at(sec int) time.Time {
	return time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC).Add(time.Duration(sec) * time.Second)
}

func TestApplySequence(t *testing.T) {
	s := NewStore(testRegistry(t))

	// alpha reports unhealthy twice, then healthy.
	res, err := s.Apply(model.Report{Service: "alpha", Healthy: false, ObservedAt: at(0)})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if res.Transition {
		t.Error("first unhealthy report should not be a transition (records start unhealthy)")
	}
	if !res.ThresholdHit {
		t.Error("threshold 1 should hit on the first unhealthy report")
	}

	res, _ = s.Apply(model.Report{Service: "alpha", Healthy: false, ObservedAt: at(5)})
	if res.ThresholdHit {
		t.Error("threshold should only hit once per unhealthy episode")
	}
	if res.Failures != 2 {
		t.Errorf("Failures = %d, want 2", res.Failures)
	}

	res, _ = s.Apply(model.Report{Service: "alpha", Healthy: true, ObservedAt: at(10)})
	if !res.Transition {
		t.Error("unhealthy -> healthy should be a transition")
	}

	rec, ok := s.Get("alpha")
	if !ok {
		t.Fatal("Get(alpha) not found")
	}
	if !rec.Healthy {
		t.Error("final Healthy = false, want true")
	}
	if rec.ConsecutiveFailures != 0 {
		t.Errorf("ConsecutiveFailures = %d, want 0", rec.ConsecutiveFailures)
	}
	if !rec.LastCheckedAt.Equal(at(10)) {
		t.Errorf("LastCheckedAt = %v, want %v", rec.LastCheckedAt, at(10))
	}
	if !rec.LastTransitionAt.Equal(at(10)) {
		t.Errorf("LastTransitionAt = %v, want %v", rec.LastTransitionAt, at(10))
	}
}

func TestApplyUnknownService(t *testing.T) {
	s := NewStore(testRegistry(t))

	_, err := s.Apply(model.Report{Service: "gamma", Healthy: true, ObservedAt: at(0)})
	if !errors.Is(err, model.ErrUnknownService) {
		t.Errorf("err = %v, want ErrUnknownService", err)
	}
}

func TestApplyStaleReport(t *testing.T) {
	s := NewStore(testRegistry(t))

	s.Apply(model.Report{Service: "alpha", Healthy: true, ObservedAt: at(10), Detail: map[string]string{"v": "new"}})

	res, err := s.Apply(model.Report{Service: "alpha", Healthy: false, ObservedAt: at(5), Detail: map[string]string{"v": "old"}})
	if err != nil {
		t.Fatalf("Apply stale: %v", err)
	}
	if !res.Stale {
		t.Error("expected Stale result")
	}

	rec, _ := s.Get("alpha")
	if !rec.Healthy {
		t.Error("stale report must not change Healthy")
	}
	if rec.Detail["v"] != "new" {
		t.Errorf("Detail = %v, stale report must not replace it", rec.Detail)
	}
	if rec.StaleReports != 1 {
		t.Errorf("StaleReports = %d, want 1", rec.StaleReports)
	}

	// Same timestamp is also stale: observedAt must strictly advance.
	res, _ = s.Apply(model.Report{Service: "alpha", Healthy: false, ObservedAt: at(10)})
	if !res.Stale {
		t.Error("equal observedAt should be stale")
	}
}

// The stored healthy value always matches the most-recent-by-observedAt
// applied report, no matter the arrival order.
func TestLatestObservationWins(t *testing.T) {
	type report struct {
		sec     int
		healthy bool
	}
	cases := []struct {
		name    string
		reports []report
		want    bool
	}{
		{"in order", []report{{0, false}, {5, false}, {10, true}}, true},
		{"newest first", []report{{10, true}, {5, false}, {0, false}}, true},
		{"interleaved", []report{{5, false}, {10, false}, {0, true}}, false},
		{"newest unhealthy", []report{{10, false}, {20, false}, {15, true}}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := NewStore(testRegistry(t))
			for _, r := range tc.reports {
				if _, err := s.Apply(model.Report{Service: "alpha", Healthy: r.healthy, ObservedAt: at(r.sec)}); err != nil {
					t.Fatalf("Apply: %v", err)
				}
			}
			rec, _ := s.Get("alpha")
			if rec.Healthy != tc.want {
				t.Errorf("Healthy = %v, want %v", rec.Healthy, tc.want)
			}
		})
	}
}

func TestFailureThreshold(t *testing.T) {
	s := NewStore(testRegistry(t))

	// beta has failureThreshold 3.
	for i, wantHit := range []bool{false, false, true, false} {
		res, _ := s.Apply(model.Report{Service: "beta", Healthy: false, ObservedAt: at(i * 10)})
		if res.ThresholdHit != wantHit {
			t.Errorf("report %d: ThresholdHit = %v, want %v", i+1, res.ThresholdHit, wantHit)
		}
	}

	// A healthy report re-arms the threshold.
	s.Apply(model.Report{Service: "beta", Healthy: true, ObservedAt: at(100)})
	for i, wantHit := range []bool{false, false, true} {
		res, _ := s.Apply(model.Report{Service: "beta", Healthy: false, ObservedAt: at(110 + i*10)})
		if res.ThresholdHit != wantHit {
			t.Errorf("second episode report %d: ThresholdHit = %v, want %v", i+1, res.ThresholdHit, wantHit)
		}
	}
}

func TestFirstHealthyReportIsTransition(t *testing.T) {
	s := NewStore(testRegistry(t))

	res, _ := s.Apply(model.Report{Service: "alpha", Healthy: true, ObservedAt: at(0)})
	if !res.Transition {
		t.Error("unknown -> healthy should count as a transition")
	}

	rec, _ := s.Get("alpha")
	if !rec.Known {
		t.Error("record should be Known after the first report")
	}
}

func TestSnapshotIsolation(t *testing.T) {
	s := NewStore(testRegistry(t))
	s.Apply(model.Report{Service: "alpha", Healthy: true, ObservedAt: at(0), Detail: map[string]string{"leader": "10.0.0.1:8300"}})

	snap := s.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("Snapshot len = %d, want 2", len(snap))
	}
	// Sorted by service name.
	if snap[0].Service != "alpha" || snap[1].Service != "beta" {
		t.Errorf("Snapshot order = %s, %s", snap[0].Service, snap[1].Service)
	}

	// Mutating the snapshot must not touch the store.
	snap[0].Detail["leader"] = "tampered"
	rec, _ := s.Get("alpha")
	if rec.Detail["leader"] != "10.0.0.1:8300" {
		t.Error("snapshot shares detail map with the store")
	}
}

func TestHealthyCount(t *testing.T) {
	s := NewStore(testRegistry(t))
	if s.HealthyCount() != 0 {
		t.Errorf("HealthyCount = %d before any report, want 0", s.HealthyCount())
	}

	s.Apply(model.Report{Service: "alpha", Healthy: true, ObservedAt: at(0)})
	s.Apply(model.Report{Service: "beta", Healthy: false, ObservedAt: at(0)})
	if s.HealthyCount() != 1 {
		t.Errorf("HealthyCount = %d, want 1", s.HealthyCount())
	}
}
