package status

import (
	"fmt"
	"sync"

	"warden/api/model"
)

// ApplyResult describes what applying one report changed.
type ApplyResult struct {
	Transition   bool // healthy flipped
	Healthy      bool // value after apply
	Failures     int  // consecutive failures after apply
	ThresholdHit bool // failure streak reached the service threshold exactly
	Stale        bool // report was older than the stored one and dropped
}

// Store owns the authoritative health table. One record per configured
// service, created unknown/unhealthy at startup; all mutation goes through
// Apply. Reads return copies, never live references.
type Store struct {
	mu      sync.RWMutex
	reg     *model.Registry
	records map[string]*model.HealthRecord
}

func NewStore(reg *model.Registry) *Store {
	s := &Store{
		reg:     reg,
		records: make(map[string]*model.HealthRecord, reg.Len()),
	}
	for _, svc := range reg.All() {
		s.records[svc.Name] = &model.HealthRecord{Service: svc.Name}
	}
	return s
}

// Registry returns the fixed service set backing this store.
func (s *Store) Registry() *model.Registry { return s.reg }

// Apply updates the record for one service. Reports whose observedAt is
// not newer than the stored lastCheckedAt are dropped and counted, not
// applied (out-of-order reports must never overwrite newer state).
func (s *Store) Apply(r model.Report) (ApplyResult, error) {
	svc, ok := s.reg.Get(r.Service)
	if !ok {
		return ApplyResult{}, fmt.Errorf("%w: %q", model.ErrUnknownService, r.Service)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.records[r.Service]
	if rec.Known && !r.ObservedAt.After(rec.LastCheckedAt) {
		rec.StaleReports++
		return ApplyResult{Stale: true, Healthy: rec.Healthy, Failures: rec.ConsecutiveFailures}, nil
	}

	// Records start unhealthy, so a first healthy report is a transition.
	transition := rec.Healthy != r.Healthy

	if r.Healthy {
		rec.ConsecutiveFailures = 0
	} else {
		rec.ConsecutiveFailures++
	}

	rec.Known = true
	rec.Healthy = r.Healthy
	rec.LastCheckedAt = r.ObservedAt
	rec.Detail = model.CloneDetail(r.Detail)
	if transition {
		rec.LastTransitionAt = r.ObservedAt
	}

	return ApplyResult{
		Transition:   transition,
		Healthy:      rec.Healthy,
		Failures:     rec.ConsecutiveFailures,
		ThresholdHit: !rec.Healthy && rec.ConsecutiveFailures == svc.FailureThreshold,
	}, nil
}

// Get returns a copy of one record.
func (s *Store) Get(name string) (model.HealthRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[name]
	if !ok {
		return model.HealthRecord{}, false
	}
	return rec.Clone(), true
}

// Snapshot returns a point-in-time copy of the whole table, sorted by
// service name.
func (s *Store) Snapshot() []model.HealthRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.HealthRecord, 0, len(s.records))
	for _, svc := range s.reg.All() {
		out = append(out, s.records[svc.Name].Clone())
	}
	return out
}

// HealthyCount returns how many services are currently believed healthy.
func (s *Store) HealthyCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, rec := range s.records {
		if rec.Known && rec.Healthy {
			n++
		}
	}
	return n
}
