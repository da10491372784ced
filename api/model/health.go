package model

import "time"

// Report is one observation pushed by the probing agent (or produced by a
// direct verification probe).
type Report struct {
	Service    string            `json:"service"`
	Healthy    bool              `json:"healthy"`
	Detail     map[string]string `json:"detail,omitempty"`
	ObservedAt time.Time         `json:"observedAt"`
}

// HealthRecord is the current belief about one service. Records start
// unknown/unhealthy; Known flips on the first applied report.
type HealthRecord struct {
	Service             string            `json:"service"`
	Known               bool              `json:"known"`
	Healthy             bool              `json:"healthy"`
	LastCheckedAt       time.Time         `json:"lastCheckedAt"`
	Detail              map[string]string `json:"detail,omitempty"`
	ConsecutiveFailures int               `json:"consecutiveFailures"`
	LastTransitionAt    time.Time         `json:"lastTransitionAt"`
	StaleReports        int               `json:"staleReports"`
}

// Clone returns a copy with its own detail map.
func (r HealthRecord) Clone() HealthRecord {
	out := r
	out.Detail = CloneDetail(r.Detail)
	return out
}

// CloneDetail copies a detail map; nil stays nil.
func CloneDetail(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
