package model

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadRegistry(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "services.yaml")

	yaml := `cluster: mgmt-plane
services:
  - name: vault
    namespace: vault
    job: vault
    port: 8200
    health: /v1/sys/health
    probe: vault
    replicas: 1
  - name: consul
    job: consul-server
    port: 8500
    health: /v1/status/leader
    probe: consul-leader
    replicas: 3
  - name: elasticsearch
    job: elasticsearch-master
    port: 9200
    health: /_cluster/health
    probe: es-cluster
    replicas: 3
    stabilize: 90s
    failureThreshold: 2
`
	if err := os.WriteFile(file, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	reg, err := LoadRegistry(file)
	if err != nil {
		t.Fatalf("LoadRegistry: %v", err)
	}

	if reg.Cluster != "mgmt-plane" {
		t.Errorf("Cluster = %q, want %q", reg.Cluster, "mgmt-plane")
	}
	if reg.Len() != 3 {
		t.Fatalf("Len = %d, want 3", reg.Len())
	}

	// Sorted by name
	names := reg.Names()
	want := []string{"consul", "elasticsearch", "vault"}
	for i, n := range want {
		if names[i] != n {
			t.Errorf("Names[%d] = %q, want %q", i, names[i], n)
		}
	}

	vault, ok := reg.Get("vault")
	if !ok {
		t.Fatal("Get(vault) not found")
	}
	if vault.Namespace != "vault" {
		t.Errorf("Namespace = %q", vault.Namespace)
	}
	if vault.HealthPath != "/v1/sys/health" {
		t.Errorf("HealthPath = %q", vault.HealthPath)
	}
	if vault.Probe != ProbeVault {
		t.Errorf("Probe = %q", vault.Probe)
	}
	if vault.HealthURL() != "http://127.0.0.1:8200/v1/sys/health" {
		t.Errorf("HealthURL = %q", vault.HealthURL())
	}

	es, _ := reg.Get("elasticsearch")
	if es.Stabilize.Std() != 90*time.Second {
		t.Errorf("Stabilize = %v, want 90s", es.Stabilize.Std())
	}
	if es.FailureThreshold != 2 {
		t.Errorf("FailureThreshold = %d, want 2", es.FailureThreshold)
	}
}

func TestLoadRegistry_Defaults(t *testing.T) {
	reg, err := ParseRegistry([]byte(`services:
  - name: minimal
    port: 9000
`))
	if err != nil {
		t.Fatalf("ParseRegistry: %v", err)
	}

	if reg.Cluster != "default" {
		t.Errorf("Cluster = %q, want default", reg.Cluster)
	}

	svc, _ := reg.Get("minimal")
	if svc.Namespace != "minimal" {
		t.Errorf("Namespace = %q, want minimal", svc.Namespace)
	}
	if svc.Job != "minimal" {
		t.Errorf("Job = %q, want minimal", svc.Job)
	}
	if svc.Host != "127.0.0.1" {
		t.Errorf("Host = %q", svc.Host)
	}
	if svc.HealthPath != "/" {
		t.Errorf("HealthPath = %q, want /", svc.HealthPath)
	}
	if svc.Probe != ProbeHTTP {
		t.Errorf("Probe = %q, want http", svc.Probe)
	}
	if svc.Interval.Std() != 30*time.Second {
		t.Errorf("Interval = %v, want 30s", svc.Interval.Std())
	}
	if svc.FailureThreshold != 1 {
		t.Errorf("FailureThreshold = %d, want 1", svc.FailureThreshold)
	}
	if svc.Replicas != 1 {
		t.Errorf("Replicas = %d, want 1", svc.Replicas)
	}
	if svc.Stabilize.Std() != 30*time.Second {
		t.Errorf("Stabilize = %v, want 30s", svc.Stabilize.Std())
	}
	if svc.Remediation != RemediationScaleRestart {
		t.Errorf("Remediation = %q", svc.Remediation)
	}
	if svc.Target != "minimal.service.consul:9000" {
		t.Errorf("Target = %q", svc.Target)
	}
}

func TestParseRegistry_Invalid(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{"empty", `services: []`, "no services"},
		{"missing name", "services:\n  - port: 80\n", "name is required"},
		{"bad name", "services:\n  - name: Bad_Name\n    port: 80\n", "must match"},
		{"bad port", "services:\n  - name: a\n    port: 99999\n", "out of range"},
		{"bad probe", "services:\n  - name: a\n    port: 80\n    probe: snmp\n", "unknown probe kind"},
		{"bad remediation", "services:\n  - name: a\n    port: 80\n    remediation: reboot\n", "unknown remediation kind"},
		{"bad health path", "services:\n  - name: a\n    port: 80\n    health: status\n", "must start with /"},
		{"duplicate", "services:\n  - name: a\n    port: 80\n  - name: a\n    port: 81\n", "duplicate"},
		{"bad duration", "services:\n  - name: a\n    port: 80\n    stabilize: ninety\n", "invalid duration"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseRegistry([]byte(tc.yaml))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error = %q, want substring %q", err, tc.want)
			}
		})
	}
}

func TestDurationJSON(t *testing.T) {
	d := Seconds(90)
	b, err := d.MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `"1m30s"` {
		t.Errorf("MarshalJSON = %s", b)
	}

	var parsed Duration
	if err := parsed.UnmarshalJSON([]byte(`"2m"`)); err != nil {
		t.Fatal(err)
	}
	if parsed.Std() != 2*time.Minute {
		t.Errorf("UnmarshalJSON = %v, want 2m", parsed.Std())
	}

	if err := parsed.UnmarshalJSON([]byte(`"soon"`)); err == nil {
		t.Error("expected error for bad duration")
	}
}

func TestCloneDetail(t *testing.T) {
	rec := HealthRecord{
		Service: "vault",
		Healthy: true,
		Detail:  map[string]string{"sealed": "false"},
	}

	clone := rec.Clone()
	clone.Detail["sealed"] = "true"

	if rec.Detail["sealed"] != "false" {
		t.Error("Clone shares the detail map")
	}
	if CloneDetail(nil) != nil {
		t.Error("CloneDetail(nil) should stay nil")
	}
}
