package model

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

type ProbeKind string

const (
	ProbeHTTP         ProbeKind = "http"
	ProbeVault        ProbeKind = "vault"
	ProbeESCluster    ProbeKind = "es-cluster"
	ProbeConsulLeader ProbeKind = "consul-leader"
)

type RemediationKind string

const (
	RemediationRestart      RemediationKind = "restart"
	RemediationScaleRestart RemediationKind = "scale-then-restart"
)

// ServiceConfig describes one monitored service. Loaded once at startup
// and never mutated afterwards.
type ServiceConfig struct {
	Name             string          `yaml:"name" json:"name"`
	Namespace        string          `yaml:"namespace,omitempty" json:"namespace"`
	Job              string          `yaml:"job,omitempty" json:"job"`
	Host             string          `yaml:"host,omitempty" json:"host"`
	Port             int             `yaml:"port" json:"port"`
	HealthPath       string          `yaml:"health,omitempty" json:"health"`
	Probe            ProbeKind       `yaml:"probe,omitempty" json:"probe"`
	Interval         Duration        `yaml:"interval,omitempty" json:"interval"`
	FailureThreshold int             `yaml:"failureThreshold,omitempty" json:"failureThreshold"`
	Replicas         int             `yaml:"replicas,omitempty" json:"replicas"`
	Stabilize        Duration        `yaml:"stabilize,omitempty" json:"stabilize"`
	Remediation      RemediationKind `yaml:"remediation,omitempty" json:"remediation"`
	Target           string          `yaml:"target,omitempty" json:"target"`
}

// HealthURL is the locally reachable health endpoint for the service.
func (s *ServiceConfig) HealthURL() string {
	return fmt.Sprintf("http://%s:%d%s", s.Host, s.Port, s.HealthPath)
}

// Addr is the local listen address tunnels should expose.
func (s *ServiceConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Registry is the fixed set of monitored services, keyed by name.
type Registry struct {
	Cluster  string
	services []*ServiceConfig
	byName   map[string]*ServiceConfig
}

type registryFile struct {
	Cluster  string           `yaml:"cluster"`
	Services []*ServiceConfig `yaml:"services"`
}

// LoadRegistry reads a services file, applies defaults and validates it.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseRegistry(data)
}

// ParseRegistry builds a Registry from raw YAML.
func ParseRegistry(data []byte) (*Registry, error) {
	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse services: %w", err)
	}
	if len(file.Services) == 0 {
		return nil, fmt.Errorf("no services configured")
	}

	reg := &Registry{
		Cluster: file.Cluster,
		byName:  make(map[string]*ServiceConfig, len(file.Services)),
	}
	if reg.Cluster == "" {
		reg.Cluster = "default"
	}

	for _, svc := range file.Services {
		applyServiceDefaults(svc)
		if err := validateService(svc); err != nil {
			return nil, err
		}
		if _, dup := reg.byName[svc.Name]; dup {
			return nil, fmt.Errorf("service %q: duplicate name", svc.Name)
		}
		reg.byName[svc.Name] = svc
		reg.services = append(reg.services, svc)
	}

	sort.Slice(reg.services, func(i, j int) bool {
		return reg.services[i].Name < reg.services[j].Name
	})
	return reg, nil
}

// Get looks up a service by name.
func (r *Registry) Get(name string) (*ServiceConfig, bool) {
	svc, ok := r.byName[name]
	return svc, ok
}

// All returns the configured services sorted by name.
func (r *Registry) All() []*ServiceConfig {
	return r.services
}

// Names returns the configured service names sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.services))
	for _, svc := range r.services {
		names = append(names, svc.Name)
	}
	return names
}

func (r *Registry) Len() int { return len(r.services) }

var serviceNameRe = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

func applyServiceDefaults(svc *ServiceConfig) {
	if svc.Namespace == "" {
		svc.Namespace = svc.Name
	}
	if svc.Job == "" {
		svc.Job = svc.Name
	}
	if svc.Host == "" {
		svc.Host = "127.0.0.1"
	}
	if svc.HealthPath == "" {
		svc.HealthPath = "/"
	}
	if svc.Probe == "" {
		svc.Probe = ProbeHTTP
	}
	if svc.Interval == 0 {
		svc.Interval = Seconds(30)
	}
	if svc.FailureThreshold == 0 {
		svc.FailureThreshold = 1
	}
	if svc.Replicas == 0 {
		svc.Replicas = 1
	}
	if svc.Stabilize == 0 {
		svc.Stabilize = Seconds(30)
	}
	if svc.Remediation == "" {
		svc.Remediation = RemediationScaleRestart
	}
	if svc.Target == "" {
		svc.Target = fmt.Sprintf("%s.service.consul:%d", svc.Job, svc.Port)
	}
}

func validateService(svc *ServiceConfig) error {
	if svc.Name == "" {
		return fmt.Errorf("service name is required")
	}
	if !serviceNameRe.MatchString(svc.Name) {
		return fmt.Errorf("service %q: name must match ^[a-z0-9][a-z0-9-]*$", svc.Name)
	}
	if svc.Port < 1 || svc.Port > 65535 {
		return fmt.Errorf("service %q: port %d out of range", svc.Name, svc.Port)
	}
	if !strings.HasPrefix(svc.HealthPath, "/") {
		return fmt.Errorf("service %q: health path must start with /", svc.Name)
	}
	switch svc.Probe {
	case ProbeHTTP, ProbeVault, ProbeESCluster, ProbeConsulLeader:
	default:
		return fmt.Errorf("service %q: unknown probe kind %q", svc.Name, svc.Probe)
	}
	switch svc.Remediation {
	case RemediationRestart, RemediationScaleRestart:
	default:
		return fmt.Errorf("service %q: unknown remediation kind %q", svc.Name, svc.Remediation)
	}
	if svc.Replicas < 1 {
		return fmt.Errorf("service %q: replicas must be >= 1", svc.Name)
	}
	if svc.FailureThreshold < 1 {
		return fmt.Errorf("service %q: failureThreshold must be >= 1", svc.Name)
	}
	return nil
}
