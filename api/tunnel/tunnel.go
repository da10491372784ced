// Package tunnel maintains the local port-forward config consumed by the
// proxy that keeps remediated services reachable from the control plane.
package tunnel

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"os/exec"
	"strings"

	"gopkg.in/yaml.v3"

	"warden/api/model"
)

type Config struct {
	Forwards []Forward `yaml:"forwards"`
}

// Forward maps a local listen port to an upstream service address.
type Forward struct {
	Name   string `yaml:"name"`
	Listen int    `yaml:"listen"`
	Target string `yaml:"target"`
}

// Manager rewrites the forwards file and reloads the proxy. A zero Path
// disables tunnel management; an empty reload command means rewrite-only.
type Manager struct {
	Path   string
	Reload []string
}

func New(path, reloadCommand string) *Manager {
	return &Manager{Path: path, Reload: strings.Fields(reloadCommand)}
}

// EnsureReachable makes sure the service's forward points at its current
// target, then reloads the proxy. The reload runs even when the file is
// already current: after a restart the old forward may be attached to
// dead instances.
func (m *Manager) EnsureReachable(ctx context.Context, svc *model.ServiceConfig) (string, error) {
	if m.Path == "" {
		return "tunnel management disabled", nil
	}

	cfg, err := m.readConfig()
	if err != nil {
		return "", err
	}

	target := normalizeTarget(svc.Target)
	if ensureForward(cfg, svc.Name, svc.Port, target) {
		if err := m.writeConfig(cfg); err != nil {
			return "", err
		}
	}
	if err := m.reload(ctx); err != nil {
		return "", err
	}
	return fmt.Sprintf("forward %s -> %s", svc.Name, target), nil
}

// normalizeTarget strips the scheme and path from a URL, returning just
// host:port. Bare addresses are returned as-is, so forward targets stay
// plain addresses rather than full URLs.
func normalizeTarget(raw string) string {
	if !strings.Contains(raw, "://") {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return u.Host
}

// ensureForward adds or updates the forward for name. Returns true if the
// config was changed.
func ensureForward(cfg *Config, name string, listen int, target string) bool {
	for i, fwd := range cfg.Forwards {
		if fwd.Name == name {
			if fwd.Listen == listen && fwd.Target == target {
				return false
			}
			cfg.Forwards[i].Listen = listen
			cfg.Forwards[i].Target = target
			return true
		}
	}
	cfg.Forwards = append(cfg.Forwards, Forward{Name: name, Listen: listen, Target: target})
	return true
}

// A missing forwards file is an empty config: the manager owns the file
// and creates it on first write.
func (m *Manager) readConfig() (*Config, error) {
	data, err := os.ReadFile(m.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return &Config{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read forwards file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse forwards file: %w", err)
	}
	return &cfg, nil
}

func (m *Manager) writeConfig(cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal forwards: %w", err)
	}
	if err := os.WriteFile(m.Path, data, 0644); err != nil {
		return fmt.Errorf("write forwards file: %w", err)
	}
	return nil
}

func (m *Manager) reload(ctx context.Context) error {
	if len(m.Reload) == 0 {
		return nil
	}
	cmd := exec.CommandContext(ctx, m.Reload[0], m.Reload[1:]...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("reload proxy: %s: %w", strings.TrimSpace(string(out)), err)
	}
	return nil
}
