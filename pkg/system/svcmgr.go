package system

import (
	"context"
	"fmt"
	"strings"
)

// ServiceStatus describes one systemd unit.
type ServiceStatus struct {
	Name     string
	Active   bool
	Enabled  bool
	SubState string
}

// ServiceManager drives systemd units through systemctl.
type ServiceManager struct {
	runner Runner
}

// NewServiceManager creates a systemd facade.
func NewServiceManager(runner Runner) *ServiceManager {
	return &ServiceManager{runner: runner}
}

// Status reads a unit's active and enabled state without mutating anything.
func (m *ServiceManager) Status(ctx context.Context, name string) (*ServiceStatus, error) {
	if _, err := m.runner.LookPath("systemctl"); err != nil {
		return nil, fmt.Errorf("systemctl not available: %w", err)
	}

	// is-active and is-enabled exit non-zero for inactive and disabled units;
	// only the output matters here.
	active, err := m.runner.Run(ctx, Command{Name: "systemctl", Args: []string{"is-active", name}})
	if err != nil {
		return nil, fmt.Errorf("failed to read status of %s: %w", name, err)
	}
	enabled, err := m.runner.Run(ctx, Command{Name: "systemctl", Args: []string{"is-enabled", name}})
	if err != nil {
		return nil, fmt.Errorf("failed to read enablement of %s: %w", name, err)
	}
	show, err := m.runner.Run(ctx, Command{Name: "systemctl", Args: []string{"show", name, "--property=SubState", "--value"}})
	if err != nil {
		return nil, fmt.Errorf("failed to read substate of %s: %w", name, err)
	}

	return &ServiceStatus{
		Name:     name,
		Active:   strings.TrimSpace(active.Stdout) == "active",
		Enabled:  strings.TrimSpace(enabled.Stdout) == "enabled",
		SubState: strings.TrimSpace(show.Stdout),
	}, nil
}

// Start starts a unit.
func (m *ServiceManager) Start(ctx context.Context, name string) error {
	return m.systemctl(ctx, "start", name)
}

// Stop stops a unit.
func (m *ServiceManager) Stop(ctx context.Context, name string) error {
	return m.systemctl(ctx, "stop", name)
}

// Restart restarts a unit.
func (m *ServiceManager) Restart(ctx context.Context, name string) error {
	return m.systemctl(ctx, "restart", name)
}

// Reload asks a unit to reload its configuration.
func (m *ServiceManager) Reload(ctx context.Context, name string) error {
	return m.systemctl(ctx, "reload", name)
}

// Enable enables a unit at boot.
func (m *ServiceManager) Enable(ctx context.Context, name string) error {
	return m.systemctl(ctx, "enable", name)
}

// Disable disables a unit at boot.
func (m *ServiceManager) Disable(ctx context.Context, name string) error {
	return m.systemctl(ctx, "disable", name)
}

// DaemonReload reloads systemd's own unit files.
func (m *ServiceManager) DaemonReload(ctx context.Context) error {
	result, err := m.runner.Run(ctx, Command{Name: "systemctl", Args: []string{"daemon-reload"}})
	if err != nil {
		return fmt.Errorf("failed to daemon-reload: %w", err)
	}
	if !result.Ok() {
		return fmt.Errorf("failed to daemon-reload: %s", strings.TrimSpace(result.Stderr))
	}
	return nil
}

func (m *ServiceManager) systemctl(ctx context.Context, verb, name string) error {
	result, err := m.runner.Run(ctx, Command{Name: "systemctl", Args: []string{verb, name}})
	if err != nil {
		return fmt.Errorf("failed to %s service %s: %w", verb, name, err)
	}
	if !result.Ok() {
		return fmt.Errorf("failed to %s service %s: %s", verb, name, strings.TrimSpace(result.Stderr))
	}
	return nil
}
