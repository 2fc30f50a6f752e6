package system

import (
	"context"
	"fmt"
	"strings"
)

// PackageStatus describes one installed (or missing) package.
type PackageStatus struct {
	Name      string
	Installed bool
	Version   string
}

// PackageManager drives the host's native package tooling. The manager name
// is detected once and reused for the process lifetime.
type PackageManager struct {
	runner  Runner
	manager string
}

// NewPackageManager creates a package manager facade. An empty manager name
// triggers detection on first use.
func NewPackageManager(runner Runner, manager string) *PackageManager {
	return &PackageManager{runner: runner, manager: manager}
}

// Detect resolves which supported package manager is on PATH.
func (m *PackageManager) Detect() (string, error) {
	if m.manager != "" {
		return m.manager, nil
	}
	for _, mgr := range []string{"apt", "dnf", "yum", "zypper"} {
		if _, err := m.runner.LookPath(mgr); err == nil {
			m.manager = mgr
			return mgr, nil
		}
	}
	return "", fmt.Errorf("no supported package manager found")
}

// Query returns the install status of a package without mutating anything.
func (m *PackageManager) Query(ctx context.Context, name string) (*PackageStatus, error) {
	manager, err := m.Detect()
	if err != nil {
		return nil, err
	}

	var cmd Command
	switch manager {
	case "apt":
		cmd = Command{Name: "dpkg-query", Args: []string{"-W", "-f=${Version}", name}}
	case "dnf", "yum", "zypper":
		cmd = Command{Name: "rpm", Args: []string{"-q", "--queryformat", "%{VERSION}-%{RELEASE}", name}}
	default:
		return nil, fmt.Errorf("unsupported package manager: %s", manager)
	}

	result, err := m.runner.Run(ctx, cmd)
	if err != nil {
		return nil, fmt.Errorf("failed to query package %s: %w", name, err)
	}
	if !result.Ok() {
		return &PackageStatus{Name: name, Installed: false}, nil
	}
	return &PackageStatus{
		Name:      name,
		Installed: true,
		Version:   strings.TrimSpace(result.Stdout),
	}, nil
}

// Install installs a package, optionally pinned to a version.
func (m *PackageManager) Install(ctx context.Context, name, version string) error {
	manager, err := m.Detect()
	if err != nil {
		return err
	}

	spec := name
	if version != "" {
		switch manager {
		case "apt":
			spec = fmt.Sprintf("%s=%s", name, version)
		case "dnf", "yum", "zypper":
			spec = fmt.Sprintf("%s-%s", name, version)
		}
	}

	result, err := m.runner.Run(ctx, Command{Name: manager, Args: []string{"install", "-y", spec}})
	if err != nil {
		return fmt.Errorf("failed to install %s: %w", name, err)
	}
	if !result.Ok() {
		return fmt.Errorf("failed to install %s: %s", name, strings.TrimSpace(result.Stderr))
	}
	return nil
}

// Remove uninstalls a package.
func (m *PackageManager) Remove(ctx context.Context, name string) error {
	manager, err := m.Detect()
	if err != nil {
		return err
	}

	result, err := m.runner.Run(ctx, Command{Name: manager, Args: []string{"remove", "-y", name}})
	if err != nil {
		return fmt.Errorf("failed to remove %s: %w", name, err)
	}
	if !result.Ok() {
		return fmt.Errorf("failed to remove %s: %s", name, strings.TrimSpace(result.Stderr))
	}
	return nil
}

// Upgrade moves a package to the newest available version.
func (m *PackageManager) Upgrade(ctx context.Context, name string) error {
	manager, err := m.Detect()
	if err != nil {
		return err
	}

	verb := "upgrade"
	if manager == "zypper" {
		verb = "update"
	}

	result, err := m.runner.Run(ctx, Command{Name: manager, Args: []string{verb, "-y", name}})
	if err != nil {
		return fmt.Errorf("failed to upgrade %s: %w", name, err)
	}
	if !result.Ok() {
		return fmt.Errorf("failed to upgrade %s: %s", name, strings.TrimSpace(result.Stderr))
	}
	return nil
}
