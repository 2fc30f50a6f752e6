package system

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// UserStatus describes one local account.
type UserStatus struct {
	Name    string
	Exists  bool
	UID     string
	Home    string
	Shell   string
	Groups  []string
	System  bool
	Primary string
}

// UserSpec is the desired shape of a local account.
type UserSpec struct {
	Name   string
	Home   string
	Shell  string
	Groups []string
	System bool
}

// UserAdmin manages local accounts through getent, useradd, and usermod.
type UserAdmin struct {
	runner Runner
}

// NewUserAdmin creates a local account facade.
func NewUserAdmin(runner Runner) *UserAdmin {
	return &UserAdmin{runner: runner}
}

// Lookup reads an account's current state without mutating anything.
func (a *UserAdmin) Lookup(ctx context.Context, name string) (*UserStatus, error) {
	result, err := a.runner.Run(ctx, Command{Name: "getent", Args: []string{"passwd", name}})
	if err != nil {
		return nil, fmt.Errorf("failed to look up user %s: %w", name, err)
	}
	if !result.Ok() {
		return &UserStatus{Name: name, Exists: false}, nil
	}

	// getent passwd format: name:x:uid:gid:gecos:home:shell
	fields := strings.Split(strings.TrimSpace(result.Stdout), ":")
	if len(fields) < 7 {
		return nil, fmt.Errorf("unexpected getent output for user %s", name)
	}

	status := &UserStatus{
		Name:   name,
		Exists: true,
		UID:    fields[2],
		Home:   fields[5],
		Shell:  fields[6],
	}

	groups, err := a.runner.Run(ctx, Command{Name: "id", Args: []string{"-nG", name}})
	if err != nil {
		return nil, fmt.Errorf("failed to read groups of %s: %w", name, err)
	}
	if groups.Ok() {
		status.Groups = strings.Fields(strings.TrimSpace(groups.Stdout))
		sort.Strings(status.Groups)
	}

	return status, nil
}

// Create adds a new account matching the spec.
func (a *UserAdmin) Create(ctx context.Context, spec UserSpec) error {
	args := []string{}
	if spec.System {
		args = append(args, "--system")
	}
	if spec.Home != "" {
		args = append(args, "--create-home", "--home-dir", spec.Home)
	}
	if spec.Shell != "" {
		args = append(args, "--shell", spec.Shell)
	}
	if len(spec.Groups) > 0 {
		args = append(args, "--groups", strings.Join(spec.Groups, ","))
	}
	args = append(args, spec.Name)

	result, err := a.runner.Run(ctx, Command{Name: "useradd", Args: args})
	if err != nil {
		return fmt.Errorf("failed to create user %s: %w", spec.Name, err)
	}
	if !result.Ok() {
		return fmt.Errorf("failed to create user %s: %s", spec.Name, strings.TrimSpace(result.Stderr))
	}
	return nil
}

// Modify reconciles an existing account toward the spec.
func (a *UserAdmin) Modify(ctx context.Context, spec UserSpec) error {
	args := []string{}
	if spec.Home != "" {
		args = append(args, "--home", spec.Home, "--move-home")
	}
	if spec.Shell != "" {
		args = append(args, "--shell", spec.Shell)
	}
	if len(spec.Groups) > 0 {
		args = append(args, "--groups", strings.Join(spec.Groups, ","))
	}
	if len(args) == 0 {
		return nil
	}
	args = append(args, spec.Name)

	result, err := a.runner.Run(ctx, Command{Name: "usermod", Args: args})
	if err != nil {
		return fmt.Errorf("failed to modify user %s: %w", spec.Name, err)
	}
	if !result.Ok() {
		return fmt.Errorf("failed to modify user %s: %s", spec.Name, strings.TrimSpace(result.Stderr))
	}
	return nil
}

// GroupExists reports whether a local group exists.
func (a *UserAdmin) GroupExists(ctx context.Context, name string) (bool, error) {
	result, err := a.runner.Run(ctx, Command{Name: "getent", Args: []string{"group", name}})
	if err != nil {
		return false, fmt.Errorf("failed to look up group %s: %w", name, err)
	}
	return result.Ok(), nil
}

// CreateGroup adds a local group.
func (a *UserAdmin) CreateGroup(ctx context.Context, name string, system bool) error {
	args := []string{}
	if system {
		args = append(args, "--system")
	}
	args = append(args, name)

	result, err := a.runner.Run(ctx, Command{Name: "groupadd", Args: args})
	if err != nil {
		return fmt.Errorf("failed to create group %s: %w", name, err)
	}
	if !result.Ok() {
		return fmt.Errorf("failed to create group %s: %s", name, strings.TrimSpace(result.Stderr))
	}
	return nil
}
