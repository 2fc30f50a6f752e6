package policy

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// Loader reads user policies from .rego files so sites can extend the
// builtin set.
type Loader struct {
	log zerolog.Logger
}

// NewLoader creates a policy loader.
func NewLoader(log zerolog.Logger) *Loader {
	return &Loader{log: log.With().Str("component", "policy-loader").Logger()}
}

// LoadFromPaths loads policies from files and directories. Directories are
// walked recursively for .rego files.
func (l *Loader) LoadFromPaths(paths []string) ([]Policy, error) {
	var policies []Policy

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", path, err)
		}

		if info.IsDir() {
			dirPolicies, err := l.loadDirectory(path)
			if err != nil {
				return nil, err
			}
			policies = append(policies, dirPolicies...)
			continue
		}

		policy, err := l.loadFile(path)
		if err != nil {
			return nil, err
		}
		policies = append(policies, *policy)
	}

	l.log.Info().
		Int("total", len(policies)).
		Int("sources", len(paths)).
		Msg("policies loaded")

	return policies, nil
}

func (l *Loader) loadDirectory(dir string) ([]Policy, error) {
	var policies []Policy

	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".rego") {
			return nil
		}

		policy, err := l.loadFile(path)
		if err != nil {
			return err
		}
		policies = append(policies, *policy)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", dir, err)
	}

	return policies, nil
}

func (l *Loader) loadFile(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	source := string(data)
	if regoPackage(source) == "" {
		return nil, fmt.Errorf("%s: missing package declaration", path)
	}

	name := strings.TrimSuffix(filepath.Base(path), ".rego")
	return &Policy{
		Name:        name,
		Description: fmt.Sprintf("loaded from %s", path),
		Rego:        source,
		Severity:    SeverityWarning,
		Enabled:     true,
	}, nil
}
