package system

import (
	"context"
	"fmt"
	"strings"
)

// DatabaseEngine selects the database client to shell out to.
type DatabaseEngine string

const (
	EnginePostgres DatabaseEngine = "postgres"
	EngineMySQL    DatabaseEngine = "mysql"
)

// DatabaseAdmin manages schemas, roles, and grants through the engine's
// command line client. Probe methods are read-only queries; mutations are
// separate statements.
type DatabaseAdmin struct {
	runner Runner
	engine DatabaseEngine

	// adminUser and adminPassword authenticate the client. The password is
	// passed via the environment, never on the command line.
	adminUser     string
	adminPassword string
}

// NewDatabaseAdmin creates a database facade for the given engine.
func NewDatabaseAdmin(runner Runner, engine DatabaseEngine, adminUser, adminPassword string) *DatabaseAdmin {
	return &DatabaseAdmin{
		runner:        runner,
		engine:        engine,
		adminUser:     adminUser,
		adminPassword: adminPassword,
	}
}

// DatabaseExists reports whether the named database exists.
func (d *DatabaseAdmin) DatabaseExists(ctx context.Context, name string) (bool, error) {
	switch d.engine {
	case EnginePostgres:
		out, err := d.psql(ctx, fmt.Sprintf(
			"SELECT 1 FROM pg_database WHERE datname = '%s'", escapeSQL(name)))
		if err != nil {
			return false, err
		}
		return strings.TrimSpace(out) == "1", nil
	case EngineMySQL:
		out, err := d.mysql(ctx, fmt.Sprintf(
			"SELECT SCHEMA_NAME FROM INFORMATION_SCHEMA.SCHEMATA WHERE SCHEMA_NAME = '%s'", escapeSQL(name)))
		if err != nil {
			return false, err
		}
		return strings.TrimSpace(out) != "", nil
	default:
		return false, fmt.Errorf("unsupported database engine: %s", d.engine)
	}
}

// RoleExists reports whether the named role or user exists.
func (d *DatabaseAdmin) RoleExists(ctx context.Context, name string) (bool, error) {
	switch d.engine {
	case EnginePostgres:
		out, err := d.psql(ctx, fmt.Sprintf(
			"SELECT 1 FROM pg_roles WHERE rolname = '%s'", escapeSQL(name)))
		if err != nil {
			return false, err
		}
		return strings.TrimSpace(out) == "1", nil
	case EngineMySQL:
		out, err := d.mysql(ctx, fmt.Sprintf(
			"SELECT User FROM mysql.user WHERE User = '%s'", escapeSQL(name)))
		if err != nil {
			return false, err
		}
		return strings.TrimSpace(out) != "", nil
	default:
		return false, fmt.Errorf("unsupported database engine: %s", d.engine)
	}
}

// CreateDatabase creates a database owned by the given role.
func (d *DatabaseAdmin) CreateDatabase(ctx context.Context, name, owner string) error {
	switch d.engine {
	case EnginePostgres:
		stmt := fmt.Sprintf("CREATE DATABASE %q", name)
		if owner != "" {
			stmt += fmt.Sprintf(" OWNER %q", owner)
		}
		_, err := d.psql(ctx, stmt)
		return err
	case EngineMySQL:
		_, err := d.mysql(ctx, fmt.Sprintf("CREATE DATABASE `%s`", name))
		return err
	default:
		return fmt.Errorf("unsupported database engine: %s", d.engine)
	}
}

// CreateRole creates a login role with the given password.
func (d *DatabaseAdmin) CreateRole(ctx context.Context, name, password string) error {
	switch d.engine {
	case EnginePostgres:
		_, err := d.psql(ctx, fmt.Sprintf(
			"CREATE ROLE %q LOGIN PASSWORD '%s'", name, escapeSQL(password)))
		return err
	case EngineMySQL:
		_, err := d.mysql(ctx, fmt.Sprintf(
			"CREATE USER '%s'@'%%' IDENTIFIED BY '%s'", escapeSQL(name), escapeSQL(password)))
		return err
	default:
		return fmt.Errorf("unsupported database engine: %s", d.engine)
	}
}

// Grant applies a privilege set on a database to a role.
func (d *DatabaseAdmin) Grant(ctx context.Context, database, role, privileges string) error {
	if privileges == "" {
		privileges = "ALL PRIVILEGES"
	}
	switch d.engine {
	case EnginePostgres:
		_, err := d.psql(ctx, fmt.Sprintf(
			"GRANT %s ON DATABASE %q TO %q", privileges, database, role))
		return err
	case EngineMySQL:
		_, err := d.mysql(ctx, fmt.Sprintf(
			"GRANT %s ON `%s`.* TO '%s'@'%%'", privileges, database, escapeSQL(role)))
		return err
	default:
		return fmt.Errorf("unsupported database engine: %s", d.engine)
	}
}

// Ping verifies the client can reach the server.
func (d *DatabaseAdmin) Ping(ctx context.Context) error {
	switch d.engine {
	case EnginePostgres:
		_, err := d.psql(ctx, "SELECT 1")
		return err
	case EngineMySQL:
		_, err := d.mysql(ctx, "SELECT 1")
		return err
	default:
		return fmt.Errorf("unsupported database engine: %s", d.engine)
	}
}

func (d *DatabaseAdmin) psql(ctx context.Context, stmt string) (string, error) {
	cmd := Command{
		Name: "psql",
		Args: []string{"-tA", "-c", stmt},
	}
	if d.adminUser != "" {
		cmd.Args = append([]string{"-U", d.adminUser}, cmd.Args...)
	}
	if d.adminPassword != "" {
		cmd.Env = []string{"PGPASSWORD=" + d.adminPassword}
	}

	result, err := d.runner.Run(ctx, cmd)
	if err != nil {
		return "", fmt.Errorf("psql: %w", err)
	}
	if !result.Ok() {
		return "", fmt.Errorf("psql: %s", strings.TrimSpace(result.Stderr))
	}
	return result.Stdout, nil
}

func (d *DatabaseAdmin) mysql(ctx context.Context, stmt string) (string, error) {
	cmd := Command{
		Name: "mysql",
		Args: []string{"-N", "-e", stmt},
	}
	if d.adminUser != "" {
		cmd.Args = append([]string{"-u", d.adminUser}, cmd.Args...)
	}
	if d.adminPassword != "" {
		cmd.Env = []string{"MYSQL_PWD=" + d.adminPassword}
	}

	result, err := d.runner.Run(ctx, cmd)
	if err != nil {
		return "", fmt.Errorf("mysql: %w", err)
	}
	if !result.Ok() {
		return "", fmt.Errorf("mysql: %s", strings.TrimSpace(result.Stderr))
	}
	return result.Stdout, nil
}

// escapeSQL doubles single quotes for safe embedding in a quoted literal.
func escapeSQL(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
