// Package migraterunner applies the database schema migrations and exits.
package migraterunner

import (
	"context"

	"github.com/gosom/airlock/postgres"
	"github.com/gosom/airlock/runner"
)

type MigrateRunner struct {
	cfg *runner.Config
}

func New(cfg *runner.Config) (*MigrateRunner, error) {
	return &MigrateRunner{cfg: cfg}, nil
}

func (m *MigrateRunner) Run(_ context.Context) error {
	return postgres.NewMigrationRunner(m.cfg.Dsn).RunMigrations()
}

func (m *MigrateRunner) Close(_ context.Context) error {
	return nil
}
