package postgres

import (
	"context"
	"errors"
	"fmt"
)

// errSchemaMissing means the database is reachable but ledgerd migrate has
// not been run against it.
var errSchemaMissing = errors.New("ledger schema not applied")

// HealthCheck implements ports.HealthChecker for PostgreSQL. Healthy means
// reachable and migrated: the event log head row is the last object the
// schema creates that every operation depends on.
type HealthCheck struct {
	pool Pool
}

func NewHealthCheck(pool Pool) *HealthCheck {
	return &HealthCheck{pool: pool}
}

func (h *HealthCheck) Ping(ctx context.Context) error {
	var migrated bool
	err := h.pool.QueryRow(ctx, `SELECT to_regclass('public.event_head') IS NOT NULL`).Scan(&migrated)
	if err != nil {
		return fmt.Errorf("query schema: %w", err)
	}
	if !migrated {
		return errSchemaMissing
	}
	return nil
}

func (h *HealthCheck) Name() string {
	return "postgresql"
}
