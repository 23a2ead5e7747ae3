package routing

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"eventgate/internal/constants"
	pkgerrors "eventgate/pkg/errors"
	"eventgate/pkg/metrics"
	"eventgate/pkg/models"
)

// Repository stores declarative route definitions.
type Repository interface {
	ListDefinitions(ctx context.Context) ([]models.RouteDefinition, error)
	GetDefinition(ctx context.Context, name string) (*models.RouteDefinition, error)
	UpsertDefinition(ctx context.Context, def *models.RouteDefinition) error
	DeleteDefinition(ctx context.Context, name string) error
}

type PostgresRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &PostgresRepository{db: db}
}

const selectDefinitions = `
	SELECT name, event_types, source_filters, matchers, condition, priority,
		retry_budget, timeout_seconds, handler, enabled
	FROM route_definitions
`

func (r *PostgresRepository) ListDefinitions(ctx context.Context) ([]models.RouteDefinition, error) {
	start := time.Now()
	defs, err := r.listDefinitions(ctx)
	observeQuery("list", start, err)
	return defs, err
}

func (r *PostgresRepository) listDefinitions(ctx context.Context) ([]models.RouteDefinition, error) {
	rows, err := r.db.QueryContext(ctx, selectDefinitions+` ORDER BY created_at ASC, name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query route definitions: %w", err)
	}
	defer rows.Close()

	var defs []models.RouteDefinition
	for rows.Next() {
		def, err := scanDefinition(rows)
		if err != nil {
			return nil, err
		}
		defs = append(defs, *def)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return defs, nil
}

func (r *PostgresRepository) GetDefinition(ctx context.Context, name string) (*models.RouteDefinition, error) {
	start := time.Now()
	def, err := scanDefinition(r.db.QueryRowContext(ctx, selectDefinitions+` WHERE name = $1`, name))
	if errors.Is(err, sql.ErrNoRows) {
		observeQuery("get", start, nil)
		return nil, pkgerrors.ErrNotFound.WithDetail("message", fmt.Sprintf("route '%s' not found", name))
	}
	observeQuery("get", start, err)
	return def, err
}

func (r *PostgresRepository) UpsertDefinition(ctx context.Context, def *models.RouteDefinition) error {
	eventTypes, err := json.Marshal(def.EventTypes)
	if err != nil {
		return fmt.Errorf("failed to marshal event types: %w", err)
	}
	sourceFilters, err := json.Marshal(def.SourceFilters)
	if err != nil {
		return fmt.Errorf("failed to marshal source filters: %w", err)
	}
	matchers, err := json.Marshal(def.Matchers)
	if err != nil {
		return fmt.Errorf("failed to marshal matchers: %w", err)
	}
	handler, err := json.Marshal(def.Handler)
	if err != nil {
		return fmt.Errorf("failed to marshal handler: %w", err)
	}

	query := `
		INSERT INTO route_definitions (name, event_types, source_filters, matchers, condition, priority,
			retry_budget, timeout_seconds, handler, enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
		ON CONFLICT (name) DO UPDATE SET
			event_types = EXCLUDED.event_types,
			source_filters = EXCLUDED.source_filters,
			matchers = EXCLUDED.matchers,
			condition = EXCLUDED.condition,
			priority = EXCLUDED.priority,
			retry_budget = EXCLUDED.retry_budget,
			timeout_seconds = EXCLUDED.timeout_seconds,
			handler = EXCLUDED.handler,
			enabled = EXCLUDED.enabled,
			updated_at = EXCLUDED.updated_at
	`

	start := time.Now()
	_, err = r.db.ExecContext(ctx, query,
		def.Name, eventTypes, sourceFilters, matchers, def.Condition, def.Priority,
		def.RetryBudget, def.TimeoutSeconds, handler, def.Enabled, time.Now().UTC(),
	)
	observeQuery("upsert", start, err)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23514" {
			return pkgerrors.ErrValidation.WithCause(err).WithDetail("message", pqErr.Message)
		}
		return fmt.Errorf("failed to upsert route definition: %w", err)
	}

	return nil
}

func (r *PostgresRepository) DeleteDefinition(ctx context.Context, name string) error {
	start := time.Now()
	result, err := r.db.ExecContext(ctx, `DELETE FROM route_definitions WHERE name = $1`, name)
	observeQuery("delete", start, err)
	if err != nil {
		return fmt.Errorf("failed to delete route definition: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return pkgerrors.ErrNotFound.WithDetail("message", fmt.Sprintf("route '%s' not found", name))
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDefinition(row rowScanner) (*models.RouteDefinition, error) {
	var (
		def                                      models.RouteDefinition
		eventTypes, sourceFilters, matchers, hdl []byte
		condition                                sql.NullString
	)

	if err := row.Scan(
		&def.Name,
		&eventTypes,
		&sourceFilters,
		&matchers,
		&condition,
		&def.Priority,
		&def.RetryBudget,
		&def.TimeoutSeconds,
		&hdl,
		&def.Enabled,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan route definition: %w", err)
	}

	def.Condition = condition.String

	if err := unmarshalColumn("event_types", eventTypes, &def.EventTypes); err != nil {
		return nil, err
	}
	if err := unmarshalColumn("source_filters", sourceFilters, &def.SourceFilters); err != nil {
		return nil, err
	}
	if err := unmarshalColumn("matchers", matchers, &def.Matchers); err != nil {
		return nil, err
	}
	if err := unmarshalColumn("handler", hdl, &def.Handler); err != nil {
		return nil, err
	}

	return &def, nil
}

func unmarshalColumn(column string, data []byte, dest interface{}) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("failed to decode %s: %w", column, err)
	}
	return nil
}

func observeQuery(operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.IncDatabaseQuery(constants.ServiceName, "postgres", operation, status)
	metrics.ObserveDatabaseQueryDuration(constants.ServiceName, "postgres", operation, time.Since(start))
}
