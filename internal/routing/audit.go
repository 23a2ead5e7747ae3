package routing

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"eventgate/pkg/models"
)

// AuditEntry records one change made to a stored route definition.
type AuditEntry struct {
	ID        string                  `json:"id"`
	RouteName string                  `json:"route_name"`
	Action    string                  `json:"action"`
	OldValue  *models.RouteDefinition `json:"old_value,omitempty"`
	NewValue  *models.RouteDefinition `json:"new_value,omitempty"`
	ChangedBy string                  `json:"changed_by,omitempty"`
	IPAddress string                  `json:"ip_address,omitempty"`
	Timestamp time.Time               `json:"timestamp"`
}

type AuditRepository interface {
	RecordChange(ctx context.Context, entry *AuditEntry) error
	ListChanges(ctx context.Context, routeName string, limit int) ([]AuditEntry, error)
}

type PostgresAuditRepository struct {
	db *sql.DB
}

func NewAuditRepository(db *sql.DB) AuditRepository {
	return &PostgresAuditRepository{db: db}
}

func (r *PostgresAuditRepository) RecordChange(ctx context.Context, entry *AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	oldValue, err := nullableJSON(entry.OldValue)
	if err != nil {
		return fmt.Errorf("failed to marshal old value: %w", err)
	}
	newValue, err := nullableJSON(entry.NewValue)
	if err != nil {
		return fmt.Errorf("failed to marshal new value: %w", err)
	}

	query := `
		INSERT INTO route_audit_logs (id, route_name, action, old_value, new_value, changed_by, ip_address, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	start := time.Now()
	_, err = r.db.ExecContext(ctx, query,
		entry.ID, entry.RouteName, entry.Action, oldValue, newValue,
		nullString(entry.ChangedBy), nullString(entry.IPAddress), entry.Timestamp,
	)
	observeQuery("audit_insert", start, err)
	if err != nil {
		return fmt.Errorf("failed to record route change: %w", err)
	}
	return nil
}

// ListChanges returns the newest changes first.
func (r *PostgresAuditRepository) ListChanges(ctx context.Context, routeName string, limit int) ([]AuditEntry, error) {
	query := `
		SELECT id, route_name, action, old_value, new_value, changed_by, ip_address, timestamp
		FROM route_audit_logs
		WHERE route_name = $1
		ORDER BY timestamp DESC
		LIMIT $2
	`

	start := time.Now()
	rows, err := r.db.QueryContext(ctx, query, routeName, limit)
	observeQuery("audit_list", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to query route changes: %w", err)
	}
	defer rows.Close()

	entries := []AuditEntry{}
	for rows.Next() {
		var (
			e                  AuditEntry
			oldValue, newValue []byte
			changedBy, ip      sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.RouteName, &e.Action, &oldValue, &newValue, &changedBy, &ip, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan route change: %w", err)
		}
		e.ChangedBy = changedBy.String
		e.IPAddress = ip.String

		if len(oldValue) > 0 {
			e.OldValue = &models.RouteDefinition{}
			if err := unmarshalColumn("old_value", oldValue, e.OldValue); err != nil {
				return nil, err
			}
		}
		if len(newValue) > 0 {
			e.NewValue = &models.RouteDefinition{}
			if err := unmarshalColumn("new_value", newValue, e.NewValue); err != nil {
				return nil, err
			}
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return entries, nil
}

// nullableJSON returns an untyped nil for a missing definition so the column is NULL.
func nullableJSON(def *models.RouteDefinition) (interface{}, error) {
	if def == nil {
		return nil, nil
	}
	return json.Marshal(def)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
