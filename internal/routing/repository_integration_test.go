//go:build integration

package routing

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	postgresmodule "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	pkgerrors "eventgate/pkg/errors"
	"eventgate/pkg/migrations"
	"eventgate/pkg/models"
)

func setupPostgres(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	if os.Getenv("TESTCONTAINERS_RYUK_DISABLED") == "" {
		os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")
	}

	container, err := postgresmodule.Run(ctx, "postgres:15",
		postgresmodule.WithDatabase("test_db"),
		postgresmodule.WithUsername("test_user"),
		postgresmodule.WithPassword("test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = container.Terminate(ctx)
	})

	conn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("postgres", conn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.PingContext(ctx))
	require.NoError(t, migrations.RunPostgres(db, "../../migrations/postgres"))
	return db
}

func TestPostgresRepository(t *testing.T) {
	db := setupPostgres(t)
	repo := NewRepository(db)
	ctx := context.Background()

	def := models.RouteDefinition{
		Name:          "github-push",
		EventTypes:    []string{"push"},
		SourceFilters: []string{"github"},
		Matchers: []models.MatcherDefinition{
			{Field: "ref", Operator: "equals", Value: "refs/heads/main"},
		},
		Condition:      `payload.size() > 0`,
		Priority:       3,
		RetryBudget:    2,
		TimeoutSeconds: 15,
		Handler:        models.HandlerDefinition{Type: "http", URL: "http://ci.local/hook", Method: "POST"},
		Enabled:        true,
	}

	t.Run("upsert and get", func(t *testing.T) {
		require.NoError(t, repo.UpsertDefinition(ctx, &def))

		got, err := repo.GetDefinition(ctx, def.Name)
		require.NoError(t, err)
		assert.Equal(t, def, *got)
	})

	t.Run("upsert replaces", func(t *testing.T) {
		updated := def
		updated.Priority = 4
		updated.Enabled = false
		require.NoError(t, repo.UpsertDefinition(ctx, &updated))

		defs, err := repo.ListDefinitions(ctx)
		require.NoError(t, err)
		require.Len(t, defs, 1)
		assert.Equal(t, 4, defs[0].Priority)
		assert.False(t, defs[0].Enabled)
	})

	t.Run("check constraint maps to validation error", func(t *testing.T) {
		bad := def
		bad.Name = "bad-priority"
		bad.Priority = 7
		err := repo.UpsertDefinition(ctx, &bad)
		assert.True(t, pkgerrors.IsValidation(err))
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, repo.DeleteDefinition(ctx, def.Name))
		assert.True(t, pkgerrors.IsNotFound(repo.DeleteDefinition(ctx, def.Name)))

		_, err := repo.GetDefinition(ctx, def.Name)
		assert.True(t, pkgerrors.IsNotFound(err))
	})
}

func TestPostgresAuditRepository(t *testing.T) {
	db := setupPostgres(t)
	audit := NewAuditRepository(db)
	ctx := context.Background()

	def := models.RouteDefinition{
		Name:          "orders",
		EventTypes:    []string{"*"},
		SourceFilters: []string{"shop"},
		Priority:      2,
		Handler:       models.HandlerDefinition{Type: "log"},
		Enabled:       true,
	}
	updated := def
	updated.Priority = 3

	require.NoError(t, audit.RecordChange(ctx, &AuditEntry{
		RouteName: "orders", Action: models.ActionCreate, NewValue: &def, ChangedBy: "alice",
		Timestamp: time.Now().Add(-time.Minute),
	}))
	require.NoError(t, audit.RecordChange(ctx, &AuditEntry{
		RouteName: "orders", Action: models.ActionUpdate, OldValue: &def, NewValue: &updated,
	}))
	require.NoError(t, audit.RecordChange(ctx, &AuditEntry{RouteName: "other", Action: models.ActionDelete}))

	entries, err := audit.ListChanges(ctx, "orders", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, models.ActionUpdate, entries[0].Action)
	require.NotNil(t, entries[0].OldValue)
	assert.Equal(t, 2, entries[0].OldValue.Priority)
	assert.Equal(t, 3, entries[0].NewValue.Priority)
	assert.Empty(t, entries[0].ChangedBy)

	assert.Equal(t, models.ActionCreate, entries[1].Action)
	assert.Nil(t, entries[1].OldValue)
	assert.Equal(t, "alice", entries[1].ChangedBy)

	limited, err := audit.ListChanges(ctx, "orders", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}
