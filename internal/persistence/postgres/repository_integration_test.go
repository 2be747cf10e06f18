//go:build integration

package postgres

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/ardhimaskoi/Davin-App/internal/domain"
)

func TestRepositoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	pool := setupDatabase(t, ctx)
	repo := NewRepository(pool)

	record := testRecord()

	id, err := repo.Insert(ctx, record)
	require.NoError(t, err)
	require.Positive(t, id)

	stored, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.Equal(t, record.SubjectID, stored.SubjectID)
	require.Equal(t, record.Action, stored.Action)
	require.Equal(t, record.Asset, stored.Asset)
	require.True(t, record.Quantity.Equal(stored.Quantity), "quantity %s round-tripped as %s", record.Quantity, stored.Quantity)
	require.Equal(t, record.Fingerprint, stored.Fingerprint)
	require.Equal(t, record.ConfirmationID, stored.ConfirmationID)

	missing, err := repo.GetByID(ctx, id+1000)
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestRepositoryRejectsDuplicateFingerprint(t *testing.T) {
	ctx := context.Background()
	pool := setupDatabase(t, ctx)
	repo := NewRepository(pool)

	record := testRecord()

	_, err := repo.Insert(ctx, record)
	require.NoError(t, err)

	_, err = repo.Insert(ctx, record)
	require.ErrorIs(t, err, domain.ErrDuplicateFingerprint)
}

func TestRepositoryInsertWritesOutbox(t *testing.T) {
	ctx := context.Background()
	pool := setupDatabase(t, ctx)
	repo := NewRepository(pool)

	id, err := repo.Insert(ctx, testRecord())
	require.NoError(t, err)

	var (
		eventType string
		topic     string
	)
	err = pool.QueryRow(ctx,
		`SELECT event_type, topic FROM outbox WHERE aggregate_id = $1::text`, id,
	).Scan(&eventType, &topic)
	require.NoError(t, err)
	require.Equal(t, "proof.anchored", eventType)
	require.Equal(t, "proof_events", topic)
}

func TestRepositoryKeysetPagination(t *testing.T) {
	ctx := context.Background()
	pool := setupDatabase(t, ctx)
	repo := NewRepository(pool)

	base := time.Now().UTC().Truncate(time.Microsecond)
	for i := 0; i < 5; i++ {
		record := testRecord()
		record.Quantity = decimal.NewFromInt(int64(i + 1))
		record.Fingerprint = domain.Fingerprint(record.Quantity.String())
		record.CreatedAt = base.Add(time.Duration(i) * time.Second)
		_, err := repo.Insert(ctx, record)
		require.NoError(t, err)
	}

	first, cursor, err := repo.ListBySubject(ctx, 42, nil, 2)
	require.NoError(t, err)
	require.Len(t, first, 2)
	require.NotNil(t, cursor)
	require.True(t, first[0].CreatedAt.After(first[1].CreatedAt), "expected newest first")

	second, _, err := repo.ListBySubject(ctx, 42, cursor, 2)
	require.NoError(t, err)
	require.Len(t, second, 2)
	require.True(t, first[1].CreatedAt.After(second[0].CreatedAt), "pages must not overlap")
}

func testRecord() domain.ActivityRecord {
	qty := decimal.RequireFromString("2.5")
	canonical, _ := domain.Encode(42, domain.ActionBuy, "BBCA", qty)
	return domain.ActivityRecord{
		SubjectID:      42,
		Action:         domain.ActionBuy,
		Asset:          "BBCA",
		Quantity:       qty,
		Fingerprint:    domain.Fingerprint(canonical),
		ConfirmationID: "0xdeadbeef",
		CreatedAt:      time.Now().UTC().Truncate(time.Microsecond),
	}
}

func setupDatabase(t *testing.T, ctx context.Context) *pgxpool.Pool {
	t.Helper()

	pg, err := postgrescontainer.RunContainer(ctx,
		postgrescontainer.WithDatabase("davin"),
		postgrescontainer.WithUsername("davin"),
		postgrescontainer.WithPassword("davin"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	require.NoError(t, waitForDatabase(ctx, connStr))

	runMigrations(t, ctx, connStr)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })
	return pool
}

func runMigrations(t *testing.T, ctx context.Context, connStr string) {
	files := []string{
		"../../../db/postgres/migrations/0001_init.up.sql",
		"../../../db/postgres/migrations/0002_outbox_dlq_retry.up.sql",
	}

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	defer pool.Close()

	for _, rel := range files {
		path := resolvePath(t, rel)
		contents, readErr := os.ReadFile(path)
		require.NoError(t, readErr)

		_, execErr := pool.Exec(ctx, string(contents))
		require.NoError(t, execErr)
	}
}

func resolvePath(t *testing.T, rel string) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok)
	return filepath.Join(filepath.Dir(file), rel)
}

func waitForDatabase(ctx context.Context, connStr string) error {
	deadline := time.Now().Add(30 * time.Second)
	for {
		pool, err := pgxpool.New(ctx, connStr)
		if err == nil {
			err = pool.Ping(ctx)
			pool.Close()
			if err == nil {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return err
		}
		time.Sleep(time.Second)
	}
}
