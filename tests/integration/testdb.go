// Package integration exercises the ledger against a real PostgreSQL
// instance. Containers come from testcontainers, so the suite needs a
// Docker daemon and is skipped in short mode by the individual tests.
package integration

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	mpg "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// One container serves the whole package. Starting PostgreSQL per test
// costs seconds each; tests isolate themselves with CleanTables instead.
var (
	sharedContainer    testcontainers.Container
	sharedContainerMu  sync.Mutex
	sharedContainerDSN string
)

// TestDB is a migrated ledger database handle bound to a single test.
type TestDB struct {
	DB    *gorm.DB
	SqlDB *sql.DB
	t     *testing.T
}

// NewSharedTestDB returns a connection to the package-wide PostgreSQL
// container, starting it and applying migrations on first use. Each test
// gets its own connection; call CleanTables before seeding.
func NewSharedTestDB(t *testing.T) *TestDB {
	t.Helper()

	sharedContainerMu.Lock()
	defer sharedContainerMu.Unlock()

	ctx := context.Background()

	if sharedContainer == nil {
		container, err := tcpostgres.Run(ctx,
			"postgres:16-alpine",
			tcpostgres.WithDatabase("ledger_test"),
			tcpostgres.WithUsername("postgres"),
			tcpostgres.WithPassword("ledger-test-pw"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(60*time.Second)),
		)
		require.NoError(t, err, "Failed to start PostgreSQL container")

		dsn, err := container.ConnectionString(ctx, "sslmode=disable")
		require.NoError(t, err, "Failed to get connection string")

		sharedContainer = container
		sharedContainerDSN = dsn

		// Migrations run once for the container's lifetime
		_, sqlDB := openGorm(t, dsn)
		applyMigrations(t, sqlDB)
		sqlDB.Close()
	}

	db, sqlDB := openGorm(t, sharedContainerDSN)

	tdb := &TestDB{DB: db, SqlDB: sqlDB, t: t}

	// The container outlives the test; only the connection closes here
	t.Cleanup(func() {
		if tdb.SqlDB != nil {
			tdb.SqlDB.Close()
		}
	})

	return tdb
}

// CleanTables truncates every ledger table so a test starts from an empty
// store. The migration bookkeeping table is left alone.
func (tdb *TestDB) CleanTables() {
	tdb.t.Helper()

	var tables []string
	err := tdb.DB.Raw(`
		SELECT tablename FROM pg_tables
		WHERE schemaname = 'public'
		AND tablename != 'schema_migrations'
	`).Scan(&tables).Error
	require.NoError(tdb.t, err, "Failed to get table names")

	// CASCADE clears move rows that reference the sale being truncated
	for _, table := range tables {
		err := tdb.DB.Exec(fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)).Error
		if err != nil {
			tdb.t.Logf("Warning: Failed to truncate table %s: %v", table, err)
		}
	}
}

// CreateTestLocation inserts a location row. Most ledger tables carry a
// foreign key to locations, so seeding usually starts here.
func (tdb *TestDB) CreateTestLocation(locationID fmt.Stringer) {
	tdb.t.Helper()

	code := fmt.Sprintf("LOC_%s", locationID.String()[:8])
	name := fmt.Sprintf("Test Location %s", locationID.String()[:8])

	err := tdb.DB.Exec(`
		INSERT INTO locations (id, code, name, is_default, active)
		VALUES (?, ?, ?, FALSE, TRUE)
		ON CONFLICT (id) DO NOTHING
	`, locationID.String(), code, name).Error
	require.NoError(tdb.t, err, "Failed to create test location")
}

// CreateTestBatch inserts a stock batch row. A nil expiry models products
// that carry no expiry date and sort last under FEFO.
func (tdb *TestDB) CreateTestBatch(batchID, productID fmt.Stringer, expiry *time.Time) {
	tdb.t.Helper()

	number := fmt.Sprintf("BATCH_%s", batchID.String()[:8])

	err := tdb.DB.Exec(`
		INSERT INTO stock_batches (id, product_id, batch_number, expiry_date, received_date, unit_cost)
		VALUES (?, ?, ?, ?, NOW(), 1.0)
		ON CONFLICT (id) DO NOTHING
	`, batchID.String(), productID.String(), number, expiry).Error
	require.NoError(tdb.t, err, "Failed to create test batch")
}

// CleanupSharedContainer tears down the package container. TestMain calls
// it after the suite finishes.
func CleanupSharedContainer() {
	sharedContainerMu.Lock()
	defer sharedContainerMu.Unlock()

	if sharedContainer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		sharedContainer.Terminate(ctx)
		sharedContainer = nil
		sharedContainerDSN = ""
	}
}

func openGorm(t *testing.T, dsn string) (*gorm.DB, *sql.DB) {
	t.Helper()

	// GORM stays silent unless TEST_DB_DEBUG asks for query logs
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}
	if os.Getenv("TEST_DB_DEBUG") != "" {
		gormConfig.Logger = logger.Default.LogMode(logger.Info)
	}

	db, err := gorm.Open(gormpostgres.Open(dsn), gormConfig)
	require.NoError(t, err, "Failed to connect to database")

	sqlDB, err := db.DB()
	require.NoError(t, err, "Failed to get underlying SQL DB")

	// A small pool is plenty; the suite runs tests sequentially
	sqlDB.SetMaxOpenConns(5)
	sqlDB.SetMaxIdleConns(2)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	return db, sqlDB
}

func applyMigrations(t *testing.T, sqlDB *sql.DB) {
	t.Helper()

	migrationsPath := migrationsDir()
	require.NotEmpty(t, migrationsPath, "Could not find migrations directory")

	driver, err := mpg.WithInstance(sqlDB, &mpg.Config{})
	require.NoError(t, err, "Failed to create migration driver")

	m, err := migrate.NewWithDatabaseInstance(
		"file://"+migrationsPath,
		"postgres",
		driver,
	)
	require.NoError(t, err, "Failed to create migrate instance")

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		require.NoError(t, err, "Failed to run migrations")
	}
}

// migrationsDir walks up from this file until it finds the migrations
// directory, so tests work from any package the runner starts in.
func migrationsDir() string {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		return ""
	}

	dir := filepath.Dir(filename)
	for i := 0; i < 5; i++ {
		migrationsPath := filepath.Join(dir, "migrations")
		if _, err := os.Stat(migrationsPath); err == nil {
			return migrationsPath
		}
		dir = filepath.Dir(dir)
	}

	if wd, err := os.Getwd(); err == nil {
		for _, p := range []string{
			filepath.Join(wd, "migrations"),
			filepath.Join(wd, "..", "migrations"),
			filepath.Join(wd, "..", "..", "migrations"),
		} {
			if _, err := os.Stat(p); err == nil {
				return p
			}
		}
	}

	return ""
}
