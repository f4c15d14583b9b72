// Package testutil carries the shared fixtures for ledger unit tests: a
// sqlmock-backed GORM handle and deterministic IDs so expected values can
// be written inline.
package testutil

import (
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// MockDB bundles a GORM handle with the sqlmock driving it.
type MockDB struct {
	DB    *gorm.DB
	Mock  sqlmock.Sqlmock
	SqlDB *sql.DB
}

// NewMockDB opens a GORM connection over sqlmock. The default transaction
// wrapper is skipped so expectations match the repository SQL one to one.
// Cleanup closes the connection when the test ends.
func NewMockDB(t *testing.T) *MockDB {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err, "Failed to create sqlmock")

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err, "Failed to open GORM connection")

	t.Cleanup(func() { mockDB.Close() })

	return &MockDB{
		DB:    gormDB,
		Mock:  mock,
		SqlDB: mockDB,
	}
}

// ExpectationsWereMet fails the test if any expected query never ran.
func (m *MockDB) ExpectationsWereMet(t *testing.T) {
	t.Helper()
	require.NoError(t, m.Mock.ExpectationsWereMet(), "Unmet database expectations")
}

// NewTestUUID derives a reproducible UUID from a seed, so a test can name
// the same product or batch in both the fixture and the assertion.
func NewTestUUID(seed string) uuid.UUID {
	namespace := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	return uuid.NewSHA1(namespace, []byte(seed))
}

// TestActorID is the terminal operator used across fixtures.
func TestActorID() uuid.UUID {
	return NewTestUUID("test-actor")
}

// TestLocationID is the dispensing location used across fixtures.
func TestLocationID() uuid.UUID {
	return NewTestUUID("test-location")
}
