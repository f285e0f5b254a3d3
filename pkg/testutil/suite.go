package testutil

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/medflow/medflow-stock/pkg/config"
	"github.com/medflow/medflow-stock/pkg/database"
	"github.com/medflow/medflow-stock/pkg/logger"
)

var (
	// Global test container (shared across all integration tests)
	globalContainer *PostgresContainer
	globalDB        *sqlx.DB
	containerOnce   sync.Once
	containerErr    error
)

// IntegrationSuite provides a base for integration tests with real PostgreSQL
type IntegrationSuite struct {
	Container *PostgresContainer
	RawDB     *sqlx.DB
	Schemas   *SchemaManager
	Logger    *logger.Logger
}

// NewIntegrationSuite creates a new integration test suite.
// Call this in TestMain to set up shared test infrastructure.
//
// Usage:
//
//	var suite *testutil.IntegrationSuite
//
//	func TestMain(m *testing.M) {
//	    ctx := context.Background()
//	    var err error
//	    suite, err = testutil.NewIntegrationSuite(ctx)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    code := m.Run()
//	    suite.Cleanup(ctx)
//	    os.Exit(code)
//	}
//
//	func TestSomething(t *testing.T) {
//	    db := suite.SetupStockSchema(t, context.Background())
//	    // ... run tests against db
//	}
func NewIntegrationSuite(ctx context.Context) (*IntegrationSuite, error) {
	container, db, err := getOrCreateContainer(ctx)
	if err != nil {
		return nil, err
	}

	return &IntegrationSuite{
		Container: container,
		RawDB:     db,
		Schemas:   NewSchemaManager(db, container.DSN),
		Logger:    logger.New("test", "test"),
	}, nil
}

// getOrCreateContainer returns the shared test container
func getOrCreateContainer(ctx context.Context) (*PostgresContainer, *sqlx.DB, error) {
	containerOnce.Do(func() {
		globalContainer, containerErr = NewPostgresContainer(ctx, DefaultPostgresConfig())
		if containerErr != nil {
			return
		}
		globalDB, containerErr = globalContainer.Connect(ctx)
	})

	return globalContainer, globalDB, containerErr
}

// SetupSchema creates an isolated schema with migrations for a specific test
// and returns a pool whose connections are pinned to it.
func (s *IntegrationSuite) SetupSchema(t *testing.T, ctx context.Context, migrations []string) *database.DB {
	t.Helper()

	schema, err := s.Schemas.Create(ctx, migrations)
	if err != nil {
		t.Fatalf("failed to create test schema: %v", err)
	}

	db, err := s.Schemas.Connect(schema, s.Logger)
	if err != nil {
		t.Fatalf("failed to connect to test schema: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
		if err := s.Schemas.Drop(context.Background(), schema); err != nil {
			t.Logf("warning: failed to drop schema %s: %v", schema, err)
		}
	})

	return db
}

// SetupStockSchema creates a schema with the stock engine migrations
func (s *IntegrationSuite) SetupStockSchema(t *testing.T, ctx context.Context) *database.DB {
	return s.SetupSchema(t, ctx, StockMigrations())
}

// Cleanup cleans up all test resources
// The shared container is left running; see TerminateContainer.
func (s *IntegrationSuite) Cleanup(ctx context.Context) error {
	return s.Schemas.Cleanup(ctx)
}

// TerminateContainer terminates the shared container.
// Only call this in TestMain after all tests have completed.
func TerminateContainer(ctx context.Context) {
	if globalContainer != nil {
		globalContainer.Terminate(ctx)
	}
}

// SchemaManager creates and drops one schema per test
type SchemaManager struct {
	db      *sqlx.DB
	dsn     string
	schemas []string
	mu      sync.Mutex
}

// NewSchemaManager creates a schema manager for the container behind db
func NewSchemaManager(db *sqlx.DB, dsn string) *SchemaManager {
	return &SchemaManager{db: db, dsn: dsn}
}

// Create makes a fresh schema and applies migrations inside it
func (sm *SchemaManager) Create(ctx context.Context, migrations []string) (string, error) {
	name := "test_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]

	if _, err := sm.db.ExecContext(ctx, fmt.Sprintf("CREATE SCHEMA %s", name)); err != nil {
		return "", fmt.Errorf("failed to create schema: %w", err)
	}

	sm.mu.Lock()
	sm.schemas = append(sm.schemas, name)
	sm.mu.Unlock()

	// search_path is per session, so migrate on a single connection
	conn, err := sm.db.Connx(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, fmt.Sprintf("SET search_path TO %s", name)); err != nil {
		return "", fmt.Errorf("failed to set search_path: %w", err)
	}
	for _, migration := range migrations {
		if _, err := conn.ExecContext(ctx, migration); err != nil {
			return "", fmt.Errorf("failed to apply migration: %w", err)
		}
	}
	if _, err := conn.ExecContext(ctx, "SET search_path TO public"); err != nil {
		return "", fmt.Errorf("failed to reset search_path: %w", err)
	}

	return name, nil
}

// Connect opens a pool whose every connection uses schema
func (sm *SchemaManager) Connect(schema string, log *logger.Logger) (*database.DB, error) {
	parsed, err := config.ParseDatabaseURL(sm.dsn)
	if err != nil {
		return nil, err
	}
	return database.NewWithDSN(parsed.WithSearchPath(schema).ToDSN(), log)
}

// Drop removes a schema completely
func (sm *SchemaManager) Drop(ctx context.Context, schema string) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if _, err := sm.db.ExecContext(ctx, fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", schema)); err != nil {
		return fmt.Errorf("failed to drop schema: %w", err)
	}

	for i, tracked := range sm.schemas {
		if tracked == schema {
			sm.schemas = append(sm.schemas[:i], sm.schemas[i+1:]...)
			break
		}
	}
	return nil
}

// Cleanup drops every schema this manager still tracks
func (sm *SchemaManager) Cleanup(ctx context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	var lastErr error
	for _, schema := range sm.schemas {
		if _, err := sm.db.ExecContext(ctx, fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", schema)); err != nil {
			lastErr = err
		}
	}
	sm.schemas = nil
	return lastErr
}

// UnitTestSuite provides a base for unit tests with mocked dependencies
type UnitTestSuite struct {
	MockDB    *MockDB
	Publisher *MockPublisher
	t         *testing.T
}

// NewUnitTestSuite creates a new unit test suite
func NewUnitTestSuite(t *testing.T) *UnitTestSuite {
	return &UnitTestSuite{
		MockDB:    NewMockDB(t),
		Publisher: NewMockPublisher(),
		t:         t,
	}
}

// Cleanup verifies expectations and cleans up
func (s *UnitTestSuite) Cleanup() {
	s.MockDB.ExpectationsWereMet(s.t)
	s.MockDB.Close()
}

// GetEnvOrDefault returns environment variable or default value
func GetEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// IsCI returns true if running in CI environment
func IsCI() bool {
	ciVars := []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL"}
	for _, v := range ciVars {
		if os.Getenv(v) != "" {
			return true
		}
	}
	return false
}
