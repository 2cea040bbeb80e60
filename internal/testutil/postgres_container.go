//go:build integration

// Package testutil provides testing utilities for integration tests
package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	// PostgresPort is the port the Postgres container listens on.
	PostgresPort = "5432/tcp"

	// TestDatabaseName is the database created inside the container.
	TestDatabaseName = "coreledger_test"

	// TestDatabaseUser is the superuser created inside the container.
	TestDatabaseUser = "coreledger"

	// TestDatabasePassword is the password for TestDatabaseUser.
	TestDatabasePassword = "test-secret"

	// StartupTimeout bounds how long we wait for Postgres to accept connections.
	StartupTimeout = 60 * time.Second
)

// PostgresContainer wraps a disposable Postgres instance used to exercise the
// event journal and snapshot store against a real driver instead of sqlite.
type PostgresContainer struct {
	Container testcontainers.Container
	DSN       string
}

// StartPostgresContainer starts a Postgres container and returns its connection string.
func StartPostgresContainer(ctx context.Context) (*PostgresContainer, error) {
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{PostgresPort},
		Env: map[string]string{
			"POSTGRES_DB":       TestDatabaseName,
			"POSTGRES_USER":     TestDatabaseUser,
			"POSTGRES_PASSWORD": TestDatabasePassword,
		},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("5432/tcp").WithStartupTimeout(StartupTimeout),
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
		),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("start postgres container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("get container host: %w", err)
	}

	mappedPort, err := container.MappedPort(ctx, "5432")
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("get mapped port: %w", err)
	}

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		TestDatabaseUser, TestDatabasePassword, host, mappedPort.Port(), TestDatabaseName)

	return &PostgresContainer{Container: container, DSN: dsn}, nil
}

// Stop terminates the Postgres container.
func (pc *PostgresContainer) Stop(ctx context.Context) error {
	if pc.Container != nil {
		return pc.Container.Terminate(ctx)
	}
	return nil
}

// Open opens a *sql.DB against the container, retrying briefly since the
// readiness wait strategy can race the first TCP accept.
func (pc *PostgresContainer) Open() (*sql.DB, error) {
	db, err := sql.Open("postgres", pc.DSN)
	if err != nil {
		return nil, err
	}

	var pingErr error
	for i := 0; i < 10; i++ {
		if pingErr = db.Ping(); pingErr == nil {
			return db, nil
		}
		time.Sleep(300 * time.Millisecond)
	}
	db.Close()
	return nil, fmt.Errorf("ping postgres container: %w", pingErr)
}
