//go:build integration

/*
Package testutil provides testing utilities for integration tests with external services.

# Overview

This package contains infrastructure for running integration tests against real
external services using testcontainers. It's designed to provide high-fidelity
testing while maintaining isolation and reproducibility.

# Postgres Integration Testing

The primary component is PostgresContainer, which manages a Docker-based Postgres
instance for testing the event journal and snapshot store against the real driver
instead of the sqlite fallback used by unit tests.

## Usage

	func TestMain(m *testing.M) {
		ctx := context.Background()

		pg, err := testutil.StartPostgresContainer(ctx)
		if err != nil {
			log.Fatal(err)
		}

		code := m.Run()

		pg.Stop(ctx)
		os.Exit(code)
	}

	func TestJournalAppend(t *testing.T) {
		db, err := pg.Open()
		require.NoError(t, err)
		defer db.Close()

		store, err := journal.NewSQLStore(db, "postgres", nil)
		require.NoError(t, err)
		// exercise store against the live container...
	}

# Build Tags

This package uses the `integration` build tag to prevent accidental inclusion
in regular test runs. Integration tests require Docker and take longer to run.

Run integration tests with:

	go test -tags=integration ./...

# Related Documentation

  - [Testcontainers for Go](https://golang.testcontainers.org/)
*/
package testutil
