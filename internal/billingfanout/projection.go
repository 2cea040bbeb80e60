package billingfanout

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ActiveAccountReader is the narrow read-model query the fan-out needs:
// every account id currently eligible for a billing cycle.
type ActiveAccountReader interface {
	Stream(ctx context.Context, lookback time.Duration) (<-chan uuid.UUID, <-chan error)
}

// ProjectionStore is a narrow denormalized read model, backed by the same
// database/sql handle the journal uses, that the account actor keeps in
// sync via Upsert as accounts are created, billed, and closed. It exists so
// C7 can answer "which account ids are eligible right now" with a plain SQL
// predicate instead of folding every account's full event stream on every
// fan-out pass.
type ProjectionStore struct {
	db     *sql.DB
	driver string
}

// NewProjectionStore creates the projection table if absent and returns a
// ProjectionStore bound to db. driver must be "postgres" or "sqlite3",
// matching journal.NewSQLStore's convention, so placeholder syntax agrees
// with whichever dialect the journal itself is using.
func NewProjectionStore(db *sql.DB, driver string) (*ProjectionStore, error) {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS account_billing_state (
		account_id TEXT PRIMARY KEY,
		org_id TEXT NOT NULL,
		status TEXT NOT NULL,
		last_billing_cycle_at TIMESTAMP
	)`)
	if err != nil {
		return nil, fmt.Errorf("billingfanout: create projection table: %w", err)
	}
	return &ProjectionStore{db: db, driver: driver}, nil
}

func (p *ProjectionStore) ph(n int) string {
	if p.driver == "postgres" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// Upsert records accountID's current status and, if non-nil, its most
// recent billing cycle timestamp. Called from the account actor's
// PostPersist on Created, BillingCycleStarted, and AccountClosed.
func (p *ProjectionStore) Upsert(ctx context.Context, accountID, orgID uuid.UUID, status string, lastBillingCycle *time.Time) error {
	stmt := fmt.Sprintf(`INSERT INTO account_billing_state (account_id, org_id, status, last_billing_cycle_at)
		VALUES (%s, %s, %s, %s)
		ON CONFLICT (account_id) DO UPDATE SET status = %s, last_billing_cycle_at = COALESCE(%s, account_billing_state.last_billing_cycle_at)`,
		p.ph(1), p.ph(2), p.ph(3), p.ph(4), p.ph(3), p.ph(4))
	_, err := p.db.ExecContext(ctx, stmt, accountID.String(), orgID.String(), status, lastBillingCycle)
	return err
}

// Stream implements ActiveAccountReader: §4.7's
// "SELECT id WHERE status='Active' AND (last_billing_cycle_date IS NULL OR
// < now() - LOOKBACK)".
func (p *ProjectionStore) Stream(ctx context.Context, lookback time.Duration) (<-chan uuid.UUID, <-chan error) {
	out := make(chan uuid.UUID)
	errc := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errc)

		cutoff := time.Now().Add(-lookback)
		query := fmt.Sprintf(`SELECT account_id FROM account_billing_state
			WHERE status = 'active' AND (last_billing_cycle_at IS NULL OR last_billing_cycle_at < %s)`, p.ph(1))
		rows, err := p.db.QueryContext(ctx, query, cutoff)
		if err != nil {
			errc <- fmt.Errorf("billingfanout: query active accounts: %w", err)
			return
		}
		defer rows.Close()

		for rows.Next() {
			var idStr string
			if err := rows.Scan(&idStr); err != nil {
				errc <- err
				return
			}
			id, err := uuid.Parse(idStr)
			if err != nil {
				errc <- err
				return
			}
			select {
			case out <- id:
			case <-ctx.Done():
				errc <- ctx.Err()
				return
			}
		}
		if err := rows.Err(); err != nil {
			errc <- err
		}
	}()

	return out, errc
}
