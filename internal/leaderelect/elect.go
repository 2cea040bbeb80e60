// Package leaderelect wraps etcd's concurrency.Election so the C7
// billing-fanout singleton (and similar cluster-wide-exactly-one jobs) can
// campaign for exclusive ownership instead of every node running the same
// periodic job redundantly.
package leaderelect

import (
	"context"
	"fmt"

	"go.etcd.io/etcd/client/v3/concurrency"

	"coreledger/internal/etcd"
)

// Elector campaigns for leadership of one named role under a shared etcd
// session/election key.
type Elector struct {
	session  *concurrency.Session
	election *concurrency.Election
}

// New creates an Elector for key, using a fresh etcd session with the given
// TTL in seconds.
func New(etcdClient *etcd.Client, key string, ttlSeconds int) (*Elector, error) {
	session, err := etcdClient.NewSession(context.Background(), ttlSeconds)
	if err != nil {
		return nil, fmt.Errorf("leaderelect: new session: %w", err)
	}
	return &Elector{
		session:  session,
		election: etcdClient.NewElection(session, key),
	}, nil
}

// Campaign blocks until this node becomes leader, ctx is cancelled, or the
// session expires.
func (e *Elector) Campaign(ctx context.Context, nodeID string) error {
	return e.election.Campaign(ctx, nodeID)
}

// Resign gives up leadership so another campaigning node can take over.
func (e *Elector) Resign(ctx context.Context) error {
	return e.election.Resign(ctx)
}

// Close releases the underlying etcd session/lease.
func (e *Elector) Close() error {
	return e.session.Close()
}
