// Package billingfanout implements the billing-cycle fan-out singleton
// (§4.7): on each externally-scheduled BillingCycleFanout tick, stream every
// account id eligible for a billing cycle from the read model, throttle
// delivery through a token bucket, and emit StartBillingCycle against each
// one through the sharded account route.
package billingfanout

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"coreledger/internal/account"
	"coreledger/internal/broadcast"
	"coreledger/internal/leaderelect"
)

// FinishedTopic is where the fan-out broadcasts its own BillingCycleFinished
// signal once a pass's account stream is exhausted.
const FinishedTopic = "billing_fanout.finished"

// AccountRuntime is the slice of entityruntime.Runtime[account...] the
// fan-out needs to deliver StartBillingCycle.
type AccountRuntime interface {
	Ask(ctx context.Context, accountID uuid.UUID, cmd account.Command) (account.Event, error)
}

// Config tunes the read-model lookback window and the token-bucket throttle
// gating how fast accounts are enqueued.
type Config struct {
	Lookback     time.Duration
	ThrottleRate rate.Limit
	ThrottleBurst int
}

// DefaultConfig matches §4.7's ~monthly cadence: a 27-day lookback mirroring
// the maintenance-fee window, throttled to 20 accounts/sec with a burst of
// 20.
var DefaultConfig = Config{Lookback: account.MaintenanceFeeLookback, ThrottleRate: 20, ThrottleBurst: 20}

// Fanout drives one billing-cycle pass.
type Fanout struct {
	reader   ActiveAccountReader
	accounts AccountRuntime
	bus      broadcast.PubSub
	elector  *leaderelect.Elector
	cfg      Config
	log      *zap.Logger
}

// New builds a Fanout. elector may be nil for a single-node deployment,
// in which case this node always runs the pass.
func New(reader ActiveAccountReader, accounts AccountRuntime, bus broadcast.PubSub, elector *leaderelect.Elector, cfg Config, log *zap.Logger) *Fanout {
	if cfg.ThrottleRate == 0 {
		cfg = DefaultConfig
	}
	return &Fanout{reader: reader, accounts: accounts, bus: bus, elector: elector, cfg: cfg, log: log}
}

// Trigger runs one BillingCycleFanout pass: if an elector is configured, it
// campaigns for leadership first so only one cluster node actually streams
// and enqueues accounts for this tick.
func (f *Fanout) Trigger(ctx context.Context, nodeID string) error {
	if f.elector != nil {
		if err := f.elector.Campaign(ctx, nodeID); err != nil {
			return err
		}
		defer f.elector.Resign(context.Background())
	}
	return f.run(ctx)
}

func (f *Fanout) run(ctx context.Context) error {
	limiter := rate.NewLimiter(f.cfg.ThrottleRate, f.cfg.ThrottleBurst)

	ids, errc := f.reader.Stream(ctx, f.cfg.Lookback)
	count := 0
	for id := range ids {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
		if _, err := f.accounts.Ask(ctx, id, account.Command{
			Envelope: account.Envelope{
				EntityID:      id,
				CorrelationID: uuid.New(),
				InitiatedByID: id,
				Timestamp:     time.Now(),
			},
			Kind: account.CmdStartBillingCycle,
		}); err != nil && f.log != nil {
			f.log.Warn("start billing cycle rejected", zap.String("account_id", id.String()), zap.Error(err))
		}
		count++
	}
	if err := <-errc; err != nil {
		return err
	}

	if f.log != nil {
		f.log.Info("billing cycle fanout finished", zap.Int("accounts_enqueued", count))
	}
	if f.bus != nil {
		_ = f.bus.Publish(ctx, FinishedTopic, map[string]any{"accounts_enqueued": count, "finished_at": time.Now()})
	}
	return nil
}
