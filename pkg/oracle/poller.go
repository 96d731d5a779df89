package oracle

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"
)

// Source is one upstream oracle feed.
type Source interface {
	ID() string
	Fetch(ctx context.Context, vaultID string) (Reading, error)
}

// Metrics counts poller activity across all rounds.
type Metrics struct {
	QueriesTotal *xsync.Counter
	Failures     *xsync.Counter
}

func NewMetrics() *Metrics {
	return &Metrics{
		QueriesTotal: xsync.NewCounter(),
		Failures:     xsync.NewCounter(),
	}
}

// Poller fans out to all sources concurrently and collects whatever arrives
// within the per-source timeout. Slow or failing sources cost a counter
// increment, never the round.
type Poller struct {
	Logger  *zap.Logger
	Config  Config
	Sources []Source
	Metrics *Metrics

	pool pond.Pool
}

func NewPoller(logger *zap.Logger, cfg Config, sources []Source, metrics *Metrics) *Poller {
	return &Poller{
		Logger:  logger,
		Config:  cfg,
		Sources: sources,
		Metrics: metrics,
		pool:    pond.NewPool(len(sources), pond.WithQueueSize(len(sources)*4)),
	}
}

// Poll fetches a reading from every source in parallel.
func (p *Poller) Poll(ctx context.Context, vaultID string) []Reading {
	var (
		mu       sync.Mutex
		readings []Reading
	)

	group := p.pool.NewGroupContext(ctx)
	groupCtx := group.Context()

	for _, src := range p.Sources {
		group.Submit(func() {
			if err := groupCtx.Err(); err != nil {
				return
			}
			p.Metrics.QueriesTotal.Inc()

			fetchCtx, cancel := context.WithTimeout(groupCtx, p.Config.Timeout)
			defer cancel()

			reading, err := src.Fetch(fetchCtx, vaultID)
			if err != nil {
				p.Metrics.Failures.Inc()
				p.Logger.Warn("oracle fetch failed",
					zap.String("oracleId", src.ID()),
					zap.String("vaultId", vaultID),
					zap.Error(err))
				return
			}

			mu.Lock()
			readings = append(readings, reading)
			mu.Unlock()
		})
	}

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, pond.ErrGroupStopped) {
		p.Logger.Warn("oracle poll round encountered error",
			zap.String("vaultId", vaultID),
			zap.Error(err))
	}

	return readings
}

// PollConsensus runs a full round: fan-out fetch then consensus aggregation.
func (p *Poller) PollConsensus(ctx context.Context, vaultID string) (Result, error) {
	return Consensus(time.Now(), p.Config, p.Poll(ctx, vaultID))
}

// Stop releases the worker pool.
func (p *Poller) Stop() {
	p.pool.StopAndWait()
}
