package session

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Sweeper periodically purges rows whose lineage has fully expired and whose
// retention window has elapsed. Revoked rows are kept until the window passes
// so reuse incidents remain auditable.
type Sweeper struct {
	store     Store
	interval  time.Duration
	retainFor time.Duration
	log       zerolog.Logger
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewSweeper builds a Sweeper over store. interval is how often a purge pass
// runs; retainFor is how long terminal rows are kept before deletion.
func NewSweeper(store Store, interval, retainFor time.Duration, log zerolog.Logger) *Sweeper {
	return &Sweeper{
		store:     store,
		interval:  interval,
		retainFor: retainFor,
		log:       log,
	}
}

// Start launches the background purge loop. A pass runs immediately, then on
// every tick until Stop is called.
func (sw *Sweeper) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	sw.cancel = cancel
	sw.done = make(chan struct{})

	go func() {
		defer close(sw.done)

		sw.runOnce(ctx)

		ticker := time.NewTicker(sw.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sw.runOnce(ctx)
			}
		}
	}()
}

// Stop halts the loop and waits for an in-flight pass to finish.
func (sw *Sweeper) Stop() {
	if sw.cancel == nil {
		return
	}
	sw.cancel()
	<-sw.done
}

func (sw *Sweeper) runOnce(ctx context.Context) {
	purged, err := sw.store.PurgeExpired(ctx, sw.retainFor)
	if err != nil {
		sw.log.Warn().Err(err).Msg("session purge failed")
		return
	}
	if purged > 0 {
		sw.log.Info().Int64("purged", purged).Msg("purged expired sessions")
	}
}
