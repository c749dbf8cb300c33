package poller

import (
	"context"
	"time"
)

// Start runs the built-in interval scheduler. Production deployments that
// trigger polls through the HTTP endpoint leave POLL_INTERVAL unset and
// never reach this loop.
func (p *Poller) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	ticker := p.tickerWithImmediateTick(p.cfg.Poll.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Locking here to wait for an in-flight run to finish
			mu.Lock()

			p.log.Sugar().Info("Poller stopped")
			return

		case <-ticker.C:
			p.Run(ctx)
		}
	}
}

func (p *Poller) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
}

func (p *Poller) tickerWithImmediateTick(interval time.Duration) *time.Ticker {
	withImmediateTick := make(chan time.Time, 1)

	ticker := time.NewTicker(interval)
	tickerC := ticker.C
	go func() {
		withImmediateTick <- time.Now()
		for c := range tickerC {
			withImmediateTick <- c
		}
	}()

	ticker.C = withImmediateTick
	return ticker
}
