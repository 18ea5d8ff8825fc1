package replay

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// RunSweeper calls s.Sweep every interval until ctx is done.
func RunSweeper(ctx context.Context, s Sweeper, interval time.Duration, log *zap.Logger) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := s.Sweep(ctx)
			if err != nil {
				log.Warn("replay sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				log.Debug("replay reservations swept", zap.Int64("removed", n))
			}
		}
	}
}
