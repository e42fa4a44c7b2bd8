package replication

import (
	"context"
	"time"
)

// Run запускает FullSync сразу и далее по таймеру до отмены контекста.
// interval <= 0 означает однократный запуск.
func (s *Service) Run(ctx context.Context, interval time.Duration) {
	s.FullSync(ctx)
	if interval <= 0 {
		return
	}

	s.log.Info("auto sync started", "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("auto sync stopped")
			return
		case <-ticker.C:
			s.FullSync(ctx)
		}
	}
}
