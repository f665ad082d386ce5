package backup

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultAutoBackupInterval is used when StartAutoBackup receives a non-positive interval.
const DefaultAutoBackupInterval = time.Hour

// AutoBackup is the handle of a running auto-backup loop.
type AutoBackup struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// StartAutoBackup writes one snapshot right away and another on every tick until
// ctx is cancelled or Stop is called. Failures are logged and never end the loop.
func (p *Pipeline) StartAutoBackup(ctx context.Context, interval time.Duration) *AutoBackup {
	if interval <= 0 {
		interval = DefaultAutoBackupInterval
	}

	loopCtx, cancel := context.WithCancel(ctx)
	handle := &AutoBackup{
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(handle.done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		p.logger.Info("auto backup started", zap.Duration("interval", interval))
		p.runScheduledBackup(loopCtx)

		for {
			select {
			case <-loopCtx.Done():
				p.logger.Info("auto backup stopped")
				return
			case <-ticker.C:
				p.runScheduledBackup(loopCtx)
			}
		}
	}()

	return handle
}

// Stop cancels future ticks and waits for the loop to exit. A snapshot that is
// already being written runs to completion.
func (a *AutoBackup) Stop() {
	if a == nil {
		return
	}
	a.once.Do(a.cancel)
	<-a.done
}

// Done is closed once the loop has exited.
func (a *AutoBackup) Done() <-chan struct{} {
	return a.done
}

func (p *Pipeline) runScheduledBackup(ctx context.Context) {
	if _, err := p.Backup(context.WithoutCancel(ctx)); err != nil {
		p.logger.Warn("scheduled backup failed", zap.Error(err))
	}
}
