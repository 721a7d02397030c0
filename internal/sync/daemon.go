package sync

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Priivacy-ai/spec-kitty-sub005/internal/emitter"
)

const (
	daemonBaseInterval = 500 * time.Millisecond
	daemonMaxInterval  = 30 * time.Second
)

// AccessTokenFunc returns the current bearer token; read lazily on every
// sync attempt so a token refresh elsewhere is picked up immediately.
type AccessTokenFunc func() string

// Daemon is the background sync service: a timer that fires SyncOnce at
// an interval governed by daemonBackoff (reset to base on success, double
// capped at 30s on failure), plus an explicit sync_now() flush.
type Daemon struct {
	Client      *Client
	Queue       *Queue
	Scope       emitter.AccountScope
	AccessToken AccessTokenFunc
	Log         *zap.Logger

	backoff *daemonBackoff
	stop    chan struct{}
	done    chan struct{}
}

func NewDaemon(client *Client, queue *Queue, scope emitter.AccountScope, token AccessTokenFunc, log *zap.Logger) *Daemon {
	if log == nil {
		log = zap.NewNop()
	}
	return &Daemon{
		Client:      client,
		Queue:       queue,
		Scope:       scope,
		AccessToken: token,
		Log:         log,
		backoff:     newDaemonBackoff(daemonBaseInterval, daemonMaxInterval),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// Run blocks, firing sync attempts on the backoff-governed interval until
// ctx is cancelled or Stop is called.
func (d *Daemon) Run(ctx context.Context) {
	defer close(d.done)
	timer := time.NewTimer(d.backoff.NextBackOff())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.stop:
			return
		case <-timer.C:
			d.attempt(ctx)
			timer.Reset(d.backoff.NextBackOff())
		}
	}
}

func (d *Daemon) attempt(ctx context.Context) {
	n, err := d.Client.SyncOnce(ctx, d.Queue, d.Scope, d.AccessToken())
	if err != nil {
		d.backoff.OnFailure()
		d.Log.Warn("sync attempt failed", zap.Error(err), zap.Duration("next_interval", d.backoff.NextBackOff()))
		return
	}
	d.backoff.OnSuccess()
	if n > 0 {
		d.Log.Info("sync attempt delivered events", zap.Int("count", n))
	}
}

// SyncNow drains everything the queue currently holds, batch by batch,
// before returning — an explicit flush independent of the timer.
func (d *Daemon) SyncNow(ctx context.Context) error {
	for {
		n, err := d.Client.SyncOnce(ctx, d.Queue, d.Scope, d.AccessToken())
		if err != nil {
			d.backoff.OnFailure()
			return err
		}
		d.backoff.OnSuccess()
		if n == 0 {
			return nil
		}
	}
}

// Stop signals Run to return and waits for it to finish.
func (d *Daemon) Stop() {
	close(d.stop)
	<-d.done
}
