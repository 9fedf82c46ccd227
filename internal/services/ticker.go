package services

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrWorkerAlreadyStarted = errors.New("worker already started")

type workerTicker interface {
	Chan() <-chan time.Time
	Stop()
}

type realTicker struct {
	ticker *time.Ticker
}

func newRealTicker(interval time.Duration) *realTicker {
	return &realTicker{ticker: time.NewTicker(interval)}
}

func (t *realTicker) Chan() <-chan time.Time {
	return t.ticker.C
}

func (t *realTicker) Stop() {
	t.ticker.Stop()
}

// periodicLoop runs a function on every tick until stopped or until the
// start context is done. The zero value uses a real ticker.
type periodicLoop struct {
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	tickerFactory func(interval time.Duration) workerTicker
}

func (l *periodicLoop) start(ctx context.Context, interval time.Duration, fn func(context.Context)) error {
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return ErrWorkerAlreadyStarted
	}
	stopCh := make(chan struct{})
	doneCh := make(chan struct{})
	var ticker workerTicker
	if l.tickerFactory != nil {
		ticker = l.tickerFactory(interval)
	} else {
		ticker = newRealTicker(interval)
	}
	l.running = true
	l.stopCh = stopCh
	l.doneCh = doneCh
	l.mu.Unlock()

	go func() {
		defer close(doneCh)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stopCh:
				return
			case <-ticker.Chan():
				fn(ctx)
			}
		}
	}()
	return nil
}

func (l *periodicLoop) stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	stopCh := l.stopCh
	doneCh := l.doneCh
	l.running = false
	l.stopCh = nil
	l.doneCh = nil
	l.mu.Unlock()

	close(stopCh)
	<-doneCh
}
