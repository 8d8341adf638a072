package services

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	prefaberrors "github.com/dpup/prefab/errors"
	"github.com/dpup/prefab/logging"
)

// SessionSweeper periodically drops planner sessions nobody has used for a while
type SessionSweeper struct {
	store    *SessionStore
	interval time.Duration
	idle     time.Duration

	mutex    sync.Mutex
	stopChan chan struct{}
	running  bool
}

// NewSessionSweeper creates a sweeper that runs every interval and drops
// sessions idle for longer than idle
func NewSessionSweeper(store *SessionStore, interval, idle time.Duration) *SessionSweeper {
	return &SessionSweeper{
		store:    store,
		interval: interval,
		idle:     idle,
	}
}

// Start begins sweeping in the background until ctx is done or Stop is called
func (p *SessionSweeper) Start(ctx context.Context) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.running {
		return
	}
	p.running = true
	p.stopChan = make(chan struct{})
	ctx = logging.EnsureLogger(ctx)

	logging.Infow(ctx, "Starting session sweeper", "interval", p.interval, "idle", p.idle)
	go p.sweepLoop(ctx, p.stopChan)
}

// Stop halts the background sweep
func (p *SessionSweeper) Stop() {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if !p.running {
		return
	}
	p.running = false
	close(p.stopChan)
}

// IsRunning returns whether the sweeper is active
func (p *SessionSweeper) IsRunning() bool {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.running
}

func (p *SessionSweeper) sweepLoop(ctx context.Context, stop <-chan struct{}) {
	defer p.loopExited(stop)
	defer func() {
		if r := recover(); r != nil {
			stack, _ := prefaberrors.ParseStack(debug.Stack())
			skipFrames := 3
			numFrames := 5
			logging.Errorw(ctx, "Session sweeper: recovered from panic",
				"error", r, "error.stack_trace", stack.MinimalStack(skipFrames, numFrames))
		}
	}()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			if removed := p.store.Sweep(p.idle); removed > 0 {
				logging.Infow(ctx, "Session sweeper: dropped idle sessions", "removed", removed, "remaining", p.store.Len())
			}
		}
	}
}

// loopExited marks the sweeper stopped when its loop ends on its own
func (p *SessionSweeper) loopExited(stop <-chan struct{}) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	// A loop ended by Stop may already have been replaced by a restart
	if p.running && p.stopChan == stop {
		p.running = false
	}
}
