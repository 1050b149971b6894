package watchdog

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Watchdog periodically checks a Monitor for stalled runs
type Watchdog struct {
	mu sync.Mutex

	monitor *Monitor

	// Configuration
	interval      time.Duration
	finishStalled bool
	onStall       func(StallInfo)

	// Control
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// State
	running bool
}

// WatchdogConfig holds watchdog loop settings
type WatchdogConfig struct {
	// CheckInterval is the time between stall checks.
	// Default: half the monitor's stall timeout, at least one second
	CheckInterval time.Duration

	// FinishStalled moves stalled runs to the finished window
	FinishStalled bool

	// OnStall is called once for each newly stalled run
	OnStall func(StallInfo)
}

// NewWatchdog creates a watchdog over monitor
func NewWatchdog(monitor *Monitor, cfg *WatchdogConfig) (*Watchdog, error) {
	if monitor == nil {
		return nil, fmt.Errorf("monitor is required")
	}
	if monitor.cfg.StallTimeout <= 0 {
		return nil, fmt.Errorf("monitor has stall detection disabled (stall_timeout=%v)", monitor.cfg.StallTimeout)
	}
	if cfg == nil {
		cfg = &WatchdogConfig{}
	}

	interval := cfg.CheckInterval
	if interval <= 0 {
		interval = monitor.cfg.StallTimeout / 2
		if interval < time.Second {
			interval = time.Second
		}
	}

	return &Watchdog{
		monitor:       monitor,
		interval:      interval,
		finishStalled: cfg.FinishStalled,
		onStall:       cfg.OnStall,
	}, nil
}

// Interval returns the time between checks
func (w *Watchdog) Interval() time.Duration {
	return w.interval
}

// Start begins the stall-check loop
func (w *Watchdog) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("watchdog already running")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.running = true

	w.wg.Add(1)
	go w.loop(loopCtx)

	w.monitor.Logger().Debug("watchdog started", "check_interval", w.interval)
	return nil
}

// Stop halts the loop and waits for it to exit
func (w *Watchdog) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.cancel()
	w.running = false
	w.mu.Unlock()

	w.wg.Wait()
	w.monitor.Logger().Debug("watchdog stopped")
}

func (w *Watchdog) loop(ctx context.Context) {
	defer w.wg.Done()

	timer := time.NewTimer(w.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			w.Check(ctx)
			timer.Reset(w.interval)
		}
	}
}

// Check runs one stall check at the monitor's current time
func (w *Watchdog) Check(ctx context.Context) []StallInfo {
	stalled := w.monitor.CheckStalls(ctx, w.monitor.cfg.Now(), w.finishStalled)
	if w.onStall != nil {
		for _, info := range stalled {
			w.onStall(info)
		}
	}
	return stalled
}
