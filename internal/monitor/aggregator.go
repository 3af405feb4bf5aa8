package monitor

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// DefaultInterval is the collection period of the serve command.
const DefaultInterval = 5 * time.Second

// Default returns the monitors used by the train and serve commands.
func Default(paths ...string) []Monitor {
	return []Monitor{
		NewCPUMonitor(),
		NewMemoryMonitor(),
		NewStorageMonitor(paths),
	}
}

// Collect runs every monitor once. Failing monitors are logged and leave
// their section of the state empty.
func Collect(monitors []Monitor, logger *slog.Logger) *HostState {
	state := &HostState{
		Timestamp: time.Now(),
		Storage:   make(StorageState),
	}

	for _, m := range monitors {
		data, err := m.Collect()
		if err != nil {
			if logger != nil {
				logger.Warn("monitor collection failed",
					"monitor", m.Name(),
					"error", err,
				)
			}
			continue
		}

		switch v := data.(type) {
		case *CPUState:
			state.CPU = *v
		case *MemoryState:
			state.Memory = *v
		case StorageState:
			state.Storage = v
		}
	}

	return state
}

// Aggregator keeps the latest HostState refreshed in the background.
type Aggregator struct {
	monitors []Monitor
	state    *HostState
	interval time.Duration
	mu       sync.RWMutex
	done     chan struct{}
	stopOnce sync.Once
	logger   *slog.Logger
}

func NewAggregator(monitors []Monitor, interval time.Duration, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		monitors: monitors,
		state:    &HostState{},
		interval: interval,
		done:     make(chan struct{}),
		logger:   logger,
	}
}

func (a *Aggregator) Start(ctx context.Context) error {
	a.collect()

	go a.runLoop(ctx)

	a.logger.Info("aggregator started", "interval", a.interval, "monitors", len(a.monitors))
	return nil
}

func (a *Aggregator) Stop() error {
	a.stopOnce.Do(func() {
		close(a.done)
		a.logger.Info("aggregator stopped")
	})
	return nil
}

func (a *Aggregator) GetState() *HostState {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state.Clone()
}

func (a *Aggregator) GetStateJSON() ([]byte, error) {
	return json.Marshal(a.GetState())
}

func (a *Aggregator) runLoop(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.collect()
		case <-ctx.Done():
			return
		case <-a.done:
			return
		}
	}
}

func (a *Aggregator) collect() {
	state := Collect(a.monitors, a.logger)

	a.mu.Lock()
	a.state = state
	a.mu.Unlock()
}
