package hook

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ayusman/reptrack/internal/metrics"
	"github.com/ayusman/reptrack/internal/store"
)

// Bindings looks up the enabled bindings for an event.
type Bindings interface {
	ListEnabled(event store.HookEvent) ([]*store.Hook, error)
}

// Dispatcher fires the plugins bound to counter events. Firing never blocks
// the caller; results are only logged and counted.
type Dispatcher struct {
	bindings Bindings
	manager  *Manager
	executor *Executor
	logger   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

// NewDispatcher creates a Dispatcher. A nil logger discards output.
func NewDispatcher(bindings Bindings, manager *Manager, executor *Executor, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		bindings: bindings,
		manager:  manager,
		executor: executor,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Fire runs every enabled binding for event in the background, in creation order.
func (d *Dispatcher) Fire(event store.HookEvent, count int) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.wg.Add(1)
	d.mu.Unlock()

	at := time.Now()
	go func() {
		defer d.wg.Done()

		hooks, err := d.bindings.ListEnabled(event)
		if err != nil {
			d.logger.Error("failed to load hook bindings", zap.String("event", string(event)), zap.Error(err))
			return
		}

		for _, h := range hooks {
			d.run(h, count, at)
		}
	}()
}

func (d *Dispatcher) run(h *store.Hook, count int, at time.Time) {
	event := string(h.Event)
	log := d.logger.With(
		zap.String("hook", h.ID),
		zap.String("plugin", h.PluginName),
		zap.String("action", h.ActionName),
	)

	plugin, err := d.manager.Get(h.PluginName)
	if err != nil {
		log.Warn("hook plugin not installed")
		metrics.HookExecutionsTotal.WithLabelValues(event, "missing").Inc()
		return
	}
	if !plugin.Manifest.Supports(h.ActionName) {
		log.Warn("hook action not declared by plugin")
		metrics.HookExecutionsTotal.WithLabelValues(event, "missing").Inc()
		return
	}

	resp, err := d.executor.Execute(d.ctx, plugin, &Request{
		Event:     event,
		Action:    h.ActionName,
		Count:     count,
		Timestamp: at,
		Config:    h.Config,
	})
	switch {
	case err != nil:
		log.Error("hook execution failed", zap.Error(err))
		metrics.HookExecutionsTotal.WithLabelValues(event, "error").Inc()
	case !resp.Success:
		log.Warn("hook reported failure", zap.String("error", resp.Error))
		metrics.HookExecutionsTotal.WithLabelValues(event, "failed").Inc()
	default:
		log.Debug("hook executed", zap.Int("count", count))
		metrics.HookExecutionsTotal.WithLabelValues(event, "ok").Inc()
	}
}

// Wait blocks until every in-flight firing has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Close kills running plugins and waits for them to exit. Later Fire calls are ignored.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	d.cancel()
	d.wg.Wait()
}
