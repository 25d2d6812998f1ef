// Package watchdog keeps the served topology in line with its description
// file.
package watchdog

import (
	"os"
	"sync"
	"time"

	"github.com/cespare/xxhash"
	"github.com/pkg/errors"

	"github.com/DrC0ns0le/net-alto/internal/metrics"
	"github.com/DrC0ns0le/net-alto/internal/topology"
	"github.com/DrC0ns0le/net-alto/pkg/logging"
)

// NotifyFunc is called after every reload attempt with the topology now
// being served (nil if none) and the error of the attempt.
type NotifyFunc func(current *topology.Topology, err error)

// TopologyWatchdog polls the description file and swaps in a rebuilt
// topology whenever the file content changes.
type TopologyWatchdog struct {
	filename string
	interval time.Duration
	holder   *topology.Holder
	notify   []NotifyFunc
	logger   logging.Logger

	mu       sync.Mutex
	lastHash uint64
	seen     bool

	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewTopologyWatchdog(filename string, interval time.Duration, holder *topology.Holder, logger logging.Logger) *TopologyWatchdog {
	return &TopologyWatchdog{
		filename: filename,
		interval: interval,
		holder:   holder,
		logger:   logger.With("component", "watchdog", "file", filename),
		stopCh:   make(chan struct{}),
	}
}

// OnReload registers fn to run after each reload attempt. Not safe to call
// once the watchdog is started.
func (w *TopologyWatchdog) OnReload(fn NotifyFunc) {
	w.notify = append(w.notify, fn)
}

func (w *TopologyWatchdog) Name() string { return "watchdog" }

// Start loads the description once and then polls it until Stop.
func (w *TopologyWatchdog) Start() error {
	if _, err := w.Reload(); err != nil {
		w.logger.Errorf("initial topology load failed: %v", err)
	}

	w.logger.Infof("starting topology watchdog, polling every %s", w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-w.stopCh:
			return nil
		case <-ticker.C:
			if _, _, err := w.Check(); err != nil {
				w.logger.Errorf("topology reload failed: %v", err)
			}
		}
	}
}

func (w *TopologyWatchdog) Stop() error {
	w.stopOnce.Do(func() { close(w.stopCh) })
	return nil
}

// Reload rebuilds the topology from the file whether or not it changed.
func (w *TopologyWatchdog) Reload() (*topology.Topology, error) {
	t, _, err := w.reload(true)
	return t, err
}

// Check reloads the topology only if the file content changed since the
// last attempt. Content that fails to build is reported once.
func (w *TopologyWatchdog) Check() (*topology.Topology, bool, error) {
	return w.reload(false)
}

func (w *TopologyWatchdog) reload(force bool) (*topology.Topology, bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	raw, err := os.ReadFile(w.filename)
	if err != nil {
		err = errors.Wrapf(err, "error reading topology %s", w.filename)
		w.done(err)
		return nil, false, err
	}

	sum := xxhash.Sum64(raw)
	if !force && w.seen && sum == w.lastHash {
		return w.holder.Load(), false, nil
	}
	w.lastHash, w.seen = sum, true

	t, err := w.build(raw)
	if err == nil {
		err = w.holder.Swap(t)
	}
	if err != nil {
		w.done(err)
		return nil, true, err
	}

	w.logger.Infof("topology loaded: %d devices, %d links, hash %016x", t.Len(), len(t.Links()), t.Hash())
	w.done(nil)
	return t, true, nil
}

func (w *TopologyWatchdog) build(raw []byte) (*topology.Topology, error) {
	desc, err := topology.Decode(raw, topology.FormatOf(w.filename))
	if err != nil {
		return nil, errors.WithMessagef(err, "topology %s", w.filename)
	}
	return topology.New(desc)
}

func (w *TopologyWatchdog) done(err error) {
	current := w.holder.Load()
	if err != nil {
		metrics.TopologyReloads.WithLabelValues(metrics.OutcomeFailure).Inc()
	} else {
		metrics.TopologyReloads.WithLabelValues(metrics.OutcomeSuccess).Inc()
	}
	if current != nil {
		metrics.TopologyDevices.Set(float64(current.Len()))
	}
	for _, fn := range w.notify {
		fn(current, err)
	}
}
