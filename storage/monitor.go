package storage

import (
	"fmt"
	"sync"
	"time"

	movingaverage "github.com/RobinUS2/golang-moving-average"
	"github.com/golang/glog"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

const monitorWindow = 5

type (
	// Monitor keeps request stats of the stores sharing it.
	Monitor struct {
		sync.Mutex
		period time.Duration
		ops    map[string]*opStats
		stopCh chan struct{}
	}

	opStats struct {
		served   int
		failed   int
		duration *movingaverage.MovingAverage
	}

	// OpReport is a single store operation stats.
	OpReport struct {
		Served int
		Failed int
		// Moving average of the request duration [ms]
		AvgDurMs float64
	}
)

// RequestServed updates the store operation stats.
func (m *Monitor) RequestServed(store, op string, dur time.Duration, err error) {
	m.Lock()
	defer m.Unlock()

	key := store + "." + op
	stats, found := m.ops[key]
	if !found {
		stats = &opStats{duration: movingaverage.New(monitorWindow)}
		m.ops[key] = stats
	}

	stats.served++
	if err != nil {
		stats.failed++
	}
	stats.duration.Add(float64(dur/time.Microsecond) / 1000.0)
}

// Report returns the stats collected since the last report tick, keyed by "store.operation".
func (m *Monitor) Report() map[string]OpReport {
	m.Lock()
	defer m.Unlock()

	report := make(map[string]OpReport, len(m.ops))
	for key, stats := range m.ops {
		report[key] = OpReport{
			Served:   stats.served,
			Failed:   stats.failed,
			AvgDurMs: stats.duration.Avg(),
		}
	}

	return report
}

// Start starts the Monitor worker.
func (m *Monitor) Start() {
	if m.stopCh != nil {
		return
	}

	m.stopCh = make(chan struct{})
	go m.worker()
}

// Stop stops the Monitor worker.
func (m *Monitor) Stop() {
	if m.stopCh == nil {
		return
	}

	close(m.stopCh)
}

// worker does the actual job.
func (m *Monitor) worker() {
	ticker := time.NewTicker(m.period)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			// Stop the monitor
			return
		case <-ticker.C:
			// Print the report
			report := m.Report()
			keys := maps.Keys(report)
			slices.Sort(keys)

			perSec := float64(m.period) / float64(time.Second)
			glog.Infof("Monitor:")
			for _, key := range keys {
				r := report[key]
				glog.Infof("  - %-32s %6.2f req/s, %6.2f fail/s, %8.2f ms avg", key, float64(r.Served)/perSec, float64(r.Failed)/perSec, r.AvgDurMs)
			}
			m.reset()
		}
	}
}

func (m *Monitor) reset() {
	m.Lock()
	defer m.Unlock()

	for _, stats := range m.ops {
		stats.served, stats.failed = 0, 0
	}
}

// NewMonitor creates a new Monitor object reporting every period.
func NewMonitor(period time.Duration) (*Monitor, error) {
	if period <= 0 {
		return nil, fmt.Errorf("%s: must be GT 0", "period")
	}

	return &Monitor{
		period: period,
		ops:    make(map[string]*opStats),
	}, nil
}
