package server

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/execution-cfg/pkg/common"
)

const mb = 1024 * 1024

// MemoryStatsCollector exports runtime memory statistics and warns when
// analyses push the heap past the configured thresholds.
type MemoryStatsCollector struct {
	log    logrus.FieldLogger
	config MemoryMonitorConfig

	stopOnce sync.Once
	stopCh   chan struct{}

	maxAlloc uint64
}

func NewMemoryStatsCollector(log logrus.FieldLogger, config MemoryMonitorConfig) *MemoryStatsCollector {
	return &MemoryStatsCollector{
		log:    log.WithField("component", "memory_stats_collector"),
		config: config,
		stopCh: make(chan struct{}),
	}
}

func (m *MemoryStatsCollector) Start(ctx context.Context) {
	if !m.config.Enabled {
		return
	}

	m.log.WithFields(logrus.Fields{
		"interval":              m.config.Interval,
		"warning_threshold_mb":  m.config.WarningThresholdMB,
		"critical_threshold_mb": m.config.CriticalThresholdMB,
	}).Info("Starting memory stats collector")

	go m.run(ctx)
}

func (m *MemoryStatsCollector) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

func (m *MemoryStatsCollector) run(ctx context.Context) {
	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	m.collect()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.collect()
		}
	}
}

// level returns the pressure level of allocMB, or "" below the warning
// threshold.
func (m *MemoryStatsCollector) level(allocMB uint64) string {
	switch {
	case allocMB > m.config.CriticalThresholdMB:
		return "critical"
	case allocMB > m.config.WarningThresholdMB:
		return "warning"
	default:
		return ""
	}
}

func (m *MemoryStatsCollector) collect() {
	var stats runtime.MemStats

	runtime.ReadMemStats(&stats)

	common.MemoryUsage.WithLabelValues("alloc").Set(float64(stats.Alloc))
	common.MemoryUsage.WithLabelValues("sys").Set(float64(stats.Sys))
	common.MemoryUsage.WithLabelValues("heap_alloc").Set(float64(stats.HeapAlloc))
	common.MemoryUsage.WithLabelValues("heap_sys").Set(float64(stats.HeapSys))
	common.GoroutineCount.Set(float64(runtime.NumGoroutine()))

	m.maxAlloc = max(m.maxAlloc, stats.Alloc)

	fields := logrus.Fields{
		"alloc_mb":      stats.Alloc / mb,
		"sys_mb":        stats.Sys / mb,
		"heap_alloc_mb": stats.HeapAlloc / mb,
		"max_alloc_mb":  m.maxAlloc / mb,
		"goroutines":    runtime.NumGoroutine(),
		"num_gc":        stats.NumGC,
	}

	switch level := m.level(stats.Alloc / mb); level {
	case "critical":
		common.MemoryPressureEvents.WithLabelValues(level).Inc()
		m.log.WithFields(fields).Error("Critical memory usage detected")
	case "warning":
		common.MemoryPressureEvents.WithLabelValues(level).Inc()
		m.log.WithFields(fields).Warn("High memory usage detected")
	default:
		m.log.WithFields(fields).Debug("Memory usage summary")
	}
}
