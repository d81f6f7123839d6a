package metrics

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

var (
	systemCPUUsage = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "complaints_system_cpu_usage_percent",
			Help: "Current CPU usage percentage",
		},
		[]string{"core"},
	)

	systemMemoryUsage = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "complaints_system_memory_usage_bytes",
			Help: "Current memory usage in bytes",
		},
		[]string{"type"},
	)

	goMemstatsAllocBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "complaints_go_memstats_alloc_bytes",
			Help: "Number of bytes allocated and still in use",
		},
	)

	goMemstatsSysBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "complaints_go_memstats_sys_bytes",
			Help: "Number of bytes obtained from the system",
		},
	)

	goGoroutines = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "complaints_go_goroutines",
			Help: "Number of goroutines that currently exist",
		},
	)
)

// StartSystemMetrics starts a collection loop that samples host and runtime
// metrics until ctx is cancelled.
func StartSystemMetrics(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				collectSystemMetrics()
				collectGoRuntimeMetrics()
			}
		}
	}()
}

func collectSystemMetrics() {
	if percentages, err := cpu.Percent(0, true); err == nil {
		for i, percentage := range percentages {
			systemCPUUsage.WithLabelValues(fmt.Sprintf("cpu%d", i)).Set(percentage)
		}
	}

	if vmstat, err := mem.VirtualMemory(); err == nil {
		systemMemoryUsage.WithLabelValues("total").Set(float64(vmstat.Total))
		systemMemoryUsage.WithLabelValues("available").Set(float64(vmstat.Available))
		systemMemoryUsage.WithLabelValues("used").Set(float64(vmstat.Used))
		systemMemoryUsage.WithLabelValues("free").Set(float64(vmstat.Free))
	}
}

func collectGoRuntimeMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	goMemstatsAllocBytes.Set(float64(m.Alloc))
	goMemstatsSysBytes.Set(float64(m.Sys))
	goGoroutines.Set(float64(runtime.NumGoroutine()))
}
