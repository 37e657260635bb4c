package telemetry

import (
	"context"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"go.opentelemetry.io/otel"
)

const report_perf_cpu = "perf.cpu"

var perfMeter = otel.Meter("webopac/perf")
var cpuGauge, _ = perfMeter.Float64Gauge("cpu_usage")
var memoryGauge, _ = perfMeter.Int64Gauge("allocated_mb")
var liveObjectsGauge, _ = perfMeter.Int64Gauge("live_objects")
var goroutineGauge, _ = perfMeter.Int64Gauge("goroutine_count")

type perfSample struct {
	cpuPercent  float64
	cpuErr      error
	allocatedMb int64
	liveObjects int64
	goroutines  int64
}

func samplePerf() perfSample {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	sample := perfSample{
		allocatedMb: int64(memStats.Alloc / 1_000_000),
		liveObjects: int64(memStats.Mallocs) - int64(memStats.Frees),
		goroutines:  int64(runtime.NumGoroutine()),
	}
	// 0 compares against the previous call instead of blocking
	usage, err := cpu.Percent(0, false)
	switch {
	case err != nil:
		sample.cpuErr = err
	case len(usage) > 0:
		sample.cpuPercent = usage[0]
	}
	return sample
}

// InstrumentPerfStats records process gauges every interval until ctx is done.
func InstrumentPerfStats(ctx context.Context, tel API, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				sample := samplePerf()
				if sample.cpuErr != nil {
					tel.ReportWarning(report_perf_cpu, sample.cpuErr)
				} else {
					cpuGauge.Record(ctx, sample.cpuPercent)
				}
				memoryGauge.Record(ctx, sample.allocatedMb)
				liveObjectsGauge.Record(ctx, sample.liveObjects)
				goroutineGauge.Record(ctx, sample.goroutines)
			case <-ctx.Done():
				return
			}
		}
	}()
}
