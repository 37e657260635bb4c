package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSamplePerf(t *testing.T) {
	sample := samplePerf()
	require.Positive(t, sample.goroutines)
	require.Positive(t, sample.liveObjects)
	if sample.cpuErr == nil {
		require.GreaterOrEqual(t, sample.cpuPercent, 0.0)
	}
}

func TestInstrumentPerfStatsStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	tel := &Recorder{}
	InstrumentPerfStats(ctx, tel, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	cancel()
}
