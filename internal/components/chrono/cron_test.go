package chrono

import (
	"errors"
	"testing"
	"webopac/internal/components/telemetry"

	"github.com/stretchr/testify/require"
)

func TestFormatKeyValues(t *testing.T) {
	require.Equal(t, []any{"now: 1", "entry: 2"}, formatKeyValues([]any{"now", 1, "entry", 2}))
	require.Equal(t, []any{"now: 1", "dangling"}, formatKeyValues([]any{"now", 1, "dangling"}))
	require.Empty(t, formatKeyValues(nil))
}

func TestCronLoggerReports(t *testing.T) {
	tel := &telemetry.Recorder{}
	logger := cronLogger{tel: tel}

	logger.Info("wake", "now", 1)
	logger.Error(errors.New("boom"), "run", "entry", 2)

	require.Len(t, tel.Reports("debug"), 1)
	broken := tel.Reports("broken")
	require.Len(t, broken, 1)
	require.Equal(t, "cron", broken[0].Id)
}

func TestStandardCronSchedules(t *testing.T) {
	clock, err := NewStandardImpl()
	require.NoError(t, err)
	cron := NewStandardCron(clock, &telemetry.Recorder{})
	defer cron.Stop()

	require.True(t, cron.Next().IsZero())
	require.Error(t, cron.Cron("not a schedule", func() {}))

	require.NoError(t, cron.Cron("0 8 * * *", func() {}))
	next := cron.Next()
	require.False(t, next.IsZero())
	require.Equal(t, 8, next.In(clock.Location()).Hour())
}
