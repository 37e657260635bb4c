package chrono

import (
	"fmt"
	"time"
	"webopac/internal/components/telemetry"

	"github.com/robfig/cron/v3"
)

// CronAPI schedules callbacks on standard 5 field cron expressions,
// evaluated in the portal's timezone.
type CronAPI interface {
	Cron(schedule string, callback func()) error
	// Next is the earliest upcoming run, zero if nothing is scheduled.
	Next() time.Time
	Stop()
}

type StandardCron struct {
	cron *cron.Cron
}

func NewStandardCron(clock API, tel telemetry.API) StandardCron {
	cronner := cron.New(
		cron.WithLogger(cronLogger{tel: tel}),
		cron.WithLocation(clock.Location()),
	)
	cronner.Start()
	return StandardCron{cron: cronner}
}

func (s StandardCron) Cron(schedule string, callback func()) error {
	_, err := s.cron.AddFunc(schedule, callback)
	if err != nil {
		return fmt.Errorf("schedule %q: %w", schedule, err)
	}
	return nil
}

func (s StandardCron) Next() time.Time {
	var next time.Time
	for _, entry := range s.cron.Entries() {
		if next.IsZero() || (!entry.Next.IsZero() && entry.Next.Before(next)) {
			next = entry.Next
		}
	}
	return next
}

// Stop waits for running callbacks to return.
func (s StandardCron) Stop() {
	<-s.cron.Stop().Done()
}

// cronLogger adapts cron's key/value logger onto telemetry reports.
type cronLogger struct {
	tel telemetry.API
}

func formatKeyValues(keysAndValues []any) []any {
	params := make([]any, 0, (len(keysAndValues)+1)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		params = append(params, fmt.Sprintf("%v: %v", keysAndValues[i], keysAndValues[i+1]))
	}
	if len(keysAndValues)%2 == 1 {
		params = append(params, fmt.Sprint(keysAndValues[len(keysAndValues)-1]))
	}
	return params
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.tel.ReportDebug("cron: "+msg, formatKeyValues(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	params := append([]any{fmt.Errorf("%s: %w", msg, err)}, formatKeyValues(keysAndValues)...)
	l.tel.ReportBroken("cron", params...)
}
