package main

import (
	"context"
	"flag"
	"net/http"
	"time"
	"webopac/internal/components/chrono"
	"webopac/internal/components/telemetry"
	"webopac/internal/config"
	"webopac/internal/libsys"
	"webopac/internal/reminder"
	"webopac/internal/sessionstore"
	"webopac/lib/serviceutil"
)

func main() {
	verbose := flag.Bool("v", false, "Enable verbose logging/instrumentation.")
	configName := flag.String("config", config.DefaultName, "Name of the config file, searched for from the working directory upwards.")
	flag.Parse()

	ctx := serviceutil.SignalContext()
	telemetry.InitSlog(*verbose, true)

	cfg, err := config.Load(*configName)
	if err != nil {
		serviceutil.Fatal("read config", err)
	}

	providers, err := telemetry.SetupOtel(ctx, "libsysd", cfg.Telemetry)
	if err != nil {
		serviceutil.Fatal("setup otel", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		providers.Shutdown(shutdownCtx)
	}()

	clock, err := chrono.NewStandardImpl()
	if err != nil {
		serviceutil.Fatal("load timezone", err)
	}
	tel := telemetry.SlogAPI{}
	if providers.MeterProvider != nil {
		telemetry.InstrumentPerfStats(ctx, tel, 30*time.Second)
	}

	client, err := libsys.NewClient(libsys.Options{
		BaseUrl:          cfg.Library.BaseUrl,
		Timeout:          cfg.Timeout(),
		CloudflareBypass: cfg.Request.CloudflareBypass,
		DumpMessages:     cfg.Request.DumpMessages,
	}, clock, tel)
	if err != nil {
		serviceutil.Fatal("create portal client", err)
	}

	db, err := sessionstore.OpenDB(cfg.Sessions.Db)
	if err != nil {
		serviceutil.Fatal("open session db", err)
	}
	defer db.Close()
	store := sessionstore.NewStore(db, clock)

	if cfg.Reminder.Cron != "" {
		cron := chrono.NewStandardCron(clock, tel)
		defer cron.Stop()
		err = InitReminders(ctx, cron, reminder.Reminder{
			Loans:      client,
			Store:      store,
			Sender:     reminder.SmtpSender{Config: reminder.SmtpConfig(cfg.Smtp)},
			Clock:      clock,
			Tel:        telemetry.NewScopedAPI("reminder", tel),
			Within:     cfg.Reminder.Days,
			Recipients: cfg.Reminder.Recipients,
		}, cfg.Reminder.Cron)
		if err != nil {
			serviceutil.Fatal("schedule reminders", err)
		}
		tel.ReportDebug("next reminder run", cron.Next())
	}

	mux := http.NewServeMux()
	NewServer(client, store, tel).Register(mux)

	serviceutil.StartHttpServer(ctx, cfg.Server.Port, mux)
}

// InitReminders schedules a reminder run on the given cron schedule.
func InitReminders(ctx context.Context, cron chrono.CronAPI, r reminder.Reminder, schedule string) error {
	return cron.Cron(schedule, func() {
		outcomes, err := r.Run(ctx)
		if err != nil {
			r.Tel.ReportBroken("run", err)
			return
		}
		r.Tel.ReportDebug("reminder run finished", len(outcomes))
	})
}
