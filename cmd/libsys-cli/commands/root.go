package commands

import (
	"context"
	"fmt"
	"os"
	"webopac/cmd/libsys-cli/globals"
	"webopac/internal/components/chrono"
	"webopac/internal/components/telemetry"
	"webopac/internal/config"
	"webopac/internal/libsys"
	"webopac/internal/sessionstore"

	"github.com/spf13/cobra"
)

var (
	configName string
	jsonOutput bool
	debug      bool
	account    string
)

var rootCmd = &cobra.Command{
	Use:   "libsys-cli",
	Short: "libsys-cli reads your library account and catalog from the command line.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		telemetry.InitSlog(debug, false)

		cfg, err := config.Load(configName)
		if err != nil {
			return err
		}
		clock, err := chrono.NewStandardImpl()
		if err != nil {
			return err
		}
		tel := telemetry.SlogAPI{}

		client, err := libsys.NewClient(libsys.Options{
			BaseUrl:          cfg.Library.BaseUrl,
			Timeout:          cfg.Timeout(),
			CloudflareBypass: cfg.Request.CloudflareBypass,
			DumpMessages:     cfg.Request.DumpMessages,
		}, clock, tel)
		if err != nil {
			return err
		}
		db, err := sessionstore.OpenDB(cfg.Sessions.Db)
		if err != nil {
			return err
		}

		cmd.SetContext(globals.Set(cmd.Context(), &globals.Value{
			Config:  cfg,
			Client:  client,
			DB:      db,
			Store:   sessionstore.NewStore(db, clock),
			Clock:   clock,
			Tel:     tel,
			Json:    jsonOutput,
			Account: account,
		}))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		globals.Get(cmd.Context()).DB.Close()
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configName, "config", "c", config.DefaultName, "name of the config file, searched for from the working directory upwards")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print raw result envelopes as json")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&account, "account", "a", "", "account whose stored session is used, optional when only one is stored")
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
