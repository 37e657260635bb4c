package commands

import (
	"context"
	"fmt"
	"webopac/cmd/libsys-cli/globals"
	"webopac/internal/reminder"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	remindCmd.Flags().BoolVar(&remindDryRun, "dry-run", false, "print the reminders instead of mailing them")
	rootCmd.AddCommand(remindCmd)
}

var remindDryRun bool

type printSender struct{}

func (printSender) Send(ctx context.Context, to, subject, body string) error {
	fmt.Printf("To: %s\nSubject: %s\n\n%s\n", to, subject, body)
	return nil
}

var remindCmd = &cobra.Command{
	Use:   "remind",
	Short: "Mail every configured reader whose loans are due soon.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		g := globals.Get(ctx)

		var sender reminder.Sender = reminder.SmtpSender{Config: reminder.SmtpConfig(g.Config.Smtp)}
		if remindDryRun {
			sender = printSender{}
		}

		outcomes, err := reminder.Reminder{
			Loans:      g.Client,
			Store:      g.Store,
			Sender:     sender,
			Clock:      g.Clock,
			Tel:        g.Tel,
			Within:     g.Config.Reminder.Days,
			Recipients: g.Config.Reminder.Recipients,
		}.Run(ctx)

		t := newTable()
		t.AppendHeader(table.Row{"account", "result", "due", "sent"})
		for _, o := range outcomes {
			t.AppendRow(table.Row{o.Account, o.Code.String(), o.Due, o.Sent})
		}
		t.Render()
		exitOn(err)
	},
}
