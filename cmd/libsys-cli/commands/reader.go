package commands

import (
	"fmt"
	"webopac/cmd/libsys-cli/globals"
	"webopac/internal/libsys"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(profileCmd)
	rootCmd.AddCommand(loansCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(billsCmd)
	rootCmd.AddCommand(debtsCmd)
}

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Show the reader's account.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		client := globals.Get(cmd.Context()).Client
		result := withSession(cmd, client.Profile)
		render(cmd, result, func(p libsys.Profile) {
			t := newTable()
			t.AppendRows([]table.Row{
				{"姓名", p.Name},
				{"性别", p.Sex},
				{"读者类型", p.ReaderType},
				{"借阅等级", p.BorrowLevel},
				{"办证日期", p.CertStart},
				{"生效日期", p.CertWork},
				{"失效日期", p.CertEnd},
				{"累计借书", p.TotalBorrow},
				{"违章次数", p.Violations},
				{"欠款金额", p.Debt},
				{"押金", p.Deposit},
				{"手续费", p.ServiceFee},
				{"最大借阅/预约/委托", fmt.Sprintf("%s / %s / %s", p.MaxBorrow, p.MaxOrder, p.MaxEntrust)},
				{"超期图书", fmt.Sprintf("%s (%s)", p.Overdue, p.OverduePct)},
			})
			t.Render()
		})
	},
}

var loansCmd = &cobra.Command{
	Use:   "loans",
	Short: "List the books currently borrowed.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		client := globals.Get(cmd.Context()).Client
		result := withSession(cmd, client.Loans)
		render(cmd, result, func(list libsys.LoanList) {
			t := newTable()
			t.SetTitle(fmt.Sprintf("%s / %s", list.Now, list.Max))
			t.AppendHeader(table.Row{"条码号", "题名", "责任者", "借阅日期", "应还日期", "续借", "馆藏地", "marc_no"})
			for _, l := range list.Books {
				t.AppendRow(table.Row{l.BarCode, l.Title, l.Author, l.BorrowDate, l.DueDate, l.RenewCount, l.Location, orDash(l.MarcNo)})
			}
			t.Render()
		})
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List every past loan.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		client := globals.Get(cmd.Context()).Client
		result := withSession(cmd, client.History)
		render(cmd, result, func(entries []libsys.HistoryEntry) {
			t := newTable()
			t.AppendHeader(table.Row{"#", "条码号", "题名", "责任者", "借阅日期", "归还日期", "馆藏地", "marc_no"})
			for _, h := range entries {
				t.AppendRow(table.Row{h.Index, h.BarCode, h.Title, h.Author, h.BorrowDate, h.ReturnDate, h.Location, orDash(h.MarcNo)})
			}
			t.Render()
		})
	},
}

var billsCmd = &cobra.Command{
	Use:   "bills",
	Short: "List financial transactions.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		client := globals.Get(cmd.Context()).Client
		result := withSession(cmd, client.Bills)
		render(cmd, result, func(list libsys.BillList) {
			t := newTable()
			t.AppendHeader(table.Row{"结算日期", "类型", "退款", "缴款", "结算方式", "票据号"})
			for _, b := range list.Items {
				t.AppendRow(table.Row{b.Date, b.Type, b.Refund, b.Contribution, b.PayMethod, b.BillNo})
			}
			t.AppendFooter(table.Row{list.Summary})
			t.Render()
		})
	},
}

var debtsCmd = &cobra.Command{
	Use:   "debts",
	Short: "List outstanding fines.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		client := globals.Get(cmd.Context()).Client
		result := withSession(cmd, client.Debts)
		render(cmd, result, func(debts []libsys.Debt) {
			t := newTable()
			t.AppendHeader(table.Row{"条码号", "索书号", "题名", "责任者", "借阅日期", "应还日期", "馆藏地", "应缴", "实缴", "状态"})
			for _, d := range debts {
				t.AppendRow(table.Row{d.BarCode, d.CallNo, d.Title, d.Author, d.BorrowDate, d.DueDate, d.Location, d.Payable, d.Payin, d.State})
			}
			t.Render()
		})
	},
}
