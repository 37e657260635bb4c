package commands

import (
	"fmt"
	"time"
	"webopac/cmd/libsys-cli/globals"
	"webopac/internal/libsys"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	searchCmd.Flags().StringVarP(&searchField, "field", "f", string(libsys.FieldTitle), "field to search: title, author, keyword, isbn, asordno, coden, callno, publisher or series")
	searchCmd.Flags().IntVar(&searchPage, "page", 1, "result page, starting at 1")

	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(detailCmd)
	rootCmd.AddCommand(rankingCmd)
}

var (
	searchField string
	searchPage  int
)

var searchCmd = &cobra.Command{
	Use:   "search <content>",
	Short: "Search the catalog for lendable books.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		client := globals.Get(ctx).Client

		result := client.Search(ctx, libsys.SearchQuery{
			Field:   libsys.SearchField(searchField),
			Content: args[0],
			Page:    searchPage,
		})
		render(cmd, result, func(page libsys.SearchPage) {
			t := newTable()
			t.SetTitle(fmt.Sprintf("%d 条结果，第 %d/%d 页", page.Count, page.Page, page.Pages))
			t.AppendHeader(table.Row{"类型", "题名", "责任者", "出版", "索书号", "馆藏/可借", "marc_no"})
			for _, b := range page.Books {
				t.AppendRow(table.Row{b.Type, b.Title, b.Author, b.Publisher, b.CallNo, fmt.Sprintf("%d/%d", b.Total, b.Lendable), orDash(b.MarcNo)})
			}
			t.Render()
		})
	},
}

var detailCmd = &cobra.Command{
	Use:   "detail <marc_no>",
	Short: "Show the record and the copies of a catalog entry.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		client := globals.Get(ctx).Client

		result := client.Detail(ctx, args[0])
		render(cmd, result, func(d libsys.BookDetail) {
			t := newTable()
			t.SetTitle(d.Title)
			for _, row := range []table.Row{
				{"题名/责任者", d.FullTitle},
				{"其它题名", d.OthTitle},
				{"个人责任者", d.Author},
				{"个人次要责任者", d.OthAuthor},
				{"学科主题", d.Category},
				{"出版发行项", d.Publisher},
				{"ISBN及定价", d.Isbn},
				{"载体形态项", d.Physical},
				{"一般附注", d.Notes},
				{"责任者附注", d.AuthorNotes},
				{"提要文摘附注", d.Abstract},
				{"中图法分类号", d.CallNo},
			} {
				if row[1] != "" {
					t.AppendRow(row)
				}
			}
			t.Render()

			holdings := newTable()
			holdings.AppendHeader(table.Row{"索书号", "条码号", "年卷期", "馆藏地", "还书地点", "状态"})
			for _, h := range d.Holdings {
				holdings.AppendRow(table.Row{h.CallNo, h.BarCode, h.AnnualRoll, h.Location, h.ReturnLocation, h.Status})
			}
			holdings.Render()
		})
	},
}

var rankingCmd = &cobra.Command{
	Use:   "ranking",
	Short: "List the most borrowed books.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		g := globals.Get(ctx)

		result := g.Client.Ranking(ctx)
		render(cmd, result, func(r libsys.Ranking) {
			t := newTable()
			t.SetTitle(time.Unix(r.Updated, 0).In(g.Clock.Location()).Format(time.DateTime))
			t.AppendHeader(table.Row{"#", "题名", "责任者", "出版", "索书号", "馆藏", "借阅次数", "借阅比", "marc_no"})
			for _, b := range r.Books {
				t.AppendRow(table.Row{b.Index, b.Title, b.Author, b.Publisher, b.CallNo, b.TotalNum, b.BorrowedTimes, b.BorrowedRatio, orDash(b.MarcNo)})
			}
			t.Render()
		})
	},
}
